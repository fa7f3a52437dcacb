package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	ID int `json:"id"`
}

func TestDecodePageShapes(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		limit  int
		offset int
		want   Page[item]
	}{
		{"bare array", `[{"id":1},{"id":2}]`, 0, 0, Page[item]{Items: []item{{1}, {2}}, Total: 2, Limit: 2}},
		{"bare array keeps query window", `[{"id":1}]`, 10, 20, Page[item]{Items: []item{{1}}, Total: 1, Limit: 10, Offset: 20}},
		{"items envelope", `{"items":[{"id":3}],"total":40,"limit":1,"offset":5}`, 10, 0, Page[item]{Items: []item{{3}}, Total: 40, Limit: 1, Offset: 5}},
		{"data envelope without total", `{"data":[{"id":1},{"id":2}]}`, 10, 0, Page[item]{Items: []item{{1}, {2}}, Total: 2, Limit: 10}},
		{"list envelope", `{"list":[],"total":0}`, 0, 0, Page[item]{Items: []item{}}},
		{"items takes priority over data", `{"data":[{"id":9}],"items":[{"id":1}]}`, 0, 0, Page[item]{Items: []item{{1}}, Total: 1}},
		{"null items", `{"items":null,"total":3}`, 0, 0, Page[item]{Items: []item{}, Total: 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodePage[item]([]byte(tc.body), tc.limit, tc.offset)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDecodePageRejectsUnknownShapes(t *testing.T) {
	for _, body := range []string{``, `"text"`, `42`, `{"rows":[]}`} {
		_, err := decodePage[item]([]byte(body), 0, 0)
		require.Error(t, err, body)
		require.True(t, errors.Is(err, ErrUnexpectedShape), body)
	}
}
