package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Page is a slice of a server-side collection.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// itemKeys is the order in which envelope item fields are looked up.
var itemKeys = []string{"items", "data", "list"}

// decodePage accepts either a bare JSON array (one full page) or an envelope carrying
// items/data/list plus total/limit/offset. limit and offset are the values the request
// asked for and fill in whatever the array form cannot report.
func decodePage[T any](raw []byte, limit, offset int) (Page[T], error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Page[T]{}, fmt.Errorf("%w: empty body", ErrUnexpectedShape)
	}

	switch raw[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return Page[T]{}, fmt.Errorf("decode list: %w", err)
		}
		p := Page[T]{Items: items, Total: len(items), Limit: limit, Offset: offset}
		if p.Limit <= 0 {
			p.Limit = len(items)
		}
		if p.Offset < 0 {
			p.Offset = 0
		}
		return p, nil
	case '{':
		var env map[string]json.RawMessage
		if err := json.Unmarshal(raw, &env); err != nil {
			return Page[T]{}, fmt.Errorf("decode envelope: %w", err)
		}
		itemsRaw, ok := firstPresent(env, itemKeys)
		if !ok {
			return Page[T]{}, fmt.Errorf("%w: envelope has none of %v", ErrUnexpectedShape, itemKeys)
		}
		var p Page[T]
		if !isNull(itemsRaw) {
			if err := json.Unmarshal(itemsRaw, &p.Items); err != nil {
				return Page[T]{}, fmt.Errorf("decode items: %w", err)
			}
		}
		p.Total = len(p.Items)
		p.Limit = limit
		p.Offset = offset
		if err := intField(env, "total", &p.Total); err != nil {
			return Page[T]{}, err
		}
		if err := intField(env, "limit", &p.Limit); err != nil {
			return Page[T]{}, err
		}
		if err := intField(env, "offset", &p.Offset); err != nil {
			return Page[T]{}, err
		}
		if p.Items == nil {
			p.Items = []T{}
		}
		return p, nil
	}
	return Page[T]{}, fmt.Errorf("%w: neither array nor object", ErrUnexpectedShape)
}

func firstPresent(env map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := env[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func intField(env map[string]json.RawMessage, key string, dst *int) error {
	v, ok := env[key]
	if !ok || isNull(v) {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
