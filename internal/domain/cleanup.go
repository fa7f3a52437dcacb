package domain

import "encoding/json"

// CleanupRequest is one of CleanupByAge, CleanupByCount or CleanupByIDs.
type CleanupRequest interface {
	Mode() string
	json.Marshaler
}

type CleanupByAge struct {
	TaskID        int64 // 0 means every task
	MaxAgeSeconds int64
}

type CleanupByCount struct {
	TaskID int64
	Keep   int
}

type CleanupByIDs struct {
	IDs []int64
}

func (CleanupByAge) Mode() string   { return "age" }
func (CleanupByCount) Mode() string { return "count" }
func (CleanupByIDs) Mode() string   { return "ids" }

func (c CleanupByAge) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Mode          string `json:"mode"`
		TaskID        int64  `json:"task_id,omitempty"`
		MaxAgeSeconds int64  `json:"max_age_seconds"`
	}{c.Mode(), c.TaskID, c.MaxAgeSeconds})
}

func (c CleanupByCount) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Mode   string `json:"mode"`
		TaskID int64  `json:"task_id,omitempty"`
		Keep   int    `json:"keep"`
	}{c.Mode(), c.TaskID, c.Keep})
}

func (c CleanupByIDs) MarshalJSON() ([]byte, error) {
	ids := c.IDs
	if ids == nil {
		ids = []int64{}
	}
	return json.Marshal(struct {
		Mode string  `json:"mode"`
		IDs  []int64 `json:"ids"`
	}{c.Mode(), ids})
}

type CleanupResult struct {
	Deleted int64 `json:"deleted"`
}
