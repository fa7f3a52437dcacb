package store

import (
	"strings"
	"time"

	"cthulhu/internal/domain"
	"cthulhu/internal/gateway"
)

type StatusFilter string

const (
	StatusAll      StatusFilter = "ALL"
	StatusEnabled  StatusFilter = "ENABLED"
	StatusDisabled StatusFilter = "DISABLED"
)

// Filters is the task list filter set. All present filters are combined with AND.
// Zero values mean "not filtered".
type Filters struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Status      StatusFilter `json:"status"`
	CreatedFrom time.Time    `json:"created_from"`
	CreatedTo   time.Time    `json:"created_to"`
	UpdatedFrom time.Time    `json:"updated_from"`
	UpdatedTo   time.Time    `json:"updated_to"`
}

func (f Filters) normalized() Filters {
	f.Name = strings.TrimSpace(f.Name)
	f.Description = strings.TrimSpace(f.Description)
	switch StatusFilter(strings.ToUpper(string(f.Status))) {
	case StatusEnabled:
		f.Status = StatusEnabled
	case StatusDisabled:
		f.Status = StatusDisabled
	default:
		f.Status = StatusAll
	}
	return f
}

func (f Filters) taskStatus() domain.TaskStatus {
	if f.Status == StatusAll {
		return ""
	}
	return domain.TaskStatus(f.Status)
}

// query builds the server-side list query for the given 1-based page.
func (f Filters) query(page, size int) gateway.TaskListQuery {
	return gateway.TaskListQuery{
		Status:      f.taskStatus(),
		Name:        f.Name,
		Description: f.Description,
		CreatedFrom: f.CreatedFrom,
		CreatedTo:   f.CreatedTo,
		UpdatedFrom: f.UpdatedFrom,
		UpdatedTo:   f.UpdatedTo,
		Limit:       size,
		Offset:      (page - 1) * size,
	}
}

// match is the local evaluation used when the full task set is held client side.
func (f Filters) match(t domain.Task) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.Description != "" && !strings.Contains(strings.ToLower(t.Description), strings.ToLower(f.Description)) {
		return false
	}
	if s := f.taskStatus(); s != "" && t.Status != s {
		return false
	}
	return inRange(t.CreatedAt, f.CreatedFrom, f.CreatedTo) && inRange(t.UpdatedAt, f.UpdatedFrom, f.UpdatedTo)
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
