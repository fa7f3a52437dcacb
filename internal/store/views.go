package store

import "cthulhu/internal/domain"

// Derived views. All of them are pure functions of a Snapshot.

// FilteredTasks is the held task list after filtering. With server paging the backend has
// already filtered, so the list is returned as is.
func FilteredTasks(s Snapshot) []domain.Task {
	if s.Mode == ServerPaging {
		return s.Tasks
	}
	out := make([]domain.Task, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		if s.Filters.match(t) {
			out = append(out, t)
		}
	}
	return out
}

// PagedTasks is the slice of tasks for the current page.
func PagedTasks(s Snapshot) []domain.Task {
	if s.Mode == ServerPaging {
		return s.Tasks
	}
	return pageOf(FilteredTasks(s), s.TaskPage, s.TaskPageSize)
}

// TaskTotal is the number of tasks matching the filters.
func TaskTotal(s Snapshot) int {
	if s.Mode == ServerPaging {
		return s.TaskTotal
	}
	return len(FilteredTasks(s))
}

// TaskPageCount never reports fewer than one page.
func TaskPageCount(s Snapshot) int {
	size := s.TaskPageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	n := (TaskTotal(s) + size - 1) / size
	if n < 1 {
		return 1
	}
	return n
}

// RunPager returns the run page of a task, defaulting to page 1 of DefaultRunPageSize.
func RunPager(s Snapshot, taskID int64) Pager {
	p := s.RunPages[taskID]
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = DefaultRunPageSize
	}
	return p
}

func RunsFor(s Snapshot, taskID int64) []domain.TaskRun {
	if runs, ok := s.Runs[taskID]; ok {
		return runs
	}
	return []domain.TaskRun{}
}

func LoadingRunsFor(s Snapshot, taskID int64) bool {
	return s.RunsLoading[taskID]
}

// PagedRuns slices the cached runs of a task by its run page.
func PagedRuns(s Snapshot, taskID int64) []domain.TaskRun {
	p := RunPager(s, taskID)
	return pageOf(RunsFor(s, taskID), p.Page, p.Size)
}

func pageOf[T any](items []T, page, size int) []T {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		return items
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
