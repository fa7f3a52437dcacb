// Package store is the task/run state container shared by every console consumer.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"cthulhu/internal/domain"
	"cthulhu/internal/gateway"
	"cthulhu/internal/observable"
)

const (
	DefaultPageSize       = 10
	DefaultRunPageSize    = 10
	DefaultSearchDebounce = 300 * time.Millisecond
	// ClientFetchLimit is the page size used to walk the whole task set; the backend caps
	// limit at 500.
	ClientFetchLimit = 500

	ErrLoadTasks = "加载任务失败"
	ErrLoadRuns  = "加载运行记录失败"
)

// Gateway is the part of the cronjob backend the store needs. *gateway.CronjobClient
// satisfies it.
type Gateway interface {
	ListTasks(ctx context.Context, q gateway.TaskListQuery) (gateway.TaskPage, error)
	ListRuns(ctx context.Context, taskID int64, q gateway.RunListQuery) (gateway.RunPage, error)
	EnableTask(ctx context.Context, id int64) (bool, error)
	DisableTask(ctx context.Context, id int64) (bool, error)
	TriggerTask(ctx context.Context, id int64) (domain.TriggeredRun, error)
	DeleteTask(ctx context.Context, id int64) (bool, error)
	RefreshCache(ctx context.Context) (bool, error)
	CancelRun(ctx context.Context, id int64) (bool, error)
}

// Mode selects where task filtering and pagination happen.
type Mode int

const (
	// ServerPaging sends filters and the page window to the backend and holds one page.
	ServerPaging Mode = iota
	// ClientPaging fetches the whole task set once and filters and pages it locally.
	ClientPaging
)

func (m Mode) String() string {
	if m == ClientPaging {
		return "client"
	}
	return "server"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "server":
		return ServerPaging, nil
	case "client":
		return ClientPaging, nil
	}
	return ServerPaging, fmt.Errorf("unknown store mode %q", s)
}

type Options struct {
	PageSize       int
	RunPageSize    int
	SearchDebounce time.Duration
	// RunFetchLimit caps how many runs are fetched per task. Zero lets the backend decide.
	RunFetchLimit int
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.RunPageSize <= 0 {
		o.RunPageSize = DefaultRunPageSize
	}
	if o.SearchDebounce <= 0 {
		o.SearchDebounce = DefaultSearchDebounce
	}
	return o
}

type Pager struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// Snapshot is a deep copy of the store state. Nothing in it aliases the store's own maps,
// slices or the pointer fields of runs.
type Snapshot struct {
	Mode         Mode                       `json:"-"`
	Tasks        []domain.Task              `json:"tasks"`
	TaskTotal    int                        `json:"task_total"`
	TaskPage     int                        `json:"task_page"`
	TaskPageSize int                        `json:"task_page_size"`
	Filters      Filters                    `json:"filters"`
	TasksLoading bool                       `json:"tasks_loading"`
	TasksLoaded  bool                       `json:"tasks_loaded"`
	Runs         map[int64][]domain.TaskRun `json:"runs"`
	RunPages     map[int64]Pager            `json:"run_pages"`
	RunsLoading  map[int64]bool             `json:"runs_loading"`
	Error        string                     `json:"error,omitempty"`
}

type state struct {
	tasks        []domain.Task
	taskTotal    int
	taskPage     int
	taskPageSize int
	filters      Filters
	tasksLoading bool
	tasksLoaded  bool
	runs         map[int64][]domain.TaskRun
	runPages     map[int64]Pager
	runsLoading  map[int64]bool
	err          string
}

// Store holds the current tasks and the lazily loaded runs of each task. Every mutation
// publishes a new Snapshot.
type Store struct {
	gw   Gateway
	mode Mode
	opts Options

	mu    sync.Mutex
	st    state
	seq   map[string]uint64
	value *observable.Value[Snapshot]

	searchTimer *time.Timer
	searchGen   uint64
}

func New(gw Gateway, mode Mode, opts Options) *Store {
	opts = opts.withDefaults()
	s := &Store{
		gw:   gw,
		mode: mode,
		opts: opts,
		st: state{
			taskPage:     1,
			taskPageSize: opts.PageSize,
			filters:      Filters{}.normalized(),
			runs:         map[int64][]domain.TaskRun{},
			runPages:     map[int64]Pager{},
			runsLoading:  map[int64]bool{},
		},
		seq: map[string]uint64{},
	}
	s.value = observable.NewValue(s.snapshotLocked())
	return s
}

func (s *Store) Mode() Mode { return s.mode }

func (s *Store) Snapshot() Snapshot { return s.value.Get() }

// Subscribe delivers the current snapshot immediately, then every later one.
func (s *Store) Subscribe() (<-chan Snapshot, func()) { return s.value.Subscribe() }

// Error is the advisory message of the last failed load, empty when none.
func (s *Store) Error() string { return s.Snapshot().Error }

// LoadTasks refreshes the task list. With server paging every call fetches the current
// page. With client paging the full set is fetched once and force triggers a refetch.
// Failures only set the advisory error; the previous list is kept.
func (s *Store) LoadTasks(ctx context.Context, force bool) {
	s.mu.Lock()
	if s.mode == ClientPaging && s.st.tasksLoaded && !force {
		s.mu.Unlock()
		return
	}
	q := s.st.filters.query(s.st.taskPage, s.st.taskPageSize)
	seq := s.nextSeqLocked(tasksKey)
	s.st.tasksLoading = true
	s.publishLocked()
	s.mu.Unlock()

	var (
		page gateway.TaskPage
		err  error
	)
	if s.mode == ServerPaging {
		page, err = s.gw.ListTasks(ctx, q)
	} else {
		page, err = s.fetchAllTasks(ctx, seq)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq[tasksKey] != seq {
		log.Debug().Str("component", "store").Uint64("seq", seq).Msg("discarding stale task list response")
		return
	}
	s.st.tasksLoading = false
	if err != nil {
		log.Error().Err(err).Str("component", "store").Msg("load tasks failed")
		s.st.err = ErrLoadTasks
	} else {
		s.st.tasks = page.Items
		s.st.taskTotal = page.Total
		s.st.tasksLoaded = true
		s.st.err = ""
	}
	s.publishLocked()
}

// fetchAllTasks walks the unfiltered task list ClientFetchLimit rows at a time. It stops
// early when a newer task load has been issued; the caller then discards the result.
func (s *Store) fetchAllTasks(ctx context.Context, seq uint64) (gateway.TaskPage, error) {
	var all []domain.Task
	total := 0
	for {
		q := gateway.TaskListQuery{Limit: ClientFetchLimit, Offset: len(all)}
		page, err := s.gw.ListTasks(ctx, q)
		if err != nil {
			return gateway.TaskPage{}, err
		}
		all = append(all, page.Items...)
		total = page.Total
		if len(page.Items) == 0 || len(all) >= total {
			break
		}
		s.mu.Lock()
		stale := s.seq[tasksKey] != seq
		s.mu.Unlock()
		if stale {
			break
		}
	}
	if all == nil {
		all = []domain.Task{}
	}
	return gateway.TaskPage{Items: all, Total: max(total, len(all)), Limit: len(all)}, nil
}

// LoadRuns fetches the runs of one task. A task whose runs are cached and non-empty is
// not fetched again unless force is set.
func (s *Store) LoadRuns(ctx context.Context, taskID int64, force bool) {
	key := runsKey(taskID)

	s.mu.Lock()
	if len(s.st.runs[taskID]) > 0 && !force {
		s.mu.Unlock()
		return
	}
	seq := s.nextSeqLocked(key)
	s.st.runsLoading[taskID] = true
	s.publishLocked()
	s.mu.Unlock()

	page, err := s.gw.ListRuns(ctx, taskID, gateway.RunListQuery{Limit: s.opts.RunFetchLimit})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq[key] != seq {
		log.Debug().Str("component", "store").Int64("task_id", taskID).Uint64("seq", seq).Msg("discarding stale run list response")
		return
	}
	delete(s.st.runsLoading, taskID)
	if err != nil {
		log.Error().Err(err).Str("component", "store").Int64("task_id", taskID).Msg("load runs failed")
		s.st.err = ErrLoadRuns
	} else {
		s.st.runs[taskID] = page.Items
		s.st.err = ""
	}
	s.publishLocked()
}

// ApplyFilters replaces the whole filter set, returns to page 1 and reloads.
func (s *Store) ApplyFilters(ctx context.Context, f Filters) {
	s.mu.Lock()
	s.cancelSearchLocked()
	s.st.filters = f.normalized()
	s.st.taskPage = 1
	s.mu.Unlock()
	s.reloadTasks(ctx)
}

func (s *Store) ResetFilters(ctx context.Context) {
	s.ApplyFilters(ctx, Filters{})
}

// SetTaskSearch applies a new name filter after the debounce delay. A later call replaces
// a pending one. The reload outlives ctx cancellation.
func (s *Store) SetTaskSearch(ctx context.Context, name string) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelSearchLocked()
	gen := s.searchGen
	s.searchTimer = time.AfterFunc(s.opts.SearchDebounce, func() {
		s.mu.Lock()
		if gen != s.searchGen {
			s.mu.Unlock()
			return
		}
		s.searchTimer = nil
		f := s.st.filters
		f.Name = name
		s.mu.Unlock()
		s.ApplyFilters(ctx, f)
	})
}

func (s *Store) cancelSearchLocked() {
	s.searchGen++
	if s.searchTimer != nil {
		s.searchTimer.Stop()
		s.searchTimer = nil
	}
}

func (s *Store) SetTaskPage(ctx context.Context, page int) {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	s.st.taskPage = page
	s.mu.Unlock()
	s.reloadTasks(ctx)
}

func (s *Store) SetTaskPageSize(ctx context.Context, size int) {
	if size <= 0 {
		size = s.opts.PageSize
	}
	s.mu.Lock()
	s.st.taskPageSize = size
	s.st.taskPage = 1
	s.mu.Unlock()
	s.reloadTasks(ctx)
}

// reloadTasks is what a filter or page change triggers: a fetch with server paging, a
// local recompute (or first fetch) with client paging.
func (s *Store) reloadTasks(ctx context.Context) {
	if s.mode == ServerPaging {
		s.LoadTasks(ctx, true)
		return
	}
	s.mu.Lock()
	loaded := s.st.tasksLoaded
	s.publishLocked()
	s.mu.Unlock()
	if !loaded {
		s.LoadTasks(ctx, false)
	}
}

// SetRunPage and SetRunPageSize only move the local window over cached runs.
func (s *Store) SetRunPage(taskID int64, page int) {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pagerLocked(taskID)
	p.Page = page
	s.setPagerLocked(taskID, p)
}

func (s *Store) SetRunPageSize(taskID int64, size int) {
	if size <= 0 {
		size = s.opts.RunPageSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setPagerLocked(taskID, Pager{Page: 1, Size: size})
}

func (s *Store) pagerLocked(taskID int64) Pager {
	p, ok := s.st.runPages[taskID]
	if !ok {
		p = Pager{Page: 1, Size: s.opts.RunPageSize}
	}
	return p
}

func (s *Store) setPagerLocked(taskID int64, p Pager) {
	s.st.runPages[taskID] = p
	s.publishLocked()
}

// Mutating intents go straight to the backend. Local state is left alone; callers reload
// to observe the outcome.

func (s *Store) Enable(ctx context.Context, id int64) (bool, error) {
	return s.gw.EnableTask(ctx, id)
}

func (s *Store) Disable(ctx context.Context, id int64) (bool, error) {
	return s.gw.DisableTask(ctx, id)
}

func (s *Store) Trigger(ctx context.Context, id int64) (domain.TriggeredRun, error) {
	return s.gw.TriggerTask(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	return s.gw.DeleteTask(ctx, id)
}

func (s *Store) RefreshCache(ctx context.Context) (bool, error) {
	return s.gw.RefreshCache(ctx)
}

// CancelRun cancels one run and force reloads the runs of its task when they are cached.
func (s *Store) CancelRun(ctx context.Context, runID int64) (bool, error) {
	canceled, err := s.gw.CancelRun(ctx, runID)
	if err != nil {
		return false, err
	}
	if taskID, ok := s.ownerOf(runID); ok {
		s.LoadRuns(ctx, taskID, true)
	}
	return canceled, nil
}

func (s *Store) ownerOf(runID int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for taskID, runs := range s.st.runs {
		for _, r := range runs {
			if r.ID == runID {
				return taskID, true
			}
		}
	}
	return 0, false
}

const tasksKey = "tasks"

func runsKey(taskID int64) string { return "runs:" + strconv.FormatInt(taskID, 10) }

func (s *Store) nextSeqLocked(key string) uint64 {
	s.seq[key]++
	return s.seq[key]
}

func (s *Store) publishLocked() {
	s.value.Set(s.snapshotLocked())
}

func (s *Store) snapshotLocked() Snapshot {
	runs := make(map[int64][]domain.TaskRun, len(s.st.runs))
	for id, rs := range s.st.runs {
		cp := make([]domain.TaskRun, len(rs))
		for i, r := range rs {
			cp[i] = cloneRun(r)
		}
		runs[id] = cp
	}
	return Snapshot{
		Mode:         s.mode,
		Tasks:        append([]domain.Task{}, s.st.tasks...),
		TaskTotal:    s.st.taskTotal,
		TaskPage:     s.st.taskPage,
		TaskPageSize: s.st.taskPageSize,
		Filters:      s.st.filters,
		TasksLoading: s.st.tasksLoading,
		TasksLoaded:  s.st.tasksLoaded,
		Runs:         runs,
		RunPages:     copyMap(s.st.runPages),
		RunsLoading:  copyMap(s.st.runsLoading),
		Error:        s.st.err,
	}
}

// cloneRun copies the pointer fields too so readers never share them with the store.
func cloneRun(r domain.TaskRun) domain.TaskRun {
	r.StartTime = clonePtr(r.StartTime)
	r.EndTime = clonePtr(r.EndTime)
	r.NextRetryTime = clonePtr(r.NextRetryTime)
	r.CallbackDeadline = clonePtr(r.CallbackDeadline)
	r.ResponseCode = clonePtr(r.ResponseCode)
	return r
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
