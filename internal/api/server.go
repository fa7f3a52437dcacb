package api

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"cthulhu/internal/archive"
	"cthulhu/internal/domain"
	"cthulhu/internal/errcapture"
	"cthulhu/internal/gateway"
	"cthulhu/internal/store"
	"cthulhu/internal/validate"
	"cthulhu/internal/worker"
)

//go:embed templates/*.html
var templateFS embed.FS

// Deps are the services the console serves. Archive and Progress may be nil.
type Deps struct {
	Store    *store.Store
	Cronjob  *gateway.CronjobClient
	Artemis  *gateway.ArtemisClient
	Notifier *errcapture.Notifier
	Archive  archive.Repository
	Progress *worker.ProgressBoard
}

type Server struct {
	r         *chi.Mux
	store     *store.Store
	cron      *gateway.CronjobClient
	artemis   *gateway.ArtemisClient
	notifier  *errcapture.Notifier
	archive   archive.Repository
	progress  *worker.ProgressBoard
	templates *template.Template
	started   time.Time
}

func NewServer(d Deps) http.Handler {
	return NewServerWithDebug(d, false)
}

func NewServerWithDebug(d Deps, enableDebug bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	templates := template.Must(template.New("").Funcs(template.FuncMap{
		"ts": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
	}).ParseFS(templateFS, "templates/*.html"))

	s := &Server{
		r:         r,
		store:     d.Store,
		cron:      d.Cronjob,
		artemis:   d.Artemis,
		notifier:  d.Notifier,
		archive:   d.Archive,
		progress:  d.Progress,
		templates: templates,
		started:   time.Now(),
	}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Get("/", s.dashboard)
	r.Get("/dashboard", s.dashboard)

	r.Route("/console", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Post("/", s.createTask)
			r.Post("/filters", s.applyFilters)
			r.Delete("/filters", s.resetFilters)
			r.Post("/page", s.setTaskPage)
			r.Post("/search", s.searchTasks)
			r.Post("/reload", s.reloadTasks)
			r.Post("/preview", s.previewCron)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getTask)
				r.Put("/", s.updateTask)
				r.Delete("/", s.deleteTask)
				r.Post("/enable", s.enableTask)
				r.Post("/disable", s.disableTask)
				r.Post("/trigger", s.triggerTask)
				r.Get("/runs", s.listRuns)
				r.Post("/runs/page", s.setRunPage)
				r.Get("/stats", s.taskStats)
			})
		})
		r.Route("/runs", func(r chi.Router) {
			r.Get("/active", s.activeRuns)
			r.Get("/summary", s.runsSummary)
			r.Get("/progress", s.runProgress)
			r.Get("/{id}", s.getRun)
			r.Post("/{id}/cancel", s.cancelRun)
		})
		r.Post("/maintenance/cleanup", s.cleanupRuns)
		r.Post("/maintenance/cache", s.refreshCache)
		r.Route("/errors", func(r chi.Router) {
			r.Get("/", s.listErrors)
			r.Delete("/", s.clearErrors)
			r.Get("/history", s.errorHistory)
			r.Delete("/{id}", s.dismissError)
		})
		r.Route("/artemis", s.artemisRoutes)
	})

	if enableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "cthulhu_up 1\n")
	fmt.Fprintf(w, "cthulhu_uptime_seconds %d\n", int(time.Since(s.started).Seconds()))
	fmt.Fprintf(w, "cthulhu_captured_errors %d\n", len(s.notifier.Snapshot()))
	fmt.Fprintf(w, "cthulhu_tasks_total %d\n", store.TaskTotal(snap))
	fmt.Fprintf(w, "cthulhu_run_caches %d\n", len(snap.Runs))
	if s.progress != nil {
		fmt.Fprintf(w, "cthulhu_runs_in_progress %d\n", s.progress.Current().Count)
	}
}

type dashboardView struct {
	Tasks     []domain.Task
	Total     int
	Page      int
	PageCount int
	Error     string
	Errors    []errcapture.ErrorRecord
	Progress  []domain.RunProgress
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	s.store.LoadTasks(r.Context(), false)
	snap := s.store.Snapshot()
	view := dashboardView{
		Tasks:     store.PagedTasks(snap),
		Total:     store.TaskTotal(snap),
		Page:      snap.TaskPage,
		PageCount: store.TaskPageCount(snap),
		Error:     snap.Error,
		Errors:    s.notifier.Snapshot(),
	}
	if s.progress != nil {
		view.Progress = s.progress.Current().Items
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "dashboard.html", view); err != nil {
		http.Error(w, err.Error(), 500)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResp struct {
	Error    string             `json:"error"`
	Status   int                `json:"status,omitempty"`
	Problems []validate.Problem `json:"problems,omitempty"`
}

func writeBadRequest(w http.ResponseWriter, err error) {
	resp := errorResp{Error: err.Error()}
	var ve *validate.Error
	if errors.As(err, &ve) {
		resp.Problems = ve.Problems
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

// writeGatewayError answers a failed backend call. The capture transport has already
// recorded it.
func writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	log.Warn().Err(err).Str("component", "api").Str("path", r.URL.Path).Msg("backend call failed")
	writeJSON(w, http.StatusBadGateway, errorResp{Error: err.Error(), Status: gateway.StatusOf(err)})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func idParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
