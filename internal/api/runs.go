package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"cthulhu/internal/domain"
	"cthulhu/internal/gateway"
)

type runDetailResp struct {
	runView
	Progress *domain.RunProgress `json:"progress"`
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	run, err := s.cron.GetRun(r.Context(), id)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	resp := runDetailResp{runView: newRunView(run)}
	if !run.Status.Terminal() {
		if p, err := s.cron.GetRunProgress(r.Context(), id); err == nil {
			resp.Progress = &p
		} else {
			log.Debug().Err(err).Int64("run_id", id).Msg("run has no progress")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	canceled, err := s.store.CancelRun(r.Context(), id)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"canceled": canceled})
}

func (s *Server) activeRuns(w http.ResponseWriter, r *http.Request) {
	statuses, err := statusList(r.URL.Query().Get("status"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	q := gateway.RunListQuery{
		Statuses: statuses,
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	}
	page, err := s.cron.ListActiveRuns(r.Context(), q)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	views := make([]runView, len(page.Items))
	for i, run := range page.Items {
		views[i] = newRunView(run)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": views, "total": page.Total, "limit": page.Limit, "offset": page.Offset,
	})
}

func (s *Server) runsSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.cron.RunsSummary(r.Context())
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// runProgress serves the polled board when one is running and asks the backend otherwise.
func (s *Server) runProgress(w http.ResponseWriter, r *http.Request) {
	if s.progress != nil && !queryBool(r, "live") {
		writeJSON(w, http.StatusOK, s.progress.Current())
		return
	}
	list, err := s.cron.ListAllRunProgress(r.Context())
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type cleanupReq struct {
	Mode          string  `json:"mode"`
	TaskID        int64   `json:"task_id"`
	MaxAgeSeconds int64   `json:"max_age_seconds"`
	Keep          int     `json:"keep"`
	IDs           []int64 `json:"ids"`
}

func (c cleanupReq) request() (domain.CleanupRequest, error) {
	switch c.Mode {
	case "age":
		if c.MaxAgeSeconds <= 0 {
			return nil, errors.New("max_age_seconds must be positive")
		}
		return domain.CleanupByAge{TaskID: c.TaskID, MaxAgeSeconds: c.MaxAgeSeconds}, nil
	case "count":
		if c.Keep < 0 {
			return nil, errors.New("keep must not be negative")
		}
		return domain.CleanupByCount{TaskID: c.TaskID, Keep: c.Keep}, nil
	case "ids":
		if len(c.IDs) == 0 {
			return nil, errors.New("ids must not be empty")
		}
		return domain.CleanupByIDs{IDs: c.IDs}, nil
	}
	return nil, errors.New(`mode must be one of "age", "count", "ids"`)
}

func (s *Server) cleanupRuns(w http.ResponseWriter, r *http.Request) {
	var req cleanupReq
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	cr, err := req.request()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	res, err := s.cron.CleanupRuns(r.Context(), cr)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	if req.TaskID > 0 {
		s.store.LoadRuns(r.Context(), req.TaskID, true)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) refreshCache(w http.ResponseWriter, r *http.Request) {
	ok, err := s.store.RefreshCache(r.Context())
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"refreshed": ok})
}

func (s *Server) listErrors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.notifier.Snapshot())
}

func (s *Server) clearErrors(w http.ResponseWriter, r *http.Request) {
	s.notifier.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) dismissError(w http.ResponseWriter, r *http.Request) {
	s.notifier.Dismiss(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) errorHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: "error archive is disabled"})
		return
	}
	entries, err := s.archive.ListRecent(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
