package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cthulhu/internal/domain"
	"cthulhu/internal/validate"
)

func (s *Server) artemisRoutes(r chi.Router) {
	r.Get("/tasks", s.artemisTasks)
	r.Get("/yaml", s.getTaskYAML)
	r.Put("/yaml", s.updateTaskYAML)
	r.Get("/units/tree", s.taskUnitsTree)
	r.Get("/units/file", s.getTaskUnitFile)
	r.Put("/units/file", s.updateTaskUnitFile)
	r.Post("/units/file", s.createTaskUnitFile)
	r.Delete("/units/file", s.deleteTaskUnit)
	r.Post("/units/rename", s.renameTaskUnit)
	r.Post("/units/register", s.registerTaskUnit)
	r.Get("/unregistered", s.unregisteredTasks)
	r.Post("/unregister/{code}", s.unregisterTask)
}

func (s *Server) artemisTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.artemis.ListTasks(r.Context())
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) getTaskYAML(w http.ResponseWriter, r *http.Request) {
	y, err := s.artemis.GetTaskYAML(r.Context())
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, y)
}

// updateTaskYAML refuses content that does not parse; nothing is sent in that case.
func (s *Server) updateTaskYAML(w http.ResponseWriter, r *http.Request) {
	var req domain.TaskYAML
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := validate.TaskYAML(req.Content); err != nil {
		writeBadRequest(w, err)
		return
	}
	y, err := s.artemis.UpdateTaskYAML(r.Context(), req.Content)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, y)
}

func (s *Server) taskUnitsTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.artemis.GetTaskUnitsTree(r.Context())
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func unitPath(r *http.Request) (string, bool) {
	p := strings.TrimSpace(r.URL.Query().Get("path"))
	return p, p != ""
}

func (s *Server) getTaskUnitFile(w http.ResponseWriter, r *http.Request) {
	path, ok := unitPath(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "path is required"})
		return
	}
	f, err := s.artemis.GetTaskUnitFile(r.Context(), path)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) updateTaskUnitFile(w http.ResponseWriter, r *http.Request) {
	s.writeTaskUnitFile(w, r, false)
}

func (s *Server) createTaskUnitFile(w http.ResponseWriter, r *http.Request) {
	s.writeTaskUnitFile(w, r, true)
}

func (s *Server) writeTaskUnitFile(w http.ResponseWriter, r *http.Request, create bool) {
	var req domain.TaskUnitFile
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "path is required"})
		return
	}
	write, code := s.artemis.UpdateTaskUnitFile, http.StatusOK
	if create {
		write, code = s.artemis.CreateTaskUnitFile, http.StatusCreated
	}
	f, err := write(r.Context(), req.Path, req.Content)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, code, f)
}

func (s *Server) deleteTaskUnit(w http.ResponseWriter, r *http.Request) {
	path, ok := unitPath(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "path is required"})
		return
	}
	out, err := s.artemis.DeleteTaskUnit(r.Context(), path)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeRaw(w, out)
}

func (s *Server) renameTaskUnit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPath string `json:"old_path"`
		NewPath string `json:"new_path"`
	}
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.OldPath == "" || req.NewPath == "" {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "old_path and new_path are required"})
		return
	}
	out, err := s.artemis.RenameTaskUnit(r.Context(), req.OldPath, req.NewPath)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeRaw(w, out)
}

func (s *Server) registerTaskUnit(w http.ResponseWriter, r *http.Request) {
	var req domain.TaskUnitRegisterRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.TaskCode == "" || req.Module == "" || req.ClassName == "" {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "task_code, module and class_name are required"})
		return
	}
	out, err := s.artemis.RegisterTaskUnit(r.Context(), req)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeRaw(w, out)
}

func (s *Server) unregisteredTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.artemis.ListUnregisteredTasks(r.Context())
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) unregisterTask(w http.ResponseWriter, r *http.Request) {
	out, err := s.artemis.UnregisterTask(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeRaw(w, out)
}

// writeRaw relays an artemis answer whose shape is not fixed.
func writeRaw(w http.ResponseWriter, raw []byte) {
	if len(raw) == 0 {
		raw = []byte(`{}`)
	}
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}
