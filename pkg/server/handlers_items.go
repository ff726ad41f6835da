package server

import (
	"net/http"
	"strings"

	"github.com/harrisonrobin/nexus/pkg/model"
)

type taskRequest struct {
	ID         string  `json:"id"`
	Title      *string `json:"title"`
	Project    *string `json:"project"`
	Status     *string `json:"status"`
	Priority   *string `json:"priority"`
	DueDate    *string `json:"dueDate"`
	AssignedTo *string `json:"assignedTo"`
}

func (req taskRequest) apply(t *model.Task) error {
	if req.Title != nil {
		t.Title = strings.TrimSpace(*req.Title)
	}
	if req.Project != nil {
		t.Project = strings.TrimSpace(*req.Project)
	}
	if req.Status != nil {
		st, ok := model.ParseTaskStatus(*req.Status)
		if !ok {
			return badRequest("unknown task status %q", *req.Status)
		}
		t.Status = st
	}
	if req.Priority != nil {
		pri, ok := model.ParsePriority(*req.Priority)
		if !ok {
			return badRequest("unknown task priority %q", *req.Priority)
		}
		t.Priority = pri
	}
	if req.DueDate != nil {
		switch v := strings.TrimSpace(*req.DueDate); v {
		case "", model.TBD:
			t.DueDate = nil
		default:
			d, err := model.ParseDate(v)
			if err != nil {
				return badRequest("%v", err)
			}
			t.DueDate = &d
		}
	}
	if req.AssignedTo != nil {
		t.AssignedTo = strings.TrimSpace(*req.AssignedTo)
	}
	return nil
}

type defectRequest struct {
	ID         string  `json:"id"`
	Title      *string `json:"title"`
	Project    *string `json:"project"`
	Severity   *string `json:"severity"`
	AssignedTo *string `json:"assignedTo"`
	TriageCall *string `json:"triageCall"`
}

func (req defectRequest) apply(d *model.Defect) error {
	if req.Title != nil {
		d.Title = strings.TrimSpace(*req.Title)
	}
	if req.Project != nil {
		d.Project = strings.TrimSpace(*req.Project)
	}
	if req.Severity != nil {
		sev, ok := model.ParseSeverity(*req.Severity)
		if !ok {
			return badRequest("unknown defect severity %q", *req.Severity)
		}
		d.Severity = sev
	}
	if req.AssignedTo != nil {
		d.AssignedTo = strings.TrimSpace(*req.AssignedTo)
	}
	if req.TriageCall != nil {
		d.TriageCall = strings.TrimSpace(*req.TriageCall)
	}
	return nil
}

func requireTitleAndProject(title, project string) error {
	if title == "" {
		return badRequest("title is required")
	}
	if project == "" {
		return badRequest("project is required")
	}
	return nil
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.Store.ListTasks(r.Context(), r.URL.Query().Get("project"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeData(w, s.logger, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.manualID(req.ID, "TASK")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t := model.Task{
		ID:           id,
		Status:       model.TaskUpcoming,
		Priority:     model.PriorityMedium,
		CreationDate: model.DateOf(s.now()),
	}
	if err := req.apply(&t); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := requireTitleAndProject(t.Title, t.Project); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Store.CreateTask(r.Context(), t); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.watchTask(t)
	writeData(w, s.logger, http.StatusCreated, t)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.Connections.Registry().IsReserved(id) {
		s.writeError(w, r, syncedItemError(id))
		return
	}
	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.Store.GetTask(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.apply(&t); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := requireTitleAndProject(t.Title, t.Project); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Store.UpdateTask(r.Context(), t); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.watchTask(t)
	writeData(w, s.logger, http.StatusOK, t)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.Connections.Registry().IsReserved(id) {
		s.writeError(w, r, syncedItemError(id))
		return
	}
	if err := s.Store.DeleteTask(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.forgetTask(id)
	writeData(w, s.logger, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleListDefects(w http.ResponseWriter, r *http.Request) {
	defects, err := s.Store.ListDefects(r.Context(), r.URL.Query().Get("project"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if defects == nil {
		defects = []model.Defect{}
	}
	writeData(w, s.logger, http.StatusOK, defects)
}

func (s *Server) handleCreateDefect(w http.ResponseWriter, r *http.Request) {
	var req defectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.manualID(req.ID, "DEF")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d := model.Defect{
		ID:           id,
		Severity:     model.SeverityMedium,
		CreationDate: model.DateOf(s.now()),
	}
	if err := req.apply(&d); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := requireTitleAndProject(d.Title, d.Project); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Store.CreateDefect(r.Context(), d); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, s.logger, http.StatusCreated, d)
}

func (s *Server) handleUpdateDefect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.Connections.Registry().IsReserved(id) {
		s.writeError(w, r, syncedItemError(id))
		return
	}
	var req defectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.Store.GetDefect(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.apply(&d); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := requireTitleAndProject(d.Title, d.Project); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Store.UpdateDefect(r.Context(), d); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, d)
}

func (s *Server) handleDeleteDefect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.Connections.Registry().IsReserved(id) {
		s.writeError(w, r, syncedItemError(id))
		return
	}
	if err := s.Store.DeleteDefect(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, map[string]string{"id": id})
}
