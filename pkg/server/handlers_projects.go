package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harrisonrobin/nexus/pkg/insight"
	"github.com/harrisonrobin/nexus/pkg/model"
)

type projectRequest struct {
	ID       string  `json:"id"`
	Name     *string `json:"name"`
	Vendor   *string `json:"vendorId"`
	Status   *string `json:"status"`
	Progress *int    `json:"progress"`
}

func (req projectRequest) apply(p *model.Project) error {
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Vendor != nil {
		p.VendorRef = strings.TrimSpace(*req.Vendor)
	}
	if req.Progress != nil {
		p.Progress = model.ClampProgress(*req.Progress)
		p.Status = model.HealthFor(p.Progress)
	}
	if req.Status != nil {
		switch st := model.ProjectStatus(*req.Status); st {
		case model.ProjectOnTrack, model.ProjectNeedsAttention, model.ProjectAtRisk:
			p.Status = st
		default:
			return badRequest("unknown project status %q", *req.Status)
		}
	}
	return nil
}

// manualID validates a caller-chosen id, or mints one with prefix.
func (s *Server) manualID(requested, prefix string) (string, error) {
	id := strings.TrimSpace(requested)
	if id == "" {
		return prefix + "-" + strings.ToUpper(uuid.NewString()[:8]), nil
	}
	if s.Connections.Registry().IsReserved(id) {
		return "", &apiError{
			status: http.StatusBadRequest,
			code:   CodeReservedID,
			msg:    "id " + id + " uses a prefix reserved for synced items",
		}
	}
	return id, nil
}

func syncedItemError(id string) error {
	return &apiError{
		status: http.StatusConflict,
		code:   CodeSyncedItem,
		msg:    id + " is owned by its tool and is replaced on every sync; edit it there",
	}
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.Store.ListProjects(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	writeData(w, s.logger, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.manualID(req.ID, "PROJ")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p := model.Project{ID: id, Status: model.ProjectOnTrack}
	if err := req.apply(&p); err != nil {
		s.writeError(w, r, err)
		return
	}
	if p.Name == "" {
		s.writeError(w, r, badRequest("name is required"))
		return
	}
	if err := s.Store.CreateProject(r.Context(), p); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, s.logger, http.StatusCreated, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.Store.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if p.Synced() {
		s.writeError(w, r, syncedItemError(p.ID))
		return
	}
	// Items reference projects by name, so renaming is not offered.
	if req.Name != nil && strings.TrimSpace(*req.Name) != p.Name {
		s.writeError(w, r, badRequest("projects cannot be renamed"))
		return
	}
	if err := req.apply(&p); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Store.UpdateProject(r.Context(), p); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Store.DeleteProject(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("project removed", zap.String("project", id))
	writeData(w, s.logger, http.StatusOK, map[string]string{"id": id})
}

type admitRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request) {
	var req admitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		s.writeError(w, r, badRequest("ids is required"))
		return
	}
	result, err := s.Catalog.Admit(r.Context(), req.IDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, result)
}

func (s *Server) handleSyncProject(w http.ResponseWriter, r *http.Request) {
	result, err := s.Reconciler.Sync(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, result)
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	report, err := s.Reconciler.SyncAll(r.Context(), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, report)
}

type summaryRequest struct {
	Detail string `json:"detail"`
}

type summaryResponse struct {
	ProjectID string `json:"projectId"`
	Detail    string `json:"detail"`
	Report    string `json:"report"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	detail, err := insight.ParseDetail(req.Detail)
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	if s.Insight == nil {
		s.writeError(w, r, insight.ErrNotConfigured)
		return
	}

	ctx := r.Context()
	p, err := s.Store.GetProject(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tasks, err := s.Store.ListTasks(ctx, p.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defects, err := s.Store.ListDefects(ctx, p.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	report, err := s.Insight.Generate(ctx, insight.Request{
		Snapshot: insight.NewSnapshot(p, tasks, defects),
		Detail:   detail,
	})
	if err != nil {
		s.writeError(w, r, &apiError{status: http.StatusBadGateway, code: CodeUnavailable, msg: "report generation failed"})
		s.logger.Warn("report generation failed", zap.String("project", p.ID), zap.Error(err))
		return
	}
	writeData(w, s.logger, http.StatusOK, summaryResponse{ProjectID: p.ID, Detail: string(detail), Report: report})
}
