package server

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/harrisonrobin/nexus/pkg/model"
)

// connectionRequest is the body of connection create and update calls. Absent fields
// are left unchanged on update. A redacted secret echoed back is ignored.
type connectionRequest struct {
	Tool     *string `json:"tool"`
	URL      *string `json:"url"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	APIKey   *string `json:"apiKey"`
	Vendor   *string `json:"vendor"`
}

const redactedSecret = "********"

// kind resolves the requested tool, or "" when the request leaves it unchanged.
func (req connectionRequest) kind(s *Server) (model.ToolKind, error) {
	if req.Tool == nil {
		return "", nil
	}
	return s.parseKind(*req.Tool)
}

// apply copies the present fields onto c. Status is left alone; only a test moves it.
func (req connectionRequest) apply(c *model.Connection, kind model.ToolKind) {
	if kind != "" {
		c.Kind = kind
	}
	set := func(dst *string, v *string, secret bool) {
		if v == nil || (secret && *v == redactedSecret) {
			return
		}
		*dst = strings.TrimSpace(*v)
	}
	set(&c.BaseURL, req.URL, false)
	set(&c.Principal, req.Username, false)
	set(&c.Password, req.Password, true)
	set(&c.APIKey, req.APIKey, true)
	set(&c.Vendor, req.Vendor, false)
}

func (s *Server) parseKind(name string) (model.ToolKind, error) {
	for _, k := range s.Connections.Registry().Kinds() {
		if strings.EqualFold(string(k), strings.TrimSpace(name)) {
			return k, nil
		}
	}
	return "", badRequest("unknown tool %q", name)
}

func redacted(conns []model.Connection) []model.Connection {
	out := make([]model.Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Redacted())
	}
	return out
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.logger, http.StatusOK, redacted(s.Credentials.List()))
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.Credentials.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, conn.Redacted())
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Tool == nil {
		s.writeError(w, r, badRequest("tool is required"))
		return
	}
	kind, err := req.kind(s)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var conn model.Connection
	req.apply(&conn, kind)

	conn = s.Credentials.Put(conn)
	if err := s.Credentials.Save(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("connection added", zap.String("connection", conn.ID), zap.String("tool", string(conn.Kind)))
	writeData(w, s.logger, http.StatusCreated, conn.Redacted())
}

func (s *Server) handleUpdateConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	kind, err := req.kind(s)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	conn, err := s.Credentials.Update(r.PathValue("id"), func(c *model.Connection) {
		req.apply(c, kind)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Credentials.Save(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, conn.Redacted())
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Credentials.Remove(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Credentials.Save(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("connection removed", zap.String("connection", id))
	writeData(w, s.logger, http.StatusOK, map[string]string{"id": id})
}

type testResponse struct {
	Connection model.Connection `json:"connection"`
	OK         bool             `json:"ok"`
	Detail     string           `json:"detail"`
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	conn, probe, err := s.Connections.Test(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, testResponse{
		Connection: conn.Redacted(),
		OK:         probe.OK,
		Detail:     probe.Detail,
	})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.Catalog.Discover(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if candidates == nil {
		candidates = []model.Project{}
	}
	writeData(w, s.logger, http.StatusOK, candidates)
}
