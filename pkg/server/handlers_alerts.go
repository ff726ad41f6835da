package server

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/harrisonrobin/nexus/pkg/model"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	writeData(w, s.logger, http.StatusOK, s.Alerts.List(unread))
}

func (s *Server) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	a, err := s.Alerts.MarkRead(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Alerts.Save(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, a)
}

// watchTask refreshes the overdue watch for a manual task without waiting for the
// next scheduler tick.
func (s *Server) watchTask(t model.Task) {
	s.Alerts.Watch(t)
	s.saveAlerts()
}

func (s *Server) forgetTask(id string) {
	s.Alerts.Remove(id)
	s.saveAlerts()
}

func (s *Server) saveAlerts() {
	if err := s.Alerts.Save(); err != nil {
		s.logger.Warn("failed to save alerts", zap.Error(err))
	}
}
