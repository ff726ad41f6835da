// Package server exposes the hub over a JSON HTTP API.
//
// Every response uses the envelope {success, data, error, code}. Connection
// secrets never leave the process: connections are always redacted on the way out.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/harrisonrobin/nexus/pkg/alerts"
	"github.com/harrisonrobin/nexus/pkg/catalog"
	"github.com/harrisonrobin/nexus/pkg/connection"
	"github.com/harrisonrobin/nexus/pkg/credentials"
	"github.com/harrisonrobin/nexus/pkg/insight"
	"github.com/harrisonrobin/nexus/pkg/reconcile"
	"github.com/harrisonrobin/nexus/pkg/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type Deps struct {
	Credentials *credentials.Store
	Connections *connection.Manager
	Catalog     *catalog.Catalog
	Store       *store.Store
	Reconciler  *reconcile.Reconciler
	Alerts      *alerts.Table
	// Insight is optional; without it the summary endpoint answers 503.
	Insight insight.Generator
	// Token, when set, must be presented as a bearer token on /api routes.
	Token string
}

type Server struct {
	Deps
	logger *zap.Logger
	now    func() time.Time
}

func New(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Deps: deps, logger: logger.Named("server"), now: time.Now}
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/connections", s.handleListConnections)
	mux.HandleFunc("POST /api/connections", s.handleCreateConnection)
	mux.HandleFunc("GET /api/connections/{id}", s.handleGetConnection)
	mux.HandleFunc("PUT /api/connections/{id}", s.handleUpdateConnection)
	mux.HandleFunc("DELETE /api/connections/{id}", s.handleDeleteConnection)
	mux.HandleFunc("POST /api/connections/{id}/test", s.handleTestConnection)
	mux.HandleFunc("GET /api/connections/{id}/discover", s.handleDiscover)

	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("POST /api/projects/admit", s.handleAdmit)
	mux.HandleFunc("POST /api/projects/sync", s.handleSyncAll)
	mux.HandleFunc("PUT /api/projects/{id}", s.handleUpdateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("POST /api/projects/{id}/sync", s.handleSyncProject)
	mux.HandleFunc("POST /api/projects/{id}/summary", s.handleSummary)

	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	mux.HandleFunc("PUT /api/tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)

	mux.HandleFunc("GET /api/defects", s.handleListDefects)
	mux.HandleFunc("POST /api/defects", s.handleCreateDefect)
	mux.HandleFunc("PUT /api/defects/{id}", s.handleUpdateDefect)
	mux.HandleFunc("DELETE /api/defects/{id}", s.handleDeleteDefect)

	mux.HandleFunc("GET /api/alerts", s.handleListAlerts)
	mux.HandleFunc("POST /api/alerts/{id}/read", s.handleMarkAlertRead)
}

// Handler returns the full middleware chain. It speaks HTTP/1.1 and cleartext HTTP/2.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)
	chain := s.logRequests(securityHeaders(s.requireToken(mux)))
	return h2c.NewHandler(chain, &http2.Server{})
}

// Serve answers on ln until ctx is done, then drains in-flight requests for at most
// shutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	<-errCh
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}
