// Package connection owns the connection lifecycle and dispatches adapter calls.
//
// Status moves Pending -> Connected or Disconnected, and only Test changes it.
// Listing calls are allowed in any status; a non-Connected status is advisory.
package connection

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/credentials"
	"github.com/harrisonrobin/nexus/pkg/model"
)

type Manager struct {
	store    *credentials.Store
	registry *adapter.Registry
	logger   *zap.Logger
	now      func() time.Time
}

func NewManager(store *credentials.Store, registry *adapter.Registry, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, registry: registry, logger: logger.Named("connection"), now: time.Now}
}

func (m *Manager) Registry() *adapter.Registry { return m.registry }

// Resolve returns the connection and the adapter registered for its kind.
func (m *Manager) Resolve(id string) (model.Connection, adapter.Adapter, error) {
	conn, err := m.store.Get(id)
	if err != nil {
		return model.Connection{}, nil, err
	}
	a, err := m.registry.Get(conn.Kind)
	if err != nil {
		return model.Connection{}, nil, err
	}
	return conn, a, nil
}

// Test probes the connection and records the outcome. Probe failures are not errors;
// an error is returned only when the connection or its adapter cannot be found, or
// the status cannot be persisted.
func (m *Manager) Test(ctx context.Context, id string) (model.Connection, adapter.Probe, error) {
	conn, a, err := m.Resolve(id)
	if err != nil {
		return model.Connection{}, adapter.Probe{}, err
	}

	probe := a.TestConnection(ctx, conn)
	status := model.StatusDisconnected
	if probe.OK {
		status = model.StatusConnected
	}

	updated, err := m.store.Update(id, func(c *model.Connection) {
		c.Status = status
		c.LastTestedAt = m.now().UTC()
		c.LastError = ""
		if !probe.OK {
			c.LastError = probe.Detail
		}
	})
	if err != nil {
		return model.Connection{}, probe, err
	}
	if err := m.store.Save(); err != nil {
		return updated, probe, fmt.Errorf("persist connection status: %w", err)
	}

	if conn.Status != status {
		m.logger.Info("connection status changed",
			zap.String("connection", id),
			zap.String("tool", string(conn.Kind)),
			zap.String("from", string(conn.Status)),
			zap.String("to", string(status)))
	}
	if !probe.OK {
		m.logger.Warn("connection test failed",
			zap.String("connection", id),
			zap.String("tool", string(conn.Kind)),
			zap.String("detail", probe.Detail))
	}
	return updated, probe, nil
}

// ListProjects lists the native projects visible through the connection.
func (m *Manager) ListProjects(ctx context.Context, id string) (model.Connection, []adapter.NativeProject, error) {
	conn, a, err := m.Resolve(id)
	if err != nil {
		return model.Connection{}, nil, err
	}
	m.warnIfNotConnected(conn, "list projects")
	projects, err := a.ListProjects(ctx, conn)
	if err != nil {
		return conn, nil, err
	}
	return conn, projects, nil
}

// ListIssues fetches the issues of one native project through the connection.
func (m *Manager) ListIssues(ctx context.Context, id, projectRef string) (adapter.IssueSet, error) {
	conn, a, err := m.Resolve(id)
	if err != nil {
		return adapter.IssueSet{}, err
	}
	m.warnIfNotConnected(conn, "list issues")
	return a.ListIssues(ctx, conn, projectRef)
}

func (m *Manager) warnIfNotConnected(conn model.Connection, op string) {
	if conn.Status != model.StatusConnected {
		m.logger.Debug("calling adapter on a connection that is not connected",
			zap.String("connection", conn.ID),
			zap.String("status", string(conn.Status)),
			zap.String("op", op))
	}
}

// ConnectionFor returns the connection a project syncs through: the one it was
// discovered with, or else the first connection of the project's tool kind.
func (m *Manager) ConnectionFor(p model.Project) (model.Connection, error) {
	if p.ConnectionID != "" {
		conn, err := m.store.Get(p.ConnectionID)
		if err == nil {
			return conn, nil
		}
		m.logger.Warn("project connection is gone, falling back to tool kind",
			zap.String("project", p.ID),
			zap.String("connection", p.ConnectionID))
	}
	return m.store.FirstOfKind(p.Kind)
}
