// Package catalog discovers remote projects and admits the ones a user selects.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/connection"
	"github.com/harrisonrobin/nexus/pkg/model"
	"github.com/harrisonrobin/nexus/pkg/store"
)

type Catalog struct {
	conns  *connection.Manager
	store  *store.Store
	logger *zap.Logger

	mu sync.Mutex
	// pending holds the candidates of the last discovery per id, awaiting admission.
	pending map[string]model.Project
}

func New(conns *connection.Manager, st *store.Store, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		conns:   conns,
		store:   st,
		logger:  logger.Named("catalog"),
		pending: make(map[string]model.Project),
	}
}

// Candidate maps a native project to a canonical project with a deterministic id.
func Candidate(conn model.Connection, prefix string, np adapter.NativeProject) model.Project {
	p := model.Project{
		ID:           model.ProjectID(prefix, np.ID),
		Name:         np.Name,
		Kind:         conn.Kind,
		SourceRef:    np.ID,
		Key:          np.Key,
		ConnectionID: conn.ID,
		VendorRef:    conn.Vendor,
		Status:       model.ProjectOnTrack,
	}
	if np.Progress != nil {
		p.Progress = model.ClampProgress(*np.Progress)
		p.Status = model.HealthFor(p.Progress)
	}
	return p
}

// Dedup drops candidates that are already tracked, and repeats within the batch.
// Order is preserved.
func Dedup(candidates []model.Project, tracked map[string]bool) []model.Project {
	seen := make(map[string]bool, len(candidates))
	out := make([]model.Project, 0, len(candidates))
	for _, c := range candidates {
		if tracked[c.ID] || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

// Discover lists the projects visible through a connection and returns the ones not
// yet tracked. The catalog is not modified; the result is held for Admit.
func (c *Catalog) Discover(ctx context.Context, connID string) ([]model.Project, error) {
	conn, natives, err := c.conns.ListProjects(ctx, connID)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", connID, err)
	}
	a, err := c.conns.Registry().Get(conn.Kind)
	if err != nil {
		return nil, err
	}

	candidates := make([]model.Project, 0, len(natives))
	for _, np := range natives {
		candidates = append(candidates, Candidate(conn, a.Prefix(), np))
	}

	tracked, err := c.store.ProjectIDs(ctx)
	if err != nil {
		return nil, err
	}
	fresh := Dedup(candidates, tracked)

	c.mu.Lock()
	for _, p := range fresh {
		c.pending[p.ID] = p
	}
	c.mu.Unlock()

	c.logger.Info("discovered projects",
		zap.String("connection", connID),
		zap.Int("listed", len(natives)),
		zap.Int("new", len(fresh)))
	return fresh, nil
}

// AdmitResult reports the outcome of an admission batch.
type AdmitResult struct {
	Admitted []model.Project `json:"admitted"`
	// Skipped ids were already tracked.
	Skipped []string `json:"skipped,omitempty"`
	// Unknown ids were not returned by any discovery.
	Unknown []string `json:"unknown,omitempty"`
}

// Admit starts tracking the selected discovered candidates. Ids that are already
// tracked are reported as skipped whether or not the last discovery offered them.
func (c *Catalog) Admit(ctx context.Context, ids []string) (AdmitResult, error) {
	result := AdmitResult{Admitted: []model.Project{}}
	tracked, err := c.store.ProjectIDs(ctx)
	if err != nil {
		return AdmitResult{}, err
	}

	c.mu.Lock()
	var selected []model.Project
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		p, ok := c.pending[id]
		switch {
		case !ok && tracked[id]:
			result.Skipped = append(result.Skipped, id)
			continue
		case !ok:
			result.Unknown = append(result.Unknown, id)
			continue
		}
		selected = append(selected, p)
	}
	c.mu.Unlock()

	added, err := c.store.AddProjects(ctx, selected)
	if err != nil {
		return AdmitResult{}, fmt.Errorf("admit projects: %w", err)
	}
	addedIDs := make(map[string]bool, len(added))
	for _, p := range added {
		addedIDs[p.ID] = true
	}
	for _, p := range selected {
		if !addedIDs[p.ID] {
			result.Skipped = append(result.Skipped, p.ID)
		}
	}
	result.Admitted = append(result.Admitted, added...)

	c.mu.Lock()
	for _, p := range selected {
		delete(c.pending, p.ID)
	}
	c.mu.Unlock()

	if len(added) > 0 {
		c.logger.Info("admitted projects", zap.Int("count", len(added)))
	}
	return result, nil
}
