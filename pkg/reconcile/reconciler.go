// Package reconcile merges tool-sourced tasks and defects into the local store.
//
// A sync of project P replaces every item filed under P's name whose id carries P's
// tool prefix with the tool's current items. Manual items and items from other
// tools or projects are never touched.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/alerts"
	"github.com/harrisonrobin/nexus/pkg/connection"
	"github.com/harrisonrobin/nexus/pkg/model"
	"github.com/harrisonrobin/nexus/pkg/store"
)

// ErrNotSynced is returned for projects that are not backed by a tool.
var ErrNotSynced = errors.New("project is not backed by a tool")

// Result is the state of one project after a sync.
type Result struct {
	Project model.Project  `json:"project"`
	Tasks   []model.Task   `json:"tasks"`
	Defects []model.Defect `json:"defects"`
	Added   int            `json:"added"`
	Removed int            `json:"removed"`
}

type Reconciler struct {
	conns  *connection.Manager
	store  *store.Store
	alerts *alerts.Table
	policy alerts.Policy
	logger *zap.Logger

	concurrency int
	group       singleflight.Group
}

type Options struct {
	// Concurrency bounds SyncAll's parallel project syncs.
	Concurrency int
	Alerts      *alerts.Table
	Policy      alerts.Policy
}

func New(conns *connection.Manager, st *store.Store, opts Options, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Reconciler{
		conns:       conns,
		store:       st,
		alerts:      opts.Alerts,
		policy:      opts.Policy,
		logger:      logger.Named("reconcile"),
		concurrency: opts.Concurrency,
	}
}

// Sync reconciles one project. Concurrent calls for the same project share a single
// run and its result. The run is detached from ctx: if the caller gives up, Sync
// returns ctx.Err() but the run still completes.
func (r *Reconciler) Sync(ctx context.Context, projectID string) (Result, error) {
	ch := r.group.DoChan(projectID, func() (any, error) {
		return r.syncProject(context.WithoutCancel(ctx), projectID)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res.Val.(Result), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (r *Reconciler) syncProject(ctx context.Context, projectID string) (Result, error) {
	start := time.Now()
	p, err := r.store.GetProject(ctx, projectID)
	if err != nil {
		return Result{}, err
	}
	if !p.Synced() {
		return Result{}, fmt.Errorf("sync %s: %w", projectID, ErrNotSynced)
	}

	conn, err := r.conns.ConnectionFor(p)
	if err != nil {
		return Result{}, fmt.Errorf("sync %s: %w", projectID, err)
	}
	a, err := r.conns.Registry().Get(p.Kind)
	if err != nil {
		return Result{}, fmt.Errorf("sync %s: %w", projectID, err)
	}

	set, err := r.conns.ListIssues(ctx, conn.ID, p.SourceRef)
	if err != nil {
		r.logger.Warn("sync aborted",
			zap.String("project", projectID),
			zap.String("connection", conn.ID),
			zap.Error(err))
		return Result{}, fmt.Errorf("sync %s: %w", projectID, err)
	}

	tasks, defects := set.Canonical(a.Prefix(), p.Name)
	batch := store.SyncBatch{
		ProjectName: p.Name,
		Prefix:      a.Prefix(),
		Tasks:       tasks,
		Defects:     defects,
	}
	if set.Project != nil && set.Project.Progress != nil {
		p.Progress = model.ClampProgress(*set.Project.Progress)
		p.Status = model.HealthFor(p.Progress)
		batch.Project = &p
	}

	merged, err := r.store.ReplaceSynced(ctx, batch)
	if err != nil {
		return Result{}, fmt.Errorf("sync %s: %w", projectID, err)
	}

	if r.alerts != nil {
		if raised := r.alerts.Notify(r.policy, merged.AddedTasks, merged.AddedDefects); len(raised) > 0 {
			if err := r.alerts.Save(); err != nil {
				r.logger.Error("failed to save alerts", zap.Error(err))
			}
		}
	}

	result := Result{
		Project: p,
		Added:   len(merged.AddedTasks) + len(merged.AddedDefects),
		Removed: merged.Removed,
	}
	if result.Tasks, err = r.store.ListTasks(ctx, p.Name); err != nil {
		return Result{}, err
	}
	if result.Defects, err = r.store.ListDefects(ctx, p.Name); err != nil {
		return Result{}, err
	}

	r.logger.Info("project synced",
		zap.String("project", projectID),
		zap.Int("tasks", len(tasks)),
		zap.Int("defects", len(defects)),
		zap.Int("added", result.Added),
		zap.Int("removed", result.Removed),
		zap.Duration("took", time.Since(start)))
	return result, nil
}

// Outcome summarizes one project's sync inside a SyncAll run.
type Outcome struct {
	ProjectID string `json:"projectId"`
	Tasks     int    `json:"tasks"`
	Defects   int    `json:"defects"`
	Added     int    `json:"added"`
	Removed   int    `json:"removed"`
	Error     string `json:"error,omitempty"`
	// Retryable marks a failure that may clear on its own, such as a transport error.
	Retryable bool `json:"retryable,omitempty"`
}

type Report struct {
	Outcomes []Outcome `json:"outcomes"`
}

func (r Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Error != "" {
			n++
		}
	}
	return n
}

// Retryable counts the failures that may clear on a later run.
func (r Report) Retryable() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Retryable {
			n++
		}
	}
	return n
}

// SyncAll reconciles every tool-backed project, at most Concurrency at a time. A
// failing project is reported in its Outcome and does not stop the others. With
// onlyConnected, projects whose connection is not Connected are skipped.
func (r *Reconciler) SyncAll(ctx context.Context, onlyConnected bool) (Report, error) {
	projects, err := r.store.ListProjects(ctx)
	if err != nil {
		return Report{}, err
	}

	var targets []model.Project
	for _, p := range projects {
		if !p.Synced() {
			continue
		}
		if onlyConnected {
			conn, err := r.conns.ConnectionFor(p)
			if err != nil || conn.Status != model.StatusConnected {
				continue
			}
		}
		targets = append(targets, p)
	}

	outcomes := make([]Outcome, len(targets))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, p := range targets {
		g.Go(func() error {
			outcome := Outcome{ProjectID: p.ID}
			res, err := r.Sync(ctx, p.ID)
			if err != nil {
				outcome.Error = err.Error()
				outcome.Retryable = adapter.IsRetryable(err)
			} else {
				outcome.Tasks = len(res.Tasks)
				outcome.Defects = len(res.Defects)
				outcome.Added = res.Added
				outcome.Removed = res.Removed
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Outcomes: outcomes}
	r.logger.Info("sync run finished",
		zap.Int("projects", len(outcomes)),
		zap.Int("failed", report.Failed()))
	return report, nil
}
