package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/harrisonrobin/nexus/pkg/alerts"
	"github.com/harrisonrobin/nexus/pkg/store"
)

// Scheduler periodically syncs connected projects and sweeps for overdue tasks.
type Scheduler struct {
	reconciler *Reconciler
	store      *store.Store
	alerts     *alerts.Table
	interval   time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewScheduler(r *Reconciler, st *store.Store, table *alerts.Table, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		reconciler: r,
		store:      st,
		alerts:     table,
		interval:   interval,
		logger:     logger.Named("scheduler"),
		now:        time.Now,
	}
}

// Run ticks until ctx is done. The first tick happens one interval after start.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("scheduler disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutdown requested, stopping scheduler")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sync pass followed by the overdue sweep.
func (s *Scheduler) Tick(ctx context.Context) {
	report, err := s.reconciler.SyncAll(ctx, true)
	if err != nil {
		s.logger.Error("scheduled sync failed", zap.Error(err))
	} else if failed := report.Failed(); failed > 0 {
		s.logger.Warn("scheduled sync had failures",
			zap.Int("failed", failed),
			zap.Int("retryable", report.Retryable()),
			zap.Int("projects", len(report.Outcomes)))
	}

	if s.alerts == nil {
		return
	}
	tasks, err := s.store.ListTasks(ctx, "")
	if err != nil {
		s.logger.Error("overdue sweep failed", zap.Error(err))
		return
	}
	s.alerts.Track(tasks)
	if raised := s.alerts.Sweep(s.now()); len(raised) > 0 {
		s.logger.Info("overdue tasks", zap.Int("count", len(raised)))
	}
	if err := s.alerts.Save(); err != nil {
		s.logger.Error("failed to save alerts", zap.Error(err))
	}
}
