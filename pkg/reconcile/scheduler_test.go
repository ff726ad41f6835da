package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/alerts"
	"github.com/harrisonrobin/nexus/pkg/model"
)

func TestTickSyncsAndSweeps(t *testing.T) {
	f := setup(t)
	p := f.addProject(t, "10001", "Nexus Core Platform")
	due := time.Date(2024, 7, 20, 0, 0, 0, 0, time.UTC)
	f.jira.sets["10001"] = adapter.IssueSet{Tasks: []adapter.Issue{
		{NativeID: "1", Title: "Late", Status: model.TaskPending, Priority: model.PriorityLow, Due: &due},
		{NativeID: "2", Title: "Done", Status: model.TaskCompleted, Priority: model.PriorityLow, Due: &due},
	}}

	s := NewScheduler(f.rec, f.store, f.table, time.Hour, zaptest.NewLogger(t))
	s.now = func() time.Time { return time.Date(2024, 7, 28, 9, 0, 0, 0, time.UTC) }
	s.Tick(context.Background())

	tasks, err := f.store.ListTasks(context.Background(), p.Name)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	raised := f.table.List(false)
	require.Len(t, raised, 1)
	assert.Equal(t, alerts.KindTaskOverdue, raised[0].Kind)
	assert.Equal(t, "JIRA-TASK-1", raised[0].ItemID)

	// A second tick does not report the same task again.
	s.Tick(context.Background())
	assert.Len(t, f.table.List(false), 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := setup(t)
	s := NewScheduler(f.rec, f.store, f.table, 10*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
