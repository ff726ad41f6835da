package alerts

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/nexus/pkg/config"
	"github.com/harrisonrobin/nexus/pkg/model"
)

func openTable(t *testing.T) *Table {
	t.Helper()
	table, err := Open(filepath.Join(t.TempDir(), "alerts.json"))
	require.NoError(t, err)
	return table
}

func dueOn(y int, m time.Month, d int) *model.Date {
	date := model.DateOf(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	return &date
}

func TestNotifyMatchesPolicy(t *testing.T) {
	policy, err := NewPolicy(config.AlertsConfig{DefectSeverities: []string{"critical"}, TaskPriorities: []string{"High"}})
	require.NoError(t, err)
	table := openTable(t)

	raised := table.Notify(policy,
		[]model.Task{
			{ID: "JIRA-TASK-1", Title: "Ship", Project: "Nexus", Priority: model.PriorityHigh},
			{ID: "JIRA-TASK-2", Title: "Tidy", Project: "Nexus", Priority: model.PriorityLow},
		},
		[]model.Defect{
			{ID: "JIRA-DEFECT-40001", Title: "Pool exhaustion", Project: "Nexus", Severity: model.SeverityCritical},
			{ID: "JIRA-DEFECT-40002", Title: "Tax", Project: "Nexus", Severity: model.SeverityHigh},
		})

	require.Len(t, raised, 2)
	assert.Equal(t, KindCriticalDefect, raised[0].Kind)
	assert.Equal(t, "JIRA-DEFECT-40001", raised[0].ItemID)
	assert.Equal(t, KindHighPriorityTask, raised[1].Kind)
	assert.Regexp(t, `^ALERT-[0-9a-f]{8}$`, raised[0].ID)
}

func TestNewPolicyRejectsUnknownValues(t *testing.T) {
	_, err := NewPolicy(config.AlertsConfig{DefectSeverities: []string{"Blocker"}})
	assert.Error(t, err)
	_, err = NewPolicy(config.AlertsConfig{TaskPriorities: []string{"Urgent"}})
	assert.Error(t, err)
}

func TestSweepReportsOverdueOnce(t *testing.T) {
	table := openTable(t)
	tasks := []model.Task{
		{ID: "TASK-1", Title: "Renew cert", Project: "Ops", Status: model.TaskUpcoming, DueDate: dueOn(2024, 7, 1)},
		{ID: "TASK-2", Title: "Plan Q4", Project: "Ops", Status: model.TaskPending, DueDate: dueOn(2024, 9, 1)},
		{ID: "TASK-3", Title: "Done already", Project: "Ops", Status: model.TaskCompleted, DueDate: dueOn(2024, 6, 1)},
		{ID: "TASK-4", Title: "No date", Project: "Ops", Status: model.TaskUpcoming},
		{ID: "TASK-5", Title: "Due today", Project: "Ops", Status: model.TaskUpcoming, DueDate: dueOn(2024, 7, 28)},
	}
	now := time.Date(2024, 7, 28, 15, 0, 0, 0, time.UTC)

	table.Track(tasks)
	assert.Len(t, table.Entries, 3)

	raised := table.Sweep(now)
	require.Len(t, raised, 1)
	assert.Equal(t, KindTaskOverdue, raised[0].Kind)
	assert.Equal(t, "TASK-1", raised[0].ItemID)
	assert.Contains(t, raised[0].Message, "due 2024-07-01")

	// Tracking the same tasks again does not re-arm the swept one.
	table.Track(tasks)
	assert.Empty(t, table.Sweep(now))

	// A new due date re-arms it.
	tasks[0].DueDate = dueOn(2024, 7, 10)
	table.Track(tasks)
	assert.Len(t, table.Sweep(now), 1)
}

func TestTrackDropsVanishedTasks(t *testing.T) {
	table := openTable(t)
	table.Track([]model.Task{{ID: "TASK-1", Status: model.TaskUpcoming, DueDate: dueOn(2024, 7, 1)}})
	table.Track(nil)
	assert.Empty(t, table.Entries)
	assert.Empty(t, table.Sweep(time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)))
}

func TestListAndMarkRead(t *testing.T) {
	policy := Policy{DefectSeverities: map[model.DefectSeverity]bool{model.SeverityCritical: true}}
	table := openTable(t)
	first := table.Notify(policy, nil, []model.Defect{{ID: "D1", Severity: model.SeverityCritical}})[0]
	second := table.Notify(policy, nil, []model.Defect{{ID: "D2", Severity: model.SeverityCritical}})[0]

	list := table.List(false)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	read, err := table.MarkRead(first.ID)
	require.NoError(t, err)
	assert.True(t, read.Read)

	unread := table.List(true)
	require.Len(t, unread, 1)
	assert.Equal(t, second.ID, unread[0].ID)

	_, err = table.MarkRead("ALERT-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "alerts.json")
	table, err := Open(path)
	require.NoError(t, err)

	table.Watch(model.Task{ID: "TASK-9", Title: "Audit", Project: "Ops", Status: model.TaskPending, DueDate: dueOn(2024, 7, 1)})
	table.Notify(Policy{TaskPriorities: map[model.TaskPriority]bool{model.PriorityHigh: true}},
		[]model.Task{{ID: "T1", Priority: model.PriorityHigh}}, nil)
	require.NoError(t, table.Save())

	reloaded, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, reloaded.Alerts, 1)
	assert.Contains(t, reloaded.Entries, "TASK-9")

	reloaded.Remove("TASK-9")
	assert.NotContains(t, reloaded.Entries, "TASK-9")
}

func TestAlertsAreCapped(t *testing.T) {
	table := openTable(t)
	policy := Policy{TaskPriorities: map[model.TaskPriority]bool{model.PriorityHigh: true}}
	for i := 0; i < maxAlerts+10; i++ {
		table.Notify(policy, []model.Task{{ID: "T", Priority: model.PriorityHigh}}, nil)
	}
	assert.Len(t, table.Alerts, maxAlerts)
}
