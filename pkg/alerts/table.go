// Package alerts raises notifications for newly synced items that match the
// configured severities and priorities, and for open tasks that pass their due date.
package alerts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrisonrobin/nexus/pkg/model"
)

type Kind string

const (
	KindCriticalDefect   Kind = "New Critical Defect"
	KindHighPriorityTask Kind = "New High-Priority Task"
	KindTaskOverdue      Kind = "Task Overdue"
)

// maxAlerts bounds the table; the oldest alerts are dropped first.
const maxAlerts = 500

var ErrNotFound = errors.New("alert not found")

type Alert struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	ItemID    string    `json:"itemId"`
	Project   string    `json:"project"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
}

// Entry is an open task being watched for its due date.
type Entry struct {
	Title   string    `json:"title"`
	Project string    `json:"project"`
	Due     time.Time `json:"due"`
}

type Table struct {
	Alerts  []Alert          `json:"alerts"`
	Entries map[string]Entry `json:"entries"`
	// Swept remembers the due date each task was reported overdue for.
	Swept map[string]time.Time `json:"swept"`
	Path  string               `json:"-"`

	mu    sync.Mutex
	dirty bool
	now   func() time.Time
}

// Open loads the table at path, or starts an empty one.
func Open(path string) (*Table, error) {
	t := &Table{
		Path:    path,
		Entries: make(map[string]Entry),
		Swept:   make(map[string]time.Time),
		now:     time.Now,
	}

	if _, err := os.Stat(path); err == nil {
		if err := t.Load(); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func (t *Table) Load() error {
	f, err := os.Open(t.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := json.NewDecoder(f).Decode(t); err != nil {
		return fmt.Errorf("decode %s: %w", t.Path, err)
	}
	if t.Entries == nil {
		t.Entries = make(map[string]Entry)
	}
	if t.Swept == nil {
		t.Swept = make(map[string]time.Time)
	}
	return nil
}

func (t *Table) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil
	}
	dir := filepath.Dir(t.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	f, err := os.Create(t.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(t)
	if err == nil {
		t.dirty = false
	}
	return err
}

func (t *Table) add(kind Kind, itemID, project, message string) Alert {
	a := Alert{
		ID:        "ALERT-" + uuid.NewString()[:8],
		Kind:      kind,
		ItemID:    itemID,
		Project:   project,
		Message:   message,
		CreatedAt: t.now().UTC(),
	}
	t.Alerts = append(t.Alerts, a)
	if len(t.Alerts) > maxAlerts {
		t.Alerts = t.Alerts[len(t.Alerts)-maxAlerts:]
	}
	t.dirty = true
	return a
}

// Notify raises alerts for newly added items that match the policy.
func (t *Table) Notify(policy Policy, tasks []model.Task, defects []model.Defect) []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()

	var raised []Alert
	for _, d := range defects {
		if policy.DefectSeverities[d.Severity] {
			raised = append(raised, t.add(KindCriticalDefect, d.ID, d.Project,
				fmt.Sprintf("New %s defect in %s: %s", d.Severity, d.Project, d.Title)))
		}
	}
	for _, tk := range tasks {
		if policy.TaskPriorities[tk.Priority] {
			raised = append(raised, t.add(KindHighPriorityTask, tk.ID, tk.Project,
				fmt.Sprintf("New %s priority task in %s: %s", tk.Priority, tk.Project, tk.Title)))
		}
	}
	return raised
}

// Watch starts or refreshes the due-date watch on one task. Completed tasks and
// tasks without a due date are dropped from the watch list.
func (t *Table) Watch(tk model.Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.watch(tk)
}

func (t *Table) watch(tk model.Task) {
	if tk.Status == model.TaskCompleted || tk.DueDate == nil {
		t.remove(tk.ID)
		return
	}
	due := tk.DueDate.Time
	if swept, ok := t.Swept[tk.ID]; ok && swept.Equal(due) {
		return
	}
	old, exists := t.Entries[tk.ID]
	if !exists || !old.Due.Equal(due) || old.Title != tk.Title || old.Project != tk.Project {
		t.Entries[tk.ID] = Entry{Title: tk.Title, Project: tk.Project, Due: due}
		t.dirty = true
	}
}

// Remove stops watching a task and forgets that it was reported overdue.
func (t *Table) Remove(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(taskID)
}

func (t *Table) remove(taskID string) {
	if _, exists := t.Entries[taskID]; exists {
		delete(t.Entries, taskID)
		t.dirty = true
	}
	if _, exists := t.Swept[taskID]; exists {
		delete(t.Swept, taskID)
		t.dirty = true
	}
}

// Track replaces the watch list with the open tasks in tasks.
func (t *Table) Track(tasks []model.Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	present := make(map[string]bool, len(tasks))
	for _, tk := range tasks {
		present[tk.ID] = true
		t.watch(tk)
	}
	for id := range t.Entries {
		if !present[id] {
			t.remove(id)
		}
	}
	for id := range t.Swept {
		if !present[id] {
			delete(t.Swept, id)
			t.dirty = true
		}
	}
}

// Sweep raises an overdue alert for every watched task due before the start of
// now's day, and stops watching it.
func (t *Table) Sweep(now time.Time) []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := model.DateOf(now).Time
	ids := make([]string, 0, len(t.Entries))
	for id := range t.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var raised []Alert
	for _, id := range ids {
		entry := t.Entries[id]
		if !entry.Due.Before(today) {
			continue
		}
		raised = append(raised, t.add(KindTaskOverdue, id, entry.Project,
			fmt.Sprintf("Task overdue in %s: %s (due %s)", entry.Project, entry.Title, model.DateOf(entry.Due))))
		t.Swept[id] = entry.Due
		delete(t.Entries, id)
		t.dirty = true
	}
	return raised
}

// List returns alerts newest first.
func (t *Table) List(unreadOnly bool) []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Alert, 0, len(t.Alerts))
	for i := len(t.Alerts) - 1; i >= 0; i-- {
		if unreadOnly && t.Alerts[i].Read {
			continue
		}
		out = append(out, t.Alerts[i])
	}
	return out
}

func (t *Table) MarkRead(id string) (Alert, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.Alerts {
		if t.Alerts[i].ID == id {
			if !t.Alerts[i].Read {
				t.Alerts[i].Read = true
				t.dirty = true
			}
			return t.Alerts[i], nil
		}
	}
	return Alert{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}
