package taskwarrior

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/model"
)

const Prefix = "TW"

var defectTags = []string{"bug", "defect"}

var Mapping = adapter.Mapping{
	Priority: map[string]model.TaskPriority{
		"h": model.PriorityHigh,
		"m": model.PriorityMedium,
		"l": model.PriorityLow,
	},
	Severity: map[string]model.DefectSeverity{
		"h": model.SeverityHigh,
		"m": model.SeverityMedium,
		"l": model.SeverityLow,
	},
	Status: map[string]model.TaskStatus{
		statusPending:   model.TaskUpcoming,
		statusWaiting:   model.TaskUpcoming,
		statusCompleted: model.TaskCompleted,
	},
}

// Adapter exposes a local Taskwarrior database. A connection's BaseURL is the
// TASKDATA directory; projects are the distinct project names.
type Adapter struct {
	run    Runner
	logger *zap.Logger
}

func NewAdapter(run Runner, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{run: run, logger: logger.Named("taskwarrior")}
}

func (a *Adapter) Kind() model.ToolKind { return model.KindTaskwarrior }
func (a *Adapter) Prefix() string       { return Prefix }

func (a *Adapter) client(conn model.Connection) *Client {
	return NewClient(conn.BaseURL, a.run)
}

func (a *Adapter) TestConnection(ctx context.Context, conn model.Connection) adapter.Probe {
	if conn.BaseURL != "" {
		info, err := os.Stat(conn.BaseURL)
		if err != nil || !info.IsDir() {
			return adapter.Probe{OK: false, Detail: fmt.Sprintf("data directory %s is not accessible", conn.BaseURL)}
		}
	}
	version, err := a.client(conn).Version(ctx)
	if err != nil {
		return adapter.Probe{OK: false, Detail: err.Error()}
	}
	return adapter.Probe{OK: true, Detail: "task " + version}
}

func (a *Adapter) export(ctx context.Context, conn model.Connection, op string, filter []string) ([]Task, error) {
	tasks, err := a.client(conn).GetTasks(ctx, filter)
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			return nil, adapter.NewProtocolError(model.KindTaskwarrior, op, 0, err)
		}
		return nil, adapter.NewTransportError(model.KindTaskwarrior, op, 0, err)
	}
	return tasks, nil
}

func (a *Adapter) ListProjects(ctx context.Context, conn model.Connection) ([]adapter.NativeProject, error) {
	tasks, err := a.export(ctx, conn, "list projects", nil)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []adapter.NativeProject
	for _, t := range tasks {
		if t.Project == "" || t.Status == statusDeleted || seen[t.Project] {
			continue
		}
		seen[t.Project] = true
		out = append(out, adapter.NativeProject{ID: t.Project, Name: t.Project})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *Adapter) ListIssues(ctx context.Context, conn model.Connection, project string) (adapter.IssueSet, error) {
	tasks, err := a.export(ctx, conn, "list tasks", []string{"project:" + project})
	if err != nil {
		return adapter.IssueSet{}, err
	}

	var set adapter.IssueSet
	for _, t := range tasks {
		// project:X also matches subprojects such as X.sub.
		if t.Project != project || t.Status == statusDeleted || t.Status == statusRecurring {
			continue
		}
		issue := adapter.Issue{
			NativeID: t.UUID,
			Title:    t.Description,
			Status:   Mapping.TaskStatus(t.Status),
			Priority: Mapping.TaskPriority(t.Priority),
			Severity: Mapping.DefectSeverity(t.Priority),
			Due:      t.Due.Ptr(),
			Assignee: t.Assignee,
		}
		if t.Status == statusPending && t.Start.Ptr() != nil {
			issue.Status = model.TaskPending
		}
		if created := t.Entry.Ptr(); created != nil {
			issue.Created = *created
		}
		if t.HasTag(defectTags...) {
			if t.HasTag("critical") {
				issue.Severity = model.SeverityCritical
			}
			set.Defects = append(set.Defects, issue)
		} else {
			set.Tasks = append(set.Tasks, issue)
		}
	}
	return set, nil
}
