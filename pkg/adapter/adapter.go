// Package adapter defines the contract every tool integration implements, the
// registry that selects an implementation by tool kind, and the shared HTTP client.
package adapter

import (
	"context"
	"time"

	"github.com/harrisonrobin/nexus/pkg/model"
)

// Adapter translates the canonical contract into one tool's wire calls.
//
// TestConnection never returns an error: bad credentials and unreachable hosts are
// reported as Probe{OK: false}. ListProjects and ListIssues return *Error values
// carrying ErrAuth, ErrTransport or ErrProtocol.
type Adapter interface {
	Kind() model.ToolKind
	Prefix() string
	TestConnection(ctx context.Context, conn model.Connection) Probe
	ListProjects(ctx context.Context, conn model.Connection) ([]NativeProject, error)
	ListIssues(ctx context.Context, conn model.Connection, projectRef string) (IssueSet, error)
}

// Probe is the outcome of a connection test.
type Probe struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// ProbeFrom turns the error of a probe call into a Probe.
func ProbeFrom(err error, okDetail string) Probe {
	if err != nil {
		return Probe{OK: false, Detail: err.Error()}
	}
	return Probe{OK: true, Detail: okDetail}
}

// NativeProject is a project as listed by a tool.
type NativeProject struct {
	// ID is the tool's stable project reference; it becomes the sourceRef.
	ID   string
	Key  string
	Name string
	// Progress is the completion percentage, when the tool reports one.
	Progress *int
}

// Issue is a tool item already classified and mapped through the adapter's tables.
type Issue struct {
	NativeID string
	Title    string
	Status   model.TaskStatus
	Priority model.TaskPriority
	Severity model.DefectSeverity
	Created  time.Time
	Due      *time.Time
	Assignee string
}

// IssueSet is the result of ListIssues.
type IssueSet struct {
	Tasks   []Issue
	Defects []Issue
	// Project carries progress detail when the tool reports it.
	Project *NativeProject
}

// Canonical stamps the set with the tool prefix and the owning project name.
func (s IssueSet) Canonical(prefix, projectName string) ([]model.Task, []model.Defect) {
	tasks := make([]model.Task, 0, len(s.Tasks))
	for _, is := range s.Tasks {
		t := model.Task{
			ID:           model.TaskID(prefix, is.NativeID),
			Title:        is.Title,
			Project:      projectName,
			Status:       is.Status,
			Priority:     is.Priority,
			CreationDate: dateOrEmpty(is.Created),
			AssignedTo:   is.Assignee,
		}
		if is.Due != nil && !is.Due.IsZero() {
			d := model.DateOf(*is.Due)
			t.DueDate = &d
		}
		tasks = append(tasks, t)
	}

	defects := make([]model.Defect, 0, len(s.Defects))
	for _, is := range s.Defects {
		defects = append(defects, model.Defect{
			ID:           model.DefectID(prefix, is.NativeID),
			Title:        is.Title,
			Project:      projectName,
			Severity:     is.Severity,
			CreationDate: dateOrEmpty(is.Created),
			AssignedTo:   is.Assignee,
		})
	}
	return tasks, defects
}

func dateOrEmpty(t time.Time) model.Date {
	if t.IsZero() {
		return model.Date{}
	}
	return model.DateOf(t)
}
