package model

import (
	"encoding/json"
	"strings"
)

type TaskStatus string

const (
	TaskUpcoming  TaskStatus = "Upcoming"
	TaskPending   TaskStatus = "Pending"
	TaskCompleted TaskStatus = "Completed"
)

type TaskPriority string

const (
	PriorityHigh   TaskPriority = "High"
	PriorityMedium TaskPriority = "Medium"
	PriorityLow    TaskPriority = "Low"
)

type DefectSeverity string

const (
	SeverityCritical DefectSeverity = "Critical"
	SeverityHigh     DefectSeverity = "High"
	SeverityMedium   DefectSeverity = "Medium"
	SeverityLow      DefectSeverity = "Low"
)

// Task is a canonical task from any source. Project refers to the project by name.
type Task struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Project      string       `json:"project"`
	Status       TaskStatus   `json:"status"`
	Priority     TaskPriority `json:"priority"`
	CreationDate Date         `json:"creationDate"`
	DueDate      *Date        `json:"dueDate,omitempty"`
	AssignedTo   string       `json:"assignedTo,omitempty"`
}

// Due renders the due date, or TBD when there is none.
func (t Task) Due() string {
	if t.DueDate == nil || t.DueDate.IsZero() {
		return TBD
	}
	return t.DueDate.String()
}

// MarshalJSON renders a missing due date as TBD.
func (t Task) MarshalJSON() ([]byte, error) {
	type plain Task
	return json.Marshal(struct {
		plain
		DueDate string `json:"dueDate"`
	}{plain: plain(t), DueDate: t.Due()})
}

// Defect is a canonical defect from any source.
type Defect struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Project      string         `json:"project"`
	Severity     DefectSeverity `json:"severity"`
	CreationDate Date           `json:"creationDate"`
	AssignedTo   string         `json:"assignedTo,omitempty"`
	TriageCall   string         `json:"triageCall,omitempty"`
}

// Namespaced ids for tool-sourced items.
func TaskID(prefix, nativeID string) string {
	return prefix + "-TASK-" + nativeID
}

func DefectID(prefix, nativeID string) string {
	return prefix + "-DEFECT-" + nativeID
}

func ProjectID(prefix, sourceRef string) string {
	return prefix + "-" + sourceRef
}

func ParseTaskStatus(s string) (TaskStatus, bool) {
	for _, v := range []TaskStatus{TaskUpcoming, TaskPending, TaskCompleted} {
		if strings.EqualFold(s, string(v)) {
			return v, true
		}
	}
	return "", false
}

func ParsePriority(s string) (TaskPriority, bool) {
	for _, v := range []TaskPriority{PriorityHigh, PriorityMedium, PriorityLow} {
		if strings.EqualFold(s, string(v)) {
			return v, true
		}
	}
	return "", false
}

func ParseSeverity(s string) (DefectSeverity, bool) {
	for _, v := range []DefectSeverity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow} {
		if strings.EqualFold(s, string(v)) {
			return v, true
		}
	}
	return "", false
}
