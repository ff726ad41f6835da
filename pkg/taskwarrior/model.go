package taskwarrior

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Task statuses as reported by task export.
const (
	statusPending   = "pending"
	statusCompleted = "completed"
	statusWaiting   = "waiting"
	statusDeleted   = "deleted"
	statusRecurring = "recurring"
)

// timeLayout is the compact UTC form task export writes, e.g. 20240728T090000Z.
const timeLayout = "20060102T150405Z"

// Timestamp is a task export date. An empty value decodes to the zero time.
type Timestamp struct {
	time.Time
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("taskwarrior date: %w", err)
	}
	if raw == "" {
		ts.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return fmt.Errorf("taskwarrior date %q: %w", raw, err)
	}
	ts.Time = t
	return nil
}

// Ptr returns the wrapped time, or nil for an absent or zero value.
func (ts *Timestamp) Ptr() *time.Time {
	if ts == nil || ts.Time.IsZero() {
		return nil
	}
	t := ts.Time
	return &t
}

// Task holds the export fields the adapter reads.
type Task struct {
	UUID        string     `json:"uuid"`
	Description string     `json:"description"`
	Entry       *Timestamp `json:"entry,omitempty"`
	Due         *Timestamp `json:"due,omitempty"`
	Start       *Timestamp `json:"start,omitempty"`
	Status      string     `json:"status"`
	Project     string     `json:"project,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	// Assignee is a common UDA; it is empty unless configured.
	Assignee string `json:"assignee,omitempty"`
}

// HasTag reports whether the task carries any of tags, ignoring case.
func (t Task) HasTag(tags ...string) bool {
	for _, have := range t.Tags {
		for _, want := range tags {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}
