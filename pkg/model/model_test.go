package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateJSON(t *testing.T) {
	created := DateOf(time.Date(2024, 7, 28, 13, 0, 0, 0, time.UTC))
	task := Task{ID: "JIRA-TASK-1", Title: "Setup CI", CreationDate: created}

	b, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["creationDate"] != "2024-07-28" {
		t.Errorf("Expected creationDate 2024-07-28, got %v", decoded["creationDate"])
	}
	if decoded["dueDate"] != TBD {
		t.Errorf("Expected dueDate TBD, got %v", decoded["dueDate"])
	}

	due := DateOf(time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC))
	task.DueDate = &due
	b, _ = json.Marshal(task)
	decoded = nil
	_ = json.Unmarshal(b, &decoded)
	if decoded["dueDate"] != "2024-08-15" {
		t.Errorf("Expected dueDate 2024-08-15, got %v", decoded["dueDate"])
	}
	task.DueDate = nil
	if task.Due() != TBD {
		t.Errorf("Expected Due() TBD, got %s", task.Due())
	}

	var back Task
	if err := json.Unmarshal([]byte(`{"id":"TASK-1","creationDate":"2024-07-01","dueDate":"TBD"}`), &back); err != nil {
		t.Fatalf("Unmarshal task failed: %v", err)
	}
	if back.CreationDate.String() != "2024-07-01" {
		t.Errorf("Expected creationDate 2024-07-01, got %s", back.CreationDate)
	}
	if back.Due() != TBD {
		t.Errorf("Expected TBD due date, got %s", back.Due())
	}
}

func TestDateOfUsesUTCDay(t *testing.T) {
	est := time.FixedZone("EDT", -4*3600)
	d := DateOf(time.Date(2024, 7, 28, 22, 30, 0, 0, est))
	if d.String() != "2024-07-29" {
		t.Errorf("Expected 2024-07-29, got %s", d)
	}
}

func TestNamespacedIDs(t *testing.T) {
	if got := ProjectID("JIRA", "10001"); got != "JIRA-10001" {
		t.Errorf("Expected JIRA-10001, got %s", got)
	}
	if got := DefectID("JIRA", "40001"); got != "JIRA-DEFECT-40001" {
		t.Errorf("Expected JIRA-DEFECT-40001, got %s", got)
	}
	if got := TaskID("TR", "abc"); got != "TR-TASK-abc" {
		t.Errorf("Expected TR-TASK-abc, got %s", got)
	}
}

func TestProjectPrefix(t *testing.T) {
	cases := []struct {
		project Project
		want    string
	}{
		{Project{ID: "JIRA-10001", Kind: KindJira, SourceRef: "10001"}, "JIRA"},
		{Project{ID: "TR-5f1a-b2", Kind: KindTrello, SourceRef: "5f1a-b2"}, "TR"},
		{Project{ID: "PROJ-1A2B3C4D"}, ""},
		{Project{ID: "OP-7", Kind: KindOpenProject, SourceRef: "8"}, ""},
	}
	for _, c := range cases {
		if got := c.project.Prefix(); got != c.want {
			t.Errorf("Prefix(%s): expected %q, got %q", c.project.ID, c.want, got)
		}
	}
}

func TestHealthFor(t *testing.T) {
	cases := map[int]ProjectStatus{
		100: ProjectOnTrack,
		60:  ProjectOnTrack,
		59:  ProjectNeedsAttention,
		30:  ProjectNeedsAttention,
		29:  ProjectAtRisk,
		0:   ProjectAtRisk,
	}
	for progress, want := range cases {
		if got := HealthFor(progress); got != want {
			t.Errorf("HealthFor(%d): expected %s, got %s", progress, want, got)
		}
	}
	if ClampProgress(140) != 100 || ClampProgress(-3) != 0 {
		t.Error("Expected ClampProgress to bound to [0,100]")
	}
}

func TestConnectionRedacted(t *testing.T) {
	conn := Connection{ID: "c1", Kind: KindJira, Principal: "pm@example.com", APIKey: "secret-token"}
	if conn.Secret() != "secret-token" {
		t.Errorf("Expected API key as secret, got %s", conn.Secret())
	}
	red := conn.Redacted()
	if red.APIKey == "secret-token" {
		t.Error("Expected API key to be redacted")
	}
	if red.Password != "" {
		t.Errorf("Expected empty password to stay empty, got %q", red.Password)
	}
	if conn.APIKey != "secret-token" {
		t.Error("Redacted must not modify the original")
	}
}
