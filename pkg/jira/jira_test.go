package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/model"
)

const (
	testUser = "pm@acme.io"
	token    = "jira-token"
)

func issueJSON(id, summary, issueType, priority, status, created string) map[string]any {
	fields := map[string]any{
		"summary":  summary,
		"priority": map[string]string{"name": priority},
		"status":   map[string]string{"name": status},
		"created":  created,
	}
	if issueType != "" {
		fields["issuetype"] = map[string]string{"name": issueType}
	}
	return map[string]any{"id": id, "key": "NEX-" + id, "fields": fields}
}

func fakeJira(t *testing.T, issues []map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || u != testUser || p != token {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"errorMessages":["Authentication failed"]}`))
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/rest/api/3/myself", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accountId":"abc","displayName":"Priya"}`))
	}))
	mux.HandleFunc("/rest/api/3/project", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"10001","key":"NEX","name":"Nexus Core Platform"},{"id":"10002","key":"AERO","name":"Aero Dynamics Integration"}]`))
	}))
	mux.HandleFunc("/rest/api/3/search", authed(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "project=10001 ORDER BY created DESC", r.URL.Query().Get("jql"))
		start, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		// Serve one issue per page to exercise pagination.
		page := []map[string]any{}
		if start < len(issues) {
			page = issues[start : start+1]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"startAt": start, "maxResults": 1, "total": len(issues), "issues": page})
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newAdapter() *Adapter {
	return New(adapter.NewClient(adapter.ClientOptions{Timeout: 2 * time.Second, BaseBackoff: time.Millisecond}, nil), nil)
}

func TestTestConnection(t *testing.T) {
	srv := fakeJira(t, nil)
	a := newAdapter()

	probe := a.TestConnection(context.Background(), model.Connection{BaseURL: srv.URL, Principal: testUser, APIKey: token})
	assert.True(t, probe.OK)
	assert.Equal(t, "authenticated as Priya", probe.Detail)

	probe = a.TestConnection(context.Background(), model.Connection{BaseURL: srv.URL, Principal: testUser, APIKey: "wrong"})
	assert.False(t, probe.OK)
	assert.Contains(t, probe.Detail, "authentication failed")

	probe = a.TestConnection(context.Background(), model.Connection{BaseURL: srv.URL, Principal: testUser})
	assert.False(t, probe.OK)
	assert.Contains(t, probe.Detail, "incomplete")
}

func TestListProjects(t *testing.T) {
	srv := fakeJira(t, nil)
	projects, err := newAdapter().ListProjects(context.Background(), model.Connection{BaseURL: srv.URL, Principal: testUser, APIKey: token})
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, adapter.NativeProject{ID: "10001", Key: "NEX", Name: "Nexus Core Platform"}, projects[0])

	_, err = newAdapter().ListProjects(context.Background(), model.Connection{BaseURL: srv.URL, Principal: testUser, APIKey: "bad"})
	assert.ErrorIs(t, err, adapter.ErrAuth)
}

func TestListIssuesClassifiesAndMaps(t *testing.T) {
	srv := fakeJira(t, []map[string]any{
		issueJSON("40001", "Database connection pool exhaustion", "", "Highest", "To Do", "2024-07-28T09:00:00.000-0400"),
		issueJSON("40002", "Incorrect tax calculation", "Bug", "High", "In Review", "2024-07-26T18:00:00.000-0400"),
		issueJSON("40003", "Setup CI/CD pipeline", "Story", "Highest", "In Progress", "2024-07-20T10:00:00.000-0400"),
		issueJSON("40004", "Design schema", "Task", "Trivial", "Done", "2024-07-24T12:00:00.000-0400"),
	})

	set, err := newAdapter().ListIssues(context.Background(), model.Connection{BaseURL: srv.URL, Principal: testUser, APIKey: token}, "10001")
	require.NoError(t, err)
	require.Len(t, set.Defects, 2)
	require.Len(t, set.Tasks, 2)
	assert.Nil(t, set.Project)

	crash := set.Defects[0]
	assert.Equal(t, "40001", crash.NativeID)
	assert.Equal(t, model.SeverityCritical, crash.Severity)
	assert.Equal(t, "2024-07-28", model.DateOf(crash.Created).String())
	assert.Equal(t, model.SeverityHigh, set.Defects[1].Severity)

	assert.Equal(t, model.PriorityHigh, set.Tasks[0].Priority)
	assert.Equal(t, model.TaskPending, set.Tasks[0].Status)
	// Unmapped priority falls back to Medium.
	assert.Equal(t, model.PriorityMedium, set.Tasks[1].Priority)
	assert.Equal(t, model.TaskCompleted, set.Tasks[1].Status)

	_, defects := set.Canonical(Prefix, "Nexus Core Platform")
	assert.Equal(t, "JIRA-DEFECT-40001", defects[0].ID)
}

func TestListIssuesProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"issues": "not-a-list"}`))
	}))
	defer srv.Close()

	_, err := newAdapter().ListIssues(context.Background(), model.Connection{BaseURL: srv.URL, Principal: testUser, APIKey: token}, "10001")
	assert.ErrorIs(t, err, adapter.ErrProtocol)
}

func TestListIssuesPastPageLimitFails(t *testing.T) {
	srv := fakeJira(t, []map[string]any{
		issueJSON("1", "One", "Task", "Low", "To Do", "2024-07-20T10:00:00.000-0400"),
		issueJSON("2", "Two", "Task", "Low", "To Do", "2024-07-20T10:00:00.000-0400"),
		issueJSON("3", "Three", "Task", "Low", "To Do", "2024-07-20T10:00:00.000-0400"),
	})
	conn := model.Connection{BaseURL: srv.URL, Principal: testUser, APIKey: token}

	a := newAdapter()
	a.maxPages = 2
	_, err := a.ListIssues(context.Background(), conn, "10001")
	assert.ErrorIs(t, err, adapter.ErrProtocol)

	// Exactly enough pages is a complete listing.
	a.maxPages = 3
	set, err := a.ListIssues(context.Background(), conn, "10001")
	require.NoError(t, err)
	assert.Len(t, set.Tasks, 3)
}
