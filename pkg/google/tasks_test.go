package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/model"
)

func fakeTasksAPI(t *testing.T, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks/v1/users/@me/lists", func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"code":401,"message":"denied"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"L1","title":"Release checklist"},{"id":"L2","title":"Home"}]}`))
	})
	mux.HandleFunc("/tasks/v1/lists/L1/tasks", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("showCompleted"))
		_, _ = w.Write([]byte(`{"items":[
			{"id":"t1","title":"Tag release","status":"needsAction","due":"2024-08-01T00:00:00.000Z","updated":"2024-07-20T10:00:00.000Z"},
			{"id":"t2","title":"[bug] Installer hangs","status":"needsAction","updated":"2024-07-21T10:00:00.000Z"},
			{"id":"t3","title":"Old task","status":"completed","updated":"2024-07-01T10:00:00.000Z"},
			{"id":"t4","title":"Gone","status":"needsAction","deleted":true}
		]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testAdapter(srv *httptest.Server) *Adapter {
	a := New(nil, nil, nil)
	a.newService = func(ctx context.Context, conn model.Connection) (*tasks.Service, error) {
		return tasks.NewService(ctx, option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	}
	return a
}

var conn = model.Connection{Kind: model.KindGoogleTasks, APIKey: "refresh-token"}

func TestTestConnection(t *testing.T) {
	ok := testAdapter(fakeTasksAPI(t, http.StatusOK))
	assert.True(t, ok.TestConnection(context.Background(), conn).OK)

	denied := testAdapter(fakeTasksAPI(t, http.StatusUnauthorized))
	probe := denied.TestConnection(context.Background(), conn)
	assert.False(t, probe.OK)

	assert.False(t, ok.TestConnection(context.Background(), model.Connection{}).OK)
}

func TestListProjects(t *testing.T) {
	projects, err := testAdapter(fakeTasksAPI(t, http.StatusOK)).ListProjects(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, []adapter.NativeProject{{ID: "L1", Name: "Release checklist"}, {ID: "L2", Name: "Home"}}, projects)

	_, err = testAdapter(fakeTasksAPI(t, http.StatusUnauthorized)).ListProjects(context.Background(), conn)
	assert.ErrorIs(t, err, adapter.ErrAuth)
}

func TestListIssues(t *testing.T) {
	set, err := testAdapter(fakeTasksAPI(t, http.StatusOK)).ListIssues(context.Background(), conn, "L1")
	require.NoError(t, err)
	require.Len(t, set.Tasks, 2)
	require.Len(t, set.Defects, 1)

	assert.Equal(t, model.TaskUpcoming, set.Tasks[0].Status)
	require.NotNil(t, set.Tasks[0].Due)
	assert.Equal(t, "2024-08-01", model.DateOf(*set.Tasks[0].Due).String())
	assert.Equal(t, model.TaskCompleted, set.Tasks[1].Status)

	assert.Equal(t, "Installer hangs", set.Defects[0].Title)
	assert.Equal(t, model.SeverityMedium, set.Defects[0].Severity)
}

func TestNoClientSecrets(t *testing.T) {
	_, err := New(nil, nil, nil).ListProjects(context.Background(), conn)
	assert.ErrorIs(t, err, adapter.ErrAuth)
	assert.ErrorIs(t, err, ErrNoClientSecrets)
}

func TestStripBugMarker(t *testing.T) {
	cases := []struct {
		in    string
		title string
		bug   bool
	}{
		{"[BUG] Crash", "Crash", true},
		{"bug: typo in footer", "typo in footer", true},
		{"Debug logging", "Debug logging", false},
		{"  plain  ", "plain", false},
	}
	for _, c := range cases {
		title, bug := stripBugMarker(c.in)
		if title != c.title || bug != c.bug {
			t.Errorf("stripBugMarker(%q): expected (%q, %v), got (%q, %v)", c.in, c.title, c.bug, title, bug)
		}
	}
}
