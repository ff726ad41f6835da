package trello

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/model"
)

const (
	apiKey = "trello-key"
	token  = "trello-token"
	cardA  = "66a60890aaaaaaaaaaaaaaaa"
	cardB  = "66a60890bbbbbbbbbbbbbbbb"
	cardC  = "66a60890cccccccccccccccc"
)

func fakeTrello(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	authed := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("key") != apiKey || r.URL.Query().Get("token") != token {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte("invalid key"))
				return
			}
			_, _ = w.Write([]byte(body))
		}
	}
	mux.HandleFunc("/1/members/me", authed(`{"id":"m1","fullName":"Sam Rivera","username":"sam"}`))
	mux.HandleFunc("/1/members/me/boards", authed(`[
		{"id":"trello1","name":"Q4 Marketing Campaign Board","closed":false},
		{"id":"trello2","name":"Old board","closed":true}
	]`))
	mux.HandleFunc("/1/boards/trello1/lists", authed(`[
		{"id":"l1","name":"To Do"},{"id":"l2","name":"Doing"},{"id":"l3","name":"Done"}
	]`))
	mux.HandleFunc("/1/boards/trello1/cards", authed(`[
		{"id":"`+cardA+`","name":"Draft ad copy","idList":"l2","due":"2024-08-02T12:00:00.000Z","labels":[{"name":"High"}],"members":[{"fullName":"Sam Rivera"}]},
		{"id":"`+cardB+`","name":"Broken signup link","idList":"l1","labels":[{"name":"Bug"},{"name":"Critical"}]},
		{"id":"`+cardC+`","name":"Book posts","idList":"l1","closed":true,"labels":[]}
	]`))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newAdapter() *Adapter {
	return New(adapter.NewClient(adapter.ClientOptions{Timeout: 2 * time.Second}, nil), nil)
}

func TestTestConnection(t *testing.T) {
	srv := fakeTrello(t)
	a := newAdapter()

	probe := a.TestConnection(context.Background(), model.Connection{BaseURL: srv.URL, Principal: apiKey, APIKey: token})
	assert.True(t, probe.OK)
	assert.Equal(t, "authenticated as Sam Rivera", probe.Detail)

	probe = a.TestConnection(context.Background(), model.Connection{BaseURL: srv.URL, Principal: apiKey, APIKey: "nope"})
	assert.False(t, probe.OK)
	assert.NotContains(t, probe.Detail, "nope")

	assert.False(t, a.TestConnection(context.Background(), model.Connection{BaseURL: srv.URL}).OK)
}

func TestListProjectsSkipsClosedBoards(t *testing.T) {
	srv := fakeTrello(t)
	projects, err := newAdapter().ListProjects(context.Background(), model.Connection{BaseURL: srv.URL, Principal: apiKey, APIKey: token})
	require.NoError(t, err)
	assert.Equal(t, []adapter.NativeProject{{ID: "trello1", Name: "Q4 Marketing Campaign Board"}}, projects)
}

func TestListIssues(t *testing.T) {
	srv := fakeTrello(t)
	set, err := newAdapter().ListIssues(context.Background(), model.Connection{BaseURL: srv.URL, Principal: apiKey, APIKey: token}, "trello1")
	require.NoError(t, err)
	require.Len(t, set.Tasks, 2)
	require.Len(t, set.Defects, 1)

	draft := set.Tasks[0]
	assert.Equal(t, cardA, draft.NativeID)
	assert.Equal(t, model.TaskPending, draft.Status)
	assert.Equal(t, model.PriorityHigh, draft.Priority)
	assert.Equal(t, "Sam Rivera", draft.Assignee)
	require.NotNil(t, draft.Due)
	assert.Equal(t, "2024-08-02", model.DateOf(*draft.Due).String())
	assert.Equal(t, "2024-07-28", model.DateOf(draft.Created).String())

	assert.Equal(t, model.TaskCompleted, set.Tasks[1].Status)
	assert.Equal(t, model.PriorityMedium, set.Tasks[1].Priority)

	assert.Equal(t, model.SeverityCritical, set.Defects[0].Severity)
}

func TestCreatedAt(t *testing.T) {
	assert.Equal(t, time.Date(2024, 7, 28, 9, 0, 0, 0, time.UTC), CreatedAt(cardA))
	assert.True(t, CreatedAt("xyz").IsZero())
	assert.True(t, CreatedAt("zzzzzzzzzz").IsZero())
}
