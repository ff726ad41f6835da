package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/connection"
	"github.com/harrisonrobin/nexus/pkg/credentials"
	"github.com/harrisonrobin/nexus/pkg/model"
	"github.com/harrisonrobin/nexus/pkg/store"
)

type listing struct {
	projects []adapter.NativeProject
	err      error
}

func (l *listing) Kind() model.ToolKind { return model.KindJira }
func (l *listing) Prefix() string       { return "JIRA" }
func (l *listing) TestConnection(context.Context, model.Connection) adapter.Probe {
	return adapter.Probe{OK: true}
}
func (l *listing) ListProjects(context.Context, model.Connection) ([]adapter.NativeProject, error) {
	return l.projects, l.err
}
func (l *listing) ListIssues(context.Context, model.Connection, string) (adapter.IssueSet, error) {
	return adapter.IssueSet{}, nil
}

func setup(t *testing.T, l *listing) (*Catalog, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	creds, err := credentials.Open(filepath.Join(dir, "connections.json"))
	require.NoError(t, err)
	conn := creds.Put(model.Connection{Kind: model.KindJira, Vendor: "VENDOR-A"})

	st, err := store.Open(filepath.Join(dir, "nexus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg, err := adapter.NewRegistry(l)
	require.NoError(t, err)
	return New(connection.NewManager(creds, reg, nil), st, nil), st, conn.ID
}

func jiraProjects() []adapter.NativeProject {
	return []adapter.NativeProject{
		{ID: "10001", Key: "NEX", Name: "Nexus Core Platform"},
		{ID: "10002", Key: "AERO", Name: "Aero Dynamics Integration"},
		{ID: "10001", Key: "NEX", Name: "Nexus Core Platform"},
	}
}

func TestDiscoverIsIdempotent(t *testing.T) {
	c, _, connID := setup(t, &listing{projects: jiraProjects()})

	first, err := c.Discover(context.Background(), connID)
	require.NoError(t, err)
	second, err := c.Discover(context.Background(), connID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.Equal(t, "JIRA-10001", first[0].ID)
	assert.Equal(t, "Nexus Core Platform", first[0].Name)
	assert.Equal(t, "NEX", first[0].Key)
	assert.Equal(t, "10001", first[0].SourceRef)
	assert.Equal(t, connID, first[0].ConnectionID)
	assert.Equal(t, "VENDOR-A", first[0].VendorRef)
}

func TestAdmitThenDiscoverExcludesTracked(t *testing.T) {
	c, st, connID := setup(t, &listing{projects: jiraProjects()})
	ctx := context.Background()

	_, err := c.Discover(ctx, connID)
	require.NoError(t, err)

	res, err := c.Admit(ctx, []string{"JIRA-10001", "JIRA-10001", "JIRA-99999"})
	require.NoError(t, err)
	require.Len(t, res.Admitted, 1)
	assert.Equal(t, "JIRA-10001", res.Admitted[0].ID)
	assert.Equal(t, []string{"JIRA-99999"}, res.Unknown)

	projects, err := st.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)

	fresh, err := c.Discover(ctx, connID)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "JIRA-10002", fresh[0].ID)

	// Discovery no longer offers a tracked project; admitting it again says so.
	res, err = c.Admit(ctx, []string{"JIRA-10001"})
	require.NoError(t, err)
	assert.Empty(t, res.Admitted)
	assert.Equal(t, []string{"JIRA-10001"}, res.Skipped)
	assert.Empty(t, res.Unknown)
}

func TestAdmitSkipsTrackedCandidates(t *testing.T) {
	c, st, connID := setup(t, &listing{projects: jiraProjects()})
	ctx := context.Background()

	_, err := c.Discover(ctx, connID)
	require.NoError(t, err)
	// Tracked through another path after discovery.
	require.NoError(t, st.CreateProject(ctx, model.Project{ID: "JIRA-10002", Name: "Aero", Status: model.ProjectOnTrack}))

	res, err := c.Admit(ctx, []string{"JIRA-10001", "JIRA-10002"})
	require.NoError(t, err)
	assert.Len(t, res.Admitted, 1)
	assert.Equal(t, []string{"JIRA-10002"}, res.Skipped)
}

func TestDiscoverFailureLeavesCatalogUnchanged(t *testing.T) {
	c, st, connID := setup(t, &listing{err: adapter.NewAuthError(model.KindJira, "list projects", 401, nil)})

	_, err := c.Discover(context.Background(), connID)
	assert.ErrorIs(t, err, adapter.ErrAuth)

	projects, err := st.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestCandidateHealth(t *testing.T) {
	progress := 45
	p := Candidate(model.Connection{ID: "conn-1", Kind: model.KindOpenProject}, "OP", adapter.NativeProject{ID: "alpha-one", Name: "Alpha", Progress: &progress})
	assert.Equal(t, "OP-alpha-one", p.ID)
	assert.Equal(t, model.ProjectNeedsAttention, p.Status)
	assert.Equal(t, 45, p.Progress)
}

func TestDedup(t *testing.T) {
	in := []model.Project{{ID: "A"}, {ID: "B"}, {ID: "A"}, {ID: "C"}}
	out := Dedup(in, map[string]bool{"C": true})
	assert.Equal(t, []model.Project{{ID: "A"}, {ID: "B"}}, out)
}
