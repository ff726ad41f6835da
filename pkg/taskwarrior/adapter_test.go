package taskwarrior

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/model"
)

const export = `[
  {"uuid":"u1","description":"Draft plan","status":"pending","project":"Home","priority":"H","entry":"20240720T100000Z","due":"20240801T000000Z"},
  {"uuid":"u2","description":"Paint fence","status":"pending","project":"Home","start":"20240721T100000Z","entry":"20240720T100000Z"},
  {"uuid":"u3","description":"Leaky tap","status":"pending","project":"Home","tags":["bug","critical"],"entry":"20240722T100000Z"},
  {"uuid":"u4","description":"Old","status":"deleted","project":"Home"},
  {"uuid":"u5","description":"Garden","status":"waiting","project":"Home.Garden"},
  {"uuid":"u6","description":"Taxes","status":"completed","project":"Finance","priority":"L"},
  {"uuid":"u7","description":"No project","status":"pending"}
]`

func fakeRunner(out string, err error) Runner {
	return func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
		if len(args) == 1 && args[0] == "--version" {
			return []byte("3.1.0\n"), err
		}
		return []byte(out), err
	}
}

func TestAdapterTestConnection(t *testing.T) {
	a := NewAdapter(fakeRunner(export, nil), nil)
	probe := a.TestConnection(context.Background(), model.Connection{BaseURL: t.TempDir()})
	assert.True(t, probe.OK)
	assert.Equal(t, "task 3.1.0", probe.Detail)

	probe = a.TestConnection(context.Background(), model.Connection{BaseURL: "/nonexistent/taskdata"})
	assert.False(t, probe.OK)

	failing := NewAdapter(fakeRunner("", errors.New("exec: \"task\": executable file not found")), nil)
	assert.False(t, failing.TestConnection(context.Background(), model.Connection{}).OK)
}

func TestAdapterListProjects(t *testing.T) {
	projects, err := NewAdapter(fakeRunner(export, nil), nil).ListProjects(context.Background(), model.Connection{})
	require.NoError(t, err)
	assert.Equal(t, []adapter.NativeProject{
		{ID: "Finance", Name: "Finance"},
		{ID: "Home", Name: "Home"},
		{ID: "Home.Garden", Name: "Home.Garden"},
	}, projects)
}

func TestAdapterListIssues(t *testing.T) {
	set, err := NewAdapter(fakeRunner(export, nil), nil).ListIssues(context.Background(), model.Connection{}, "Home")
	require.NoError(t, err)
	require.Len(t, set.Tasks, 2)
	require.Len(t, set.Defects, 1)

	assert.Equal(t, model.PriorityHigh, set.Tasks[0].Priority)
	assert.Equal(t, model.TaskUpcoming, set.Tasks[0].Status)
	require.NotNil(t, set.Tasks[0].Due)
	assert.Equal(t, model.TaskPending, set.Tasks[1].Status)
	assert.Equal(t, model.PriorityMedium, set.Tasks[1].Priority)

	assert.Equal(t, "u3", set.Defects[0].NativeID)
	assert.Equal(t, model.SeverityCritical, set.Defects[0].Severity)
}

func TestAdapterErrors(t *testing.T) {
	_, err := NewAdapter(fakeRunner("", errors.New("exit code 2")), nil).ListProjects(context.Background(), model.Connection{})
	assert.ErrorIs(t, err, adapter.ErrTransport)

	_, err = NewAdapter(fakeRunner(`[{"uuid": 1}]`, nil), nil).ListIssues(context.Background(), model.Connection{}, "Home")
	assert.ErrorIs(t, err, adapter.ErrProtocol)
}
