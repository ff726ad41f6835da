// Package google implements the adapter for Google Tasks.
//
// Task lists are projects. Tasks whose title starts with "[bug]" or "bug:" are
// defects; Google Tasks has no priority, so every item maps to Medium.
package google

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/model"
	"github.com/harrisonrobin/nexus/pkg/util"
)

const (
	Prefix   = "GT"
	pageSize = 100
)

var bugMarkers = []string{"[bug]", "bug:"}

var Mapping = adapter.Mapping{
	Status: map[string]model.TaskStatus{
		"needsaction": model.TaskUpcoming,
		"completed":   model.TaskCompleted,
	},
}

type Adapter struct {
	config    *oauth2.Config
	transport http.RoundTripper
	logger    *zap.Logger

	// newService is swapped in tests.
	newService func(ctx context.Context, conn model.Connection) (*tasks.Service, error)
}

// New creates the adapter. config may be nil when no client secrets are available;
// every call then fails with ErrNoClientSecrets. With a non-nil client, requests are
// retried through its transport.
func New(config *oauth2.Config, client *adapter.Client, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{config: config, logger: logger.Named("google")}
	if client != nil {
		a.transport = client.Transport(nil)
	}
	a.newService = func(ctx context.Context, conn model.Connection) (*tasks.Service, error) {
		return NewService(ctx, a.config, a.transport, conn)
	}
	return a
}

func (a *Adapter) Kind() model.ToolKind { return model.KindGoogleTasks }
func (a *Adapter) Prefix() string       { return Prefix }

func (a *Adapter) service(ctx context.Context, conn model.Connection, op string) (*tasks.Service, error) {
	if conn.APIKey == "" {
		return nil, adapter.NewAuthError(model.KindGoogleTasks, op, 0, errors.New("refresh token is required"))
	}
	srv, err := a.newService(ctx, conn)
	if err != nil {
		return nil, adapter.NewAuthError(model.KindGoogleTasks, op, 0, err)
	}
	return srv, nil
}

func (a *Adapter) TestConnection(ctx context.Context, conn model.Connection) adapter.Probe {
	srv, err := a.service(ctx, conn, "probe")
	if err != nil {
		return adapter.ProbeFrom(err, "")
	}
	lists, err := srv.Tasklists.List().MaxResults(1).Context(ctx).Do()
	if err != nil {
		return adapter.ProbeFrom(classify("probe", err), "")
	}
	if len(lists.Items) == 0 {
		return adapter.Probe{OK: true, Detail: "authorized, no task lists"}
	}
	return adapter.Probe{OK: true, Detail: "authorized"}
}

func (a *Adapter) ListProjects(ctx context.Context, conn model.Connection) ([]adapter.NativeProject, error) {
	srv, err := a.service(ctx, conn, "list task lists")
	if err != nil {
		return nil, err
	}

	var out []adapter.NativeProject
	err = srv.Tasklists.List().MaxResults(pageSize).Pages(ctx, func(page *tasks.TaskLists) error {
		for _, l := range page.Items {
			out = append(out, adapter.NativeProject{ID: l.Id, Name: l.Title})
		}
		return nil
	})
	if err != nil {
		return nil, classify("list task lists", err)
	}
	return out, nil
}

func (a *Adapter) ListIssues(ctx context.Context, conn model.Connection, listID string) (adapter.IssueSet, error) {
	srv, err := a.service(ctx, conn, "list tasks")
	if err != nil {
		return adapter.IssueSet{}, err
	}

	var set adapter.IssueSet
	call := srv.Tasks.List(listID).ShowCompleted(true).ShowHidden(true).MaxResults(pageSize)
	err = call.Pages(ctx, func(page *tasks.Tasks) error {
		for _, t := range page.Items {
			if t.Deleted {
				continue
			}
			title, isBug := stripBugMarker(t.Title)
			issue := adapter.Issue{
				NativeID: t.Id,
				Title:    title,
				Status:   Mapping.TaskStatus(t.Status),
				Priority: model.PriorityMedium,
				Severity: model.SeverityMedium,
				Due:      util.ParseOptionalTimestamp(t.Due),
			}
			if updated, err := util.ParseTimestamp(t.Updated); err == nil {
				issue.Created = updated
			}
			if isBug {
				set.Defects = append(set.Defects, issue)
			} else {
				set.Tasks = append(set.Tasks, issue)
			}
		}
		return nil
	})
	if err != nil {
		return adapter.IssueSet{}, classify("list tasks", err)
	}
	return set, nil
}

func stripBugMarker(title string) (string, bool) {
	trimmed := strings.TrimSpace(title)
	lower := strings.ToLower(trimmed)
	for _, m := range bugMarkers {
		if strings.HasPrefix(lower, m) {
			return strings.TrimSpace(trimmed[len(m):]), true
		}
	}
	return trimmed, false
}

// classify converts Google client errors into adapter errors.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return adapter.NewAuthError(model.KindGoogleTasks, op, apiErr.Code, err)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return adapter.NewTransportError(model.KindGoogleTasks, op, apiErr.Code, err)
		default:
			return adapter.NewProtocolError(model.KindGoogleTasks, op, apiErr.Code, err)
		}
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return adapter.NewAuthError(model.KindGoogleTasks, op, 0, errors.New("token refresh rejected"))
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return adapter.NewTransportError(model.KindGoogleTasks, op, 0, err)
	}
	return adapter.NewProtocolError(model.KindGoogleTasks, op, 0, err)
}
