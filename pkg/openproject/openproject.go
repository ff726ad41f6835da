// Package openproject implements the adapter for the OpenProject API v3.
package openproject

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/model"
	"github.com/harrisonrobin/nexus/pkg/util"
)

const (
	Prefix   = "OP"
	pageSize = 100
	maxPages = 200
	// apiKeyUser is the Basic auth user OpenProject expects alongside an API key.
	apiKeyUser = "apikey"
)

var Mapping = adapter.Mapping{
	Priority: map[string]model.TaskPriority{
		"immediate": model.PriorityHigh,
		"high":      model.PriorityHigh,
		"normal":    model.PriorityMedium,
		"low":       model.PriorityLow,
	},
	Severity: map[string]model.DefectSeverity{
		"immediate": model.SeverityCritical,
		"high":      model.SeverityHigh,
		"normal":    model.SeverityMedium,
		"low":       model.SeverityLow,
	},
	Status: map[string]model.TaskStatus{
		"new":         model.TaskUpcoming,
		"scheduled":   model.TaskUpcoming,
		"in progress": model.TaskPending,
		"in testing":  model.TaskPending,
		"on hold":     model.TaskPending,
		"closed":      model.TaskCompleted,
		"resolved":    model.TaskCompleted,
		"rejected":    model.TaskCompleted,
	},
}

type Adapter struct {
	client   *adapter.Client
	logger   *zap.Logger
	maxPages int
}

func New(client *adapter.Client, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: client, logger: logger.Named("openproject"), maxPages: maxPages}
}

func (a *Adapter) Kind() model.ToolKind { return model.KindOpenProject }
func (a *Adapter) Prefix() string       { return Prefix }

type link struct {
	Href  string `json:"href"`
	Title string `json:"title"`
}

type collection[T any] struct {
	Total    int `json:"total"`
	Count    int `json:"count"`
	Embedded struct {
		Elements []T `json:"elements"`
	} `json:"_embedded"`
}

type project struct {
	ID         int    `json:"id"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
}

type workPackage struct {
	ID             int    `json:"id"`
	Subject        string `json:"subject"`
	PercentageDone *int   `json:"percentageDone"`
	CreatedAt      string `json:"createdAt"`
	DueDate        string `json:"dueDate"`
	Links          struct {
		Type     link `json:"type"`
		Priority link `json:"priority"`
		Status   link `json:"status"`
		Assignee link `json:"assignee"`
	} `json:"_links"`
}

type user struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Login string `json:"login"`
}

func validate(conn model.Connection) error {
	if conn.BaseURL == "" || conn.Secret() == "" {
		return errors.New("OpenProject configuration is incomplete: URL and API key are required")
	}
	return nil
}

func (a *Adapter) request(conn model.Connection, op, path string, query url.Values) adapter.Request {
	return adapter.Request{
		Tool:      model.KindOpenProject,
		Op:        op,
		URL:       adapter.JoinURL(conn.BaseURL, path),
		Query:     query,
		Principal: util.FirstNonEmpty(conn.Principal, apiKeyUser),
		Secret:    conn.Secret(),
	}
}

func (a *Adapter) TestConnection(ctx context.Context, conn model.Connection) adapter.Probe {
	if err := validate(conn); err != nil {
		return adapter.Probe{OK: false, Detail: err.Error()}
	}
	var me user
	if err := a.client.GetJSON(ctx, a.request(conn, "probe", "/api/v3/users/me", nil), &me); err != nil {
		return adapter.ProbeFrom(err, "")
	}
	// An anonymous user means the key was ignored.
	if me.ID == 0 {
		return adapter.Probe{OK: false, Detail: "OpenProject returned the anonymous user"}
	}
	return adapter.Probe{OK: true, Detail: "authenticated as " + util.FirstNonEmpty(me.Name, me.Login)}
}

func (a *Adapter) ListProjects(ctx context.Context, conn model.Connection) ([]adapter.NativeProject, error) {
	if err := validate(conn); err != nil {
		return nil, adapter.NewAuthError(model.KindOpenProject, "list projects", 0, err)
	}

	projects, err := fetchAll[project](ctx, a, conn, "list projects", "/api/v3/projects", nil)
	if err != nil {
		return nil, err
	}
	out := make([]adapter.NativeProject, 0, len(projects))
	for _, p := range projects {
		ref := util.FirstNonEmpty(p.Identifier, strconv.Itoa(p.ID))
		out = append(out, adapter.NativeProject{ID: ref, Key: p.Identifier, Name: p.Name})
	}
	return out, nil
}

func (a *Adapter) ListIssues(ctx context.Context, conn model.Connection, identifier string) (adapter.IssueSet, error) {
	if err := validate(conn); err != nil {
		return adapter.IssueSet{}, adapter.NewAuthError(model.KindOpenProject, "list work packages", 0, err)
	}

	// Without an explicit empty filter the API only returns open work packages.
	query := url.Values{"filters": {"[]"}}
	path := "/api/v3/projects/" + url.PathEscape(identifier) + "/work_packages"
	packages, err := fetchAll[workPackage](ctx, a, conn, "list work packages", path, query)
	if err != nil {
		return adapter.IssueSet{}, err
	}

	var set adapter.IssueSet
	done := 0
	for _, wp := range packages {
		if wp.PercentageDone != nil {
			done += model.ClampProgress(*wp.PercentageDone)
		}
		issue := adapter.Issue{
			NativeID: strconv.Itoa(wp.ID),
			Title:    wp.Subject,
			Status:   Mapping.TaskStatus(wp.Links.Status.Title),
			Priority: Mapping.TaskPriority(wp.Links.Priority.Title),
			Severity: Mapping.DefectSeverity(wp.Links.Priority.Title),
			Due:      util.ParseOptionalTimestamp(wp.DueDate),
			Assignee: wp.Links.Assignee.Title,
		}
		if created, err := util.ParseTimestamp(wp.CreatedAt); err == nil {
			issue.Created = created
		}
		if strings.EqualFold(wp.Links.Type.Title, "bug") {
			set.Defects = append(set.Defects, issue)
		} else {
			set.Tasks = append(set.Tasks, issue)
		}
	}

	if len(packages) > 0 {
		progress := done / len(packages)
		set.Project = &adapter.NativeProject{ID: identifier, Progress: &progress}
	}
	return set, nil
}

// fetchAll walks an OpenProject collection. Offsets are 1-based page numbers.
func fetchAll[T any](ctx context.Context, a *Adapter, conn model.Connection, op, path string, base url.Values) ([]T, error) {
	var all []T
	complete := false
	for page := 1; page <= a.maxPages && !complete; page++ {
		query := url.Values{"pageSize": {strconv.Itoa(pageSize)}, "offset": {strconv.Itoa(page)}}
		for k, v := range base {
			query[k] = v
		}
		var resp collection[T]
		if err := a.client.GetJSON(ctx, a.request(conn, op, path, query), &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Embedded.Elements...)
		complete = len(resp.Embedded.Elements) == 0 || len(all) >= resp.Total
	}
	if !complete {
		return nil, adapter.NewPageLimitError(model.KindOpenProject, op, a.maxPages)
	}
	return all, nil
}
