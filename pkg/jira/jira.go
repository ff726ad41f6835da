// Package jira implements the adapter for Jira Cloud's REST API v3.
package jira

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/model"
	"github.com/harrisonrobin/nexus/pkg/util"
)

const (
	Prefix   = "JIRA"
	pageSize = 100
	// maxPages bounds pagination against servers that misreport totals.
	maxPages = 200
)

// Issue types filed as tasks. Everything else, including a missing type, is a defect.
var taskTypes = map[string]bool{
	"story":       true,
	"task":        true,
	"sub-task":    true,
	"subtask":     true,
	"epic":        true,
	"improvement": true,
	"new feature": true,
}

var Mapping = adapter.Mapping{
	Priority: map[string]model.TaskPriority{
		"highest":  model.PriorityHigh,
		"critical": model.PriorityHigh,
		"high":     model.PriorityHigh,
		"medium":   model.PriorityMedium,
		"low":      model.PriorityLow,
		"lowest":   model.PriorityLow,
	},
	Severity: map[string]model.DefectSeverity{
		"highest":  model.SeverityCritical,
		"critical": model.SeverityCritical,
		"blocker":  model.SeverityCritical,
		"high":     model.SeverityHigh,
		"medium":   model.SeverityMedium,
		"low":      model.SeverityLow,
		"lowest":   model.SeverityLow,
	},
	Status: map[string]model.TaskStatus{
		"to do":       model.TaskUpcoming,
		"open":        model.TaskUpcoming,
		"backlog":     model.TaskUpcoming,
		"in progress": model.TaskPending,
		"in review":   model.TaskPending,
		"done":        model.TaskCompleted,
		"closed":      model.TaskCompleted,
		"resolved":    model.TaskCompleted,
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
	return &Adapter{client: client, logger: logger.Named("jira"), maxPages: maxPages}
}

func (a *Adapter) Kind() model.ToolKind { return model.KindJira }
func (a *Adapter) Prefix() string       { return Prefix }

type user struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

type project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

type searchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []issue `json:"issues"`
}

type issue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary   string  `json:"summary"`
		IssueType *named  `json:"issuetype"`
		Priority  *named  `json:"priority"`
		Status    *named  `json:"status"`
		Created   string  `json:"created"`
		DueDate   string  `json:"duedate"`
		Assignee  *person `json:"assignee"`
	} `json:"fields"`
}

type named struct {
	Name string `json:"name"`
}

type person struct {
	DisplayName string `json:"displayName"`
}

func (n *named) name() string {
	if n == nil {
		return ""
	}
	return n.Name
}

func validate(conn model.Connection) error {
	if conn.BaseURL == "" || conn.Principal == "" || conn.APIKey == "" {
		return errors.New("Jira configuration is incomplete: URL, username and API key are required")
	}
	return nil
}

func (a *Adapter) request(conn model.Connection, op, path string, query url.Values) adapter.Request {
	return adapter.Request{
		Tool:      model.KindJira,
		Op:        op,
		URL:       adapter.JoinURL(conn.BaseURL, path),
		Query:     query,
		Principal: conn.Principal,
		Secret:    conn.APIKey,
	}
}

func (a *Adapter) TestConnection(ctx context.Context, conn model.Connection) adapter.Probe {
	if err := validate(conn); err != nil {
		return adapter.Probe{OK: false, Detail: err.Error()}
	}
	var me user
	if err := a.client.GetJSON(ctx, a.request(conn, "probe", "/rest/api/3/myself", nil), &me); err != nil {
		return adapter.ProbeFrom(err, "")
	}
	return adapter.Probe{OK: true, Detail: "authenticated as " + util.FirstNonEmpty(me.DisplayName, me.AccountID, conn.Principal)}
}

func (a *Adapter) ListProjects(ctx context.Context, conn model.Connection) ([]adapter.NativeProject, error) {
	if err := validate(conn); err != nil {
		return nil, adapter.NewAuthError(model.KindJira, "list projects", 0, err)
	}
	var projects []project
	if err := a.client.GetJSON(ctx, a.request(conn, "list projects", "/rest/api/3/project", nil), &projects); err != nil {
		return nil, err
	}

	out := make([]adapter.NativeProject, 0, len(projects))
	for _, p := range projects {
		if p.ID == "" {
			return nil, adapter.NewProtocolError(model.KindJira, "list projects", 200, fmt.Errorf("project %q has no id", p.Name))
		}
		out = append(out, adapter.NativeProject{ID: p.ID, Key: p.Key, Name: p.Name})
	}
	return out, nil
}

func (a *Adapter) ListIssues(ctx context.Context, conn model.Connection, projectRef string) (adapter.IssueSet, error) {
	if err := validate(conn); err != nil {
		return adapter.IssueSet{}, adapter.NewAuthError(model.KindJira, "list issues", 0, err)
	}

	var set adapter.IssueSet
	startAt := 0
	complete := false
	for page := 0; page < a.maxPages && !complete; page++ {
		query := url.Values{
			"jql":        {fmt.Sprintf("project=%s ORDER BY created DESC", projectRef)},
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(pageSize)},
			"fields":     {"summary,issuetype,priority,status,created,duedate,assignee"},
		}
		var resp searchResponse
		if err := a.client.GetJSON(ctx, a.request(conn, "list issues", "/rest/api/3/search", query), &resp); err != nil {
			return adapter.IssueSet{}, err
		}

		for _, is := range resp.Issues {
			mapped, isTask := mapIssue(is)
			if isTask {
				set.Tasks = append(set.Tasks, mapped)
			} else {
				set.Defects = append(set.Defects, mapped)
			}
		}

		startAt += len(resp.Issues)
		complete = len(resp.Issues) == 0 || startAt >= resp.Total
	}
	if !complete {
		return adapter.IssueSet{}, adapter.NewPageLimitError(model.KindJira, "list issues", a.maxPages)
	}

	a.logger.Debug("fetched issues",
		zap.String("project", projectRef),
		zap.Int("tasks", len(set.Tasks)),
		zap.Int("defects", len(set.Defects)))
	return set, nil
}

func mapIssue(is issue) (adapter.Issue, bool) {
	f := is.Fields
	out := adapter.Issue{
		NativeID: is.ID,
		Title:    f.Summary,
		Status:   Mapping.TaskStatus(f.Status.name()),
		Priority: Mapping.TaskPriority(f.Priority.name()),
		Severity: Mapping.DefectSeverity(f.Priority.name()),
		Due:      util.ParseOptionalTimestamp(f.DueDate),
	}
	if created, err := util.ParseTimestamp(f.Created); err == nil {
		out.Created = created
	}
	if f.Assignee != nil {
		out.Assignee = f.Assignee.DisplayName
	}
	return out, taskTypes[strings.ToLower(f.IssueType.name())]
}
