// Package rally implements the adapter for Rally's Web Services API v2.0.
//
// Rally distinguishes stories (hierarchicalrequirement) from defects natively, so no
// classification rule is needed. Responses are walked with gjson because WSAPI wraps
// every payload in QueryResult or OperationResult envelopes with varying shapes.
package rally

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/model"
	"github.com/harrisonrobin/nexus/pkg/util"
)

const (
	Prefix         = "RA"
	DefaultBaseURL = "https://rally1.rallydev.com"
	apiRoot        = "/slm/webservice/v2.0"
	pageSize       = 200
	maxPages       = 100
)

var apiKeyPattern = regexp.MustCompile(`^_[A-Za-z0-9]{20,}$`)

// ValidAPIKey reports whether key has the shape of a Rally API key.
func ValidAPIKey(key string) bool {
	return apiKeyPattern.MatchString(key)
}

var Mapping = adapter.Mapping{
	Priority: map[string]model.TaskPriority{
		"resolve immediately": model.PriorityHigh,
		"high attention":      model.PriorityHigh,
		"normal":              model.PriorityMedium,
		"low":                 model.PriorityLow,
	},
	Severity: map[string]model.DefectSeverity{
		"crash/data loss": model.SeverityCritical,
		"major problem":   model.SeverityHigh,
		"minor problem":   model.SeverityMedium,
		"cosmetic":        model.SeverityLow,
	},
	Status: map[string]model.TaskStatus{
		"backlog":     model.TaskUpcoming,
		"defined":     model.TaskUpcoming,
		"submitted":   model.TaskUpcoming,
		"open":        model.TaskUpcoming,
		"in-progress": model.TaskPending,
		"fixed":       model.TaskPending,
		"completed":   model.TaskCompleted,
		"accepted":    model.TaskCompleted,
		"released":    model.TaskCompleted,
		"closed":      model.TaskCompleted,
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
	return &Adapter{client: client, logger: logger.Named("rally"), maxPages: maxPages}
}

func (a *Adapter) Kind() model.ToolKind { return model.KindRally }
func (a *Adapter) Prefix() string       { return Prefix }

func credentialsError(conn model.Connection) error {
	if conn.APIKey != "" {
		if !ValidAPIKey(conn.APIKey) {
			return errors.New("Rally API key has an invalid format")
		}
		return nil
	}
	if conn.Principal == "" || conn.Password == "" {
		return errors.New("Rally configuration is incomplete: API key or username and password are required")
	}
	return nil
}

func (a *Adapter) request(conn model.Connection, op, path string, query url.Values) adapter.Request {
	req := adapter.Request{
		Tool:  model.KindRally,
		Op:    op,
		URL:   adapter.JoinURL(util.FirstNonEmpty(conn.BaseURL, DefaultBaseURL), apiRoot+path),
		Query: query,
	}
	if conn.APIKey != "" {
		req.Header = http.Header{"Zsessionid": {conn.APIKey}}
	} else {
		req.Principal = conn.Principal
		req.Secret = conn.Password
	}
	return req
}

// get fetches path and checks the envelope's Errors array.
func (a *Adapter) get(ctx context.Context, conn model.Connection, op, path string, query url.Values, envelope string) ([]byte, error) {
	body, err := a.client.Get(ctx, a.request(conn, op, path, query))
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, adapter.NewProtocolError(model.KindRally, op, http.StatusOK, errors.New("response is not valid JSON"))
	}
	if !gjson.GetBytes(body, envelope).Exists() {
		return nil, adapter.NewProtocolError(model.KindRally, op, http.StatusOK, fmt.Errorf("response has no %s", envelope))
	}

	var msgs []string
	for _, e := range gjson.GetBytes(body, envelope+".Errors").Array() {
		msgs = append(msgs, e.String())
	}
	if len(msgs) > 0 {
		joined := errors.New(strings.Join(msgs, "; "))
		lower := strings.ToLower(joined.Error())
		if strings.Contains(lower, "auth") || strings.Contains(lower, "credentials") {
			return nil, adapter.NewAuthError(model.KindRally, op, http.StatusOK, joined)
		}
		return nil, adapter.NewProtocolError(model.KindRally, op, http.StatusOK, joined)
	}
	return body, nil
}

func (a *Adapter) TestConnection(ctx context.Context, conn model.Connection) adapter.Probe {
	if err := credentialsError(conn); err != nil {
		return adapter.Probe{OK: false, Detail: err.Error()}
	}
	if _, err := a.get(ctx, conn, "probe", "/security/authorize", nil, "OperationResult"); err != nil {
		return adapter.ProbeFrom(err, "")
	}
	if conn.APIKey != "" {
		return adapter.Probe{OK: true, Detail: "authorized with API key"}
	}
	return adapter.Probe{OK: true, Detail: "authorized as " + conn.Principal}
}

// query pages through a WSAPI collection and returns every result.
func (a *Adapter) query(ctx context.Context, conn model.Connection, op, path string, params url.Values) ([]gjson.Result, error) {
	var results []gjson.Result
	start := 1
	complete := false
	for page := 0; page < a.maxPages && !complete; page++ {
		q := url.Values{"start": {strconv.Itoa(start)}, "pagesize": {strconv.Itoa(pageSize)}}
		for k, v := range params {
			q[k] = v
		}
		body, err := a.get(ctx, conn, op, path, q, "QueryResult")
		if err != nil {
			return nil, err
		}
		batch := gjson.GetBytes(body, "QueryResult.Results").Array()
		results = append(results, batch...)
		total := int(gjson.GetBytes(body, "QueryResult.TotalResultCount").Int())
		start += len(batch)
		complete = len(batch) == 0 || len(results) >= total
	}
	if !complete {
		return nil, adapter.NewPageLimitError(model.KindRally, op, a.maxPages)
	}
	return results, nil
}

func (a *Adapter) ListProjects(ctx context.Context, conn model.Connection) ([]adapter.NativeProject, error) {
	if err := credentialsError(conn); err != nil {
		return nil, adapter.NewAuthError(model.KindRally, "list projects", 0, err)
	}
	results, err := a.query(ctx, conn, "list projects", "/project", url.Values{"fetch": {"ObjectID,Name,State"}})
	if err != nil {
		return nil, err
	}

	out := make([]adapter.NativeProject, 0, len(results))
	for _, r := range results {
		id := r.Get("ObjectID").String()
		if id == "" {
			return nil, adapter.NewProtocolError(model.KindRally, "list projects", http.StatusOK, fmt.Errorf("project %q has no ObjectID", r.Get("Name").String()))
		}
		if strings.EqualFold(r.Get("State").String(), "closed") {
			continue
		}
		out = append(out, adapter.NativeProject{ID: id, Name: r.Get("Name").String()})
	}
	return out, nil
}

func (a *Adapter) ListIssues(ctx context.Context, conn model.Connection, projectRef string) (adapter.IssueSet, error) {
	if err := credentialsError(conn); err != nil {
		return adapter.IssueSet{}, adapter.NewAuthError(model.KindRally, "list issues", 0, err)
	}
	scope := url.Values{
		"query":            {fmt.Sprintf("(Project.ObjectID = %s)", projectRef)},
		"projectScopeDown": {"false"},
	}

	storyParams := url.Values{"fetch": {"ObjectID,FormattedID,Name,ScheduleState,CreationDate,Owner"}}
	defectParams := url.Values{"fetch": {"ObjectID,FormattedID,Name,State,Severity,Priority,CreationDate,TargetDate,Owner"}}
	for k, v := range scope {
		storyParams[k] = v
		defectParams[k] = v
	}

	stories, err := a.query(ctx, conn, "list stories", "/hierarchicalrequirement", storyParams)
	if err != nil {
		return adapter.IssueSet{}, err
	}
	defects, err := a.query(ctx, conn, "list defects", "/defect", defectParams)
	if err != nil {
		return adapter.IssueSet{}, err
	}

	var set adapter.IssueSet
	for _, r := range stories {
		issue := mapCommon(r)
		issue.Status = Mapping.TaskStatus(r.Get("ScheduleState").String())
		issue.Priority = model.PriorityMedium
		set.Tasks = append(set.Tasks, issue)
	}
	for _, r := range defects {
		issue := mapCommon(r)
		issue.Status = Mapping.TaskStatus(r.Get("State").String())
		issue.Severity = Mapping.DefectSeverity(r.Get("Severity").String())
		issue.Priority = Mapping.TaskPriority(r.Get("Priority").String())
		issue.Due = util.ParseOptionalTimestamp(r.Get("TargetDate").String())
		set.Defects = append(set.Defects, issue)
	}
	return set, nil
}

func mapCommon(r gjson.Result) adapter.Issue {
	issue := adapter.Issue{
		NativeID: util.FirstNonEmpty(r.Get("FormattedID").String(), r.Get("ObjectID").String()),
		Title:    r.Get("Name").String(),
		Assignee: r.Get("Owner._refObjectName").String(),
	}
	if created, err := util.ParseTimestamp(r.Get("CreationDate").String()); err == nil {
		issue.Created = created
	}
	return issue
}
