// Package trello implements the adapter for Trello boards.
//
// Boards are projects. Cards labelled Bug or Defect are defects, all others are tasks.
package trello

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/model"
	"github.com/harrisonrobin/nexus/pkg/util"
)

const (
	Prefix         = "TR"
	DefaultBaseURL = "https://api.trello.com"
)

var defectLabels = map[string]bool{"bug": true, "defect": true}

var Mapping = adapter.Mapping{
	Priority: map[string]model.TaskPriority{
		"critical": model.PriorityHigh,
		"high":     model.PriorityHigh,
		"medium":   model.PriorityMedium,
		"low":      model.PriorityLow,
	},
	Severity: map[string]model.DefectSeverity{
		"critical": model.SeverityCritical,
		"high":     model.SeverityHigh,
		"medium":   model.SeverityMedium,
		"low":      model.SeverityLow,
	},
	Status: map[string]model.TaskStatus{
		"to do":       model.TaskUpcoming,
		"todo":        model.TaskUpcoming,
		"backlog":     model.TaskUpcoming,
		"doing":       model.TaskPending,
		"in progress": model.TaskPending,
		"review":      model.TaskPending,
		"done":        model.TaskCompleted,
	},
}

type Adapter struct {
	client *adapter.Client
	logger *zap.Logger
}

func New(client *adapter.Client, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: client, logger: logger.Named("trello")}
}

func (a *Adapter) Kind() model.ToolKind { return model.KindTrello }
func (a *Adapter) Prefix() string       { return Prefix }

type member struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Username string `json:"username"`
}

type board struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ShortURL string `json:"shortUrl"`
	Closed   bool   `json:"closed"`
}

type list struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Closed bool   `json:"closed"`
}

type label struct {
	Name string `json:"name"`
}

type card struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	IDList      string   `json:"idList"`
	Closed      bool     `json:"closed"`
	Due         string   `json:"due"`
	DueComplete bool     `json:"dueComplete"`
	Labels      []label  `json:"labels"`
	Members     []member `json:"members"`
}

func validate(conn model.Connection) error {
	if conn.Principal == "" || conn.APIKey == "" {
		return errors.New("Trello configuration is incomplete: API key (username) and token are required")
	}
	return nil
}

func (a *Adapter) request(conn model.Connection, op, path string, extra url.Values) adapter.Request {
	base := util.FirstNonEmpty(conn.BaseURL, DefaultBaseURL)
	query := url.Values{"key": {conn.Principal}, "token": {conn.APIKey}}
	for k, v := range extra {
		query[k] = v
	}
	return adapter.Request{
		Tool:      model.KindTrello,
		Op:        op,
		URL:       adapter.JoinURL(base, path),
		Query:     query,
		Principal: conn.Principal,
		Secret:    conn.APIKey,
	}
}

func (a *Adapter) TestConnection(ctx context.Context, conn model.Connection) adapter.Probe {
	if err := validate(conn); err != nil {
		return adapter.Probe{OK: false, Detail: err.Error()}
	}
	var me member
	if err := a.client.GetJSON(ctx, a.request(conn, "probe", "/1/members/me", nil), &me); err != nil {
		return adapter.ProbeFrom(err, "")
	}
	return adapter.Probe{OK: true, Detail: "authenticated as " + util.FirstNonEmpty(me.FullName, me.Username, me.ID)}
}

func (a *Adapter) ListProjects(ctx context.Context, conn model.Connection) ([]adapter.NativeProject, error) {
	if err := validate(conn); err != nil {
		return nil, adapter.NewAuthError(model.KindTrello, "list boards", 0, err)
	}
	var boards []board
	if err := a.client.GetJSON(ctx, a.request(conn, "list boards", "/1/members/me/boards", url.Values{"filter": {"open"}}), &boards); err != nil {
		return nil, err
	}

	out := make([]adapter.NativeProject, 0, len(boards))
	for _, b := range boards {
		if b.Closed {
			continue
		}
		out = append(out, adapter.NativeProject{ID: b.ID, Name: b.Name})
	}
	return out, nil
}

func (a *Adapter) ListIssues(ctx context.Context, conn model.Connection, boardID string) (adapter.IssueSet, error) {
	if err := validate(conn); err != nil {
		return adapter.IssueSet{}, adapter.NewAuthError(model.KindTrello, "list cards", 0, err)
	}

	var lists []list
	if err := a.client.GetJSON(ctx, a.request(conn, "list lists", "/1/boards/"+url.PathEscape(boardID)+"/lists", nil), &lists); err != nil {
		return adapter.IssueSet{}, err
	}
	listNames := make(map[string]string, len(lists))
	for _, l := range lists {
		listNames[l.ID] = l.Name
	}

	var cards []card
	query := url.Values{"filter": {"all"}, "members": {"true"}}
	if err := a.client.GetJSON(ctx, a.request(conn, "list cards", "/1/boards/"+url.PathEscape(boardID)+"/cards", query), &cards); err != nil {
		return adapter.IssueSet{}, err
	}

	var set adapter.IssueSet
	for _, c := range cards {
		issue, isDefect := mapCard(c, listNames[c.IDList])
		if isDefect {
			set.Defects = append(set.Defects, issue)
		} else {
			set.Tasks = append(set.Tasks, issue)
		}
	}
	a.logger.Debug("fetched cards",
		zap.String("board", boardID),
		zap.Int("tasks", len(set.Tasks)),
		zap.Int("defects", len(set.Defects)))
	return set, nil
}

func mapCard(c card, listName string) (adapter.Issue, bool) {
	isDefect := false
	level := ""
	for _, l := range c.Labels {
		name := strings.ToLower(strings.TrimSpace(l.Name))
		if defectLabels[name] {
			isDefect = true
			continue
		}
		if _, ok := Mapping.Severity[name]; ok && level == "" {
			level = name
		}
	}

	status := Mapping.TaskStatus(listName)
	if c.Closed || c.DueComplete {
		status = model.TaskCompleted
	}

	issue := adapter.Issue{
		NativeID: c.ID,
		Title:    c.Name,
		Status:   status,
		Priority: Mapping.TaskPriority(level),
		Severity: Mapping.DefectSeverity(level),
		Created:  CreatedAt(c.ID),
		Due:      util.ParseOptionalTimestamp(c.Due),
	}
	if len(c.Members) > 0 {
		issue.Assignee = util.FirstNonEmpty(c.Members[0].FullName, c.Members[0].Username)
	}
	return issue, isDefect
}

// CreatedAt decodes the creation time embedded in a Trello object id: the first
// eight hex digits are a Unix timestamp. Malformed ids give the zero time.
func CreatedAt(id string) time.Time {
	if len(id) < 8 {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(id[:8], 16, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
