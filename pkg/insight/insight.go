// Package insight produces narrative project reports with a generative model.
// It reads a snapshot of one project and never sees connections or credentials.
package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/harrisonrobin/nexus/pkg/model"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("insight: no API key configured")

type Detail string

const (
	Brief    Detail = "Brief"
	Detailed Detail = "Detailed"
)

func ParseDetail(s string) (Detail, error) {
	switch strings.ToLower(s) {
	case "", "brief":
		return Brief, nil
	case "detailed":
		return Detailed, nil
	}
	return "", fmt.Errorf("unknown report detail %q", s)
}

// Snapshot is the read-only context a report is generated from.
type Snapshot struct {
	Project model.Project  `json:"project"`
	Tasks   []model.Task   `json:"tasks"`
	Defects []model.Defect `json:"defects"`
}

// NewSnapshot copies a project and its items, dropping the connection reference.
func NewSnapshot(p model.Project, tasks []model.Task, defects []model.Defect) Snapshot {
	p.ConnectionID = ""
	return Snapshot{Project: p, Tasks: tasks, Defects: defects}
}

type Request struct {
	Snapshot Snapshot
	Detail   Detail
}

type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

const systemInstruction = `You are a senior project management analyst. Generate an actionable report from the provided project data. Use Markdown headings, bullet points and bold text. Do not invent information that is not in the data.`

const briefSections = `
### 1. High-Level Summary
A two or three sentence executive summary of the project's current status.

### 2. Key Blockers
- List only Critical severity defects.
- Mention overdue High priority tasks.
`

const detailedSections = `
### 1. High-Level Summary
An executive summary of the project's current status.

### 2. Path to Completion
- Analyze progress and remaining tasks.
- Identify key risks and recommend concrete next steps.

### 3. Blocking Defects
- List Critical and High severity defects with a resolution suggestion for each.
`

// Prompt renders the user prompt for req.
func Prompt(req Request) (string, error) {
	data, err := json.MarshalIndent(req.Snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	sections := briefSections
	if req.Detail == Detailed {
		sections = detailedSections
	}

	var b strings.Builder
	b.WriteString("CONTEXT DATA:\n```json\n")
	b.Write(data)
	b.WriteString("\n```\n\n")
	fmt.Fprintf(&b, "Based on the context data above, generate a %s report with the following sections:\n", req.Detail)
	b.WriteString(sections)
	return b.String(), nil
}

// GenAI generates reports through the Gemini API.
type GenAI struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func NewGenAI(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*GenAI, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenAI{client: client, model: modelName, logger: logger.Named("insight")}, nil
}

func (g *GenAI) Generate(ctx context.Context, req Request) (string, error) {
	prompt, err := Prompt(req)
	if err != nil {
		return "", err
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0.6),
			TopP:              genai.Ptr[float32](0.95),
		})
	if err != nil {
		g.logger.Warn("report generation failed", zap.String("project", req.Snapshot.Project.ID), zap.Error(err))
		return "", fmt.Errorf("generate report: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("generate report: empty response")
	}
	return text, nil
}
