package model

import "strings"

type ProjectStatus string

const (
	ProjectOnTrack        ProjectStatus = "OnTrack"
	ProjectNeedsAttention ProjectStatus = "NeedsAttention"
	ProjectAtRisk         ProjectStatus = "AtRisk"
)

// Project is a tracked project, either discovered through a tool or created by hand.
// Tool-backed projects have id {prefix}-{sourceRef}.
type Project struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Kind         ToolKind      `json:"tool,omitempty"`
	SourceRef    string        `json:"sourceRef,omitempty"`
	Key          string        `json:"key,omitempty"`
	ConnectionID string        `json:"connectionId,omitempty"`
	VendorRef    string        `json:"vendorId,omitempty"`
	Status       ProjectStatus `json:"status"`
	Progress     int           `json:"progress"`
}

// Synced reports whether the project is backed by an external tool.
func (p Project) Synced() bool {
	return p.Kind != "" && p.SourceRef != ""
}

// Prefix returns the tool prefix of a synced project's id, or "" for a manual project.
func (p Project) Prefix() string {
	if !p.Synced() {
		return ""
	}
	prefix, ok := strings.CutSuffix(p.ID, "-"+p.SourceRef)
	if !ok {
		return ""
	}
	return prefix
}

// HealthFor derives a project status from its completion percentage.
func HealthFor(progress int) ProjectStatus {
	switch {
	case progress >= 60:
		return ProjectOnTrack
	case progress >= 30:
		return ProjectNeedsAttention
	default:
		return ProjectAtRisk
	}
}

// ClampProgress bounds p to [0,100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
