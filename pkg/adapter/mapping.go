package adapter

import (
	"strings"

	"github.com/harrisonrobin/nexus/pkg/model"
)

// Mapping translates native priority and status values into canonical enums.
// Lookups ignore case and surrounding space. Unmapped values fall back to
// Medium priority, Medium severity and Upcoming status.
type Mapping struct {
	Priority map[string]model.TaskPriority
	Severity map[string]model.DefectSeverity
	Status   map[string]model.TaskStatus
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (m Mapping) TaskPriority(native string) model.TaskPriority {
	if p, ok := m.Priority[normalize(native)]; ok {
		return p
	}
	return model.PriorityMedium
}

func (m Mapping) DefectSeverity(native string) model.DefectSeverity {
	if s, ok := m.Severity[normalize(native)]; ok {
		return s
	}
	return model.SeverityMedium
}

func (m Mapping) TaskStatus(native string) model.TaskStatus {
	if s, ok := m.Status[normalize(native)]; ok {
		return s
	}
	return model.TaskUpcoming
}
