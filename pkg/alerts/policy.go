package alerts

import (
	"fmt"

	"github.com/harrisonrobin/nexus/pkg/config"
	"github.com/harrisonrobin/nexus/pkg/model"
)

// Policy selects which new items raise alerts.
type Policy struct {
	DefectSeverities map[model.DefectSeverity]bool
	TaskPriorities   map[model.TaskPriority]bool
}

func NewPolicy(cfg config.AlertsConfig) (Policy, error) {
	p := Policy{
		DefectSeverities: make(map[model.DefectSeverity]bool),
		TaskPriorities:   make(map[model.TaskPriority]bool),
	}
	for _, s := range cfg.DefectSeverities {
		sev, ok := model.ParseSeverity(s)
		if !ok {
			return Policy{}, fmt.Errorf("unknown defect severity %q", s)
		}
		p.DefectSeverities[sev] = true
	}
	for _, s := range cfg.TaskPriorities {
		pri, ok := model.ParsePriority(s)
		if !ok {
			return Policy{}, fmt.Errorf("unknown task priority %q", s)
		}
		p.TaskPriorities[pri] = true
	}
	return p, nil
}
