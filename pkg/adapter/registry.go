package adapter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/harrisonrobin/nexus/pkg/model"
)

var ErrUnknownKind = errors.New("no adapter registered for tool kind")

// Registry maps tool kinds to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.ToolKind]Adapter
}

func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[model.ToolKind]Adapter)}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a. Kinds and prefixes must both be unique.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Kind()]; exists {
		return fmt.Errorf("adapter for %s already registered", a.Kind())
	}
	for _, other := range r.adapters {
		if strings.EqualFold(other.Prefix(), a.Prefix()) {
			return fmt.Errorf("prefix %s already used by %s", a.Prefix(), other.Kind())
		}
	}
	r.adapters[a.Kind()] = a
	return nil
}

func (r *Registry) Get(kind model.ToolKind) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return a, nil
}

// Kinds lists the registered tool kinds, sorted.
func (r *Registry) Kinds() []model.ToolKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]model.ToolKind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Prefixes lists the reserved id prefixes, sorted.
func (r *Registry) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prefixes := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		prefixes = append(prefixes, a.Prefix())
	}
	sort.Strings(prefixes)
	return prefixes
}

// IsReserved reports whether id starts with a registered tool prefix, ignoring case.
func (r *Registry) IsReserved(id string) bool {
	upper := strings.ToUpper(id)
	for _, p := range r.Prefixes() {
		if strings.HasPrefix(upper, strings.ToUpper(p)+"-") {
			return true
		}
	}
	return false
}
