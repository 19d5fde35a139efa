// README: Declarative service registry with dependency-order computation.
package bootstrap

import (
	"fmt"
	"time"
)

// Registry is the declarative table of orchestrated subsystems. It is
// populated once at composition time and read-only afterwards.
type Registry struct {
	order []string
	byID  map[string]Descriptor
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]Descriptor{}}
}

// Register adds a descriptor. Registration order is the deterministic
// tie-break among services with no dependency relationship.
func (r *Registry) Register(d Descriptor) error {
	if d.ID == "" {
		return fmt.Errorf("service id must not be empty")
	}
	if d.Service == nil {
		return fmt.Errorf("service %q: initializer must not be nil", d.ID)
	}
	if _, exists := r.byID[d.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, d.ID)
	}
	if d.Name == "" {
		d.Name = d.ID
	}
	if d.Timeout <= 0 {
		d.Timeout = 10 * time.Second
	}
	r.byID[d.ID] = d
	r.order = append(r.order, d.ID)
	return nil
}

// MustRegister panics on registration errors; composition-root convenience.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Get looks up a descriptor by id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// Len reports the number of registered services.
func (r *Registry) Len() int { return len(r.order) }

// visit colors for the DFS topological sort.
const (
	colorWhite = iota // unvisited
	colorGray         // on the current DFS path
	colorBlack        // done
)

// TopologicalOrder returns ids such that every dependency precedes its
// dependents. A cycle or an unknown dependency id is a fatal configuration
// error, surfaced loudly rather than silently skipped.
func (r *Registry) TopologicalOrder() ([]string, error) {
	color := make(map[string]int, len(r.byID))
	ordered := make([]string, 0, len(r.byID))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case colorBlack:
			return nil
		case colorGray:
			return fmt.Errorf("%w: %s", ErrCircularDependency, id)
		}
		color[id] = colorGray
		d := r.byID[id]
		for _, dep := range d.DependsOn {
			if _, ok := r.byID[dep]; !ok {
				return fmt.Errorf("%w: %s (required by %s)", ErrUnknownDependency, dep, id)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = colorBlack
		ordered = append(ordered, id)
		return nil
	}

	for _, id := range r.order {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
