package store

import (
	"fmt"
	"maps"
	"slices"

	"github.com/Layouwen/vuex-study/internal/reactive"
)

// Getters is the read-only view of a store's derived values.
//
// Each getter is a memoized derivation over the live state: it is computed on
// first read and recomputed only after a field it read has changed.
type Getters struct {
	store   *Store
	derived map[string]reactive.Derivation
}

func newGetters(s *Store, defs map[string]Getter) *Getters {
	g := &Getters{
		store:   s,
		derived: make(map[string]reactive.Derivation, len(defs)),
	}
	for name, fn := range defs {
		fn := fn
		g.derived[name] = s.state.Derive(func(f reactive.Fields) any {
			return fn(f)
		})
	}
	return g
}

// Get returns the current value of the named getter.
func (g *Getters) Get(name string) (any, error) {
	d, ok := g.derived[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGetter, name)
	}
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	return d.Value(), nil
}

// Set always fails: getters cannot be assigned.
func (g *Getters) Set(name string, value any) error {
	return &ImmutablePropertyError{Property: name}
}

// Names returns the getter names, sorted.
func (g *Getters) Names() []string {
	return slices.Sorted(maps.Keys(g.derived))
}

// Has reports whether name is a registered getter.
func (g *Getters) Has(name string) bool {
	_, ok := g.derived[name]
	return ok
}

// Evaluations reports how many times the named getter has been computed.
// Returns 0 for unknown names.
func (g *Getters) Evaluations(name string) int {
	d, ok := g.derived[name]
	if !ok {
		return 0
	}
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	return d.Evaluations()
}

// All evaluates every getter and returns the values by name.
func (g *Getters) All() map[string]any {
	out := make(map[string]any, len(g.derived))
	for _, name := range g.Names() {
		v, _ := g.Get(name)
		out[name] = v
	}
	return out
}

// Value returns the named getter converted to T.
func Value[T any](g *Getters, name string) (T, error) {
	var zero T
	v, err := g.Get(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("getter %s: value of type %T is not %T", name, v, zero)
	}
	return t, nil
}
