package reactive

import (
	"maps"
	"slices"
)

// Computed is a memoized derivation bound to a State.
type Computed struct {
	state *State
	fn    func(Fields) any
	value any
	deps  map[string]uint64
	keys  bool   // last computation listed the keys
	shape uint64 // key set version seen by that listing
	valid bool
	evals int
}

// Value returns the cached value when every dependency still has the version it had
// during the last computation; otherwise it recomputes.
//
// When called from inside another derivation, the dependencies of c are forwarded to
// the outer one so it is invalidated by the same fields.
func (c *Computed) Value() any {
	if c.valid && c.fresh() {
		c.forward()
		return c.value
	}

	t := &tracker{deps: make(map[string]uint64)}
	c.valid = false
	c.evals++

	var result any
	c.state.track(t, func() {
		result = c.fn(c.state)
	})

	c.value = result
	c.deps = t.deps
	c.keys, c.shape = t.keys, t.keysShape
	c.valid = true
	c.forward()
	return result
}

func (c *Computed) forward() {
	if outer := c.state.tracker; outer != nil {
		for key, version := range c.deps {
			outer.record(key, version)
		}
		if c.keys {
			outer.recordKeys(c.shape)
		}
	}
}

// Evaluations reports how many times the derivation function ran.
func (c *Computed) Evaluations() int {
	return c.evals
}

// Dependencies returns the fields read by the last computation, sorted.
func (c *Computed) Dependencies() []string {
	return slices.Sorted(maps.Keys(c.deps))
}

func (c *Computed) fresh() bool {
	if c.keys && c.state.shape != c.shape {
		return false
	}
	for key, version := range c.deps {
		if c.state.Version(key) != version {
			return false
		}
	}
	return true
}
