package reactive

// Fields is the read/write view of state handed to mutation handlers and getters.
type Fields interface {
	// Get returns the field value, or nil if the field does not exist.
	Get(key string) any
	// Lookup returns the field value and whether it exists.
	Lookup(key string) (any, bool)
	// Set assigns a field, creating it if needed.
	Set(key string, value any)
	// Keys returns field names in sorted order.
	Keys() []string
}

// Change describes one field assignment that altered the state.
type Change struct {
	Key     string
	Old     any
	New     any
	Created bool
	Version uint64
}

// Derivation is a cached value computed from state.
type Derivation interface {
	// Value returns the cached result, recomputing it first if any field it read
	// has changed since the last computation.
	Value() any
	// Evaluations reports how many times the derivation function has run.
	Evaluations() int
}

// Container is the contract the store needs from an observable state implementation.
type Container interface {
	Fields
	// Snapshot returns a shallow copy of every field.
	Snapshot() map[string]any
	// Derive registers a memoized derivation over the live state.
	Derive(fn func(Fields) any) Derivation
	// Subscribe registers fn for every Change. The returned function unsubscribes.
	Subscribe(fn func(Change)) (cancel func())
}

// Factory builds a Container from initial field values.
type Factory func(initial map[string]any) Container

// NewContainer is the default Factory.
func NewContainer(initial map[string]any) Container {
	return New(initial)
}

var (
	_ Container  = (*State)(nil)
	_ Derivation = (*Computed)(nil)
	_ Factory    = NewContainer
)
