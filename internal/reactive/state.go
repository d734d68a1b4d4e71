package reactive

import (
	"maps"
	"reflect"
	"slices"
)

type field struct {
	value   any
	version uint64
}

// State is the default observable container.
type State struct {
	fields  map[string]*field
	clock   uint64
	shape   uint64 // version of the key set; moves when a field is created
	tracker *tracker
	subs    map[int]func(Change)
	nextSub int
}

// New creates a State holding a shallow copy of initial.
// Initial fields start at version 1.
func New(initial map[string]any) *State {
	s := &State{
		fields: make(map[string]*field, len(initial)),
		subs:   make(map[int]func(Change)),
		clock:  1,
	}
	for k, v := range initial {
		s.fields[k] = &field{value: v, version: 1}
	}
	return s
}

// Get returns the value of key, or nil when absent.
func (s *State) Get(key string) any {
	v, _ := s.Lookup(key)
	return v
}

// Lookup returns the value of key and whether it exists.
// Inside a derivation the read is recorded, including reads of missing fields, so a
// later Set that creates the field invalidates the derivation.
func (s *State) Lookup(key string) (any, bool) {
	f, ok := s.fields[key]
	if s.tracker != nil {
		s.tracker.record(key, s.versionOf(f))
	}
	if !ok {
		return nil, false
	}
	return f.value, true
}

// Set assigns key. A value deeply equal to the current one leaves the version untouched
// and notifies nobody.
func (s *State) Set(key string, value any) {
	f, exists := s.fields[key]
	if exists && reflect.DeepEqual(f.value, value) {
		return
	}

	s.clock++
	change := Change{Key: key, New: value, Version: s.clock, Created: !exists}
	if exists {
		change.Old = f.value
		f.value = value
		f.version = s.clock
	} else {
		s.fields[key] = &field{value: value, version: s.clock}
		s.shape = s.clock
	}

	for _, id := range slices.Sorted(maps.Keys(s.subs)) {
		s.subs[id](change)
	}
}

// Keys returns every field name, sorted.
// Inside a derivation the key set itself becomes a dependency, so creating a
// field invalidates the derivation.
func (s *State) Keys() []string {
	if s.tracker != nil {
		s.tracker.recordKeys(s.shape)
	}
	return slices.Sorted(maps.Keys(s.fields))
}

// Snapshot returns a shallow copy of all fields. Not tracked.
func (s *State) Snapshot() map[string]any {
	out := make(map[string]any, len(s.fields))
	for k, f := range s.fields {
		out[k] = f.value
	}
	return out
}

// Version returns the version of key, or 0 if it does not exist.
func (s *State) Version(key string) uint64 {
	return s.versionOf(s.fields[key])
}

func (s *State) versionOf(f *field) uint64 {
	if f == nil {
		return 0
	}
	return f.version
}

// Subscribe registers fn to receive every Change, in subscription order.
func (s *State) Subscribe(fn func(Change)) (cancel func()) {
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() { delete(s.subs, id) }
}

// Derive creates a lazily computed, memoized derivation of fn.
func (s *State) Derive(fn func(Fields) any) Derivation {
	return &Computed{state: s, fn: fn}
}

// track runs fn with t as the active dependency recorder.
// The previous recorder is restored even if fn panics.
func (s *State) track(t *tracker, fn func()) {
	prev := s.tracker
	s.tracker = t
	defer func() { s.tracker = prev }()
	fn()
}

// tracker records the version of every field read during one computation,
// and the key set version when the computation listed the keys.
type tracker struct {
	deps      map[string]uint64
	keys      bool
	keysShape uint64
}

func (t *tracker) recordKeys(shape uint64) {
	if !t.keys {
		t.keys = true
		t.keysShape = shape
	}
}

func (t *tracker) record(key string, version uint64) {
	if _, seen := t.deps[key]; !seen {
		t.deps[key] = version
	}
}
