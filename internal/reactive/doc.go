// Package reactive implements the observable state container and the memoized
// derivation engine the store is built on.
//
// A State holds named fields. Every change to a field bumps a version counter and is
// delivered synchronously to subscribers. Reading a field while a derivation is being
// computed records the field and its version as a dependency:
//
//	s := reactive.New(map[string]any{"x": 1, "y": 2})
//	sum := s.Derive(func(f reactive.Fields) any {
//	    return f.Get("x").(int) + 10
//	})
//	sum.Value() // computes: 11
//	sum.Value() // cached: 11
//	s.Set("y", 3)
//	sum.Value() // still cached, "y" was never read
//	s.Set("x", 5)
//	sum.Value() // recomputes: 15
//
// The fingerprint of a cached value is the set of (field, version) pairs it read, so a
// derivation is recomputed exactly when one of those fields changed since the last run.
// Setting a field to a value deeply equal to the current one is not a change.
//
// Thread-safety: State and its derivations are not safe for concurrent use. The owner
// (the store) serialises every read and write.
package reactive
