// Package store implements a single source of truth with synchronous mutations,
// actions and memoized getters.
//
// A store is built from Options:
//
//	s, err := store.New(store.Options{
//	    State: map[string]any{"name": "layouwen", "age": 100},
//	    Mutations: map[string]store.Mutation{
//	        "changeName": func(st store.State, p any) { st.Set("name", p) },
//	    },
//	    Actions: map[string]store.Action{
//	        "changeAge": func(s *store.Store, p any) error {
//	            s.After(2*time.Second, func() error { return s.Commit("changeAge", p) })
//	            return nil
//	        },
//	    },
//	    Getters: map[string]store.Getter{
//	        "info": func(st store.State) any {
//	            return fmt.Sprintf("我叫%v，今年%v", st.Get("name"), st.Get("age"))
//	        },
//	    },
//	})
//
// Commit runs a mutation synchronously. Dispatch runs an action, which may
// schedule delayed work with After; that work runs as a task on the store loop,
// so someone must call Run (or Drain) for it to execute.
//
// Unknown mutation and action names never panic: they are logged, reported to
// the Observer once and returned as *RuntimeError.
//
// The observable container is injected with WithContainer. Stores are handed to
// the code that needs them explicitly, or through a context with NewContext.
package store
