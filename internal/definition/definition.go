package definition

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"cuelang.org/go/cue/token"

	"github.com/Layouwen/vuex-study/internal/store"
)

// Definition is one compiled store definition.
type Definition struct {
	Name      string
	State     map[string]any
	Mutations map[string]*Mutation
	Actions   map[string]*Action
	Getters   map[string]*Expr
	Pos       token.Pos
}

// Mutation assigns fields from expressions. Every expression sees the state as it
// was before the mutation; assignments are applied in field name order.
type Mutation struct {
	Set map[string]*Expr
}

// Action is a list of steps run when the action is dispatched.
type Action struct {
	Steps []Step
}

// Step commits a mutation or dispatches an action, optionally after a delay.
// Delays count from dispatch time, so steps with delays fire in expiry order.
type Step struct {
	Delay    time.Duration
	Commit   string
	Dispatch string
	// Payload is evaluated when the step runs. Nil forwards the action payload.
	Payload *Expr
	// When skips the step unless it evaluates to true.
	When *Expr
}

// Options builds the store options for d. The returned handlers share d's
// compiled expressions, which are safe for concurrent use.
func (d *Definition) Options() store.Options {
	opts := store.Options{
		State:     maps.Clone(d.State),
		Mutations: make(map[string]store.Mutation, len(d.Mutations)),
		Actions:   make(map[string]store.Action, len(d.Actions)),
		Getters:   make(map[string]store.Getter, len(d.Getters)),
	}
	for name, m := range d.Mutations {
		opts.Mutations[name] = m.handler()
	}
	for name, a := range d.Actions {
		opts.Actions[name] = a.handler()
	}
	for name, g := range d.Getters {
		opts.Getters[name] = getter(g)
	}
	return opts
}

// MutationNames returns the mutation names, sorted.
func (d *Definition) MutationNames() []string { return slices.Sorted(maps.Keys(d.Mutations)) }

// ActionNames returns the action names, sorted.
func (d *Definition) ActionNames() []string { return slices.Sorted(maps.Keys(d.Actions)) }

// GetterNames returns the getter names, sorted.
func (d *Definition) GetterNames() []string { return slices.Sorted(maps.Keys(d.Getters)) }

// handler evaluates every assignment first and then applies them. An expression
// failure panics with *EvalError before any field is written.
func (m *Mutation) handler() store.Mutation {
	fields := slices.Sorted(maps.Keys(m.Set))
	return func(st store.State, payload any) {
		values := make([]any, len(fields))
		for i, f := range fields {
			v, err := m.Set[f].Eval(st, payload)
			if err != nil {
				panic(err)
			}
			values[i] = v
		}
		for i, f := range fields {
			st.Set(f, values[i])
		}
	}
}

func (a *Action) handler() store.Action {
	return func(s *store.Store, payload any) error {
		for i, step := range a.Steps {
			if step.Delay <= 0 {
				if err := step.run(s, payload); err != nil {
					return fmt.Errorf("step %d: %w", i, err)
				}
				continue
			}
			step, i := step, i
			s.After(step.Delay, func() error {
				if err := step.run(s, payload); err != nil {
					return fmt.Errorf("step %d: %w", i, err)
				}
				return nil
			})
		}
		return nil
	}
}

func (st Step) run(s *store.Store, actionPayload any) error {
	state := s.State()
	fields := stateView(state)

	if st.When != nil {
		ok, err := st.When.Eval(fields, actionPayload)
		if err != nil {
			return err
		}
		if b, _ := ok.(bool); !b {
			return nil
		}
	}

	payload := actionPayload
	if st.Payload != nil {
		v, err := st.Payload.Eval(fields, actionPayload)
		if err != nil {
			return err
		}
		payload = v
	}

	if st.Commit != "" {
		return s.Commit(st.Commit, payload)
	}
	return s.Dispatch(st.Dispatch, payload)
}

func getter(e *Expr) store.Getter {
	return func(st store.State) any {
		v, err := e.Eval(st, nil)
		if err != nil {
			panic(err)
		}
		return v
	}
}

// stateView is a read-only store.State over a snapshot, used by action steps which
// run outside the store lock.
type stateView map[string]any

func (v stateView) Get(key string) any { return v[key] }

func (v stateView) Lookup(key string) (any, bool) {
	val, ok := v[key]
	return val, ok
}

func (v stateView) Set(key string, value any) {
	panic(fmt.Sprintf("state is read-only in action steps (set %q)", key))
}

func (v stateView) Keys() []string { return slices.Sorted(maps.Keys(v)) }
