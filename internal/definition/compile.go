package definition

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"

	"github.com/Layouwen/vuex-study/internal/snapshot"
)

// Compile parses one store definition. v is the store struct itself, e.g. the value
// at path store.counter; the name is taken from the last path selector.
//
// References between steps and mutations/actions are checked here, so a compiled
// definition never dispatches to a missing name.
func Compile(v cue.Value) (*Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	d := &Definition{
		State:     map[string]any{},
		Mutations: map[string]*Mutation{},
		Actions:   map[string]*Action{},
		Getters:   map[string]*Expr{},
		Pos:       v.Pos(),
	}
	if sels := v.Path().Selectors(); len(sels) > 0 {
		d.Name = sels[len(sels)-1].String()
	}

	var err error
	if d.State, err = parseState(v); err != nil {
		return nil, err
	}
	if d.Mutations, err = parseMutations(v); err != nil {
		return nil, err
	}
	if d.Actions, err = parseActions(v); err != nil {
		return nil, err
	}
	if d.Getters, err = parseGetters(v); err != nil {
		return nil, err
	}
	if err := checkReferences(v, d); err != nil {
		return nil, err
	}
	return d, nil
}

func parseState(v cue.Value) (map[string]any, error) {
	state := map[string]any{}
	sv := v.LookupPath(cue.ParsePath("state"))
	if !sv.Exists() {
		return state, nil
	}
	if err := sv.Validate(cue.Concrete(true)); err != nil {
		return nil, &CompileError{Field: "state", Message: fmt.Sprintf("state must be concrete: %v", err), Pos: sv.Pos()}
	}

	iter, err := sv.Fields()
	if err != nil {
		return nil, &CompileError{Field: "state", Message: "state must be a struct", Pos: sv.Pos()}
	}
	for iter.Next() {
		data, err := iter.Value().MarshalJSON()
		if err != nil {
			return nil, formatCUEError(err)
		}
		value, err := snapshot.Decode(data)
		if err != nil {
			return nil, &CompileError{
				Field:   "state",
				Message: fmt.Sprintf("field %s: %v", iter.Label(), err),
				Pos:     iter.Value().Pos(),
			}
		}
		state[iter.Label()] = value
	}
	return state, nil
}

func parseMutations(v cue.Value) (map[string]*Mutation, error) {
	out := map[string]*Mutation{}
	mv := v.LookupPath(cue.ParsePath("mutations"))
	if !mv.Exists() {
		return out, nil
	}
	iter, err := mv.Fields()
	if err != nil {
		return nil, &CompileError{Field: "mutations", Message: "mutations must be a struct", Pos: mv.Pos()}
	}
	for iter.Next() {
		name := iter.Label()
		setVal := iter.Value().LookupPath(cue.ParsePath("set"))
		if !setVal.Exists() {
			return nil, &CompileError{
				Field:   "mutations",
				Message: fmt.Sprintf("mutation %s: set is required", name),
				Pos:     iter.Value().Pos(),
			}
		}
		fields, err := setVal.Fields()
		if err != nil {
			return nil, &CompileError{Field: "mutations.set", Message: fmt.Sprintf("mutation %s: set must be a struct", name), Pos: setVal.Pos()}
		}
		m := &Mutation{Set: map[string]*Expr{}}
		for fields.Next() {
			e, err := compileExprValue(fields.Value(), fmt.Sprintf("mutation %s: set %s", name, fields.Label()))
			if err != nil {
				return nil, err
			}
			m.Set[fields.Label()] = e
		}
		out[name] = m
	}
	return out, nil
}

func parseActions(v cue.Value) (map[string]*Action, error) {
	out := map[string]*Action{}
	av := v.LookupPath(cue.ParsePath("actions"))
	if !av.Exists() {
		return out, nil
	}
	iter, err := av.Fields()
	if err != nil {
		return nil, &CompileError{Field: "actions", Message: "actions must be a struct", Pos: av.Pos()}
	}
	for iter.Next() {
		name := iter.Label()
		stepsVal := iter.Value().LookupPath(cue.ParsePath("steps"))
		if !stepsVal.Exists() {
			return nil, &CompileError{
				Field:   "actions",
				Message: fmt.Sprintf("action %s: steps is required", name),
				Pos:     iter.Value().Pos(),
			}
		}
		list, err := stepsVal.List()
		if err != nil {
			return nil, &CompileError{Field: "actions.steps", Message: fmt.Sprintf("action %s: steps must be a list", name), Pos: stepsVal.Pos()}
		}
		a := &Action{}
		for i := 0; list.Next(); i++ {
			step, err := parseStep(list.Value(), fmt.Sprintf("action %s: step %d", name, i))
			if err != nil {
				return nil, err
			}
			a.Steps = append(a.Steps, step)
		}
		out[name] = a
	}
	return out, nil
}

func parseStep(v cue.Value, where string) (Step, error) {
	var step Step

	commit, err := optionalString(v, "commit")
	if err != nil {
		return step, err
	}
	dispatch, err := optionalString(v, "dispatch")
	if err != nil {
		return step, err
	}
	if (commit == "") == (dispatch == "") {
		return step, &CompileError{
			Field:   "actions.steps",
			Message: fmt.Sprintf("%s: exactly one of commit or dispatch is required", where),
			Pos:     v.Pos(),
		}
	}
	step.Commit, step.Dispatch = commit, dispatch

	if dv := v.LookupPath(cue.ParsePath("delay")); dv.Exists() {
		s, err := dv.String()
		if err != nil {
			return step, &CompileError{Field: "actions.steps.delay", Message: fmt.Sprintf("%s: delay must be a duration string", where), Pos: dv.Pos()}
		}
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			return step, &CompileError{Field: "actions.steps.delay", Message: fmt.Sprintf("%s: invalid delay %q", where, s), Pos: dv.Pos()}
		}
		step.Delay = d
	}

	if pv := v.LookupPath(cue.ParsePath("payload")); pv.Exists() {
		if step.Payload, err = compileExprValue(pv, where+": payload"); err != nil {
			return step, err
		}
	}
	if wv := v.LookupPath(cue.ParsePath("when")); wv.Exists() {
		if step.When, err = compileExprValue(wv, where+": when"); err != nil {
			return step, err
		}
	}
	return step, nil
}

func parseGetters(v cue.Value) (map[string]*Expr, error) {
	out := map[string]*Expr{}
	gv := v.LookupPath(cue.ParsePath("getters"))
	if !gv.Exists() {
		return out, nil
	}
	iter, err := gv.Fields()
	if err != nil {
		return nil, &CompileError{Field: "getters", Message: "getters must be a struct", Pos: gv.Pos()}
	}
	for iter.Next() {
		e, err := compileExprValue(iter.Value(), "getter "+iter.Label())
		if err != nil {
			return nil, err
		}
		out[iter.Label()] = e
	}
	return out, nil
}

func checkReferences(v cue.Value, d *Definition) error {
	for name, a := range d.Actions {
		for i, step := range a.Steps {
			if step.Commit != "" {
				if _, ok := d.Mutations[step.Commit]; !ok {
					return &CompileError{
						Field:   "actions.steps.commit",
						Message: fmt.Sprintf("action %s: step %d commits unknown mutation %s", name, i, step.Commit),
						Pos:     v.LookupPath(cue.MakePath(cue.Str("actions"), cue.Str(name))).Pos(),
					}
				}
			}
			if step.Dispatch != "" {
				if _, ok := d.Actions[step.Dispatch]; !ok {
					return &CompileError{
						Field:   "actions.steps.dispatch",
						Message: fmt.Sprintf("action %s: step %d dispatches unknown action %s", name, i, step.Dispatch),
						Pos:     v.LookupPath(cue.MakePath(cue.Str("actions"), cue.Str(name))).Pos(),
					}
				}
			}
		}
	}
	return nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: "actions.steps", Message: fmt.Sprintf("%s must be a string", field), Pos: fv.Pos()}
	}
	return s, nil
}

func compileExprValue(v cue.Value, where string) (*Expr, error) {
	src, err := v.String()
	if err != nil {
		return nil, &CompileError{Field: "expr", Message: fmt.Sprintf("%s: expression must be a string", where), Pos: v.Pos()}
	}
	e, err := CompileExpr(src)
	if err != nil {
		return nil, &CompileError{Field: "expr", Message: fmt.Sprintf("%s: %v", where, err), Pos: v.Pos()}
	}
	return e, nil
}
