package definition

import (
	"fmt"
	"slices"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"github.com/Layouwen/vuex-study/internal/snapshot"
	"github.com/Layouwen/vuex-study/internal/store"
)

// Expr is a compiled expr-lang expression over the environment {state, payload}.
type Expr struct {
	Source string

	program *vm.Program

	// fields lists the state fields the expression reads as state.<field>.
	// wholeState is set when state is used any other way, e.g. keys(state).
	fields     []string
	wholeState bool
}

// EvalError is returned (or, from mutations, panicked with) when an expression
// fails at run time.
type EvalError struct {
	Source string
	Err    error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("eval %q: %v", e.Source, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// compileEnv fixes the names expressions may use. Values are placeholders.
var compileEnv = map[string]any{
	"state":   map[string]any{},
	"payload": nil,
}

// CompileExpr parses and type-checks src.
func CompileExpr(src string) (*Expr, error) {
	tree, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}
	program, err := expr.Compile(src, expr.Env(compileEnv))
	if err != nil {
		return nil, err
	}

	refs := &stateRefs{fields: map[string]bool{}}
	ast.Walk(&tree.Node, refs)

	fields := make([]string, 0, len(refs.fields))
	for f := range refs.fields {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	return &Expr{
		Source:     src,
		program:    program,
		fields:     fields,
		wholeState: refs.idents > refs.members,
	}, nil
}

// Fields returns the state fields the expression reads, sorted. Nil when the
// expression depends on the whole state.
func (e *Expr) Fields() []string {
	if e.wholeState {
		return nil
	}
	return e.fields
}

// Eval runs the expression against st and payload. Only the fields the expression
// refers to are read from st, so a getter built on Eval depends on exactly those.
func (e *Expr) Eval(st store.State, payload any) (any, error) {
	env := map[string]any{
		"state":   e.stateEnv(st),
		"payload": payload,
	}
	out, err := expr.Run(e.program, env)
	if err != nil {
		return nil, &EvalError{Source: e.Source, Err: err}
	}
	return snapshot.Normalize(out), nil
}

func (e *Expr) stateEnv(st store.State) map[string]any {
	keys := e.fields
	if e.wholeState {
		keys = st.Keys()
	}
	m := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := st.Lookup(k); ok {
			m[k] = v
		}
	}
	return m
}

// stateRefs collects state.<field> accesses. idents counts every use of the state
// identifier and members counts the ones that are a constant field access.
type stateRefs struct {
	fields  map[string]bool
	idents  int
	members int
}

func (r *stateRefs) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if n.Value == "state" {
			r.idents++
		}
	case *ast.MemberNode:
		id, ok := n.Node.(*ast.IdentifierNode)
		if !ok || id.Value != "state" {
			return
		}
		if prop, ok := n.Property.(*ast.StringNode); ok {
			r.fields[prop.Value] = true
			r.members++
		}
	}
}
