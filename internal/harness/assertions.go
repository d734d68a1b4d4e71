package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/Layouwen/vuex-study/internal/snapshot"
	"github.com/Layouwen/vuex-study/internal/store"
)

// AssertionContext carries what assertions need besides the trace.
type AssertionContext struct {
	Store *store.Store
	State map[string]any
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Seq, event.Label(), event.Payload)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertState:
		return assertState(actx.State, a)
	case AssertGetter:
		return assertGetter(actx.Store, a)
	case AssertStatePath:
		return assertStatePath(actx.State, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertEvaluations:
		return assertEvaluations(actx.Store, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertState checks that every expected field has the expected value.
// Fields not mentioned are ignored.
func assertState(state map[string]any, a Assertion) error {
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var mismatches []string
	for _, k := range keys {
		got, ok := state[k]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: missing", k))
			continue
		}
		if !valuesEqual(got, a.Expect[k]) {
			mismatches = append(mismatches, fmt.Sprintf("%s: expected %v, got %v", k, a.Expect[k], got))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("%v", a.Expect),
			Actual:   strings.Join(mismatches, "; "),
		}
	}
	return nil
}

func assertGetter(st *store.Store, a Assertion) error {
	var got any
	err := guard(func() error {
		var err error
		got, err = st.Getters().Get(a.Getter)
		return err
	})
	if err != nil {
		return &AssertionError{Type: AssertGetter, Expected: fmt.Sprintf("%s = %v", a.Getter, a.Equals), Actual: err.Error()}
	}
	if !valuesEqual(got, a.Equals) {
		return &AssertionError{
			Type:     AssertGetter,
			Expected: fmt.Sprintf("%s = %v", a.Getter, a.Equals),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// assertStatePath evaluates a JSONPath against the final state. A path matching
// several values compares the list of matches.
func assertStatePath(state map[string]any, a Assertion) error {
	x, err := jp.ParseString(a.Path)
	if err != nil {
		return fmt.Errorf("invalid path %q: %w", a.Path, err)
	}
	matches := x.Get(state)

	var got any
	switch len(matches) {
	case 0:
		return &AssertionError{Type: AssertStatePath, Expected: fmt.Sprintf("%s = %v", a.Path, a.Equals), Actual: "no match"}
	case 1:
		got = matches[0]
	default:
		got = matches
	}
	if !valuesEqual(got, a.Equals) {
		return &AssertionError{
			Type:     AssertStatePath,
			Expected: fmt.Sprintf("%s = %v", a.Path, a.Equals),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// assertTraceOrder checks that the labels appear in order. Other events may
// appear in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, e := range trace {
		if next < len(a.Events) && matchLabel(e, a.Events[next]) {
			next++
		}
	}
	if next < len(a.Events) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: strings.Join(a.Events, " -> "),
			Actual:   fmt.Sprintf("missing %s after %d matched", a.Events[next], next),
			Trace:    trace,
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, e := range trace {
		if matchLabel(e, a.Event) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s x%d", a.Event, a.Count),
			Actual:   fmt.Sprintf("x%d", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertEvaluations(st *store.Store, a Assertion) error {
	if !st.Getters().Has(a.Getter) {
		return fmt.Errorf("unknown getter %s", a.Getter)
	}
	if got := st.Getters().Evaluations(a.Getter); got != a.Count {
		return &AssertionError{
			Type:     AssertEvaluations,
			Expected: fmt.Sprintf("%s evaluated %d times", a.Getter, a.Count),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

// matchLabel matches "kind:name", or "kind" alone for any name.
func matchLabel(e TraceEvent, label string) bool {
	kind, name, hasName := strings.Cut(label, ":")
	if e.Kind != kind {
		return false
	}
	return !hasName || e.Name == name
}

// valuesEqual compares after normalising numbers and containers, so YAML ints
// match int64 state values.
func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(snapshot.Normalize(a), snapshot.Normalize(b))
}
