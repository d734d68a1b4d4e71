package harness

import "fmt"

// TraceEvent is one store event as seen by the harness.
type TraceEvent struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Key     string `json:"key,omitempty"`
	Payload any    `json:"payload,omitempty"`
	Seq     int64  `json:"seq"`
}

// Label returns "kind:name", the form used by trace assertions.
func (e TraceEvent) Label() string {
	return fmt.Sprintf("%s:%s", e.Kind, e.Name)
}

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every step and assertion succeeded.
	Pass bool `json:"pass"`

	// Trace holds every store event in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds step and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// AsyncErrors holds errors returned by delayed work. They do not fail the scenario.
	AsyncErrors []string `json:"async_errors,omitempty"`

	// State is the final state.
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
