package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance test.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Definition is the CUE definition directory, relative to the scenario file.
	Definition string `yaml:"definition"`

	// Store selects a store from the definition. May be omitted when the
	// directory defines exactly one store.
	Store string `yaml:"store,omitempty"`

	// RunID fixes the run id stamped on events. Defaults to "test-run".
	RunID string `yaml:"run_id,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is exactly one of commit, dispatch, advance, read or check.
type Step struct {
	Commit   string `yaml:"commit,omitempty"`
	Dispatch string `yaml:"dispatch,omitempty"`

	// Advance moves virtual time forward, e.g. "2s", then runs due work.
	Advance string `yaml:"advance,omitempty"`

	// Read evaluates a getter and compares it with Expect.
	Read   string `yaml:"read,omitempty"`
	Expect any    `yaml:"expect,omitempty"`

	// Check compares a subset of the current state.
	Check map[string]any `yaml:"check,omitempty"`

	Payload any `yaml:"payload,omitempty"`

	// ExpectError requires commit/dispatch to fail with an error containing this text.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// kind returns the step's operation name.
func (s Step) kind() string {
	switch {
	case s.Commit != "":
		return "commit"
	case s.Dispatch != "":
		return "dispatch"
	case s.Advance != "":
		return "advance"
	case s.Read != "":
		return "read"
	case len(s.Check) > 0:
		return "check"
	}
	return ""
}

// Assertion validates the final state or the trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Expect is a subset of the final state (state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Getter names the getter (getter, evaluations).
	Getter string `yaml:"getter,omitempty"`

	// Path is a JSONPath into the final state (state_path).
	Path string `yaml:"path,omitempty"`

	// Equals is the expected value (getter, state_path).
	Equals any `yaml:"equals,omitempty"`

	// Events are "kind:name" labels that must appear in this order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Event is a "kind:name" label (trace_count). "kind" alone matches any name.
	Event string `yaml:"event,omitempty"`

	// Count is the expected number (trace_count, evaluations).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertState       = "state"
	AssertGetter      = "getter"
	AssertStatePath   = "state_path"
	AssertTraceOrder  = "trace_order"
	AssertTraceCount  = "trace_count"
	AssertEvaluations = "evaluations"
)

// LoadScenario reads a scenario file. The definition path is resolved relative
// to the file. Unknown YAML fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Definition != "" && !filepath.IsAbs(scenario.Definition) {
		scenario.Definition = filepath.Join(filepath.Dir(path), scenario.Definition)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and step/assertion shapes.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Definition == "" {
		return fmt.Errorf("definition is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	set := 0
	for _, v := range []string{step.Commit, step.Dispatch, step.Advance, step.Read} {
		if v != "" {
			set++
		}
	}
	if len(step.Check) > 0 {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of commit, dispatch, advance, read or check is required")
	}
	if step.Advance != "" {
		d, err := time.ParseDuration(step.Advance)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid advance duration %q", step.Advance)
		}
	}
	if step.ExpectError != "" && step.Commit == "" && step.Dispatch == "" {
		return fmt.Errorf("expect_error is only valid on commit or dispatch")
	}
	if step.Expect != nil && step.Read == "" {
		return fmt.Errorf("expect is only valid on read")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("state requires expect")
		}
	case AssertGetter:
		if a.Getter == "" {
			return fmt.Errorf("getter requires getter")
		}
	case AssertStatePath:
		if a.Path == "" {
			return fmt.Errorf("state_path requires path")
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("trace_order requires events")
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("trace_count requires event")
		}
	case AssertEvaluations:
		if a.Getter == "" {
			return fmt.Errorf("evaluations requires getter")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
