package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Layouwen/vuex-study/internal/definition"
	"github.com/Layouwen/vuex-study/internal/snapshot"
	"github.com/Layouwen/vuex-study/internal/store"
	"github.com/Layouwen/vuex-study/internal/testutil"
)

// DefaultRunID is stamped on events when a scenario does not set run_id.
const DefaultRunID = "test-run"

// Harness executes one scenario against a fresh store.
type Harness struct {
	store  *store.Store
	sched  *testutil.ManualScheduler
	logger *slog.Logger

	mu    sync.Mutex
	trace []TraceEvent
	async []string
}

// Option configures Run.
type Option func(*config)

type config struct {
	logger    *slog.Logger
	observers []store.Observer
}

// WithLogger sets the logger passed to the store. Defaults to discarding output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver adds an observer next to the harness recorder, e.g. a trace.Log.
func WithObserver(o store.Observer) Option {
	return func(c *config) {
		c.observers = append(c.observers, o)
	}
}

// Run executes a scenario and returns its result. The error is non-nil only when
// the scenario could not be set up (bad definition, unknown store); step and
// assertion failures are reported in the Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := &config{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(cfg)
	}

	def, err := selectDefinition(scenario)
	if err != nil {
		return nil, err
	}

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}

	h := &Harness{
		sched:  testutil.NewManualScheduler(),
		logger: cfg.logger,
	}
	observers := append([]store.Observer{store.ObserverFunc(h.record)}, cfg.observers...)

	st, err := store.New(def.Options(),
		store.WithScheduler(h.sched),
		store.WithObserver(store.NewMultiObserver(observers...)),
		store.WithLogger(cfg.logger),
		store.WithRunID(runID),
		store.WithErrorHandler(h.asyncError),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()
	h.store = st

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step); err != nil {
			result.AddError(fmt.Sprintf("step %d (%s): %v", i, step.kind(), err))
		}
	}

	h.mu.Lock()
	result.Trace = append(result.Trace, h.trace...)
	result.AsyncErrors = append(result.AsyncErrors, h.async...)
	h.mu.Unlock()
	result.State = normalizeState(st.State())

	actx := &AssertionContext{Store: st, State: result.State}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func selectDefinition(scenario *Scenario) (*definition.Definition, error) {
	defs, err := definition.LoadDir(scenario.Definition)
	if err != nil {
		return nil, fmt.Errorf("failed to load definition: %w", err)
	}
	if scenario.Store == "" {
		if len(defs) != 1 {
			return nil, fmt.Errorf("definition has %d stores; scenario must name one", len(defs))
		}
		return defs[0], nil
	}
	for _, d := range defs {
		if d.Name == scenario.Store {
			return d, nil
		}
	}
	return nil, fmt.Errorf("store %q not found in %s", scenario.Store, scenario.Definition)
}

func (h *Harness) executeStep(ctx context.Context, step Step) error {
	payload := snapshot.Normalize(step.Payload)

	switch {
	case step.Commit != "":
		return checkExpectedError(step, guard(func() error { return h.store.Commit(step.Commit, payload) }))

	case step.Dispatch != "":
		return checkExpectedError(step, guard(func() error { return h.store.Dispatch(step.Dispatch, payload) }))

	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.sched.Advance(d)
		_, err = h.store.Drain(ctx)
		return err

	case step.Read != "":
		var got any
		err := guard(func() error {
			var err error
			got, err = h.store.Getters().Get(step.Read)
			return err
		})
		if err != nil {
			return err
		}
		if step.Expect != nil && !valuesEqual(got, step.Expect) {
			return fmt.Errorf("getter %s: expected %v, got %v", step.Read, step.Expect, got)
		}
		return nil

	case len(step.Check) > 0:
		state := normalizeState(h.store.State())
		return assertState(state, Assertion{Type: AssertState, Expect: step.Check})
	}
	return fmt.Errorf("empty step")
}

func checkExpectedError(step Step, err error) error {
	if step.ExpectError == "" {
		return err
	}
	if err == nil {
		return fmt.Errorf("expected error containing %q, got none", step.ExpectError)
	}
	if !strings.Contains(err.Error(), step.ExpectError) {
		return fmt.Errorf("expected error containing %q, got %v", step.ExpectError, err)
	}
	return nil
}

// guard turns a handler panic into an error so one bad step does not end the run.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (h *Harness) record(ctx context.Context, e store.Event) {
	te := TraceEvent{
		Kind:    string(e.Type),
		Name:    e.Name,
		Key:     e.Key,
		Payload: snapshot.Normalize(e.Payload),
		Seq:     e.Seq,
	}
	if e.Type == store.EventStateSet {
		te.Payload = snapshot.Normalize(e.New)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.trace = append(h.trace, te)
}

func (h *Harness) asyncError(err error) {
	h.logger.Error("delayed work failed", "error", err)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.async = append(h.async, err.Error())
}

func normalizeState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = snapshot.Normalize(v)
	}
	return out
}
