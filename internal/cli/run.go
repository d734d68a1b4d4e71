package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Layouwen/vuex-study/internal/definition"
	"github.com/Layouwen/vuex-study/internal/snapshot"
	"github.com/Layouwen/vuex-study/internal/store"
	"github.com/Layouwen/vuex-study/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Store string
	Trace string // SQLite trace database, optional
	RunID string
	Wait  time.Duration
	Ops   []Operation
}

// Operation is one --commit or --dispatch flag, kept in command-line order.
type Operation struct {
	Kind    string `json:"kind"` // "commit" | "dispatch"
	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
}

// OperationError is an operation the store rejected.
type OperationError struct {
	Operation
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunResult is the state of the store after all operations and the wait.
type RunResult struct {
	Store    string           `json:"store"`
	RunID    string           `json:"run_id"`
	Applied  int              `json:"applied"`
	State    map[string]any   `json:"state"`
	Getters  map[string]any   `json:"getters"`
	Rejected []OperationError `json:"rejected,omitempty"`
}

// opFlag appends to a shared operation list so --commit and --dispatch keep
// their relative order.
type opFlag struct {
	kind string
	ops  *[]Operation
}

func (f *opFlag) String() string { return "" }

func (f *opFlag) Type() string { return "name=json" }

func (f *opFlag) Set(value string) error {
	op, err := parseOperation(f.kind, value)
	if err != nil {
		return err
	}
	*f.ops = append(*f.ops, op)
	return nil
}

// parseOperation parses "name" or "name=<json>".
func parseOperation(kind, value string) (Operation, error) {
	name, raw, hasPayload := strings.Cut(value, "=")
	if name == "" {
		return Operation{}, fmt.Errorf("missing %s name in %q", kind, value)
	}
	op := Operation{Kind: kind, Name: name}
	if hasPayload {
		payload, err := snapshot.Decode([]byte(raw))
		if err != nil {
			return Operation{}, fmt.Errorf("invalid %s payload for %s: %w", kind, name, err)
		}
		op.Payload = payload
	}
	return op, nil
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <definitions-dir>",
		Short: "Build a store and apply commits and dispatches",
		Long: `Build a store from a CUE definition, start its event loop and apply the
--commit and --dispatch operations in the order given. Delayed action steps
run while the command waits. The final state and every getter are printed.

Payloads are JSON. A flag without "=" passes no payload.

Examples:
  vuex run ./defs --store profile --commit changeName='"Tom"'
  vuex run ./defs --store profile --dispatch changeAge=42 --wait 3s
  vuex run ./defs --store profile --dispatch rename='"Ann"' --wait 2s --trace ./trace.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", "", "store to run (optional when the directory defines one)")
	cmd.Flags().StringVar(&opts.Trace, "trace", "", "record events to this SQLite database")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run id stamped on events (default: generated UUIDv7)")
	cmd.Flags().DurationVar(&opts.Wait, "wait", 0, "time to wait for delayed work before printing")
	cmd.Flags().Var(&opFlag{kind: "commit", ops: &opts.Ops}, "commit", "commit a mutation: name[=json] (repeatable)")
	cmd.Flags().Var(&opFlag{kind: "dispatch", ops: &opts.Ops}, "dispatch", "dispatch an action: name[=json] (repeatable)")

	return cmd
}

func runStore(opts *RunOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	def, err := selectStore(dir, opts.Store)
	if err != nil {
		return err
	}

	storeOpts := []store.Option{
		store.WithLogger(logger),
		store.WithErrorHandler(func(err error) {
			logger.Error("delayed work failed", "store", def.Name, "error", err)
		}),
	}
	if opts.RunID != "" {
		storeOpts = append(storeOpts, store.WithRunID(opts.RunID))
	}

	observers := []store.Observer{store.NewSlogObserver(logger)}
	if opts.Trace != "" {
		log, err := trace.Open(opts.Trace)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open trace database", err)
		}
		defer func() {
			if err := log.Close(); err != nil {
				logger.Error("error closing trace database", "error", err)
			}
		}()
		observers = append(observers, log)
	}
	storeOpts = append(storeOpts, store.WithObserver(store.NewMultiObserver(observers...)))

	st, err := store.New(def.Options(), storeOpts...)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create store", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- st.Run(ctx) }()

	logger.Info("store running", "store", def.Name, "run_id", st.RunID(), "operations", len(opts.Ops))

	result := RunResult{Store: def.Name, RunID: st.RunID()}
	for _, op := range opts.Ops {
		if err := apply(st, op); err != nil {
			result.Rejected = append(result.Rejected, rejection(op, err))
			continue
		}
		result.Applied++
	}

	if opts.Wait > 0 {
		formatter.VerboseLog("Waiting %s for delayed work", opts.Wait)
		timer := time.NewTimer(opts.Wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.Info("interrupted, shutting down")
		}
	}

	st.Close()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "event loop error", err)
	}
	logger.Debug("store stopped", "store", def.Name)

	result.State = st.State()
	result.Getters = evaluateGetters(st, logger)

	if err := formatter.Success(result, runText(result)); err != nil {
		return err
	}
	if len(result.Rejected) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d operation(s) rejected", len(result.Rejected)))
	}
	return nil
}

// selectStore loads dir and picks the named store, or the only store when name is empty.
func selectStore(dir, name string) (*definition.Definition, error) {
	result, errs := definition.Load(dir, definition.LoadModeFailFast)
	if len(errs) > 0 {
		code := ExitFailure
		if result == nil {
			code = ExitCommandError
		}
		return nil, WrapExitError(code, "failed to load definitions", errs[0])
	}
	if name == "" {
		if len(result.Definitions) != 1 {
			return nil, NewExitError(ExitCommandError,
				fmt.Sprintf("%s defines %d stores; choose one with --store", dir, len(result.Definitions)))
		}
		return result.Definitions[0], nil
	}
	def, ok := result.Find(name)
	if !ok {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("store %q not found in %s", name, dir))
	}
	return def, nil
}

// apply runs one operation. Handler panics, e.g. a failing mutation expression,
// come back as errors.
func apply(st *store.Store, op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if op.Kind == "commit" {
		return st.Commit(op.Name, op.Payload)
	}
	return st.Dispatch(op.Name, op.Payload)
}

func rejection(op Operation, err error) OperationError {
	code := "OPERATION_FAILED"
	var rt *store.RuntimeError
	if errors.As(err, &rt) {
		code = string(rt.Code)
	}
	return OperationError{Operation: op, Code: code, Message: err.Error()}
}

// evaluateGetters reads every getter. A getter that fails is logged and omitted.
func evaluateGetters(st *store.Store, logger *slog.Logger) map[string]any {
	out := make(map[string]any)
	for _, name := range st.Getters().Names() {
		v, err := readGetter(st, name)
		if err != nil {
			logger.Warn("getter failed", "getter", name, "error", err)
			continue
		}
		out[name] = v
	}
	return out
}

func readGetter(st *store.Store, name string) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return st.Getters().Get(name)
}

func runText(r RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "store %s (run %s): %d operation(s) applied\n", r.Store, r.RunID, r.Applied)
	for _, rej := range r.Rejected {
		fmt.Fprintf(&b, "✗ %s %s: %s\n", rej.Kind, rej.Name, rej.Message)
	}
	b.WriteString("state:\n")
	writeValues(&b, r.State)
	if len(r.Getters) > 0 {
		b.WriteString("getters:\n")
		writeValues(&b, r.Getters)
	}
	return b.String()
}

func writeValues(b *strings.Builder, values map[string]any) {
	for _, k := range slices.Sorted(maps.Keys(values)) {
		text, err := snapshot.EncodeJSON(values[k])
		if err != nil {
			text = fmt.Sprintf("%v", values[k])
		}
		fmt.Fprintf(b, "  %s = %s\n", k, text)
	}
}
