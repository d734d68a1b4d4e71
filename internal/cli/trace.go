package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Layouwen/vuex-study/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Kind     string
	Name     string
	Limit    int
	Runs     bool
}

// TraceResult holds the trace command output.
type TraceResult struct {
	Runs   []string      `json:"runs,omitempty"`
	Events []trace.Entry `json:"events"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "List recorded store events",
		Long: `List events recorded by "vuex run --trace" or "vuex test --trace".

Events are ordered by sequence number within each run. Each entry carries the
canonical JSON payload and the hash of the state right after the event.

Examples:
  vuex trace --db ./trace.db --runs
  vuex trace --db ./trace.db --run 0192f... --kind commit
  vuex trace --db ./trace.db --kind report --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "only events of this run")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only events of this kind (commit|dispatch|report|state.set)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "only events for this mutation or action name")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 = all)")
	cmd.Flags().BoolVar(&opts.Runs, "runs", false, "list run ids instead of events")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "trace database not found", err)
	}
	log, err := trace.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace database", err)
	}
	defer log.Close()

	if opts.Runs {
		runs, err := log.Runs(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		return formatter.Success(TraceResult{Runs: runs, Events: []trace.Entry{}}, runsText(runs))
	}

	events, err := readEvents(ctx, log, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	formatter.VerboseLog("Read %d event(s) from %s", len(events), opts.Database)
	return formatter.Success(TraceResult{Events: events}, eventsText(events, opts.Verbose))
}

// readEvents returns the matching events grouped by run, runs in recording order.
func readEvents(ctx context.Context, log *trace.Log, opts *TraceOptions) ([]trace.Entry, error) {
	filter := trace.Filter{RunID: opts.RunID, Kind: opts.Kind, Name: opts.Name, Limit: opts.Limit}
	if opts.RunID != "" {
		return log.Events(ctx, filter)
	}

	runs, err := log.Runs(ctx)
	if err != nil {
		return nil, err
	}
	events := []trace.Entry{}
	for _, run := range runs {
		filter.RunID = run
		batch, err := log.Events(ctx, filter)
		if err != nil {
			return nil, err
		}
		events = append(events, batch...)
		if opts.Limit > 0 && len(events) >= opts.Limit {
			return events[:opts.Limit], nil
		}
	}
	return events, nil
}

func runsText(runs []string) string {
	if len(runs) == 0 {
		return "No runs recorded.\n"
	}
	return strings.Join(runs, "\n") + "\n"
}

func eventsText(events []trace.Entry, verbose bool) string {
	if len(events) == 0 {
		return "No events found.\n"
	}
	var b strings.Builder
	run := ""
	for _, e := range events {
		if e.RunID != run {
			run = e.RunID
			fmt.Fprintf(&b, "run %s\n", run)
		}
		fmt.Fprintf(&b, "  [%d] %s %s", e.Seq, e.Kind, e.Name)
		if e.Key != "" {
			fmt.Fprintf(&b, " %s", e.Key)
		}
		fmt.Fprintf(&b, " %s", e.Payload)
		if e.Error != "" {
			fmt.Fprintf(&b, " error=%q", e.Error)
		}
		if verbose && e.StateHash != "" {
			fmt.Fprintf(&b, " state=%s", e.StateHash)
		}
		b.WriteString("\n")
	}
	return b.String()
}
