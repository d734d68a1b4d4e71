package cli

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Layouwen/vuex-study/internal/definition"
)

// StoreSummary describes one compiled store definition.
type StoreSummary struct {
	Name      string   `json:"name"`
	State     []string `json:"state"`
	Mutations []string `json:"mutations"`
	Actions   []string `json:"actions"`
	Getters   []string `json:"getters"`
}

// ValidationIssue is one definition error.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                      `json:"valid"`
	Files    int                       `json:"files"`
	Stores   []StoreSummary            `json:"stores"`
	Errors   []ValidationIssue         `json:"errors,omitempty"`
	Warnings []definition.CycleWarning `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <definitions-dir>",
		Short: "Compile store definitions and report errors",
		Long: `Compile every store under the "store" field of the CUE package in a directory.

All errors are collected, not just the first one, and reported with their
source position. Actions that dispatch each other without a delay are reported
as warnings.

Exit codes:
  0 - All definitions valid
  1 - One or more definitions invalid
  2 - Directory missing, empty or not loadable`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	result, errs := definition.Load(dir, definition.LoadModeCollectAll)
	if result == nil {
		issue := toIssue(errs[0])
		_ = formatter.Error(issue.Code, issue.Message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", issue.Code, issue.Message))
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, dir)

	out := ValidationResult{
		Valid:  len(errs) == 0,
		Files:  result.FileCount,
		Stores: make([]StoreSummary, 0, len(result.Definitions)),
	}
	for _, d := range result.Definitions {
		formatter.VerboseLog("Compiled store: %s", d.Name)
		out.Stores = append(out.Stores, summarize(d))
		out.Warnings = append(out.Warnings, definition.AnalyzeCycles(d)...)
	}
	for _, err := range errs {
		out.Errors = append(out.Errors, toIssue(err))
	}

	if !out.Valid {
		if formatter.JSON() {
			_ = formatter.Error(out.Errors[0].Code, fmt.Sprintf("%d definition error(s)", len(out.Errors)), out.Errors)
		} else {
			_ = formatter.Success(out, validationText(out))
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d definition error(s)", len(out.Errors)))
	}
	return formatter.Success(out, validationText(out))
}

func summarize(d *definition.Definition) StoreSummary {
	return StoreSummary{
		Name:      d.Name,
		State:     slices.Sorted(maps.Keys(d.State)),
		Mutations: d.MutationNames(),
		Actions:   d.ActionNames(),
		Getters:   d.GetterNames(),
	}
}

func toIssue(err error) ValidationIssue {
	var le *definition.LoadError
	if errors.As(err, &le) {
		issue := ValidationIssue{Code: le.Code, Message: le.Message}
		if le.Pos.IsValid() {
			issue.File = le.Pos.Filename()
			issue.Line = le.Pos.Line()
		}
		return issue
	}
	return ValidationIssue{Code: definition.ErrCodeGeneric, Message: err.Error()}
}

func validationText(r ValidationResult) string {
	var b strings.Builder
	for _, s := range r.Stores {
		fmt.Fprintf(&b, "✓ %s: %d state field(s), %d mutation(s), %d action(s), %d getter(s)\n",
			s.Name, len(s.State), len(s.Mutations), len(s.Actions), len(s.Getters))
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "! %s\n", w.Message)
	}
	for _, e := range r.Errors {
		if e.File != "" {
			fmt.Fprintf(&b, "✗ %s:%d: [%s] %s\n", e.File, e.Line, e.Code, e.Message)
		} else {
			fmt.Fprintf(&b, "✗ [%s] %s\n", e.Code, e.Message)
		}
	}
	if r.Valid {
		fmt.Fprintf(&b, "All definitions valid (%d store(s) in %d file(s))\n", len(r.Stores), r.Files)
	} else {
		fmt.Fprintf(&b, "%d error(s)\n", len(r.Errors))
	}
	return b.String()
}
