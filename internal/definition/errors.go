package definition

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError is a definition error tied to a position in the CUE source.
type CompileError struct {
	// Field names the part of the definition that is wrong, e.g. "getters" or "actions.steps".
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadError is returned by Load for problems with the definition directory or with
// a compiled definition. Code is one of the ErrCode constants.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes shared by the loader and the CLI.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeNoStores    = "E007" // No store definitions found

	ErrCodeInvalidState    = "E101"
	ErrCodeInvalidMutation = "E102"
	ErrCodeInvalidAction   = "E103"
	ErrCodeInvalidGetter   = "E104"
	ErrCodeInvalidExpr     = "E105"
	ErrCodeUnknownTarget   = "E106" // Step refers to a missing mutation or action
)

// MapFieldToErrorCode maps a CompileError field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "state":
		return ErrCodeInvalidState
	case "mutations", "mutations.set":
		return ErrCodeInvalidMutation
	case "actions", "actions.steps", "actions.steps.delay":
		return ErrCodeInvalidAction
	case "getters":
		return ErrCodeInvalidGetter
	case "expr":
		return ErrCodeInvalidExpr
	case "actions.steps.commit", "actions.steps.dispatch":
		return ErrCodeUnknownTarget
	default:
		return ErrCodeGeneric
	}
}

// formatCUEError turns a CUE error into a CompileError at its first position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
