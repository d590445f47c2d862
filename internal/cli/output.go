package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/erpstore/internal/ledger"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed (scenarios failed, sync rejected, ledger error)
	ExitCommandError = 2 // Command error (bad flags, unreadable file, store unavailable)
)

// Error codes reported in JSON output for failures that carry no ledger code.
const (
	CodeCommandError    = "COMMAND_ERROR"
	CodeFailed          = "FAILED"
	CodeScenariosFailed = "SCENARIOS_FAILED"
	CodeSyncRefused     = "SYNC_REFUSED"
	CodeNothingToPull   = "NOTHING_TO_PULL"
)

// ExitError is a command failure with its process exit code. Reason, when
// set, overrides the error code derived from the wrapped error.
type ExitError struct {
	Code    int
	Reason  string
	Message string
	Err     error

	reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// WithReason sets the error code reported for e.
func (e *ExitError) WithReason(reason string) *ExitError {
	e.Reason = reason
	return e
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode names a failure for JSON consumers: the ExitError reason, then
// the ledger code, then a code derived from the exit code.
func ErrorCode(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Reason != "" {
		return exitErr.Reason
	}
	if code := ledger.CodeOf(err); code != "" {
		return string(code)
	}
	if GetExitCode(err) == ExitCommandError {
		return CodeCommandError
	}
	return CodeFailed
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // logs and text-mode failures; falls back to Writer
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	EntityID string `json:"entityId,omitempty"`
}

func newCLIError(err error) *CLIError {
	e := &CLIError{Code: ErrorCode(err), Message: err.Error()}
	var lerr *ledger.Error
	if errors.As(err, &lerr) {
		e.EntityID = lerr.EntityID
	}
	return e
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Fail reports err once. JSON mode writes an error envelope, with data as
// its payload, to Writer. Text mode writes one line to the diagnostic writer.
// A failure already reported by a command is not written again.
func (f *OutputFormatter) Fail(err error, data any) error {
	var exitErr *ExitError
	hasExit := errors.As(err, &exitErr)
	if hasExit && exitErr.reported {
		return nil
	}
	if hasExit {
		exitErr.reported = true
	}

	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Data:   data,
			Error:  newCLIError(err),
		})
	}

	fmt.Fprintf(f.diag(), "erpstore: %v\n", err)
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// It never writes to Writer when ErrWriter is set, so JSON output stays clean.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.diag(), format+"\n", args...)
}

func (f *OutputFormatter) diag() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
