package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/reflink/internal/reporter"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed (backend rejected, nothing stored, scenarios failed)
	ExitCommandError = 2 // Command error (bad config, store unavailable, etc.)
)

// Error codes reported in JSON output.
const (
	CodeConfig       = "E001" // configuration or store could not be opened
	CodePrecondition = "E002" // local precondition failed, nothing was sent
	CodeRejected     = "E003" // backend answered with a non-success status
	CodeTransport    = "E004" // backend could not be reached
	CodeNotFound     = "E005" // lookup returned nothing
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose and diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
// Text output uses the value's String method when it has one.
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

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// OutcomeData is the JSON payload of a reported operation.
type OutcomeData struct {
	Operation string `json:"operation"`
	Status    string `json:"status"`
	Code      int    `json:"code,omitempty"`
	Message   string `json:"message"`
}

func (d OutcomeData) String() string {
	if d.Code != 0 {
		return fmt.Sprintf("%s: %s (%d) %s", d.Operation, d.Status, d.Code, d.Message)
	}
	return fmt.Sprintf("%s: %s %s", d.Operation, d.Status, d.Message)
}

// Outcome prints a reporter outcome and converts anything but success into
// an ExitFailure error.
func (f *OutputFormatter) Outcome(operation string, out reporter.Outcome) error {
	data := OutcomeData{
		Operation: operation,
		Status:    out.Status.String(),
		Code:      out.Code,
		Message:   out.Message,
	}
	if out.OK() {
		return f.Success(data)
	}

	code := CodeTransport
	switch {
	case out.Err != nil:
		code = CodePrecondition
	case out.Status == reporter.StatusFailure:
		code = CodeRejected
	}
	if err := f.Error(code, out.Message, data); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%s %s", operation, out.Status))
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
