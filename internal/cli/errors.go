package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aidanlsb/wikimigrate/internal/executor"
	"github.com/aidanlsb/wikimigrate/internal/pagetree"
	"github.com/aidanlsb/wikimigrate/internal/plan"
	"github.com/aidanlsb/wikimigrate/internal/remote"
)

// Error codes for structured error responses.
// These codes are stable and can be relied upon by scripts.
const (
	// Configuration errors
	ErrConfigInvalid = "CONFIG_INVALID"

	// Export and plan errors
	ErrMalformedExport = "MALFORMED_EXPORT"
	ErrPlanRoundTrip   = "PLAN_ROUNDTRIP"
	ErrPlanExists      = "PLAN_EXISTS"
	ErrPageNotFound    = "PAGE_NOT_FOUND"
	ErrRunNotFound     = "RUN_NOT_FOUND"

	// Remote errors
	ErrRemoteAuth     = "REMOTE_AUTH"
	ErrRemoteFailed   = "REMOTE_FAILED"
	ErrRemoteRejected = "REMOTE_REJECTED"
	ErrRunAborted     = "RUN_ABORTED"
	ErrCanceled       = "CANCELED"

	// File errors
	ErrFileNotFound   = "FILE_NOT_FOUND"
	ErrFileReadError  = "FILE_READ_ERROR"
	ErrFileWriteError = "FILE_WRITE_ERROR"

	// Input errors
	ErrInvalidInput         = "INVALID_INPUT"
	ErrMissingArgument      = "MISSING_ARGUMENT"
	ErrConfirmationRequired = "CONFIRMATION_REQUIRED"

	// General errors
	ErrInternal = "INTERNAL_ERROR"
)

// Warning codes for non-fatal issues.
const (
	WarnUnresolvedLink = "UNRESOLVED_LINK"
	WarnLinkWaiting    = "LINK_WAITING"
	WarnFallback       = "FALLBACK_RENDERED"
	WarnPageFailed     = "PAGE_FAILED"
	WarnPageBlocked    = "PAGE_BLOCKED"
)

// codedError attaches a stable code and an optional suggestion to an error.
type codedError struct {
	code       string
	suggestion string
	err        error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func withCode(code string, err error, suggestion string) error {
	return &codedError{code: code, suggestion: suggestion, err: err}
}

// ExitError makes Execute exit with Code. Err, when set, is printed in
// text mode; it is nil when the command already reported the failure.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// errorCode maps an error to its stable code.
func errorCode(err error) string {
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	switch {
	case errors.Is(err, pagetree.ErrMalformedExport):
		return ErrMalformedExport
	case errors.Is(err, pagetree.ErrPlanRoundTrip):
		return ErrPlanRoundTrip
	case errors.Is(err, plan.ErrPlanExists):
		return ErrPlanExists
	case errors.Is(err, executor.ErrAborted):
		return ErrRunAborted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCanceled
	case remote.IsAuth(err):
		return ErrRemoteAuth
	case remote.IsRetryable(err):
		return ErrRemoteFailed
	case remote.Status(err) != 0:
		return ErrRemoteRejected
	case errors.Is(err, os.ErrNotExist):
		return ErrFileNotFound
	default:
		return ErrInternal
	}
}

func errorSuggestion(err error) string {
	var coded *codedError
	if errors.As(err, &coded) && coded.suggestion != "" {
		return coded.suggestion
	}
	switch errorCode(err) {
	case ErrPlanExists:
		return "Pass --refresh to regenerate the plan, or choose another --out directory"
	case ErrPlanRoundTrip:
		return "Check that edited file names still end with their identifier suffix"
	case ErrRemoteAuth, ErrRunAborted:
		return "Check CONFLUENCE_USERNAME and CONFLUENCE_API_TOKEN"
	case ErrCanceled:
		return "Run execute again to resume"
	}
	return ""
}
