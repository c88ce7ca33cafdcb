// Package remote defines the page model and error classification shared by
// the executor and wiki clients.
package remote

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Page is a page of the remote wiki.
type Page struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
	Version  int    `json:"version,omitempty"`
	ParentID string `json:"parent_id,omitempty"`

	// Body is the storage-format body when the client fetched it.
	Body string `json:"-"`
}

// Error categories of remote failures.
var (
	// CategoryTransient covers network failures, throttling and server
	// errors. Retrying may succeed.
	CategoryTransient = goerrors.Category("remote_transient")
	// CategoryAuth covers rejected credentials and missing permissions.
	CategoryAuth = goerrors.Category("remote_auth")
	// CategoryRejected covers requests the wiki refused as invalid.
	CategoryRejected = goerrors.Category("remote_rejected")
)

// Text codes attached to classified errors.
const (
	CodeTransient = "REMOTE_TRANSIENT"
	CodeAuth      = "REMOTE_AUTH"
	CodeRejected  = "REMOTE_REJECTED"
)

// StatusError is a non-success HTTP response.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Method + " " + e.Path + ": " + http.StatusText(e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// CategoryForStatus maps an HTTP status to an error category.
func CategoryForStatus(status int) goerrors.Category {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return CategoryAuth
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return CategoryTransient
	default:
		return CategoryRejected
	}
}

// Classify wraps err with a category. Errors that already carry one are
// returned unchanged.
func Classify(err error, category goerrors.Category, message string) error {
	if err == nil {
		return nil
	}
	if goerrors.IsWrapped(err) {
		return err
	}
	return goerrors.Wrap(err, category, message).WithTextCode(codeFor(category))
}

// FromStatus classifies a StatusError by its status code.
func FromStatus(err *StatusError) error {
	return Classify(err, CategoryForStatus(err.Status), err.Method+" "+err.Path+" failed")
}

func codeFor(category goerrors.Category) string {
	switch category {
	case CategoryTransient:
		return CodeTransient
	case CategoryAuth:
		return CodeAuth
	default:
		return CodeRejected
	}
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return err != nil && goerrors.IsCategory(err, CategoryTransient)
}

// IsAuth reports whether err means the credentials cannot be used.
func IsAuth(err error) bool {
	return err != nil && goerrors.IsCategory(err, CategoryAuth)
}

// Status returns the HTTP status behind err, or 0.
func Status(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
