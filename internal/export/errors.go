package export

import (
	"fmt"

	"github.com/aidanlsb/wikimigrate/internal/pagetree"
)

// MalformedExportError reports why an export could not be resolved.
type MalformedExportError struct {
	Path   string // export-relative path, empty for the export itself
	Reason string
	Err    error
}

func (e *MalformedExportError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Path == "" {
		return fmt.Sprintf("%v: %s", pagetree.ErrMalformedExport, msg)
	}
	return fmt.Sprintf("%v: %s: %s", pagetree.ErrMalformedExport, e.Path, msg)
}

func (e *MalformedExportError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, pagetree.ErrMalformedExport) hold for every
// MalformedExportError.
func (e *MalformedExportError) Is(target error) bool {
	return target == pagetree.ErrMalformedExport
}

func malformed(path, format string, args ...any) error {
	return &MalformedExportError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
