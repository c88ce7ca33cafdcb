package plan

import (
	"errors"
	"fmt"

	"github.com/aidanlsb/wikimigrate/internal/pagetree"
)

// ErrPlanExists is returned by Write when the plan directory already exists
// and Refresh is not set.
var ErrPlanExists = errors.New("plan directory already exists")

// RoundTripError reports a plan that cannot be read back into a tree.
type RoundTripError struct {
	Path   string // plan-relative path
	Reason string
	Err    error
}

func (e *RoundTripError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	return fmt.Sprintf("%v: %s: %s", pagetree.ErrPlanRoundTrip, e.Path, msg)
}

func (e *RoundTripError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, pagetree.ErrPlanRoundTrip) hold for every
// RoundTripError.
func (e *RoundTripError) Is(target error) bool {
	return target == pagetree.ErrPlanRoundTrip
}
