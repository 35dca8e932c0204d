package archive

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoChangesDir   = errors.New("no changes directory found, run 'specledger init' first")
	ErrChangeNotFound = errors.New("change not found")
	ErrArchiveExists  = errors.New("archive already exists")
)

// ConflictError aborts a whole batch: one capability's failure blocks every
// other capability of the same change, including valid ones.
type ConflictError struct {
	Capability string
	Phase      Phase
	Err        error
	// Blocked lists the other capabilities left unapplied.
	Blocked []string
}

func (e *ConflictError) Error() string {
	msg := e.Err.Error()
	if e.Capability != "" && !strings.HasPrefix(msg, e.Capability+":") {
		msg = e.Capability + ": " + msg
	}
	s := fmt.Sprintf("%s failed: %s", e.Phase, msg)
	if len(e.Blocked) > 0 {
		s += fmt.Sprintf(" (also not applied: %s)", strings.Join(e.Blocked, ", "))
	}
	return s
}

func (e *ConflictError) Unwrap() error { return e.Err }
