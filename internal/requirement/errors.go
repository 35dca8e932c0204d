package requirement

import (
	"errors"
	"fmt"
)

// ErrNoRequirementsSection is wrapped by the ParseError returned when a
// document has no Requirements header at all.
var ErrNoRequirementsSection = errors.New("no requirements section")

// ParseError reports malformed section or header structure.
type ParseError struct {
	Section string // section the error was found in, if any
	Line    int    // 1-based line number, 0 when not tied to a line
	Msg     string
	Err     error
}

func (e *ParseError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Section != "" && e.Line > 0:
		return fmt.Sprintf("%s (line %d): %s", e.Section, e.Line, msg)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, msg)
	case e.Section != "":
		return fmt.Sprintf("%s: %s", e.Section, msg)
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }
