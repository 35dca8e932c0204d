package validation

import (
	"fmt"
	"strings"
)

// Kind classifies a ValidationError.
type Kind string

const (
	KindEmptyPlan       Kind = "empty_plan"
	KindEmptySection    Kind = "empty_section"
	KindDuplicate       Kind = "duplicate"
	KindConflict        Kind = "conflict"
	KindRenameModify    Kind = "rename_modify"
	KindNewCapability   Kind = "new_capability"
	KindMissingKeyword  Kind = "missing_keyword"
	KindMissingScenario Kind = "missing_scenario"
	KindMissingTarget   Kind = "missing_target"
	KindTargetExists    Kind = "target_exists"
	KindHeaderMismatch  Kind = "header_mismatch"
	KindStructure       Kind = "structure"
	KindNoRequirements  Kind = "no_requirements"
	KindPurposeTooShort Kind = "purpose_too_short"
	KindRequirementLong Kind = "requirement_too_long"
	KindNoDeltas        Kind = "no_deltas"
	KindParse           Kind = "parse"
)

// ValidationError is a well-formed plan or document that violates an
// invariant.
type ValidationError struct {
	Capability  string
	Section     string
	Requirement string
	Kind        Kind
	Detail      string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	if e.Capability != "" {
		sb.WriteString(e.Capability)
		sb.WriteString(": ")
	}
	switch {
	case e.Section != "" && e.Requirement != "":
		fmt.Fprintf(&sb, "%s %q: ", e.Section, e.Requirement)
	case e.Section != "":
		sb.WriteString(e.Section)
		sb.WriteString(": ")
	case e.Requirement != "":
		fmt.Fprintf(&sb, "%q: ", e.Requirement)
	}
	sb.WriteString(e.Detail)
	return sb.String()
}

// WithCapability returns a copy tagged with the capability name.
func (e *ValidationError) WithCapability(name string) *ValidationError {
	c := *e
	c.Capability = name
	return &c
}

func newErr(kind Kind, section, req, format string, args ...any) *ValidationError {
	return &ValidationError{
		Section:     section,
		Requirement: req,
		Kind:        kind,
		Detail:      fmt.Sprintf(format, args...),
	}
}
