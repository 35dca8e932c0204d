package validation

import "strings"

// Level is the severity of an Issue.
type Level string

const (
	LevelError   Level = "ERROR"
	LevelWarning Level = "WARNING"
	LevelInfo    Level = "INFO"
)

// Issue is one finding in a Report.
type Issue struct {
	Level       Level  `json:"level"`
	Path        string `json:"path"`
	Message     string `json:"message"`
	Kind        Kind   `json:"kind,omitempty"`
	Section     string `json:"section,omitempty"`
	Requirement string `json:"requirement,omitempty"`

	detail string
}

// Summary counts issues per level.
type Summary struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Info     int `json:"info"`
}

// Report is the outcome of validating one spec or change.
type Report struct {
	Valid   bool    `json:"valid"`
	Issues  []Issue `json:"issues"`
	Summary Summary `json:"summary"`
}

// NewReport tallies issues. In strict mode warnings also fail the report.
func NewReport(issues []Issue, strict bool) Report {
	var s Summary
	for _, is := range issues {
		switch is.Level {
		case LevelError:
			s.Errors++
		case LevelWarning:
			s.Warnings++
		case LevelInfo:
			s.Info++
		}
	}
	if issues == nil {
		issues = []Issue{}
	}
	valid := s.Errors == 0
	if strict {
		valid = valid && s.Warnings == 0
	}
	return Report{Valid: valid, Issues: issues, Summary: s}
}

// FirstError converts the first ERROR issue into a ValidationError for
// capability. It returns nil when the report has no errors.
func (r Report) FirstError(capability string) *ValidationError {
	for _, is := range r.Issues {
		if is.Level != LevelError {
			continue
		}
		kind := is.Kind
		if kind == "" {
			kind = KindStructure
		}
		detail := is.detail
		if detail == "" {
			detail = is.Message
		}
		return &ValidationError{
			Capability:  capability,
			Section:     is.Section,
			Requirement: is.Requirement,
			Kind:        kind,
			Detail:      detail,
		}
	}
	return nil
}

// Messages returns "LEVEL path: message" lines for every issue.
func (r Report) Messages() []string {
	out := make([]string, 0, len(r.Issues))
	for _, is := range r.Issues {
		var sb strings.Builder
		sb.WriteString(string(is.Level))
		if is.Path != "" {
			sb.WriteString(" ")
			sb.WriteString(is.Path)
		}
		sb.WriteString(": ")
		sb.WriteString(is.Message)
		out = append(out, sb.String())
	}
	return out
}

func issueFrom(level Level, path string, err *ValidationError) Issue {
	msg := err.Detail
	if err.Requirement != "" {
		msg = err.Section + " \"" + err.Requirement + "\": " + err.Detail
	} else if err.Section != "" {
		msg = err.Section + ": " + err.Detail
	}
	return Issue{
		Level:       level,
		Path:        path,
		Message:     strings.TrimSpace(msg),
		Kind:        err.Kind,
		Section:     err.Section,
		Requirement: err.Requirement,
		detail:      err.Detail,
	}
}
