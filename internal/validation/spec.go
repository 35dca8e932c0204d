package validation

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/kokistudios/specledger/internal/requirement"
)

const (
	MinPurposeLength         = 50
	MaxRequirementTextLength = 500
)

// ValidateSpecContent checks a full spec document: Purpose and Requirements
// sections, at least one requirement, and per-requirement content rules.
func ValidateSpecContent(path, content string, strict bool) Report {
	return NewReport(specIssues(path, content), strict)
}

func specIssues(path, content string) []Issue {
	const section = "Requirements"
	var issues []Issue

	doc, err := requirement.Parse(content)
	if err != nil {
		if errors.Is(err, requirement.ErrNoRequirementsSection) {
			issues = append(issues, Issue{Level: LevelError, Path: path, Kind: KindStructure,
				Message: "spec must have a Requirements section"})
		} else {
			issues = append(issues, Issue{Level: LevelError, Path: path, Kind: KindParse, Message: err.Error()})
		}
		if _, ok := purposeOf(content); !ok {
			issues = append(issues, Issue{Level: LevelError, Path: path, Kind: KindStructure,
				Message: "spec must have a Purpose section"})
		}
		return issues
	}

	purpose, ok := doc.Purpose()
	switch {
	case !ok:
		issues = append(issues, Issue{Level: LevelError, Path: path, Kind: KindStructure,
			Message: "spec must have a Purpose section"})
	case utf8.RuneCountInString(purpose) < MinPurposeLength:
		issues = append(issues, Issue{Level: LevelWarning, Path: path, Kind: KindPurposeTooShort,
			Message: fmt.Sprintf("Purpose section is too brief (less than %d characters)", MinPurposeLength)})
	}

	if len(doc.Blocks) == 0 {
		issues = append(issues, Issue{Level: LevelError, Path: path, Kind: KindNoRequirements,
			Message: "spec must have at least one requirement"})
		return issues
	}

	for _, name := range doc.Duplicates() {
		issues = append(issues, issueFrom(LevelError, path,
			newErr(KindDuplicate, section, name, "duplicate requirement name")))
	}
	for _, b := range doc.Blocks {
		for _, e := range checkBlock(section, b, true) {
			issues = append(issues, issueFrom(LevelError, path, e))
		}
		if utf8.RuneCountInString(b.RequirementText()) > MaxRequirementTextLength {
			issues = append(issues, issueFrom(LevelInfo, path, newErr(KindRequirementLong, section, b.Name,
				"requirement text is very long (more than %d characters); consider breaking it down", MaxRequirementTextLength)))
		}
	}
	return issues
}

// purposeOf finds a Purpose section in a document that failed to parse.
func purposeOf(content string) (string, bool) {
	doc := &requirement.Document{Preamble: requirement.NormalizeLineEndings(content)}
	return doc.Purpose()
}
