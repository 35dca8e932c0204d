package validation

import (
	"github.com/kokistudios/specledger/internal/delta"
)

// DeltaEntry is one delta document of a change.
type DeltaEntry struct {
	Capability   string
	Path         string
	Content      string
	TargetExists bool
}

// DeltaReport validates every delta document of a change.
func DeltaReport(entries []DeltaEntry, strict bool) Report {
	var issues []Issue
	if len(entries) == 0 {
		issues = append(issues, Issue{Level: LevelError, Kind: KindNoDeltas,
			Message: "change must have at least one delta spec"})
		return NewReport(issues, strict)
	}

	total := 0
	for _, e := range entries {
		plan, err := delta.Parse(e.Content)
		if err != nil {
			issues = append(issues, Issue{Level: LevelError, Path: e.Path, Kind: KindParse, Message: err.Error()})
			continue
		}
		if !plan.HasSections() {
			issues = append(issues, Issue{Level: LevelError, Path: e.Path, Kind: KindEmptyPlan,
				Message: "no delta sections found; add a header such as \"## ADDED Requirements\""})
			continue
		}
		total += plan.Total()
		for _, ve := range CheckPlan(plan, PlanOptions{NewCapability: !e.TargetExists}) {
			issues = append(issues, issueFrom(LevelError, e.Path, ve))
		}
		for _, ve := range CheckDeltaContent(plan) {
			issues = append(issues, issueFrom(LevelError, e.Path, ve))
		}
	}
	if total == 0 && len(issues) == 0 {
		issues = append(issues, Issue{Level: LevelError, Kind: KindNoDeltas,
			Message: "change must have at least one delta operation"})
	}
	return NewReport(issues, strict)
}
