package validation

import (
	"iter"
	"maps"
	"slices"

	"github.com/kokistudios/specledger/internal/delta"
	"github.com/kokistudios/specledger/internal/requirement"
)

// PlanOptions carries the context a plan is checked against.
type PlanOptions struct {
	// NewCapability is set when the target spec does not exist yet.
	NewCapability bool
}

// ValidatePlan returns the first violation found in plan, or nil.
func ValidatePlan(plan *delta.Plan, opts PlanOptions) error {
	if errs := CheckPlan(plan, opts); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// CheckPlan returns every structural violation in plan. It performs no I/O.
// Detection is set based, so reordering entries within a section never
// changes whether the plan passes.
func CheckPlan(plan *delta.Plan, opts PlanOptions) []*ValidationError {
	var errs []*ValidationError

	// Empty sections are reported only when the plan has no operations.
	if plan.Total() == 0 {
		for _, s := range delta.Sections {
			if plan.Sections.Has(s) {
				errs = append(errs, newErr(KindEmptySection, string(s), "",
					"section present but no requirement entries parsed; check header format (### Requirement: <name>)"))
			}
		}
		errs = append(errs, newErr(KindEmptyPlan, "", "", "delta contains no operations"))
		return errs
	}

	if opts.NewCapability {
		for _, b := range plan.Modified {
			errs = append(errs, newErr(KindNewCapability, string(delta.SectionModified), b.Name,
				"target spec does not exist; only ADDED requirements are allowed for new specs"))
		}
		for _, name := range plan.Removed {
			errs = append(errs, newErr(KindNewCapability, string(delta.SectionRemoved), name,
				"target spec does not exist; only ADDED requirements are allowed for new specs"))
		}
		for _, r := range plan.Renamed {
			errs = append(errs, newErr(KindNewCapability, string(delta.SectionRenamed), r.From,
				"target spec does not exist; only ADDED requirements are allowed for new specs"))
		}
	}

	added := blockSet(plan.Added, delta.SectionAdded, &errs)
	modified := blockSet(plan.Modified, delta.SectionModified, &errs)
	removed := make(map[requirement.Name]string, len(plan.Removed))
	for _, name := range plan.Removed {
		key := requirement.Normalize(name)
		if _, dup := removed[key]; dup {
			errs = append(errs, newErr(KindDuplicate, string(delta.SectionRemoved), name, "duplicate requirement in REMOVED"))
			continue
		}
		removed[key] = name
	}

	froms := make(map[requirement.Name]string, len(plan.Renamed))
	tos := make(map[requirement.Name]string, len(plan.Renamed))
	for _, r := range plan.Renamed {
		from, to := requirement.Normalize(r.From), requirement.Normalize(r.To)
		if _, dup := froms[from]; dup {
			errs = append(errs, newErr(KindDuplicate, string(delta.SectionRenamed), r.From, "duplicate FROM in RENAMED"))
		} else {
			froms[from] = r.From
		}
		if _, dup := tos[to]; dup {
			errs = append(errs, newErr(KindDuplicate, string(delta.SectionRenamed), r.To, "duplicate TO in RENAMED"))
		} else {
			tos[to] = r.To
		}
	}

	for key, name := range sortedKeys(modified) {
		if _, ok := removed[key]; ok {
			errs = append(errs, newErr(KindConflict, string(delta.SectionModified), name, "requirement present in both MODIFIED and REMOVED"))
		}
		if _, ok := added[key]; ok {
			errs = append(errs, newErr(KindConflict, string(delta.SectionModified), name, "requirement present in both MODIFIED and ADDED"))
		}
	}
	for key, name := range sortedKeys(added) {
		if _, ok := removed[key]; ok {
			errs = append(errs, newErr(KindConflict, string(delta.SectionAdded), name, "requirement present in both ADDED and REMOVED"))
		}
	}

	for _, r := range plan.Renamed {
		from, to := requirement.Normalize(r.From), requirement.Normalize(r.To)
		if _, ok := modified[from]; ok {
			errs = append(errs, newErr(KindRenameModify, string(delta.SectionModified), r.From,
				"MODIFIED must reference the new name %q after a rename", r.To))
		}
		if _, ok := added[to]; ok {
			errs = append(errs, newErr(KindConflict, string(delta.SectionAdded), r.To,
				"ADDED collides with RENAMED target"))
		}
		if _, ok := removed[from]; ok {
			errs = append(errs, newErr(KindConflict, string(delta.SectionRemoved), r.From,
				"requirement present in both REMOVED and RENAMED FROM"))
		}
		if _, ok := removed[to]; ok {
			errs = append(errs, newErr(KindConflict, string(delta.SectionRemoved), r.To,
				"requirement present in both REMOVED and RENAMED TO"))
		}
	}

	return errs
}

// CheckDeltaContent checks that every ADDED and MODIFIED block carries a
// normative keyword and at least one scenario.
func CheckDeltaContent(plan *delta.Plan) []*ValidationError {
	var errs []*ValidationError
	for _, b := range plan.Added {
		errs = append(errs, checkBlock(string(delta.SectionAdded), b, false)...)
	}
	for _, b := range plan.Modified {
		errs = append(errs, checkBlock(string(delta.SectionModified), b, false)...)
	}
	return errs
}

// checkBlock applies the per-requirement content rules. With useName a
// block without body text is checked against its header name instead.
func checkBlock(section string, b requirement.Block, useName bool) []*ValidationError {
	var errs []*ValidationError
	text := b.RequirementText()
	switch {
	case text == "" && !useName:
		errs = append(errs, newErr(KindMissingKeyword, section, b.Name, "missing requirement text"))
	default:
		if text == "" {
			text = b.Name
		}
		if !requirement.HasNormativeKeyword(text) {
			errs = append(errs, newErr(KindMissingKeyword, section, b.Name, "requirement must contain SHALL or MUST"))
		}
	}
	if b.ScenarioCount() < 1 {
		errs = append(errs, newErr(KindMissingScenario, section, b.Name, "requirement must include at least one scenario"))
	}
	return errs
}

func blockSet(blocks []requirement.Block, section delta.Section, errs *[]*ValidationError) map[requirement.Name]string {
	set := make(map[requirement.Name]string, len(blocks))
	for _, b := range blocks {
		if _, dup := set[b.Key()]; dup {
			*errs = append(*errs, newErr(KindDuplicate, string(section), b.Name, "duplicate requirement in %s", section))
			continue
		}
		set[b.Key()] = b.Name
	}
	return set
}

// sortedKeys iterates m in key order so reported conflicts are stable.
func sortedKeys(m map[requirement.Name]string) iter.Seq2[requirement.Name, string] {
	return func(yield func(requirement.Name, string) bool) {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			if !yield(k, m[k]) {
				return
			}
		}
	}
}
