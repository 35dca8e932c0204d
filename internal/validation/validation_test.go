package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokistudios/specledger/internal/delta"
	"github.com/kokistudios/specledger/internal/requirement"
)

func block(name string) requirement.Block {
	header := "### Requirement: " + name
	return requirement.Block{
		Name:       name,
		HeaderLine: header,
		Raw:        header + "\nThe system SHALL " + name + ".\n\n#### Scenario: works\n- **WHEN** used",
	}
}

func plan(mut func(p *delta.Plan)) *delta.Plan {
	p := &delta.Plan{}
	mut(p)
	p.Sections = delta.SectionPresence{
		Added:    len(p.Added) > 0,
		Modified: len(p.Modified) > 0,
		Removed:  len(p.Removed) > 0,
		Renamed:  len(p.Renamed) > 0,
	}
	return p
}

func kinds(errs []*ValidationError) []Kind {
	out := make([]Kind, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Kind)
	}
	return out
}

func TestCheckPlan_Valid(t *testing.T) {
	p := plan(func(p *delta.Plan) {
		p.Added = []requirement.Block{block("D")}
		p.Modified = []requirement.Block{block("C")}
		p.Removed = []string{"B"}
		p.Renamed = []delta.Rename{{From: "A", To: "C"}}
	})
	assert.Empty(t, CheckPlan(p, PlanOptions{}))
	assert.NoError(t, ValidatePlan(p, PlanOptions{}))
}

func TestCheckPlan_Violations(t *testing.T) {
	tests := []struct {
		name string
		plan *delta.Plan
		opts PlanOptions
		want Kind
	}{
		{
			name: "empty plan",
			plan: &delta.Plan{},
			want: KindEmptyPlan,
		},
		{
			name: "duplicate added after normalization",
			plan: plan(func(p *delta.Plan) { p.Added = []requirement.Block{block("Foo"), block(" foo ")} }),
			want: KindDuplicate,
		},
		{
			name: "duplicate modified",
			plan: plan(func(p *delta.Plan) { p.Modified = []requirement.Block{block("X"), block("x")} }),
			want: KindDuplicate,
		},
		{
			name: "duplicate removed",
			plan: plan(func(p *delta.Plan) { p.Removed = []string{"X", "X "} }),
			want: KindDuplicate,
		},
		{
			name: "duplicate rename from",
			plan: plan(func(p *delta.Plan) { p.Renamed = []delta.Rename{{From: "A", To: "B"}, {From: "A", To: "C"}} }),
			want: KindDuplicate,
		},
		{
			name: "duplicate rename to",
			plan: plan(func(p *delta.Plan) { p.Renamed = []delta.Rename{{From: "A", To: "C"}, {From: "B", To: "C"}} }),
			want: KindDuplicate,
		},
		{
			name: "modified and removed",
			plan: plan(func(p *delta.Plan) {
				p.Modified = []requirement.Block{block("X")}
				p.Removed = []string{"x"}
			}),
			want: KindConflict,
		},
		{
			name: "modified and added",
			plan: plan(func(p *delta.Plan) {
				p.Modified = []requirement.Block{block("X")}
				p.Added = []requirement.Block{block("X")}
			}),
			want: KindConflict,
		},
		{
			name: "added and removed",
			plan: plan(func(p *delta.Plan) {
				p.Added = []requirement.Block{block("X")}
				p.Removed = []string{"X"}
			}),
			want: KindConflict,
		},
		{
			name: "modified references old name",
			plan: plan(func(p *delta.Plan) {
				p.Renamed = []delta.Rename{{From: "Old", To: "New"}}
				p.Modified = []requirement.Block{block("Old")}
			}),
			want: KindRenameModify,
		},
		{
			name: "added collides with rename target",
			plan: plan(func(p *delta.Plan) {
				p.Renamed = []delta.Rename{{From: "Old", To: "New"}}
				p.Added = []requirement.Block{block("New")}
			}),
			want: KindConflict,
		},
		{
			name: "removed and rename from",
			plan: plan(func(p *delta.Plan) {
				p.Renamed = []delta.Rename{{From: "A", To: "C"}}
				p.Removed = []string{"a"}
			}),
			want: KindConflict,
		},
		{
			name: "removed and rename to",
			plan: plan(func(p *delta.Plan) {
				p.Renamed = []delta.Rename{{From: "A", To: "C"}}
				p.Removed = []string{"C"}
			}),
			want: KindConflict,
		},
		{
			name: "new capability with modified",
			plan: plan(func(p *delta.Plan) { p.Modified = []requirement.Block{block("X")} }),
			opts: PlanOptions{NewCapability: true},
			want: KindNewCapability,
		},
		{
			name: "new capability with removed",
			plan: plan(func(p *delta.Plan) {
				p.Added = []requirement.Block{block("Y")}
				p.Removed = []string{"X"}
			}),
			opts: PlanOptions{NewCapability: true},
			want: KindNewCapability,
		},
		{
			name: "new capability with renamed",
			plan: plan(func(p *delta.Plan) { p.Renamed = []delta.Rename{{From: "A", To: "B"}} }),
			opts: PlanOptions{NewCapability: true},
			want: KindNewCapability,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := CheckPlan(tt.plan, tt.opts)
			require.NotEmpty(t, errs)
			assert.Contains(t, kinds(errs), tt.want)

			err := ValidatePlan(tt.plan, tt.opts)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
		})
	}
}

func TestCheckPlan_NewCapabilityAddedOnly(t *testing.T) {
	p := plan(func(p *delta.Plan) { p.Added = []requirement.Block{block("A"), block("B")} })
	assert.Empty(t, CheckPlan(p, PlanOptions{NewCapability: true}))
}

func TestCheckPlan_EmptySectionBesidePopulated(t *testing.T) {
	p := plan(func(p *delta.Plan) {
		p.Added = []requirement.Block{block("C")}
		p.Modified = []requirement.Block{block("B")}
	})
	p.Sections.Removed = true

	assert.Empty(t, CheckPlan(p, PlanOptions{}))
}

func TestCheckPlan_OnlyEmptySections(t *testing.T) {
	p := &delta.Plan{}
	p.Sections.Added = true
	p.Sections.Removed = true

	errs := CheckPlan(p, PlanOptions{})
	require.Len(t, errs, 3)
	assert.Equal(t, []Kind{KindEmptySection, KindEmptySection, KindEmptyPlan}, kinds(errs))
	assert.ElementsMatch(t, []string{"REMOVED", "ADDED"}, []string{errs[0].Section, errs[1].Section})

	err := ValidatePlan(p, PlanOptions{})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), " : ")
}

func TestCheckPlan_OrderInvariance(t *testing.T) {
	base := plan(func(p *delta.Plan) {
		p.Added = []requirement.Block{block("A"), block("B"), block("C"), block("a")}
		p.Modified = []requirement.Block{block("M"), block("N")}
		p.Removed = []string{"R", "N", "S"}
		p.Renamed = []delta.Rename{{From: "F1", To: "T1"}, {From: "F2", To: "T2"}}
	})
	want := len(CheckPlan(base, PlanOptions{}))
	require.Greater(t, want, 0)

	for shift := 1; shift < 4; shift++ {
		p := *base
		p.Added = rotate(base.Added, shift)
		p.Modified = rotate(base.Modified, shift)
		p.Removed = rotate(base.Removed, shift)
		p.Renamed = rotate(base.Renamed, shift)

		got := CheckPlan(&p, PlanOptions{})
		assert.Len(t, got, want, "shift %d", shift)
		assert.ElementsMatch(t, kinds(CheckPlan(base, PlanOptions{})), kinds(got), "shift %d", shift)
	}
}

func rotate[T any](in []T, n int) []T {
	if len(in) == 0 {
		return in
	}
	n %= len(in)
	out := make([]T, 0, len(in))
	out = append(out, in[n:]...)
	return append(out, in[:n]...)
}

func TestCheckDeltaContent(t *testing.T) {
	noKeyword := requirement.Block{Name: "A", Raw: "### Requirement: A\nThe system logs.\n\n#### Scenario: s\nok"}
	noScenario := requirement.Block{Name: "B", Raw: "### Requirement: B\nThe system SHALL log."}
	noText := requirement.Block{Name: "C", Raw: "### Requirement: C\n\n#### Scenario: s\nThe system SHALL log."}

	p := plan(func(p *delta.Plan) {
		p.Added = []requirement.Block{noKeyword, block("OK")}
		p.Modified = []requirement.Block{noScenario, noText}
	})
	errs := CheckDeltaContent(p)
	assert.Equal(t, []Kind{KindMissingKeyword, KindMissingScenario, KindMissingKeyword}, kinds(errs))
	assert.Equal(t, "A", errs[0].Requirement)
	assert.Equal(t, "MODIFIED", errs[1].Section)
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Capability: "auth", Section: "MODIFIED", Requirement: "Login", Kind: KindConflict, Detail: "boom"}
	assert.Equal(t, `auth: MODIFIED "Login": boom`, err.Error())

	section := &ValidationError{Section: "REMOVED", Kind: KindEmptySection, Detail: "empty"}
	assert.Equal(t, "REMOVED: empty", section.Error())

	bare := &ValidationError{Kind: KindEmptyPlan, Detail: "delta contains no operations"}
	assert.Equal(t, "delta contains no operations", bare.Error())
}

const goodSpec = `# auth Specification

## Purpose
Authenticate users with short-lived sessions and keep an audit trail of logins.

## Requirements

### Requirement: Login
The system SHALL accept a username and password.

#### Scenario: ok
- works
`

func TestValidateSpecContent(t *testing.T) {
	rep := ValidateSpecContent("auth", goodSpec, false)
	assert.True(t, rep.Valid, "issues: %v", rep.Messages())
	assert.Equal(t, 0, rep.Summary.Errors)
}

func TestValidateSpecContent_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Kind
	}{
		{"no requirements section", "# x\n\n## Purpose\n" + strings.Repeat("p", 60) + "\n", KindStructure},
		{"no purpose", strings.Replace(goodSpec, "## Purpose", "## Context", 1), KindStructure},
		{"zero requirements", "# x\n\n## Purpose\n" + strings.Repeat("p", 60) + "\n\n## Requirements\n", KindNoRequirements},
		{"missing keyword", strings.Replace(goodSpec, "SHALL", "should", 1), KindMissingKeyword},
		{"missing scenario", strings.Replace(goodSpec, "#### Scenario: ok", "Scenario ok", 1), KindMissingScenario},
		{"duplicate", goodSpec + "\n### Requirement: login\nThe system SHALL x.\n\n#### Scenario: s\n- y\n", KindDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := ValidateSpecContent("auth", tt.content, false)
			assert.False(t, rep.Valid)
			ve := rep.FirstError("auth")
			require.NotNil(t, ve)

			var found bool
			for _, is := range rep.Issues {
				if is.Level == LevelError && is.Kind == tt.want {
					found = true
				}
			}
			assert.True(t, found, "want %s in %v", tt.want, rep.Messages())
		})
	}
}

func TestValidateSpecContent_StrictWarnings(t *testing.T) {
	content := strings.Replace(goodSpec,
		"Authenticate users with short-lived sessions and keep an audit trail of logins.", "Auth.", 1)

	rep := ValidateSpecContent("auth", content, false)
	assert.True(t, rep.Valid)
	assert.Equal(t, 1, rep.Summary.Warnings)

	strict := ValidateSpecContent("auth", content, true)
	assert.False(t, strict.Valid)
}

func TestValidateSpecContent_LongRequirementIsInfo(t *testing.T) {
	long := "The system SHALL " + strings.Repeat("a", MaxRequirementTextLength) + "."
	content := strings.Replace(goodSpec, "The system SHALL accept a username and password.", long, 1)

	rep := ValidateSpecContent("auth", content, true)
	assert.True(t, rep.Valid)
	assert.Equal(t, 1, rep.Summary.Info)
}

func TestFirstError_KeepsDetail(t *testing.T) {
	rep := ValidateSpecContent("auth", strings.Replace(goodSpec, "SHALL", "should", 1), false)
	ve := rep.FirstError("auth")
	require.NotNil(t, ve)
	assert.Equal(t, "Login", ve.Requirement)
	assert.Equal(t, `auth: Requirements "Login": requirement must contain SHALL or MUST`, ve.Error())
}

func TestDeltaReport(t *testing.T) {
	good := "## ADDED Requirements\n\n### Requirement: Export\nThe system SHALL export.\n\n#### Scenario: ok\n- done\n"

	t.Run("valid", func(t *testing.T) {
		rep := DeltaReport([]DeltaEntry{{Capability: "export", Path: "specs/export/spec.md", Content: good}}, false)
		assert.True(t, rep.Valid, "issues: %v", rep.Messages())
	})

	t.Run("no entries", func(t *testing.T) {
		rep := DeltaReport(nil, false)
		assert.False(t, rep.Valid)
		assert.Equal(t, KindNoDeltas, rep.Issues[0].Kind)
	})

	t.Run("no sections", func(t *testing.T) {
		rep := DeltaReport([]DeltaEntry{{Path: "p", Content: "# nothing\n"}}, false)
		assert.False(t, rep.Valid)
		assert.Equal(t, KindEmptyPlan, rep.Issues[0].Kind)
	})

	t.Run("new capability with modified", func(t *testing.T) {
		content := strings.Replace(good, "ADDED", "MODIFIED", 1)
		rep := DeltaReport([]DeltaEntry{{Path: "p", Content: content}}, false)
		assert.False(t, rep.Valid)
		assert.Equal(t, KindNewCapability, rep.Issues[0].Kind)

		rep = DeltaReport([]DeltaEntry{{Path: "p", Content: content, TargetExists: true}}, false)
		assert.True(t, rep.Valid, "issues: %v", rep.Messages())
	})

	t.Run("parse error", func(t *testing.T) {
		rep := DeltaReport([]DeltaEntry{{Path: "p", Content: "## RENAMED Requirements\n- TO: `### Requirement: X`\n"}}, false)
		assert.False(t, rep.Valid)
		assert.Equal(t, KindParse, rep.Issues[0].Kind)
	})
}

func TestRunAll(t *testing.T) {
	var items []Item
	for i := 5; i > 0; i-- {
		id := fmt.Sprintf("item-%d", i)
		valid := i%2 == 0
		items = append(items, Item{ID: id, Type: ItemSpec, Run: func(ctx context.Context) (Report, error) {
			if !valid {
				return NewReport([]Issue{{Level: LevelError, Message: "bad"}}, false), nil
			}
			return NewReport(nil, false), nil
		}})
	}
	items = append(items, Item{ID: "broken", Type: ItemChange, Run: func(ctx context.Context) (Report, error) {
		return Report{}, errors.New("read failed")
	}})

	results, err := RunAll(context.Background(), items, 2)
	require.NoError(t, err)
	require.Len(t, results, 6)
	assert.Equal(t, "broken", results[0].ID)
	assert.Equal(t, "item-1", results[1].ID)
	assert.Equal(t, "item-5", results[5].ID)

	passed, failed := Totals(results)
	assert.Equal(t, 2, passed)
	assert.Equal(t, 4, failed)
}

func TestRunAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := []Item{{ID: "a", Type: ItemSpec, Run: func(ctx context.Context) (Report, error) { return NewReport(nil, false), nil }}}
	_, err := RunAll(ctx, items, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
