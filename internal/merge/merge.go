package merge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kokistudios/specledger/internal/delta"
	"github.com/kokistudios/specledger/internal/requirement"
	"github.com/kokistudios/specledger/internal/validation"
)

// Counts tallies applied operations.
type Counts struct {
	Added    int `json:"added"`
	Modified int `json:"modified"`
	Removed  int `json:"removed"`
	Renamed  int `json:"renamed"`
}

// Add accumulates o into c.
func (c *Counts) Add(o Counts) {
	c.Added += o.Added
	c.Modified += o.Modified
	c.Removed += o.Removed
	c.Renamed += o.Renamed
}

// Total returns the number of applied operations.
func (c Counts) Total() int {
	return c.Added + c.Modified + c.Removed + c.Renamed
}

func (c Counts) String() string {
	return fmt.Sprintf("+ %d, ~ %d, - %d, → %d", c.Added, c.Modified, c.Removed, c.Renamed)
}

// Options controls merge output.
type Options struct {
	Capability string
	ChangeName string
	// Locale selects the keywords of a synthesized skeleton and of renamed
	// headers when PreserveHeaderStyle is off.
	Locale requirement.Locale
	// PreserveHeaderStyle keeps the original keyword and separator of a
	// renamed block's header.
	PreserveHeaderStyle bool
}

// Result is an in-memory merge outcome.
type Result struct {
	Rebuilt string
	Counts  Counts
	Created bool
}

// Skeleton returns the document synthesized for a new capability.
func Skeleton(capability, changeName string, locale requirement.Locale) string {
	v := requirement.VocabularyFor(locale)
	return fmt.Sprintf("# %s Specification\n\n## %s\nTBD - created by archiving change %s. Update Purpose after archive.\n\n## %s\n",
		capability, v.Purpose, changeName, v.Requirements)
}

// ParseBase parses an existing spec. A spec without a Requirements section
// gets an empty one appended.
func ParseBase(content string, locale requirement.Locale) (*requirement.Document, error) {
	doc, err := requirement.Parse(content)
	if errors.Is(err, requirement.ErrNoRequirementsSection) {
		header := "## " + requirement.VocabularyFor(locale).Requirements
		return requirement.Parse(requirement.AppendSection(content, header))
	}
	return doc, err
}

// Merge folds plan into base, or into a fresh skeleton when base is nil.
// Non-empty plans are validated first; a plan without any section is a
// no-op that re-renders base. Operations apply in the order RENAMED,
// REMOVED, MODIFIED, ADDED. Surviving blocks keep their original slots and
// new blocks are appended in plan order.
func Merge(plan *delta.Plan, base *requirement.Document, opts Options) (*Result, error) {
	created := base == nil
	if plan.Total() > 0 || plan.HasSections() {
		if err := validation.ValidatePlan(plan, validation.PlanOptions{NewCapability: created}); err != nil {
			return nil, tag(err, opts.Capability)
		}
	}
	if created {
		doc, err := requirement.Parse(Skeleton(opts.Capability, opts.ChangeName, opts.Locale))
		if err != nil {
			return nil, err
		}
		base = doc
	}

	m, dups := newOrderedMap(base.Blocks)
	if len(dups) > 0 {
		return nil, fail(opts, validation.KindDuplicate, "Requirements", dups[0], "target spec has duplicate requirement")
	}

	var counts Counts

	for _, r := range plan.Renamed {
		from, to := requirement.Normalize(r.From), requirement.Normalize(r.To)
		b, ok := m.get(from)
		if !ok {
			return nil, fail(opts, validation.KindMissingTarget, string(delta.SectionRenamed), r.From, "source not found in target spec")
		}
		if to != from && m.has(to) {
			return nil, fail(opts, validation.KindTargetExists, string(delta.SectionRenamed), r.To, "target already exists in spec")
		}
		style := requirement.DefaultStyle(opts.Locale)
		if opts.PreserveHeaderStyle {
			style = b.Style()
		}
		m.rename(from, to, b.Renamed(strings.TrimSpace(r.To), style))
		counts.Renamed++
	}

	for _, name := range plan.Removed {
		key := requirement.Normalize(name)
		if !m.has(key) {
			return nil, fail(opts, validation.KindMissingTarget, string(delta.SectionRemoved), name, "not found in target spec")
		}
		m.delete(key)
		counts.Removed++
	}

	for _, b := range plan.Modified {
		key := b.Key()
		if !m.has(key) {
			return nil, fail(opts, validation.KindMissingTarget, string(delta.SectionModified), b.Name, "not found in target spec")
		}
		if name, ok := requirement.HeaderName(b.HeaderLine); !ok || requirement.Normalize(name) != key {
			return nil, fail(opts, validation.KindHeaderMismatch, string(delta.SectionModified), b.Name,
				"header %q does not match requirement name", strings.TrimSpace(b.HeaderLine))
		}
		m.set(key, b)
		counts.Modified++
	}

	for _, b := range plan.Added {
		if m.has(b.Key()) {
			return nil, fail(opts, validation.KindTargetExists, string(delta.SectionAdded), b.Name, "already exists in target spec")
		}
		m.set(b.Key(), b)
		counts.Added++
	}

	doc := *base
	doc.Blocks = m.values()
	return &Result{Rebuilt: doc.Render(), Counts: counts, Created: created}, nil
}

func fail(opts Options, kind validation.Kind, section, req, format string, args ...any) error {
	return &validation.ValidationError{
		Capability:  opts.Capability,
		Section:     section,
		Requirement: req,
		Kind:        kind,
		Detail:      fmt.Sprintf(format, args...),
	}
}

func tag(err error, capability string) error {
	var ve *validation.ValidationError
	if capability != "" && errors.As(err, &ve) && ve.Capability == "" {
		return ve.WithCapability(capability)
	}
	return err
}
