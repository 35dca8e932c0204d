package delta

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kokistudios/specledger/internal/requirement"
)

// Section identifies one of the four delta operation kinds.
type Section string

const (
	SectionAdded    Section = "ADDED"
	SectionModified Section = "MODIFIED"
	SectionRemoved  Section = "REMOVED"
	SectionRenamed  Section = "RENAMED"
)

// Sections lists the kinds in merge application order.
var Sections = []Section{SectionRenamed, SectionRemoved, SectionModified, SectionAdded}

// Rename is one FROM/TO pair of a RENAMED section.
type Rename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SectionPresence records which section headers appeared, whether or not
// they yielded entries.
type SectionPresence struct {
	Added    bool `json:"added"`
	Modified bool `json:"modified"`
	Removed  bool `json:"removed"`
	Renamed  bool `json:"renamed"`
}

// Has reports whether the header for s appeared.
func (p SectionPresence) Has(s Section) bool {
	switch s {
	case SectionAdded:
		return p.Added
	case SectionModified:
		return p.Modified
	case SectionRemoved:
		return p.Removed
	case SectionRenamed:
		return p.Renamed
	}
	return false
}

func (p *SectionPresence) mark(s Section) {
	switch s {
	case SectionAdded:
		p.Added = true
	case SectionModified:
		p.Modified = true
	case SectionRemoved:
		p.Removed = true
	case SectionRenamed:
		p.Renamed = true
	}
}

// Plan is the parsed intent of one delta document.
type Plan struct {
	Added    []requirement.Block `json:"added"`
	Modified []requirement.Block `json:"modified"`
	Removed  []string            `json:"removed"`
	Renamed  []Rename            `json:"renamed"`
	Sections SectionPresence     `json:"sections"`
}

// Total returns the number of operations across all sections.
func (p *Plan) Total() int {
	return len(p.Added) + len(p.Modified) + len(p.Removed) + len(p.Renamed)
}

// Count returns the number of entries parsed for s.
func (p *Plan) Count(s Section) int {
	switch s {
	case SectionAdded:
		return len(p.Added)
	case SectionModified:
		return len(p.Modified)
	case SectionRemoved:
		return len(p.Removed)
	case SectionRenamed:
		return len(p.Renamed)
	}
	return 0
}

// HasSections reports whether any delta section header appeared.
func (p *Plan) HasSections() bool {
	s := p.Sections
	return s.Added || s.Modified || s.Removed || s.Renamed
}

var (
	bulletHeaderRe = regexp.MustCompile("^\\s*[-*]\\s+`?(###[^`]*)`?\\s*$")
	renameLineRe   = regexp.MustCompile("(?i)^\\s*(?:[-*]\\s+)?(FROM|TO)\\s*[:：]\\s*((?:`|###).*?)\\s*$")
)

// sectionFor maps a level-2 title to a delta section in either locale.
func sectionFor(title string) (Section, bool) {
	title = strings.Join(strings.Fields(title), " ")
	for _, l := range []requirement.Locale{requirement.LocaleEnglish, requirement.LocaleChinese} {
		v := requirement.VocabularyFor(l)
		switch {
		case strings.EqualFold(title, v.Added):
			return SectionAdded, true
		case strings.EqualFold(title, v.Modified):
			return SectionModified, true
		case strings.EqualFold(title, v.Removed):
			return SectionRemoved, true
		case strings.EqualFold(title, v.Renamed):
			return SectionRenamed, true
		}
	}
	return "", false
}

type chunk struct {
	section   Section
	firstLine int
	lines     []string
}

// Parse builds a Plan from delta document text. Unrecognized level-2
// sections are ignored. A document with no delta sections yields an empty
// plan and no error.
func Parse(content string) (*Plan, error) {
	lines := strings.Split(requirement.NormalizeLineEndings(content), "\n")

	var chunks []*chunk
	var cur *chunk
	for i, line := range lines {
		if requirement.IsSectionHeader(line) {
			cur = nil
			if title, ok := requirement.SectionTitle(line); ok {
				if s, ok := sectionFor(title); ok {
					cur = &chunk{section: s, firstLine: i + 2}
					chunks = append(chunks, cur)
				}
			}
			continue
		}
		if cur != nil {
			cur.lines = append(cur.lines, line)
		}
	}

	plan := &Plan{}
	for _, c := range chunks {
		plan.Sections.mark(c.section)
		var err error
		switch c.section {
		case SectionAdded, SectionModified:
			var blocks []requirement.Block
			_, blocks, err = requirement.ParseBlocks(c.lines, c.firstLine)
			if c.section == SectionAdded {
				plan.Added = append(plan.Added, blocks...)
			} else {
				plan.Modified = append(plan.Modified, blocks...)
			}
		case SectionRemoved:
			var names []string
			names, err = parseRemoved(c)
			plan.Removed = append(plan.Removed, names...)
		case SectionRenamed:
			var pairs []Rename
			pairs, err = parseRenamed(c)
			plan.Renamed = append(plan.Renamed, pairs...)
		}
		if err != nil {
			return nil, inSection(err, c.section)
		}
	}
	return plan, nil
}

func inSection(err error, s Section) error {
	var pe *requirement.ParseError
	if errors.As(err, &pe) && pe.Section == "" {
		pe.Section = string(s)
	}
	return err
}

// parseRemoved accepts full requirement blocks or bullet lists of header
// lines. Only names are kept.
func parseRemoved(c *chunk) ([]string, error) {
	var names []string
	for i, line := range c.lines {
		header := ""
		switch {
		case requirement.IsRequirementHeader(line):
			header = line
		default:
			if m := bulletHeaderRe.FindStringSubmatch(line); m != nil && requirement.IsRequirementHeader(m[1]) {
				header = m[1]
			}
		}
		if header == "" {
			continue
		}
		name, ok := requirement.HeaderName(header)
		if !ok || name == "" {
			return nil, &requirement.ParseError{
				Line: c.firstLine + i,
				Msg:  fmt.Sprintf("requirement header %q has no name", strings.TrimSpace(header)),
			}
		}
		names = append(names, name)
	}
	return names, nil
}

// parseRenamed reads FROM/TO line pairs. Each FROM must be followed by a TO
// before the next FROM. A FROM/TO line whose value is neither backticked nor
// a ### header is prose and is skipped.
func parseRenamed(c *chunk) ([]Rename, error) {
	var pairs []Rename
	var from string
	fromLine := 0
	for i, line := range c.lines {
		m := renameLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo := c.firstLine + i
		name, err := renameTarget(m[2], lineNo)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(m[1], "FROM") {
			if fromLine != 0 {
				return nil, &requirement.ParseError{
					Line: fromLine,
					Msg:  fmt.Sprintf("FROM %q has no matching TO", from),
				}
			}
			from, fromLine = name, lineNo
			continue
		}
		if fromLine == 0 {
			return nil, &requirement.ParseError{
				Line: lineNo,
				Msg:  fmt.Sprintf("TO %q has no preceding FROM", name),
			}
		}
		pairs = append(pairs, Rename{From: from, To: name})
		from, fromLine = "", 0
	}
	if fromLine != 0 {
		return nil, &requirement.ParseError{
			Line: fromLine,
			Msg:  fmt.Sprintf("FROM %q has no matching TO", from),
		}
	}
	return pairs, nil
}

func renameTarget(value string, line int) (string, error) {
	header := strings.TrimSpace(strings.Trim(strings.TrimSpace(value), "`"))
	name, ok := requirement.HeaderName(header)
	if !ok || !requirement.IsRequirementHeader(header) {
		return "", &requirement.ParseError{
			Line: line,
			Msg:  fmt.Sprintf("%q is not a requirement header", header),
		}
	}
	if name == "" {
		return "", &requirement.ParseError{
			Line: line,
			Msg:  fmt.Sprintf("requirement header %q has no name", header),
		}
	}
	return name, nil
}
