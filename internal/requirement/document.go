package requirement

import (
	"fmt"
	"strings"
)

// Document is a spec split around its Requirements section.
type Document struct {
	// Preamble is everything before the Requirements header (title, Purpose).
	Preamble string
	// HeaderLine is the Requirements header, verbatim.
	HeaderLine string
	// Intro is free text between the header and the first requirement.
	Intro  string
	Blocks []Block
	// After holds the next level-2 section onward, normally empty.
	After string
}

// Parse splits a spec-shaped document. It fails with a ParseError wrapping
// ErrNoRequirementsSection when no Requirements header exists, so callers can
// tell a missing section from an empty one.
func Parse(content string) (*Document, error) {
	lines := strings.Split(NormalizeLineEndings(content), "\n")

	headerIdx := -1
	for i, line := range lines {
		if requirementsTitleRe.MatchString(line) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, &ParseError{Msg: "document has no Requirements section", Err: ErrNoRequirementsSection}
	}

	end := len(lines)
	for i := headerIdx + 1; i < len(lines); i++ {
		if IsSectionHeader(lines[i]) {
			end = i
			break
		}
	}

	intro, blocks, err := ParseBlocks(lines[headerIdx+1:end], headerIdx+2)
	if err != nil {
		return nil, err
	}

	return &Document{
		Preamble:   strings.Join(lines[:headerIdx], "\n"),
		HeaderLine: lines[headerIdx],
		Intro:      intro,
		Blocks:     blocks,
		After:      strings.Join(lines[end:], "\n"),
	}, nil
}

// ParseBlocks partitions section body lines into requirement blocks. Text
// before the first requirement header is returned as the intro. firstLine is
// the 1-based document line number of lines[0], used in errors.
func ParseBlocks(lines []string, firstLine int) (string, []Block, error) {
	i := 0
	for i < len(lines) && !IsRequirementHeader(lines[i]) {
		i++
	}
	intro := strings.Trim(strings.Join(lines[:i], "\n"), "\n")

	var blocks []Block
	for i < len(lines) {
		header := lines[i]
		name, ok := HeaderName(header)
		if !ok || name == "" {
			return "", nil, &ParseError{
				Line: firstLine + i,
				Msg:  fmt.Sprintf("requirement header %q has no name", strings.TrimSpace(header)),
			}
		}
		buf := []string{header}
		i++
		for i < len(lines) && !IsRequirementHeader(lines[i]) && !IsSectionHeader(lines[i]) {
			buf = append(buf, lines[i])
			i++
		}
		blocks = append(blocks, Block{
			Name:       name,
			HeaderLine: header,
			Raw:        strings.TrimRight(strings.Join(buf, "\n"), " \t\n"),
		})
		if i < len(lines) && IsSectionHeader(lines[i]) {
			break
		}
	}
	return intro, blocks, nil
}

// AppendSection adds an empty Requirements section to a document that has
// none.
func AppendSection(content, headerLine string) string {
	content = strings.TrimRight(NormalizeLineEndings(content), " \t\n")
	if content == "" {
		return headerLine + "\n"
	}
	return content + "\n\n" + headerLine + "\n"
}

// Render reassembles the document. Blocks are separated by one blank line
// and runs of blank lines are collapsed.
func (d *Document) Render() string {
	raws := make([]string, 0, len(d.Blocks)+1)
	if intro := strings.Trim(d.Intro, "\n"); strings.TrimSpace(intro) != "" {
		raws = append(raws, intro)
	}
	for _, b := range d.Blocks {
		raws = append(raws, b.Raw)
	}
	body := strings.Join(raws, "\n\n")

	var sb strings.Builder
	if pre := strings.TrimRight(d.Preamble, " \t\n"); pre != "" {
		sb.WriteString(pre)
		sb.WriteString("\n\n")
	}
	sb.WriteString(d.HeaderLine)
	sb.WriteString("\n")
	if body != "" {
		sb.WriteString("\n")
		sb.WriteString(body)
		sb.WriteString("\n")
	}
	if after := strings.Trim(d.After, "\n"); strings.TrimSpace(after) != "" {
		sb.WriteString("\n")
		sb.WriteString(after)
		sb.WriteString("\n")
	}
	return CollapseBlankLines(sb.String())
}

// Find returns the block whose normalized name matches name.
func (d *Document) Find(name string) (Block, bool) {
	key := Normalize(name)
	for _, b := range d.Blocks {
		if b.Key() == key {
			return b, true
		}
	}
	return Block{}, false
}

// Duplicates returns display names that collide with an earlier block.
func (d *Document) Duplicates() []string {
	seen := make(map[Name]bool, len(d.Blocks))
	var dups []string
	for _, b := range d.Blocks {
		if seen[b.Key()] {
			dups = append(dups, b.Name)
			continue
		}
		seen[b.Key()] = true
	}
	return dups
}

// Title returns the first level-1 heading of the preamble.
func (d *Document) Title() string {
	for _, line := range strings.Split(d.Preamble, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// Purpose returns the body of the Purpose section and whether the section
// exists. It is looked up before and after the Requirements section.
func (d *Document) Purpose() (string, bool) {
	for _, part := range []string{d.Preamble, d.After} {
		if text, ok := sectionBody(part, purposeTitleRe.MatchString); ok {
			return text, true
		}
	}
	return "", false
}

func sectionBody(content string, isTitle func(string) bool) (string, bool) {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if !isTitle(line) {
			continue
		}
		var body []string
		for _, l := range lines[i+1:] {
			if IsSectionHeader(l) || strings.HasPrefix(l, "# ") {
				break
			}
			body = append(body, l)
		}
		return strings.TrimSpace(strings.Join(body, "\n")), true
	}
	return "", false
}
