package requirement

import (
	"strings"
)

// Name is the normalized lookup key of a requirement. Two display names
// that differ only in surrounding whitespace, internal whitespace runs or
// letter case map to the same Name.
type Name string

// Normalize derives the lookup key for a display name.
func Normalize(name string) Name {
	return Name(strings.ToLower(strings.Join(strings.Fields(name), " ")))
}

// Block is one named requirement: its header line through the next sibling
// header, scenarios included.
type Block struct {
	Name       string `json:"name"`
	HeaderLine string `json:"header_line"`
	Raw        string `json:"raw"`
}

// Key returns the normalized name of the block.
func (b Block) Key() Name {
	return Normalize(b.Name)
}

// ScenarioCount counts the level-4 headers embedded in the block.
func (b Block) ScenarioCount() int {
	return len(scenarioHeaderRe.FindAllStringIndex(b.Raw, -1))
}

// RequirementText returns the first body line that is neither blank nor a
// **Key**: metadata line, stopping at the first scenario header. Empty when
// the block has no such line.
func (b Block) RequirementText() string {
	lines := strings.Split(b.Raw, "\n")
	for _, line := range lines[1:] {
		if scenarioHeaderRe.MatchString(line) {
			break
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || metadataLineRe.MatchString(trimmed) {
			continue
		}
		return trimmed
	}
	return ""
}

// Body returns the block text after the header line.
func (b Block) Body() string {
	if i := strings.IndexByte(b.Raw, '\n'); i >= 0 {
		return b.Raw[i+1:]
	}
	return ""
}

// HeaderStyle is the verbatim shape of a requirement header: everything
// around the name.
type HeaderStyle struct {
	Prefix    string
	Keyword   string
	Separator string
}

// DefaultStyle returns the canonical header shape for a locale.
func DefaultStyle(l Locale) HeaderStyle {
	v := VocabularyFor(l)
	return HeaderStyle{Prefix: "### ", Keyword: v.Requirement, Separator: v.Colon + " "}
}

// Style reports the header shape used by the block. Blocks whose header
// cannot be parsed report the English default.
func (b Block) Style() HeaderStyle {
	m := requirementHeaderRe.FindStringSubmatch(b.HeaderLine)
	if m == nil {
		return DefaultStyle(LocaleEnglish)
	}
	return HeaderStyle{Prefix: m[1], Keyword: m[2], Separator: m[3]}
}

// Header renders a header line for name in this style.
func (s HeaderStyle) Header(name string) string {
	return s.Prefix + s.Keyword + s.Separator + name
}

// Renamed returns a copy of the block under a new name. Only the header line
// changes; the body is kept verbatim.
func (b Block) Renamed(name string, style HeaderStyle) Block {
	header := style.Header(name)
	raw := header
	if parts := strings.SplitN(b.Raw, "\n", 2); len(parts) == 2 {
		raw = header + "\n" + parts[1]
	}
	return Block{Name: name, HeaderLine: header, Raw: raw}
}
