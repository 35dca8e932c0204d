package requirement

import (
	"regexp"
	"strings"
)

// Locale selects the keyword set used when new headers are synthesized.
// Parsing always accepts both sets.
type Locale string

const (
	LocaleEnglish Locale = "en"
	LocaleChinese Locale = "zh"
)

// Vocabulary holds the header keywords for one locale.
type Vocabulary struct {
	Requirements string // level-2 section title
	Requirement  string // level-3 block keyword, without the colon
	Colon        string
	Purpose      string
	Scenario     string
	Added        string
	Modified     string
	Removed      string
	Renamed      string
}

var vocabularies = map[Locale]Vocabulary{
	LocaleEnglish: {
		Requirements: "Requirements",
		Requirement:  "Requirement",
		Colon:        ":",
		Purpose:      "Purpose",
		Scenario:     "Scenario",
		Added:        "ADDED Requirements",
		Modified:     "MODIFIED Requirements",
		Removed:      "REMOVED Requirements",
		Renamed:      "RENAMED Requirements",
	},
	LocaleChinese: {
		Requirements: "需求",
		Requirement:  "需求",
		Colon:        "：",
		Purpose:      "目的",
		Scenario:     "场景",
		Added:        "新增需求",
		Modified:     "修改需求",
		Removed:      "移除需求",
		Renamed:      "重命名需求",
	},
}

// VocabularyFor returns the keyword set for l, falling back to English.
func VocabularyFor(l Locale) Vocabulary {
	if v, ok := vocabularies[l]; ok {
		return v
	}
	return vocabularies[LocaleEnglish]
}

// ParseLocale maps a config value to a Locale.
func ParseLocale(s string) Locale {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zh", "zh-cn", "cn", "chinese":
		return LocaleChinese
	default:
		return LocaleEnglish
	}
}

const requirementKeyword = `(?:Requirement|需求)`

var (
	// requirementHeaderRe captures prefix, keyword, separator and name.
	requirementHeaderRe = regexp.MustCompile(`^(###\s*)(Requirement|需求)(\s*[:：]\s*)(.+?)\s*$`)
	requirementStartRe  = regexp.MustCompile(`^###\s+` + requirementKeyword + `\s*[:：]`)
	sectionHeaderRe     = regexp.MustCompile(`^##\s+`)
	sectionTitleRe      = regexp.MustCompile(`^##\s+(.+?)\s*$`)
	requirementsTitleRe = regexp.MustCompile(`(?i)^##\s+(?:Requirements|需求)\s*$`)
	purposeTitleRe      = regexp.MustCompile(`(?i)^##\s+(?:Purpose|目的)\s*$`)
	scenarioHeaderRe    = regexp.MustCompile(`(?m)^####\s+`)
	metadataLineRe      = regexp.MustCompile(`^\*\*[^*]+\*\*:`)
	normativeRe         = regexp.MustCompile(`\b(?:SHALL|MUST)\b`)
	blankRunRe          = regexp.MustCompile(`\n{3,}`)
)

// HasNormativeKeyword reports whether text carries one of the recognized
// imperative markers.
func HasNormativeKeyword(text string) bool {
	if normativeRe.MatchString(text) {
		return true
	}
	return strings.Contains(text, "必须") || strings.Contains(text, "禁止")
}

// IsRequirementHeader reports whether line opens a requirement block.
func IsRequirementHeader(line string) bool {
	return requirementStartRe.MatchString(line)
}

// IsSectionHeader reports whether line is a level-2 header.
func IsSectionHeader(line string) bool {
	return sectionHeaderRe.MatchString(line)
}

// SectionTitle returns the title of a level-2 header line.
func SectionTitle(line string) (string, bool) {
	m := sectionTitleRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// HeaderName extracts the requirement name from a header line.
func HeaderName(line string) (string, bool) {
	m := requirementHeaderRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[4]), true
}

// NormalizeLineEndings converts CRLF and lone CR to LF.
func NormalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// CollapseBlankLines reduces runs of three or more newlines to one blank line.
func CollapseBlankLines(s string) string {
	return blankRunRe.ReplaceAllString(s, "\n\n")
}
