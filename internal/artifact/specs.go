package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kokistudios/specledger/internal/requirement"
)

// SpecInfo summarizes one main spec.
type SpecInfo struct {
	Capability   string    `json:"id" yaml:"id"`
	Path         string    `json:"path" yaml:"path"`
	Title        string    `json:"title" yaml:"title"`
	Requirements int       `json:"requirements" yaml:"requirements"`
	ModTime      time.Time `json:"modified" yaml:"modified"`
}

// ListSpecs returns every <capability>/spec.md under specsDir, sorted by
// capability. Specs that fail to parse are listed with zero requirements.
func ListSpecs(specsDir string) ([]SpecInfo, error) {
	entries, err := os.ReadDir(specsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot read specs directory: %w", err)
	}

	var specs []SpecInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(specsDir, e.Name(), "spec.md")
		a, err := Load(path, KindSpec, e.Name())
		if err != nil {
			return nil, err
		}
		if !a.Exists {
			continue
		}
		info := SpecInfo{Capability: e.Name(), Path: path, Title: e.Name(), ModTime: a.ModTime}
		if doc, err := requirement.Parse(a.Content); err == nil {
			info.Requirements = len(doc.Blocks)
			if title := doc.Title(); title != "" {
				info.Title = title
			}
		}
		specs = append(specs, info)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Capability < specs[j].Capability })
	return specs, nil
}
