package change

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kokistudios/specledger/internal/store"
)

// ErrNotFound is returned when a change directory does not exist.
var ErrNotFound = errors.New("change not found")

// DeltaPattern locates delta documents inside a change directory.
const DeltaPattern = "specs/*/spec.md"

// Change is an active change directory.
type Change struct {
	Name     string     `json:"name" yaml:"name"`
	Path     string     `json:"path" yaml:"path"`
	Progress Progress   `json:"progress" yaml:"progress"`
	Deltas   []DeltaDoc `json:"deltas" yaml:"deltas"`
	ModTime  time.Time  `json:"modified" yaml:"modified"`
}

// DeltaDoc is one capability's delta document within a change.
type DeltaDoc struct {
	Capability string `json:"capability" yaml:"capability"`
	Path       string `json:"path" yaml:"path"`
}

// Progress counts checkbox tasks in tasks.md.
type Progress struct {
	Total     int `json:"total" yaml:"total"`
	Completed int `json:"completed" yaml:"completed"`
}

// Incomplete returns the number of unchecked tasks.
func (p Progress) Incomplete() int { return p.Total - p.Completed }

func (p Progress) String() string {
	if p.Total == 0 {
		return "no tasks"
	}
	return fmt.Sprintf("%d/%d tasks", p.Completed, p.Total)
}

// taskLinePattern matches markdown checkbox items: - [ ] or - [x]
var taskLinePattern = regexp.MustCompile(`^[-*]\s*\[([ xX])\]\s*(.+)$`)

// ParseProgress counts checkbox items in tasks.md content.
func ParseProgress(content string) Progress {
	var p Progress
	for _, line := range strings.Split(content, "\n") {
		m := taskLinePattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		p.Total++
		if m[1] == "x" || m[1] == "X" {
			p.Completed++
		}
	}
	return p
}

// TaskProgress reads tasks.md in dir. A missing file counts as no tasks.
func TaskProgress(dir string) (Progress, error) {
	data, err := os.ReadFile(filepath.Join(dir, "tasks.md"))
	if errors.Is(err, fs.ErrNotExist) {
		return Progress{}, nil
	}
	if err != nil {
		return Progress{}, fmt.Errorf("cannot read tasks.md: %w", err)
	}
	return ParseProgress(string(data)), nil
}

// DeltaDocs returns the delta documents of a change, sorted by capability.
func DeltaDocs(changeDir string) ([]DeltaDoc, error) {
	matches, err := doublestar.Glob(os.DirFS(changeDir), DeltaPattern)
	if err != nil {
		return nil, fmt.Errorf("cannot scan %s: %w", changeDir, err)
	}
	sort.Strings(matches)

	docs := make([]DeltaDoc, 0, len(matches))
	for _, m := range matches {
		parts := strings.Split(m, "/")
		docs = append(docs, DeltaDoc{
			Capability: parts[1],
			Path:       filepath.Join(changeDir, filepath.FromSlash(m)),
		})
	}
	return docs, nil
}

// Exists reports whether the named change directory exists.
func Exists(s *store.Store, name string) bool {
	info, err := os.Stat(s.ChangeDir(name))
	return err == nil && info.IsDir()
}

// Get loads a change by name.
func Get(s *store.Store, name string) (*Change, error) {
	if name == "" || name == "archive" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	dir := s.ChangeDir(name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	progress, err := TaskProgress(dir)
	if err != nil {
		return nil, err
	}
	deltas, err := DeltaDocs(dir)
	if err != nil {
		return nil, err
	}
	return &Change{
		Name:     name,
		Path:     dir,
		Progress: progress,
		Deltas:   deltas,
		ModTime:  info.ModTime(),
	}, nil
}

// List returns all active changes sorted by name. The archive directory is
// skipped.
func List(s *store.Store) ([]Change, error) {
	entries, err := os.ReadDir(s.ChangesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot read changes directory: %w", err)
	}

	var changes []Change
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "archive" || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		c, err := Get(s, e.Name())
		if err != nil {
			continue
		}
		changes = append(changes, *c)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Name < changes[j].Name })
	return changes, nil
}

// ArchiveName returns the archive directory name for a change, e.g.
// 2025-01-31-add-export.
func ArchiveName(name string, now time.Time, layout string) string {
	if layout == "" {
		layout = "2006-01-02"
	}
	return now.Format(layout) + "-" + name
}
