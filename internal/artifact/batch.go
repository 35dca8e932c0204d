package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Batch stages several file writes and commits them together. If any
// rename fails, files already committed are restored to their previous
// content and newly created files and directories are removed.
type Batch struct {
	entries []*entry
	done    bool
}

type entry struct {
	path      string
	tmp       string
	prev      []byte
	existed   bool
	madeDirs  []string // deepest first
	committed bool
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Len returns the number of staged writes.
func (b *Batch) Len() int { return len(b.entries) }

// Paths returns the staged target paths in staging order.
func (b *Batch) Paths() []string {
	out := make([]string, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.path)
	}
	return out
}

// Stage writes content to a temp file beside path. The target is not
// touched until Commit.
func (b *Batch) Stage(path string, content []byte) error {
	if b.done {
		return errors.New("batch already finished")
	}
	e := &entry{path: path}

	prev, err := os.ReadFile(path)
	switch {
	case err == nil:
		e.prev, e.existed = prev, true
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	dirs, err := mkdirTracked(filepath.Dir(path))
	if err != nil {
		return err
	}
	e.madeDirs = dirs

	tmp, err := writeTemp(path, content, 0644)
	if err != nil {
		removeDirs(dirs)
		return err
	}
	e.tmp = tmp
	b.entries = append(b.entries, e)
	return nil
}

// Commit renames every staged file into place. On failure it rolls back
// and returns the rename error.
func (b *Batch) Commit() error {
	if b.done {
		return errors.New("batch already finished")
	}
	b.done = true
	for _, e := range b.entries {
		if err := rename(e.tmp, e.path); err != nil {
			rbErr := b.rollback()
			if rbErr != nil {
				return fmt.Errorf("commit %s: %w (rollback: %v)", e.path, err, rbErr)
			}
			return fmt.Errorf("commit %s: %w", e.path, err)
		}
		e.committed = true
	}
	return nil
}

// Discard removes staged temp files and any directories Stage created.
func (b *Batch) Discard() {
	if b.done {
		return
	}
	b.done = true
	for i := len(b.entries) - 1; i >= 0; i-- {
		e := b.entries[i]
		os.Remove(e.tmp)
		removeDirs(e.madeDirs)
	}
}

func (b *Batch) rollback() error {
	var errs []error
	for i := len(b.entries) - 1; i >= 0; i-- {
		e := b.entries[i]
		if !e.committed {
			os.Remove(e.tmp)
			removeDirs(e.madeDirs)
			continue
		}
		if e.existed {
			if err := os.WriteFile(e.path, e.prev, 0644); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
		removeDirs(e.madeDirs)
	}
	return errors.Join(errs...)
}

// mkdirTracked creates dir and returns the directories that did not exist
// before, deepest first.
func mkdirTracked(dir string) ([]string, error) {
	var missing []string
	for d := dir; ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			break
		}
		missing = append(missing, d)
		if filepath.Dir(d) == d {
			break
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return missing, nil
}

// removeDirs removes directories that are empty, deepest first.
func removeDirs(dirs []string) {
	for _, d := range dirs {
		if err := os.Remove(d); err != nil {
			return
		}
	}
}
