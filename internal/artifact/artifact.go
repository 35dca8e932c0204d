package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Kind distinguishes main specs from delta documents.
type Kind string

const (
	KindSpec  Kind = "spec"
	KindDelta Kind = "delta"
)

// Artifact is a markdown document read from disk.
type Artifact struct {
	Kind       Kind
	Capability string
	Path       string
	Content    string
	Exists     bool
	ModTime    time.Time
}

// Load reads an artifact. A missing file is not an error: the result has
// Exists set to false and empty content.
func Load(path string, kind Kind, capability string) (*Artifact, error) {
	a := &Artifact{Kind: kind, Capability: capability, Path: path}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("expected file but found directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	a.Content = string(data)
	a.Exists = true
	a.ModTime = info.ModTime()
	return a, nil
}

// rename is swapped in tests to simulate commit failures.
var rename = DefaultRenameRetry

// RenameWithRetry renames oldPath to newPath. On Windows, where renames
// fail while another process holds the target open, it retries with
// exponential backoff. Elsewhere the first error is permanent.
func RenameWithRetry(oldPath, newPath string, maxRetries int, initialDelay time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := os.Rename(oldPath, newPath)
		if err != nil && runtime.GOOS != "windows" {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithMaxRetries(bo, uint64(maxRetries)))
	if err != nil {
		return fmt.Errorf("rename failed after %d attempt(s): %w", attempts, err)
	}
	return nil
}

// DefaultRenameRetry retries 3 times starting at 100ms.
func DefaultRenameRetry(oldPath, newPath string) error {
	return RenameWithRetry(oldPath, newPath, 3, 100*time.Millisecond)
}

// WriteAtomic writes data to a temp file next to path and renames it into
// place, so readers never observe a partial file.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	tmp, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	if err := rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func writeTemp(path string, data []byte, perm os.FileMode) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
