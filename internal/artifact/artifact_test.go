package artifact

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestLoad_Existing(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "spec.md")
	os.WriteFile(p, []byte("# auth Specification\n"), 0644)

	a, err := Load(p, KindSpec, "auth")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Exists {
		t.Error("expected Exists = true")
	}
	if a.Content != "# auth Specification\n" {
		t.Errorf("content = %q", a.Content)
	}
	if a.Capability != "auth" || a.Kind != KindSpec {
		t.Errorf("capability/kind = %q/%q", a.Capability, a.Kind)
	}
}

func TestLoad_Missing(t *testing.T) {
	a, err := Load(filepath.Join(t.TempDir(), "nope", "spec.md"), KindSpec, "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Exists {
		t.Error("expected Exists = false for missing file")
	}
	if a.Content != "" {
		t.Errorf("expected empty content, got %q", a.Content)
	}
}

func TestLoad_Directory(t *testing.T) {
	if _, err := Load(t.TempDir(), KindSpec, "x"); err == nil {
		t.Fatal("expected error for directory path")
	}
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "specs", "auth", "spec.md")

	if err := WriteAtomic(p, []byte("one"), 0644); err != nil {
		t.Fatalf("WriteAtomic failed: %v", err)
	}
	if err := WriteAtomic(p, []byte("two"), 0644); err != nil {
		t.Fatalf("WriteAtomic failed: %v", err)
	}
	data, _ := os.ReadFile(p)
	if string(data) != "two" {
		t.Errorf("content = %q, want %q", data, "two")
	}
	assertNoTempFiles(t, filepath.Dir(p))
}

func TestBatch_Commit(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "specs", "a", "spec.md")
	os.MkdirAll(filepath.Dir(existing), 0755)
	os.WriteFile(existing, []byte("old a"), 0644)
	created := filepath.Join(dir, "specs", "b", "spec.md")

	b := NewBatch()
	if err := b.Stage(existing, []byte("new a")); err != nil {
		t.Fatal(err)
	}
	if err := b.Stage(created, []byte("new b")); err != nil {
		t.Fatal(err)
	}

	// Nothing visible before commit
	if data, _ := os.ReadFile(existing); string(data) != "old a" {
		t.Errorf("target changed before commit: %q", data)
	}
	if _, err := os.Stat(created); err == nil {
		t.Error("new file visible before commit")
	}

	if err := b.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if data, _ := os.ReadFile(existing); string(data) != "new a" {
		t.Errorf("a = %q, want %q", data, "new a")
	}
	if data, _ := os.ReadFile(created); string(data) != "new b" {
		t.Errorf("b = %q, want %q", data, "new b")
	}
	assertNoTempFiles(t, filepath.Dir(existing))
	assertNoTempFiles(t, filepath.Dir(created))
}

func TestBatch_RollbackOnRenameFailure(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "specs", "a", "spec.md")
	os.MkdirAll(filepath.Dir(existing), 0755)
	os.WriteFile(existing, []byte("old a"), 0644)
	created := filepath.Join(dir, "specs", "b", "spec.md")
	third := filepath.Join(dir, "specs", "c", "spec.md")

	calls := 0
	rename = func(oldPath, newPath string) error {
		calls++
		if calls == 3 {
			return errors.New("disk full")
		}
		return os.Rename(oldPath, newPath)
	}
	t.Cleanup(func() { rename = DefaultRenameRetry })

	b := NewBatch()
	for _, w := range []struct{ path, content string }{
		{existing, "new a"},
		{created, "new b"},
		{third, "new c"},
	} {
		if err := b.Stage(w.path, []byte(w.content)); err != nil {
			t.Fatal(err)
		}
	}

	err := b.Commit()
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("Commit error = %v, want disk full", err)
	}

	if data, _ := os.ReadFile(existing); string(data) != "old a" {
		t.Errorf("a not restored: %q", data)
	}
	for _, p := range []string{created, third} {
		if _, err := os.Stat(p); err == nil {
			t.Errorf("%s should not exist after rollback", p)
		}
		if _, err := os.Stat(filepath.Dir(p)); err == nil {
			t.Errorf("%s should be removed after rollback", filepath.Dir(p))
		}
	}
	assertNoTempFiles(t, filepath.Dir(existing))
}

func TestBatch_Discard(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "specs", "new", "spec.md")

	b := NewBatch()
	if err := b.Stage(p, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 1 || b.Paths()[0] != p {
		t.Errorf("Paths() = %v", b.Paths())
	}
	b.Discard()

	if _, err := os.Stat(filepath.Join(dir, "specs")); err == nil {
		t.Error("Discard should remove directories created by Stage")
	}
	if err := b.Commit(); err == nil {
		t.Error("expected error committing a discarded batch")
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestListSpecs(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("billing/spec.md", "# Billing\n\n## Purpose\nx\n\n## Requirements\n\n### Requirement: A\nThe system SHALL A.\n\n### Requirement: B\nThe system SHALL B.\n")
	write("auth/spec.md", "# auth\n\nno requirements section\n")
	write("empty/README.md", "x")

	specs, err := ListSpecs(dir)
	if err != nil {
		t.Fatalf("ListSpecs: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("len(specs) = %d, want 2", len(specs))
	}
	if specs[0].Capability != "auth" || specs[0].Requirements != 0 {
		t.Errorf("specs[0] = %+v", specs[0])
	}
	if specs[1].Title != "Billing" || specs[1].Requirements != 2 {
		t.Errorf("specs[1] = %+v", specs[1])
	}

	none, err := ListSpecs(filepath.Join(dir, "missing"))
	if err != nil || none != nil {
		t.Errorf("ListSpecs(missing) = %v, %v", none, err)
	}
}

func TestRenameWithRetry(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.md")
	dst := filepath.Join(dir, "b.md")
	os.WriteFile(src, []byte("x"), 0644)

	if err := RenameWithRetry(src, dst, 3, time.Millisecond); err != nil {
		t.Fatalf("RenameWithRetry: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("target missing: %v", err)
	}

	err := RenameWithRetry(src, dst, 3, time.Millisecond)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("error = %v, want ErrNotExist", err)
	}
	if runtime.GOOS != "windows" && !strings.Contains(err.Error(), "1 attempt(s)") {
		t.Errorf("error = %v, want a single attempt", err)
	}
}
