package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kokistudios/specledger/internal/store"
	"github.com/kokistudios/specledger/internal/validation"
)

const validSpec = `# auth Specification

## Purpose
Authenticate users and manage their sessions across every client application.

## Requirements

### Requirement: Login
The system SHALL authenticate users with a password.

#### Scenario: valid password
- **WHEN** the password matches
- **THEN** a session is created
`

func setupProject(t *testing.T) *store.Store {
	t.Helper()
	root := t.TempDir()
	if err := store.Init(root, false); err != nil {
		t.Fatalf("store.Init: %v", err)
	}
	t.Setenv(store.EnvRoot, root)
	s, err := store.Load(root)
	if err != nil {
		t.Fatalf("store.Load: %v", err)
	}
	return s
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestResolveItem(t *testing.T) {
	s := setupProject(t)
	writeFile(t, s.SpecPath("auth"), validSpec)
	writeFile(t, s.SpecPath("both"), validSpec)
	writeFile(t, filepath.Join(s.ChangeDir("both"), "proposal.md"), "# both\n")
	writeFile(t, filepath.Join(s.ChangeDir("add-logout"), "proposal.md"), "# add logout\n")

	tests := []struct {
		name     string
		itemType string
		want     validation.ItemType
		wantErr  string
	}{
		{"auth", "", validation.ItemSpec, ""},
		{"add-logout", "", validation.ItemChange, ""},
		{"both", "", "", "both a change and a spec"},
		{"both", "spec", validation.ItemSpec, ""},
		{"both", "change", validation.ItemChange, ""},
		{"auth", "change", "", "unknown item"},
		{"missing", "", "", "unknown item"},
		{"auth", "bogus", "", "invalid --type"},
	}
	for _, tt := range tests {
		item, err := resolveItem(s, tt.name, tt.itemType, false)
		if tt.wantErr != "" {
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("resolveItem(%q, %q) error = %v, want %q", tt.name, tt.itemType, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("resolveItem(%q, %q) unexpected error: %v", tt.name, tt.itemType, err)
			continue
		}
		if item.Type != tt.want {
			t.Errorf("resolveItem(%q, %q).Type = %s, want %s", tt.name, tt.itemType, item.Type, tt.want)
		}
	}
}

func TestCollectItems(t *testing.T) {
	s := setupProject(t)
	writeFile(t, s.SpecPath("auth"), validSpec)
	writeFile(t, s.SpecPath("billing"), validSpec)
	writeFile(t, filepath.Join(s.ChangeDir("add-logout"), "proposal.md"), "# add logout\n")

	items, err := collectItems(s, true, true, false)
	if err != nil {
		t.Fatalf("collectItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	specsOnly, err := collectItems(s, false, true, false)
	if err != nil {
		t.Fatalf("collectItems: %v", err)
	}
	if len(specsOnly) != 2 {
		t.Errorf("len(specsOnly) = %d, want 2", len(specsOnly))
	}
}

func TestValidateCommand(t *testing.T) {
	s := setupProject(t)
	writeFile(t, s.SpecPath("auth"), validSpec)

	root := newRootCmd()
	root.SetArgs([]string{"--no-color", "validate", "auth", "--json"})
	if err := root.Execute(); err != nil {
		t.Fatalf("validate auth: %v", err)
	}

	writeFile(t, s.SpecPath("vague"), "# vague\n\n## Purpose\nToo short.\n\n## Requirements\n\n### Requirement: X\nUsers log in.\n")
	root = newRootCmd()
	root.SetArgs([]string{"--no-color", "validate", "--specs", "--json"})
	if err := root.Execute(); !errors.Is(err, errSilent) {
		t.Errorf("validate --specs error = %v, want errSilent", err)
	}

	root = newRootCmd()
	root.SetArgs([]string{"--no-color", "validate", "vague", "--type", "spec"})
	if err := root.Execute(); !errors.Is(err, errSilent) {
		t.Errorf("validate vague error = %v, want errSilent", err)
	}
}

func TestValidateCommand_NothingToValidate(t *testing.T) {
	setupProject(t)
	root := newRootCmd()
	root.SetArgs([]string{"--no-color", "validate"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "nothing to validate") {
		t.Errorf("error = %v", err)
	}
}

func TestConfigSetGet(t *testing.T) {
	s := setupProject(t)

	root := newRootCmd()
	root.SetArgs([]string{"--no-color", "config", "set", "validation.strict", "true"})
	if err := root.Execute(); err != nil {
		t.Fatalf("config set: %v", err)
	}
	reloaded, err := store.Load(s.Root)
	if err != nil {
		t.Fatalf("store.Load: %v", err)
	}
	if !reloaded.Config.Validation.Strict {
		t.Error("validation.strict not persisted")
	}

	root = newRootCmd()
	root.SetArgs([]string{"--no-color", "config", "set", "nope", "1"})
	if err := root.Execute(); err == nil {
		t.Error("expected error for unknown key")
	}
}
