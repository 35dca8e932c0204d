package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// DirName is the project directory holding specs, changes and config.
	DirName    = "openspec"
	ConfigFile = "config.yaml"

	// EnvRoot pins the project root, skipping discovery.
	EnvRoot = "SPECLEDGER_ROOT"
	// EnvPrefix prefixes config overrides, e.g. SPECLEDGER_VALIDATION_STRICT.
	EnvPrefix = "SPECLEDGER"
)

// ErrNotInitialized is returned when no openspec directory can be found.
var ErrNotInitialized = errors.New("specledger not initialized, run 'specledger init' first")

// MergeConfig holds merge engine settings.
type MergeConfig struct {
	PreserveHeaderStyle bool `yaml:"preserve_header_style" mapstructure:"preserve_header_style"`
}

// ValidationConfig holds validation settings.
type ValidationConfig struct {
	Strict      bool `yaml:"strict" mapstructure:"strict"`
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
}

// ArchiveConfig holds archive settings.
type ArchiveConfig struct {
	DateFormat string `yaml:"date_format" mapstructure:"date_format"`
}

// Config holds project configuration.
type Config struct {
	Version    string           `yaml:"version" mapstructure:"version"`
	Locale     string           `yaml:"locale" mapstructure:"locale"`
	Merge      MergeConfig      `yaml:"merge" mapstructure:"merge"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Archive    ArchiveConfig    `yaml:"archive" mapstructure:"archive"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Version: "1",
		Locale:  "en",
		Merge: MergeConfig{
			PreserveHeaderStyle: true,
		},
		Validation: ValidationConfig{
			Strict:      false,
			Concurrency: 6,
		},
		Archive: ArchiveConfig{
			DateFormat: "2006-01-02",
		},
	}
}

// Store represents a loaded project.
type Store struct {
	Root   string
	Config Config
}

// Issue represents a health check finding.
type Issue struct {
	Severity string // "warning" or "error"
	Message  string
}

// Find returns the project root: $SPECLEDGER_ROOT when set, otherwise the
// nearest directory at or above start containing openspec/.
func Find(start string) (string, error) {
	if r := os.Getenv(EnvRoot); r != "" {
		return r, nil
	}
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, DirName)); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotInitialized
		}
		dir = parent
	}
}

// Init creates the openspec directory structure under root.
func Init(root string, force bool) error {
	base := filepath.Join(root, DirName)
	if _, err := os.Stat(filepath.Join(base, ConfigFile)); err == nil && !force {
		return fmt.Errorf("project already initialized at %s (use --force to reinitialize)", base)
	}

	for _, d := range layout(base) {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(base, ConfigFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func layout(base string) []string {
	return []string{
		base,
		filepath.Join(base, "specs"),
		filepath.Join(base, "changes"),
		filepath.Join(base, "changes", "archive"),
	}
}

// Load reads the project config. Missing fields are filled from defaults
// and SPECLEDGER_* environment variables override file values.
func Load(root string) (*Store, error) {
	cfgPath := filepath.Join(root, DirName, ConfigFile)
	if _, err := os.Stat(filepath.Join(root, DirName)); err != nil {
		return nil, ErrNotInitialized
	}

	v := newViper()
	if _, err := os.Stat(cfgPath); err == nil {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", ConfigFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ConfigFile, err)
	}
	return &Store{Root: root, Config: cfg}, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("version", def.Version)
	v.SetDefault("locale", def.Locale)
	v.SetDefault("merge.preserve_header_style", def.Merge.PreserveHeaderStyle)
	v.SetDefault("validation.strict", def.Validation.Strict)
	v.SetDefault("validation.concurrency", def.Validation.Concurrency)
	v.SetDefault("archive.date_format", def.Archive.DateFormat)
	return v
}

// SaveConfig writes the current config to config.yaml.
func (s *Store) SaveConfig() error {
	data, err := yaml.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(s.Path(ConfigFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ConfigKeys lists the settable dot-path keys.
func ConfigKeys() []string {
	keys := []string{
		"locale",
		"merge.preserve_header_style",
		"validation.strict",
		"validation.concurrency",
		"archive.date_format",
	}
	sort.Strings(keys)
	return keys
}

// ConfigValue returns a config value by dot-path key.
func (s *Store) ConfigValue(key string) (string, error) {
	c := s.Config
	switch key {
	case "version":
		return c.Version, nil
	case "locale":
		return c.Locale, nil
	case "merge.preserve_header_style":
		return strconv.FormatBool(c.Merge.PreserveHeaderStyle), nil
	case "validation.strict":
		return strconv.FormatBool(c.Validation.Strict), nil
	case "validation.concurrency":
		return strconv.Itoa(c.Validation.Concurrency), nil
	case "archive.date_format":
		return c.Archive.DateFormat, nil
	}
	return "", unknownKey(key)
}

// SetConfigValue sets a config value by dot-path key and saves it.
func (s *Store) SetConfigValue(key, value string) error {
	switch key {
	case "locale":
		if value != "en" && value != "zh" {
			return fmt.Errorf("locale must be one of: en, zh")
		}
		s.Config.Locale = value
	case "merge.preserve_header_style":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("merge.preserve_header_style must be true or false")
		}
		s.Config.Merge.PreserveHeaderStyle = b
	case "validation.strict":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("validation.strict must be true or false")
		}
		s.Config.Validation.Strict = b
	case "validation.concurrency":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("validation.concurrency must be a positive integer")
		}
		s.Config.Validation.Concurrency = n
	case "archive.date_format":
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("archive.date_format must not be empty")
		}
		s.Config.Archive.DateFormat = value
	default:
		return unknownKey(key)
	}
	return s.SaveConfig()
}

func unknownKey(key string) error {
	return fmt.Errorf("unknown config key: %s\nValid keys: %s", key, strings.Join(ConfigKeys(), ", "))
}

// Path resolves a path within the openspec directory.
func (s *Store) Path(parts ...string) string {
	all := append([]string{s.Root, DirName}, parts...)
	return filepath.Join(all...)
}

// SpecsDir is the directory of main capability specs.
func (s *Store) SpecsDir() string { return s.Path("specs") }

// ChangesDir is the directory of active changes.
func (s *Store) ChangesDir() string { return s.Path("changes") }

// ArchiveDir is the directory archived changes are moved into.
func (s *Store) ArchiveDir() string { return s.Path("changes", "archive") }

// SpecPath is the main spec file of a capability.
func (s *Store) SpecPath(capability string) string {
	return s.Path("specs", capability, "spec.md")
}

// ChangeDir is the directory of a change.
func (s *Store) ChangeDir(name string) string {
	return s.Path("changes", name)
}

// CheckHealth verifies project structure integrity.
func CheckHealth(root string) []Issue {
	var issues []Issue
	base := filepath.Join(root, DirName)

	for _, dir := range []string{"specs", "changes"} {
		p := filepath.Join(base, dir)
		info, err := os.Stat(p)
		if err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("missing directory: %s", p)})
		} else if !info.IsDir() {
			issues = append(issues, Issue{"error", fmt.Sprintf("expected directory but found file: %s", p)})
		}
	}
	if _, err := os.Stat(filepath.Join(base, "changes", "archive")); err != nil {
		issues = append(issues, Issue{"warning", "missing directory: changes/archive"})
	}

	cfgPath := filepath.Join(base, ConfigFile)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		issues = append(issues, Issue{"warning", fmt.Sprintf("cannot read %s, defaults apply: %v", ConfigFile, err)})
	} else {
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("%s is not valid YAML: %v", ConfigFile, err)})
		} else if cfg.Locale != "" && cfg.Locale != "en" && cfg.Locale != "zh" {
			issues = append(issues, Issue{"warning", fmt.Sprintf("locale %q is not supported, using en", cfg.Locale)})
		}
	}

	return issues
}

// FixIssues attempts to repair simple issues in the project structure.
func FixIssues(root string) []string {
	var fixed []string
	base := filepath.Join(root, DirName)

	for _, d := range layout(base) {
		if _, err := os.Stat(d); err != nil {
			if err := os.MkdirAll(d, 0755); err == nil {
				rel, _ := filepath.Rel(root, d)
				fixed = append(fixed, fmt.Sprintf("recreated missing directory: %s", rel))
			}
		}
	}

	cfgPath := filepath.Join(base, ConfigFile)
	if _, err := os.Stat(cfgPath); err != nil {
		data, _ := yaml.Marshal(DefaultConfig())
		if os.WriteFile(cfgPath, data, 0644) == nil {
			fixed = append(fixed, "recreated missing config.yaml with defaults")
		}
	}

	return fixed
}
