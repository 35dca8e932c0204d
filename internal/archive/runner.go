package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kokistudios/specledger/internal/artifact"
	"github.com/kokistudios/specledger/internal/change"
	"github.com/kokistudios/specledger/internal/merge"
	"github.com/kokistudios/specledger/internal/store"
	"github.com/kokistudios/specledger/internal/validation"
)

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(prompt string, defaultYes bool) (bool, error)
}

// Options are the archive command flags.
type Options struct {
	Yes        bool
	SkipSpecs  bool
	NoValidate bool
	DryRun     bool
}

// RunStatus is the overall outcome of Run.
type RunStatus string

const (
	RunArchived  RunStatus = "archived"
	RunDryRun    RunStatus = "dry-run"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// UpdateSummary is one capability line of an archive run.
type UpdateSummary struct {
	Capability string       `json:"capability"`
	Status     Status       `json:"status"`
	Counts     merge.Counts `json:"counts"`
}

// ExecutionResult reports what an archive run did.
type ExecutionResult struct {
	Change      string             `json:"change"`
	Status      RunStatus          `json:"status"`
	ArchivePath string             `json:"archive_path,omitempty"`
	Updates     []UpdateSummary    `json:"updates,omitempty"`
	Totals      merge.Counts       `json:"totals"`
	Report      *validation.Report `json:"report,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	Message     string             `json:"message,omitempty"`
	ExitCode    int                `json:"exit_code"`
}

func (r *ExecutionResult) fail(msg string) *ExecutionResult {
	r.Status = RunFailed
	r.Message = msg
	r.ExitCode = 1
	return r
}

func (r *ExecutionResult) cancel(msg string) *ExecutionResult {
	r.Status = RunCancelled
	r.Message = msg
	return r
}

// Runner executes the archive flow for one change at a time.
type Runner struct {
	Store  *store.Store
	Prompt Prompter
	Logger *log.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// Preview, when set, is shown the pending spec updates before the
	// user is asked to proceed.
	Preview func([]SpecUpdate)
}

func (r *Runner) confirm(opts Options, prompt string) (bool, error) {
	if opts.Yes || r.Prompt == nil {
		return true, nil
	}
	return r.Prompt.Confirm(prompt, false)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run archives the named change. Lookup and I/O failures return an error
// alongside a failed result. Validation failures, merge aborts and declined
// prompts are reported through the result only.
func (r *Runner) Run(ctx context.Context, name string, opts Options) (*ExecutionResult, error) {
	res := &ExecutionResult{Change: name}
	logger := r.Logger
	if logger == nil {
		logger = log.Default()
	}

	if info, err := os.Stat(r.Store.ChangesDir()); err != nil || !info.IsDir() {
		return res.fail(ErrNoChangesDir.Error()), ErrNoChangesDir
	}
	c, err := change.Get(r.Store, name)
	if err != nil {
		if errors.Is(err, change.ErrNotFound) {
			return res.fail(fmt.Sprintf("Change '%s' not found.", name)), ErrChangeNotFound
		}
		return res.fail(err.Error()), err
	}

	if !opts.NoValidate {
		report, err := ValidateChange(r.Store, c, r.Store.Config.Validation.Strict)
		if err != nil {
			return res.fail(err.Error()), err
		}
		res.Report = &report
		if !report.Valid {
			return res.fail("Validation failed. Fix the errors above or use --no-validate to skip."), nil
		}
	} else {
		res.Warnings = append(res.Warnings, "Skipping validation may archive invalid specs.")
		ok, err := r.confirm(opts, "Proceed without validation?")
		if err != nil {
			return res.fail(err.Error()), err
		}
		if !ok {
			return res.cancel("Archive cancelled."), nil
		}
	}

	if n := c.Progress.Incomplete(); n > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d incomplete task(s) found.", n))
		ok, err := r.confirm(opts, fmt.Sprintf("Change has %d incomplete task(s). Continue?", n))
		if err != nil {
			return res.fail(err.Error()), err
		}
		if !ok {
			return res.cancel("Archive cancelled."), nil
		}
	}

	archiveName := change.ArchiveName(name, r.now(), r.Store.Config.Archive.DateFormat)
	archivePath := filepath.Join(r.Store.ArchiveDir(), archiveName)
	if _, err := os.Stat(archivePath); err == nil {
		return res.fail(fmt.Sprintf("Archive '%s' already exists.", archiveName)), ErrArchiveExists
	}

	if opts.SkipSpecs {
		res.Warnings = append(res.Warnings, "Skipping spec updates (--skip-specs).")
	} else if err := r.applySpecs(ctx, name, opts, res, logger); err != nil {
		if res.Status == RunFailed {
			return res, nil
		}
		return res.fail(err.Error()), err
	}

	if opts.DryRun {
		res.Status = RunDryRun
		res.ArchivePath = archivePath
		res.Message = fmt.Sprintf("Would archive '%s' as '%s'.", name, archiveName)
		return res, nil
	}

	if err := os.MkdirAll(r.Store.ArchiveDir(), 0755); err != nil {
		return res.fail(fmt.Sprintf("cannot create archive directory: %v", err)), err
	}
	if err := artifact.DefaultRenameRetry(c.Path, archivePath); err != nil {
		return res.fail(fmt.Sprintf("cannot move change to archive: %v", err)), err
	}
	logger.Debug("archived", "change", name, "path", archivePath)

	res.Status = RunArchived
	res.ArchivePath = archivePath
	res.Message = fmt.Sprintf("Change '%s' archived as '%s'.", name, archiveName)
	return res, nil
}

// applySpecs folds the change's deltas into the main specs. A declined
// confirmation leaves the specs untouched and lets the archive proceed.
// On failure res is marked failed and nothing is written.
func (r *Runner) applySpecs(ctx context.Context, name string, opts Options, res *ExecutionResult, logger *log.Logger) error {
	orch := New(r.Store, name, logger)
	updates, err := orch.Discover()
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}
	if r.Preview != nil {
		r.Preview(updates)
	}

	if !opts.DryRun {
		ok, err := r.confirm(opts, "Proceed with spec updates?")
		if err != nil {
			return err
		}
		if !ok {
			res.Warnings = append(res.Warnings, "Skipping spec updates, proceeding with archive.")
			return nil
		}
	}

	prepared, err := orch.Prepare(updates)
	if err == nil && !opts.NoValidate {
		err = orch.Validate(prepared)
	}
	if err == nil && !opts.DryRun {
		res.Totals, err = orch.Commit(ctx, prepared)
	} else if err == nil {
		for _, p := range prepared {
			res.Totals.Add(p.Counts)
		}
	}
	if err != nil {
		res.fail(err.Error() + "\nAborted. No files were changed.")
		return err
	}

	for _, p := range prepared {
		res.Updates = append(res.Updates, UpdateSummary{
			Capability: p.Update.Capability,
			Status:     p.Update.Status(),
			Counts:     p.Counts,
		})
	}
	return nil
}

// ValidateChange validates every delta document of c. New capabilities
// are checked against the create-only rules.
func ValidateChange(s *store.Store, c *change.Change, strict bool) (validation.Report, error) {
	entries := make([]validation.DeltaEntry, 0, len(c.Deltas))
	for _, d := range c.Deltas {
		a, err := artifact.Load(d.Path, artifact.KindDelta, d.Capability)
		if err != nil {
			return validation.Report{}, err
		}
		_, statErr := os.Stat(s.SpecPath(d.Capability))
		entries = append(entries, validation.DeltaEntry{
			Capability:   d.Capability,
			Path:         d.Path,
			Content:      a.Content,
			TargetExists: statErr == nil,
		})
	}
	return validation.DeltaReport(entries, strict), nil
}

// Preview runs discover, prepare and validate for a change without writing
// anything.
func Preview(ctx context.Context, s *store.Store, name string, logger *log.Logger) (*Outcome, error) {
	if !change.Exists(s, name) {
		return nil, fmt.Errorf("%w: %s", ErrChangeNotFound, name)
	}
	return New(s, name, logger).Apply(ctx, ApplyOptions{DryRun: true})
}
