package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/kokistudios/specledger/internal/archive"
	"github.com/kokistudios/specledger/internal/artifact"
	"github.com/kokistudios/specledger/internal/change"
	"github.com/kokistudios/specledger/internal/store"
	"github.com/kokistudios/specledger/internal/ui"
	"github.com/kokistudios/specledger/internal/validation"
)

type validateFlags struct {
	all, changes, specs bool
	itemType            string
	strict              bool
	jsonOut             bool
	concurrency         int
	watch               bool
}

func validateCmd() *cobra.Command {
	var f validateFlags
	cmd := &cobra.Command{
		Use:   "validate [item]",
		Short: "Validate changes and specs",
		Long: "Validate one change (its delta specs) or one main spec. With --all, --changes or --specs, validate " +
			"every matching item concurrently and print a pass/fail summary.",
		Example: `  specledger validate add-export
  specledger validate billing --type spec --strict
  specledger validate --all --json
  specledger validate --changes --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			strict := f.strict || s.Config.Validation.Strict
			concurrency := f.concurrency
			if concurrency < 1 {
				concurrency = s.Config.Validation.Concurrency
			}

			if len(args) == 0 && !f.all && !f.changes && !f.specs {
				return fmt.Errorf("nothing to validate: pass an item name or one of --all, --changes, --specs")
			}
			// Items are rebuilt on every run so --watch picks up new changes.
			build := func() ([]validation.Item, error) {
				if len(args) == 1 {
					item, err := resolveItem(s, args[0], f.itemType, strict)
					if err != nil {
						return nil, err
					}
					return []validation.Item{item}, nil
				}
				return collectItems(s, f.all || f.changes, f.all || f.specs, strict)
			}

			run := func(ctx context.Context) (bool, error) {
				items, err := build()
				if err != nil {
					return false, err
				}
				return runValidation(ctx, items, concurrency, f.jsonOut, len(args) == 1)
			}
			if f.watch {
				return watchValidation(cmd.Context(), s, run)
			}
			ok, err := run(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return errSilent
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&f.all, "all", false, "Validate all changes and specs")
	cmd.Flags().BoolVar(&f.changes, "changes", false, "Validate all active changes")
	cmd.Flags().BoolVar(&f.specs, "specs", false, "Validate all main specs")
	cmd.Flags().StringVar(&f.itemType, "type", "", "Item type when a name is both a change and a spec: change or spec")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Treat warnings as failures")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Print results as JSON")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "Parallel validations for bulk runs (default: validation.concurrency)")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "Revalidate whenever files under openspec/ change")
	return cmd
}

func specItem(s *store.Store, id string, strict bool) validation.Item {
	return validation.Item{
		ID:   id,
		Type: validation.ItemSpec,
		Run: func(ctx context.Context) (validation.Report, error) {
			a, err := artifact.Load(s.SpecPath(id), artifact.KindSpec, id)
			if err != nil {
				return validation.Report{}, err
			}
			if !a.Exists {
				return validation.Report{}, fmt.Errorf("spec not found: %s", id)
			}
			return validation.ValidateSpecContent(a.Path, a.Content, strict), nil
		},
	}
}

func changeItem(s *store.Store, name string, strict bool) validation.Item {
	return validation.Item{
		ID:   name,
		Type: validation.ItemChange,
		Run: func(ctx context.Context) (validation.Report, error) {
			c, err := change.Get(s, name)
			if err != nil {
				return validation.Report{}, err
			}
			return archive.ValidateChange(s, c, strict)
		},
	}
}

// resolveItem decides whether name is a change or a spec.
func resolveItem(s *store.Store, name, itemType string, strict bool) (validation.Item, error) {
	isChange := change.Exists(s, name)
	_, statErr := os.Stat(s.SpecPath(name))
	isSpec := statErr == nil

	switch itemType {
	case "change":
		isSpec = false
	case "spec":
		isChange = false
	case "":
	default:
		return validation.Item{}, fmt.Errorf("invalid --type %q (use change or spec)", itemType)
	}

	switch {
	case isChange && isSpec:
		return validation.Item{}, fmt.Errorf("%q is both a change and a spec; pass --type change or --type spec", name)
	case isChange:
		return changeItem(s, name, strict), nil
	case isSpec:
		return specItem(s, name, strict), nil
	}
	return validation.Item{}, fmt.Errorf("unknown item %q: no change or spec with that name", name)
}

func collectItems(s *store.Store, changes, specs bool, strict bool) ([]validation.Item, error) {
	var items []validation.Item
	if changes {
		list, err := change.List(s)
		if err != nil {
			return nil, err
		}
		for _, c := range list {
			items = append(items, changeItem(s, c.Name, strict))
		}
	}
	if specs {
		list, err := artifact.ListSpecs(s.SpecsDir())
		if err != nil {
			return nil, err
		}
		for _, sp := range list {
			items = append(items, specItem(s, sp.Capability, strict))
		}
	}
	return items, nil
}

type validateOutput struct {
	Items   []validation.ItemResult `json:"items"`
	Summary struct {
		Passed int `json:"passed"`
		Failed int `json:"failed"`
	} `json:"summary"`
}

func runValidation(ctx context.Context, items []validation.Item, concurrency int, jsonOut, single bool) (bool, error) {
	var spin *ui.Spinner
	if !jsonOut && !single {
		spin = ui.NewSpinner(fmt.Sprintf("Validating %d item(s)...", len(items)))
	}
	results, err := validation.RunAll(ctx, items, concurrency)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return false, err
	}
	passed, failed := validation.Totals(results)

	if jsonOut {
		var out validateOutput
		out.Items = results
		out.Summary.Passed, out.Summary.Failed = passed, failed
		return failed == 0, printJSON(out)
	}

	if len(results) == 0 {
		ui.EmptyState("Nothing to validate.")
		return true, nil
	}
	for _, r := range results {
		printItemResult(r, single)
	}
	if !single {
		fmt.Fprintln(os.Stderr)
		summary := fmt.Sprintf("Totals: %d passed, %d failed (%d items)", passed, failed, len(results))
		if failed > 0 {
			ui.Error(summary)
		} else {
			ui.Success(summary)
		}
	}
	return failed == 0, nil
}

func printItemResult(r validation.ItemResult, verbose bool) {
	label := fmt.Sprintf("%s/%s", r.Type, r.ID)
	switch {
	case r.Err != "":
		ui.Error(fmt.Sprintf("%s: %s", label, r.Err))
		return
	case r.Valid():
		ui.Success(fmt.Sprintf("%s is valid", label))
	default:
		ui.Error(fmt.Sprintf("%s has issues", label))
	}
	if !verbose && r.Valid() {
		return
	}
	printReport(r.Report)
}

func printReport(rep validation.Report) {
	for _, is := range rep.Issues {
		msg := is.Message
		if is.Path != "" {
			msg = fmt.Sprintf("%s: %s", relPath(is.Path), is.Message)
		}
		var tag string
		switch is.Level {
		case validation.LevelError:
			tag = ui.Red("[ERROR]")
		case validation.LevelWarning:
			tag = ui.Yellow("[WARN] ")
		default:
			tag = ui.Dim("[INFO] ")
		}
		fmt.Fprintf(os.Stderr, "  %s %s\n", tag, msg)
	}
}

func relPath(p string) string {
	wd, err := os.Getwd()
	if err != nil {
		return p
	}
	if rel, err := filepath.Rel(wd, p); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return p
}

// watchValidation reruns run whenever a markdown file under openspec/
// changes. fsnotify is not recursive, so every directory is added and new
// directories are added as they appear.
func watchValidation(ctx context.Context, s *store.Store, run func(context.Context) (bool, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cannot create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }() // Best effort cleanup

	base := s.Path()
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == s.ArchiveDir() {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cannot watch %s: %w", base, err)
	}

	if _, err := run(ctx); err != nil {
		return err
	}
	ui.Info("Watching for changes... (Press Ctrl+C to exit)")

	// Debounce timer
	var debounceTimer *time.Timer
	debounceDelay := 300 * time.Millisecond
	rerun := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr)
			ui.Info("Stopped watching.")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			if !strings.HasSuffix(event.Name, ".md") && !strings.HasSuffix(event.Name, ".yaml") {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				select {
				case rerun <- struct{}{}:
				default:
				}
			})
		case <-rerun:
			ui.SectionHeader(time.Now().Format("15:04:05"))
			if _, err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				ui.Error(err.Error())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ui.Warning(fmt.Sprintf("Watcher error: %v", err))
		}
	}
}
