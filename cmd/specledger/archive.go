package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kokistudios/specledger/internal/archive"
	"github.com/kokistudios/specledger/internal/change"
	"github.com/kokistudios/specledger/internal/ui"
)

func archiveCmd() *cobra.Command {
	var opts archive.Options
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "archive [change]",
		Short: "Fold a change's delta specs into the main specs and archive it",
		Long: "Validate the change, apply every delta spec to its main spec and move the change to " +
			"changes/archive/<date>-<change>. Spec updates are all or nothing: if any capability fails, " +
			"no spec file is written. Without a change name, pick one interactively.",
		Example: `  specledger archive add-export
  specledger archive add-export --yes
  specledger archive add-export --dry-run
  specledger archive docs-only --skip-specs`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}

			name := ""
			if len(args) == 1 {
				name = args[0]
			} else {
				name, err = pickChange()
				if err != nil {
					return err
				}
			}

			runner := &archive.Runner{
				Store:   s,
				Prompt:  ui.Prompter{},
				Logger:  ui.Logger,
				Preview: printSpecUpdates,
			}
			if jsonOut {
				runner.Preview = nil
				opts.Yes = true
			}
			if !jsonOut {
				banner := "apply delta specs"
				if opts.DryRun {
					banner = "dry run"
				}
				ui.CommandBanner("ARCHIVE "+name, banner)
			}

			res, err := runner.Run(cmd.Context(), name, opts)
			if jsonOut {
				if perr := printJSON(res); perr != nil {
					return perr
				}
			} else {
				printExecutionResult(res)
			}
			if err != nil && res.Status != archive.RunFailed {
				return err
			}
			if res.ExitCode != 0 {
				os.Exit(res.ExitCode)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Skip confirmation prompts")
	cmd.Flags().BoolVar(&opts.SkipSpecs, "skip-specs", false, "Archive without updating main specs")
	cmd.Flags().BoolVar(&opts.NoValidate, "no-validate", false, "Skip validation (not recommended)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show what would change without writing or moving anything")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON (implies --yes)")
	return cmd
}

func pickChange() (string, error) {
	s, err := loadStore()
	if err != nil {
		return "", err
	}
	changes, err := change.List(s)
	if err != nil {
		return "", err
	}
	if len(changes) == 0 {
		return "", errors.New("no active changes found")
	}
	names := make([]string, 0, len(changes))
	labels := make(map[string]string, len(changes))
	for _, c := range changes {
		names = append(names, c.Name)
		labels[c.Name] = ui.Dim(c.Progress.String())
	}
	name, err := ui.SelectChange("Select a change to archive", names, labels)
	if errors.Is(err, ui.ErrNoSelection) {
		return "", errors.New("no change selected")
	}
	return name, err
}

func printSpecUpdates(updates []archive.SpecUpdate) {
	ui.SectionHeader("Spec updates")
	for _, u := range updates {
		status := ui.Yellow(string(u.Status()))
		if u.Status() == archive.StatusCreate {
			status = ui.Green(string(u.Status()))
		}
		fmt.Fprintf(os.Stderr, "  %s  %s\n", status, ui.Bold(u.Capability))
	}
	fmt.Fprintln(os.Stderr)
}

func printExecutionResult(res *archive.ExecutionResult) {
	if res.Report != nil && !res.Report.Valid {
		ui.SectionHeader("Validation")
		printReport(*res.Report)
	}
	for _, w := range res.Warnings {
		ui.Warning(w)
	}
	if len(res.Updates) > 0 {
		ui.SectionHeader("Applied")
		for _, u := range res.Updates {
			ui.Detail(u.Capability+":", fmt.Sprintf("%s (%s)", u.Status, u.Counts))
		}
		ui.Detail("Totals:", res.Totals.String())
	}

	switch res.Status {
	case archive.RunArchived:
		ui.Success(res.Message)
	case archive.RunDryRun:
		ui.Info(res.Message)
	case archive.RunCancelled:
		ui.EmptyState(res.Message)
	case archive.RunFailed:
		ui.Error(res.Message)
	}
}
