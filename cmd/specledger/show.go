package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kokistudios/specledger/internal/artifact"
	"github.com/kokistudios/specledger/internal/change"
	"github.com/kokistudios/specledger/internal/delta"
	"github.com/kokistudios/specledger/internal/requirement"
	"github.com/kokistudios/specledger/internal/ui"
)

func specCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Browse main specs",
	}
	cmd.AddCommand(specListCmd())
	cmd.AddCommand(specShowCmd())
	return cmd
}

func specListCmd() *cobra.Command {
	var long, jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List main specs",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			specs, err := artifact.ListSpecs(s.SpecsDir())
			if err != nil {
				return err
			}
			if jsonOut {
				if specs == nil {
					specs = []artifact.SpecInfo{}
				}
				return printJSON(specs)
			}
			if len(specs) == 0 {
				ui.EmptyState("No specs found.")
				return nil
			}
			if !long {
				for _, sp := range specs {
					fmt.Println(sp.Capability)
				}
				return nil
			}
			var rows [][]string
			for _, sp := range specs {
				rows = append(rows, []string{sp.Capability, sp.Title, strconv.Itoa(sp.Requirements), sp.ModTime.Format("2006-01-02")})
			}
			ui.Table([]string{"ID", "TITLE", "REQUIREMENTS", "MODIFIED"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Show title, requirement count and modification date")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}

type specView struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Purpose      string    `json:"purpose"`
	Requirements []reqView `json:"requirements"`
}

type reqView struct {
	Name      string `json:"name"`
	Text      string `json:"text"`
	Scenarios int    `json:"scenarios"`
}

func specShowCmd() *cobra.Command {
	var jsonOut, raw bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a main spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			a, err := artifact.Load(s.SpecPath(args[0]), artifact.KindSpec, args[0])
			if err != nil {
				return err
			}
			if !a.Exists {
				return fmt.Errorf("spec not found: %s", args[0])
			}
			if raw {
				fmt.Print(a.Content)
				return nil
			}
			if !jsonOut {
				ui.RenderMarkdown(a.Content)
				return nil
			}

			doc, err := requirement.Parse(a.Content)
			if err != nil {
				return err
			}
			view := specView{ID: args[0], Title: doc.Title(), Requirements: []reqView{}}
			view.Purpose, _ = doc.Purpose()
			for _, b := range doc.Blocks {
				view.Requirements = append(view.Requirements, reqView{
					Name:      b.Name,
					Text:      b.RequirementText(),
					Scenarios: b.ScenarioCount(),
				})
			}
			return printJSON(view)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print parsed requirements as JSON")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the markdown source without rendering")
	return cmd
}

func changeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "change",
		Short: "Browse active changes",
	}
	cmd.AddCommand(changeListCmd())
	cmd.AddCommand(changeShowCmd())
	return cmd
}

func changeListCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			changes, err := change.List(s)
			if err != nil {
				return err
			}
			if jsonOut {
				if changes == nil {
					changes = []change.Change{}
				}
				return printJSON(changes)
			}
			if len(changes) == 0 {
				ui.EmptyState("No active changes.")
				return nil
			}
			var rows [][]string
			for _, c := range changes {
				rows = append(rows, []string{c.Name, c.Progress.String(), strconv.Itoa(len(c.Deltas)), c.ModTime.Format("2006-01-02")})
			}
			ui.Table([]string{"NAME", "TASKS", "DELTAS", "MODIFIED"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}

type deltaView struct {
	Capability string    `json:"capability" yaml:"capability"`
	Path       string    `json:"path" yaml:"path"`
	Plan       *planView `json:"plan,omitempty" yaml:"plan,omitempty"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
}

type planView struct {
	Added    []string       `json:"added" yaml:"added"`
	Modified []string       `json:"modified" yaml:"modified"`
	Removed  []string       `json:"removed" yaml:"removed"`
	Renamed  []delta.Rename `json:"renamed" yaml:"renamed"`
}

type changeView struct {
	Name     string          `json:"name" yaml:"name"`
	Progress change.Progress `json:"progress" yaml:"progress"`
	Deltas   []deltaView     `json:"deltas" yaml:"deltas"`
}

func blockNames(blocks []requirement.Block) []string {
	names := make([]string, 0, len(blocks))
	for _, b := range blocks {
		names = append(names, b.Name)
	}
	return names
}

func changeShowCmd() *cobra.Command {
	var jsonOut, yamlOut bool
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a change and its parsed delta plans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			c, err := change.Get(s, args[0])
			if err != nil {
				return err
			}

			view := changeView{Name: c.Name, Progress: c.Progress, Deltas: []deltaView{}}
			for _, d := range c.Deltas {
				dv := deltaView{Capability: d.Capability, Path: d.Path}
				a, err := artifact.Load(d.Path, artifact.KindDelta, d.Capability)
				if err != nil {
					return err
				}
				plan, err := delta.Parse(a.Content)
				if err != nil {
					dv.Error = err.Error()
				} else {
					removed := plan.Removed
					if removed == nil {
						removed = []string{}
					}
					renamed := plan.Renamed
					if renamed == nil {
						renamed = []delta.Rename{}
					}
					dv.Plan = &planView{
						Added:    blockNames(plan.Added),
						Modified: blockNames(plan.Modified),
						Removed:  removed,
						Renamed:  renamed,
					}
				}
				view.Deltas = append(view.Deltas, dv)
			}

			switch {
			case jsonOut:
				return printJSON(view)
			case yamlOut:
				return printYAML(view)
			}

			ui.SectionHeader("Change " + c.Name)
			ui.KeyValue("Tasks", c.Progress.String())
			for _, dv := range view.Deltas {
				fmt.Fprintln(os.Stderr)
				ui.KeyValue("Capability", dv.Capability)
				if dv.Error != "" {
					ui.Error(dv.Error)
					continue
				}
				for _, n := range dv.Plan.Added {
					ui.Detail("+", n)
				}
				for _, n := range dv.Plan.Modified {
					ui.Detail("~", n)
				}
				for _, n := range dv.Plan.Removed {
					ui.Detail("-", n)
				}
				for _, r := range dv.Plan.Renamed {
					ui.Detail("→", fmt.Sprintf("%s → %s", r.From, r.To))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	cmd.Flags().BoolVar(&yamlOut, "yaml", false, "Print as YAML")
	return cmd
}
