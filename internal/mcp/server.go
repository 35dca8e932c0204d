package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kokistudios/specledger/internal/archive"
	"github.com/kokistudios/specledger/internal/artifact"
	"github.com/kokistudios/specledger/internal/change"
	"github.com/kokistudios/specledger/internal/delta"
	"github.com/kokistudios/specledger/internal/requirement"
	"github.com/kokistudios/specledger/internal/store"
	"github.com/kokistudios/specledger/internal/validation"
)

// Server wraps the MCP server with the project store.
type Server struct {
	store  *store.Store
	server *mcp.Server
	logger *log.Logger
}

// NewServer creates a new specledger MCP server. Every tool is read-only.
func NewServer(st *store.Store, version string) *Server {
	s := &Server{
		store: st,
		// stdout carries the protocol; orchestrator traces are discarded.
		logger: log.New(io.Discard),
	}

	impl := &mcp.Implementation{
		Name:    "specledger",
		Version: version,
	}

	s.server = mcp.NewServer(impl, nil)
	s.registerTools()

	return s
}

// Run starts the MCP server on stdio.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "specledger_spec_list",
		Description: "List the main specs of this project with their title, requirement count and last modification. Call this first to discover which capabilities exist.",
	}, s.handleSpecList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "specledger_spec_show",
		Description: "Show one main spec by capability ID: its purpose, requirement names and full markdown content.",
	}, s.handleSpecShow)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "specledger_change_list",
		Description: "List active changes with task progress and the capabilities each change carries delta specs for.",
	}, s.handleChangeList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "specledger_change_validate",
		Description: "Validate the delta specs of an active change. Returns ERROR/WARNING/INFO issues per file. " +
			"Use this before suggesting an archive.",
	}, s.handleChangeValidate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "specledger_archive_preview",
		Description: "Dry-run the archive of a change: merge every delta spec into its main spec in memory and report " +
			"per-capability create/update status and operation counts. Nothing is written. " +
			"If any capability fails, the whole archive would be aborted and the error is returned.",
	}, s.handleArchivePreview)
}

// SpecListArgs defines the input for specledger_spec_list.
type SpecListArgs struct{}

// SpecSummary is one entry of specledger_spec_list.
type SpecSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Requirements int    `json:"requirements"`
	Recency      string `json:"recency"`
}

// SpecListResult is the output of specledger_spec_list.
type SpecListResult struct {
	Specs   []SpecSummary `json:"specs"`
	Message string        `json:"message,omitempty"`
}

func (s *Server) handleSpecList(ctx context.Context, req *mcp.CallToolRequest, args SpecListArgs) (*mcp.CallToolResult, any, error) {
	specs, err := artifact.ListSpecs(s.store.SpecsDir())
	if err != nil {
		return nil, nil, err
	}
	out := SpecListResult{Specs: []SpecSummary{}}
	for _, sp := range specs {
		out.Specs = append(out.Specs, SpecSummary{
			ID:           sp.Capability,
			Title:        sp.Title,
			Requirements: sp.Requirements,
			Recency:      formatRelativeTime(sp.ModTime),
		})
	}
	if len(out.Specs) == 0 {
		out.Message = "No specs found. Specs are created when a change with delta specs is archived."
	}
	return nil, out, nil
}

// SpecShowArgs defines the input for specledger_spec_show.
type SpecShowArgs struct {
	ID string `json:"id" jsonschema:"The capability ID, i.e. the directory name under openspec/specs"`
}

// SpecDetail is the output of specledger_spec_show.
type SpecDetail struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Purpose      string   `json:"purpose,omitempty"`
	Requirements []string `json:"requirements"`
	Content      string   `json:"content"`
}

func (s *Server) handleSpecShow(ctx context.Context, req *mcp.CallToolRequest, args SpecShowArgs) (*mcp.CallToolResult, any, error) {
	if args.ID == "" {
		return nil, nil, fmt.Errorf("spec ID is required")
	}
	a, err := artifact.Load(s.store.SpecPath(args.ID), artifact.KindSpec, args.ID)
	if err != nil {
		return nil, nil, err
	}
	if !a.Exists {
		return nil, nil, fmt.Errorf("spec not found: %s", args.ID)
	}

	out := SpecDetail{ID: args.ID, Title: args.ID, Requirements: []string{}, Content: a.Content}
	doc, err := requirement.Parse(a.Content)
	if err != nil {
		return nil, out, nil
	}
	if title := doc.Title(); title != "" {
		out.Title = title
	}
	out.Purpose, _ = doc.Purpose()
	for _, b := range doc.Blocks {
		out.Requirements = append(out.Requirements, b.Name)
	}
	return nil, out, nil
}

// ChangeListArgs defines the input for specledger_change_list.
type ChangeListArgs struct{}

// ChangeSummary is one entry of specledger_change_list.
type ChangeSummary struct {
	Name         string   `json:"name"`
	Tasks        string   `json:"tasks"`
	Capabilities []string `json:"capabilities"`
	Recency      string   `json:"recency"`
}

// ChangeListResult is the output of specledger_change_list.
type ChangeListResult struct {
	Changes []ChangeSummary `json:"changes"`
}

func (s *Server) handleChangeList(ctx context.Context, req *mcp.CallToolRequest, args ChangeListArgs) (*mcp.CallToolResult, any, error) {
	changes, err := change.List(s.store)
	if err != nil {
		return nil, nil, err
	}
	out := ChangeListResult{Changes: []ChangeSummary{}}
	for _, c := range changes {
		caps := make([]string, 0, len(c.Deltas))
		for _, d := range c.Deltas {
			caps = append(caps, d.Capability)
		}
		out.Changes = append(out.Changes, ChangeSummary{
			Name:         c.Name,
			Tasks:        c.Progress.String(),
			Capabilities: caps,
			Recency:      formatRelativeTime(c.ModTime),
		})
	}
	return nil, out, nil
}

// ChangeValidateArgs defines the input for specledger_change_validate.
type ChangeValidateArgs struct {
	Change string `json:"change" jsonschema:"Name of the active change directory"`
	Strict bool   `json:"strict,omitempty" jsonschema:"Treat warnings as failures (default: project setting)"`
}

// ChangeValidateResult is the output of specledger_change_validate.
type ChangeValidateResult struct {
	Change string            `json:"change"`
	Report validation.Report `json:"report"`
	Totals map[string]int    `json:"operations"`
}

func (s *Server) handleChangeValidate(ctx context.Context, req *mcp.CallToolRequest, args ChangeValidateArgs) (*mcp.CallToolResult, any, error) {
	c, err := change.Get(s.store, args.Change)
	if err != nil {
		return nil, nil, err
	}
	report, err := archive.ValidateChange(s.store, c, args.Strict || s.store.Config.Validation.Strict)
	if err != nil {
		return nil, nil, err
	}

	totals := map[string]int{}
	for _, d := range c.Deltas {
		a, err := artifact.Load(d.Path, artifact.KindDelta, d.Capability)
		if err != nil {
			return nil, nil, err
		}
		if plan, err := delta.Parse(a.Content); err == nil {
			for _, sec := range delta.Sections {
				totals[string(sec)] += plan.Count(sec)
			}
		}
	}
	return nil, ChangeValidateResult{Change: c.Name, Report: report, Totals: totals}, nil
}

// ArchivePreviewArgs defines the input for specledger_archive_preview.
type ArchivePreviewArgs struct {
	Change         string `json:"change" jsonschema:"Name of the active change directory"`
	IncludeContent bool   `json:"include_content,omitempty" jsonschema:"Include the rebuilt spec markdown for each capability (default: false)"`
}

// CapabilityPreview is one capability of an archive preview.
type CapabilityPreview struct {
	Capability string `json:"capability"`
	Status     string `json:"status"`
	Added      int    `json:"added"`
	Modified   int    `json:"modified"`
	Removed    int    `json:"removed"`
	Renamed    int    `json:"renamed"`
	Content    string `json:"content,omitempty"`
}

// ArchivePreviewResult is the output of specledger_archive_preview.
type ArchivePreviewResult struct {
	Change       string              `json:"change"`
	OK           bool                `json:"ok"`
	Capabilities []CapabilityPreview `json:"capabilities"`
	Totals       string              `json:"totals,omitempty"`
	Error        string              `json:"error,omitempty"`
	Blocked      []string            `json:"blocked,omitempty"`
}

func (s *Server) handleArchivePreview(ctx context.Context, req *mcp.CallToolRequest, args ArchivePreviewArgs) (*mcp.CallToolResult, any, error) {
	if args.Change == "" {
		return nil, nil, fmt.Errorf("change name is required")
	}
	out := ArchivePreviewResult{Change: args.Change, Capabilities: []CapabilityPreview{}}

	outcome, err := archive.Preview(ctx, s.store, args.Change, s.logger)
	if err != nil {
		var ce *archive.ConflictError
		if !errors.As(err, &ce) {
			return nil, nil, err
		}
		out.Error = ce.Error()
		out.Blocked = ce.Blocked
		return nil, out, nil
	}

	out.OK = true
	out.Totals = outcome.Totals.String()
	for _, p := range outcome.Prepared {
		cp := CapabilityPreview{
			Capability: p.Update.Capability,
			Status:     string(p.Update.Status()),
			Added:      p.Counts.Added,
			Modified:   p.Counts.Modified,
			Removed:    p.Counts.Removed,
			Renamed:    p.Counts.Renamed,
		}
		if args.IncludeContent {
			cp.Content = p.Rebuilt
		}
		out.Capabilities = append(out.Capabilities, cp)
	}
	return nil, out, nil
}

// formatRelativeTime formats a time as a human-readable relative string.
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	duration := time.Since(t)

	if duration < time.Hour {
		mins := int(duration.Minutes())
		if mins <= 1 {
			return "just now"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	}
	if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	if days < 30 {
		return fmt.Sprintf("%d days ago", days)
	}
	return t.Format("2006-01-02")
}
