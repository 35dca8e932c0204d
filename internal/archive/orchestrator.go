package archive

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/kokistudios/specledger/internal/artifact"
	"github.com/kokistudios/specledger/internal/change"
	"github.com/kokistudios/specledger/internal/delta"
	"github.com/kokistudios/specledger/internal/merge"
	"github.com/kokistudios/specledger/internal/requirement"
	"github.com/kokistudios/specledger/internal/store"
	"github.com/kokistudios/specledger/internal/validation"
)

// SpecUpdate pairs a change's delta document with the main spec it targets.
type SpecUpdate struct {
	Capability string `json:"capability"`
	Source     string `json:"source"`
	Target     string `json:"target"`
	Exists     bool   `json:"exists"`
}

// Status reports whether the update creates or updates the main spec.
func (u SpecUpdate) Status() Status {
	if u.Exists {
		return StatusUpdate
	}
	return StatusCreate
}

// Prepared is the in-memory merge result for one capability.
type Prepared struct {
	Update  SpecUpdate
	Rebuilt string
	Counts  merge.Counts
}

// Outcome summarizes an Apply run.
type Outcome struct {
	Prepared  []Prepared
	Totals    merge.Counts
	Committed bool
}

// ApplyOptions controls Apply.
type ApplyOptions struct {
	// SkipValidation skips content validation of rebuilt specs.
	SkipValidation bool
	// DryRun stops after validation without writing.
	DryRun bool
}

// Orchestrator folds every delta document of one change into the main
// specs. No spec is written unless every capability prepares and
// validates.
type Orchestrator struct {
	store      *store.Store
	changeName string
	logger     *log.Logger
}

// New returns an orchestrator for the named change.
func New(s *store.Store, changeName string, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{store: s, changeName: changeName, logger: logger}
}

func (o *Orchestrator) mergeOptions(capability string) merge.Options {
	return merge.Options{
		Capability:          capability,
		ChangeName:          o.changeName,
		Locale:              requirement.ParseLocale(o.store.Config.Locale),
		PreserveHeaderStyle: o.store.Config.Merge.PreserveHeaderStyle,
	}
}

// Discover lists the capabilities the change carries deltas for.
func (o *Orchestrator) Discover() ([]SpecUpdate, error) {
	docs, err := change.DeltaDocs(o.store.ChangeDir(o.changeName))
	if err != nil {
		return nil, err
	}
	updates := make([]SpecUpdate, 0, len(docs))
	for _, d := range docs {
		target := o.store.SpecPath(d.Capability)
		_, statErr := os.Stat(target)
		updates = append(updates, SpecUpdate{
			Capability: d.Capability,
			Source:     d.Path,
			Target:     target,
			Exists:     statErr == nil,
		})
	}
	o.logger.Debug("discover", "change", o.changeName, "capabilities", len(updates))
	return updates, nil
}

// Prepare parses, validates and merges every update in memory. The first
// failure aborts the batch.
func (o *Orchestrator) Prepare(updates []SpecUpdate) ([]Prepared, error) {
	prepared := make([]Prepared, 0, len(updates))
	for i, u := range updates {
		o.logger.Debug("prepare", "change", o.changeName, "capability", u.Capability)
		p, err := o.prepareOne(u)
		if err != nil {
			return nil, o.abort(PhasePrepare, u.Capability, err, updates, i)
		}
		prepared = append(prepared, *p)
	}
	return prepared, nil
}

func (o *Orchestrator) prepareOne(u SpecUpdate) (*Prepared, error) {
	src, err := artifact.Load(u.Source, artifact.KindDelta, u.Capability)
	if err != nil {
		return nil, err
	}
	if !src.Exists {
		return nil, fmt.Errorf("delta document disappeared: %s", u.Source)
	}
	plan, err := delta.Parse(src.Content)
	if err != nil {
		return nil, err
	}

	target, err := artifact.Load(u.Target, artifact.KindSpec, u.Capability)
	if err != nil {
		return nil, err
	}
	u.Exists = target.Exists

	if err := validation.ValidatePlan(plan, validation.PlanOptions{NewCapability: !target.Exists}); err != nil {
		return nil, err
	}

	var base *requirement.Document
	if target.Exists {
		base, err = merge.ParseBase(target.Content, requirement.ParseLocale(o.store.Config.Locale))
		if err != nil {
			return nil, err
		}
	}

	res, err := merge.Merge(plan, base, o.mergeOptions(u.Capability))
	if err != nil {
		return nil, err
	}
	return &Prepared{Update: u, Rebuilt: res.Rebuilt, Counts: res.Counts}, nil
}

// Validate re-checks every rebuilt spec. The first invalid spec aborts the
// batch.
func (o *Orchestrator) Validate(prepared []Prepared) error {
	updates := make([]SpecUpdate, len(prepared))
	for i, p := range prepared {
		updates[i] = p.Update
	}
	for i, p := range prepared {
		o.logger.Debug("validate", "change", o.changeName, "capability", p.Update.Capability)
		report := validation.ValidateSpecContent(p.Update.Target, p.Rebuilt, false)
		if !report.Valid {
			return o.abort(PhaseValidate, p.Update.Capability, report.FirstError(p.Update.Capability), updates, i)
		}
	}
	return nil
}

// Commit writes every rebuilt spec. Files are staged first and renamed
// into place together; a failed rename restores the originals.
func (o *Orchestrator) Commit(ctx context.Context, prepared []Prepared) (merge.Counts, error) {
	var totals merge.Counts
	if err := ctx.Err(); err != nil {
		o.logger.Debug("abort", "change", o.changeName, "reason", err)
		return totals, err
	}

	batch := artifact.NewBatch()
	for _, p := range prepared {
		if err := batch.Stage(p.Update.Target, []byte(p.Rebuilt)); err != nil {
			batch.Discard()
			return totals, &ConflictError{Capability: p.Update.Capability, Phase: PhaseCommit, Err: err}
		}
	}
	if err := batch.Commit(); err != nil {
		return totals, &ConflictError{Phase: PhaseCommit, Err: err}
	}
	for _, p := range prepared {
		o.logger.Debug("commit", "change", o.changeName, "capability", p.Update.Capability, "status", p.Update.Status())
		totals.Add(p.Counts)
	}
	return totals, nil
}

// Apply runs discover, prepare, validate and commit.
func (o *Orchestrator) Apply(ctx context.Context, opts ApplyOptions) (*Outcome, error) {
	updates, err := o.Discover()
	if err != nil {
		return nil, &ConflictError{Phase: PhaseDiscover, Err: err}
	}
	prepared, err := o.Prepare(updates)
	if err != nil {
		return nil, err
	}
	if !opts.SkipValidation {
		if err := o.Validate(prepared); err != nil {
			return nil, err
		}
	}

	out := &Outcome{Prepared: prepared}
	if opts.DryRun {
		for _, p := range prepared {
			out.Totals.Add(p.Counts)
		}
		return out, nil
	}
	totals, err := o.Commit(ctx, prepared)
	if err != nil {
		return nil, err
	}
	out.Totals = totals
	out.Committed = true
	return out, nil
}

func (o *Orchestrator) abort(phase Phase, capability string, err error, updates []SpecUpdate, failed int) error {
	var blocked []string
	for i, u := range updates {
		if i != failed {
			blocked = append(blocked, u.Capability)
		}
	}
	o.logger.Debug("abort", "change", o.changeName, "phase", phase, "capability", capability, "err", err)

	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce
	}
	return &ConflictError{Capability: capability, Phase: phase, Err: err, Blocked: blocked}
}
