package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/compose"
	"github.com/TobiSchelling/eventscout/internal/config"
	"github.com/TobiSchelling/eventscout/internal/database"
	"github.com/TobiSchelling/eventscout/internal/deliver"
	"github.com/TobiSchelling/eventscout/internal/metrics"
	"github.com/TobiSchelling/eventscout/internal/planner"
)

const totalSteps = 5

// Runner drives one workflow run to a terminal phase.
type Runner interface {
	Run(ctx context.Context, st *planner.State) *planner.State
}

// Options tweak a single run.
type Options struct {
	PeriodID string
	Research bool // force the research phase on for this run
	DryRun   bool // plan and compose only
	NoDB     bool // skip persistence
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID    string
	PeriodID string
	Phase    agent.Phase
	Digest   compose.Digest
	State    *planner.State
	Steps    []StepResult
}

// Failed reports whether any step returned an error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Pipeline runs the planner and then composes, stores, delivers and
// reports the digest.
type Pipeline struct {
	cfg      *config.Config
	db       *database.DB
	runner   Runner
	notifier deliver.Notifier
	metrics  *metrics.Metrics
}

// New creates a pipeline from already built collaborators. db and m may be
// nil.
func New(cfg *config.Config, db *database.DB, runner Runner, notifier deliver.Notifier, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		db:       db,
		runner:   runner,
		notifier: notifier,
		metrics:  m,
	}
}

// Run executes the plan, compose, save, deliver and report steps.
func (p *Pipeline) Run(ctx context.Context, opts Options) *Result {
	if opts.PeriodID == "" {
		opts.PeriodID = database.GetToday(p.cfg.TimeLocation())
	}
	r := &Result{PeriodID: opts.PeriodID}

	st, step := p.runPlan(ctx, opts)
	r.Steps = append(r.Steps, step)
	r.State = st
	r.RunID = st.RunID
	r.Phase = st.Phase

	d, step := p.runCompose(st, opts.PeriodID)
	r.Steps = append(r.Steps, step)
	r.Digest = d

	persist := !opts.DryRun && !opts.NoDB && p.db != nil

	r.Steps = append(r.Steps, p.runSave(st, d, opts.PeriodID, persist))
	r.Steps = append(r.Steps, p.runDeliver(ctx, d, opts.DryRun, persist))
	r.Steps = append(r.Steps, p.runReport(st, opts.PeriodID, persist))
	return r
}

func (p *Pipeline) runPlan(ctx context.Context, opts Options) (*planner.State, StepResult) {
	log.Printf("Step 1/%d: Planning run for %s", totalSteps, opts.PeriodID)
	st := planner.NewState(opts.Research || p.cfg.Research.Enabled)
	st = p.runner.Run(ctx, st)

	res := StepResult{
		Name: "Plan",
		Summary: fmt.Sprintf("%s after %d iterations: %d found, %d reviewed",
			st.Phase, st.Iterations, len(st.EventsFound), len(st.EventsReviewed)),
	}
	if st.Phase == agent.PhaseFailed {
		res.Err = fmt.Errorf("workflow failed: %s", st.Err)
	}
	return st, res
}

func (p *Pipeline) runCompose(st *planner.State, periodID string) (compose.Digest, StepResult) {
	log.Printf("Step 2/%d: Composing digest", totalSteps)
	d := compose.Compose(st, periodID)
	return d, StepResult{
		Name:    "Compose",
		Summary: fmt.Sprintf("%q with %d events", d.Subject, d.EventCount),
	}
}

func (p *Pipeline) runSave(st *planner.State, d compose.Digest, periodID string, persist bool) StepResult {
	log.Printf("Step 3/%d: Saving events and digest", totalSteps)
	if !persist {
		return StepResult{Name: "Save", Summary: "Skipped"}
	}

	added, err := p.db.SaveEvents(st.RunID, periodID, agent.Events(st.EventsReviewed))
	if err != nil {
		return StepResult{Name: "Save", Err: fmt.Errorf("saving events: %w", err)}
	}
	_, err = p.db.InsertDigest(database.Digest{
		RunID:        d.RunID,
		PeriodID:     periodID,
		Subject:      d.Subject,
		Promo:        d.Promo,
		BodyMarkdown: d.Markdown,
		EventCount:   d.EventCount,
		Phase:        string(d.Phase),
	})
	if err != nil {
		return StepResult{Name: "Save", Err: fmt.Errorf("saving digest: %w", err)}
	}
	return StepResult{Name: "Save", Summary: fmt.Sprintf("%d new events stored", added)}
}

func (p *Pipeline) runDeliver(ctx context.Context, d compose.Digest, dryRun, persist bool) StepResult {
	log.Printf("Step 4/%d: Delivering digest", totalSteps)
	switch {
	case dryRun:
		return StepResult{Name: "Deliver", Summary: "Skipped (dry run)"}
	case d.Failed || d.EventCount == 0:
		return StepResult{Name: "Deliver", Summary: "Skipped: nothing to deliver"}
	case p.notifier == nil:
		return StepResult{Name: "Deliver", Summary: "Skipped: no notifier"}
	}

	err := p.notifier.Send(ctx, d)
	p.metrics.Delivered(err == nil)
	if err != nil {
		return StepResult{Name: "Deliver", Err: fmt.Errorf("delivering digest: %w", err)}
	}
	if persist {
		if err := p.db.MarkDelivered(d.RunID); err != nil {
			log.Printf("Warning: failed to mark %s delivered: %v", d.RunID, err)
		}
	}
	return StepResult{Name: "Deliver", Summary: fmt.Sprintf("Sent via %s", p.cfg.Delivery.Method)}
}

func (p *Pipeline) runReport(st *planner.State, periodID string, persist bool) StepResult {
	log.Printf("Step 5/%d: Recording run report", totalSteps)
	if !persist {
		return StepResult{Name: "Report", Summary: "Skipped"}
	}

	report := database.RunReport{
		RunID:          st.RunID,
		PeriodID:       periodID,
		Phase:          string(st.Phase),
		EventsFound:    len(st.EventsFound),
		EventsReviewed: len(st.EventsReviewed),
		Iterations:     st.Iterations,
		DurationMS:     st.Duration().Milliseconds(),
	}
	if st.Err != "" {
		msg := st.Err
		report.Error = &msg
	}
	if _, err := p.db.InsertReport(report); err != nil {
		return StepResult{Name: "Report", Err: fmt.Errorf("saving run report: %w", err)}
	}
	return StepResult{Name: "Report", Summary: fmt.Sprintf("%s in %s", st.Phase, st.Duration().Round(time.Millisecond))}
}
