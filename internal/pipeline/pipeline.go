// Package pipeline sequences a full scrape run: establish a session,
// navigate to the results page, wait for content to stabilize, extract
// course records and persist them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"resultsync-backend/lib/browser"

	"resultsync-backend/internal/extract"
	"resultsync-backend/internal/portal"
	"resultsync-backend/internal/records"
)

var tracer = otel.Tracer("resultsync.pipeline")

// ErrContentNotFound means the run reached the results page but no
// course records could be extracted from it.
var ErrContentNotFound = errors.New("no course records found on the results page")

type Stage string

const (
	StageSession   Stage = "session"
	StageNavigate  Stage = "navigate"
	StageStabilize Stage = "stabilize"
	StageExtract   Stage = "extract"
	StagePersist   Stage = "persist"
	StageDone      Stage = "done"
)

// Interaction is one scripted step on the results page, typically
// selecting a term in a dropdown and clicking the view button. A step
// with a Value sets it on the element; one without clicks it.
type Interaction struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
}

// RunSummary reports what a pipeline run achieved and where it stopped.
type RunSummary struct {
	RunID      string          `json:"run_id"`
	Stage      Stage           `json:"stage"`
	Stabilized bool            `json:"stabilized"`
	Snapshot   portal.Snapshot `json:"snapshot"`
	Extracted  int             `json:"extracted"`
	Persist    records.Summary `json:"persist"`
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Duration   time.Duration   `json:"duration"`
}

type Pipeline struct {
	Driver       browser.Driver
	Session      *portal.SessionController
	Detector     portal.StabilizeDetector
	Rules        extract.Ruleset
	Writer       records.Writer
	ResultsURL   string
	Interactions []Interaction
}

// Run executes the whole pipeline once. The returned summary is always
// meaningful, including on error, so callers can report how far the run
// got.
func (p *Pipeline) Run(ctx context.Context) (RunSummary, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Run")
	defer span.End()

	start := time.Now()
	summary := RunSummary{RunID: newRunID()}
	span.SetAttributes(attribute.String("run.id", summary.RunID))

	fail := func(stage Stage, err error) (RunSummary, error) {
		summary.Stage = stage
		summary.Message = err.Error()
		summary.Duration = time.Since(start)
		p.diagnostic(ctx, summary.RunID, stage)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return summary, err
	}

	summary.Stage = StageSession
	slog.InfoContext(ctx, "starting scrape run", "run_id", summary.RunID)
	if err := p.Session.Establish(ctx); err != nil {
		return fail(StageSession, err)
	}

	summary.Stage = StageNavigate
	if err := p.Driver.Navigate(ctx, p.ResultsURL); err != nil {
		return fail(StageNavigate, &portal.TransportError{Op: "results page", Err: err})
	}
	for _, step := range p.Interactions {
		var err error
		if step.Value != "" {
			err = p.Driver.SetValue(ctx, step.Selector, step.Value)
		} else {
			err = p.Driver.Click(ctx, step.Selector)
		}
		if err != nil {
			return fail(StageNavigate, fmt.Errorf("interaction %q: %w", step.Selector, err))
		}
	}

	summary.Stage = StageStabilize
	snap, stabilized, err := p.Detector.Wait(ctx, p.Driver)
	if err != nil {
		return fail(StageStabilize, err)
	}
	summary.Snapshot = snap
	summary.Stabilized = stabilized

	// A timed-out wait still falls through to extraction: partial
	// content is worth attempting, the writer is idempotent anyway.
	summary.Stage = StageExtract
	page, err := browser.CapturePage(ctx, p.Driver)
	if err != nil {
		return fail(StageExtract, &portal.TransportError{Op: "capture results", Err: err})
	}
	result := extract.Extract(ctx, page.Doc, p.Rules)
	for _, group := range result.Groups {
		summary.Extracted += len(group.Courses)
	}
	span.SetAttributes(attribute.Int("run.extracted", summary.Extracted))
	if summary.Extracted == 0 {
		return fail(StageExtract, ErrContentNotFound)
	}

	summary.Stage = StagePersist
	summary.Persist = p.Writer.Write(ctx, result)

	summary.Stage = StageDone
	summary.Success = summary.Persist.Success
	summary.Message = summary.Persist.Message
	summary.Duration = time.Since(start)
	slog.InfoContext(ctx, "scrape run finished",
		"run_id", summary.RunID,
		"stabilized", summary.Stabilized,
		"extracted", summary.Extracted,
		"saved", summary.Persist.Saved,
		"skipped", summary.Persist.Skipped,
		"errors", summary.Persist.Errors,
		"duration", summary.Duration)
	return summary, nil
}

func (p *Pipeline) diagnostic(ctx context.Context, runID string, stage Stage) {
	name := fmt.Sprintf("run-%s-%s", runID, stage)
	if err := p.Driver.CaptureDiagnostic(ctx, name); err != nil {
		slog.WarnContext(ctx, "failed to capture diagnostic", "name", name, "err", err)
	}
}

func newRunID() string {
	id, err := random.String(12)
	if err != nil {
		return fmt.Sprintf("t%d", time.Now().UnixNano())
	}
	return id
}
