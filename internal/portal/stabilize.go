package portal

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"resultsync-backend/lib/browser"
	"resultsync-backend/lib/htmlutil"

	"resultsync-backend/internal/extract"
)

// Snapshot is one observation of the rendered page, cheap enough to
// take every poll.
type Snapshot struct {
	TableCount       int
	RecordTableCount int
	BodyTextLength   int
	Loading          bool
}

// LoadingIndicators describe how the portal signals "still loading".
type LoadingIndicators struct {
	// Selectors are matched against visible elements.
	Selectors []string
	// TextPatterns are lowercase substrings matched against body text.
	TextPatterns []string
}

func DefaultLoadingIndicators() LoadingIndicators {
	return LoadingIndicators{
		Selectors:    []string{".loading", ".spinner", ".loader", "[aria-busy=true]"},
		TextPatterns: []string{"loading", "please wait"},
	}
}

// TakeSnapshot measures the page for stabilization tracking.
func TakeSnapshot(page browser.Page, rules extract.Ruleset, loading LoadingIndicators) Snapshot {
	s := Snapshot{
		TableCount:       extract.CountTables(page.Doc),
		RecordTableCount: extract.CountRecordTables(page.Doc, rules),
		BodyTextLength:   htmlutil.BodyTextLength(page.Doc),
	}
	if anyVisible(page, loading.Selectors) {
		s.Loading = true
		return s
	}
	body := strings.ToLower(page.Doc.Find("body").Text())
	for _, pattern := range loading.TextPatterns {
		if strings.Contains(body, pattern) {
			s.Loading = true
			return s
		}
	}
	return s
}

type StabilizePhase int

const (
	PhasePolling StabilizePhase = iota
	PhaseStable
	PhaseDone
)

func (p StabilizePhase) String() string {
	switch p {
	case PhaseStable:
		return "stable"
	case PhaseDone:
		return "done"
	}
	return "polling"
}

// StabilizeMachine decides from successive snapshots whether the page
// has stopped changing. It is a pure state machine with no clock or
// browser access, fed one snapshot per poll.
type StabilizeMachine struct {
	required int

	phase   StabilizePhase
	stable  int
	prev    Snapshot
	hasPrev bool
}

func NewStabilizeMachine(requiredStablePolls int) *StabilizeMachine {
	if requiredStablePolls <= 0 {
		requiredStablePolls = 2
	}
	return &StabilizeMachine{required: requiredStablePolls}
}

func (m *StabilizeMachine) Phase() StabilizePhase {
	return m.phase
}

// Step feeds the machine one snapshot and returns the resulting phase.
// A snapshot counts toward stability only when its table count and
// body text length match the previous snapshot, no loading indicator
// is visible, and at least one record-shaped table exists. The last
// condition means an empty or skeletal page can never count as done.
func (m *StabilizeMachine) Step(s Snapshot) StabilizePhase {
	if m.phase == PhaseDone {
		return m.phase
	}

	switch {
	case s.Loading:
		m.stable = 0
		m.phase = PhasePolling
	case m.hasPrev &&
		s.TableCount == m.prev.TableCount &&
		s.BodyTextLength == m.prev.BodyTextLength &&
		s.RecordTableCount > 0:
		m.stable++
		if m.stable >= m.required {
			m.phase = PhaseDone
		} else {
			m.phase = PhaseStable
		}
	default:
		m.stable = 0
		m.phase = PhasePolling
	}

	m.prev = s
	m.hasPrev = true
	return m.phase
}

// StabilizeDetector polls a page until its content stops changing.
type StabilizeDetector struct {
	Interval            time.Duration
	MaxWait             time.Duration
	RequiredStablePolls int
	Rules               extract.Ruleset
	Loading             LoadingIndicators
}

func NewStabilizeDetector(rules extract.Ruleset) StabilizeDetector {
	return StabilizeDetector{
		Interval:            time.Second,
		MaxWait:             30 * time.Second,
		RequiredStablePolls: 2,
		Rules:               rules,
		Loading:             DefaultLoadingIndicators(),
	}
}

// Wait polls the driver until content stabilizes or MaxWait elapses.
// On timeout it returns the last snapshot with stabilized=false and no
// error: the caller decides whether a degraded extraction attempt is
// worth making.
func (d StabilizeDetector) Wait(ctx context.Context, driver browser.Driver) (Snapshot, bool, error) {
	ctx, span := tracer.Start(ctx, "StabilizeDetector.Wait")
	defer span.End()

	machine := NewStabilizeMachine(d.RequiredStablePolls)
	deadline := time.Now().Add(d.MaxWait)
	polls := 0

	var last Snapshot
	for {
		page, err := browser.CapturePage(ctx, driver)
		if err != nil {
			return last, false, &TransportError{Op: "stabilize", Err: err}
		}
		last = TakeSnapshot(page, d.Rules, d.Loading)
		polls++

		if machine.Step(last) == PhaseDone {
			span.SetAttributes(
				attribute.Int("stabilize.polls", polls),
				attribute.Int("stabilize.record_tables", last.RecordTableCount),
			)
			return last, true, nil
		}
		if time.Now().After(deadline) {
			slog.WarnContext(ctx, "content never stabilized, proceeding degraded",
				"polls", polls,
				"tables", last.TableCount,
				"record_tables", last.RecordTableCount,
				"loading", last.Loading)
			span.SetAttributes(
				attribute.Int("stabilize.polls", polls),
				attribute.Bool("stabilize.timed_out", true),
			)
			return last, false, nil
		}

		select {
		case <-ctx.Done():
			return last, false, ctx.Err()
		case <-time.After(d.Interval):
		}
	}
}
