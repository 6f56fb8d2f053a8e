package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"resultsync-backend/internal/extract"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("resultsync.records")

// FallbackIdentifierPolicy decides the student key when the portal never
// rendered a usable registration identifier. Records from runs without an
// identifier all land under Fallback.
type FallbackIdentifierPolicy struct {
	// Sentinels are identifier values the portal renders that mean
	// "not available" rather than an actual identifier.
	Sentinels []string
	Fallback  string
}

func DefaultFallbackIdentifierPolicy() FallbackIdentifierPolicy {
	return FallbackIdentifierPolicy{
		Sentinels: []string{"N/A", "NA", "-", "NOT AVAILABLE", "NIL"},
		Fallback:  "UNKNOWN_STUDENT",
	}
}

func (p FallbackIdentifierPolicy) Resolve(registrationID string) string {
	if registrationID == "" {
		return p.Fallback
	}
	for _, sentinel := range p.Sentinels {
		if registrationID == sentinel {
			return p.Fallback
		}
	}
	return registrationID
}

// NullToZeroAtPersistence collapses absent numeric values to a default
// at the storage boundary only. The storage schema is integer-typed;
// extraction keeps the nil-vs-zero distinction up to this point.
type NullToZeroAtPersistence struct {
	Default int64
}

func (p NullToZeroAtPersistence) Round(v *float64) int64 {
	if v == nil {
		return p.Default
	}
	return int64(math.Round(*v))
}

// Summary aggregates per-record outcomes for one write batch.
type Summary struct {
	Saved   int    `json:"saved"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Writer maps an extraction result onto canonical records and writes
// them one at a time. A single failed record never aborts the batch.
type Writer struct {
	Store    Store
	Identity FallbackIdentifierPolicy
	Numeric  NullToZeroAtPersistence
}

func NewWriter(store Store) Writer {
	return Writer{
		Store:    store,
		Identity: DefaultFallbackIdentifierPolicy(),
		Numeric:  NullToZeroAtPersistence{Default: 0},
	}
}

const missingValue = "N/A"

// Write persists every course of every group. Duplicate keys count as
// skips; store failures count as errors and the batch continues.
func (w Writer) Write(ctx context.Context, result extract.Result) Summary {
	ctx, span := tracer.Start(ctx, "Writer.Write")
	defer span.End()

	student := w.Identity.Resolve(result.Student.RegistrationID)
	if student == w.Identity.Fallback {
		slog.WarnContext(
			ctx, "no usable registration identifier, using fallback key",
			"fallback", w.Identity.Fallback,
		)
	}

	var summary Summary
	for _, group := range result.Groups {
		for _, course := range group.Courses {
			code := course.Code
			name := course.Name
			// upstream guarantees one of the two is set; the sentinel
			// keeps the other auditable rather than empty
			if code == "" {
				code = missingValue
			}
			if name == "" {
				name = missingValue
			}

			record := Record{
				Student:    student,
				Code:       code,
				Name:       name,
				Period:     group.Title,
				Credits:    w.Numeric.Round(course.Credits),
				CA1:        w.Numeric.Round(course.CA1),
				CA2:        w.Numeric.Round(course.CA2),
				Exam:       w.Numeric.Round(course.Exam),
				Total:      w.Numeric.Round(course.Total),
				Grade:      course.Grade,
				GradePoint: w.Numeric.Round(course.GradePoint),
				Extra:      course.Extra,
			}

			err := w.Store.Create(ctx, record)
			switch {
			case err == nil:
				summary.Saved++
			case errors.Is(err, ErrConflict):
				summary.Skipped++
			default:
				summary.Errors++
				slog.ErrorContext(
					ctx, "failed to save record",
					"student", student,
					"code", code,
					"err", err,
				)
			}
		}
	}

	summary.Success = summary.Errors == 0
	summary.Message = fmt.Sprintf(
		"saved %d, skipped %d, errors %d",
		summary.Saved, summary.Skipped, summary.Errors,
	)

	span.SetAttributes(
		attribute.Int("saved", summary.Saved),
		attribute.Int("skipped", summary.Skipped),
		attribute.Int("errors", summary.Errors),
	)

	return summary
}
