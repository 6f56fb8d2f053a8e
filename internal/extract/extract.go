// Package extract turns a captured result-page document into structured
// academic records. The engine is a pure function over the document: it
// has no driver dependency and no side effects beyond diagnostics.
package extract

import (
	"context"
	"log/slog"

	"resultsync-backend/lib/htmlutil"
	"resultsync-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("resultsync.extract")

type StudentInfo struct {
	Name           string
	RegistrationID string
	Program        string
	Faculty        string
}

// Course is one parsed record row. Numeric fields are nil (not zero)
// when the cell was empty or unparsable.
type Course struct {
	Code       string
	Name       string
	Credits    *float64
	CA1        *float64
	CA2        *float64
	Exam       *float64
	Total      *float64
	Grade      string
	GradePoint *float64
	// Extra holds cells whose header matched no column rule, keyed by
	// the sanitized header text. First occurrence wins on collision.
	Extra map[string]string
}

// Group is a logical run of courses under one heading, usually a
// semester or academic session.
type Group struct {
	Title   string
	Courses []Course
}

type Result struct {
	Student StudentInfo
	Groups  []Group
}

// Extract classifies every table in the document, segments record tables
// into titled groups and maps their rows onto Courses. Groups without a
// single retained course are dropped.
func Extract(ctx context.Context, doc *goquery.Document, rules Ruleset) Result {
	ctx, span := tracer.Start(ctx, "Extract")
	defer span.End()

	result := Result{Student: extractStudent(doc, rules)}

	dropped := 0
	footers := 0
	periodIndex := 0

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		if !isRecordTable(table, rules) {
			return
		}
		periodIndex++

		group := Group{Title: groupTitle(table, periodIndex, rules)}

		rows := htmlutil.TableRows(table)
		headers := headerCells(rows)
		for _, row := range dataRows(rows) {
			course, outcome := mapRow(ctx, headers, htmlutil.RowCells(row), rules)
			switch outcome {
			case rowRetained:
				group.Courses = append(group.Courses, course)
			case rowFooter:
				footers++
			case rowDropped:
				dropped++
			}
		}

		if len(group.Courses) > 0 {
			result.Groups = append(result.Groups, group)
		}
	})

	span.SetAttributes(
		attribute.Int("groups", len(result.Groups)),
		attribute.Int("dropped_rows", dropped),
		attribute.Int("footer_rows", footers),
	)
	slog.DebugContext(
		ctx, "extraction finished",
		"groups", len(result.Groups),
		"dropped_rows", dropped,
		"footer_rows", footers,
	)

	return result
}

// extractStudent tries the ordered selector candidates first, then falls
// back to scanning label/value pairs in two-cell rows. Unmatched fields
// stay empty, they never fail extraction.
func extractStudent(doc *goquery.Document, rules Ruleset) StudentInfo {
	info := StudentInfo{
		Name:           htmlutil.FirstText(doc, rules.Student.Name),
		RegistrationID: htmlutil.FirstText(doc, rules.Student.RegistrationID),
		Program:        htmlutil.FirstText(doc, rules.Student.Program),
		Faculty:        htmlutil.FirstText(doc, rules.Student.Faculty),
	}

	if info.Name != "" && info.RegistrationID != "" && info.Program != "" && info.Faculty != "" {
		return info
	}

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := htmlutil.RowCells(row)
		if len(cells) != 2 || cells[1] == "" {
			return
		}
		label := cells[0]
		switch {
		case info.Name == "" && textutil.MatchLabel(label, rules.Labels.Name):
			info.Name = cells[1]
		case info.RegistrationID == "" && textutil.MatchLabel(label, rules.Labels.RegistrationID):
			info.RegistrationID = cells[1]
		case info.Program == "" && textutil.MatchLabel(label, rules.Labels.Program):
			info.Program = cells[1]
		case info.Faculty == "" && textutil.MatchLabel(label, rules.Labels.Faculty):
			info.Faculty = cells[1]
		}
	})

	return info
}
