package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"resultsync-backend/lib/htmlutil"
	"resultsync-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
)

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// isRecordTable reports whether a table looks like a course record
// table: at least one normalized header cell intersecting the keyword
// dictionary, and more than 2 rows. A 2-row table with matching headers
// has no data rows and is usually a summary widget.
func isRecordTable(table *goquery.Selection, rules Ruleset) bool {
	rows := htmlutil.TableRows(table)
	if len(rows) < 2 {
		return false
	}
	matched := false
	for _, header := range headerCells(rows) {
		if containsAny(textutil.NormalizeHeader(header), rules.TableKeywords) {
			matched = true
			break
		}
	}
	return matched && len(rows) > 2
}

// CountTables returns the total number of tables in the document.
func CountTables(doc *goquery.Document) int {
	return doc.Find("table").Length()
}

// CountRecordTables returns how many tables classify as record tables.
func CountRecordTables(doc *goquery.Document, rules Ruleset) int {
	n := 0
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		if isRecordTable(table, rules) {
			n++
		}
	})
	return n
}

// headerCells derives the header row: the first row of the table, which
// covers both explicit thead rows and headerless markup.
func headerCells(rows []*goquery.Selection) []string {
	if len(rows) == 0 {
		return nil
	}
	return htmlutil.RowCells(rows[0])
}

func dataRows(rows []*goquery.Selection) []*goquery.Selection {
	if len(rows) < 2 {
		return nil
	}
	return rows[1:]
}

// groupTitle walks backward through the table's immediate preceding
// siblings looking for a heading or text block matching the term/date
// pattern. Markup varies by section, so when nothing matches within a
// few siblings a positional label is synthesized.
func groupTitle(table *goquery.Selection, index int, rules Ruleset) string {
	checked := 0
	for prev := table.Prev(); prev.Length() > 0 && checked < 4; prev = prev.Prev() {
		checked++
		if prev.Is("table") {
			break
		}
		text := htmlutil.CleanedText(prev)
		if text == "" {
			continue
		}
		if rules.GroupTitlePattern.MatchString(text) {
			return text
		}
	}
	return positionalTitle(index)
}

func positionalTitle(index int) string {
	return fmt.Sprintf("Academic Period %d", index)
}

type rowOutcome int

const (
	rowRetained rowOutcome = iota
	rowEmpty
	rowFooter
	rowDropped
)

// matchColumn tries the ordered rules against a normalized header;
// first match wins.
func matchColumn(header string, columns []ColumnRule) Field {
	for _, rule := range columns {
		if !containsAny(header, rule.Match) {
			continue
		}
		if containsAny(header, rule.Exclude) {
			continue
		}
		return rule.Field
	}
	return FieldNone
}

// mapRow maps one data row onto a Course. The footer blacklist runs
// before any field mapping so aggregate rows ("Cumulative GPA: 3.8")
// never get misparsed as courses.
func mapRow(ctx context.Context, headers, cells []string, rules Ruleset) (Course, rowOutcome) {
	allEmpty := true
	for _, cell := range cells {
		if cell != "" {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		return Course{}, rowEmpty
	}

	joined := strings.ToLower(strings.Join(cells, " "))
	for _, keyword := range rules.FooterKeywords {
		if strings.Contains(joined, keyword) {
			return Course{}, rowFooter
		}
	}

	course := Course{Extra: map[string]string{}}
	for i, cell := range cells {
		if i >= len(headers) {
			break
		}
		header := textutil.NormalizeHeader(headers[i])
		switch matchColumn(header, rules.Columns) {
		case FieldCode:
			course.Code = cell
		case FieldName:
			course.Name = cell
		case FieldCredits:
			course.Credits = ParseNumber(cell)
		case FieldCA1:
			course.CA1 = ParseNumber(cell)
		case FieldCA2:
			course.CA2 = ParseNumber(cell)
		case FieldExam:
			course.Exam = ParseNumber(cell)
		case FieldTotal:
			course.Total = ParseNumber(cell)
		case FieldGrade:
			course.Grade = cell
		case FieldGradePoint:
			course.GradePoint = ParseNumber(cell)
		case FieldNone:
			reportNearMiss(ctx, header, rules)
			key := textutil.SanitizeKey(headers[i])
			if key == "" {
				continue
			}
			if _, taken := course.Extra[key]; !taken {
				course.Extra[key] = cell
			}
		}
	}

	if course.Code == "" && course.Name == "" {
		return Course{}, rowDropped
	}
	return course, rowRetained
}

// reportNearMiss flags headers that almost match a known column rule,
// the usual smell after the portal renames a column.
func reportNearMiss(ctx context.Context, header string, rules Ruleset) {
	if header == "" {
		return
	}
	for _, rule := range rules.Columns {
		for _, token := range rule.Match {
			if len(token) < 3 {
				continue
			}
			if matchr.JaroWinkler(header, token, false) > 0.9 {
				slog.WarnContext(
					ctx, "unmapped header nearly matches a column rule",
					"header", header,
					"rule_token", token,
					"field", rule.Field.String(),
				)
				return
			}
		}
	}
}
