package extract

import (
	"context"
	"strings"
	"testing"

	"resultsync-backend/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, markup string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		input string
		want  *float64
	}{
		{"12.5 pts", ptr(12.5)},
		{"", nil},
		{"N/A", nil},
		{"87", ptr(87.0)},
		{"-3", ptr(-3.0)},
		{"78%", ptr(78.0)},
		{"A+", nil},
		{"--", nil},
	}
	for _, c := range cases {
		got := ParseNumber(c.input)
		if c.want == nil {
			require.Nil(t, got, "input %q", c.input)
			continue
		}
		require.NotNil(t, got, "input %q", c.input)
		require.Equal(t, *c.want, *got, "input %q", c.input)
	}
}

func ptr(v float64) *float64 { return &v }

const resultsPage = `
<html><body>
	<div id="studentName">Jane Githinji</div>
	<div id="regNo">SC/2104/19</div>
	<div>
		<h3>First Semester 2023/2024</h3>
		<table>
			<tr><th>Code</th><th>Course Name</th><th>Credits</th><th>CAT1</th><th>CAT2</th><th>Exam</th><th>Total</th><th>Grade</th></tr>
			<tr><td>MAT101</td><td>Calculus I</td><td>3</td><td>12</td><td>14</td><td>48</td><td>74</td><td>A</td></tr>
			<tr><td>PHY102</td><td>Mechanics</td><td>4</td><td>10</td><td>N/A</td><td>41</td><td>51</td><td>B</td></tr>
			<tr><td></td><td>Total</td><td></td><td></td><td></td><td></td><td>125</td><td></td></tr>
		</table>
	</div>
</body></html>`

func TestExtractResultsPage(t *testing.T) {
	defer telemetry.SetupForTesting("test:extract")()

	doc := parseDoc(t, resultsPage)
	result := Extract(context.Background(), doc, DefaultRuleset())

	require.Equal(t, "Jane Githinji", result.Student.Name)
	require.Equal(t, "SC/2104/19", result.Student.RegistrationID)

	require.Len(t, result.Groups, 1)
	group := result.Groups[0]
	require.Equal(t, "First Semester 2023/2024", group.Title)
	require.Len(t, group.Courses, 2)

	want := Course{
		Code:    "MAT101",
		Name:    "Calculus I",
		Credits: ptr(3),
		CA1:     ptr(12),
		CA2:     ptr(14),
		Exam:    ptr(48),
		Total:   ptr(74),
		Grade:   "A",
		Extra:   map[string]string{},
	}
	if diff := cmp.Diff(want, group.Courses[0]); diff != "" {
		t.Fatalf("first course mismatch (-want +got):\n%s", diff)
	}

	// the absent CA2 value stays nil, it is not coerced to zero here
	require.Nil(t, group.Courses[1].CA2)

	// the retention invariant holds for everything extracted
	for _, c := range group.Courses {
		require.True(t, c.Code != "" || c.Name != "")
	}
}

func TestFooterRowsNeverBecomeCourses(t *testing.T) {
	doc := parseDoc(t, `
		<table>
			<tr><th>Code</th><th>Course</th><th>Grade</th></tr>
			<tr><td>CSC201</td><td>Data Structures</td><td>A</td></tr>
			<tr><td colspan="3">Cumulative GPA: 3.8</td></tr>
		</table>`)

	result := Extract(context.Background(), doc, DefaultRuleset())
	require.Len(t, result.Groups, 1)
	require.Len(t, result.Groups[0].Courses, 1)
	require.Equal(t, "CSC201", result.Groups[0].Courses[0].Code)
}

func TestTwoRowTableIsNotARecordTable(t *testing.T) {
	// matching headers but no data rows: a summary widget, not records
	doc := parseDoc(t, `
		<table>
			<tr><th>Course</th><th>Grade</th></tr>
			<tr><td>CSC201</td><td>A</td></tr>
		</table>`)

	result := Extract(context.Background(), doc, DefaultRuleset())
	require.Empty(t, result.Groups)
}

func TestTableWithoutKeywordHeadersIsIgnored(t *testing.T) {
	doc := parseDoc(t, `
		<table>
			<tr><th>Day</th><th>Event</th></tr>
			<tr><td>Monday</td><td>Orientation</td></tr>
			<tr><td>Tuesday</td><td>Registration</td></tr>
		</table>`)

	result := Extract(context.Background(), doc, DefaultRuleset())
	require.Empty(t, result.Groups)
}

func TestPositionalTitleWhenNoHeadingMatches(t *testing.T) {
	doc := parseDoc(t, `
		<div>
			<p>Click below for your results.</p>
			<table>
				<tr><th>Code</th><th>Course</th></tr>
				<tr><td>BIO110</td><td>Cell Biology</td></tr>
				<tr><td>CHE120</td><td>Organic Chemistry</td></tr>
			</table>
		</div>`)

	result := Extract(context.Background(), doc, DefaultRuleset())
	require.Len(t, result.Groups, 1)
	require.Equal(t, "Academic Period 1", result.Groups[0].Title)
}

func TestUnrecognizedHeadersLandInExtra(t *testing.T) {
	doc := parseDoc(t, `
		<table>
			<tr><th>Code</th><th>Course</th><th>Lecturer Comment</th></tr>
			<tr><td>ENG301</td><td>Thermodynamics</td><td>resit allowed</td></tr>
			<tr><td>ENG302</td><td>Fluid Mechanics</td><td></td></tr>
		</table>`)

	result := Extract(context.Background(), doc, DefaultRuleset())
	require.Len(t, result.Groups, 1)
	require.Equal(t, "resit allowed", result.Groups[0].Courses[0].Extra["lecturer_comment"])
}

func TestRowsWithoutCodeOrNameAreDropped(t *testing.T) {
	doc := parseDoc(t, `
		<table>
			<tr><th>Code</th><th>Course</th><th>Grade</th></tr>
			<tr><td>CSC201</td><td>Data Structures</td><td>A</td></tr>
			<tr><td></td><td></td><td>B</td></tr>
		</table>`)

	result := Extract(context.Background(), doc, DefaultRuleset())
	require.Len(t, result.Groups, 1)
	require.Len(t, result.Groups[0].Courses, 1)
}

func TestStudentLabelFallback(t *testing.T) {
	doc := parseDoc(t, `
		<table>
			<tr><td>Reg. No.</td><td>EDU/1234/21</td></tr>
			<tr><td>Programme</td><td>B.Ed Science</td></tr>
		</table>`)

	result := Extract(context.Background(), doc, DefaultRuleset())
	require.Equal(t, "EDU/1234/21", result.Student.RegistrationID)
	require.Equal(t, "B.Ed Science", result.Student.Program)
}
