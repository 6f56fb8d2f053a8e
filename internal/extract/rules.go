package extract

import "regexp"

// Field is a canonical output attribute raw columns are mapped onto.
type Field int

const (
	FieldNone Field = iota
	FieldCode
	FieldName
	FieldCredits
	FieldCA1
	FieldCA2
	FieldExam
	FieldTotal
	FieldGrade
	FieldGradePoint
)

func (f Field) String() string {
	switch f {
	case FieldCode:
		return "code"
	case FieldName:
		return "name"
	case FieldCredits:
		return "credits"
	case FieldCA1:
		return "ca1"
	case FieldCA2:
		return "ca2"
	case FieldExam:
		return "exam"
	case FieldTotal:
		return "total"
	case FieldGrade:
		return "grade"
	case FieldGradePoint:
		return "grade_point"
	}
	return "none"
}

// ColumnRule maps a header onto a canonical field. Match/Exclude entries
// are compared as substrings of the normalized (lowercase alphanumeric)
// header text.
type ColumnRule struct {
	Match   []string
	Exclude []string
	Field   Field
}

// StudentSelectors are ordered selector candidates per student field;
// the first match with non-empty text wins.
type StudentSelectors struct {
	Name           []string
	RegistrationID []string
	Program        []string
	Faculty        []string
}

// LabelKeywords drive the label/value fallback scan over two-cell rows
// when no selector candidate matched.
type LabelKeywords struct {
	Name           []string
	RegistrationID []string
	Program        []string
	Faculty        []string
}

// Ruleset carries every heuristic dictionary the extraction engine uses.
// It is injected rather than hardcoded so the mapper can be re-tuned per
// portal without touching engine logic.
type Ruleset struct {
	// TableKeywords classify a table as a record table when any
	// normalized header cell contains one of them.
	TableKeywords []string
	// FooterKeywords blacklist summary/footer rows; checked against the
	// joined row text before any field mapping happens.
	FooterKeywords []string
	// Columns are tried in order per header cell; first match wins.
	Columns []ColumnRule
	// GroupTitlePattern recognizes a preceding sibling as a group
	// heading (term name or an "X 2023/2024" style label).
	GroupTitlePattern *regexp.Regexp
	Student           StudentSelectors
	Labels            LabelKeywords
}

// DefaultRuleset is tuned for the narrow class of institutional result
// pages this service targets. Expect periodic re-tuning, not generality.
func DefaultRuleset() Ruleset {
	return Ruleset{
		TableKeywords: []string{
			"course", "subject", "code", "credit", "unit",
			"mark", "score", "grade", "exam", "ca",
		},
		FooterKeywords: []string{
			"total", "gpa", "cgpa", "average", "cumulative",
			"disclaimer", "remark", "carried forward", "summary",
		},
		Columns: []ColumnRule{
			{Match: []string{"code"}, Field: FieldCode},
			{Match: []string{"course", "subject", "module", "unit", "title"}, Field: FieldName},
			{Match: []string{"credit", "cu", "ch"}, Field: FieldCredits},
			{Match: []string{"ca1", "cat1", "test1", "assessment1"}, Field: FieldCA1},
			{Match: []string{"ca2", "cat2", "test2", "assessment2"}, Field: FieldCA2},
			{Match: []string{"exam", "final"}, Field: FieldExam},
			{Match: []string{"total", "overall", "mark", "score"}, Exclude: []string{"remark"}, Field: FieldTotal},
			{Match: []string{"grade"}, Exclude: []string{"point"}, Field: FieldGrade},
			{Match: []string{"point", "gp"}, Field: FieldGradePoint},
		},
		GroupTitlePattern: regexp.MustCompile(
			`(?i)\b(semester|trimester|term|academic\s+(year|session))\b|\b\S+\s+\d{4}\s*/\s*\d{4}`,
		),
		Student: StudentSelectors{
			Name:           []string{"#studentName", ".student-name", "#lblName", "#lblStudentName"},
			RegistrationID: []string{"#regNo", ".reg-number", "#lblRegNo", "#lblMatricNo"},
			Program:        []string{"#programme", ".programme", "#lblProgramme", "#lblProgram"},
			Faculty:        []string{"#faculty", ".faculty", "#lblFaculty", "#lblSchool"},
		},
		Labels: LabelKeywords{
			Name:           []string{"studentname", "fullname", "nameofstudent"},
			RegistrationID: []string{"regno", "registrationno", "matricno", "matriculation", "studentid"},
			Program:        []string{"programme", "program", "courseofstudy"},
			Faculty:        []string{"faculty", "school", "college", "department"},
		},
	}
}
