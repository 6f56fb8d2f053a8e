package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type CourseRecord struct {
	Student    string
	Code       string
	Name       string
	Period     string
	Credits    int64
	Ca1        int64
	Ca2        int64
	Exam       int64
	Total      int64
	Grade      string
	GradePoint int64
	Extra      string
	CreatedAt  int64
}

const createCourseRecord = `
INSERT INTO course_records (
	student, code, name, period, credits, ca1, ca2, exam, total, grade, grade_point, extra, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateCourseRecord(ctx context.Context, arg CourseRecord) error {
	_, err := q.db.ExecContext(ctx, createCourseRecord,
		arg.Student,
		arg.Code,
		arg.Name,
		arg.Period,
		arg.Credits,
		arg.Ca1,
		arg.Ca2,
		arg.Exam,
		arg.Total,
		arg.Grade,
		arg.GradePoint,
		arg.Extra,
		arg.CreatedAt,
	)
	return err
}

const listCourseRecords = `
SELECT student, code, name, period, credits, ca1, ca2, exam, total, grade, grade_point, extra, created_at
FROM course_records
WHERE student = ?
ORDER BY period, code
`

func (q *Queries) ListCourseRecords(ctx context.Context, student string) ([]CourseRecord, error) {
	rows, err := q.db.QueryContext(ctx, listCourseRecords, student)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CourseRecord
	for rows.Next() {
		var r CourseRecord
		err := rows.Scan(
			&r.Student,
			&r.Code,
			&r.Name,
			&r.Period,
			&r.Credits,
			&r.Ca1,
			&r.Ca2,
			&r.Exam,
			&r.Total,
			&r.Grade,
			&r.GradePoint,
			&r.Extra,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const listStudents = `
SELECT DISTINCT student FROM course_records ORDER BY student
`

func (q *Queries) ListStudents(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listStudents)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const getSessionCookies = `
SELECT cookies FROM portal_sessions WHERE host = ?
`

func (q *Queries) GetSessionCookies(ctx context.Context, host string) (string, error) {
	var cookies string
	err := q.db.QueryRowContext(ctx, getSessionCookies, host).Scan(&cookies)
	return cookies, err
}

const upsertSessionCookies = `
INSERT INTO portal_sessions (host, cookies, updated_at) VALUES (?, ?, ?)
ON CONFLICT (host) DO UPDATE SET cookies = excluded.cookies, updated_at = excluded.updated_at
`

type UpsertSessionCookiesParams struct {
	Host      string
	Cookies   string
	UpdatedAt int64
}

func (q *Queries) UpsertSessionCookies(ctx context.Context, arg UpsertSessionCookiesParams) error {
	_, err := q.db.ExecContext(ctx, upsertSessionCookies, arg.Host, arg.Cookies, arg.UpdatedAt)
	return err
}
