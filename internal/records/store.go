// Package records persists extracted academic records idempotently and
// keeps the portal session cookie blob across runs.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"resultsync-backend/internal/records/db"
	"resultsync-backend/lib/browser"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// ErrConflict marks a duplicate (student, code) create. Callers treat it
// as an expected outcome, not a failure.
var ErrConflict = errors.New("record already exists")

// Record is the canonical row shape shared by the writer, the store, the
// HTTP API and the ingest client.
type Record struct {
	Student    string            `json:"student"`
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	Period     string            `json:"period"`
	Credits    int64             `json:"credits"`
	CA1        int64             `json:"ca1"`
	CA2        int64             `json:"ca2"`
	Exam       int64             `json:"exam"`
	Total      int64             `json:"total"`
	Grade      string            `json:"grade"`
	GradePoint int64             `json:"grade_point"`
	Extra      map[string]string `json:"extra,omitempty"`
}

type Store struct {
	db  *sql.DB
	qry *db.Queries
}

func NewStore(database *sql.DB) Store {
	return Store{
		db:  database,
		qry: db.New(database),
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLITE_CONSTRAINT")
}

// Create writes one record, returning ErrConflict when the
// (student, code) key is already present.
func (s Store) Create(ctx context.Context, r Record) error {
	// nil and empty extra maps both store as "{}" and list back as nil
	extra := "{}"
	if len(r.Extra) > 0 {
		encoded, err := json.Marshal(r.Extra)
		if err != nil {
			return fmt.Errorf("encode extra fields: %w", err)
		}
		extra = string(encoded)
	}

	err := s.qry.CreateCourseRecord(ctx, db.CourseRecord{
		Student:    r.Student,
		Code:       r.Code,
		Name:       r.Name,
		Period:     r.Period,
		Credits:    r.Credits,
		Ca1:        r.CA1,
		Ca2:        r.CA2,
		Exam:       r.Exam,
		Total:      r.Total,
		Grade:      r.Grade,
		GradePoint: r.GradePoint,
		Extra:      extra,
		CreatedAt:  time.Now().Unix(),
	})
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// List returns all records stored for a student.
func (s Store) List(ctx context.Context, student string) ([]Record, error) {
	rows, err := s.qry.ListCourseRecords(ctx, student)
	if err != nil {
		return nil, err
	}

	out := make([]Record, len(rows))
	for i, r := range rows {
		record := Record{
			Student:    r.Student,
			Code:       r.Code,
			Name:       r.Name,
			Period:     r.Period,
			Credits:    r.Credits,
			CA1:        r.Ca1,
			CA2:        r.Ca2,
			Exam:       r.Exam,
			Total:      r.Total,
			Grade:      r.Grade,
			GradePoint: r.GradePoint,
		}
		if r.Extra != "" && r.Extra != "{}" {
			err := json.Unmarshal([]byte(r.Extra), &record.Extra)
			if err != nil {
				slog.WarnContext(ctx, "failed to unmarshal stored extra fields", "err", err)
			}
		}
		out[i] = record
	}
	return out, nil
}

// Students lists every distinct student identifier present in the store.
func (s Store) Students(ctx context.Context) ([]string, error) {
	return s.qry.ListStudents(ctx)
}

// LoadCookies returns the persisted cookie jar for a portal host, or nil
// when no session has been saved yet.
func (s Store) LoadCookies(ctx context.Context, host string) ([]browser.Cookie, error) {
	blob, err := s.qry.GetSessionCookies(ctx, host)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cookies []browser.Cookie
	err = json.Unmarshal([]byte(blob), &cookies)
	if err != nil {
		return nil, fmt.Errorf("decode cookie blob: %w", err)
	}
	return cookies, nil
}

// SaveCookies persists the cookie jar for a portal host.
func (s Store) SaveCookies(ctx context.Context, host string, cookies []browser.Cookie) error {
	blob, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("encode cookie blob: %w", err)
	}
	return s.qry.UpsertSessionCookies(ctx, db.UpsertSessionCookiesParams{
		Host:      host,
		Cookies:   string(blob),
		UpdatedAt: time.Now().Unix(),
	})
}
