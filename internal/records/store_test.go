package records

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"resultsync-backend/internal/extract"
	"resultsync-backend/internal/records/db"
	"resultsync-backend/lib/browser"
	"resultsync-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (Store, context.Context) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "records",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cancel)

	return NewStore(res.DB), ctx
}

func TestCreateConflict(t *testing.T) {
	store, ctx := setupStore(t)

	record := Record{Student: "SC/2104/19", Code: "MAT101", Name: "Calculus I", Period: "First Semester"}
	require.NoError(t, store.Create(ctx, record))

	err := store.Create(ctx, record)
	require.True(t, errors.Is(err, ErrConflict))

	rows, err := store.List(ctx, "SC/2104/19")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestExtraFieldsRoundTrip(t *testing.T) {
	store, ctx := setupStore(t)

	require.NoError(t, store.Create(ctx, Record{
		Student: "SC/2104/19", Code: "MAT101", Name: "Calculus I",
		Extra: map[string]string{"remark": "Pass"},
	}))
	require.NoError(t, store.Create(ctx, Record{
		Student: "SC/2104/19", Code: "MAT102", Name: "Calculus II",
		Extra: map[string]string{},
	}))
	require.NoError(t, store.Create(ctx, Record{
		Student: "SC/2104/19", Code: "MAT103", Name: "Linear Algebra",
	}))

	rows, err := store.List(ctx, "SC/2104/19")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, map[string]string{"remark": "Pass"}, rows[0].Extra)
	// empty and nil extras normalize to nil on the way back out
	require.Nil(t, rows[1].Extra)
	require.Nil(t, rows[2].Extra)
}

func TestCookiePersistence(t *testing.T) {
	store, ctx := setupStore(t)

	loaded, err := store.LoadCookies(ctx, "portal.example.edu")
	require.NoError(t, err)
	require.Nil(t, loaded)

	cookies := []browser.Cookie{
		{Name: "SESSIONID", Value: "abc123", Domain: "portal.example.edu", Path: "/"},
	}
	require.NoError(t, store.SaveCookies(ctx, "portal.example.edu", cookies))

	loaded, err = store.LoadCookies(ctx, "portal.example.edu")
	require.NoError(t, err)
	require.Equal(t, cookies, loaded)

	// saving again overwrites, it does not conflict
	cookies[0].Value = "def456"
	require.NoError(t, store.SaveCookies(ctx, "portal.example.edu", cookies))
	loaded, err = store.LoadCookies(ctx, "portal.example.edu")
	require.NoError(t, err)
	require.Equal(t, "def456", loaded[0].Value)
}

func extractedFixture() extract.Result {
	credits := 3.0
	total := 74.4
	return extract.Result{
		Student: extract.StudentInfo{RegistrationID: "SC/2104/19", Name: "Jane Githinji"},
		Groups: []extract.Group{
			{
				Title: "First Semester 2023/2024",
				Courses: []extract.Course{
					{Code: "MAT101", Name: "Calculus I", Credits: &credits, Total: &total, Grade: "A"},
					{Code: "PHY102", Name: "Mechanics", Grade: "B"},
				},
			},
		},
	}
}

func TestWriterIdempotency(t *testing.T) {
	store, ctx := setupStore(t)
	writer := NewWriter(store)

	first := writer.Write(ctx, extractedFixture())
	require.True(t, first.Success)
	require.Equal(t, 2, first.Saved)
	require.Equal(t, 0, first.Skipped)
	require.Equal(t, 0, first.Errors)

	second := writer.Write(ctx, extractedFixture())
	require.True(t, second.Success)
	require.Equal(t, 0, second.Saved)
	require.Equal(t, first.Saved, second.Skipped)
	require.Equal(t, 0, second.Errors)
}

func TestWriterRoundsAndDefaultsNumerics(t *testing.T) {
	store, ctx := setupStore(t)
	writer := NewWriter(store)

	summary := writer.Write(ctx, extractedFixture())
	require.Equal(t, 2, summary.Saved)

	rows, err := store.List(ctx, "SC/2104/19")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var calculus, mechanics Record
	for _, r := range rows {
		switch r.Code {
		case "MAT101":
			calculus = r
		case "PHY102":
			mechanics = r
		}
	}
	require.Equal(t, int64(74), calculus.Total)
	require.Equal(t, int64(3), calculus.Credits)
	// absent numerics collapse to the configured default at this
	// boundary only
	require.Equal(t, int64(0), mechanics.Total)
}

func TestWriterEmptyResultIsStillSuccess(t *testing.T) {
	store, ctx := setupStore(t)
	writer := NewWriter(store)

	summary := writer.Write(ctx, extract.Result{})
	require.True(t, summary.Success)
	require.Equal(t, 0, summary.Saved)
}

func TestFallbackIdentifierPolicy(t *testing.T) {
	policy := DefaultFallbackIdentifierPolicy()
	require.Equal(t, "UNKNOWN_STUDENT", policy.Resolve(""))
	require.Equal(t, "UNKNOWN_STUDENT", policy.Resolve("N/A"))
	require.Equal(t, "SC/2104/19", policy.Resolve("SC/2104/19"))
}

func TestWriterUsesFallbackIdentifier(t *testing.T) {
	store, ctx := setupStore(t)
	writer := NewWriter(store)

	result := extractedFixture()
	result.Student.RegistrationID = "N/A"
	summary := writer.Write(ctx, result)
	require.Equal(t, 2, summary.Saved)

	rows, err := store.List(ctx, "UNKNOWN_STUDENT")
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestStudentsAreDistinctAndComplete(t *testing.T) {
	store, ctx := setupStore(t)
	rndm := rand.New(rand.NewSource(7))

	want := map[string]bool{}
	for i := 0; i < 10; i++ {
		student := "U2021/" + testutil.RandomString(rndm, 6)
		want[student] = true
		// several records per student, the listing must still be
		// distinct
		for j := 0; j < 3; j++ {
			err := store.Create(ctx, Record{
				Student: student,
				Code:    fmt.Sprintf("CSC10%d-%s", j, testutil.RandomString(rndm, 2)),
				Name:    "Course " + testutil.RandomString(rndm, 4),
				Period:  "First Semester",
			})
			require.NoError(t, err)
		}
	}

	students, err := store.Students(ctx)
	require.NoError(t, err)
	require.Len(t, students, len(want))
	for _, s := range students {
		require.True(t, want[s], "unexpected student %q", s)
	}
}
