package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"resultsync-backend/lib/testutil"

	"resultsync-backend/internal/pipeline"
	"resultsync-backend/internal/records"
	"resultsync-backend/internal/records/db"
)

func setupServer(t *testing.T, run Runner) (*Server, records.Store) {
	t.Helper()
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "api",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)

	store := records.NewStore(res.DB)
	return NewServer(store, run), store
}

func seedRecord(t *testing.T, store records.Store, student, code string) {
	t.Helper()
	err := store.Create(context.Background(), records.Record{
		Student: student,
		Code:    code,
		Name:    "Intro to Computing",
		Period:  "First Semester 2023/2024",
		Credits: 3,
		Total:   82,
		Grade:   "A",
		Extra:   map[string]string{},
	})
	require.NoError(t, err)
}

func TestGetRecords(t *testing.T) {
	srv, store := setupServer(t, nil)
	seedRecord(t, store, "U2021/1234", "CSC101")
	seedRecord(t, store, "U2021/1234", "MTH102")

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/records/U2021%2F1234")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Student string           `json:"student"`
		Records []records.Record `json:"records"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Equal(t, "U2021/1234", body.Student)
	require.Len(t, body.Records, 2)
	require.Equal(t, "CSC101", body.Records[0].Code)
}

func TestGetRecordsNotFound(t *testing.T) {
	srv, _ := setupServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/records/nobody")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestListStudents(t *testing.T) {
	srv, store := setupServer(t, nil)
	seedRecord(t, store, "U2021/1234", "CSC101")
	seedRecord(t, store, "U2021/5678", "CSC101")

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/students")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Students []string `json:"students"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Len(t, body.Students, 2)
}

func TestStartRunRejectsConcurrentRuns(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	run := func(ctx context.Context) (pipeline.RunSummary, error) {
		calls.Add(1)
		<-release
		return pipeline.RunSummary{RunID: "abc123", Success: true}, nil
	}

	srv, _ := setupServer(t, run)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	res, err := http.Post(ts.URL+"/v1/runs", "application/json", nil)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusAccepted, res.StatusCode)

	res, err = http.Post(ts.URL+"/v1/runs", "application/json", nil)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusConflict, res.StatusCode)

	close(release)
	require.Eventually(t, func() bool {
		res, err := http.Get(ts.URL + "/v1/runs/latest")
		if err != nil {
			return false
		}
		defer res.Body.Close()
		var body struct {
			Status  string              `json:"status"`
			Summary pipeline.RunSummary `json:"summary"`
		}
		if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
			return false
		}
		return body.Status == "finished" && body.Summary.RunID == "abc123"
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
}

func TestLatestRunBeforeAnyRun(t *testing.T) {
	srv, _ := setupServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/runs/latest")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}
