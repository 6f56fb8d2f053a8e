package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"resultsync-backend/lib/telemetry"

	"resultsync-backend/internal/records"
)

func sampleRecords() []records.Record {
	return []records.Record{
		{Student: "U2021/1234", Code: "CSC101", Name: "Intro to Computing", Period: "First Semester 2023/2024", Total: 82, Grade: "A"},
		{Student: "U2021/1234", Code: "MTH102", Name: "Calculus I", Period: "First Semester 2023/2024", Total: 71, Grade: "B"},
	}
}

func TestPushCountsOutcomes(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:ingest")
	defer cleanup()

	seen := map[string]bool{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/records", r.URL.Path)
		require.Equal(t, "Bearer sekret", r.Header.Get("Authorization"))

		var rec records.Record
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		if seen[rec.Code] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		seen[rec.Code] = true
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	client := NewClient(Config{BaseURL: ts.URL, Token: "sekret", RequestsPerSecond: 1000})

	summary := client.Push(context.Background(), sampleRecords())
	require.Equal(t, PushSummary{Pushed: 2}, summary)

	// The aggregator already has everything on the second push.
	summary = client.Push(context.Background(), sampleRecords())
	require.Equal(t, PushSummary{Skipped: 2}, summary)
}

func TestPushToleratesRejections(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:ingest")
	defer cleanup()

	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	client := NewClient(Config{BaseURL: ts.URL, RequestsPerSecond: 1000})
	summary := client.Push(context.Background(), sampleRecords())
	require.Equal(t, PushSummary{Pushed: 1, Errors: 1}, summary)
}
