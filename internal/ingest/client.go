// Package ingest pushes persisted course records to a central ingest
// endpoint, for deployments where this service feeds an institutional
// aggregator rather than serving reads itself.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"resultsync-backend/lib/telemetry"

	"resultsync-backend/internal/records"
)

var tracer = otel.Tracer("resultsync.ingest")

type Config struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
	// RequestsPerSecond throttles pushes; the aggregator is shared
	// infrastructure. Zero means 2 rps.
	RequestsPerSecond float64 `json:"requests_per_second"`
}

type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

func NewClient(cfg Config) *Client {
	httpClient := resty.New()
	httpClient.SetTimeout(time.Minute)
	httpClient.SetBaseURL(cfg.BaseURL)
	if cfg.Token != "" {
		httpClient.SetHeader("Authorization", "Bearer "+cfg.Token)
	}
	telemetry.InstrumentResty(httpClient, "resultsync.ingest")

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	return &Client{http: httpClient, limiter: limiter}
}

// PushSummary reports how a push went. Records the aggregator already
// has answer 409 and count as skipped, mirroring local persistence.
type PushSummary struct {
	Pushed  int
	Skipped int
	Errors  int
}

// Push uploads records one at a time. Individual failures are counted
// and logged but do not abort the batch.
func (c *Client) Push(ctx context.Context, recs []records.Record) PushSummary {
	ctx, span := tracer.Start(ctx, "ingest.Push")
	defer span.End()

	var summary PushSummary
	for _, rec := range recs {
		res, err := c.http.R().
			SetContext(ctx).
			SetBody(rec).
			Post("/v1/records")
		if err != nil {
			summary.Errors++
			slog.WarnContext(ctx, "failed to push record",
				"student", rec.Student, "code", rec.Code, "err", err)
			continue
		}
		switch {
		case res.StatusCode() == 409:
			summary.Skipped++
		case res.IsSuccess():
			summary.Pushed++
		default:
			summary.Errors++
			slog.WarnContext(ctx, "ingest endpoint rejected record",
				"student", rec.Student,
				"code", rec.Code,
				"status", res.StatusCode())
		}
	}

	span.SetAttributes(
		attribute.Int("ingest.pushed", summary.Pushed),
		attribute.Int("ingest.skipped", summary.Skipped),
		attribute.Int("ingest.errors", summary.Errors),
	)
	return summary
}

// PushStudent loads a student's records from the store and pushes them.
func (c *Client) PushStudent(ctx context.Context, store records.Store, student string) (PushSummary, error) {
	recs, err := store.List(ctx, student)
	if err != nil {
		return PushSummary{}, fmt.Errorf("load records for %s: %w", student, err)
	}
	return c.Push(ctx, recs), nil
}
