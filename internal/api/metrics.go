package api

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const namespace = "specter_api"

// APIMetrics defines metrics operations needed by the HTTP surface.
type APIMetrics interface {
	IncRequestsTotal(ctx context.Context, method, path string, status int)
	ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration)
	IncSearchRequestsTotal(ctx context.Context)
	IncSearchRequestErrors(ctx context.Context, reason string)
	IncDownloadsTotal(ctx context.Context, status int)
}

type apiMetrics struct {
	requestsTotal       metric.Int64Counter
	requestDuration     metric.Float64Histogram
	searchRequestsTotal metric.Int64Counter
	searchRequestErrors metric.Int64Counter
	downloadsTotal      metric.Int64Counter
}

// NewAPIMetrics creates the HTTP instruments on mp.
func NewAPIMetrics(mp metric.MeterProvider) (*apiMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(apiMetrics)
	var err error

	if m.requestsTotal, err = meter.Int64Counter(
		"requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.requestDuration, err = meter.Float64Histogram(
		"request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, err
	}

	if m.searchRequestsTotal, err = meter.Int64Counter(
		"search_requests_total",
		metric.WithDescription("Total number of search requests"),
	); err != nil {
		return nil, err
	}

	if m.searchRequestErrors, err = meter.Int64Counter(
		"search_request_errors_total",
		metric.WithDescription("Total number of search requests refused before streaming"),
	); err != nil {
		return nil, err
	}

	if m.downloadsTotal, err = meter.Int64Counter(
		"downloads_total",
		metric.WithDescription("Total number of artifact download attempts"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *apiMetrics) IncRequestsTotal(ctx context.Context, method, path string, status int) {
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	))
}

func (m *apiMetrics) ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration) {
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
	))
}

func (m *apiMetrics) IncSearchRequestsTotal(ctx context.Context) {
	m.searchRequestsTotal.Add(ctx, 1)
}

func (m *apiMetrics) IncSearchRequestErrors(ctx context.Context, reason string) {
	m.searchRequestErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

func (m *apiMetrics) IncDownloadsTotal(ctx context.Context, status int) {
	m.downloadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Int("status", status)))
}
