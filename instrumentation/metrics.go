package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Common attribute keys. These carry metadata only; actual credential values
// (tokens, codes, secrets) must never appear in metrics or traces.
const (
	AttrEndpoint  = "oauth.endpoint"   // token, authorize, authenticate
	AttrGrantType = "oauth.grant_type" // OAuth grant type
	AttrError     = "oauth.error"      // Error code, empty on success
)

// Metrics holds all metric instruments for the OAuth library
type Metrics struct {
	RequestsTotal   metric.Int64Counter
	RequestDuration metric.Float64Histogram
	TokensIssued    metric.Int64Counter
	CodesIssued     metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error
	m.RequestsTotal, err = meter.Int64Counter(
		"oauth.requests.total",
		metric.WithDescription("Total number of requests per pipeline"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requests.total counter: %w", err)
	}

	m.RequestDuration, err = meter.Float64Histogram(
		"oauth.request.duration",
		metric.WithDescription("Pipeline duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request.duration histogram: %w", err)
	}

	m.TokensIssued, err = meter.Int64Counter(
		"oauth.tokens.issued",
		metric.WithDescription("Number of access tokens issued"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.issued counter: %w", err)
	}

	m.CodesIssued, err = meter.Int64Counter(
		"oauth.codes.issued",
		metric.WithDescription("Number of authorization codes issued"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create codes.issued counter: %w", err)
	}

	return m, nil
}

// RecordRequest records one pipeline invocation. errorCode is empty on
// success.
func (m *Metrics) RecordRequest(ctx context.Context, endpoint, errorCode string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(AttrEndpoint, endpoint),
		attribute.String(AttrError, errorCode),
	)
	m.RequestsTotal.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
}

// RecordTokenIssued records a successful token issuance for a grant type.
func (m *Metrics) RecordTokenIssued(ctx context.Context, grantType string) {
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrGrantType, grantType),
	))
}

// RecordCodeIssued records a successful authorization code issuance.
func (m *Metrics) RecordCodeIssued(ctx context.Context) {
	m.CodesIssued.Add(ctx, 1)
}
