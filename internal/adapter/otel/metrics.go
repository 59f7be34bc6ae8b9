package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "supportiq"

// Metrics holds all SupportIQ metric instruments.
type Metrics struct {
	CyclesStarted   metric.Int64Counter
	CyclesDegraded  metric.Int64Counter
	Validated       metric.Int64Counter
	Blocked         metric.Int64Counter
	CacheHits       metric.Int64Counter
	GenerationTime  metric.Float64Histogram
	LatencyExceeded metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.CyclesStarted, err = meter.Int64Counter("supportiq.cycles.started",
		metric.WithDescription("Number of generation cycles started"))
	if err != nil {
		return nil, err
	}

	m.CyclesDegraded, err = meter.Int64Counter("supportiq.cycles.degraded",
		metric.WithDescription("Number of cycles that degraded to an empty result"))
	if err != nil {
		return nil, err
	}

	m.Validated, err = meter.Int64Counter("supportiq.recommendations.validated",
		metric.WithDescription("Number of recommendations that passed validation"))
	if err != nil {
		return nil, err
	}

	m.Blocked, err = meter.Int64Counter("supportiq.recommendations.blocked",
		metric.WithDescription("Number of recommendations blocked by validation"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("supportiq.recommendations.cache_hits",
		metric.WithDescription("Number of generation requests served from cache"))
	if err != nil {
		return nil, err
	}

	m.GenerationTime, err = meter.Float64Histogram("supportiq.cycle.generation_seconds",
		metric.WithDescription("Generation cycle duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.LatencyExceeded, err = meter.Int64Counter("supportiq.cycle.latency_exceeded",
		metric.WithDescription("Number of cycles exceeding the latency target"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
