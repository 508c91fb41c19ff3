package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	SynthesisRequestsTotal   metric.Int64Counter
	SynthesisFailuresTotal   metric.Int64Counter
	SynthesisDurationSeconds metric.Float64Histogram
	EnrichmentRequestsTotal  metric.Int64Counter
	RouteSavesTotal          metric.Int64Counter
	FeedCacheInvalidations   metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metric instruments once, using the
// meter from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("urbanito")
		var err error
		m := &AppMetrics{}

		m.SynthesisRequestsTotal, err = meter.Int64Counter(
			"synthesis_requests_total",
			metric.WithDescription("Total number of tour synthesis requests"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create synthesis_requests_total: %v", err)
		}

		m.SynthesisFailuresTotal, err = meter.Int64Counter(
			"synthesis_failures_total",
			metric.WithDescription("Total number of failed tour synthesis requests"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create synthesis_failures_total: %v", err)
		}

		m.SynthesisDurationSeconds, err = meter.Float64Histogram(
			"synthesis_duration_seconds",
			metric.WithDescription("Duration of tour synthesis requests in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create synthesis_duration_seconds: %v", err)
		}

		m.EnrichmentRequestsTotal, err = meter.Int64Counter(
			"enrichment_requests_total",
			metric.WithDescription("Total number of POI enrichment requests"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create enrichment_requests_total: %v", err)
		}

		m.RouteSavesTotal, err = meter.Int64Counter(
			"route_saves_total",
			metric.WithDescription("Total number of persisted routes"),
			metric.WithUnit("{route}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create route_saves_total: %v", err)
		}

		m.FeedCacheInvalidations, err = meter.Int64Counter(
			"feed_cache_invalidations_total",
			metric.WithDescription("Total number of discovery feed cache busts"),
			metric.WithUnit("{invalidation}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create feed_cache_invalidations_total: %v", err)
		}

		appMetrics = m
	})
}

// Get returns the globally initialized AppMetrics instance. InitAppMetrics
// must have been called at startup.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}
