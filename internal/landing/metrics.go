package landing

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJobName = "usageland"

type Metrics struct {
	registry         *prometheus.Registry
	daysTotal        *prometheus.CounterVec
	fetchDuration    prometheus.Histogram
	publishDuration  prometheus.Histogram
	payloadBytes     prometheus.Counter
	lastSuccess      prometheus.Gauge
	runDuration      prometheus.Gauge
	runInvalidRanges prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		daysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usageland_days_total",
			Help: "Days processed by final status.",
		}, []string{"status"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "usageland_fetch_duration_seconds",
			Help:    "Duration of usage API fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "usageland_publish_duration_seconds",
			Help:    "Duration of blob writes.",
			Buckets: prometheus.DefBuckets,
		}),
		payloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usageland_payload_bytes_total",
			Help: "Total payload bytes written to blob storage.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "usageland_last_success_timestamp_seconds",
			Help: "Unix time of the last run that landed every requested day.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "usageland_run_duration_seconds",
			Help: "Wall time of the most recent run.",
		}),
		runInvalidRanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usageland_invalid_ranges_total",
			Help: "Runs rejected because of an invalid date range.",
		}),
	}

	registry.MustRegister(
		m.daysTotal,
		m.fetchDuration,
		m.publishDuration,
		m.payloadBytes,
		m.lastSuccess,
		m.runDuration,
		m.runInvalidRanges,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Push sends the current values to a Prometheus Pushgateway. An empty url
// disables pushing.
func (m *Metrics) Push(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	if err := push.New(url, pushJobName).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
