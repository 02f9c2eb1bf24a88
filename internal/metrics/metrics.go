// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingest outcomes.
const (
	OutcomeStored  = "stored"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

// Publish outcomes.
const (
	PublishDelivered = "delivered"
	PublishFailed    = "failed"
	PublishDropped   = "dropped"
)

var (
	IngestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "powermeter_ingest_total",
		Help: "Measurements received, by source (webhook, mqtt) and outcome.",
	}, []string{"source", "outcome"})

	PublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "powermeter_publish_total",
		Help: "Kafka publish attempts by outcome.",
	}, []string{"outcome"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "powermeter_http_request_duration_seconds",
		Help:    "HTTP request latency by method and status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "code"})

	registerOnce sync.Once
)

func init() {
	register()
}

// register adds every collector to the default registry. Safe to call more than once.
func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(IngestTotal, PublishTotal, HTTPRequestDuration)
	})
}

// ObserveRequest records the duration of one HTTP request.
func ObserveRequest(method string, status int, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
