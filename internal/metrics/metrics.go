// Package metrics exposes prometheus collectors for the chat subsystem and
// the sandbox backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "shopchat"

	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds the collectors registered on one registerer. It implements
// the Recorder interfaces of the message, channel, media and orderref packages.
type Metrics struct {
	liveMessages    prometheus.Counter
	duplicates      prometheus.Counter
	pages           *prometheus.CounterVec
	connects        *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	orderLookups    *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		liveMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timeline",
			Name:      "live_messages_total",
			Help:      "Live messages inserted into a timeline",
		}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timeline",
			Name:      "duplicates_dropped_total",
			Help:      "Messages dropped because their id was already held",
		}),
		pages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timeline",
			Name:      "pages_loaded_total",
			Help:      "History page requests",
		}, []string{"status"}),
		connects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "connects_total",
			Help:      "Channel connect attempts",
		}, []string{"status"}),
		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "flushes_total",
			Help:      "Attachment flushes",
		}, []string{"status"}),
		orderLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orderref",
			Name:      "lookups_total",
			Help:      "Order summary lookups by result",
		}, []string{"result"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "route"}),
	}
}

func status(ok bool) string {
	if ok {
		return statusSuccess
	}
	return statusError
}

// LiveReceived implements message.Recorder.
func (m *Metrics) LiveReceived() { m.liveMessages.Inc() }

// DuplicateDropped implements message.Recorder.
func (m *Metrics) DuplicateDropped() { m.duplicates.Inc() }

// PageLoaded implements message.Recorder.
func (m *Metrics) PageLoaded(ok bool) { m.pages.WithLabelValues(status(ok)).Inc() }

// ConnectAttempt implements channel.Recorder.
func (m *Metrics) ConnectAttempt(ok bool) { m.connects.WithLabelValues(status(ok)).Inc() }

// Upload implements media.Recorder.
func (m *Metrics) Upload(ok bool) { m.uploads.WithLabelValues(status(ok)).Inc() }

// OrderLookup implements orderref.Recorder.
func (m *Metrics) OrderLookup(result string) { m.orderLookups.WithLabelValues(result).Inc() }

// RecordRequest records a served HTTP request.
func (m *Metrics) RecordRequest(method, route, statusCode string, durationSec float64) {
	m.requests.WithLabelValues(method, route, statusCode).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(durationSec)
}
