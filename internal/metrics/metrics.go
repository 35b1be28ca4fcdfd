package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the Prometheus collectors for the ingest server. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	rejected       *prometheus.CounterVec
	eventsAppended prometheus.Counter
	samplesStored  prometheus.Counter
}

// EventLogStats is the read side of the event log the recorder watches.
type EventLogStats interface {
	Count() int
	Evicted() uint64
}

// NewRecorder registers all collectors on a private registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensord_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"handler", "method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sensord_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"handler", "method"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensord_requests_rejected_total",
				Help: "Requests rejected before touching the store, by reason.",
			},
			[]string{"handler", "reason"},
		),
		eventsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensord_pothole_events_appended_total",
			Help: "Pothole events accepted into the event log.",
		}),
		samplesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensord_sensor_samples_stored_total",
			Help: "Sensor samples written to the latest-sample register.",
		}),
	}

	reg.MustRegister(
		r.requests, r.duration, r.rejected,
		r.eventsAppended, r.samplesStored,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Instrument wraps an HTTP handler with request count and latency metrics.
func (r *Recorder) Instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	if r == nil {
		return handler
	}
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		handler(wrapped, req)

		r.duration.WithLabelValues(name, req.Method).Observe(time.Since(start).Seconds())
		r.requests.WithLabelValues(name, req.Method, strconv.Itoa(wrapped.status)).Inc()
	}
}

// WatchEventLog exports the log's retained count and eviction total, read at
// scrape time.
func (r *Recorder) WatchEventLog(events EventLogStats) error {
	if r == nil {
		return nil
	}
	evicted := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "sensord_pothole_events_evicted_total",
		Help: "Pothole events dropped from the event log at capacity.",
	}, func() float64 { return float64(events.Evicted()) })
	retained := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sensord_pothole_events_retained",
		Help: "Pothole events currently held in the event log.",
	}, func() float64 { return float64(events.Count()) })

	if err := r.registry.Register(evicted); err != nil {
		return err
	}
	return r.registry.Register(retained)
}

// EventAppended counts one accepted pothole event.
func (r *Recorder) EventAppended() {
	if r == nil {
		return
	}
	r.eventsAppended.Inc()
}

// SampleStored counts one write to the latest-sample register.
func (r *Recorder) SampleStored() {
	if r == nil {
		return
	}
	r.samplesStored.Inc()
}

// Rejected counts a request refused before reaching a store.
func (r *Recorder) Rejected(handler, reason string) {
	if r == nil {
		return
	}
	r.rejected.WithLabelValues(handler, reason).Inc()
}

// statusWriter captures the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}
