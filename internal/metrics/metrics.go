package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the translation service.
type Metrics struct {
	// Audio streaming metrics
	PayloadsSent     prometheus.Counter
	PayloadBytesSent prometheus.Counter

	// Transcription result metrics
	ResultsReceived *prometheus.CounterVec
	SessionRestarts prometheus.Counter

	// Finalize pipeline metrics
	FinalizeSubmissions prometheus.Counter
	FinalizeCompletions prometheus.Counter
	FinalizeQueueDepth  prometheus.Gauge
	TranslationFailures prometheus.Counter

	// Delivery metrics
	DeliverySuccesses prometheus.Counter
	DeliveryFailures  prometheus.Counter
	DeliveryDurations prometheus.Histogram
}

// New creates all metrics registered against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PayloadsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "translive_payloads_sent_total",
			Help: "Total number of audio payloads sent to the engine",
		}),
		PayloadBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "translive_payload_bytes_sent_total",
			Help: "Total audio bytes sent to the engine, replays included",
		}),
		ResultsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "translive_results_received_total",
			Help: "Total number of transcription results received by kind",
		}, []string{"kind"}),
		SessionRestarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "translive_session_restarts_total",
			Help: "Total number of forced engine reconnections",
		}),
		FinalizeSubmissions: factory.NewCounter(prometheus.CounterOpts{
			Name: "translive_finalize_submitted_total",
			Help: "Total number of final transcripts submitted for translation",
		}),
		FinalizeCompletions: factory.NewCounter(prometheus.CounterOpts{
			Name: "translive_finalize_completed_total",
			Help: "Total number of finalize jobs completed",
		}),
		FinalizeQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "translive_finalize_queue_depth",
			Help: "Number of finalize jobs queued or in flight",
		}),
		TranslationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "translive_translation_failures_total",
			Help: "Total number of failed translation calls",
		}),
		DeliverySuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "translive_delivery_successes_total",
			Help: "Total number of records delivered downstream",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "translive_delivery_failures_total",
			Help: "Total number of failed delivery attempts",
		}),
		DeliveryDurations: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "translive_delivery_duration_seconds",
			Help:    "Delivery request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RegisterQueueDepth exposes the capture queue depth as a live gauge.
func RegisterQueueDepth(reg prometheus.Registerer, depth func() int) prometheus.GaugeFunc {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "translive_frame_queue_depth",
		Help: "Number of captured audio frames waiting to be sent",
	}, func() float64 { return float64(depth()) })
	reg.MustRegister(g)
	return g
}

// PayloadSent records one outbound audio payload.
func (m *Metrics) PayloadSent(bytes int) {
	m.PayloadsSent.Inc()
	m.PayloadBytesSent.Add(float64(bytes))
}

// ResultReceived records one transcription result.
func (m *Metrics) ResultReceived(isFinal bool) {
	if isFinal {
		m.ResultsReceived.WithLabelValues("final").Inc()
	} else {
		m.ResultsReceived.WithLabelValues("interim").Inc()
	}
}

// SessionRestarted records one forced reconnection.
func (m *Metrics) SessionRestarted() {
	m.SessionRestarts.Inc()
}

// FinalizeSubmitted records one final transcript entering the pipeline.
func (m *Metrics) FinalizeSubmitted() {
	m.FinalizeSubmissions.Inc()
	m.FinalizeQueueDepth.Inc()
}

// FinalizeDone records one finalize job finishing.
func (m *Metrics) FinalizeDone() {
	m.FinalizeCompletions.Inc()
	m.FinalizeQueueDepth.Dec()
}

// TranslationFailed records one failed translation call.
func (m *Metrics) TranslationFailed() {
	m.TranslationFailures.Inc()
}

// DeliverySucceeded records one successful delivery.
func (m *Metrics) DeliverySucceeded() {
	m.DeliverySuccesses.Inc()
}

// DeliveryFailed records one failed delivery attempt.
func (m *Metrics) DeliveryFailed() {
	m.DeliveryFailures.Inc()
}

// DeliveryObserved records the duration of one delivery attempt.
func (m *Metrics) DeliveryObserved(d time.Duration) {
	m.DeliveryDurations.Observe(d.Seconds())
}
