package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics records processing runs. It satisfies ports.ProcessingObserver.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	queueDepth      prometheus.Gauge
	dispatchTotal   *prometheus.CounterVec
	ocrPolls        *prometheus.HistogramVec
	recoveryTotal   *prometheus.CounterVec
}

// NewWorkerMetrics registers on registry; a nil registry gets a fresh one.
func NewWorkerMetrics(service string, registry *prometheus.Registry) *WorkerMetrics {
	if registry == nil {
		registry = NewRegistry()
	}

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total processed documents by outcome.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90, 120},
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of in-flight document processing runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between dispatch and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_depth",
			Help:      "Jobs waiting for a free worker.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	dispatchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "dispatch_total",
			Help:      "Dispatch attempts by result.",
		},
		[]string{"service", "result"},
	)
	ocrPolls := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ocr",
			Name:      "poll_attempts",
			Help:      "Poll attempts per OCR operation by outcome.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 30},
		},
		[]string{"service", "outcome"},
	)
	recoveryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "documents_total",
			Help:      "Documents touched by the recovery sweep by action.",
		},
		[]string{"service", "action"},
	)

	registry.MustRegister(
		processTotal,
		processDuration,
		processInFlight,
		queueLag,
		queueDepth,
		dispatchTotal,
		ocrPolls,
		recoveryTotal,
	)

	return &WorkerMetrics{
		registry:        registry,
		service:         service,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		queueDepth:      queueDepth,
		dispatchTotal:   dispatchTotal,
		ocrPolls:        ocrPolls,
		recoveryTotal:   recoveryTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return Handler(m.registry)
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(duration time.Duration, outcome string) {
	m.processInFlight.Dec()
	if outcome == "" {
		outcome = "unknown"
	}
	m.processTotal.WithLabelValues(m.service, outcome).Inc()
	m.processDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveOCRPolls(attempts int, outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.ocrPolls.WithLabelValues(m.service, outcome).Observe(float64(attempts))
}

func (m *WorkerMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

// ObserveDispatch counts accepted, rejected and duplicate dispatches.
func (m *WorkerMetrics) ObserveDispatch(result string) {
	m.dispatchTotal.WithLabelValues(m.service, result).Inc()
}

func (m *WorkerMetrics) ObserveRecovery(redispatched, abandoned int) {
	if redispatched > 0 {
		m.recoveryTotal.WithLabelValues(m.service, "redispatched").Add(float64(redispatched))
	}
	if abandoned > 0 {
		m.recoveryTotal.WithLabelValues(m.service, "abandoned").Add(float64(abandoned))
	}
}
