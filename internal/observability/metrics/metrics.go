package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for the chat pipeline.
type ChatMetrics struct {
	requestsTotal     *prometheus.CounterVec
	redFlagTotal      *prometheus.CounterVec
	violationsTotal   *prometheus.CounterVec
	stateTotal        *prometheus.CounterVec
	storageErrors     *prometheus.CounterVec
	degradedTotal     *prometheus.CounterVec
	generationLatency *prometheus.HistogramVec
	requestLatency    prometheus.Histogram
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthchat",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total chat requests answered, by risk level",
		}, []string{"risk_level"}),
		redFlagTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthchat",
			Subsystem: "safety",
			Name:      "red_flag_total",
			Help:      "Emergency classifications by category",
		}, []string{"category"}),
		violationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthchat",
			Subsystem: "safety",
			Name:      "policy_violations_total",
			Help:      "Policy violations found in generated answers",
		}, []string{"tag", "blocked"}),
		stateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthchat",
			Subsystem: "chat",
			Name:      "orchestrator_state_total",
			Help:      "Orchestrator state transitions",
		}, []string{"state"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthchat",
			Subsystem: "conversation",
			Name:      "storage_errors_total",
			Help:      "Conversation store failures by operation",
		}, []string{"operation"}),
		degradedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthchat",
			Subsystem: "chat",
			Name:      "degraded_total",
			Help:      "Responses served from the safe template",
		}, []string{"reason"}),
		generationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "healthchat",
			Subsystem: "llm",
			Name:      "generation_latency_seconds",
			Help:      "Latency of structured answer generation",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"provider", "status"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "healthchat",
			Subsystem: "chat",
			Name:      "request_latency_seconds",
			Help:      "End to end latency of chat requests",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.redFlagTotal, m.violationsTotal, m.stateTotal,
		m.storageErrors, m.degradedTotal, m.generationLatency, m.requestLatency)
	return m
}

func (m *ChatMetrics) ObserveRequest(riskLevel string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(riskLevel).Inc()
	m.requestLatency.Observe(seconds)
}

func (m *ChatMetrics) ObserveRedFlags(categories []string) {
	if m == nil {
		return
	}
	for _, c := range categories {
		m.redFlagTotal.WithLabelValues(c).Inc()
	}
}

func (m *ChatMetrics) ObserveViolations(tags []string, blocked bool) {
	if m == nil {
		return
	}
	label := "false"
	if blocked {
		label = "true"
	}
	for _, tag := range tags {
		m.violationsTotal.WithLabelValues(tag, label).Inc()
	}
}

func (m *ChatMetrics) ObserveState(state string) {
	if m == nil {
		return
	}
	m.stateTotal.WithLabelValues(state).Inc()
}

func (m *ChatMetrics) ObserveStorageError(operation string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(operation).Inc()
}

func (m *ChatMetrics) ObserveDegraded(reason string) {
	if m == nil {
		return
	}
	m.degradedTotal.WithLabelValues(reason).Inc()
}

func (m *ChatMetrics) ObserveGeneration(provider string, ok bool, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.generationLatency.WithLabelValues(provider, status).Observe(seconds)
}
