package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shaiso/Vertex/internal/domain"
)

// Метрики пайплайна. Регистрируются в default registry и отдаются
// через promhttp на /metrics.
var (
	flowsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vertex_flows_started_total",
		Help: "Number of flows that entered the running state.",
	}, []string{"flow_type"})

	flowsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vertex_flows_finished_total",
		Help: "Number of flows that reached a terminal state.",
	}, []string{"flow_type", "status"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vertex_stage_duration_seconds",
		Help:    "Duration of a single pipeline stage.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage", "status"})

	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vertex_ws_connections",
		Help: "Number of currently open WebSocket connections.",
	})

	flowsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vertex_flows_reaped_total",
		Help: "Number of stale running flows failed by the janitor.",
	})
)

// IncFlowStarted учитывает переход flow в running.
func IncFlowStarted(flowType domain.FlowType) {
	flowsStarted.WithLabelValues(string(flowType)).Inc()
}

// IncFlowFinished учитывает терминальный переход flow.
func IncFlowFinished(flowType domain.FlowType, status domain.FlowStatus) {
	flowsFinished.WithLabelValues(string(flowType), string(status)).Inc()
}

// ObserveStageDuration записывает длительность стадии.
func ObserveStageDuration(stage domain.StageName, status string, d time.Duration) {
	stageDuration.WithLabelValues(string(stage), status).Observe(d.Seconds())
}

// IncWSConnections учитывает открытие WebSocket-соединения.
func IncWSConnections() {
	wsConnections.Inc()
}

// DecWSConnections учитывает закрытие WebSocket-соединения.
func DecWSConnections() {
	wsConnections.Dec()
}

// IncFlowsReaped учитывает flow, зафейленный janitor'ом.
func IncFlowsReaped() {
	flowsReaped.Inc()
}
