package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mealvoice_active_voice_sessions",
		Help: "Connected speech engines",
	})

	EngineRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mealvoice_engine_restarts_total",
		Help: "Speech engine restarts issued by the capture controller",
	}, []string{"reason"})

	CaptureFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mealvoice_capture_failures_total",
		Help: "Listening sessions that ended with an error",
	}, []string{"reason"})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mealvoice_commands_total",
		Help: "Commands dispatched, by intent and outcome",
	}, []string{"intent", "status"})

	DispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mealvoice_dispatch_latency_seconds",
		Help:    "Time spent executing one command",
		Buckets: prometheus.DefBuckets,
	})

	ScheduleDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mealvoice_schedule_decisions_total",
		Help: "Delivery scheduling decisions",
	}, []string{"result"})

	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mealvoice_backend_requests_total",
		Help: "Calls to the meal-planning backend",
	}, []string{"op", "status"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mealvoice_circuit_breaker_state",
		Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
	}, []string{"name"})
)
