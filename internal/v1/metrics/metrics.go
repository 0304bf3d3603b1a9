package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the tabletop game room service.
//
// Naming convention: namespace_subsystem_name
// - namespace: apigame (application-level grouping)
// - subsystem: websocket, room, store (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, participants)
// - Counter: Cumulative events (messages processed, errors)
// - Histogram: Latency distributions (processing time)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "apigame",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "apigame",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants tracks the number of connected players in each room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "apigame",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of connected players in each room",
	}, []string{"room_id"})

	// WebsocketEvents tracks the total number of WebSocket events processed.
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apigame",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// MessageProcessingDuration tracks the time spent processing WebSocket messages.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "apigame",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// ReconnectGraceOutcomes tracks how pending reconnect-grace windows resolve.
	ReconnectGraceOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apigame",
		Subsystem: "presence",
		Name:      "reconnect_grace_outcomes_total",
		Help:      "Outcomes of the 30s reconnect grace window (reconnected, expired)",
	}, []string{"outcome"})

	// PromptRollDuration tracks the time from a prompt roll request to its
	// result broadcast, including the 500ms follow-up delay.
	PromptRollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "apigame",
		Subsystem: "prompt",
		Name:      "roll_duration_seconds",
		Help:      "Time from a roll request to its broadcast result",
		Buckets:   []float64{.05, .1, .25, .5, .75, 1, 1.5, 2},
	})

	// CircuitBreakerState tracks the current state of the document-store
	// circuit breaker. 0: Closed, 1: Open, 2: Half-Open.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "apigame",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks the total number of requests rejected by the circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apigame",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks the total number of requests that exceeded the rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apigame",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks the total number of requests checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apigame",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// StoreOperationsTotal tracks the total number of document-store operations.
	StoreOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apigame",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Total number of document-store operations",
	}, []string{"operation", "status"})

	// StoreOperationDuration tracks the duration of document-store operations.
	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "apigame",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Duration of document-store operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
