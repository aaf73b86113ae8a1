// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the KB chat gateway.
//
// # Description
//
// Metrics cover the full lifecycle of a streaming turn:
//   - Turn counters (by transport and outcome)
//   - Latency histograms (time to first chunk, total turn duration)
//   - Active stream gauges per transport
//   - Citation and keepalive counters
//
// # Integration
//
// Exposed via the /metrics endpoint. Use with Prometheus + Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for gateway metrics
const gatewaySubsystem = "gateway"

// GatewayMetrics holds all Prometheus metrics for streaming chat turns.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring turn throughput,
// streaming latency, and upstream behavior. Initialize once at startup via
// InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type GatewayMetrics struct {
	// TurnsTotal counts completed turns by transport and status.
	// Labels: transport (websocket, sse), status (success, error)
	TurnsTotal *prometheus.CounterVec

	// TimeToFirstChunkSeconds measures latency from turn start to the
	// first answer chunk. Labels: transport
	TimeToFirstChunkSeconds *prometheus.HistogramVec

	// TurnDurationSeconds measures total turn duration.
	// Labels: transport, status (success, error)
	TurnDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently streaming turns.
	// Labels: transport
	ActiveStreams *prometheus.GaugeVec

	// ErrorsTotal counts turn errors by transport and type.
	// Labels: transport, error_code (validation, provider_error, etc.)
	ErrorsTotal *prometheus.CounterVec

	// CitationsTotal counts citations delivered to clients.
	// Labels: transport
	CitationsTotal *prometheus.CounterVec

	// KeepAlivesTotal counts keepalive frames sent.
	// Labels: transport
	KeepAlivesTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts clients lost mid-stream.
	// Labels: transport
	ClientDisconnectsTotal *prometheus.CounterVec

	// QueuedTurns tracks turns waiting on a busy session.
	QueuedTurns prometheus.Gauge
}

// DefaultMetrics is the singleton instance of GatewayMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *GatewayMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Call once at application
// startup.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *GatewayMetrics {
	DefaultMetrics = &GatewayMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "turns_total",
				Help:      "Total completed chat turns by transport and status",
			},
			[]string{"transport", "status"},
		),

		TimeToFirstChunkSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "time_to_first_chunk_seconds",
				Help:      "Time from turn start to first answer chunk in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"transport"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Total turn duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"transport", "status"},
		),

		ActiveStreams: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "active_streams",
				Help:      "Number of turns currently streaming",
			},
			[]string{"transport"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "errors_total",
				Help:      "Total turn errors by transport and type",
			},
			[]string{"transport", "error_code"},
		),

		CitationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "citations_total",
				Help:      "Total citations delivered to clients",
			},
			[]string{"transport"},
		),

		KeepAlivesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "keepalives_total",
				Help:      "Total keepalive frames sent",
			},
			[]string{"transport"},
		),

		ClientDisconnectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
			[]string{"transport"},
		),

		QueuedTurns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "queued_turns",
				Help:      "Turns waiting for a busy session to free up",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeProviderError indicates an upstream provider failure.
	ErrorCodeProviderError ErrorCode = "provider_error"

	// ErrorCodeEmptyAnswer indicates a stream with no generated content.
	ErrorCodeEmptyAnswer ErrorCode = "empty_answer"

	// ErrorCodeTimeout indicates the turn exceeded its deadline.
	ErrorCodeTimeout ErrorCode = "timeout"

	// ErrorCodeInternal indicates an internal gateway error.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates the client disconnected.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"

	// ErrorCodeRateLimited indicates a message rejected by rate limiting.
	ErrorCodeRateLimited ErrorCode = "rate_limited"
)

// =============================================================================
// Transport Names
// =============================================================================

// Transport identifies the session transport for metrics labeling.
type Transport string

const (
	// TransportWebSocket is the duplex WebSocket transport.
	TransportWebSocket Transport = "websocket"

	// TransportSSE is the POST + server-sent-events transport.
	TransportSSE Transport = "sse"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordTurn records a completed turn.
func (m *GatewayMetrics) RecordTurn(transport Transport, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.TurnsTotal.WithLabelValues(string(transport), status).Inc()
}

// RecordError records a turn error.
func (m *GatewayMetrics) RecordError(transport Transport, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(transport), string(code)).Inc()
}

// StreamStarted increments the active streams gauge.
func (m *GatewayMetrics) StreamStarted(transport Transport) {
	m.ActiveStreams.WithLabelValues(string(transport)).Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *GatewayMetrics) StreamEnded(transport Transport) {
	m.ActiveStreams.WithLabelValues(string(transport)).Dec()
}

// RecordTimeToFirstChunk records first-chunk latency.
func (m *GatewayMetrics) RecordTimeToFirstChunk(transport Transport, seconds float64) {
	m.TimeToFirstChunkSeconds.WithLabelValues(string(transport)).Observe(seconds)
}

// RecordTurnDuration records total turn duration.
func (m *GatewayMetrics) RecordTurnDuration(transport Transport, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.TurnDurationSeconds.WithLabelValues(string(transport), status).Observe(seconds)
}

// RecordCitations adds delivered citations to the counter.
func (m *GatewayMetrics) RecordCitations(transport Transport, count int) {
	if count <= 0 {
		return
	}
	m.CitationsTotal.WithLabelValues(string(transport)).Add(float64(count))
}

// RecordKeepAlive increments the keepalive counter.
func (m *GatewayMetrics) RecordKeepAlive(transport Transport) {
	m.KeepAlivesTotal.WithLabelValues(string(transport)).Inc()
}

// RecordClientDisconnect increments the client disconnect counter.
func (m *GatewayMetrics) RecordClientDisconnect(transport Transport) {
	m.ClientDisconnectsTotal.WithLabelValues(string(transport)).Inc()
}

// TurnQueued marks a turn as waiting on its session lock.
func (m *GatewayMetrics) TurnQueued() {
	m.QueuedTurns.Inc()
}

// TurnDequeued marks a queued turn as admitted.
func (m *GatewayMetrics) TurnDequeued() {
	m.QueuedTurns.Dec()
}
