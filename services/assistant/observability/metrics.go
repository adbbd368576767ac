// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the assistant.
//
// # Description
//
// Metrics cover the conversational turn lifecycle:
//   - Turn counters by intent and outcome
//   - Turn duration histograms by intent
//   - Active WebSocket connection gauge
//   - Inbound frame counters by type
//   - Classifier fallback counter
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. All helper methods are
// nil-safe so callers never have to check whether metrics were enabled.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "quay"

// Subsystem for assistant metrics
const assistantSubsystem = "assistant"

// AssistantMetrics holds all Prometheus metrics for the assistant service.
//
// Initialize once at startup via InitMetrics(). Registering twice panics,
// which is the Prometheus default and intentional.
type AssistantMetrics struct {
	// TurnsTotal counts processed turns by intent and outcome.
	// Labels: intent, status (success, error)
	TurnsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures end-to-end turn latency.
	// Labels: intent
	TurnDurationSeconds *prometheus.HistogramVec

	// ActiveConnections tracks currently open WebSocket connections.
	ActiveConnections prometheus.Gauge

	// FramesTotal counts inbound frames by type.
	// Labels: frame_type
	FramesTotal *prometheus.CounterVec

	// ClassifierFallbacksTotal counts turns classified by the heuristic
	// cascade instead of the provider.
	ClassifierFallbacksTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance, nil until InitMetrics runs.
var DefaultMetrics *AssistantMetrics

// InitMetrics initializes and registers the default metrics instance.
//
// # Outputs
//
//   - *AssistantMetrics: the initialized instance, also stored in
//     DefaultMetrics.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *AssistantMetrics {
	DefaultMetrics = &AssistantMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "turns_total",
				Help:      "Total processed conversational turns by intent and status",
			},
			[]string{"intent", "status"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end turn processing latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"intent"},
		),

		ActiveConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "active_connections",
				Help:      "Number of currently open WebSocket connections",
			},
		),

		FramesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "frames_total",
				Help:      "Total inbound WebSocket frames by type",
			},
			[]string{"frame_type"},
		),

		ClassifierFallbacksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "classifier_fallbacks_total",
				Help:      "Turns classified by the heuristic cascade after a provider failure",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordTurn records a completed turn.
//
// # Inputs
//
//   - intent: the classified intent, may be empty for validation failures.
//   - success: whether the turn produced a healthy result.
//   - seconds: end-to-end processing time.
func (m *AssistantMetrics) RecordTurn(intent string, success bool, seconds float64) {
	if m == nil {
		return
	}
	if intent == "" {
		intent = "none"
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.TurnsTotal.WithLabelValues(intent, status).Inc()
	m.TurnDurationSeconds.WithLabelValues(intent).Observe(seconds)
}

// ConnectionOpened increments the active connection gauge.
func (m *AssistantMetrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (m *AssistantMetrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

// RecordFrame counts one inbound frame.
func (m *AssistantMetrics) RecordFrame(frameType string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(frameType).Inc()
}

// RecordClassifierFallback counts a heuristic-classified turn.
func (m *AssistantMetrics) RecordClassifierFallback() {
	if m == nil {
		return
	}
	m.ClassifierFallbacksTotal.Inc()
}
