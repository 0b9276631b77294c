// Package metrics provides Prometheus metrics for the conversation loop.
// No session identifiers in labels: branches and collaborators only.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts handled chat turns by reply branch
	// (greeting, off_topic, intent_prompt, provider_prompt, substatus_prompt,
	// clarification, recommendation, apology).
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartshopper_turns_total",
		Help: "Total number of handled chat turns, by reply branch.",
	}, []string{"branch"})

	// CollaboratorErrorsTotal counts degraded external calls by collaborator
	// and error kind (unavailable/malformed).
	CollaboratorErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartshopper_collaborator_errors_total",
		Help: "Total number of collaborator failures that triggered a fallback, by collaborator and kind.",
	}, []string{"collaborator", "kind"})

	// RecommendationsTotal counts delivered recommendations by offer id.
	RecommendationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartshopper_recommendations_total",
		Help: "Total number of delivered recommendations, by offer id.",
	}, []string{"offer_id"})

	// SessionResetsTotal counts session resets (completed decision trees and
	// explicit API resets).
	SessionResetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartshopper_session_resets_total",
		Help: "Total number of session resets, by cause.",
	}, []string{"cause"})
)
