package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tournament_match_transitions_total",
		Help: "Applied match state transitions by operation",
	}, []string{"operation"})

	staleWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tournament_match_stale_writes_total",
		Help: "Match state writes rejected by the version check",
	})

	sideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tournament_side_effect_failures_total",
		Help: "Detached side effects that failed by effect name",
	}, []string{"effect"})

	compensationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tournament_leaderboard_compensation_failures_total",
		Help: "Leaderboard changes that could not be undone after a failed state write",
	}, []string{"operation"})
)
