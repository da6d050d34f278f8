package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outlinesGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slides_outlines_generated_total",
			Help: "Total number of outline generations by source.",
		},
		[]string{"source"},
	)

	buildsAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slides_builds_accepted_total",
		Help: "Total number of accepted deck build requests.",
	})

	downloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slides_downloads_total",
		Help: "Total number of served deck downloads.",
	})

	editsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slides_edits_applied_total",
			Help: "Total number of applied slide edits by mode.",
		},
		[]string{"mode"},
	)

	tokenPairsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slides_token_pairs_issued_total",
		Help: "Total number of issued session token pairs.",
	})
)
