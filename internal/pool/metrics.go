package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photopool_ingestions_total",
			Help: "Photo submissions by outcome (captioned, degraded, rejected, failed).",
		},
		[]string{"outcome"},
	)

	drawsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photopool_draws_total",
			Help: "Draw requests by outcome (served, exhausted, error).",
		},
		[]string{"outcome"},
	)

	resetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photopool_resets_total",
		Help: "Operator resets of the used set.",
	})

	drawRacesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photopool_draw_races_total",
		Help: "Draws that lost a mark-used race and had to reselect.",
	})
)
