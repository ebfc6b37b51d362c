package caption

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	captionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photopool_caption_attempts_total",
			Help: "Caption attempts by result (success, failure).",
		},
		[]string{"result"},
	)

	captionFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photopool_caption_failures_total",
		Help: "Photos left without a caption after every attempt failed.",
	})
)
