package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chatDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stepflow",
		Subsystem: "ai",
		Name:      "chat_duration_seconds",
		Help:      "Duration of AI chat-completion requests",
	}, []string{"provider", "model"})

	chatFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stepflow",
		Subsystem: "ai",
		Name:      "chat_failures_total",
		Help:      "Number of failed AI chat-completion requests",
	}, []string{"provider", "model"})
)
