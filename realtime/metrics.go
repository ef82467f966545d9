package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tournament_ws_subscribers",
		Help: "Websocket clients joined to a tenant channel",
	})

	publishedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tournament_events_published_total",
		Help: "Match events published by type",
	}, []string{"type"})

	droppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tournament_ws_messages_dropped_total",
		Help: "Messages skipped because a client's buffer was full",
	})
)
