package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveRooms tracks rooms currently held by the room store.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizchain",
		Name:      "active_rooms",
		Help:      "Number of rooms currently live in the store.",
	})

	// ConnectedUsers tracks websocket connections with a registered identity.
	ConnectedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizchain",
		Name:      "connected_users",
		Help:      "Number of currently connected users.",
	})

	// MatchesCompleted counts matches that reached the end-of-match rollup.
	MatchesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quizchain",
		Name:      "matches_completed_total",
		Help:      "Total matches that ran to completion.",
	})

	// QuestionFetchFailures counts start attempts aborted by the provider.
	QuestionFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quizchain",
		Name:      "question_fetch_failures_total",
		Help:      "Total question fetches that failed and reverted a start.",
	})
)
