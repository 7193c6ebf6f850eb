// internal/matchmaking/metrics.go
// Prometheus metrics for the match pipeline

package matchmaking

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
        Name: "match_queue_waiting_entries",
        Help: "Number of WAITING entries in the candidate pool",
    })

    proposalsTotal = promauto.NewCounter(prometheus.CounterOpts{
        Name: "match_proposals_total",
        Help: "Match attempts proposed",
    })

    attemptResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "match_attempt_resolutions_total",
        Help: "Match attempts resolved, by terminal state",
    }, []string{"state"})

    compatibilityScores = promauto.NewHistogram(prometheus.HistogramOpts{
        Name:    "match_compatibility_score",
        Help:    "Distribution of compatibility scores of proposed pairs",
        Buckets: prometheus.LinearBuckets(0, 0.1, 11),
    })

    tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
        Name:    "match_tick_duration_seconds",
        Help:    "Duration of matcher ticks",
        Buckets: prometheus.DefBuckets,
    })

    inflightProposals = promauto.NewGauge(prometheus.GaugeOpts{
        Name: "match_inflight_proposals",
        Help: "Proposals currently being dispatched",
    })

    lockRacesLost = promauto.NewCounter(prometheus.CounterOpts{
        Name: "match_lock_races_lost_total",
        Help: "Pair locks lost to a concurrent shard",
    })
)

// RecordQueueDepth updates the pool depth gauge.
func RecordQueueDepth(waiting int) {
    queueDepth.Set(float64(waiting))
}

// RecordProposal counts a proposed pair and its score.
func RecordProposal(score float64) {
    proposalsTotal.Inc()
    compatibilityScores.Observe(score)
}

// RecordResolution counts a terminal transition.
func RecordResolution(state AttemptState) {
    attemptResolutions.WithLabelValues(string(state)).Inc()
}

// RecordTickDuration observes one matcher tick.
func RecordTickDuration(seconds float64) {
    tickDuration.Observe(seconds)
}

// RecordLockRaceLost counts a lock lost to a concurrent tick.
func RecordLockRaceLost() {
    lockRacesLost.Inc()
}

// TrackInflightProposal brackets a proposal dispatch.
func TrackInflightProposal(delta float64) {
    inflightProposals.Add(delta)
}
