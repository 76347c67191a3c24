package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the server updates around
// build and verify operations.
type Metrics struct {
	InscriptionsBuilt    prometheus.Counter
	InscriptionMineIters prometheus.Histogram
	BlocksVerified       *prometheus.CounterVec
	VerifyDuration       prometheus.Histogram
}

// NewMetrics registers this server's collectors against reg and returns
// the handles used to update them. A nil reg uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Metrics{
		InscriptionsBuilt: factory.NewCounter(prometheus.CounterOpts{
			Name: "da_inscriptions_built_total",
			Help: "Total number of commit/reveal inscription pairs built.",
		}),
		// The proof-of-work prefix is two zero bytes, so a well-formed
		// mining loop is expected to take on the order of 2^16 nonce
		// attempts; the histogram buckets bracket that expectation.
		InscriptionMineIters: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "da_inscription_mine_iterations",
			Help:    "Nonce iterations spent mining a reveal transaction's proof of work.",
			Buckets: prometheus.ExponentialBuckets(1<<10, 2, 10),
		}),
		BlocksVerified: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "da_blocks_verified_total",
			Help: "Total number of blocks run through VerifyBlock, labeled by result.",
		}, []string{"result"}),
		VerifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "da_verify_duration_seconds",
			Help:    "Time spent verifying a single block's relevant transaction list.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
