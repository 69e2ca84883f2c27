package pool

import (
	"math"
	"time"

	"btctrack/pkg/models"
)

// Scoring weights. The 50/30/10/10 split is a heuristic; the weights
// are named so they can be tuned in one place.
const (
	weightLatency     = 0.5
	weightReliability = 0.3
	weightTLS         = 0.1
	weightFeatures    = 0.1

	// latencyCeiling is the round-trip time at which the latency
	// component reaches zero.
	latencyCeiling = 1 * time.Second

	// featureTarget is the recognized-flag count that earns the full
	// feature component.
	featureTarget = 4
)

// Score converts an endpoint's latest probe-derived health into a
// 0-100 ranking value. An endpoint with no successful probe scores
// zero on the latency and reliability components, so it can never
// exceed the TLS+feature ceiling of 20.
func Score(endpoint models.Endpoint, health models.ServerHealth) float64 {
	var latencyScore float64
	if health.OK && health.Latency > 0 && health.Latency < latencyCeiling {
		latencyScore = 100 * (1 - float64(health.Latency)/float64(latencyCeiling))
	}

	var reliabilityScore float64
	if health.OK {
		reliabilityScore = 100
	}

	var tlsScore float64
	if endpoint.TLS {
		tlsScore = 100
	}

	featureScore := math.Min(100, float64(len(health.Features))/featureTarget*100)

	score := weightLatency*latencyScore +
		weightReliability*reliabilityScore +
		weightTLS*tlsScore +
		weightFeatures*featureScore
	return math.Max(0, math.Min(100, score))
}
