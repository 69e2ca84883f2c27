package pool

import (
	"math"
	"sort"
	"sync"
	"time"

	"btctrack/pkg/models"
)

// defaultSeeds is the hardcoded minimal seed list. It keeps the
// registry non-empty and is the last fallback tier when both the ranked
// pool and a discovery refresh are exhausted.
var defaultSeeds = []models.Endpoint{
	{Host: "electrum.blockstream.info", Port: 50002, TLS: true},
	{Host: "electrum.blockstream.info", Port: 50001, TLS: false},
	{Host: "electrum.emzy.de", Port: 50002, TLS: true},
	{Host: "fortress.qtornado.com", Port: 443, TLS: true},
	{Host: "electrum.bitaroo.net", Port: 50002, TLS: true},
}

// DefaultSeeds returns a copy of the hardcoded seed endpoints.
func DefaultSeeds() []models.Endpoint {
	seeds := make([]models.Endpoint, len(defaultSeeds))
	copy(seeds, defaultSeeds)
	return seeds
}

type entry struct {
	endpoint models.Endpoint
	tier     models.Tier
	health   models.ServerHealth
	seq      int
}

// Registry is the catalog of known servers and their health. It is the
// only state shared between concurrent probes and queries; every method
// is safe for concurrent use. The seed tier is merged at construction,
// so the registry is never empty.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq int
}

// NewRegistry creates a registry pre-populated with the hardcoded seed
// tier.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]*entry)}
	r.Merge(DefaultSeeds(), models.TierSeed)
	return r
}

// Merge inserts endpoints under the given tier. Endpoints already known
// keep their health metadata untouched; their tier is only ever raised
// (configured > discovered > seed). Merging the same list twice is a
// no-op.
func (r *Registry) Merge(endpoints []models.Endpoint, tier models.Tier) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, endpoint := range endpoints {
		if !endpoint.Valid() {
			continue
		}
		key := endpoint.Key()
		if existing, ok := r.entries[key]; ok {
			if tier > existing.tier {
				existing.tier = tier
			}
			continue
		}
		r.nextSeq++
		r.entries[key] = &entry{endpoint: endpoint, tier: tier, seq: r.nextSeq}
	}
}

// RecordProbe merges one probe outcome into the registry, inserting the
// endpoint as discovered if it is new, and rescores that entry only.
func (r *Registry) RecordProbe(result models.ProbeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := result.Endpoint.Key()
	e, ok := r.entries[key]
	if !ok {
		r.nextSeq++
		e = &entry{endpoint: result.Endpoint, tier: models.TierDiscovered, seq: r.nextSeq}
		r.entries[key] = e
	}

	e.health.OK = result.OK
	e.health.LastTested = time.Now()
	if result.OK {
		e.health.Latency = result.Latency
		e.health.Features = result.Features
		e.health.LastError = ""
	} else if result.Err != nil {
		e.health.LastError = result.Err.Error()
	}
	e.health.Score = Score(e.endpoint, e.health)
}

// rankedEntries snapshots all entries in ranking order: score
// descending, latency ascending, tier priority, then insertion order.
// The order is a pure function of registry state.
func (r *Registry) rankedEntries() []entry {
	r.mu.RLock()
	snapshot := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, *e)
	}
	r.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		a, b := snapshot[i], snapshot[j]
		if a.health.Score != b.health.Score {
			return a.health.Score > b.health.Score
		}
		if al, bl := sortLatency(a.health), sortLatency(b.health); al != bl {
			return al < bl
		}
		if a.tier != b.tier {
			return a.tier > b.tier
		}
		return a.seq < b.seq
	})
	return snapshot
}

// sortLatency treats an endpoint with no successful probe as infinitely
// slow for tie-breaking.
func sortLatency(h models.ServerHealth) time.Duration {
	if h.Latency <= 0 {
		return math.MaxInt64
	}
	return h.Latency
}

// Rank returns every known endpoint, best first. Calling it twice
// without an intervening mutation yields identical output.
func (r *Registry) Rank() []models.Endpoint {
	ranked := r.rankedEntries()
	endpoints := make([]models.Endpoint, len(ranked))
	for i, e := range ranked {
		endpoints[i] = e.endpoint
	}
	return endpoints
}

// attemptOrder returns the failover order for one query: ranked
// endpoints probed within staleAfter first, then untested or stale
// entries in the same relative order. Stale health is low-confidence,
// not disqualifying.
func (r *Registry) attemptOrder(staleAfter time.Duration, now time.Time) []models.Endpoint {
	ranked := r.rankedEntries()
	fresh := make([]models.Endpoint, 0, len(ranked))
	var stale []models.Endpoint
	for _, e := range ranked {
		if e.health.Tested() && now.Sub(e.health.LastTested) <= staleAfter {
			fresh = append(fresh, e.endpoint)
		} else {
			stale = append(stale, e.endpoint)
		}
	}
	return append(fresh, stale...)
}

// Persistable returns the configured and discovered endpoints in rank
// order, truncated to max. Seed entries are never persisted.
func (r *Registry) Persistable(max int) []models.Endpoint {
	var out []models.Endpoint
	for _, e := range r.rankedEntries() {
		if e.tier == models.TierSeed {
			continue
		}
		out = append(out, e.endpoint)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

// Snapshot returns JSON-friendly health snapshots in rank order for
// status reporting.
func (r *Registry) Snapshot() []models.ServerStatus {
	ranked := r.rankedEntries()
	statuses := make([]models.ServerStatus, len(ranked))
	for i, e := range ranked {
		statuses[i] = models.ServerStatus{
			Host:       e.endpoint.Host,
			Port:       e.endpoint.Port,
			TLS:        e.endpoint.TLS,
			Tier:       e.tier.String(),
			Score:      e.health.Score,
			Online:     e.health.OK,
			LatencyMS:  e.health.Latency.Milliseconds(),
			Features:   e.health.Features,
			LastTested: e.health.LastTested,
			LastError:  e.health.LastError,
		}
	}
	return statuses
}

// Len returns the number of known endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
