package discovery

import (
	"context"

	"btctrack/pkg/electrum"
	"btctrack/pkg/log"
	"btctrack/pkg/models"
)

const (
	// DefaultMaxServers caps how many distinct endpoints one crawl may
	// collect.
	DefaultMaxServers = 50

	// visitMultiplier bounds total connection attempts relative to
	// MaxServers, so worst-case work stays O(MaxServers) regardless of
	// peer fan-out.
	visitMultiplier = 3
)

// Crawler expands the known server set by walking peer-gossip responses
// breadth-first. Cycles between mutually-referencing peers are broken
// by an explicit visited set keyed on (host, port); the crawl never
// recurses.
type Crawler struct {
	Dial       DialFunc
	MaxServers int
}

// Discover crawls outward from seeds and returns the candidate
// endpoints found, seeds included. A seed or peer that fails to
// connect, or that returns a malformed peer list, is marked
// visited-and-failed and dropped from the result, but never aborts the
// crawl.
func (c *Crawler) Discover(ctx context.Context, seeds []models.Endpoint) []models.Endpoint {
	maxServers := c.MaxServers
	if maxServers <= 0 {
		maxServers = DefaultMaxServers
	}
	visitCeiling := visitMultiplier * maxServers

	visited := make(map[string]bool)
	failed := make(map[string]bool)
	collected := make(map[string]models.Endpoint)
	var order []string

	var frontier []models.Endpoint
	for _, seed := range seeds {
		key := seed.Key()
		if _, ok := collected[key]; ok || !seed.Valid() {
			continue
		}
		if len(collected) >= maxServers {
			break
		}
		collected[key] = seed
		order = append(order, key)
		frontier = append(frontier, seed)
	}

	visits := 0
	for len(frontier) > 0 && visits < visitCeiling {
		if ctx.Err() != nil {
			break
		}

		endpoint := frontier[0]
		frontier = frontier[1:]
		key := endpoint.Key()
		if visited[key] {
			continue
		}
		visited[key] = true
		visits++

		peers, err := c.queryPeers(ctx, endpoint)
		if err != nil {
			log.Debug().Str("server", endpoint.String()).Err(err).Msg("Peer query failed")
			failed[key] = true
			delete(collected, key)
			continue
		}

		for _, peer := range peers {
			for _, candidate := range peer.Endpoints() {
				candidateKey := candidate.Key()
				if failed[candidateKey] || visited[candidateKey] {
					continue
				}
				if _, ok := collected[candidateKey]; ok {
					continue
				}
				if len(collected) >= maxServers {
					break
				}
				collected[candidateKey] = candidate
				order = append(order, candidateKey)
				frontier = append(frontier, candidate)
			}
		}
	}

	result := make([]models.Endpoint, 0, len(collected))
	for _, key := range order {
		if endpoint, ok := collected[key]; ok {
			result = append(result, endpoint)
		}
	}

	log.Debug().
		Int("seeds", len(seeds)).
		Int("visited", visits).
		Int("found", len(result)).
		Msg("Discovery crawl finished")
	return result
}

func (c *Crawler) queryPeers(ctx context.Context, endpoint models.Endpoint) ([]electrum.PeerRecord, error) {
	conn, err := c.Dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = conn.Close()
	}()

	raw, err := conn.Call(ctx, electrum.MethodPeersSubscribe, nil)
	if err != nil {
		return nil, err
	}
	return electrum.ParsePeers(raw)
}
