package discovery

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"btctrack/pkg/electrum"
	"btctrack/pkg/log"
	"btctrack/pkg/models"
)

// DefaultConcurrency is the probe worker-pool width. Probing is
// deliberately parallel, unlike query failover, but the width is fixed
// so a large candidate set cannot overwhelm the local network stack or
// remote rate limits.
const DefaultConcurrency = 8

// Prober runs connectivity and latency tests against candidate
// endpoints with bounded parallelism.
type Prober struct {
	Dial        DialFunc
	Concurrency int
}

// ProbeAll tests every candidate and returns one result per candidate,
// in candidate order. A probe that times out is recorded as a failure
// with no latency; retries are the registry's concern, not the
// prober's.
func (p *Prober) ProbeAll(ctx context.Context, candidates []models.Endpoint) []models.ProbeResult {
	width := p.Concurrency
	if width <= 0 {
		width = DefaultConcurrency
	}
	if width > len(candidates) {
		width = len(candidates)
	}

	results := make([]models.ProbeResult, len(candidates))
	jobs := make(chan int)

	var waitGroup sync.WaitGroup
	for worker := 0; worker < width; worker++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for i := range jobs {
				results[i] = p.probe(ctx, candidates[i])
			}
		}()
	}

	for i := range candidates {
		jobs <- i
	}
	close(jobs)
	waitGroup.Wait()

	ok := 0
	for _, r := range results {
		if r.OK {
			ok++
		}
	}
	log.Debug().Int("probed", len(results)).Int("reachable", ok).Msg("Probe pass finished")
	return results
}

// probe performs one health test: connect, negotiate a protocol
// version, then ask for server features. Latency is measured from
// connect start to the version response.
func (p *Prober) probe(ctx context.Context, endpoint models.Endpoint) models.ProbeResult {
	result := models.ProbeResult{Endpoint: endpoint}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	start := time.Now()
	conn, err := p.Dial(ctx, endpoint)
	if err != nil {
		result.Err = err
		return result
	}
	defer func() {
		_ = conn.Close()
	}()

	raw, err := conn.Call(ctx, electrum.MethodVersion, []any{electrum.ClientName, electrum.ProtocolVersion})
	if err != nil {
		result.Err = err
		return result
	}
	result.Latency = time.Since(start)
	result.OK = true
	result.Features = probeFeatures(ctx, conn, endpoint, raw)
	return result
}

// probeFeatures turns the version handshake plus an optional
// server.features reply into the recognized capability flags used by
// scoring. A failed features call only costs flags, not the probe.
func probeFeatures(ctx context.Context, conn Conn, endpoint models.Endpoint, versionRaw json.RawMessage) []string {
	var flags []string
	if endpoint.TLS {
		flags = append(flags, "tls")
	}
	if _, protocol, err := electrum.ParseVersion(versionRaw); err == nil && protocol != "" {
		flags = append(flags, "protocol/"+protocol)
	}

	raw, err := conn.Call(ctx, electrum.MethodFeatures, nil)
	if err != nil {
		return flags
	}
	var features struct {
		GenesisHash string `json:"genesis_hash"`
		Pruning     *int64 `json:"pruning"`
	}
	if err := json.Unmarshal(raw, &features); err != nil {
		return flags
	}
	if features.GenesisHash != "" {
		flags = append(flags, "genesis")
	}
	if features.Pruning != nil {
		flags = append(flags, "pruning")
	}
	return flags
}
