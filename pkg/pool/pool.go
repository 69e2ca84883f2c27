package pool

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"btctrack/pkg/discovery"
	"btctrack/pkg/log"
	"btctrack/pkg/models"
)

const (
	// DefaultStaleAfter is how long a probe result stays trusted for
	// failover ordering.
	DefaultStaleAfter = 10 * time.Minute

	// DefaultRefreshInterval paces the background discovery loop.
	DefaultRefreshInterval = 5 * time.Minute

	// refreshBudget bounds one background discovery+probe cycle.
	refreshBudget = 2 * time.Minute
)

// Config configures a Pool.
type Config struct {
	// Dial opens transport connections. Required.
	Dial discovery.DialFunc

	// Configured is the user-persisted server list.
	Configured []models.Endpoint

	// Seeds overrides the hardcoded fallback seed list. Mostly for
	// tests; defaults to DefaultSeeds().
	Seeds []models.Endpoint

	// DiscoveryEnabled allows RunQuery to refresh the pool via peer
	// discovery when the ranked tier is exhausted.
	DiscoveryEnabled bool

	// MaxServers caps one discovery crawl.
	MaxServers int

	// ProbeConcurrency is the probe worker-pool width.
	ProbeConcurrency int

	// StaleAfter is the probe-staleness threshold for failover
	// ordering.
	StaleAfter time.Duration

	// RefreshInterval paces the background refresh loop started by
	// Start.
	RefreshInterval time.Duration

	// OnProbe, when set, observes every probe outcome merged during a
	// refresh. Used to persist probe history.
	OnProbe func(models.ProbeResult)
}

// Pool owns the server registry and sequences failover across it. The
// failover loop is deliberately sequential, trying one server at a
// time; only health probing fans out in parallel.
type Pool struct {
	registry *Registry
	crawler  *discovery.Crawler
	prober   *discovery.Prober
	dial     discovery.DialFunc
	cfg      Config

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a pool seeded with the hardcoded tier plus the configured
// endpoints.
func New(cfg Config) *Pool {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if len(cfg.Seeds) == 0 {
		cfg.Seeds = DefaultSeeds()
	}

	registry := NewRegistry()
	registry.Merge(cfg.Configured, models.TierConfigured)

	return &Pool{
		registry: registry,
		crawler:  &discovery.Crawler{Dial: cfg.Dial, MaxServers: cfg.MaxServers},
		prober:   &discovery.Prober{Dial: cfg.Dial, Concurrency: cfg.ProbeConcurrency},
		dial:     cfg.Dial,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// Registry exposes the pool's server registry for status reporting and
// persistence.
func (p *Pool) Registry() *Registry { return p.registry }

// RunQuery runs one request against the pool with three-tier failover:
// the ranked pool, a discovery-refreshed pool, then the hardcoded
// seeds. ctx carries the cumulative deadline across all tiers; once it
// expires mid-fallback the query aborts with *DeadlineExceededError
// instead of starting another tier.
func (p *Pool) RunQuery(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var attempts []AttemptError

	// Tier 1: current ranked pool, fresh probes first.
	order := p.registry.attemptOrder(p.cfg.StaleAfter, time.Now())
	if result, ok := p.tryEach(ctx, order, method, params, &attempts); ok {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, &DeadlineExceededError{Attempts: attempts}
	}

	// Tier 2: refresh via peer discovery, then retry exactly once.
	if p.cfg.DiscoveryEnabled {
		p.Refresh(ctx)
		if ctx.Err() != nil {
			return nil, &DeadlineExceededError{Attempts: attempts}
		}
		order = p.registry.attemptOrder(p.cfg.StaleAfter, time.Now())
		if result, ok := p.tryEach(ctx, order, method, params, &attempts); ok {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, &DeadlineExceededError{Attempts: attempts}
		}
	}

	// Tier 3: hardcoded seeds, bypassing ranking.
	if result, ok := p.tryEach(ctx, p.cfg.Seeds, method, params, &attempts); ok {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, &DeadlineExceededError{Attempts: attempts}
	}
	return nil, &ExhaustedError{Attempts: attempts}
}

// tryEach attempts the endpoints in order, one at a time, stopping on
// the first success or when ctx expires. Per-endpoint failures are
// recorded, never propagated.
func (p *Pool) tryEach(ctx context.Context, endpoints []models.Endpoint, method string, params any, attempts *[]AttemptError) (json.RawMessage, bool) {
	for _, endpoint := range endpoints {
		if ctx.Err() != nil {
			return nil, false
		}

		conn, err := p.dial(ctx, endpoint)
		if err != nil {
			*attempts = append(*attempts, AttemptError{Endpoint: endpoint, Err: err})
			continue
		}

		result, err := conn.Call(ctx, method, params)
		_ = conn.Close()
		if err != nil {
			log.Debug().Str("server", endpoint.String()).Str("method", method).Err(err).Msg("Server attempt failed")
			*attempts = append(*attempts, AttemptError{Endpoint: endpoint, Err: err})
			continue
		}
		return result, true
	}
	return nil, false
}

// Refresh runs one discovery crawl seeded with the current registry,
// probes every candidate, and merges the outcomes. It returns the
// number of reachable servers.
func (p *Pool) Refresh(ctx context.Context) int {
	found := p.crawler.Discover(ctx, p.registry.Rank())
	p.registry.Merge(found, models.TierDiscovered)

	results := p.prober.ProbeAll(ctx, p.registry.Rank())
	reachable := 0
	for _, result := range results {
		p.registry.RecordProbe(result)
		if p.cfg.OnProbe != nil {
			p.cfg.OnProbe(result)
		}
		if result.OK {
			reachable++
		}
	}

	log.Info().
		Int("known", p.registry.Len()).
		Int("reachable", reachable).
		Msg("Server pool refreshed")
	return reachable
}

// Start launches the background refresh loop. An initial refresh runs
// immediately so the first query sees ranked servers.
func (p *Pool) Start() {
	p.wg.Add(1)
	go p.refreshLoop()
	log.Info().Dur("interval", p.cfg.RefreshInterval).Msg("Pool refresh loop started")
}

// Stop halts the background refresh loop and waits for it to exit.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
	log.Info().Msg("Pool refresh loop stopped")
}

func (p *Pool) refreshLoop() {
	defer p.wg.Done()

	p.refreshOnce()

	ticker := time.NewTicker(p.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.refreshOnce()
		}
	}
}

func (p *Pool) refreshOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshBudget)
	defer cancel()
	p.Refresh(ctx)
}
