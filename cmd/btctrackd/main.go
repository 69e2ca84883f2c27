package main

import (
	"flag"
	"os"

	"btctrack/pkg/catalog"
	"btctrack/pkg/config"
	"btctrack/pkg/discovery"
	"btctrack/pkg/electrum"
	"btctrack/pkg/log"
	"btctrack/pkg/models"
	"btctrack/pkg/pool"
	"btctrack/pkg/server"
	"btctrack/pkg/tracker"
)

const version = "1.0.0"

func main() {
	// Initialize logger
	_ = log.Logger

	configPath := flag.String("config", "btctrack.toml", "Config file path")
	addr := flag.String("addr", "", "API listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite catalog path for server/probe history (enables persistence)")
	saveOnExit := flag.Bool("save", false, "Write the discovered server list back to the config file on shutdown")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		log.SetDebugMode()
		log.Debug().Msg("Debug mode enabled")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("Failed to load config")
	}
	if *addr != "" {
		cfg.API.Listen = *addr
	}

	var store *catalog.Store
	var onProbe func(models.ProbeResult)
	if *dbPath != "" {
		store, err = catalog.Open(*dbPath)
		if err != nil {
			log.Fatal().Err(err).Str("db", *dbPath).Msg("Failed to open server catalog")
		}
		defer func() {
			_ = store.Close()
		}()
		onProbe = func(result models.ProbeResult) {
			if err := store.RecordProbe(result); err != nil {
				log.Warn().Err(err).Msg("Failed to persist probe")
			}
		}
	}

	dialer := electrum.Dialer{Timeout: cfg.CallTimeout()}
	serverPool := pool.New(pool.Config{
		Dial:             discovery.NetDialer(dialer),
		Configured:       cfg.Servers,
		DiscoveryEnabled: cfg.Discovery.Enabled,
		MaxServers:       cfg.Discovery.MaxServers,
		ProbeConcurrency: cfg.Discovery.ProbeConcurrency,
		StaleAfter:       cfg.Discovery.StaleAfter(),
		RefreshInterval:  cfg.Discovery.RefreshInterval(),
		OnProbe:          onProbe,
	})

	// Servers cataloged by a previous run join the pool before the
	// first refresh.
	if store != nil {
		endpoints, tiers, err := store.Servers()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load cataloged servers")
		} else {
			for i, endpoint := range endpoints {
				serverPool.Registry().Merge([]models.Endpoint{endpoint}, tiers[i])
			}
			log.Info().Int("servers", len(endpoints)).Msg("Loaded server catalog")
		}
	}

	if cfg.Discovery.Enabled {
		serverPool.Start()
		defer serverPool.Stop()
	}

	log.Info().
		Int("configured", len(cfg.Servers)).
		Bool("discovery", cfg.Discovery.Enabled).
		Dur("call_timeout", cfg.CallTimeout()).
		Msg("Server pool ready")

	trk := tracker.New(serverPool)
	api := server.New(trk, serverPool, cfg.API, version)
	if err := api.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}

	if *saveOnExit {
		cfg.Servers = serverPool.Registry().Persistable(cfg.Discovery.MaxServers)
		if err := config.Save(*configPath, cfg); err != nil {
			log.Error().Err(err).Msg("Failed to save server list")
		} else {
			log.Info().Int("servers", len(cfg.Servers)).Str("config", *configPath).Msg("Server list saved")
		}
	}

	if store != nil {
		persistServers(store, serverPool)
	}

	os.Exit(0)
}

// persistServers writes the current persistable pool back to the
// catalog so the next run starts warm.
func persistServers(store *catalog.Store, serverPool *pool.Pool) {
	for _, status := range serverPool.Registry().Snapshot() {
		endpoint := models.Endpoint{Host: status.Host, Port: status.Port, TLS: status.TLS}
		if err := store.UpsertServer(endpoint, models.ParseTier(status.Tier)); err != nil {
			log.Warn().Err(err).Str("server", endpoint.String()).Msg("Failed to catalog server")
		}
	}
}
