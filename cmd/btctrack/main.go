package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"btctrack/pkg/config"
	"btctrack/pkg/discovery"
	"btctrack/pkg/electrum"
	"btctrack/pkg/log"
	"btctrack/pkg/pool"
	"btctrack/pkg/tracker"
)

const statusLineLength = 60

func main() {
	// Initialize logger
	_ = log.Logger

	configPath := flag.String("config", "btctrack.toml", "Config file path")
	address := flag.String("address", "", "Track a single address and exit")
	history := flag.Bool("history", false, "Also print transaction history for -address")
	continuous := flag.Bool("continuous", false, "Run in continuous monitoring mode")
	saveServers := flag.Bool("save", false, "Write the discovered server list back to the config file before exiting")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		log.SetDebugMode()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("Failed to load config")
	}

	dialer := electrum.Dialer{Timeout: cfg.CallTimeout()}
	serverPool := pool.New(pool.Config{
		Dial:             discovery.NetDialer(dialer),
		Configured:       cfg.Servers,
		DiscoveryEnabled: cfg.Discovery.Enabled,
		MaxServers:       cfg.Discovery.MaxServers,
		ProbeConcurrency: cfg.Discovery.ProbeConcurrency,
		StaleAfter:       cfg.Discovery.StaleAfter(),
	})
	trk := tracker.New(serverPool)

	switch {
	case *address != "":
		trackSingle(trk, *address, *history)
	case *continuous:
		monitorContinuous(trk, serverPool, cfg)
	default:
		printStatus(trk, serverPool, cfg)
	}

	if *saveServers {
		cfg.Servers = serverPool.Registry().Persistable(cfg.Discovery.MaxServers)
		if err := config.Save(*configPath, cfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to save server list")
		}
		log.Info().Int("servers", len(cfg.Servers)).Msg("Server list saved")
	}

	os.Exit(0)
}

func trackSingle(trk *tracker.Tracker, address string, withHistory bool) {
	ctx := context.Background()

	balance, err := trk.GetBalance(ctx, address)
	if err != nil {
		log.Fatal().Err(err).Str("address", address).Msg("Balance lookup failed")
	}

	fmt.Printf("Address: %s (%s)\n", balance.Address, balance.AddressType)
	fmt.Printf("  Confirmed:   %s BTC\n", tracker.FormatBTC(balance.Confirmed))
	fmt.Printf("  Unconfirmed: %s BTC\n", tracker.FormatBTC(balance.Unconfirmed))
	fmt.Printf("  Total:       %s BTC\n", balance.TotalBTC)
	fmt.Printf("  UTXOs:       %d\n", balance.UTXOCount)

	if !withHistory {
		return
	}
	txs, err := trk.GetHistory(ctx, address)
	if err != nil {
		log.Fatal().Err(err).Str("address", address).Msg("History lookup failed")
	}
	fmt.Printf("History (%d transactions):\n", len(txs.Entries))
	for _, entry := range txs.Entries {
		height := fmt.Sprintf("%d", entry.Height)
		if entry.Height <= 0 {
			height = "mempool"
		}
		fmt.Printf("  %s  height=%s\n", entry.TxHash, height)
	}
}

func monitorContinuous(trk *tracker.Tracker, serverPool *pool.Pool, cfg config.Config) {
	log.Info().Dur("interval", cfg.UpdateInterval()).Msg("Starting continuous monitoring (Ctrl+C to stop)")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.UpdateInterval())
	defer ticker.Stop()

	printStatus(trk, serverPool, cfg)
	for {
		select {
		case <-quit:
			log.Info().Msg("Monitoring stopped")
			return
		case <-ticker.C:
			printStatus(trk, serverPool, cfg)
		}
	}
}

func printStatus(trk *tracker.Tracker, serverPool *pool.Pool, cfg config.Config) {
	ctx := context.Background()

	fmt.Println(strings.Repeat("=", statusLineLength))
	fmt.Printf("Bitcoin Balance Tracker - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(strings.Repeat("=", statusLineLength))

	if tip, err := trk.Tip(ctx); err == nil {
		fmt.Printf("Chain tip: %d\n", tip.Height)
	} else {
		fmt.Printf("Chain tip: unavailable (%v)\n", err)
	}

	online := 0
	statuses := serverPool.Registry().Snapshot()
	for _, status := range statuses {
		if status.Online {
			online++
		}
	}
	fmt.Printf("Servers: %d known, %d online\n", len(statuses), online)
	fmt.Println(strings.Repeat("-", statusLineLength))

	if len(cfg.Addresses) == 0 {
		fmt.Println("No addresses configured. Add addresses to the config file.")
		return
	}

	var totalConfirmed, totalUnconfirmed int64
	for _, balance := range trk.GetBalances(ctx, cfg.Addresses) {
		fmt.Printf("Address: %s\n", balance.Address)
		fmt.Printf("  Confirmed:   %s BTC\n", tracker.FormatBTC(balance.Confirmed))
		fmt.Printf("  Unconfirmed: %s BTC\n", tracker.FormatBTC(balance.Unconfirmed))
		fmt.Printf("  UTXOs:       %d\n", balance.UTXOCount)
		totalConfirmed += balance.Confirmed
		totalUnconfirmed += balance.Unconfirmed
	}

	fmt.Println(strings.Repeat("-", statusLineLength))
	fmt.Printf("Total Confirmed:   %s BTC\n", tracker.FormatBTC(totalConfirmed))
	fmt.Printf("Total Unconfirmed: %s BTC\n", tracker.FormatBTC(totalUnconfirmed))
	fmt.Printf("Total Balance:     %s BTC\n", tracker.FormatBTC(totalConfirmed+totalUnconfirmed))
}
