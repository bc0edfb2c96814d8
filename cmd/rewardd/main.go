package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"atachain/config"
	"atachain/core/events"
	"atachain/core/state"
	"atachain/core/types"
	"atachain/native/rewardclaim"
	"atachain/native/token"
	"atachain/observability/logging"
	"atachain/observability/metrics"
	"atachain/rpc"
	"atachain/storage"
)

// logEmitter writes every engine event as a structured log line.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(event events.Event) {
	attrs := []any{slog.String("event", event.EventType())}
	if carrier, ok := event.(interface{ Event() *types.Event }); ok {
		for key, value := range carrier.Event().Attributes {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	l.logger.Info("state change", attrs...)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ATA_ENV"))
	bootstrap := logging.Setup("rewardd", env, logging.Options{})

	cfg, err := config.Load(*configFile)
	if err != nil {
		bootstrap.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.Setup("rewardd", env, logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err), slog.String("data_dir", cfg.DataDir))
		os.Exit(1)
	}
	defer db.Close()

	treasury, err := cfg.Treasury()
	if err != nil {
		logger.Error("Invalid treasury address", slog.Any("error", err))
		os.Exit(1)
	}
	admin, err := cfg.Admin()
	if err != nil {
		logger.Error("Invalid admin address", slog.Any("error", err))
		os.Exit(1)
	}
	supply, err := cfg.Supply()
	if err != nil {
		logger.Error("Invalid genesis supply", slog.Any("error", err))
		os.Exit(1)
	}

	manager := state.NewManager(db)
	ledger := token.NewLedger(manager)
	if err := ledger.InitGenesis(treasury, supply); err != nil {
		if !errors.Is(err, token.ErrSupplyInitialized) {
			logger.Error("Failed to initialize genesis supply", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Genesis supply already initialized, resuming")
	} else {
		logger.Info("Genesis supply minted to treasury", slog.String("supply", supply.String()))
	}

	engine := rewardclaim.NewEngine(treasury, admin)
	engine.SetState(manager)
	engine.SetLedger(ledger)
	engine.SetEmitter(logEmitter{logger: logger})

	// Seed the epochs gauge from persisted state; fund and publish keep it
	// current from here on.
	if count, err := engine.EpochCount(); err == nil {
		metrics.Rewards().SetEpochCount(float64(count))
	}

	server := rpc.NewServer(engine, ledger, cfg.SweepFeeUnits, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Reward daemon listening",
		slog.String("address", cfg.ListenAddress),
		slog.String("vault", fmt.Sprintf("0x%x", rewardclaim.VaultAddress)),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTP server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
