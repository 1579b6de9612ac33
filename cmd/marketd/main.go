package main

import (
	"flag"
	"fmt"
	"os"

	"fiatmarket/config"
	"fiatmarket/core"
	"fiatmarket/core/events"
	"fiatmarket/ledger"
	"fiatmarket/observability"
	"fiatmarket/observability/logging"
	"fiatmarket/rpc"
	"fiatmarket/storage"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./config.toml", "path to config file")
	flag.Parse()

	logger := logging.Setup("marketd", os.Getenv("MARKET_ENV"))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "err", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	store := ledger.NewStore(db)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", "err", err)
		}
	}()

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetrics(observability.Metrics()),
		core.WithEmitter(events.NewLogEmitter(logger)),
		core.WithMaxAttempts(cfg.MaxTxAttempts),
	}
	admin, ok, err := cfg.Admin()
	if err != nil {
		logger.Error("invalid admin address", "err", err)
		os.Exit(1)
	}
	if ok {
		opts = append(opts, core.WithAdmin(admin))
		logger.Info("dispute admin configured", "admin", fmt.Sprintf("0x%x", admin))
	} else {
		logger.Warn("no admin address configured, admin transitions disabled")
	}

	node := core.NewNode(store, opts...)

	server := rpc.NewServer(node, cfg.RPCToken())
	logger.Info("starting marketd", "network", cfg.NetworkName, "listen", cfg.ListenAddress, "data", cfg.DataDir)
	if err := server.Start(cfg.ListenAddress); err != nil {
		logger.Error("rpc server stopped", "err", err)
		os.Exit(1)
	}
}
