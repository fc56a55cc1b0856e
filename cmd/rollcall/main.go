package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rollcall/internal/api"
	"rollcall/internal/config"
	"rollcall/internal/ingest"
	"rollcall/internal/logging"
	"rollcall/internal/model"
	"rollcall/internal/roster"
	"rollcall/internal/session"
	"rollcall/internal/storage"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "rollcall.yaml", "path to config file (yaml or json)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	path := config.ResolvePath(*configPath)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path, config.DefaultConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "write default config: %v\n", err)
			os.Exit(1)
		}
	}
	manager, err := config.NewManager(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := manager.Get()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("rollcall starting", "version", version, "config", path)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("open storage", "err", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		logger.Error("init storage", "err", err)
		os.Exit(1)
	}

	ros := roster.New(store, logger)
	if err := ros.Refresh(ctx); err != nil {
		logger.Warn("initial roster load failed", "err", err)
	} else {
		logger.Info("roster loaded", "students", ros.Size())
	}
	go ros.Watch(ctx, cfg.Roster.RefreshInterval)

	observations := make(chan model.Observation, cfg.Ingest.ChannelBuffer)
	parser := ingest.NewParser()
	ingest.StartREST(ctx, manager, observations, logger)
	ingest.StartKafka(ctx, manager, parser, observations, logger)
	ingest.StartTCPStream(ctx, manager, parser, observations, logger)
	ingest.StartFileReplay(ctx, manager, parser, observations, logger)

	controller := session.NewController(cfg, logger, store, ros, observations)
	if cfg.Tracking.AutoStart {
		controller.Start()
	}

	api.Start(ctx, manager, controller, store, logger, version)

	go manager.Watch(0, func(next *config.Config) {
		logger.Info("config reloaded")
		controller.UpdateConfig(next)
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, ctx.Done())

	<-ctx.Done()
	logger.Info("shutting down")
	controller.Stop()
}
