package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ElasticProvisioner/attribution/internal/monitor"
	"github.com/ElasticProvisioner/attribution/internal/slurm"
	"github.com/ElasticProvisioner/attribution/internal/store"
	"github.com/ElasticProvisioner/attribution/pkg/log"
)

func main() {
	configFile := flag.String("config", "", "path to the monitor config file")
	flag.Parse()

	cfg := monitor.NewDefault()
	if *configFile != "" {
		if err := cfg.ParseConfigFile(*configFile); err != nil {
			zap.S().Fatalf("reading configuration: %s", err)
		}
	}

	logger, undo := log.InitDefault(cfg.LogLevel)
	defer undo()

	if err := cfg.Validate(); err != nil {
		logger.Sugar().Fatalf("invalid configuration: %s", err)
	}

	zap.S().Info("Starting job monitor")
	defer zap.S().Info("Job monitor stopped")
	zap.S().Infof("Configuration: %s", cfg)

	db, err := store.InitDB(store.Config{Type: "sqlite", Path: cfg.DBPath})
	if err != nil {
		zap.S().Fatalf("initializing data store: %s", err)
	}

	s := store.NewStore(db)
	defer s.Close()

	if err := s.InitialMigration(); err != nil {
		zap.S().Fatalf("running initial migration: %s", err)
	}

	client := slurm.NewCLIClient(
		slurm.WithPartitions(cfg.Partitions),
		slurm.WithUser(cfg.User),
		slurm.WithNamePattern(cfg.JobNamePattern),
	)

	tracker := monitor.NewTracker(s, cfg.ResolveAttempts)
	submitter := monitor.NewHTTPSubmitter(cfg.ServiceURL)
	m := monitor.New(cfg, client, tracker, submitter)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return m.Run(ctx)
	})
	group.Go(func() error {
		return monitor.NewStatusServer(cfg.ListenAddress, tracker).Run(ctx)
	})

	if err := group.Wait(); err != nil {
		zap.S().Fatalf("Error running monitor: %s", err)
	}
}
