package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ElasticProvisioner/attribution/internal/analyzer"
	apiserver "github.com/ElasticProvisioner/attribution/internal/api_server"
	"github.com/ElasticProvisioner/attribution/internal/cache"
	"github.com/ElasticProvisioner/attribution/internal/config"
	"github.com/ElasticProvisioner/attribution/internal/events"
	"github.com/ElasticProvisioner/attribution/internal/service"
	"github.com/ElasticProvisioner/attribution/internal/store"
	"github.com/ElasticProvisioner/attribution/pkg/log"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		zap.S().Fatalf("reading configuration: %s", err)
	}

	logger, undo := log.InitDefault(cfg.Service.LogLevel)
	defer undo()

	if err := cfg.Validate(); err != nil {
		logger.Sugar().Fatalf("invalid configuration: %s", err)
	}

	zap.S().Info("Starting attribution service")
	defer zap.S().Info("Attribution service stopped")

	zap.S().Info("Initializing data store")
	db, err := store.InitDB(cfg.StoreConfig())
	if err != nil {
		zap.S().Fatalf("initializing data store: %s", err)
	}

	s := store.NewStore(db)
	defer s.Close()

	if err := s.InitialMigration(); err != nil {
		zap.S().Fatalf("running initial migration: %s", err)
	}

	execAnalyzer := analyzer.NewExecAnalyzer(cfg.Service.AnalyzerCommand, cfg.Service.AnalyzerTimeout)

	cacheOpts := []cache.Option{
		cache.WithGracePeriod(cfg.Service.CacheGracePeriod),
		cache.WithMaxFileAge(cfg.Service.CacheMaxFileAge),
	}
	if cfg.Service.PersistCache {
		cacheOpts = append(cacheOpts, cache.WithStore(s))
	}
	analysisCache := cache.New(execAnalyzer, cacheOpts...)

	producer := newEventProducer(cfg)
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
	}()

	srv, err := service.NewAttributionService(cfg.Service.AllowedRoot, analysisCache, producer)
	if err != nil {
		zap.S().Fatalf("initializing service: %s", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	go func() {
		listener, err := newListener(cfg.Service.Address)
		if err != nil {
			zap.S().Fatalf("creating listener: %s", err)
		}

		server := apiserver.New(cfg, srv, analysisCache, listener)
		if err := server.Run(ctx); err != nil {
			zap.S().Fatalf("Error running server: %s", err)
		}
		cancel()
	}()

	go func() {
		listener, err := newListener(cfg.Service.MetricsAddress)
		if err != nil {
			zap.S().Fatalf("creating metrics listener: %s", err)
		}

		metricsServer := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
		if err := metricsServer.Run(ctx); err != nil {
			zap.S().Fatalf("Error running metrics server: %s", err)
		}
		cancel()
	}()

	<-ctx.Done()
}

func newEventProducer(cfg *config.Config) *events.EventProducer {
	if len(cfg.Service.Kafka.Brokers) == 0 {
		return events.NewEventProducer(&events.StdoutWriter{})
	}

	writer, err := events.NewKafkaWriter(cfg.Service.Kafka.Brokers, cfg.Service.Kafka.Topic)
	if err != nil {
		zap.S().Fatalf("initializing kafka writer: %s", err)
	}

	opts := []events.ProducerOptions{}
	if cfg.Service.Kafka.Topic != "" {
		opts = append(opts, events.WithOutputTopic(cfg.Service.Kafka.Topic))
	}
	return events.NewEventProducer(writer, opts...)
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
