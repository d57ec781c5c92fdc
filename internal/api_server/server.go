package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ElasticProvisioner/attribution/internal/cache"
	"github.com/ElasticProvisioner/attribution/internal/config"
	"github.com/ElasticProvisioner/attribution/internal/handlers"
	"github.com/ElasticProvisioner/attribution/internal/service"
	"github.com/ElasticProvisioner/attribution/pkg/log"
	"github.com/ElasticProvisioner/attribution/pkg/metrics"
	"github.com/ElasticProvisioner/attribution/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.Config
	srv      *service.AttributionService
	cache    *cache.Cache
	listener net.Listener
}

// New returns a new instance of an attribution API server.
func New(
	cfg *config.Config,
	srv *service.AttributionService,
	c *cache.Cache,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:      cfg,
		srv:      srv,
		cache:    c,
		listener: listener,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "HEAD", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		}),
		middleware.RequestID,
		log.Logger(zap.L(), "router"),
		chiMiddleware.Recoverer,
	)

	h := handlers.NewServiceHandler(s.srv)
	router.Post("/logs", h.SubmitLog)
	router.Get("/logs", h.AnalyzeLog)
	router.Get("/print", h.PrintLog)
	router.Get("/stats", h.Stats)
	router.Get("/inflight", h.InFlight)
	router.Get("/jobs", h.Jobs)
	router.Get("/health", h.Health)

	if s.cfg.Service.PersistCache {
		restored, err := s.cache.LoadLedger(ctx)
		if err != nil {
			zap.S().Named("api_server").Warnf("failed to load cache ledger: %s", err)
		} else {
			zap.S().Named("api_server").Infof("restored %d cache entries from ledger", restored)
		}
	}

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)

		// in-flight requests have drained; the ledger now holds every
		// result they produced
		if s.cfg.Service.PersistCache {
			if err := s.cache.SaveLedger(ctxTimeout); err != nil {
				zap.S().Named("api_server").Warnf("failed to save cache ledger: %s", err)
			}
		}
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Serve returns as soon as Shutdown starts; wait for the drain and
	// the ledger save to finish
	<-shutdownDone
	return nil
}
