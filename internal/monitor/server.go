package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatusServer exposes the monitor's tracked jobs for inspection.
type StatusServer struct {
	bindAddress string
	tracker     *Tracker
}

func NewStatusServer(bindAddress string, tracker *Tracker) *StatusServer {
	return &StatusServer{bindAddress: bindAddress, tracker: tracker}
}

func (s *StatusServer) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chiMiddleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, s.tracker.Counts())
	})
	router.Get("/jobs", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, s.tracker.Jobs())
	})
	// cumulative counters (submissions by outcome, scheduler calls by
	// command and result) live in the prometheus registry
	router.Handle("/metrics", promhttp.Handler())
	return router
}

func (s *StatusServer) Run(ctx context.Context) error {
	srv := http.Server{Addr: s.bindAddress, Handler: s.routes()}

	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("status_server").Info("status server terminated")
	}()

	zap.S().Named("status_server").Infof("serving status: %s", s.bindAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *StatusServer) writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.S().Named("status_server").Errorf("failed to write response: %s", err)
	}
}
