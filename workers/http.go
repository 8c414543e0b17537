package workers

import (
	"context"
	"net/http"
	"time"

	"sigresponder/workers/handlers"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter mounts the status API. gatherer may be nil for the default
// prometheus registry.
func NewRouter(api *handlers.API, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Options("/*", CORSHeaders)

	r.Get("/health", api.HealthCheck)
	r.Get("/state", api.State)
	r.Get("/pending", api.GetPending)
	r.Post("/derive", api.Derive)
	r.Get("/funding", api.Funding)
	r.Get("/bitcoin/utxos/{address}", api.BitcoinUtxos)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

// Worker_HTTP serves handler on listen until ctx is cancelled.
func Worker_HTTP(ctx context.Context, listen string, handler http.Handler, logger *zap.Logger) error {
	log := logger.Sugar()
	log.Infow("Starting HTTP service", "listen", listen)

	server := &http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	log.Info("HTTP service started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("HTTP service stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP service shutdown error", "error", err)
		return err
	}
	log.Info("HTTP service shutdown normal")
	return nil
}

func CORSHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, Origin, X-Requested-With")
}
