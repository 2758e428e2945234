package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labelaudit/internal/cfg"
	"labelaudit/internal/labelerrors"
	"labelaudit/internal/metrics"
	"labelaudit/internal/noise"
	"labelaudit/internal/records"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type auditRequest struct {
	Records []records.ClassificationRecord `json:"records"`
	SortBy  string                         `json:"sort_by,omitempty"`
	Options struct {
		PruneMethod         string         `json:"prune_method,omitempty"`
		FracNoise           float64        `json:"frac_noise,omitempty"`
		NumToRemovePerClass []int          `json:"num_to_remove_per_class,omitempty"`
		Extra               map[string]any `json:"extra,omitempty"`
	} `json:"options"`
}

type auditResponse struct {
	Records []records.ClassificationRecord `json:"records"`
	Error   string                         `json:"error,omitempty"`
}

func main() {
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if *logLevel != "" {
		c.LogLevel = *logLevel
		if err := cfg.Validate(c); err != nil {
			log.Fatal().Err(err).Msg("invalid flags")
		}
	}

	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	startMetricsServer(ctx, c)

	native := noise.NewNative()
	srv := noise.NewServer(native, c.ListenPort, c.DetectorTimeout, mw)
	adapter := labelerrors.NewWithMetrics(native, mw)

	srv.Handle("/audit", auditHandler(adapter, c))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown server")
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Float64("audit_failure_rate", m.FailureRate()).Msg("server stopped")
}

func newMetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.MetricsPort),
		Handler:           newMetricsHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to shutdown metrics server")
		}
	}()

	go func() {
		log.Info().Int("port", c.MetricsPort).Msg("starting metrics server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// auditHandler runs the label error adapter over posted records.
func auditHandler(adapter *labelerrors.Adapter, c cfg.Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req auditRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAudit(w, http.StatusBadRequest, auditResponse{Error: fmt.Sprintf("invalid request: %v", err)})
			return
		}

		sortBy := req.SortBy
		if sortBy == "" {
			sortBy = c.SortBy
		}

		opts := c.AuditOptions()
		if req.Options.PruneMethod != "" {
			opts.PruneMethod = req.Options.PruneMethod
		}
		if req.Options.FracNoise != 0 {
			opts.FracNoise = req.Options.FracNoise
		}
		opts.NumToRemovePerClass = req.Options.NumToRemovePerClass
		opts.Extra = req.Options.Extra

		ctx, cancel := context.WithTimeout(r.Context(), c.DetectorTimeout)
		defer cancel()

		found, err := adapter.FindLabelErrors(ctx, req.Records, labelerrors.SortBy(sortBy), opts)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, labelerrors.ErrLabelErrors) {
				status = http.StatusBadRequest
			}
			log.Warn().Err(err).Int("records", len(req.Records)).Msg("audit failed")
			writeAudit(w, status, auditResponse{Error: err.Error()})
			return
		}
		if found == nil {
			found = []records.ClassificationRecord{}
		}

		writeAudit(w, http.StatusOK, auditResponse{Records: found})
	}
}

func writeAudit(w http.ResponseWriter, status int, resp auditResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
