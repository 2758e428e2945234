package noise

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Detector is implemented by Native and Remote.
type Detector interface {
	FindNoiseIndices(ctx context.Context, req Request) ([]int, error)
}

// ServerMetrics defines metrics methods needed by the server
type ServerMetrics interface {
	ServerRequestsInc()
	ServerErrorsInc()
	DetectorLatencyObserve(float64)
}

// Server provides an HTTP API for noise detection
type Server struct {
	detector Detector
	metrics  ServerMetrics
	timeout  time.Duration
	mux      *http.ServeMux
	server   *http.Server
}

// NewServer creates a server listening on port. metrics may be nil.
func NewServer(detector Detector, port int, timeout time.Duration, metrics ServerMetrics) *Server {
	s := &Server{
		detector: detector,
		metrics:  metrics,
		timeout:  timeout,
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc(indicesPath, s.handleIndices)
	s.mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// Handler returns the routes served by the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Handle registers an additional route. It must be called before Start.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting noise detection server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleIndices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.metrics != nil {
		s.metrics.ServerRequestsInc()
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	indices, err := s.detector.FindNoiseIndices(ctx, req)
	if s.metrics != nil {
		s.metrics.DetectorLatencyObserve(time.Since(start).Seconds())
	}
	if err != nil {
		log.Warn().Err(err).Int("rows", len(req.Probabilities)).Msg("noise detection failed")
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if indices == nil {
		indices = []int{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{Indices: indices})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if s.metrics != nil {
		s.metrics.ServerErrorsInc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Error: err.Error()})
}
