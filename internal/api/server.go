// Package api exposes decision signing, verification and circuit control
// over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"cate-trust-layer/internal/anchor"
	"cate-trust-layer/internal/attestation"
	"cate-trust-layer/internal/breaker"
	"cate-trust-layer/internal/history"
	"cate-trust-layer/internal/observability"
	"cate-trust-layer/internal/storage"
)

// Options configures Server.
type Options struct {
	Engine  *attestation.Engine // required
	Breaker *breaker.Breaker    // required
	History *history.Ring       // required

	// Decisions serves decisions no longer held in History. Optional.
	Decisions storage.DecisionStore
	// Replay rejects reused decision hashes on the signing path. Optional.
	Replay attestation.ReplayGuard
	// Anchor reads on-chain accounts for /v1/anchor. Optional.
	Anchor    anchor.AccountReader
	ProgramID anchor.PublicKey

	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer // defaults to prometheus.DefaultGatherer

	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	TimestampWindow time.Duration
	Version         string
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Server is the HTTP front of the trust layer.
type Server struct {
	opts   Options
	log    zerolog.Logger
	router *mux.Router
}

// NewServer creates a server and registers its routes.
func NewServer(opts Options) (*Server, error) {
	if opts.Engine == nil || opts.Breaker == nil || opts.History == nil {
		return nil, errors.New("api: engine, breaker and history are required")
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.TimestampWindow <= 0 {
		opts.TimestampWindow = DefaultTimestampWindow
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		opts:   opts,
		log:    opts.Logger.With().Str("component", "api").Logger(),
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s, nil
}

// Asset ids such as SOL/USD travel percent-encoded in the path.
func (s *Server) setupRoutes() {
	s.router.UseEncodedPath()
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", observability.HandlerFor(s.opts.Gatherer)).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/decisions/sign", s.handleSign).Methods(http.MethodPost)
	v1.HandleFunc("/decisions/verify", s.handleVerify).Methods(http.MethodPost)
	v1.HandleFunc("/assets/{asset}/decision", s.handleAssetDecision).Methods(http.MethodGet)
	v1.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	v1.HandleFunc("/circuit", s.handleCircuit).Methods(http.MethodGet)
	v1.HandleFunc("/circuit/emergency-stop", s.handleEmergencyStop).Methods(http.MethodPost)
	v1.HandleFunc("/circuit/reset", s.handleReset).Methods(http.MethodPost)
	v1.HandleFunc("/anchor/{asset}", s.handleAnchor).Methods(http.MethodGet)
}

// Handler returns the root handler including CORS when origins are configured.
func (s *Server) Handler() http.Handler {
	if len(s.opts.CORSOrigins) == 0 {
		return s.router
	}
	return handlers.CORS(
		handlers.AllowedOrigins(s.opts.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(s.router)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.opts.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			s.log.Warn().Err(err).Msg("http shutdown")
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		ev := s.log.Debug()
		if rec.status >= http.StatusInternalServerError {
			ev = s.log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("panic recovered")
				writeError(w, http.StatusInternalServerError, "Internal", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
