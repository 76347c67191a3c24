// Package server is the daemon-facing counterpart to client.Client: it
// owns a Prometheus registry, exposes /healthz and /metrics, and wraps
// every Inscribe/VerifyBlock call with the corresponding metric update.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/btcsuite/btcd/wire"

	"github.com/sovbtc/bitcoin-da/client"
	"github.com/sovbtc/bitcoin-da/daverifier"
)

// Server is the main bitcoin-da daemon.
type Server struct {
	cfg *Config

	client  *client.Client
	metrics *Metrics
	reg     *prometheus.Registry

	httpServer *http.Server
}

// New wires up a Server: a client.Client (which itself wires the chain
// bridge, keyring, and validity-condition store), plus a dedicated
// Prometheus registry for this process.
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server: config required")
	}

	c, err := client.New(&client.Config{
		Network:    cfg.Network,
		RollupName: cfg.RollupName,
		DBPath:     cfg.DBPath,
		Seed:       cfg.Seed,
		MempoolURL: cfg.MempoolURL,
	})
	if err != nil {
		return nil, fmt.Errorf("server: create client: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	return &Server{
		cfg:     cfg,
		client:  c,
		metrics: metrics,
		reg:     reg,
	}, nil
}

// Start begins the chain bridge's polling and, if cfg.ListenAddr is set,
// the /healthz and /metrics HTTP endpoints.
func (s *Server) Start() error {
	if err := s.client.Start(); err != nil {
		return fmt.Errorf("server: start client: %w", err)
	}

	if s.cfg.ListenAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		log.Infof("listening on %s", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("http server: %v", err)
		}
	}()

	return nil
}

// Stop halts the HTTP server (if running) and the underlying client.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("server: shutdown http server: %w", err)
		}
	}
	return s.client.Stop()
}

// Inscribe builds a commit/reveal inscription pair and records the
// build count and mining iteration count.
func (s *Server) Inscribe(ctx context.Context, p client.InscribeParams) (commitTx, revealTx *wire.MsgTx, err error) {
	commitTx, revealTx, iterations, err := s.client.Inscribe(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.InscriptionsBuilt.Inc()
	s.metrics.InscriptionMineIters.Observe(float64(iterations))
	return commitTx, revealTx, nil
}

// VerifyBlock verifies a block and records the verify duration and
// result count.
func (s *Server) VerifyBlock(
	ctx context.Context,
	height int64,
	header daverifier.BlockHeader,
	blobs []*daverifier.BlobWithSender,
	inclusion daverifier.InclusionProof,
	completeness daverifier.CompletenessProof,
) (daverifier.ChainValidityCondition, error) {
	start := time.Now()
	cond, err := s.client.VerifyBlock(ctx, height, header, blobs, inclusion, completeness)
	s.metrics.VerifyDuration.Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = "rejected"
	}
	s.metrics.BlocksVerified.WithLabelValues(result).Inc()

	return cond, err
}
