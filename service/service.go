package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ethereum-optimism/infra/op-deflake/metrics"
	"github.com/ethereum-optimism/infra/op-deflake/runner"
	"github.com/ethereum-optimism/infra/op-deflake/types"
)

const (
	StatusHost = "0.0.0.0"
)

// Config selects which servers run. A zero port disables the status server;
// metrics are served only when MetricsEnabled is set.
type Config struct {
	StatusPort     int
	MetricsEnabled bool
	MetricsAddr    string
	MetricsPort    int
}

// Service runs the optional HTTP side of a deflake session.
type Service struct {
	Status  *StatusServer
	Metrics *MetricsServer

	cfg Config
	log log.Logger
}

func New(cfg Config, session *types.RunSession, stats runner.StatsSource, logger log.Logger) *Service {
	logger = logger.New("component", "service")
	s := &Service{cfg: cfg, log: logger}
	if cfg.StatusPort > 0 {
		s.Status = NewStatusServer(session, stats, logger)
	}
	if cfg.MetricsEnabled {
		s.Metrics = &MetricsServer{log: logger}
	}
	return s
}

// Start launches the enabled servers. Failure to bind is logged and recorded
// but does not stop the session.
func (s *Service) Start() {
	s.log.Info("service starting")

	if s.Status != nil {
		addr := net.JoinHostPort(StatusHost, strconv.Itoa(s.cfg.StatusPort))
		if err := s.Status.Start(addr); err != nil {
			s.log.Error("error starting status server", "addr", addr, "err", err)
			metrics.RecordErrorDetails("status_server", err)
		} else {
			s.log.Info("started status server", "addr", s.Status.Addr())
		}
	}

	if s.Metrics != nil {
		addr := net.JoinHostPort(s.cfg.MetricsAddr, strconv.Itoa(s.cfg.MetricsPort))
		if err := s.Metrics.Start(addr); err != nil {
			s.log.Error("error starting metrics server", "addr", addr, "err", err)
			metrics.RecordErrorDetails("metrics_server", err)
		} else {
			s.log.Info("started metrics server", "addr", s.Metrics.Addr())
		}
	}
}

func (s *Service) Shutdown(ctx context.Context) {
	s.log.Info("service shutting down")
	if s.Status != nil {
		_ = s.Status.Shutdown(ctx)
		s.log.Info("status server stopped")
	}
	if s.Metrics != nil {
		_ = s.Metrics.Shutdown(ctx)
		s.log.Info("metrics server stopped")
	}
	s.log.Info("service stopped")
}

// MetricsServer serves the default Prometheus registry on /metrics.
type MetricsServer struct {
	log      log.Logger
	server   *http.Server
	listener net.Listener
}

func (m *MetricsServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	m.listener = ln
	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("metrics server stopped", "err", err)
		}
	}()
	return nil
}

func (m *MetricsServer) Addr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
