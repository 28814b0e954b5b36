// Package grpcserver exposes the standard gRPC health service for the ledger.
package grpcserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall ("") status.
const ServiceName = "wealthflow.Ledger"

// Pinger reports whether the ledger store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	// CheckInterval is how often the store is pinged (default: 15s)
	CheckInterval time.Duration
	// PingTimeout bounds a single ping (default: 5s)
	PingTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		CheckInterval: 15 * time.Second,
		PingTimeout:   5 * time.Second,
	}
}

// Server serves grpc.health.v1.Health, SERVING while the store answers.
type Server struct {
	addr   string
	lis    net.Listener
	Server *grpc.Server
	health *health.Server
	pinger Pinger
	config Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func New(addr string, pinger Pinger, config Config) *Server {
	def := DefaultConfig()
	if config.CheckInterval <= 0 {
		config.CheckInterval = def.CheckInterval
	}
	if config.PingTimeout <= 0 {
		config.PingTimeout = def.PingTimeout
	}

	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{
		addr:   addr,
		Server: s,
		health: hs,
		pinger: pinger,
		config: config,
	}
}

// Serve starts the store checks and blocks serving on lis.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.mu.Lock()
	s.lis = lis
	if !s.running {
		s.running = true
		s.stopCh = make(chan struct{})
		s.doneCh = make(chan struct{})
		go s.watch(ctx)
	}
	s.mu.Unlock()

	slog.InfoContext(ctx, "gRPC health server listening", "addr", lis.Addr().String())
	if err := s.Server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Stop marks every service NOT_SERVING, ends the checks and drains RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()

	s.mu.Lock()
	lis := s.lis
	var doneCh chan struct{}
	if s.running {
		s.running = false
		close(s.stopCh)
		doneCh = s.doneCh
	}
	s.mu.Unlock()
	if doneCh != nil {
		<-doneCh
	}

	s.Server.GracefulStop()
	if lis != nil {
		_ = lis.Close()
	}
}

func (s *Server) watch(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	s.check(ctx)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

// check pings the store once and publishes the resulting status.
func (s *Server) check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, s.config.PingTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(pingCtx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		slog.WarnContext(ctx, "Ledger store ping failed", "error", err)
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}
