package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Probe reports whether one dependency of the service is usable.
type Probe func(ctx context.Context) error

// Server exposes the standard grpc.health.v1 service. Each registered probe
// is re-evaluated on an interval and flips the overall status.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	probes     map[string]Probe
	interval   time.Duration
	logger     *slog.Logger
}

func NewServer(logger *slog.Logger, interval time.Duration) *Server {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		probes:     make(map[string]Probe),
		interval:   interval,
		logger:     logger.With("component", "grpc_health"),
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)
	return s
}

// AddProbe registers a named dependency check.
func (s *Server) AddProbe(name string, p Probe) {
	s.probes[name] = p
}

// Check runs every probe once and updates the serving status.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, probe := range s.probes {
		if err := probe(ctx); err != nil {
			s.logger.WarnContext(ctx, "Health probe failed", "probe", name, "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	return status
}

// Serve listens on port until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen for gRPC health on %d: %w", port, err)
	}

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.Check(ctx)
		for {
			select {
			case <-ticker.C:
				s.Check(ctx)
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpcServer.GracefulStop()
				return
			}
		}
	}()

	s.logger.InfoContext(ctx, "Starting gRPC health server", "address", lis.Addr().String())
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC health server: %w", err)
	}
	return nil
}
