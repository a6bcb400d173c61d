package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestServer_Check(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("AllProbesPass", func(t *testing.T) {
		s := NewServer(logger, 0)
		s.AddProbe("db", func(context.Context) error { return nil })
		s.AddProbe("bus", func(context.Context) error { return nil })
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, s.Check(ctx))

		resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{})
		assert.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
	})

	t.Run("OneProbeFails", func(t *testing.T) {
		s := NewServer(logger, 0)
		s.AddProbe("db", func(context.Context) error { return nil })
		s.AddProbe("bus", func(context.Context) error { return errors.New("disconnected") })
		assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, s.Check(ctx))
	})
}
