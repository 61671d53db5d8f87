package server

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T, s *Server) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	})
	return healthpb.NewHealthClient(conn)
}

func status(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthReflectsChecks(t *testing.T) {
	var storeDown atomic.Bool
	s := New(WithInterval(time.Hour))
	s.AddCheck("checkpoint", func(context.Context) error {
		if storeDown.Load() {
			return errors.New("connection refused")
		}
		return nil
	})
	s.AddCheck("orchestrator", func(context.Context) error { return nil })

	c := startServer(t, s)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, c, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, c, "checkpoint"))

	storeDown.Store(true)
	err := s.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint: connection refused")

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, c, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, c, "checkpoint"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, c, "orchestrator"))
}

func TestRefreshWithoutChecksServes(t *testing.T) {
	s := New()
	require.NoError(t, s.Refresh(context.Background()))

	c := startServer(t, s)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, c, ""))
}

func TestUnknownServiceIsNotFound(t *testing.T) {
	c := startServer(t, New(WithInterval(time.Hour)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: "nope"})
	assert.Error(t, err)
}

func TestCheckTimeout(t *testing.T) {
	s := New()
	s.timeout = 20 * time.Millisecond
	s.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
