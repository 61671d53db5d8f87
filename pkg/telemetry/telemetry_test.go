package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/config"
)

func TestSetupDisabled(t *testing.T) {
	before := otel.GetTracerProvider()

	tp, shutdown, err := Setup(context.Background(), config.TelemetryConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, before, tp)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupEnabled(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	tp, shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "127.0.0.1:4317",
		Insecure:    true,
		ServiceName: "vibesurf-test",
	}, nil)
	require.NoError(t, err)

	_, ok := tp.(*sdktrace.TracerProvider)
	require.True(t, ok)
	assert.Equal(t, tp, otel.GetTracerProvider())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// Nothing was recorded, so shutdown has nothing to flush.
	_ = shutdown(ctx)
}
