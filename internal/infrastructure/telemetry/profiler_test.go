package telemetry

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func TestNewProfiler_Disabled(t *testing.T) {
	p, err := NewProfiler(ProfilerConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestNewProfiler_RejectsIncompleteConfig(t *testing.T) {
	_, err := NewProfiler(ProfilerConfig{Enabled: true, ApplicationName: "invoicing"}, zap.NewNop())
	assert.ErrorContains(t, err, "server address")

	_, err = NewProfiler(ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, zap.NewNop())
	assert.ErrorContains(t, err, "application name")

	_, err = NewProfiler(ProfilerConfig{
		Enabled:         true,
		ServerAddress:   "http://localhost:4040",
		ApplicationName: "invoicing",
		ProfileTypes:    []string{"cpu", "heap"},
	}, zap.NewNop())
	assert.ErrorContains(t, err, `unknown profile type "heap"`)
}

func TestProfileTypes(t *testing.T) {
	types, err := profileTypes([]string{"cpu", "inuse_space", "block_duration"})
	require.NoError(t, err)
	assert.Len(t, types, 3)
	assert.Equal(t, "block_duration", string(types[2]))
}

func TestLabeled(t *testing.T) {
	var operation, template string
	Labeled(context.Background(), func(ctx context.Context) {
		operation, _ = pprof.Label(ctx, ProfileLabelOperation)
		template, _ = pprof.Label(ctx, "template")
	}, ProfileLabelOperation, "render_pdf", "template", "classic")
	assert.Equal(t, "render_pdf", operation)
	assert.Equal(t, "classic", template)

	called := false
	Labeled(context.Background(), func(context.Context) { called = true })
	assert.True(t, called)
}

func TestEnableSpanProfiles(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	disabled := &TracerProvider{logger: zap.NewNop()}
	assert.False(t, disabled.EnableSpanProfiles())

	sdk := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = sdk.Shutdown(context.Background()) })
	enabled := &TracerProvider{provider: sdk, logger: zap.NewNop()}
	assert.True(t, enabled.EnableSpanProfiles())
	assert.NotSame(t, sdk, otel.GetTracerProvider())
}
