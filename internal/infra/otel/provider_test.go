package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"OTEL_ENABLED", "OTEL_TRACE_SAMPLE_RATIO", "OTEL_SERVICE_NAME", "OTEL_EXPORTER_OTLP_ENDPOINT", "DEPLOYMENT_ENV"} {
		t.Setenv(key, "")
	}

	cfg := ConfigFromEnv("1.0.0")
	require.False(t, cfg.Enabled)
	require.Equal(t, "deep-research", cfg.ServiceName)
	require.Equal(t, "1.0.0", cfg.ServiceVersion)
	require.Equal(t, "http://localhost:4318", cfg.OTLPEndpoint)
	require.Equal(t, 1.0, cfg.SampleRatio)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_TRACE_SAMPLE_RATIO", "0.25")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318/")

	cfg := ConfigFromEnv("1.0.0")
	require.True(t, cfg.Enabled)
	require.Equal(t, 0.25, cfg.SampleRatio)
	require.Equal(t, "http://collector:4318", cfg.OTLPEndpoint)
}

func TestConfigFromEnv_IgnoresOutOfRangeRatio(t *testing.T) {
	t.Setenv("OTEL_TRACE_SAMPLE_RATIO", "3")
	require.Equal(t, 1.0, ConfigFromEnv("").SampleRatio)
}

func TestInitProvider_DisabledIsNoop(t *testing.T) {
	shutdown, err := InitProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
