package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_WritesJSONWithLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLogger("warn", &buf)

	logger.Info().Msg("dropped")
	logger.Warn().Str("cart_id", "cart_1").Msg("kept")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "cart_1", entry["cart_id"])
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "caller")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"trace":   zerolog.TraceLevel,
		"bogus":   zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestLogOutput(t *testing.T) {
	var buf bytes.Buffer

	assert.Same(t, &buf, LogOutput("json", &buf))
	assert.Same(t, &buf, LogOutput("", &buf))

	logger := InitLogger("info", LogOutput("console", &buf))
	logger.Info().Str("cart_id", "cart_1").Msg("rendered")
	assert.Contains(t, buf.String(), "rendered")
	assert.Contains(t, buf.String(), "cart_id=")
	assert.Contains(t, buf.String(), "cart_1")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := WithFields(InitLogger("info", &buf), map[string]any{"provider": "vn-pay"})
	logger.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "vn-pay", entry["provider"])
}

func TestNewMetrics_RegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("checkout", reg)

	m.AttemptsTotal.WithLabelValues("stripe", "completed").Inc()
	m.WindowPolls.Inc()
	m.ActiveWindows.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["checkout_payment_attempts_total"])
	assert.True(t, names["checkout_gateway_window_polls_total"])
	assert.True(t, names["checkout_active_gateway_windows"])
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics("checkout", reg)
	assert.Panics(t, func() { NewMetrics("checkout", reg) })
}

func TestShutdown_NilProvider(t *testing.T) {
	assert.NotPanics(t, func() { Shutdown(context.Background(), nil) })
}

func TestTracer_NotNil(t *testing.T) {
	assert.NotNil(t, Tracer())
}
