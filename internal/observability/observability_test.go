package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(false, "info")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	dev, err := NewLogger(true, "debug")
	require.NoError(t, err)
	assert.True(t, dev.Desugar().Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger(false, "loud")
	assert.Error(t, err)
}

func TestNewUnregisteredMetrics(t *testing.T) {
	m := NewUnregisteredMetrics()
	m.Derivations.WithLabelValues("map", "total").Inc()
	m.Derivations.WithLabelValues("map", "total").Inc()
	m.ValuesMaterialized.Add(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Derivations.WithLabelValues("map", "total")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.ValuesMaterialized))

	// A second instance must not collide with the first.
	assert.NotPanics(t, func() { _ = NewUnregisteredMetrics() })

	// Nothing was added to the default registry.
	reg := prometheus.DefaultRegisterer
	require.NoError(t, reg.Register(m.Derivations))
	assert.True(t, reg.Unregister(m.Derivations))
}
