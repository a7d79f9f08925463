package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegistersEveryMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	m.SubtasksDispatched.WithLabelValues("band-0").Inc()
	m.SubPoolsAlive.Set(3)

	require.Equal(t, float64(1), testutil.ToFloat64(m.SubtasksDispatched.WithLabelValues("band-0")))
	require.Equal(t, float64(3), testutil.ToFloat64(m.SubPoolsAlive))
}

func TestRegistryPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRegistry(reg)
	require.Panics(t, func() { NewRegistry(reg) })
}
