package mediarelay

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/livechat/internal/adapter/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLauncher_MissingBinary(t *testing.T) {
	m := metrics.NewMediaMetrics(prometheus.NewRegistry())
	l := NewLauncher([]string{"livechat-no-such-relay-binary"}, m)

	err := l.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start relay")
	assert.Nil(t, l.Done())
	assert.InDelta(t, 1, testutil.ToFloat64(m.RelayLaunches.WithLabelValues("failed")), 0)
}

func TestLauncher_NoCommand(t *testing.T) {
	m := metrics.NewMediaMetrics(prometheus.NewRegistry())
	l := NewLauncher(nil, m)

	require.Error(t, l.Start(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(m.RelayLaunches.WithLabelValues("skipped")), 0)
}

func TestLauncher_StopsWithContext(t *testing.T) {
	m := metrics.NewMediaMetrics(prometheus.NewRegistry())
	l := NewLauncher([]string{"sleep", "30"}, m)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Start(ctx))
	assert.InDelta(t, 1, testutil.ToFloat64(m.RelayLaunches.WithLabelValues("started")), 0)
	require.Error(t, l.Start(ctx), "second start must be refused")

	cancel()
	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("relay process did not stop after cancel")
	}
	assert.InDelta(t, 0, testutil.ToFloat64(m.RelayLaunches.WithLabelValues("exited")), 0)
}

func TestLauncher_ReportsExit(t *testing.T) {
	m := metrics.NewMediaMetrics(prometheus.NewRegistry())
	l := NewLauncher([]string{"false"}, m)

	require.NoError(t, l.Start(context.Background()))
	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("relay process did not exit")
	}
	assert.InDelta(t, 1, testutil.ToFloat64(m.RelayLaunches.WithLabelValues("exited")), 0)
}
