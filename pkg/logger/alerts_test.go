package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	batches [][]*AlertEntry
	topics  []string
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	if batch, ok := payload.([]*AlertEntry); ok {
		p.batches = append(p.batches, batch)
	}
	return nil
}

func (p *capturePublisher) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func newTestDispatcher(pub Publisher, threshold int) *AlertDispatcher {
	return NewAlertDispatcher(AlertConfig{
		FlushInterval:  time.Hour, // periodic flush disabled for tests
		CountThreshold: threshold,
		Topic:          "barpilot.alerts",
		Publisher:      pub,
	}, Nop())
}

func TestAlert_DedupesRepeatsWithinWindow(t *testing.T) {
	pub := &capturePublisher{}
	d := newTestDispatcher(pub, 100)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Alert(ctx, "stale_data", "market data too old", map[string]interface{}{"symbol": "BTCUSDT"}))
	}
	d.Close()

	require.Equal(t, 1, pub.batchCount())
	batch := pub.batches[0]
	require.Len(t, batch, 1)
	assert.Equal(t, "stale_data", batch[0].Kind)
	assert.Equal(t, 5, batch[0].Count)
	assert.False(t, batch[0].LastSeen.Before(batch[0].FirstSeen))
}

func TestAlert_DistinctFieldsAreSeparateEntries(t *testing.T) {
	pub := &capturePublisher{}
	d := newTestDispatcher(pub, 100)

	ctx := context.Background()
	require.NoError(t, d.Alert(ctx, "stale_data", "market data too old", map[string]interface{}{"symbol": "BTCUSDT"}))
	require.NoError(t, d.Alert(ctx, "stale_data", "market data too old", map[string]interface{}{"symbol": "ETHUSDT"}))
	d.Close()

	require.Equal(t, 1, pub.batchCount())
	assert.Len(t, pub.batches[0], 2)
}

func TestAlert_ThresholdTriggersEarlyFlush(t *testing.T) {
	pub := &capturePublisher{}
	d := newTestDispatcher(pub, 2)
	defer d.Close()

	ctx := context.Background()
	require.NoError(t, d.Alert(ctx, "reward_gap", "gap", nil))
	assert.Equal(t, 0, pub.batchCount())

	require.NoError(t, d.Alert(ctx, "numeric_anomaly", "nan", nil))
	assert.Equal(t, 1, pub.batchCount(), "second unique alert hits the threshold")
	assert.Equal(t, "barpilot.alerts", pub.topics[0])
}

func TestClose_FlushesPendingAlerts(t *testing.T) {
	pub := &capturePublisher{}
	d := newTestDispatcher(pub, 100)

	require.NoError(t, d.Alert(context.Background(), "stale_data", "old", nil))
	d.Close()

	assert.Equal(t, 1, pub.batchCount())
}

func TestAlert_NilPublisherDropsBatchesQuietly(t *testing.T) {
	d := newTestDispatcher(nil, 1)
	require.NoError(t, d.Alert(context.Background(), "stale_data", "old", nil))
	d.Close()
}
