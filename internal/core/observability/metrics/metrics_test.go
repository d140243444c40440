package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/navsim/internal/core/events/bus"
)

func TestCounterConcurrent(t *testing.T) {
	var c Counter
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				c.Inc()
			}
		}()
	}
	wg.Wait()
	c.Add(5)
	assert.Equal(t, uint64(8005), c.Value())
}

func TestHistogram(t *testing.T) {
	var h Histogram
	assert.Equal(t, HistogramSnapshot{}, h.Snapshot())

	for _, v := range []float64{4, -1, 9} {
		h.Observe(v)
	}
	s := h.Snapshot()
	assert.Equal(t, uint64(3), s.Count)
	assert.Equal(t, 12.0, s.Sum)
	assert.Equal(t, 4.0, s.Mean)
	assert.Equal(t, -1.0, s.Min)
	assert.Equal(t, 9.0, s.Max)

	h.Reset()
	assert.Equal(t, HistogramSnapshot{}, h.Snapshot())
}

func TestBusObserverWithBus(t *testing.T) {
	obs := NewBusObserver()
	b := bus.New()
	b.AddObserver(obs)

	_, err := b.Subscribe("ok", func(bus.Event) error { return nil })
	require.NoError(t, err)
	_, err = b.Subscribe("bad", func(bus.Event) error { return errors.New("boom") })
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, b.Publish(bus.NewEvent("ok", "test", now, nil)))
	require.NoError(t, b.Publish(bus.NewEvent("ok", "test", now, nil)))
	require.Error(t, b.Publish(bus.NewEvent("bad", "test", now, nil)))

	s := obs.Snapshot()
	assert.Equal(t, map[string]uint64{"ok": 2, "bad": 1}, s.Published)
	assert.Equal(t, map[string]uint64{"bad": 1}, s.Failed)
	assert.Equal(t, uint64(3), s.DeliveryMicros.Count)

	// The bus keeps its own totals while an observer is attached.
	assert.Equal(t, uint64(3), b.GetMetrics().Published)
	assert.Equal(t, uint64(1), b.GetMetrics().Errors)
}
