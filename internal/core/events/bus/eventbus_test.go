package bus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testObserver struct {
	mu             sync.Mutex
	publishCount   int
	deliveredCount int
	lastErr        error
}

func (o *testObserver) OnPublish(_ string, _ Event) {
	o.mu.Lock()
	o.publishCount++
	o.mu.Unlock()
}

func (o *testObserver) OnDelivered(_ string, handlers int, err error, _ int64) {
	o.mu.Lock()
	o.deliveredCount += handlers
	o.lastErr = err
	o.mu.Unlock()
}

func TestBasicPublishSubscribe(t *testing.T) {
	b := New()
	var got Event
	_, err := b.Subscribe("sim.frame", func(e Event) error {
		got = e
		return nil
	})
	require.NoError(t, err)

	stamp := time.Unix(10, 0)
	require.NoError(t, b.Publish(NewEvent("sim.frame", "tester", stamp, 123)))
	require.NotNil(t, got)
	assert.Equal(t, 123, got.Data())
	assert.Equal(t, "tester", got.Source())
	assert.Equal(t, stamp, got.Timestamp())
}

func TestNewEventDefaultsTimestamp(t *testing.T) {
	e := NewEvent("x", "src", time.Time{}, nil)
	assert.WithinDuration(t, time.Now(), e.Timestamp(), time.Second)
}

func TestDeliveryInSubscriptionOrder(t *testing.T) {
	b := New()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		_, err := b.Subscribe("ev", func(Event) error { order = append(order, i); return nil })
		require.NoError(t, err)
	}
	require.NoError(t, b.Publish(NewEvent("ev", "src", time.Time{}, nil)))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestHandlerErrorsAreJoined(t *testing.T) {
	b := New()
	errA := errors.New("a")
	errB := errors.New("b")
	calls := 0
	_, _ = b.Subscribe("ev", func(Event) error { calls++; return errA })
	_, _ = b.Subscribe("ev", func(Event) error { calls++; return nil })
	_, _ = b.Subscribe("ev", func(Event) error { calls++; return errB })

	err := b.Publish(NewEvent("ev", "src", time.Time{}, nil))
	assert.Equal(t, 3, calls, "a failing handler does not stop delivery")
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	count := 0
	sub, err := b.Subscribe("ev", func(Event) error { count++; return nil })
	require.NoError(t, err)
	assert.True(t, sub.IsActive())
	assert.NotEmpty(t, sub.ID())
	assert.Equal(t, "ev", sub.EventType())

	_ = b.Publish(NewEvent("ev", "src", time.Time{}, nil))
	require.NoError(t, b.Unsubscribe(sub))
	require.NoError(t, sub.Cancel(), "cancel twice is safe")
	assert.False(t, sub.IsActive())
	_ = b.Publish(NewEvent("ev", "src", time.Time{}, nil))

	assert.Equal(t, 1, count)
	assert.NoError(t, b.Unsubscribe(nil))
}

func TestSubscribeNilHandler(t *testing.T) {
	_, err := New().Subscribe("ev", nil)
	assert.Error(t, err)
}

func TestFiltersDropSilently(t *testing.T) {
	b := New()
	obs := &testObserver{}
	b.AddObserver(obs)

	count := 0
	_, _ = b.Subscribe("ev", func(Event) error { count++; return nil })

	reject := func(Event) bool { return false }
	accept := func(Event) bool { return true }
	require.NoError(t, b.PublishWithFilters(NewEvent("ev", "s", time.Time{}, nil), accept, reject))
	require.NoError(t, b.PublishWithFilters(NewEvent("ev", "s", time.Time{}, nil), accept))

	assert.Equal(t, 1, count)
	assert.Equal(t, uint64(1), b.GetMetrics().DroppedByFilters)
}

func TestObserverMetricsOptional(t *testing.T) {
	b := New()
	_, _ = b.Subscribe("e", func(e Event) error { return nil })
	_ = b.Publish(NewEvent("e", "s", time.Time{}, nil))
	assert.Equal(t, EventBusMetrics{}, b.GetMetrics(), "no metrics without observers")

	obs := &testObserver{}
	b.AddObserver(obs)
	_ = b.Publish(NewEvent("e", "s", time.Time{}, nil))

	m := b.GetMetrics()
	assert.Equal(t, uint64(1), m.Published)
	assert.Equal(t, uint64(1), m.DeliveredHandlers)
	assert.Equal(t, uint64(1), m.SubscribersActive)
	assert.Equal(t, 1, obs.publishCount)
	assert.Equal(t, 1, obs.deliveredCount)

	b.RemoveObserver(obs)
	_ = b.Publish(NewEvent("e", "s", time.Time{}, nil))
	assert.Equal(t, 1, obs.publishCount)
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub, _ := b.Subscribe("ev", func(Event) error { return nil })
			_ = sub.Cancel()
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = b.Publish(NewEvent("ev", "s", time.Time{}, j))
			}
		}()
	}
	wg.Wait()
}
