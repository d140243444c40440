package metrics

import (
	"sync"

	"github.com/zeusync/navsim/internal/core/events/bus"
)

var _ bus.EventBusObserver = (*BusObserver)(nil)

// BusObserver counts publications per event type and times deliveries.
// Registering it also switches on the bus's own metrics.
type BusObserver struct {
	mu        sync.RWMutex
	published map[string]*Counter
	failed    map[string]*Counter
	latency   Histogram
}

func NewBusObserver() *BusObserver {
	return &BusObserver{
		published: make(map[string]*Counter),
		failed:    make(map[string]*Counter),
	}
}

func (o *BusObserver) OnPublish(eventType string, _ bus.Event) {
	o.counter(o.published, eventType).Inc()
}

func (o *BusObserver) OnDelivered(eventType string, _ int, err error, durationMicros int64) {
	o.latency.Observe(float64(durationMicros))
	if err != nil {
		o.counter(o.failed, eventType).Inc()
	}
}

func (o *BusObserver) counter(m map[string]*Counter, key string) *Counter {
	o.mu.RLock()
	c, ok := m[key]
	o.mu.RUnlock()
	if ok {
		return c
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok = m[key]; !ok {
		c = &Counter{}
		m[key] = c
	}
	return c
}

type BusSnapshot struct {
	Published map[string]uint64 `json:"published"`
	Failed    map[string]uint64 `json:"failed"`
	// DeliveryMicros summarises the time Publish spends in handlers.
	DeliveryMicros HistogramSnapshot `json:"delivery_micros"`
}

func (o *BusObserver) Snapshot() BusSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := BusSnapshot{
		Published:      make(map[string]uint64, len(o.published)),
		Failed:         make(map[string]uint64, len(o.failed)),
		DeliveryMicros: o.latency.Snapshot(),
	}
	for k, c := range o.published {
		s.Published[k] = c.Value()
	}
	for k, c := range o.failed {
		s.Failed[k] = c.Value()
	}
	return s
}
