package perf

import "sync"

// SampleBroadcaster fans out sample events to subscribers. Publish is
// non-blocking: a slow subscriber misses samples but never blocks the
// collector, per §4.8.
type SampleBroadcaster struct {
	mu       sync.Mutex
	capacity int
	subs     map[chan SampleEvent]struct{}
}

func NewSampleBroadcaster(capacity int) *SampleBroadcaster {
	if capacity < 1 {
		capacity = 64
	}
	return &SampleBroadcaster{capacity: capacity, subs: make(map[chan SampleEvent]struct{})}
}

func (b *SampleBroadcaster) Subscribe() (<-chan SampleEvent, func()) {
	ch := make(chan SampleEvent, b.capacity)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

func (b *SampleBroadcaster) Publish(ev SampleEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is behind; drop this sample for it rather than
			// block the collector.
		}
	}
}
