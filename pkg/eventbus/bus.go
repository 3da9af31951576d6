package eventbus

import "sync"

// subscriberQueueDepth bounds each subscriber's buffered channel. When a
// subscriber lags behind, the bus drops the oldest undelivered event for
// that subscription rather than blocking the publisher.
const subscriberQueueDepth = 64

// Bus fans typed events out to subscribers. Delivery is at-most-once per
// subscriber and never blocks the publishing goroutine.
type Bus struct {
	mu                sync.RWMutex
	progressSubs      map[int]chan IndexProgress
	objectCompleteSub map[int]chan ObjectCompleted
	requestMetricSubs map[int]chan RequestMetric
	nextID            int
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{
		progressSubs:      make(map[int]chan IndexProgress),
		objectCompleteSub: make(map[int]chan ObjectCompleted),
		requestMetricSubs: make(map[int]chan RequestMetric),
	}
}

// Unsubscribe is returned by every Subscribe* call; invoke it to stop
// receiving events and release the subscription's channel.
type Unsubscribe func()

// SubscribeIndexProgress registers a new subscriber for IndexProgress
// events and returns the channel to receive on plus an unsubscribe func.
func (b *Bus) SubscribeIndexProgress() (<-chan IndexProgress, Unsubscribe) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan IndexProgress, subscriberQueueDepth)
	b.progressSubs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.progressSubs[id]; ok {
			delete(b.progressSubs, id)
			close(c)
		}
	}
}

// SubscribeObjectCompleted registers a new subscriber for ObjectCompleted events.
func (b *Bus) SubscribeObjectCompleted() (<-chan ObjectCompleted, Unsubscribe) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan ObjectCompleted, subscriberQueueDepth)
	b.objectCompleteSub[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.objectCompleteSub[id]; ok {
			delete(b.objectCompleteSub, id)
			close(c)
		}
	}
}

// SubscribeRequestMetric registers a new subscriber for RequestMetric events.
func (b *Bus) SubscribeRequestMetric() (<-chan RequestMetric, Unsubscribe) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan RequestMetric, subscriberQueueDepth)
	b.requestMetricSubs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.requestMetricSubs[id]; ok {
			delete(b.requestMetricSubs, id)
			close(c)
		}
	}
}

// PublishIndexProgress delivers ev to every current subscriber. A lagging
// subscriber has its oldest undelivered event dropped to make room.
func (b *Bus) PublishIndexProgress(ev IndexProgress) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.progressSubs {
		offerDropOldest(ch, ev)
	}
}

// PublishObjectCompleted delivers ev to every current subscriber.
func (b *Bus) PublishObjectCompleted(ev ObjectCompleted) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.objectCompleteSub {
		offerDropOldest(ch, ev)
	}
}

// PublishRequestMetric delivers ev to every current subscriber.
func (b *Bus) PublishRequestMetric(ev RequestMetric) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.requestMetricSubs {
		offerDropOldest(ch, ev)
	}
}

// offerDropOldest tries a non-blocking send; if the channel is full it
// discards the oldest queued value and retries once. A subscriber that is
// being drained concurrently simply gets ev dropped, which is acceptable
// under at-most-once delivery.
func offerDropOldest[T any](ch chan T, ev T) {
	select {
	case ch <- ev:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}

	select {
	case ch <- ev:
	default:
	}
}
