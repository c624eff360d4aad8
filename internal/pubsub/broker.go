package pubsub

import (
	"context"
	"sync"
	"time"
)

// DefaultBuffer is the per-listener queue length used by NewBroker.
const DefaultBuffer = 64

type listener[T any] struct {
	out    chan Event[T]
	missed uint64
}

// Broker delivers each Publish to every current listener. A listener whose
// queue is full misses the event; the miss is reported on its next Event.
type Broker[T any] struct {
	mu        sync.Mutex
	listeners map[*listener[T]]struct{}
	seq       uint64
	buffer    int
	closed    bool

	// shutdown is cancelled by Close and releases the per-listener watchers.
	shutdown context.Context
	stop     context.CancelFunc
}

// NewBroker returns a Broker with DefaultBuffer per listener.
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](DefaultBuffer)
}

// NewBrokerWithBuffer returns a Broker with the given per-listener buffer,
// raised to 1 if smaller.
func NewBrokerWithBuffer[T any](buffer int) *Broker[T] {
	ctx, stop := context.WithCancel(context.Background())
	return &Broker[T]{
		listeners: map[*listener[T]]struct{}{},
		buffer:    max(buffer, 1),
		shutdown:  ctx,
		stop:      stop,
	}
}

// Subscribe registers a listener until ctx ends or the broker closes, at
// which point the returned channel is closed. Subscribing to a closed
// broker yields an already-closed channel.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	l := &listener[T]{out: make(chan Event[T], b.buffer)}
	if b.closed {
		close(l.out)
		return l.out
	}
	b.listeners[l] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			b.drop(l)
		case <-b.shutdown.Done():
		}
	}()
	return l.out
}

func (b *Broker[T]) drop(l *listener[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.listeners[l]; ok {
		delete(b.listeners, l)
		close(l.out)
	}
}

// Publish stamps and enqueues the event for every listener. It never
// blocks on a listener.
func (b *Broker[T]) Publish(kind EventType, payload T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.seq++
	at := time.Now()
	for l := range b.listeners {
		ev := Event[T]{Type: kind, Payload: payload, Timestamp: at, Seq: b.seq, Dropped: l.missed}
		select {
		case l.out <- ev:
			l.missed = 0
		default:
			l.missed++
		}
	}
}

// Close closes every listener channel. Later calls do nothing.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.stop()
	for l := range b.listeners {
		close(l.out)
	}
	clear(b.listeners)
}

// SubscriberCount reports how many listeners are registered.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
