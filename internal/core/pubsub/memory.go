package pubsub

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrBusClosed is returned by operations on a closed bus.
var ErrBusClosed = errors.New("pubsub: bus closed")

const memoryBufSize = 100

// MemoryBus is an in-process bus for single-node deployments and tests.
type MemoryBus struct {
	prefix string

	mu     sync.RWMutex
	subs   map[uint64]*memorySub
	nextID uint64
	closed atomic.Bool
	wg     sync.WaitGroup
}

type memorySub struct {
	pattern string
	events  chan memoryEvent
}

type memoryEvent struct {
	subject string
	data    []byte
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus(prefix string) *MemoryBus {
	return &MemoryBus{prefix: prefix, subs: make(map[uint64]*memorySub)}
}

// Publish delivers to every matching subscriber. A subscriber whose buffer
// is full misses the event rather than blocking the publisher.
func (b *MemoryBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if b.prefix != "" {
		subject = b.prefix + "." + subject
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !matchSubject(sub.pattern, subject) {
			continue
		}
		select {
		case sub.events <- memoryEvent{subject: subject, data: data}:
		default:
		}
	}
	return nil
}

// Subscribe registers a handler. Each subscription gets its own delivery
// goroutine so one slow handler cannot starve the others.
func (b *MemoryBus) Subscribe(pattern string, h Handler) (func(), error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	if b.prefix != "" {
		pattern = b.prefix + "." + pattern
	}

	sub := &memorySub{pattern: pattern, events: make(chan memoryEvent, memoryBufSize)}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range sub.events {
			h(ev.subject, ev.data)
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.events)
			}
			b.mu.Unlock()
		})
	}
	return unsubscribe, nil
}

// Close stops delivery and waits for in-flight handlers to return.
func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.events)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// matchSubject reports whether a subject matches a NATS-style pattern:
// "*" matches a single token, ">" matches one or more trailing tokens.
// Tokens are consumed pairwise off both strings without allocating slices.
func matchSubject(pattern, subject string) bool {
	if pattern == "" || subject == "" {
		return false
	}

	for pattern != "" && subject != "" {
		if pattern == ">" {
			return true
		}
		var pt, st string
		pt, pattern, _ = strings.Cut(pattern, ".")
		st, subject, _ = strings.Cut(subject, ".")
		if pt != "*" && pt != st {
			return false
		}
	}
	return pattern == "" && subject == ""
}
