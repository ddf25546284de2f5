package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrClosed indicates the bus has been closed.
var ErrClosed = errors.New("feed closed")

// Handler receives published messages. Each subscription calls its handler
// from a single goroutine, in publish order.
type Handler[T any] func(ctx context.Context, topic string, msg T)

// Config configures bus behavior.
type Config struct {
	// BufferSize is the channel buffer size per subscription.
	// Default: 64
	BufferSize int

	// NonBlocking makes Publish drop messages for subscribers whose buffer
	// is full instead of waiting.
	NonBlocking bool

	// OnDrop is called when a message is dropped (non-blocking mode).
	OnDrop func(topic, subscriberID string)
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	BufferSize: 64,
}

// Bus is an in-memory topic bus.
type Bus[T any] struct {
	config Config

	mu     sync.RWMutex
	subs   map[string]*Subscription[T]
	topics map[string]map[string]*Subscription[T] // topic -> subscription ID -> subscription
	all    map[string]*Subscription[T]

	closed  atomic.Bool
	closeCh chan struct{}
}

// NewBus creates a bus.
func NewBus[T any](config Config) *Bus[T] {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig.BufferSize
	}
	return &Bus[T]{
		config:  config,
		subs:    make(map[string]*Subscription[T]),
		topics:  make(map[string]map[string]*Subscription[T]),
		all:     make(map[string]*Subscription[T]),
		closeCh: make(chan struct{}),
	}
}

type envelope[T any] struct {
	topic string
	msg   T
}

// Subscription is an active subscription.
type Subscription[T any] struct {
	id      string
	topics  []string
	handler Handler[T]
	queue   chan envelope[T]
	done    chan struct{}
	once    sync.Once
	bus     *Bus[T]
}

// ID returns the subscriber id.
func (s *Subscription[T]) ID() string { return s.id }

// Publish delivers msg to subscribers of topic and to subscribers of all
// topics. In blocking mode it waits for buffer space until ctx ends.
func (b *Bus[T]) Publish(ctx context.Context, topic string, msg T) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.RLock()
	subs := make([]*Subscription[T], 0, len(b.topics[topic])+len(b.all))
	for _, sub := range b.topics[topic] {
		subs = append(subs, sub)
	}
	for _, sub := range b.all {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	env := envelope[T]{topic: topic, msg: msg}
	for _, sub := range subs {
		if b.config.NonBlocking {
			select {
			case sub.queue <- env:
			case <-sub.done:
			default:
				if b.config.OnDrop != nil {
					b.config.OnDrop(topic, sub.id)
				}
			}
			continue
		}

		select {
		case sub.queue <- env:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closeCh:
			return ErrClosed
		}
	}
	return nil
}

// Subscribe registers handler for the given topics. No topics subscribes
// to everything. It returns ErrClosed after Close.
func (b *Bus[T]) Subscribe(handler Handler[T], topics ...string) (*Subscription[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub := &Subscription[T]{
		id:      uuid.NewString(),
		topics:  topics,
		handler: handler,
		queue:   make(chan envelope[T], b.config.BufferSize),
		done:    make(chan struct{}),
		bus:     b,
	}
	b.subs[sub.id] = sub
	if len(topics) == 0 {
		b.all[sub.id] = sub
	}
	for _, t := range topics {
		if b.topics[t] == nil {
			b.topics[t] = make(map[string]*Subscription[T])
		}
		b.topics[t][sub.id] = sub
	}

	go sub.process()
	return sub, nil
}

// Len returns the number of active subscriptions.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops every subscription. Queued messages are discarded.
func (b *Bus[T]) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.closeCh)

	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscription[T])
	b.topics = make(map[string]map[string]*Subscription[T])
	b.all = make(map[string]*Subscription[T])
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return nil
}

// Unsubscribe removes the subscription. It is safe to call more than once.
func (s *Subscription[T]) Unsubscribe() {
	b := s.bus
	b.mu.Lock()
	delete(b.subs, s.id)
	delete(b.all, s.id)
	for _, t := range s.topics {
		if subs, ok := b.topics[t]; ok {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(b.topics, t)
			}
		}
	}
	b.mu.Unlock()

	s.stop()
}

func (s *Subscription[T]) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription[T]) process() {
	for {
		select {
		case env := <-s.queue:
			s.handler(context.Background(), env.topic, env.msg)
		case <-s.done:
			return
		}
	}
}
