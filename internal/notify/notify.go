// Package notify implements named, fire-and-forget notification channels.
//
// A mutation publishes on the channel of the collection it wrote as the
// primary write. Mirrored writes made by the link synchronizer never
// publish. Publishing never blocks: a subscriber whose buffer is full
// misses the event and the drop is counted.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/riskctl/internal/metrics"
	"github.com/roach88/riskctl/internal/record"
)

// Channel names.
const (
	TopicRisks    = "risks-updated"
	TopicControls = "controls-updated"
)

// DefaultBuffer is the per-subscriber buffer size.
const DefaultBuffer = 16

// TopicFor returns the channel for the collection holding kind.
func TopicFor(kind record.Kind) string {
	if kind == record.KindRisk {
		return TopicRisks
	}
	return TopicControls
}

// Event is one notification. Subscribers re-read the collection; the event
// only says which record changed and how.
type Event struct {
	Topic  string
	Action string
	ID     string
	At     time.Time
}

// Bus fans events out to subscribers of a topic.
//
// Thread-safety: all methods are safe for concurrent use.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[uint64]chan Event
	nextID  uint64
	buffer  int
	closed  bool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets the per-subscriber buffer size (minimum 1).
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n < 1 {
			n = 1
		}
		b.buffer = n
	}
}

// WithMetrics counts dropped notifications.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// WithLogger sets the logger used for drop reports.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[string]map[uint64]chan Event),
		buffer: DefaultBuffer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a subscriber on topic. The returned cancel function
// unsubscribes and closes the channel; calling it twice is safe.
// Subscribing to a closed bus returns an already-closed channel.
func (b *Bus) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]chan Event)
	}
	b.subs[topic][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[topic][id]; ok {
				delete(b.subs[topic], id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber of topic without blocking and
// returns how many received it. ev.Topic is overwritten with topic.
func (b *Bus) Publish(topic string, ev Event) int {
	if b == nil {
		return 0
	}
	ev.Topic = topic

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	delivered := 0
	for _, ch := range b.subs[topic] {
		// Non-blocking: a slow subscriber never stalls a mutation
		select {
		case ch <- ev:
			delivered++
		default:
			b.metrics.NotificationDropped(topic)
			b.logger.Debug("notification dropped", "topic", topic, "id", ev.ID)
		}
	}
	return delivered
}

// Subscribers returns the number of live subscribers on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(b.subs, topic)
	}
}
