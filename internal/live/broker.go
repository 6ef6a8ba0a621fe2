// Package live fans newly created messages out to connected subscribers,
// keyed by recipient role id. Delivery is at-most-once and best-effort:
// nothing is buffered beyond a small per-subscriber channel, nothing is
// retried, and a disconnected recipient recovers via the REST backlog.
package live

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultHeartbeat = 15 * time.Second

// subscriberBuffer absorbs short bursts; a subscriber that stays this far
// behind is considered dead and dropped.
const subscriberBuffer = 16

// Event is one typed frame on a subscription. Consumers must ignore types
// they do not recognize.
type Event struct {
	Type    string
	Payload any
}

// Subscriber is one open live-channel registration. Events arrive on
// Events(); the channel closes when the subscription ends, for any reason.
type Subscriber struct {
	RoleID string

	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *Subscriber) Events() <-chan Event { return s.ch }

func (s *Subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		close(s.ch)
	})
}

// Broker is the subscription registry. It is constructed once per process
// and injected wherever publishing happens; multiple independent brokers
// coexist fine (each test gets its own).
type Broker struct {
	mu        sync.RWMutex
	subs      map[string]map[*Subscriber]struct{}
	closed    bool
	heartbeat time.Duration
	logger    *zap.Logger
}

func NewBroker(logger *zap.Logger) *Broker {
	return &Broker{
		subs:      make(map[string]map[*Subscriber]struct{}),
		heartbeat: defaultHeartbeat,
		logger:    logger,
	}
}

// NewBrokerWithHeartbeat exists for tests that cannot wait 15 seconds.
func NewBrokerWithHeartbeat(logger *zap.Logger, heartbeat time.Duration) *Broker {
	b := NewBroker(logger)
	b.heartbeat = heartbeat
	return b
}

// Subscribe registers a new subscription for roleID. Any number of
// simultaneous subscriptions per role is allowed (multiple open tabs).
// The first event on the channel is the connection acknowledgement.
func (b *Broker) Subscribe(roleID string) *Subscriber {
	sub := &Subscriber{
		RoleID: roleID,
		ch:     make(chan Event, subscriberBuffer),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub
	}
	set := b.subs[roleID]
	if set == nil {
		set = make(map[*Subscriber]struct{})
		b.subs[roleID] = set
	}
	set[sub] = struct{}{}
	// Ack while still holding the lock: the buffer is empty so the send
	// cannot block, and a concurrent Close cannot slip in between.
	sub.ch <- Event{Type: "ready", Payload: time.Now().UnixMilli()}
	b.mu.Unlock()

	go b.heartbeatLoop(sub)

	b.logger.Debug("live subscription opened", zap.String("role_id", roleID))
	return sub
}

// Publish delivers an event to every live subscription for roleID. A
// subscriber whose buffer is full is dropped on the spot without
// affecting the others. Publishing to a role with no subscribers is a
// no-op; failures are invisible to the caller.
func (b *Broker) Publish(roleID, eventType string, payload any) {
	ev := Event{Type: eventType, Payload: payload}

	b.mu.RLock()
	var dead []*Subscriber
	for sub := range b.subs[roleID] {
		select {
		case sub.ch <- ev:
		default:
			dead = append(dead, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range dead {
		b.logger.Warn("dropping stalled live subscriber", zap.String("role_id", roleID))
		b.Unsubscribe(sub)
	}
}

// Unsubscribe removes the subscription and closes its event channel.
// Safe to call more than once; the registry entry for a role disappears
// with its last subscription.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	set, ok := b.subs[sub.RoleID]
	if ok {
		if _, member := set[sub]; member {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, sub.RoleID)
			}
		}
	}
	b.mu.Unlock()

	sub.close()
	b.logger.Debug("live subscription closed", zap.String("role_id", sub.RoleID))
}

// Close drops every subscription. Used at server shutdown.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	var all []*Subscriber
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.subs = make(map[string]map[*Subscriber]struct{})
	b.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
}

func (b *Broker) heartbeatLoop(sub *Subscriber) {
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			return
		case <-ticker.C:
			if !b.ping(sub) {
				b.Unsubscribe(sub)
				return
			}
		}
	}
}

// ping emits a heartbeat so intermediaries do not time the connection
// out. A subscriber that cannot even take a ping is dead.
func (b *Broker) ping(sub *Subscriber) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, member := b.subs[sub.RoleID][sub]; !member {
		return false
	}
	select {
	case sub.ch <- Event{Type: "ping", Payload: time.Now().UnixMilli()}:
		return true
	default:
		return false
	}
}

// subscriberCount is test support.
func (b *Broker) subscriberCount(roleID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[roleID])
}

// roleCount is test support.
func (b *Broker) roleCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
