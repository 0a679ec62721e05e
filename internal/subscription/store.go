// Package subscription implements the keyed record store spec.md §4.A
// treats as an external collaborator: a topic-keyed store that emits
// lifecycle events and performs decryption at the boundary between
// the relay and the pairing controller.
//
// The shape — a mutex-guarded map paired with a container/list for
// bounded LRU eviction — is generalized from the teacher's
// internal/peer.Store and internal/peer.InviteStore, which pair a
// map[string]*list.Element with a *list.List for the same reason.
package subscription

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"pairing/internal/cryptoprim"
	"pairing/internal/relay"
)

// EventKind classifies a lifecycle event a Store emits.
type EventKind int

const (
	EventCreated EventKind = iota
	EventUpdated
	EventDeleted
	EventPayload
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventDeleted:
		return "deleted"
	case EventPayload:
		return "payload"
	default:
		return "unknown"
	}
}

// Event is delivered to every listener registered via Store.Subscribe.
type Event[T any] struct {
	Kind    EventKind
	Topic   string
	Record  T
	Reason  string // set on EventDeleted
	Payload []byte // set on EventPayload; already decrypted
}

// Keys is the encryption boundary configuration for one topic: either
// a self key pair (sealed-box topics, i.e. pending records awaiting a
// responder's reply) or a symmetric key (settled topics), never both.
type Keys struct {
	Self *cryptoprim.KeyPair
	Key  []byte
}

func (k Keys) decryptOptions() relay.DecryptOptions {
	return relay.DecryptOptions{Self: k.Self, Key: k.Key}
}

// SetOptions carries the relay descriptor and encryption boundary
// keys attached at Set time (spec §4.A).
type SetOptions struct {
	Relay relay.Descriptor
	Keys  Keys
}

var ErrNotFound = fmt.Errorf("subscription: topic not found")

type element[T any] struct {
	topic     string
	record    T
	opts      SetOptions
	createdAt time.Time
}

// Store is a generic topic-keyed record store with lifecycle events
// and an optional capacity bound with LRU eviction, generalizing
// internal/peer.Store's disk-backed cap+TTL LRU into a pure in-memory
// store (spec.md draws no persistence requirement into the core).
type Store[T any] struct {
	name string

	mu    sync.Mutex
	hot   map[string]*list.Element
	order *list.List
	cap   int

	subMu sync.Mutex
	subs  []chan Event[T]
}

// New constructs an empty Store. cap <= 0 means unbounded.
func New[T any](name string, cap int) *Store[T] {
	return &Store[T]{
		name:  name,
		hot:   make(map[string]*list.Element),
		order: list.New(),
		cap:   cap,
	}
}

// Init exists for parity with the external Subscription contract of
// spec §4.A; the in-memory store has nothing to load, so it is a
// no-op reserved for future disk-backed implementations.
func (s *Store[T]) Init(ctx context.Context) error {
	return nil
}

// Get returns the record stored at topic, or ErrNotFound.
func (s *Store[T]) Get(topic string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.hot[topic]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrNotFound, topic)
	}
	return el.Value.(*element[T]).record, nil
}

// Set inserts or replaces the record at topic and emits created (new
// topic) or updated (existing topic).
func (s *Store[T]) Set(topic string, record T, opts SetOptions) {
	s.mu.Lock()
	kind := EventCreated
	var evicted []string
	if el, ok := s.hot[topic]; ok {
		kind = EventUpdated
		el.Value.(*element[T]).record = record
		el.Value.(*element[T]).opts = opts
		s.order.MoveToFront(el)
	} else {
		if s.cap > 0 && len(s.hot) >= s.cap {
			evicted = s.evictLocked(len(s.hot) - s.cap + 1)
		}
		el := s.order.PushFront(&element[T]{topic: topic, record: record, opts: opts, createdAt: time.Now()})
		s.hot[topic] = el
	}
	s.mu.Unlock()

	for _, t := range evicted {
		glog.V(1).Infof("subscription/%s: evicted topic=%s (capacity)", s.name, t)
		s.emit(Event[T]{Kind: EventDeleted, Topic: t, Reason: "evicted"})
	}
	s.emit(Event[T]{Kind: kind, Topic: topic, Record: record})
}

func (s *Store[T]) evictLocked(n int) []string {
	var out []string
	for n > 0 {
		el := s.order.Back()
		if el == nil {
			return out
		}
		e := el.Value.(*element[T])
		delete(s.hot, e.topic)
		s.order.Remove(el)
		out = append(out, e.topic)
		n--
	}
	return out
}

// Update applies mutate to the record at topic and emits updated. It
// fails with ErrNotFound if topic is absent.
func (s *Store[T]) Update(topic string, mutate func(*T)) error {
	s.mu.Lock()
	el, ok := s.hot[topic]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, topic)
	}
	e := el.Value.(*element[T])
	mutate(&e.record)
	record := e.record
	s.order.MoveToFront(el)
	s.mu.Unlock()

	s.emit(Event[T]{Kind: EventUpdated, Topic: topic, Record: record})
	return nil
}

// Delete removes the record at topic and emits deleted with reason.
// Deleting an absent topic is not an error: late acknowledgements
// racing a prior deletion must be tolerated (spec §5).
func (s *Store[T]) Delete(topic string, reason string) {
	s.mu.Lock()
	el, ok := s.hot[topic]
	var record T
	if ok {
		record = el.Value.(*element[T]).record
		delete(s.hot, topic)
		s.order.Remove(el)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.emit(Event[T]{Kind: EventDeleted, Topic: topic, Record: record, Reason: reason})
}

// Entries returns a defensive copy of every record in the store, in
// most-recently-touched-first order.
func (s *Store[T]) Entries() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*element[T]).record)
	}
	return out
}

// Length reports the number of records currently stored.
func (s *Store[T]) Length() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hot)
}

// Topics returns every topic currently stored, in no particular order.
func (s *Store[T]) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.hot))
	for t := range s.hot {
		out = append(out, t)
	}
	return out
}

// HandleInbound decrypts a raw relay delivery for topic using the
// keys registered at Set time and emits a payload event. Records
// without a matching entry are dropped with a warning: the relay may
// legitimately deliver a message after the subscription store has
// already deleted the topic (a race spec §5 requires tolerating, not
// crashing on).
func (s *Store[T]) HandleInbound(topic string, raw []byte) {
	s.mu.Lock()
	el, ok := s.hot[topic]
	var opts SetOptions
	if ok {
		opts = el.Value.(*element[T]).opts
	}
	s.mu.Unlock()
	if !ok {
		glog.V(1).Infof("subscription/%s: inbound message for unknown topic=%s, dropping", s.name, topic)
		return
	}

	payload, err := relay.OpenDelivery(raw, opts.Keys.decryptOptions())
	if err != nil {
		glog.Warningf("subscription/%s: failed to decrypt inbound message for topic=%s: %v", s.name, topic, err)
		return
	}

	record, _ := s.Get(topic)
	s.emit(Event[T]{Kind: EventPayload, Topic: topic, Record: record, Payload: payload})
}

// Subscribe registers a listener for every lifecycle event this store
// emits. The returned function unregisters it. Buffered so a slow
// listener cannot deadlock Set/Update/Delete callers — a listener
// that cannot keep up will observe drops logged at V(1), matching the
// teacher's own saturated-channel handling in internal/debuglog.
func (s *Store[T]) Subscribe() (<-chan Event[T], func()) {
	ch := make(chan Event[T], 64)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()

	unsub := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, c := range s.subs {
			if c == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsub
}

func (s *Store[T]) emit(ev Event[T]) {
	s.subMu.Lock()
	subs := append([]chan Event[T](nil), s.subs...)
	s.subMu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			glog.V(1).Infof("subscription/%s: listener saturated, dropping %s event for topic=%s", s.name, ev.Kind, ev.Topic)
		}
	}
}
