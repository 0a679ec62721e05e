package pairing

import (
	"sync"

	"github.com/golang/glog"
)

// LifecycleKind classifies an external event the controller emits
// (spec §4.G): proposed, responded, settled, updated, deleted, payload.
type LifecycleKind int

const (
	Proposed LifecycleKind = iota
	Responded
	Settled_
	Updated
	Deleted
	Payload
)

func (k LifecycleKind) String() string {
	switch k {
	case Proposed:
		return "proposed"
	case Responded:
		return "responded"
	case Settled_:
		return "settled"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	case Payload:
		return "payload"
	default:
		return "unknown"
	}
}

// LifecycleEvent is delivered to every listener registered via
// Controller.Events.
type LifecycleEvent struct {
	Kind    LifecycleKind
	Topic   string
	Pending *Pending // set for Proposed, Responded
	Settled *Settled // set for Settled_, Updated, Deleted, Payload
	Reason  string   // set for Deleted
	Payload []byte   // set for Payload
}

// emitter fans a stream of LifecycleEvents out to any number of
// registered listeners, mirroring subscription.Store's own listener
// bookkeeping (mutex-guarded slice of buffered channels) rather than
// introducing a second pattern for the same problem.
type emitter struct {
	mu   sync.Mutex
	subs []chan LifecycleEvent
}

func newEmitter() *emitter {
	return &emitter{}
}

func (e *emitter) subscribe() (<-chan LifecycleEvent, func()) {
	ch := make(chan LifecycleEvent, 64)
	e.mu.Lock()
	e.subs = append(e.subs, ch)
	e.mu.Unlock()

	unsub := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, c := range e.subs {
			if c == ch {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsub
}

func (e *emitter) emit(ev LifecycleEvent) {
	e.mu.Lock()
	subs := append([]chan LifecycleEvent(nil), e.subs...)
	e.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			glog.V(1).Infof("pairing: event listener saturated, dropping %s event for topic=%s", ev.Kind, ev.Topic)
		}
	}
}
