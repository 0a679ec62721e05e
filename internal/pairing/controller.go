package pairing

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"pairing/internal/cryptoprim"
	"pairing/internal/jsonrpc"
	"pairing/internal/relay"
	"pairing/internal/subscription"
)

// Controller is the pairing protocol state machine (spec §4): it owns
// the pending and settled stores, the relay client both are bound to,
// and the background goroutines that route inbound relay traffic into
// store events and store events into published replies. Its shape —
// one long-lived struct wiring a handful of collaborator stores to a
// transport, started once and driven by goroutines reading channels —
// follows the teacher's own daemon supervisor (internal/daemon.connMan)
// more than any single pairing-specific precedent, because spec.md
// itself treats the controller as an orchestrator over external
// collaborators (relay, stores) rather than a monolith.
type Controller struct {
	ctx    context.Context
	cancel context.CancelFunc

	relay   relay.Client
	pending *subscription.Store[Pending]
	settled *subscription.Store[Settled]
	replay  *respondReplayCache
	metrics *Metrics
	events  *emitter

	waitMu  sync.Mutex
	waiters map[string]chan awaitResult

	remoteMu      sync.Mutex
	remoteDeletes map[string]struct{}
}

type awaitResult struct {
	settled Settled
	err     error
}

// NewController wires a fresh Controller around client and starts its
// background event loops: one draining the pending store's events,
// one draining the settled store's events, and a ticking sweeper that
// expires stale proposals (SPEC_FULL supplemented feature 2). Callers
// own ctx's lifetime; canceling it (or calling Close) stops all three.
func NewController(ctx context.Context, client relay.Client) *Controller {
	cctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		ctx:           cctx,
		cancel:        cancel,
		relay:         client,
		pending:       subscription.New[Pending]("pending", 0),
		settled:       subscription.New[Settled]("settled", 0),
		replay:        newRespondReplayCache(),
		metrics:       newMetrics(),
		events:        newEmitter(),
		waiters:       make(map[string]chan awaitResult),
		remoteDeletes: make(map[string]struct{}),
	}

	pendingCh, _ := c.pending.Subscribe()
	settledCh, _ := c.settled.Subscribe()
	go c.runPendingEvents(pendingCh)
	go c.runSettledEvents(settledCh)
	go runAckSweeper(cctx, c.pending, 0)

	return c
}

// Close stops the store event loops and the sweeper. Any in-flight
// Await calls unblock with ctx.Err(). The goroutines reading relay
// subscriptions end when the relay client closes their channels.
func (c *Controller) Close() {
	c.cancel()
}

func (c *Controller) runPendingEvents(ch <-chan subscription.Event[Pending]) {
	for {
		select {
		case ev := <-ch:
			c.handlePendingEvent(ev)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Controller) runSettledEvents(ch <-chan subscription.Event[Settled]) {
	for {
		select {
		case ev := <-ch:
			c.handleSettledEvent(ev)
		case <-c.ctx.Done():
			return
		}
	}
}

// Propose is the proposer-side entry point (spec §4.B): it allocates a
// proposal topic and shareable URI, subscribes the relay for the
// eventual pairing_respond delivery, and returns immediately. Call
// Await with the returned record's Topic to block for the outcome.
func (c *Controller) Propose(ctx context.Context, params ProposeParams) (Pending, error) {
	record, err := propose(c.pending, params)
	if err != nil {
		return Pending{}, err
	}
	if err := c.subscribeRelayTopic(ctx, record.Topic, c.pending.HandleInbound); err != nil {
		c.pending.Delete(record.Topic, "subscribe_failed")
		return Pending{}, err
	}
	c.metrics.proposed.Add(1)
	c.emitLifecycle(LifecycleEvent{Kind: Proposed, Topic: record.Topic, Pending: &record})
	return record, nil
}

// Await blocks until the proposal at topic settles, fails, or expires,
// resolving exactly once regardless of how many times a replayed
// pairing_respond arrives on the relay (SPEC_FULL supplemented
// feature 3). Calling Await more than once for the same topic before
// it resolves shares the same result.
func (c *Controller) Await(ctx context.Context, topic string) (Settled, error) {
	c.waitMu.Lock()
	ch, ok := c.waiters[topic]
	if !ok {
		ch = make(chan awaitResult, 1)
		c.waiters[topic] = ch
	}
	c.waitMu.Unlock()

	select {
	case res := <-ch:
		// Hand the result on to any other Await blocked on this channel.
		select {
		case ch <- res:
		default:
		}
		return res.settled, res.err
	case <-ctx.Done():
		return Settled{}, ctx.Err()
	case <-c.ctx.Done():
		return Settled{}, c.ctx.Err()
	}
}

func (c *Controller) resolveWaiter(topic string, settled Settled, err error) {
	c.waitMu.Lock()
	ch, ok := c.waiters[topic]
	if ok {
		delete(c.waiters, topic)
	}
	c.waitMu.Unlock()
	if ok {
		ch <- awaitResult{settled: settled, err: err}
	}
}

// PairDecision is a responder's answer to an incoming proposal (spec
// §4.D): either accept with the responder's own metadata, or reject
// with a human-readable reason.
type PairDecision struct {
	Accept   bool
	Metadata map[string]any
	Reason   string
}

// responderProposal reconstructs the slice of a Proposal a responder
// can recover from the URI signal alone (spec §3): enough to keep a
// Pending record's Proposal field meaningful without pretending to
// know permissions or a TTL the proposer never put on the wire.
func responderProposal(parsed ParsedURI, uri string) Proposal {
	return Proposal{
		Topic:    parsed.Topic,
		Relay:    parsed.Relay,
		Proposer: Peer{PublicKey: parsed.PublicKey},
		Signal:   Signal{Method: "pairing_uri", Params: SignalParams{URI: uri}},
	}
}

// Pair is the responder-side entry point (spec §4.D: respond({approved,
// proposal}) → Pending). It parses a proposal URI obtained out of
// band, lets decide accept or reject it, and returns this side's own
// responded Pending record rather than a bare settled record or an
// error — a deliberate reject is data (Outcome.Success == false), not
// a Go error; only an infrastructure failure (malformed URI, key
// generation, publish) is.
//
// On acceptance it settles locally, seals a pairing_respond reply back
// to the proposer's public key before any shared key exists on the
// wire (spec §4.C, §4.D; internal/relay's SealOptions), and keeps its
// own Pending record around — keyed by the proposal topic, decrypted
// with the same sealed-box keys as the original signal — so the
// eventual acknowledgement from the proposer has state to land on
// (spec §4.E onAcknowledge).
func (c *Controller) Pair(ctx context.Context, uri string, decide func(ParsedURI) PairDecision) (Pending, error) {
	parsed, err := ParseURI(uri)
	if err != nil {
		return Pending{}, err
	}
	decision := decide(parsed)

	self, err := cryptoprim.GenerateKeyPair()
	if err != nil {
		return Pending{}, err
	}
	proposal := responderProposal(parsed, uri)

	if !decision.Accept {
		c.metrics.rejected.Add(1)
		reason := decision.Reason
		if reason == "" {
			reason = "rejected"
		}
		outcome := FailureOutcome(reason)
		if pubErr := c.publishRespond(ctx, parsed, self, outcome); pubErr != nil {
			return Pending{}, pubErr
		}
		return Pending{
			Status:    StatusResponded,
			Topic:     parsed.Topic,
			Relay:     parsed.Relay,
			Self:      self,
			Proposal:  proposal,
			Outcome:   &outcome,
			CreatedAt: time.Now(),
		}, nil
	}

	settledRec, err := settle(c.settled, SettleParams{
		Relay:       parsed.Relay,
		Self:        self,
		Peer:        Peer{PublicKey: parsed.PublicKey},
		Permissions: NewProposalPermissions(),
		TTL:         DefaultTTL,
	})
	if err != nil {
		return Pending{}, settlementFailure(parsed.Topic, err.Error())
	}
	if err := c.subscribeRelayTopic(ctx, settledRec.Topic, c.settled.HandleInbound); err != nil {
		return Pending{}, err
	}

	responder := Peer{PublicKey: self.PublicKey, Metadata: decision.Metadata}
	outcome := SuccessOutcome(settledRec.Topic, settledRec.Relay, responder, settledRec.Expiry)

	responded := Pending{
		Status:    StatusResponded,
		Topic:     parsed.Topic,
		Relay:     parsed.Relay,
		Self:      self,
		Proposal:  proposal,
		Outcome:   &outcome,
		CreatedAt: time.Now(),
	}
	c.pending.Set(parsed.Topic, responded, subscription.SetOptions{
		Relay: parsed.Relay,
		Keys:  subscription.Keys{Self: &self},
	})
	if err := c.subscribeRelayTopic(ctx, parsed.Topic, c.pending.HandleInbound); err != nil {
		return Pending{}, err
	}

	if err := c.publishRespond(ctx, parsed, self, outcome); err != nil {
		return Pending{}, err
	}

	c.metrics.settled.Add(1)
	c.emitLifecycle(LifecycleEvent{Kind: Settled_, Topic: settledRec.Topic, Settled: &settledRec})
	return responded, nil
}

func (c *Controller) publishRespond(ctx context.Context, parsed ParsedURI, self KeyPair, outcome Outcome) error {
	req, err := jsonrpc.NewRequest(jsonrpc.MethodPairingRespond, struct {
		Outcome Outcome `json:"outcome"`
	}{outcome})
	if err != nil {
		return err
	}
	raw, err := jsonrpc.Encode(req)
	if err != nil {
		return err
	}
	return c.relay.Publish(ctx, parsed.Topic, raw, relay.PublishOptions{
		Seal: &relay.SealOptions{Self: self, PeerPublicKey: parsed.PublicKey},
	})
}

// publishAck seals a JSON-RPC response back onto a pending topic —
// the proposer's acknowledgement of a pairing_respond it already
// consumed (spec §4.E onAcknowledge). It travels sealed to the
// responder's public key, mirroring the pairing_respond it answers,
// since a pending topic never carries a shared symmetric key.
func (c *Controller) publishAck(ctx context.Context, topic string, self KeyPair, peerPublicKey string, resp jsonrpc.Response) error {
	raw, err := jsonrpc.Encode(resp)
	if err != nil {
		return err
	}
	return c.relay.Publish(ctx, topic, raw, relay.PublishOptions{
		Seal: &relay.SealOptions{Self: self, PeerPublicKey: peerPublicKey},
	})
}

// Delete tears down a settled pairing and tells the peer about it
// (spec §4.G). The outbound pairing_delete is published from
// handleSettledEvent, which distinguishes this locally-originated
// delete from one already announced by a peer.
func (c *Controller) Delete(topic string, reason string) error {
	if _, err := c.settled.Get(topic); err != nil {
		return notFound(topic)
	}
	c.settled.Delete(topic, reason)
	return nil
}

// Send wraps an application JSON-RPC request in a pairing_payload
// envelope and publishes it on topic's settled channel, refusing
// locally when the method is not on the pairing's whitelist rather
// than relying solely on the peer's own enforcement (spec §4.E
// invariant 6, defense on both sides of the wire).
func (c *Controller) Send(ctx context.Context, topic string, method string, params any) error {
	rec, err := c.settled.Get(topic)
	if err != nil {
		return notFound(topic)
	}
	if !rec.Permissions.Allows(method) {
		return unauthorized(topic, method)
	}
	inner, err := jsonrpc.NewRequest(method, params)
	if err != nil {
		return err
	}
	outer, err := jsonrpc.NewRequest(jsonrpc.MethodPairingPayload, struct {
		Request jsonrpc.Request `json:"request"`
	}{inner})
	if err != nil {
		return err
	}
	raw, err := jsonrpc.Encode(outer)
	if err != nil {
		return err
	}
	return c.relay.Publish(ctx, topic, raw, relay.PublishOptions{
		Symmetric: &relay.SymmetricOptions{Key: rec.SharedKey},
	})
}

// Get returns the settled record at topic.
func (c *Controller) Get(topic string) (Settled, error) {
	rec, err := c.settled.Get(topic)
	if err != nil {
		return Settled{}, notFound(topic)
	}
	return rec, nil
}

// Entries returns every settled pairing this controller currently
// holds.
func (c *Controller) Entries() []Settled {
	return c.settled.Entries()
}

// Length reports how many settled pairings this controller currently
// holds.
func (c *Controller) Length() int {
	return c.settled.Length()
}

// Metrics returns a snapshot of lifecycle counters.
func (c *Controller) Metrics() Snapshot {
	return c.metrics.Snapshot()
}

// Events subscribes to every lifecycle event this controller emits.
// The returned function unregisters the listener.
func (c *Controller) Events() (<-chan LifecycleEvent, func()) {
	return c.events.subscribe()
}

func (c *Controller) emitLifecycle(ev LifecycleEvent) {
	c.events.emit(ev)
}

func (c *Controller) subscribeRelayTopic(ctx context.Context, topic string, onMessage func(topic string, raw []byte)) error {
	ch, err := c.relay.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	go func() {
		for raw := range ch {
			onMessage(topic, raw)
		}
	}()
	return nil
}

func (c *Controller) markRemoteDelete(topic string) {
	c.remoteMu.Lock()
	c.remoteDeletes[topic] = struct{}{}
	c.remoteMu.Unlock()
}

func (c *Controller) takeRemoteDelete(topic string) bool {
	c.remoteMu.Lock()
	defer c.remoteMu.Unlock()
	if _, ok := c.remoteDeletes[topic]; ok {
		delete(c.remoteDeletes, topic)
		return true
	}
	return false
}

func (c *Controller) ackRequest(rec Settled, id string) {
	resp, err := jsonrpc.NewResult(id, true)
	if err != nil {
		glog.Warningf("pairing: build ack for topic=%s: %v", rec.Topic, err)
		return
	}
	c.publishSymmetric(rec, resp)
}

func (c *Controller) replyError(rec Settled, id string, code int, message string) {
	c.publishSymmetric(rec, jsonrpc.NewError(id, code, message))
}

func (c *Controller) publishSymmetric(rec Settled, v any) {
	raw, err := jsonrpc.Encode(v)
	if err != nil {
		glog.Warningf("pairing: encode reply for topic=%s: %v", rec.Topic, err)
		return
	}
	if err := c.relay.Publish(c.ctx, rec.Topic, raw, relay.PublishOptions{
		Symmetric: &relay.SymmetricOptions{Key: rec.SharedKey},
	}); err != nil {
		glog.Warningf("pairing: publish reply for topic=%s: %v", rec.Topic, err)
	}
}

func (c *Controller) publishDelete(rec Settled, reason string) {
	req, err := jsonrpc.NewRequest(jsonrpc.MethodPairingDelete, struct {
		Reason string `json:"reason"`
	}{reason})
	if err != nil {
		glog.Warningf("pairing: build pairing_delete for topic=%s: %v", rec.Topic, err)
		return
	}
	c.publishSymmetric(rec, req)
}
