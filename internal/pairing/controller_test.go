package pairing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"pairing/internal/jsonrpc"
	"pairing/internal/relay"
	"pairing/internal/subscription"
)

func waitForPendingGone(t *testing.T, c *Controller, topic string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := c.pending.Get(topic); errors.Is(err, subscription.ErrNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("pending record for topic=%s not deleted", topic)
}

func waitForLifecycle(t *testing.T, ch <-chan LifecycleEvent, kind LifecycleKind) LifecycleEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestPairingRoundTripHappyPath(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := relay.NewLoopback()
	proposer := NewController(ctx, hub.NewClient("proposer"))
	defer proposer.Close()
	responder := NewController(ctx, hub.NewClient("responder"))
	defer responder.Close()

	pendingRec, err := proposer.Propose(ctx, ProposeParams{})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	uri := pendingRec.Proposal.Signal.Params.URI

	responderResponded, err := responder.Pair(ctx, uri, func(ParsedURI) PairDecision {
		return PairDecision{Accept: true, Metadata: map[string]any{"name": "responder"}}
	})
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if !IsPairingResponded(responderResponded) || IsPairingFailed(responderResponded) {
		t.Fatalf("Pair: got %+v, want responded/success", responderResponded)
	}
	responderSettled, err := responder.Get(responderResponded.Outcome.Topic)
	if err != nil {
		t.Fatalf("responder Get settled: %v", err)
	}

	proposerSettled, err := proposer.Await(ctx, pendingRec.Topic)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}

	assert.Equal(t, proposerSettled.Topic, responderSettled.Topic)
	assert.Equal(t, proposerSettled.Peer.PublicKey, responderSettled.Self.PublicKey)
	assert.Equal(t, responderSettled.Peer.PublicKey, proposerSettled.Self.PublicKey)

	if _, err := proposer.pending.Get(pendingRec.Topic); !errors.Is(err, subscription.ErrNotFound) {
		t.Fatalf("proposer pending after settle: got %v, want gone", err)
	}
	waitForPendingGone(t, responder, responderResponded.Topic)

	if err := proposer.Send(ctx, proposerSettled.Topic, jsonrpc.MethodSessionPropose, map[string]any{"chain": "test"}); err != nil {
		t.Fatalf("Send whitelisted method: %v", err)
	}
	events, unsub := responder.Events()
	defer unsub()
	ev := waitForLifecycle(t, events, Payload)
	assert.Equal(t, ev.Topic, responderSettled.Topic)

	if err := proposer.Send(ctx, proposerSettled.Topic, "not_whitelisted", nil); !isPairingErrorKind(err, KindUnauthorized) {
		t.Fatalf("Send unwhitelisted method: got %v, want Unauthorized", err)
	}
}

func TestPairingRejection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := relay.NewLoopback()
	proposer := NewController(ctx, hub.NewClient("proposer"))
	defer proposer.Close()
	responder := NewController(ctx, hub.NewClient("responder"))
	defer responder.Close()

	pendingRec, err := proposer.Propose(ctx, ProposeParams{})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	uri := pendingRec.Proposal.Signal.Params.URI

	responded, err := responder.Pair(ctx, uri, func(ParsedURI) PairDecision {
		return PairDecision{Accept: false, Reason: "not interested"}
	})
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if !IsPairingFailed(responded) {
		t.Fatalf("responder Pair rejection: got %+v, want responded/failure", responded)
	}
	assert.Equal(t, responded.Outcome.Reason, "not interested")

	_, err = proposer.Await(ctx, pendingRec.Topic)
	if !isPairingErrorKind(err, KindRemoteFailure) {
		t.Fatalf("proposer Await after rejection: got %v, want RemoteFailure", err)
	}
}

func TestPairingUpdateAndDelete(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := relay.NewLoopback()
	proposer := NewController(ctx, hub.NewClient("proposer"))
	defer proposer.Close()
	responder := NewController(ctx, hub.NewClient("responder"))
	defer responder.Close()

	pendingRec, err := proposer.Propose(ctx, ProposeParams{})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	uri := pendingRec.Proposal.Signal.Params.URI

	responderResponded, err := responder.Pair(ctx, uri, func(ParsedURI) PairDecision {
		return PairDecision{Accept: true}
	})
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	responderSettled, err := responder.Get(responderResponded.Outcome.Topic)
	if err != nil {
		t.Fatalf("responder Get settled: %v", err)
	}
	proposerSettled, err := proposer.Await(ctx, pendingRec.Topic)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}

	responderEvents, unsub := responder.Events()
	defer unsub()

	if _, err := proposer.UpdateMetadata(ctx, proposerSettled.Topic, map[string]any{"name": "proposer-updated"}, ""); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	updateEv := waitForLifecycle(t, responderEvents, Updated)
	assert.Equal(t, updateEv.Settled.Peer.Metadata["name"], "proposer-updated")

	// The same pairing_update publish echoes back to the proposer's own
	// subscription to the settled topic (every relay transport in this
	// repo may deliver a publisher's own message back to it). It must
	// not be mistaken for an update from the peer.
	time.Sleep(50 * time.Millisecond)
	proposerAfterEcho, err := proposer.Get(proposerSettled.Topic)
	if err != nil {
		t.Fatalf("proposer Get after self-echoed update: %v", err)
	}
	if proposerAfterEcho.Peer.Metadata["name"] == "proposer-updated" {
		t.Fatalf("proposer applied its own echoed pairing_update to its view of the peer")
	}

	if err := proposer.Delete(proposerSettled.Topic, "done"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	deleteEv := waitForLifecycle(t, responderEvents, Deleted)
	assert.Equal(t, deleteEv.Topic, responderSettled.Topic)

	if _, err := responder.Get(responderSettled.Topic); !isPairingErrorKind(err, KindNotFound) {
		t.Fatalf("responder Get after delete: got %v, want NotFound", err)
	}
	if _, err := proposer.Get(proposerSettled.Topic); !isPairingErrorKind(err, KindNotFound) {
		t.Fatalf("proposer Get after delete: got %v, want NotFound", err)
	}
}

func TestPairingUpdateMetadataTokenAttestation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := relay.NewLoopback()
	proposer := NewController(ctx, hub.NewClient("proposer"))
	defer proposer.Close()
	responder := NewController(ctx, hub.NewClient("responder"))
	defer responder.Close()

	pendingRec, err := proposer.Propose(ctx, ProposeParams{})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	uri := pendingRec.Proposal.Signal.Params.URI

	if _, err := responder.Pair(ctx, uri, func(ParsedURI) PairDecision {
		return PairDecision{Accept: true}
	}); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	proposerSettled, err := proposer.Await(ctx, pendingRec.Topic)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}

	responderEvents, unsub := responder.Events()
	defer unsub()

	validToken, err := proposer.SignMetadataToken(proposerSettled.Topic)
	if err != nil {
		t.Fatalf("SignMetadataToken: %v", err)
	}
	if _, err := proposer.UpdateMetadata(ctx, proposerSettled.Topic, map[string]any{"name": "attested"}, validToken); err != nil {
		t.Fatalf("UpdateMetadata with valid token: %v", err)
	}
	updateEv := waitForLifecycle(t, responderEvents, Updated)
	assert.Equal(t, updateEv.Settled.Peer.Metadata["name"], "attested")

	if _, err := proposer.UpdateMetadata(ctx, proposerSettled.Topic, map[string]any{"name": "forged"}, "not-a-real-token"); err != nil {
		t.Fatalf("UpdateMetadata with invalid token (publish itself): %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	responderAfterBadToken, err := responder.Get(proposerSettled.Topic)
	if err != nil {
		t.Fatalf("responder Get after invalid-token update: %v", err)
	}
	if responderAfterBadToken.Peer.Metadata["name"] != "attested" {
		t.Fatalf("responder applied an update carrying an invalid metadata token: %+v", responderAfterBadToken.Peer.Metadata)
	}
}

func TestPairingSettledRejectsUnauthorizedMethodFromPeer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := relay.NewLoopback()
	proposer := NewController(ctx, hub.NewClient("proposer"))
	defer proposer.Close()
	responder := NewController(ctx, hub.NewClient("responder"))
	defer responder.Close()

	pendingRec, err := proposer.Propose(ctx, ProposeParams{})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	uri := pendingRec.Proposal.Signal.Params.URI

	if _, err := responder.Pair(ctx, uri, func(ParsedURI) PairDecision {
		return PairDecision{Accept: true}
	}); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	proposerSettled, err := proposer.Await(ctx, pendingRec.Topic)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}

	// A hostile or non-compliant peer skips Controller.Send's own
	// client-side refusal and publishes an unwhitelisted method
	// straight onto the settled topic, so the remote enforcement branch
	// in handleSettledRequest (not Send's local check) has to catch it.
	hostile := hub.NewClient("hostile")
	inner, err := jsonrpc.NewRequest("not_whitelisted", nil)
	if err != nil {
		t.Fatalf("build inner request: %v", err)
	}
	outer, err := jsonrpc.NewRequest(jsonrpc.MethodPairingPayload, struct {
		Request jsonrpc.Request `json:"request"`
	}{inner})
	if err != nil {
		t.Fatalf("build outer request: %v", err)
	}
	raw, err := jsonrpc.Encode(outer)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := hostile.Publish(ctx, proposerSettled.Topic, raw, relay.PublishOptions{
		Symmetric: &relay.SymmetricOptions{Key: proposerSettled.SharedKey},
	}); err != nil {
		t.Fatalf("hostile publish: %v", err)
	}

	events, unsub := proposer.Events()
	defer unsub()
	select {
	case ev := <-events:
		t.Fatalf("unwhitelisted method from peer produced a lifecycle event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func isPairingErrorKind(err error, kind Kind) bool {
	pe, ok := err.(*Error)
	return ok && pe.Kind == kind
}
