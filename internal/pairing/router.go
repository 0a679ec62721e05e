package pairing

import (
	"fmt"

	"github.com/golang/glog"

	"pairing/internal/cryptoprim"
	"pairing/internal/jsonrpc"
	"pairing/internal/subscription"
)

// handlePendingEvent is the proposer-side inbound router (spec §4.E):
// it watches the pending store for a decrypted pairing_respond
// delivery, settles on acceptance, and resolves the matching Await
// call exactly once even if the relay redelivers the same message.
func (c *Controller) handlePendingEvent(ev subscription.Event[Pending]) {
	switch ev.Kind {
	case subscription.EventDeleted:
		if ev.Reason == "expired" {
			c.metrics.expired.Add(1)
			c.resolveWaiter(ev.Topic, Settled{}, acknowledgement(ev.Topic, "proposal expired without a response"))
		}
		return
	case subscription.EventPayload:
		// handled below
	default:
		return
	}

	payload, err := jsonrpc.Decode(ev.Payload)
	if err != nil {
		glog.Warningf("pairing: pending topic=%s: %v", ev.Topic, err)
		return
	}

	if payload.Response != nil {
		c.handleAcknowledge(ev.Topic, *payload.Response)
		return
	}

	if payload.Request == nil || payload.Request.Method != jsonrpc.MethodPairingRespond {
		glog.V(1).Infof("pairing: pending topic=%s received unexpected payload, ignoring", ev.Topic)
		return
	}

	if c.replay.seen(ev.Topic + ":" + cryptoprim.SHA256Hex(payload.Request.Params)) {
		glog.V(1).Infof("pairing: duplicate pairing_respond for topic=%s, ignoring", ev.Topic)
		return
	}

	var params struct {
		Outcome Outcome `json:"outcome"`
	}
	if err := payload.Request.UnmarshalParams(&params); err != nil {
		glog.Warningf("pairing: pending topic=%s malformed pairing_respond: %v", ev.Topic, err)
		return
	}
	outcome := params.Outcome
	reqID := payload.Request.ID

	pendingRec, err := c.pending.Get(ev.Topic)
	if err != nil {
		return
	}
	if err := c.pending.Update(ev.Topic, func(p *Pending) {
		p.Status = StatusResponded
		p.Outcome = &outcome
	}); err != nil {
		return
	}
	responded := pendingRec
	responded.Status = StatusResponded
	responded.Outcome = &outcome
	c.emitLifecycle(LifecycleEvent{Kind: Responded, Topic: ev.Topic, Pending: &responded})

	if !outcome.Success {
		c.metrics.rejected.Add(1)
		c.pending.Delete(ev.Topic, "not_approved")
		c.resolveWaiter(ev.Topic, Settled{}, remoteFailure(ev.Topic, outcome.Reason))
		return
	}

	settledRec, err := settle(c.settled, SettleParams{
		Relay:       outcome.Relay,
		Self:        pendingRec.Self,
		Peer:        outcome.Responder,
		Permissions: pendingRec.Proposal.Permissions,
		TTL:         pendingRec.Proposal.TTL,
		Expiry:      outcome.Expiry,
	})
	if err != nil {
		c.publishAckError(pendingRec, outcome.Responder.PublicKey, reqID, jsonrpc.CodeSettlementFailed, err.Error())
		c.pending.Delete(ev.Topic, "settlement_failed")
		c.resolveWaiter(ev.Topic, Settled{}, settlementFailure(ev.Topic, err.Error()))
		return
	}
	if err := c.subscribeRelayTopic(c.ctx, settledRec.Topic, c.settled.HandleInbound); err != nil {
		c.publishAckError(pendingRec, outcome.Responder.PublicKey, reqID, jsonrpc.CodeSettlementFailed, err.Error())
		c.pending.Delete(ev.Topic, "settlement_failed")
		c.resolveWaiter(ev.Topic, Settled{}, settlementFailure(ev.Topic, err.Error()))
		return
	}

	if ackResp, err := jsonrpc.NewResult(reqID, true); err != nil {
		glog.Warningf("pairing: build acknowledgement for topic=%s: %v", ev.Topic, err)
	} else if err := c.publishAck(c.ctx, ev.Topic, pendingRec.Self, outcome.Responder.PublicKey, ackResp); err != nil {
		glog.Warningf("pairing: publish acknowledgement for topic=%s: %v", ev.Topic, err)
	}
	c.pending.Delete(ev.Topic, "settled")

	c.metrics.settled.Add(1)
	c.emitLifecycle(LifecycleEvent{Kind: Settled_, Topic: settledRec.Topic, Settled: &settledRec})
	c.resolveWaiter(ev.Topic, settledRec, nil)
}

// publishAckError seals a JSON-RPC error response back onto a pending
// topic, telling the responder its accepted pairing never actually
// settled on the proposer's side.
func (c *Controller) publishAckError(pendingRec Pending, peerPublicKey, reqID string, code int, message string) {
	if err := c.publishAck(c.ctx, pendingRec.Topic, pendingRec.Self, peerPublicKey, jsonrpc.NewError(reqID, code, message)); err != nil {
		glog.Warningf("pairing: publish error acknowledgement for topic=%s: %v", pendingRec.Topic, err)
	}
}

// handleAcknowledge is the responder-side onAcknowledge handler (spec
// §4.E): the proposer's reply to this side's own pairing_respond,
// arriving as a JSON-RPC response on the same pending topic. A
// successful acknowledgement simply retires the responder's Pending
// record; an error acknowledgement means the proposer's settlement
// never actually completed, so the responder's own settled record
// (which it created optimistically before hearing back) is rolled
// back too.
func (c *Controller) handleAcknowledge(topic string, resp jsonrpc.Response) {
	pendingRec, err := c.pending.Get(topic)
	if err != nil {
		return
	}
	if resp.IsError() {
		ackErr := acknowledgement(topic, resp.Error.Message)
		glog.Warningf("pairing: %v", ackErr)
		if pendingRec.Outcome != nil && pendingRec.Outcome.Success {
			c.markRemoteDelete(pendingRec.Outcome.Topic)
			c.settled.Delete(pendingRec.Outcome.Topic, "acknowledgement_failed")
		}
	}
	c.pending.Delete(topic, "acknowledged")
}

// handleSettledEvent is the settled-side inbound and outbound router
// (spec §4.E, §4.G): it classifies decrypted deliveries into
// application payloads or pairing-protocol requests, and reacts to the
// store's own updated/deleted events by notifying the peer when the
// change originated locally.
func (c *Controller) handleSettledEvent(ev subscription.Event[Settled]) {
	switch ev.Kind {
	case subscription.EventPayload:
		payload, err := jsonrpc.Decode(ev.Payload)
		if err != nil {
			glog.Warningf("pairing: settled topic=%s: %v", ev.Topic, err)
			return
		}
		if payload.Request != nil {
			c.handleSettledRequest(ev.Topic, ev.Record, *payload.Request)
			return
		}
		if payload.Response != nil && payload.Response.IsError() {
			glog.V(1).Infof("pairing: settled topic=%s received error response: %s", ev.Topic, payload.Response.Error.Message)
		}

	case subscription.EventDeleted:
		c.metrics.deleted.Add(1)
		remote := c.takeRemoteDelete(ev.Topic)
		rec := ev.Record
		c.emitLifecycle(LifecycleEvent{Kind: Deleted, Topic: ev.Topic, Settled: &rec, Reason: ev.Reason})
		if !remote {
			c.publishDelete(ev.Record, ev.Reason)
		}

	case subscription.EventUpdated:
		rec := ev.Record
		c.emitLifecycle(LifecycleEvent{Kind: Updated, Topic: ev.Topic, Settled: &rec})
	}
}

func (c *Controller) handleSettledRequest(topic string, rec Settled, req jsonrpc.Request) {
	switch req.Method {
	case jsonrpc.MethodPairingPayload:
		var params struct {
			Request jsonrpc.Request `json:"request"`
		}
		if err := req.UnmarshalParams(&params); err != nil {
			c.replyError(rec, req.ID, jsonrpc.CodeInvalidUpdate, "malformed pairing_payload params")
			return
		}
		if !rec.Permissions.Allows(params.Request.Method) {
			c.replyError(rec, req.ID, jsonrpc.CodeUnauthorized, unauthorized(topic, params.Request.Method).Error())
			return
		}
		c.ackRequest(rec, req.ID)
		c.emitLifecycle(LifecycleEvent{Kind: Payload, Topic: topic, Settled: &rec, Payload: params.Request.Params})

	case jsonrpc.MethodPairingUpdate:
		c.handleUpdate(topic, rec, req)

	case jsonrpc.MethodPairingDelete:
		var params struct {
			Reason string `json:"reason"`
		}
		_ = req.UnmarshalParams(&params)
		c.markRemoteDelete(topic)
		c.settled.Delete(topic, params.Reason)

	default:
		c.replyError(rec, req.ID, jsonrpc.CodeUnknownMethod, fmt.Sprintf("unknown method %q", req.Method))
	}
}
