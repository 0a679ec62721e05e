package pairing

import (
	"context"
	"time"

	"github.com/golang/glog"

	"pairing/internal/subscription"
)

// defaultSweepInterval mirrors the teacher's own connManTick default
// order of magnitude for a background supervisor loop.
const defaultSweepInterval = 5 * time.Second

// runAckSweeper deletes any proposed pending record whose proposal
// TTL has elapsed, addressing spec §5's requirement that a pending
// record's lifetime be bounded even when no acknowledgement or
// rejection ever arrives (SPEC_FULL supplemented feature 2).
// Structurally this is the teacher's internal/daemon.connMan.run
// ticker loop generalized from peer-dialing to pending-record sweep.
func runAckSweeper(ctx context.Context, pending *subscription.Store[Pending], interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepExpiredPending(pending)
		}
	}
}

func sweepExpiredPending(pending *subscription.Store[Pending]) {
	now := time.Now()
	for _, topic := range pending.Topics() {
		record, err := pending.Get(topic)
		if err != nil {
			continue
		}
		if record.Status != StatusProposed {
			continue
		}
		if now.After(proposalDeadline(record)) {
			glog.V(1).Infof("pairing: sweeping expired pending topic=%s", topic)
			pending.Delete(topic, "expired")
		}
	}
}

// proposalDeadline is the wall-clock time a proposed pending record
// stops being valid: its creation time plus its own proposal TTL.
func proposalDeadline(record Pending) time.Time {
	ttl := record.Proposal.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return record.CreatedAt.Add(ttl)
}
