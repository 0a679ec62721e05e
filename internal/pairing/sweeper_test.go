package pairing

import (
	"testing"
	"time"

	"pairing/internal/subscription"
)

func TestSweepExpiredPendingDeletesOnlyStale(t *testing.T) {
	pending := subscription.New[Pending]("pending", 0)

	fresh := Pending{Status: StatusProposed, Topic: "fresh", Proposal: Proposal{TTL: time.Hour}, CreatedAt: time.Now()}
	stale := Pending{Status: StatusProposed, Topic: "stale", Proposal: Proposal{TTL: time.Millisecond}, CreatedAt: time.Now().Add(-time.Hour)}
	responded := Pending{Status: StatusResponded, Topic: "responded", Proposal: Proposal{TTL: time.Millisecond}, CreatedAt: time.Now().Add(-time.Hour)}

	pending.Set(fresh.Topic, fresh, subscription.SetOptions{})
	pending.Set(stale.Topic, stale, subscription.SetOptions{})
	pending.Set(responded.Topic, responded, subscription.SetOptions{})

	sweepExpiredPending(pending)

	if _, err := pending.Get("fresh"); err != nil {
		t.Fatalf("fresh pending should survive a sweep: %v", err)
	}
	if _, err := pending.Get("stale"); err == nil {
		t.Fatal("stale pending should have been swept")
	}
	if _, err := pending.Get("responded"); err != nil {
		t.Fatalf("responded pending should not be swept regardless of age: %v", err)
	}
}

func TestProposalDeadlineFallsBackToDefaultTTL(t *testing.T) {
	created := time.Now().Add(-time.Minute)
	record := Pending{CreatedAt: created}
	got := proposalDeadline(record)
	want := created.Add(DefaultTTL)
	if !got.Equal(want) {
		t.Fatalf("proposalDeadline = %v, want %v", got, want)
	}
}
