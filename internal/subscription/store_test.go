package subscription

import (
	"testing"
	"time"
)

type fakeRecord struct {
	Status string
}

func TestSetEmitsCreatedThenUpdated(t *testing.T) {
	s := New[fakeRecord]("test", 0)
	events, unsub := s.Subscribe()
	defer unsub()

	s.Set("topic-a", fakeRecord{Status: "proposed"}, SetOptions{})
	s.Set("topic-a", fakeRecord{Status: "responded"}, SetOptions{})

	ev1 := recv(t, events)
	if ev1.Kind != EventCreated || ev1.Record.Status != "proposed" {
		t.Fatalf("first event = %+v, want created/proposed", ev1)
	}
	ev2 := recv(t, events)
	if ev2.Kind != EventUpdated || ev2.Record.Status != "responded" {
		t.Fatalf("second event = %+v, want updated/responded", ev2)
	}
}

func TestUpdateOnMissingTopicFails(t *testing.T) {
	s := New[fakeRecord]("test", 0)
	err := s.Update("missing", func(r *fakeRecord) { r.Status = "x" })
	if err == nil {
		t.Fatal("expected error updating missing topic")
	}
}

func TestDeleteEmitsReason(t *testing.T) {
	s := New[fakeRecord]("test", 0)
	events, unsub := s.Subscribe()
	defer unsub()

	s.Set("topic-a", fakeRecord{Status: "settled"}, SetOptions{})
	recv(t, events) // created

	s.Delete("topic-a", "settled")
	ev := recv(t, events)
	if ev.Kind != EventDeleted || ev.Reason != "settled" {
		t.Fatalf("event = %+v, want deleted/settled", ev)
	}

	if _, err := s.Get("topic-a"); err == nil {
		t.Fatal("expected topic to be gone after delete")
	}
}

func TestDeleteMissingTopicIsNotError(t *testing.T) {
	s := New[fakeRecord]("test", 0)
	s.Delete("never-existed", "whatever") // must not panic
	if s.Length() != 0 {
		t.Fatalf("length = %d, want 0", s.Length())
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	s := New[fakeRecord]("test", 2)
	events, unsub := s.Subscribe()
	defer unsub()

	s.Set("a", fakeRecord{Status: "1"}, SetOptions{})
	s.Set("b", fakeRecord{Status: "2"}, SetOptions{})
	recv(t, events)
	recv(t, events)

	s.Set("c", fakeRecord{Status: "3"}, SetOptions{})

	evDel := recv(t, events)
	if evDel.Kind != EventDeleted || evDel.Topic != "a" || evDel.Reason != "evicted" {
		t.Fatalf("eviction event = %+v, want deleted/a/evicted", evDel)
	}
	evCreated := recv(t, events)
	if evCreated.Kind != EventCreated || evCreated.Topic != "c" {
		t.Fatalf("creation event = %+v, want created/c", evCreated)
	}
	if s.Length() != 2 {
		t.Fatalf("length = %d, want 2", s.Length())
	}
}

func TestEntriesAndLength(t *testing.T) {
	s := New[fakeRecord]("test", 0)
	s.Set("a", fakeRecord{Status: "1"}, SetOptions{})
	s.Set("b", fakeRecord{Status: "2"}, SetOptions{})
	if s.Length() != 2 {
		t.Fatalf("length = %d, want 2", s.Length())
	}
	if len(s.Entries()) != 2 {
		t.Fatalf("entries = %d, want 2", len(s.Entries()))
	}
}

func recv(t *testing.T, ch <-chan Event[fakeRecord]) Event[fakeRecord] {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		panic("unreachable")
	}
}
