package pairing

import "sync/atomic"

// Metrics counts pairing lifecycle transitions, generalizing the
// teacher's internal/metrics.Metrics atomic-counter Snapshot pattern
// from gossip/delta-set counters to pairing lifecycle counters.
type Metrics struct {
	proposed atomic.Uint64
	settled  atomic.Uint64
	rejected atomic.Uint64
	expired  atomic.Uint64
	deleted  atomic.Uint64
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Proposed uint64 `json:"proposed"`
	Settled  uint64 `json:"settled"`
	Rejected uint64 `json:"rejected"`
	Expired  uint64 `json:"expired"`
	Deleted  uint64 `json:"deleted"`
}

func newMetrics() *Metrics {
	return &Metrics{}
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Proposed: m.proposed.Load(),
		Settled:  m.settled.Load(),
		Rejected: m.rejected.Load(),
		Expired:  m.expired.Load(),
		Deleted:  m.deleted.Load(),
	}
}
