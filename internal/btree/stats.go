package btree

import "sync/atomic"

// Stats holds the observability counters named in spec §4.6. They are
// purely additive and never consulted for correctness.
type Stats struct {
	LeafSearches      atomic.Int64
	InternalSearches  atomic.Int64
	LeafSplits        atomic.Int64
	LeafMerges        atomic.Int64
	InPlaceEdits      atomic.Int64
	Rebuilds          atomic.Int64
	BytesCompacted    atomic.Int64
	Compactions       atomic.Int64
	AllocFailures     atomic.Int64
	SnapshotPageReuse atomic.Int64
}

// Snapshot is a point-in-time copy of Stats suitable for logging or
// exposing over an admin endpoint.
type Snapshot struct {
	LeafSearches      int64
	InternalSearches  int64
	LeafSplits        int64
	LeafMerges        int64
	InPlaceEdits      int64
	Rebuilds          int64
	BytesCompacted    int64
	Compactions       int64
	AllocFailures     int64
	SnapshotPageReuse int64
}

func (s *Stats) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return Snapshot{
		LeafSearches:      s.LeafSearches.Load(),
		InternalSearches:  s.InternalSearches.Load(),
		LeafSplits:        s.LeafSplits.Load(),
		LeafMerges:        s.LeafMerges.Load(),
		InPlaceEdits:      s.InPlaceEdits.Load(),
		Rebuilds:          s.Rebuilds.Load(),
		BytesCompacted:    s.BytesCompacted.Load(),
		Compactions:       s.Compactions.Load(),
		AllocFailures:     s.AllocFailures.Load(),
		SnapshotPageReuse: s.SnapshotPageReuse.Load(),
	}
}
