// Package index implements the secondary-index layer (spec §4.9): a
// label posting index, two kinds of property index (chunked for
// equality, B-tree-ordered for range scans), the index catalog that
// tracks which of the two backs a given (label, prop) pair, and the
// uniform posting-stream interface the out-of-scope planner combines
// with intersect/union operators.
package index

// NodeID is the graph store's node identifier. It is defined here,
// not in internal/graph, because the index layer sits below the graph
// layer (graph imports index for maintenance, not the reverse).
type NodeID = uint64

// PostingStream is the uniform iterator interface of spec §4.9:
// peek/next/seek over an ascending run of node ids.
type PostingStream interface {
	// Peek returns the next id without consuming it.
	Peek() (NodeID, bool)
	// Next consumes and returns the next id.
	Next() (NodeID, bool)
	// Seek advances past ids < target; reports whether the stream is
	// now positioned at an id >= target (false if exhausted).
	Seek(target NodeID) bool
}

// SliceStream is an in-memory PostingStream over an already-sorted
// slice, used directly by tests and by IntersectLabels, and as the
// materialized backing for the B-tree/chunk-backed streams below
// (spec's planner-facing streaming contract doesn't require true lazy
// disk iteration at this layer; collecting eagerly keeps the B-tree
// cursor logic simple while still presenting the uniform interface).
type SliceStream struct {
	ids []NodeID
	pos int
}

func NewSliceStream(ids []NodeID) *SliceStream { return &SliceStream{ids: ids} }

func (s *SliceStream) Peek() (NodeID, bool) {
	if s.pos >= len(s.ids) {
		return 0, false
	}
	return s.ids[s.pos], true
}

func (s *SliceStream) Next() (NodeID, bool) {
	id, ok := s.Peek()
	if ok {
		s.pos++
	}
	return id, ok
}

func (s *SliceStream) Seek(target NodeID) bool {
	for s.pos < len(s.ids) && s.ids[s.pos] < target {
		s.pos++
	}
	return s.pos < len(s.ids)
}

// IntersectSorted merges two ascending streams by repeated seek,
// yielding ids present in both (spec §4.9 "intersect_sorted").
func IntersectSorted(a, b PostingStream) []NodeID {
	var out []NodeID
	av, aok := a.Peek()
	bv, bok := b.Peek()
	for aok && bok {
		switch {
		case av == bv:
			out = append(out, av)
			a.Next()
			b.Next()
			av, aok = a.Peek()
			bv, bok = b.Peek()
		case av < bv:
			aok = a.Seek(bv)
			av, _ = a.Peek()
		default:
			bok = b.Seek(av)
			bv, _ = b.Peek()
		}
	}
	return out
}

// IntersectK intersects N sorted streams via repeated pairwise
// intersection (spec §4.9 "intersect_k"), which is sufficient once any
// stream materializes to empty.
func IntersectK(streams []PostingStream) []NodeID {
	if len(streams) == 0 {
		return nil
	}
	acc := CollectAll(streams[0])
	for _, s := range streams[1:] {
		if len(acc) == 0 {
			return nil
		}
		acc = IntersectSorted(NewSliceStream(acc), s)
	}
	return acc
}

// CollectAll drains a stream into a slice (spec §4.9 "collect_all").
func CollectAll(s PostingStream) []NodeID {
	var out []NodeID
	for {
		id, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, id)
	}
}
