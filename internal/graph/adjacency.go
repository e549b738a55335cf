package graph

import (
	"encoding/binary"
	"fmt"

	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
)

// fwd/rev adjacency keys are (node, type, other_node, edge) — 28 bytes
// — so that a scan bounded to the first 8 bytes yields every row for a
// node regardless of type, and a scan bounded to the first 12 bytes
// yields only rows of one type (spec §4.8's adjacency key shape).
func adjKey(node NodeID, ty TypeID, other NodeID, edge EdgeID) []byte {
	b := make([]byte, 28)
	binary.BigEndian.PutUint64(b, node)
	binary.BigEndian.PutUint32(b[8:], ty)
	binary.BigEndian.PutUint64(b[12:], other)
	binary.BigEndian.PutUint64(b[20:], edge)
	return b
}

func nodeTypePrefix(node NodeID, ty TypeID) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint64(b, node)
	binary.BigEndian.PutUint32(b[8:], ty)
	return b
}

func nodePrefix(node NodeID) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, node)
	return b
}

func nodePrefixUpper(node NodeID) []byte {
	return nodePrefix(node + 1)
}

// NeighborRow is one row of a neighbors() scan.
type NeighborRow struct {
	Neighbor NodeID
	Type     TypeID
	Edge     EdgeID
}

// NeighborOpts controls neighbors() per spec §4.8.
type NeighborOpts struct {
	TypeFilter    *TypeID
	DistinctNodes bool
}

// Neighbors scans the adjacency B-tree for dir with prefix (node[,
// type]) and returns matching rows in ascending key order. With
// DistinctNodes, duplicate neighbor ids collapse to their first
// occurrence (spec §4.8 "neighbors").
func (g *Graph) Neighbors(gg pageGetter, meta *pager.Meta, node NodeID, dir Direction, opts NeighborOpts) ([]NeighborRow, error) {
	tree := g.adjFwd
	root := meta.AdjFwdRoot
	if dir == In {
		tree = g.adjRev
		root = meta.AdjRevRoot
	}

	var lo, hi []byte
	if opts.TypeFilter != nil {
		lo = nodeTypePrefix(node, *opts.TypeFilter)
		hiTy := *opts.TypeFilter + 1
		hi = nodeTypePrefix(node, hiTy)
	} else {
		lo = nodePrefix(node)
		hi = nodePrefixUpper(node)
	}

	var rows []NeighborRow
	err := tree.Range(gg, root, &lo, &hi, func(k, v []byte) bool {
		rows = append(rows, NeighborRow{
			Type:     binary.BigEndian.Uint32(k[8:]),
			Neighbor: binary.BigEndian.Uint64(k[12:]),
			Edge:     binary.BigEndian.Uint64(k[20:]),
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	if !opts.DistinctNodes {
		return rows, nil
	}
	seen := make(map[NodeID]bool, len(rows))
	out := rows[:0]
	for _, r := range rows {
		if seen[r.Neighbor] {
			continue
		}
		seen[r.Neighbor] = true
		out = append(out, r)
	}
	return out, nil
}

// HasEdge reports whether at least one edge of the given type connects
// src to dst, a small composition of a Neighbors probe (SPEC_FULL
// §3.4, supplementing the distilled spec from original_source).
func (g *Graph) HasEdge(gg pageGetter, meta *pager.Meta, src, dst NodeID, ty TypeID) (bool, error) {
	rows, err := g.Neighbors(gg, meta, src, Out, NeighborOpts{TypeFilter: &ty})
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.Neighbor == dst {
			return true, nil
		}
	}
	return false, nil
}

// collectIncidentEdges returns every distinct edge id touching node in
// either direction, used by DeleteNode's cascade path.
func (g *Graph) collectIncidentEdges(gg pageGetter, meta *pager.Meta, node NodeID) ([]EdgeID, error) {
	fwd, err := g.Neighbors(gg, meta, node, Out, NeighborOpts{})
	if err != nil {
		return nil, err
	}
	rev, err := g.Neighbors(gg, meta, node, In, NeighborOpts{})
	if err != nil {
		return nil, err
	}
	seen := make(map[EdgeID]bool, len(fwd)+len(rev))
	var out []EdgeID
	for _, r := range append(fwd, rev...) {
		if seen[r.Edge] {
			continue
		}
		seen[r.Edge] = true
		out = append(out, r.Edge)
	}
	return out, nil
}

func degreeKey(node NodeID, dir Direction, ty TypeID) []byte {
	b := make([]byte, 13)
	binary.BigEndian.PutUint64(b, node)
	b[8] = byte(dir)
	binary.BigEndian.PutUint32(b[9:], ty)
	return b
}

func degreeNodeDirPrefix(node NodeID, dir Direction) []byte {
	b := make([]byte, 9)
	binary.BigEndian.PutUint64(b, node)
	b[8] = byte(dir)
	return b
}

// Degree reports the count of adjacency rows for (node, dir[, type]).
// When the degree cache is enabled (spec §4.8), it sums matching cache
// entries instead of scanning adjacency directly.
func (g *Graph) Degree(gg pageGetter, meta *pager.Meta, node NodeID, dir Direction, typeFilter *TypeID) (uint64, error) {
	if !meta.DegreeCacheEnabled() {
		rows, err := g.Neighbors(gg, meta, node, dir, NeighborOpts{TypeFilter: typeFilter})
		if err != nil {
			return 0, err
		}
		return uint64(len(rows)), nil
	}
	if typeFilter != nil {
		raw, found, err := g.degree.Get(gg, meta.DegreeRoot, degreeKey(node, dir, *typeFilter))
		if err != nil || !found {
			return 0, err
		}
		return binary.BigEndian.Uint64(raw), nil
	}
	lo := degreeNodeDirPrefix(node, dir)
	hi := degreeNodeDirPrefix(node+1, dir)
	var total uint64
	err := g.degree.Range(gg, meta.DegreeRoot, &lo, &hi, func(k, v []byte) bool {
		total += binary.BigEndian.Uint64(v)
		return true
	})
	return total, err
}

// bumpDegree adds delta (signed via two's complement on a uint64
// counter) to the (node, dir, type) cache entry, creating it at delta
// if absent. delta is expected to be +1 or -1 from create_edge/
// delete_edge.
func (g *Graph) bumpDegree(wg *pager.WriteGuard, meta *pager.Meta, node NodeID, dir Direction, ty TypeID, delta int64) error {
	if !meta.DegreeCacheEnabled() {
		return nil
	}
	key := degreeKey(node, dir, ty)
	raw, found, err := g.degree.Get(wg, meta.DegreeRoot, key)
	if err != nil {
		return err
	}
	var cur uint64
	if found {
		cur = binary.BigEndian.Uint64(raw)
	}
	next := int64(cur) + delta
	if next < 0 {
		next = 0
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(next))
	newRoot, err := g.degree.Insert(wg, meta.DegreeRoot, key, out)
	if err != nil {
		return err
	}
	meta.DegreeRoot = newRoot
	return nil
}

// ValidateDegreeCache recounts every (node, dir, type) combination
// currently in the degree cache against a direct adjacency scan and
// reports the first mismatch found, or nil if the cache is consistent
// (spec §4.8's debug validate_degree_cache).
func (g *Graph) ValidateDegreeCache(gg pageGetter, meta *pager.Meta) error {
	if !meta.DegreeCacheEnabled() {
		return nil
	}
	var lo []byte
	var scanErr error
	var mismatch error
	_ = g.degree.Range(gg, meta.DegreeRoot, &lo, nil, func(k, v []byte) bool {
		node := binary.BigEndian.Uint64(k)
		dir := Direction(k[8])
		ty := binary.BigEndian.Uint32(k[9:])
		cached := binary.BigEndian.Uint64(v)
		rows, err := g.Neighbors(gg, meta, node, dir, NeighborOpts{TypeFilter: &ty})
		if err != nil {
			scanErr = err
			return false
		}
		if uint64(len(rows)) != cached {
			mismatch = errs.Corruption(fmt.Sprintf(
				"graph: degree cache mismatch for node %d dir %d type %d: cached %d, actual %d",
				node, dir, ty, cached, len(rows)))
			return false
		}
		return true
	})
	if scanErr != nil {
		return scanErr
	}
	return mismatch
}
