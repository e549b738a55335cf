package btree

import "github.com/maskdotdev/sombra-sub004/internal/pager"

// internalEntry is the in-memory form of an internal-page record: a
// separator key paired with the child page id that owns every key
// strictly less than Key (down to the previous separator, or -infinity
// for entry 0). The child for keys >= the last separator is the node's
// RightmostChild, not an internalEntry.
type internalEntry struct {
	key   []byte
	child pager.PageID
}

func collectInternalEntries(n *Node) []internalEntry {
	sc := n.SlotCount()
	out := make([]internalEntry, sc)
	for i := 0; i < sc; i++ {
		sep, child, err := decodeInternalRecord(n.Record(i))
		if err != nil {
			panic(err) // page corruption would already have surfaced via CRC checks
		}
		k := make([]byte, len(sep))
		copy(k, sep)
		out[i] = internalEntry{key: k, child: child}
	}
	return out
}

func collectLeafRecords(n *Node) [][]byte {
	sc := n.SlotCount()
	out := make([][]byte, sc)
	for i := 0; i < sc; i++ {
		rec := n.Record(i)
		cp := make([]byte, len(rec))
		copy(cp, rec)
		out[i] = cp
	}
	return out
}

func encodeInternalEntries(entries []internalEntry) [][]byte {
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = encodeInternalRecord(e.key, e.child)
	}
	return out
}

// retargetChild inserts a new separator covering the lower half of the
// range previously owned by childID, after childID's page split into
// (childID, splitKey, newRightID). It locates whichever entry (or the
// RightmostChild) currently owns childID and rewrites that one
// reference into two, per spec §4.6's split-propagation rule.
func retargetChild(entries []internalEntry, rightmost pager.PageID, splitKey []byte, childID, newRightID pager.PageID) ([]internalEntry, pager.PageID) {
	for j, e := range entries {
		if e.child == childID {
			out := make([]internalEntry, 0, len(entries)+1)
			out = append(out, entries[:j]...)
			out = append(out, internalEntry{key: splitKey, child: childID})
			out = append(out, internalEntry{key: e.key, child: newRightID})
			out = append(out, entries[j+1:]...)
			return out, rightmost
		}
	}
	// childID was the rightmost child: it now owns the lower half, and
	// the split sibling becomes the new rightmost child.
	out := make([]internalEntry, 0, len(entries)+1)
	out = append(out, entries...)
	out = append(out, internalEntry{key: splitKey, child: childID})
	return out, newRightID
}
