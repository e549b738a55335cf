package index

import (
	"encoding/binary"

	"github.com/maskdotdev/sombra-sub004/internal/btree"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
)

// chunkCapacity bounds how many node ids a single chunked-index
// posting chunk holds before a new chunk ordinal is started (spec
// §4.9: "equality probes read at most ceil(matches / chunk_capacity)
// pages").
const chunkCapacity = 256

func propPrefix(label, prop uint32, value []byte) []byte {
	b := make([]byte, 8+len(value))
	binary.BigEndian.PutUint32(b, label)
	binary.BigEndian.PutUint32(b[4:], prop)
	copy(b[8:], value)
	return b
}

// valueUpperBound builds an exclusive upper fence for "every key with
// this exact value, whatever its suffix" scans. A real posting key is
// value ++ suffix, where suffix has a fixed width (suffixLen bytes: 4
// for a chunk ordinal, 8 for a node id). Padding value with suffixLen
// 0xFF bytes plus one trailing 0x00 sorts strictly above every
// possible suffix — including an all-0xFF one — because a key that is
// a strict prefix of a longer byte string always compares less than
// it. Appending a single bare 0xFF byte (and assuming the suffix never
// starts that high) is not safe in general, since ordinals and node
// ids can themselves have a leading 0xFF byte.
func valueUpperBound(value []byte, suffixLen int) []byte {
	out := make([]byte, 0, len(value)+suffixLen+1)
	out = append(out, value...)
	for i := 0; i < suffixLen; i++ {
		out = append(out, 0xFF)
	}
	return append(out, 0x00)
}

// --- chunked (equality-optimised) index ---

// ChunkedIndex is a B-tree keyed by (label, prop, encoded_value,
// chunk_ordinal) -> a sorted posting chunk, spec §4.9 "Chunked".
type ChunkedIndex struct {
	tree *btree.Tree[[]byte, []byte]
}

func NewChunkedIndex() *ChunkedIndex {
	return &ChunkedIndex{tree: btree.New(unitCodec, unitCodec)}
}

func (ci *ChunkedIndex) Create(wg *pager.WriteGuard) (pager.PageID, error) {
	return ci.tree.Create(wg)
}

func chunkKey(label, prop uint32, value []byte, ordinal uint32) []byte {
	b := propPrefix(label, prop, value)
	ord := make([]byte, 4)
	binary.BigEndian.PutUint32(ord, ordinal)
	return append(b, ord...)
}

func encodeChunk(ids []NodeID) []byte {
	out := make([]byte, 8*len(ids))
	for i, id := range ids {
		binary.BigEndian.PutUint64(out[i*8:], id)
	}
	return out
}

func decodeChunk(b []byte) []NodeID {
	ids := make([]NodeID, len(b)/8)
	for i := range ids {
		ids[i] = binary.BigEndian.Uint64(b[i*8:])
	}
	return ids
}

// AddPosting inserts node into the chunk series for (label, prop,
// value), appending a fresh chunk once the latest one reaches
// chunkCapacity.
func (ci *ChunkedIndex) AddPosting(wg *pager.WriteGuard, root pager.PageID, label, prop uint32, value []byte, node NodeID) (pager.PageID, error) {
	lastOrd, lastIDs, err := ci.lastChunk(wg, root, label, prop, value)
	if err != nil {
		return root, err
	}
	if lastIDs == nil {
		return ci.tree.Insert(wg, root, chunkKey(label, prop, value, 0), encodeChunk([]NodeID{node}))
	}
	pos := sortedInsertPos(lastIDs, node)
	if pos < len(lastIDs) && lastIDs[pos] == node {
		return root, nil // already present
	}
	if len(lastIDs) < chunkCapacity {
		merged := make([]NodeID, 0, len(lastIDs)+1)
		merged = append(merged, lastIDs[:pos]...)
		merged = append(merged, node)
		merged = append(merged, lastIDs[pos:]...)
		return ci.tree.Insert(wg, root, chunkKey(label, prop, value, lastOrd), encodeChunk(merged))
	}
	return ci.tree.Insert(wg, root, chunkKey(label, prop, value, lastOrd+1), encodeChunk([]NodeID{node}))
}

// RemovePosting removes node from whichever chunk in the (label,
// prop, value) series contains it.
func (ci *ChunkedIndex) RemovePosting(wg *pager.WriteGuard, root pager.PageID, label, prop uint32, value []byte, node NodeID) (pager.PageID, error) {
	lo := propPrefix(label, prop, value)
	hi := propPrefix(label, prop, valueUpperBound(value, 4))
	type chunkHit struct {
		ordinal uint32
		ids     []NodeID
	}
	var hit *chunkHit
	err := ci.tree.Range(wg, root, &lo, &hi, func(k, v []byte) bool {
		ids := decodeChunk(v)
		for _, id := range ids {
			if id == node {
				ordinal := binary.BigEndian.Uint32(k[len(k)-4:])
				hit = &chunkHit{ordinal: ordinal, ids: ids}
				return false
			}
		}
		return true
	})
	if err != nil {
		return root, err
	}
	if hit == nil {
		return root, nil
	}
	pos := sortedInsertPos(hit.ids, node)
	remaining := append(append([]NodeID{}, hit.ids[:pos]...), hit.ids[pos+1:]...)
	key := chunkKey(label, prop, value, hit.ordinal)
	if len(remaining) == 0 {
		newRoot, _, err := ci.tree.Delete(wg, root, key)
		return newRoot, err
	}
	return ci.tree.Insert(wg, root, key, encodeChunk(remaining))
}

// ScanEq returns every node id posted under (label, prop, value).
func (ci *ChunkedIndex) ScanEq(g pageGetter, root pager.PageID, label, prop uint32, value []byte) (PostingStream, error) {
	lo := propPrefix(label, prop, value)
	hi := propPrefix(label, prop, valueUpperBound(value, 4))
	var ids []NodeID
	err := ci.tree.Range(g, root, &lo, &hi, func(k, v []byte) bool {
		ids = append(ids, decodeChunk(v)...)
		return true
	})
	if err != nil {
		return nil, err
	}
	return NewSliceStream(ids), nil
}

func (ci *ChunkedIndex) lastChunk(g pageGetter, root pager.PageID, label, prop uint32, value []byte) (uint32, []NodeID, error) {
	lo := propPrefix(label, prop, value)
	hi := propPrefix(label, prop, valueUpperBound(value, 4))
	var lastOrd uint32
	var lastIDs []NodeID
	err := ci.tree.Range(g, root, &lo, &hi, func(k, v []byte) bool {
		lastOrd = binary.BigEndian.Uint32(k[len(k)-4:])
		lastIDs = decodeChunk(v)
		return true
	})
	return lastOrd, lastIDs, err
}

func sortedInsertPos(ids []NodeID, node NodeID) int {
	lo, hi := 0, len(ids)
	for lo < hi {
		mid := (lo + hi) / 2
		if ids[mid] < node {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// --- B-tree ordered (range-capable) index ---

// OrderedIndex is a B-tree keyed by (label, prop, encoded_value,
// node_id) -> unit, spec §4.9 "B-tree ordered".
type OrderedIndex struct {
	tree *btree.Tree[[]byte, []byte]
}

func NewOrderedIndex() *OrderedIndex {
	return &OrderedIndex{tree: btree.New(unitCodec, unitCodec)}
}

func (oi *OrderedIndex) Create(wg *pager.WriteGuard) (pager.PageID, error) {
	return oi.tree.Create(wg)
}

func orderedKey(label, prop uint32, value []byte, node NodeID) []byte {
	b := propPrefix(label, prop, value)
	id := make([]byte, 8)
	binary.BigEndian.PutUint64(id, node)
	return append(b, id...)
}

func (oi *OrderedIndex) AddPosting(wg *pager.WriteGuard, root pager.PageID, label, prop uint32, value []byte, node NodeID) (pager.PageID, error) {
	return oi.tree.Insert(wg, root, orderedKey(label, prop, value, node), nil)
}

func (oi *OrderedIndex) RemovePosting(wg *pager.WriteGuard, root pager.PageID, label, prop uint32, value []byte, node NodeID) (pager.PageID, error) {
	newRoot, _, err := oi.tree.Delete(wg, root, orderedKey(label, prop, value, node))
	return newRoot, err
}

// ScanEq returns every node id posted under exactly (label, prop, value).
func (oi *OrderedIndex) ScanEq(g pageGetter, root pager.PageID, label, prop uint32, value []byte) (PostingStream, error) {
	return oi.ScanRange(g, root, label, prop, value, valueUpperBound(value, 8))
}

// ScanRange returns node ids whose encoded value falls in [lo, hi)
// (spec §4.9 "Range scans are fence-bounded iteration over encoded
// values").
func (oi *OrderedIndex) ScanRange(g pageGetter, root pager.PageID, label, prop uint32, lo, hi []byte) (PostingStream, error) {
	loKey := propPrefix(label, prop, lo)
	hiKey := propPrefix(label, prop, hi)
	var ids []NodeID
	err := oi.tree.Range(g, root, &loKey, &hiKey, func(k, v []byte) bool {
		ids = append(ids, binary.BigEndian.Uint64(k[len(k)-8:]))
		return true
	})
	if err != nil {
		return nil, err
	}
	return NewSliceStream(ids), nil
}
