package btree

import (
	"encoding/binary"

	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
)

// Node layout (spec §4.6): the common pager.Header, then a fixed
// nodeHeaderSize payload header, then the low fence bytes and high
// fence bytes (allocated out of the same bottom-up record area as
// ordinary records, referenced by offset/length rather than living at
// a fixed spot — this lets a fence grow or shrink on a split or delete
// without having to slide the slot directory), then the slot
// directory growing upward from nodeHeaderSize, then record payloads
// growing downward from the end of the page.
const (
	nodeHeaderSize = 32

	offKind        = 0
	offSlotCount   = 2
	offFreeEnd     = 4
	offLowFOff     = 6
	offLowFLen     = 8
	offHighFOff    = 10
	offHighFLen    = 12
	offLeftSibling = 14
	offRightSib    = 18
	offParent      = 22

	slotEntrySize = 4 // Offset uint16, Length uint16
)

// NodeKind discriminates leaf from internal B-tree pages.
type NodeKind uint8

const (
	Leaf NodeKind = iota
	Internal
)

// Node wraps a raw page buffer (as returned by WriteGuard/ReadGuard)
// as a B-tree node.
type Node struct {
	buf []byte
}

func nodeHeaderStart() int { return pager.HeaderSize }
func payloadStart() int    { return pager.HeaderSize + nodeHeaderSize }

func hoff(o int) int { return nodeHeaderStart() + o }

// WrapNode views an existing page buffer as a Node.
func WrapNode(buf []byte) *Node { return &Node{buf: buf} }

// InitNode formats buf as a fresh, empty node of the given kind. The
// common pager.Header (page number, kind, size, salt) must already be
// stamped by the caller — WriteGuard.AllocatePage does this when given
// pager.KindBTreeLeaf or pager.KindBTreeInternal.
func InitNode(buf []byte, kind NodeKind) *Node {
	n := &Node{buf: buf}
	n.buf[hoff(offKind)] = byte(kind)
	n.setSlotCount(0)
	n.setFreeEnd(len(buf))
	n.setFenceRaw(offLowFOff, offLowFLen, 0, 0)
	n.setFenceRaw(offHighFOff, offHighFLen, 0, 0)
	n.SetLeftSibling(pager.InvalidPageID)
	n.SetRightSibling(pager.InvalidPageID)
	n.SetParent(pager.InvalidPageID)
	return n
}

func (n *Node) Buf() []byte { return n.buf }

func (n *Node) Kind() NodeKind { return NodeKind(n.buf[hoff(offKind)]) }
func (n *Node) IsLeaf() bool   { return n.Kind() == Leaf }

func (n *Node) SlotCount() int {
	return int(binary.LittleEndian.Uint16(n.buf[hoff(offSlotCount):]))
}
func (n *Node) setSlotCount(c int) {
	binary.LittleEndian.PutUint16(n.buf[hoff(offSlotCount):], uint16(c))
}

func (n *Node) freeEnd() int {
	return int(binary.LittleEndian.Uint16(n.buf[hoff(offFreeEnd):]))
}
func (n *Node) setFreeEnd(v int) {
	binary.LittleEndian.PutUint16(n.buf[hoff(offFreeEnd):], uint16(v))
}

func (n *Node) setFenceRaw(offOff, lenOff, off, length int) {
	binary.LittleEndian.PutUint16(n.buf[hoff(offOff):], uint16(off))
	binary.LittleEndian.PutUint16(n.buf[hoff(lenOff):], uint16(length))
}

// LowFence returns the page's low fence (empty means the tree's
// leftmost key, i.e. -infinity).
func (n *Node) LowFence() []byte { return n.fenceBytes(offLowFOff, offLowFLen) }

// HighFence returns the page's high fence (empty means +infinity).
func (n *Node) HighFence() []byte { return n.fenceBytes(offHighFOff, offHighFLen) }

func (n *Node) fenceBytes(offOff, lenOff int) []byte {
	off := int(binary.LittleEndian.Uint16(n.buf[hoff(offOff):]))
	length := int(binary.LittleEndian.Uint16(n.buf[hoff(lenOff):]))
	if length == 0 {
		return nil
	}
	return n.buf[off : off+length]
}

// SetLowFence allocates storage for a new low fence value. Returns
// false if there is not enough free space.
func (n *Node) SetLowFence(v []byte) bool { return n.setFence(offLowFOff, offLowFLen, v) }

// SetHighFence allocates storage for a new high fence value.
func (n *Node) SetHighFence(v []byte) bool { return n.setFence(offHighFOff, offHighFLen, v) }

func (n *Node) setFence(offOff, lenOff int, v []byte) bool {
	if len(v) == 0 {
		binary.LittleEndian.PutUint16(n.buf[hoff(offOff):], 0)
		binary.LittleEndian.PutUint16(n.buf[hoff(lenOff):], 0)
		return true
	}
	off, ok := n.allocate(len(v))
	if !ok {
		return false
	}
	copy(n.buf[off:], v)
	binary.LittleEndian.PutUint16(n.buf[hoff(offOff):], uint16(off))
	binary.LittleEndian.PutUint16(n.buf[hoff(lenOff):], uint16(len(v)))
	return true
}

func (n *Node) LeftSibling() pager.PageID {
	return pager.PageID(binary.LittleEndian.Uint32(n.buf[hoff(offLeftSibling):]))
}
func (n *Node) SetLeftSibling(id pager.PageID) {
	binary.LittleEndian.PutUint32(n.buf[hoff(offLeftSibling):], uint32(id))
}
func (n *Node) RightSibling() pager.PageID {
	return pager.PageID(binary.LittleEndian.Uint32(n.buf[hoff(offRightSib):]))
}
func (n *Node) SetRightSibling(id pager.PageID) {
	binary.LittleEndian.PutUint32(n.buf[hoff(offRightSib):], uint32(id))
}
// RightmostChild is only meaningful on internal nodes, where it
// repurposes the RightSibling field slot, since internal nodes never
// need sibling links (those are a leaf-only concept for range scans).
// Parent, below, is kept on leaves and internal nodes alike.
func (n *Node) RightmostChild() pager.PageID    { return n.RightSibling() }
func (n *Node) SetRightmostChild(id pager.PageID) { n.SetRightSibling(id) }

func (n *Node) Parent() pager.PageID {
	return pager.PageID(binary.LittleEndian.Uint32(n.buf[hoff(offParent):]))
}
func (n *Node) SetParent(id pager.PageID) {
	binary.LittleEndian.PutUint32(n.buf[hoff(offParent):], uint32(id))
}

func (n *Node) slotDirStart() int { return payloadStart() }
func (n *Node) slotDirEnd() int   { return n.slotDirStart() + n.SlotCount()*slotEntrySize }

// freeSpace reports bytes available for a new record plus its slot
// entry, accounting for the directory's own growth.
func (n *Node) freeSpace() int {
	return n.freeEnd() - n.slotDirEnd()
}

func (n *Node) slot(i int) (off, length int) {
	base := n.slotDirStart() + i*slotEntrySize
	return int(binary.LittleEndian.Uint16(n.buf[base:])), int(binary.LittleEndian.Uint16(n.buf[base+2:]))
}

func (n *Node) setSlot(i, off, length int) {
	base := n.slotDirStart() + i*slotEntrySize
	binary.LittleEndian.PutUint16(n.buf[base:], uint16(off))
	binary.LittleEndian.PutUint16(n.buf[base+2:], uint16(length))
}

// Record returns the raw bytes of the i-th slot.
func (n *Node) Record(i int) []byte {
	off, length := n.slot(i)
	return n.buf[off : off+length]
}

// allocate bump-allocates length bytes from the top of the free
// region (the record area grows downward from the page end).
func (n *Node) allocate(length int) (int, bool) {
	if n.freeSpace() < length {
		return 0, false
	}
	newEnd := n.freeEnd() - length
	if newEnd < n.slotDirEnd() {
		return 0, false
	}
	n.setFreeEnd(newEnd)
	return newEnd, true
}

// insertSlotAt places data's bytes into the record area and inserts a
// slot entry at sorted position pos, shifting later slots right.
// Returns false if there is insufficient free space.
func (n *Node) insertSlotAt(pos int, data []byte) bool {
	if n.freeSpace() < len(data)+slotEntrySize {
		return false
	}
	off, ok := n.allocate(len(data))
	if !ok {
		return false
	}
	copy(n.buf[off:], data)

	sc := n.SlotCount()
	n.setSlotCount(sc + 1)
	for i := sc; i > pos; i-- {
		o, l := n.slot(i - 1)
		n.setSlot(i, o, l)
	}
	n.setSlot(pos, off, len(data))
	return true
}

// deleteSlotAt removes slot pos, shifting later slots left. The
// record bytes become dead space, reclaimed on the next Compact.
func (n *Node) deleteSlotAt(pos int) {
	sc := n.SlotCount()
	for i := pos; i < sc-1; i++ {
		o, l := n.slot(i + 1)
		n.setSlot(i, o, l)
	}
	n.setSlotCount(sc - 1)
}

// Compact rebuilds the page in place, packing live records
// contiguously from the page end and reclaiming space left behind by
// deletions and superseded fences. Spec §4.6: "compact wasted space
// before rebuilding."
func (n *Node) Compact() {
	sc := n.SlotCount()
	records := make([][]byte, sc)
	for i := 0; i < sc; i++ {
		rec := n.Record(i)
		cp := make([]byte, len(rec))
		copy(cp, rec)
		records[i] = cp
	}
	low := append([]byte(nil), n.LowFence()...)
	high := append([]byte(nil), n.HighFence()...)
	left, right, parent, kind := n.LeftSibling(), n.RightSibling(), n.Parent(), n.Kind()

	n.setSlotCount(0)
	n.setFreeEnd(len(n.buf))
	n.buf[hoff(offKind)] = byte(kind)
	n.SetLeftSibling(left)
	n.SetRightSibling(right)
	n.SetParent(parent)
	n.SetLowFence(low)
	n.SetHighFence(high)
	for i, rec := range records {
		// Space was already proven sufficient (we just freed it all);
		// a failure here would mean the page format is inconsistent.
		if !n.insertSlotAt(i, rec) {
			panic("btree: compaction could not reinsert a live record")
		}
	}
}

// --- record codecs ---

func putUvarint(dst []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}

func encodeLeafRecord(key, value []byte) []byte {
	rec := make([]byte, 0, len(key)+len(value)+2*binary.MaxVarintLen64)
	rec = putUvarint(rec, uint64(len(key)))
	rec = append(rec, key...)
	rec = putUvarint(rec, uint64(len(value)))
	rec = append(rec, value...)
	return rec
}

func decodeLeafKey(rec []byte) []byte {
	kl, n := binary.Uvarint(rec)
	return rec[n : n+int(kl)]
}

func decodeLeafRecord(rec []byte) (key, value []byte, err error) {
	kl, n := binary.Uvarint(rec)
	if n <= 0 {
		return nil, nil, errs.Corruption("btree: malformed leaf record key length")
	}
	rec = rec[n:]
	if uint64(len(rec)) < kl {
		return nil, nil, errs.Corruption("btree: leaf record key overruns record")
	}
	key = rec[:kl]
	rec = rec[kl:]
	vl, n2 := binary.Uvarint(rec)
	if n2 <= 0 {
		return nil, nil, errs.Corruption("btree: malformed leaf record value length")
	}
	rec = rec[n2:]
	if uint64(len(rec)) < vl {
		return nil, nil, errs.Corruption("btree: leaf record value overruns record")
	}
	return key, rec[:vl], nil
}

func encodeInternalRecord(separator []byte, child pager.PageID) []byte {
	rec := make([]byte, 0, len(separator)+binary.MaxVarintLen64+4)
	rec = putUvarint(rec, uint64(len(separator)))
	rec = append(rec, separator...)
	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], uint32(child))
	rec = append(rec, idBuf[:]...)
	return rec
}

func decodeInternalKey(rec []byte) []byte {
	sl, n := binary.Uvarint(rec)
	return rec[n : n+int(sl)]
}

func decodeInternalRecord(rec []byte) (separator []byte, child pager.PageID, err error) {
	sl, n := binary.Uvarint(rec)
	if n <= 0 {
		return nil, 0, errs.Corruption("btree: malformed internal record separator length")
	}
	rec = rec[n:]
	if uint64(len(rec)) < sl+4 {
		return nil, 0, errs.Corruption("btree: internal record overruns page")
	}
	separator = rec[:sl]
	child = pager.PageID(binary.BigEndian.Uint32(rec[sl : sl+4]))
	return separator, child, nil
}
