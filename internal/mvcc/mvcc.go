// Package mvcc implements the version log of spec §4.10: a B-tree that
// records, per entity, a chain of (begin_ts, end_ts, payload_or_tombstone)
// versions, letting a reader pinned to a snapshot timestamp see the
// entity exactly as it stood at that instant regardless of writes that
// commit afterward.
package mvcc

import (
	"encoding/binary"
	"math"

	"github.com/maskdotdev/sombra-sub004/internal/btree"
	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
)

// EntityKind distinguishes node versions from edge versions sharing one
// version log tree (SPEC_FULL §3.6's "(entity_kind, entity_id, begin_ts)"
// key resolution of the spec's "(entity id, begin LSN, end LSN, payload
// pointer)" tuple).
type EntityKind uint8

const (
	KindNode EntityKind = iota
	KindEdge
)

// openEndTs marks a version with no successor yet, i.e. the entity's
// current version.
const openEndTs = math.MaxUint64

// pageGetter is satisfied by both *pager.WriteGuard and *pager.ReadGuard.
type pageGetter interface {
	GetPage(id pager.PageID) ([]byte, error)
}

func entityPrefix(kind EntityKind, id uint64) []byte {
	b := make([]byte, 9)
	b[0] = byte(kind)
	binary.BigEndian.PutUint64(b[1:], id)
	return b
}

func versionKey(kind EntityKind, id, beginTs uint64) []byte {
	b := make([]byte, 17)
	b[0] = byte(kind)
	binary.BigEndian.PutUint64(b[1:], id)
	binary.BigEndian.PutUint64(b[9:], beginTs)
	return b
}

func beginTsOf(key []byte) uint64 { return binary.BigEndian.Uint64(key[9:]) }

func encodeVersion(endTs uint64, tombstone bool, payload []byte) []byte {
	out := make([]byte, 9+len(payload))
	binary.BigEndian.PutUint64(out, endTs)
	if tombstone {
		out[8] = 1
	}
	copy(out[9:], payload)
	return out
}

func decodeVersion(raw []byte) (endTs uint64, tombstone bool, payload []byte) {
	endTs = binary.BigEndian.Uint64(raw)
	tombstone = raw[8] != 0
	payload = raw[9:]
	return
}

// Log is the version log B-tree plus its wrapping operations.
type Log struct {
	tree *btree.Tree[[]byte, []byte]
}

// New constructs a Log value. Log is stateless; durable state lives in
// pager.Meta.VersionLog, set by Create.
func New() *Log {
	return &Log{tree: btree.New(btree.BytesCodec, btree.BytesCodec)}
}

// Create allocates the version log's B-tree and returns its root.
func (l *Log) Create(wg *pager.WriteGuard) (pager.PageID, error) {
	return l.tree.Create(wg)
}

// currentVersion returns the entity's newest version (the one with the
// greatest begin_ts), or found=false if the entity has no versions yet.
func (l *Log) currentVersion(gg pageGetter, root pager.PageID, kind EntityKind, id uint64) (key, value []byte, found bool, err error) {
	lo := entityPrefix(kind, id)
	hi := entityPrefix(kind, id+1)
	if id == math.MaxUint64 {
		hi = nil
	}
	err = l.tree.Range(gg, root, &lo, &hi, func(k, v []byte) bool {
		key = append(key[:0:0], k...)
		value = append(value[:0:0], v...)
		found = true
		return true
	})
	return key, value, found, err
}

// RecordVersion closes the entity's current version (if any) by setting
// its end_ts to ts, then inserts a new version beginning at ts. ts must
// be strictly greater than the entity's last begin_ts (the caller's
// snapshot-ts allocator, see NextTs, guarantees this across a single
// WriteGuard). tombstone marks a delete_node/delete_edge version with no
// live payload, per spec §4.10.
func (l *Log) RecordVersion(wg *pager.WriteGuard, root pager.PageID, kind EntityKind, id, ts uint64, payload []byte, tombstone bool) (pager.PageID, error) {
	curKey, curVal, found, err := l.currentVersion(wg, root, kind, id)
	if err != nil {
		return root, err
	}
	if found {
		endTs, curTombstone, oldPayload := decodeVersion(curVal)
		if endTs != openEndTs {
			return root, errs.Corruption("mvcc: entity's newest version was already closed")
		}
		root, err = l.tree.Insert(wg, root, curKey, encodeVersion(ts, curTombstone, oldPayload))
		if err != nil {
			return root, err
		}
	}
	return l.tree.Insert(wg, root, versionKey(kind, id, ts), encodeVersion(openEndTs, tombstone, payload))
}

// Visible returns the payload visible to a reader snapshotted at ts: the
// version with the greatest begin_ts <= ts, if one exists and its
// end_ts > ts (always true by construction for such a version — see
// RecordVersion). found is false if the entity had no version yet at
// ts; tombstone is true if the visible version is a delete marker.
func (l *Log) Visible(gg pageGetter, root pager.PageID, kind EntityKind, id, ts uint64) (payload []byte, tombstone bool, found bool, err error) {
	if ts == math.MaxUint64 {
		return nil, false, false, errs.Invalid("mvcc: snapshot ts must be less than max uint64")
	}
	lo := entityPrefix(kind, id)
	hi := versionKey(kind, id, ts+1)
	var bestKey, bestVal []byte
	err = l.tree.Range(gg, root, &lo, &hi, func(k, v []byte) bool {
		if bestKey == nil || beginTsOf(k) > beginTsOf(bestKey) {
			bestKey = append(bestKey[:0:0], k...)
			bestVal = append(bestVal[:0:0], v...)
		}
		return true
	})
	if err != nil || bestKey == nil {
		return nil, false, false, err
	}
	endTs, tomb, p := decodeVersion(bestVal)
	if endTs <= ts {
		return nil, false, false, errs.Corruption("mvcc: visible version's end_ts did not exceed the query ts")
	}
	return p, tomb, true, nil
}

// Prune deletes every closed version of an entity whose end_ts is at or
// before horizonTs — the oldest ts still visible to any live snapshot —
// per spec §4.10's GC-eligibility rule ("eligible for GC only after all
// snapshots older than T2's ts have ended"). The current (open) version
// is never pruned.
func (l *Log) Prune(wg *pager.WriteGuard, root pager.PageID, kind EntityKind, id, horizonTs uint64) (pager.PageID, error) {
	lo := entityPrefix(kind, id)
	hi := entityPrefix(kind, id+1)
	if id == math.MaxUint64 {
		hi = nil
	}
	var toDelete [][]byte
	err := l.tree.Range(wg, root, &lo, &hi, func(k, v []byte) bool {
		endTs, _, _ := decodeVersion(v)
		if endTs != openEndTs && endTs <= horizonTs {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		return true
	})
	if err != nil {
		return root, err
	}
	for _, k := range toDelete {
		var err error
		root, _, err = l.tree.Delete(wg, root, k)
		if err != nil {
			return root, err
		}
	}
	return root, nil
}

// NextTs allocates the next monotonic snapshot/commit timestamp,
// reusing pager.Meta's version-id counter as the MVCC clock (spec §4.10
// calls for a "monotonic" timestamp; the meta page already carries
// exactly one such counter, so no separate field is introduced).
func NextTs(meta *pager.Meta) uint64 {
	ts := meta.NextVersionID
	meta.NextVersionID++
	return ts
}
