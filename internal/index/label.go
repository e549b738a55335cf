package index

import (
	"encoding/binary"

	"github.com/maskdotdev/sombra-sub004/internal/btree"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
)

// pageGetter is satisfied by both *pager.WriteGuard and *pager.ReadGuard.
type pageGetter interface {
	GetPage(id pager.PageID) ([]byte, error)
}

// unitCodec stores no meaningful value bytes; every posting tree in
// this package is really a set, keyed entirely by its composite key.
var unitCodec = btree.Codec[[]byte]{
	Encode: func(b []byte) []byte { return b },
	Decode: func(b []byte) ([]byte, error) { return b, nil },
}

// LabelIndex is the single posting tree of spec §4.9 "Label index":
// one B-tree keyed by (label_id, node_id) serving every label, rather
// than one tree per label, matching the spec's literal key shape.
type LabelIndex struct {
	tree *btree.Tree[[]byte, []byte]
}

func NewLabelIndex() *LabelIndex {
	return &LabelIndex{tree: btree.New(unitCodec, unitCodec)}
}

func (li *LabelIndex) Create(wg *pager.WriteGuard) (pager.PageID, error) {
	return li.tree.Create(wg)
}

func labelKey(label uint32, node NodeID) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b, label)
	binary.BigEndian.PutUint64(b[4:], node)
	return b
}

func labelPrefixBound(label uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, label)
	return b
}

// AddLabel inserts (label, node) into the posting tree.
func (li *LabelIndex) AddLabel(wg *pager.WriteGuard, root pager.PageID, label uint32, node NodeID) (pager.PageID, error) {
	return li.tree.Insert(wg, root, labelKey(label, node), nil)
}

// RemoveLabel deletes (label, node) from the posting tree, if present.
func (li *LabelIndex) RemoveLabel(wg *pager.WriteGuard, root pager.PageID, label uint32, node NodeID) (pager.PageID, error) {
	newRoot, _, err := li.tree.Delete(wg, root, labelKey(label, node))
	return newRoot, err
}

// Scan returns node ids carrying label in ascending order (spec
// §4.9 "label_scan(label)").
func (li *LabelIndex) Scan(g pageGetter, root pager.PageID, label uint32) (PostingStream, error) {
	lo := labelPrefixBound(label)
	hi := labelPrefixBound(label + 1)
	var ids []NodeID
	err := li.tree.Range(g, root, &lo, &hi, func(k, v []byte) bool {
		ids = append(ids, binary.BigEndian.Uint64(k[4:]))
		return true
	})
	if err != nil {
		return nil, err
	}
	return NewSliceStream(ids), nil
}

// IntersectLabels scans every label in labels and intersects the
// resulting postings, per SPEC_FULL §3.4's bulk-import enrichment
// built from label_scan + intersect_k.
func (li *LabelIndex) IntersectLabels(g pageGetter, root pager.PageID, labels []uint32) ([]NodeID, error) {
	streams := make([]PostingStream, 0, len(labels))
	for _, l := range labels {
		s, err := li.Scan(g, root, l)
		if err != nil {
			return nil, err
		}
		streams = append(streams, s)
	}
	return IntersectK(streams), nil
}
