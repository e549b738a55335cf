package graph

import (
	"github.com/maskdotdev/sombra-sub004/internal/index"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
	"github.com/maskdotdev/sombra-sub004/internal/propval"
)

// CreateLabelIndex backfills postings for label across every existing
// node (spec §4.8/§4.9 "create_label_index"). New nodes and label-add
// patches already post to the shared label index unconditionally
// (indexmaint.go), so this call only matters for a label introduced
// before any node carried it, or re-created after DropLabelIndex
// removed its postings.
func (g *Graph) CreateLabelIndex(wg *pager.WriteGuard, label LabelID) error {
	meta := wg.Meta()
	var scanErr error
	var pending []NodeID
	err := g.nodes.Range(wg, meta.NodesRoot, nil, nil, func(id uint64, enc []byte) bool {
		rec, err := decodeNode(wg, g.dict, meta.DictStrToIDRoot, meta.DictIDToStrRoot, enc)
		if err != nil {
			scanErr = err
			return false
		}
		for _, l := range rec.Labels {
			if l == label {
				pending = append(pending, NodeID(id))
				break
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	if scanErr != nil {
		return scanErr
	}
	for _, id := range pending {
		newRoot, err := g.idx.Labels.AddLabel(wg, meta.LabelIndex, label, id)
		if err != nil {
			return err
		}
		meta.LabelIndex = newRoot
	}
	return nil
}

// DropLabelIndex removes every posting for label from the shared label
// index, without touching the label itself on any node record (spec
// §4.9 "drop_label_index"): label_scan(label) subsequently sees nothing
// until CreateLabelIndex backfills it again.
func (g *Graph) DropLabelIndex(wg *pager.WriteGuard, label LabelID) error {
	meta := wg.Meta()
	stream, err := g.idx.Labels.Scan(wg, meta.LabelIndex, label)
	if err != nil {
		return err
	}
	for _, id := range index.CollectAll(stream) {
		newRoot, err := g.idx.Labels.RemoveLabel(wg, meta.LabelIndex, label, id)
		if err != nil {
			return err
		}
		meta.LabelIndex = newRoot
	}
	return nil
}

// LabelScan returns every node id carrying label, in ascending id order
// (spec §4.9 "label_scan").
func (g *Graph) LabelScan(gg pageGetter, meta *pager.Meta, label LabelID) ([]NodeID, error) {
	stream, err := g.idx.Labels.Scan(gg, meta.LabelIndex, label)
	if err != nil {
		return nil, err
	}
	return index.CollectAll(stream), nil
}

// CreatePropertyIndex registers a property index of kind on (label,
// prop), bumping meta.DDLEpoch (spec §4.9 "create_property_index").
// Existing nodes carrying that label and property are backfilled by
// replaying their current value through addPropertyPostings.
func (g *Graph) CreatePropertyIndex(wg *pager.WriteGuard, label LabelID, prop PropID, kind index.Kind, typeTag propval.Kind) error {
	meta := wg.Meta()
	newCatRoot, err := g.idx.CreatePropertyIndex(wg, meta.IndexCatalog, label, prop, kind, typeTag, &meta.DDLEpoch)
	if err != nil {
		return err
	}
	meta.IndexCatalog = newCatRoot

	var scanErr error
	type backfillRow struct {
		node NodeID
		p    Prop
	}
	var pending []backfillRow
	err = g.nodes.Range(wg, meta.NodesRoot, nil, nil, func(id uint64, enc []byte) bool {
		rec, derr := decodeNode(wg, g.dict, meta.DictStrToIDRoot, meta.DictIDToStrRoot, enc)
		if derr != nil {
			scanErr = derr
			return false
		}
		hasLabel := false
		for _, l := range rec.Labels {
			if l == label {
				hasLabel = true
				break
			}
		}
		if !hasLabel {
			return true
		}
		if i, found := findProp(rec.Props, prop); found {
			pending = append(pending, backfillRow{node: NodeID(id), p: rec.Props[i]})
		}
		return true
	})
	if err != nil {
		return err
	}
	if scanErr != nil {
		return scanErr
	}
	for _, row := range pending {
		if err := g.addPropertyPostings(wg, meta, []LabelID{label}, row.p, row.node); err != nil {
			return err
		}
	}
	return nil
}

// DropPropertyIndex removes the (label, prop) index registration,
// bumping meta.DDLEpoch (spec §4.9 "drop_property_index"). The posting
// tree itself is abandoned rather than walked and freed page-by-page —
// matching DropPropertyIndex's own teardown in internal/index.
func (g *Graph) DropPropertyIndex(wg *pager.WriteGuard, label LabelID, prop PropID) error {
	meta := wg.Meta()
	newCatRoot, err := g.idx.DropPropertyIndex(wg, meta.IndexCatalog, label, prop, &meta.DDLEpoch)
	if err != nil {
		return err
	}
	meta.IndexCatalog = newCatRoot
	return nil
}

// PropertyScanEq returns every node whose (label, prop) value equals
// value (spec §4.9 "property_scan_eq").
func (g *Graph) PropertyScanEq(gg pageGetter, meta *pager.Meta, label LabelID, prop PropID, value propval.Value) ([]NodeID, error) {
	stream, err := g.PropertyScanEqStream(gg, meta, label, prop, value)
	if err != nil {
		return nil, err
	}
	return index.CollectAll(stream), nil
}

// PropertyScanEqStream is the streaming form of PropertyScanEq (spec
// §4.9 "property_scan_eq_stream"), used when the caller wants to
// intersect postings without materializing every match up front.
func (g *Graph) PropertyScanEqStream(gg pageGetter, meta *pager.Meta, label LabelID, prop PropID, value propval.Value) (index.PostingStream, error) {
	def, found, err := g.idx.Lookup(gg, meta.IndexCatalog, label, prop)
	if err != nil {
		return nil, err
	}
	if !found {
		return index.NewSliceStream(nil), nil
	}
	encVal, err := propval.EncodeOrdered(value)
	if err != nil {
		return nil, err
	}
	switch def.Kind {
	case index.KindChunked:
		return g.idx.Chunked.ScanEq(gg, def.RootPage, label, prop, encVal)
	default:
		return g.idx.Ordered.ScanEq(gg, def.RootPage, label, prop, encVal)
	}
}

// PropertyScanRange returns every node whose (label, prop) value falls
// in [lo, hi) — spec §4.9 "property_scan_range" — and requires an
// ordered (B-tree) index; a chunked (equality-only) index on the pair
// fails Invalid.
func (g *Graph) PropertyScanRange(gg pageGetter, meta *pager.Meta, label LabelID, prop PropID, lo, hi propval.Value) ([]NodeID, error) {
	stream, err := g.PropertyScanRangeStream(gg, meta, label, prop, lo, hi)
	if err != nil {
		return nil, err
	}
	return index.CollectAll(stream), nil
}

// PropertyScanRangeStream is the streaming form of PropertyScanRange
// (spec §4.9 "property_scan_range_stream").
func (g *Graph) PropertyScanRangeStream(gg pageGetter, meta *pager.Meta, label LabelID, prop PropID, lo, hi propval.Value) (index.PostingStream, error) {
	def, found, err := g.idx.Lookup(gg, meta.IndexCatalog, label, prop)
	if err != nil {
		return nil, err
	}
	if !found {
		return index.NewSliceStream(nil), nil
	}
	if def.Kind != index.KindOrdered {
		return nil, errRangeNeedsOrderedIndex(label, prop)
	}
	loEnc, err := propval.EncodeOrdered(lo)
	if err != nil {
		return nil, err
	}
	hiEnc, err := propval.EncodeOrdered(hi)
	if err != nil {
		return nil, err
	}
	return g.idx.Ordered.ScanRange(gg, def.RootPage, label, prop, loEnc, hiEnc)
}
