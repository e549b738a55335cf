package graph

import (
	"github.com/maskdotdev/sombra-sub004/internal/index"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
	"github.com/maskdotdev/sombra-sub004/internal/propval"
)

// addLabelPostings inserts (label, node) into the label index for
// every label in labels.
func (g *Graph) addLabelPostings(wg *pager.WriteGuard, meta *pager.Meta, labels []LabelID, node NodeID) error {
	for _, l := range labels {
		newRoot, err := g.idx.Labels.AddLabel(wg, meta.LabelIndex, l, node)
		if err != nil {
			return err
		}
		meta.LabelIndex = newRoot
	}
	return nil
}

// removeLabelPostings deletes (label, node) from the label index for
// every label in labels.
func (g *Graph) removeLabelPostings(wg *pager.WriteGuard, meta *pager.Meta, labels []LabelID, node NodeID) error {
	for _, l := range labels {
		newRoot, err := g.idx.Labels.RemoveLabel(wg, meta.LabelIndex, l, node)
		if err != nil {
			return err
		}
		meta.LabelIndex = newRoot
	}
	return nil
}

// addPropertyPostings inserts node into every property index defined
// for (label, p.ID), for each label currently on the node. Property
// indexes are scoped per (label, prop) pair (spec §4.9's catalog key),
// so a property is only posted under labels that actually carry an
// index for it — most nodes will hit zero catalog entries here.
func (g *Graph) addPropertyPostings(wg *pager.WriteGuard, meta *pager.Meta, labels []LabelID, p Prop, node NodeID) error {
	for _, l := range labels {
		def, found, err := g.idx.Lookup(wg, meta.IndexCatalog, l, p.ID)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		encVal, err := propval.EncodeOrdered(p.Value)
		if err != nil {
			return err
		}
		if err := g.mutateOnePosting(wg, meta, def, l, p.ID, encVal, node, true); err != nil {
			return err
		}
	}
	return nil
}

// removePropertyPostings is addPropertyPostings' inverse, used when a
// property is deleted or overwritten with a different value.
func (g *Graph) removePropertyPostings(wg *pager.WriteGuard, meta *pager.Meta, labels []LabelID, p Prop, node NodeID) error {
	for _, l := range labels {
		def, found, err := g.idx.Lookup(wg, meta.IndexCatalog, l, p.ID)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		encVal, err := propval.EncodeOrdered(p.Value)
		if err != nil {
			return err
		}
		if err := g.mutateOnePosting(wg, meta, def, l, p.ID, encVal, node, false); err != nil {
			return err
		}
	}
	return nil
}

// mutateOnePosting adds or removes node from the one property index
// named by def, then writes the (possibly changed) tree root back into
// the catalog — an Insert/Delete on the underlying B-tree can return a
// different root than it was called with.
func (g *Graph) mutateOnePosting(wg *pager.WriteGuard, meta *pager.Meta, def index.Def, label, prop uint32, encVal []byte, node NodeID, add bool) error {
	var newIndexRoot pager.PageID
	var err error
	switch def.Kind {
	case index.KindChunked:
		if add {
			newIndexRoot, err = g.idx.Chunked.AddPosting(wg, def.RootPage, label, prop, encVal, node)
		} else {
			newIndexRoot, err = g.idx.Chunked.RemovePosting(wg, def.RootPage, label, prop, encVal, node)
		}
	case index.KindOrdered:
		if add {
			newIndexRoot, err = g.idx.Ordered.AddPosting(wg, def.RootPage, label, prop, encVal, node)
		} else {
			newIndexRoot, err = g.idx.Ordered.RemovePosting(wg, def.RootPage, label, prop, encVal, node)
		}
	}
	if err != nil {
		return err
	}
	newCatalogRoot, err := g.idx.UpdateRoot(wg, meta.IndexCatalog, label, prop, newIndexRoot)
	if err != nil {
		return err
	}
	meta.IndexCatalog = newCatalogRoot
	return nil
}
