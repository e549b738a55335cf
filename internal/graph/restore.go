package graph

import "github.com/maskdotdev/sombra-sub004/internal/pager"

// RestoreNode inserts rec under an explicit, caller-supplied id and
// maintains label/property postings exactly as CreateNode would. Unlike
// CreateNode it does not allocate an id, letting a vacuum pass preserve
// node identity across a rewritten file (spec §6 "vacuum ... copy-walking
// all live entities from the old graph into the new").
func (g *Graph) RestoreNode(wg *pager.WriteGuard, id NodeID, rec NodeRecord) error {
	meta := wg.Meta()
	sorted := append([]Prop(nil), rec.Props...)
	sortPropsByID(sorted)

	enc, err := encodeNode(wg, g.dict, meta, NodeRecord{Labels: rec.Labels, Props: sorted})
	if err != nil {
		return err
	}
	newRoot, err := g.nodes.Insert(wg, meta.NodesRoot, id, enc)
	if err != nil {
		return err
	}
	meta.NodesRoot = newRoot

	if err := g.addLabelPostings(wg, meta, rec.Labels, id); err != nil {
		return err
	}
	for _, p := range sorted {
		if err := g.addPropertyPostings(wg, meta, rec.Labels, p, id); err != nil {
			return err
		}
	}
	return nil
}

// RestoreEdge inserts rec under an explicit id, wiring adjacency and
// degree-cache entries exactly as CreateEdge would (endpoint existence
// is trusted: a vacuum pass only ever replays edges already validated
// by the database being copied).
func (g *Graph) RestoreEdge(wg *pager.WriteGuard, id EdgeID, rec EdgeRecord) error {
	meta := wg.Meta()
	sorted := append([]Prop(nil), rec.Props...)
	sortPropsByID(sorted)

	enc, err := encodeEdge(wg, g.dict, meta, EdgeRecord{Src: rec.Src, Dst: rec.Dst, Type: rec.Type, Props: sorted})
	if err != nil {
		return err
	}
	newRoot, err := g.edges.Insert(wg, meta.EdgesRoot, id, enc)
	if err != nil {
		return err
	}
	meta.EdgesRoot = newRoot

	if err := g.insertAdjacency(wg, meta, rec.Src, rec.Dst, rec.Type, id); err != nil {
		return err
	}
	if err := g.bumpDegree(wg, meta, rec.Src, Out, rec.Type, 1); err != nil {
		return err
	}
	if err := g.bumpDegree(wg, meta, rec.Dst, In, rec.Type, 1); err != nil {
		return err
	}
	return nil
}
