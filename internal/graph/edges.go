package graph

import "github.com/maskdotdev/sombra-sub004/internal/pager"

// CreateEdge validates both endpoints exist (unless trusted is true,
// meaning a GraphWriter bulk loader already validated the batch),
// writes the edge record, inserts it into forward and reverse
// adjacency, and bumps degree-cache entries if enabled (spec §4.8
// "create_edge").
func (g *Graph) CreateEdge(wg *pager.WriteGuard, src, dst NodeID, ty TypeID, props []Prop, trusted bool) (EdgeID, error) {
	meta := wg.Meta()
	if err := g.requireInterned(wg, meta.DictIDToStrRoot, ty, "type"); err != nil {
		return 0, err
	}
	for _, p := range props {
		if err := g.requireInterned(wg, meta.DictIDToStrRoot, p.ID, "prop"); err != nil {
			return 0, err
		}
	}
	if !trusted {
		if _, found, err := g.nodes.Get(wg, meta.NodesRoot, src); err != nil {
			return 0, err
		} else if !found {
			return 0, invalidEndpointMissing(src)
		}
		if _, found, err := g.nodes.Get(wg, meta.NodesRoot, dst); err != nil {
			return 0, err
		} else if !found {
			return 0, invalidEndpointMissing(dst)
		}
	}

	sorted := append([]Prop(nil), props...)
	sortPropsByID(sorted)

	id := meta.NextEdgeID
	meta.NextEdgeID++

	enc, err := encodeEdge(wg, g.dict, meta, EdgeRecord{Src: src, Dst: dst, Type: ty, Props: sorted})
	if err != nil {
		return 0, err
	}
	newRoot, err := g.edges.Insert(wg, meta.EdgesRoot, id, enc)
	if err != nil {
		return 0, err
	}
	meta.EdgesRoot = newRoot

	if err := g.insertAdjacency(wg, meta, src, dst, ty, id); err != nil {
		return 0, err
	}
	if err := g.bumpDegree(wg, meta, src, Out, ty, 1); err != nil {
		return 0, err
	}
	if err := g.bumpDegree(wg, meta, dst, In, ty, 1); err != nil {
		return 0, err
	}
	return id, nil
}

func (g *Graph) insertAdjacency(wg *pager.WriteGuard, meta *pager.Meta, src, dst NodeID, ty TypeID, edge EdgeID) error {
	newFwd, err := g.adjFwd.Insert(wg, meta.AdjFwdRoot, adjKey(src, ty, dst, edge), nil)
	if err != nil {
		return err
	}
	meta.AdjFwdRoot = newFwd
	newRev, err := g.adjRev.Insert(wg, meta.AdjRevRoot, adjKey(dst, ty, src, edge), nil)
	if err != nil {
		return err
	}
	meta.AdjRevRoot = newRev
	return nil
}

func (g *Graph) removeAdjacency(wg *pager.WriteGuard, meta *pager.Meta, src, dst NodeID, ty TypeID, edge EdgeID) error {
	newFwd, _, err := g.adjFwd.Delete(wg, meta.AdjFwdRoot, adjKey(src, ty, dst, edge))
	if err != nil {
		return err
	}
	meta.AdjFwdRoot = newFwd
	newRev, _, err := g.adjRev.Delete(wg, meta.AdjRevRoot, adjKey(dst, ty, src, edge))
	if err != nil {
		return err
	}
	meta.AdjRevRoot = newRev
	return nil
}

// UpdateEdge applies an ordered property patch to an edge record
// (spec §4.8 "update_edge"). Edges carry no labels, so only the
// patch's Props steps apply.
func (g *Graph) UpdateEdge(wg *pager.WriteGuard, id EdgeID, patch Patch) error {
	meta := wg.Meta()
	rec, found, err := g.GetEdge(wg, meta, id)
	if err != nil {
		return err
	}
	if !found {
		return notFoundEdge(id)
	}

	for _, op := range patch.Props {
		switch op.Kind {
		case PropSet:
			if err := g.requireInterned(wg, meta.DictIDToStrRoot, op.ID, "prop"); err != nil {
				return err
			}
			if i, present := findProp(rec.Props, op.ID); present {
				rec.Props[i].Value = op.Value
			} else {
				rec.Props = append(rec.Props, Prop{})
				copy(rec.Props[i+1:], rec.Props[i:len(rec.Props)-1])
				rec.Props[i] = Prop{ID: op.ID, Value: op.Value}
			}
		case PropDelete:
			if i, present := findProp(rec.Props, op.ID); present {
				rec.Props = append(rec.Props[:i], rec.Props[i+1:]...)
			}
		}
	}

	enc, err := encodeEdge(wg, g.dict, meta, rec)
	if err != nil {
		return err
	}
	newRoot, err := g.edges.Insert(wg, meta.EdgesRoot, id, enc)
	if err != nil {
		return err
	}
	meta.EdgesRoot = newRoot
	return nil
}

// DeleteEdge removes the edge record, both adjacency entries, and
// decrements degree-cache entries (spec §4.8 "delete_edge").
func (g *Graph) DeleteEdge(wg *pager.WriteGuard, id EdgeID) error {
	meta := wg.Meta()
	rec, found, err := g.GetEdge(wg, meta, id)
	if err != nil {
		return err
	}
	if !found {
		return notFoundEdge(id)
	}

	if err := g.removeAdjacency(wg, meta, rec.Src, rec.Dst, rec.Type, id); err != nil {
		return err
	}
	if err := g.bumpDegree(wg, meta, rec.Src, Out, rec.Type, -1); err != nil {
		return err
	}
	if err := g.bumpDegree(wg, meta, rec.Dst, In, rec.Type, -1); err != nil {
		return err
	}

	newRoot, _, err := g.edges.Delete(wg, meta.EdgesRoot, id)
	if err != nil {
		return err
	}
	meta.EdgesRoot = newRoot
	return nil
}
