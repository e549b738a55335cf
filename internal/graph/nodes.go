package graph

import "github.com/maskdotdev/sombra-sub004/internal/pager"

// CreateNode allocates the next node id, validates that every label
// and prop id has already been interned, writes the node record, and
// maintains the label index and any property indexes scoped to the
// node's labels (spec §4.8 "create_node").
func (g *Graph) CreateNode(wg *pager.WriteGuard, labels []LabelID, props []Prop) (NodeID, error) {
	meta := wg.Meta()
	for _, l := range labels {
		if err := g.requireInterned(wg, meta.DictIDToStrRoot, l, "label"); err != nil {
			return 0, err
		}
	}
	for _, p := range props {
		if err := g.requireInterned(wg, meta.DictIDToStrRoot, p.ID, "prop"); err != nil {
			return 0, err
		}
	}
	sorted := append([]Prop(nil), props...)
	sortPropsByID(sorted)

	id := meta.NextNodeID
	meta.NextNodeID++

	enc, err := encodeNode(wg, g.dict, meta, NodeRecord{Labels: labels, Props: sorted})
	if err != nil {
		return 0, err
	}
	newRoot, err := g.nodes.Insert(wg, meta.NodesRoot, id, enc)
	if err != nil {
		return 0, err
	}
	meta.NodesRoot = newRoot

	if err := g.addLabelPostings(wg, meta, labels, id); err != nil {
		return 0, err
	}
	for _, p := range sorted {
		if err := g.addPropertyPostings(wg, meta, labels, p, id); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// UpdateNode loads the current record, applies patch (labels first,
// then properties, per SPEC_FULL §3.4), rewrites the record, and keeps
// the label and property indexes in sync (spec §4.8 "update_node").
func (g *Graph) UpdateNode(wg *pager.WriteGuard, id NodeID, patch Patch) error {
	meta := wg.Meta()
	rec, found, err := g.GetNode(wg, meta, id)
	if err != nil {
		return err
	}
	if !found {
		return notFoundNode(id)
	}

	for _, op := range patch.Labels {
		switch op.Kind {
		case LabelAdd:
			if _, present := findLabel(rec.Labels, op.ID); !present {
				if err := g.requireInterned(wg, meta.DictIDToStrRoot, op.ID, "label"); err != nil {
					return err
				}
				rec.Labels = append(rec.Labels, op.ID)
				if err := g.addLabelPostings(wg, meta, []LabelID{op.ID}, id); err != nil {
					return err
				}
				for _, p := range rec.Props {
					if err := g.addPropertyPostings(wg, meta, []LabelID{op.ID}, p, id); err != nil {
						return err
					}
				}
			}
		case LabelRemove:
			if i, present := findLabel(rec.Labels, op.ID); present {
				rec.Labels = append(rec.Labels[:i], rec.Labels[i+1:]...)
				if err := g.removeLabelPostings(wg, meta, []LabelID{op.ID}, id); err != nil {
					return err
				}
				for _, p := range rec.Props {
					if err := g.removePropertyPostings(wg, meta, []LabelID{op.ID}, p, id); err != nil {
						return err
					}
				}
			}
		}
	}

	for _, op := range patch.Props {
		switch op.Kind {
		case PropSet:
			if err := g.requireInterned(wg, meta.DictIDToStrRoot, op.ID, "prop"); err != nil {
				return err
			}
			if i, present := findProp(rec.Props, op.ID); present {
				old := rec.Props[i]
				if err := g.removePropertyPostings(wg, meta, rec.Labels, old, id); err != nil {
					return err
				}
				rec.Props[i].Value = op.Value
			} else {
				rec.Props = append(rec.Props, Prop{})
				copy(rec.Props[i+1:], rec.Props[i:len(rec.Props)-1])
				rec.Props[i] = Prop{ID: op.ID, Value: op.Value}
			}
			if err := g.addPropertyPostings(wg, meta, rec.Labels, Prop{ID: op.ID, Value: op.Value}, id); err != nil {
				return err
			}
		case PropDelete:
			if i, present := findProp(rec.Props, op.ID); present {
				old := rec.Props[i]
				if err := g.removePropertyPostings(wg, meta, rec.Labels, old, id); err != nil {
					return err
				}
				rec.Props = append(rec.Props[:i], rec.Props[i+1:]...)
			}
		}
	}

	enc, err := encodeNode(wg, g.dict, meta, rec)
	if err != nil {
		return err
	}
	newRoot, err := g.nodes.Insert(wg, meta.NodesRoot, id, enc)
	if err != nil {
		return err
	}
	meta.NodesRoot = newRoot
	return nil
}

// DeleteOpts controls delete_node's handling of incident edges.
type DeleteOpts struct {
	Cascade bool // if true, delete every incident edge first
}

// DeleteNode removes a node's record and every index posting it holds.
// With Cascade unset, it fails Invalid if the node has any incident
// edge; with Cascade set, it deletes every incident edge first (spec
// §4.8 "delete_node").
func (g *Graph) DeleteNode(wg *pager.WriteGuard, id NodeID, opts DeleteOpts) error {
	meta := wg.Meta()
	rec, found, err := g.GetNode(wg, meta, id)
	if err != nil {
		return err
	}
	if !found {
		return notFoundNode(id)
	}

	incident, err := g.collectIncidentEdges(wg, meta, id)
	if err != nil {
		return err
	}
	if len(incident) > 0 {
		if !opts.Cascade {
			return invalidHasIncidentEdges(id)
		}
		for _, eid := range incident {
			if err := g.DeleteEdge(wg, eid); err != nil {
				return err
			}
		}
	}

	if err := g.removeLabelPostings(wg, meta, rec.Labels, id); err != nil {
		return err
	}
	for _, p := range rec.Props {
		if err := g.removePropertyPostings(wg, meta, rec.Labels, p, id); err != nil {
			return err
		}
	}

	newRoot, _, err := g.nodes.Delete(wg, meta.NodesRoot, id)
	if err != nil {
		return err
	}
	meta.NodesRoot = newRoot
	return nil
}
