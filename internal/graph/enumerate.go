package graph

import "github.com/maskdotdev/sombra-sub004/internal/pager"

// NodeEntry pairs a decoded node record with its id, returned by
// AllNodes for callers that need to walk every live node: vacuum's copy
// pass and verify's referential-integrity pass (spec §6).
type NodeEntry struct {
	ID     NodeID
	Record NodeRecord
}

// EdgeEntry pairs a decoded edge record with its id, returned by
// AllEdges.
type EdgeEntry struct {
	ID     EdgeID
	Record EdgeRecord
}

// AllNodes decodes and returns every node record in ascending id order.
func (g *Graph) AllNodes(gg pageGetter, meta *pager.Meta) ([]NodeEntry, error) {
	var out []NodeEntry
	var decErr error
	err := g.nodes.Range(gg, meta.NodesRoot, nil, nil, func(id uint64, raw []byte) bool {
		rec, derr := decodeNode(gg, g.dict, meta.DictStrToIDRoot, meta.DictIDToStrRoot, raw)
		if derr != nil {
			decErr = derr
			return false
		}
		out = append(out, NodeEntry{ID: id, Record: rec})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decErr
}

// AllEdges decodes and returns every edge record in ascending id order.
func (g *Graph) AllEdges(gg pageGetter, meta *pager.Meta) ([]EdgeEntry, error) {
	var out []EdgeEntry
	var decErr error
	err := g.edges.Range(gg, meta.EdgesRoot, nil, nil, func(id uint64, raw []byte) bool {
		rec, derr := decodeEdge(gg, g.dict, meta.DictStrToIDRoot, meta.DictIDToStrRoot, raw)
		if derr != nil {
			decErr = derr
			return false
		}
		out = append(out, EdgeEntry{ID: id, Record: rec})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decErr
}
