package graph

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
)

// defaultExistsCacheSize bounds the GraphWriter's "node id exists" LRU,
// trading a little memory for avoiding a repeated B-tree lookup per
// edge on a hot import path.
const defaultExistsCacheSize = 8192

// GraphWriter is the bulk-loading front end of spec §4.8: it wraps a
// Graph with a bounded cache of "node id exists" decisions and an
// optional trusted_endpoints mode in which an external validator
// guarantees endpoint existence instead of per-edge B-tree lookups.
type GraphWriter struct {
	g     *Graph
	exist *lru.Cache[NodeID, bool]

	trustedEndpoints bool
	batchValidated   bool
}

// NewGraphWriter wraps g. trustedEndpoints selects the contract where
// create_edge requires a prior successful ValidateTrustedBatch call.
func NewGraphWriter(g *Graph, trustedEndpoints bool) (*GraphWriter, error) {
	cache, err := lru.New[NodeID, bool](defaultExistsCacheSize)
	if err != nil {
		return nil, errs.Io("graph: failed to allocate writer exists-cache", err)
	}
	return &GraphWriter{g: g, exist: cache, trustedEndpoints: trustedEndpoints}, nil
}

// CreateNode delegates to Graph.CreateNode and primes the exists cache
// with the freshly minted id.
func (w *GraphWriter) CreateNode(wg *pager.WriteGuard, labels []LabelID, props []Prop) (NodeID, error) {
	id, err := w.g.CreateNode(wg, labels, props)
	if err != nil {
		return 0, err
	}
	w.exist.Add(id, true)
	return id, nil
}

// ValidateTrustedBatch confirms that every (src, dst) pair in the
// batch names an existing node, using (and populating) the exists
// cache before falling back to a direct lookup. A successful call
// authorizes exactly the next run of CreateEdge calls in trusted mode;
// any CreateEdge without a preceding successful validation fails
// Invalid (spec §4.8 "Bulk loader").
func (w *GraphWriter) ValidateTrustedBatch(wg *pager.WriteGuard, pairs [][2]NodeID) error {
	if !w.trustedEndpoints {
		return errs.Invalid("graph: ValidateTrustedBatch called without trusted_endpoints mode")
	}
	meta := wg.Meta()
	for _, pair := range pairs {
		for _, id := range pair {
			if ok, hit := w.exist.Get(id); hit && ok {
				continue
			}
			_, found, err := w.g.nodes.Get(wg, meta.NodesRoot, id)
			if err != nil {
				return err
			}
			w.exist.Add(id, found)
			if !found {
				w.batchValidated = false
				return invalidEndpointMissing(id)
			}
		}
	}
	w.batchValidated = true
	return nil
}

// CreateEdge creates an edge. In trusted_endpoints mode this requires
// an immediately preceding successful ValidateTrustedBatch call and
// skips the per-edge endpoint lookup Graph.CreateEdge would otherwise
// perform; any other mode always validates directly.
func (w *GraphWriter) CreateEdge(wg *pager.WriteGuard, src, dst NodeID, ty TypeID, props []Prop) (EdgeID, error) {
	if w.trustedEndpoints {
		if !w.batchValidated {
			return 0, errs.Invalid("graph: create_edge in trusted_endpoints mode requires a prior validate_trusted_batch")
		}
		return w.g.CreateEdge(wg, src, dst, ty, props, true)
	}
	return w.g.CreateEdge(wg, src, dst, ty, props, false)
}
