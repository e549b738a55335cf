// Package graph implements the graph store (spec §4.8): nodes, edges,
// forward/reverse adjacency, an optional degree cache, and the CRUD and
// traversal operations layered on top of internal/btree, keeping
// secondary indexes (internal/index) in sync within the same
// WriteGuard as every entity mutation (spec §4.9 "Index maintenance").
package graph

import (
	"github.com/maskdotdev/sombra-sub004/internal/btree"
	"github.com/maskdotdev/sombra-sub004/internal/dict"
	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/index"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
)

// NodeID, EdgeID, TypeID, LabelID, and PropID are the graph's entity
// and interned-string identifier types. LabelID and PropID are
// dictionary ids (internal/dict); TypeID is likewise an interned
// relationship-type name.
type (
	NodeID  = index.NodeID
	EdgeID  = uint64
	TypeID  = uint32
	LabelID = uint32
	PropID  = uint32
)

// pageGetter is satisfied by both *pager.WriteGuard and *pager.ReadGuard.
type pageGetter interface {
	GetPage(id pager.PageID) ([]byte, error)
}

// Direction selects which adjacency B-tree (or half of the degree
// cache) an operation targets.
type Direction uint8

const (
	Out Direction = iota
	In
)

// Graph wraps the five B-trees of spec §4.8 plus the dictionary and
// index catalog needed to validate and maintain entity mutations.
type Graph struct {
	nodes  *btree.Tree[uint64, []byte]
	edges  *btree.Tree[uint64, []byte]
	adjFwd *btree.Tree[[]byte, []byte]
	adjRev *btree.Tree[[]byte, []byte]
	degree *btree.Tree[[]byte, []byte]

	dict *dict.Dict
	idx  *index.Catalog
}

// New constructs a Graph value around an already-constructed dictionary
// and index catalog. Graph itself is stateless; all durable state lives
// in pager.Meta's root-page fields, set by Create.
func New(d *dict.Dict, idx *index.Catalog) *Graph {
	return &Graph{
		nodes:  btree.New(btree.Uint64Codec, btree.BytesCodec),
		edges:  btree.New(btree.Uint64Codec, btree.BytesCodec),
		adjFwd: btree.New(btree.BytesCodec, btree.BytesCodec),
		adjRev: btree.New(btree.BytesCodec, btree.BytesCodec),
		degree: btree.New(btree.BytesCodec, btree.BytesCodec),
		dict:   d,
		idx:    idx,
	}
}

// Create allocates all five B-trees and writes their roots into meta.
func (g *Graph) Create(wg *pager.WriteGuard) error {
	meta := wg.Meta()
	var err error
	if meta.NodesRoot, err = g.nodes.Create(wg); err != nil {
		return err
	}
	if meta.EdgesRoot, err = g.edges.Create(wg); err != nil {
		return err
	}
	if meta.AdjFwdRoot, err = g.adjFwd.Create(wg); err != nil {
		return err
	}
	if meta.AdjRevRoot, err = g.adjRev.Create(wg); err != nil {
		return err
	}
	if meta.DegreeRoot, err = g.degree.Create(wg); err != nil {
		return err
	}
	return nil
}

func (g *Graph) requireInterned(g2 pageGetter, idToStrRoot pager.PageID, id uint32, what string) error {
	_, found, err := g.dict.LookupString(g2, idToStrRoot, id)
	if err != nil {
		return err
	}
	if !found {
		return errs.Invalid("graph: " + what + " id has not been interned")
	}
	return nil
}

// GetNode returns the decoded record for id.
func (g *Graph) GetNode(gg pageGetter, meta *pager.Meta, id NodeID) (NodeRecord, bool, error) {
	raw, found, err := g.nodes.Get(gg, meta.NodesRoot, id)
	if err != nil || !found {
		return NodeRecord{}, found, err
	}
	rec, err := decodeNode(gg, g.dict, meta.DictStrToIDRoot, meta.DictIDToStrRoot, raw)
	return rec, true, err
}

// GetEdge returns the decoded record for id.
func (g *Graph) GetEdge(gg pageGetter, meta *pager.Meta, id EdgeID) (EdgeRecord, bool, error) {
	raw, found, err := g.edges.Get(gg, meta.EdgesRoot, id)
	if err != nil || !found {
		return EdgeRecord{}, found, err
	}
	rec, err := decodeEdge(gg, g.dict, meta.DictStrToIDRoot, meta.DictIDToStrRoot, raw)
	return rec, true, err
}
