package index

import (
	"encoding/binary"

	"github.com/maskdotdev/sombra-sub004/internal/btree"
	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
	"github.com/maskdotdev/sombra-sub004/internal/propval"
)

// Kind discriminates which of the two property index shapes backs a
// given (label, prop) pair.
type Kind uint8

const (
	KindChunked Kind = iota
	KindOrdered
)

// Def describes one entry of the index catalog (spec §4.9: "(label,
// prop) -> IndexDef{kind, type_tag, root_page}").
type Def struct {
	Kind     Kind
	TypeTag  propval.Kind
	RootPage pager.PageID
}

func encodeDef(d Def) []byte {
	out := make([]byte, 6)
	out[0] = byte(d.Kind)
	out[1] = byte(d.TypeTag)
	binary.BigEndian.PutUint32(out[2:], uint32(d.RootPage))
	return out
}

func decodeDef(b []byte) (Def, error) {
	if len(b) != 6 {
		return Def{}, errs.Corruption("index: malformed catalog entry")
	}
	return Def{
		Kind:     Kind(b[0]),
		TypeTag:  propval.Kind(b[1]),
		RootPage: pager.PageID(binary.BigEndian.Uint32(b[2:])),
	}, nil
}

func catalogKey(label, prop uint32) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b, label)
	binary.BigEndian.PutUint32(b[4:], prop)
	return b
}

// Catalog is the index catalog B-tree (spec §4.9): it tracks, per
// (label, prop) pair, which kind of property index exists and that
// index's own root page. Each created property index gets a freshly
// allocated root of its own, tracked only by this catalog — Meta's
// PropChunkRoot/PropBTreeRoot fields are not used by this package (see
// DESIGN.md).
type Catalog struct {
	tree    *btree.Tree[[]byte, []byte]
	Chunked *ChunkedIndex
	Ordered *OrderedIndex
	Labels  *LabelIndex
}

func NewCatalog() *Catalog {
	return &Catalog{
		tree:    btree.New(unitCodec, unitCodec),
		Chunked: NewChunkedIndex(),
		Ordered: NewOrderedIndex(),
		Labels:  NewLabelIndex(),
	}
}

func (c *Catalog) Create(wg *pager.WriteGuard) (pager.PageID, error) {
	return c.tree.Create(wg)
}

// Lookup returns the Def for (label, prop), if a property index exists.
func (c *Catalog) Lookup(g pageGetter, root pager.PageID, label, prop uint32) (Def, bool, error) {
	raw, found, err := c.tree.Get(g, root, catalogKey(label, prop))
	if err != nil || !found {
		return Def{}, false, err
	}
	d, err := decodeDef(raw)
	return d, err == nil, err
}

// CreatePropertyIndex allocates a fresh index tree of the requested
// kind, records it in the catalog, and bumps ddlEpoch. Fails Invalid if
// an index already exists for (label, prop).
func (c *Catalog) CreatePropertyIndex(wg *pager.WriteGuard, catalogRoot pager.PageID, label, prop uint32, kind Kind, typeTag propval.Kind, ddlEpoch *uint64) (pager.PageID, error) {
	if _, found, err := c.Lookup(wg, catalogRoot, label, prop); err != nil {
		return catalogRoot, err
	} else if found {
		return catalogRoot, errs.Invalid("index: property index already exists for this (label, prop)")
	}

	var rootID pager.PageID
	var err error
	switch kind {
	case KindChunked:
		rootID, err = c.Chunked.Create(wg)
	case KindOrdered:
		rootID, err = c.Ordered.Create(wg)
	default:
		return catalogRoot, errs.Invalid("index: unknown property index kind")
	}
	if err != nil {
		return catalogRoot, err
	}

	newRoot, err := c.tree.Insert(wg, catalogRoot, catalogKey(label, prop), encodeDef(Def{Kind: kind, TypeTag: typeTag, RootPage: rootID}))
	if err != nil {
		return catalogRoot, err
	}
	*ddlEpoch++
	return newRoot, nil
}

// UpdateRoot rewrites the catalog entry for (label, prop) with a new
// RootPage, called by index-maintenance code after a posting insert or
// delete grows or shrinks the underlying chunked/ordered tree (B-tree
// mutation can return a different root than the one it was called with).
func (c *Catalog) UpdateRoot(wg *pager.WriteGuard, catalogRoot pager.PageID, label, prop uint32, newIndexRoot pager.PageID) (pager.PageID, error) {
	def, found, err := c.Lookup(wg, catalogRoot, label, prop)
	if err != nil {
		return catalogRoot, err
	}
	if !found {
		return catalogRoot, errs.NotFound("index: catalog entry vanished mid-maintenance")
	}
	if def.RootPage == newIndexRoot {
		return catalogRoot, nil
	}
	def.RootPage = newIndexRoot
	return c.tree.Insert(wg, catalogRoot, catalogKey(label, prop), encodeDef(def))
}

// Entry is one (label, prop) -> Def row of the catalog, returned by All.
type Entry struct {
	Label uint32
	Prop  uint32
	Def   Def
}

// All returns every registered property index, in (label, prop) key
// order. Used by vacuum to recreate the catalog (and, after it, replay
// postings) in a freshly rewritten database.
func (c *Catalog) All(g pageGetter, root pager.PageID) ([]Entry, error) {
	var out []Entry
	var scanErr error
	err := c.tree.Range(g, root, nil, nil, func(k, v []byte) bool {
		d, derr := decodeDef(v)
		if derr != nil {
			scanErr = derr
			return false
		}
		out = append(out, Entry{
			Label: binary.BigEndian.Uint32(k),
			Prop:  binary.BigEndian.Uint32(k[4:]),
			Def:   d,
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, scanErr
}

// DropPropertyIndex removes the catalog entry for (label, prop) and
// bumps ddlEpoch. The index's own pages are not reclaimed here — they
// are simply left uncopied the next time vacuum rewrites the file
// (spec §6 "vacuum ... copy-walking all live entities").
func (c *Catalog) DropPropertyIndex(wg *pager.WriteGuard, catalogRoot pager.PageID, label, prop uint32, ddlEpoch *uint64) (pager.PageID, error) {
	newRoot, found, err := c.tree.Delete(wg, catalogRoot, catalogKey(label, prop))
	if err != nil {
		return catalogRoot, err
	}
	if found {
		*ddlEpoch++
	}
	return newRoot, nil
}
