// Package dict implements the bidirectional string dictionary (spec
// §4.7): a pair of B-trees mapping interned label, property, and edge
// type names to 32-bit ids and back. Interning is write-only monotonic
// — ids are never recycled, so hash indexes and postings keyed by id
// remain valid for the lifetime of the database.
package dict

import (
	"github.com/maskdotdev/sombra-sub004/internal/btree"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
)

// pageGetter is satisfied by both *pager.WriteGuard and *pager.ReadGuard.
type pageGetter interface {
	GetPage(id pager.PageID) ([]byte, error)
}

// Dict wraps the two B-trees (string->id, id->string) that make up the
// dictionary. Both trees share one Stats set per direction, mirroring
// the way internal/btree.Tree already tracks its own counters.
type Dict struct {
	strToID *btree.Tree[string, uint32]
	idToStr *btree.Tree[uint32, string]
}

// New builds a Dict handle. The actual tree roots live in pager.Meta
// (DictStrToIDRoot, DictIDToStrRoot) — this type is stateless beyond
// its codecs and stats, safe to share across callers.
func New() *Dict {
	return &Dict{
		strToID: btree.New(btree.StringCodec, btree.Uint32Codec),
		idToStr: btree.New(btree.Uint32Codec, btree.StringCodec),
	}
}

// Create allocates empty string->id and id->string trees and returns
// their initial root ids in that order.
func (d *Dict) Create(wg *pager.WriteGuard) (strToIDRoot, idToStrRoot pager.PageID, err error) {
	strToIDRoot, err = d.strToID.Create(wg)
	if err != nil {
		return 0, 0, err
	}
	idToStrRoot, err = d.idToStr.Create(wg)
	if err != nil {
		return 0, 0, err
	}
	return strToIDRoot, idToStrRoot, nil
}

// LookupID returns the id already interned for s, if any, without
// allocating one.
func (d *Dict) LookupID(g pageGetter, strToIDRoot pager.PageID, s string) (uint32, bool, error) {
	return d.strToID.Get(g, strToIDRoot, s)
}

// LookupString returns the string interned under id, if any.
func (d *Dict) LookupString(g pageGetter, idToStrRoot pager.PageID, id uint32) (string, bool, error) {
	return d.idToStr.Get(g, idToStrRoot, id)
}

// All returns every interned string in ascending id order. Since
// Intern never recycles ids, the returned slice's index always equals
// the string's id — used by vacuum to replay interning in a fresh
// dictionary and reproduce identical ids.
func (d *Dict) All(g pageGetter, idToStrRoot pager.PageID) ([]string, error) {
	var out []string
	err := d.idToStr.Range(g, idToStrRoot, nil, nil, func(_ uint32, s string) bool {
		out = append(out, s)
		return true
	})
	return out, err
}

// Intern returns the existing id for s, or allocates the next
// dict_next_str_id, writes both directions, and bumps Meta.NextStringID
// (spec §4.7: "intern(s) returns an existing id or allocates a new
// one"). Meta's two dictionary roots are updated with the (possibly
// unchanged) tree roots on every call so the caller can persist them
// as part of the same commit as everything else.
func (d *Dict) Intern(wg *pager.WriteGuard, s string) (uint32, error) {
	meta := wg.Meta()
	id, found, err := d.strToID.Get(wg, meta.DictStrToIDRoot, s)
	if err != nil {
		return 0, err
	}
	if found {
		return id, nil
	}

	newID := meta.NextStringID
	meta.NextStringID++

	newS2I, err := d.strToID.Insert(wg, meta.DictStrToIDRoot, s, newID)
	if err != nil {
		return 0, err
	}
	newI2S, err := d.idToStr.Insert(wg, meta.DictIDToStrRoot, newID, s)
	if err != nil {
		return 0, err
	}
	meta.DictStrToIDRoot = newS2I
	meta.DictIDToStrRoot = newI2S
	return newID, nil
}
