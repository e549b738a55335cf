package sombra

import (
	"os"

	"github.com/google/uuid"

	"github.com/maskdotdev/sombra-sub004/config"
	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/graph"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
)

// Vacuum rewrites the database into a fresh file at into (spec §6
// "vacuum(into, opts) ... opening a fresh pager, copy-walking all live
// entities from the old graph into the new, and atomically replacing
// the file"). The rewrite happens at a uuid-suffixed temporary path and
// is only renamed onto into once every file is durably closed, so a
// crash mid-vacuum leaves the original database and into untouched.
//
// Node and edge ids are reassigned densely from zero as they are
// copied, so deleted entities do not leave permanent gaps; dictionary
// ids are preserved exactly by replaying interning in the same order
// it originally happened in (internal/dict's ids are never recycled).
// The version log is not carried over — vacuum compacts live state, not
// history.
func (db *DB) Vacuum(into Paths, opts config.Options) error {
	srcRG, err := db.BeginLatestCommittedRead()
	if err != nil {
		return err
	}
	defer srcRG.Release()
	srcMeta, err := srcRG.Meta()
	if err != nil {
		return err
	}

	suffix := uuid.NewString()
	tmp := Paths{
		Data: into.Data + ".vacuum-" + suffix,
		WAL:  into.WAL + ".vacuum-" + suffix,
		Lock: into.Lock + ".vacuum-" + suffix,
	}
	cleanupTmp := func() {
		os.Remove(tmp.Data)
		os.Remove(tmp.WAL)
		os.Remove(tmp.Lock)
	}

	dst, err := Create(tmp, opts, db.log)
	if err != nil {
		cleanupTmp()
		return err
	}

	if err := db.vacuumInto(dst, srcRG, srcMeta, opts); err != nil {
		dst.Close()
		cleanupTmp()
		return err
	}

	if err := dst.Close(); err != nil {
		cleanupTmp()
		return err
	}

	if err := os.Rename(tmp.Data, into.Data); err != nil {
		cleanupTmp()
		return errs.Io("sombra: vacuum: rename data file", err)
	}
	if err := os.Rename(tmp.WAL, into.WAL); err != nil {
		return errs.Io("sombra: vacuum: rename wal file", err)
	}
	os.Remove(tmp.Lock)
	return nil
}

func (db *DB) vacuumInto(dst *DB, srcRG *pager.ReadGuard, srcMeta *pager.Meta, opts config.Options) error {
	wg, err := dst.BeginWrite()
	if err != nil {
		return err
	}
	if err := db.copyLiveState(wg, dst, srcRG, srcMeta); err != nil {
		wg.Abort()
		return err
	}
	if _, err := wg.Commit(walogSyncMode(opts)); err != nil {
		return err
	}
	return dst.Checkpoint(pager.CheckpointForce)
}

// copyLiveState replays the source database's interned strings,
// property-index registrations, nodes, and edges into dst's still-open
// write transaction, in that order: strings must exist before they can
// be referenced as label/prop/type ids, and indexes must be registered
// before CreateNode/CreateEdge will post to them.
func (db *DB) copyLiveState(wg *pager.WriteGuard, dst *DB, srcRG *pager.ReadGuard, srcMeta *pager.Meta) error {
	wg.Meta().StorageFlags = srcMeta.StorageFlags

	strs, err := db.dict.All(srcRG, srcMeta.DictIDToStrRoot)
	if err != nil {
		return err
	}
	for _, s := range strs {
		if _, err := dst.dict.Intern(wg, s); err != nil {
			return err
		}
	}

	entries, err := db.idx.All(srcRG, srcMeta.IndexCatalog)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := dst.g.CreatePropertyIndex(wg, e.Label, e.Prop, e.Def.Kind, e.Def.TypeTag); err != nil {
			return err
		}
	}

	nodes, err := db.g.AllNodes(srcRG, srcMeta)
	if err != nil {
		return err
	}
	nodeIDMap := make(map[graph.NodeID]graph.NodeID, len(nodes))
	for _, n := range nodes {
		newID, err := dst.g.CreateNode(wg, n.Record.Labels, n.Record.Props)
		if err != nil {
			return err
		}
		nodeIDMap[n.ID] = newID
	}

	edges, err := db.g.AllEdges(srcRG, srcMeta)
	if err != nil {
		return err
	}
	for _, e := range edges {
		newSrc, ok := nodeIDMap[e.Record.Src]
		if !ok {
			return errs.Corruption("sombra: vacuum: edge references a node absent from the copied node set")
		}
		newDst, ok := nodeIDMap[e.Record.Dst]
		if !ok {
			return errs.Corruption("sombra: vacuum: edge references a node absent from the copied node set")
		}
		if _, err := dst.g.CreateEdge(wg, newSrc, newDst, e.Record.Type, e.Record.Props, true); err != nil {
			return err
		}
	}
	return nil
}
