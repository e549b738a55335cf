// Package sombra wires the pager, dictionary, index catalog, graph
// store, and MVCC version log into one embeddable database handle,
// exposing the administration surface of spec §6: Stats, Verify, and
// Vacuum, on top of the transaction primitives spec §4.4 describes.
package sombra

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/maskdotdev/sombra-sub004/config"
	"github.com/maskdotdev/sombra-sub004/internal/dict"
	"github.com/maskdotdev/sombra-sub004/internal/graph"
	"github.com/maskdotdev/sombra-sub004/internal/index"
	"github.com/maskdotdev/sombra-sub004/internal/mvcc"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
	"github.com/maskdotdev/sombra-sub004/internal/walog"
)

// Paths names the three files a database occupies on disk (spec §6
// "Durable file layout"): the main data file, its WAL sidecar, and its
// lock sidecar.
type Paths struct {
	Data string
	WAL  string
	Lock string
}

// DB is an open embedded database: a pager plus the three layers built
// on top of it (dictionary, index catalog, graph) and the MVCC version
// log, optionally driven by an autocheckpoint cron schedule.
type DB struct {
	paths Paths
	opts  config.Options
	log   zerolog.Logger

	p    *pager.Pager
	dict *dict.Dict
	idx  *index.Catalog
	g    *graph.Graph
	mv   *mvcc.Log

	cron      *cron.Cron
	cronEntry cron.EntryID
}

// Create initializes a brand-new database at paths and opens it.
func Create(paths Paths, opts config.Options, log zerolog.Logger) (*DB, error) {
	p, err := pager.Create(paths.Data, paths.WAL, paths.Lock, opts.PagerOptions(log))
	if err != nil {
		return nil, err
	}
	db := newDB(p, paths, opts, log)

	wg, err := p.BeginWrite()
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := db.createSchema(wg); err != nil {
		wg.Abort()
		p.Close()
		return nil, err
	}
	if _, err := wg.Commit(walogSyncMode(opts)); err != nil {
		p.Close()
		return nil, err
	}

	db.startAutocheckpoint()
	return db, nil
}

// Open opens an existing database at paths.
func Open(paths Paths, opts config.Options, log zerolog.Logger) (*DB, error) {
	p, err := pager.Open(paths.Data, paths.WAL, paths.Lock, opts.PagerOptions(log))
	if err != nil {
		return nil, err
	}
	db := newDB(p, paths, opts, log)
	db.startAutocheckpoint()
	return db, nil
}

func newDB(p *pager.Pager, paths Paths, opts config.Options, log zerolog.Logger) *DB {
	d := dict.New()
	idx := index.NewCatalog()
	return &DB{
		paths: paths,
		opts:  opts,
		log:   log,
		p:     p,
		dict:  d,
		idx:   idx,
		g:     graph.New(d, idx),
		mv:    mvcc.New(),
	}
}

func (db *DB) createSchema(wg *pager.WriteGuard) error {
	meta := wg.Meta()
	var err error
	if meta.DictStrToIDRoot, meta.DictIDToStrRoot, err = db.dict.Create(wg); err != nil {
		return err
	}
	if meta.IndexCatalog, err = db.idx.Create(wg); err != nil {
		return err
	}
	if meta.LabelIndex, err = db.idx.Labels.Create(wg); err != nil {
		return err
	}
	if err = db.g.Create(wg); err != nil {
		return err
	}
	if meta.VersionLog, err = db.mv.Create(wg); err != nil {
		return err
	}
	meta.InlineBlobThreshold = 256
	meta.InlineValueThreshold = 64
	return nil
}

// walogSyncMode derives the per-commit walog.SyncMode from the
// database's configured durability policy (spec §4.4/§6
// "synchronous"), not from async_fsync alone: Off never demands a
// commit-time fsync, Normal defers it to whatever batch the
// group-commit worker ends up coalescing this request into, and Full
// demands one per commit unless async_fsync relaxes that to deferred.
func walogSyncMode(opts config.Options) walog.SyncMode {
	switch opts.SyncPolicy() {
	case pager.SyncOff:
		return walog.SyncOff
	case pager.SyncNormal:
		return walog.SyncDeferred
	default: // pager.SyncFull
		if opts.AsyncFsync {
			return walog.SyncDeferred
		}
		return walog.SyncImmediate
	}
}

// Graph returns the graph store, the primary entity-mutation and
// traversal surface (spec §4.8).
func (db *DB) Graph() *graph.Graph { return db.g }

// Dict returns the string dictionary backing label/prop/type interning
// (spec §4.7).
func (db *DB) Dict() *dict.Dict { return db.dict }

// Index returns the secondary-index catalog (spec §4.9).
func (db *DB) Index() *index.Catalog { return db.idx }

// MVCC returns the version log (spec §4.10), nil-safe to ignore when
// MVCC mode is not in use.
func (db *DB) MVCC() *mvcc.Log { return db.mv }

// BeginWrite starts the single writer transaction (spec §4.4
// "begin_write").
func (db *DB) BeginWrite() (*pager.WriteGuard, error) { return db.p.BeginWrite() }

// BeginRead starts a reader transaction pinned to the current durable
// snapshot (spec §4.4 "begin_read").
func (db *DB) BeginRead() (*pager.ReadGuard, error) { return db.p.BeginRead() }

// BeginLatestCommittedRead starts a reader pinned to the most recently
// committed snapshot, bypassing any in-flight (uncommitted) write (spec
// §4.4 "begin_latest_committed_read").
func (db *DB) BeginLatestCommittedRead() (*pager.ReadGuard, error) {
	return db.p.BeginLatestCommittedRead()
}

// Checkpoint runs a WAL checkpoint in the given mode (spec §4.3/§6).
func (db *DB) Checkpoint(mode pager.CheckpointMode) error { return db.p.Checkpoint(mode) }

// Stats returns a point-in-time snapshot of pager counters (spec §6
// "stats").
func (db *DB) Stats() pager.Stats { return db.p.Stats() }

func (db *DB) startAutocheckpoint() {
	interval := db.opts.AutocheckpointInterval()
	if interval <= 0 {
		return
	}
	db.cron = cron.New()
	entry, err := db.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if err := db.p.Checkpoint(pager.CheckpointBestEffort); err != nil {
			db.log.Warn().Err(err).Msg("autocheckpoint failed")
		}
	})
	if err != nil {
		db.log.Warn().Err(err).Msg("failed to schedule autocheckpoint")
		db.cron = nil
		return
	}
	db.cronEntry = entry
	db.cron.Start()
}

// Close stops the autocheckpoint scheduler (if any) and closes the
// pager.
func (db *DB) Close() error {
	if db.cron != nil {
		<-db.cron.Stop().Done()
	}
	return db.p.Close()
}

// SetDegreeCacheEnabled toggles the degree cache feature flag, stored
// in Meta.StorageFlags (spec §4.8). Toggling it on an existing database
// does not retroactively populate cache entries for prior writes — call
// Graph().ValidateDegreeCache after enabling it to confirm, or rely on
// the cache building up from that point forward.
func (db *DB) SetDegreeCacheEnabled(wg *pager.WriteGuard, v bool) {
	wg.Meta().SetDegreeCacheEnabled(v)
}
