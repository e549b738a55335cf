package pager

import (
	"crypto/rand"
	"encoding/binary"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/fileio"
	"github.com/maskdotdev/sombra-sub004/internal/lockcoord"
	"github.com/maskdotdev/sombra-sub004/internal/metrics"
	"github.com/maskdotdev/sombra-sub004/internal/walog"
)

// SyncPolicy selects the fsync durability policy described in spec §4.4.
type SyncPolicy uint8

const (
	SyncFull SyncPolicy = iota
	SyncNormal
	SyncOff
)

// Options configures a Pager, mirroring the "Configuration inputs"
// table in spec §6.
type Options struct {
	PageSize        int
	CreateIfMissing bool
	CachePages      int
	Synchronous     SyncPolicy
	GroupCommit     walog.GroupCommitConfig
	Direct          bool
	Logger          zerolog.Logger
	Metrics         *metrics.Registry
}

func (o Options) withDefaults() Options {
	if o.PageSize == 0 {
		o.PageSize = 4096
	}
	if o.CachePages == 0 {
		o.CachePages = 1024
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	return o
}

// Pager is the central page cache, allocator, and transaction manager
// described by spec §4.4.
type Pager struct {
	mu sync.Mutex // serializes commit/checkpoint bookkeeping

	dataFile fileio.File
	wal      *walog.WAL
	gc       *walog.GroupCommit
	locks    *lockcoord.Coordinator

	cache    *cache
	versions *versionChain

	meta     *Meta
	pageSize int
	salt     uint64

	freeStack   []PageID // in-memory LIFO mirror of the on-disk freelist
	pendingFree []pendingFree

	durableLSN   atomic.Uint64
	committedLSN atomic.Uint64

	opts    Options
	metrics *metrics.Registry
	log     zerolog.Logger

	walPath, dataPath, lockPath string
}

// Stats is a point-in-time snapshot of pager counters (spec §9: "never
// affect correctness").
type Stats struct {
	CachedPages int
	WALFrames   uint64
	WALBytes    uint64
	WALSyncs    uint64
	DurableLSN  LSN
	FreePages   int
}

// Create initializes a brand-new database at dataPath/walPath/lockPath.
func Create(dataPath, walPath, lockPath string, opts Options) (*Pager, error) {
	opts = opts.withDefaults()

	df, err := fileio.Open(dataPath, fileio.Options{Create: true, Direct: opts.Direct})
	if err != nil {
		return nil, errs.Io("pager: open data file", err)
	}
	wf, err := fileio.Open(walPath, fileio.Options{Create: true})
	if err != nil {
		df.Close()
		return nil, errs.Io("pager: open wal file", err)
	}

	storeSalt := randUint64()
	walSalt := randUint64()

	p := &Pager{
		dataFile: df,
		cache:    newCache(opts.CachePages, opts.Metrics),
		versions: newVersionChain(),
		pageSize: opts.PageSize,
		salt:     storeSalt,
		opts:     opts,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		walPath:  walPath, dataPath: dataPath, lockPath: lockPath,
	}

	wal, err := walog.Create(wf, opts.PageSize, walSalt, opts.Metrics)
	if err != nil {
		return nil, err
	}
	p.wal = wal
	p.gc = walog.NewGroupCommit(wal, opts.GroupCommit, opts.Logger, opts.Metrics)

	locks, err := lockcoord.Open(lockPath, opts.Logger)
	if err != nil {
		return nil, err
	}
	p.locks = locks

	p.meta = &Meta{
		PageSize:  uint32(opts.PageSize),
		StoreSalt: storeSalt,
		WALSalt:   walSalt,
		FormatVer: CurrentFormatVersion,
		NextPageID: 1,
		InlineBlobThreshold:  1024,
		InlineValueThreshold: 256,
	}

	buf := MarshalMeta(p.meta, p.pageSize)
	MarshalHeader(Header{PageNo: 0, Kind: KindMeta, PageSize: uint32(p.pageSize), Salt: storeSalt}, buf)
	SetPageCRC(0, storeSalt, buf)
	if err := p.dataFile.Truncate(int64(p.pageSize)); err != nil {
		return nil, errs.Io("pager: truncate data file", err)
	}
	if _, err := p.dataFile.WriteAt(buf, 0); err != nil {
		return nil, errs.Io("pager: write meta page", err)
	}
	if err := p.dataFile.SyncFull(); err != nil {
		return nil, errs.Io("pager: sync data file", err)
	}

	p.durableLSN.Store(0)
	return p, nil
}

// Open opens an existing database, running WAL recovery first.
func Open(dataPath, walPath, lockPath string, opts Options) (*Pager, error) {
	opts = opts.withDefaults()

	df, err := fileio.Open(dataPath, fileio.Options{Direct: opts.Direct})
	if err != nil {
		return nil, errs.Io("pager: open data file", err)
	}
	wf, err := fileio.Open(walPath, fileio.Options{})
	if err != nil {
		df.Close()
		return nil, errs.Io("pager: open wal file", err)
	}

	metaBuf := make([]byte, opts.PageSize)
	if _, err := df.ReadAt(metaBuf, 0); err != nil {
		return nil, errs.Io("pager: read meta page", err)
	}
	hdr := UnmarshalHeader(metaBuf)
	meta, err := UnmarshalMeta(metaBuf)
	if err != nil {
		return nil, err
	}
	if err := VerifyPageCRC(0, hdr.Salt, metaBuf); err != nil {
		return nil, err
	}

	p := &Pager{
		dataFile: df,
		cache:    newCache(opts.CachePages, opts.Metrics),
		versions: newVersionChain(),
		pageSize: opts.PageSize,
		salt:     hdr.Salt,
		meta:     meta,
		opts:     opts,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		walPath:  walPath, dataPath: dataPath, lockPath: lockPath,
	}

	wal, walHdr, err := walog.Open(wf, opts.PageSize, opts.Metrics)
	if err != nil {
		return nil, err
	}
	_ = walHdr

	if err := p.recover(wf, wal); err != nil {
		return nil, err
	}
	p.wal = wal
	p.gc = walog.NewGroupCommit(wal, opts.GroupCommit, opts.Logger, opts.Metrics)

	locks, err := lockcoord.Open(lockPath, opts.Logger)
	if err != nil {
		return nil, err
	}
	p.locks = locks

	p.durableLSN.Store(uint64(p.meta.CheckpointLSN))
	if err := p.loadFreelist(); err != nil {
		return nil, err
	}
	return p, nil
}

func randUint64() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

// Close stops background workers and releases file handles.
func (p *Pager) Close() error {
	p.gc.Close()
	_ = p.locks.Close()
	_ = p.wal.Sync()
	if err := p.dataFile.Close(); err != nil {
		return errs.Io("pager: close data file", err)
	}
	return nil
}

// Stats returns a snapshot of observability counters.
func (p *Pager) Stats() Stats {
	return Stats{
		WALFrames:  p.wal.FramesAppended.Load(),
		WALBytes:   p.wal.BytesAppended.Load(),
		WALSyncs:   p.wal.Syncs.Load(),
		DurableLSN: LSN(p.durableLSN.Load()),
		CachedPages: p.cache.len(),
		FreePages:  len(p.freeStack),
	}
}

// PageSize returns the configured page size.
func (p *Pager) PageSize() int { return p.pageSize }

// effectiveSyncMode reconciles a caller-requested commit sync mode
// with the pager's own configured durability floor. Synchronous:Off is
// an absolute guarantee ("no fsync, durability only guaranteed at
// checkpoint", spec §4.4); no caller-supplied mode may force an fsync
// through it. Full and Normal leave the caller's requested mode alone:
// the combination with async_fsync is already resolved by whoever
// computed mode (see sombra.go's walogSyncMode).
func (p *Pager) effectiveSyncMode(mode walog.SyncMode) walog.SyncMode {
	if p.opts.Synchronous == SyncOff {
		return walog.SyncOff
	}
	return mode
}

// readPageFromDisk reads page id directly from the data file, verifying
// its CRC.
func (p *Pager) readPageFromDisk(id PageID) ([]byte, error) {
	buf := make([]byte, p.pageSize)
	off := int64(id) * int64(p.pageSize)
	if _, err := p.dataFile.ReadAt(buf, off); err != nil {
		return nil, errs.Io("pager: read page", err)
	}
	if err := VerifyPageCRC(id, p.salt, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func sortedPageIDs(m map[PageID][]byte) []PageID {
	ids := make([]PageID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
