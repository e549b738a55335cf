package pager

import (
	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/lockcoord"
)

// ReadGuard pins a consistent snapshot of the database as of the LSN
// that was durable (or, for BeginLatestCommittedRead, merely applied)
// when it was created. Every page fetched through it is either the
// historical image retained by the pager's version chain or, if none
// was retained, the current cached/on-disk image (which is then by
// definition unchanged since the snapshot was taken).
type ReadGuard struct {
	p           *Pager
	rlock       *lockcoord.ReaderGuard
	snapshotLSN LSN
	released    bool
}

// SnapshotLSN reports the LSN this guard's view is pinned to.
func (g *ReadGuard) SnapshotLSN() LSN { return g.snapshotLSN }

// GetPage returns the page image visible to this snapshot. If this
// snapshot predates the page's current cached image, it consults the
// version chain for the historical image that was current as of
// snapshotLSN; otherwise the current image already is that snapshot's
// view, since nothing newer has touched the page since.
func (g *ReadGuard) GetPage(id PageID) ([]byte, error) {
	if g.released {
		return nil, errs.Invalid("pager: read guard already released")
	}
	f, err := g.p.getFrame(id)
	if err != nil {
		return nil, err
	}
	if g.snapshotLSN < f.lsn {
		if buf, ok := g.p.versions.lookup(id, g.snapshotLSN); ok {
			return buf, nil
		}
	}
	return f.buf, nil
}

// Meta returns the Meta page as visible to this snapshot.
func (g *ReadGuard) Meta() (*Meta, error) {
	buf, err := g.GetPage(0)
	if err != nil {
		return nil, err
	}
	return UnmarshalMeta(buf)
}

// Release ends the read transaction, unregistering its snapshot from
// the version chain (which may free retained page images no other
// reader needs) and dropping the OS reader lock.
func (g *ReadGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.p.versions.releaseReader(g)
	g.rlock.Release()
	g.p.reclaimFreedPages()
}

// BeginRead opens a read transaction pinned to the last durably synced
// commit, per spec §4.4 ("begin_read").
func (p *Pager) BeginRead() (*ReadGuard, error) {
	return p.beginReadAt(LSN(p.durableLSN.Load()))
}

// BeginLatestCommittedRead opens a read transaction pinned to the most
// recently applied commit, even if it has not yet been fsynced (spec
// §4.4 "begin_latest_committed_read").
func (p *Pager) BeginLatestCommittedRead() (*ReadGuard, error) {
	return p.beginReadAt(LSN(p.committedLSN.Load()))
}

func (p *Pager) beginReadAt(snapshotLSN LSN) (*ReadGuard, error) {
	rg, err := p.locks.AcquireReader()
	if err != nil {
		return nil, errs.Io("pager: acquire reader lock", err)
	}
	g := &ReadGuard{p: p, rlock: rg, snapshotLSN: snapshotLSN}
	p.versions.registerReader(g, snapshotLSN)
	return g, nil
}

// WriteGuard is the single in-flight write transaction (spec §4.4
// "begin_write" — the lock coordinator guarantees at most one of these
// exists process-wide and across processes).
type WriteGuard struct {
	p     *Pager
	wlock *lockcoord.WriterGuard

	meta Meta // working copy, becomes durable on Commit

	dirty    map[PageID][]byte
	priorBuf map[PageID][]byte
	priorLSN map[PageID]LSN

	freed []PageID

	done bool
}

// BeginWrite acquires the exclusive writer slot and opens a write
// transaction against a private copy of the current Meta.
func (p *Pager) BeginWrite() (*WriteGuard, error) {
	wl, err := p.locks.AcquireWriter()
	if err != nil {
		if err == lockcoord.ErrWriterHeld {
			return nil, errs.Invalid("pager: writer already held")
		}
		return nil, errs.Io("pager: acquire writer lock", err)
	}
	p.mu.Lock()
	metaCopy := *p.meta
	p.mu.Unlock()
	return &WriteGuard{
		p: p, wlock: wl, meta: metaCopy,
		dirty:    make(map[PageID][]byte),
		priorBuf: make(map[PageID][]byte),
		priorLSN: make(map[PageID]LSN),
	}, nil
}

// Meta returns the transaction's mutable working copy of page 0.
func (wg *WriteGuard) Meta() *Meta { return &wg.meta }

// PageSize returns the pager's fixed page size.
func (wg *WriteGuard) PageSize() int { return wg.p.pageSize }

// GetPage returns the page as seen by this transaction: its own
// uncommitted edit if any, otherwise the last committed image.
func (wg *WriteGuard) GetPage(id PageID) ([]byte, error) {
	if buf, ok := wg.dirty[id]; ok {
		return buf, nil
	}
	return wg.p.getPage(id)
}

// PageMut returns a mutable buffer for id, copying the current
// committed image on first touch within this transaction.
func (wg *WriteGuard) PageMut(id PageID) ([]byte, error) {
	if buf, ok := wg.dirty[id]; ok {
		return buf, nil
	}
	cur, err := wg.p.getPage(id)
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(cur))
	copy(cp, cur)
	wg.dirty[id] = cp

	if f, ok := wg.p.cache.get(id); ok {
		pb := make([]byte, len(f.buf))
		copy(pb, f.buf)
		wg.priorBuf[id] = pb
		wg.priorLSN[id] = f.lsn
	}
	return cp, nil
}

// AllocatePage pops a free page id (LIFO, spec §8) or grows the file,
// returning a zeroed buffer the caller should populate via PageMut-style
// in-place writes.
func (wg *WriteGuard) AllocatePage(kind PageKind) (PageID, []byte) {
	p := wg.p
	p.mu.Lock()
	var id PageID
	if n := len(p.freeStack); n > 0 {
		id = p.freeStack[n-1]
		p.freeStack = p.freeStack[:n-1]
	} else {
		id = wg.meta.NextPageID
		wg.meta.NextPageID++
	}
	p.mu.Unlock()

	buf := make([]byte, p.pageSize)
	MarshalHeader(Header{PageNo: id, Kind: kind, PageSize: uint32(p.pageSize), Salt: p.salt}, buf)
	wg.dirty[id] = buf
	return id, buf
}

// FreePage marks id as no longer referenced. It is not actually made
// available to AllocatePage until no live read snapshot could still
// dereference it (spec §4.4's version-retention rule, applied
// symmetrically to allocator reuse).
func (wg *WriteGuard) FreePage(id PageID) {
	wg.freed = append(wg.freed, id)
}

// Abort discards the transaction's changes and releases the writer
// lock without touching durable state.
func (wg *WriteGuard) Abort() {
	if wg.done {
		return
	}
	wg.done = true
	wg.wlock.Release()
}
