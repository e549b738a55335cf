package pager

import (
	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/walog"
)

type pendingFree struct {
	id    PageID
	atLSN LSN
}

// Commit assigns LSNs to every dirty page (meta included), hands the
// batch to the group-commit worker, and on success applies it to the
// page cache and in-memory meta/allocator state. Spec §4.4: "the meta
// page is rewritten as one of the frames of this same commit."
func (wg *WriteGuard) Commit(mode walog.SyncMode) (LSN, error) {
	if wg.done {
		return 0, errs.Invalid("pager: write guard already finished")
	}
	p := wg.p
	mode = p.effectiveSyncMode(mode)

	p.mu.Lock()
	if err := p.rebuildFreelistChain(wg); err != nil {
		p.mu.Unlock()
		wg.done = true
		wg.wlock.Release()
		return 0, err
	}
	p.mu.Unlock()

	metaBuf := MarshalMeta(&wg.meta, p.pageSize)
	MarshalHeader(Header{PageNo: 0, Kind: KindMeta, PageSize: uint32(p.pageSize), Salt: p.salt}, metaBuf)
	wg.dirty[0] = metaBuf
	if f, ok := p.cache.get(0); ok {
		pb := make([]byte, len(f.buf))
		copy(pb, f.buf)
		wg.priorBuf[0] = pb
		wg.priorLSN[0] = f.lsn
	}

	ids := sortedPageIDs(wg.dirty)
	payloads := make([][]byte, len(ids))
	for i, id := range ids {
		SetPageCRC(id, p.salt, wg.dirty[id])
		payloads[i] = wg.dirty[id]
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	req := walog.NewCommitRequest(ids, payloads, mode)
	p.gc.Submit(req)
	if err := req.Wait(); err != nil {
		wg.done = true
		wg.wlock.Release()
		return 0, errs.Io("pager: group commit", err)
	}

	commitLSN := p.wal.NextLSN() - 1
	for _, id := range ids {
		if prior, ok := wg.priorBuf[id]; ok {
			p.versions.record(id, wg.priorLSN[id], prior)
		}
		p.cache.put(&frame{id: id, buf: wg.dirty[id], lsn: commitLSN})
	}

	for _, id := range wg.freed {
		p.pendingFree = append(p.pendingFree, pendingFree{id: id, atLSN: commitLSN})
	}

	*p.meta = wg.meta
	p.committedLSN.Store(uint64(commitLSN))
	// req.Synced reflects whether THIS batch actually fsynced, which
	// may be true even for a Deferred/Off request riding along with an
	// Immediate one in the same coalesced batch. durableLSN must track
	// the real fsync, not the mode this particular request asked for,
	// or BeginRead would never observe Normal-policy commits until the
	// next checkpoint (spec §9(a): durable = at the next fsync).
	if req.Synced {
		p.durableLSN.Store(uint64(commitLSN))
	}

	wg.done = true
	wg.wlock.Release()
	p.reclaimFreedPagesLocked()
	return commitLSN, nil
}

// reclaimFreedPages moves pages freed by past commits into the
// reusable freelist stack once no live reader snapshot predates the
// commit that freed them.
func (p *Pager) reclaimFreedPages() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reclaimFreedPagesLocked()
}

func (p *Pager) reclaimFreedPagesLocked() {
	if len(p.pendingFree) == 0 {
		return
	}
	min, ok := p.versions.MinReaderLSN()
	kept := p.pendingFree[:0:0]
	for _, pf := range p.pendingFree {
		if ok && pf.atLSN >= min {
			kept = append(kept, pf)
			continue
		}
		p.freeStack = append(p.freeStack, pf.id)
	}
	p.pendingFree = kept
}

// getPage returns the current committed image of id from cache,
// loading it from disk on a miss.
func (p *Pager) getPage(id PageID) ([]byte, error) {
	f, err := p.getFrame(id)
	if err != nil {
		return nil, err
	}
	return f.buf, nil
}

// getFrame is like getPage but also reports the LSN the current image
// became current at, which ReadGuard needs to decide whether its
// snapshot predates it (and so must consult the version chain instead).
func (p *Pager) getFrame(id PageID) (*frame, error) {
	if f, ok := p.cache.get(id); ok {
		return f, nil
	}
	buf, err := p.readPageFromDisk(id)
	if err != nil {
		return nil, err
	}
	f := &frame{id: id, buf: buf, lsn: LSN(p.durableLSN.Load())}
	p.cache.put(f)
	return f, nil
}
