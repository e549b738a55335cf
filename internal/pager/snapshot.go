package pager

import "sync"

// versionEntry is one historical page image, valid for any snapshot
// whose LSN is >= lsn and < the next entry's lsn (or current, if it is
// the newest entry).
type versionEntry struct {
	lsn LSN
	buf []byte
}

// versionChain tracks retired page images so that ReadGuards pinned to
// an older snapshot LSN still observe a consistent page, per spec §4.4
// ("the old buffer is retained and associated with the previous LSN
// range; it is released when the oldest live snapshot has advanced
// past it").
type versionChain struct {
	mu       sync.Mutex
	versions map[PageID][]versionEntry
	readers  map[*ReadGuard]LSN
}

func newVersionChain() *versionChain {
	return &versionChain{
		versions: make(map[PageID][]versionEntry),
		readers:  make(map[*ReadGuard]LSN),
	}
}

// record stashes the buffer that was current for id just before it was
// overwritten by a commit at newLSN.
func (vc *versionChain) record(id PageID, priorLSN LSN, priorBuf []byte) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	buf := make([]byte, len(priorBuf))
	copy(buf, priorBuf)
	vc.versions[id] = append(vc.versions[id], versionEntry{lsn: priorLSN, buf: buf})
}

// lookup returns the historical image of id visible to a snapshot at
// snapshotLSN, if one is retained (i.e. snapshotLSN is older than the
// page's current cached version).
func (vc *versionChain) lookup(id PageID, snapshotLSN LSN) ([]byte, bool) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	entries := vc.versions[id]
	var best *versionEntry
	for i := range entries {
		e := &entries[i]
		if e.lsn <= snapshotLSN {
			if best == nil || e.lsn > best.lsn {
				best = e
			}
		}
	}
	if best == nil {
		return nil, false
	}
	return best.buf, true
}

// registerReader records a live reader's snapshot LSN so prune knows
// the oldest LSN still in use.
func (vc *versionChain) registerReader(g *ReadGuard, snapshotLSN LSN) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.readers[g] = snapshotLSN
}

// releaseReader drops a reader and prunes any version entries no
// remaining reader could possibly need.
func (vc *versionChain) releaseReader(g *ReadGuard) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	delete(vc.readers, g)
	min, ok := vc.minReaderLSNLocked()
	if !ok {
		vc.versions = make(map[PageID][]versionEntry)
		return
	}
	for id, entries := range vc.versions {
		kept := entries[:0:0]
		for i, e := range entries {
			if e.lsn >= min {
				kept = append(kept, e)
				continue
			}
			// Keep the single newest entry below min — it may still
			// be the visible version for a reader at exactly min.
			isNewestBelowMin := true
			for j, other := range entries {
				if j != i && other.lsn < min && other.lsn > e.lsn {
					isNewestBelowMin = false
					break
				}
			}
			if isNewestBelowMin {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(vc.versions, id)
		} else {
			vc.versions[id] = kept
		}
	}
}

// MinReaderLSN reports the oldest snapshot LSN any live reader still
// holds, used by the pager to decide when a freed page id is safe to
// recycle.
func (vc *versionChain) MinReaderLSN() (LSN, bool) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.minReaderLSNLocked()
}

func (vc *versionChain) minReaderLSNLocked() (LSN, bool) {
	var min LSN
	first := true
	for _, lsn := range vc.readers {
		if first || lsn < min {
			min = lsn
			first = false
		}
	}
	return min, !first
}
