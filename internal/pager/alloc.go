package pager

import "encoding/binary"

// loadFreelist walks the on-disk freelist chain rooted at
// meta.FreelistHead and reconstructs the in-memory LIFO stack. Entries
// within a page were appended in push order (flPush), and pages were
// linked head-to-tail in the same order during the last flush, so
// concatenating each page's entries in index order reproduces the
// original stack exactly.
func (p *Pager) loadFreelist() error {
	var stack []PageID
	id := p.meta.FreelistHead
	for id != InvalidPageID {
		buf, err := p.readPageFromDisk(id)
		if err != nil {
			return err
		}
		n := flCount(buf)
		for i := 0; i < n; i++ {
			entry, ok := flEntryAt(buf, i)
			if !ok {
				break
			}
			stack = append(stack, entry)
		}
		id = flNext(buf)
	}
	p.freeStack = stack
	return nil
}

func flEntryAt(buf []byte, i int) (PageID, bool) {
	if i >= flCount(buf) {
		return InvalidPageID, false
	}
	return PageID(binary.LittleEndian.Uint32(buf[flDataOff+i*4:])), true
}

// oldFreelistChainIDs walks the currently-durable freelist chain,
// returning every page id in it. Called before a commit rebuilds the
// chain, so those slots can be recycled once the rebuilt chain is
// durable.
func (p *Pager) oldFreelistChainIDs() ([]PageID, error) {
	var ids []PageID
	id := p.meta.FreelistHead
	for id != InvalidPageID {
		buf, err := p.readPageFromDisk(id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		id = flNext(buf)
	}
	return ids, nil
}

// rebuildFreelistChain writes wg.p.freeStack (as it stands at commit
// time, i.e. after this transaction's own AllocatePage/FreePage calls)
// into a fresh chain of freelist pages, marks them dirty in wg, and
// points wg.meta.FreelistHead at the new head. Freelist pages are
// never referenced by a ReadGuard's traversal, so unlike data pages
// their previous chain can be recycled immediately rather than through
// the reader-gated pendingFree path.
func (p *Pager) rebuildFreelistChain(wg *WriteGuard) error {
	oldIDs, err := p.oldFreelistChainIDs()
	if err != nil {
		return err
	}

	chunkCap := freelistCapacity(p.pageSize)
	stack := p.freeStack
	var newIDs []PageID
	for off := 0; off < len(stack); off += chunkCap {
		end := off + chunkCap
		if end > len(stack) {
			end = len(stack)
		}
		id := wg.meta.NextPageID
		wg.meta.NextPageID++
		newIDs = append(newIDs, id)

		buf := make([]byte, p.pageSize)
		initFreelistPage(buf, id, p.salt)
		for _, pid := range stack[off:end] {
			flPush(buf, p.pageSize, pid)
		}
		wg.dirty[id] = buf
	}
	for i, id := range newIDs {
		if i+1 < len(newIDs) {
			flSetNext(wg.dirty[id], newIDs[i+1])
		}
	}
	if len(newIDs) == 0 {
		wg.meta.FreelistHead = InvalidPageID
	} else {
		wg.meta.FreelistHead = newIDs[0]
	}

	for _, id := range oldIDs {
		p.freeStack = append(p.freeStack, id)
	}
	return nil
}
