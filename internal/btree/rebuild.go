package btree

// rebuildInPlace reformats buf from scratch with the given fences and
// extra fields, then appends records in the order given (the caller
// guarantees they are already key-sorted). It never partially mutates
// buf: the attempt happens against a scratch copy and is only
// committed back into buf on success, so a failed attempt (page
// doesn't fit) leaves buf untouched for the caller to fall back to a
// split.
func rebuildInPlace(buf []byte, kind NodeKind, low, high []byte, setExtra func(*Node), records [][]byte) bool {
	scratch := make([]byte, len(buf))
	copy(scratch, buf) // preserves the common pager.Header bytes
	n := InitNode(scratch, kind)
	if !n.SetLowFence(low) || !n.SetHighFence(high) {
		return false
	}
	setExtra(n)
	for _, rec := range records {
		if !n.insertSlotAt(n.SlotCount(), rec) {
			return false
		}
	}
	copy(buf, n.Buf())
	return true
}

// fits reports whether records would fit on a single fresh page of
// pageSize bytes with the given fences, without touching any real
// page buffer.
func fits(pageSize int, kind NodeKind, low, high []byte, records [][]byte) bool {
	scratch := make([]byte, pageSize)
	n := InitNode(scratch, kind)
	if !n.SetLowFence(low) || !n.SetHighFence(high) {
		return false
	}
	for _, rec := range records {
		if !n.insertSlotAt(n.SlotCount(), rec) {
			return false
		}
	}
	return true
}

// chooseSplit searches for an index in [1, len(records)-1] closest to
// the midpoint such that both records[:i] (with high fence splitKey)
// and records[i:] (with low fence splitKey) fit on a fresh page, where
// splitKey is keyOf(records[i]). Spec §4.6: "choose a split index
// closest to the midpoint that produces two halves each of which
// fits."
func chooseSplit(pageSize int, kind NodeKind, low, high []byte, records [][]byte, keyOf func([]byte) []byte) (int, bool) {
	n := len(records)
	if n < 2 {
		return 0, false
	}
	mid := n / 2
	if mid < 1 {
		mid = 1
	}
	if mid > n-1 {
		mid = n - 1
	}
	tried := map[int]bool{}
	for delta := 0; delta <= n; delta++ {
		for _, cand := range [2]int{mid - delta, mid + delta} {
			if cand < 1 || cand > n-1 || tried[cand] {
				continue
			}
			tried[cand] = true
			splitKey := keyOf(records[cand])
			if fits(pageSize, kind, low, splitKey, records[:cand]) && fits(pageSize, kind, splitKey, high, records[cand:]) {
				return cand, true
			}
		}
	}
	return 0, false
}
