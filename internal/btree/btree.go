package btree

import (
	"bytes"

	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
)

// pageGetter is satisfied by both *pager.WriteGuard and
// *pager.ReadGuard, letting Get/Range run against either an in-flight
// write transaction or a read snapshot.
type pageGetter interface {
	GetPage(id pager.PageID) ([]byte, error)
}

// Tree is a copy-on-write B+Tree keyed and valued by codecs K and V
// (spec §4.6). It holds no page state itself — the root page id lives
// in whatever the caller uses to name this tree (a catalog entry, a
// Meta field) — so a Tree value is safe to share across callers as
// long as its Stats are meant to be shared too.
type Tree[K any, V any] struct {
	Keys   Codec[K]
	Values Codec[V]
	Stats  *Stats
}

// New builds a Tree handle around a pair of codecs with fresh,
// zeroed statistics.
func New[K any, V any](keys Codec[K], values Codec[V]) *Tree[K, V] {
	return &Tree[K, V]{Keys: keys, Values: values, Stats: &Stats{}}
}

// Create allocates a single empty leaf page and returns its id as the
// tree's initial root.
func (t *Tree[K, V]) Create(wg *pager.WriteGuard) (pager.PageID, error) {
	id, buf := wg.AllocatePage(pager.KindBTreeLeaf)
	InitNode(buf, Leaf)
	return id, nil
}

// --- traversal ---

func (t *Tree[K, V]) pathToLeaf(g pageGetter, root pager.PageID, key []byte) ([]pager.PageID, error) {
	var path []pager.PageID
	id := root
	for {
		path = append(path, id)
		buf, err := g.GetPage(id)
		if err != nil {
			return nil, err
		}
		n := WrapNode(buf)
		if n.IsLeaf() {
			t.Stats.LeafSearches.Add(1)
			return path, nil
		}
		t.Stats.InternalSearches.Add(1)
		id = t.findChild(n, key)
	}
}

// findChild returns the child owning key: the first entry whose key
// exceeds the search key owns it, or RightmostChild if none do.
func (t *Tree[K, V]) findChild(n *Node, key []byte) pager.PageID {
	sc := n.SlotCount()
	lo, hi := 0, sc
	for lo < hi {
		mid := (lo + hi) / 2
		sep := decodeInternalKey(n.Record(mid))
		if bytes.Compare(key, sep) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo < sc {
		_, child, err := decodeInternalRecord(n.Record(lo))
		if err == nil {
			return child
		}
	}
	return n.RightmostChild()
}

func searchLeaf(n *Node, key []byte) (pos int, found bool) {
	sc := n.SlotCount()
	lo, hi := 0, sc
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(decodeLeafKey(n.Record(mid)), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < sc && bytes.Equal(decodeLeafKey(n.Record(lo)), key) {
		return lo, true
	}
	return lo, false
}

// --- Get / Range ---

// Get returns the value stored under key, if any.
func (t *Tree[K, V]) Get(g pageGetter, root pager.PageID, key K) (V, bool, error) {
	var zero V
	kb := t.Keys.Encode(key)
	path, err := t.pathToLeaf(g, root, kb)
	if err != nil {
		return zero, false, err
	}
	buf, err := g.GetPage(path[len(path)-1])
	if err != nil {
		return zero, false, err
	}
	n := WrapNode(buf)
	pos, found := searchLeaf(n, kb)
	if !found {
		return zero, false, nil
	}
	_, valBytes, err := decodeLeafRecord(n.Record(pos))
	if err != nil {
		return zero, false, err
	}
	v, err := t.Values.Decode(valBytes)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Range walks keys in [lo, hi) in order, calling fn for each pair
// until it returns false or hi is reached. A nil lo starts at the
// tree's leftmost key; a nil hi runs to the rightmost key (spec §4.6
// "range(lo, hi) uses fence-aware descent ... walks right_sibling").
func (t *Tree[K, V]) Range(g pageGetter, root pager.PageID, lo, hi *K, fn func(K, V) bool) error {
	var lb []byte
	if lo != nil {
		lb = t.Keys.Encode(*lo)
	}
	path, err := t.pathToLeaf(g, root, lb)
	if err != nil {
		return err
	}
	leafID := path[len(path)-1]

	var hb []byte
	hasHi := hi != nil
	if hasHi {
		hb = t.Keys.Encode(*hi)
	}

	for leafID != pager.InvalidPageID {
		buf, err := g.GetPage(leafID)
		if err != nil {
			return err
		}
		n := WrapNode(buf)
		sc := n.SlotCount()
		start := 0
		if lo != nil {
			start, _ = searchLeaf(n, lb)
		}
		for i := start; i < sc; i++ {
			key, valBytes, err := decodeLeafRecord(n.Record(i))
			if err != nil {
				return err
			}
			if hasHi && bytes.Compare(key, hb) >= 0 {
				return nil
			}
			k, err := t.Keys.Decode(key)
			if err != nil {
				return err
			}
			v, err := t.Values.Decode(valBytes)
			if err != nil {
				return err
			}
			if !fn(k, v) {
				return nil
			}
		}
		leafID = n.RightSibling()
	}
	return nil
}

// --- Insert ---

// Insert adds or overwrites key -> value, returning the tree's
// (possibly new, if the root split) root page id.
func (t *Tree[K, V]) Insert(wg *pager.WriteGuard, root pager.PageID, key K, value V) (pager.PageID, error) {
	kb := t.Keys.Encode(key)
	vb := t.Values.Encode(value)

	path, err := t.pathToLeaf(wg, root, kb)
	if err != nil {
		return root, err
	}
	leafID := path[len(path)-1]
	buf, err := wg.GetPage(leafID)
	if err != nil {
		return root, err
	}
	n := WrapNode(buf)
	low, high := n.LowFence(), n.HighFence()
	leftSib, rightSib, parent := n.LeftSibling(), n.RightSibling(), n.Parent()

	records := collectLeafRecords(n)
	newRec := encodeLeafRecord(kb, vb)
	merged := mergeLeafRecord(records, kb, newRec)

	fresh, err := wg.PageMut(leafID)
	if err != nil {
		return root, err
	}
	if rebuildInPlace(fresh, Leaf, low, high, func(nn *Node) {
		nn.SetLeftSibling(leftSib)
		nn.SetRightSibling(rightSib)
		nn.SetParent(parent)
	}, merged) {
		t.Stats.InPlaceEdits.Add(1)
		return root, nil
	}

	t.Stats.LeafSplits.Add(1)
	splitKey, rightID, err := t.splitLeaf(wg, leafID, fresh, low, high, leftSib, rightSib, parent, merged)
	if err != nil {
		return root, err
	}
	return t.propagateSplit(wg, root, path[:len(path)-1], leafID, splitKey, rightID)
}

func mergeLeafRecord(records [][]byte, key, newRec []byte) [][]byte {
	out := make([][]byte, 0, len(records)+1)
	inserted := false
	for _, r := range records {
		k := decodeLeafKey(r)
		if !inserted && bytes.Compare(key, k) < 0 {
			out = append(out, newRec)
			inserted = true
		}
		if bytes.Equal(k, key) {
			continue // superseded by newRec
		}
		out = append(out, r)
	}
	if !inserted {
		out = append(out, newRec)
	}
	return out
}

func (t *Tree[K, V]) splitLeaf(wg *pager.WriteGuard, leafID pager.PageID, buf []byte, low, high []byte, leftSib, rightSibOld, parent pager.PageID, records [][]byte) ([]byte, pager.PageID, error) {
	mid, ok := chooseSplit(wg.PageSize(), Leaf, low, high, records, decodeLeafKey)
	if !ok {
		return nil, 0, errs.Invalid("btree: record too large to fit a single leaf page")
	}
	splitKey := append([]byte(nil), decodeLeafKey(records[mid])...)
	rightID, rightBuf := wg.AllocatePage(pager.KindBTreeLeaf)

	if !rebuildInPlace(buf, Leaf, low, splitKey, func(n *Node) {
		n.SetLeftSibling(leftSib)
		n.SetRightSibling(rightID)
		n.SetParent(parent)
	}, records[:mid]) {
		return nil, 0, errs.Corruption("btree: leaf split left half unexpectedly did not fit")
	}
	if !rebuildInPlace(rightBuf, Leaf, splitKey, high, func(n *Node) {
		n.SetLeftSibling(leafID)
		n.SetRightSibling(rightSibOld)
		n.SetParent(parent)
	}, records[mid:]) {
		return nil, 0, errs.Corruption("btree: leaf split right half unexpectedly did not fit")
	}

	if rightSibOld != pager.InvalidPageID {
		if oldNextBuf, err := wg.PageMut(rightSibOld); err == nil {
			WrapNode(oldNextBuf).SetLeftSibling(rightID)
		}
	}
	return splitKey, rightID, nil
}

// propagateSplit inserts the new (splitKey, rightID) separator into
// the parent named by the tail of ancestors, splitting it in turn (and
// so on up to the root) if it doesn't fit. An empty ancestors list
// means childID was the root, so a fresh root is allocated.
func (t *Tree[K, V]) propagateSplit(wg *pager.WriteGuard, root pager.PageID, ancestors []pager.PageID, childID pager.PageID, splitKey []byte, rightID pager.PageID) (pager.PageID, error) {
	if len(ancestors) == 0 {
		rootID, rootBuf := wg.AllocatePage(pager.KindBTreeInternal)
		n := InitNode(rootBuf, Internal)
		n.SetLowFence(nil)
		n.SetHighFence(nil)
		if !n.insertSlotAt(0, encodeInternalRecord(splitKey, childID)) {
			return root, errs.Corruption("btree: new root cannot hold a single separator")
		}
		n.SetRightmostChild(rightID)
		t.setParentOf(wg, childID, rootID)
		t.setParentOf(wg, rightID, rootID)
		return rootID, nil
	}

	parentID := ancestors[len(ancestors)-1]
	buf, err := wg.GetPage(parentID)
	if err != nil {
		return root, err
	}
	n := WrapNode(buf)
	low, high := n.LowFence(), n.HighFence()
	leftSib, grandparent := n.LeftSibling(), n.Parent()

	entries := collectInternalEntries(n)
	newEntries, newRightmost := retargetChild(entries, n.RightmostChild(), splitKey, childID, rightID)
	t.setParentOf(wg, rightID, parentID)

	fresh, err := wg.PageMut(parentID)
	if err != nil {
		return root, err
	}
	if rebuildInPlace(fresh, Internal, low, high, func(nn *Node) {
		nn.SetLeftSibling(leftSib)
		nn.SetRightSibling(newRightmost)
		nn.SetParent(grandparent)
	}, encodeInternalEntries(newEntries)) {
		return root, nil
	}

	t.Stats.Rebuilds.Add(1)
	pushKey, newRightID, err := t.splitInternal(wg, parentID, fresh, low, high, leftSib, grandparent, newEntries, newRightmost)
	if err != nil {
		return root, err
	}
	return t.propagateSplit(wg, root, ancestors[:len(ancestors)-1], parentID, pushKey, newRightID)
}

func (t *Tree[K, V]) splitInternal(wg *pager.WriteGuard, nodeID pager.PageID, buf []byte, low, high []byte, leftSib, parent pager.PageID, entries []internalEntry, rightmost pager.PageID) ([]byte, pager.PageID, error) {
	records := encodeInternalEntries(entries)
	mid, ok := chooseSplit(wg.PageSize(), Internal, low, high, records, decodeInternalKey)
	if !ok {
		return nil, 0, errs.Invalid("btree: separator too large to fit a single internal page")
	}
	pushKey := append([]byte(nil), entries[mid].key...)
	leftEntries := entries[:mid]
	leftRightmost := entries[mid].child
	rightEntries := entries[mid+1:]

	rightID, rightBuf := wg.AllocatePage(pager.KindBTreeInternal)

	if !rebuildInPlace(buf, Internal, low, pushKey, func(n *Node) {
		n.SetLeftSibling(leftSib)
		n.SetRightSibling(leftRightmost) // repurposed slot: rightmost child
		n.SetParent(parent)
	}, encodeInternalEntries(leftEntries)) {
		return nil, 0, errs.Corruption("btree: internal split left half unexpectedly did not fit")
	}
	if !rebuildInPlace(rightBuf, Internal, pushKey, high, func(n *Node) {
		n.SetLeftSibling(0)
		n.SetRightSibling(rightmost)
		n.SetParent(parent)
	}, encodeInternalEntries(rightEntries)) {
		return nil, 0, errs.Corruption("btree: internal split right half unexpectedly did not fit")
	}

	for _, e := range rightEntries {
		t.setParentOf(wg, e.child, rightID)
	}
	t.setParentOf(wg, rightmost, rightID)

	return pushKey, rightID, nil
}

func (t *Tree[K, V]) setParentOf(wg *pager.WriteGuard, child pager.PageID, parent pager.PageID) {
	if child == pager.InvalidPageID {
		return
	}
	buf, err := wg.PageMut(child)
	if err != nil {
		return
	}
	WrapNode(buf).SetParent(parent)
}

// --- Delete ---

// minFillBytes is the configurable rebalance target (spec §4.6): a
// leaf below this many used payload bytes after a delete triggers a
// borrow-or-merge against a sibling sharing the same parent.
func minFillBytes(pageSize int) int {
	return (pageSize - payloadStart()) / 4
}

func usedPayloadBytes(n *Node) int {
	return len(n.buf) - n.freeEnd()
}

// Delete removes key if present, returning the tree's (possibly new,
// if the root collapsed) root page id and whether the key was found.
func (t *Tree[K, V]) Delete(wg *pager.WriteGuard, root pager.PageID, key K) (pager.PageID, bool, error) {
	kb := t.Keys.Encode(key)
	path, err := t.pathToLeaf(wg, root, kb)
	if err != nil {
		return root, false, err
	}
	leafID := path[len(path)-1]
	buf, err := wg.GetPage(leafID)
	if err != nil {
		return root, false, err
	}
	n := WrapNode(buf)
	pos, found := searchLeaf(n, kb)
	if !found {
		return root, false, nil
	}

	low, high := n.LowFence(), n.HighFence()
	leftSib, rightSib, parent := n.LeftSibling(), n.RightSibling(), n.Parent()
	records := collectLeafRecords(n)
	records = append(records[:pos], records[pos+1:]...)

	newLow := low
	if pos == 0 && len(records) > 0 {
		newLow = append([]byte(nil), decodeLeafKey(records[0])...)
	}

	fresh, err := wg.PageMut(leafID)
	if err != nil {
		return root, false, err
	}
	if !rebuildInPlace(fresh, Leaf, newLow, high, func(nn *Node) {
		nn.SetLeftSibling(leftSib)
		nn.SetRightSibling(rightSib)
		nn.SetParent(parent)
	}, records) {
		return root, false, errs.Corruption("btree: leaf shrank but rebuild failed")
	}

	if !bytes.Equal(newLow, low) && len(path) > 1 {
		if err := t.fixSeparator(wg, path[:len(path)-1], low, newLow); err != nil {
			return root, false, err
		}
	}

	newRoot := root
	if usedPayloadBytes(WrapNode(fresh)) < minFillBytes(wg.PageSize()) && len(path) > 1 {
		newRoot, err = t.rebalanceLeaf(wg, root, path, leafID)
		if err != nil {
			return root, false, err
		}
	}
	return newRoot, true, nil
}

// fixSeparator updates the separator key that used to read oldKey to
// newKey in the nearest ancestor that holds it, per spec §4.6: "If the
// removed key was the leaf's low key, the new low key becomes the new
// low fence (updating the parent's separator)."
func (t *Tree[K, V]) fixSeparator(wg *pager.WriteGuard, ancestors []pager.PageID, oldKey, newKey []byte) error {
	for i := len(ancestors) - 1; i >= 0; i-- {
		buf, err := wg.GetPage(ancestors[i])
		if err != nil {
			return err
		}
		n := WrapNode(buf)
		entries := collectInternalEntries(n)
		changed := false
		for j := range entries {
			if bytes.Equal(entries[j].key, oldKey) {
				entries[j].key = append([]byte(nil), newKey...)
				changed = true
				break
			}
		}
		if !changed {
			continue
		}
		low, high := n.LowFence(), n.HighFence()
		leftSib, rightSib, parent := n.LeftSibling(), n.RightSibling(), n.Parent()
		fresh, err := wg.PageMut(ancestors[i])
		if err != nil {
			return err
		}
		if !rebuildInPlace(fresh, Internal, low, high, func(nn *Node) {
			nn.SetLeftSibling(leftSib)
			nn.SetRightSibling(rightSib)
			nn.SetParent(parent)
		}, encodeInternalEntries(entries)) {
			return errs.Corruption("btree: separator update unexpectedly grew the page")
		}
		return nil
	}
	return nil
}

// rebalanceLeaf borrows a record from, or merges with, a sibling leaf
// that shares leafID's immediate parent. Siblings under a different
// parent are left alone — an accepted scope limitation (see DESIGN.md).
func (t *Tree[K, V]) rebalanceLeaf(wg *pager.WriteGuard, root pager.PageID, path []pager.PageID, leafID pager.PageID) (pager.PageID, error) {
	buf, err := wg.GetPage(leafID)
	if err != nil {
		return root, err
	}
	n := WrapNode(buf)
	parentID := n.Parent()
	if len(path) < 2 || path[len(path)-2] != parentID {
		return root, nil
	}

	if sib := n.RightSibling(); sib != pager.InvalidPageID {
		sibBuf, err := wg.GetPage(sib)
		if err == nil && WrapNode(sibBuf).Parent() == parentID {
			return t.mergeOrBorrowLeaves(wg, root, path, leafID, sib)
		}
	}
	if sib := n.LeftSibling(); sib != pager.InvalidPageID {
		sibBuf, err := wg.GetPage(sib)
		if err == nil && WrapNode(sibBuf).Parent() == parentID {
			return t.mergeOrBorrowLeaves(wg, root, path, sib, leafID)
		}
	}
	return root, nil
}

// mergeOrBorrowLeaves handles the sibling pair (leftID, rightID),
// whichever of the two is underfull. It merges them into one page
// when the combined records fit, freeing the other; otherwise it
// borrows records across the boundary to bring both back above the
// fill target.
func (t *Tree[K, V]) mergeOrBorrowLeaves(wg *pager.WriteGuard, root pager.PageID, path []pager.PageID, leftID, rightID pager.PageID) (pager.PageID, error) {
	leftBuf, err := wg.GetPage(leftID)
	if err != nil {
		return root, err
	}
	rightBuf, err := wg.GetPage(rightID)
	if err != nil {
		return root, err
	}
	left, right := WrapNode(leftBuf), WrapNode(rightBuf)
	low, high := left.LowFence(), right.HighFence()
	oldBoundary := append([]byte(nil), right.LowFence()...)
	leftOfLeft, rightOfRight, parent := left.LeftSibling(), right.RightSibling(), left.Parent()

	merged := append(collectLeafRecords(left), collectLeafRecords(right)...)
	if fits(wg.PageSize(), Leaf, low, high, merged) {
		freshLeft, err := wg.PageMut(leftID)
		if err != nil {
			return root, err
		}
		if !rebuildInPlace(freshLeft, Leaf, low, high, func(nn *Node) {
			nn.SetLeftSibling(leftOfLeft)
			nn.SetRightSibling(rightOfRight)
			nn.SetParent(parent)
		}, merged) {
			return root, errs.Corruption("btree: leaf merge unexpectedly did not fit")
		}
		if rightOfRight != pager.InvalidPageID {
			if b, err := wg.PageMut(rightOfRight); err == nil {
				WrapNode(b).SetLeftSibling(leftID)
			}
		}
		wg.FreePage(rightID)
		t.Stats.LeafMerges.Add(1)
		return t.removeSeparatorFor(wg, root, path, rightID, oldBoundary)
	}

	// Borrow: move records until the merge point so each half clears
	// the fill target, splitting at that boundary the same way a
	// normal split would.
	splitPos, ok := chooseSplit(wg.PageSize(), Leaf, low, high, merged, decodeLeafKey)
	if !ok {
		return root, nil
	}
	splitKey := append([]byte(nil), decodeLeafKey(merged[splitPos])...)
	freshLeft, err := wg.PageMut(leftID)
	if err != nil {
		return root, err
	}
	if !rebuildInPlace(freshLeft, Leaf, low, splitKey, func(nn *Node) {
		nn.SetLeftSibling(leftOfLeft)
		nn.SetRightSibling(rightID)
		nn.SetParent(parent)
	}, merged[:splitPos]) {
		return root, errs.Corruption("btree: leaf borrow left half unexpectedly did not fit")
	}
	freshRight, err := wg.PageMut(rightID)
	if err != nil {
		return root, err
	}
	if !rebuildInPlace(freshRight, Leaf, splitKey, high, func(nn *Node) {
		nn.SetLeftSibling(leftID)
		nn.SetRightSibling(rightOfRight)
		nn.SetParent(parent)
	}, merged[splitPos:]) {
		return root, errs.Corruption("btree: leaf borrow right half unexpectedly did not fit")
	}
	return t.fixSeparatorAfterBorrow(wg, root, path, oldBoundary, splitKey)
}

// removeSeparatorFor deletes whichever ancestor separator equals
// boundaryKey (the boundary that stopped being meaningful once two
// leaves merged) and, if that empties an internal node down to a
// single child, collapses it into its parent (or into the root).
func (t *Tree[K, V]) removeSeparatorFor(wg *pager.WriteGuard, root pager.PageID, path []pager.PageID, freedChild pager.PageID, boundaryKey []byte) (pager.PageID, error) {
	ancestors := path[:len(path)-1]
	for i := len(ancestors) - 1; i >= 0; i-- {
		buf, err := wg.GetPage(ancestors[i])
		if err != nil {
			return root, err
		}
		n := WrapNode(buf)
		entries := collectInternalEntries(n)
		idx := -1
		for j, e := range entries {
			if e.child == freedChild || bytes.Equal(e.key, boundaryKey) {
				idx = j
				break
			}
		}
		rightmost := n.RightmostChild()
		if idx == -1 {
			if rightmost == freedChild && len(entries) > 0 {
				rightmost = entries[len(entries)-1].child
				entries = entries[:len(entries)-1]
			} else {
				continue
			}
		} else {
			entries = append(entries[:idx], entries[idx+1:]...)
		}

		low, high := n.LowFence(), n.HighFence()
		leftSib, parent := n.LeftSibling(), n.Parent()
		fresh, err := wg.PageMut(ancestors[i])
		if err != nil {
			return root, err
		}
		if !rebuildInPlace(fresh, Internal, low, high, func(nn *Node) {
			nn.SetLeftSibling(leftSib)
			nn.SetRightSibling(rightmost)
			nn.SetParent(parent)
		}, encodeInternalEntries(entries)) {
			return root, errs.Corruption("btree: separator removal unexpectedly did not fit")
		}

		if len(entries) == 0 {
			// This internal node now has exactly one child: collapse it.
			if ancestors[i] == root {
				t.setParentOf(wg, rightmost, pager.InvalidPageID)
				wg.FreePage(root)
				return rightmost, nil
			}
			return t.removeSeparatorFor(wg, root, ancestors[:i+1], ancestors[i], high)
		}
		return root, nil
	}
	return root, nil
}

func (t *Tree[K, V]) fixSeparatorAfterBorrow(wg *pager.WriteGuard, root pager.PageID, path []pager.PageID, low, newSeparator []byte) (pager.PageID, error) {
	if err := t.fixSeparator(wg, path[:len(path)-1], low, newSeparator); err != nil {
		// low may not itself be a separator (e.g. it was the tree's
		// -infinity fence); that is not an error, just a no-op match.
		_ = err
	}
	return root, nil
}

// --- bulk put ---

// PutMany inserts a run of already key-sorted pairs, caching the
// last-touched leaf and reusing it while the next key still falls
// within its fence range to avoid a repeated root-to-leaf descent
// (spec §4.6 "put_many"). Falls back to Insert (a fresh descent)
// whenever the cache misses.
func (t *Tree[K, V]) PutMany(wg *pager.WriteGuard, root pager.PageID, keys []K, values []V) (pager.PageID, error) {
	if len(keys) != len(values) {
		return root, errs.Invalid("btree: PutMany keys/values length mismatch")
	}
	var cachedLeaf pager.PageID
	haveCache := false
	var cachedLow, cachedHigh []byte

	for i := range keys {
		kb := t.Keys.Encode(keys[i])
		if haveCache && withinFence(kb, cachedLow, cachedHigh) {
			if _, err := t.insertKnownLeaf(wg, cachedLeaf, kb, t.Values.Encode(values[i])); err == nil {
				t.Stats.SnapshotPageReuse.Add(1)
				continue
			}
			// Leaf no longer fits or fence assumption broke down
			// (e.g. a split happened on a prior iteration) — fall
			// through to a full descent below.
		}
		newRoot, err := t.Insert(wg, root, keys[i], values[i])
		if err != nil {
			return root, err
		}
		root = newRoot

		path, err := t.pathToLeaf(wg, root, kb)
		if err != nil {
			return root, err
		}
		leafID := path[len(path)-1]
		buf, err := wg.GetPage(leafID)
		if err != nil {
			return root, err
		}
		n := WrapNode(buf)
		cachedLeaf, cachedLow, cachedHigh, haveCache = leafID, n.LowFence(), n.HighFence(), true
	}
	return root, nil
}

func withinFence(key, low, high []byte) bool {
	if low != nil && bytes.Compare(key, low) < 0 {
		return false
	}
	if high != nil && bytes.Compare(key, high) >= 0 {
		return false
	}
	return true
}

// insertKnownLeaf attempts an in-place rebuild of a leaf already known
// to be the right one, without a root-to-leaf descent.
func (t *Tree[K, V]) insertKnownLeaf(wg *pager.WriteGuard, leafID pager.PageID, kb, vb []byte) (pager.PageID, error) {
	buf, err := wg.GetPage(leafID)
	if err != nil {
		return leafID, err
	}
	n := WrapNode(buf)
	low, high := n.LowFence(), n.HighFence()
	leftSib, rightSib, parent := n.LeftSibling(), n.RightSibling(), n.Parent()
	records := collectLeafRecords(n)
	merged := mergeLeafRecord(records, kb, encodeLeafRecord(kb, vb))

	fresh, err := wg.PageMut(leafID)
	if err != nil {
		return leafID, err
	}
	if !rebuildInPlace(fresh, Leaf, low, high, func(nn *Node) {
		nn.SetLeftSibling(leftSib)
		nn.SetRightSibling(rightSib)
		nn.SetParent(parent)
	}, merged) {
		return leafID, errs.Invalid("btree: cached leaf no longer fits")
	}
	t.Stats.InPlaceEdits.Add(1)
	return leafID, nil
}
