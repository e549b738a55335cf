package btree_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maskdotdev/sombra-sub004/internal/btree"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
	"github.com/maskdotdev/sombra-sub004/internal/walog"
)

func newTestPager(t *testing.T, pageSize int) *pager.Pager {
	dir := t.TempDir()
	p, err := pager.Create(
		filepath.Join(dir, "data.sombra"),
		filepath.Join(dir, "wal.sombra"),
		filepath.Join(dir, "lock.sombra"),
		pager.Options{PageSize: pageSize, Logger: zerolog.Nop()},
	)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func newTree() *btree.Tree[string, string] {
	return btree.New(btree.StringCodec, btree.StringCodec)
}

func TestBTree_CreateGetMissing(t *testing.T) {
	p := newTestPager(t, 4096)
	tr := newTree()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	root, err := tr.Create(wg)
	require.NoError(t, err)

	_, found, err := tr.Get(wg, root, "nope")
	require.NoError(t, err)
	require.False(t, found)

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestBTree_InsertGetRoundTrip(t *testing.T) {
	p := newTestPager(t, 4096)
	tr := newTree()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	root, err := tr.Create(wg)
	require.NoError(t, err)

	root, err = tr.Insert(wg, root, "alpha", "1")
	require.NoError(t, err)
	root, err = tr.Insert(wg, root, "beta", "2")
	require.NoError(t, err)
	root, err = tr.Insert(wg, root, "alpha", "overwritten")
	require.NoError(t, err)

	v, found, err := tr.Get(wg, root, "alpha")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "overwritten", v)

	v, found, err = tr.Get(wg, root, "beta")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2", v)

	require.EqualValues(t, 3, tr.Stats.InPlaceEdits.Load())
	require.EqualValues(t, 0, tr.Stats.LeafSplits.Load())

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

// TestBTree_ManyInsertsSplitAndRange forces a small page size so that
// enough keys drive multiple leaf splits and at least one internal
// split, then checks Range walks the whole tree in order via leaf
// right-sibling links.
func TestBTree_ManyInsertsSplitAndRange(t *testing.T) {
	p := newTestPager(t, 512)
	tr := newTree()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	root, err := tr.Create(wg)
	require.NoError(t, err)

	const n = 300
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%04d", i)
		v := fmt.Sprintf("value-%04d", i)
		root, err = tr.Insert(wg, root, k, v)
		require.NoError(t, err)
	}

	require.Greater(t, tr.Stats.LeafSplits.Load(), int64(0))

	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%04d", i)
		want := fmt.Sprintf("value-%04d", i)
		got, found, err := tr.Get(wg, root, k)
		require.NoError(t, err)
		require.True(t, found, "missing key %s", k)
		require.Equal(t, want, got)
	}

	var seen []string
	err = tr.Range(wg, root, nil, nil, func(k, v string) bool {
		seen = append(seen, k)
		return true
	})
	require.NoError(t, err)
	require.Len(t, seen, n)
	for i := 1; i < len(seen); i++ {
		require.Less(t, seen[i-1], seen[i])
	}

	lo, hi := "key-0050", "key-0060"
	var ranged []string
	err = tr.Range(wg, root, &lo, &hi, func(k, v string) bool {
		ranged = append(ranged, k)
		return true
	})
	require.NoError(t, err)
	require.Len(t, ranged, 10)
	require.Equal(t, "key-0050", ranged[0])
	require.Equal(t, "key-0059", ranged[len(ranged)-1])

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestBTree_DeleteShrinksInPlace(t *testing.T) {
	p := newTestPager(t, 4096)
	tr := newTree()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	root, err := tr.Create(wg)
	require.NoError(t, err)

	root, err = tr.Insert(wg, root, "a", "1")
	require.NoError(t, err)
	root, err = tr.Insert(wg, root, "b", "2")
	require.NoError(t, err)

	root, found, err := tr.Delete(wg, root, "a")
	require.NoError(t, err)
	require.True(t, found)

	_, found, err = tr.Get(wg, root, "a")
	require.NoError(t, err)
	require.False(t, found)

	v, found, err := tr.Get(wg, root, "b")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2", v)

	root, found, err = tr.Delete(wg, root, "missing")
	require.NoError(t, err)
	require.False(t, found)

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

// TestBTree_DeleteTriggersMergeAndRootCollapse builds a tree with
// enough splits to have sibling leaves under one parent, then deletes
// most keys so the rebalance path merges siblings and eventually
// collapses back down to a single-leaf root.
func TestBTree_DeleteTriggersMergeAndRootCollapse(t *testing.T) {
	p := newTestPager(t, 512)
	tr := newTree()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	root, err := tr.Create(wg)
	require.NoError(t, err)

	const n = 120
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("key-%04d", i)
		root, err = tr.Insert(wg, root, keys[i], fmt.Sprintf("value-%04d", i))
		require.NoError(t, err)
	}
	require.Greater(t, tr.Stats.LeafSplits.Load(), int64(0))

	// Delete all but a handful of keys, driving repeated merge/borrow
	// rebalancing and, eventually, root collapse back to a bare leaf.
	var foundCount int
	for i := 0; i < n-5; i++ {
		var found bool
		root, found, err = tr.Delete(wg, root, keys[i])
		require.NoError(t, err)
		if found {
			foundCount++
		}
	}
	require.Equal(t, n-5, foundCount)
	require.Greater(t, tr.Stats.LeafMerges.Load(), int64(0))

	for i := 0; i < n-5; i++ {
		_, found, err := tr.Get(wg, root, keys[i])
		require.NoError(t, err)
		require.False(t, found)
	}
	for i := n - 5; i < n; i++ {
		v, found, err := tr.Get(wg, root, keys[i])
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, fmt.Sprintf("value-%04d", i), v)
	}

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestBTree_PutManyCachesLeaf(t *testing.T) {
	p := newTestPager(t, 4096)
	tr := newTree()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	root, err := tr.Create(wg)
	require.NoError(t, err)

	const n = 50
	keys := make([]string, n)
	values := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("key-%04d", i)
		values[i] = fmt.Sprintf("value-%04d", i)
	}

	root, err = tr.PutMany(wg, root, keys, values)
	require.NoError(t, err)

	require.Greater(t, tr.Stats.SnapshotPageReuse.Load(), int64(0))

	for i := 0; i < n; i++ {
		v, found, err := tr.Get(wg, root, keys[i])
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, values[i], v)
	}

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestBTree_ReadGuardSeesCommittedTree(t *testing.T) {
	p := newTestPager(t, 4096)
	tr := newTree()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	root, err := tr.Create(wg)
	require.NoError(t, err)
	root, err = tr.Insert(wg, root, "a", "1")
	require.NoError(t, err)
	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)

	rg, err := p.BeginRead()
	require.NoError(t, err)
	defer rg.Release()

	v, found, err := tr.Get(rg, root, "a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1", v)
}
