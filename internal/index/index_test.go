package index_test

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maskdotdev/sombra-sub004/internal/index"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
	"github.com/maskdotdev/sombra-sub004/internal/propval"
	"github.com/maskdotdev/sombra-sub004/internal/walog"
)

func newTestPager(t *testing.T) *pager.Pager {
	dir := t.TempDir()
	p, err := pager.Create(
		filepath.Join(dir, "data.sombra"),
		filepath.Join(dir, "wal.sombra"),
		filepath.Join(dir, "lock.sombra"),
		pager.Options{PageSize: 4096, Logger: zerolog.Nop()},
	)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestLabelIndex_ScanAndIntersect(t *testing.T) {
	p := newTestPager(t)
	li := index.NewLabelIndex()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	root, err := li.Create(wg)
	require.NoError(t, err)

	const labelPerson, labelEmployee uint32 = 1, 2
	for _, n := range []uint64{1, 2, 3, 4} {
		root, err = li.AddLabel(wg, root, labelPerson, n)
		require.NoError(t, err)
	}
	for _, n := range []uint64{2, 4, 6} {
		root, err = li.AddLabel(wg, root, labelEmployee, n)
		require.NoError(t, err)
	}

	stream, err := li.Scan(wg, root, labelPerson)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3, 4}, index.CollectAll(stream))

	both, err := li.IntersectLabels(wg, root, []uint32{labelPerson, labelEmployee})
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 4}, both)

	root, err = li.RemoveLabel(wg, root, labelPerson, 2)
	require.NoError(t, err)
	stream, err = li.Scan(wg, root, labelPerson)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3, 4}, index.CollectAll(stream))

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestChunkedIndex_SpillsAcrossChunksAndRemoves(t *testing.T) {
	p := newTestPager(t)
	ci := index.NewChunkedIndex()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	root, err := ci.Create(wg)
	require.NoError(t, err)

	const label, prop uint32 = 1, 10
	value, err := propval.EncodeOrdered(propval.FromString("active"))
	require.NoError(t, err)

	const n = 600 // forces more than one chunk at chunkCapacity=256
	for i := uint64(0); i < n; i++ {
		root, err = ci.AddPosting(wg, root, label, prop, value, i)
		require.NoError(t, err)
	}

	stream, err := ci.ScanEq(wg, root, label, prop, value)
	require.NoError(t, err)
	got := index.CollectAll(stream)
	require.Len(t, got, n)
	for i, id := range got {
		require.Equal(t, uint64(i), id)
	}

	root, err = ci.RemovePosting(wg, root, label, prop, value, 300)
	require.NoError(t, err)
	stream, err = ci.ScanEq(wg, root, label, prop, value)
	require.NoError(t, err)
	got = index.CollectAll(stream)
	require.Len(t, got, n-1)
	for _, id := range got {
		require.NotEqual(t, uint64(300), id)
	}

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestOrderedIndex_RangeScan(t *testing.T) {
	p := newTestPager(t)
	oi := index.NewOrderedIndex()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	root, err := oi.Create(wg)
	require.NoError(t, err)

	const label, prop uint32 = 1, 20
	for i := int64(0); i < 20; i++ {
		v, err := propval.EncodeOrdered(propval.FromInt64(i))
		require.NoError(t, err)
		root, err = oi.AddPosting(wg, root, label, prop, v, uint64(100+i))
		require.NoError(t, err)
	}

	lo, err := propval.EncodeOrdered(propval.FromInt64(5))
	require.NoError(t, err)
	hi, err := propval.EncodeOrdered(propval.FromInt64(10))
	require.NoError(t, err)
	stream, err := oi.ScanRange(wg, root, label, prop, lo, hi)
	require.NoError(t, err)
	got := index.CollectAll(stream)
	require.Len(t, got, 5)
	for i, id := range got {
		require.Equal(t, uint64(105+i), id)
	}

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestCatalog_CreateLookupDropBumpsEpoch(t *testing.T) {
	p := newTestPager(t)
	cat := index.NewCatalog()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	root, err := cat.Create(wg)
	require.NoError(t, err)

	var epoch uint64
	root, err = cat.CreatePropertyIndex(wg, root, 1, 10, index.KindChunked, propval.KindStringInterned, &epoch)
	require.NoError(t, err)
	require.EqualValues(t, 1, epoch)

	def, found, err := cat.Lookup(wg, root, 1, 10)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, index.KindChunked, def.Kind)

	_, err = cat.CreatePropertyIndex(wg, root, 1, 10, index.KindChunked, propval.KindStringInterned, &epoch)
	require.Error(t, err)

	root, err = cat.DropPropertyIndex(wg, root, 1, 10, &epoch)
	require.NoError(t, err)
	require.EqualValues(t, 2, epoch)

	_, found, err = cat.Lookup(wg, root, 1, 10)
	require.NoError(t, err)
	require.False(t, found)

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}
