package mvcc_test

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maskdotdev/sombra-sub004/internal/mvcc"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
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

func TestLog_SnapshotIsolation(t *testing.T) {
	p := newTestPager(t)
	l := mvcc.New()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	meta := wg.Meta()
	meta.VersionLog, err = l.Create(wg)
	require.NoError(t, err)

	t1 := mvcc.NextTs(meta)
	meta.VersionLog, err = l.RecordVersion(wg, meta.VersionLog, mvcc.KindNode, 7, t1, []byte("v1"), false)
	require.NoError(t, err)

	payload, tomb, found, err := l.Visible(wg, meta.VersionLog, mvcc.KindNode, 7, t1)
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, tomb)
	require.Equal(t, []byte("v1"), payload)

	t2 := mvcc.NextTs(meta)
	meta.VersionLog, err = l.RecordVersion(wg, meta.VersionLog, mvcc.KindNode, 7, t2, []byte("v2"), false)
	require.NoError(t, err)

	// A reader snapshotted at t1 still sees v1 after T2 commits.
	payload, _, found, err = l.Visible(wg, meta.VersionLog, mvcc.KindNode, 7, t1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v1"), payload)

	// A reader snapshotted at t2 (or later) sees v2.
	payload, _, found, err = l.Visible(wg, meta.VersionLog, mvcc.KindNode, 7, t2)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v2"), payload)

	t3 := mvcc.NextTs(meta)
	payload, _, found, err = l.Visible(wg, meta.VersionLog, mvcc.KindNode, 7, t3)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v2"), payload)

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestLog_ReadBeforeEntityExistsIsNotFound(t *testing.T) {
	p := newTestPager(t)
	l := mvcc.New()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	meta := wg.Meta()
	meta.VersionLog, err = l.Create(wg)
	require.NoError(t, err)

	before := mvcc.NextTs(meta)
	afterTs := mvcc.NextTs(meta)
	meta.VersionLog, err = l.RecordVersion(wg, meta.VersionLog, mvcc.KindNode, 42, afterTs, []byte("x"), false)
	require.NoError(t, err)

	_, _, found, err := l.Visible(wg, meta.VersionLog, mvcc.KindNode, 42, before)
	require.NoError(t, err)
	require.False(t, found)

	wg.Abort()
}

func TestLog_TombstoneHidesEntity(t *testing.T) {
	p := newTestPager(t)
	l := mvcc.New()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	meta := wg.Meta()
	meta.VersionLog, err = l.Create(wg)
	require.NoError(t, err)

	t1 := mvcc.NextTs(meta)
	meta.VersionLog, err = l.RecordVersion(wg, meta.VersionLog, mvcc.KindEdge, 3, t1, []byte("e1"), false)
	require.NoError(t, err)

	t2 := mvcc.NextTs(meta)
	meta.VersionLog, err = l.RecordVersion(wg, meta.VersionLog, mvcc.KindEdge, 3, t2, nil, true)
	require.NoError(t, err)

	_, tomb, found, err := l.Visible(wg, meta.VersionLog, mvcc.KindEdge, 3, t2)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, tomb)

	_, tomb, found, err = l.Visible(wg, meta.VersionLog, mvcc.KindEdge, 3, t1)
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, tomb)

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestLog_PruneDropsOnlyClosedVersionsBeforeHorizon(t *testing.T) {
	p := newTestPager(t)
	l := mvcc.New()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	meta := wg.Meta()
	meta.VersionLog, err = l.Create(wg)
	require.NoError(t, err)

	t1 := mvcc.NextTs(meta)
	meta.VersionLog, err = l.RecordVersion(wg, meta.VersionLog, mvcc.KindNode, 1, t1, []byte("v1"), false)
	require.NoError(t, err)
	t2 := mvcc.NextTs(meta)
	meta.VersionLog, err = l.RecordVersion(wg, meta.VersionLog, mvcc.KindNode, 1, t2, []byte("v2"), false)
	require.NoError(t, err)
	t3 := mvcc.NextTs(meta)

	meta.VersionLog, err = l.Prune(wg, meta.VersionLog, mvcc.KindNode, 1, t3)
	require.NoError(t, err)

	// The pruned, closed v1 version is gone; snapshots at t1 can no
	// longer resolve, but the current (open) v2 version remains.
	_, _, found, err := l.Visible(wg, meta.VersionLog, mvcc.KindNode, 1, t1)
	require.NoError(t, err)
	require.False(t, found)

	payload, _, found, err := l.Visible(wg, meta.VersionLog, mvcc.KindNode, 1, t2)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v2"), payload)

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}
