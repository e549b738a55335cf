package pager

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maskdotdev/sombra-sub004/internal/walog"
)

func testOptions() Options {
	return Options{PageSize: 4096, Logger: zerolog.Nop()}
}

func testPaths(t *testing.T) (string, string, string) {
	dir := t.TempDir()
	return filepath.Join(dir, "data.sombra"),
		filepath.Join(dir, "wal.sombra"),
		filepath.Join(dir, "lock.sombra")
}

func TestPager_CreateThenReopen(t *testing.T) {
	dataPath, walPath, lockPath := testPaths(t)

	p, err := Create(dataPath, walPath, lockPath, testOptions())
	require.NoError(t, err)

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	id, buf := wg.AllocatePage(KindBTreeLeaf)
	copy(buf[HeaderSize:], []byte("hello page"))
	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)

	require.NoError(t, p.Close())

	p2, err := Open(dataPath, walPath, lockPath, testOptions())
	require.NoError(t, err)
	defer p2.Close()

	rg, err := p2.BeginRead()
	require.NoError(t, err)
	defer rg.Release()

	got, err := rg.GetPage(id)
	require.NoError(t, err)
	require.Equal(t, "hello page", string(got[HeaderSize:HeaderSize+10]))
}

func TestPager_SnapshotIsolation(t *testing.T) {
	dataPath, walPath, lockPath := testPaths(t)
	p, err := Create(dataPath, walPath, lockPath, testOptions())
	require.NoError(t, err)
	defer p.Close()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	id, buf := wg.AllocatePage(KindBTreeLeaf)
	copy(buf[HeaderSize:], []byte("version-1 "))
	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)

	reader, err := p.BeginRead()
	require.NoError(t, err)

	wg2, err := p.BeginWrite()
	require.NoError(t, err)
	mutBuf, err := wg2.PageMut(id)
	require.NoError(t, err)
	copy(mutBuf[HeaderSize:], []byte("version-2 "))
	_, err = wg2.Commit(walog.SyncImmediate)
	require.NoError(t, err)

	oldView, err := reader.GetPage(id)
	require.NoError(t, err)
	require.Equal(t, "version-1 ", string(oldView[HeaderSize:HeaderSize+10]))

	latest, err := p.BeginRead()
	require.NoError(t, err)
	defer latest.Release()
	newView, err := latest.GetPage(id)
	require.NoError(t, err)
	require.Equal(t, "version-2 ", string(newView[HeaderSize:HeaderSize+10]))

	reader.Release()
}

func TestPager_SingleWriterEnforced(t *testing.T) {
	dataPath, walPath, lockPath := testPaths(t)
	p, err := Create(dataPath, walPath, lockPath, testOptions())
	require.NoError(t, err)
	defer p.Close()

	wg, err := p.BeginWrite()
	require.NoError(t, err)

	_, err = p.BeginWrite()
	require.Error(t, err)

	wg.Abort()

	wg2, err := p.BeginWrite()
	require.NoError(t, err)
	wg2.Abort()
}

func TestPager_FreelistLIFOAcrossCommits(t *testing.T) {
	dataPath, walPath, lockPath := testPaths(t)
	p, err := Create(dataPath, walPath, lockPath, testOptions())
	require.NoError(t, err)
	defer p.Close()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	idA, _ := wg.AllocatePage(KindBTreeLeaf)
	idB, _ := wg.AllocatePage(KindBTreeLeaf)
	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)

	wg2, err := p.BeginWrite()
	require.NoError(t, err)
	wg2.FreePage(idA)
	wg2.FreePage(idB)
	_, err = wg2.Commit(walog.SyncImmediate)
	require.NoError(t, err)

	p.reclaimFreedPages()

	wg3, err := p.BeginWrite()
	require.NoError(t, err)
	reusedFirst, _ := wg3.AllocatePage(KindBTreeLeaf)
	reusedSecond, _ := wg3.AllocatePage(KindBTreeLeaf)
	wg3.Abort()

	require.Equal(t, idB, reusedFirst, "freelist must pop the most recently freed page first")
	require.Equal(t, idA, reusedSecond)
}

func TestPager_CheckpointTruncatesWAL(t *testing.T) {
	dataPath, walPath, lockPath := testPaths(t)
	p, err := Create(dataPath, walPath, lockPath, testOptions())
	require.NoError(t, err)
	defer p.Close()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	_, _ = wg.AllocatePage(KindBTreeLeaf)
	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)

	require.NoError(t, p.Checkpoint(CheckpointBestEffort))
	require.Equal(t, int64(walog.FileHeaderSize), p.wal.AppendOffset())
}

func TestPager_SyncOffPolicyOverridesRequestedMode(t *testing.T) {
	dataPath, walPath, lockPath := testPaths(t)
	opts := testOptions()
	opts.Synchronous = SyncOff
	p, err := Create(dataPath, walPath, lockPath, opts)
	require.NoError(t, err)
	defer p.Close()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	_, _ = wg.AllocatePage(KindBTreeLeaf)
	// Even though the caller explicitly asks for SyncImmediate, the
	// pager's Synchronous:Off policy is an absolute floor and must win.
	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
	require.Equal(t, LSN(0), LSN(p.durableLSN.Load()))
}

func TestPager_NormalPolicyAdvancesDurableLSNOnBatchSync(t *testing.T) {
	dataPath, walPath, lockPath := testPaths(t)
	opts := testOptions()
	opts.Synchronous = SyncNormal
	p, err := Create(dataPath, walPath, lockPath, opts)
	require.NoError(t, err)
	defer p.Close()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	_, _ = wg.AllocatePage(KindBTreeLeaf)
	commitLSN, err := wg.Commit(walog.SyncDeferred)
	require.NoError(t, err)
	require.Equal(t, commitLSN, LSN(p.durableLSN.Load()))
}
