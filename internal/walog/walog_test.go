package walog

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maskdotdev/sombra-sub004/internal/fileio"
	"github.com/maskdotdev/sombra-sub004/internal/metrics"
)

func newTestWAL(t *testing.T) (*WAL, fileio.File) {
	t.Helper()
	f := fileio.OpenMem()
	w, err := Create(f, 64, 0xAABB, metrics.New())
	require.NoError(t, err)
	return w, f
}

func TestWAL_AppendAndIterate(t *testing.T) {
	w, f := newTestWAL(t)

	for i := 0; i < 5; i++ {
		payload := make([]byte, 64)
		payload[0] = byte(i)
		_, err := w.Append(PageID(i), payload)
		require.NoError(t, err)
	}

	it, err := NewIterator(f, 64)
	require.NoError(t, err)

	var count int
	for {
		fr, ok := it.Next()
		if !ok {
			break
		}
		require.Equal(t, byte(count), fr.Payload[0])
		count++
	}
	require.NoError(t, it.Err())
	require.Equal(t, 5, count)
}

func TestWAL_ChainBreaksOnCorruption(t *testing.T) {
	w, f := newTestWAL(t)

	for i := 0; i < 4; i++ {
		payload := make([]byte, 64)
		payload[0] = byte(i)
		_, err := w.Append(PageID(i), payload)
		require.NoError(t, err)
	}

	// Corrupt the payload of frame 2 (0-indexed) by flipping a byte.
	frameOffset := int64(FileHeaderSize + 2*(FrameHeaderSize+64))
	var b [1]byte
	_, err := f.ReadAt(b[:], frameOffset+FrameHeaderSize+1)
	require.NoError(t, err)
	b[0] ^= 0xFF
	_, err = f.WriteAt(b[:], frameOffset+FrameHeaderSize+1)
	require.NoError(t, err)

	it, err := NewIterator(f, 64)
	require.NoError(t, err)
	var count int
	for {
		_, ok := it.Next()
		if !ok {
			break
		}
		count++
	}
	require.NoError(t, it.Err())
	require.Equal(t, 2, count)
	require.Equal(t, int64(FileHeaderSize+2*(FrameHeaderSize+64)), it.ValidUpTo())
}

func TestWAL_TruncateResetsToHeader(t *testing.T) {
	w, f := newTestWAL(t)
	_, err := w.Append(0, make([]byte, 64))
	require.NoError(t, err)
	require.NoError(t, w.Truncate())

	n, err := f.Len()
	require.NoError(t, err)
	require.Equal(t, int64(FileHeaderSize), n)
}

func TestGroupCommit_CoalescesAndSyncsOnce(t *testing.T) {
	w, _ := newTestWAL(t)
	m := metrics.New()
	gc := NewGroupCommit(w, GroupCommitConfig{MaxWriters: 4, MaxFrames: 100, MaxWait: 20 * time.Millisecond}, zerolog.Nop(), m)
	defer gc.Close()

	var reqs []*CommitRequest
	for i := 0; i < 3; i++ {
		r := NewCommitRequest([]PageID{PageID(i)}, [][]byte{make([]byte, 64)}, SyncImmediate)
		reqs = append(reqs, r)
		gc.Submit(r)
	}
	for _, r := range reqs {
		require.NoError(t, r.Wait())
	}
	require.Equal(t, uint64(3), w.FramesAppended.Load())
	require.GreaterOrEqual(t, w.Syncs.Load(), uint64(1))
}

// failSyncFile wraps an in-memory fileio.File and fails every Sync
// call once armed, so tests can force a group commit batch failure.
type failSyncFile struct {
	fileio.File
	fail atomic.Bool
}

func (f *failSyncFile) Sync() error {
	if f.fail.Load() {
		return errors.New("failSyncFile: injected sync failure")
	}
	return f.File.Sync()
}

func TestGroupCommit_RestartsWorkerAfterBatchFailure(t *testing.T) {
	f := &failSyncFile{File: fileio.OpenMem()}
	w, err := Create(f, 64, 0xCCDD, metrics.New())
	require.NoError(t, err)

	gc := NewGroupCommit(w, GroupCommitConfig{MaxWriters: 1, MaxFrames: 100, MaxWait: time.Millisecond}, zerolog.Nop(), metrics.New())
	defer gc.Close()

	f.fail.Store(true)
	bad := NewCommitRequest([]PageID{0}, [][]byte{make([]byte, 64)}, SyncImmediate)
	gc.Submit(bad)
	require.Error(t, bad.Wait())

	f.fail.Store(false)
	good := NewCommitRequest([]PageID{1}, [][]byte{make([]byte, 64)}, SyncImmediate)
	gc.Submit(good)
	require.NoError(t, good.Wait())
	require.True(t, good.Synced)
}

func TestGroupCommit_SyncPolicyControlsWhenFsyncHappens(t *testing.T) {
	w, _ := newTestWAL(t)
	gc := NewGroupCommit(w, GroupCommitConfig{MaxWriters: 1, MaxFrames: 100, MaxWait: time.Millisecond}, zerolog.Nop(), metrics.New())
	defer gc.Close()

	off := NewCommitRequest([]PageID{0}, [][]byte{make([]byte, 64)}, SyncOff)
	gc.Submit(off)
	require.NoError(t, off.Wait())
	require.False(t, off.Synced)
	syncsAfterOff := w.Syncs.Load()

	deferred := NewCommitRequest([]PageID{1}, [][]byte{make([]byte, 64)}, SyncDeferred)
	gc.Submit(deferred)
	require.NoError(t, deferred.Wait())
	require.True(t, deferred.Synced)
	require.Greater(t, w.Syncs.Load(), syncsAfterOff)
}
