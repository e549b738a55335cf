package vstore_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maskdotdev/sombra-sub004/internal/pager"
	"github.com/maskdotdev/sombra-sub004/internal/vstore"
	"github.com/maskdotdev/sombra-sub004/internal/walog"
)

func newTestPager(t *testing.T) *pager.Pager {
	dir := t.TempDir()
	p, err := pager.Create(
		filepath.Join(dir, "data.sombra"),
		filepath.Join(dir, "wal.sombra"),
		filepath.Join(dir, "lock.sombra"),
		pager.Options{PageSize: 512, Logger: zerolog.Nop()},
	)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestVStore_WriteReadRoundTrip(t *testing.T) {
	p := newTestPager(t)

	wg, err := p.BeginWrite()
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("sombra-overflow-payload "), 40) // spans multiple pages at 512B
	ref, err := vstore.Write(wg, payload)
	require.NoError(t, err)
	require.Greater(t, ref.NPages, uint32(1))

	got, err := vstore.Read(wg, ref)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestVStore_UpdateInPlaceWhenItFits(t *testing.T) {
	p := newTestPager(t)

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	original := bytes.Repeat([]byte("x"), 1000)
	ref, err := vstore.Write(wg, original)
	require.NoError(t, err)
	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)

	wg2, err := p.BeginWrite()
	require.NoError(t, err)
	smaller := bytes.Repeat([]byte("y"), 500)
	newRef, err := vstore.Update(wg2, ref, smaller)
	require.NoError(t, err)
	require.Equal(t, ref.StartPage, newRef.StartPage)
	require.Equal(t, ref.NPages, newRef.NPages)

	got, err := vstore.Read(wg2, newRef)
	require.NoError(t, err)
	require.Equal(t, smaller, got)
	_, err = wg2.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestVStore_UpdateGrowsBeyondChainWritesFreshChain(t *testing.T) {
	p := newTestPager(t)

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	original := bytes.Repeat([]byte("a"), 100)
	ref, err := vstore.Write(wg, original)
	require.NoError(t, err)
	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)

	wg2, err := p.BeginWrite()
	require.NoError(t, err)
	bigger := bytes.Repeat([]byte("b"), 5000)
	newRef, err := vstore.Update(wg2, ref, bigger)
	require.NoError(t, err)
	require.NotEqual(t, ref.StartPage, newRef.StartPage)
	require.Greater(t, newRef.NPages, ref.NPages)

	got, err := vstore.Read(wg2, newRef)
	require.NoError(t, err)
	require.Equal(t, bigger, got)
	_, err = wg2.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestVStore_FreeThenReclaimMakesPagesReusable(t *testing.T) {
	p := newTestPager(t)

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	payload := bytes.Repeat([]byte("z"), 2000)
	ref, err := vstore.Write(wg, payload)
	require.NoError(t, err)
	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)

	wg2, err := p.BeginWrite()
	require.NoError(t, err)
	vstore.Free(wg2, ref)
	_, err = wg2.Commit(walog.SyncImmediate)
	require.NoError(t, err)

	before := p.Stats().FreePages
	require.GreaterOrEqual(t, before, int(ref.NPages))
}

func TestVStore_CorruptChecksumIsRejected(t *testing.T) {
	p := newTestPager(t)

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	payload := bytes.Repeat([]byte("q"), 50)
	ref, err := vstore.Write(wg, payload)
	require.NoError(t, err)

	ref.Checksum ^= 0xFFFFFFFF
	_, err = vstore.Read(wg, ref)
	require.Error(t, err)
}
