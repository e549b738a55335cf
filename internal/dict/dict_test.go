package dict_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maskdotdev/sombra-sub004/internal/dict"
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

func TestDict_InternIsIdempotent(t *testing.T) {
	p := newTestPager(t)
	d := dict.New()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	s2i, i2s, err := d.Create(wg)
	require.NoError(t, err)
	wg.Meta().DictStrToIDRoot = s2i
	wg.Meta().DictIDToStrRoot = i2s

	id1, err := d.Intern(wg, "Person")
	require.NoError(t, err)
	id2, err := d.Intern(wg, "Person")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	id3, err := d.Intern(wg, "Company")
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)

	gotID, found, err := d.LookupID(wg, wg.Meta().DictStrToIDRoot, "Person")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, id1, gotID)

	gotStr, found, err := d.LookupString(wg, wg.Meta().DictIDToStrRoot, id3)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Company", gotStr)

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestDict_IDsNeverRecycled(t *testing.T) {
	p := newTestPager(t)
	d := dict.New()

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	s2i, i2s, err := d.Create(wg)
	require.NoError(t, err)
	wg.Meta().DictStrToIDRoot = s2i
	wg.Meta().DictIDToStrRoot = i2s

	seen := map[uint32]string{}
	for i := 0; i < 50; i++ {
		s := fmt.Sprintf("label-%03d", i)
		id, err := d.Intern(wg, s)
		require.NoError(t, err)
		if prev, ok := seen[id]; ok {
			require.Equal(t, prev, s, "id %d reused for a different string", id)
		}
		seen[id] = s
	}
	require.Len(t, seen, 50)

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}
