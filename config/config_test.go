package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maskdotdev/sombra-sub004/config"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
)

func TestLoad_AppliesDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sombra.yaml")
	require.NoError(t, os.WriteFile(path, []byte("page_size: 8192\n"), 0o644))

	o, err := config.Load(path)
	require.NoError(t, err)
	require.EqualValues(t, 8192, o.PageSize)
	require.Equal(t, 1024, o.CachePages)
	require.Equal(t, "Full", o.Synchronous)
	require.EqualValues(t, 5000, o.AutocheckpointMs)
}

func TestOptions_PagerOptionsMapsSynchronousPolicy(t *testing.T) {
	o := config.Options{Synchronous: "Normal"}
	po := o.PagerOptions(zerolog.Nop())
	require.Equal(t, pager.SyncNormal, po.Synchronous)

	o = config.Options{Synchronous: "bogus"}
	po = o.PagerOptions(zerolog.Nop())
	require.Equal(t, pager.SyncFull, po.Synchronous)
}

func TestOptions_SyncPolicy(t *testing.T) {
	require.Equal(t, pager.SyncOff, config.Options{Synchronous: "Off"}.SyncPolicy())
	require.Equal(t, pager.SyncNormal, config.Options{Synchronous: "Normal"}.SyncPolicy())
	require.Equal(t, pager.SyncFull, config.Options{Synchronous: "Full"}.SyncPolicy())
	require.Equal(t, pager.SyncFull, config.Options{}.SyncPolicy())
}

func TestOptions_AutocheckpointInterval(t *testing.T) {
	o := config.Options{AutocheckpointMs: 2500}
	require.Equal(t, 2500*1e6, float64(o.AutocheckpointInterval()))
}
