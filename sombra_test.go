package sombra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maskdotdev/sombra-sub004/config"
	"github.com/maskdotdev/sombra-sub004/internal/graph"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
	"github.com/maskdotdev/sombra-sub004/internal/propval"
	"github.com/maskdotdev/sombra-sub004/internal/walog"
)

func TestWalogSyncMode_DerivesFromSynchronousAndAsyncFsync(t *testing.T) {
	require.Equal(t, walog.SyncOff, walogSyncMode(config.Options{Synchronous: "Off"}))
	require.Equal(t, walog.SyncOff, walogSyncMode(config.Options{Synchronous: "Off", AsyncFsync: true}))
	require.Equal(t, walog.SyncDeferred, walogSyncMode(config.Options{Synchronous: "Normal"}))
	require.Equal(t, walog.SyncImmediate, walogSyncMode(config.Options{Synchronous: "Full"}))
	require.Equal(t, walog.SyncDeferred, walogSyncMode(config.Options{Synchronous: "Full", AsyncFsync: true}))
	require.Equal(t, walog.SyncImmediate, walogSyncMode(config.Options{}))
}

// TestDB_NormalPolicyReadsOwnCommitsWithoutCheckpoint guards against the
// durableLSN staying pinned to a stale checkpoint under a Normal
// durability policy: BeginRead must observe a Normal commit's data
// once the group-commit worker has actually synced it, not only after
// an explicit Checkpoint.
func TestDB_NormalPolicyReadsOwnCommitsWithoutCheckpoint(t *testing.T) {
	paths := testPaths(t, "normal-policy")
	opts := config.Options{Synchronous: "Normal"}
	db, err := Create(paths, opts, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	wg, err := db.BeginWrite()
	require.NoError(t, err)
	person, err := db.Dict().Intern(wg, "Person")
	require.NoError(t, err)
	n1, err := db.Graph().CreateNode(wg, []graph.LabelID{person}, nil)
	require.NoError(t, err)
	_, err = wg.Commit(walogSyncMode(opts))
	require.NoError(t, err)

	rg, err := db.BeginRead()
	require.NoError(t, err)
	defer rg.Release()
	meta, err := rg.Meta()
	require.NoError(t, err)

	rec, found, err := db.Graph().GetNode(rg, meta, n1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []graph.LabelID{person}, rec.Labels)
}

func testPaths(t *testing.T, name string) Paths {
	dir := t.TempDir()
	return Paths{
		Data: filepath.Join(dir, name+".sombra"),
		WAL:  filepath.Join(dir, name+".wal"),
		Lock: filepath.Join(dir, name+".lock"),
	}
}

func TestDB_CreateThenOpenRoundTrip(t *testing.T) {
	paths := testPaths(t, "roundtrip")

	db, err := Create(paths, config.Options{}, zerolog.Nop())
	require.NoError(t, err)

	wg, err := db.BeginWrite()
	require.NoError(t, err)
	person, err := db.Dict().Intern(wg, "Person")
	require.NoError(t, err)
	n1, err := db.Graph().CreateNode(wg, []graph.LabelID{person}, nil)
	require.NoError(t, err)
	_, err = wg.Commit(walogSyncMode(config.Options{}))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := Open(paths, config.Options{}, zerolog.Nop())
	require.NoError(t, err)
	defer db2.Close()

	rg, err := db2.BeginRead()
	require.NoError(t, err)
	defer rg.Release()
	meta, err := rg.Meta()
	require.NoError(t, err)

	rec, found, err := db2.Graph().GetNode(rg, meta, n1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []graph.LabelID{person}, rec.Labels)
}

func TestDB_StatsAndCheckpoint(t *testing.T) {
	paths := testPaths(t, "stats")
	db, err := Create(paths, config.Options{}, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	wg, err := db.BeginWrite()
	require.NoError(t, err)
	_, err = wg.Commit(walogSyncMode(config.Options{}))
	require.NoError(t, err)

	require.NoError(t, db.Checkpoint(pager.CheckpointForce))
	s := db.Stats()
	require.GreaterOrEqual(t, s.DurableLSN, pager.LSN(0))
}

func seedGraph(t *testing.T, db *DB, nodeCount int) []graph.NodeID {
	t.Helper()
	wg, err := db.BeginWrite()
	require.NoError(t, err)

	person, err := db.Dict().Intern(wg, "Person")
	require.NoError(t, err)
	age, err := db.Dict().Intern(wg, "age")
	require.NoError(t, err)
	knows, err := db.Dict().Intern(wg, "knows")
	require.NoError(t, err)

	ids := make([]graph.NodeID, nodeCount)
	for i := 0; i < nodeCount; i++ {
		id, err := db.Graph().CreateNode(wg, []graph.LabelID{person}, []graph.Prop{{ID: age, Value: propval.FromInt64(int64(20 + i))}})
		require.NoError(t, err)
		ids[i] = id
	}
	for i := 1; i < nodeCount; i++ {
		_, err := db.Graph().CreateEdge(wg, ids[i-1], ids[i], knows, nil, false)
		require.NoError(t, err)
	}
	_, err = wg.Commit(walogSyncMode(config.Options{}))
	require.NoError(t, err)
	return ids
}

func TestDB_VerifyQuickAndThoroughPass(t *testing.T) {
	paths := testPaths(t, "verify")
	db, err := Create(paths, config.Options{}, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	seedGraph(t, db, 5)

	require.NoError(t, db.Verify(VerifyQuick))
	require.NoError(t, db.Verify(VerifyThorough))
}

func TestDB_VacuumPreservesLiveEntitiesAndCompactsIDs(t *testing.T) {
	srcPaths := testPaths(t, "vacuum-src")
	db, err := Create(srcPaths, config.Options{}, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	ids := seedGraph(t, db, 10)

	wg, err := db.BeginWrite()
	require.NoError(t, err)
	for i, id := range ids {
		if i%2 == 0 {
			require.NoError(t, db.Graph().DeleteNode(wg, id, graph.DeleteOpts{Cascade: true}))
		}
	}
	_, err = wg.Commit(walogSyncMode(config.Options{}))
	require.NoError(t, err)

	destPaths := testPaths(t, "vacuum-dest")
	require.NoError(t, db.Vacuum(destPaths, config.Options{}))

	_, err = os.Stat(destPaths.Data)
	require.NoError(t, err)

	dest, err := Open(destPaths, config.Options{}, zerolog.Nop())
	require.NoError(t, err)
	defer dest.Close()

	rg, err := dest.BeginRead()
	require.NoError(t, err)
	defer rg.Release()
	meta, err := rg.Meta()
	require.NoError(t, err)

	nodes, err := dest.Graph().AllNodes(rg, meta)
	require.NoError(t, err)
	require.Len(t, nodes, 5)
	for i, n := range nodes {
		require.Equal(t, graph.NodeID(i), n.ID)
	}

	require.NoError(t, dest.Verify(VerifyThorough))
}
