package graph_test

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maskdotdev/sombra-sub004/internal/dict"
	"github.com/maskdotdev/sombra-sub004/internal/graph"
	"github.com/maskdotdev/sombra-sub004/internal/index"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
	"github.com/maskdotdev/sombra-sub004/internal/propval"
	"github.com/maskdotdev/sombra-sub004/internal/walog"
)

type harness struct {
	p    *pager.Pager
	d    *dict.Dict
	cat  *index.Catalog
	g    *graph.Graph
	lPer uint32 // "Person" label id
	lEmp uint32 // "Employee" label id
	pAge uint32 // "age" prop id
	tKnw uint32 // "knows" edge type id
}

func newHarness(t *testing.T) *harness {
	dir := t.TempDir()
	p, err := pager.Create(
		filepath.Join(dir, "data.sombra"),
		filepath.Join(dir, "wal.sombra"),
		filepath.Join(dir, "lock.sombra"),
		pager.Options{PageSize: 4096, Logger: zerolog.Nop()},
	)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	d := dict.New()
	cat := index.NewCatalog()
	g := graph.New(d, cat)

	h := &harness{p: p, d: d, cat: cat, g: g}

	wg, err := p.BeginWrite()
	require.NoError(t, err)
	meta := wg.Meta()

	meta.DictStrToIDRoot, meta.DictIDToStrRoot, err = d.Create(wg)
	require.NoError(t, err)
	meta.IndexCatalog, err = cat.Create(wg)
	require.NoError(t, err)
	meta.LabelIndex, err = cat.Labels.Create(wg)
	require.NoError(t, err)
	require.NoError(t, g.Create(wg))

	h.lPer, err = d.Intern(wg, "Person")
	require.NoError(t, err)
	h.lEmp, err = d.Intern(wg, "Employee")
	require.NoError(t, err)
	h.pAge, err = d.Intern(wg, "age")
	require.NoError(t, err)
	h.tKnw, err = d.Intern(wg, "knows")
	require.NoError(t, err)

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
	return h
}

func (h *harness) beginWrite(t *testing.T) *pager.WriteGuard {
	wg, err := h.p.BeginWrite()
	require.NoError(t, err)
	return wg
}

func TestGraph_CreateNodeRejectsUninternedLabel(t *testing.T) {
	h := newHarness(t)
	wg := h.beginWrite(t)
	_, err := h.g.CreateNode(wg, []graph.LabelID{999999}, nil)
	require.Error(t, err)
	wg.Abort()
}

func TestGraph_CreateNodeAndEdgeNeighborsAndDegree(t *testing.T) {
	h := newHarness(t)
	wg := h.beginWrite(t)

	alice, err := h.g.CreateNode(wg, []graph.LabelID{h.lPer}, []graph.Prop{{ID: h.pAge, Value: propval.FromInt64(30)}})
	require.NoError(t, err)
	bob, err := h.g.CreateNode(wg, []graph.LabelID{h.lPer, h.lEmp}, nil)
	require.NoError(t, err)
	carol, err := h.g.CreateNode(wg, []graph.LabelID{h.lPer}, nil)
	require.NoError(t, err)

	meta := wg.Meta()
	meta.SetDegreeCacheEnabled(true)

	_, err = h.g.CreateEdge(wg, alice, bob, h.tKnw, nil, false)
	require.NoError(t, err)
	_, err = h.g.CreateEdge(wg, alice, carol, h.tKnw, nil, false)
	require.NoError(t, err)

	rows, err := h.g.Neighbors(wg, meta, alice, graph.Out, graph.NeighborOpts{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, bob, rows[0].Neighbor)
	require.Equal(t, carol, rows[1].Neighbor)

	rev, err := h.g.Neighbors(wg, meta, bob, graph.In, graph.NeighborOpts{})
	require.NoError(t, err)
	require.Len(t, rev, 1)
	require.Equal(t, alice, rev[0].Neighbor)

	deg, err := h.g.Degree(wg, meta, alice, graph.Out, nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, deg)

	has, err := h.g.HasEdge(wg, meta, alice, bob, h.tKnw)
	require.NoError(t, err)
	require.True(t, has)
	has, err = h.g.HasEdge(wg, meta, bob, alice, h.tKnw)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, h.g.ValidateDegreeCache(wg, meta))

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestGraph_CreateEdgeMissingEndpointFails(t *testing.T) {
	h := newHarness(t)
	wg := h.beginWrite(t)
	alice, err := h.g.CreateNode(wg, []graph.LabelID{h.lPer}, nil)
	require.NoError(t, err)
	_, err = h.g.CreateEdge(wg, alice, 999999, h.tKnw, nil, false)
	require.Error(t, err)
	wg.Abort()
}

func TestGraph_UpdateNodeAppliesLabelsThenProps(t *testing.T) {
	h := newHarness(t)
	wg := h.beginWrite(t)
	meta := wg.Meta()

	alice, err := h.g.CreateNode(wg, []graph.LabelID{h.lPer}, []graph.Prop{{ID: h.pAge, Value: propval.FromInt64(30)}})
	require.NoError(t, err)

	err = h.g.UpdateNode(wg, alice, graph.Patch{
		Labels: []graph.LabelOp{{Kind: graph.LabelAdd, ID: h.lEmp}},
		Props:  []graph.PropOp{{Kind: graph.PropSet, ID: h.pAge, Value: propval.FromInt64(31)}},
	})
	require.NoError(t, err)

	rec, found, err := h.g.GetNode(wg, meta, alice)
	require.NoError(t, err)
	require.True(t, found)
	require.Contains(t, rec.Labels, h.lEmp)
	require.Contains(t, rec.Labels, h.lPer)
	require.Len(t, rec.Props, 1)
	require.Equal(t, int64(31), rec.Props[0].Value.Int64)

	err = h.g.UpdateNode(wg, alice, graph.Patch{Props: []graph.PropOp{{Kind: graph.PropDelete, ID: h.pAge}}})
	require.NoError(t, err)
	rec, _, err = h.g.GetNode(wg, meta, alice)
	require.NoError(t, err)
	require.Empty(t, rec.Props)

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestGraph_DeleteNodeRestrictThenCascade(t *testing.T) {
	h := newHarness(t)
	wg := h.beginWrite(t)
	meta := wg.Meta()

	alice, err := h.g.CreateNode(wg, []graph.LabelID{h.lPer}, nil)
	require.NoError(t, err)
	bob, err := h.g.CreateNode(wg, []graph.LabelID{h.lPer}, nil)
	require.NoError(t, err)
	_, err = h.g.CreateEdge(wg, alice, bob, h.tKnw, nil, false)
	require.NoError(t, err)

	err = h.g.DeleteNode(wg, alice, graph.DeleteOpts{Cascade: false})
	require.Error(t, err)

	err = h.g.DeleteNode(wg, alice, graph.DeleteOpts{Cascade: true})
	require.NoError(t, err)

	_, found, err := h.g.GetNode(wg, meta, alice)
	require.NoError(t, err)
	require.False(t, found)

	rows, err := h.g.Neighbors(wg, meta, bob, graph.In, graph.NeighborOpts{})
	require.NoError(t, err)
	require.Empty(t, rows)

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestGraph_PropertyIndexMaintainedOnCreateAndUpdate(t *testing.T) {
	h := newHarness(t)
	wg := h.beginWrite(t)
	meta := wg.Meta()

	var epoch uint64
	newCatRoot, err := h.cat.CreatePropertyIndex(wg, meta.IndexCatalog, h.lPer, h.pAge, index.KindOrdered, propval.KindInt64, &epoch)
	require.NoError(t, err)
	meta.IndexCatalog = newCatRoot

	alice, err := h.g.CreateNode(wg, []graph.LabelID{h.lPer}, []graph.Prop{{ID: h.pAge, Value: propval.FromInt64(42)}})
	require.NoError(t, err)

	def, found, err := h.cat.Lookup(wg, meta.IndexCatalog, h.lPer, h.pAge)
	require.NoError(t, err)
	require.True(t, found)

	encVal, err := propval.EncodeOrdered(propval.FromInt64(42))
	require.NoError(t, err)
	stream, err := h.cat.Ordered.ScanEq(wg, def.RootPage, h.lPer, h.pAge, encVal)
	require.NoError(t, err)
	require.Equal(t, []uint64{alice}, index.CollectAll(stream))

	err = h.g.UpdateNode(wg, alice, graph.Patch{Props: []graph.PropOp{{Kind: graph.PropSet, ID: h.pAge, Value: propval.FromInt64(43)}}})
	require.NoError(t, err)

	def, _, err = h.cat.Lookup(wg, meta.IndexCatalog, h.lPer, h.pAge)
	require.NoError(t, err)
	stream, err = h.cat.Ordered.ScanEq(wg, def.RootPage, h.lPer, h.pAge, encVal)
	require.NoError(t, err)
	require.Empty(t, index.CollectAll(stream))

	encVal43, err := propval.EncodeOrdered(propval.FromInt64(43))
	require.NoError(t, err)
	stream, err = h.cat.Ordered.ScanEq(wg, def.RootPage, h.lPer, h.pAge, encVal43)
	require.NoError(t, err)
	require.Equal(t, []uint64{alice}, index.CollectAll(stream))

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestGraph_LabelScanAndDropCreateRoundtrip(t *testing.T) {
	h := newHarness(t)
	wg := h.beginWrite(t)
	meta := wg.Meta()

	alice, err := h.g.CreateNode(wg, []graph.LabelID{h.lPer}, nil)
	require.NoError(t, err)
	bob, err := h.g.CreateNode(wg, []graph.LabelID{h.lPer}, nil)
	require.NoError(t, err)

	ids, err := h.g.LabelScan(wg, meta, h.lPer)
	require.NoError(t, err)
	require.ElementsMatch(t, []graph.NodeID{alice, bob}, ids)

	require.NoError(t, h.g.DropLabelIndex(wg, h.lPer))
	ids, err = h.g.LabelScan(wg, meta, h.lPer)
	require.NoError(t, err)
	require.Empty(t, ids)

	require.NoError(t, h.g.CreateLabelIndex(wg, h.lPer))
	ids, err = h.g.LabelScan(wg, meta, h.lPer)
	require.NoError(t, err)
	require.ElementsMatch(t, []graph.NodeID{alice, bob}, ids)

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestGraph_PropertyScanEqAndRangeAndBackfill(t *testing.T) {
	h := newHarness(t)
	wg := h.beginWrite(t)
	meta := wg.Meta()

	_, err := h.g.CreateNode(wg, []graph.LabelID{h.lPer}, []graph.Prop{{ID: h.pAge, Value: propval.FromInt64(5)}})
	require.NoError(t, err)
	n10, err := h.g.CreateNode(wg, []graph.LabelID{h.lPer}, []graph.Prop{{ID: h.pAge, Value: propval.FromInt64(10)}})
	require.NoError(t, err)
	n20, err := h.g.CreateNode(wg, []graph.LabelID{h.lPer}, []graph.Prop{{ID: h.pAge, Value: propval.FromInt64(20)}})
	require.NoError(t, err)
	_, err = h.g.CreateNode(wg, []graph.LabelID{h.lPer}, []graph.Prop{{ID: h.pAge, Value: propval.FromInt64(30)}})
	require.NoError(t, err)

	// CreatePropertyIndex backfills nodes created before the index existed.
	require.NoError(t, h.g.CreatePropertyIndex(wg, h.lPer, h.pAge, index.KindOrdered, propval.KindInt64))

	eq, err := h.g.PropertyScanEq(wg, meta, h.lPer, h.pAge, propval.FromInt64(10))
	require.NoError(t, err)
	require.Equal(t, []graph.NodeID{n10}, eq)

	rng, err := h.g.PropertyScanRange(wg, meta, h.lPer, h.pAge, propval.FromInt64(10), propval.FromInt64(25))
	require.NoError(t, err)
	require.ElementsMatch(t, []graph.NodeID{n10, n20}, rng)

	rngEmpty, err := h.g.PropertyScanRange(wg, meta, h.lPer, h.pAge, propval.FromInt64(25), propval.FromInt64(10))
	require.NoError(t, err)
	require.Empty(t, rngEmpty)

	require.NoError(t, h.g.DropPropertyIndex(wg, h.lPer, h.pAge))
	_, err = h.g.PropertyScanRange(wg, meta, h.lPer, h.pAge, propval.FromInt64(0), propval.FromInt64(100))
	require.NoError(t, err) // absent index: empty result, not an error

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}

func TestGraph_PropertyScanRangeRejectsChunkedIndex(t *testing.T) {
	h := newHarness(t)
	wg := h.beginWrite(t)
	meta := wg.Meta()

	_, err := h.g.CreateNode(wg, []graph.LabelID{h.lPer}, []graph.Prop{{ID: h.pAge, Value: propval.FromInt64(1)}})
	require.NoError(t, err)
	require.NoError(t, h.g.CreatePropertyIndex(wg, h.lPer, h.pAge, index.KindChunked, propval.KindInt64))

	_, err = h.g.PropertyScanRange(wg, meta, h.lPer, h.pAge, propval.FromInt64(0), propval.FromInt64(100))
	require.Error(t, err)

	wg.Abort()
}

func TestGraphWriter_TrustedEndpointsRequiresValidation(t *testing.T) {
	h := newHarness(t)
	wg := h.beginWrite(t)

	w, err := graph.NewGraphWriter(h.g, true)
	require.NoError(t, err)

	alice, err := w.CreateNode(wg, []graph.LabelID{h.lPer}, nil)
	require.NoError(t, err)
	bob, err := w.CreateNode(wg, []graph.LabelID{h.lPer}, nil)
	require.NoError(t, err)

	_, err = w.CreateEdge(wg, alice, bob, h.tKnw, nil)
	require.Error(t, err)

	require.NoError(t, w.ValidateTrustedBatch(wg, [][2]graph.NodeID{{alice, bob}}))
	_, err = w.CreateEdge(wg, alice, bob, h.tKnw, nil)
	require.NoError(t, err)

	_, err = wg.Commit(walog.SyncImmediate)
	require.NoError(t, err)
}
