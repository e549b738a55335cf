// Package metrics holds the observability counters named throughout the
// spec (§4.6, §4.9, §9): cache hits/misses/evictions, WAL frames
// appended, B-tree splits/merges, allocator compactions, group-commit
// coalescing ratios. They are real Prometheus instruments registered in
// a private registry per Pager instance, so embedding many databases in
// one process never collides on metric names. pager.Stats does not read
// them: its snapshot comes from the WAL's own atomic counters and the
// cache and freelist sizes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every counter/gauge a Pager instance needs. Each
// Pager owns one Registry; none of this is process-global.
type Registry struct {
	reg *prometheus.Registry

	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	DirtyWriteback prometheus.Counter

	WALFramesAppended prometheus.Counter
	WALBytesAppended  prometheus.Counter
	WALSyncs          prometheus.Counter

	BTreeLeafSearches    prometheus.Counter
	BTreeInternalSearches prometheus.Counter
	BTreeLeafSplits      prometheus.Counter
	BTreeLeafMerges      prometheus.Counter
	BTreeInPlaceEdits    prometheus.Counter
	BTreeRebuilds        prometheus.Counter
	BTreeBytesCompacted  prometheus.Counter
	AllocatorCompactions prometheus.Counter
	AllocatorFailures    prometheus.Counter
	SnapshotReuse        prometheus.Counter

	GroupCommitBatches prometheus.Counter
	GroupCommitCoalesced prometheus.Counter
}

// New constructs a fresh, unregistered-with-anyone-else Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	mk := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		reg.MustRegister(c)
		return c
	}
	return &Registry{
		reg:                   reg,
		CacheHits:             mk("sombra_cache_hits_total", "page cache hits"),
		CacheMisses:           mk("sombra_cache_misses_total", "page cache misses"),
		CacheEvictions:        mk("sombra_cache_evictions_total", "page cache evictions"),
		DirtyWriteback:        mk("sombra_dirty_writeback_total", "dirty pages installed at commit"),
		WALFramesAppended:     mk("sombra_wal_frames_appended_total", "WAL frames appended"),
		WALBytesAppended:      mk("sombra_wal_bytes_appended_total", "WAL bytes appended"),
		WALSyncs:              mk("sombra_wal_syncs_total", "WAL fsync calls"),
		BTreeLeafSearches:     mk("sombra_btree_leaf_searches_total", "B-tree leaf searches"),
		BTreeInternalSearches: mk("sombra_btree_internal_searches_total", "B-tree internal searches"),
		BTreeLeafSplits:       mk("sombra_btree_leaf_splits_total", "B-tree leaf splits"),
		BTreeLeafMerges:       mk("sombra_btree_leaf_merges_total", "B-tree leaf merges"),
		BTreeInPlaceEdits:     mk("sombra_btree_inplace_edits_total", "B-tree in-place slot edits"),
		BTreeRebuilds:         mk("sombra_btree_rebuilds_total", "B-tree page rebuilds"),
		BTreeBytesCompacted:   mk("sombra_btree_bytes_compacted_total", "bytes copied during page compaction"),
		AllocatorCompactions:  mk("sombra_allocator_compactions_total", "per-page allocator compactions"),
		AllocatorFailures:     mk("sombra_allocator_failures_total", "per-page allocator failures"),
		SnapshotReuse:         mk("sombra_snapshot_reuse_total", "snapshot buffer reuse events"),
		GroupCommitBatches:    mk("sombra_group_commit_batches_total", "group commit batches flushed"),
		GroupCommitCoalesced:  mk("sombra_group_commit_coalesced_total", "requests coalesced into a batch"),
	}
}

// Gatherer exposes the underlying Prometheus registry for embedders that
// want to wire a real scrape endpoint themselves (out of this core's
// scope, but the registry is theirs to reuse).
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
