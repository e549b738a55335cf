// Package config loads the YAML configuration recognised by spec §6,
// converting it into the internal Options types each layer already
// defines (pager.Options, walog.GroupCommitConfig), plus the handful of
// knobs — autocheckpoint cadence, WAL segment sizing, the
// distinct-neighbors default — that don't live on an internal struct
// because no package below sombra.DB needs to see them directly.
package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
	"github.com/maskdotdev/sombra-sub004/internal/walog"
)

// Options is the full set of "Configuration inputs (recognised
// options)" from spec §6. Every field also has a Go default applied by
// withDefaults, so a zero-value Options (or one loaded from a YAML file
// naming only a handful of keys) is already usable.
type Options struct {
	CreateIfMissing bool   `yaml:"create_if_missing"`
	PageSize        uint32 `yaml:"page_size"`
	CachePages      int    `yaml:"cache_pages"`
	Synchronous     string `yaml:"synchronous"` // "Off" | "Normal" | "Full"

	GroupCommitMaxWriters int           `yaml:"group_commit_max_writers"`
	GroupCommitMaxFrames  int           `yaml:"group_commit_max_frames"`
	GroupCommitMaxWait    time.Duration `yaml:"group_commit_max_wait"`

	AsyncFsync        bool          `yaml:"async_fsync"`
	AsyncFsyncMaxWait time.Duration `yaml:"async_fsync_max_wait"`

	WALSegmentSizeBytes    int64 `yaml:"wal_segment_size_bytes"`
	WALPreallocateSegments int   `yaml:"wal_preallocate_segments"`
	AutocheckpointMs       int64 `yaml:"autocheckpoint_ms"`

	FullFsync          bool  `yaml:"fullfsync"`
	DirectFsyncDelayUs int64 `yaml:"direct_fsync_delay_us"`

	DistinctNeighborsDefault bool `yaml:"distinct_neighbors_default"`

	// Direct selects O_DIRECT data-file I/O (internal/fileio); it has
	// no spec §6 name of its own since the spec leaves the data-file
	// open mode to the embedder's platform.
	Direct bool `yaml:"direct"`
}

func (o Options) withDefaults() Options {
	if o.PageSize == 0 {
		o.PageSize = 4096
	}
	if o.CachePages == 0 {
		o.CachePages = 1024
	}
	if o.Synchronous == "" {
		o.Synchronous = "Full"
	}
	if o.GroupCommitMaxWriters == 0 {
		o.GroupCommitMaxWriters = 8
	}
	if o.GroupCommitMaxFrames == 0 {
		o.GroupCommitMaxFrames = 256
	}
	if o.GroupCommitMaxWait == 0 {
		o.GroupCommitMaxWait = time.Millisecond
	}
	if o.WALSegmentSizeBytes == 0 {
		o.WALSegmentSizeBytes = 64 << 20
	}
	if o.AutocheckpointMs == 0 {
		o.AutocheckpointMs = 5000
	}
	return o
}

// Load reads and parses a YAML configuration file at path, applying
// defaults to every field the file leaves unset.
func Load(path string) (Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Options{}, errs.Io("config: read file", err)
	}
	var o Options
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return Options{}, errs.Io("config: parse yaml", err)
	}
	return o.withDefaults(), nil
}

// SyncPolicy maps the YAML "synchronous" string to pager.SyncPolicy,
// defaulting to the strictest policy (Full) for an unrecognised value —
// a durability knob should fail safe, not silently weaken. Exported so
// callers outside this package (sombra.go's walogSyncMode) can derive
// the per-commit walog.SyncMode from the same policy the pager itself
// was opened with, instead of re-deriving it from a narrower subset of
// fields.
func (o Options) SyncPolicy() pager.SyncPolicy {
	switch o.Synchronous {
	case "Off":
		return pager.SyncOff
	case "Normal":
		return pager.SyncNormal
	default:
		return pager.SyncFull
	}
}

// PagerOptions converts this configuration into pager.Options, wiring
// in the logger supplied by the caller (spec §6's
// "Configuration inputs" feed the pager's own Options verbatim where
// pager.Options already has a matching field). Metrics is left nil, so
// the pager creates its own registry.
func (o Options) PagerOptions(log zerolog.Logger) pager.Options {
	o = o.withDefaults()
	return pager.Options{
		PageSize:        int(o.PageSize),
		CreateIfMissing: o.CreateIfMissing,
		CachePages:      o.CachePages,
		Synchronous:     o.SyncPolicy(),
		Direct:          o.Direct,
		Logger:          log,
		GroupCommit: walog.GroupCommitConfig{
			MaxWriters: o.GroupCommitMaxWriters,
			MaxFrames:  o.GroupCommitMaxFrames,
			MaxWait:    o.GroupCommitMaxWait,
		},
	}
}

// AutocheckpointInterval is the autocheckpoint_ms knob as a
// time.Duration, for wiring into a cron.Schedule (see sombra.go).
func (o Options) AutocheckpointInterval() time.Duration {
	o = o.withDefaults()
	return time.Duration(o.AutocheckpointMs) * time.Millisecond
}
