package walog

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/maskdotdev/sombra-sub004/internal/metrics"
)

// SyncMode selects the durability strength of one commit request,
// per §4.3.
type SyncMode uint8

const (
	SyncImmediate SyncMode = iota
	SyncDeferred
	SyncOff
)

// CommitRequest carries one writer's owned frames into the group
// commit coordinator.
type CommitRequest struct {
	PageIDs  []PageID
	Payloads [][]byte
	Mode     SyncMode

	// Synced reports whether the batch this request landed in actually
	// fsynced the WAL, which can be true even for a Deferred/Off
	// request that merely rode along with an Immediate one in the same
	// batch. Valid only once Wait returns nil.
	Synced bool

	done chan error
}

// NewCommitRequest builds a request and its completion channel.
func NewCommitRequest(pageIDs []PageID, payloads [][]byte, mode SyncMode) *CommitRequest {
	return &CommitRequest{PageIDs: pageIDs, Payloads: payloads, Mode: mode, done: make(chan error, 1)}
}

// Wait blocks until the coordinator has applied (or failed) this
// request's batch.
func (r *CommitRequest) Wait() error { return <-r.done }

// GroupCommitConfig bounds batch coalescing, per §6's
// group_commit_max_writers / group_commit_max_frames / group_commit_max_wait.
type GroupCommitConfig struct {
	MaxWriters int
	MaxFrames  int
	MaxWait    time.Duration
}

func (c GroupCommitConfig) withDefaults() GroupCommitConfig {
	if c.MaxWriters <= 0 {
		c.MaxWriters = 8
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = 256
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 2 * time.Millisecond
	}
	return c
}

// GroupCommit coalesces concurrent commit requests into batched WAL
// appends plus a single fsync, per §4.3's group-commit worker and §5's
// "requesters block on a condition variable until their batch
// completes" (expressed here as a buffered channel + per-request done
// channel, the idiomatic Go equivalent).
type GroupCommit struct {
	wal     *WAL
	cfg     GroupCommitConfig
	queue   chan *CommitRequest
	log     zerolog.Logger
	metrics *metrics.Registry
	stop    chan struct{}

	mu      sync.Mutex
	running bool
	done    chan struct{} // closed when the current worker goroutine exits
}

// NewGroupCommit starts the worker goroutine.
func NewGroupCommit(wal *WAL, cfg GroupCommitConfig, log zerolog.Logger, m *metrics.Registry) *GroupCommit {
	gc := &GroupCommit{
		wal:     wal,
		cfg:     cfg.withDefaults(),
		queue:   make(chan *CommitRequest, 1024),
		log:     log,
		metrics: m,
		stop:    make(chan struct{}),
	}
	gc.mu.Lock()
	gc.startWorkerLocked()
	gc.mu.Unlock()
	return gc
}

// startWorkerLocked spins up the worker goroutine. gc.mu must be held.
func (gc *GroupCommit) startWorkerLocked() {
	gc.running = true
	gc.done = make(chan struct{})
	go gc.run(gc.done)
}

// Submit enqueues req, first restarting the worker if a previous batch
// failure stopped it. Per §4.3, a group-commit worker that exits after
// a failed batch is "restarted by the next enqueue" rather than
// requiring the caller to construct a fresh GroupCommit.
func (gc *GroupCommit) Submit(req *CommitRequest) {
	gc.mu.Lock()
	if !gc.running {
		gc.startWorkerLocked()
	}
	gc.mu.Unlock()
	gc.queue <- req
}

// Close stops the worker after draining any in-flight batch.
func (gc *GroupCommit) Close() {
	gc.mu.Lock()
	select {
	case <-gc.stop:
	default:
		close(gc.stop)
	}
	done := gc.done
	gc.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (gc *GroupCommit) run(done chan struct{}) {
	defer func() {
		gc.mu.Lock()
		if gc.done == done {
			gc.running = false
		}
		gc.mu.Unlock()
		close(done)
	}()
	for {
		var first *CommitRequest
		select {
		case first = <-gc.queue:
		case <-gc.stop:
			return
		}

		batch := []*CommitRequest{first}
		frameTotal := len(first.PageIDs)
		deadline := time.NewTimer(gc.cfg.MaxWait)

	coalesce:
		for len(batch) < gc.cfg.MaxWriters && frameTotal < gc.cfg.MaxFrames {
			select {
			case req := <-gc.queue:
				batch = append(batch, req)
				frameTotal += len(req.PageIDs)
			case <-deadline.C:
				break coalesce
			}
		}
		deadline.Stop()

		if gc.metrics != nil {
			gc.metrics.GroupCommitBatches.Inc()
			gc.metrics.GroupCommitCoalesced.Add(float64(len(batch)))
		}

		synced, err := gc.applyBatch(batch)
		if err != nil {
			// Mark this worker stopped before releasing any requester, so
			// a Submit that follows a failed Wait always restarts it.
			gc.mu.Lock()
			gc.running = false
			gc.mu.Unlock()
		}
		for _, req := range batch {
			req.Synced = synced
			req.done <- err
		}
		if err != nil {
			gc.log.Error().Err(err).Int("batch_size", len(batch)).Msg("group commit batch failed")
			// Per §4.3: on batch failure the worker exits the loop; the
			// next Submit restarts it (see startWorkerLocked) so a
			// subsequent commit fails cleanly instead of enqueuing onto
			// a queue nobody drains.
			return
		}
	}
}

// applyBatch appends every request's frames to the WAL in order, then
// fsyncs once for the whole batch if any request's mode isn't SyncOff:
// an Immediate or a Deferred request each triggers that one sync (a
// batch of Deferred requests alone still syncs), and a batch made up
// entirely of Off requests skips it, per §4.4's Full/Normal/Off durability policy. It reports whether
// the fsync actually happened, since that (not any one request's own
// Mode) is what durableLSN should track.
func (gc *GroupCommit) applyBatch(batch []*CommitRequest) (synced bool, err error) {
	needSync := false
	for _, req := range batch {
		if _, err := gc.wal.AppendBatch(req.PageIDs, req.Payloads); err != nil {
			return false, err
		}
		if req.Mode != SyncOff {
			needSync = true
		}
	}
	if needSync {
		if err := gc.wal.Sync(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
