// Package lockcoord coordinates access to a Sombra database across
// processes and goroutines using advisory byte-range locks on a 3-byte
// sidecar lock file, plus in-process counters for the fast path.
package lockcoord

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	byteReader    = 0
	byteWriter    = 1
	byteCheckpoint = 2
	lockFileLen   = 3
)

// ErrWriterHeld is returned by AcquireWriter when another writer is
// already active in this process.
var ErrWriterHeld = fmt.Errorf("lockcoord: writer lock already held")

// osLocker is the narrow interface onto platform byte-range locks.
// Implementations live in lock_unix.go / lock_other.go.
type osLocker interface {
	lockShared(byteOffset int64) error
	lockExclusive(byteOffset int64) error
	unlock(byteOffset int64) error
	close() error
}

// Coordinator is the single-writer/multi-reader/checkpoint lock manager
// for one database file.
type Coordinator struct {
	mu sync.Mutex

	os osLocker

	readers    int
	writer     bool
	checkpoint bool

	runID string
	log   zerolog.Logger
}

// Open creates (if necessary) and opens the sidecar lock file at path.
func Open(path string, log zerolog.Logger) (*Coordinator, error) {
	ol, err := openOSLocker(path)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		os:    ol,
		runID: uuid.NewString(),
		log:   log,
	}, nil
}

// Close releases the sidecar file handle. Callers must have released all
// outstanding guards first.
func (c *Coordinator) Close() error {
	return c.os.close()
}

// ReaderGuard represents one held reader slot.
type ReaderGuard struct{ c *Coordinator }

// WriterGuard represents the (singular) held writer slot.
type WriterGuard struct{ c *Coordinator }

// CheckpointGuard represents the (singular) held checkpoint slot.
type CheckpointGuard struct{ c *Coordinator }

// AcquireReader blocks briefly while a checkpoint is in-process-flagged,
// then takes a shared OS lock on the reader byte. If a checkpoint raced
// in between the sleep and the lock, it releases and retries.
func (c *Coordinator) AcquireReader() (*ReaderGuard, error) {
	for {
		c.mu.Lock()
		for c.checkpoint {
			c.mu.Unlock()
			time.Sleep(time.Millisecond)
			c.mu.Lock()
		}
		c.mu.Unlock()

		if err := c.os.lockShared(byteReader); err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.checkpoint {
			c.mu.Unlock()
			_ = c.os.unlock(byteReader)
			continue
		}
		c.readers++
		c.mu.Unlock()
		return &ReaderGuard{c: c}, nil
	}
}

// Release drops the reader slot.
func (g *ReaderGuard) Release() {
	g.c.mu.Lock()
	g.c.readers--
	g.c.mu.Unlock()
	_ = g.c.os.unlock(byteReader)
}

// AcquireWriter fails fast if another writer is already held in this
// process (no recursive/concurrent writers), otherwise sets the
// in-process flag and takes the exclusive OS lock.
func (c *Coordinator) AcquireWriter() (*WriterGuard, error) {
	c.mu.Lock()
	if c.writer {
		c.mu.Unlock()
		return nil, ErrWriterHeld
	}
	c.writer = true
	c.mu.Unlock()

	if err := c.os.lockExclusive(byteWriter); err != nil {
		c.mu.Lock()
		c.writer = false
		c.mu.Unlock()
		return nil, err
	}
	return &WriterGuard{c: c}, nil
}

// Release drops the writer slot.
func (g *WriterGuard) Release() {
	_ = g.c.os.unlock(byteWriter)
	g.c.mu.Lock()
	g.c.writer = false
	g.c.mu.Unlock()
}

// TryAcquireCheckpoint is non-blocking: it fails if any reader, writer,
// or checkpoint is already active, otherwise grabs exclusive locks on
// the reader and checkpoint bytes (in that order) and flags checkpoint
// mode so new readers park until it finishes.
func (c *Coordinator) TryAcquireCheckpoint() (*CheckpointGuard, bool) {
	c.mu.Lock()
	if c.readers > 0 || c.writer || c.checkpoint {
		c.mu.Unlock()
		return nil, false
	}
	c.checkpoint = true
	c.mu.Unlock()

	if err := c.os.lockExclusive(byteReader); err != nil {
		c.mu.Lock()
		c.checkpoint = false
		c.mu.Unlock()
		return nil, false
	}
	if err := c.os.lockExclusive(byteCheckpoint); err != nil {
		_ = c.os.unlock(byteReader)
		c.mu.Lock()
		c.checkpoint = false
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	if c.readers > 0 || c.writer {
		c.mu.Unlock()
		_ = c.os.unlock(byteReader)
		_ = c.os.unlock(byteCheckpoint)
		c.mu.Lock()
		c.checkpoint = false
		c.mu.Unlock()
		return nil, false
	}
	c.mu.Unlock()

	c.log.Debug().Str("run_id", c.runID).Msg("checkpoint lock acquired")
	return &CheckpointGuard{c: c}, true
}

// Release drops the checkpoint slot, allowing readers and future
// checkpoints to proceed.
func (g *CheckpointGuard) Release() {
	_ = g.c.os.unlock(byteReader)
	_ = g.c.os.unlock(byteCheckpoint)
	g.c.mu.Lock()
	g.c.checkpoint = false
	g.c.mu.Unlock()
}

// Stats is a point-in-time snapshot of in-process lock state, useful for
// observability and tests.
type Stats struct {
	Readers    int
	Writer     bool
	Checkpoint bool
}

// Snapshot returns the current in-process counters.
func (c *Coordinator) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Readers: c.readers, Writer: c.writer, Checkpoint: c.checkpoint}
}
