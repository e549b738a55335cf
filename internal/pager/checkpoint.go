package pager

import "github.com/maskdotdev/sombra-sub004/internal/errs"

// CheckpointMode selects how hard Checkpoint tries to acquire exclusive
// access, per spec §4.4.
type CheckpointMode uint8

const (
	// CheckpointBestEffort returns immediately if a reader or writer is
	// currently active, doing nothing.
	CheckpointBestEffort CheckpointMode = iota
	// CheckpointForce is reserved for administrative use where the
	// caller has already quiesced all other activity out-of-band.
	CheckpointForce
)

// ErrCheckpointBusy is returned by Checkpoint in BestEffort mode when
// readers or a writer currently hold the database.
var ErrCheckpointBusy = errs.Invalid("pager: checkpoint busy")

// Checkpoint writes every page image held in the page cache into the
// data file, fsyncs it, advances the durable LSN watermark to the last
// applied commit, and truncates the WAL, per spec §4.4. A committed page
// that has already been evicted from the cache is not written.
// It requires exclusive access (no live readers or writer) for the
// truncation to be safe — readers pinned to older snapshots rely on
// WAL frames still being replayable until they release.
func (p *Pager) Checkpoint(mode CheckpointMode) error {
	guard, ok := p.locks.TryAcquireCheckpoint()
	if !ok {
		if mode == CheckpointForce {
			return errs.Io("pager: checkpoint lock unavailable", ErrCheckpointBusy)
		}
		return ErrCheckpointBusy
	}
	defer guard.Release()

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.cache.lru.Keys() {
		f, ok := p.cache.lru.Peek(id)
		if !ok || id == 0 {
			continue
		}
		if _, err := p.dataFile.WriteAt(f.buf, int64(id)*int64(p.pageSize)); err != nil {
			return errs.Io("pager: checkpoint page write", err)
		}
	}
	if err := p.dataFile.SyncFull(); err != nil {
		return errs.Io("pager: checkpoint sync", err)
	}

	commitLSN := LSN(p.committedLSN.Load())
	p.meta.CheckpointLSN = commitLSN
	metaBuf := MarshalMeta(p.meta, p.pageSize)
	MarshalHeader(Header{PageNo: 0, Kind: KindMeta, PageSize: uint32(p.pageSize), Salt: p.salt}, metaBuf)
	SetPageCRC(0, p.salt, metaBuf)
	if _, err := p.dataFile.WriteAt(metaBuf, 0); err != nil {
		return errs.Io("pager: checkpoint meta write", err)
	}
	if err := p.dataFile.SyncFull(); err != nil {
		return errs.Io("pager: checkpoint meta sync", err)
	}
	p.cache.put(&frame{id: 0, buf: metaBuf, lsn: commitLSN})

	if err := p.wal.Truncate(); err != nil {
		return err
	}
	p.durableLSN.Store(uint64(commitLSN))
	return nil
}
