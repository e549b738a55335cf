package pager

import (
	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/fileio"
	"github.com/maskdotdev/sombra-sub004/internal/walog"
)

// recover replays every valid frame in the WAL onto the data file, then
// truncates the WAL to just its header, per spec §4.3 ("Recovery"): a
// broken chain or CRC ends replay at the last good frame, which is not
// itself an error — only an LSN below start_lsn is.
func (p *Pager) recover(f fileio.File, wal *walog.WAL) error {
	it, err := walog.NewIterator(f, p.pageSize)
	if err != nil {
		return err
	}

	var lastLSN LSN
	for {
		frame, ok := it.Next()
		if !ok {
			break
		}
		off := int64(frame.PageID) * int64(p.pageSize)
		if _, err := p.dataFile.WriteAt(frame.Payload, off); err != nil {
			return errs.Io("pager: replay frame", err)
		}
		lastLSN = frame.LSN
	}
	if it.Err() != nil {
		return it.Err()
	}
	if err := p.dataFile.SyncFull(); err != nil {
		return errs.Io("pager: sync after recovery", err)
	}

	nextLSN := lastLSN + 1
	if lastLSN == 0 {
		nextLSN = p.meta.CheckpointLSN + 1
	}
	wal.SetChainState(it.ValidUpTo(), it.Chain(), nextLSN)
	if err := wal.Truncate(); err != nil {
		return err
	}

	metaBuf := make([]byte, p.pageSize)
	if _, err := p.dataFile.ReadAt(metaBuf, 0); err != nil {
		return errs.Io("pager: reread meta after recovery", err)
	}
	meta, err := UnmarshalMeta(metaBuf)
	if err != nil {
		return err
	}
	p.meta = meta
	if lastLSN > meta.CheckpointLSN {
		p.meta.CheckpointLSN = lastLSN
	}
	return nil
}
