package walog

import (
	"sync"
	"sync/atomic"

	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/fileio"
	"github.com/maskdotdev/sombra-sub004/internal/metrics"
)

// WAL owns the append-only log file: its current append offset and
// running chain value, per §5 ("The WAL's append offset and chain
// value are owned by the pager's write path and the group-commit
// worker; no other thread writes to the WAL.").
type WAL struct {
	mu sync.Mutex

	f        fileio.File
	pageSize int
	salt     uint64

	appendOffset int64
	chain        uint64
	nextLSN      LSN

	FramesAppended atomic.Uint64
	BytesAppended  atomic.Uint64
	Syncs          atomic.Uint64

	metrics *metrics.Registry
}

// Create writes a fresh WAL header (startLSN = 1) to f.
func Create(f fileio.File, pageSize int, salt uint64, m *metrics.Registry) (*WAL, error) {
	w := &WAL{f: f, pageSize: pageSize, salt: salt, nextLSN: 1, metrics: m}
	hdr := marshalFileHeader(FileHeader{PageSize: uint32(pageSize), WALSalt: salt, StartLSN: 1})
	if _, err := f.WriteAt(hdr, 0); err != nil {
		return nil, errs.Io("wal: write header", err)
	}
	w.appendOffset = FileHeaderSize
	return w, nil
}

// Open reads an existing WAL's header and positions the append offset
// at the current end of file. The caller is expected to have already
// run recovery/truncation via an Iterator before accepting further
// writes.
func Open(f fileio.File, pageSize int, m *metrics.Registry) (*WAL, FileHeader, error) {
	buf := make([]byte, FileHeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, FileHeader{}, errs.Io("wal: read header", err)
	}
	hdr, err := unmarshalFileHeader(buf)
	if err != nil {
		return nil, FileHeader{}, err
	}
	if int(hdr.PageSize) != pageSize {
		return nil, FileHeader{}, errs.Corruption("wal: page size mismatch")
	}
	n, err := f.Len()
	if err != nil {
		return nil, FileHeader{}, errs.Io("wal: stat", err)
	}
	w := &WAL{
		f: f, pageSize: pageSize, salt: hdr.WALSalt,
		appendOffset: n, nextLSN: hdr.StartLSN, metrics: m,
	}
	return w, hdr, nil
}

// SetChainState is used by recovery to resume the WAL's append offset,
// chain value, and next LSN at the point the last valid frame ended.
func (w *WAL) SetChainState(offset int64, chain uint64, nextLSN LSN) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.appendOffset = offset
	w.chain = chain
	w.nextLSN = nextLSN
}

// NextLSN returns the LSN that will be assigned to the next appended
// frame, without mutating state.
func (w *WAL) NextLSN() LSN {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextLSN
}

// Append writes one frame for pageID/payload and returns its assigned
// LSN. Frames are only ever appended (§4.3 "Writes").
func (w *WAL) Append(pageID PageID, payload []byte) (LSN, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appendLocked(pageID, payload)
}

func (w *WAL) appendLocked(pageID PageID, payload []byte) (LSN, error) {
	lsn := w.nextLSN
	f := Frame{LSN: lsn, PageID: pageID, PrevChain: w.chain, Payload: payload}
	buf := marshalFrame(f)
	if _, err := w.f.WriteAt(buf, w.appendOffset); err != nil {
		return 0, errs.Io("wal: append frame", err)
	}
	w.appendOffset += int64(len(buf))
	w.chain = FrameChainOf(f)
	w.nextLSN++

	w.FramesAppended.Add(1)
	w.BytesAppended.Add(uint64(len(buf)))
	if w.metrics != nil {
		w.metrics.WALFramesAppended.Inc()
		w.metrics.WALBytesAppended.Add(float64(len(buf)))
	}
	return lsn, nil
}

// AppendBatch appends multiple frames atomically with respect to the
// WAL's internal chain/offset bookkeeping (used by the pager's commit
// path so a whole transaction's frames are contiguous).
func (w *WAL) AppendBatch(pageIDs []PageID, payloads [][]byte) ([]LSN, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	lsns := make([]LSN, len(pageIDs))
	for i := range pageIDs {
		lsn, err := w.appendLocked(pageIDs[i], payloads[i])
		if err != nil {
			return nil, err
		}
		lsns[i] = lsn
	}
	return lsns, nil
}

// Sync fsyncs the WAL file and increments the sync counter.
func (w *WAL) Sync() error {
	if err := w.f.Sync(); err != nil {
		return errs.Io("wal: sync", err)
	}
	w.Syncs.Add(1)
	if w.metrics != nil {
		w.metrics.WALSyncs.Inc()
	}
	return nil
}

// Truncate resets the WAL to just its header, writing a new header with
// startLSN = the WAL's current next LSN (used after a checkpoint).
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	hdr := marshalFileHeader(FileHeader{PageSize: uint32(w.pageSize), WALSalt: w.salt, StartLSN: w.nextLSN})
	if _, err := w.f.WriteAt(hdr, 0); err != nil {
		return errs.Io("wal: rewrite header", err)
	}
	if err := w.f.Truncate(FileHeaderSize); err != nil {
		return errs.Io("wal: truncate", err)
	}
	w.appendOffset = FileHeaderSize
	w.chain = 0
	return nil
}

// AppendOffset returns the current append offset (for tests/inspection).
func (w *WAL) AppendOffset() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appendOffset
}
