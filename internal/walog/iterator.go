package walog

import (
	"hash/crc32"

	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/fileio"
)

// Iterator walks a WAL's frames from just after the file header,
// verifying the chain as it goes. Per §4.3, the first broken frame ends
// iteration (not an error); ValidUpTo reports the byte offset just
// before that frame. Frames with LSN < header.StartLSN are a
// corruption error rather than simply being skipped, per spec.
type Iterator struct {
	f        fileio.File
	pageSize int
	header   FileHeader

	offset    int64
	chain     uint64
	validUpTo int64
	done      bool
	err       error
}

// NewIterator opens an iterator over f, reading and validating the file
// header first.
func NewIterator(f fileio.File, pageSize int) (*Iterator, error) {
	buf := make([]byte, FileHeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, errs.Io("wal: read header", err)
	}
	hdr, err := unmarshalFileHeader(buf)
	if err != nil {
		return nil, err
	}
	if int(hdr.PageSize) != pageSize {
		return nil, errs.Corruption("wal: page size mismatch")
	}
	return &Iterator{f: f, pageSize: pageSize, header: hdr, offset: FileHeaderSize, validUpTo: FileHeaderSize}, nil
}

// Next returns the next valid frame, or ok=false when iteration has
// stopped (either at EOF or at the first corrupt/broken-chain frame —
// check Err() to distinguish a hard error from a clean stop).
func (it *Iterator) Next() (Frame, bool) {
	if it.done {
		return Frame{}, false
	}

	hdrBuf := make([]byte, FrameHeaderSize)
	n, err := it.f.ReadAt(hdrBuf, it.offset)
	if err != nil || n < FrameHeaderSize {
		it.done = true
		return Frame{}, false
	}

	lsn, pageID, prevChain, payloadCRC, ok := unmarshalFrameHeader(hdrBuf)
	if !ok {
		it.done = true
		return Frame{}, false
	}
	if prevChain != it.chain {
		it.done = true
		return Frame{}, false
	}
	if lsn < it.header.StartLSN {
		it.done = true
		it.err = errs.Corruption("wal: frame LSN below start_lsn")
		return Frame{}, false
	}

	payload := make([]byte, it.pageSize)
	n, err = it.f.ReadAt(payload, it.offset+FrameHeaderSize)
	if err != nil || n < it.pageSize {
		it.done = true
		return Frame{}, false
	}
	if crc32.ChecksumIEEE(payload) != payloadCRC {
		it.done = true
		return Frame{}, false
	}

	f := Frame{LSN: lsn, PageID: pageID, PrevChain: prevChain, Payload: payload}
	it.chain = FrameChainOf(f)
	it.offset += int64(FrameHeaderSize + it.pageSize)
	it.validUpTo = it.offset
	return f, true
}

// ValidUpTo returns the byte offset just before the first broken or
// absent frame — i.e. the prefix of the file that recovery may trust.
func (it *Iterator) ValidUpTo() int64 { return it.validUpTo }

// Chain returns the running chain value after the last valid frame
// returned by Next, suitable for resuming appends.
func (it *Iterator) Chain() uint64 { return it.chain }

// Err returns a hard error (distinct from a clean end-of-valid-frames
// stop), such as a frame LSN below start_lsn.
func (it *Iterator) Err() error { return it.err }
