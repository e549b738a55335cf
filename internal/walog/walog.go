// Package walog implements the append-only, chained, CRC-protected
// write-ahead log described in spec §4.3: a 32-byte file header
// followed by a sequence of 32-byte-header frames each carrying one
// full page image.
package walog

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/fileio"
)

const (
	// Magic identifies a Sombra WAL file.
	Magic = "SOMW"

	// Version is the current WAL format version.
	Version uint32 = 1

	// FileHeaderSize is the fixed size of the WAL file header.
	FileHeaderSize = 32

	// FrameHeaderSize is the fixed size of one frame header, not
	// counting its page payload.
	FrameHeaderSize = 32
)

// LSN is a monotonic 64-bit log sequence number.
type LSN uint64

// PageID identifies a page within the data file.
type PageID uint32

// FileHeader is the WAL's first 32 bytes.
//
//	[0:4]   Magic      "SOMW"
//	[4:8]   Version    uint32 LE
//	[8:12]  PageSize   uint32 LE
//	[12:20] WALSalt    uint64 LE
//	[20:28] StartLSN   uint64 LE
//	[28:32] HeaderCRC  uint32 LE (CRC32 of bytes 0:28)
type FileHeader struct {
	PageSize uint32
	WALSalt  uint64
	StartLSN LSN
}

func marshalFileHeader(h FileHeader) []byte {
	buf := make([]byte, FileHeaderSize)
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.PageSize)
	binary.LittleEndian.PutUint64(buf[12:20], h.WALSalt)
	binary.LittleEndian.PutUint64(buf[20:28], uint64(h.StartLSN))
	crc := crc32.ChecksumIEEE(buf[:28])
	binary.LittleEndian.PutUint32(buf[28:32], crc)
	return buf
}

func unmarshalFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < FileHeaderSize {
		return FileHeader{}, errs.Corruption("wal: header too short")
	}
	if string(buf[0:4]) != Magic {
		return FileHeader{}, errs.Corruption("wal: bad magic")
	}
	ver := binary.LittleEndian.Uint32(buf[4:8])
	if ver != Version {
		return FileHeader{}, errs.Corruption("wal: unsupported version")
	}
	crc := binary.LittleEndian.Uint32(buf[28:32])
	if crc32.ChecksumIEEE(buf[:28]) != crc {
		return FileHeader{}, errs.Corruption("wal: header CRC mismatch")
	}
	return FileHeader{
		PageSize: binary.LittleEndian.Uint32(buf[8:12]),
		WALSalt:  binary.LittleEndian.Uint64(buf[12:20]),
		StartLSN: LSN(binary.LittleEndian.Uint64(buf[20:28])),
	}, nil
}

// Frame is one in-memory WAL frame: a page image tagged with its LSN,
// target page, and the chain value linking it to its predecessor.
//
// Frame header layout (32 bytes):
//
//	[0:8]   LSN         uint64 LE
//	[8:12]  PageID      uint32 LE
//	[12:20] PrevChain   uint64 LE
//	[20:24] PayloadCRC  uint32 LE
//	[24:28] Reserved    4 bytes
//	[28:32] HeaderCRC   uint32 LE (CRC32 of bytes 0:28)
type Frame struct {
	LSN       LSN
	PageID    PageID
	PrevChain uint64
	Payload   []byte // exactly pageSize bytes
}

func marshalFrame(f Frame) []byte {
	buf := make([]byte, FrameHeaderSize+len(f.Payload))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(f.LSN))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(f.PageID))
	binary.LittleEndian.PutUint64(buf[12:20], f.PrevChain)
	payloadCRC := crc32.ChecksumIEEE(f.Payload)
	binary.LittleEndian.PutUint32(buf[20:24], payloadCRC)
	hdrCRC := crc32.ChecksumIEEE(buf[:28])
	binary.LittleEndian.PutUint32(buf[28:32], hdrCRC)
	copy(buf[FrameHeaderSize:], f.Payload)
	return buf
}

// FrameChainOf computes the prev_chain value produced by appending f
// per spec §4.3:
//
//	prev_chain' = (frame_total_len << 32) | crc32(prevChainBytes || header || payload)
// (whose PrevChain field is f's own link to its predecessor), matching
// the exact byte sequence WAL.Append emits.
func FrameChainOf(f Frame) uint64 {
	frameLen := uint64(FrameHeaderSize + len(f.Payload))
	var prevBytes [8]byte
	binary.LittleEndian.PutUint64(prevBytes[:], f.PrevChain)

	hdr := make([]byte, 28)
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(f.LSN))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(f.PageID))
	copy(hdr[12:20], prevBytes[:])
	payloadCRC := crc32.ChecksumIEEE(f.Payload)
	binary.LittleEndian.PutUint32(hdr[20:24], payloadCRC)

	h := crc32.NewIEEE()
	h.Write(prevBytes[:])
	h.Write(hdr)
	h.Write(f.Payload)
	return (frameLen << 32) | uint64(h.Sum32())
}

func unmarshalFrameHeader(buf []byte) (lsn LSN, pageID PageID, prevChain uint64, payloadCRC uint32, ok bool) {
	if len(buf) < FrameHeaderSize {
		return 0, 0, 0, 0, false
	}
	storedCRC := binary.LittleEndian.Uint32(buf[28:32])
	if crc32.ChecksumIEEE(buf[:28]) != storedCRC {
		return 0, 0, 0, 0, false
	}
	lsn = LSN(binary.LittleEndian.Uint64(buf[0:8]))
	pageID = PageID(binary.LittleEndian.Uint32(buf[8:12]))
	prevChain = binary.LittleEndian.Uint64(buf[12:20])
	payloadCRC = binary.LittleEndian.Uint32(buf[20:24])
	return lsn, pageID, prevChain, payloadCRC, true
}
