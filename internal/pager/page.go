// Package pager implements the page cache, allocator, MVCC read
// snapshots, and group-commit-driven write path described in spec §4.4.
// It depends on fileio for raw I/O, walog for durability, and
// lockcoord for cross-process coordination.
package pager

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/walog"
)

// PageID and LSN are re-exported from walog so every layer shares one
// definition.
type (
	PageID = walog.PageID
	LSN    = walog.LSN
)

// InvalidPageID is the null page reference.
const InvalidPageID PageID = 0

// PageKind identifies the kind of data stored in a page, per spec §3.
type PageKind uint8

const (
	KindMeta PageKind = iota + 1
	KindFreelist
	KindBTreeLeaf
	KindBTreeInternal
	KindOverflow
	KindCatalog // reuses the BTree page format
)

func (k PageKind) String() string {
	switch k {
	case KindMeta:
		return "Meta"
	case KindFreelist:
		return "Freelist"
	case KindBTreeLeaf:
		return "BTreeLeaf"
	case KindBTreeInternal:
		return "BTreeInternal"
	case KindOverflow:
		return "Overflow"
	case KindCatalog:
		return "Catalog"
	default:
		return "Unknown"
	}
}

// HeaderSize is the size of the common page header (spec §3): page
// number, kind, page size, salt, CRC.
//
//	[0:4]   PageNo     uint32 LE
//	[4]     Kind       uint8
//	[5:8]   Reserved   3 bytes
//	[8:12]  PageSize   uint32 LE
//	[12:20] Salt       uint64 LE
//	[20:24] CRC32      uint32 LE (zeroed while computing)
//	[24:32] Reserved   8 bytes
const HeaderSize = 32

// Header is the common header every page begins with.
type Header struct {
	PageNo   PageID
	Kind     PageKind
	PageSize uint32
	Salt     uint64
}

// MarshalHeader writes h into the first HeaderSize bytes of buf.
func MarshalHeader(h Header, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.PageNo))
	buf[4] = byte(h.Kind)
	buf[5], buf[6], buf[7] = 0, 0, 0
	binary.LittleEndian.PutUint32(buf[8:12], h.PageSize)
	binary.LittleEndian.PutUint64(buf[12:20], h.Salt)
	binary.LittleEndian.PutUint32(buf[20:24], 0)
}

// UnmarshalHeader reads the common header from buf.
func UnmarshalHeader(buf []byte) Header {
	return Header{
		PageNo:   PageID(binary.LittleEndian.Uint32(buf[0:4])),
		Kind:     PageKind(buf[4]),
		PageSize: binary.LittleEndian.Uint32(buf[8:12]),
		Salt:     binary.LittleEndian.Uint64(buf[12:20]),
	}
}

// PageCRC computes the CRC32 of buf per spec §4.4:
//
//	crc32(page_no_be || salt_be || page_bytes_with_crc_field_zeroed)
func PageCRC(pageNo PageID, salt uint64, buf []byte) uint32 {
	var prefix [12]byte
	binary.BigEndian.PutUint32(prefix[0:4], uint32(pageNo))
	binary.BigEndian.PutUint64(prefix[4:12], salt)

	scratch := make([]byte, len(buf))
	copy(scratch, buf)
	binary.LittleEndian.PutUint32(scratch[20:24], 0)

	h := crc32.NewIEEE()
	h.Write(prefix[:])
	h.Write(scratch)
	return h.Sum32()
}

// SetPageCRC computes and stores buf's CRC into its header.
func SetPageCRC(pageNo PageID, salt uint64, buf []byte) {
	c := PageCRC(pageNo, salt, buf)
	binary.LittleEndian.PutUint32(buf[20:24], c)
}

// VerifyPageCRC checks buf's stored CRC against a freshly computed one.
func VerifyPageCRC(pageNo PageID, salt uint64, buf []byte) error {
	stored := binary.LittleEndian.Uint32(buf[20:24])
	got := PageCRC(pageNo, salt, buf)
	if stored != got {
		return errs.Corruption("pager: page CRC mismatch")
	}
	return nil
}

// ValidatePageHeader checks the header invariants from spec §3:
// header.page_size == pager.page_size; header.page_no == the page's
// actual slot; header salt == the store salt.
func ValidatePageHeader(h Header, wantPageNo PageID, wantPageSize int, wantSalt uint64) error {
	if int(h.PageSize) != wantPageSize {
		return errs.Corruption("pager: page size header mismatch")
	}
	if h.PageNo != wantPageNo {
		return errs.Corruption("pager: page number header mismatch")
	}
	if h.Salt != wantSalt {
		return errs.Corruption("pager: page salt mismatch")
	}
	return nil
}
