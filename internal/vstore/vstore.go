// Package vstore implements the overflow-page chain used to spill
// property values and other blobs too large for an inline slot, per
// spec §4.5: a linked chain of pages, CRC32-checked over the
// concatenated payload (not the headers).
package vstore

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
)

// overflowHeaderSize is the 16-byte header following the common page
// header on every overflow page.
//
//	[0:8]   NextPageID  uint64 BE, 0 = end of chain
//	[8:12]  UsedBytes   uint32 LE
//	[12:16] Reserved
const overflowHeaderSize = 16

// VRef is a reference to a stored blob: its starting page, the page
// count reachable from it, its total byte length, and a CRC32 over its
// payload bytes.
type VRef struct {
	StartPage pager.PageID
	NPages    uint32
	Len       uint64
	Checksum  uint32
}

// dataCapacity is the usable payload bytes per overflow page.
func dataCapacity(pageSize int) int {
	return pageSize - pager.HeaderSize - overflowHeaderSize
}

func ovfNext(buf []byte) pager.PageID {
	return pager.PageID(binary.BigEndian.Uint64(buf[pager.HeaderSize:]))
}

func ovfSetNext(buf []byte, id pager.PageID) {
	binary.BigEndian.PutUint64(buf[pager.HeaderSize:], uint64(id))
}

func ovfUsed(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[pager.HeaderSize+8:])
}

func ovfSetUsed(buf []byte, n uint32) {
	binary.LittleEndian.PutUint32(buf[pager.HeaderSize+8:], n)
}

func ovfData(buf []byte) []byte {
	return buf[pager.HeaderSize+overflowHeaderSize:]
}

// Write allocates ceil(len/dataCapacity).max(1) pages, fills them
// left-to-right, chains next-pointers, and returns a VRef carrying the
// CRC32 over the concatenated payload.
func Write(wg *pager.WriteGuard, data []byte) (VRef, error) {
	chunkCap := dataCapacity(wg.PageSize())
	n := (len(data) + chunkCap - 1) / chunkCap
	if n == 0 {
		n = 1
	}

	ids := make([]pager.PageID, n)
	bufs := make([][]byte, n)
	for i := 0; i < n; i++ {
		id, buf := wg.AllocatePage(pager.KindOverflow)
		ids[i] = id
		bufs[i] = buf
	}
	for i := 0; i < n; i++ {
		start := i * chunkCap
		end := start + chunkCap
		if end > len(data) {
			end = len(data)
		}
		chunk := data[start:end]
		copy(ovfData(bufs[i]), chunk)
		ovfSetUsed(bufs[i], uint32(len(chunk)))
		if i+1 < n {
			ovfSetNext(bufs[i], ids[i+1])
		} else {
			ovfSetNext(bufs[i], 0)
		}
	}

	return VRef{
		StartPage: ids[0],
		NPages:    uint32(n),
		Len:       uint64(len(data)),
		Checksum:  crc32.ChecksumIEEE(data),
	}, nil
}

// Read walks the chain rooted at ref.StartPage and returns the
// concatenated payload, verifying length and checksum.
func Read(wg *pager.WriteGuard, ref VRef) ([]byte, error) {
	out := make([]byte, 0, ref.Len)
	id := ref.StartPage
	for i := uint32(0); i < ref.NPages; i++ {
		buf, err := wg.GetPage(id)
		if err != nil {
			return nil, err
		}
		used := ovfUsed(buf)
		if int(used) > dataCapacity(wg.PageSize()) {
			return nil, errs.Corruption("vstore: used_bytes exceeds page capacity")
		}
		out = append(out, ovfData(buf)[:used]...)
		next := ovfNext(buf)
		if i+1 < ref.NPages {
			if next == 0 {
				return nil, errs.Corruption("vstore: chain ended before n_pages reached")
			}
			id = next
		} else if next != 0 {
			return nil, errs.Corruption("vstore: chain longer than n_pages")
		}
	}
	if uint64(len(out)) != ref.Len {
		return nil, errs.Corruption("vstore: reassembled length mismatch")
	}
	if crc32.ChecksumIEEE(out) != ref.Checksum {
		return nil, errs.Corruption("vstore: checksum mismatch")
	}
	return out, nil
}

// ReadView is the ReadGuard equivalent of Read, for read-only snapshot
// traversal (no allocation, no mutation).
func ReadView(rg *pager.ReadGuard, ref VRef) ([]byte, error) {
	out := make([]byte, 0, ref.Len)
	id := ref.StartPage
	for i := uint32(0); i < ref.NPages; i++ {
		buf, err := rg.GetPage(id)
		if err != nil {
			return nil, err
		}
		used := ovfUsed(buf)
		out = append(out, ovfData(buf)[:used]...)
		next := ovfNext(buf)
		if i+1 < ref.NPages {
			id = next
		}
	}
	if uint64(len(out)) != ref.Len || crc32.ChecksumIEEE(out) != ref.Checksum {
		return nil, errs.Corruption("vstore: checksum mismatch")
	}
	return out, nil
}

// Update reuses the existing chain when newData fits within the
// chain's current capacity (NPages*dataCapacity); otherwise it writes a
// fresh chain and frees the old one, both within the same WriteGuard so
// the old pages only become reclaimable once the commit they belong to
// is no longer needed by any live reader.
func Update(wg *pager.WriteGuard, ref VRef, newData []byte) (VRef, error) {
	chunkCap := dataCapacity(wg.PageSize())
	if uint64(len(newData)) <= uint64(ref.NPages)*uint64(chunkCap) {
		id := ref.StartPage
		for i := uint32(0); i < ref.NPages; i++ {
			buf, err := wg.PageMut(id)
			if err != nil {
				return VRef{}, err
			}
			start := int(i) * chunkCap
			end := start + chunkCap
			if end > len(newData) {
				end = len(newData)
			}
			var chunk []byte
			if start < len(newData) {
				chunk = newData[start:end]
			}
			region := ovfData(buf)
			for j := range region {
				region[j] = 0
			}
			copy(region, chunk)
			ovfSetUsed(buf, uint32(len(chunk)))
			if i+1 < ref.NPages {
				id = ovfNext(buf)
			}
		}
		return VRef{
			StartPage: ref.StartPage,
			NPages:    ref.NPages,
			Len:       uint64(len(newData)),
			Checksum:  crc32.ChecksumIEEE(newData),
		}, nil
	}

	fresh, err := Write(wg, newData)
	if err != nil {
		return VRef{}, err
	}
	Free(wg, ref)
	return fresh, nil
}

// Free walks the chain rooted at ref.StartPage and returns every page
// to the pager's (reader-gated) freelist.
func Free(wg *pager.WriteGuard, ref VRef) {
	id := ref.StartPage
	for i := uint32(0); i < ref.NPages; i++ {
		buf, err := wg.GetPage(id)
		if err != nil {
			wg.FreePage(id)
			break
		}
		next := ovfNext(buf)
		wg.FreePage(id)
		if i+1 < ref.NPages {
			id = next
		}
	}
}
