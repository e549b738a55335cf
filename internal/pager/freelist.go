package pager

import "encoding/binary"

// Freelist pages are a singly-linked chain; each page stores a LIFO
// stack of free page ids plus a pointer to the next page in the chain.
// Popping is always from the most-recently-freed end, matching spec §8
// ("freelist pops in LIFO order").
//
//	[0:32]  common page header (Kind=Freelist)
//	[32:36] NextFreelist  uint32 LE, 0 = end of chain
//	[36:40] EntryCount    uint32 LE
//	[40:]   EntryCount * uint32 LE page ids, oldest-pushed first
const (
	flNextOff  = HeaderSize
	flCountOff = flNextOff + 4
	flDataOff  = flCountOff + 4
)

func freelistCapacity(pageSize int) int {
	return (pageSize - flDataOff) / 4
}

func initFreelistPage(buf []byte, id PageID, salt uint64) {
	MarshalHeader(Header{PageNo: id, Kind: KindFreelist, PageSize: uint32(len(buf)), Salt: salt}, buf)
	binary.LittleEndian.PutUint32(buf[flNextOff:], uint32(InvalidPageID))
	binary.LittleEndian.PutUint32(buf[flCountOff:], 0)
}

func flNext(buf []byte) PageID {
	return PageID(binary.LittleEndian.Uint32(buf[flNextOff:]))
}

func flSetNext(buf []byte, id PageID) {
	binary.LittleEndian.PutUint32(buf[flNextOff:], uint32(id))
}

func flCount(buf []byte) int {
	return int(binary.LittleEndian.Uint32(buf[flCountOff:]))
}

func flPush(buf []byte, pageSize int, id PageID) bool {
	n := flCount(buf)
	if n >= freelistCapacity(pageSize) {
		return false
	}
	binary.LittleEndian.PutUint32(buf[flDataOff+n*4:], uint32(id))
	binary.LittleEndian.PutUint32(buf[flCountOff:], uint32(n+1))
	return true
}

// flPop removes and returns the most-recently-pushed entry.
func flPop(buf []byte) (PageID, bool) {
	n := flCount(buf)
	if n == 0 {
		return InvalidPageID, false
	}
	id := PageID(binary.LittleEndian.Uint32(buf[flDataOff+(n-1)*4:]))
	binary.LittleEndian.PutUint32(buf[flCountOff:], uint32(n-1))
	return id, true
}
