package pager

import (
	"encoding/binary"

	"github.com/maskdotdev/sombra-sub004/internal/errs"
)

// MetaMagic identifies a Sombra database file.
const MetaMagic = "SOMBRA01"

// CurrentFormatVersion is the on-disk format version this package writes.
const CurrentFormatVersion uint32 = 1

// Meta is page 0, described in full by spec §3 "Meta (page 0)". Every
// field that names a B-tree root is either InvalidPageID or the root of
// a valid tree of the matching schema.
type Meta struct {
	PageSize  uint32
	StoreSalt uint64
	WALSalt   uint64
	FormatVer uint32

	FreelistHead PageID
	NextPageID   PageID
	CheckpointLSN LSN

	WALPolicyFlags uint32

	DictStrToIDRoot PageID
	DictIDToStrRoot PageID
	NextStringID    uint32

	StorageFlags uint32 // bit 0: degree cache enabled

	NodesRoot     PageID
	EdgesRoot     PageID
	AdjFwdRoot    PageID
	AdjRevRoot    PageID
	DegreeRoot    PageID
	IndexCatalog  PageID
	LabelIndex    PageID
	PropChunkRoot PageID
	PropBTreeRoot PageID
	VersionLog    PageID

	NextNodeID    uint64
	NextEdgeID    uint64
	NextVersionID uint64

	InlineBlobThreshold  uint32
	InlineValueThreshold uint32

	DDLEpoch uint64
}

const (
	StorageFlagDegreeCache uint32 = 1 << 0
)

// DegreeCacheEnabled reports whether the degree cache feature is on.
func (m *Meta) DegreeCacheEnabled() bool { return m.StorageFlags&StorageFlagDegreeCache != 0 }

// SetDegreeCacheEnabled toggles the degree cache feature flag.
func (m *Meta) SetDegreeCacheEnabled(v bool) {
	if v {
		m.StorageFlags |= StorageFlagDegreeCache
	} else {
		m.StorageFlags &^= StorageFlagDegreeCache
	}
}

// Field offsets within the meta page, starting right after the common
// 32-byte page header.
const (
	metaMagicOff         = HeaderSize
	metaVersionOff       = metaMagicOff + 8
	metaStoreSaltOff     = metaVersionOff + 4
	metaWALSaltOff       = metaStoreSaltOff + 8
	metaFreelistOff      = metaWALSaltOff + 8
	metaNextPageOff      = metaFreelistOff + 4
	metaCheckpointLSNOff = metaNextPageOff + 4
	metaWALPolicyOff     = metaCheckpointLSNOff + 8
	metaDictS2IOff       = metaWALPolicyOff + 4
	metaDictI2SOff       = metaDictS2IOff + 4
	metaNextStrIDOff     = metaDictI2SOff + 4
	metaStorageFlagsOff  = metaNextStrIDOff + 4
	metaNodesRootOff     = metaStorageFlagsOff + 4
	metaEdgesRootOff     = metaNodesRootOff + 4
	metaAdjFwdOff        = metaEdgesRootOff + 4
	metaAdjRevOff        = metaAdjFwdOff + 4
	metaDegreeRootOff    = metaAdjRevOff + 4
	metaIndexCatOff      = metaDegreeRootOff + 4
	metaLabelIdxOff      = metaIndexCatOff + 4
	metaPropChunkOff     = metaLabelIdxOff + 4
	metaPropBTreeOff     = metaPropChunkOff + 4
	metaVersionLogOff    = metaPropBTreeOff + 4
	metaNextNodeIDOff    = metaVersionLogOff + 4
	metaNextEdgeIDOff    = metaNextNodeIDOff + 8
	metaNextVersionIDOff = metaNextEdgeIDOff + 8
	metaInlineBlobOff    = metaNextVersionIDOff + 8
	metaInlineValueOff   = metaInlineBlobOff + 4
	metaDDLEpochOff      = metaInlineValueOff + 4
	metaEnd              = metaDDLEpochOff + 8
)

// MarshalMeta encodes m into a full page-sized buffer (the common page
// header is written by the caller via MarshalHeader/SetPageCRC).
func MarshalMeta(m *Meta, pageSize int) []byte {
	buf := make([]byte, pageSize)
	copy(buf[metaMagicOff:metaMagicOff+8], MetaMagic)
	binary.LittleEndian.PutUint32(buf[metaVersionOff:], m.FormatVer)
	binary.LittleEndian.PutUint64(buf[metaStoreSaltOff:], m.StoreSalt)
	binary.LittleEndian.PutUint64(buf[metaWALSaltOff:], m.WALSalt)
	binary.LittleEndian.PutUint32(buf[metaFreelistOff:], uint32(m.FreelistHead))
	binary.LittleEndian.PutUint32(buf[metaNextPageOff:], uint32(m.NextPageID))
	binary.LittleEndian.PutUint64(buf[metaCheckpointLSNOff:], uint64(m.CheckpointLSN))
	binary.LittleEndian.PutUint32(buf[metaWALPolicyOff:], m.WALPolicyFlags)
	binary.LittleEndian.PutUint32(buf[metaDictS2IOff:], uint32(m.DictStrToIDRoot))
	binary.LittleEndian.PutUint32(buf[metaDictI2SOff:], uint32(m.DictIDToStrRoot))
	binary.LittleEndian.PutUint32(buf[metaNextStrIDOff:], m.NextStringID)
	binary.LittleEndian.PutUint32(buf[metaStorageFlagsOff:], m.StorageFlags)
	binary.LittleEndian.PutUint32(buf[metaNodesRootOff:], uint32(m.NodesRoot))
	binary.LittleEndian.PutUint32(buf[metaEdgesRootOff:], uint32(m.EdgesRoot))
	binary.LittleEndian.PutUint32(buf[metaAdjFwdOff:], uint32(m.AdjFwdRoot))
	binary.LittleEndian.PutUint32(buf[metaAdjRevOff:], uint32(m.AdjRevRoot))
	binary.LittleEndian.PutUint32(buf[metaDegreeRootOff:], uint32(m.DegreeRoot))
	binary.LittleEndian.PutUint32(buf[metaIndexCatOff:], uint32(m.IndexCatalog))
	binary.LittleEndian.PutUint32(buf[metaLabelIdxOff:], uint32(m.LabelIndex))
	binary.LittleEndian.PutUint32(buf[metaPropChunkOff:], uint32(m.PropChunkRoot))
	binary.LittleEndian.PutUint32(buf[metaPropBTreeOff:], uint32(m.PropBTreeRoot))
	binary.LittleEndian.PutUint32(buf[metaVersionLogOff:], uint32(m.VersionLog))
	binary.LittleEndian.PutUint64(buf[metaNextNodeIDOff:], m.NextNodeID)
	binary.LittleEndian.PutUint64(buf[metaNextEdgeIDOff:], m.NextEdgeID)
	binary.LittleEndian.PutUint64(buf[metaNextVersionIDOff:], m.NextVersionID)
	binary.LittleEndian.PutUint32(buf[metaInlineBlobOff:], m.InlineBlobThreshold)
	binary.LittleEndian.PutUint32(buf[metaInlineValueOff:], m.InlineValueThreshold)
	binary.LittleEndian.PutUint64(buf[metaDDLEpochOff:], m.DDLEpoch)
	return buf
}

// UnmarshalMeta decodes a Meta from a page-sized buffer.
func UnmarshalMeta(buf []byte) (*Meta, error) {
	if len(buf) < metaEnd {
		return nil, errs.Corruption("pager: meta page too short")
	}
	if string(buf[metaMagicOff:metaMagicOff+8]) != MetaMagic {
		return nil, errs.Corruption("pager: bad meta magic")
	}
	m := &Meta{
		FormatVer:            binary.LittleEndian.Uint32(buf[metaVersionOff:]),
		StoreSalt:            binary.LittleEndian.Uint64(buf[metaStoreSaltOff:]),
		WALSalt:              binary.LittleEndian.Uint64(buf[metaWALSaltOff:]),
		FreelistHead:         PageID(binary.LittleEndian.Uint32(buf[metaFreelistOff:])),
		NextPageID:           PageID(binary.LittleEndian.Uint32(buf[metaNextPageOff:])),
		CheckpointLSN:        LSN(binary.LittleEndian.Uint64(buf[metaCheckpointLSNOff:])),
		WALPolicyFlags:       binary.LittleEndian.Uint32(buf[metaWALPolicyOff:]),
		DictStrToIDRoot:      PageID(binary.LittleEndian.Uint32(buf[metaDictS2IOff:])),
		DictIDToStrRoot:      PageID(binary.LittleEndian.Uint32(buf[metaDictI2SOff:])),
		NextStringID:         binary.LittleEndian.Uint32(buf[metaNextStrIDOff:]),
		StorageFlags:         binary.LittleEndian.Uint32(buf[metaStorageFlagsOff:]),
		NodesRoot:            PageID(binary.LittleEndian.Uint32(buf[metaNodesRootOff:])),
		EdgesRoot:            PageID(binary.LittleEndian.Uint32(buf[metaEdgesRootOff:])),
		AdjFwdRoot:           PageID(binary.LittleEndian.Uint32(buf[metaAdjFwdOff:])),
		AdjRevRoot:           PageID(binary.LittleEndian.Uint32(buf[metaAdjRevOff:])),
		DegreeRoot:           PageID(binary.LittleEndian.Uint32(buf[metaDegreeRootOff:])),
		IndexCatalog:         PageID(binary.LittleEndian.Uint32(buf[metaIndexCatOff:])),
		LabelIndex:           PageID(binary.LittleEndian.Uint32(buf[metaLabelIdxOff:])),
		PropChunkRoot:        PageID(binary.LittleEndian.Uint32(buf[metaPropChunkOff:])),
		PropBTreeRoot:        PageID(binary.LittleEndian.Uint32(buf[metaPropBTreeOff:])),
		VersionLog:           PageID(binary.LittleEndian.Uint32(buf[metaVersionLogOff:])),
		NextNodeID:           binary.LittleEndian.Uint64(buf[metaNextNodeIDOff:]),
		NextEdgeID:           binary.LittleEndian.Uint64(buf[metaNextEdgeIDOff:]),
		NextVersionID:        binary.LittleEndian.Uint64(buf[metaNextVersionIDOff:]),
		InlineBlobThreshold:  binary.LittleEndian.Uint32(buf[metaInlineBlobOff:]),
		InlineValueThreshold: binary.LittleEndian.Uint32(buf[metaInlineValueOff:]),
		DDLEpoch:             binary.LittleEndian.Uint64(buf[metaDDLEpochOff:]),
	}
	return m, nil
}
