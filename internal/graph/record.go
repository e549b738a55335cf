package graph

import (
	"encoding/binary"

	"github.com/maskdotdev/sombra-sub004/internal/dict"
	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
	"github.com/maskdotdev/sombra-sub004/internal/propval"
)

// Prop is one (prop id, value) pair attached to a node or edge record.
// A record's Props slice is always kept sorted ascending by ID (spec
// §4.8: "Properties are sorted by prop id").
type Prop struct {
	ID    PropID
	Value propval.Value
}

// NodeRecord is the decoded form of the Nodes B-tree's value (spec
// §4.8: "{label_id_count, label_ids…, prop_count, (prop_id,
// tagged_value)…}").
type NodeRecord struct {
	Labels []LabelID
	Props  []Prop
}

// EdgeRecord is the decoded form of the Edges B-tree's value (spec
// §4.8: "{src, dst, type_id, prop_count, (prop_id, tagged_value)…}").
type EdgeRecord struct {
	Src, Dst NodeID
	Type     TypeID
	Props    []Prop
}

func appendUvarint(dst []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}

func readUvarint(buf []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, nil, errs.Corruption("graph: malformed varint in record")
	}
	return v, buf[n:], nil
}

func sortPropsByID(props []Prop) {
	for i := 1; i < len(props); i++ {
		for j := i; j > 0 && props[j-1].ID > props[j].ID; j-- {
			props[j-1], props[j] = props[j], props[j-1]
		}
	}
}

func encodeProps(wg *pager.WriteGuard, d *dict.Dict, meta *pager.Meta, props []Prop) ([]byte, error) {
	var buf []byte
	buf = appendUvarint(buf, uint64(len(props)))
	for _, p := range props {
		buf = appendUvarint(buf, uint64(p.ID))
		enc, err := propval.Encode(wg, d, meta, p.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, enc...)
	}
	return buf, nil
}

func decodeProps(g pageGetter, d *dict.Dict, strToIDRoot, idToStrRoot pager.PageID, buf []byte) ([]Prop, []byte, error) {
	count, buf, err := readUvarint(buf)
	if err != nil {
		return nil, nil, err
	}
	props := make([]Prop, count)
	for i := range props {
		id, rest, err := readUvarint(buf)
		if err != nil {
			return nil, nil, err
		}
		val, n, err := propval.Decode(g, d, strToIDRoot, idToStrRoot, rest)
		if err != nil {
			return nil, nil, err
		}
		props[i] = Prop{ID: PropID(id), Value: val}
		buf = rest[n:]
	}
	return props, buf, nil
}

func encodeNode(wg *pager.WriteGuard, d *dict.Dict, meta *pager.Meta, rec NodeRecord) ([]byte, error) {
	var buf []byte
	buf = appendUvarint(buf, uint64(len(rec.Labels)))
	for _, l := range rec.Labels {
		buf = appendUvarint(buf, uint64(l))
	}
	encProps, err := encodeProps(wg, d, meta, rec.Props)
	if err != nil {
		return nil, err
	}
	return append(buf, encProps...), nil
}

func decodeNode(g pageGetter, d *dict.Dict, strToIDRoot, idToStrRoot pager.PageID, buf []byte) (NodeRecord, error) {
	labelCount, buf, err := readUvarint(buf)
	if err != nil {
		return NodeRecord{}, err
	}
	labels := make([]LabelID, labelCount)
	for i := range labels {
		v, rest, err := readUvarint(buf)
		if err != nil {
			return NodeRecord{}, err
		}
		labels[i] = LabelID(v)
		buf = rest
	}
	props, _, err := decodeProps(g, d, strToIDRoot, idToStrRoot, buf)
	if err != nil {
		return NodeRecord{}, err
	}
	return NodeRecord{Labels: labels, Props: props}, nil
}

func encodeEdge(wg *pager.WriteGuard, d *dict.Dict, meta *pager.Meta, rec EdgeRecord) ([]byte, error) {
	buf := make([]byte, 20)
	binary.BigEndian.PutUint64(buf[0:], rec.Src)
	binary.BigEndian.PutUint64(buf[8:], rec.Dst)
	binary.BigEndian.PutUint32(buf[16:], rec.Type)
	encProps, err := encodeProps(wg, d, meta, rec.Props)
	if err != nil {
		return nil, err
	}
	return append(buf, encProps...), nil
}

func decodeEdge(g pageGetter, d *dict.Dict, strToIDRoot, idToStrRoot pager.PageID, buf []byte) (EdgeRecord, error) {
	if len(buf) < 20 {
		return EdgeRecord{}, errs.Corruption("graph: truncated edge record header")
	}
	rec := EdgeRecord{
		Src:  binary.BigEndian.Uint64(buf[0:]),
		Dst:  binary.BigEndian.Uint64(buf[8:]),
		Type: binary.BigEndian.Uint32(buf[16:]),
	}
	props, _, err := decodeProps(g, d, strToIDRoot, idToStrRoot, buf[20:])
	if err != nil {
		return EdgeRecord{}, err
	}
	rec.Props = props
	return rec, nil
}
