// Package propval implements the tagged-union property value (spec §3
// "Property values"): null, bool, int64, float64, string, bytes, date,
// and datetime, with short strings dictionary-interned, medium payloads
// stored inline, and anything past Meta's inline threshold spilled to a
// VStore overflow chain referenced by a VRef.
package propval

import (
	"encoding/binary"
	"math"

	"github.com/maskdotdev/sombra-sub004/internal/dict"
	"github.com/maskdotdev/sombra-sub004/internal/errs"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
	"github.com/maskdotdev/sombra-sub004/internal/vstore"
)

// Kind discriminates the tagged union's cases, also used as the
// on-disk tag byte.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindStringInterned
	KindStringInline
	KindStringSpilled
	KindBytesInline
	KindBytesSpilled
	KindDate
	KindDateTime
)

// Value is an in-memory property value. Exactly one field beyond Kind
// is meaningful per case; String/Bytes are always fully materialized
// (interning/spilling is an on-disk storage decision made at Encode
// time, invisible to callers).
type Value struct {
	Kind     Kind
	Bool     bool
	Int64    int64
	Float64  float64
	Str      string
	Bytes    []byte
	Date     int64 // days since epoch
	DateTime int64 // milliseconds since epoch
}

func Null() Value                  { return Value{Kind: KindNull} }
func FromBool(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func FromInt64(v int64) Value      { return Value{Kind: KindInt64, Int64: v} }
func FromFloat64(v float64) Value  { return Value{Kind: KindFloat64, Float64: v} }
func FromString(s string) Value    { return Value{Kind: KindStringInterned, Str: s} }
func FromBytes(b []byte) Value     { return Value{Kind: KindBytesInline, Bytes: b} }
func FromDate(days int64) Value    { return Value{Kind: KindDate, Date: days} }
func FromDateTime(ms int64) Value  { return Value{Kind: KindDateTime, DateTime: ms} }

// pageGetter is satisfied by both *pager.WriteGuard and *pager.ReadGuard.
type pageGetter interface {
	GetPage(id pager.PageID) ([]byte, error)
}

// Encode writes v's tagged-union wire form, interning short strings
// into d, inlining medium payloads, and spilling anything longer than
// meta's inline thresholds to a VStore chain. wg is required whenever
// v carries a string or bytes payload (interning/spilling both need a
// write transaction); it may be nil for the scalar kinds.
func Encode(wg *pager.WriteGuard, d *dict.Dict, meta *pager.Meta, v Value) ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte{byte(KindNull)}, nil
	case KindBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		return []byte{byte(KindBool), b}, nil
	case KindInt64:
		out := make([]byte, 9)
		out[0] = byte(KindInt64)
		binary.BigEndian.PutUint64(out[1:], uint64(v.Int64))
		return out, nil
	case KindFloat64:
		out := make([]byte, 9)
		out[0] = byte(KindFloat64)
		binary.BigEndian.PutUint64(out[1:], math.Float64bits(v.Float64))
		return out, nil
	case KindDate:
		out := make([]byte, 9)
		out[0] = byte(KindDate)
		binary.BigEndian.PutUint64(out[1:], uint64(v.Date))
		return out, nil
	case KindDateTime:
		out := make([]byte, 9)
		out[0] = byte(KindDateTime)
		binary.BigEndian.PutUint64(out[1:], uint64(v.DateTime))
		return out, nil
	case KindStringInterned, KindStringInline, KindStringSpilled:
		return encodeString(wg, d, meta, v.Str)
	case KindBytesInline, KindBytesSpilled:
		return encodeBytes(wg, meta, v.Bytes)
	default:
		return nil, errs.Invalid("propval: unknown value kind")
	}
}

func encodeString(wg *pager.WriteGuard, d *dict.Dict, meta *pager.Meta, s string) ([]byte, error) {
	if uint32(len(s)) <= meta.InlineValueThreshold {
		id, err := d.Intern(wg, s)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 5)
		out[0] = byte(KindStringInterned)
		binary.BigEndian.PutUint32(out[1:], id)
		return out, nil
	}
	if uint32(len(s)) <= meta.InlineBlobThreshold {
		out := make([]byte, 0, len(s)+5)
		out = append(out, byte(KindStringInline))
		out = appendUvarint(out, uint64(len(s)))
		out = append(out, s...)
		return out, nil
	}
	ref, err := vstore.Write(wg, []byte(s))
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(KindStringSpilled)}, encodeVRef(ref)...), nil
}

func encodeBytes(wg *pager.WriteGuard, meta *pager.Meta, b []byte) ([]byte, error) {
	if uint32(len(b)) <= meta.InlineBlobThreshold {
		out := make([]byte, 0, len(b)+5)
		out = append(out, byte(KindBytesInline))
		out = appendUvarint(out, uint64(len(b)))
		out = append(out, b...)
		return out, nil
	}
	ref, err := vstore.Write(wg, b)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(KindBytesSpilled)}, encodeVRef(ref)...), nil
}

// Decode reads one tagged value from the front of buf, resolving
// dictionary/overflow references through g and d, and returns the
// number of bytes consumed.
func Decode(g pageGetter, d *dict.Dict, strToIDRoot, idToStrRoot pager.PageID, buf []byte) (Value, int, error) {
	if len(buf) == 0 {
		return Value{}, 0, errs.Corruption("propval: empty value buffer")
	}
	kind := Kind(buf[0])
	rest := buf[1:]
	switch kind {
	case KindNull:
		return Value{Kind: KindNull}, 1, nil
	case KindBool:
		if len(rest) < 1 {
			return Value{}, 0, errs.Corruption("propval: truncated bool")
		}
		return Value{Kind: KindBool, Bool: rest[0] != 0}, 2, nil
	case KindInt64:
		if len(rest) < 8 {
			return Value{}, 0, errs.Corruption("propval: truncated int64")
		}
		return Value{Kind: KindInt64, Int64: int64(binary.BigEndian.Uint64(rest))}, 9, nil
	case KindFloat64:
		if len(rest) < 8 {
			return Value{}, 0, errs.Corruption("propval: truncated float64")
		}
		return Value{Kind: KindFloat64, Float64: math.Float64frombits(binary.BigEndian.Uint64(rest))}, 9, nil
	case KindDate:
		if len(rest) < 8 {
			return Value{}, 0, errs.Corruption("propval: truncated date")
		}
		return Value{Kind: KindDate, Date: int64(binary.BigEndian.Uint64(rest))}, 9, nil
	case KindDateTime:
		if len(rest) < 8 {
			return Value{}, 0, errs.Corruption("propval: truncated datetime")
		}
		return Value{Kind: KindDateTime, DateTime: int64(binary.BigEndian.Uint64(rest))}, 9, nil
	case KindStringInterned:
		if len(rest) < 4 {
			return Value{}, 0, errs.Corruption("propval: truncated interned string id")
		}
		id := binary.BigEndian.Uint32(rest)
		s, found, err := d.LookupString(g, idToStrRoot, id)
		if err != nil {
			return Value{}, 0, err
		}
		if !found {
			return Value{}, 0, errs.Corruption("propval: dangling interned string id")
		}
		return Value{Kind: KindStringInterned, Str: s}, 5, nil
	case KindStringInline:
		s, n, err := readInline(rest)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: KindStringInline, Str: string(s)}, 1 + n, nil
	case KindBytesInline:
		b, n, err := readInline(rest)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: KindBytesInline, Bytes: b}, 1 + n, nil
	case KindStringSpilled, KindBytesSpilled:
		ref, n, err := decodeVRef(rest)
		if err != nil {
			return Value{}, 0, err
		}
		data, err := readSpilled(g, ref)
		if err != nil {
			return Value{}, 0, err
		}
		if kind == KindStringSpilled {
			return Value{Kind: KindStringSpilled, Str: string(data)}, 1 + n, nil
		}
		return Value{Kind: KindBytesSpilled, Bytes: data}, 1 + n, nil
	default:
		return Value{}, 0, errs.Corruption("propval: unknown tag byte")
	}
}

// readSpilled reads an overflow chain via whichever guard kind g is;
// vstore.Read requires a *pager.WriteGuard, vstore.ReadView a
// *pager.ReadGuard, so this dispatches on the concrete type.
func readSpilled(g pageGetter, ref vstore.VRef) ([]byte, error) {
	switch guard := g.(type) {
	case *pager.WriteGuard:
		return vstore.Read(guard, ref)
	case *pager.ReadGuard:
		return vstore.ReadView(guard, ref)
	default:
		return nil, errs.Invalid("propval: unsupported page guard type")
	}
}

func appendUvarint(dst []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}

func readInline(buf []byte) ([]byte, int, error) {
	l, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, 0, errs.Corruption("propval: malformed inline length")
	}
	if uint64(len(buf)-n) < l {
		return nil, 0, errs.Corruption("propval: inline payload overruns buffer")
	}
	return buf[n : n+int(l)], n + int(l), nil
}

func encodeVRef(ref vstore.VRef) []byte {
	out := make([]byte, 20)
	binary.BigEndian.PutUint32(out[0:], uint32(ref.StartPage))
	binary.BigEndian.PutUint32(out[4:], ref.NPages)
	binary.BigEndian.PutUint64(out[8:], ref.Len)
	binary.BigEndian.PutUint32(out[16:], ref.Checksum)
	return out
}

func decodeVRef(buf []byte) (vstore.VRef, int, error) {
	if len(buf) < 20 {
		return vstore.VRef{}, 0, errs.Corruption("propval: truncated vref")
	}
	return vstore.VRef{
		StartPage: pager.PageID(binary.BigEndian.Uint32(buf[0:])),
		NPages:    binary.BigEndian.Uint32(buf[4:]),
		Len:       binary.BigEndian.Uint64(buf[8:]),
		Checksum:  binary.BigEndian.Uint32(buf[16:]),
	}, 20, nil
}
