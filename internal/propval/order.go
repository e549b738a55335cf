package propval

import (
	"encoding/binary"
	"math"

	"github.com/maskdotdev/sombra-sub004/internal/errs"
)

// EncodeOrdered produces the canonical, order-preserving byte encoding
// used as the value component of an ordered property-index key (spec
// §4.9 "Value encoding for ordered scans"): booleans as one byte,
// signed integers big-endian with the sign bit flipped, floats as an
// order-preserving IEEE transform (NaN rejected), strings as raw UTF-8
// bytes terminated by a NUL byte so that a string which is a strict
// prefix of another still sorts before it inside a composite key
// followed by further fields (callers must not index strings
// containing an embedded NUL byte — the one constraint this encoding
// adds beyond the spec's wording). Unequal types never compare equal:
// callers must only ever order-compare values of the same Kind, which
// the index catalog's type_tag already guarantees.
func EncodeOrdered(v Value) ([]byte, error) {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case KindInt64:
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, uint64(v.Int64)^(1<<63))
		return out, nil
	case KindFloat64:
		if math.IsNaN(v.Float64) {
			return nil, errs.Invalid("propval: NaN cannot be ordered-indexed")
		}
		bits := math.Float64bits(v.Float64)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, bits)
		return out, nil
	case KindDate:
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, uint64(v.Date)^(1<<63))
		return out, nil
	case KindDateTime:
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, uint64(v.DateTime)^(1<<63))
		return out, nil
	case KindStringInterned, KindStringInline, KindStringSpilled:
		out := make([]byte, 0, len(v.Str)+1)
		out = append(out, v.Str...)
		out = append(out, 0)
		return out, nil
	default:
		return nil, errs.Invalid("propval: value kind is not ordered-indexable")
	}
}
