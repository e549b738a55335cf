package btree

import "github.com/maskdotdev/sombra-sub004/internal/errs"

// BytesCodec is the identity codec: keys/values are already the byte
// strings the tree wants, e.g. interned UTF-8 label bytes.
var BytesCodec = Codec[[]byte]{
	Encode: func(b []byte) []byte { return b },
	Decode: func(b []byte) ([]byte, error) {
		cp := make([]byte, len(b))
		copy(cp, b)
		return cp, nil
	},
}

// StringCodec encodes strings as their raw UTF-8 bytes, which sorts
// identically to Go's native string comparison.
var StringCodec = Codec[string]{
	Encode: func(s string) []byte { return []byte(s) },
	Decode: func(b []byte) (string, error) { return string(b), nil },
}

// Uint32Codec encodes uint32s big-endian so byte order matches numeric
// order. Used for dictionary ids (spec §4.7) and other 32-bit keys.
var Uint32Codec = Codec[uint32]{
	Encode: func(v uint32) []byte {
		b := make([]byte, 4)
		b[0] = byte(v >> 24)
		b[1] = byte(v >> 16)
		b[2] = byte(v >> 8)
		b[3] = byte(v)
		return b
	},
	Decode: func(b []byte) (uint32, error) {
		if len(b) != 4 {
			return 0, errs.Corruption("btree: uint32 key of wrong length")
		}
		return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
	},
}

// Uint64Codec encodes uint64s big-endian so byte order matches numeric
// order, per spec §4.6's requirement that key codecs preserve order.
var Uint64Codec = Codec[uint64]{
	Encode: func(v uint64) []byte {
		b := make([]byte, 8)
		b[0] = byte(v >> 56)
		b[1] = byte(v >> 48)
		b[2] = byte(v >> 40)
		b[3] = byte(v >> 32)
		b[4] = byte(v >> 24)
		b[5] = byte(v >> 16)
		b[6] = byte(v >> 8)
		b[7] = byte(v)
		return b
	},
	Decode: func(b []byte) (uint64, error) {
		if len(b) != 8 {
			return 0, errs.Corruption("btree: uint64 key of wrong length")
		}
		return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
			uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7]), nil
	},
}
