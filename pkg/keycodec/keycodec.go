// Package keycodec implements memcomparable encoding: a byte encoding of
// typed values such that unsigned lexicographic comparison of the encoded
// bytes equals the value-level comparison of the original values. It is
// used to build keys for the B+-tree (both the primary table index, keyed
// by encoded row identifiers, and secondary indexes, keyed by encoded
// column tuples).
//
// Grounded on the teacher's pkg/storage/encoding.go (order-preserving
// composite-key encoding); extended here with the double-precision
// encoding and the continuation-group varchar encoding spec.md §6 calls
// for, which the teacher's null-terminated string scheme doesn't give us
// (a memcomparable encoding must never let one key's suffix be a prefix
// of another's in a way that breaks ordering across embedded NUL bytes).
package keycodec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ValueType tags an entry in the encoded tuple.
type ValueType uint8

const (
	TypeInt64 ValueType = iota + 1
	TypeVarchar
	TypeDouble
)

// Value is one column's worth of data in a composite key.
type Value struct {
	Type ValueType
	I64  int64
	Str  []byte
	F64  float64
}

func Int64(v int64) Value      { return Value{Type: TypeInt64, I64: v} }
func Varchar(v []byte) Value   { return Value{Type: TypeVarchar, Str: v} }
func Double(v float64) Value   { return Value{Type: TypeDouble, F64: v} }

// groupSize is the varchar continuation group width from spec.md §6:
// 8 bytes of key payload plus a 1-byte count. count==9 means "more
// groups follow"; count in 0..8 means "this is the final group, take
// count bytes of it" (0 only for the empty string).
const groupSize = 8

// Encode serializes a tuple of values into memcomparable bytes.
func Encode(vals []Value) []byte {
	out := make([]byte, 0, 16*len(vals))
	for _, v := range vals {
		out = append(out, byte(v.Type))
		switch v.Type {
		case TypeInt64:
			out = appendInt64(out, v.I64)
		case TypeVarchar:
			out = appendVarchar(out, v.Str)
		case TypeDouble:
			out = appendDouble(out, v.F64)
		default:
			panic(fmt.Sprintf("keycodec: unknown value type %d", v.Type))
		}
	}
	return out
}

func appendInt64(out []byte, v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v)^(1<<63))
	return append(out, buf[:]...)
}

func appendDouble(out []byte, v float64) []byte {
	bits := math.Float64bits(v)
	if v >= 0 {
		bits |= 1 << 63
	} else {
		bits = ^bits
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], bits)
	return append(out, buf[:]...)
}

// appendVarchar encodes s as repeated 9-byte groups of (8 bytes of
// payload, 1 byte count). Every group but the last holds 8 real bytes
// and carries count=9 ("continue"); the last group is padded with zero
// bytes and carries the number of real bytes it holds (0..8).
func appendVarchar(out []byte, s []byte) []byte {
	for {
		var group [groupSize]byte
		n := copy(group[:], s)
		s = s[n:]
		if n == groupSize && len(s) > 0 {
			out = append(out, group[:]...)
			out = append(out, groupSize+1) // continuation marker (9)
			continue
		}
		out = append(out, group[:]...)
		out = append(out, byte(n)) // 0..8: final group, n real bytes
		return out
	}
}

// Decode parses a memcomparable-encoded tuple back into typed values.
func Decode(data []byte) ([]Value, error) {
	var vals []Value
	pos := 0
	for pos < len(data) {
		typ := ValueType(data[pos])
		pos++
		switch typ {
		case TypeInt64:
			if pos+8 > len(data) {
				return nil, fmt.Errorf("keycodec: truncated int64 at %d", pos)
			}
			u := binary.BigEndian.Uint64(data[pos:pos+8]) ^ (1 << 63)
			vals = append(vals, Int64(int64(u)))
			pos += 8
		case TypeDouble:
			if pos+8 > len(data) {
				return nil, fmt.Errorf("keycodec: truncated double at %d", pos)
			}
			bits := binary.BigEndian.Uint64(data[pos : pos+8])
			if bits&(1<<63) != 0 {
				bits &^= 1 << 63
			} else {
				bits = ^bits
			}
			vals = append(vals, Double(math.Float64frombits(bits)))
			pos += 8
		case TypeVarchar:
			var out []byte
			for {
				if pos+groupSize+1 > len(data) {
					return nil, fmt.Errorf("keycodec: truncated varchar at %d", pos)
				}
				group := data[pos : pos+groupSize]
				count := data[pos+groupSize]
				pos += groupSize + 1
				if count == groupSize+1 {
					out = append(out, group...)
					continue
				}
				out = append(out, group[:count]...)
				break
			}
			vals = append(vals, Varchar(out))
		default:
			return nil, fmt.Errorf("keycodec: unknown type tag %d at %d", typ, pos-1)
		}
	}
	return vals, nil
}

// Compare reports the tuple-level ordering of a and b by comparing their
// memcomparable encodings byte-for-byte (the invariant the encoding
// exists to provide).
func Compare(a, b []Value) int {
	ea, eb := Encode(a), Encode(b)
	n := len(ea)
	if len(eb) < n {
		n = len(eb)
	}
	for i := 0; i < n; i++ {
		if ea[i] != eb[i] {
			if ea[i] < eb[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ea) < len(eb):
		return -1
	case len(ea) > len(eb):
		return 1
	default:
		return 0
	}
}
