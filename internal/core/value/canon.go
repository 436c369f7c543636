package value

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/seum-lang/worldcore/internal/core/fixed"
)

// CanonKey renders v so that equal content always yields the same key and
// different variants never collide. Sets and maps order their members by
// this key.
func CanonKey(v Value) string {
	var sb strings.Builder
	writeKey(&sb, v)
	return sb.String()
}

func writeKey(sb *strings.Builder, v Value) {
	switch x := v.(type) {
	case nil, None:
		sb.WriteString("none")
	case Bool:
		if x {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case Fixed:
		sb.WriteString(fixed.Fixed64(x).String())
	case Unit:
		sb.WriteString(x.Amount.String())
		sb.WriteByte('@')
		sb.WriteString(strconv.Quote(string(x.Dim)))
	case String:
		sb.WriteString(strconv.Quote(string(x)))
	case Handle:
		sb.WriteByte('#')
		sb.WriteString(x.String())
	case List:
		writeSeq(sb, '[', ']', x.items)
	case Set:
		writeSeq(sb, '{', '}', x.items)
	case Map:
		sb.WriteString("map{")
		for i, e := range x.entries {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeKey(sb, e.Key)
			sb.WriteString("=>")
			writeKey(sb, e.Value)
		}
		sb.WriteByte('}')
	}
}

func writeSeq(sb *strings.Builder, open, closing byte, items []Value) {
	sb.WriteByte(open)
	for i, it := range items {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeKey(sb, it)
	}
	sb.WriteByte(closing)
}

// EncodeCanon appends the canonical binary form of v to buf: a one-byte
// Kind, then little-endian 8-byte words for numbers and lengths, with
// strings and sequences length-prefixed. The encoding feeds the state hash
// and is never decoded.
func EncodeCanon(buf []byte, v Value) []byte {
	if v == nil {
		v = None{}
	}
	buf = append(buf, byte(v.Kind()))
	switch x := v.(type) {
	case Bool:
		if x {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case Fixed:
		buf = AppendU64(buf, uint64(fixed.Fixed64(x).Raw()))
	case Unit:
		buf = AppendU64(buf, uint64(x.Amount.Raw()))
		buf = AppendString(buf, string(x.Dim))
	case String:
		buf = AppendString(buf, string(x))
	case Handle:
		buf = AppendU64(buf, uint64(x))
	case List:
		buf = encodeSeq(buf, x.items)
	case Set:
		buf = encodeSeq(buf, x.items)
	case Map:
		buf = AppendU64(buf, uint64(len(x.entries)))
		for _, e := range x.entries {
			buf = EncodeCanon(buf, e.Key)
			buf = EncodeCanon(buf, e.Value)
		}
	}
	return buf
}

func encodeSeq(buf []byte, items []Value) []byte {
	buf = AppendU64(buf, uint64(len(items)))
	for _, it := range items {
		buf = EncodeCanon(buf, it)
	}
	return buf
}

// AppendU64 appends n as a little-endian 8-byte word.
func AppendU64(buf []byte, n uint64) []byte {
	return binary.LittleEndian.AppendUint64(buf, n)
}

// AppendString appends an 8-byte length prefix followed by the bytes of s.
func AppendString(buf []byte, s string) []byte {
	buf = AppendU64(buf, uint64(len(s)))
	return append(buf, s...)
}

func putU64(b []byte, n uint64) { binary.LittleEndian.PutUint64(b, n) }
