package grpcserver

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ─── Encoding ────────────────────────────────────────────────────────────────
// Scalars follow proto3 rules: zero values are not written.

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendDouble(b []byte, num protowire.Number, f float64) []byte {
	if f == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(f))
}

func appendEmbedded(b []byte, num protowire.Number, sub []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, sub)
}

func appendPackedInt64s(b []byte, num protowire.Number, vs []int64) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	return appendEmbedded(b, num, packed)
}

// appendTime writes t as a google.protobuf.Timestamp.
func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	ts := timestamppb.New(t)
	var sub []byte
	sub = appendInt64(sub, 1, ts.GetSeconds())
	sub = appendInt64(sub, 2, int64(ts.GetNanos()))
	return appendEmbedded(b, num, sub)
}

// ─── Decoding ────────────────────────────────────────────────────────────────

type wireField struct {
	num   protowire.Number
	typ   protowire.Type
	value uint64 // varint and fixed64 payloads
	bytes []byte // length-delimited payloads
}

// readFields calls fn for every field of b in order. Callers ignore field
// numbers they do not know.
func readFields(b []byte, fn func(f wireField) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := wireField{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.value, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.value, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (f wireField) wrongType() error {
	return fmt.Errorf("field %d: unexpected wire type %d", f.num, f.typ)
}

func (f wireField) int64() (int64, error) {
	if f.typ != protowire.VarintType {
		return 0, f.wrongType()
	}
	return int64(f.value), nil
}

func (f wireField) bool() (bool, error) {
	if f.typ != protowire.VarintType {
		return false, f.wrongType()
	}
	return protowire.DecodeBool(f.value), nil
}

func (f wireField) double() (float64, error) {
	if f.typ != protowire.Fixed64Type {
		return 0, f.wrongType()
	}
	return math.Float64frombits(f.value), nil
}

func (f wireField) string() (string, error) {
	if f.typ != protowire.BytesType {
		return "", f.wrongType()
	}
	if !utf8.Valid(f.bytes) {
		return "", fmt.Errorf("field %d: invalid UTF-8", f.num)
	}
	return string(f.bytes), nil
}

func (f wireField) embedded() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, f.wrongType()
	}
	return f.bytes, nil
}

// int64s accepts both packed and unpacked repeated encodings.
func (f wireField) int64s(dst []int64) ([]int64, error) {
	switch f.typ {
	case protowire.VarintType:
		return append(dst, int64(f.value)), nil
	case protowire.BytesType:
		b := f.bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return dst, protowire.ParseError(n)
			}
			dst = append(dst, int64(v))
			b = b[n:]
		}
		return dst, nil
	default:
		return dst, f.wrongType()
	}
}

func (f wireField) time() (time.Time, error) {
	sub, err := f.embedded()
	if err != nil {
		return time.Time{}, err
	}
	var ts timestamppb.Timestamp
	if err := proto.Unmarshal(sub, &ts); err != nil {
		return time.Time{}, fmt.Errorf("field %d: %w", f.num, err)
	}
	if err := ts.CheckValid(); err != nil {
		return time.Time{}, fmt.Errorf("field %d: %w", f.num, err)
	}
	return ts.AsTime(), nil
}
