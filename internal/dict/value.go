// Package dict implements the process-wide sharded key-value dictionary
// (spec §3, §4.B). Operations are oblivious to RESP: they take and return
// byte slices and a small tagged Value, never wire frames.
package dict

import "strconv"

// Kind tags which variant a Value holds.
type Kind uint8

const (
	// KindString holds an arbitrary byte string.
	KindString Kind = iota
	// KindInt holds a 64-bit signed integer, produced by INCR or by a SET
	// whose payload parsed as a base-10 integer at increment time — never
	// retained as a format across a later SET (spec §3).
	KindInt
)

// Value is the dictionary's tagged variant: either a byte string or an
// integer.
type Value struct {
	Kind Kind
	Str  []byte
	Int  int64
}

// NewStringValue wraps an owned byte slice as a string value.
func NewStringValue(b []byte) Value { return Value{Kind: KindString, Str: b} }

// NewIntValue wraps an integer as an int value.
func NewIntValue(n int64) Value { return Value{Kind: KindInt, Int: n} }

// Bytes returns the value's wire representation: the string bytes as-is,
// or the integer's decimal form. The returned slice for KindInt is freshly
// allocated; for KindString it is the value's own backing array and must
// not be mutated by the caller.
func (v Value) Bytes() []byte {
	if v.Kind == KindInt {
		return strconv.AppendInt(nil, v.Int, 10)
	}
	return v.Str
}

// asInt64 returns the value interpreted as a base-10 signed 64-bit
// integer. A KindInt value always succeeds; a KindString value succeeds
// only if its bytes are a valid decimal integer (spec §3: "numeric
// interpretation is lazy").
func (v Value) asInt64() (int64, bool) {
	if v.Kind == KindInt {
		return v.Int, true
	}
	return parseDecimalInt64(v.Str)
}

// parseDecimalInt64 parses a signed base-10 integer, rejecting anything
// strconv.ParseInt would also reject (leading/trailing junk, empty input,
// out-of-range magnitude) without going through string conversion.
func parseDecimalInt64(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	neg := false
	i := 0
	if b[0] == '-' || b[0] == '+' {
		neg = b[0] == '-'
		i = 1
		if len(b) == i {
			return 0, false
		}
	}
	var n uint64
	for ; i < len(b); i++ {
		d := b[i] - '0'
		if d > 9 {
			return 0, false
		}
		if n > (1<<64-1-uint64(d))/10 {
			return 0, false
		}
		n = n*10 + uint64(d)
	}
	if neg {
		if n > 1<<63 {
			return 0, false
		}
		return -int64(n), true
	}
	if n > 1<<63-1 {
		return 0, false
	}
	return int64(n), true
}
