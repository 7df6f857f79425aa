package resp

import "bytes"

// Type identifies the RESP frame kind by its leading byte.
type Type byte

const (
	SimpleString Type = '+'
	ErrorType    Type = '-'
	Integer      Type = ':'
	BulkString   Type = '$'
	Array        Type = '*'
)

// Frame is a single decoded RESP value. Bulk string and simple
// string/error payloads are borrows into the caller's input buffer — the
// caller must copy them before the buffer is reused for a subsequent read.
type Frame struct {
	Type Type

	Str  []byte // SimpleString / ErrorType line content
	Int  int64  // Integer value
	Bulk []byte // BulkString payload; nil when Null is true
	Null bool   // BulkString or Array "null" variant ($-1 / *-1)
	Items []Frame // Array elements
}

// Limits bounds how much a single frame may declare, guarding against a
// malicious or buggy peer claiming an enormous length before the bytes to
// back it have even arrived.
type Limits struct {
	MaxBulkLen  int // cap on a single bulk string's declared length
	MaxArrayLen int // cap on a single array's declared element count
}

// DefaultLimits matches the codec's configured frame cap (see
// server.Config.MaxFrameBytes); callers size MaxArrayLen generously since
// array headers are cheap but bulk strings carry the real payload weight.
var DefaultLimits = Limits{
	MaxBulkLen:  512 * 1024 * 1024,
	MaxArrayLen: 1 << 20,
}

// maxLineScan bounds how far readLine searches for a CRLF on frame kinds
// with no declared length (simple string, error, integer, and array/bulk
// headers themselves). It exists only to turn a peer that never sends a
// terminator into ErrProtocolMalformed instead of unbounded buffering.
const maxLineScan = 64 * 1024

// TryParseFrame attempts to decode one complete RESP frame starting at
// buf[cursor:]. It is pure and idempotent: called twice with the same
// bytes it returns the same result, and it never mutates buf. On success
// it returns the decoded frame and a cursor advanced exactly past that
// frame's bytes. When buf holds an incomplete frame it returns
// ErrNeedMore and the cursor unchanged, so the caller can append more
// bytes and retry from the same offset. On a malformed frame it returns a
// protocol error sentinel and the cursor unchanged — callers must not
// resume parsing on this connection after such an error.
func TryParseFrame(buf []byte, cursor int, limits Limits) (Frame, int, error) {
	f, n, err := parseValue(buf[cursor:], limits)
	if err != nil {
		return Frame{}, cursor, err
	}
	return f, cursor + n, nil
}

func parseValue(b []byte, limits Limits) (Frame, int, error) {
	if len(b) == 0 {
		return Frame{}, 0, ErrNeedMore
	}
	switch Type(b[0]) {
	case SimpleString, ErrorType:
		line, n, err := readLine(b[1:])
		if err != nil {
			return Frame{}, 0, err
		}
		return Frame{Type: Type(b[0]), Str: line}, 1 + n, nil

	case Integer:
		line, n, err := readLine(b[1:])
		if err != nil {
			return Frame{}, 0, err
		}
		v, ok := parseInt(line)
		if !ok {
			return Frame{}, 0, ErrProtocolMalformed
		}
		return Frame{Type: Integer, Int: v}, 1 + n, nil

	case BulkString:
		line, n, err := readLine(b[1:])
		if err != nil {
			return Frame{}, 0, err
		}
		length, ok := parseLen(line)
		if !ok {
			return Frame{}, 0, ErrProtocolMalformed
		}
		if length == -1 {
			return Frame{Type: BulkString, Null: true}, 1 + n, nil
		}
		if length > limits.MaxBulkLen {
			return Frame{}, 0, ErrFrameTooLarge
		}
		headerLen := 1 + n
		total := headerLen + length + 2
		if len(b) < total {
			return Frame{}, 0, ErrNeedMore
		}
		payload := b[headerLen : headerLen+length]
		if b[headerLen+length] != '\r' || b[headerLen+length+1] != '\n' {
			return Frame{}, 0, ErrProtocolMalformed
		}
		return Frame{Type: BulkString, Bulk: payload}, total, nil

	case Array:
		line, n, err := readLine(b[1:])
		if err != nil {
			return Frame{}, 0, err
		}
		count, ok := parseLen(line)
		if !ok {
			return Frame{}, 0, ErrProtocolMalformed
		}
		if count == -1 {
			return Frame{Type: Array, Null: true}, 1 + n, nil
		}
		if count > limits.MaxArrayLen {
			return Frame{}, 0, ErrFrameTooLarge
		}
		offset := 1 + n
		var items []Frame
		if count > 0 {
			items = make([]Frame, count)
		}
		for i := 0; i < count; i++ {
			item, consumed, err := parseValue(b[offset:], limits)
			if err != nil {
				return Frame{}, 0, err
			}
			items[i] = item
			offset += consumed
		}
		return Frame{Type: Array, Items: items}, offset, nil

	default:
		return Frame{}, 0, ErrUnexpectedType
	}
}

// readLine scans for a CRLF terminator and returns the content before it
// (excluding the CRLF) and the number of bytes consumed including it.
func readLine(b []byte) (line []byte, consumed int, err error) {
	idx := bytes.IndexByte(b, '\n')
	if idx < 0 {
		if len(b) >= maxLineScan {
			return nil, 0, ErrProtocolMalformed
		}
		return nil, 0, ErrNeedMore
	}
	if idx == 0 || b[idx-1] != '\r' {
		return nil, 0, ErrProtocolMalformed
	}
	return b[:idx-1], idx + 1, nil
}

// parseInt parses a signed base-10 integer without going through
// strconv/fmt. The digit test `c-'0' <= 9` (unsigned byte arithmetic)
// collapses what would otherwise be two branches (`c >= '0' && c <= '9'`)
// into one, which matters here because this runs on every inbound length
// and integer field.
func parseInt(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	neg := false
	if b[0] == '-' || b[0] == '+' {
		neg = b[0] == '-'
		b = b[1:]
		if len(b) == 0 {
			return 0, false
		}
	}
	var n uint64
	for _, c := range b {
		d := c - '0'
		if d > 9 {
			return 0, false
		}
		n = n*10 + uint64(d)
	}
	if neg {
		return -int64(n), true
	}
	if n > 1<<63-1 {
		return 0, false
	}
	return int64(n), true
}

// parseLen parses a RESP length field, which is either a non-negative
// decimal or exactly "-1" (the null-bulk/null-array marker).
func parseLen(b []byte) (int, bool) {
	v, ok := parseInt(b)
	if !ok {
		return 0, false
	}
	if v < -1 || v > 1<<31-1 {
		return 0, false
	}
	return int(v), true
}
