package resp

import (
	"bytes"
	"testing"

	"github.com/rsms/go-testutil"
)

func TestTryParseCommandPing(t *testing.T) {
	assert := testutil.NewAssert(t)
	b := []byte("*1\r\n$4\r\nPING\r\n")
	cmd, cursor, err := TryParseCommand(b, 0, DefaultLimits)
	assert.Ok("no error", err == nil)
	assert.Eq("cursor", cursor, len(b))
	assert.Eq("argc", len(cmd.Args), 1)
	assert.Eq("name", string(cmd.Args[0]), "PING")
}

func TestTryParseCommandSet(t *testing.T) {
	assert := testutil.NewAssert(t)
	b := []byte("*3\r\n$3\r\nSET\r\n$5\r\nhello\r\n$5\r\nworld\r\n")
	cmd, cursor, err := TryParseCommand(b, 0, DefaultLimits)
	assert.Ok("no error", err == nil)
	assert.Eq("cursor", cursor, len(b))
	assert.Eq("argc", len(cmd.Args), 3)
	assert.Eq("arg0", string(cmd.Args[0]), "SET")
	assert.Eq("arg1", string(cmd.Args[1]), "hello")
	assert.Eq("arg2", string(cmd.Args[2]), "world")
}

// Streaming equivalence (spec §8 property 1): splitting a byte sequence at
// any offset and feeding it in two calls yields the same frame as feeding
// it all at once, with no side effects of the partial attempt.
func TestStreamingEquivalence(t *testing.T) {
	assert := testutil.NewAssert(t)
	full := []byte("*3\r\n$3\r\nSET\r\n$5\r\nhello\r\n$5\r\nworld\r\n")

	wantCmd, wantCursor, wantErr := TryParseCommand(full, 0, DefaultLimits)
	assert.Ok("whole-buffer parse succeeds", wantErr == nil)

	for split := 0; split <= len(full); split++ {
		first := full[:split]
		cmd, cursor, err := TryParseCommand(first, 0, DefaultLimits)
		if err == ErrNeedMore {
			// feed the rest and retry from the same cursor (0, since no
			// partial progress is ever committed)
			cmd, cursor, err = TryParseCommand(full, 0, DefaultLimits)
		}
		assert.Ok("split parse succeeds", err == nil)
		assert.Eq("split cursor matches", cursor, wantCursor)
		assert.Eq("split argc matches", len(cmd.Args), len(wantCmd.Args))
	}
}

func TestNeedMoreLeavesCursorUnchanged(t *testing.T) {
	assert := testutil.NewAssert(t)
	partial := []byte("*3\r\n$3\r\nSET\r\n$5\r\nhel")
	_, cursor, err := TryParseCommand(partial, 0, DefaultLimits)
	assert.Eq("err is NeedMore", err, ErrNeedMore)
	assert.Eq("cursor unchanged", cursor, 0)
}

func TestMalformedLength(t *testing.T) {
	assert := testutil.NewAssert(t)
	bad := []byte("*1\r\n$x\r\nPING\r\n")
	_, _, err := TryParseCommand(bad, 0, DefaultLimits)
	assert.Eq("malformed", err, ErrProtocolMalformed)
}

func TestUnexpectedTopLevelType(t *testing.T) {
	assert := testutil.NewAssert(t)
	bad := []byte("+hello\r\n")
	_, _, err := TryParseCommand(bad, 0, DefaultLimits)
	assert.Eq("unexpected type", err, ErrUnexpectedType)
}

func TestFrameTooLarge(t *testing.T) {
	assert := testutil.NewAssert(t)
	limits := Limits{MaxBulkLen: 4, MaxArrayLen: 16}
	b := []byte("*1\r\n$10\r\n0123456789\r\n")
	_, _, err := TryParseCommand(b, 0, limits)
	assert.Eq("too large", err, ErrFrameTooLarge)
}

// Bounded consumption (spec §8 property 3): the cursor must never advance
// past the boundary of a fully-validated frame, even when trailing bytes
// (the start of the next command) are already present in the buffer.
func TestBoundedConsumption(t *testing.T) {
	assert := testutil.NewAssert(t)
	b := []byte("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n")
	_, cursor, err := TryParseCommand(b, 0, DefaultLimits)
	assert.Ok("no error", err == nil)
	assert.Eq("cursor stops at first frame", cursor, 14)
	assert.Ok("remainder intact", bytes.Equal(b[cursor:], b[14:]))
}

func TestNullBulkAndNullArray(t *testing.T) {
	assert := testutil.NewAssert(t)
	f, _, err := TryParseFrame([]byte("$-1\r\n"), 0, DefaultLimits)
	assert.Ok("no error", err == nil)
	assert.Ok("null bulk", f.Type == BulkString && f.Null)

	f, _, err = TryParseFrame([]byte("*-1\r\n"), 0, DefaultLimits)
	assert.Ok("no error", err == nil)
	assert.Ok("null array", f.Type == Array && f.Null)
}

func TestEmptyBulkString(t *testing.T) {
	assert := testutil.NewAssert(t)
	// §9 Open Question (i): SET accepts an empty bulk string value as-is.
	f, cursor, err := TryParseFrame([]byte("$0\r\n\r\n"), 0, DefaultLimits)
	assert.Ok("no error", err == nil)
	assert.Eq("cursor", cursor, 6)
	assert.Eq("empty payload", len(f.Bulk), 0)
}
