package resp

import "errors"

// ErrNeedMore is a control-flow signal, not a protocol error: the buffer
// holds a prefix of a valid frame and the caller must read more bytes
// before retrying TryParseFrame at the same cursor.
var ErrNeedMore = errors.New("resp: need more data")

// Protocol error kinds (spec §7). The reactor answers any of them with the
// fixed reply "-ERR Protocol error" and closes the connection; the text
// below is not sent to the client. Each is a distinct sentinel so callers
// can errors.Is against a specific kind instead of string-matching.
var (
	// ErrProtocolMalformed covers non-digit lengths, missing CRLF where
	// required, an unterminated simple-string/error/integer line, or any
	// other structurally invalid frame.
	ErrProtocolMalformed = errors.New("resp: protocol error")

	// ErrFrameTooLarge reports a declared length (array count or bulk
	// string length) exceeding the configured cap.
	ErrFrameTooLarge = errors.New("resp: frame too large")

	// ErrUnexpectedType reports a top-level frame that is not an array of
	// bulk strings, which is the only shape a client may send as a command.
	ErrUnexpectedType = errors.New("resp: unexpected type")
)
