package aof

import "errors"

var (
	// ErrClosed names the closed-writer condition. Neither Record nor Close
	// returns it: Record has no return value and does nothing once the
	// writer is closed, and Close always returns nil.
	ErrClosed = errors.New("aof: writer is closed")

	// ErrCorrupt is wrapped into the error Replay returns when any record
	// in the log is malformed (as opposed to a truncated trailing record,
	// which is discarded). Startup fails on it (spec §6 exit codes).
	ErrCorrupt = errors.New("aof: corrupt log record")
)
