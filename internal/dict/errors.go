package dict

import "errors"

var (
	// ErrNotAnInteger is returned by Incr when the existing value isn't a
	// base-10 signed 64-bit integer.
	ErrNotAnInteger = errors.New("value is not an integer or out of range")

	// ErrNoSuchKey is returned by Rename when src doesn't exist.
	ErrNoSuchKey = errors.New("no such key")

	// ErrShardCount is returned by New when shardCount isn't a power of two.
	ErrShardCount = errors.New("dict: shard count must be a power of two")
)
