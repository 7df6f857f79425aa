package aof

import (
	"fmt"
	"os"

	"github.com/rsms/go-log"

	"github.com/ignix-db/ignix/internal/resp"
)

// ReplayFile reads the AOF at path (if it exists) front-to-back and hands
// each decoded command to apply, in file order, before the listener opens
// (spec §4.D "Replay"). A missing file is not an error — it just means
// there is nothing to recover. The number of records successfully applied
// is always returned, even alongside a non-nil error, so callers can log
// partial progress.
func ReplayFile(path string, limits resp.Limits, apply func(cmd resp.Command) error, logger *log.Logger) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return Replay(data, limits, apply, logger)
}

// Replay parses consecutive top-level RESP arrays out of data and applies
// each in order. A truncated trailing record — one that would need more
// bytes than data has left — is discarded with a warning naming its byte
// offset and record index (spec §4.D); any other malformed record is
// fatal and reported as ErrCorrupt, since it indicates the log itself is
// damaged rather than merely cut short by a crash mid-write.
func Replay(data []byte, limits resp.Limits, apply func(cmd resp.Command) error, logger *log.Logger) (applied int, err error) {
	cursor := 0
	index := 0
	for cursor < len(data) {
		cmd, next, perr := resp.TryParseCommand(data, cursor, limits)
		if perr != nil {
			if perr == resp.ErrNeedMore {
				if logger != nil {
					logger.Warn("aof: discarding truncated trailing record at offset %d (record #%d)", cursor, index)
				}
				break
			}
			return applied, fmt.Errorf("%w: record #%d at offset %d: %v", ErrCorrupt, index, cursor, perr)
		}
		if err := apply(cmd); err != nil {
			return applied, fmt.Errorf("aof: replay of record #%d at offset %d failed: %w", index, cursor, err)
		}
		applied++
		index++
		cursor = next
	}
	return applied, nil
}
