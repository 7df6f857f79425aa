package aof

import (
	"os"

	"github.com/rsms/go-json"
)

// meta is the sidecar `<aof-path>.meta.json` written after every fsync.
// It exists purely as an operator diagnostic (last synced offset, record
// count, and sync time) — it carries no authority over replay, so adding
// it cannot break compatibility with logs written before it existed
// (spec §9 Open Question iii, resolved this way rather than by adding a
// version header to the AOF format itself).
type meta struct {
	Offset    int64
	Records   int64
	SyncedAt  int64
}

func metaPath(aofPath string) string { return aofPath + ".meta.json" }

func writeMeta(aofPath string, m meta) error {
	var c json.Builder
	c.StartObject()
	c.Key("offset")
	c.Int(m.Offset, 64)
	c.Key("records")
	c.Int(m.Records, 64)
	c.Key("synced_at")
	c.Int(m.SyncedAt, 64)
	c.EndObject()
	if c.Err != nil {
		return c.Err
	}
	return os.WriteFile(metaPath(aofPath), c.Bytes(), 0o644)
}

// readMeta is best-effort: a missing or unparsable sidecar is not an
// error, it just means no prior diagnostic snapshot is available.
func readMeta(aofPath string) (m meta, ok bool) {
	data, err := os.ReadFile(metaPath(aofPath))
	if err != nil {
		return meta{}, false
	}
	var r json.Reader
	r.ResetBytes(data)
	if !r.ObjectStart() {
		return meta{}, false
	}
	for {
		key := r.Key()
		if len(key) == 0 {
			break
		}
		switch string(key) {
		case "offset":
			m.Offset = r.Int(64)
		case "records":
			m.Records = r.Int(64)
		case "synced_at":
			m.SyncedAt = r.Int(64)
		default:
			r.Discard()
		}
	}
	if err := r.Err(); err != nil {
		return meta{}, false
	}
	return m, true
}
