package aof

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rsms/go-testutil"

	"github.com/ignix-db/ignix/internal/resp"
)

func TestWriterRecordsAndFlushesOnClose(t *testing.T) {
	assert := testutil.NewAssert(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")

	w, err := Open(Config{Path: path, FsyncInterval: time.Hour}, nil)
	assert.Ok("open", err == nil)

	rec1 := []byte("*3\r\n$3\r\nSET\r\n$1\r\na\r\n$1\r\n1\r\n")
	rec2 := []byte("*3\r\n$3\r\nSET\r\n$1\r\nb\r\n$1\r\n2\r\n")
	w.Record(rec1)
	w.Record(rec2)

	assert.Ok("close", w.Close() == nil)

	data, err := os.ReadFile(path)
	assert.Ok("read", err == nil)
	assert.Eq("contents", string(data), string(rec1)+string(rec2))
}

func TestRecordCopiesCallerBuffer(t *testing.T) {
	assert := testutil.NewAssert(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")
	w, _ := Open(Config{Path: path, FsyncInterval: time.Hour}, nil)

	buf := []byte("*1\r\n$4\r\nPING\r\n")
	w.Record(buf)
	// Mutate the caller's buffer after handing it off; the writer must
	// already own a private copy.
	for i := range buf {
		buf[i] = 'X'
	}
	w.Close()

	data, err := os.ReadFile(path)
	assert.Ok("read", err == nil)
	assert.Eq("contents unaffected by later mutation", string(data), "*1\r\n$4\r\nPING\r\n")
}

func TestWriterRetriesThenReportsFatalOnPersistentFailure(t *testing.T) {
	assert := testutil.NewAssert(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")

	w, err := Open(Config{Path: path, FsyncInterval: time.Hour, BatchThreshold: 1}, nil)
	assert.Ok("open", err == nil)

	// Close the file out from under the writer so every subsequent write
	// fails; the writer must retry with backoff rather than silently
	// dropping the batch, then give up and report on Fatal (spec §7
	// AofWriteFailed).
	w.file.Close()
	w.Record([]byte("*1\r\n$4\r\nPING\r\n"))

	select {
	case err := <-w.Fatal():
		assert.Ok("error reported", err != nil)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Fatal after persistent write failure")
	}
}

func TestReplayAppliesRecordsInOrder(t *testing.T) {
	assert := testutil.NewAssert(t)
	data := []byte(
		"*3\r\n$3\r\nSET\r\n$1\r\na\r\n$1\r\n1\r\n" +
			"*2\r\n$4\r\nINCR\r\n$1\r\na\r\n" +
			"*2\r\n$4\r\nINCR\r\n$1\r\na\r\n",
	)
	var seen []string
	applied, err := Replay(data, resp.DefaultLimits, func(cmd resp.Command) error {
		seen = append(seen, string(cmd.Args[0]))
		return nil
	}, nil)
	assert.Ok("no error", err == nil)
	assert.Eq("applied", applied, 3)
	assert.Eq("order0", seen[0], "SET")
	assert.Eq("order1", seen[1], "INCR")
	assert.Eq("order2", seen[2], "INCR")
}

func TestReplayDiscardsTruncatedTrailingRecord(t *testing.T) {
	assert := testutil.NewAssert(t)
	full := "*3\r\n$3\r\nSET\r\n$1\r\na\r\n$1\r\n1\r\n"
	truncated := "*3\r\n$3\r\nSET\r\n$1\r\nb\r\n$3\r\nzz" // cut mid bulk, no trailing CRLF
	data := []byte(full + truncated)

	var seen int
	applied, err := Replay(data, resp.DefaultLimits, func(cmd resp.Command) error {
		seen++
		return nil
	}, nil)
	assert.Ok("no error", err == nil)
	assert.Eq("applied", applied, 1)
	assert.Eq("seen", seen, 1)
}

func TestReplayOnMalformedRecordReturnsCorrupt(t *testing.T) {
	assert := testutil.NewAssert(t)
	data := []byte("*3\r\n$3\r\nSET\r\nnot-a-bulk-string\r\n")
	_, err := Replay(data, resp.DefaultLimits, func(cmd resp.Command) error {
		return nil
	}, nil)
	assert.Ok("error surfaced", err != nil)
	assert.Ok("error is ErrCorrupt", errors.Is(err, ErrCorrupt))
}

func TestReplayFileMissingIsNotAnError(t *testing.T) {
	assert := testutil.NewAssert(t)
	applied, err := ReplayFile(filepath.Join(t.TempDir(), "absent.aof"), resp.DefaultLimits, func(cmd resp.Command) error {
		return nil
	}, nil)
	assert.Ok("no error", err == nil)
	assert.Eq("nothing applied", applied, 0)
}

func TestMetaSidecarRoundTrip(t *testing.T) {
	assert := testutil.NewAssert(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")

	want := meta{Offset: 128, Records: 4, SyncedAt: 1700000000}
	assert.Ok("write", writeMeta(path, want) == nil)

	got, ok := readMeta(path)
	assert.Ok("read ok", ok)
	assert.Eq("offset", got.Offset, want.Offset)
	assert.Eq("records", got.Records, want.Records)
	assert.Eq("synced_at", got.SyncedAt, want.SyncedAt)
}

func TestMetaSidecarMissingIsNotFatal(t *testing.T) {
	assert := testutil.NewAssert(t)
	_, ok := readMeta(filepath.Join(t.TempDir(), "nope.aof"))
	assert.Ok("not ok, not fatal", !ok)
}
