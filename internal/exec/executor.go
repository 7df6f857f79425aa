// Package exec dispatches parsed RESP commands to Dictionary operations and
// produces reply values plus, for mutations, the raw bytes to hand to the
// AOF writer (spec §4.C).
package exec

import (
	"strings"

	"github.com/ignix-db/ignix/internal/dict"
	"github.com/ignix-db/ignix/internal/resp"
)

// Recorder accepts the raw wire bytes of a successfully executed mutation
// for durable logging. Implementations (internal/aof.Writer) must not
// block the caller indefinitely without applying backpressure as
// described by spec §4.D; Executor calls Record once per successfully
// executed mutating command.
type Recorder interface {
	Record(raw []byte)
}

// Executor holds the dependencies needed to run commands: the shared
// dictionary and the AOF sink. It carries no per-connection state and is
// safe for concurrent use by every reactor.
type Executor struct {
	dict *dict.Dictionary
	aof  Recorder
}

// New builds an Executor over d, recording mutations to aof. aof may be
// nil, in which case mutations are executed but never recorded — used by
// AOF replay itself, which must not re-append what it is replaying.
func New(d *dict.Dictionary, aof Recorder) *Executor {
	return &Executor{dict: d, aof: aof}
}

// Execute runs one parsed command and returns its reply. raw must be the
// exact wire bytes of cmd as received (the *N\r\n... array), used verbatim
// as the AOF record for mutating commands (spec §4.C "Mutation
// recording").
func (e *Executor) Execute(cmd resp.Command, raw []byte) resp.Reply {
	if len(cmd.Args) == 0 {
		return resp.ErrReply(replyUnknownCmd)
	}
	name := strings.ToUpper(string(cmd.Args[0]))
	args := cmd.Args[1:]

	switch name {
	case "PING":
		return e.ping(args)
	case "SET":
		return e.set(args, raw)
	case "GET":
		return e.get(args)
	case "DEL":
		return e.del(args, raw)
	case "EXISTS":
		return e.exists(args)
	case "INCR":
		return e.incr(args, raw)
	case "RENAME":
		return e.rename(args, raw)
	case "MGET":
		return e.mget(args)
	case "MSET":
		return e.mset(args, raw)
	default:
		return resp.ErrReply(replyUnknownCmd)
	}
}

func wrongArity(cmd string) resp.Reply {
	return resp.ErrReply("ERR wrong number of arguments for '" + cmd + "' command")
}

func (e *Executor) record(raw []byte) {
	if e.aof != nil {
		e.aof.Record(raw)
	}
}

func (e *Executor) ping(args [][]byte) resp.Reply {
	switch len(args) {
	case 0:
		return resp.Simple("PONG")
	case 1:
		return resp.BulkReply(args[0])
	default:
		return wrongArity("PING")
	}
}

func (e *Executor) set(args [][]byte, raw []byte) resp.Reply {
	if len(args) != 2 {
		return wrongArity("SET")
	}
	key := cloneBytes(args[0])
	val := cloneBytes(args[1])
	e.dict.Set(key, dict.NewStringValue(val))
	e.record(raw)
	return resp.OK()
}

// cloneBytes copies b into storage the dictionary can own. Unlike
// append([]byte(nil), b...), this never collapses a zero-length b back to
// nil: make always returns a non-nil slice, even at length zero, which is
// what lets a SET of an empty value stay distinguishable from an absent
// key (spec §9 Open Question (i)).
func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (e *Executor) get(args [][]byte) resp.Reply {
	if len(args) != 1 {
		return wrongArity("GET")
	}
	v, ok := e.dict.Get(args[0])
	if !ok {
		return resp.NullBulkReply()
	}
	return resp.BulkReply(v.Bytes())
}

func (e *Executor) del(args [][]byte, raw []byte) resp.Reply {
	if len(args) < 1 {
		return wrongArity("DEL")
	}
	n := e.dict.Del(args)
	e.record(raw)
	return resp.IntReply(int64(n))
}

func (e *Executor) exists(args [][]byte) resp.Reply {
	if len(args) < 1 {
		return wrongArity("EXISTS")
	}
	n := e.dict.Exists(args)
	return resp.IntReply(int64(n))
}

func (e *Executor) incr(args [][]byte, raw []byte) resp.Reply {
	if len(args) != 1 {
		return wrongArity("INCR")
	}
	n, err := e.dict.Incr(args[0])
	if err != nil {
		return resp.ErrReply(replyNotAnInteger)
	}
	e.record(raw)
	return resp.IntReply(n)
}

func (e *Executor) rename(args [][]byte, raw []byte) resp.Reply {
	if len(args) != 2 {
		return wrongArity("RENAME")
	}
	if err := e.dict.Rename(args[0], args[1]); err != nil {
		return resp.ErrReply(replyNoSuchKey)
	}
	e.record(raw)
	return resp.OK()
}

func (e *Executor) mget(args [][]byte) resp.Reply {
	if len(args) < 1 {
		return wrongArity("MGET")
	}
	values, present := e.dict.MGet(args)
	items := make([]resp.Reply, len(args))
	for i := range args {
		if present[i] {
			items[i] = resp.BulkReply(values[i].Bytes())
		} else {
			items[i] = resp.NullBulkReply()
		}
	}
	return resp.ArrayReply(items)
}

func (e *Executor) mset(args [][]byte, raw []byte) resp.Reply {
	if len(args) < 2 || len(args)%2 != 0 {
		return resp.ErrReply(replyOddMSet)
	}
	n := len(args) / 2
	keys := make([][]byte, n)
	vals := make([][]byte, n)
	for i := 0; i < n; i++ {
		keys[i] = cloneBytes(args[2*i])
		vals[i] = cloneBytes(args[2*i+1])
	}
	e.dict.MSet(keys, vals)
	e.record(raw)
	return resp.OK()
}
