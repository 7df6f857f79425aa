package reactor

import (
	"io"
	"net"

	"github.com/rsms/go-uuid"

	"github.com/ignix-db/ignix/internal/resp"
)

// state mirrors spec §4.E's per-connection state machine. In the
// goroutine-per-connection model a connection is never observed in two
// states at once, but tracking the transitions explicitly keeps the
// fairness and error-handling rules traceable to the spec text.
type state uint8

const (
	stateReading state = iota
	stateDraining
	stateClosing
)

// connection holds the per-connection buffers described by spec §3:
// input_buf, output_buf, parse_cursor, and state. Owned exclusively by
// the goroutine running serveConn; never shared across reactors or
// connections.
type connection struct {
	id     string
	conn   net.Conn
	input  resp.Buffer
	output resp.Buffer
	cursor int
	state  state
}

func (r *Reactor) serveConn(c net.Conn) {
	conn := &connection{
		id:    uuid.MustGen().String(),
		conn:  c,
		state: stateReading,
	}
	if r.cfg.Logger != nil {
		r.cfg.Logger.Debug("[%s] accepted connection from %s", conn.id, c.RemoteAddr())
	}
	defer func() {
		if p := recover(); p != nil && r.cfg.Logger != nil {
			r.cfg.Logger.Error("[%s] panic while serving connection: %v", conn.id, p)
		}
		c.Close()
		if r.cfg.Logger != nil {
			r.cfg.Logger.Debug("[%s] closed connection", conn.id)
		}
	}()

	readBuf := make([]byte, r.cfg.ReadBufSize)
	for {
		conn.state = stateReading
		n, err := c.Read(readBuf)
		if n > 0 {
			conn.input.Write(readBuf[:n])
		}
		if err != nil {
			if err != io.EOF && r.cfg.Logger != nil {
				r.cfg.Logger.Debug("[%s] read error: %v", conn.id, err)
			}
			conn.state = stateClosing
			return
		}

		// Drain the resident buffer completely before blocking on the next
		// Read. A single read event can carry more complete commands than
		// MaxFramesPerEvent allows to run in one batch; re-entering
		// processFrames on what's left (rather than falling through to a
		// blocking Read) is what keeps a heavily pipelined client from
		// stalling on its own already-buffered, unanswered commands (spec
		// §4.E "Fairness" bounds one batch, not the whole buffer).
		for {
			ok, capHit := r.processFrames(conn)
			if !ok {
				r.flush(conn)
				conn.state = stateClosing
				return
			}

			conn.input.Discard(conn.cursor)
			conn.cursor = 0

			if conn.output.Len() > 0 {
				conn.state = stateDraining
				if !r.flush(conn) {
					conn.state = stateClosing
					return
				}
			}

			if !capHit {
				break
			}
		}
	}
}

// processFrames decodes and executes up to MaxFramesPerEvent complete
// commands from the resident buffer (spec §4.E "Fairness"). ok is false if
// a protocol error occurred and the connection must close after the caller
// flushes whatever error reply was queued. capHit is true when the loop
// stopped because it hit the fairness cap rather than running out of
// buffered data — signaling the caller that more complete commands may
// still be sitting in the buffer and processFrames should be invoked again
// without waiting on a new Read.
func (r *Reactor) processFrames(conn *connection) (ok bool, capHit bool) {
	for framesThisEvent := 0; framesThisEvent < r.cfg.MaxFramesPerEvent; framesThisEvent++ {
		cmd, next, err := resp.TryParseCommand(conn.input.Bytes(), conn.cursor, r.cfg.Limits)
		if err != nil {
			if err == resp.ErrNeedMore {
				return true, false
			}
			// spec §4.E "Protocol errors": encode -ERR Protocol error,
			// flush best-effort, close.
			resp.EncodeError(&conn.output, "ERR Protocol error")
			return false, false
		}
		raw := conn.input.Bytes()[conn.cursor:next]
		reply := r.cfg.Executor.Execute(cmd, raw)
		resp.EncodeReply(&conn.output, reply)
		conn.cursor = next
	}
	return true, true
}

// flush writes the full output buffer to the socket with a single Write
// call, which for a net.Conn returns only once every byte is written or an
// error occurs (spec §4.E "Draining"), then empties the buffer. It reports
// whether the write succeeded.
func (r *Reactor) flush(conn *connection) bool {
	if conn.output.Len() == 0 {
		return true
	}
	_, err := conn.conn.Write(conn.output.Bytes())
	conn.output.Reset()
	if err != nil {
		if r.cfg.Logger != nil {
			r.cfg.Logger.Debug("[%s] write error: %v", conn.id, err)
		}
		return false
	}
	return true
}
