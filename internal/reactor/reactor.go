// Package reactor implements the non-blocking event loop that accepts
// connections, drives the RESP codec, and invokes the executor (spec
// §4.E). Each Reactor opens its own listening socket on a shared port via
// SO_REUSEPORT, letting the kernel spread incoming connections across
// reactors without any coordination between them.
//
// Go's net package already multiplexes reads and writes through the
// runtime's integrated netpoller (an epoll/kqueue loop under the hood),
// so a goroutine blocked in conn.Read or conn.Write is, from the OS's
// point of view, parked exactly where spec §5 says a reactor thread may
// suspend: "only on the OS poll call while idle." One goroutine per
// connection is this design's reactor loop; Reading/Draining/Closing are
// still tracked explicitly below because the fairness and protocol-error
// rules in spec §4.E are expressed in terms of them.
package reactor

import (
	"context"
	"net"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rsms/go-log"
	"golang.org/x/sys/unix"

	"github.com/ignix-db/ignix/internal/exec"
	"github.com/ignix-db/ignix/internal/resp"
)

// Config controls one Reactor's behavior. All fields are read-only after
// New.
type Config struct {
	Addr    string
	Limits  resp.Limits
	Logger  *log.Logger
	Executor *exec.Executor

	// MaxFramesPerEvent bounds how many complete commands a single read
	// event may execute in one batch before the connection's output is
	// flushed and the next batch of already-buffered commands starts, so
	// one heavily pipelined connection cannot starve its own writer (spec
	// §4.E "Fairness").
	MaxFramesPerEvent int

	// ReadBufSize is the size of the scratch buffer used for each
	// conn.Read call.
	ReadBufSize int
}

func (c Config) withDefaults() Config {
	if c.MaxFramesPerEvent <= 0 {
		c.MaxFramesPerEvent = 256
	}
	if c.ReadBufSize <= 0 {
		c.ReadBufSize = 64 * 1024
	}
	return c
}

// Reactor owns one reuse-port listener and the goroutines serving the
// connections accepted on it.
type Reactor struct {
	id       int
	cfg      Config
	listener net.Listener
	wg       sync.WaitGroup
}

// New opens a SO_REUSEPORT listener on cfg.Addr for reactor id. Every
// Reactor sharing the same addr across a process (or across processes)
// lets the kernel load-balance accepted connections between them (spec
// §4.E "Topology").
func New(id int, cfg Config) (*Reactor, error) {
	cfg = cfg.withDefaults()
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	ln, err := lc.Listen(context.Background(), "tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	return &Reactor{id: id, cfg: cfg, listener: ln}, nil
}

// Addr returns the reactor's bound listening address, chiefly useful in
// tests that bind to port 0 and need to discover the actual port.
func (r *Reactor) Addr() net.Addr { return r.listener.Addr() }

// Serve accepts connections until the listener is closed by Shutdown. It
// returns nil when the listener closes cleanly as part of shutdown.
func (r *Reactor) Serve() error {
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			if isClosedErr(err) {
				return nil
			}
			return err
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.serveConn(conn)
		}()
	}
}

// Shutdown closes the listener, so no new connections are accepted, and
// then waits up to five seconds for every connection it already accepted
// to end. It does not close those connections itself: a connection whose
// peer keeps it open is still being served when Shutdown returns after
// the grace period.
func (r *Reactor) Shutdown() error {
	err := r.listener.Close()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		if r.cfg.Logger != nil {
			r.cfg.Logger.Warn("reactor %d: connections still draining after grace period", r.id)
		}
	}
	return err
}

func isClosedErr(err error) bool {
	ne, ok := err.(*net.OpError)
	return ok && ne.Err.Error() == "use of closed network connection"
}

func defaultGOMAXPROCSReactorCount() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}

// DefaultReactorCount returns the number of reactors SPEC_FULL.md's
// -reactors flag defaults to when unset: one per available core (spec
// §4.E "Topology").
func DefaultReactorCount() int { return defaultGOMAXPROCSReactorCount() }
