package server

import (
	"sync"

	"github.com/rsms/go-log"

	"github.com/ignix-db/ignix/internal/aof"
	"github.com/ignix-db/ignix/internal/dict"
	"github.com/ignix-db/ignix/internal/exec"
	"github.com/ignix-db/ignix/internal/reactor"
	"github.com/ignix-db/ignix/internal/resp"
)

// Server is the fully wired Ignix instance: one Dictionary, one AOF
// Writer, one Executor shared by every reactor, and one Reactor per
// configured core (spec §9 "Global mutable state": "an explicitly
// constructed object passed to each reactor at startup").
type Server struct {
	cfg      Config
	logger   *log.Logger
	dict     *dict.Dictionary
	aof      *aof.Writer
	executor *exec.Executor
	reactors []*reactor.Reactor

	serveWG   sync.WaitGroup
	serveErrs chan error
}

// New constructs a Server: builds the dictionary, replays any existing
// AOF into it, opens the AOF writer for new mutations, and opens one
// reuse-port listener per reactor. The listeners are open and accepting
// by the time New returns; call Serve to start processing.
func New(cfg Config, logger *log.Logger) (*Server, error) {
	cfg = cfg.WithDefaults()

	d, err := dict.New(cfg.ShardCount)
	if err != nil {
		return nil, err
	}

	replayExecutor := exec.New(d, nil)
	applied, err := aof.ReplayFile(cfg.AOFPath, cfg.limits(), func(cmd resp.Command) error {
		replayExecutor.Execute(cmd, nil)
		return nil
	}, logger)
	if err != nil {
		return nil, err
	}
	if logger != nil && applied > 0 {
		logger.Info("replayed %d record(s) from %s", applied, cfg.AOFPath)
	}

	writer, err := aof.Open(aof.Config{
		Path:          cfg.AOFPath,
		QueueSize:     cfg.AOFQueueSize,
		FsyncInterval: cfg.FsyncInterval,
	}, logger)
	if err != nil {
		return nil, err
	}

	executor := exec.New(d, writer)

	rcfg := cfg.reactorConfig()
	rcfg.Logger = logger
	rcfg.Executor = executor

	reactors := make([]*reactor.Reactor, 0, cfg.ReactorCount)
	for i := 0; i < cfg.ReactorCount; i++ {
		r, err := reactor.New(i, rcfg)
		if err != nil {
			for _, started := range reactors {
				started.Shutdown()
			}
			writer.Close()
			return nil, err
		}
		reactors = append(reactors, r)
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		dict:      d,
		aof:       writer,
		executor:  executor,
		reactors:  reactors,
		serveErrs: make(chan error, len(reactors)),
	}

	// If the AOF writer exhausts its retry-with-backoff policy and gives up
	// persisting, Ignix can no longer honor its durability contract for new
	// mutations; the server shuts itself down rather than keep serving
	// writes it can't record (spec §7 AofWriteFailed).
	go func() {
		if err, ok := <-writer.Fatal(); ok {
			if logger != nil {
				logger.Error("aof writer failed persistently, shutting down: %v", err)
			}
			s.Shutdown()
		}
	}()

	return s, nil
}

// Serve runs every reactor's accept loop until Shutdown is called. It
// returns the first non-nil error encountered by any reactor, if any.
func (s *Server) Serve() error {
	for _, r := range s.reactors {
		r := r
		s.serveWG.Add(1)
		go func() {
			defer s.serveWG.Done()
			if err := r.Serve(); err != nil {
				s.serveErrs <- err
			}
		}()
	}
	s.serveWG.Wait()
	select {
	case err := <-s.serveErrs:
		return err
	default:
		return nil
	}
}

// Shutdown stops every reactor from accepting new connections, giving each
// reactor's open connections a grace period to end (see
// reactor.Reactor.Shutdown; connections are not closed by it), then drains
// and fsyncs the AOF writer (spec §5 "Cancellation & timeouts"). It is
// safe to call once.
func (s *Server) Shutdown() error {
	for _, r := range s.reactors {
		if err := r.Shutdown(); err != nil && s.logger != nil {
			s.logger.Warn("reactor shutdown: %v", err)
		}
	}
	return s.aof.Close()
}

// Dictionary exposes the shared dictionary, primarily for tests that want
// to assert on server state directly rather than through the wire
// protocol.
func (s *Server) Dictionary() *dict.Dictionary { return s.dict }

// Addr returns the first reactor's bound address, for tests that bind to
// port 0 and need to discover the actual listening port.
func (s *Server) Addr() string { return s.reactors[0].Addr().String() }
