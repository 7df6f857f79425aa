// Command ignixd runs a standalone Ignix server: flag parsing, logging
// setup, and OS signal handling are the "external collaborators" spec §1
// explicitly places outside the core (Protocol Codec, Dictionary,
// Executor, AOF Writer, Reactor).
package main

import (
	"flag"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/rsms/go-log"

	"github.com/ignix-db/ignix/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", ":7379", "TCP address to listen on")
	aofPath := flag.String("aof", "ignix.aof", "append-only file path")
	shards := flag.Int("shards", 64, "dictionary shard count, must be a power of two")
	reactors := flag.Int("reactors", runtime.NumCPU(), "number of reactor threads (reuse-port listeners)")
	fsyncInterval := flag.Duration("fsync-interval", time.Second, "AOF fsync interval")
	aofQueueSize := flag.Int("aof-queue-size", 4096, "AOF writer bounded queue size")
	maxFrame := flag.Int("max-frame", 512*1024*1024, "maximum declared RESP bulk string length in bytes")
	flag.Parse()

	configureLogging()

	cfg := server.Config{
		Addr:          *addr,
		AOFPath:       *aofPath,
		ShardCount:    *shards,
		ReactorCount:  *reactors,
		FsyncInterval: *fsyncInterval,
		AOFQueueSize:  *aofQueueSize,
		MaxFrameBytes: *maxFrame,
	}

	srv, err := server.New(cfg, log.RootLogger)
	if err != nil {
		log.Error("startup failed: %v", err)
		return 1
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	serveErrc := make(chan error, 1)
	go func() {
		serveErrc <- srv.Serve()
	}()

	select {
	case sig := <-sigc:
		log.Info("received %v, shutting down", sig)
		if err := srv.Shutdown(); err != nil {
			log.Error("shutdown: %v", err)
			return 1
		}
		<-serveErrc
		return 0

	case err := <-serveErrc:
		if err != nil {
			log.Error("reactor error: %v", err)
			srv.Shutdown()
			return 1
		}
		return 0
	}
}

// configureLogging maps IGNIX_LOG (one of "debug", "info", "warn",
// "error") onto go-log's RootLogger, mirroring the entgen CLI's -v/-debug
// flags but driven by environment rather than flags since logging is
// explicitly out of the core spec's scope (spec §1 "Out of scope").
func configureLogging() {
	switch strings.ToLower(os.Getenv("IGNIX_LOG")) {
	case "debug":
		log.RootLogger.Level = log.LevelDebug
	case "info":
		log.RootLogger.Level = log.LevelInfo
	case "error":
		log.RootLogger.Level = log.LevelError
	default:
		log.RootLogger.Level = log.LevelWarn
	}
	log.RootLogger.SetWriter(os.Stderr)
}
