// Package server is the composition root: it wires the Dictionary, AOF
// Writer, Command Executor, and one Reactor per configured core into a
// running Ignix instance (spec §2 "Data flow per request").
package server

import (
	"runtime"
	"time"

	"github.com/ignix-db/ignix/internal/reactor"
	"github.com/ignix-db/ignix/internal/resp"
)

// Config gathers every tunable named in SPEC_FULL.md §1.3, funneled here
// from cmd/ignixd's flags.
type Config struct {
	// Addr is the TCP address every reactor's reuse-port listener binds
	// to. Default ":7379" (spec §6).
	Addr string

	// AOFPath is the append-only log file. Default "ignix.aof" (spec §6).
	AOFPath string

	// ShardCount must be a power of two (spec §3). Default 64.
	ShardCount int

	// ReactorCount is how many reuse-port listeners to open. Default
	// runtime.NumCPU() (spec §4.E "Topology").
	ReactorCount int

	// FsyncInterval is the AOF Writer's periodic fsync cadence. Default
	// 1 second (spec §4.D).
	FsyncInterval time.Duration

	// AOFQueueSize bounds the AOF Writer's record channel (spec §4.D
	// "Backpressure"). Default 4096.
	AOFQueueSize int

	// MaxFrameBytes caps a single bulk string's declared length (spec §4.A
	// "Error kinds raised": ProtocolFrameTooLarge). Default 512 MiB,
	// matching resp.DefaultLimits. Array element counts are capped
	// separately at 1<<20 and are not affected by this field.
	MaxFrameBytes int

	// MaxFramesPerEvent bounds per-connection fairness (spec §4.E).
	MaxFramesPerEvent int
}

// WithDefaults fills unset fields with the values given in SPEC_FULL.md
// §1.3.
func (c Config) WithDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":7379"
	}
	if c.AOFPath == "" {
		c.AOFPath = "ignix.aof"
	}
	if c.ShardCount <= 0 {
		c.ShardCount = 64
	}
	if c.ReactorCount <= 0 {
		c.ReactorCount = runtime.NumCPU()
	}
	if c.FsyncInterval <= 0 {
		c.FsyncInterval = time.Second
	}
	if c.AOFQueueSize <= 0 {
		c.AOFQueueSize = 4096
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = 512 * 1024 * 1024
	}
	if c.MaxFramesPerEvent <= 0 {
		c.MaxFramesPerEvent = 256
	}
	return c
}

func (c Config) limits() resp.Limits {
	return resp.Limits{MaxBulkLen: c.MaxFrameBytes, MaxArrayLen: 1 << 20}
}

func (c Config) reactorConfig() reactor.Config {
	return reactor.Config{
		Addr:              c.Addr,
		Limits:            c.limits(),
		MaxFramesPerEvent: c.MaxFramesPerEvent,
	}
}
