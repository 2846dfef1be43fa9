package audio

import (
	"os"
	"path/filepath"
	"time"

	gap "github.com/muesli/go-app-paths"
)

// Default engine timings. The queue poll keeps the warm loop responsive to
// Stop without spinning; the process poll bounds how long a terminate or
// skip request can go unnoticed while a clip plays.
const (
	DefaultWorkers     = 2
	DefaultQueuePoll   = 500 * time.Millisecond
	DefaultProcessPoll = 100 * time.Millisecond
	DefaultStopGrace   = time.Second
	DefaultLoopJoin    = 2 * time.Second
)

// Config holds configuration for the audio pipeline.
type Config struct {
	// CacheDir is the flat directory holding downloaded clips.
	CacheDir string
	// Timeout bounds a single download attempt.
	Timeout time.Duration
	// Workers is the size of the download worker pool.
	Workers int
	// Volume is the initial playback volume in [0.0, 1.0].
	Volume float64
	// Player optionally names a player binary, skipping the probe.
	Player string
	// Force re-downloads clips even when cached.
	Force bool

	// QueuePoll is the idle wait of the playback loop.
	QueuePoll time.Duration
	// ProcessPoll is the cancellation check interval during playback.
	ProcessPoll time.Duration
	// StopGrace is how long a terminated subprocess gets before being killed.
	StopGrace time.Duration
	// LoopJoin bounds how long Stop waits for the playback loop to exit.
	LoopJoin time.Duration
}

// DefaultConfig returns a sensible default configuration. The cache lives
// under the user cache scope, falling back to a temp directory.
func DefaultConfig() Config {
	scope := gap.NewScope(gap.User, "stratus-audio")
	dir, err := scope.CacheDir()
	if err != nil || dir == "" {
		dir = filepath.Join(os.TempDir(), "stratus-audio")
	}

	return Config{
		CacheDir:    filepath.Join(dir, "audio"),
		Timeout:     DefaultDownloadTimeout,
		Workers:     DefaultWorkers,
		Volume:      1.0,
		QueuePoll:   DefaultQueuePoll,
		ProcessPoll: DefaultProcessPoll,
		StopGrace:   DefaultStopGrace,
		LoopJoin:    DefaultLoopJoin,
	}
}

// withDefaults fills zero values with defaults so a partially populated
// config behaves.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.QueuePoll <= 0 {
		c.QueuePoll = def.QueuePoll
	}
	if c.ProcessPoll <= 0 {
		c.ProcessPoll = def.ProcessPoll
	}
	if c.StopGrace <= 0 {
		c.StopGrace = def.StopGrace
	}
	if c.LoopJoin <= 0 {
		c.LoopJoin = def.LoopJoin
	}
	return c
}
