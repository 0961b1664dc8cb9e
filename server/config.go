package server

import "time"

// Config holds everything cmd/mxg-server needs to start an acceptor: the
// listen address, the on-disk layout, and the server-imposed bounds spec.md
// §4.6 requires.
type Config struct {
	// ListenAddr is the TCP address to accept connections on, e.g. ":5001".
	ListenAddr string
	// IndexDir holds one genome.Index (positions/metadata pair) per
	// assembly this server can answer for.
	IndexDir string
	// MethylomeDir holds the per-sample methylome data/metadata files.
	MethylomeDir string
	// CacheCapacity bounds the number of simultaneously live methylomes
	// (cache.MethylomeSet's C).
	CacheCapacity uint32
	// Workers is the size of the worker pool draining accepted connections;
	// 0 selects runtime.NumCPU().
	Workers int
	// MinBinSize rejects Bins/BinsCovered requests whose bin_size is
	// smaller than this, per spec.md §4.6.
	MinBinSize uint32
	// MaxIntervals rejects Intervals/IntervalsCovered requests whose N
	// exceeds this, per spec.md §4.6.
	MaxIntervals uint32
	// IdleTimeout is the per-connection inactivity deadline; a connection
	// idle longer than this is closed with status ErrInactiveTimeout.
	IdleTimeout time.Duration
	// PIDFile, if non-empty, is created exclusively by the daemonising
	// parent and holds the child's PID (daemon mode only); it is not
	// removed at shutdown.
	PIDFile string
	// LogFile, if non-empty, is where standard streams are redirected when
	// daemonised.
	LogFile string
	// Daemonize requests double-fork/session-detach; only honoured on
	// platforms with a daemon_*.go build.
	Daemonize bool
}

// DefaultConfig returns the server defaults named in spec.md §4.6/§6.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":5001",
		CacheCapacity: 128,
		Workers:       0,
		MinBinSize:    100,
		MaxIntervals:  1 << 20,
		IdleTimeout:   30 * time.Second,
	}
}
