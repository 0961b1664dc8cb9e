// mxg-server serves per-CpG methylation summary queries over mxg's binary
// wire protocol, holding a bounded set of live methylomes in memory and
// backing them with one or more on-disk genome indexes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"

	"github.com/andrewdavidsmith/mxg/genome"
	"github.com/andrewdavidsmith/mxg/server"
)

var (
	listenAddr    = flag.String("listen", ":5001", "TCP address to accept connections on")
	indexDir      = flag.String("index-dir", "", "Directory holding genome index files (required)")
	assemblies    = flag.String("assemblies", "", "Comma-separated list of assembly names to load from -index-dir (required)")
	methylomeDir  = flag.String("methylome-dir", "", "Directory holding methylome data/metadata files (required)")
	cacheCapacity = flag.Uint("cache-capacity", 128, "Maximum number of simultaneously live methylomes")
	workers       = flag.Int("workers", 0, "Worker pool size; 0 selects runtime.NumCPU()")
	minBinSize    = flag.Uint("min-bin-size", 100, "Reject bin queries smaller than this (bp)")
	maxIntervals  = flag.Uint("max-intervals", 1<<20, "Reject interval queries larger than this")
	idleTimeout   = flag.Duration("idle-timeout", 30*time.Second, "Per-connection inactivity timeout")
	daemonize     = flag.Bool("daemonize", false, "Detach and run as a background daemon (Linux only)")
	pidFile       = flag.String("pid-file", "", "PID file to write when daemonised (exclusive create)")
	logFile       = flag.String("log-file", "", "Log file to redirect standard streams to when daemonised")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if *indexDir == "" || *assemblies == "" || *methylomeDir == "" {
		log.Fatalf("mxg-server: -index-dir, -assemblies, and -methylome-dir are required")
	}

	cfg := server.Config{
		ListenAddr:    *listenAddr,
		IndexDir:      *indexDir,
		MethylomeDir:  *methylomeDir,
		CacheCapacity: uint32(*cacheCapacity),
		Workers:       *workers,
		MinBinSize:    uint32(*minBinSize),
		MaxIntervals:  uint32(*maxIntervals),
		IdleTimeout:   *idleTimeout,
		PIDFile:       *pidFile,
		LogFile:       *logFile,
		Daemonize:     *daemonize,
	}

	if cfg.Daemonize {
		isParent, err := server.Daemonize(cfg)
		if err != nil {
			log.Fatalf("mxg-server: daemonisation failed: %v", err)
		}
		if isParent {
			return
		}
	}

	var indexes []*genome.Index
	for _, name := range strings.Split(*assemblies, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		idx, err := genome.Read(cfg.IndexDir, name)
		if err != nil {
			log.Fatalf("mxg-server: loading index %q from %s: %v", name, cfg.IndexDir, err)
		}
		log.Info.Printf("mxg-server: loaded index %q (%d CpGs, hash=%x) from %s",
			name, idx.NCpGsTotal(), idx.IndexHash, filepath.Join(cfg.IndexDir, name))
		indexes = append(indexes, &idx)
	}
	if len(indexes) == 0 {
		log.Fatalf("mxg-server: no valid assemblies given in -assemblies %q", *assemblies)
	}

	acc, err := server.NewAcceptor(cfg, indexes)
	if err != nil {
		log.Fatalf("mxg-server: %v", err)
	}

	if err := acc.Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
