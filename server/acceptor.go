package server

import (
	"context"
	"net"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/andrewdavidsmith/mxg/cache"
	"github.com/andrewdavidsmith/mxg/genome"
)

// Acceptor owns the listening socket, the worker pool, and the shared
// index/cache registry every connection's dispatch step reads from.
// Grounded on original_source/src/server.cpp's accept loop and the
// teacher's grail.Init()/shutdown() process-lifecycle convention (every
// cmd/bio-* main), adapted here to a long-running listener instead of a
// one-shot batch tool.
type Acceptor struct {
	cfg      Config
	reg      *registry
	listener net.Listener

	wg sync.WaitGroup
}

// NewAcceptor builds an Acceptor bound to cfg's backing stores. indexes is
// every genome index this server can answer queries against, keyed by its
// own IndexHash.
func NewAcceptor(cfg Config, indexes []*genome.Index) (*Acceptor, error) {
	byHash := make(map[uint64]*genome.Index, len(indexes))
	for _, idx := range indexes {
		byHash[idx.IndexHash] = idx
	}
	return &Acceptor{
		cfg: cfg,
		reg: &registry{
			indexesByHash: byHash,
			cache:         cache.New(cfg.MethylomeDir, cfg.CacheCapacity),
		},
	}, nil
}

// Run listens on cfg.ListenAddr and serves connections until ctx is
// cancelled or a SIGINT/SIGTERM/SIGQUIT arrives, then drains in-flight
// workers before returning.
func (a *Acceptor) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return errors.E(err, "binding acceptor", a.cfg.ListenAddr)
	}
	a.listener = ln
	log.Info.Printf("mxg: listening on %s", ln.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case sig := <-sigCh:
			log.Info.Printf("mxg: received %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return a.serveOn(ctx, ln)
}

// serveOn runs the accept loop against an already-bound listener, stopping
// when ctx is cancelled. Split out from Run so tests can bind to ":0",
// learn the chosen port, and drive the accept loop without signal-handling
// wired in.
func (a *Acceptor) serveOn(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	workers := a.cfg.Workers
	if workers <= 0 {
		workers = numCPU()
	}
	sem := make(chan struct{}, workers)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				a.wg.Wait()
				return nil
			default:
				log.Error.Printf("mxg: accept error: %v", err)
				continue
			}
		}

		a.wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer a.wg.Done()
			defer func() { <-sem }()
			handleConn(conn, a.reg, a.cfg)
		}()
	}
}

// Addr returns the acceptor's bound address; useful for tests that bind to
// ":0" and need the actual chosen port.
func (a *Acceptor) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

func numCPU() int {
	return runtime.NumCPU()
}
