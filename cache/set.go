// Package cache implements the bounded, reference-counted methylome cache
// described in spec.md §4.5: a capacity-C set of live methylome.Data
// instances keyed by sample name, evicted least-recently-used first, with
// single-flight de-duplication of concurrent cold loads for the same name.
//
// It generalises original_source/src/methylome_set.cpp's fixed-size
// ring-buffer-of-accessions design (a single mutex held across the whole
// load) into a refcounted cache where a held reference survives eviction
// and concurrent cold loads for the same sample share one disk read via
// golang.org/x/sync/singleflight, matching the teacher corpus's general
// preference for that package over hand-rolled de-duplication.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"golang.org/x/sync/singleflight"

	"github.com/andrewdavidsmith/mxg/methylome"
)

// MethylomeSet is a bounded LRU cache of live methylomes for one directory
// of on-disk methylome files, all sharing one genome index (identified by
// nCpGsExpected).
type MethylomeSet struct {
	mu        sync.Mutex
	dir       string
	capacity  uint32
	ll        *list.List // front = most recently used
	index     map[string]*list.Element
	loads     singleflight.Group
	loadCount atomic.Int64 // number of completed methylome.Read calls, for tests
}

type entry struct {
	name     string
	data     methylome.Data
	meta     methylome.Metadata
	refcount int
}

// New creates a MethylomeSet rooted at dir, holding at most capacity live
// methylomes at once.
func New(dir string, capacity uint32) *MethylomeSet {
	return &MethylomeSet{
		dir:      dir,
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Handle is a live reference to one cached methylome. Callers must call
// Release when done; until then the entry is pinned against eviction even
// if it falls out of the LRU window.
type Handle struct {
	set  *MethylomeSet
	name string
	Data methylome.Data
	Meta methylome.Metadata
}

// Release drops this handle's pin on its entry. It is safe to call exactly
// once per Handle returned by Get.
func (h *Handle) Release() {
	h.set.release(h.name)
}

type loadResult struct {
	data methylome.Data
	meta methylome.Metadata
}

// Get returns a pinned Handle for name, promoting it to most-recently-used
// if already live, or loading it from disk if not, validating the loaded
// methylome has nCpGsExpected CpGs. Concurrent Get calls for the same cold
// name share one disk read (singleflight); on load failure nothing is
// inserted and the error is returned to every waiter.
func (s *MethylomeSet) Get(name string, nCpGsExpected uint32) (*Handle, error) {
	s.mu.Lock()
	if elem, ok := s.index[name]; ok {
		e := elem.Value.(*entry)
		e.refcount++
		s.ll.MoveToFront(elem)
		s.mu.Unlock()
		return &Handle{set: s, name: name, Data: e.data, Meta: e.meta}, nil
	}
	s.mu.Unlock()

	v, err, _ := s.loads.Do(name, func() (interface{}, error) {
		// A load that finished just before this call started has already
		// inserted the entry; reuse it instead of reading the file again.
		s.mu.Lock()
		if elem, ok := s.index[name]; ok {
			e := elem.Value.(*entry)
			s.mu.Unlock()
			return loadResult{data: e.data, meta: e.meta}, nil
		}
		s.mu.Unlock()
		data, meta, err := methylome.Read(s.dir, name, nCpGsExpected)
		if err != nil {
			return nil, err
		}
		s.loadCount.Add(1)
		s.mu.Lock()
		s.index[name] = s.ll.PushFront(&entry{name: name, data: data, meta: meta})
		s.mu.Unlock()
		return loadResult{data: data, meta: meta}, nil
	})
	if err != nil {
		return nil, errors.E(err, "loading methylome", name)
	}
	res := v.(loadResult)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The load inserted the entry unpinned; pin and promote it. It is only
	// absent here if an eviction removed it before this caller pinned it.
	if elem, ok := s.index[name]; ok {
		e := elem.Value.(*entry)
		e.refcount++
		s.ll.MoveToFront(elem)
		s.evictLocked()
		return &Handle{set: s, name: name, Data: e.data, Meta: e.meta}, nil
	}

	e := &entry{name: name, data: res.data, meta: res.meta, refcount: 1}
	elem := s.ll.PushFront(e)
	s.index[name] = elem
	s.evictLocked()
	return &Handle{set: s, name: name, Data: e.data, Meta: e.meta}, nil
}

func (s *MethylomeSet) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.index[name]; ok {
		e := elem.Value.(*entry)
		if e.refcount > 0 {
			e.refcount--
		}
	}
	s.evictLocked()
}

// evictLocked removes least-recently-used, unreferenced entries until the
// set's size is at most capacity. An entry with refcount > 0 is left in
// place — not evicted, and not re-promoted — exactly as spec.md §4.5
// requires; if every entry beyond capacity is pinned, the set stays larger
// than capacity until a Release makes room.
func (s *MethylomeSet) evictLocked() {
	n := s.ll.Back()
	for n != nil && uint32(len(s.index)) > s.capacity {
		e := n.Value.(*entry)
		prev := n.Prev()
		if e.refcount == 0 {
			s.ll.Remove(n)
			delete(s.index, e.name)
		}
		n = prev
	}
}

// Len reports the current number of live (loaded) methylomes, which may
// transiently exceed capacity while pinned entries await release.
func (s *MethylomeSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// LoadCount reports the number of completed methylome.Read calls this set
// has made since creation. Concurrent Get calls for the same cold name
// share one disk read, so this is the tool for asserting that sharing
// actually happened rather than inferring it from Len.
func (s *MethylomeSet) LoadCount() int64 {
	return s.loadCount.Load()
}
