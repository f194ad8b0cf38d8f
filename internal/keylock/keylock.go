// Package keylock serializes work per string key. One Set is shared by every
// component that writes the same call ids.
package keylock

import (
	"sort"
	"sync"
)

// Set hands out one mutex per key and forgets it once nobody holds or waits
// on it, so unrelated keys never contend. The zero value is ready to use.
type Set struct {
	mu sync.Mutex
	m  map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func New() *Set {
	return &Set{}
}

// Lock takes every key in sorted order, so two callers locking overlapping
// keys cannot deadlock. Empty and repeated keys are skipped.
func (s *Set) Lock(keys ...string) (unlock func()) {
	keys = normalize(keys)
	held := make([]func(), 0, len(keys))
	for _, k := range keys {
		held = append(held, s.lockOne(k))
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
}

func (s *Set) lockOne(key string) func() {
	s.mu.Lock()
	if s.m == nil {
		s.m = make(map[string]*entry)
	}
	e, ok := s.m[key]
	if !ok {
		e = &entry{}
		s.m[key] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		s.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(s.m, key)
		}
		s.mu.Unlock()
	}
}

// Len is the number of keys currently held or waited on.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	uniq := out[:0]
	for i, k := range out {
		if i == 0 || k != out[i-1] {
			uniq = append(uniq, k)
		}
	}
	return uniq
}
