// Package pending holds file paths handed to the process on the command line
// until the UI collects them.
//
// The store is filled once at startup from launch arguments, appended to by
// the single-instance relay, and emptied by Drain. Once drained it stays
// empty until new paths arrive.
package pending

import "sync"

// Store is a mutex-guarded list of paths. No lock is held across I/O.
type Store struct {
	mu    sync.Mutex
	paths []string
}

// NewStore returns a store seeded with initial, which it copies.
func NewStore(initial []string) *Store {
	s := &Store{}
	s.Append(initial...)
	return s
}

// Set replaces the stored paths.
func (s *Store) Set(paths []string) {
	s.mu.Lock()
	s.paths = append([]string(nil), paths...)
	s.mu.Unlock()
}

// Append adds paths after the ones already stored.
func (s *Store) Append(paths ...string) {
	if len(paths) == 0 {
		return
	}
	s.mu.Lock()
	s.paths = append(s.paths, paths...)
	s.mu.Unlock()
}

// Drain returns every stored path and clears the store. The result is never
// nil, so it serialises as an empty list.
func (s *Store) Drain() []string {
	s.mu.Lock()
	out := s.paths
	s.paths = nil
	s.mu.Unlock()
	if out == nil {
		out = []string{}
	}
	return out
}

// DrainOne is the single-file accessor: it returns the first stored path
// and clears the store.
func (s *Store) DrainOne() (string, bool) {
	paths := s.Drain()
	if len(paths) == 0 {
		return "", false
	}
	return paths[0], true
}

// Len returns the number of stored paths.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}
