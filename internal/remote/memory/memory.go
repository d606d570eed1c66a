// Package memory is an in-process remote tier used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"fisse/internal/core"
)

type Store struct {
	mu        sync.Mutex
	docs      map[string]map[string][]byte
	reachable bool
	failNext  error
	seq       atomic.Int64

	puts    atomic.Int64
	deletes atomic.Int64
}

func New() *Store {
	return &Store{docs: map[string]map[string][]byte{}, reachable: true}
}

// SetReachable toggles simulated connectivity.
func (s *Store) SetReachable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reachable = ok
}

// FailNext makes the next data call return err even while reachable.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Store) Reachable(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reachable
}

func (s *Store) Get(_ context.Context, collection, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, false, err
	}
	body, ok := s.docs[collection][key]
	if !ok {
		return nil, false, nil
	}
	return clone(body), true, nil
}

func (s *Store) Put(_ context.Context, collection, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if s.docs[collection] == nil {
		s.docs[collection] = map[string][]byte{}
	}
	s.docs[collection][key] = clone(body)
	s.puts.Add(1)
	return nil
}

func (s *Store) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	delete(s.docs[collection], key)
	s.deletes.Add(1)
	return nil
}

func (s *Store) List(_ context.Context, collection string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(s.docs[collection]))
	for k, v := range s.docs[collection] {
		out[k] = clone(v)
	}
	return out, nil
}

func (s *Store) NewID(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return "", err
	}
	return fmt.Sprintf("mem%06d", s.seq.Add(1)), nil
}

// Puts returns how many successful writes the store accepted.
func (s *Store) Puts() int64 { return s.puts.Load() }

func (s *Store) Deletes() int64 { return s.deletes.Load() }

// must hold s.mu
func (s *Store) check() error {
	if !s.reachable {
		return core.ErrRemoteUnavailable
	}
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	return nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
