package flagstore

import (
	"context"
	"sync"
)

var _ Store = &MemoryStore{}

// MemoryStore keeps flags in process memory. Flags never expire.
type MemoryStore struct {
	mu    sync.Mutex
	flags map[string]map[Flag]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flags: make(map[string]map[Flag]string)}
}

func (s *MemoryStore) Set(_ context.Context, session string, flag Flag, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.flags[session]
	if !ok {
		m = make(map[Flag]string)
		s.flags[session] = m
	}
	m[flag] = value
	return nil
}

func (s *MemoryStore) Get(_ context.Context, session string) (map[Flag]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[Flag]string, len(s.flags[session]))
	for f, v := range s.flags[session] {
		out[f] = v
	}
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, session string, flags ...Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(flags) == 0 {
		delete(s.flags, session)
		return nil
	}
	m := s.flags[session]
	for _, f := range flags {
		delete(m, f)
	}
	if len(m) == 0 {
		delete(s.flags, session)
	}
	return nil
}
