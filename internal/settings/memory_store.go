package settings

import (
	"context"
	"sync"
)

// MemoryStore keeps the config in process. It is used when no database is
// available and in tests.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
	Err  error
}

func (s *MemoryStore) Load(_ context.Context) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if s.data == nil {
		return nil, nil
	}
	return Decode(s.data)
}

func (s *MemoryStore) Save(_ context.Context, cfg *Config) error {
	data, err := Encode(cfg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.data = data
	return nil
}
