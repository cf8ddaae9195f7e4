// Package memory provides an in-memory StoragePort for tests and runs that
// opt out of durability.
package memory

import (
	"sort"
	"strings"
	"sync"

	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/ports"
)

type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

func (s *Store) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, domain.ErrStorageClosed
	}

	value, exists := s.data[key]
	if !exists {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (s *Store) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStorageClosed
	}

	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStorageClosed
	}

	delete(s.data, key)
	return nil
}

func (s *Store) ListByPrefix(prefix string) ([]ports.KeyValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, domain.ErrStorageClosed
	}

	var results []ports.KeyValue
	for key, value := range s.data {
		if strings.HasPrefix(key, prefix) {
			results = append(results, ports.KeyValue{
				Key:   key,
				Value: append([]byte(nil), value...),
			})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Key < results[j].Key
	})
	return results, nil
}

func (s *Store) DeleteByPrefix(prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, domain.ErrStorageClosed
	}

	deleted := 0
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			delete(s.data, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
