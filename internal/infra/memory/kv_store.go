package memory

import (
	"context"
	"sync"

	"amc-progress-service/internal/app"
)

// KVStore is an in-memory implementation of app.KVStore for one namespace.
type KVStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewKVStore() *KVStore {
	return &KVStore{values: make(map[string][]byte)}
}

// NewStoreFactory returns an app.StoreFactory handing out one in-memory
// store per namespace.
func NewStoreFactory() app.StoreFactory {
	var mu sync.Mutex
	stores := make(map[string]*KVStore)
	return func(namespace string) (app.KVStore, error) {
		mu.Lock()
		defer mu.Unlock()
		if s, ok := stores[namespace]; ok {
			return s, nil
		}
		s := NewKVStore()
		stores[namespace] = s
		return s, nil
	}
}

func (s *KVStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *KVStore) Put(_ context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range entries {
		s.values[k] = append([]byte(nil), v...)
	}
	return nil
}

func (s *KVStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string][]byte)
	return nil
}
