package memory

import (
	"context"
	"encoding/json"
	"sync"
)

// KVStore is an in-memory implementation of app.LocalStore. Values are kept
// JSON-encoded so callers never share memory with the store.
type KVStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewKVStore() *KVStore {
	return &KVStore{values: make(map[string][]byte)}
}

func (s *KVStore) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (s *KVStore) SetJSON(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.values[key] = raw
	s.mu.Unlock()
	return nil
}

func (s *KVStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}
