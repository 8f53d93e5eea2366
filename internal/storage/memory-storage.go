package storage

import (
	"context"
	"fmt"
	"sync"
)

// memoryStorage keeps image payloads in process memory. Suitable for
// single-box deployments and tests; the snapshot degrades to non-durable
// across restarts, which remains within the store's best-effort contract.
type memoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStorage() Storage {
	return &memoryStorage{
		objects: make(map[string][]byte),
	}
}

func (s *memoryStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *memoryStorage) Download(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.objects[key]
	if !exists {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return append([]byte(nil), data...), nil
}

func (s *memoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}
