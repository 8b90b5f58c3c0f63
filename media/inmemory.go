package media

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryStore is a map-backed media store for tests. Foreign URLs can be
// served through FetchFunc; by default they fail.
type InMemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	nextID  int

	// FetchFunc resolves URLs this store did not issue.
	FetchFunc func(ctx context.Context, url string) ([]byte, error)
}

// NewInMemoryStore creates an empty in-memory media store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{objects: make(map[string][]byte)}
}

func (s *InMemoryStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("media: cannot store empty object")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	url := fmt.Sprintf("https://cdn.test/media/%d", s.nextID)
	copied := make([]byte, len(data))
	copy(copied, data)
	s.objects[url] = copied
	return url, nil
}

func (s *InMemoryStore) Get(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	data, ok := s.objects[url]
	s.mu.Unlock()
	if ok {
		copied := make([]byte, len(data))
		copy(copied, data)
		return copied, nil
	}
	if s.FetchFunc != nil {
		return s.FetchFunc(ctx, url)
	}
	return nil, fmt.Errorf("media: object %q not found", url)
}

// Len returns the number of stored objects. Test inspection helper.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
