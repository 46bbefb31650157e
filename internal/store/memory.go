package store

import (
	"context"
	"sync"

	"github.com/dmitrop/storeflight/internal/common"
)

// MemoryStore is an in-memory ArtifactStore used by tests and dry runs.
// It records commit messages so callers can assert on mutation counts.
type MemoryStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	Commits []string
	Pulls   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (s *MemoryStore) CloneOrPull(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Pulls++
	return nil
}

func (s *MemoryStore) FileExists(path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[path]
	return ok, nil
}

func (s *MemoryStore) ReadFile(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) WriteFile(path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) CommitAndPush(ctx context.Context, message string, push bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Commits = append(s.Commits, message)
	return nil
}

func (s *MemoryStore) SetRemote(url string) error { return nil }

var _ ArtifactStore = (*MemoryStore)(nil)
