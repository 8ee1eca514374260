package items

import (
	"context"
	"slices"
	"sync"
)

// MemStore keeps items in a slice guarded by a single mutex. Reads take the
// same exclusive lock as writes, so every operation is fully serialized.
type MemStore struct {
	mu    sync.Mutex
	items []Item
}

func NewMemStore() *MemStore {
	return &MemStore{items: []Item{}}
}

func NewStore() Store {
	return NewMemStore()
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) List(ctx context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.items), nil
}

func (s *MemStore) Add(ctx context.Context, it Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, it)
	return nil
}

func (s *MemStore) Update(ctx context.Context, id uint64, name string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Item{}, ErrNotFound
	}
	s.items[i].Name = name
	return s.items[i], nil
}

func (s *MemStore) Delete(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	s.items = slices.Delete(s.items, i, i+1)
	return nil
}

func (s *MemStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items), nil
}

// indexOf returns the position of the first item with id, or -1.
// Callers must hold mu.
func (s *MemStore) indexOf(id uint64) int {
	return slices.IndexFunc(s.items, func(it Item) bool { return it.ID == id })
}
