package store

import (
	"context"
	"sync"

	"catalog-browse-service/internal/domain"
)

// MemoryStore keeps the collection in process memory. It is the default store
// for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	products []domain.Product
	index    map[int64]int // id -> position in products
}

// NewMemoryStore creates a store holding products in the given order.
func NewMemoryStore(products ...domain.Product) *MemoryStore {
	s := &MemoryStore{index: make(map[int64]int)}
	s.upsertLocked(products)
	return s
}

// ListAllProducts returns a copy of the collection, so later upserts never
// change a snapshot already handed out.
func (s *MemoryStore) ListAllProducts(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, len(s.products))
	copy(out, s.products)
	return out, nil
}

func (s *MemoryStore) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	p := s.products[i]
	return &p, nil
}

func (s *MemoryStore) UpsertProducts(ctx context.Context, products []domain.Product) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(products)
	return len(products), nil
}

func (s *MemoryStore) upsertLocked(products []domain.Product) {
	for _, p := range products {
		if i, ok := s.index[p.ID]; ok {
			s.products[i] = p
			continue
		}
		s.index[p.ID] = len(s.products)
		s.products = append(s.products, p)
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
