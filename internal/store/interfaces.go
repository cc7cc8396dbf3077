package store

import (
	"context"

	"catalog-browse-service/internal/domain"
)

// ProductLister returns a consistent snapshot of the whole collection in
// insertion order. Callers own the returned slice.
type ProductLister interface {
	ListAllProducts(ctx context.Context) ([]domain.Product, error)
}

// ProductStorer defines the operations the service needs from a product store.
type ProductStorer interface {
	ProductLister
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	// UpsertProducts replaces records wholesale by id; new ids are appended.
	UpsertProducts(ctx context.Context, products []domain.Product) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
