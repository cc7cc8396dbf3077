package catalog

import (
	"context"

	"github.com/pkg/errors"

	"catalog-browse-service/internal/domain"
)

// Collection is the read primitive the catalog needs from a product store.
// Each call must return a consistent snapshot the caller may keep.
type Collection interface {
	ListAllProducts(ctx context.Context) ([]domain.Product, error)
}

// Service answers list requests by taking one snapshot of the collection and
// running the engine over it.
type Service struct {
	collection Collection
	engine     *Engine
}

// NewService creates a Service over collection.
func NewService(collection Collection, engine *Engine) *Service {
	if engine == nil {
		engine = NewEngine(DefaultPageSize, DefaultMaxPage)
	}
	return &Service{collection: collection, engine: engine}
}

// List returns one page of products matching c.
func (s *Service) List(ctx context.Context, c domain.QueryCriteria) (domain.QueryResult, error) {
	products, err := s.collection.ListAllProducts(ctx)
	if err != nil {
		return domain.QueryResult{}, errors.Wrap(err, "catalog: load products")
	}
	return s.engine.Query(products, c)
}

// PriceBins returns the price histogram of every product matching the filters
// in c. Sorting and paging fields are ignored.
func (s *Service) PriceBins(ctx context.Context, c domain.QueryCriteria, bins int) ([]domain.PriceBin, error) {
	products, err := s.collection.ListAllProducts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: load products")
	}
	return PriceBins(Filter(products, c), bins), nil
}

// Engine exposes the paging limits the service was built with.
func (s *Service) Engine() *Engine {
	return s.engine
}
