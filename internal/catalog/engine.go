package catalog

import (
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"catalog-browse-service/internal/domain"
)

// ErrInvalidCriteria is returned for structurally malformed criteria, such as an
// ordering on a field the catalog does not know.
var ErrInvalidCriteria = errors.New("catalog: invalid criteria")

const (
	DefaultPageSize = 20
	DefaultMaxPage  = 100
)

// Engine filters, sorts and paginates a product collection. It holds no state
// besides its paging limits and is safe for concurrent use.
//
// Paging policy: Page < 1 is clamped to 1. PageSize < 1 falls back to
// DefaultPageSize and PageSize > MaxPageSize is capped at MaxPageSize.
type Engine struct {
	DefaultPageSize int
	MaxPageSize     int
}

// NewEngine returns an Engine with the given paging limits. Non-positive values
// fall back to the package defaults.
func NewEngine(defaultPageSize, maxPageSize int) *Engine {
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPage
	}
	if defaultPageSize > maxPageSize {
		defaultPageSize = maxPageSize
	}
	return &Engine{DefaultPageSize: defaultPageSize, MaxPageSize: maxPageSize}
}

// Query applies criteria to products and returns the requested page together
// with the size of the whole filtered set. products is only read.
// An out-of-range page is not an error: it yields no items and the true count.
func (e *Engine) Query(products []domain.Product, c domain.QueryCriteria) (domain.QueryResult, error) {
	if !c.Sort.IsZero() && !knownField(c.Sort.Field) {
		return domain.QueryResult{}, errors.Wrapf(ErrInvalidCriteria, "unknown sort field %q", c.Sort.Field)
	}

	page, pageSize := e.clamp(c.Page, c.PageSize)

	// Filter into a private slice so the count and the page come from the same set.
	filtered := Filter(products, c)
	if !c.Sort.IsZero() {
		Sort(filtered, c.Sort)
	}

	total := len(filtered)
	result := domain.QueryResult{
		Items:      []domain.Product{},
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}

	// Compare page numbers rather than offsets so huge pages or page sizes
	// cannot overflow.
	if total == 0 || page-1 > (total-1)/pageSize {
		return result, nil
	}
	skip := (page - 1) * pageSize
	end := total
	if pageSize < total-skip {
		end = skip + pageSize
	}
	result.Items = filtered[skip:end]
	return result, nil
}

func (e *Engine) clamp(page, pageSize int) (int, int) {
	// A zero-value Engine behaves like NewEngine(0, 0).
	defaultSize, maxSize := e.DefaultPageSize, e.MaxPageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPage
	}
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	if defaultSize > maxSize {
		defaultSize = maxSize
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}

// Filter returns the products matching every bound in c, in collection order.
// The returned slice never aliases products.
func Filter(products []domain.Product, c domain.QueryCriteria) []domain.Product {
	search := strings.ToLower(c.Search)
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if !c.Price.Contains(p.Price) ||
			!c.Rating.Contains(p.Rating) ||
			!c.ReviewsCount.Contains(p.ReviewsCount) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Sort orders products in place by key. Equal keys keep their relative order in
// both directions. A missing sale price sorts as the smallest value.
func Sort(products []domain.Product, key domain.SortKey) {
	type keyed struct {
		product domain.Product
		num     float64
		text    string
	}
	text := isTextField(key.Field)
	rows := make([]keyed, len(products))
	for i, p := range products {
		rows[i].product = p
		if text {
			rows[i].text = strings.ToLower(textValue(p, key.Field))
		} else {
			rows[i].num = numericValue(p, key.Field)
		}
	}

	less := func(a, b keyed) bool {
		if text {
			return a.text < b.text
		}
		return a.num < b.num
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if key.Descending {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})

	for i := range rows {
		products[i] = rows[i].product
	}
}

func knownField(f domain.SortField) bool {
	switch f {
	case domain.SortByID, domain.SortByName, domain.SortByPrice, domain.SortBySalePrice,
		domain.SortByRating, domain.SortByReviewsCount, domain.SortByBrand, domain.SortByCategory:
		return true
	}
	return false
}

func isTextField(f domain.SortField) bool {
	return f == domain.SortByName || f == domain.SortByBrand || f == domain.SortByCategory
}

func textValue(p domain.Product, f domain.SortField) string {
	switch f {
	case domain.SortByName:
		return p.Name
	case domain.SortByBrand:
		return p.Brand
	case domain.SortByCategory:
		return p.Category
	}
	return ""
}

func numericValue(p domain.Product, f domain.SortField) float64 {
	switch f {
	case domain.SortByID:
		return float64(p.ID)
	case domain.SortByPrice:
		return p.Price
	case domain.SortBySalePrice:
		if p.SalePrice == nil {
			return math.Inf(-1)
		}
		return *p.SalePrice
	case domain.SortByRating:
		return p.Rating
	case domain.SortByReviewsCount:
		return float64(p.ReviewsCount)
	}
	return 0
}
