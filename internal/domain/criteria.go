package domain

// SortField names a Product field the catalog can be ordered by.
type SortField string

const (
	SortByID           SortField = "id"
	SortByName         SortField = "name"
	SortByPrice        SortField = "price"
	SortBySalePrice    SortField = "sale_price"
	SortByRating       SortField = "rating"
	SortByReviewsCount SortField = "reviews_count"
	SortByBrand        SortField = "brand"
	SortByCategory     SortField = "category"
)

// SortKey is a single ordering instruction. The zero value keeps collection order.
type SortKey struct {
	Field      SortField
	Descending bool
}

// IsZero reports whether no ordering was requested.
func (k SortKey) IsZero() bool {
	return k.Field == ""
}

// FloatRange is an inclusive numeric bound. Nil ends impose no constraint.
type FloatRange struct {
	Min *float64
	Max *float64
}

// Contains reports whether v satisfies both ends of the range.
func (r FloatRange) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// IntRange is the integer counterpart of FloatRange.
type IntRange struct {
	Min *int64
	Max *int64
}

func (r IntRange) Contains(v int64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// QueryCriteria is a typed, request-scoped description of which products to return.
// It is built once at the request boundary; the query engine never sees raw input.
type QueryCriteria struct {
	Price        FloatRange
	Rating       FloatRange
	ReviewsCount IntRange
	Search       string // Case-insensitive substring of Name; empty matches everything
	Sort         SortKey
	Page         int // 1-based
	PageSize     int
}

// QueryResult is one page of a filtered, sorted collection.
type QueryResult struct {
	Items      []Product
	TotalCount int
	Page       int // Effective page after clamping
	PageSize   int // Effective page size after clamping
}

// HasNext reports whether another page follows this one.
func (r QueryResult) HasNext() bool {
	if r.PageSize <= 0 || r.TotalCount == 0 {
		return false
	}
	return r.Page <= (r.TotalCount-1)/r.PageSize
}

// HasPrevious reports whether a page precedes this one.
func (r QueryResult) HasPrevious() bool {
	return r.Page > 1
}
