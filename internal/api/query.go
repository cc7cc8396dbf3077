package api

import (
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"catalog-browse-service/internal/catalog"
	"catalog-browse-service/internal/domain"
)

const defaultPriceBins = 10

// ProductQueryInput holds the list filters accepted by both transports before
// they are turned into domain criteria.
type ProductQueryInput struct {
	MinPrice   *float64 `validate:"omitempty,gte=0"`
	MaxPrice   *float64 `validate:"omitempty,gte=0"`
	MinRating  *float64 `validate:"omitempty,gte=0,lte=5"`
	MaxRating  *float64 `validate:"omitempty,gte=0,lte=5"`
	MinReviews *int64   `validate:"omitempty,gte=0"`
	MaxReviews *int64   `validate:"omitempty,gte=0"`
	Search     string   `validate:"max=200"`
	Ordering   string   `validate:"max=64"`
	Page       *int     `validate:"omitempty,gte=1"`
	PageSize   *int     `validate:"omitempty,gte=1"`
}

// PriceBinsInput is the query of the price histogram endpoint.
type PriceBinsInput struct {
	ProductQueryInput
	Bins *int `validate:"omitempty,gte=1,lte=50"`
}

// Criteria converts validated input into query criteria. An unknown ordering
// field yields catalog.ErrInvalidCriteria.
func (in ProductQueryInput) Criteria() (domain.QueryCriteria, error) {
	c := domain.QueryCriteria{
		Price:        domain.FloatRange{Min: in.MinPrice, Max: in.MaxPrice},
		Rating:       domain.FloatRange{Min: in.MinRating, Max: in.MaxRating},
		ReviewsCount: domain.IntRange{Min: in.MinReviews, Max: in.MaxReviews},
		Search:       in.Search,
	}
	if in.Page != nil {
		c.Page = *in.Page
	}
	if in.PageSize != nil {
		c.PageSize = *in.PageSize
	}
	if in.Ordering != "" {
		key, err := catalog.ParseOrdering(in.Ordering)
		if err != nil {
			return domain.QueryCriteria{}, err
		}
		c.Sort = key
	}
	return c, nil
}

// BinCount returns the requested number of bins or the default.
func (in PriceBinsInput) BinCount() int {
	if in.Bins == nil {
		return defaultPriceBins
	}
	return *in.Bins
}

// errBadParam marks malformed query parameters.
var errBadParam = errors.New("invalid query parameter")

func parseProductQuery(q url.Values) (ProductQueryInput, error) {
	var (
		in  ProductQueryInput
		err error
	)
	if in.MinPrice, err = floatParam(q, "min_price"); err != nil {
		return in, err
	}
	if in.MaxPrice, err = floatParam(q, "max_price"); err != nil {
		return in, err
	}
	if in.MinRating, err = floatParam(q, "min_rating"); err != nil {
		return in, err
	}
	if in.MaxRating, err = floatParam(q, "max_rating"); err != nil {
		return in, err
	}
	if in.MinReviews, err = int64Param(q, "min_reviews"); err != nil {
		return in, err
	}
	if in.MaxReviews, err = int64Param(q, "max_reviews"); err != nil {
		return in, err
	}
	if in.Page, err = intParam(q, "page"); err != nil {
		return in, err
	}
	if in.PageSize, err = intParam(q, "page_size"); err != nil {
		return in, err
	}
	in.Search = q.Get("search")
	in.Ordering = q.Get("ordering")
	return in, nil
}

func parsePriceBinsQuery(q url.Values) (PriceBinsInput, error) {
	base, err := parseProductQuery(q)
	if err != nil {
		return PriceBinsInput{}, err
	}
	in := PriceBinsInput{ProductQueryInput: base}
	in.Bins, err = intParam(q, "bins")
	return in, err
}

func floatParam(q url.Values, key string) (*float64, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.Wrapf(errBadParam, "invalid %s format", key)
	}
	return &v, nil
}

func int64Param(q url.Values, key string) (*int64, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(errBadParam, "invalid %s format", key)
	}
	return &v, nil
}

func intParam(q url.Values, key string) (*int, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errors.Wrapf(errBadParam, "invalid %s format", key)
	}
	return &v, nil
}
