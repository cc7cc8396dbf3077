package catalog

import (
	"strings"

	"github.com/pkg/errors"

	"catalog-browse-service/internal/domain"
)

// ParseOrdering turns an ordering expression such as "price" or "-rating" into
// a SortKey. A leading '-' requests descending order. The empty string keeps
// collection order.
func ParseOrdering(s string) (domain.SortKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.SortKey{}, nil
	}

	key := domain.SortKey{}
	if strings.HasPrefix(s, "-") {
		key.Descending = true
		s = s[1:]
	}
	key.Field = domain.SortField(strings.ToLower(s))
	if !knownField(key.Field) {
		return domain.SortKey{}, errors.Wrapf(ErrInvalidCriteria, "unknown ordering %q, allowed: %s", s, allowedOrderings())
	}
	return key, nil
}

// SortFields lists every field accepted by ParseOrdering.
func SortFields() []domain.SortField {
	return []domain.SortField{
		domain.SortByID, domain.SortByName, domain.SortByPrice, domain.SortBySalePrice,
		domain.SortByRating, domain.SortByReviewsCount, domain.SortByBrand, domain.SortByCategory,
	}
}

func allowedOrderings() string {
	fields := SortFields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
