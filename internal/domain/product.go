package domain

// Product is a single catalog record. Records are immutable once loaded and are
// replaced wholesale when the collection is re-imported.
// The json tags match the wire format served to the dashboard.
type Product struct {
	ID           int64    `json:"id" db:"id"`
	Name         string   `json:"name" db:"name"`
	Price        float64  `json:"price" db:"price"`
	SalePrice    *float64 `json:"sale_price,omitempty" db:"sale_price"` // Not guaranteed to be <= Price
	Rating       float64  `json:"rating" db:"rating"`
	ReviewsCount int64    `json:"reviews_count" db:"reviews_count"`
	ImageID      int64    `json:"image_id" db:"image_id"`
	Brand        string   `json:"brand,omitempty" db:"brand"`
	Category     string   `json:"category,omitempty" db:"category"`
}

// Discount returns how much cheaper the sale price is than the list price.
// Products without a sale price have no discount.
func (p Product) Discount() float64 {
	if p.SalePrice == nil {
		return 0
	}
	return p.Price - *p.SalePrice
}

// PriceBin is one bucket of the price histogram shown next to the product table.
type PriceBin struct {
	Range string  `json:"range"`
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}
