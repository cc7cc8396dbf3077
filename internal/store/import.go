package store

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"catalog-browse-service/internal/domain"
)

// importRecord is the on-disk shape of one product in a seed file. Ingestion
// already normalized these, so only structural checks happen here.
type importRecord struct {
	ID           int64    `json:"id" validate:"required,gt=0"`
	Name         string   `json:"name"`
	Price        *float64 `json:"price" validate:"required,gte=0"`
	SalePrice    *float64 `json:"sale_price" validate:"omitempty,gte=0"`
	Rating       float64  `json:"rating" validate:"gte=0,lte=5"`
	ReviewsCount int64    `json:"reviews_count" validate:"gte=0"`
	ImageID      int64    `json:"image_id" validate:"omitempty,gt=0"`
	Brand        string   `json:"brand"`
	Category     string   `json:"category"`
}

// DecodeProducts reads a JSON array of products. A missing image_id defaults
// to the product id.
func DecodeProducts(r io.Reader) ([]domain.Product, error) {
	var records []importRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, errors.Wrap(err, "store: decode products")
	}

	validate := validator.New()
	products := make([]domain.Product, 0, len(records))
	for i, rec := range records {
		if err := validate.Struct(rec); err != nil {
			return nil, errors.Wrapf(err, "store: product #%d (id %d) is invalid", i, rec.ID)
		}
		imageID := rec.ImageID
		if imageID == 0 {
			imageID = rec.ID
		}
		products = append(products, domain.Product{
			ID:           rec.ID,
			Name:         rec.Name,
			Price:        *rec.Price,
			SalePrice:    rec.SalePrice,
			Rating:       rec.Rating,
			ReviewsCount: rec.ReviewsCount,
			ImageID:      imageID,
			Brand:        rec.Brand,
			Category:     rec.Category,
		})
	}
	return products, nil
}

// ImportFile loads a seed file into s and returns how many records were written.
func ImportFile(ctx context.Context, s ProductStorer, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "store: open seed file")
	}
	defer f.Close()

	products, err := DecodeProducts(f)
	if err != nil {
		return 0, err
	}
	return s.UpsertProducts(ctx, products)
}
