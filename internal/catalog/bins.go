package catalog

import (
	"fmt"
	"math"

	"catalog-browse-service/internal/domain"
)

// PriceBins splits the price span of products into count equal-width bins.
// Bin bounds are inclusive on both ends and the last bin closes exactly at the
// highest price, so a product sitting on an inner boundary is counted twice,
// which is what the dashboard histogram expects.
func PriceBins(products []domain.Product, count int) []domain.PriceBin {
	if len(products) == 0 || count <= 0 {
		return []domain.PriceBin{}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range products {
		lo = math.Min(lo, p.Price)
		hi = math.Max(hi, p.Price)
	}
	width := (hi - lo) / float64(count)

	bins := make([]domain.PriceBin, 0, count)
	for i := 0; i < count; i++ {
		binMin := lo + float64(i)*width
		binMax := binMin + width
		if i == count-1 {
			binMax = hi
		}

		n := 0
		for _, p := range products {
			if p.Price >= binMin && p.Price <= binMax {
				n++
			}
		}
		bins = append(bins, domain.PriceBin{
			Range: fmt.Sprintf("%.0f-%.0f", math.Round(binMin), math.Round(binMax)),
			Count: n,
			Min:   binMin,
			Max:   binMax,
		})
	}
	return bins
}
