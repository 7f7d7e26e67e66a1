package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

type catalogRepo struct {
	st *state
}

// CreateProduct сохраняет продукт вместе с вариантами.
func (r catalogRepo) CreateProduct(_ context.Context, product domain.Product) error {
	if _, exists := r.st.products[product.ID]; exists {
		return domain.Validationf("product %s already exists", product.ID)
	}
	for _, v := range product.Variants {
		if _, exists := r.st.variants[v.ID]; exists {
			return domain.Validationf("variant %s already exists", v.ID)
		}
	}

	for _, v := range product.Variants {
		v.ProductID = product.ID
		put(r.st, r.st.variants, v.ID, v)
	}
	product.Variants = nil
	put(r.st, r.st.products, product.ID, product)
	return nil
}

func (r catalogRepo) GetProduct(_ context.Context, id string) (domain.Product, error) {
	product, ok := r.st.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	product.Variants = r.variantsOf(id)
	return product, nil
}

func (r catalogRepo) ListProducts(_ context.Context, publishedOnly bool) ([]domain.Product, error) {
	result := make([]domain.Product, 0, len(r.st.products))
	for id, product := range r.st.products {
		if publishedOnly && !product.Published {
			continue
		}
		product.Variants = r.variantsOf(id)
		result = append(result, product)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r catalogRepo) GetVariant(_ context.Context, id string) (domain.Variant, error) {
	v, ok := r.st.variants[id]
	if !ok {
		return domain.Variant{}, domain.ErrVariantNotFound
	}
	return v, nil
}

func (r catalogRepo) UpdateVariantPrice(_ context.Context, id string, price decimal.Decimal, at time.Time) (domain.Variant, error) {
	v, ok := r.st.variants[id]
	if !ok {
		return domain.Variant{}, domain.ErrVariantNotFound
	}
	v.Price = price
	v.UpdatedAt = at
	put(r.st, r.st.variants, id, v)
	return v, nil
}

func (r catalogRepo) variantsOf(productID string) []domain.Variant {
	var variants []domain.Variant
	for _, v := range r.st.variants {
		if v.ProductID == productID {
			variants = append(variants, v)
		}
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].Price.LessThan(variants[j].Price) })
	return variants
}

var _ domain.CatalogRepository = catalogRepo{}
