package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const seedActor = "seed"

type seedVariant struct {
	id, sku, name string
	price         string
	stock         int
}

type seedProduct struct {
	id, slug, name, category, description string
	variants                              []seedVariant
}

var demoCatalog = []seedProduct{
	{
		id: "prod-sourdough", slug: "country-sourdough", name: "Country Sourdough", category: "bread",
		description: "Naturally leavened loaf with a dark crust.",
		variants: []seedVariant{
			{id: "var-sourdough-loaf", sku: "SD-LOAF", name: "Large loaf", price: "34.00", stock: 20},
			{id: "var-sourdough-half", sku: "SD-HALF", name: "Half loaf", price: "18.00", stock: 20},
		},
	},
	{
		id: "prod-baguette", slug: "baguette", name: "Baguette", category: "bread",
		description: "Classic French baguette baked every morning.",
		variants: []seedVariant{
			{id: "var-baguette", sku: "BG-STD", name: "Standard", price: "4.25", stock: 60},
		},
	},
	{
		id: "prod-croissant", slug: "butter-croissant", name: "Butter Croissant", category: "pastry",
		description: "Laminated pastry with cultured butter.",
		variants: []seedVariant{
			{id: "var-croissant-butter", sku: "CR-BUTTER", name: "Single", price: "3.50", stock: 80},
			{id: "var-croissant-box", sku: "CR-BOX6", name: "Box of six", price: "19.00", stock: 15},
		},
	},
	{
		id: "prod-cake", slug: "celebration-cake", name: "Celebration Cake", category: "cake",
		description: "Vanilla sponge with berry compote. Order a day ahead.",
		variants: []seedVariant{
			{id: "var-cake-whole", sku: "CK-WHOLE", name: "Whole", price: "50.00", stock: 4},
			{id: "var-cake-slice", sku: "CK-SLICE", name: "Slice", price: "6.75", stock: 24},
		},
	},
}

// SeedDemo заполняет пустой каталог демо-ассортиментом. Начальные остатки
// проходят через журнал склада с причиной INITIAL_STOCK. Повторный вызов ничего не делает.
func (s *Service) SeedDemo(ctx context.Context) (int, error) {
	var existing []domain.Product
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		existing, err = tx.Catalog().ListProducts(ctx, false)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	now := s.now()
	created := 0
	for _, sp := range demoCatalog {
		product := domain.Product{
			ID: sp.id, Slug: sp.slug, Name: sp.name, Category: sp.category, Description: sp.description,
			Published: true, CreatedAt: now, UpdatedAt: now,
		}
		for _, sv := range sp.variants {
			product.Variants = append(product.Variants, domain.Variant{
				ID: sv.id, ProductID: sp.id, SKU: sv.sku, Name: sv.name,
				Price: decimal.RequireFromString(sv.price), Active: true,
				CreatedAt: now, UpdatedAt: now,
			})
		}

		err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			if err := tx.Catalog().CreateProduct(ctx, product); err != nil {
				return err
			}
			for _, sv := range sp.variants {
				if _, err := s.ledger.ApplyInTx(ctx, tx, domain.Adjustment{
					VariantID: sv.id,
					Delta:     sv.stock,
					Reason:    domain.InventoryReasonInitialStock,
					Actor:     seedActor,
					Reference: "demo-seed",
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return created, fmt.Errorf("seed product %s: %w", sp.id, err)
		}
		created++
	}

	s.logger.WithField("products", created).Info("demo catalog seeded")
	return created, nil
}

// DemoVariantIDs возвращает идентификаторы вариантов демо-каталога.
func DemoVariantIDs() []string {
	var ids []string
	for _, p := range demoCatalog {
		for _, v := range p.variants {
			ids = append(ids, v.id)
		}
	}
	return ids
}

