// Package testkit содержит общие фикстуры для тестов сервисов и HTTP-слоя.
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/storage/memory"
)

// Идентификаторы тестового каталога.
const (
	SourdoughVariant = "var-sourdough-loaf"
	CroissantVariant = "var-croissant-butter"
	CakeVariant      = "var-cake-whole"
	RetiredVariant   = "var-rye-retired"
	HiddenVariant    = "var-hidden-seasonal"
)

// Stock задаёт начальные остатки по вариантам.
type Stock map[string]int

// DefaultStock: остатки, подходящие для большинства сценариев.
func DefaultStock() Stock {
	return Stock{
		SourdoughVariant: 10,
		CroissantVariant: 40,
		CakeVariant:      3,
		RetiredVariant:   10,
		HiddenVariant:    10,
	}
}

// NewStore создаёт in-memory хранилище с каталогом пекарни и остатками.
func NewStore(t testing.TB, stock Stock) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	Seed(t, store, stock)
	return store
}

// Seed записывает тестовый каталог и остатки в любое хранилище.
func Seed(t testing.TB, store domain.Store, stock Stock) {
	t.Helper()
	now := time.Now().UTC()

	products := []domain.Product{
		{
			ID: "prod-sourdough", Slug: "sourdough", Name: "Country Sourdough", Category: "bread", Published: true,
			Variants: []domain.Variant{{ID: SourdoughVariant, SKU: "SD-LOAF", Name: "Large loaf", Price: decimal.RequireFromString("34.00"), Active: true}},
		},
		{
			ID: "prod-croissant", Slug: "croissant", Name: "Butter Croissant", Category: "pastry", Published: true,
			Variants: []domain.Variant{{ID: CroissantVariant, SKU: "CR-BUTTER", Name: "Single", Price: decimal.RequireFromString("3.50"), Active: true}},
		},
		{
			ID: "prod-cake", Slug: "celebration-cake", Name: "Celebration Cake", Category: "cake", Published: true,
			Variants: []domain.Variant{
				{ID: CakeVariant, SKU: "CK-WHOLE", Name: "Whole", Price: decimal.RequireFromString("25.00"), Active: true},
				{ID: RetiredVariant, SKU: "CK-RYE", Name: "Rye (retired)", Price: decimal.RequireFromString("12.00"), Active: false},
			},
		},
		{
			ID: "prod-seasonal", Slug: "seasonal", Name: "Seasonal Stollen", Category: "bread", Published: false,
			Variants: []domain.Variant{{ID: HiddenVariant, SKU: "ST-1", Name: "Loaf", Price: decimal.RequireFromString("18.00"), Active: true}},
		},
	}

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		for _, p := range products {
			p.CreatedAt, p.UpdatedAt = now, now
			for i := range p.Variants {
				p.Variants[i].ProductID = p.ID
				p.Variants[i].CreatedAt, p.Variants[i].UpdatedAt = now, now
			}
			if err := tx.Catalog().CreateProduct(ctx, p); err != nil {
				return err
			}
		}
		for variantID, qty := range stock {
			if err := tx.Inventory().Save(ctx, domain.InventoryLevel{
				VariantID: variantID, Quantity: qty, LowStockThreshold: 2, UpdatedAt: now,
			}); err != nil {
				return err
			}
			if err := tx.Inventory().AppendTransaction(ctx, domain.InventoryTransaction{
				ID: "seed-" + variantID, VariantID: variantID, Delta: qty, QuantityAfter: qty,
				Reason: domain.InventoryReasonInitialStock, Actor: "testkit", CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// Guest возвращает анонимного покупателя с заданной сессией.
func Guest(sessionID string) domain.Requester {
	return domain.Requester{SessionID: sessionID, Role: domain.RoleGuest}
}

// Customer возвращает аутентифицированного покупателя.
func Customer(userID string) domain.Requester {
	return domain.Requester{UserID: userID, Role: domain.RoleCustomer}
}

// Admin возвращает администратора.
func Admin() domain.Requester {
	return domain.Requester{UserID: "admin-1", Role: domain.RoleAdmin}
}

// Quantity читает текущий остаток варианта.
func Quantity(t testing.TB, store domain.Store, variantID string) int {
	t.Helper()
	var qty int
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		level, err := tx.Inventory().Get(ctx, variantID)
		qty = level.Quantity
		return err
	})
	require.NoError(t, err)
	return qty
}

// ShippingAddress возвращает валидный адрес доставки.
func ShippingAddress() domain.Address {
	return domain.Address{Name: "Ada Baker", Line1: "1 Flour Lane", City: "Portland", PostalCode: "97201", Country: "US"}
}
