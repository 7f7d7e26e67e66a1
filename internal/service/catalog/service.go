package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/service/inventory"
)

// Service отдаёт витрину и позволяет администратору менять цены.
type Service struct {
	store  domain.Store
	ledger *inventory.Ledger
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис каталога.
func NewService(store domain.Store, ledger *inventory.Ledger, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{
		store:  store,
		ledger: ledger,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List возвращает опубликованные продукты. Администратор видит и скрытые.
func (s *Service) List(ctx context.Context, requester domain.Requester) ([]domain.Product, error) {
	var products []domain.Product
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		products, err = tx.Catalog().ListProducts(ctx, !requester.IsAdmin())
		return err
	})
	return products, err
}

// Get возвращает продукт. Неопубликованный продукт для покупателя не существует.
func (s *Service) Get(ctx context.Context, requester domain.Requester, productID string) (domain.Product, error) {
	var product domain.Product
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		product, err = tx.Catalog().GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if !product.Published && !requester.IsAdmin() {
			return domain.ErrProductNotFound
		}
		return nil
	})
	return product, err
}

// Search ищет опубликованные продукты по подстроке в названии, категории или SKU.
func (s *Service) Search(ctx context.Context, query string) ([]domain.Product, error) {
	products, err := s.List(ctx, domain.Requester{})
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return products, nil
	}

	var matched []domain.Product
	for _, p := range products {
		if matches(p, query) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

func matches(p domain.Product, query string) bool {
	fields := []string{p.Name, p.Slug, p.Category, p.Description}
	for _, v := range p.Variants {
		fields = append(fields, v.Name, v.SKU)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

// UpdateVariantPrice меняет цену варианта. Строки корзин и заказов сохраняют цену,
// захваченную при добавлении.
func (s *Service) UpdateVariantPrice(ctx context.Context, requester domain.Requester, variantID string, price decimal.Decimal) (domain.Variant, error) {
	if !requester.IsAdmin() {
		return domain.Variant{}, domain.ErrForbidden
	}
	if !price.IsPositive() {
		return domain.Variant{}, domain.Validationf("price must be positive")
	}

	var variant domain.Variant
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		variant, err = tx.Catalog().UpdateVariantPrice(ctx, variantID, domain.RoundMoney(price), s.now())
		return err
	})
	if err != nil {
		return domain.Variant{}, err
	}

	s.logger.WithFields(log.Fields{
		"variant_id": variantID,
		"price":      variant.Price.StringFixed(2),
		"actor":      requester.Actor(),
	}).Info("variant price updated")
	return variant, nil
}
