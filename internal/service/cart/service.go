package cart

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
	"github.com/vladislavdragonenkov/bakery/internal/service/inventory"
)

// Service управляет корзинами покупателей.
type Service struct {
	store   domain.Store
	logger  *log.Entry
	metrics *metrics.StorefrontMetrics
	now     func() time.Time
}

// NewService создаёт сервис корзин.
func NewService(store domain.Store, logger *log.Entry, m *metrics.StorefrontMetrics) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart")
	}
	return &Service{
		store:   store,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreateActive возвращает активную корзину владельца, создавая её при необходимости.
func (s *Service) GetOrCreateActive(ctx context.Context, owner domain.CartOwner, currency string) (domain.CartView, error) {
	if err := owner.Validate(); err != nil {
		return domain.CartView{}, err
	}

	var view domain.CartView
	err := s.withActiveCart(ctx, owner, currency, func(ctx context.Context, tx domain.Tx, cart domain.Cart) error {
		var err error
		view, err = loadView(ctx, tx, cart)
		return err
	})
	return view, err
}

// AddItem добавляет вариант в активную корзину запрашивающего.
// Повторное добавление того же варианта суммирует количество; цена фиксируется при первом добавлении.
func (s *Service) AddItem(ctx context.Context, requester domain.Requester, variantID string, quantity int, currency string) (domain.CartView, error) {
	owner := requester.Owner()
	if err := owner.Validate(); err != nil {
		return domain.CartView{}, err
	}
	if strings.TrimSpace(variantID) == "" {
		return domain.CartView{}, domain.Validationf("variantId is required")
	}
	if quantity < 1 {
		return domain.CartView{}, domain.Validationf("quantity must be at least 1")
	}

	var view domain.CartView
	err := s.withActiveCart(ctx, owner, currency, func(ctx context.Context, tx domain.Tx, cart domain.Cart) error {
		variant, err := tx.Catalog().GetVariant(ctx, variantID)
		if err != nil {
			return err
		}
		product, err := tx.Catalog().GetProduct(ctx, variant.ProductID)
		if err != nil {
			return err
		}
		if !domain.Purchasable(product, variant) {
			return domain.ErrVariantUnavailable
		}

		available, err := inventory.Available(ctx, tx, variantID, false)
		if err != nil {
			return err
		}

		items, err := tx.Carts().ListItems(ctx, cart.ID)
		if err != nil {
			return err
		}

		now := s.now()
		if existing, ok := findByVariant(items, variantID); ok {
			total := existing.Quantity + quantity
			if total > available {
				return domain.NewShortage(variantID, total, available)
			}
			if err := tx.Carts().UpdateItemQuantity(ctx, existing.ID, total, now); err != nil {
				return err
			}
		} else {
			if quantity > available {
				return domain.NewShortage(variantID, quantity, available)
			}
			if err := tx.Carts().AddItem(ctx, domain.CartItem{
				ID:        uuid.NewString(),
				CartID:    cart.ID,
				VariantID: variantID,
				Quantity:  quantity,
				UnitPrice: variant.Price,
				CreatedAt: now,
				UpdatedAt: now,
			}); err != nil {
				return err
			}
		}

		if err := tx.Carts().Touch(ctx, cart.ID, now); err != nil {
			return err
		}
		cart.UpdatedAt = now
		view, err = loadView(ctx, tx, cart)
		return err
	})
	s.metrics.RecordCartOperation("add_item", err)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"variant_id": variantID,
			"quantity":   quantity,
		}).Debug("add to cart rejected")
	}
	return view, err
}

// UpdateQuantity меняет количество позиции. Ноль удаляет позицию.
func (s *Service) UpdateQuantity(ctx context.Context, requester domain.Requester, itemID string, quantity int) (domain.CartView, error) {
	if quantity < 0 {
		return domain.CartView{}, domain.Validationf("quantity must not be negative")
	}

	var view domain.CartView
	err := s.withOwnedItem(ctx, requester, itemID, func(ctx context.Context, tx domain.Tx, cart domain.Cart, item domain.CartItem) error {
		now := s.now()
		if quantity == 0 {
			if err := tx.Carts().DeleteItem(ctx, item.ID); err != nil {
				return err
			}
		} else {
			available, err := inventory.Available(ctx, tx, item.VariantID, false)
			if err != nil {
				return err
			}
			if quantity > available {
				return domain.NewShortage(item.VariantID, quantity, available)
			}
			if err := tx.Carts().UpdateItemQuantity(ctx, item.ID, quantity, now); err != nil {
				return err
			}
		}

		if err := tx.Carts().Touch(ctx, cart.ID, now); err != nil {
			return err
		}
		cart.UpdatedAt = now
		var err error
		view, err = loadView(ctx, tx, cart)
		return err
	})
	s.metrics.RecordCartOperation("update_quantity", err)
	return view, err
}

// RemoveItem удаляет позицию из корзины.
func (s *Service) RemoveItem(ctx context.Context, requester domain.Requester, itemID string) (domain.CartView, error) {
	var view domain.CartView
	err := s.withOwnedItem(ctx, requester, itemID, func(ctx context.Context, tx domain.Tx, cart domain.Cart, item domain.CartItem) error {
		if err := tx.Carts().DeleteItem(ctx, item.ID); err != nil {
			return err
		}
		now := s.now()
		if err := tx.Carts().Touch(ctx, cart.ID, now); err != nil {
			return err
		}
		cart.UpdatedAt = now
		var err error
		view, err = loadView(ctx, tx, cart)
		return err
	})
	s.metrics.RecordCartOperation("remove_item", err)
	return view, err
}

// Get возвращает корзину по идентификатору с проверкой владения.
func (s *Service) Get(ctx context.Context, requester domain.Requester, cartID string) (domain.CartView, error) {
	var view domain.CartView
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		cart, err := tx.Carts().Get(ctx, cartID)
		if err != nil {
			return err
		}
		if !requester.CanAccessCart(cart) {
			return domain.ErrForbidden
		}
		view, err = loadView(ctx, tx, cart)
		return err
	})
	return view, err
}

// AbandonIdle закрывает активные корзины, не менявшиеся с idleBefore.
func (s *Service) AbandonIdle(ctx context.Context, idleBefore time.Time, limit int) (int, error) {
	abandoned := 0
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		carts, err := tx.Carts().ListIdleActive(ctx, idleBefore, limit)
		if err != nil {
			return err
		}
		now := s.now()
		for _, cart := range carts {
			if err := tx.Carts().UpdateStatus(ctx, cart.ID, domain.CartStatusAbandoned, now); err != nil {
				return err
			}
		}
		abandoned = len(carts)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if abandoned > 0 {
		s.logger.WithField("count", abandoned).Info("abandoned idle carts")
	}
	return abandoned, nil
}

// withActiveCart выполняет fn над активной корзиной владельца в одной транзакции.
// Если параллельный запрос успел создать корзину первым, транзакция повторяется и читает её.
func (s *Service) withActiveCart(ctx context.Context, owner domain.CartOwner, currency string, fn func(ctx context.Context, tx domain.Tx, cart domain.Cart) error) error {
	run := func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			cart, err := s.findOrCreate(ctx, tx, owner, currency)
			if err != nil {
				return err
			}
			return fn(ctx, tx, cart)
		})
	}

	err := run()
	if errors.Is(err, domain.ErrActiveCartExists) {
		s.logger.WithField("user_id", owner.UserID).Debug("concurrent cart creation, retrying")
		err = run()
	}
	return err
}

func (s *Service) findOrCreate(ctx context.Context, tx domain.Tx, owner domain.CartOwner, currency string) (domain.Cart, error) {
	cart, err := tx.Carts().FindActive(ctx, owner)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrCartNotFound) {
		return domain.Cart{}, err
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	now := s.now()
	cart = domain.Cart{
		ID:        uuid.NewString(),
		UserID:    owner.UserID,
		Status:    domain.CartStatusActive,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if owner.UserID == "" {
		cart.SessionID = owner.SessionID
	}
	if err := tx.Carts().Create(ctx, cart); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (s *Service) withOwnedItem(ctx context.Context, requester domain.Requester, itemID string, fn func(ctx context.Context, tx domain.Tx, cart domain.Cart, item domain.CartItem) error) error {
	if strings.TrimSpace(itemID) == "" {
		return domain.Validationf("itemId is required")
	}
	return s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		item, err := tx.Carts().GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		cart, err := tx.Carts().Get(ctx, item.CartID)
		if err != nil {
			return err
		}
		if !requester.CanAccessCart(cart) {
			return domain.ErrForbidden
		}
		if cart.Status != domain.CartStatusActive {
			return domain.ErrCartClosed
		}
		return fn(ctx, tx, cart, item)
	})
}

func loadView(ctx context.Context, tx domain.Tx, cart domain.Cart) (domain.CartView, error) {
	items, err := tx.Carts().ListItems(ctx, cart.ID)
	if err != nil {
		return domain.CartView{}, err
	}
	return domain.CartView{Cart: cart, Items: items, Summary: domain.Summarize(items)}, nil
}

func findByVariant(items []domain.CartItem, variantID string) (domain.CartItem, bool) {
	for _, item := range items {
		if item.VariantID == variantID {
			return item, true
		}
	}
	return domain.CartItem{}, false
}
