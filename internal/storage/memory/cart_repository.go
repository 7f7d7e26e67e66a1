package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

type cartRepo struct {
	st *state
}

// Create повторяет частичные уникальные индексы Postgres: одна ACTIVE корзина на владельца.
func (r cartRepo) Create(ctx context.Context, cart domain.Cart) error {
	if _, exists := r.st.carts[cart.ID]; exists {
		return domain.Validationf("cart %s already exists", cart.ID)
	}
	if cart.Status == domain.CartStatusActive {
		if _, err := r.FindActive(ctx, cart.Owner()); err == nil {
			return domain.ErrActiveCartExists
		}
	}
	put(r.st, r.st.carts, cart.ID, cart)
	return nil
}

func (r cartRepo) Get(_ context.Context, id string) (domain.Cart, error) {
	cart, ok := r.st.carts[id]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cart, nil
}

func (r cartRepo) FindActive(_ context.Context, owner domain.CartOwner) (domain.Cart, error) {
	for _, cart := range r.st.carts {
		if cart.Status != domain.CartStatusActive {
			continue
		}
		if owner.UserID != "" && cart.UserID == owner.UserID {
			return cart, nil
		}
		if owner.UserID == "" && owner.SessionID != "" && cart.UserID == "" && cart.SessionID == owner.SessionID {
			return cart, nil
		}
	}
	return domain.Cart{}, domain.ErrCartNotFound
}

func (r cartRepo) UpdateStatus(_ context.Context, id string, status domain.CartStatus, at time.Time) error {
	cart, ok := r.st.carts[id]
	if !ok {
		return domain.ErrCartNotFound
	}
	cart.Status = status
	cart.UpdatedAt = at
	put(r.st, r.st.carts, id, cart)
	return nil
}

func (r cartRepo) Touch(_ context.Context, id string, at time.Time) error {
	cart, ok := r.st.carts[id]
	if !ok {
		return domain.ErrCartNotFound
	}
	cart.UpdatedAt = at
	put(r.st, r.st.carts, id, cart)
	return nil
}

func (r cartRepo) ListIdleActive(_ context.Context, idleBefore time.Time, limit int) ([]domain.Cart, error) {
	var result []domain.Cart
	for _, cart := range r.st.carts {
		if cart.Status == domain.CartStatusActive && cart.UpdatedAt.Before(idleBefore) {
			result = append(result, cart)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r cartRepo) ListItems(_ context.Context, cartID string) ([]domain.CartItem, error) {
	var items []domain.CartItem
	for _, item := range r.st.cartItems {
		if item.CartID == cartID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (r cartRepo) GetItem(_ context.Context, itemID string) (domain.CartItem, error) {
	item, ok := r.st.cartItems[itemID]
	if !ok {
		return domain.CartItem{}, domain.ErrCartItemNotFound
	}
	return item, nil
}

func (r cartRepo) AddItem(_ context.Context, item domain.CartItem) error {
	if _, ok := r.st.carts[item.CartID]; !ok {
		return domain.ErrCartNotFound
	}
	for _, existing := range r.st.cartItems {
		if existing.CartID == item.CartID && existing.VariantID == item.VariantID {
			return domain.Validationf("variant %s already in cart", item.VariantID)
		}
	}
	put(r.st, r.st.cartItems, item.ID, item)
	return nil
}

func (r cartRepo) UpdateItemQuantity(_ context.Context, itemID string, quantity int, at time.Time) error {
	item, ok := r.st.cartItems[itemID]
	if !ok {
		return domain.ErrCartItemNotFound
	}
	item.Quantity = quantity
	item.UpdatedAt = at
	put(r.st, r.st.cartItems, itemID, item)
	return nil
}

func (r cartRepo) DeleteItem(_ context.Context, itemID string) error {
	if _, ok := r.st.cartItems[itemID]; !ok {
		return domain.ErrCartItemNotFound
	}
	remove(r.st, r.st.cartItems, itemID)
	return nil
}

var _ domain.CartRepository = cartRepo{}
