package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation возвращается, если запрос не прошёл базовую проверку полей.
	ErrValidation = errors.New("validation failed")
	// Операция требует аутентифицированного пользователя.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden возвращается, если запрашивающий не владеет ресурсом и не является администратором.
	ErrForbidden = errors.New("forbidden")

	// ErrProductNotFound возвращается, если продукт не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrVariantNotFound возвращается, если вариант товара не найден в каталоге.
	ErrVariantNotFound = errors.New("variant not found")
	// Вариант выключен или его продукт не опубликован.
	ErrVariantUnavailable = errors.New("variant unavailable")

	// Для варианта не заведена складская запись.
	ErrInventoryNotFound = errors.New("inventory level not found")
	// ErrInsufficientInventory сигнализирует, что запрошено больше, чем доступно на складе.
	ErrInsufficientInventory = errors.New("insufficient inventory")
	// Корректировка увела бы остаток ниже нуля.
	ErrInvalidAdjustment = errors.New("invalid inventory adjustment")

	// ErrCartNotFound возвращается, если корзина не найдена.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartItemNotFound возвращается, если позиция корзины не найдена.
	ErrCartItemNotFound = errors.New("cart item not found")
	// У владельца уже есть активная корзина.
	ErrActiveCartExists = errors.New("active cart already exists for owner")
	// ErrCartClosed возвращается для оформленной или брошенной корзины.
	ErrCartClosed = errors.New("cart is no longer active")
	// Корзина не в статусе ACTIVE.
	ErrCartNotCheckoutReady = errors.New("cart is not ready for checkout")
	// Ошибка пустой корзины при оформлении.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrIllegalTransition возвращается, если переход статуса не разрешён таблицей переходов.
	ErrIllegalTransition = errors.New("illegal order status transition")

	// У заказа ещё нет отправления.
	ErrShipmentNotFound = errors.New("shipment not found")

	// Сумма платежа не совпадает с суммой заказа.
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")
	// Заказ уже оплачен.
	ErrPaymentAlreadyCaptured = errors.New("payment already captured")
	// ErrOrderNotPayable возвращается для отменённого или возвращённого заказа.
	ErrOrderNotPayable = errors.New("order is not payable")
	// Платёжный провайдер недоступен или ответил ошибкой.
	ErrPaymentGateway = errors.New("payment gateway error")

	// Ассистент вызвал инструмент, которого нет в списке.
	ErrUnknownTool = errors.New("unknown assistant tool")

	// Ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrConstraintViolation сигнализирует, что запись нарушила ограничение схемы БД.
	ErrConstraintViolation = errors.New("database constraint violation")
)

// InventoryShortageError уточняет ErrInsufficientInventory конкретной позицией.
type InventoryShortageError struct {
	VariantID string
	Requested int
	Available int
}

func (e *InventoryShortageError) Error() string {
	return fmt.Sprintf("insufficient inventory for variant %s: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

// Unwrap позволяет сравнивать ошибку через errors.Is(err, ErrInsufficientInventory).
func (e *InventoryShortageError) Unwrap() error {
	return ErrInsufficientInventory
}

// NewShortage создаёт ошибку нехватки остатка.
func NewShortage(variantID string, requested, available int) error {
	return &InventoryShortageError{VariantID: variantID, Requested: requested, Available: available}
}

// Validationf оборачивает ErrValidation сообщением с подробностями.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
