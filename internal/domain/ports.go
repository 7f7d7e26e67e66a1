package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store: хранилище с единицей работы «всё или ничего».
type Store interface {
	// WithinTx выполняет fn в одной транзакции. Ошибка fn откатывает все изменения.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx открывает репозитории в рамках одной транзакции.
type Tx interface {
	Catalog() CatalogRepository
	Inventory() InventoryRepository
	Carts() CartRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	StatusEvents() StatusEventRepository
	Shipments() ShipmentRepository
	Outbox() OutboxWriter
}

// CatalogRepository описывает хранилище каталога.
type CatalogRepository interface {
	CreateProduct(ctx context.Context, product Product) error
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context, publishedOnly bool) ([]Product, error)
	GetVariant(ctx context.Context, id string) (Variant, error)
	UpdateVariantPrice(ctx context.Context, id string, price decimal.Decimal, at time.Time) (Variant, error)
}

// InventoryRepository описывает хранилище остатков и складского журнала.
type InventoryRepository interface {
	// GetForUpdate читает остаток с блокировкой строки до конца транзакции.
	GetForUpdate(ctx context.Context, variantID string) (InventoryLevel, error)
	Get(ctx context.Context, variantID string) (InventoryLevel, error)
	// Save создаёт или обновляет запись остатка.
	Save(ctx context.Context, level InventoryLevel) error
	AppendTransaction(ctx context.Context, txn InventoryTransaction) error
	ListTransactions(ctx context.Context, variantID string, limit int) ([]InventoryTransaction, error)
}

// CartRepository описывает хранилище корзин.
type CartRepository interface {
	// Create возвращает ErrActiveCartExists, если у владельца уже есть активная корзина.
	Create(ctx context.Context, cart Cart) error
	Get(ctx context.Context, id string) (Cart, error)
	FindActive(ctx context.Context, owner CartOwner) (Cart, error)
	UpdateStatus(ctx context.Context, id string, status CartStatus, at time.Time) error
	Touch(ctx context.Context, id string, at time.Time) error
	ListIdleActive(ctx context.Context, idleBefore time.Time, limit int) ([]Cart, error)

	ListItems(ctx context.Context, cartID string) ([]CartItem, error)
	GetItem(ctx context.Context, itemID string) (CartItem, error)
	AddItem(ctx context.Context, item CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID string, quantity int, at time.Time) error
	DeleteItem(ctx context.Context, itemID string) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// List возвращает все заказы, новые первыми.
	List(ctx context.Context, limit int) ([]Order, error)
	// Save применяет изменения статусов с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// PaymentRepository хранит попытки оплаты.
type PaymentRepository interface {
	Create(ctx context.Context, payment Payment) error
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
}

// StatusEventRepository хранит журнал статусов заказа.
type StatusEventRepository interface {
	Append(ctx context.Context, event OrderStatusEvent) error
	ListByOrder(ctx context.Context, orderID string) ([]OrderStatusEvent, error)
}

// ShipmentRepository хранит отправления.
type ShipmentRepository interface {
	// Upsert создаёт или обновляет отправление заказа.
	Upsert(ctx context.Context, shipment Shipment) error
	GetByOrder(ctx context.Context, orderID string) (Shipment, error)
}

// OutboxWriter записывает события в transactional outbox.
type OutboxWriter interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// OutboxRepository: представление outbox для воркера публикации.
type OutboxRepository interface {
	OutboxWriter
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// IdempotencyRepository хранит состояние обработки запросов по Idempotency-Key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
