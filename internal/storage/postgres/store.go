package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// querier: общее подмножество *sql.DB и *sql.Tx, которым пользуются репозитории.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store: PostgreSQL-реализация domain.Store.
type Store struct {
	db *sql.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithinTx выполняет fn в транзакции READ COMMITTED. Конкурирующие списания
// сериализуются блокировками строк остатков (GetForUpdate).
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, &pgTx{q: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Outbox возвращает outbox-репозиторий вне бизнес-транзакций (для воркера).
func (s *Store) Outbox() domain.OutboxRepository {
	return outboxRepository{q: s.db}
}

type pgTx struct {
	q querier
}

func (t *pgTx) Catalog() domain.CatalogRepository          { return catalogRepository{q: t.q} }
func (t *pgTx) Inventory() domain.InventoryRepository      { return inventoryRepository{q: t.q} }
func (t *pgTx) Carts() domain.CartRepository               { return cartRepository{q: t.q} }
func (t *pgTx) Orders() domain.OrderRepository             { return orderRepository{q: t.q} }
func (t *pgTx) Payments() domain.PaymentRepository         { return paymentRepository{q: t.q} }
func (t *pgTx) StatusEvents() domain.StatusEventRepository { return statusEventRepository{q: t.q} }
func (t *pgTx) Shipments() domain.ShipmentRepository       { return shipmentRepository{q: t.q} }
func (t *pgTx) Outbox() domain.OutboxWriter                { return outboxRepository{q: t.q} }

var (
	_ domain.Store = (*Store)(nil)
	_ domain.Tx    = (*pgTx)(nil)
)
