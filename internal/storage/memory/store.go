package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// state содержит все данные in-memory хранилища.
type state struct {
	products  map[string]domain.Product
	variants  map[string]domain.Variant
	levels    map[string]domain.InventoryLevel
	ledger    []domain.InventoryTransaction
	carts     map[string]domain.Cart
	cartItems map[string]domain.CartItem
	orders    map[string]domain.Order
	payments  []domain.Payment
	events    []domain.OrderStatusEvent
	shipments map[string]domain.Shipment
	outbox    map[string]outboxRecord
	seq       int64

	journal *journal
}

func newState() *state {
	return &state{
		products:  make(map[string]domain.Product),
		variants:  make(map[string]domain.Variant),
		levels:    make(map[string]domain.InventoryLevel),
		carts:     make(map[string]domain.Cart),
		cartItems: make(map[string]domain.CartItem),
		orders:    make(map[string]domain.Order),
		shipments: make(map[string]domain.Shipment),
		outbox:    make(map[string]outboxRecord),
	}
}

// put записывает значение в map и, если идёт транзакция, запоминает прежнее для отката.
func put[K comparable, V any](s *state, m map[K]V, key K, value V) {
	if s.journal != nil {
		prev, existed := m[key]
		s.journal.undo = append(s.journal.undo, func() {
			if existed {
				m[key] = prev
			} else {
				delete(m, key)
			}
		})
	}
	m[key] = value
}

// remove удаляет ключ с тем же журналированием, что и put.
func remove[K comparable, V any](s *state, m map[K]V, key K) {
	prev, existed := m[key]
	if !existed {
		return
	}
	if s.journal != nil {
		s.journal.undo = append(s.journal.undo, func() { m[key] = prev })
	}
	delete(m, key)
}

// journal хранит всё, что нужно для отката одной транзакции. Журналы
// append-only срезов не ведутся: их откатывают усечением до исходной длины.
type journal struct {
	undo     []func()
	ledger   int
	payments int
	events   int
	seq      int64
}

func (s *state) begin() {
	s.journal = &journal{
		ledger:   len(s.ledger),
		payments: len(s.payments),
		events:   len(s.events),
		seq:      s.seq,
	}
}

func (s *state) commit() {
	s.journal = nil
}

func (s *state) rollback() {
	j := s.journal
	if j == nil {
		return
	}
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	clear(s.ledger[j.ledger:])
	s.ledger = s.ledger[:j.ledger]
	clear(s.payments[j.payments:])
	s.payments = s.payments[:j.payments]
	clear(s.events[j.events:])
	s.events = s.events[:j.events]
	s.seq = j.seq
	s.journal = nil
}

func (s *state) nextSeq() int64 {
	s.seq++
	return s.seq
}

// Store реализует domain.Store в памяти для локальной разработки и тестов.
// Транзакции выполняются последовательно и пишут прямо в состояние; при ошибке
// или панике в fn изменения откатываются по журналу.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{state: newState()}
}

// WithinTx выполняет fn атомарно. Вложенные вызовы WithinTx из fn не поддерживаются.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.begin()
	committed := false
	defer func() {
		if !committed {
			s.state.rollback()
		}
	}()

	if err := fn(ctx, &memTx{st: s.state}); err != nil {
		return err
	}
	s.state.commit()
	committed = true
	return nil
}

// Outbox возвращает представление outbox для воркера публикации.
func (s *Store) Outbox() domain.OutboxRepository {
	return &outboxRepositoryInMemory{store: s}
}

// Ping всегда успешен; нужен для health-check наравне с Postgres.
func (s *Store) Ping(context.Context) error {
	return nil
}

type memTx struct {
	st *state
}

func (t *memTx) Catalog() domain.CatalogRepository          { return catalogRepo{st: t.st} }
func (t *memTx) Inventory() domain.InventoryRepository      { return inventoryRepo{st: t.st} }
func (t *memTx) Carts() domain.CartRepository               { return cartRepo{st: t.st} }
func (t *memTx) Orders() domain.OrderRepository             { return orderRepo{st: t.st} }
func (t *memTx) Payments() domain.PaymentRepository         { return paymentRepo{st: t.st} }
func (t *memTx) StatusEvents() domain.StatusEventRepository { return statusEventRepo{st: t.st} }
func (t *memTx) Shipments() domain.ShipmentRepository       { return shipmentRepo{st: t.st} }
func (t *memTx) Outbox() domain.OutboxWriter                { return outboxWriter{st: t.st} }

var (
	_ domain.Store = (*Store)(nil)
	_ domain.Tx    = (*memTx)(nil)
)
