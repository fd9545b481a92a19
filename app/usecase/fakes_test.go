package usecase

import (
	"context"
	"database/sql"
	"fmt"
	"order-service/app/domain"
	"order-service/config"
	"slices"
	"sync"
)

// memStore backs the repository fakes with a single shared state, the way
// one database backs both real repositories. Transactions hand out a unique
// *sql.Tx token and keep an undo journal per token; a failed transaction
// replays its journal in reverse. Undo entries are pure increments, so
// concurrent transactions roll back independently.
type memStore struct {
	mu       sync.Mutex
	products map[string]domain.Product
	history  []domain.StockHistoryEntry
	orders   map[string]domain.Order
	journals map[*sql.Tx][]func()

	failDeductFor  string
	failRefund     bool
	failAppendHist bool
}

func newMemStore(products ...domain.Product) *memStore {
	s := &memStore{
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
		journals: make(map[*sql.Tx][]func()),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *memStore) withTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	tx := new(sql.Tx)
	s.mu.Lock()
	s.journals[tx] = nil
	s.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		s.mu.Lock()
		undo := s.journals[tx]
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		delete(s.journals, tx)
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	delete(s.journals, tx)
	s.mu.Unlock()
	return nil
}

func (s *memStore) historyFor(productID string) []domain.StockHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StockHistoryEntry
	for _, e := range s.history {
		if e.ProductID == productID {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) product(id string) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id]
}

func (s *memStore) order(orderID string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	return o, ok
}

type fakeProductRepo struct {
	store *memStore
}

func (r *fakeProductRepo) GetByID(ctx context.Context, id string) (domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.products[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

func (r *fakeProductRepo) GetByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make(map[string]domain.Product)
	for _, id := range ids {
		if p, ok := r.store.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *fakeProductRepo) GetStockLevels(ctx context.Context, ids []string) (map[string]int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make(map[string]int64)
	for _, id := range ids {
		if p, ok := r.store.products[id]; ok {
			out[id] = p.StockRemaining
		}
	}
	return out, nil
}

func (r *fakeProductRepo) DeductStock(ctx context.Context, tx *sql.Tx, productID string, quantity int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.failDeductFor == productID {
		return fmt.Errorf("store unavailable")
	}

	p, ok := r.store.products[productID]
	if !ok || p.StockRemaining < quantity {
		return domain.ErrInsufficientStock
	}

	reservedCut := min(p.StockReserved, quantity)
	p.StockRemaining -= quantity
	p.StockReserved -= reservedCut
	r.store.products[productID] = p

	r.store.journals[tx] = append(r.store.journals[tx], func() {
		p := r.store.products[productID]
		p.StockRemaining += quantity
		p.StockReserved += reservedCut
		r.store.products[productID] = p
	})
	return nil
}

func (r *fakeProductRepo) RefundStock(ctx context.Context, tx *sql.Tx, productID string, quantity int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.failRefund {
		return fmt.Errorf("store unavailable")
	}

	p, ok := r.store.products[productID]
	if !ok {
		return domain.ErrNotFound
	}

	p.StockRemaining += quantity
	r.store.products[productID] = p

	r.store.journals[tx] = append(r.store.journals[tx], func() {
		p := r.store.products[productID]
		p.StockRemaining -= quantity
		r.store.products[productID] = p
	})
	return nil
}

func (r *fakeProductRepo) ReserveStock(ctx context.Context, tx *sql.Tx, productID string, quantity int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	p, ok := r.store.products[productID]
	if !ok || p.StockRemaining-p.StockReserved < quantity {
		return domain.ErrInsufficientStock
	}

	p.StockReserved += quantity
	r.store.products[productID] = p

	r.store.journals[tx] = append(r.store.journals[tx], func() {
		p := r.store.products[productID]
		p.StockReserved -= quantity
		r.store.products[productID] = p
	})
	return nil
}

func (r *fakeProductRepo) ReleaseStock(ctx context.Context, tx *sql.Tx, productID string, quantity int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	p, ok := r.store.products[productID]
	if !ok {
		return domain.ErrNotFound
	}

	cut := min(p.StockReserved, quantity)
	p.StockReserved -= cut
	r.store.products[productID] = p

	r.store.journals[tx] = append(r.store.journals[tx], func() {
		p := r.store.products[productID]
		p.StockReserved += cut
		r.store.products[productID] = p
	})
	return nil
}

func (r *fakeProductRepo) AppendStockHistory(ctx context.Context, tx *sql.Tx, entry domain.StockHistoryEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.failAppendHist {
		return fmt.Errorf("store unavailable")
	}

	entry.ID = int64(len(r.store.history) + 1)
	r.store.history = append(r.store.history, entry)

	r.store.journals[tx] = append(r.store.journals[tx], func() {
		for i, e := range r.store.history {
			if e.ID == entry.ID {
				r.store.history = append(r.store.history[:i], r.store.history[i+1:]...)
				break
			}
		}
	})
	return nil
}

func (r *fakeProductRepo) GetStockHistory(ctx context.Context, productID string) ([]domain.StockHistoryEntry, error) {
	return r.store.historyFor(productID), nil
}

func (r *fakeProductRepo) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	return r.store.withTransaction(ctx, fn)
}

type fakeOrderRepo struct {
	store *memStore
}

func (r *fakeOrderRepo) Create(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.orders[order.OrderID]; ok {
		return domain.ErrConflict
	}
	r.store.orders[order.OrderID] = *order

	orderID := order.OrderID
	r.store.journals[tx] = append(r.store.journals[tx], func() {
		delete(r.store.orders, orderID)
	})
	return nil
}

func (r *fakeOrderRepo) GetByOrderID(ctx context.Context, orderID string) (domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (r *fakeOrderRepo) ExistsByOrderID(ctx context.Context, orderID string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	_, ok := r.store.orders[orderID]
	return ok, nil
}

func (r *fakeOrderRepo) GetByUserID(ctx context.Context, userID string) ([]domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Order
	for _, o := range r.store.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) GetAll(ctx context.Context) ([]domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Order
	for _, o := range r.store.orders {
		out = append(out, o)
	}
	return out, nil
}

func (r *fakeOrderRepo) TransitionStatus(ctx context.Context, tx *sql.Tx, orderID string, from []domain.OrderStatus, to domain.OrderStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	o, ok := r.store.orders[orderID]
	if !ok || !slices.Contains(from, o.Status) {
		return domain.ErrInvalidTransition
	}
	prev := o.Status
	o.Status = to
	r.store.orders[orderID] = o

	r.store.journals[tx] = append(r.store.journals[tx], func() {
		o := r.store.orders[orderID]
		o.Status = prev
		r.store.orders[orderID] = o
	})
	return nil
}

func (r *fakeOrderRepo) UpdateShipment(ctx context.Context, orderID string, req domain.OrderUpdateRequest) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	o, ok := r.store.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	if req.Status != nil && o.Status.Terminal() {
		return domain.ErrInvalidTransition
	}
	if req.Status != nil {
		o.Status = *req.Status
	}
	if req.Carrier != nil {
		o.Carrier = *req.Carrier
	}
	if req.LastLocation != nil {
		o.LastLocation = *req.LastLocation
	}
	if req.EstDelivery != nil {
		o.EstDelivery = *req.EstDelivery
	}
	r.store.orders[orderID] = o
	return nil
}

func (r *fakeOrderRepo) Delete(ctx context.Context, tx *sql.Tx, orderID string, from []domain.OrderStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	o, ok := r.store.orders[orderID]
	if !ok || !slices.Contains(from, o.Status) {
		return domain.ErrConflict
	}
	delete(r.store.orders, orderID)

	r.store.journals[tx] = append(r.store.journals[tx], func() {
		r.store.orders[orderID] = o
	})
	return nil
}

func (r *fakeOrderRepo) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	return r.store.withTransaction(ctx, fn)
}

type fakeBroker struct {
	mu       sync.Mutex
	messages []domain.StockMessage
}

func (b *fakeBroker) PublishStockAvailable(ctx context.Context, data domain.StockMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, data)
	return nil
}

type fakeIdemStore struct {
	mu      sync.Mutex
	entries map[string]domain.OrderCreateResult
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{entries: make(map[string]domain.OrderCreateResult)}
}

func (s *fakeIdemStore) GetOrder(ctx context.Context, key string) (domain.OrderCreateResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.entries[key]
	return res, ok, nil
}

func (s *fakeIdemStore) SetOrder(ctx context.Context, key string, res domain.OrderCreateResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = res
	return nil
}

// testEnv wires the real usecases over the in-memory fakes.
type testEnv struct {
	store    *memStore
	broker   *fakeBroker
	idem     *fakeIdemStore
	verifier domain.StockVerifier
	ledger   domain.StockLedger
	orders   domain.OrderService
}

func newTestEnv(products ...domain.Product) *testEnv {
	store := newMemStore(products...)
	productRepo := &fakeProductRepo{store}
	orderRepo := &fakeOrderRepo{store}
	brk := &fakeBroker{}
	idem := newFakeIdemStore()

	cfg := &config.Config{}
	verifier := NewStockVerifier(productRepo, cfg)
	ledger := NewStockLedger(productRepo, brk, cfg)
	orders := NewOrderUsecase(orderRepo, productRepo, verifier, ledger, idem, cfg)

	return &testEnv{
		store:    store,
		broker:   brk,
		idem:     idem,
		verifier: verifier,
		ledger:   ledger,
		orders:   orders,
	}
}

func shippingAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		City:       "London",
		PostalCode: "EC1",
		Country:    "UK",
		Address:    "1 Analytical St",
		Phone:      "555-0100",
	}
}
