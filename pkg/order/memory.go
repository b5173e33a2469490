package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store. Orders are priced and inserted
// under one lock, and deliveries require an existing order the way the
// database foreign key does.
type MemoryStore struct {
	mu         sync.RWMutex
	menu       map[int64]MenuItem
	orders     map[int64]Order
	deliveries map[int64]Delivery
	nextID     int64
	now        func() time.Time
}

// NewMemoryStore creates a store seeded with menu.
func NewMemoryStore(menu []MenuItem) *MemoryStore {
	s := &MemoryStore{
		menu:       make(map[int64]MenuItem, len(menu)),
		orders:     make(map[int64]Order),
		deliveries: make(map[int64]Delivery),
		nextID:     1,
		now:        time.Now,
	}
	for _, m := range menu {
		s.menu[m.ItemID] = m
	}
	return s
}

var _ Store = (*MemoryStore)(nil)

// ListMenu implements Store.
func (s *MemoryStore) ListMenu(ctx context.Context, category string) ([]MenuItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := []MenuItem{}
	for _, m := range s.menu {
		if !m.IsAvailable {
			continue
		}
		if category != "" && string(m.Category) != category {
			continue
		}
		items = append(items, m)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	return items, nil
}

// CreateOrder implements Store.
func (s *MemoryStore) CreateOrder(ctx context.Context, o NewOrder) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prices := make(map[int64]decimal.Decimal, len(o.Items))
	for id := range o.Items {
		if m, ok := s.menu[id]; ok {
			prices[id] = m.Price
		}
	}
	total, err := PriceOrder(o.Items, prices)
	if err != nil {
		return Order{}, err
	}

	items := make(Items, len(o.Items))
	for id, q := range o.Items {
		items[id] = q
	}
	created := Order{
		OrderID:         s.nextID,
		Items:           items,
		TotalAmount:     total,
		SpecialRequests: o.SpecialRequests,
	}
	s.orders[created.OrderID] = created
	s.nextID++
	return created, nil
}

// CreateDelivery implements Store.
func (s *MemoryStore) CreateDelivery(ctx context.Context, d Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[d.OrderID]; !ok {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, d.OrderID)
	}
	if _, ok := s.deliveries[d.OrderID]; ok {
		return fmt.Errorf("%w: %d", ErrDeliveryExists, d.OrderID)
	}
	if d.OrderDate.IsZero() {
		d.OrderDate = s.now()
	}
	s.deliveries[d.OrderID] = d
	return nil
}

// DeliveriesByPhone implements Store. Newest orders come first.
func (s *MemoryStore) DeliveriesByPhone(ctx context.Context, phone string) ([]DeliveryStatusRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []DeliveryStatusRecord{}
	for id, d := range s.deliveries {
		if d.CustomerPhoneNumber != phone {
			continue
		}
		out = append(out, DeliveryStatusRecord{Delivery: d, Order: s.orders[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID > out[j].OrderID })
	return out, nil
}

// AdvanceDelivery implements Store.
func (s *MemoryStore) AdvanceDelivery(ctx context.Context, orderID int64) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[orderID]
	if !ok {
		return Delivery{}, fmt.Errorf("%w: %d", ErrDeliveryNotFound, orderID)
	}
	next, err := d.Status.Next()
	if err != nil {
		return d, err
	}
	d.Status = next
	s.deliveries[orderID] = d
	return d, nil
}

// Order returns a stored order by id.
func (s *MemoryStore) Order(id int64) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	return o, ok
}

// OrderCount returns how many orders have been persisted.
func (s *MemoryStore) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// Close implements Store.
func (s *MemoryStore) Close() {}
