package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *MemoryStore {
	s := NewMemoryStore(DefaultMenu())
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestMemoryListMenu(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	t.Run("all available", func(t *testing.T) {
		items, err := s.ListMenu(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		for _, it := range items {
			if !it.IsAvailable {
				t.Errorf("unavailable item %d returned", it.ItemID)
			}
		}
		if len(items) != 9 {
			t.Errorf("expected 9 available items, got %d", len(items))
		}
	})

	t.Run("beverages only", func(t *testing.T) {
		items, err := s.ListMenu(ctx, "Beverages")
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 2 {
			t.Fatalf("expected 2 beverages, got %d", len(items))
		}
		for _, it := range items {
			if it.Category != CategoryBeverages {
				t.Errorf("got category %s", it.Category)
			}
		}
	})

	t.Run("unknown category is empty", func(t *testing.T) {
		items, err := s.ListMenu(ctx, "Soups")
		if err != nil {
			t.Fatal(err)
		}
		if items == nil || len(items) != 0 {
			t.Errorf("expected empty non-nil slice, got %v", items)
		}
	})
}

func TestMemoryCreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("persists total", func(t *testing.T) {
		s := newTestStore()
		o, err := s.CreateOrder(ctx, NewOrder{Items: Items{1: 2, 7: 1}, SpecialRequests: "no onions"})
		if err != nil {
			t.Fatal(err)
		}
		want := decimal.RequireFromString("29.97")
		if !o.TotalAmount.Equal(want) {
			t.Errorf("total = %s, want %s", o.TotalAmount, want)
		}
		stored, ok := s.Order(o.OrderID)
		if !ok || !stored.TotalAmount.Equal(want) {
			t.Errorf("stored order = %+v, %v", stored, ok)
		}
	})

	t.Run("unknown item persists nothing", func(t *testing.T) {
		s := newTestStore()
		_, err := s.CreateOrder(ctx, NewOrder{Items: Items{1: 1, 404: 2}})
		if !errors.Is(err, ErrUnknownItem) {
			t.Fatalf("expected ErrUnknownItem, got %v", err)
		}
		if s.OrderCount() != 0 {
			t.Errorf("expected no orders, got %d", s.OrderCount())
		}
	})

	t.Run("ids are unique under concurrency", func(t *testing.T) {
		s := newTestStore()
		var wg sync.WaitGroup
		ids := make(chan int64, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o, err := s.CreateOrder(ctx, NewOrder{Items: Items{4: 1}})
				if err != nil {
					t.Error(err)
					return
				}
				ids <- o.OrderID
			}()
		}
		wg.Wait()
		close(ids)
		seen := map[int64]bool{}
		for id := range ids {
			if seen[id] {
				t.Fatalf("duplicate id %d", id)
			}
			seen[id] = true
		}
	})
}

func TestMemoryDeliveries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	o, err := s.CreateOrder(ctx, NewOrder{Items: Items{2: 1}})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.CreateDelivery(ctx, NewDelivery(999, "x", "+1", fixedNow)); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if err := s.CreateDelivery(ctx, NewDelivery(o.OrderID, "1 Main St", "+1234567890", time.Time{})); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateDelivery(ctx, NewDelivery(o.OrderID, "1 Main St", "+1234567890", fixedNow)); !errors.Is(err, ErrDeliveryExists) {
		t.Fatalf("expected ErrDeliveryExists, got %v", err)
	}

	recs, err := s.DeliveriesByPhone(ctx, "+1234567890")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Status != StatusPreparing || recs[0].Order.OrderID != o.OrderID {
		t.Errorf("unexpected record %+v", recs[0])
	}
	if !recs[0].OrderDate.Equal(fixedNow) {
		t.Errorf("order date not defaulted: %v", recs[0].OrderDate)
	}

	none, err := s.DeliveriesByPhone(ctx, "+19999999999")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty result, got %v, %v", none, err)
	}

	d, err := s.AdvanceDelivery(ctx, o.OrderID)
	if err != nil || d.Status != StatusOnRoute {
		t.Fatalf("advance 1: %v, %v", d.Status, err)
	}
	d, err = s.AdvanceDelivery(ctx, o.OrderID)
	if err != nil || d.Status != StatusDelivered {
		t.Fatalf("advance 2: %v, %v", d.Status, err)
	}
	if _, err := s.AdvanceDelivery(ctx, o.OrderID); !errors.Is(err, ErrStatusFinal) {
		t.Fatalf("expected ErrStatusFinal, got %v", err)
	}
	if _, err := s.AdvanceDelivery(ctx, 12345); !errors.Is(err, ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
}

func TestMemoryCancelledContext(t *testing.T) {
	s := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ListMenu(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
