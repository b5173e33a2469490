package pgstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/order"
)

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(Migrations(), ".")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(entries))
	}
	for _, e := range entries {
		b, err := fs.ReadFile(Migrations(), e.Name())
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(b), "-- +goose Up") || !strings.Contains(string(b), "-- +goose Down") {
			t.Errorf("%s is missing goose annotations", e.Name())
		}
	}
}

func TestSeedMatchesDefaultMenu(t *testing.T) {
	b, err := fs.ReadFile(Migrations(), "00003_seed_menu.sql")
	if err != nil {
		t.Fatal(err)
	}
	seed := string(b)
	for _, m := range order.DefaultMenu() {
		if !strings.Contains(seed, "'"+m.Name+"'") {
			t.Errorf("seed is missing %q", m.Name)
		}
	}
}

// Integration tests run against a disposable database named by
// WAITER_TEST_DATABASE_URL.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("WAITER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("WAITER_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Connect(ctx, dsn, log.Discard())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	if _, err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestStoreIntegration(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	t.Run("menu filter", func(t *testing.T) {
		items, err := s.ListMenu(ctx, "Beverages")
		if err != nil {
			t.Fatal(err)
		}
		for _, it := range items {
			if it.Category != order.CategoryBeverages || !it.IsAvailable {
				t.Errorf("unexpected item %+v", it)
			}
		}
	})

	t.Run("order total", func(t *testing.T) {
		o, err := s.CreateOrder(ctx, order.NewOrder{Items: order.Items{1: 2, 4: 1}})
		if err != nil {
			t.Fatal(err)
		}
		if !o.TotalAmount.Equal(decimal.RequireFromString("29.48")) {
			t.Errorf("total = %s", o.TotalAmount)
		}
	})

	t.Run("unknown item rejected", func(t *testing.T) {
		_, err := s.CreateOrder(ctx, order.NewOrder{Items: order.Items{1: 1, 987654: 1}})
		if !errors.Is(err, order.ErrUnknownItem) {
			t.Fatalf("expected ErrUnknownItem, got %v", err)
		}
	})

	t.Run("delivery lifecycle", func(t *testing.T) {
		o, err := s.CreateOrder(ctx, order.NewOrder{Items: order.Items{9: 1}})
		if err != nil {
			t.Fatal(err)
		}
		phone := "+1555" + time.Now().Format("150405.000")
		if err := s.CreateDelivery(ctx, order.NewDelivery(o.OrderID, "1 Main St", phone, time.Time{})); err != nil {
			t.Fatal(err)
		}
		recs, err := s.DeliveriesByPhone(ctx, phone)
		if err != nil || len(recs) != 1 {
			t.Fatalf("got %v, %v", recs, err)
		}
		if recs[0].Status != order.StatusPreparing || recs[0].Order.Items[9] != 1 {
			t.Errorf("unexpected record %+v", recs[0])
		}
		d, err := s.AdvanceDelivery(ctx, o.OrderID)
		if err != nil || d.Status != order.StatusOnRoute {
			t.Fatalf("advance: %v, %v", d.Status, err)
		}
	})

	t.Run("delivery for missing order", func(t *testing.T) {
		err := s.CreateDelivery(ctx, order.NewDelivery(987654321, "x", "+1", time.Time{}))
		if !errors.Is(err, order.ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})
}
