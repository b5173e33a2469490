package reststore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/order"
)

// fakeRest is a tiny PostgREST stand-in that understands the handful of
// queries the store issues.
type fakeRest struct {
	mu         sync.Mutex
	menu       []order.MenuItem
	orders     map[int64]order.Order
	deliveries map[int64]order.Delivery
	nextID     int64
	requests   []string
}

func newFakeRest() *fakeRest {
	return &fakeRest{
		menu:       order.DefaultMenu(),
		orders:     map[int64]order.Order{},
		deliveries: map[int64]order.Delivery{},
		nextID:     100,
	}
}

func eq(v string) string { return strings.TrimPrefix(v, "eq.") }

func (f *fakeRest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	if r.Header.Get("apikey") != "anon" || r.Header.Get("Authorization") != "Bearer anon" {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "Invalid API key"})
		return
	}

	q := r.URL.Query()
	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	switch {
	case table == "menu" && r.Method == http.MethodGet:
		out := []map[string]any{}
		if in := q.Get("item_id"); in != "" {
			want := map[string]bool{}
			for _, id := range strings.Split(strings.Trim(strings.TrimPrefix(in, "in."), "()"), ",") {
				want[id] = true
			}
			for _, m := range f.menu {
				if want[strconv.FormatInt(m.ItemID, 10)] {
					p, _ := m.Price.Float64()
					out = append(out, map[string]any{"item_id": m.ItemID, "price": p})
				}
			}
			json.NewEncoder(w).Encode(out)
			return
		}
		items := []order.MenuItem{}
		for _, m := range f.menu {
			if q.Get("is_available") == "eq.true" && !m.IsAvailable {
				continue
			}
			if c := q.Get("category"); c != "" && string(m.Category) != eq(c) {
				continue
			}
			items = append(items, m)
		}
		json.NewEncoder(w).Encode(items)

	case table == "orders" && r.Method == http.MethodPost:
		var body struct {
			Items           order.Items     `json:"items"`
			TotalAmount     decimal.Decimal `json:"total_amount"`
			SpecialRequests string          `json:"special_requests"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		o := order.Order{OrderID: f.nextID, Items: body.Items, TotalAmount: body.TotalAmount, SpecialRequests: body.SpecialRequests}
		f.orders[o.OrderID] = o
		f.nextID++
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]order.Order{o})

	case table == "deliveries" && r.Method == http.MethodPost:
		var d order.Delivery
		json.NewDecoder(r.Body).Decode(&d)
		if _, ok := f.orders[d.OrderID]; !ok {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"code": "23503", "message": "violates foreign key constraint"})
			return
		}
		if d.OrderDate.IsZero() {
			d.OrderDate = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		}
		f.deliveries[d.OrderID] = d
		w.WriteHeader(http.StatusCreated)

	case table == "deliveries" && r.Method == http.MethodGet:
		out := []order.DeliveryStatusRecord{}
		for id, d := range f.deliveries {
			if p := q.Get("customer_phone_number"); p != "" && d.CustomerPhoneNumber != eq(p) {
				continue
			}
			if oid := q.Get("order_id"); oid != "" && strconv.FormatInt(id, 10) != eq(oid) {
				continue
			}
			out = append(out, order.DeliveryStatusRecord{Delivery: d, Order: f.orders[id]})
		}
		json.NewEncoder(w).Encode(out)

	case table == "deliveries" && r.Method == http.MethodPatch:
		id, _ := strconv.ParseInt(eq(q.Get("order_id")), 10, 64)
		d, ok := f.deliveries[id]
		if !ok || string(d.Status) != eq(q.Get("status")) {
			json.NewEncoder(w).Encode([]order.Delivery{})
			return
		}
		var patch struct {
			Status order.DeliveryStatus `json:"status"`
		}
		json.NewDecoder(r.Body).Decode(&patch)
		d.Status = patch.Status
		f.deliveries[id] = d
		json.NewEncoder(w).Encode([]order.Delivery{d})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestStore(t *testing.T) (*Store, *fakeRest) {
	t.Helper()
	fake := newFakeRest()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s, err := New(Config{URL: srv.URL + "/", AnonKey: "anon", Client: srv.Client(), Logger: log.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	return s, fake
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(Config{URL: "https://x.supabase.co"}); err == nil {
		t.Fatal("expected error without anon key")
	}
}

func TestListMenu(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	items, err := s.ListMenu(ctx, "Beverages")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 beverages, got %d", len(items))
	}
	for _, it := range items {
		if it.Category != order.CategoryBeverages || !it.IsAvailable {
			t.Errorf("unexpected item %+v", it)
		}
	}

	none, err := s.ListMenu(ctx, "Soups")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty, got %v, %v", none, err)
	}
}

func TestCreateOrder(t *testing.T) {
	t.Run("prices and inserts", func(t *testing.T) {
		s, fake := newTestStore(t)
		o, err := s.CreateOrder(context.Background(), order.NewOrder{Items: order.Items{1: 1, 5: 2}, SpecialRequests: "extra ice"})
		if err != nil {
			t.Fatal(err)
		}
		if o.OrderID != 100 {
			t.Errorf("order id = %d", o.OrderID)
		}
		if !o.TotalAmount.Equal(decimal.RequireFromString("18.49")) {
			t.Errorf("total = %s", o.TotalAmount)
		}
		if fake.orders[100].SpecialRequests != "extra ice" {
			t.Errorf("special requests not stored")
		}
	})

	t.Run("unknown item never inserts", func(t *testing.T) {
		s, fake := newTestStore(t)
		_, err := s.CreateOrder(context.Background(), order.NewOrder{Items: order.Items{1: 1, 555: 1}})
		if !errors.Is(err, order.ErrUnknownItem) {
			t.Fatalf("expected ErrUnknownItem, got %v", err)
		}
		for _, r := range fake.requests {
			if r == "POST /rest/v1/orders" {
				t.Fatal("order was posted despite unknown item")
			}
		}
	})
}

func TestDeliveries(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	err := s.CreateDelivery(ctx, order.NewDelivery(1, "nowhere", "+1", time.Time{}))
	if !errors.Is(err, order.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	o, err := s.CreateOrder(ctx, order.NewOrder{Items: order.Items{2: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateDelivery(ctx, order.NewDelivery(o.OrderID, "1 Main St", "+1234567890", time.Time{})); err != nil {
		t.Fatal(err)
	}

	recs, err := s.DeliveriesByPhone(ctx, "+1234567890")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Status != order.StatusPreparing || recs[0].Order.OrderID != o.OrderID {
		t.Fatalf("unexpected records %+v", recs)
	}

	empty, err := s.DeliveriesByPhone(ctx, "+10000000000")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty, got %v, %v", empty, err)
	}

	d, err := s.AdvanceDelivery(ctx, o.OrderID)
	if err != nil || d.Status != order.StatusOnRoute {
		t.Fatalf("advance: %v, %v", d.Status, err)
	}
	if _, err := s.AdvanceDelivery(ctx, 42); !errors.Is(err, order.ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
}

func TestDeliveriesByPhoneLegacyRows(t *testing.T) {
	const body = `[{
		"order_id": 12,
		"order_date": "2025-03-01T12:30:00.123456",
		"delivery_address": "1 Main St",
		"status": "ON_ROUTE",
		"courier_name": null,
		"customer_phone_number": 1234567890,
		"orders": {"order_id": 12, "items": "{\"1\": 2, \"7\": 1}", "total_amount": 28.47, "special_requests": null}
	}]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL, AnonKey: "anon", Client: srv.Client(), Logger: log.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	recs, err := s.DeliveriesByPhone(context.Background(), "1234567890")
	if err != nil {
		t.Fatalf("DeliveriesByPhone: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	r := recs[0]
	if r.CustomerPhoneNumber != "1234567890" {
		t.Errorf("phone = %q", r.CustomerPhoneNumber)
	}
	want := time.Date(2025, 3, 1, 12, 30, 0, 123456000, time.UTC)
	if !r.OrderDate.Equal(want) {
		t.Errorf("order date = %v, want %v", r.OrderDate, want)
	}
	if r.Status != order.StatusOnRoute {
		t.Errorf("status = %s", r.Status)
	}
	if r.Order.Items[1] != 2 || r.Order.Items[7] != 1 || len(r.Order.Items) != 2 {
		t.Errorf("items = %v", r.Order.Items)
	}
	if !r.Order.TotalAmount.Equal(decimal.RequireFromString("28.47")) {
		t.Errorf("total = %s", r.Order.TotalAmount)
	}
}

func TestAPIError(t *testing.T) {
	fake := newFakeRest()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, _ := New(Config{URL: srv.URL, AnonKey: "wrong", Client: srv.Client(), Logger: log.Discard()})
	_, err := s.ListMenu(context.Background(), "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "Invalid API key" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}
