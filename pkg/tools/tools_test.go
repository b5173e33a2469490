package tools

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/live"
	"github.com/teslashibe/go-waiter/pkg/order"
)

type recordingPublisher struct {
	mu         sync.Mutex
	orders     []order.Order
	deliveries []order.Delivery
	err        error
	block      bool
}

func (p *recordingPublisher) OrderCreated(ctx context.Context, o order.Order) error {
	p.mu.Lock()
	p.orders = append(p.orders, o)
	block, err := p.block, p.err
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (p *recordingPublisher) DeliveryCreated(ctx context.Context, d order.Delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deliveries = append(p.deliveries, d)
	return p.err
}

func newTestGateway(t *testing.T) (*Gateway, *order.MemoryStore, *recordingPublisher) {
	t.Helper()
	store := order.NewMemoryStore(order.DefaultMenu())
	pub := &recordingPublisher{}
	g, err := New(Config{Store: store, Publisher: pub, CustomerPhone: "+15550100", Logger: log.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return g, store, pub
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without store")
	}
}

func TestGetMenuItems(t *testing.T) {
	g, _, _ := newTestGateway(t)
	ctx := context.Background()

	t.Run("beverages only available", func(t *testing.T) {
		items, err := g.GetMenuItems(ctx, GetMenuItemsArgs{Category: "Beverages"})
		if err != nil {
			t.Fatalf("GetMenuItems: %v", err)
		}
		if len(items) == 0 {
			t.Fatal("expected beverages")
		}
		for _, it := range items {
			if it.Category != order.CategoryBeverages || !it.IsAvailable {
				t.Errorf("unexpected item %+v", it)
			}
		}
	})

	t.Run("all categories", func(t *testing.T) {
		items, err := g.GetMenuItems(ctx, GetMenuItemsArgs{})
		if err != nil {
			t.Fatalf("GetMenuItems: %v", err)
		}
		seen := map[order.Category]bool{}
		for _, it := range items {
			seen[it.Category] = true
		}
		if len(seen) != len(order.Categories) {
			t.Errorf("categories = %v", seen)
		}
	})

	t.Run("unknown category is empty", func(t *testing.T) {
		items, err := g.GetMenuItems(ctx, GetMenuItemsArgs{Category: "Soups"})
		if err != nil {
			t.Fatalf("GetMenuItems: %v", err)
		}
		if items == nil || len(items) != 0 {
			t.Errorf("items = %v, want empty non-nil", items)
		}
	})
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("prices and persists", func(t *testing.T) {
		g, store, pub := newTestGateway(t)
		id, err := g.CreateOrder(ctx, CreateOrderArgs{Items: order.Items{1: 2, 4: 1}, SpecialRequests: "no basil"})
		if err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
		if id == nil {
			t.Fatal("nil id")
		}
		o, ok := store.Order(*id)
		if !ok {
			t.Fatalf("order %d not persisted", *id)
		}
		want := decimal.RequireFromString("29.48")
		if !o.TotalAmount.Equal(want) {
			t.Errorf("total = %s, want %s", o.TotalAmount, want)
		}
		if len(pub.orders) != 1 || pub.orders[0].OrderID != *id {
			t.Errorf("published = %+v", pub.orders)
		}
	})

	t.Run("unknown item persists nothing", func(t *testing.T) {
		g, store, pub := newTestGateway(t)
		id, err := g.CreateOrder(ctx, CreateOrderArgs{Items: order.Items{1: 1, 999: 1}})
		if !errors.Is(err, order.ErrUnknownItem) {
			t.Errorf("err = %v, want ErrUnknownItem", err)
		}
		if id != nil {
			t.Errorf("id = %d, want nil", *id)
		}
		if store.OrderCount() != 0 {
			t.Errorf("orders = %d, want 0", store.OrderCount())
		}
		if len(pub.orders) != 0 {
			t.Error("nothing should be published")
		}
	})

	t.Run("publish failure does not fail the order", func(t *testing.T) {
		g, _, pub := newTestGateway(t)
		pub.err = errors.New("broker down")
		id, err := g.CreateOrder(ctx, CreateOrderArgs{Items: order.Items{2: 1}})
		if err != nil || id == nil {
			t.Errorf("CreateOrder = %v, %v", id, err)
		}
	})

	t.Run("unconfirmed publish is bounded", func(t *testing.T) {
		g, _, pub := newTestGateway(t)
		g.timeout = 20 * time.Millisecond
		pub.block = true

		done := make(chan struct{})
		var id *int64
		var err error
		go func() {
			id, err = g.CreateOrder(context.Background(), CreateOrderArgs{Items: order.Items{2: 1}})
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("CreateOrder blocked on the publisher")
		}
		if err != nil || id == nil {
			t.Errorf("CreateOrder = %v, %v", id, err)
		}
	})
}

func TestCreateDelivery(t *testing.T) {
	ctx := context.Background()
	g, store, pub := newTestGateway(t)

	id, err := g.CreateOrder(ctx, CreateOrderArgs{Items: order.Items{3: 1}})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	ok, err := g.CreateDelivery(ctx, CreateDeliveryArgs{OrderID: *id, DeliveryAddress: "1 Main St"})
	if err != nil || !ok {
		t.Fatalf("CreateDelivery = %v, %v", ok, err)
	}

	recs, err := store.DeliveriesByPhone(ctx, "+15550100")
	if err != nil {
		t.Fatalf("DeliveriesByPhone: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].Status != order.StatusPreparing {
		t.Errorf("status = %s, want PREPARING", recs[0].Status)
	}
	if len(pub.deliveries) != 1 {
		t.Errorf("published deliveries = %d", len(pub.deliveries))
	}

	t.Run("explicit phone", func(t *testing.T) {
		id2, _ := g.CreateOrder(ctx, CreateOrderArgs{Items: order.Items{3: 1}})
		if _, err := g.CreateDelivery(ctx, CreateDeliveryArgs{OrderID: *id2, DeliveryAddress: "2 Main St", PhoneNumber: "+15550199"}); err != nil {
			t.Fatalf("CreateDelivery: %v", err)
		}
		recs, _ := g.GetOrderStatus(ctx, GetOrderStatusArgs{PhoneNumber: "+15550199"})
		if len(recs) != 1 || recs[0].Status != order.StatusPreparing {
			t.Errorf("records = %+v", recs)
		}
	})

	t.Run("missing order", func(t *testing.T) {
		ok, err := g.CreateDelivery(ctx, CreateDeliveryArgs{OrderID: 4242, DeliveryAddress: "x"})
		if ok || !errors.Is(err, order.ErrOrderNotFound) {
			t.Errorf("CreateDelivery = %v, %v", ok, err)
		}
	})
}

func TestGetOrderStatusEmpty(t *testing.T) {
	g, _, _ := newTestGateway(t)
	recs, err := g.GetOrderStatus(context.Background(), GetOrderStatusArgs{PhoneNumber: "+1234567890"})
	if err != nil {
		t.Fatalf("GetOrderStatus: %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Errorf("records = %v, want empty list", recs)
	}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("get_menu_items", func(t *testing.T) {
		g, _, _ := newTestGateway(t)
		res, err := g.Dispatch(ctx, live.FunctionCall{ID: "1", Name: FuncGetMenuItems, Args: map[string]any{"category": "Beverages"}})
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		if res.ID != "1" || res.Name != FuncGetMenuItems {
			t.Errorf("result header = %+v", res)
		}
		items, ok := res.Response["result"].([]order.MenuItem)
		if !ok {
			t.Fatalf("result type = %T", res.Response["result"])
		}
		for _, it := range items {
			if it.Category != order.CategoryBeverages {
				t.Errorf("unexpected category %s", it.Category)
			}
		}
	})

	t.Run("create_order from model json", func(t *testing.T) {
		g, store, _ := newTestGateway(t)
		args := map[string]any{
			"items":            map[string]any{"1": float64(1), "7": float64(2)},
			"special_requests": "extra ketchup",
		}
		res, err := g.Dispatch(ctx, live.FunctionCall{Name: FuncCreateOrder, Args: args})
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		id, ok := res.Response["result"].(*int64)
		if !ok || id == nil {
			t.Fatalf("result = %#v", res.Response["result"])
		}
		o, _ := store.Order(*id)
		if o.Items[7] != 2 || o.SpecialRequests != "extra ketchup" {
			t.Errorf("order = %+v", o)
		}
	})

	t.Run("create_delivery then status", func(t *testing.T) {
		g, _, _ := newTestGateway(t)
		res, _ := g.Dispatch(ctx, live.FunctionCall{Name: FuncCreateOrder, Args: map[string]any{"items": map[string]any{"2": float64(1)}}})
		id := *res.Response["result"].(*int64)

		res, err := g.Dispatch(ctx, live.FunctionCall{Name: FuncCreateDelivery, Args: map[string]any{
			"order_id":         float64(id),
			"delivery_address": "9 Elm St",
		}})
		if err != nil || res.Response["result"] != true {
			t.Fatalf("create_delivery = %v, %v", res.Response, err)
		}

		res, err = g.Dispatch(ctx, live.FunctionCall{Name: FuncGetOrderStatus, Args: map[string]any{"phone_number": "+15550100"}})
		if err != nil {
			t.Fatalf("get_order_status: %v", err)
		}
		recs := res.Response["result"].([]order.DeliveryStatusRecord)
		if len(recs) != 1 || recs[0].Order.OrderID != id {
			t.Errorf("records = %+v", recs)
		}
	})

	t.Run("errors become result strings", func(t *testing.T) {
		g, _, _ := newTestGateway(t)
		tests := []struct {
			name string
			call live.FunctionCall
			want string
		}{
			{
				name: "unknown function",
				call: live.FunctionCall{Name: "launch_rocket"},
				want: "Unknown function: launch_rocket",
			},
			{
				name: "missing required key",
				call: live.FunctionCall{Name: FuncGetOrderStatus, Args: map[string]any{}},
				want: "Error executing get_order_status: tools: invalid arguments",
			},
			{
				name: "unknown key",
				call: live.FunctionCall{Name: FuncGetMenuItems, Args: map[string]any{"colour": "red"}},
				want: "Error executing get_menu_items: tools: invalid arguments",
			},
			{
				name: "wrong type",
				call: live.FunctionCall{Name: FuncCreateDelivery, Args: map[string]any{"order_id": "seven", "delivery_address": "x"}},
				want: "Error executing create_delivery: tools: invalid arguments",
			},
			{
				name: "fractional quantity",
				call: live.FunctionCall{Name: FuncCreateOrder, Args: map[string]any{"items": map[string]any{"1": 1.5}}},
				want: "Error executing create_order: tools: invalid arguments",
			},
			{
				name: "unknown menu item",
				call: live.FunctionCall{Name: FuncCreateOrder, Args: map[string]any{"items": map[string]any{"404": float64(1)}}},
				want: "Error executing create_order: order: unknown menu item",
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				res, err := g.Dispatch(ctx, tt.call)
				if err == nil {
					t.Fatal("expected error")
				}
				msg, ok := res.Response["result"].(string)
				if !ok || !strings.HasPrefix(msg, tt.want) {
					t.Errorf("result = %v, want prefix %q", res.Response["result"], tt.want)
				}
			})
		}
	})
}

func TestDeclarations(t *testing.T) {
	decls := Declarations()
	names := map[string]*live.Schema{}
	for _, d := range decls {
		names[d.Name] = d.Parameters
	}
	for _, n := range []string{FuncGetMenuItems, FuncCreateOrder, FuncCreateDelivery, FuncGetOrderStatus} {
		if _, ok := names[n]; !ok {
			t.Errorf("missing declaration %s", n)
		}
	}
	if req := names[FuncCreateDelivery].Required; len(req) != 2 {
		t.Errorf("create_delivery required = %v", req)
	}
	if names[FuncCreateDelivery].Properties["order_id"].Type != live.TypeInteger {
		t.Error("order_id should be an integer")
	}
}
