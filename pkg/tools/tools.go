// Package tools exposes the order store to the live model as callable
// functions.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-waiter/internal/config"
	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/live"
	"github.com/teslashibe/go-waiter/pkg/order"
)

// Function names advertised to the model.
const (
	FuncGetMenuItems   = "get_menu_items"
	FuncCreateOrder    = "create_order"
	FuncCreateDelivery = "create_delivery"
	FuncGetOrderStatus = "get_order_status"
)

// Functions is the set of order operations the model can invoke.
type Functions interface {
	GetMenuItems(ctx context.Context, args GetMenuItemsArgs) ([]order.MenuItem, error)
	CreateOrder(ctx context.Context, args CreateOrderArgs) (*int64, error)
	CreateDelivery(ctx context.Context, args CreateDeliveryArgs) (bool, error)
	GetOrderStatus(ctx context.Context, args GetOrderStatusArgs) ([]order.DeliveryStatusRecord, error)
}

// Publisher is notified after orders and deliveries are persisted.
type Publisher interface {
	OrderCreated(ctx context.Context, o order.Order) error
	DeliveryCreated(ctx context.Context, d order.Delivery) error
}

// Config holds the gateway's dependencies.
type Config struct {
	Store order.Store

	// Publisher is optional.
	Publisher Publisher

	// CustomerPhone is used when create_delivery omits phone_number.
	CustomerPhone string

	// PublishTimeout bounds each event publish. Defaults to
	// DefaultPublishTimeout.
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// DefaultPublishTimeout bounds a publish when Config.PublishTimeout is
// zero.
const DefaultPublishTimeout = 3 * time.Second

// Gateway implements Functions against an order.Store and dispatches
// live function calls onto it.
type Gateway struct {
	store     order.Store
	publisher Publisher
	phone     string
	timeout   time.Duration
	log       *slog.Logger
	now       func() time.Time
}

// New creates a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Store == nil {
		return nil, errors.New("tools: store is required")
	}
	phone := cfg.CustomerPhone
	if phone == "" {
		phone = config.DefaultCustomerPhone
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.L()
	}
	return &Gateway{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		phone:     phone,
		timeout:   timeout,
		log:       logger.With("component", "tools"),
		now:       time.Now,
	}, nil
}

var _ Functions = (*Gateway)(nil)

// GetMenuItems returns available items. An unmatched category yields an
// empty list.
func (g *Gateway) GetMenuItems(ctx context.Context, args GetMenuItemsArgs) ([]order.MenuItem, error) {
	items, err := g.store.ListMenu(ctx, args.Category)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []order.MenuItem{}
	}
	return items, nil
}

// CreateOrder prices and persists an order, returning its id. Nothing is
// persisted and the id is nil when any item is unknown.
func (g *Gateway) CreateOrder(ctx context.Context, args CreateOrderArgs) (*int64, error) {
	o, err := g.store.CreateOrder(ctx, order.NewOrder{
		Items:           args.Items,
		SpecialRequests: args.SpecialRequests,
	})
	if err != nil {
		return nil, err
	}
	g.log.Info("order created", "order_id", o.OrderID, "total", o.TotalAmount.StringFixed(order.PriceScale))

	if g.publisher != nil {
		pctx, cancel := context.WithTimeout(ctx, g.timeout)
		if err := g.publisher.OrderCreated(pctx, o); err != nil {
			g.log.Warn("publish order.created failed", "order_id", o.OrderID, "error", err)
		}
		cancel()
	}
	id := o.OrderID
	return &id, nil
}

// CreateDelivery inserts a PREPARING delivery. The order id is not
// checked here; the store rejects orders that do not exist.
func (g *Gateway) CreateDelivery(ctx context.Context, args CreateDeliveryArgs) (bool, error) {
	phone := args.PhoneNumber
	if phone == "" {
		phone = g.phone
	}
	d := order.NewDelivery(args.OrderID, args.DeliveryAddress, phone, g.now())
	if err := g.store.CreateDelivery(ctx, d); err != nil {
		return false, err
	}
	g.log.Info("delivery created", "order_id", d.OrderID)

	if g.publisher != nil {
		pctx, cancel := context.WithTimeout(ctx, g.timeout)
		if err := g.publisher.DeliveryCreated(pctx, d); err != nil {
			g.log.Warn("publish delivery.created failed", "order_id", d.OrderID, "error", err)
		}
		cancel()
	}
	return true, nil
}

// GetOrderStatus returns deliveries for a phone number, newest first.
func (g *Gateway) GetOrderStatus(ctx context.Context, args GetOrderStatusArgs) ([]order.DeliveryStatusRecord, error) {
	recs, err := g.store.DeliveriesByPhone(ctx, args.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []order.DeliveryStatusRecord{}
	}
	return recs, nil
}

// Dispatch runs one function call and wraps the outcome as
// {"result": value}. Failures are folded into the result as an error
// string; the returned error only reports that the call failed.
func (g *Gateway) Dispatch(ctx context.Context, call live.FunctionCall) (live.FunctionResult, error) {
	res := live.FunctionResult{ID: call.ID, Name: call.Name}

	g.log.Info("executing function", "name", call.Name, "args", call.Args)

	value, err := g.invoke(ctx, call)
	if err != nil {
		var unknown *UnknownFunctionError
		if errors.As(err, &unknown) {
			res.Response = map[string]any{"result": err.Error()}
		} else {
			res.Response = map[string]any{"result": fmt.Sprintf("Error executing %s: %v", call.Name, err)}
		}
		g.log.Warn("function failed", "name", call.Name, "error", err)
		return res, err
	}
	res.Response = map[string]any{"result": value}
	return res, nil
}

func (g *Gateway) invoke(ctx context.Context, call live.FunctionCall) (any, error) {
	switch call.Name {
	case FuncGetMenuItems:
		var args GetMenuItemsArgs
		if err := decodeArgs(call.Args, &args); err != nil {
			return nil, err
		}
		return g.GetMenuItems(ctx, args)

	case FuncCreateOrder:
		var args CreateOrderArgs
		if err := decodeArgs(call.Args, &args, "items"); err != nil {
			return nil, err
		}
		return g.CreateOrder(ctx, args)

	case FuncCreateDelivery:
		var args CreateDeliveryArgs
		if err := decodeArgs(call.Args, &args, "order_id", "delivery_address"); err != nil {
			return nil, err
		}
		return g.CreateDelivery(ctx, args)

	case FuncGetOrderStatus:
		var args GetOrderStatusArgs
		if err := decodeArgs(call.Args, &args, "phone_number"); err != nil {
			return nil, err
		}
		return g.GetOrderStatus(ctx, args)

	default:
		return nil, &UnknownFunctionError{Name: call.Name}
	}
}

// UnknownFunctionError is returned by Dispatch for undeclared names.
type UnknownFunctionError struct {
	Name string
}

func (e *UnknownFunctionError) Error() string {
	return "Unknown function: " + e.Name
}
