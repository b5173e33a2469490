package order

import "context"

// Store is the persistence contract behind the tools gateway. Each call
// stands alone; no transaction spans two calls.
type Store interface {
	// ListMenu returns available items, filtered by exact category when
	// category is non-empty.
	ListMenu(ctx context.Context, category string) ([]MenuItem, error)

	// CreateOrder prices every item and persists the order. Any unknown
	// item aborts the call before anything is written.
	CreateOrder(ctx context.Context, o NewOrder) (Order, error)

	// CreateDelivery inserts d as given.
	CreateDelivery(ctx context.Context, d Delivery) error

	// DeliveriesByPhone returns deliveries joined with their orders.
	DeliveriesByPhone(ctx context.Context, phone string) ([]DeliveryStatusRecord, error)

	// AdvanceDelivery moves a delivery one status forward.
	AdvanceDelivery(ctx context.Context, orderID int64) (Delivery, error)

	Close()
}
