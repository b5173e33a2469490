// Package order holds the food-ordering domain: menu items, orders and
// deliveries, plus the Store contract the tools gateway runs against.
package order

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Category is a menu section.
type Category string

const (
	CategoryMains     Category = "Mains"
	CategoryBeverages Category = "Beverages"
	CategorySides     Category = "Sides"
	CategoryDesserts  Category = "Desserts"
)

// Categories lists every known category in menu order.
var Categories = []Category{CategoryMains, CategoryBeverages, CategorySides, CategoryDesserts}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// DeliveryStatus tracks a delivery through the kitchen and courier.
type DeliveryStatus string

const (
	StatusPreparing DeliveryStatus = "PREPARING"
	StatusOnRoute   DeliveryStatus = "ON_ROUTE"
	StatusDelivered DeliveryStatus = "DELIVERED"
)

var statusRank = map[DeliveryStatus]int{
	StatusPreparing: 0,
	StatusOnRoute:   1,
	StatusDelivered: 2,
}

// Valid reports whether s is a known status.
func (s DeliveryStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Next returns the status that follows s. Delivered is final.
func (s DeliveryStatus) Next() (DeliveryStatus, error) {
	switch s {
	case StatusPreparing:
		return StatusOnRoute, nil
	case StatusOnRoute:
		return StatusDelivered, nil
	case StatusDelivered:
		return s, ErrStatusFinal
	default:
		return s, fmt.Errorf("order: unknown delivery status %q", s)
	}
}

// CanAdvanceTo reports whether moving from s to next is forward progress.
func (s DeliveryStatus) CanAdvanceTo(next DeliveryStatus) bool {
	a, ok1 := statusRank[s]
	b, ok2 := statusRank[next]
	return ok1 && ok2 && b > a
}

// MenuItem is read-only reference data owned by the store.
type MenuItem struct {
	ItemID      int64           `json:"item_id"`
	Category    Category        `json:"category"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	IsAvailable bool            `json:"is_available"`
}

// Items maps menu item ids to quantities. It serializes as a JSON object
// keyed by the decimal item id.
type Items map[int64]int

// IDs returns the item ids in ascending order.
func (it Items) IDs() []int64 {
	ids := make([]int64, 0, len(it))
	for id := range it {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Validate rejects empty orders and non-positive quantities.
func (it Items) Validate() error {
	if len(it) == 0 {
		return ErrEmptyOrder
	}
	for _, id := range it.IDs() {
		if it[id] <= 0 {
			return fmt.Errorf("%w: item %d has quantity %d", ErrInvalidQuantity, id, it[id])
		}
	}
	return nil
}

// Order is created once per create_order call and never modified.
type Order struct {
	OrderID         int64           `json:"order_id"`
	Items           Items           `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	SpecialRequests string          `json:"special_requests,omitempty"`
}

// NewOrder is the input to Store.CreateOrder.
type NewOrder struct {
	Items           Items
	SpecialRequests string
}

// Delivery shares its key with the order it delivers.
type Delivery struct {
	OrderID             int64          `json:"order_id"`
	OrderDate           time.Time      `json:"order_date"`
	DeliveryAddress     string         `json:"delivery_address"`
	Status              DeliveryStatus `json:"status"`
	CourierName         string         `json:"courier_name,omitempty"`
	CourierPhoneNumber  string         `json:"courier_phone_number,omitempty"`
	CustomerPhoneNumber string         `json:"customer_phone_number"`
}

// NewDelivery builds a delivery in its initial PREPARING state.
func NewDelivery(orderID int64, address, phone string, now time.Time) Delivery {
	return Delivery{
		OrderID:             orderID,
		OrderDate:           now,
		DeliveryAddress:     address,
		Status:              StatusPreparing,
		CustomerPhoneNumber: phone,
	}
}

// DeliveryStatusRecord is a delivery joined with its order.
type DeliveryStatusRecord struct {
	Delivery
	Order Order `json:"orders"`
}

// Errors.
var (
	ErrUnknownItem      = errors.New("order: unknown menu item")
	ErrInvalidQuantity  = errors.New("order: invalid quantity")
	ErrEmptyOrder       = errors.New("order: no items")
	ErrOrderNotFound    = errors.New("order: order not found")
	ErrDeliveryExists   = errors.New("order: delivery already exists")
	ErrDeliveryNotFound = errors.New("order: delivery not found")
	ErrStatusFinal      = errors.New("order: delivery already delivered")
)
