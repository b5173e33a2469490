package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/teslashibe/go-waiter/pkg/order"
)

// ErrInvalidArgs wraps every argument decoding failure.
var ErrInvalidArgs = errors.New("tools: invalid arguments")

// GetMenuItemsArgs are the arguments of get_menu_items.
type GetMenuItemsArgs struct {
	Category string `json:"category,omitempty"`
}

// CreateOrderArgs are the arguments of create_order. Items maps menu
// item ids to quantities.
type CreateOrderArgs struct {
	Items           order.Items `json:"items"`
	SpecialRequests string      `json:"special_requests,omitempty"`
}

// CreateDeliveryArgs are the arguments of create_delivery.
type CreateDeliveryArgs struct {
	OrderID         int64  `json:"order_id"`
	DeliveryAddress string `json:"delivery_address"`
	PhoneNumber     string `json:"phone_number,omitempty"`
}

// GetOrderStatusArgs are the arguments of get_order_status.
type GetOrderStatusArgs struct {
	PhoneNumber string `json:"phone_number"`
}

// decodeArgs strictly decodes a function call's argument map into dst.
// Unknown keys, wrong types and missing or null required keys fail.
func decodeArgs(args map[string]any, dst any, required ...string) error {
	for _, k := range required {
		if v, ok := args[k]; !ok || v == nil {
			return fmt.Errorf("%w: missing %q", ErrInvalidArgs, k)
		}
	}
	if len(args) == 0 {
		return nil
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}
