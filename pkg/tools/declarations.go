package tools

import "github.com/teslashibe/go-waiter/pkg/live"

// Declarations returns the function declarations advertised to the model.
func (g *Gateway) Declarations() []live.FunctionDeclaration {
	return Declarations()
}

// Declarations returns the four order functions.
func Declarations() []live.FunctionDeclaration {
	return []live.FunctionDeclaration{
		{
			Name:        FuncGetMenuItems,
			Description: "Fetch available menu items, optionally filtered by category",
			Parameters: &live.Schema{
				Type: live.TypeObject,
				Properties: map[string]*live.Schema{
					"category": {
						Type:        live.TypeString,
						Description: "Optional category filter (Mains, Beverages, Sides, Desserts)",
					},
				},
			},
		},
		{
			Name:        FuncCreateOrder,
			Description: "Create a new order with items and return order_id",
			Parameters: &live.Schema{
				Type: live.TypeObject,
				Properties: map[string]*live.Schema{
					"items": {
						Type:        live.TypeObject,
						Description: "Dictionary mapping item_id to quantity",
					},
					"special_requests": {
						Type:        live.TypeString,
						Description: "Optional special requests from customer",
					},
				},
				Required: []string{"items"},
			},
		},
		{
			Name:        FuncCreateDelivery,
			Description: "Create delivery record for an order",
			Parameters: &live.Schema{
				Type: live.TypeObject,
				Properties: map[string]*live.Schema{
					"order_id": {
						Type:        live.TypeInteger,
						Description: "ID of the order to create delivery for",
					},
					"delivery_address": {
						Type:        live.TypeString,
						Description: "Customer's delivery address",
					},
					"phone_number": {
						Type:        live.TypeString,
						Description: "Optional customer phone number; defaults to the caller's number",
					},
				},
				Required: []string{"order_id", "delivery_address"},
			},
		},
		{
			Name:        FuncGetOrderStatus,
			Description: "Get order status and details by customer phone number",
			Parameters: &live.Schema{
				Type: live.TypeObject,
				Properties: map[string]*live.Schema{
					"phone_number": {
						Type:        live.TypeString,
						Description: "Customer's phone number",
					},
				},
				Required: []string{"phone_number"},
			},
		},
	}
}
