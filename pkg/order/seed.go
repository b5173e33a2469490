package order

import "github.com/shopspring/decimal"

// DefaultMenu is the starter menu used by the memory store and the
// database seed migration.
func DefaultMenu() []MenuItem {
	p := decimal.RequireFromString
	return []MenuItem{
		{ItemID: 1, Category: CategoryMains, Name: "Margherita Pizza", Description: "Tomato, mozzarella and basil", Price: p("12.99"), IsAvailable: true},
		{ItemID: 2, Category: CategoryMains, Name: "Cheeseburger", Description: "Beef patty with cheddar and pickles", Price: p("10.50"), IsAvailable: true},
		{ItemID: 3, Category: CategoryMains, Name: "Chicken Caesar Wrap", Description: "Grilled chicken, romaine and parmesan", Price: p("9.25"), IsAvailable: true},
		{ItemID: 4, Category: CategoryBeverages, Name: "Lemonade", Description: "Fresh squeezed", Price: p("3.50"), IsAvailable: true},
		{ItemID: 5, Category: CategoryBeverages, Name: "Iced Tea", Description: "Unsweetened black tea", Price: p("2.75"), IsAvailable: true},
		{ItemID: 6, Category: CategoryBeverages, Name: "Mango Smoothie", Description: "Seasonal, currently unavailable", Price: p("5.00"), IsAvailable: false},
		{ItemID: 7, Category: CategorySides, Name: "French Fries", Description: "Skin-on, sea salt", Price: p("3.99"), IsAvailable: true},
		{ItemID: 8, Category: CategorySides, Name: "Garden Salad", Description: "Mixed greens with vinaigrette", Price: p("4.50"), IsAvailable: true},
		{ItemID: 9, Category: CategoryDesserts, Name: "Chocolate Brownie", Description: "Warm, with walnuts", Price: p("4.25"), IsAvailable: true},
		{ItemID: 10, Category: CategoryDesserts, Name: "Vanilla Ice Cream", Description: "Two scoops", Price: p("3.75"), IsAvailable: true},
	}
}
