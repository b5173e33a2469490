package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of fractional digits kept on money values.
const PriceScale = 2

// PriceOrder sums price times quantity over items using prices. Every
// item must have a price, otherwise nothing is returned and the error
// wraps ErrUnknownItem.
func PriceOrder(items Items, prices map[int64]decimal.Decimal) (decimal.Decimal, error) {
	if err := items.Validate(); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, id := range items.IDs() {
		price, ok := prices[id]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %d", ErrUnknownItem, id)
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(items[id]))))
	}
	return total.Round(PriceScale), nil
}
