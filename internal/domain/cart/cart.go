package cart

import "github.com/shopspring/decimal"

// Item is a single cart line. Quantity is validated upstream to be >= 1 and
// UnitPrice to be non-negative; this package assumes both.
type Item struct {
	ProductID string
	Category  string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Cart holds the items being priced. Item order is irrelevant to valuation.
type Cart struct {
	Items []Item
}

// Value returns the total monetary value of the cart: the sum of
// unitPrice * quantity across all items.
func (c Cart) Value() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c.Items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	return sum
}

// TotalQuantity returns the sum of quantities across all items.
func (c Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// HasCategory reports whether at least one item belongs to any of the given
// categories.
func (c Cart) HasCategory(categories []string) bool {
	for _, item := range c.Items {
		for _, cat := range categories {
			if item.Category == cat {
				return true
			}
		}
	}
	return false
}
