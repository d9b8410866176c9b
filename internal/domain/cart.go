package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is a single product entry in a customer's cart.
type CartLine struct {
	ProductID         string
	Name              string
	UnitPrice         decimal.Decimal
	DiscountUnitPrice *decimal.Decimal
	Quantity          int
	ImageRef          string
	CategoryName      string
}

// EffectiveUnitPrice returns the discount unit price when set, otherwise the unit price.
func (l CartLine) EffectiveUnitPrice() decimal.Decimal {
	if l.DiscountUnitPrice != nil {
		return *l.DiscountUnitPrice
	}
	return l.UnitPrice
}

// LineTotal returns the rounded effective price multiplied by quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	return RoundMoney(l.EffectiveUnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity))))
}

// Cart is the single mutable cart document owned by a customer.
type Cart struct {
	CustomerID          string
	Items               []CartLine
	Attention           bool
	PendingClearOrderID string
	UpdatedAt           time.Time
}

// CartTotals is derived from the cart lines and never stored.
type CartTotals struct {
	TotalItems  int
	TotalAmount decimal.Decimal
}

// Totals derives the cart counters from its lines.
func (c Cart) Totals() CartTotals {
	totals := CartTotals{TotalAmount: decimal.Zero}
	for _, line := range c.Items {
		totals.TotalItems += line.Quantity
		totals.TotalAmount = totals.TotalAmount.Add(line.LineTotal())
	}
	totals.TotalAmount = RoundMoney(totals.TotalAmount)
	return totals
}

// IndexOf returns the position of the line for productID or -1.
func (c Cart) IndexOf(productID string) int {
	for i, line := range c.Items {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}
