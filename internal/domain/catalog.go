package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places every persisted amount is rounded to.
const MoneyPlaces = 2

// RoundMoney rounds an amount to MoneyPlaces (half away from zero).
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MoneyPlaces)
}

// Product is the catalog snapshot consumed by pricing, carts and invoices.
type Product struct {
	ID           string
	Name         string
	Description  string
	Price        decimal.Decimal
	CategoryName string
	GroupName    string
	ImageRef     string
	HSCode       string
	Origin       string
	WeightKg     decimal.Decimal
	UpdatedAt    time.Time
}

// PriceOverride replaces the list price of one product for one customer.
type PriceOverride struct {
	CustomerID   string
	ProductID    string
	UnitPrice    decimal.Decimal
	ProductName  string
	CategoryName string
	UpdatedAt    time.Time
	UpdatedBy    string
}

// PriceQuote is the resolved unit price for a customer/product pair.
type PriceQuote struct {
	ProductID       string
	ListPrice       decimal.Decimal
	EffectivePrice  decimal.Decimal
	DiscountPercent *int
}

// HasDiscount reports whether an override lowered the price.
func (q PriceQuote) HasDiscount() bool {
	return q.DiscountPercent != nil
}
