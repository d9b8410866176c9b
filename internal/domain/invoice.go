package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceDocument is the render-ready proforma invoice data contract.
type InvoiceDocument struct {
	InvoiceNumber string
	OrderID       string
	IssuedAt      time.Time
	Supplier      SupplierInfo
	Buyer         InvoiceParty
	ShipTo        Address
	ShippingTerms ShippingTerms
	Groups        []InvoiceCategoryGroup
	ItemsSubtotal decimal.Decimal
	ShippingCost  decimal.Decimal
	GrandTotal    decimal.Decimal
	PaymentMethod PaymentMethod
}

// InvoiceParty identifies the buyer on an invoice.
type InvoiceParty struct {
	CustomerID         string
	CompanyName        string
	ContactName        string
	Email              string
	Phone              string
	BillingAddress     Address
	VATNumber          string
	RegistrationNumber string
}

// InvoiceCategoryGroup lists the invoice lines of a single category.
type InvoiceCategoryGroup struct {
	CategoryName string
	Lines        []InvoiceLine
	Subtotal     decimal.Decimal
}

// InvoiceLine is one order item enriched with tax metadata.
type InvoiceLine struct {
	ProductID   string
	Name        string
	Description string
	HSCode      string
	Origin      string
	WeightKg    decimal.Decimal
	Quantity    int
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
}
