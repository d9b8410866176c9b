package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates fulfillment states.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// IsTerminal reports whether no further status transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentStatus enumerates payment states, independent of OrderStatus.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentMethod is chosen per order.
type PaymentMethod string

const (
	PaymentMethodNone PaymentMethod = ""
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodTT   PaymentMethod = "tt"
)

// ShippingTerms decides who bears the shipping cost.
type ShippingTerms string

const (
	ShippingTermsFOB ShippingTerms = "FOB"
	ShippingTermsCFR ShippingTerms = "CFR"
)

// Valid reports whether the terms are one of the supported codes.
func (t ShippingTerms) Valid() bool {
	return t == ShippingTermsFOB || t == ShippingTermsCFR
}

// OrderItem is the point-in-time snapshot of a cart line.
type OrderItem struct {
	ProductID     string
	Name          string
	Price         decimal.Decimal
	DiscountPrice *decimal.Decimal
	Quantity      int
	CategoryName  string
	ImageRef      string
}

// EffectiveUnitPrice returns the discount price when set, otherwise the snapshot price.
func (i OrderItem) EffectiveUnitPrice() decimal.Decimal {
	if i.DiscountPrice != nil {
		return *i.DiscountPrice
	}
	return i.Price
}

// LineTotal returns the rounded effective price multiplied by quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return RoundMoney(i.EffectiveUnitPrice().Mul(decimal.NewFromInt(int64(i.Quantity))))
}

// RemittanceFile is one uploaded piece of bank transfer evidence.
type RemittanceFile struct {
	ID          string
	Name        string
	URL         string
	ObjectPath  string
	ContentType string
	Size        int64
	UploadedAt  time.Time
	UploadedBy  string
}

// TTPayment holds the bank transfer evidence trail.
type TTPayment struct {
	RemittanceFiles []RemittanceFile
}

// Order is the immutable-after-creation envelope produced from a cart.
type Order struct {
	ID               string
	OrderID          string
	CustomerID       string
	CustomerName     string
	Items            []OrderItem
	ShipTo           Address
	ShippingTerms    ShippingTerms
	Subtotal         decimal.Decimal
	ShippingCost     decimal.Decimal
	ShippingEstimate *decimal.Decimal
	TotalAmount      decimal.Decimal
	Status           OrderStatus
	PaymentStatus    PaymentStatus
	PaymentMethod    PaymentMethod
	PaymentID        string
	TTPayment        *TTPayment
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	UpdatedBy        string
}

// ItemsSubtotal sums the rounded line totals of the order items.
func (o Order) ItemsSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.LineTotal())
	}
	return RoundMoney(sum)
}

// RemittanceFiles returns the evidence list or nil when T/T was never requested.
func (o Order) RemittanceFiles() []RemittanceFile {
	if o.TTPayment == nil {
		return nil
	}
	return o.TTPayment.RemittanceFiles
}

// OrderEvent is published after order state changes.
type OrderEvent struct {
	ID            string
	Type          string
	OrderID       string
	CustomerID    string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	ActorID       string
	Version       int64
	OccurredAt    time.Time
	Metadata      map[string]string
}
