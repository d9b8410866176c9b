package services

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/repositories"
)

// Domain aliases keep service signatures short.
type (
	Principal       = domain.Principal
	Address         = domain.Address
	Customer        = domain.Customer
	Product         = domain.Product
	PriceOverride   = domain.PriceOverride
	PriceQuote      = domain.PriceQuote
	Cart            = domain.Cart
	CartLine        = domain.CartLine
	CartTotals      = domain.CartTotals
	Order           = domain.Order
	OrderItem       = domain.OrderItem
	OrderEvent      = domain.OrderEvent
	RemittanceFile  = domain.RemittanceFile
	InvoiceDocument = domain.InvoiceDocument
	SupplierInfo    = domain.SupplierInfo
)

// EventLogger is the structured logging hook injected into every service.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

// PricingService resolves customer-specific unit prices and manages overrides.
type PricingService interface {
	// ResolvePrice never fails; any lookup problem falls back to the list price.
	ResolvePrice(ctx context.Context, actor Principal, customerID string, product Product) PriceQuote
	ResolveCatalog(ctx context.Context, actor Principal, customerID string, products []Product) []PriceQuote
	ListOverrides(ctx context.Context, actor Principal, customerID string) ([]PriceOverride, error)
	UpsertOverride(ctx context.Context, actor Principal, cmd UpsertPriceOverrideCommand) (PriceOverride, error)
	QuoteProducts(ctx context.Context, actor Principal, customerID string, productIDs []string) ([]PriceQuote, error)
	BackfillProduct(ctx context.Context, actor Principal, product Product) (BackfillResult, error)
	BackfillProductByID(ctx context.Context, actor Principal, productID string) (BackfillResult, error)
}

// UpsertPriceOverrideCommand sets the unit price of one product for one customer.
type UpsertPriceOverrideCommand struct {
	CustomerID string
	ProductID  string
	UnitPrice  decimal.Decimal
}

// BackfillResult reports how many identity-priced rows were created.
type BackfillResult struct {
	Created int
	Skipped int
}

// CartService manages the per-customer cart document.
type CartService interface {
	GetCart(ctx context.Context, actor Principal, customerID string) (Cart, error)
	AddItem(ctx context.Context, actor Principal, cmd AddCartItemCommand) (Cart, error)
	UpdateQuantity(ctx context.Context, actor Principal, cmd UpdateCartQuantityCommand) (Cart, error)
	RemoveItem(ctx context.Context, actor Principal, customerID, productID string) (Cart, error)
	Clear(ctx context.Context, actor Principal, customerID string) (Cart, error)
	AckAttention(ctx context.Context, actor Principal, customerID string) (Cart, error)
	Totals(ctx context.Context, actor Principal, customerID string) (CartTotals, error)
}

// AddCartItemCommand adds quantity units of a catalog product to the cart.
type AddCartItemCommand struct {
	CustomerID string
	ProductID  string
	Quantity   int
}

// UpdateCartQuantityCommand replaces the quantity of an existing line.
type UpdateCartQuantityCommand struct {
	CustomerID string
	ProductID  string
	Quantity   int
}

// OrderService covers order placement, reads and the admin state machine.
type OrderService interface {
	PlaceOrder(ctx context.Context, actor Principal, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, actor Principal, orderID string) (Order, error)
	ListOrders(ctx context.Context, actor Principal, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, actor Principal, cmd OrderStatusTransitionCommand) (Order, error)
	TransitionPaymentStatus(ctx context.Context, actor Principal, cmd PaymentStatusTransitionCommand) (Order, error)
	CorrectOrder(ctx context.Context, actor Principal, cmd CorrectOrderCommand) (Order, error)
	Cancel(ctx context.Context, actor Principal, cmd CancelOrderCommand) (Order, error)
}

// ShippingSelection picks the stored company address or a custom block.
type ShippingSelection struct {
	UseCompanyAddress bool
	Address           Address
}

// PlaceOrderCommand converts the customer's cart into an order.
type PlaceOrderCommand struct {
	CustomerID    string
	Shipping      ShippingSelection
	ShippingTerms domain.ShippingTerms
}

// OrderListFilter narrows order listings. Customers are always scoped to themselves.
type OrderListFilter = repositories.OrderListFilter

// OrderStatusTransitionCommand moves an order's fulfilment status.
type OrderStatusTransitionCommand struct {
	OrderID         string
	TargetStatus    domain.OrderStatus
	ExpectedVersion *int64
}

// PaymentStatusTransitionCommand records the payment outcome of an order.
type PaymentStatusTransitionCommand struct {
	OrderID         string
	TargetStatus    domain.PaymentStatus
	ExpectedVersion *int64
}

// CancelOrderCommand cancels a pending order.
type CancelOrderCommand struct {
	OrderID         string
	ExpectedVersion *int64
}

// LineCorrection edits one order item. Either DiscountPrice (top-down) or LineSubtotal
// (bottom-up) may be supplied, not both.
type LineCorrection struct {
	Index         int
	DiscountPrice *decimal.Decimal
	ClearDiscount bool
	Quantity      *int
	LineSubtotal  *decimal.Decimal
}

// CorrectOrderCommand is the admin line-item correction request.
type CorrectOrderCommand struct {
	OrderID         string
	ExpectedVersion *int64
	Lines           []LineCorrection
	ShippingCost    *decimal.Decimal
	Subtotal        *decimal.Decimal
}

// PaymentService orchestrates hosted checkout and bank transfer flows.
type PaymentService interface {
	CreateCheckoutSession(ctx context.Context, actor Principal, orderID string) (CheckoutSessionResult, error)
	RequestTT(ctx context.Context, actor Principal, orderID string) (Order, error)
	UploadRemittance(ctx context.Context, actor Principal, cmd UploadRemittanceCommand) (RemittanceFile, error)
	DeleteRemittance(ctx context.Context, actor Principal, orderID, fileID string) (Order, error)
	RemittanceDownloadURL(ctx context.Context, actor Principal, orderID, fileID string) (string, error)
}

// CheckoutSessionResult is returned to the client for the redirect.
type CheckoutSessionResult struct {
	SessionID   string
	RedirectURL string
	ExpiresAt   time.Time
	Order       Order
}

// UploadRemittanceCommand carries one piece of bank transfer evidence.
type UploadRemittanceCommand struct {
	OrderID     string
	FileName    string
	ContentType string
	Size        int64
	Data        io.Reader
}

// InvoiceService loads the collaborators needed to assemble an invoice.
type InvoiceService interface {
	GetInvoice(ctx context.Context, actor Principal, orderID string) (InvoiceDocument, error)
}

// RemittanceReconciler cleans orphaned remittance blobs.
type RemittanceReconciler interface {
	Reconcile(ctx context.Context, now time.Time) (ReconcileReport, error)
}

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Scanned            int
	OrphansDeleted     int
	OrphansPending     int
	DanglingReferences []DanglingReference
	Failures           int
}

// DanglingReference is an order entry whose blob no longer exists.
type DanglingReference struct {
	OrderID string
	FileID  string
	Path    string
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderMetrics records order counters.
type OrderMetrics interface {
	IncPlaced()
	IncTransition(field, to string)
}

// JobMetrics records background job runs.
type JobMetrics interface {
	ObserveRun(job string, duration time.Duration, err error)
	AddItems(job, outcome string, n int)
}
