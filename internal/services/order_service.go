package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"maps"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/repositories"
)

const (
	orderEventPlaced                = "order.placed"
	orderEventStatusChanged         = "order.status_changed"
	orderEventPaymentStatusChanged  = "order.payment_status_changed"
	orderEventCorrected             = "order.corrected"
	orderEventCancelled             = "order.cancelled"
	orderEventPaymentMethodSelected = "order.payment_method_selected"
	orderEventRemittanceUploaded    = "order.remittance_uploaded"
	orderEventRemittanceDeleted     = "order.remittance_deleted"

	orderIDAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	defaultOrderPage    = 20
	maxOrderPage        = 100
	eventIDPrefix       = "evt_"
	orderIDSuffixLength = 2
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located or is not visible to the actor.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderForbidden indicates the actor lacks the role for the operation.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderUnavailable indicates a collaborator failed; the operation did not happen.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders            repositories.OrderRepository
	Carts             repositories.CartRepository
	Customers         repositories.CustomerRepository
	Catalog           repositories.CatalogRepository
	Events            OrderEventPublisher
	Metrics           OrderMetrics
	ShippingRatePerKg decimal.Decimal
	Clock             func() time.Time
	OrderIDGenerator  func(now time.Time) (string, error)
	EventIDGenerator  func() string
	Logger            EventLogger
}

type orderService struct {
	orders    repositories.OrderRepository
	carts     repositories.CartRepository
	customers repositories.CustomerRepository
	catalog   repositories.CatalogRepository
	events    OrderEventPublisher
	metrics   OrderMetrics
	cfrRate   decimal.Decimal
	clock     func() time.Time
	newID     func(time.Time) (string, error)
	logger    EventLogger
	writer    orderWriter
	notifier  orderNotifier
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.ShippingRatePerKg.IsNegative() {
		return nil, errors.New("order service: shipping rate must not be negative")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	utc := func() time.Time { return clock().UTC() }

	idGen := deps.OrderIDGenerator
	if idGen == nil {
		idGen = GenerateOrderID
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}

	return &orderService{
		orders:    deps.Orders,
		carts:     deps.Carts,
		customers: deps.Customers,
		catalog:   deps.Catalog,
		events:    deps.Events,
		metrics:   deps.Metrics,
		cfrRate:   deps.ShippingRatePerKg,
		clock:     utc,
		newID:     idGen,
		logger:    logger,
		writer:    newOrderWriter(deps.Orders, utc),
		notifier:  newOrderNotifier(deps.Events, deps.EventIDGenerator, utc, logger),
	}, nil
}

// GenerateOrderID returns ORD-YYYYMMDD-HHMMSS-XX. Uniqueness is not checked here; the
// repository create fails with a conflict on collision.
func GenerateOrderID(now time.Time) (string, error) {
	var suffix strings.Builder
	limit := big.NewInt(int64(len(orderIDAlphabet)))
	for range orderIDSuffixLength {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("order id suffix: %w", err)
		}
		suffix.WriteByte(orderIDAlphabet[n.Int64()])
	}
	now = now.UTC()
	return "ORD-" + now.Format("20060102") + "-" + now.Format("150405") + "-" + suffix.String(), nil
}

// PlaceOrder snapshots the customer's cart into a new order. The cart is marked with the
// order id before the order is written so that a failed clear is finished on the next cart
// load and a retried placement returns the same order.
func (s *orderService) PlaceOrder(ctx context.Context, actor Principal, cmd PlaceOrderCommand) (Order, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Order{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	if !actor.CanActFor(customerID) {
		return Order{}, ErrOrderForbidden
	}
	terms := cmd.ShippingTerms
	if terms == "" {
		terms = domain.ShippingTermsFOB
	}
	if !terms.Valid() {
		return Order{}, fmt.Errorf("%w: unsupported shipping terms %q", ErrOrderInvalidInput, terms)
	}

	cart, err := s.carts.Get(ctx, customerID)
	switch {
	case err == nil:
	case isRepositoryNotFound(err):
		return Order{}, &EmptyCartError{CustomerID: customerID}
	default:
		return Order{}, fmt.Errorf("%w: load cart: %v", ErrOrderUnavailable, err)
	}
	cart.CustomerID = customerID

	if existing, ok := s.pendingOrder(ctx, cart); ok {
		s.clearCart(ctx, cart)
		return existing, nil
	}
	if len(cart.Items) == 0 {
		return Order{}, &EmptyCartError{CustomerID: customerID}
	}

	customer, err := s.loadCustomer(ctx, customerID, cmd.Shipping.UseCompanyAddress)
	if err != nil {
		return Order{}, err
	}
	shipTo, err := resolveShipTo(cmd.Shipping, customer)
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	orderID, err := s.newID(now)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}

	order := Order{
		ID:            orderID,
		OrderID:       orderID,
		CustomerID:    customerID,
		CustomerName:  customer.CompanyName,
		Items:         snapshotCartLines(cart.Items),
		ShipTo:        shipTo,
		ShippingTerms: terms,
		ShippingCost:  decimal.Zero,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
		UpdatedBy:     actor.ID,
	}
	order.Subtotal = order.ItemsSubtotal()
	order.TotalAmount = order.Subtotal
	if terms == domain.ShippingTermsCFR {
		order.ShippingEstimate = s.estimateCFRShipping(ctx, order.Items)
	}
	if err := checkOrderInvariant(order); err != nil {
		return Order{}, err
	}

	cart.PendingClearOrderID = orderID
	cart.UpdatedAt = now
	if err := s.carts.Save(ctx, cart); err != nil {
		return Order{}, fmt.Errorf("%w: mark cart: %v", ErrOrderUnavailable, err)
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return Order{}, s.writer.repoErrs.translate(err)
	}
	s.clearCart(ctx, cart)

	if s.metrics != nil {
		s.metrics.IncPlaced()
	}
	s.notifier.publish(ctx, orderEventPlaced, order, actor, map[string]string{
		"shippingTerms": string(terms),
		"totalAmount":   order.TotalAmount.StringFixed(2),
	})
	s.logger(ctx, "order.placed", map[string]any{
		"orderId":    order.OrderID,
		"customerId": customerID,
		"items":      len(order.Items),
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor Principal, orderID string) (Order, error) {
	return s.writer.load(ctx, actor, orderID)
}

func (s *orderService) ListOrders(ctx context.Context, actor Principal, filter OrderListFilter) (domain.CursorPage[Order], error) {
	filter.CustomerID = strings.TrimSpace(filter.CustomerID)
	if !actor.IsAdmin() {
		if actor.ID == "" || (filter.CustomerID != "" && filter.CustomerID != actor.ID) {
			return domain.CursorPage[Order]{}, ErrOrderForbidden
		}
		filter.CustomerID = actor.ID
	}
	switch size := filter.Pagination.PageSize; {
	case size <= 0:
		filter.Pagination.PageSize = defaultOrderPage
	case size > maxOrderPage:
		filter.Pagination.PageSize = maxOrderPage
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.writer.repoErrs.translate(err)
	}
	return page, nil
}

// pendingOrder returns the order a previous placement already created from this cart.
func (s *orderService) pendingOrder(ctx context.Context, cart Cart) (Order, bool) {
	if cart.PendingClearOrderID == "" {
		return Order{}, false
	}
	order, err := s.orders.FindByID(ctx, cart.PendingClearOrderID)
	if err != nil {
		if !isRepositoryNotFound(err) {
			s.logger(ctx, "order.pending_lookup_failed", map[string]any{
				"orderId": cart.PendingClearOrderID,
				"error":   err.Error(),
			})
		}
		return Order{}, false
	}
	if order.CustomerID != cart.CustomerID {
		return Order{}, false
	}
	return order, true
}

// clearCart is lenient; the pending marker makes the next cart load retry it.
func (s *orderService) clearCart(ctx context.Context, cart Cart) {
	orderID := cart.PendingClearOrderID
	cart.Items = nil
	cart.PendingClearOrderID = ""
	cart.Attention = false
	cart.UpdatedAt = s.clock()
	if err := s.carts.Save(ctx, cart); err != nil {
		s.logger(ctx, "cart.persist_failed", map[string]any{
			"customerId": cart.CustomerID,
			"orderId":    orderID,
			"op":         "clear_after_order",
			"error":      err.Error(),
		})
	}
}

func (s *orderService) loadCustomer(ctx context.Context, customerID string, required bool) (Customer, error) {
	if s.customers == nil {
		if required {
			return Customer{}, fmt.Errorf("%w: customer directory not configured", ErrOrderUnavailable)
		}
		return Customer{ID: customerID}, nil
	}
	customer, err := s.customers.FindByID(ctx, customerID)
	switch {
	case err == nil:
		return customer, nil
	case isRepositoryNotFound(err):
		return Customer{ID: customerID}, nil
	case required:
		return Customer{}, fmt.Errorf("%w: load customer: %v", ErrOrderUnavailable, err)
	default:
		s.logger(ctx, "order.customer_lookup_failed", map[string]any{"customerId": customerID, "error": err.Error()})
		return Customer{ID: customerID}, nil
	}
}

func resolveShipTo(selection ShippingSelection, customer Customer) (Address, error) {
	if selection.UseCompanyAddress {
		address := customer.ShippingAddress
		if address.IsBlank() {
			address = customer.BillingAddress
		}
		if address.IsBlank() {
			return Address{}, &MissingShippingAddressError{UseCompanyAddress: true, MissingFields: missingAddressFields(address)}
		}
		return address, nil
	}
	address := sanitizeAddress(selection.Address)
	if address.IsBlank() {
		return Address{}, &MissingShippingAddressError{MissingFields: missingAddressFields(address)}
	}
	return address, nil
}

func missingAddressFields(address Address) []string {
	var missing []string
	if strings.TrimSpace(address.Line1) == "" {
		missing = append(missing, "line1")
	}
	if strings.TrimSpace(address.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(address.Country) == "" {
		missing = append(missing, "country")
	}
	return missing
}

// estimateCFRShipping is informational only and never added to the order total.
func (s *orderService) estimateCFRShipping(ctx context.Context, items []OrderItem) *decimal.Decimal {
	if !s.cfrRate.IsPositive() || s.catalog == nil {
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		s.logger(ctx, "order.shipping_estimate_failed", map[string]any{"error": err.Error()})
		return nil
	}
	weight := decimal.Zero
	for _, item := range items {
		if product, ok := products[item.ProductID]; ok {
			weight = weight.Add(product.WeightKg.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}
	estimate := domain.RoundMoney(s.cfrRate.Mul(weight))
	return &estimate
}

// orderNotifier publishes order events best effort.
type orderNotifier struct {
	events OrderEventPublisher
	newID  func() string
	clock  func() time.Time
	logger EventLogger
}

func newOrderNotifier(events OrderEventPublisher, idGen func() string, clock func() time.Time, logger EventLogger) orderNotifier {
	if idGen == nil {
		idGen = func() string { return eventIDPrefix + ulid.Make().String() }
	}
	return orderNotifier{events: events, newID: idGen, clock: clock, logger: logger}
}

func (n orderNotifier) publish(ctx context.Context, eventType string, order Order, actor Principal, metadata map[string]string) {
	if n.events == nil {
		return
	}
	meta := maps.Clone(metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	meta["paymentStatus"] = string(order.PaymentStatus)
	event := OrderEvent{
		ID:            n.newID(),
		Type:          eventType,
		OrderID:       order.OrderID,
		CustomerID:    order.CustomerID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		ActorID:       actor.ID,
		Version:       order.Version,
		OccurredAt:    n.clock(),
		Metadata:      meta,
	}
	if err := n.events.PublishOrderEvent(ctx, event); err != nil {
		n.logger(ctx, "order.event.publish_failed", map[string]any{
			"eventType": eventType,
			"orderId":   order.OrderID,
			"version":   strconv.FormatInt(order.Version, 10),
			"error":     err.Error(),
		})
	}
}
