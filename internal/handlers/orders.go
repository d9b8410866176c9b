package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/platform/auth"
	"github.com/pitta999/orderportal/internal/platform/httpx"
	"github.com/pitta999/orderportal/internal/platform/pagination"
	"github.com/pitta999/orderportal/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// OrderHandlers exposes order placement, reads, invoices and the payment sub-resources.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	payments services.PaymentService
	invoices services.InvoiceService

	maxUploadBytes int64
	uploads        rateLimiter
	idempotent     func(http.Handler) http.Handler
}

// OrderHandlerOption customises OrderHandlers.
type OrderHandlerOption func(*OrderHandlers)

// WithPaymentService enables the /orders/{orderID}/payments routes.
func WithPaymentService(svc services.PaymentService) OrderHandlerOption {
	return func(h *OrderHandlers) { h.payments = svc }
}

// WithInvoiceService enables GET /orders/{orderID}/invoice.
func WithInvoiceService(svc services.InvoiceService) OrderHandlerOption {
	return func(h *OrderHandlers) { h.invoices = svc }
}

// WithRemittanceUploadLimits bounds multipart bodies and throttles uploads per customer.
func WithRemittanceUploadLimits(maxBytes int64, perWindow int, window time.Duration) OrderHandlerOption {
	return func(h *OrderHandlers) {
		if maxBytes > 0 {
			h.maxUploadBytes = maxBytes
		}
		h.uploads = newCustomerThrottle(perWindow, window, nil)
	}
}

// WithIdempotency guards order placement and payment initiation with the given
// Idempotency-Key middleware.
func WithIdempotency(mw func(http.Handler) http.Handler) OrderHandlerOption {
	return func(h *OrderHandlers) { h.idempotent = mw }
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:          authn,
		orders:         orders,
		maxUploadBytes: 10 << 20,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

type placeOrderRequest struct {
	UseCompanyAddress bool            `json:"use_company_address"`
	ShippingAddress   *addressRequest `json:"shipping_address"`
	ShippingTerms     string          `json:"shipping_terms" validate:"required,oneof=FOB CFR"`
}

type cancelOrderRequest struct {
	ExpectedVersion *int64 `json:"expected_version" validate:"omitempty,min=1"`
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequirePrincipal(domain.RoleLevelCustomer))
	}
	r.With(h.guard).Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	if h.invoices != nil {
		r.Get("/{orderID}/invoice", h.getInvoice)
	}
	if h.payments != nil {
		h.paymentRoutes(r)
	}
}

func (h *OrderHandlers) guard(next http.Handler) http.Handler {
	if h.idempotent == nil {
		return next
	}
	return h.idempotent(next)
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if err := httpx.DecodeJSON(r, maxJSONBodySize, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	cmd := services.PlaceOrderCommand{
		CustomerID:    customerScope(r, principal),
		ShippingTerms: domain.ShippingTerms(req.ShippingTerms),
		Shipping:      services.ShippingSelection{UseCompanyAddress: req.UseCompanyAddress},
	}
	if !req.UseCompanyAddress && req.ShippingAddress != nil {
		cmd.Shipping.Address = req.ShippingAddress.toDomain()
	}

	order, err := h.orders.PlaceOrder(r.Context(), principal, cmd)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	h.writeOrder(w, http.StatusCreated, order)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	filter, err := parseOrderListFilter(r, false)
	if err != nil {
		invalidRequest(r.Context(), w, err.Error())
		return
	}
	filter.CustomerID = customerScope(r, principal)

	page, err := h.orders.ListOrders(r.Context(), principal, filter)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeOrderPage(w, page)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(r.Context(), principal, orderID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, order)
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return
	}
	var req cancelOrderRequest
	if err := httpx.DecodeJSON(r, maxJSONBodySize, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		invalidRequest(r.Context(), w, err.Error())
		return
	}

	order, err := h.orders.Cancel(r.Context(), principal, services.CancelOrderCommand{
		OrderID:         orderID,
		ExpectedVersion: version,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, order)
}

func (h *OrderHandlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return
	}
	doc, err := h.invoices.GetInvoice(r.Context(), principal, orderID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, invoiceResponse{Invoice: buildInvoicePayload(doc)})
}

func (h *OrderHandlers) writeOrder(w http.ResponseWriter, status int, order services.Order) {
	setNoStore(w)
	if etag := orderETag(order); etag != "" {
		w.Header().Set("ETag", etag)
	}
	httpx.WriteJSON(w, status, orderResponse{Order: buildOrderPayload(order)})
}

func writeOrderPage(w http.ResponseWriter, page domain.CursorPage[services.Order]) {
	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

// parseOrderListFilter reads pageSize, pageToken and filter=field==value parameters.
// Repeating the status filter matches any of the given statuses.
func parseOrderListFilter(r *http.Request, allowCustomerFilter bool) (services.OrderListFilter, error) {
	fields := []string{"status", "paymentMethod"}
	if allowCustomerFilter {
		fields = append(fields, "customerId")
	}
	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
		FilterFields:    fields,
	})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return services.OrderListFilter{}, errors.New("pageToken is invalid")
		}
		return services.OrderListFilter{}, err
	}

	filter := services.OrderListFilter{
		Pagination: domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken},
	}
	for _, f := range params.Filters {
		switch f.Field {
		case "status":
			status, ok := parseOrderStatus(f.Value)
			if !ok {
				return services.OrderListFilter{}, fmt.Errorf("unknown order status %q", f.Value)
			}
			filter.Status = append(filter.Status, status)
		case "paymentMethod":
			method := domain.PaymentMethod(strings.ToLower(f.Value))
			if method != domain.PaymentMethodCard && method != domain.PaymentMethodTT {
				return services.OrderListFilter{}, fmt.Errorf("unknown payment method %q", f.Value)
			}
			filter.PaymentMethod = method
		case "customerId":
			filter.CustomerID = strings.TrimSpace(f.Value)
		}
	}
	return filter, nil
}

func parseOrderStatus(raw string) (domain.OrderStatus, bool) {
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusProcessing, domain.OrderStatusShipped,
		domain.OrderStatusDelivered, domain.OrderStatusCancelled:
		return status, true
	}
	return "", false
}

func parsePaymentStatus(raw string) (domain.PaymentStatus, bool) {
	status := domain.PaymentStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case domain.PaymentStatusPending, domain.PaymentStatusPaid, domain.PaymentStatusFailed:
		return status, true
	}
	return "", false
}
