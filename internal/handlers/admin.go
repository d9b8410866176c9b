package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/platform/auth"
	"github.com/pitta999/orderportal/internal/platform/httpx"
	"github.com/pitta999/orderportal/internal/services"
)

// AdminHandlers exposes back-office order management and price list maintenance.
type AdminHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	pricing services.PricingService
}

// NewAdminHandlers constructs admin handlers; every route requires an admin principal.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, pricing services.PricingService) *AdminHandlers {
	return &AdminHandlers{authn: authn, orders: orders, pricing: pricing}
}

type transitionStatusRequest struct {
	Status          string `json:"status" validate:"required"`
	ExpectedVersion *int64 `json:"expected_version" validate:"omitempty,min=1"`
}

type transitionPaymentRequest struct {
	PaymentStatus   string `json:"payment_status" validate:"required"`
	ExpectedVersion *int64 `json:"expected_version" validate:"omitempty,min=1"`
}

type correctItemsRequest struct {
	ExpectedVersion *int64                  `json:"expected_version" validate:"omitempty,min=1"`
	Lines           []lineCorrectionRequest `json:"lines" validate:"dive"`
	ShippingCost    *string                 `json:"shipping_cost"`
	Subtotal        *string                 `json:"subtotal"`
}

type lineCorrectionRequest struct {
	Index         int     `json:"index" validate:"min=0"`
	DiscountPrice *string `json:"discount_price"`
	ClearDiscount bool    `json:"clear_discount"`
	Quantity      *int    `json:"quantity" validate:"omitempty,min=1"`
	LineSubtotal  *string `json:"line_subtotal"`
}

type putPriceOverridesRequest struct {
	Overrides []priceOverrideEntry `json:"overrides" validate:"required,min=1,max=500,dive"`
}

type priceOverrideEntry struct {
	ProductID string `json:"product_id" validate:"required,max=128"`
	UnitPrice string `json:"unit_price" validate:"required"`
}

type priceOverrideListResponse struct {
	Items []priceOverridePayload `json:"items"`
}

type backfillResponse struct {
	ProductID string `json:"product_id"`
	Created   int    `json:"created"`
	Skipped   int    `json:"skipped"`
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequirePrincipal(domain.RoleLevelAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Post("/orders/{orderID}:transition", h.transitionStatus)
	r.Post("/orders/{orderID}:payment-status", h.transitionPayment)
	r.Patch("/orders/{orderID}/items", h.correctItems)
	r.Get("/customers/{customerID}/price-overrides", h.listPriceOverrides)
	r.Put("/customers/{customerID}/price-overrides", h.putPriceOverrides)
	r.Post("/products/{productID}:backfill-overrides", h.backfillOverrides)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	filter, err := parseOrderListFilter(r, true)
	if err != nil {
		invalidRequest(r.Context(), w, err.Error())
		return
	}
	page, err := h.orders.ListOrders(r.Context(), principal, filter)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeOrderPage(w, page)
}

func (h *AdminHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return
	}
	var req transitionStatusRequest
	if err := httpx.DecodeJSON(r, maxJSONBodySize, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	target, ok := parseOrderStatus(req.Status)
	if !ok {
		invalidRequest(r.Context(), w, fmt.Sprintf("unknown order status %q", req.Status))
		return
	}
	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		invalidRequest(r.Context(), w, err.Error())
		return
	}
	order, err := h.orders.TransitionStatus(r.Context(), principal, services.OrderStatusTransitionCommand{
		OrderID:         orderID,
		TargetStatus:    target,
		ExpectedVersion: version,
	})
	h.respondOrder(w, r, order, err)
}

func (h *AdminHandlers) transitionPayment(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return
	}
	var req transitionPaymentRequest
	if err := httpx.DecodeJSON(r, maxJSONBodySize, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	target, ok := parsePaymentStatus(req.PaymentStatus)
	if !ok {
		invalidRequest(r.Context(), w, fmt.Sprintf("unknown payment status %q", req.PaymentStatus))
		return
	}
	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		invalidRequest(r.Context(), w, err.Error())
		return
	}
	order, err := h.orders.TransitionPaymentStatus(r.Context(), principal, services.PaymentStatusTransitionCommand{
		OrderID:         orderID,
		TargetStatus:    target,
		ExpectedVersion: version,
	})
	h.respondOrder(w, r, order, err)
}

func (h *AdminHandlers) correctItems(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return
	}
	var req correctItemsRequest
	if err := httpx.DecodeJSON(r, maxJSONBodySize, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	cmd, err := req.toCommand(orderID)
	if err != nil {
		invalidRequest(r.Context(), w, err.Error())
		return
	}
	if cmd.ExpectedVersion, err = expectedVersion(r, req.ExpectedVersion); err != nil {
		invalidRequest(r.Context(), w, err.Error())
		return
	}
	order, err := h.orders.CorrectOrder(r.Context(), principal, cmd)
	h.respondOrder(w, r, order, err)
}

func (req correctItemsRequest) toCommand(orderID string) (services.CorrectOrderCommand, error) {
	cmd := services.CorrectOrderCommand{OrderID: orderID}
	var err error
	if cmd.ShippingCost, err = parseOptionalMoney("shipping_cost", req.ShippingCost); err != nil {
		return cmd, err
	}
	if cmd.Subtotal, err = parseOptionalMoney("subtotal", req.Subtotal); err != nil {
		return cmd, err
	}
	for i, line := range req.Lines {
		correction := services.LineCorrection{
			Index:         line.Index,
			ClearDiscount: line.ClearDiscount,
			Quantity:      line.Quantity,
		}
		if correction.DiscountPrice, err = parseOptionalMoney(fmt.Sprintf("lines[%d].discount_price", i), line.DiscountPrice); err != nil {
			return cmd, err
		}
		if correction.LineSubtotal, err = parseOptionalMoney(fmt.Sprintf("lines[%d].line_subtotal", i), line.LineSubtotal); err != nil {
			return cmd, err
		}
		cmd.Lines = append(cmd.Lines, correction)
	}
	return cmd, nil
}

func (h *AdminHandlers) respondOrder(w http.ResponseWriter, r *http.Request, order services.Order, err error) {
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	setNoStore(w)
	if etag := orderETag(order); etag != "" {
		w.Header().Set("ETag", etag)
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) listPriceOverrides(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	customerID, ok := pathParam(w, r, "customerID")
	if !ok {
		return
	}
	overrides, err := h.pricing.ListOverrides(r.Context(), principal, customerID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeOverrides(w, overrides)
}

// putPriceOverrides upserts every entry in order and stops at the first failure.
func (h *AdminHandlers) putPriceOverrides(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	customerID, ok := pathParam(w, r, "customerID")
	if !ok {
		return
	}
	var req putPriceOverridesRequest
	if err := httpx.DecodeJSON(r, maxJSONBodySize, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	commands := make([]services.UpsertPriceOverrideCommand, 0, len(req.Overrides))
	for i, entry := range req.Overrides {
		price, err := parseMoney(fmt.Sprintf("overrides[%d].unit_price", i), entry.UnitPrice)
		if err != nil {
			invalidRequest(r.Context(), w, err.Error())
			return
		}
		commands = append(commands, services.UpsertPriceOverrideCommand{
			CustomerID: customerID,
			ProductID:  entry.ProductID,
			UnitPrice:  price,
		})
	}

	saved := make([]services.PriceOverride, 0, len(commands))
	for _, cmd := range commands {
		override, err := h.pricing.UpsertOverride(r.Context(), principal, cmd)
		if err != nil {
			writeServiceError(r.Context(), w, err)
			return
		}
		saved = append(saved, override)
	}
	writeOverrides(w, saved)
}

func (h *AdminHandlers) backfillOverrides(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	productID, ok := pathParam(w, r, "productID")
	if !ok {
		return
	}
	result, err := h.pricing.BackfillProductByID(r.Context(), principal, productID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, backfillResponse{
		ProductID: productID,
		Created:   result.Created,
		Skipped:   result.Skipped,
	})
}

func writeOverrides(w http.ResponseWriter, overrides []services.PriceOverride) {
	items := make([]priceOverridePayload, 0, len(overrides))
	for _, override := range overrides {
		items = append(items, buildPriceOverride(override))
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, priceOverrideListResponse{Items: items})
}
