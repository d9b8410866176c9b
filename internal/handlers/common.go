package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/platform/httpx"
	"github.com/pitta999/orderportal/internal/platform/requestctx"
	"github.com/pitta999/orderportal/internal/services"
)

const maxJSONBodySize = 16 * 1024

// requirePrincipal reads the principal placed on the context by the auth middleware.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	principal, ok := requestctx.Principal(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return domain.Principal{}, false
	}
	return principal, true
}

func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := strings.TrimSpace(chi.URLParam(r, name))
	if value == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", name+" is required", http.StatusBadRequest))
		return "", false
	}
	return value, true
}

// customerScope returns the customer the request acts for. Admins may pass customer_id;
// everybody else is pinned to their own id.
func customerScope(r *http.Request, principal domain.Principal) string {
	if principal.IsAdmin() {
		if id := strings.TrimSpace(r.URL.Query().Get("customer_id")); id != "" {
			return id
		}
	}
	return principal.ID
}

// expectedVersion prefers the body field and falls back to an If-Match header carrying
// the order ETag.
func expectedVersion(r *http.Request, fromBody *int64) (*int64, error) {
	if fromBody != nil {
		return fromBody, nil
	}
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return nil, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 1 {
		return nil, errors.New("If-Match must carry an order version")
	}
	return &version, nil
}

func orderETag(order services.Order) string {
	if order.Version <= 0 {
		return ""
	}
	return fmt.Sprintf(`W/"%d"`, order.Version)
}

func setNoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
}

func formatMoney(amount decimal.Decimal) string {
	return amount.StringFixed(domain.MoneyPlaces)
}

func formatOptionalMoney(amount *decimal.Decimal) *string {
	if amount == nil {
		return nil
	}
	value := formatMoney(*amount)
	return &value
}

// parseMoney accepts a decimal string and rejects negatives.
func parseMoney(field, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s must be a decimal amount", field)
	}
	if value.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%s must not be negative", field)
	}
	return value, nil
}

func parseOptionalMoney(field string, raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	value, err := parseMoney(field, *raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func invalidRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

// writeServiceError maps service sentinels onto the HTTP error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var missing *services.MissingShippingAddressError
	switch {
	case errors.As(err, &missing):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_address_missing", err.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{"missing_fields": missing.MissingFields}))
	case errors.Is(err, services.ErrEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart has no items", http.StatusBadRequest))
	case errors.Is(err, services.ErrCartInvalidInput),
		errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrPaymentInvalidInput),
		errors.Is(err, services.ErrPricingInvalidInput):
		invalidRequest(ctx, w, err.Error())
	case errors.Is(err, services.ErrCartForbidden),
		errors.Is(err, services.ErrOrderForbidden),
		errors.Is(err, services.ErrPricingForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "operation not permitted", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentFileNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("remittance_not_found", "remittance file not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPricingProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState),
		errors.Is(err, services.ErrPaymentInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentFileTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
	case errors.Is(err, services.ErrOrderInvariant):
		httpx.WriteError(ctx, w, httpx.NewError("order_totals_mismatch", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartUnavailable),
		errors.Is(err, services.ErrOrderUnavailable),
		errors.Is(err, services.ErrPaymentUnavailable),
		errors.Is(err, services.ErrPricingUnavailable),
		errors.Is(err, services.ErrInvoiceUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "dependency unavailable, retry later", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
