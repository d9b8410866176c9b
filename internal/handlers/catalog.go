package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/platform/auth"
	"github.com/pitta999/orderportal/internal/platform/httpx"
	"github.com/pitta999/orderportal/internal/services"
)

const maxQuotedProducts = 200

// CatalogHandlers serves customer-specific catalog prices.
type CatalogHandlers struct {
	authn   *auth.Authenticator
	pricing services.PricingService
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(authn *auth.Authenticator, pricing services.PricingService) *CatalogHandlers {
	return &CatalogHandlers{authn: authn, pricing: pricing}
}

type priceListResponse struct {
	CustomerID string              `json:"customer_id"`
	Items      []priceQuotePayload `json:"items"`
}

// Routes registers the /catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequirePrincipal(domain.RoleLevelCustomer))
	}
	r.Get("/prices", h.listPrices)
}

// listPrices accepts repeated or comma separated product_id parameters.
func (h *CatalogHandlers) listPrices(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var productIDs []string
	for _, raw := range r.URL.Query()["product_id"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				productIDs = append(productIDs, id)
			}
		}
	}
	if len(productIDs) > maxQuotedProducts {
		invalidRequest(r.Context(), w, "too many product ids")
		return
	}
	customerID := customerScope(r, principal)

	quotes, err := h.pricing.QuoteProducts(r.Context(), principal, customerID, productIDs)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, priceListResponse{
		CustomerID: customerID,
		Items:      buildPriceQuotes(quotes),
	})
}
