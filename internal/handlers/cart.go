package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/platform/auth"
	"github.com/pitta999/orderportal/internal/platform/httpx"
	"github.com/pitta999/orderportal/internal/services"
)

// CartHandlers exposes the authenticated customer's cart.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts}
}

type addCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=128"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=100000"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"min=0,max=100000"`
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequirePrincipal(domain.RoleLevelCustomer))
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{productID}", h.updateItem)
	r.Delete("/items/{productID}", h.removeItem)
	r.Post("/ack", h.ackAttention)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(r.Context(), principal, customerScope(r, principal))
	h.respond(w, r, cart, err)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req addCartItemRequest
	if err := httpx.DecodeJSON(r, maxJSONBodySize, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	cart, err := h.carts.AddItem(r.Context(), principal, services.AddCartItemCommand{
		CustomerID: customerScope(r, principal),
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
	})
	h.respond(w, r, cart, err)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	productID, ok := pathParam(w, r, "productID")
	if !ok {
		return
	}
	var req updateCartItemRequest
	if err := httpx.DecodeJSON(r, maxJSONBodySize, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	cart, err := h.carts.UpdateQuantity(r.Context(), principal, services.UpdateCartQuantityCommand{
		CustomerID: customerScope(r, principal),
		ProductID:  productID,
		Quantity:   req.Quantity,
	})
	h.respond(w, r, cart, err)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	productID, ok := pathParam(w, r, "productID")
	if !ok {
		return
	}
	cart, err := h.carts.RemoveItem(r.Context(), principal, customerScope(r, principal), productID)
	h.respond(w, r, cart, err)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.Clear(r.Context(), principal, customerScope(r, principal))
	h.respond(w, r, cart, err)
}

func (h *CartHandlers) ackAttention(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.AckAttention(r.Context(), principal, customerScope(r, principal))
	h.respond(w, r, cart, err)
}

func (h *CartHandlers) respond(w http.ResponseWriter, r *http.Request, cart services.Cart, err error) {
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	setNoStore(w)
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}
