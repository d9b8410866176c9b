package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrCartForbidden indicates the actor may not access the cart.
	ErrCartForbidden = errors.New("cart service: forbidden")
	// ErrCartNotFound indicates the referenced product or line does not exist.
	ErrCartNotFound = errors.New("cart service: not found")
	// ErrCartUnavailable indicates the cart could not be loaded.
	ErrCartUnavailable = errors.New("cart service: unavailable")
)

// CartPriceResolver resolves the unit price of a product for a customer.
type CartPriceResolver interface {
	ResolvePrice(ctx context.Context, actor Principal, customerID string, product Product) PriceQuote
}

// CartServiceDeps wires the repositories and pricing dependencies for cart operations.
type CartServiceDeps struct {
	Carts   repositories.CartRepository
	Orders  repositories.OrderRepository
	Catalog repositories.CatalogRepository
	Pricing CartPriceResolver
	Clock   func() time.Time
	Logger  EventLogger
}

type cartService struct {
	carts    repositories.CartRepository
	orders   repositories.OrderRepository
	catalog  repositories.CatalogRepository
	pricing  CartPriceResolver
	clock    func() time.Time
	logger   EventLogger
	repoErrs repositoryErrorMapping
}

// NewCartService constructs the cart store. Mutations persist leniently: a failed write is
// logged and the intended state is still returned.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("cart service: pricing resolver is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &cartService{
		carts:   deps.Carts,
		orders:  deps.Orders,
		catalog: deps.Catalog,
		pricing: deps.Pricing,
		clock:   func() time.Time { return clock().UTC() },
		logger:  logger,
		repoErrs: repositoryErrorMapping{
			notFound:    ErrCartNotFound,
			unavailable: ErrCartUnavailable,
		},
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, actor Principal, customerID string) (Cart, error) {
	return s.load(ctx, actor, customerID)
}

func (s *cartService) AddItem(ctx context.Context, actor Principal, cmd AddCartItemCommand) (Cart, error) {
	if cmd.Quantity < 1 {
		return Cart{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}

	cart, err := s.load(ctx, actor, cmd.CustomerID)
	if err != nil {
		return Cart{}, err
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return Cart{}, s.repoErrs.translate(err)
	}
	quote := s.pricing.ResolvePrice(ctx, actor, cart.CustomerID, product)

	if idx := cart.IndexOf(productID); idx >= 0 {
		cart.Items[idx].Quantity += cmd.Quantity
	} else {
		line := CartLine{
			ProductID:    product.ID,
			Name:         product.Name,
			UnitPrice:    quote.ListPrice,
			Quantity:     cmd.Quantity,
			ImageRef:     product.ImageRef,
			CategoryName: product.CategoryName,
		}
		if quote.HasDiscount() {
			discount := quote.EffectivePrice
			line.DiscountUnitPrice = &discount
		}
		cart.Items = append(cart.Items, line)
	}
	cart.Attention = true

	return s.persist(ctx, cart, "add_item"), nil
}

// UpdateQuantity silently ignores quantities below one.
func (s *cartService) UpdateQuantity(ctx context.Context, actor Principal, cmd UpdateCartQuantityCommand) (Cart, error) {
	cart, err := s.load(ctx, actor, cmd.CustomerID)
	if err != nil {
		return Cart{}, err
	}
	if cmd.Quantity < 1 {
		return cart, nil
	}
	idx := cart.IndexOf(strings.TrimSpace(cmd.ProductID))
	if idx < 0 {
		return Cart{}, fmt.Errorf("%w: product %q is not in the cart", ErrCartNotFound, cmd.ProductID)
	}
	if cart.Items[idx].Quantity == cmd.Quantity {
		return cart, nil
	}
	cart.Items[idx].Quantity = cmd.Quantity
	return s.persist(ctx, cart, "update_quantity"), nil
}

func (s *cartService) RemoveItem(ctx context.Context, actor Principal, customerID, productID string) (Cart, error) {
	cart, err := s.load(ctx, actor, customerID)
	if err != nil {
		return Cart{}, err
	}
	idx := cart.IndexOf(strings.TrimSpace(productID))
	if idx < 0 {
		return cart, nil
	}
	cart.Items = append(cart.Items[:idx:idx], cart.Items[idx+1:]...)
	return s.persist(ctx, cart, "remove_item"), nil
}

func (s *cartService) Clear(ctx context.Context, actor Principal, customerID string) (Cart, error) {
	cart, err := s.load(ctx, actor, customerID)
	if err != nil {
		return Cart{}, err
	}
	cart.Items = nil
	cart.PendingClearOrderID = ""
	return s.persist(ctx, cart, "clear"), nil
}

func (s *cartService) AckAttention(ctx context.Context, actor Principal, customerID string) (Cart, error) {
	cart, err := s.load(ctx, actor, customerID)
	if err != nil {
		return Cart{}, err
	}
	if !cart.Attention {
		return cart, nil
	}
	cart.Attention = false
	return s.persist(ctx, cart, "ack_attention"), nil
}

func (s *cartService) Totals(ctx context.Context, actor Principal, customerID string) (CartTotals, error) {
	cart, err := s.load(ctx, actor, customerID)
	if err != nil {
		return CartTotals{}, err
	}
	return cart.Totals(), nil
}

// load reads the cart strictly and finishes any clear left pending by order placement.
func (s *cartService) load(ctx context.Context, actor Principal, customerID string) (Cart, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Cart{}, fmt.Errorf("%w: customer id is required", ErrCartInvalidInput)
	}
	if !actor.CanActFor(customerID) {
		return Cart{}, ErrCartForbidden
	}

	cart, err := s.carts.Get(ctx, customerID)
	switch {
	case err == nil:
	case isRepositoryNotFound(err):
		return Cart{CustomerID: customerID}, nil
	default:
		return Cart{}, s.repoErrs.translate(err)
	}
	cart.CustomerID = customerID

	if cart.PendingClearOrderID == "" || s.orders == nil {
		return cart, nil
	}
	return s.resolvePendingClear(ctx, cart), nil
}

func (s *cartService) resolvePendingClear(ctx context.Context, cart Cart) Cart {
	orderID := cart.PendingClearOrderID
	order, err := s.orders.FindByID(ctx, orderID)
	switch {
	case err == nil && order.CustomerID == cart.CustomerID:
		cart.Items = nil
		cart.PendingClearOrderID = ""
		s.logger(ctx, "cart.pending_clear_completed", map[string]any{"customerId": cart.CustomerID, "orderId": orderID})
		return s.persist(ctx, cart, "pending_clear")
	case err == nil || isRepositoryNotFound(err):
		cart.PendingClearOrderID = ""
		s.logger(ctx, "cart.pending_clear_dropped", map[string]any{"customerId": cart.CustomerID, "orderId": orderID})
		return s.persist(ctx, cart, "pending_clear")
	default:
		s.logger(ctx, "cart.pending_clear_failed", map[string]any{
			"customerId": cart.CustomerID,
			"orderId":    orderID,
			"error":      err.Error(),
		})
		return cart
	}
}

func (s *cartService) persist(ctx context.Context, cart Cart, op string) Cart {
	cart.UpdatedAt = s.clock()
	if err := s.carts.Save(ctx, cart); err != nil {
		s.logger(ctx, "cart.persist_failed", map[string]any{
			"customerId": cart.CustomerID,
			"op":         op,
			"error":      err.Error(),
		})
	}
	return cart
}

// snapshotCartLines copies cart lines into order items verbatim.
func snapshotCartLines(lines []domain.CartLine) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		item := domain.OrderItem{
			ProductID:    line.ProductID,
			Name:         line.Name,
			Price:        line.UnitPrice,
			Quantity:     line.Quantity,
			CategoryName: line.CategoryName,
			ImageRef:     line.ImageRef,
		}
		if line.DiscountUnitPrice != nil {
			discount := *line.DiscountUnitPrice
			item.DiscountPrice = &discount
		}
		items = append(items, item)
	}
	return items
}
