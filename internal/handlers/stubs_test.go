package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/platform/requestctx"
	"github.com/pitta999/orderportal/internal/services"
)

var (
	customerPrincipal = domain.Principal{ID: "cust-1", Email: "buyer@example.com", RoleLevel: domain.RoleLevelCustomer}
	adminPrincipal    = domain.Principal{ID: "admin-1", Email: "ops@example.com", RoleLevel: domain.RoleLevelAdmin}
	testNow           = time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

// serve mounts routes under prefix and dispatches one request as principal.
func serve(t *testing.T, prefix string, routes RouteRegistrar, principal *domain.Principal, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Route(prefix, routes)
	if principal != nil {
		req = req.WithContext(requestctx.WithPrincipal(req.Context(), *principal))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func sampleOrder() services.Order {
	discount := dec("40")
	return services.Order{
		ID:            "ORD-20240301-101500-AB",
		OrderID:       "ORD-20240301-101500-AB",
		CustomerID:    "cust-1",
		CustomerName:  "Kim Optical",
		ShippingTerms: domain.ShippingTermsFOB,
		Items: []services.OrderItem{
			{ProductID: "A", Name: "Frame A", Price: dec("100"), Quantity: 2, CategoryName: "Frames"},
			{ProductID: "B", Name: "Lens B", Price: dec("50"), DiscountPrice: &discount, Quantity: 1, CategoryName: "Lenses"},
		},
		ShipTo:        domain.Address{Line1: "1 Harbor Rd", City: "Busan", Country: "KR"},
		Subtotal:      dec("240"),
		ShippingCost:  decimal.Zero,
		TotalAmount:   dec("240"),
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Version:       1,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
}

type stubCartService struct {
	getFn    func(ctx context.Context, actor services.Principal, customerID string) (services.Cart, error)
	addFn    func(ctx context.Context, actor services.Principal, cmd services.AddCartItemCommand) (services.Cart, error)
	updateFn func(ctx context.Context, actor services.Principal, cmd services.UpdateCartQuantityCommand) (services.Cart, error)
	removeFn func(ctx context.Context, actor services.Principal, customerID, productID string) (services.Cart, error)
	clearFn  func(ctx context.Context, actor services.Principal, customerID string) (services.Cart, error)
	ackFn    func(ctx context.Context, actor services.Principal, customerID string) (services.Cart, error)
}

func (s *stubCartService) GetCart(ctx context.Context, actor services.Principal, customerID string) (services.Cart, error) {
	return s.getFn(ctx, actor, customerID)
}

func (s *stubCartService) AddItem(ctx context.Context, actor services.Principal, cmd services.AddCartItemCommand) (services.Cart, error) {
	return s.addFn(ctx, actor, cmd)
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, actor services.Principal, cmd services.UpdateCartQuantityCommand) (services.Cart, error) {
	return s.updateFn(ctx, actor, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, actor services.Principal, customerID, productID string) (services.Cart, error) {
	return s.removeFn(ctx, actor, customerID, productID)
}

func (s *stubCartService) Clear(ctx context.Context, actor services.Principal, customerID string) (services.Cart, error) {
	return s.clearFn(ctx, actor, customerID)
}

func (s *stubCartService) AckAttention(ctx context.Context, actor services.Principal, customerID string) (services.Cart, error) {
	return s.ackFn(ctx, actor, customerID)
}

func (s *stubCartService) Totals(context.Context, services.Principal, string) (services.CartTotals, error) {
	return services.CartTotals{}, nil
}

type stubOrderService struct {
	placeFn      func(ctx context.Context, actor services.Principal, cmd services.PlaceOrderCommand) (services.Order, error)
	getFn        func(ctx context.Context, actor services.Principal, orderID string) (services.Order, error)
	listFn       func(ctx context.Context, actor services.Principal, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	transitionFn func(ctx context.Context, actor services.Principal, cmd services.OrderStatusTransitionCommand) (services.Order, error)
	paymentFn    func(ctx context.Context, actor services.Principal, cmd services.PaymentStatusTransitionCommand) (services.Order, error)
	correctFn    func(ctx context.Context, actor services.Principal, cmd services.CorrectOrderCommand) (services.Order, error)
	cancelFn     func(ctx context.Context, actor services.Principal, cmd services.CancelOrderCommand) (services.Order, error)
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, actor services.Principal, cmd services.PlaceOrderCommand) (services.Order, error) {
	return s.placeFn(ctx, actor, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, actor services.Principal, orderID string) (services.Order, error) {
	return s.getFn(ctx, actor, orderID)
}

func (s *stubOrderService) ListOrders(ctx context.Context, actor services.Principal, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	return s.listFn(ctx, actor, filter)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, actor services.Principal, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	return s.transitionFn(ctx, actor, cmd)
}

func (s *stubOrderService) TransitionPaymentStatus(ctx context.Context, actor services.Principal, cmd services.PaymentStatusTransitionCommand) (services.Order, error) {
	return s.paymentFn(ctx, actor, cmd)
}

func (s *stubOrderService) CorrectOrder(ctx context.Context, actor services.Principal, cmd services.CorrectOrderCommand) (services.Order, error) {
	return s.correctFn(ctx, actor, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, actor services.Principal, cmd services.CancelOrderCommand) (services.Order, error) {
	return s.cancelFn(ctx, actor, cmd)
}

type stubPaymentService struct {
	checkoutFn func(ctx context.Context, actor services.Principal, orderID string) (services.CheckoutSessionResult, error)
	requestFn  func(ctx context.Context, actor services.Principal, orderID string) (services.Order, error)
	uploadFn   func(ctx context.Context, actor services.Principal, cmd services.UploadRemittanceCommand) (services.RemittanceFile, error)
	deleteFn   func(ctx context.Context, actor services.Principal, orderID, fileID string) (services.Order, error)
	downloadFn func(ctx context.Context, actor services.Principal, orderID, fileID string) (string, error)
}

func (s *stubPaymentService) CreateCheckoutSession(ctx context.Context, actor services.Principal, orderID string) (services.CheckoutSessionResult, error) {
	return s.checkoutFn(ctx, actor, orderID)
}

func (s *stubPaymentService) RequestTT(ctx context.Context, actor services.Principal, orderID string) (services.Order, error) {
	return s.requestFn(ctx, actor, orderID)
}

func (s *stubPaymentService) UploadRemittance(ctx context.Context, actor services.Principal, cmd services.UploadRemittanceCommand) (services.RemittanceFile, error) {
	return s.uploadFn(ctx, actor, cmd)
}

func (s *stubPaymentService) DeleteRemittance(ctx context.Context, actor services.Principal, orderID, fileID string) (services.Order, error) {
	return s.deleteFn(ctx, actor, orderID, fileID)
}

func (s *stubPaymentService) RemittanceDownloadURL(ctx context.Context, actor services.Principal, orderID, fileID string) (string, error) {
	return s.downloadFn(ctx, actor, orderID, fileID)
}

type stubInvoiceService struct {
	doc services.InvoiceDocument
	err error
}

func (s *stubInvoiceService) GetInvoice(context.Context, services.Principal, string) (services.InvoiceDocument, error) {
	return s.doc, s.err
}

type stubPricingService struct {
	quoteFn    func(ctx context.Context, actor services.Principal, customerID string, productIDs []string) ([]services.PriceQuote, error)
	listFn     func(ctx context.Context, actor services.Principal, customerID string) ([]services.PriceOverride, error)
	upsertFn   func(ctx context.Context, actor services.Principal, cmd services.UpsertPriceOverrideCommand) (services.PriceOverride, error)
	backfillFn func(ctx context.Context, actor services.Principal, productID string) (services.BackfillResult, error)
}

func (s *stubPricingService) ResolvePrice(_ context.Context, _ services.Principal, _ string, product services.Product) services.PriceQuote {
	return services.PriceQuote{ProductID: product.ID, ListPrice: product.Price, EffectivePrice: product.Price}
}

func (s *stubPricingService) ResolveCatalog(context.Context, services.Principal, string, []services.Product) []services.PriceQuote {
	return nil
}

func (s *stubPricingService) ListOverrides(ctx context.Context, actor services.Principal, customerID string) ([]services.PriceOverride, error) {
	return s.listFn(ctx, actor, customerID)
}

func (s *stubPricingService) UpsertOverride(ctx context.Context, actor services.Principal, cmd services.UpsertPriceOverrideCommand) (services.PriceOverride, error) {
	return s.upsertFn(ctx, actor, cmd)
}

func (s *stubPricingService) QuoteProducts(ctx context.Context, actor services.Principal, customerID string, productIDs []string) ([]services.PriceQuote, error) {
	return s.quoteFn(ctx, actor, customerID, productIDs)
}

func (s *stubPricingService) BackfillProduct(context.Context, services.Principal, services.Product) (services.BackfillResult, error) {
	return services.BackfillResult{}, nil
}

func (s *stubPricingService) BackfillProductByID(ctx context.Context, actor services.Principal, productID string) (services.BackfillResult, error) {
	return s.backfillFn(ctx, actor, productID)
}

type stubReconciler struct {
	report services.ReconcileReport
	err    error
	calls  int
	at     time.Time
}

func (s *stubReconciler) Reconcile(_ context.Context, now time.Time) (services.ReconcileReport, error) {
	s.calls++
	s.at = now
	return s.report, s.err
}

type stubReadiness struct {
	report domain.ReadinessReport
}

func (s stubReadiness) Collect(context.Context) domain.ReadinessReport {
	return s.report
}
