package services

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"testing"
	"time"

	domain "github.com/pitta999/orderportal/internal/domain"
)

var placedAt = time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)

type orderFixture struct {
	svc       OrderService
	orders    *memoryOrderRepo
	carts     *memoryCartRepo
	events    *recordingPublisher
	logs      *logRecorder
	customers *memoryCustomers
}

func scenarioCart() domain.Cart {
	return domain.Cart{
		CustomerID: "cust-1",
		Items: []domain.CartLine{
			{ProductID: "A", Name: "Frame A", UnitPrice: dec("100"), Quantity: 2, CategoryName: "Frames"},
			{ProductID: "B", Name: "Lens B", UnitPrice: dec("50"), DiscountUnitPrice: decPtr("40"), Quantity: 1, CategoryName: "Lenses"},
		},
	}
}

func newOrderFixture(t *testing.T, carts ...domain.Cart) orderFixture {
	t.Helper()
	f := orderFixture{
		orders: newMemoryOrderRepo(),
		carts:  newMemoryCartRepo(carts...),
		events: &recordingPublisher{},
		logs:   &logRecorder{},
		customers: &memoryCustomers{customers: map[string]domain.Customer{
			"cust-1": {
				ID:              "cust-1",
				CompanyName:     "Bright Optics",
				ShippingAddress: domain.Address{Line1: "1 Harbour Rd", City: "Busan", Country: "KR"},
			},
		}},
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    f.orders,
		Carts:     f.carts,
		Customers: f.customers,
		Catalog: newMemoryCatalog(
			domain.Product{ID: "A", WeightKg: dec("0.25")},
			domain.Product{ID: "B", WeightKg: dec("0.1")},
		),
		Events:            f.events,
		ShippingRatePerKg: dec("4"),
		Clock:             fixedClock(placedAt),
		OrderIDGenerator:  func(time.Time) (string, error) { return "ORD-20240301-101500-AB", nil },
		Logger:            f.logs.log,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	f.svc = svc
	return f
}

func sampleOrder() domain.Order {
	return domain.Order{
		ID:         "ORD-20240301-101500-AB",
		OrderID:    "ORD-20240301-101500-AB",
		CustomerID: "cust-1",
		Items: []domain.OrderItem{
			{ProductID: "A", Name: "Frame A", Price: dec("100"), Quantity: 2, CategoryName: "Frames"},
			{ProductID: "B", Name: "Lens B", Price: dec("50"), DiscountPrice: decPtr("40"), Quantity: 1, CategoryName: "Lenses"},
		},
		ShippingTerms: domain.ShippingTermsFOB,
		Subtotal:      dec("240"),
		ShippingCost:  dec("0"),
		TotalAmount:   dec("240"),
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Version:       1,
		CreatedAt:     placedAt,
	}
}

func TestPlaceOrderScenarioFOB(t *testing.T) {
	f := newOrderFixture(t, scenarioCart())

	order, err := f.svc.PlaceOrder(context.Background(), customerActor, PlaceOrderCommand{
		CustomerID:    "cust-1",
		Shipping:      ShippingSelection{UseCompanyAddress: true},
		ShippingTerms: domain.ShippingTermsFOB,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if !order.Subtotal.Equal(dec("240")) || !order.TotalAmount.Equal(dec("240")) || !order.ShippingCost.IsZero() {
		t.Fatalf("unexpected totals subtotal=%s total=%s shipping=%s", order.Subtotal, order.TotalAmount, order.ShippingCost)
	}
	if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("unexpected statuses %s/%s", order.Status, order.PaymentStatus)
	}
	if order.Version != 1 || order.ShipTo.City != "Busan" || order.CustomerName != "Bright Optics" {
		t.Fatalf("unexpected order %+v", order)
	}
	if order.ShippingEstimate != nil {
		t.Fatalf("expected no estimate for FOB")
	}
	if _, err := f.orders.FindByID(context.Background(), order.OrderID); err != nil {
		t.Fatalf("expected order to be stored: %v", err)
	}
	if cart := f.carts.stored("cust-1"); len(cart.Items) != 0 || cart.PendingClearOrderID != "" {
		t.Fatalf("expected cart cleared, got %+v", cart)
	}
	if !slices.Equal(f.events.types(), []string{orderEventPlaced}) {
		t.Fatalf("unexpected events %v", f.events.types())
	}
}

func TestPlaceOrderRoundTripMatchesCartTotals(t *testing.T) {
	cart := scenarioCart()
	f := newOrderFixture(t, cart)
	order, err := f.svc.PlaceOrder(context.Background(), customerActor, PlaceOrderCommand{CustomerID: "cust-1", Shipping: ShippingSelection{UseCompanyAddress: true}})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	rebuilt := domain.Cart{}
	for _, item := range order.Items {
		rebuilt.Items = append(rebuilt.Items, domain.CartLine{ProductID: item.ProductID, UnitPrice: item.Price, DiscountUnitPrice: item.DiscountPrice, Quantity: item.Quantity})
	}
	if !rebuilt.Totals().TotalAmount.Equal(cart.Totals().TotalAmount) || !order.Subtotal.Equal(cart.Totals().TotalAmount) {
		t.Fatalf("expected round trip subtotal %s, got %s", cart.Totals().TotalAmount, rebuilt.Totals().TotalAmount)
	}
}

func TestPlaceOrderCFRAddsEstimateOnly(t *testing.T) {
	f := newOrderFixture(t, scenarioCart())
	order, err := f.svc.PlaceOrder(context.Background(), customerActor, PlaceOrderCommand{
		CustomerID:    "cust-1",
		Shipping:      ShippingSelection{UseCompanyAddress: true},
		ShippingTerms: domain.ShippingTermsCFR,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	// (0.25*2 + 0.1*1) kg * 4
	if order.ShippingEstimate == nil || !order.ShippingEstimate.Equal(dec("2.4")) {
		t.Fatalf("unexpected estimate %v", order.ShippingEstimate)
	}
	if !order.TotalAmount.Equal(dec("240")) {
		t.Fatalf("estimate must not change the total, got %s", order.TotalAmount)
	}
}

func TestPlaceOrderRejectsEmptyCart(t *testing.T) {
	f := newOrderFixture(t, domain.Cart{CustomerID: "cust-1"})
	_, err := f.svc.PlaceOrder(context.Background(), customerActor, PlaceOrderCommand{CustomerID: "cust-1", Shipping: ShippingSelection{UseCompanyAddress: true}})
	var emptyErr *EmptyCartError
	if !errors.As(err, &emptyErr) || !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected EmptyCartError, got %v", err)
	}

	f = newOrderFixture(t)
	if _, err := f.svc.PlaceOrder(context.Background(), customerActor, PlaceOrderCommand{CustomerID: "cust-1"}); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected missing cart to be empty, got %v", err)
	}
}

func TestPlaceOrderRejectsBlankCustomAddress(t *testing.T) {
	f := newOrderFixture(t, scenarioCart())
	_, err := f.svc.PlaceOrder(context.Background(), customerActor, PlaceOrderCommand{
		CustomerID: "cust-1",
		Shipping:   ShippingSelection{Address: domain.Address{Line1: "<b></b>", City: " "}},
	})
	var addrErr *MissingShippingAddressError
	if !errors.As(err, &addrErr) {
		t.Fatalf("expected MissingShippingAddressError, got %v", err)
	}
	if !slices.Equal(addrErr.MissingFields, []string{"line1", "city", "country"}) {
		t.Fatalf("unexpected missing fields %v", addrErr.MissingFields)
	}
	if len(f.orders.orders) != 0 || f.carts.saves != 0 {
		t.Fatalf("expected no writes on validation failure")
	}
}

func TestPlaceOrderSanitisesCustomAddress(t *testing.T) {
	f := newOrderFixture(t, scenarioCart())
	order, err := f.svc.PlaceOrder(context.Background(), customerActor, PlaceOrderCommand{
		CustomerID: "cust-1",
		Shipping: ShippingSelection{Address: domain.Address{
			Recipient: "<script>alert(1)</script>Kim & Sons",
			Line1:     "22 Pier St",
			City:      "Incheon",
			Country:   "kr",
		}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.ShipTo.Recipient != "Kim & Sons" || order.ShipTo.Country != "KR" {
		t.Fatalf("unexpected sanitised address %+v", order.ShipTo)
	}
}

func TestPlaceOrderReturnsPendingOrderInsteadOfDuplicating(t *testing.T) {
	cart := scenarioCart()
	cart.PendingClearOrderID = "ORD-20240301-101500-AB"
	f := newOrderFixture(t, cart)
	f.orders.orders["ORD-20240301-101500-AB"] = sampleOrder()

	order, err := f.svc.PlaceOrder(context.Background(), customerActor, PlaceOrderCommand{CustomerID: "cust-1", Shipping: ShippingSelection{UseCompanyAddress: true}})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.OrderID != "ORD-20240301-101500-AB" || len(f.orders.orders) != 1 {
		t.Fatalf("expected existing order, got %s (%d orders)", order.OrderID, len(f.orders.orders))
	}
	if stored := f.carts.stored("cust-1"); len(stored.Items) != 0 {
		t.Fatalf("expected pending clear to complete, got %+v", stored)
	}
	if len(f.events.types()) != 0 {
		t.Fatalf("expected no new events, got %v", f.events.types())
	}
}

func TestPlaceOrderCreateFailureIsStrict(t *testing.T) {
	f := newOrderFixture(t, scenarioCart())
	f.orders.createErr = errTestUnavailable

	_, err := f.svc.PlaceOrder(context.Background(), customerActor, PlaceOrderCommand{CustomerID: "cust-1", Shipping: ShippingSelection{UseCompanyAddress: true}})
	if !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if cart := f.carts.stored("cust-1"); len(cart.Items) != 2 {
		t.Fatalf("expected cart items to be kept, got %+v", cart)
	}
}

func TestPlaceOrderIDCollisionIsConflict(t *testing.T) {
	f := newOrderFixture(t, scenarioCart())
	existing := sampleOrder()
	existing.CustomerID = "cust-9"
	f.orders.orders[existing.OrderID] = existing

	_, err := f.svc.PlaceOrder(context.Background(), customerActor, PlaceOrderCommand{CustomerID: "cust-1", Shipping: ShippingSelection{UseCompanyAddress: true}})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestPlaceOrderCartClearFailureIsLenient(t *testing.T) {
	f := newOrderFixture(t, scenarioCart())
	calls := 0
	repo := &flakyCartRepo{memoryCartRepo: f.carts, failOn: func() bool { calls++; return calls == 2 }}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:           f.orders,
		Carts:            repo,
		Customers:        f.customers,
		Clock:            fixedClock(placedAt),
		OrderIDGenerator: func(time.Time) (string, error) { return "ORD-20240301-101500-CD", nil },
		Logger:           f.logs.log,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, err := svc.PlaceOrder(context.Background(), customerActor, PlaceOrderCommand{CustomerID: "cust-1", Shipping: ShippingSelection{UseCompanyAddress: true}})
	if err != nil {
		t.Fatalf("expected placement to succeed, got %v", err)
	}
	if cart := f.carts.stored("cust-1"); cart.PendingClearOrderID != order.OrderID || len(cart.Items) != 2 {
		t.Fatalf("expected pending marker to remain for retry, got %+v", cart)
	}
	if !f.logs.has("cart.persist_failed") {
		t.Fatalf("expected cart.persist_failed log")
	}
}

type flakyCartRepo struct {
	*memoryCartRepo
	failOn func() bool
}

func (r *flakyCartRepo) Save(ctx context.Context, cart domain.Cart) error {
	if r.failOn() {
		return errTestUnavailable
	}
	return r.memoryCartRepo.Save(ctx, cart)
}

func TestGenerateOrderIDFormat(t *testing.T) {
	id, err := GenerateOrderID(time.Date(2024, 12, 31, 23, 59, 58, 0, time.UTC))
	if err != nil {
		t.Fatalf("GenerateOrderID: %v", err)
	}
	if !regexp.MustCompile(`^ORD-20241231-235958-[A-Z0-9]{2}$`).MatchString(id) {
		t.Fatalf("unexpected id %q", id)
	}
}

func TestGetOrderHidesOtherCustomersOrders(t *testing.T) {
	f := newOrderFixture(t)
	f.orders.orders["ORD-20240301-101500-AB"] = sampleOrder()

	if _, err := f.svc.GetOrder(context.Background(), otherCustomer, "ORD-20240301-101500-AB"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found for other customer, got %v", err)
	}
	if _, err := f.svc.GetOrder(context.Background(), customerActor, "ORD-20240301-101500-AB"); err != nil {
		t.Fatalf("owner GetOrder: %v", err)
	}
	if _, err := f.svc.GetOrder(context.Background(), adminActor, "ORD-20240301-101500-AB"); err != nil {
		t.Fatalf("admin GetOrder: %v", err)
	}
}

func TestListOrdersScopesCustomers(t *testing.T) {
	mine := sampleOrder()
	theirs := sampleOrder()
	theirs.OrderID, theirs.ID, theirs.CustomerID = "ORD-20240301-101500-ZZ", "ORD-20240301-101500-ZZ", "cust-2"
	f := newOrderFixture(t)
	f.orders.orders[mine.OrderID] = mine
	f.orders.orders[theirs.OrderID] = theirs

	page, err := f.svc.ListOrders(context.Background(), customerActor, OrderListFilter{})
	if err != nil || len(page.Items) != 1 || page.Items[0].CustomerID != "cust-1" {
		t.Fatalf("expected only own orders, got %+v (%v)", page.Items, err)
	}
	if _, err := f.svc.ListOrders(context.Background(), customerActor, OrderListFilter{CustomerID: "cust-2"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	page, err = f.svc.ListOrders(context.Background(), adminActor, OrderListFilter{})
	if err != nil || len(page.Items) != 2 {
		t.Fatalf("expected admin to see all orders, got %d (%v)", len(page.Items), err)
	}
}
