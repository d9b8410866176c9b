package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/pitta999/orderportal/internal/domain"
)

type cartFixture struct {
	svc     CartService
	carts   *memoryCartRepo
	orders  *memoryOrderRepo
	catalog *memoryCatalog
	logs    *logRecorder
}

func newCartFixture(t *testing.T, carts ...domain.Cart) cartFixture {
	t.Helper()
	f := cartFixture{
		carts:  newMemoryCartRepo(carts...),
		orders: newMemoryOrderRepo(),
		catalog: newMemoryCatalog(
			domain.Product{ID: "A", Name: "Frame A", Price: dec("100"), CategoryName: "Frames", ImageRef: "img/a.png"},
			domain.Product{ID: "B", Name: "Lens B", Price: dec("50"), CategoryName: "Lenses"},
		),
		logs: &logRecorder{},
	}
	pricing, err := NewPricingService(PricingServiceDeps{
		Overrides: newMemoryOverrides(domain.PriceOverride{CustomerID: "cust-1", ProductID: "B", UnitPrice: dec("40")}),
	})
	if err != nil {
		t.Fatalf("NewPricingService: %v", err)
	}
	f.svc, err = NewCartService(CartServiceDeps{
		Carts:   f.carts,
		Orders:  f.orders,
		Catalog: f.catalog,
		Pricing: pricing,
		Clock:   fixedClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)),
		Logger:  f.logs.log,
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return f
}

func TestCartAddItemSnapshotsPricesAndMerges(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	if _, err := f.svc.AddItem(ctx, customerActor, AddCartItemCommand{CustomerID: "cust-1", ProductID: "A", Quantity: 1}); err != nil {
		t.Fatalf("AddItem A: %v", err)
	}
	if _, err := f.svc.AddItem(ctx, customerActor, AddCartItemCommand{CustomerID: "cust-1", ProductID: "B", Quantity: 1}); err != nil {
		t.Fatalf("AddItem B: %v", err)
	}
	cart, err := f.svc.AddItem(ctx, customerActor, AddCartItemCommand{CustomerID: "cust-1", ProductID: "A", Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem A again: %v", err)
	}

	if len(cart.Items) != 2 {
		t.Fatalf("expected merged lines, got %d", len(cart.Items))
	}
	if cart.Items[0].ProductID != "A" || cart.Items[0].Quantity != 2 {
		t.Fatalf("expected A with quantity 2, got %+v", cart.Items[0])
	}
	if cart.Items[1].DiscountUnitPrice == nil || !cart.Items[1].DiscountUnitPrice.Equal(dec("40")) {
		t.Fatalf("expected override price on B, got %+v", cart.Items[1])
	}
	if !cart.Attention {
		t.Fatalf("expected attention flag after add")
	}

	totals := cart.Totals()
	if totals.TotalItems != 3 || !totals.TotalAmount.Equal(dec("240")) {
		t.Fatalf("unexpected totals %+v", totals)
	}
	if stored := f.carts.stored("cust-1"); len(stored.Items) != 2 {
		t.Fatalf("expected cart to be persisted, got %+v", stored)
	}
}

func TestCartAddItemRejectsNonPositiveQuantity(t *testing.T) {
	f := newCartFixture(t)
	_, err := f.svc.AddItem(context.Background(), customerActor, AddCartItemCommand{CustomerID: "cust-1", ProductID: "A", Quantity: 0})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if f.carts.saves != 0 {
		t.Fatalf("expected no writes, got %d", f.carts.saves)
	}
}

func TestCartUpdateQuantityBelowOneIsIgnored(t *testing.T) {
	f := newCartFixture(t, domain.Cart{CustomerID: "cust-1", Items: []domain.CartLine{{ProductID: "A", UnitPrice: dec("100"), Quantity: 2}}})

	for _, q := range []int{0, -3} {
		cart, err := f.svc.UpdateQuantity(context.Background(), customerActor, UpdateCartQuantityCommand{CustomerID: "cust-1", ProductID: "A", Quantity: q})
		if err != nil {
			t.Fatalf("UpdateQuantity(%d): %v", q, err)
		}
		if cart.Items[0].Quantity != 2 {
			t.Fatalf("expected quantity to stay 2, got %d", cart.Items[0].Quantity)
		}
	}
	if f.carts.saves != 0 {
		t.Fatalf("expected ignored updates not to write, got %d saves", f.carts.saves)
	}

	cart, err := f.svc.UpdateQuantity(context.Background(), customerActor, UpdateCartQuantityCommand{CustomerID: "cust-1", ProductID: "A", Quantity: 5})
	if err != nil || cart.Items[0].Quantity != 5 {
		t.Fatalf("expected quantity 5, got %+v (%v)", cart.Items, err)
	}
}

func TestCartRemoveItemIsIdempotent(t *testing.T) {
	f := newCartFixture(t, domain.Cart{CustomerID: "cust-1", Items: []domain.CartLine{
		{ProductID: "A", UnitPrice: dec("100"), Quantity: 1},
		{ProductID: "B", UnitPrice: dec("50"), Quantity: 1},
	}})

	cart, err := f.svc.RemoveItem(context.Background(), customerActor, "cust-1", "A")
	if err != nil || len(cart.Items) != 1 || cart.Items[0].ProductID != "B" {
		t.Fatalf("unexpected cart after remove: %+v (%v)", cart, err)
	}
	cart, err = f.svc.RemoveItem(context.Background(), customerActor, "cust-1", "A")
	if err != nil || len(cart.Items) != 1 {
		t.Fatalf("expected second remove to be a no-op, got %+v (%v)", cart, err)
	}
}

func TestCartPersistFailureKeepsIntendedState(t *testing.T) {
	f := newCartFixture(t)
	f.carts.saveErr = errTestUnavailable

	cart, err := f.svc.AddItem(context.Background(), customerActor, AddCartItemCommand{CustomerID: "cust-1", ProductID: "A", Quantity: 2})
	if err != nil {
		t.Fatalf("expected lenient write, got %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 2 {
		t.Fatalf("expected in-memory state to reflect intent, got %+v", cart)
	}
	if !f.logs.has("cart.persist_failed") {
		t.Fatalf("expected cart.persist_failed to be logged")
	}
}

func TestCartLoadFailureIsStrict(t *testing.T) {
	f := newCartFixture(t)
	f.carts.getErr = errTestUnavailable
	if _, err := f.svc.GetCart(context.Background(), customerActor, "cust-1"); !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestCartRejectsOtherCustomers(t *testing.T) {
	f := newCartFixture(t)
	if _, err := f.svc.GetCart(context.Background(), otherCustomer, "cust-1"); !errors.Is(err, ErrCartForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCartLoadFinishesPendingClear(t *testing.T) {
	f := newCartFixture(t, domain.Cart{
		CustomerID:          "cust-1",
		Items:               []domain.CartLine{{ProductID: "A", UnitPrice: dec("100"), Quantity: 1}},
		PendingClearOrderID: "ORD-20240301-100000-AA",
	})
	f.orders.orders["ORD-20240301-100000-AA"] = domain.Order{OrderID: "ORD-20240301-100000-AA", CustomerID: "cust-1"}

	cart, err := f.svc.GetCart(context.Background(), customerActor, "cust-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Items) != 0 || cart.PendingClearOrderID != "" {
		t.Fatalf("expected cart to be cleared, got %+v", cart)
	}
	if stored := f.carts.stored("cust-1"); len(stored.Items) != 0 {
		t.Fatalf("expected cleared cart to be persisted, got %+v", stored)
	}
}

func TestCartLoadDropsMarkerForMissingOrder(t *testing.T) {
	f := newCartFixture(t, domain.Cart{
		CustomerID:          "cust-1",
		Items:               []domain.CartLine{{ProductID: "A", UnitPrice: dec("100"), Quantity: 1}},
		PendingClearOrderID: "ORD-20240301-100000-ZZ",
	})

	cart, err := f.svc.GetCart(context.Background(), customerActor, "cust-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Items) != 1 || cart.PendingClearOrderID != "" {
		t.Fatalf("expected items kept and marker dropped, got %+v", cart)
	}
}

func TestCartAckAttention(t *testing.T) {
	f := newCartFixture(t, domain.Cart{CustomerID: "cust-1", Attention: true})
	cart, err := f.svc.AckAttention(context.Background(), customerActor, "cust-1")
	if err != nil || cart.Attention {
		t.Fatalf("expected attention cleared, got %+v (%v)", cart, err)
	}
}
