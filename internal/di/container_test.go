package di

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/platform/config"
	"github.com/pitta999/orderportal/internal/repositories"
)

// The embedded interfaces are left nil; construction never calls them.
type fakeCarts struct{ repositories.CartRepository }

type fakeOrders struct{ repositories.OrderRepository }

type fakeOverrides struct {
	repositories.PriceOverrideRepository
}

type fakeCatalog struct{ repositories.CatalogRepository }

type fakeCustomers struct {
	repositories.CustomerRepository
}

type fakeBlobs struct{ repositories.BlobStore }

type fakeRegistry struct {
	closed bool
}

func (r *fakeRegistry) Close(context.Context) error { r.closed = true; return nil }
func (r *fakeRegistry) Carts() repositories.CartRepository {
	return fakeCarts{}
}
func (r *fakeRegistry) Orders() repositories.OrderRepository {
	return fakeOrders{}
}
func (r *fakeRegistry) PriceOverrides() repositories.PriceOverrideRepository {
	return fakeOverrides{}
}
func (r *fakeRegistry) Catalog() repositories.CatalogRepository {
	return fakeCatalog{}
}
func (r *fakeRegistry) Customers() repositories.CustomerRepository {
	return fakeCustomers{}
}
func (r *fakeRegistry) Blobs() repositories.BlobStore {
	return fakeBlobs{}
}

func testConfig() config.Config {
	return config.Config{
		Storage:  config.StorageConfig{SignedURLTTL: 10 * time.Minute, MaxUploadBytes: 1 << 20},
		PSP:      config.PSPConfig{Currency: "usd"},
		Jobs:     config.JobsConfig{ReconcileGrace: time.Hour},
		Shipping: config.ShippingConfig{CFRRatePerKg: decimal.RequireFromString("1.5")},
		Supplier: config.SupplierConfig{CompanyName: "Harbor Optics", City: "Busan", Country: "KR"},
	}
}

func TestNewContainerBuildsEveryService(t *testing.T) {
	reg := &fakeRegistry{}
	container, err := NewContainer(context.Background(), testConfig(), reg, Dependencies{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := container.Services
	if svc.Pricing == nil || svc.Carts == nil || svc.Orders == nil || svc.Payments == nil || svc.Invoices == nil || svc.Reconciler == nil {
		t.Fatalf("expected every service to be wired, got %+v", svc)
	}
	if container.Readiness != nil {
		t.Fatalf("expected no readiness checker without checks")
	}
	if err := container.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !reg.closed {
		t.Fatalf("expected registry to be closed")
	}
}

func TestNewContainerBuildsReadiness(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	checks := []repositories.DependencyCheck{
		{Name: "firestore", Critical: true, Check: func(context.Context) error { return nil }},
		{Name: "storage", Check: func(context.Context) error { return errors.New("bucket unreachable") }},
	}
	container, err := NewContainer(context.Background(), testConfig(), &fakeRegistry{}, Dependencies{
		Checks: checks,
		Clock:  func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report := container.Readiness.Collect(context.Background())
	if report.Status != domain.ReadinessDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if report.Dependencies["storage"].Detail != "bucket unreachable" {
		t.Fatalf("unexpected storage detail %+v", report.Dependencies["storage"])
	}
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(context.Background(), testConfig(), nil, Dependencies{}); err == nil {
		t.Fatal("expected error for nil registry")
	}
}

func TestSupplierFromConfig(t *testing.T) {
	supplier := supplierFromConfig(testConfig().Supplier)
	if supplier.CompanyName != "Harbor Optics" || supplier.Address.City != "Busan" || supplier.Address.Country != "KR" {
		t.Fatalf("unexpected supplier %+v", supplier)
	}
}
