package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/payments"
	"github.com/pitta999/orderportal/internal/platform/config"
	"github.com/pitta999/orderportal/internal/platform/observability"
	"github.com/pitta999/orderportal/internal/repositories"
	"github.com/pitta999/orderportal/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Pricing    services.PricingService
	Carts      services.CartService
	Orders     services.OrderService
	Payments   services.PaymentService
	Invoices   services.InvoiceService
	Reconciler services.RemittanceReconciler
}

// Dependencies carries the infrastructure built by the caller. Everything except the
// registry is optional: a missing checkout provider disables card payments, a missing
// publisher disables order events.
type Dependencies struct {
	Checkout     payments.CheckoutProvider
	Events       services.OrderEventPublisher
	OrderMetrics services.OrderMetrics
	JobMetrics   services.JobMetrics
	Checks       []repositories.DependencyCheck
	Logger       *zap.Logger
	Clock        func() time.Time
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Readiness    *repositories.ReadinessChecker
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries.
func NewContainer(_ context.Context, cfg config.Config, reg repositories.Registry, deps Dependencies) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	svc, err := buildServices(reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	container := &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}
	if len(deps.Checks) > 0 {
		readiness, err := repositories.NewReadinessChecker(deps.Checks, deps.Clock)
		if err != nil {
			return nil, fmt.Errorf("build readiness checker: %w", err)
		}
		container.Readiness = readiness
	}
	return container, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, deps Dependencies) (Services, error) {
	var svc Services
	events := func(component string) services.EventLogger {
		return observability.EventLogger(deps.Logger, component)
	}

	pricing, err := services.NewPricingService(services.PricingServiceDeps{
		Overrides: reg.PriceOverrides(),
		Catalog:   reg.Catalog(),
		Clock:     deps.Clock,
		Logger:    events("pricing"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing service: %w", err)
	}
	svc.Pricing = pricing

	carts, err := services.NewCartService(services.CartServiceDeps{
		Carts:   reg.Carts(),
		Orders:  reg.Orders(),
		Catalog: reg.Catalog(),
		Pricing: pricing,
		Clock:   deps.Clock,
		Logger:  events("cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Carts = carts

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:            reg.Orders(),
		Carts:             reg.Carts(),
		Customers:         reg.Customers(),
		Catalog:           reg.Catalog(),
		Events:            deps.Events,
		Metrics:           deps.OrderMetrics,
		ShippingRatePerKg: cfg.Shipping.CFRRatePerKg,
		Clock:             deps.Clock,
		Logger:            events("orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:         reg.Orders(),
		Blobs:          reg.Blobs(),
		Checkout:       deps.Checkout,
		Events:         deps.Events,
		Metrics:        deps.OrderMetrics,
		Currency:       cfg.PSP.Currency,
		SuccessURL:     cfg.PSP.SuccessURL,
		CancelURL:      cfg.PSP.CancelURL,
		SignedURLTTL:   cfg.Storage.SignedURLTTL,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		Clock:          deps.Clock,
		Logger:         events("payments"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	invoices, err := services.NewInvoiceService(services.InvoiceServiceDeps{
		Orders:    reg.Orders(),
		Customers: reg.Customers(),
		Catalog:   reg.Catalog(),
		Supplier:  supplierFromConfig(cfg.Supplier),
		Clock:     deps.Clock,
		Logger:    events("invoices"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build invoice service: %w", err)
	}
	svc.Invoices = invoices

	reconciler, err := services.NewRemittanceReconciler(services.RemittanceReconcilerDeps{
		Orders:  reg.Orders(),
		Blobs:   reg.Blobs(),
		Grace:   cfg.Jobs.ReconcileGrace,
		Metrics: deps.JobMetrics,
		Logger:  events("reconcile"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build remittance reconciler: %w", err)
	}
	svc.Reconciler = reconciler

	return svc, nil
}

func supplierFromConfig(cfg config.SupplierConfig) services.SupplierInfo {
	return domain.SupplierInfo{
		CompanyName: cfg.CompanyName,
		Address: domain.Address{
			Line1:      cfg.AddressLine1,
			Line2:      cfg.AddressLine2,
			City:       cfg.City,
			PostalCode: cfg.PostalCode,
			Country:    cfg.Country,
		},
		Email:              cfg.Email,
		Phone:              cfg.Phone,
		VATNumber:          cfg.VATNumber,
		RegistrationNumber: cfg.RegistrationNumber,
		BankName:           cfg.BankName,
		BankAccount:        cfg.BankAccount,
		SwiftCode:          cfg.SwiftCode,
	}
}
