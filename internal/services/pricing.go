package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/repositories"
)

var (
	// ErrPricingInvalidInput indicates malformed override data.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingForbidden indicates the actor may not manage overrides.
	ErrPricingForbidden = errors.New("pricing: forbidden")
	// ErrPricingProductNotFound indicates the catalog has no such product.
	ErrPricingProductNotFound = errors.New("pricing: product not found")
	// ErrPricingUnavailable indicates the override store could not be reached.
	ErrPricingUnavailable = errors.New("pricing: unavailable")
)

var hundred = decimal.NewFromInt(100)

// PricingServiceDeps bundles collaborators required by the pricing resolver.
type PricingServiceDeps struct {
	Overrides repositories.PriceOverrideRepository
	// Catalog is optional; the id-based operations need it.
	Catalog repositories.CatalogRepository
	Clock   func() time.Time
	Logger  EventLogger
}

type pricingService struct {
	overrides repositories.PriceOverrideRepository
	catalog   repositories.CatalogRepository
	clock     func() time.Time
	logger    EventLogger
	repoErrs  repositoryErrorMapping
}

// NewPricingService constructs the pricing resolver.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.Overrides == nil {
		return nil, errors.New("pricing service: override repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &pricingService{
		overrides: deps.Overrides,
		catalog:   deps.Catalog,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
		repoErrs: repositoryErrorMapping{
			notFound:    ErrPricingInvalidInput,
			conflict:    ErrPricingUnavailable,
			unavailable: ErrPricingUnavailable,
		},
	}, nil
}

func (s *pricingService) ResolvePrice(ctx context.Context, actor Principal, customerID string, product Product) PriceQuote {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" || !actor.CanActFor(customerID) {
		return quotePrice(product, nil)
	}
	override, err := s.overrides.Find(ctx, customerID, product.ID)
	if err != nil {
		if !isRepositoryNotFound(err) {
			s.logger(ctx, "pricing.override_lookup_failed", map[string]any{
				"customerId": customerID,
				"productId":  product.ID,
				"error":      err.Error(),
			})
		}
		return quotePrice(product, nil)
	}
	return quotePrice(product, &override.UnitPrice)
}

func (s *pricingService) ResolveCatalog(ctx context.Context, actor Principal, customerID string, products []Product) []PriceQuote {
	quotes := make([]PriceQuote, 0, len(products))
	customerID = strings.TrimSpace(customerID)

	var byProduct map[string]decimal.Decimal
	if customerID != "" && actor.CanActFor(customerID) {
		overrides, err := s.overrides.ListByCustomer(ctx, customerID)
		if err != nil {
			s.logger(ctx, "pricing.override_list_failed", map[string]any{
				"customerId": customerID,
				"error":      err.Error(),
			})
		}
		byProduct = make(map[string]decimal.Decimal, len(overrides))
		for _, override := range overrides {
			byProduct[override.ProductID] = override.UnitPrice
		}
	}

	for _, product := range products {
		if price, ok := byProduct[product.ID]; ok {
			quotes = append(quotes, quotePrice(product, &price))
			continue
		}
		quotes = append(quotes, quotePrice(product, nil))
	}
	return quotes
}

func (s *pricingService) ListOverrides(ctx context.Context, actor Principal, customerID string) ([]PriceOverride, error) {
	if !actor.IsAdmin() {
		return nil, ErrPricingForbidden
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrPricingInvalidInput)
	}
	overrides, err := s.overrides.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, s.repoErrs.translate(err)
	}
	return overrides, nil
}

func (s *pricingService) UpsertOverride(ctx context.Context, actor Principal, cmd UpsertPriceOverrideCommand) (PriceOverride, error) {
	if !actor.IsAdmin() {
		return PriceOverride{}, ErrPricingForbidden
	}
	customerID := strings.TrimSpace(cmd.CustomerID)
	productID := strings.TrimSpace(cmd.ProductID)
	if customerID == "" || productID == "" {
		return PriceOverride{}, fmt.Errorf("%w: customer id and product id are required", ErrPricingInvalidInput)
	}
	if cmd.UnitPrice.IsNegative() {
		return PriceOverride{}, fmt.Errorf("%w: unit price must not be negative", ErrPricingInvalidInput)
	}

	override := PriceOverride{
		CustomerID: customerID,
		ProductID:  productID,
		UnitPrice:  domain.RoundMoney(cmd.UnitPrice),
		UpdatedAt:  s.clock(),
		UpdatedBy:  actor.ID,
	}
	if s.catalog != nil {
		product, err := s.catalog.GetProduct(ctx, productID)
		if err != nil {
			if isRepositoryNotFound(err) {
				return PriceOverride{}, fmt.Errorf("%w: %s", ErrPricingProductNotFound, productID)
			}
			return PriceOverride{}, s.repoErrs.translate(err)
		}
		override.ProductName = product.Name
		override.CategoryName = product.CategoryName
	} else if existing, err := s.overrides.Find(ctx, customerID, productID); err == nil {
		override.ProductName = existing.ProductName
		override.CategoryName = existing.CategoryName
	} else if !isRepositoryNotFound(err) {
		return PriceOverride{}, s.repoErrs.translate(err)
	}

	if err := s.overrides.Upsert(ctx, override); err != nil {
		return PriceOverride{}, s.repoErrs.translate(err)
	}
	s.logger(ctx, "pricing.override_upserted", map[string]any{
		"customerId": customerID,
		"productId":  productID,
		"unitPrice":  override.UnitPrice.StringFixed(2),
	})
	return override, nil
}

// QuoteProducts loads the named products and resolves them for the customer. Unknown ids
// are dropped; the result keeps the order of productIDs.
func (s *pricingService) QuoteProducts(ctx context.Context, actor Principal, customerID string, productIDs []string) ([]PriceQuote, error) {
	if s.catalog == nil {
		return nil, fmt.Errorf("%w: catalog not configured", ErrPricingUnavailable)
	}
	if len(productIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one product id is required", ErrPricingInvalidInput)
	}
	byID, err := s.catalog.GetProducts(ctx, productIDs)
	if err != nil {
		return nil, s.repoErrs.translate(err)
	}
	products := make([]Product, 0, len(byID))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		product, ok := byID[strings.TrimSpace(id)]
		if !ok {
			continue
		}
		if _, dup := seen[product.ID]; dup {
			continue
		}
		seen[product.ID] = struct{}{}
		products = append(products, product)
	}
	return s.ResolveCatalog(ctx, actor, customerID, products), nil
}

// BackfillProductByID looks the product up in the catalog and backfills it.
func (s *pricingService) BackfillProductByID(ctx context.Context, actor Principal, productID string) (BackfillResult, error) {
	if !actor.IsAdmin() {
		return BackfillResult{}, ErrPricingForbidden
	}
	if s.catalog == nil {
		return BackfillResult{}, fmt.Errorf("%w: catalog not configured", ErrPricingUnavailable)
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return BackfillResult{}, fmt.Errorf("%w: product id is required", ErrPricingInvalidInput)
	}
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return BackfillResult{}, fmt.Errorf("%w: %v", ErrPricingProductNotFound, err)
		}
		return BackfillResult{}, s.repoErrs.translate(err)
	}
	return s.BackfillProduct(ctx, actor, product)
}

// BackfillProduct gives a newly introduced product an identity-priced row for every
// customer that already has a price list, leaving existing rows untouched.
func (s *pricingService) BackfillProduct(ctx context.Context, actor Principal, product Product) (BackfillResult, error) {
	if !actor.IsAdmin() {
		return BackfillResult{}, ErrPricingForbidden
	}
	if strings.TrimSpace(product.ID) == "" {
		return BackfillResult{}, fmt.Errorf("%w: product id is required", ErrPricingInvalidInput)
	}

	customerIDs, err := s.overrides.ListCustomerIDs(ctx)
	if err != nil {
		return BackfillResult{}, s.repoErrs.translate(err)
	}

	var result BackfillResult
	now := s.clock()
	for _, customerID := range customerIDs {
		created, err := s.overrides.CreateIfAbsent(ctx, PriceOverride{
			CustomerID:   customerID,
			ProductID:    product.ID,
			UnitPrice:    domain.RoundMoney(product.Price),
			ProductName:  product.Name,
			CategoryName: product.CategoryName,
			UpdatedAt:    now,
			UpdatedBy:    actor.ID,
		})
		if err != nil {
			return result, s.repoErrs.translate(err)
		}
		if created {
			result.Created++
		} else {
			result.Skipped++
		}
	}

	s.logger(ctx, "pricing.backfill_completed", map[string]any{
		"productId": product.ID,
		"created":   result.Created,
		"skipped":   result.Skipped,
	})
	return result, nil
}

// quotePrice applies an override only when it is strictly below the list price.
func quotePrice(product Product, override *decimal.Decimal) PriceQuote {
	list := domain.RoundMoney(product.Price)
	quote := PriceQuote{
		ProductID:      product.ID,
		ListPrice:      list,
		EffectivePrice: list,
	}
	if override == nil || override.IsNegative() || !list.IsPositive() {
		return quote
	}
	effective := domain.RoundMoney(*override)
	if !effective.LessThan(list) {
		return quote
	}
	quote.EffectivePrice = effective
	percent := int(decimal.NewFromInt(1).Sub(effective.Div(list)).Mul(hundred).Round(0).IntPart())
	quote.DiscountPercent = &percent
	return quote
}
