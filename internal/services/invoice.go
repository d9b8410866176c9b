package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/repositories"
)

// UncategorizedGroup names the invoice group for items without a category.
const UncategorizedGroup = "Uncategorized"

// invoiceCategoryOrder is the fixed print order of known categories.
var invoiceCategoryOrder = []string{"Frames", "Lenses", "Sunglasses", "Accessories", "Parts"}

// BuildInvoice groups the order items by category and totals each group. Products missing
// from productMeta print with blank tax metadata. It performs no I/O.
func BuildInvoice(order Order, customer Customer, supplier SupplierInfo, productMeta map[string]Product) InvoiceDocument {
	fold := cases.Fold()
	rank := make(map[string]int, len(invoiceCategoryOrder))
	for i, name := range invoiceCategoryOrder {
		rank[fold.String(name)] = i
	}

	type bucket struct {
		key   string
		group domain.InvoiceCategoryGroup
	}
	buckets := make(map[string]*bucket)
	var ordered []*bucket

	for _, item := range order.Items {
		display := strings.TrimSpace(item.CategoryName)
		if display == "" {
			display = UncategorizedGroup
		}
		key := fold.String(display)
		if i, ok := rank[key]; ok {
			display = invoiceCategoryOrder[i]
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{key: key, group: domain.InvoiceCategoryGroup{CategoryName: display, Subtotal: decimal.Zero}}
			buckets[key] = b
			ordered = append(ordered, b)
		}

		meta := productMeta[item.ProductID]
		line := domain.InvoiceLine{
			ProductID:   item.ProductID,
			Name:        item.Name,
			Description: meta.Description,
			HSCode:      meta.HSCode,
			Origin:      meta.Origin,
			WeightKg:    meta.WeightKg,
			Quantity:    item.Quantity,
			UnitPrice:   item.EffectiveUnitPrice(),
			Amount:      item.LineTotal(),
		}
		b.group.Lines = append(b.group.Lines, line)
		b.group.Subtotal = b.group.Subtotal.Add(line.Amount)
	}

	uncategorized := fold.String(UncategorizedGroup)
	slices.SortStableFunc(ordered, func(a, b *bucket) int {
		ra, knownA := rank[a.key]
		rb, knownB := rank[b.key]
		switch {
		case knownA && knownB:
			return ra - rb
		case knownA:
			return -1
		case knownB:
			return 1
		case a.key == uncategorized:
			return 1
		case b.key == uncategorized:
			return -1
		}
		return strings.Compare(a.key, b.key)
	})

	doc := domain.InvoiceDocument{
		InvoiceNumber: invoiceNumber(order.OrderID),
		OrderID:       order.OrderID,
		IssuedAt:      order.CreatedAt,
		Supplier:      supplier,
		Buyer:         invoiceBuyer(order, customer),
		ShipTo:        order.ShipTo,
		ShippingTerms: order.ShippingTerms,
		ItemsSubtotal: decimal.Zero,
		ShippingCost:  order.ShippingCost,
		GrandTotal:    order.TotalAmount,
		PaymentMethod: order.PaymentMethod,
		Groups:        make([]domain.InvoiceCategoryGroup, 0, len(ordered)),
	}
	for _, b := range ordered {
		b.group.Subtotal = domain.RoundMoney(b.group.Subtotal)
		doc.ItemsSubtotal = doc.ItemsSubtotal.Add(b.group.Subtotal)
		doc.Groups = append(doc.Groups, b.group)
	}
	doc.ItemsSubtotal = domain.RoundMoney(doc.ItemsSubtotal)
	return doc
}

func invoiceNumber(orderID string) string {
	if rest, ok := strings.CutPrefix(orderID, "ORD-"); ok {
		return "INV-" + rest
	}
	return "INV-" + orderID
}

func invoiceBuyer(order Order, customer Customer) domain.InvoiceParty {
	party := domain.InvoiceParty{
		CustomerID:         order.CustomerID,
		CompanyName:        customer.CompanyName,
		ContactName:        customer.ContactName,
		Email:              customer.Email,
		Phone:              customer.Phone,
		BillingAddress:     customer.BillingAddress,
		VATNumber:          customer.VATNumber,
		RegistrationNumber: customer.RegistrationNumber,
	}
	if party.CompanyName == "" {
		party.CompanyName = order.CustomerName
	}
	return party
}

// ErrInvoiceUnavailable indicates the invoice collaborators could not be read.
var ErrInvoiceUnavailable = errors.New("invoice: unavailable")

// InvoiceServiceDeps bundles collaborators required by the invoice service.
type InvoiceServiceDeps struct {
	Orders    repositories.OrderRepository
	Customers repositories.CustomerRepository
	Catalog   repositories.CatalogRepository
	Supplier  SupplierInfo
	Clock     func() time.Time
	Logger    EventLogger
}

type invoiceService struct {
	customers repositories.CustomerRepository
	catalog   repositories.CatalogRepository
	supplier  SupplierInfo
	clock     func() time.Time
	logger    EventLogger
	writer    orderWriter
}

// NewInvoiceService constructs the invoice service.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceService, error) {
	if deps.Orders == nil {
		return nil, errors.New("invoice service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	utc := func() time.Time { return clock().UTC() }
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &invoiceService{
		customers: deps.Customers,
		catalog:   deps.Catalog,
		supplier:  deps.Supplier,
		clock:     utc,
		logger:    logger,
		writer:    newOrderWriter(deps.Orders, utc),
	}, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, actor Principal, orderID string) (InvoiceDocument, error) {
	order, err := s.writer.load(ctx, actor, orderID)
	if err != nil {
		return InvoiceDocument{}, err
	}

	customer := Customer{ID: order.CustomerID}
	if s.customers != nil {
		found, err := s.customers.FindByID(ctx, order.CustomerID)
		switch {
		case err == nil:
			customer = found
		case isRepositoryNotFound(err):
		default:
			return InvoiceDocument{}, errors.Join(ErrInvoiceUnavailable, err)
		}
	}

	meta := map[string]Product{}
	if s.catalog != nil && len(order.Items) > 0 {
		ids := make([]string, 0, len(order.Items))
		for _, item := range order.Items {
			ids = append(ids, item.ProductID)
		}
		products, err := s.catalog.GetProducts(ctx, ids)
		if err != nil {
			s.logger(ctx, "invoice.product_meta_failed", map[string]any{"orderId": order.OrderID, "error": err.Error()})
		} else {
			meta = products
		}
	}

	doc := BuildInvoice(order, customer, s.supplier, meta)
	doc.IssuedAt = s.clock()
	return doc, nil
}
