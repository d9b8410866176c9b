package repositories

import (
	"context"
	"io"
	"time"

	domain "github.com/pitta999/orderportal/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Orders() OrderRepository
	PriceOverrides() PriceOverrideRepository
	Catalog() CatalogRepository
	Customers() CustomerRepository
	Blobs() BlobStore
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository persists the single cart document per customer. Writes are whole-document
// last-write-wins.
type CartRepository interface {
	Get(ctx context.Context, customerID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	CustomerID    string
	Status        []domain.OrderStatus
	PaymentMethod domain.PaymentMethod
	Pagination    domain.Pagination
}

// OrderRepository persists order documents.
type OrderRepository interface {
	// Create inserts a new order and fails with a conflict when the id already exists.
	Create(ctx context.Context, order domain.Order) error
	// Update replaces the order when the stored version equals expectedVersion. The stored
	// version becomes order.Version.
	Update(ctx context.Context, order domain.Order, expectedVersion int64) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// PriceOverrideRepository stores per-customer unit prices.
type PriceOverrideRepository interface {
	Find(ctx context.Context, customerID, productID string) (domain.PriceOverride, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.PriceOverride, error)
	Upsert(ctx context.Context, override domain.PriceOverride) error
	// CreateIfAbsent inserts the override unless one already exists for the pair.
	CreateIfAbsent(ctx context.Context, override domain.PriceOverride) (bool, error)
	ListCustomerIDs(ctx context.Context) ([]string, error)
}

// CatalogRepository reads product facts from the catalog collaborator.
type CatalogRepository interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// CustomerRepository reads customer profiles.
type CustomerRepository interface {
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
}

// BlobObject describes a stored blob.
type BlobObject struct {
	Path      string
	URL       string
	Size      int64
	CreatedAt time.Time
}

// BlobStore keeps uploaded binary evidence.
type BlobStore interface {
	Upload(ctx context.Context, path string, contentType string, body io.Reader) (BlobObject, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]BlobObject, error)
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}
