package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/pitta999/orderportal/internal/domain"
	pfirestore "github.com/pitta999/orderportal/internal/platform/firestore"
	"github.com/pitta999/orderportal/internal/repositories"
)

const priceOverrideCollection = "priceOverrides"

// PriceOverrideRepository stores one document per customer/product pair.
type PriceOverrideRepository struct {
	base *pfirestore.BaseRepository[priceOverrideDocument]
}

// NewPriceOverrideRepository constructs a Firestore-backed override repository.
func NewPriceOverrideRepository(provider *pfirestore.Provider) (*PriceOverrideRepository, error) {
	if provider == nil {
		return nil, errors.New("price override repository requires firestore provider")
	}
	return &PriceOverrideRepository{base: pfirestore.NewBaseRepository[priceOverrideDocument](provider, priceOverrideCollection)}, nil
}

// PriceOverrideDocID composes the deterministic document id that keeps overrides unique per pair.
func PriceOverrideDocID(customerID, productID string) string {
	return strings.TrimSpace(customerID) + "_" + strings.TrimSpace(productID)
}

func (r *PriceOverrideRepository) Find(ctx context.Context, customerID, productID string) (domain.PriceOverride, error) {
	doc, err := r.base.Get(ctx, PriceOverrideDocID(customerID, productID))
	if err != nil {
		return domain.PriceOverride{}, err
	}
	return doc.Data.toDomain()
}

func (r *PriceOverrideRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.PriceOverride, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, errors.New("price override repository: customer id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customerId", "==", customerID).OrderBy("productId", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	overrides := make([]domain.PriceOverride, 0, len(docs))
	for _, doc := range docs {
		override, err := doc.Data.toDomain()
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, override)
	}
	return overrides, nil
}

// Upsert replaces the override for the pair.
func (r *PriceOverrideRepository) Upsert(ctx context.Context, override domain.PriceOverride) error {
	if strings.TrimSpace(override.CustomerID) == "" || strings.TrimSpace(override.ProductID) == "" {
		return errors.New("price override repository: customer and product ids are required")
	}
	return r.base.Set(ctx, PriceOverrideDocID(override.CustomerID, override.ProductID), priceOverrideToDocument(override))
}

// CreateIfAbsent relies on Firestore create semantics; an existing pair reports false.
func (r *PriceOverrideRepository) CreateIfAbsent(ctx context.Context, override domain.PriceOverride) (bool, error) {
	if strings.TrimSpace(override.CustomerID) == "" || strings.TrimSpace(override.ProductID) == "" {
		return false, errors.New("price override repository: customer and product ids are required")
	}
	err := r.base.Create(ctx, PriceOverrideDocID(override.CustomerID, override.ProductID), priceOverrideToDocument(override))
	if err == nil {
		return true, nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return false, nil
	}
	return false, err
}

// ListCustomerIDs returns every customer that already has at least one override.
func (r *PriceOverrideRepository) ListCustomerIDs(ctx context.Context) ([]string, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Select("customerId", "productId", "unitPrice")
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(docs))
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id := strings.TrimSpace(doc.Data.CustomerID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type priceOverrideDocument struct {
	CustomerID   string    `firestore:"customerId"`
	ProductID    string    `firestore:"productId"`
	UnitPrice    string    `firestore:"unitPrice"`
	ProductName  string    `firestore:"productName,omitempty"`
	CategoryName string    `firestore:"categoryName,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
	UpdatedBy    string    `firestore:"updatedBy,omitempty"`
}

func priceOverrideToDocument(override domain.PriceOverride) priceOverrideDocument {
	return priceOverrideDocument{
		CustomerID:   strings.TrimSpace(override.CustomerID),
		ProductID:    strings.TrimSpace(override.ProductID),
		UnitPrice:    moneyString(override.UnitPrice),
		ProductName:  override.ProductName,
		CategoryName: override.CategoryName,
		UpdatedAt:    override.UpdatedAt.UTC(),
		UpdatedBy:    override.UpdatedBy,
	}
}

func (d priceOverrideDocument) toDomain() (domain.PriceOverride, error) {
	price, err := parseMoney("priceOverride.unitPrice", d.UnitPrice)
	if err != nil {
		return domain.PriceOverride{}, err
	}
	return domain.PriceOverride{
		CustomerID:   d.CustomerID,
		ProductID:    d.ProductID,
		UnitPrice:    price,
		ProductName:  d.ProductName,
		CategoryName: d.CategoryName,
		UpdatedAt:    d.UpdatedAt,
		UpdatedBy:    d.UpdatedBy,
	}, nil
}

var _ repositories.PriceOverrideRepository = (*PriceOverrideRepository)(nil)
