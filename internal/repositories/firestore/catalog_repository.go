package firestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/pitta999/orderportal/internal/domain"
	pfirestore "github.com/pitta999/orderportal/internal/platform/firestore"
	"github.com/pitta999/orderportal/internal/repositories"
)

const (
	productCollection  = "products"
	customerCollection = "customers"
)

// CatalogRepository reads product documents maintained by the catalog system.
type CatalogRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewCatalogRepository constructs a read-only Firestore catalog.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{base: pfirestore.NewBaseRepository[productDocument](provider, productCollection)}, nil
}

func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// GetProducts batch-reads products; ids that do not exist are absent from the result.
func (r *CatalogRepository) GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	unique := make([]string, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	docs, err := r.base.GetAll(ctx, unique)
	if err != nil {
		return nil, err
	}
	products := make(map[string]domain.Product, len(docs))
	for _, doc := range docs {
		product, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return nil, err
		}
		products[product.ID] = product
	}
	return products, nil
}

type productDocument struct {
	Name         string    `firestore:"name"`
	Description  string    `firestore:"description,omitempty"`
	Price        any       `firestore:"price"`
	CategoryName string    `firestore:"categoryName,omitempty"`
	GroupName    string    `firestore:"groupName,omitempty"`
	ImageRef     string    `firestore:"imageRef,omitempty"`
	HSCode       string    `firestore:"hsCode,omitempty"`
	Origin       string    `firestore:"origin,omitempty"`
	WeightKg     any       `firestore:"weightKg,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) (domain.Product, error) {
	rawPrice, err := catalogNumber("product.price", d.Price)
	if err != nil {
		return domain.Product{}, err
	}
	price, err := parseMoney("product.price", rawPrice)
	if err != nil {
		return domain.Product{}, err
	}
	rawWeight, err := catalogNumber("product.weightKg", d.WeightKg)
	if err != nil {
		return domain.Product{}, err
	}
	weight, err := parseWeight(rawWeight)
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:           id,
		Name:         d.Name,
		Description:  d.Description,
		Price:        price,
		CategoryName: d.CategoryName,
		GroupName:    d.GroupName,
		ImageRef:     d.ImageRef,
		HSCode:       d.HSCode,
		Origin:       d.Origin,
		WeightKg:     weight,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

// catalogNumber accepts the numeric fields the catalog writes either as Firestore numbers
// or as decimal strings.
func catalogNumber(field string, raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return decimal.NewFromFloat(v).String(), nil
	default:
		return "", fmt.Errorf("%s: unsupported value type %T", field, raw)
	}
}

// CustomerRepository reads customer profiles owned by the identity system.
type CustomerRepository struct {
	base *pfirestore.BaseRepository[customerDocument]
}

// NewCustomerRepository constructs a read-only Firestore customer directory.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{base: pfirestore.NewBaseRepository[customerDocument](provider, customerCollection)}, nil
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(customerID))
	if err != nil {
		return domain.Customer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type customerDocument struct {
	CompanyName        string          `firestore:"companyName"`
	ContactName        string          `firestore:"contactName,omitempty"`
	Email              string          `firestore:"email,omitempty"`
	Phone              string          `firestore:"phone,omitempty"`
	BillingAddress     addressDocument `firestore:"billingAddress"`
	ShippingAddress    addressDocument `firestore:"shippingAddress"`
	VATNumber          string          `firestore:"vatNumber,omitempty"`
	RegistrationNumber string          `firestore:"registrationNumber,omitempty"`
	RoleLevel          int             `firestore:"roleLevel"`
	UpdatedAt          time.Time       `firestore:"updatedAt"`
}

func (d customerDocument) toDomain(id string) domain.Customer {
	return domain.Customer{
		ID:                 id,
		CompanyName:        d.CompanyName,
		ContactName:        d.ContactName,
		Email:              d.Email,
		Phone:              d.Phone,
		BillingAddress:     d.BillingAddress.toDomain(),
		ShippingAddress:    d.ShippingAddress.toDomain(),
		VATNumber:          d.VATNumber,
		RegistrationNumber: d.RegistrationNumber,
		RoleLevel:          domain.RoleLevel(d.RoleLevel),
		UpdatedAt:          d.UpdatedAt,
	}
}

var (
	_ repositories.CatalogRepository  = (*CatalogRepository)(nil)
	_ repositories.CustomerRepository = (*CustomerRepository)(nil)
)
