package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/pitta999/orderportal/internal/domain"
	pfirestore "github.com/pitta999/orderportal/internal/platform/firestore"
	"github.com/pitta999/orderportal/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists the single cart document per customer, keyed by customer id.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)}, nil
}

// Get loads the cart for the customer.
func (r *CartRepository) Get(ctx context.Context, customerID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Cart{}, errors.New("cart repository: customer id is required")
	}

	doc, err := r.base.Get(ctx, customerID)
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// Save replaces the whole cart document. Concurrent writers resolve last-write-wins.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	customerID := strings.TrimSpace(cart.CustomerID)
	if customerID == "" {
		return errors.New("cart repository: customer id is required")
	}
	return r.base.Set(ctx, customerID, cartToDocument(cart))
}

type cartDocument struct {
	Items               []cartLineDocument `firestore:"items"`
	Attention           bool               `firestore:"attention"`
	PendingClearOrderID string             `firestore:"pendingClearOrderId,omitempty"`
	UpdatedAt           time.Time          `firestore:"updatedAt"`
}

type cartLineDocument struct {
	ProductID         string  `firestore:"productId"`
	Name              string  `firestore:"name"`
	UnitPrice         string  `firestore:"unitPrice"`
	DiscountUnitPrice *string `firestore:"discountUnitPrice,omitempty"`
	Quantity          int     `firestore:"quantity"`
	ImageRef          string  `firestore:"imageRef,omitempty"`
	CategoryName      string  `firestore:"categoryName,omitempty"`
}

func cartToDocument(cart domain.Cart) cartDocument {
	doc := cartDocument{
		Items:               make([]cartLineDocument, 0, len(cart.Items)),
		Attention:           cart.Attention,
		PendingClearOrderID: strings.TrimSpace(cart.PendingClearOrderID),
		UpdatedAt:           cart.UpdatedAt.UTC(),
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	for _, line := range cart.Items {
		doc.Items = append(doc.Items, cartLineDocument{
			ProductID:         line.ProductID,
			Name:              line.Name,
			UnitPrice:         moneyString(line.UnitPrice),
			DiscountUnitPrice: optionalMoneyString(line.DiscountUnitPrice),
			Quantity:          line.Quantity,
			ImageRef:          line.ImageRef,
			CategoryName:      line.CategoryName,
		})
	}
	return doc
}

func (d cartDocument) toDomain(customerID string) (domain.Cart, error) {
	cart := domain.Cart{
		CustomerID:          customerID,
		Items:               make([]domain.CartLine, 0, len(d.Items)),
		Attention:           d.Attention,
		PendingClearOrderID: d.PendingClearOrderID,
		UpdatedAt:           d.UpdatedAt,
	}
	for _, line := range d.Items {
		unit, err := parseMoney("cart.unitPrice", line.UnitPrice)
		if err != nil {
			return domain.Cart{}, err
		}
		discount, err := parseOptionalMoney("cart.discountUnitPrice", line.DiscountUnitPrice)
		if err != nil {
			return domain.Cart{}, err
		}
		cart.Items = append(cart.Items, domain.CartLine{
			ProductID:         line.ProductID,
			Name:              line.Name,
			UnitPrice:         unit,
			DiscountUnitPrice: discount,
			Quantity:          line.Quantity,
			ImageRef:          line.ImageRef,
			CategoryName:      line.CategoryName,
		})
	}
	return cart, nil
}

var _ repositories.CartRepository = (*CartRepository)(nil)
