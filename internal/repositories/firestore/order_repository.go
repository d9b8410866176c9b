package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/pitta999/orderportal/internal/domain"
	pfirestore "github.com/pitta999/orderportal/internal/platform/firestore"
	"github.com/pitta999/orderportal/internal/platform/pagination"
	"github.com/pitta999/orderportal/internal/repositories"
)

const (
	orderCollection  = "orders"
	defaultOrderPage = 20
)

// ErrStaleOrderVersion is wrapped in a conflict error when the stored version moved on.
var ErrStaleOrderVersion = errors.New("order repository: stale version")

// OrderRepository persists order documents keyed by order id.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base:     pfirestore.NewBaseRepository[orderDocument](provider, orderCollection),
		provider: provider,
	}, nil
}

// Create inserts the order; an existing document with the same id is a conflict.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.OrderID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Create(ctx, orderID, orderToDocument(order))
}

// Update replaces the order inside a transaction after checking the stored version.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedVersion int64) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	docRef, err := r.base.DocumentRef(ctx, strings.TrimSpace(order.OrderID))
	if err != nil {
		return err
	}
	doc := orderToDocument(order)

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var stored struct {
			Version int64 `firestore:"version"`
		}
		if err := snapshot.DataTo(&stored); err != nil {
			return fmt.Errorf("order repository: decode version: %w", err)
		}
		if stored.Version != expectedVersion {
			return pfirestore.Conflict("orders.update", fmt.Errorf("%w: stored %d, expected %d", ErrStaleOrderVersion, stored.Version, expectedVersion))
		}
		return tx.Set(docRef, doc)
	})
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// List returns orders newest first. The page token is an opaque cursor over
// (createdAt, document id).
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	limit := filter.Pagination.PageSize
	if limit <= 0 {
		limit = defaultOrderPage
	}

	query := client.Collection(orderCollection).Query
	if customerID := strings.TrimSpace(filter.CustomerID); customerID != "" {
		query = query.Where("customerId", "==", customerID)
	}
	switch len(filter.Status) {
	case 0:
	case 1:
		query = query.Where("status", "==", string(filter.Status[0]))
	default:
		statuses := make([]string, 0, len(filter.Status))
		for _, status := range filter.Status {
			statuses = append(statuses, string(status))
		}
		query = query.Where("status", "in", statuses)
	}
	if filter.PaymentMethod != domain.PaymentMethodNone {
		query = query.Where("paymentMethod", "==", string(filter.PaymentMethod))
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc).Limit(limit + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		createdAt, docID, err := decodeOrderCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		query = query.StartAfter(createdAt, docID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		doc, err := r.base.Decode(snap)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		order, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		orders = append(orders, order)
	}

	page := domain.CursorPage[domain.Order]{Items: orders}
	if len(orders) > limit {
		last := orders[limit-1]
		page.Items = orders[:limit]
		token, err := encodeOrderCursor(last.CreatedAt, last.OrderID)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func encodeOrderCursor(createdAt time.Time, orderID string) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{CreatedAt: createdAt, ID: orderID})
}

func decodeOrderCursor(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	return cursor.CreatedAt, cursor.ID, nil
}

type orderDocument struct {
	ID               string              `firestore:"id"`
	CustomerID       string              `firestore:"customerId"`
	CustomerName     string              `firestore:"customerName,omitempty"`
	Items            []orderItemDocument `firestore:"items"`
	ShipTo           addressDocument     `firestore:"shipTo"`
	ShippingTerms    string              `firestore:"shippingTerms"`
	Subtotal         string              `firestore:"subtotal"`
	ShippingCost     string              `firestore:"shippingCost"`
	ShippingEstimate *string             `firestore:"shippingEstimate,omitempty"`
	TotalAmount      string              `firestore:"totalAmount"`
	Status           string              `firestore:"status"`
	PaymentStatus    string              `firestore:"paymentStatus"`
	PaymentMethod    string              `firestore:"paymentMethod"`
	PaymentID        string              `firestore:"paymentId,omitempty"`
	TTPayment        *ttPaymentDocument  `firestore:"ttPayment,omitempty"`
	Version          int64               `firestore:"version"`
	CreatedAt        time.Time           `firestore:"createdAt"`
	UpdatedAt        time.Time           `firestore:"updatedAt"`
	UpdatedBy        string              `firestore:"updatedBy,omitempty"`
}

type orderItemDocument struct {
	ProductID     string  `firestore:"productId"`
	Name          string  `firestore:"name"`
	Price         string  `firestore:"price"`
	DiscountPrice *string `firestore:"discountPrice,omitempty"`
	Quantity      int     `firestore:"quantity"`
	CategoryName  string  `firestore:"categoryName,omitempty"`
	ImageRef      string  `firestore:"imageRef,omitempty"`
}

type ttPaymentDocument struct {
	RemittanceFiles []remittanceFileDocument `firestore:"remittanceFiles"`
}

type remittanceFileDocument struct {
	ID          string    `firestore:"id"`
	Name        string    `firestore:"name"`
	URL         string    `firestore:"url"`
	ObjectPath  string    `firestore:"objectPath"`
	ContentType string    `firestore:"contentType,omitempty"`
	Size        int64     `firestore:"size"`
	UploadedAt  time.Time `firestore:"uploadedAt"`
	UploadedBy  string    `firestore:"uploadedBy,omitempty"`
}

func orderToDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		ID:               order.ID,
		CustomerID:       order.CustomerID,
		CustomerName:     order.CustomerName,
		Items:            make([]orderItemDocument, 0, len(order.Items)),
		ShipTo:           addressToDocument(order.ShipTo),
		ShippingTerms:    string(order.ShippingTerms),
		Subtotal:         moneyString(order.Subtotal),
		ShippingCost:     moneyString(order.ShippingCost),
		ShippingEstimate: optionalMoneyString(order.ShippingEstimate),
		TotalAmount:      moneyString(order.TotalAmount),
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		PaymentMethod:    string(order.PaymentMethod),
		PaymentID:        order.PaymentID,
		Version:          order.Version,
		CreatedAt:        order.CreatedAt.UTC(),
		UpdatedAt:        order.UpdatedAt.UTC(),
		UpdatedBy:        order.UpdatedBy,
	}
	if doc.ID == "" {
		doc.ID = order.OrderID
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID:     item.ProductID,
			Name:          item.Name,
			Price:         moneyString(item.Price),
			DiscountPrice: optionalMoneyString(item.DiscountPrice),
			Quantity:      item.Quantity,
			CategoryName:  item.CategoryName,
			ImageRef:      item.ImageRef,
		})
	}
	if order.TTPayment != nil {
		doc.TTPayment = &ttPaymentDocument{RemittanceFiles: make([]remittanceFileDocument, 0, len(order.TTPayment.RemittanceFiles))}
		for _, file := range order.TTPayment.RemittanceFiles {
			doc.TTPayment.RemittanceFiles = append(doc.TTPayment.RemittanceFiles, remittanceFileDocument{
				ID:          file.ID,
				Name:        file.Name,
				URL:         file.URL,
				ObjectPath:  file.ObjectPath,
				ContentType: file.ContentType,
				Size:        file.Size,
				UploadedAt:  file.UploadedAt.UTC(),
				UploadedBy:  file.UploadedBy,
			})
		}
	}
	return doc
}

func (d orderDocument) toDomain(orderID string) (domain.Order, error) {
	subtotal, err := parseMoney("order.subtotal", d.Subtotal)
	if err != nil {
		return domain.Order{}, err
	}
	shipping, err := parseMoney("order.shippingCost", d.ShippingCost)
	if err != nil {
		return domain.Order{}, err
	}
	total, err := parseMoney("order.totalAmount", d.TotalAmount)
	if err != nil {
		return domain.Order{}, err
	}
	estimate, err := parseOptionalMoney("order.shippingEstimate", d.ShippingEstimate)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:               d.ID,
		OrderID:          orderID,
		CustomerID:       d.CustomerID,
		CustomerName:     d.CustomerName,
		Items:            make([]domain.OrderItem, 0, len(d.Items)),
		ShipTo:           d.ShipTo.toDomain(),
		ShippingTerms:    domain.ShippingTerms(d.ShippingTerms),
		Subtotal:         subtotal,
		ShippingCost:     shipping,
		ShippingEstimate: estimate,
		TotalAmount:      total,
		Status:           domain.OrderStatus(d.Status),
		PaymentStatus:    domain.PaymentStatus(d.PaymentStatus),
		PaymentMethod:    domain.PaymentMethod(d.PaymentMethod),
		PaymentID:        d.PaymentID,
		Version:          d.Version,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
		UpdatedBy:        d.UpdatedBy,
	}
	if order.ID == "" {
		order.ID = orderID
	}
	for _, item := range d.Items {
		price, err := parseMoney("order.items.price", item.Price)
		if err != nil {
			return domain.Order{}, err
		}
		discount, err := parseOptionalMoney("order.items.discountPrice", item.DiscountPrice)
		if err != nil {
			return domain.Order{}, err
		}
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:     item.ProductID,
			Name:          item.Name,
			Price:         price,
			DiscountPrice: discount,
			Quantity:      item.Quantity,
			CategoryName:  item.CategoryName,
			ImageRef:      item.ImageRef,
		})
	}
	if d.TTPayment != nil {
		order.TTPayment = &domain.TTPayment{RemittanceFiles: make([]domain.RemittanceFile, 0, len(d.TTPayment.RemittanceFiles))}
		for _, file := range d.TTPayment.RemittanceFiles {
			order.TTPayment.RemittanceFiles = append(order.TTPayment.RemittanceFiles, domain.RemittanceFile{
				ID:          file.ID,
				Name:        file.Name,
				URL:         file.URL,
				ObjectPath:  file.ObjectPath,
				ContentType: file.ContentType,
				Size:        file.Size,
				UploadedAt:  file.UploadedAt,
				UploadedBy:  file.UploadedBy,
			})
		}
	}
	return order, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
