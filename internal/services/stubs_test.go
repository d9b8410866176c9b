package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/payments"
	"github.com/pitta999/orderportal/internal/repositories"
)

type testRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e testRepoError) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.conflict:
		return "conflict"
	default:
		return "unavailable"
	}
}

func (e testRepoError) IsNotFound() bool    { return e.notFound }
func (e testRepoError) IsConflict() bool    { return e.conflict }
func (e testRepoError) IsUnavailable() bool { return e.unavailable }

var (
	errTestNotFound    = testRepoError{notFound: true}
	errTestConflict    = testRepoError{conflict: true}
	errTestUnavailable = testRepoError{unavailable: true}
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func decPtr(value string) *decimal.Decimal {
	d := dec(value)
	return &d
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

var (
	customerActor = Principal{ID: "cust-1", Email: "buyer@example.com", RoleLevel: domain.RoleLevelCustomer}
	otherCustomer = Principal{ID: "cust-2", Email: "other@example.com", RoleLevel: domain.RoleLevelCustomer}
	adminActor    = Principal{ID: "admin-1", Email: "ops@example.com", RoleLevel: domain.RoleLevelAdmin}
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type memoryCartRepo struct {
	mu      sync.Mutex
	carts   map[string]domain.Cart
	getErr  error
	saveErr error
	saves   int
}

func newMemoryCartRepo(carts ...domain.Cart) *memoryCartRepo {
	repo := &memoryCartRepo{carts: map[string]domain.Cart{}}
	for _, cart := range carts {
		repo.carts[cart.CustomerID] = cart
	}
	return repo
}

func (r *memoryCartRepo) Get(_ context.Context, customerID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return domain.Cart{}, r.getErr
	}
	cart, ok := r.carts[customerID]
	if !ok {
		return domain.Cart{}, errTestNotFound
	}
	cart.Items = slices.Clone(cart.Items)
	return cart, nil
}

func (r *memoryCartRepo) Save(_ context.Context, cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	cart.Items = slices.Clone(cart.Items)
	r.carts[cart.CustomerID] = cart
	return nil
}

func (r *memoryCartRepo) stored(customerID string) domain.Cart {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.carts[customerID]
}

type memoryOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	createErr error
	updateErr error
	findErr   error
	updates   int
}

func newMemoryOrderRepo(orders ...domain.Order) *memoryOrderRepo {
	repo := &memoryOrderRepo{orders: map[string]domain.Order{}}
	for _, order := range orders {
		repo.orders[order.OrderID] = cloneOrder(order)
	}
	return repo
}

func (r *memoryOrderRepo) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, exists := r.orders[order.OrderID]; exists {
		return errTestConflict
	}
	r.orders[order.OrderID] = cloneOrder(order)
	return nil
}

func (r *memoryOrderRepo) Update(_ context.Context, order domain.Order, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.orders[order.OrderID]
	if !ok {
		return errTestNotFound
	}
	if stored.Version != expectedVersion {
		return errTestConflict
	}
	r.updates++
	r.orders[order.OrderID] = cloneOrder(order)
	return nil
}

func (r *memoryOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return domain.Order{}, r.findErr
	}
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, errTestNotFound
	}
	return cloneOrder(order), nil
}

func (r *memoryOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Order
	for _, order := range r.orders {
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, order.Status) {
			continue
		}
		if filter.PaymentMethod != "" && order.PaymentMethod != filter.PaymentMethod {
			continue
		}
		items = append(items, cloneOrder(order))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].OrderID < items[j].OrderID })
	return domain.CursorPage[domain.Order]{Items: items}, nil
}

func (r *memoryOrderRepo) stored(orderID string) domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneOrder(r.orders[orderID])
}

type memoryCatalog struct {
	products map[string]domain.Product
	err      error
}

func newMemoryCatalog(products ...domain.Product) *memoryCatalog {
	catalog := &memoryCatalog{products: map[string]domain.Product{}}
	for _, product := range products {
		catalog.products[product.ID] = product
	}
	return catalog
}

func (c *memoryCatalog) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	if c.err != nil {
		return domain.Product{}, c.err
	}
	product, ok := c.products[productID]
	if !ok {
		return domain.Product{}, errTestNotFound
	}
	return product, nil
}

func (c *memoryCatalog) GetProducts(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	result := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if product, ok := c.products[id]; ok {
			result[id] = product
		}
	}
	return result, nil
}

type memoryCustomers struct {
	customers map[string]domain.Customer
	err       error
}

func (c *memoryCustomers) FindByID(_ context.Context, customerID string) (domain.Customer, error) {
	if c.err != nil {
		return domain.Customer{}, c.err
	}
	customer, ok := c.customers[customerID]
	if !ok {
		return domain.Customer{}, errTestNotFound
	}
	return customer, nil
}

type memoryOverrides struct {
	mu      sync.Mutex
	rows    map[string]domain.PriceOverride
	findErr error
}

func newMemoryOverrides(rows ...domain.PriceOverride) *memoryOverrides {
	repo := &memoryOverrides{rows: map[string]domain.PriceOverride{}}
	for _, row := range rows {
		repo.rows[row.CustomerID+"_"+row.ProductID] = row
	}
	return repo
}

func (r *memoryOverrides) Find(_ context.Context, customerID, productID string) (domain.PriceOverride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return domain.PriceOverride{}, r.findErr
	}
	row, ok := r.rows[customerID+"_"+productID]
	if !ok {
		return domain.PriceOverride{}, errTestNotFound
	}
	return row, nil
}

func (r *memoryOverrides) ListByCustomer(_ context.Context, customerID string) ([]domain.PriceOverride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var rows []domain.PriceOverride
	for _, row := range r.rows {
		if row.CustomerID == customerID {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (r *memoryOverrides) Upsert(_ context.Context, override domain.PriceOverride) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[override.CustomerID+"_"+override.ProductID] = override
	return nil
}

func (r *memoryOverrides) CreateIfAbsent(_ context.Context, override domain.PriceOverride) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := override.CustomerID + "_" + override.ProductID
	if _, ok := r.rows[key]; ok {
		return false, nil
	}
	r.rows[key] = override
	return true, nil
}

func (r *memoryOverrides) ListCustomerIDs(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]struct{}{}
	var ids []string
	for _, row := range r.rows {
		if _, ok := seen[row.CustomerID]; !ok {
			seen[row.CustomerID] = struct{}{}
			ids = append(ids, row.CustomerID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type memoryBlobs struct {
	mu        sync.Mutex
	objects   map[string]repositories.BlobObject
	uploadErr error
	deleteErr error
	deleted   []string
}

func newMemoryBlobs(objects ...repositories.BlobObject) *memoryBlobs {
	blobs := &memoryBlobs{objects: map[string]repositories.BlobObject{}}
	for _, object := range objects {
		blobs.objects[object.Path] = object
	}
	return blobs
}

func (b *memoryBlobs) Upload(_ context.Context, path string, _ string, body io.Reader) (repositories.BlobObject, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return repositories.BlobObject{}, b.uploadErr
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, body)
	if err != nil {
		return repositories.BlobObject{}, err
	}
	object := repositories.BlobObject{Path: path, URL: "gs://bucket/" + path, Size: n}
	b.objects[path] = object
	return object, nil
}

func (b *memoryBlobs) Delete(_ context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	if _, ok := b.objects[path]; !ok {
		return errTestNotFound
	}
	delete(b.objects, path)
	b.deleted = append(b.deleted, path)
	return nil
}

func (b *memoryBlobs) List(_ context.Context, prefix string) ([]repositories.BlobObject, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var objects []repositories.BlobObject
	for path, object := range b.objects {
		if strings.HasPrefix(path, prefix) {
			objects = append(objects, object)
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Path < objects[j].Path })
	return objects, nil
}

func (b *memoryBlobs) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[path]; !ok {
		return "", errTestNotFound
	}
	return "https://signed.example.com/" + path + "?ttl=" + ttl.String(), nil
}

func (b *memoryBlobs) has(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[path]
	return ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}

type stubCheckoutProvider struct {
	requests []payments.CheckoutSessionRequest
	session  payments.CheckoutSession
	err      error
}

func (s *stubCheckoutProvider) CreateCheckoutSession(_ context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return payments.CheckoutSession{}, s.err
	}
	return s.session, nil
}

type recordedLog struct {
	event  string
	fields map[string]any
}

type logRecorder struct {
	mu      sync.Mutex
	entries []recordedLog
}

func (l *logRecorder) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, recordedLog{event: event, fields: fields})
}

func (l *logRecorder) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if entry.event == event {
			return true
		}
	}
	return false
}

var errBoom = errors.New("boom")
