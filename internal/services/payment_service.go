package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/payments"
	"github.com/pitta999/orderportal/internal/platform/storage"
	"github.com/pitta999/orderportal/internal/repositories"
)

const (
	defaultSignedURLTTL   = 10 * time.Minute
	defaultMaxUploadBytes = 10 << 20
	defaultContentType    = "application/octet-stream"
)

var (
	// ErrPaymentInvalidInput indicates malformed payment input.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentInvalidState indicates the order is not in a state that accepts the operation.
	ErrPaymentInvalidState = errors.New("payment: invalid state")
	// ErrPaymentFileNotFound indicates the remittance file id is not on the order.
	ErrPaymentFileNotFound = errors.New("payment: remittance file not found")
	// ErrPaymentFileTooLarge indicates the upload exceeded the configured limit.
	ErrPaymentFileTooLarge = errors.New("payment: remittance file too large")
	// ErrPaymentUnavailable indicates the provider or blob store failed.
	ErrPaymentUnavailable = errors.New("payment: unavailable")
)

// PaymentServiceDeps bundles collaborators required by the payment orchestrator.
type PaymentServiceDeps struct {
	Orders           repositories.OrderRepository
	Blobs            repositories.BlobStore
	Checkout         payments.CheckoutProvider
	Events           OrderEventPublisher
	Metrics          OrderMetrics
	Currency         string
	SuccessURL       string
	CancelURL        string
	SignedURLTTL     time.Duration
	MaxUploadBytes   int64
	Clock            func() time.Time
	FileIDGenerator  func() string
	EventIDGenerator func() string
	Logger           EventLogger
}

type paymentService struct {
	blobs      repositories.BlobStore
	checkout   payments.CheckoutProvider
	metrics    OrderMetrics
	currency   string
	successURL string
	cancelURL  string
	signedTTL  time.Duration
	maxUpload  int64
	clock      func() time.Time
	newFileID  func() string
	logger     EventLogger
	writer     orderWriter
	notifier   orderNotifier
}

// NewPaymentService constructs the payment orchestrator.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Blobs == nil {
		return nil, errors.New("payment service: blob store is required")
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
	newFileID := deps.FileIDGenerator
	if newFileID == nil {
		newFileID = func() string { return ulid.Make().String() }
	}
	ttl := deps.SignedURLTTL
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "usd"
	}

	return &paymentService{
		blobs:      deps.Blobs,
		checkout:   deps.Checkout,
		metrics:    deps.Metrics,
		currency:   currency,
		successURL: deps.SuccessURL,
		cancelURL:  deps.CancelURL,
		signedTTL:  ttl,
		maxUpload:  maxUpload,
		clock:      utc,
		newFileID:  newFileID,
		logger:     logger,
		writer:     newOrderWriter(deps.Orders, utc),
		notifier:   newOrderNotifier(deps.Events, deps.EventIDGenerator, utc, logger),
	}, nil
}

// requirePayable enforces that payment operations only run on pending, unpaid orders.
func requirePayable(order Order) error {
	if order.Status != domain.OrderStatusPending {
		return fmt.Errorf("%w: order is %s", ErrPaymentInvalidState, order.Status)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return fmt.Errorf("%w: order is already paid", ErrPaymentInvalidState)
	}
	return nil
}

// CreateCheckoutSession records a hosted checkout attempt. Capture is confirmed outside
// this service.
func (s *paymentService) CreateCheckoutSession(ctx context.Context, actor Principal, orderID string) (CheckoutSessionResult, error) {
	if s.checkout == nil {
		return CheckoutSessionResult{}, fmt.Errorf("%w: checkout provider not configured", ErrPaymentUnavailable)
	}
	order, err := s.writer.load(ctx, actor, orderID)
	if err != nil {
		return CheckoutSessionResult{}, err
	}
	if err := checkCardAllowed(order); err != nil {
		return CheckoutSessionResult{}, err
	}

	amount, err := payments.ToMinorUnits(order.TotalAmount)
	if err != nil || amount <= 0 {
		return CheckoutSessionResult{}, fmt.Errorf("%w: order total must be positive", ErrPaymentInvalidInput)
	}
	req := payments.CheckoutSessionRequest{
		OrderID:  order.OrderID,
		Currency: s.currency,
		Amount:   amount,
		Items:    checkoutLineItems(order),
		// Retries of the same order and amount collapse onto one session; an admin correction
		// changes the amount and therefore yields a fresh session.
		IdempotencyKey: order.OrderID + "-" + strconv.FormatInt(amount, 10),
		SuccessURL:     expandCheckoutURL(s.successURL, order.OrderID),
		CancelURL:      expandCheckoutURL(s.cancelURL, order.OrderID),
		Metadata:       map[string]string{"customerId": order.CustomerID},
	}
	if actor.ID == order.CustomerID {
		req.CustomerEmail = actor.Email
	}

	session, err := s.checkout.CreateCheckoutSession(ctx, req)
	if err != nil {
		return CheckoutSessionResult{}, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}

	updated, err := s.writer.apply(ctx, actor, accessOwnerOrAdmin, order.OrderID, nil, func(o *Order) error {
		if err := checkCardAllowed(*o); err != nil {
			return err
		}
		o.PaymentMethod = domain.PaymentMethodCard
		o.PaymentID = session.ID
		return nil
	})
	if err != nil {
		s.logger(ctx, "payment.checkout_record_failed", map[string]any{
			"orderId":   order.OrderID,
			"sessionId": session.ID,
			"error":     err.Error(),
		})
		return CheckoutSessionResult{}, err
	}

	s.recordMethod(domain.PaymentMethodCard)
	s.notifier.publish(ctx, orderEventPaymentMethodSelected, updated, actor, map[string]string{
		"paymentMethod": string(domain.PaymentMethodCard),
		"sessionId":     session.ID,
	})
	return CheckoutSessionResult{
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt,
		Order:       updated,
	}, nil
}

func (s *paymentService) recordMethod(method domain.PaymentMethod) {
	if s.metrics != nil {
		s.metrics.IncTransition("payment_method", string(method))
	}
}

func checkCardAllowed(order Order) error {
	if err := requirePayable(order); err != nil {
		return err
	}
	if order.PaymentMethod == domain.PaymentMethodTT && len(order.RemittanceFiles()) > 0 {
		return fmt.Errorf("%w: bank transfer evidence already uploaded", ErrPaymentInvalidState)
	}
	return nil
}

func checkoutLineItems(order Order) []payments.CheckoutLineItem {
	items := make([]payments.CheckoutLineItem, 0, len(order.Items)+1)
	for _, item := range order.Items {
		unit, err := payments.ToMinorUnits(item.EffectiveUnitPrice())
		if err != nil {
			return nil
		}
		items = append(items, payments.CheckoutLineItem{
			Name:       item.Name,
			SKU:        item.ProductID,
			Quantity:   int64(item.Quantity),
			UnitAmount: unit,
		})
	}
	if order.ShippingCost.IsPositive() {
		shipping, err := payments.ToMinorUnits(order.ShippingCost)
		if err != nil {
			return nil
		}
		items = append(items, payments.CheckoutLineItem{Name: "Shipping", Quantity: 1, UnitAmount: shipping})
	}
	return items
}

func expandCheckoutURL(template, orderID string) string {
	return strings.ReplaceAll(template, "{orderId}", orderID)
}

// RequestTT switches the order to bank transfer. Calling it again keeps the evidence trail.
func (s *paymentService) RequestTT(ctx context.Context, actor Principal, orderID string) (Order, error) {
	changed := false
	order, err := s.writer.apply(ctx, actor, accessOwnerOrAdmin, orderID, nil, func(o *Order) error {
		if err := requirePayable(*o); err != nil {
			return err
		}
		if o.PaymentMethod == domain.PaymentMethodTT && o.TTPayment != nil {
			return errNoChange
		}
		o.PaymentMethod = domain.PaymentMethodTT
		o.PaymentStatus = domain.PaymentStatusPending
		o.PaymentID = ""
		if o.TTPayment == nil {
			o.TTPayment = &domain.TTPayment{RemittanceFiles: []domain.RemittanceFile{}}
		}
		changed = true
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if changed {
		s.recordMethod(domain.PaymentMethodTT)
		s.notifier.publish(ctx, orderEventPaymentMethodSelected, order, actor, map[string]string{
			"paymentMethod": string(domain.PaymentMethodTT),
		})
	}
	return order, nil
}

func requireTT(order Order) error {
	if err := requirePayable(order); err != nil {
		return err
	}
	if order.PaymentMethod != domain.PaymentMethodTT || order.TTPayment == nil {
		return fmt.Errorf("%w: bank transfer has not been requested", ErrPaymentInvalidState)
	}
	return nil
}

// UploadRemittance stores the blob first and then appends the entry to the order. When the
// order write fails the blob is deleted again; anything left behind is picked up by the
// reconciler.
func (s *paymentService) UploadRemittance(ctx context.Context, actor Principal, cmd UploadRemittanceCommand) (RemittanceFile, error) {
	name := sanitizeFileName(cmd.FileName)
	if name == "" {
		return RemittanceFile{}, fmt.Errorf("%w: file name is required", ErrPaymentInvalidInput)
	}
	if cmd.Data == nil {
		return RemittanceFile{}, fmt.Errorf("%w: file content is required", ErrPaymentInvalidInput)
	}
	if cmd.Size > s.maxUpload {
		return RemittanceFile{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrPaymentFileTooLarge, cmd.Size, s.maxUpload)
	}
	contentType := sanitizeText(cmd.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}

	order, err := s.writer.load(ctx, actor, cmd.OrderID)
	if err != nil {
		return RemittanceFile{}, err
	}
	if err := requireTT(order); err != nil {
		return RemittanceFile{}, err
	}

	fileID := s.newFileID()
	objectPath, err := storage.RemittanceObjectPath(order.OrderID, fileID, name)
	if err != nil {
		return RemittanceFile{}, fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	}

	blob, err := s.blobs.Upload(ctx, objectPath, contentType, io.LimitReader(cmd.Data, s.maxUpload+1))
	if err != nil {
		return RemittanceFile{}, fmt.Errorf("%w: upload remittance: %w", ErrPaymentUnavailable, err)
	}
	if blob.Size > s.maxUpload {
		s.compensateUpload(ctx, order.OrderID, objectPath)
		return RemittanceFile{}, fmt.Errorf("%w: upload exceeds %d bytes", ErrPaymentFileTooLarge, s.maxUpload)
	}

	file := RemittanceFile{
		ID:          fileID,
		Name:        name,
		URL:         blob.URL,
		ObjectPath:  objectPath,
		ContentType: contentType,
		Size:        blob.Size,
		UploadedAt:  s.clock(),
		UploadedBy:  actor.ID,
	}
	updated, err := s.writer.apply(ctx, actor, accessOwnerOrAdmin, order.OrderID, nil, func(o *Order) error {
		if err := requireTT(*o); err != nil {
			return err
		}
		o.TTPayment.RemittanceFiles = append(o.TTPayment.RemittanceFiles, file)
		return nil
	})
	if err != nil {
		s.compensateUpload(ctx, order.OrderID, objectPath)
		return RemittanceFile{}, err
	}

	s.notifier.publish(ctx, orderEventRemittanceUploaded, updated, actor, map[string]string{
		"fileId":   file.ID,
		"fileName": file.Name,
	})
	return file, nil
}

func (s *paymentService) compensateUpload(ctx context.Context, orderID, objectPath string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), objectPath); err != nil && !isRepositoryNotFound(err) {
		s.logger(ctx, "payment.remittance_compensation_failed", map[string]any{
			"orderId": orderID,
			"path":    objectPath,
			"error":   err.Error(),
		})
	}
}

// DeleteRemittance removes the blob before the list entry so the order never points at a
// deleted object for longer than the window between the two writes.
func (s *paymentService) DeleteRemittance(ctx context.Context, actor Principal, orderID, fileID string) (Order, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return Order{}, fmt.Errorf("%w: file id is required", ErrPaymentInvalidInput)
	}
	order, err := s.writer.load(ctx, actor, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := requireTT(order); err != nil {
		return Order{}, err
	}
	file, ok := findRemittanceFile(order, fileID)
	if !ok {
		return Order{}, ErrPaymentFileNotFound
	}

	if err := s.blobs.Delete(ctx, file.ObjectPath); err != nil && !isRepositoryNotFound(err) {
		return Order{}, fmt.Errorf("%w: delete remittance: %v", ErrPaymentUnavailable, err)
	}

	updated, err := s.writer.apply(ctx, actor, accessOwnerOrAdmin, order.OrderID, nil, func(o *Order) error {
		if err := requireTT(*o); err != nil {
			return err
		}
		files := o.TTPayment.RemittanceFiles
		for i := range files {
			if files[i].ID == fileID {
				o.TTPayment.RemittanceFiles = append(files[:i:i], files[i+1:]...)
				return nil
			}
		}
		return errNoChange
	})
	if err != nil {
		s.logger(ctx, "payment.remittance_dangling", map[string]any{
			"orderId": order.OrderID,
			"fileId":  fileID,
			"error":   err.Error(),
		})
		return Order{}, err
	}

	s.notifier.publish(ctx, orderEventRemittanceDeleted, updated, actor, map[string]string{"fileId": fileID})
	return updated, nil
}

// RemittanceDownloadURL returns a short-lived signed URL for one evidence file.
func (s *paymentService) RemittanceDownloadURL(ctx context.Context, actor Principal, orderID, fileID string) (string, error) {
	order, err := s.writer.load(ctx, actor, orderID)
	if err != nil {
		return "", err
	}
	file, ok := findRemittanceFile(order, strings.TrimSpace(fileID))
	if !ok {
		return "", ErrPaymentFileNotFound
	}
	url, err := s.blobs.SignedURL(ctx, file.ObjectPath, s.signedTTL)
	if err != nil {
		if isRepositoryNotFound(err) {
			return "", ErrPaymentFileNotFound
		}
		return "", fmt.Errorf("%w: sign remittance url: %v", ErrPaymentUnavailable, err)
	}
	return url, nil
}

func findRemittanceFile(order Order, fileID string) (RemittanceFile, bool) {
	for _, file := range order.RemittanceFiles() {
		if file.ID == fileID {
			return file, true
		}
	}
	return RemittanceFile{}, false
}
