package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/platform/idempotency"
	"github.com/pitta999/orderportal/internal/platform/pagination"
	"github.com/pitta999/orderportal/internal/services"
)

func TestOrderHandlersPlaceOrder(t *testing.T) {
	svc := &stubOrderService{
		placeFn: func(_ context.Context, _ services.Principal, cmd services.PlaceOrderCommand) (services.Order, error) {
			require.Equal(t, "cust-1", cmd.CustomerID)
			require.Equal(t, domain.ShippingTermsCFR, cmd.ShippingTerms)
			require.False(t, cmd.Shipping.UseCompanyAddress)
			require.Equal(t, "Busan", cmd.Shipping.Address.City)
			order := sampleOrder()
			order.ShippingTerms = domain.ShippingTermsCFR
			estimate := dec("2.4")
			order.ShippingEstimate = &estimate
			return order, nil
		},
	}
	handler := NewOrderHandlers(nil, svc)

	body := `{"shipping_terms":"CFR","shipping_address":{"line1":"1 Harbor Rd","city":"Busan","country":"KR"}}`
	rr := serve(t, "/orders", handler.Routes, &customerPrincipal, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "/api/v1/orders/ORD-20240301-101500-AB", rr.Header().Get("Location"))
	require.Equal(t, `W/"1"`, rr.Header().Get("ETag"))
	order := decodeBody(t, rr)["order"].(map[string]any)
	require.Equal(t, "240.00", order["total_amount"])
	require.Equal(t, "0.00", order["shipping_cost"])
	require.Equal(t, "2.40", order["shipping_estimate"])
	require.Equal(t, "CFR", order["shipping_terms"])
}

func TestOrderHandlersPlaceOrderReplaysIdempotentRetry(t *testing.T) {
	var calls int
	svc := &stubOrderService{
		placeFn: func(context.Context, services.Principal, services.PlaceOrderCommand) (services.Order, error) {
			calls++
			return sampleOrder(), nil
		},
	}
	handler := NewOrderHandlers(nil, svc, WithIdempotency(idempotency.Middleware(idempotency.NewMemoryStore())))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"shipping_terms":"FOB","use_company_address":true}`))
		req.Header.Set(idempotency.HeaderName, "retry-1")
		return serve(t, "/orders", handler.Routes, &customerPrincipal, req)
	}
	first := send()
	second := send()

	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get(idempotency.ReplayHeaderName))
	require.Equal(t, first.Header().Get("Location"), second.Header().Get("Location"))
	require.Equal(t, 1, calls)
}

func TestOrderHandlersPlaceOrderRejectsUnknownTerms(t *testing.T) {
	handler := NewOrderHandlers(nil, &stubOrderService{})
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"shipping_terms":"DDP","use_company_address":true}`))
	rr := serve(t, "/orders", handler.Routes, &customerPrincipal, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOrderHandlersPlaceOrderReportsMissingAddressFields(t *testing.T) {
	svc := &stubOrderService{
		placeFn: func(_ context.Context, _ services.Principal, cmd services.PlaceOrderCommand) (services.Order, error) {
			require.True(t, cmd.Shipping.Address.IsBlank())
			return services.Order{}, &services.MissingShippingAddressError{MissingFields: []string{"line1", "city", "country"}}
		},
	}
	handler := NewOrderHandlers(nil, svc)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"shipping_terms":"FOB"}`))
	rr := serve(t, "/orders", handler.Routes, &customerPrincipal, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody(t, rr)
	require.Equal(t, "shipping_address_missing", body["error"])
	require.Equal(t, []any{"line1", "city", "country"}, body["missing_fields"])
}

func TestOrderHandlersPlaceOrderEmptyCart(t *testing.T) {
	svc := &stubOrderService{
		placeFn: func(context.Context, services.Principal, services.PlaceOrderCommand) (services.Order, error) {
			return services.Order{}, &services.EmptyCartError{CustomerID: "cust-1"}
		},
	}
	handler := NewOrderHandlers(nil, svc)
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"shipping_terms":"FOB","use_company_address":true}`))
	rr := serve(t, "/orders", handler.Routes, &customerPrincipal, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "cart_empty", decodeBody(t, rr)["error"])
}

func TestOrderHandlersListOrdersParsesFilters(t *testing.T) {
	token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), ID: "ORD-1"})
	require.NoError(t, err)

	svc := &stubOrderService{
		listFn: func(_ context.Context, _ services.Principal, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			require.Equal(t, "cust-1", filter.CustomerID)
			require.Equal(t, []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusProcessing}, filter.Status)
			require.Equal(t, domain.PaymentMethodTT, filter.PaymentMethod)
			require.Equal(t, 5, filter.Pagination.PageSize)
			require.Equal(t, token, filter.Pagination.PageToken)
			return domain.CursorPage[services.Order]{Items: []services.Order{sampleOrder()}, NextPageToken: "next"}, nil
		},
	}
	handler := NewOrderHandlers(nil, svc)

	url := "/orders?pageSize=5&pageToken=" + token + "&filter=status==pending&filter=status==processing&filter=paymentMethod==tt&customer_id=cust-9"
	rr := serve(t, "/orders", handler.Routes, &customerPrincipal, httptest.NewRequest(http.MethodGet, url, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	require.Equal(t, "next", body["next_page_token"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	require.EqualValues(t, 2, items[0].(map[string]any)["items_count"])
}

func TestOrderHandlersListOrdersRejectsBadInput(t *testing.T) {
	handler := NewOrderHandlers(nil, &stubOrderService{})
	for _, query := range []string{
		"pageToken=not-a-token",
		"filter=status==lost",
		"filter=customerId==cust-2",
		"filter=paymentMethod==cash",
	} {
		rr := serve(t, "/orders", handler.Routes, &customerPrincipal, httptest.NewRequest(http.MethodGet, "/orders?"+query, nil))
		require.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}

func TestOrderHandlersCancelUsesIfMatch(t *testing.T) {
	svc := &stubOrderService{
		cancelFn: func(_ context.Context, _ services.Principal, cmd services.CancelOrderCommand) (services.Order, error) {
			require.Equal(t, "ORD-1", cmd.OrderID)
			require.NotNil(t, cmd.ExpectedVersion)
			require.EqualValues(t, 3, *cmd.ExpectedVersion)
			return services.Order{}, fmt.Errorf("%w: version moved", services.ErrOrderConflict)
		},
	}
	handler := NewOrderHandlers(nil, svc)

	req := httptest.NewRequest(http.MethodPost, "/orders/ORD-1:cancel", nil)
	req.Header.Set("If-Match", `W/"3"`)
	rr := serve(t, "/orders", handler.Routes, &customerPrincipal, req)

	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "order_conflict", decodeBody(t, rr)["error"])

	bad := httptest.NewRequest(http.MethodPost, "/orders/ORD-1:cancel", nil)
	bad.Header.Set("If-Match", `"abc"`)
	rr = serve(t, "/orders", handler.Routes, &customerPrincipal, bad)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOrderHandlersGetOrderNotFound(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(context.Context, services.Principal, string) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}
	handler := NewOrderHandlers(nil, svc)
	rr := serve(t, "/orders", handler.Routes, &customerPrincipal, httptest.NewRequest(http.MethodGet, "/orders/ORD-404", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOrderHandlersInvoice(t *testing.T) {
	invoices := &stubInvoiceService{doc: services.InvoiceDocument{
		InvoiceNumber: "INV-20240301-101500-AB",
		OrderID:       "ORD-20240301-101500-AB",
		IssuedAt:      testNow,
		Groups: []domain.InvoiceCategoryGroup{{
			CategoryName: "Frames",
			Lines:        []domain.InvoiceLine{{ProductID: "A", Name: "Frame A", Quantity: 2, UnitPrice: dec("100"), Amount: dec("200"), WeightKg: dec("0.25")}},
			Subtotal:     dec("200"),
		}},
		ItemsSubtotal: dec("200"),
		ShippingCost:  dec("15"),
		GrandTotal:    dec("215"),
	}}
	handler := NewOrderHandlers(nil, &stubOrderService{}, WithInvoiceService(invoices))

	rr := serve(t, "/orders", handler.Routes, &customerPrincipal, httptest.NewRequest(http.MethodGet, "/orders/ORD-20240301-101500-AB/invoice", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	invoice := decodeBody(t, rr)["invoice"].(map[string]any)
	require.Equal(t, "215.00", invoice["grand_total"])
	group := invoice["groups"].([]any)[0].(map[string]any)
	line := group["lines"].([]any)[0].(map[string]any)
	require.Equal(t, "0.250", line["weight_kg"])
	require.Equal(t, "200.00", line["amount"])
}

func TestOrderHandlersInvoiceRouteAbsentWithoutService(t *testing.T) {
	handler := NewOrderHandlers(nil, &stubOrderService{
		getFn: func(context.Context, services.Principal, string) (services.Order, error) {
			t.Fatal("invoice path must not reach GetOrder")
			return services.Order{}, nil
		},
	})
	rr := serve(t, "/orders", handler.Routes, &customerPrincipal, httptest.NewRequest(http.MethodGet, "/orders/ORD-1/invoice", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func multipartUpload(t *testing.T, field, name, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("note", "march payment"))
	part, err := writer.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/orders/ORD-1/payments/tt/remittances", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestPaymentHandlersUploadStreamsFilePart(t *testing.T) {
	payments := &stubPaymentService{
		uploadFn: func(_ context.Context, _ services.Principal, cmd services.UploadRemittanceCommand) (services.RemittanceFile, error) {
			require.Equal(t, "ORD-1", cmd.OrderID)
			require.Equal(t, "bank slip.pdf", cmd.FileName)
			data, err := io.ReadAll(cmd.Data)
			require.NoError(t, err)
			require.Equal(t, "%PDF-1.4 slip", string(data))
			return services.RemittanceFile{ID: "file-1", Name: "bank_slip.pdf", Size: int64(len(data)), UploadedAt: testNow, ObjectPath: "orders/ORD-1/remittance/file-1/bank_slip.pdf"}, nil
		},
	}
	handler := NewOrderHandlers(nil, &stubOrderService{}, WithPaymentService(payments))

	rr := serve(t, "/orders", handler.Routes, &customerPrincipal, multipartUpload(t, "file", "bank slip.pdf", "%PDF-1.4 slip"))

	require.Equal(t, http.StatusCreated, rr.Code)
	file := decodeBody(t, rr)["file"].(map[string]any)
	require.Equal(t, "file-1", file["id"])
	require.NotContains(t, rr.Body.String(), "orders/ORD-1/remittance")
}

func TestPaymentHandlersUploadRequiresFilePart(t *testing.T) {
	handler := NewOrderHandlers(nil, &stubOrderService{}, WithPaymentService(&stubPaymentService{}))

	rr := serve(t, "/orders", handler.Routes, &customerPrincipal, multipartUpload(t, "attachment", "slip.pdf", "x"))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	plain := httptest.NewRequest(http.MethodPost, "/orders/ORD-1/payments/tt/remittances", strings.NewReader("x"))
	rr = serve(t, "/orders", handler.Routes, &customerPrincipal, plain)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPaymentHandlersUploadIsRateLimited(t *testing.T) {
	calls := 0
	payments := &stubPaymentService{
		uploadFn: func(_ context.Context, _ services.Principal, cmd services.UploadRemittanceCommand) (services.RemittanceFile, error) {
			calls++
			_, _ = io.Copy(io.Discard, cmd.Data)
			return services.RemittanceFile{ID: fmt.Sprintf("file-%d", calls)}, nil
		},
	}
	handler := NewOrderHandlers(nil, &stubOrderService{},
		WithPaymentService(payments),
		WithRemittanceUploadLimits(1<<20, 1, time.Minute),
	)

	first := serve(t, "/orders", handler.Routes, &customerPrincipal, multipartUpload(t, "file", "a.pdf", "a"))
	require.Equal(t, http.StatusCreated, first.Code)

	second := serve(t, "/orders", handler.Routes, &customerPrincipal, multipartUpload(t, "file", "b.pdf", "b"))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.NotEmpty(t, second.Header().Get("Retry-After"))
	require.Equal(t, 1, calls)
}

func TestPaymentHandlersUploadMapsServiceErrors(t *testing.T) {
	payments := &stubPaymentService{
		uploadFn: func(_ context.Context, _ services.Principal, cmd services.UploadRemittanceCommand) (services.RemittanceFile, error) {
			return services.RemittanceFile{}, fmt.Errorf("%w: bank transfer has not been requested", services.ErrPaymentInvalidState)
		},
	}
	handler := NewOrderHandlers(nil, &stubOrderService{}, WithPaymentService(payments))
	rr := serve(t, "/orders", handler.Routes, &customerPrincipal, multipartUpload(t, "file", "a.pdf", "a"))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "invalid_state", decodeBody(t, rr)["error"])
}

func TestPaymentHandlersUploadOverBodyLimitIs413(t *testing.T) {
	payments := &stubPaymentService{
		uploadFn: func(_ context.Context, _ services.Principal, cmd services.UploadRemittanceCommand) (services.RemittanceFile, error) {
			_, err := io.Copy(io.Discard, cmd.Data)
			require.Error(t, err)
			return services.RemittanceFile{}, fmt.Errorf("%w: upload remittance: %w", services.ErrPaymentUnavailable, err)
		},
	}
	handler := NewOrderHandlers(nil, &stubOrderService{},
		WithPaymentService(payments),
		WithRemittanceUploadLimits(1024, 0, 0),
	)

	body := strings.Repeat("x", 1024+multipartOverhead+1)
	rr := serve(t, "/orders", handler.Routes, &customerPrincipal, multipartUpload(t, "file", "big.pdf", body))

	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Equal(t, "payload_too_large", decodeBody(t, rr)["error"])
}

func TestPaymentHandlersCheckoutAndDownload(t *testing.T) {
	payments := &stubPaymentService{
		checkoutFn: func(_ context.Context, _ services.Principal, orderID string) (services.CheckoutSessionResult, error) {
			order := sampleOrder()
			order.PaymentMethod = domain.PaymentMethodCard
			order.PaymentID = "cs_test_1"
			return services.CheckoutSessionResult{SessionID: "cs_test_1", RedirectURL: "https://checkout.example/cs_test_1", Order: order}, nil
		},
		downloadFn: func(_ context.Context, _ services.Principal, orderID, fileID string) (string, error) {
			require.Equal(t, "ORD-1", orderID)
			require.Equal(t, "file-1", fileID)
			return "https://storage.example/signed?ttl=10m0s", nil
		},
		deleteFn: func(context.Context, services.Principal, string, string) (services.Order, error) {
			return services.Order{}, services.ErrPaymentFileNotFound
		},
	}
	handler := NewOrderHandlers(nil, &stubOrderService{}, WithPaymentService(payments))

	rr := serve(t, "/orders", handler.Routes, &customerPrincipal, httptest.NewRequest(http.MethodPost, "/orders/ORD-1/payments/checkout", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	require.Equal(t, "https://checkout.example/cs_test_1", body["redirect_url"])
	require.Equal(t, "card", body["order"].(map[string]any)["payment_method"])

	rr = serve(t, "/orders", handler.Routes, &customerPrincipal, httptest.NewRequest(http.MethodGet, "/orders/ORD-1/payments/tt/remittances/file-1:download", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "https://storage.example/signed?ttl=10m0s", decodeBody(t, rr)["url"])

	rr = serve(t, "/orders", handler.Routes, &customerPrincipal, httptest.NewRequest(http.MethodGet, "/orders/ORD-1/payments/tt/remittances/file-1:download?redirect=true", nil))
	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, "https://storage.example/signed?ttl=10m0s", rr.Header().Get("Location"))

	rr = serve(t, "/orders", handler.Routes, &customerPrincipal, httptest.NewRequest(http.MethodDelete, "/orders/ORD-1/payments/tt/remittances/file-9", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "remittance_not_found", decodeBody(t, rr)["error"])
}
