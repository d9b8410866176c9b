package handlers

import (
	"strings"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/services"
)

type addressPayload struct {
	Recipient  string `json:"recipient,omitempty"`
	Company    string `json:"company,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func buildAddressPayload(addr domain.Address) addressPayload {
	return addressPayload{
		Recipient:  addr.Recipient,
		Company:    addr.Company,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

// addressRequest is validated loosely; the order factory reports missing fields itself.
type addressRequest struct {
	Recipient  string `json:"recipient" validate:"max=200"`
	Company    string `json:"company" validate:"max=200"`
	Line1      string `json:"line1" validate:"max=300"`
	Line2      string `json:"line2" validate:"max=300"`
	City       string `json:"city" validate:"max=120"`
	State      string `json:"state" validate:"max=120"`
	PostalCode string `json:"postal_code" validate:"max=32"`
	Country    string `json:"country" validate:"max=64"`
	Phone      string `json:"phone" validate:"max=64"`
}

func (a addressRequest) toDomain() domain.Address {
	return domain.Address{
		Recipient:  a.Recipient,
		Company:    a.Company,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	CustomerID  string            `json:"customer_id"`
	Items       []cartItemPayload `json:"items"`
	TotalItems  int               `json:"total_items"`
	TotalAmount string            `json:"total_amount"`
	Attention   bool              `json:"attention"`
	UpdatedAt   string            `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ProductID         string  `json:"product_id"`
	Name              string  `json:"name"`
	UnitPrice         string  `json:"unit_price"`
	DiscountUnitPrice *string `json:"discount_unit_price,omitempty"`
	Quantity          int     `json:"quantity"`
	LineTotal         string  `json:"line_total"`
	ImageRef          string  `json:"image_ref,omitempty"`
	CategoryName      string  `json:"category_name,omitempty"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	totals := cart.Totals()
	items := make([]cartItemPayload, 0, len(cart.Items))
	for _, line := range cart.Items {
		items = append(items, cartItemPayload{
			ProductID:         line.ProductID,
			Name:              line.Name,
			UnitPrice:         formatMoney(line.UnitPrice),
			DiscountUnitPrice: formatOptionalMoney(line.DiscountUnitPrice),
			Quantity:          line.Quantity,
			LineTotal:         formatMoney(line.LineTotal()),
			ImageRef:          line.ImageRef,
			CategoryName:      line.CategoryName,
		})
	}
	return cartPayload{
		CustomerID:  cart.CustomerID,
		Items:       items,
		TotalItems:  totals.TotalItems,
		TotalAmount: formatMoney(totals.TotalAmount),
		Attention:   cart.Attention,
		UpdatedAt:   formatTime(cart.UpdatedAt),
	}
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	PaymentMethod string `json:"payment_method,omitempty"`
	TotalAmount   string `json:"total_amount"`
	ItemsCount    int    `json:"items_count"`
	CreatedAt     string `json:"created_at,omitempty"`
}

type orderPayload struct {
	ID               string                  `json:"id"`
	CustomerID       string                  `json:"customer_id"`
	CustomerName     string                  `json:"customer_name,omitempty"`
	Items            []orderItemPayload      `json:"items"`
	ShipTo           addressPayload          `json:"ship_to"`
	ShippingTerms    string                  `json:"shipping_terms"`
	Subtotal         string                  `json:"subtotal"`
	ShippingCost     string                  `json:"shipping_cost"`
	ShippingEstimate *string                 `json:"shipping_estimate,omitempty"`
	TotalAmount      string                  `json:"total_amount"`
	Status           string                  `json:"status"`
	PaymentStatus    string                  `json:"payment_status"`
	PaymentMethod    string                  `json:"payment_method,omitempty"`
	PaymentID        string                  `json:"payment_id,omitempty"`
	RemittanceFiles  []remittanceFilePayload `json:"remittance_files,omitempty"`
	Version          int64                   `json:"version"`
	CreatedAt        string                  `json:"created_at,omitempty"`
	UpdatedAt        string                  `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ProductID     string  `json:"product_id"`
	Name          string  `json:"name"`
	Price         string  `json:"price"`
	DiscountPrice *string `json:"discount_price,omitempty"`
	Quantity      int     `json:"quantity"`
	LineTotal     string  `json:"line_total"`
	CategoryName  string  `json:"category_name,omitempty"`
	ImageRef      string  `json:"image_ref,omitempty"`
}

// remittanceFilePayload omits the object path; clients download through signed URLs.
type remittanceFilePayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	UploadedAt  string `json:"uploaded_at,omitempty"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		CustomerID:    order.CustomerID,
		CustomerName:  order.CustomerName,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
		TotalAmount:   formatMoney(order.TotalAmount),
		ItemsCount:    len(order.Items),
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID:     item.ProductID,
			Name:          item.Name,
			Price:         formatMoney(item.Price),
			DiscountPrice: formatOptionalMoney(item.DiscountPrice),
			Quantity:      item.Quantity,
			LineTotal:     formatMoney(item.LineTotal()),
			CategoryName:  item.CategoryName,
			ImageRef:      item.ImageRef,
		})
	}
	payload := orderPayload{
		ID:               order.ID,
		CustomerID:       order.CustomerID,
		CustomerName:     order.CustomerName,
		Items:            items,
		ShipTo:           buildAddressPayload(order.ShipTo),
		ShippingTerms:    string(order.ShippingTerms),
		Subtotal:         formatMoney(order.Subtotal),
		ShippingCost:     formatMoney(order.ShippingCost),
		ShippingEstimate: formatOptionalMoney(order.ShippingEstimate),
		TotalAmount:      formatMoney(order.TotalAmount),
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		PaymentMethod:    string(order.PaymentMethod),
		PaymentID:        order.PaymentID,
		Version:          order.Version,
		CreatedAt:        formatTime(order.CreatedAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
	}
	for _, file := range order.RemittanceFiles() {
		payload.RemittanceFiles = append(payload.RemittanceFiles, buildRemittancePayload(file))
	}
	return payload
}

func buildRemittancePayload(file services.RemittanceFile) remittanceFilePayload {
	return remittanceFilePayload{
		ID:          file.ID,
		Name:        file.Name,
		ContentType: file.ContentType,
		Size:        file.Size,
		UploadedAt:  formatTime(file.UploadedAt),
	}
}

type invoiceResponse struct {
	Invoice invoicePayload `json:"invoice"`
}

type invoicePayload struct {
	InvoiceNumber string                 `json:"invoice_number"`
	OrderID       string                 `json:"order_id"`
	IssuedAt      string                 `json:"issued_at"`
	Supplier      invoiceSupplierPayload `json:"supplier"`
	Buyer         invoiceBuyerPayload    `json:"buyer"`
	ShipTo        addressPayload         `json:"ship_to"`
	ShippingTerms string                 `json:"shipping_terms"`
	Groups        []invoiceGroupPayload  `json:"groups"`
	ItemsSubtotal string                 `json:"items_subtotal"`
	ShippingCost  string                 `json:"shipping_cost"`
	GrandTotal    string                 `json:"grand_total"`
	PaymentMethod string                 `json:"payment_method,omitempty"`
}

type invoiceSupplierPayload struct {
	CompanyName        string         `json:"company_name"`
	Address            addressPayload `json:"address"`
	Email              string         `json:"email,omitempty"`
	Phone              string         `json:"phone,omitempty"`
	VATNumber          string         `json:"vat_number,omitempty"`
	RegistrationNumber string         `json:"registration_number,omitempty"`
	BankName           string         `json:"bank_name,omitempty"`
	BankAccount        string         `json:"bank_account,omitempty"`
	SwiftCode          string         `json:"swift_code,omitempty"`
}

type invoiceBuyerPayload struct {
	CustomerID         string         `json:"customer_id"`
	CompanyName        string         `json:"company_name"`
	ContactName        string         `json:"contact_name,omitempty"`
	Email              string         `json:"email,omitempty"`
	Phone              string         `json:"phone,omitempty"`
	BillingAddress     addressPayload `json:"billing_address"`
	VATNumber          string         `json:"vat_number,omitempty"`
	RegistrationNumber string         `json:"registration_number,omitempty"`
}

type invoiceGroupPayload struct {
	CategoryName string               `json:"category_name"`
	Lines        []invoiceLinePayload `json:"lines"`
	Subtotal     string               `json:"subtotal"`
}

type invoiceLinePayload struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	HSCode      string `json:"hs_code,omitempty"`
	Origin      string `json:"origin,omitempty"`
	WeightKg    string `json:"weight_kg,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Amount      string `json:"amount"`
}

func buildInvoicePayload(doc services.InvoiceDocument) invoicePayload {
	groups := make([]invoiceGroupPayload, 0, len(doc.Groups))
	for _, group := range doc.Groups {
		lines := make([]invoiceLinePayload, 0, len(group.Lines))
		for _, line := range group.Lines {
			entry := invoiceLinePayload{
				ProductID:   line.ProductID,
				Name:        line.Name,
				Description: line.Description,
				HSCode:      line.HSCode,
				Origin:      line.Origin,
				Quantity:    line.Quantity,
				UnitPrice:   formatMoney(line.UnitPrice),
				Amount:      formatMoney(line.Amount),
			}
			if !line.WeightKg.IsZero() {
				entry.WeightKg = line.WeightKg.StringFixed(3)
			}
			lines = append(lines, entry)
		}
		groups = append(groups, invoiceGroupPayload{
			CategoryName: group.CategoryName,
			Lines:        lines,
			Subtotal:     formatMoney(group.Subtotal),
		})
	}
	supplier := doc.Supplier
	buyer := doc.Buyer
	return invoicePayload{
		InvoiceNumber: doc.InvoiceNumber,
		OrderID:       doc.OrderID,
		IssuedAt:      formatTime(doc.IssuedAt),
		Supplier: invoiceSupplierPayload{
			CompanyName:        supplier.CompanyName,
			Address:            buildAddressPayload(supplier.Address),
			Email:              supplier.Email,
			Phone:              supplier.Phone,
			VATNumber:          supplier.VATNumber,
			RegistrationNumber: supplier.RegistrationNumber,
			BankName:           supplier.BankName,
			BankAccount:        supplier.BankAccount,
			SwiftCode:          supplier.SwiftCode,
		},
		Buyer: invoiceBuyerPayload{
			CustomerID:         buyer.CustomerID,
			CompanyName:        buyer.CompanyName,
			ContactName:        buyer.ContactName,
			Email:              buyer.Email,
			Phone:              buyer.Phone,
			BillingAddress:     buildAddressPayload(buyer.BillingAddress),
			VATNumber:          buyer.VATNumber,
			RegistrationNumber: buyer.RegistrationNumber,
		},
		ShipTo:        buildAddressPayload(doc.ShipTo),
		ShippingTerms: string(doc.ShippingTerms),
		Groups:        groups,
		ItemsSubtotal: formatMoney(doc.ItemsSubtotal),
		ShippingCost:  formatMoney(doc.ShippingCost),
		GrandTotal:    formatMoney(doc.GrandTotal),
		PaymentMethod: string(doc.PaymentMethod),
	}
}

type priceQuotePayload struct {
	ProductID       string `json:"product_id"`
	ListPrice       string `json:"list_price"`
	EffectivePrice  string `json:"effective_price"`
	DiscountPercent *int   `json:"discount_percent,omitempty"`
}

func buildPriceQuotes(quotes []services.PriceQuote) []priceQuotePayload {
	out := make([]priceQuotePayload, 0, len(quotes))
	for _, quote := range quotes {
		out = append(out, priceQuotePayload{
			ProductID:       quote.ProductID,
			ListPrice:       formatMoney(quote.ListPrice),
			EffectivePrice:  formatMoney(quote.EffectivePrice),
			DiscountPercent: quote.DiscountPercent,
		})
	}
	return out
}

type priceOverridePayload struct {
	CustomerID   string `json:"customer_id"`
	ProductID    string `json:"product_id"`
	UnitPrice    string `json:"unit_price"`
	ProductName  string `json:"product_name,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
	UpdatedBy    string `json:"updated_by,omitempty"`
}

func buildPriceOverride(override services.PriceOverride) priceOverridePayload {
	return priceOverridePayload{
		CustomerID:   override.CustomerID,
		ProductID:    override.ProductID,
		UnitPrice:    formatMoney(override.UnitPrice),
		ProductName:  override.ProductName,
		CategoryName: override.CategoryName,
		UpdatedAt:    formatTime(override.UpdatedAt),
		UpdatedBy:    strings.TrimSpace(override.UpdatedBy),
	}
}
