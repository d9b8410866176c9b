package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrProviderUnavailable is returned when the PSP rejects or cannot serve the request.
var ErrProviderUnavailable = errors.New("payments: provider unavailable")

// CheckoutLineItem is one line shown on the hosted checkout page.
type CheckoutLineItem struct {
	Name     string
	SKU      string
	Quantity int64
	// UnitAmount is expressed in the currency's minor unit.
	UnitAmount int64
}

// CheckoutSessionRequest captures the payload required to create a hosted checkout session.
type CheckoutSessionRequest struct {
	OrderID        string
	CustomerEmail  string
	Currency       string
	Amount         int64
	Items          []CheckoutLineItem
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
	Metadata       map[string]string
}

// CheckoutSession is the provider session the customer is redirected to.
type CheckoutSession struct {
	ID          string
	RedirectURL string
	ExpiresAt   time.Time
}

// CheckoutProvider creates hosted checkout sessions.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
}

// ToMinorUnits converts a 2dp amount into integer minor units (cents).
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	scaled := amount.Round(2).Shift(2)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("payments: amount %s has more than two decimal places", amount)
	}
	if scaled.IsNegative() {
		return 0, fmt.Errorf("payments: amount %s is negative", amount)
	}
	return scaled.IntPart(), nil
}

func normaliseCurrency(currency string) string {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return "usd"
	}
	return currency
}
