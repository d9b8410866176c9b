package firestore

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/pitta999/orderportal/internal/domain"
)

// Money is persisted as a fixed two-place decimal string so no float rounding creeps into
// stored totals.
func moneyString(amount decimal.Decimal) string {
	return domain.RoundMoney(amount).StringFixed(domain.MoneyPlaces)
}

func optionalMoneyString(amount *decimal.Decimal) *string {
	if amount == nil {
		return nil
	}
	value := moneyString(*amount)
	return &value
}

func parseMoney(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: invalid amount %q: %w", field, raw, err)
	}
	return domain.RoundMoney(amount), nil
}

func parseOptionalMoney(field string, raw *string) (*decimal.Decimal, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	amount, err := parseMoney(field, *raw)
	if err != nil {
		return nil, err
	}
	return &amount, nil
}

type addressDocument struct {
	Recipient  string `firestore:"recipient,omitempty"`
	Company    string `firestore:"company,omitempty"`
	Line1      string `firestore:"line1,omitempty"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city,omitempty"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country,omitempty"`
	Phone      string `firestore:"phone,omitempty"`
}

func addressToDocument(addr domain.Address) addressDocument {
	return addressDocument{
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

func (d addressDocument) toDomain() domain.Address {
	return domain.Address{
		Recipient:  d.Recipient,
		Company:    d.Company,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		Phone:      d.Phone,
	}
}

// Weights keep three places; grams matter for shipping estimates.
func parseWeight(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	weight, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("product.weightKg: invalid weight %q: %w", raw, err)
	}
	return weight.Round(3), nil
}
