package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pitta999/orderportal/internal/repositories"
)

var (
	// ErrEmptyCart is matched by EmptyCartError.
	ErrEmptyCart = errors.New("order: cart is empty")
	// ErrMissingShippingAddress is matched by MissingShippingAddressError.
	ErrMissingShippingAddress = errors.New("order: shipping address is missing")
	// ErrOrderInvariant is matched by InvariantViolationError.
	ErrOrderInvariant = errors.New("order: totals invariant violated")
)

// EmptyCartError rejects placing an order from a cart without items.
type EmptyCartError struct {
	CustomerID string
}

func (e *EmptyCartError) Error() string {
	return fmt.Sprintf("order: cart for customer %q has no items", e.CustomerID)
}

func (e *EmptyCartError) Is(target error) bool { return target == ErrEmptyCart }

// MissingShippingAddressError rejects an order whose ship-to block is blank.
type MissingShippingAddressError struct {
	UseCompanyAddress bool
	MissingFields     []string
}

func (e *MissingShippingAddressError) Error() string {
	source := "custom"
	if e.UseCompanyAddress {
		source = "company"
	}
	return fmt.Sprintf("order: %s shipping address is missing %s", source, strings.Join(e.MissingFields, ", "))
}

func (e *MissingShippingAddressError) Is(target error) bool {
	return target == ErrMissingShippingAddress
}

// InvariantViolationError is raised when an order is about to be written with totals that
// do not add up.
type InvariantViolationError struct {
	OrderID       string
	ItemsSubtotal decimal.Decimal
	Subtotal      decimal.Decimal
	ShippingCost  decimal.Decimal
	TotalAmount   decimal.Decimal
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("order %s: subtotal %s (items %s) + shipping %s != total %s",
		e.OrderID, e.Subtotal.StringFixed(2), e.ItemsSubtotal.StringFixed(2), e.ShippingCost.StringFixed(2), e.TotalAmount.StringFixed(2))
}

func (e *InvariantViolationError) Is(target error) bool { return target == ErrOrderInvariant }

// repositoryErrorMapping names the service sentinels a repository failure translates to.
type repositoryErrorMapping struct {
	notFound    error
	conflict    error
	unavailable error
}

func (m repositoryErrorMapping) translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && m.notFound != nil:
			return fmt.Errorf("%w: %v", m.notFound, err)
		case repoErr.IsConflict() && m.conflict != nil:
			return fmt.Errorf("%w: %v", m.conflict, err)
		}
	}
	return fmt.Errorf("%w: %v", m.unavailable, err)
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func noopLogger(context.Context, string, map[string]any) {}
