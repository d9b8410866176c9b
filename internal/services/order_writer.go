package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/repositories"
)

// errNoChange lets a mutation report that the stored order is already in the desired state.
var errNoChange = errors.New("order: no change")

// orderAccess decides who may apply a mutation.
type orderAccess int

const (
	accessAdmin orderAccess = iota
	accessOwnerOrAdmin
)

// orderWriter applies strict read-modify-write cycles to a single order. The stored version
// is checked inside the repository transaction, so concurrent writers get ErrOrderConflict
// instead of clobbering each other.
type orderWriter struct {
	orders   repositories.OrderRepository
	clock    func() time.Time
	repoErrs repositoryErrorMapping
}

func newOrderWriter(orders repositories.OrderRepository, clock func() time.Time) orderWriter {
	return orderWriter{
		orders: orders,
		clock:  clock,
		repoErrs: repositoryErrorMapping{
			notFound:    ErrOrderNotFound,
			conflict:    ErrOrderConflict,
			unavailable: ErrOrderUnavailable,
		},
	}
}

// load reads an order and hides it from actors that neither own it nor administer it.
func (w orderWriter) load(ctx context.Context, actor Principal, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := w.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, w.repoErrs.translate(err)
	}
	if !actor.CanActFor(order.CustomerID) {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// apply loads the order, runs mutate on a private copy, stamps the audit fields, asserts the
// totals invariant and writes the result guarded by the loaded version. When mutate returns
// errNoChange the stored order is returned untouched.
func (w orderWriter) apply(ctx context.Context, actor Principal, access orderAccess, orderID string, expectedVersion *int64, mutate func(*Order) error) (Order, error) {
	if access == accessAdmin && !actor.IsAdmin() {
		return Order{}, ErrOrderForbidden
	}
	current, err := w.load(ctx, actor, orderID)
	if err != nil {
		return Order{}, err
	}
	if expectedVersion != nil && *expectedVersion != current.Version {
		return Order{}, fmt.Errorf("%w: expected version %d, stored %d", ErrOrderConflict, *expectedVersion, current.Version)
	}

	next := cloneOrder(current)
	if err := mutate(&next); err != nil {
		if errors.Is(err, errNoChange) {
			return current, nil
		}
		return Order{}, err
	}

	next.UpdatedAt = w.clock()
	next.UpdatedBy = actor.ID
	next.Version = current.Version + 1
	if err := checkOrderInvariant(next); err != nil {
		return Order{}, err
	}
	if err := w.orders.Update(ctx, next, current.Version); err != nil {
		return Order{}, w.repoErrs.translate(err)
	}
	return next, nil
}

// checkOrderInvariant fails when subtotal or total drifted from the items.
func checkOrderInvariant(order Order) error {
	items := order.ItemsSubtotal()
	if items.Equal(order.Subtotal) && order.Subtotal.Add(order.ShippingCost).Equal(order.TotalAmount) {
		return nil
	}
	return &InvariantViolationError{
		OrderID:       order.OrderID,
		ItemsSubtotal: items,
		Subtotal:      order.Subtotal,
		ShippingCost:  order.ShippingCost,
		TotalAmount:   order.TotalAmount,
	}
}

func cloneOrder(order Order) Order {
	clone := order
	clone.Items = make([]domain.OrderItem, len(order.Items))
	for i, item := range order.Items {
		if item.DiscountPrice != nil {
			discount := *item.DiscountPrice
			item.DiscountPrice = &discount
		}
		clone.Items[i] = item
	}
	if order.ShippingEstimate != nil {
		estimate := *order.ShippingEstimate
		clone.ShippingEstimate = &estimate
	}
	if order.TTPayment != nil {
		clone.TTPayment = &domain.TTPayment{RemittanceFiles: slices.Clone(order.TTPayment.RemittanceFiles)}
	}
	return clone
}
