package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	domain "github.com/pitta999/orderportal/internal/domain"
)

// applyCorrection edits the order in place. Line edits come in two shapes: top-down sets
// the unit discount price, bottom-up supplies a line subtotal from which the unit price is
// back-solved. Both end in recomputeOrderTotals.
func applyCorrection(order *Order, cmd CorrectOrderCommand) error {
	seen := make(map[int]struct{}, len(cmd.Lines))
	for _, line := range cmd.Lines {
		if line.Index < 0 || line.Index >= len(order.Items) {
			return fmt.Errorf("%w: line index %d out of range", ErrOrderInvalidInput, line.Index)
		}
		if _, dup := seen[line.Index]; dup {
			return fmt.Errorf("%w: line %d corrected twice", ErrOrderInvalidInput, line.Index)
		}
		seen[line.Index] = struct{}{}

		item := &order.Items[line.Index]
		if line.Quantity != nil {
			if *line.Quantity < 1 {
				return fmt.Errorf("%w: line %d quantity must be at least 1", ErrOrderInvalidInput, line.Index)
			}
			item.Quantity = *line.Quantity
		}

		switch {
		case line.LineSubtotal != nil && (line.DiscountPrice != nil || line.ClearDiscount):
			return fmt.Errorf("%w: line %d has both a unit price and a line subtotal", ErrOrderInvalidInput, line.Index)
		case line.LineSubtotal != nil:
			discount, err := backSolveUnitPrice(*line.LineSubtotal, item.Quantity)
			if err != nil {
				return fmt.Errorf("%w: line %d: %v", ErrOrderInvalidInput, line.Index, err)
			}
			item.DiscountPrice = &discount
		case line.ClearDiscount:
			item.DiscountPrice = nil
		case line.DiscountPrice != nil:
			if line.DiscountPrice.IsNegative() {
				return fmt.Errorf("%w: line %d discount price must not be negative", ErrOrderInvalidInput, line.Index)
			}
			discount := domain.RoundMoney(*line.DiscountPrice)
			item.DiscountPrice = &discount
		}
	}

	if cmd.ShippingCost != nil && cmd.ShippingCost.IsNegative() {
		return fmt.Errorf("%w: shipping cost must not be negative", ErrOrderInvalidInput)
	}
	return recomputeOrderTotals(order, cmd.ShippingCost, cmd.Subtotal)
}

// backSolveUnitPrice derives the unit discount price for a typed line subtotal. The
// subtotal must be exactly unit*quantity at two decimals, otherwise the stored line would
// differ from what the admin typed.
func backSolveUnitPrice(lineSubtotal decimal.Decimal, quantity int) (decimal.Decimal, error) {
	if lineSubtotal.IsNegative() {
		return decimal.Decimal{}, errors.New("line subtotal must not be negative")
	}
	if quantity < 1 {
		return decimal.Decimal{}, errors.New("quantity must be at least 1")
	}
	qty := decimal.NewFromInt(int64(quantity))
	unit := domain.RoundMoney(lineSubtotal.Div(qty))
	if reached := unit.Mul(qty); !reached.Equal(lineSubtotal) {
		return decimal.Decimal{}, fmt.Errorf("line subtotal %s is not reachable with quantity %d; nearest is %s",
			lineSubtotal.StringFixed(2), quantity, reached.StringFixed(2))
	}
	return unit, nil
}

// recomputeOrderTotals is the single place subtotal and total are derived after an edit.
// A claimed subtotal must agree with the recomputed one.
func recomputeOrderTotals(order *Order, shippingCost *decimal.Decimal, claimedSubtotal *decimal.Decimal) error {
	subtotal := order.ItemsSubtotal()
	if claimedSubtotal != nil && !domain.RoundMoney(*claimedSubtotal).Equal(subtotal) {
		return fmt.Errorf("%w: subtotal %s does not match items total %s",
			ErrOrderInvalidInput, claimedSubtotal.StringFixed(2), subtotal.StringFixed(2))
	}
	if shippingCost != nil {
		order.ShippingCost = domain.RoundMoney(*shippingCost)
	}
	order.Subtotal = subtotal
	order.TotalAmount = domain.RoundMoney(subtotal.Add(order.ShippingCost))
	return nil
}
