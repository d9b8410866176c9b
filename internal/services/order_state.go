package services

import (
	"context"
	"fmt"
	"slices"

	domain "github.com/pitta999/orderportal/internal/domain"
)

var orderStatusTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
}

var paymentStatusTransitions = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.PaymentStatusPending: {domain.PaymentStatusPaid, domain.PaymentStatusFailed},
}

func canTransitionStatus(current, target domain.OrderStatus) bool {
	return slices.Contains(orderStatusTransitions[current], target)
}

func canTransitionPaymentStatus(current, target domain.PaymentStatus) bool {
	return slices.Contains(paymentStatusTransitions[current], target)
}

func (s *orderService) TransitionStatus(ctx context.Context, actor Principal, cmd OrderStatusTransitionCommand) (Order, error) {
	var previous domain.OrderStatus
	order, err := s.writer.apply(ctx, actor, accessAdmin, cmd.OrderID, cmd.ExpectedVersion, func(order *Order) error {
		previous = order.Status
		if !canTransitionStatus(order.Status, cmd.TargetStatus) {
			return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, order.Status, cmd.TargetStatus)
		}
		order.Status = cmd.TargetStatus
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.recordTransition(ctx, actor, order, "status", string(previous), string(order.Status))
	eventType := orderEventStatusChanged
	if order.Status == domain.OrderStatusCancelled {
		eventType = orderEventCancelled
	}
	s.notifier.publish(ctx, eventType, order, actor, map[string]string{"previousStatus": string(previous)})
	return order, nil
}

// TransitionPaymentStatus records a manual T/T confirmation or a provider outcome.
func (s *orderService) TransitionPaymentStatus(ctx context.Context, actor Principal, cmd PaymentStatusTransitionCommand) (Order, error) {
	var previous domain.PaymentStatus
	order, err := s.writer.apply(ctx, actor, accessAdmin, cmd.OrderID, cmd.ExpectedVersion, func(order *Order) error {
		previous = order.PaymentStatus
		if !canTransitionPaymentStatus(order.PaymentStatus, cmd.TargetStatus) {
			return fmt.Errorf("%w: payment %s -> %s", ErrOrderInvalidState, order.PaymentStatus, cmd.TargetStatus)
		}
		if order.Status == domain.OrderStatusCancelled {
			return fmt.Errorf("%w: order is cancelled", ErrOrderInvalidState)
		}
		order.PaymentStatus = cmd.TargetStatus
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.recordTransition(ctx, actor, order, "payment_status", string(previous), string(order.PaymentStatus))
	s.notifier.publish(ctx, orderEventPaymentStatusChanged, order, actor, map[string]string{"previousPaymentStatus": string(previous)})
	return order, nil
}

// Cancel is allowed for the owner or an admin while the order is still pending. Payment
// status is left as is.
func (s *orderService) Cancel(ctx context.Context, actor Principal, cmd CancelOrderCommand) (Order, error) {
	order, err := s.writer.apply(ctx, actor, accessOwnerOrAdmin, cmd.OrderID, cmd.ExpectedVersion, func(order *Order) error {
		if order.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: cannot cancel %s order", ErrOrderInvalidState, order.Status)
		}
		order.Status = domain.OrderStatusCancelled
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.recordTransition(ctx, actor, order, "status", string(domain.OrderStatusPending), string(order.Status))
	s.notifier.publish(ctx, orderEventCancelled, order, actor, map[string]string{"previousStatus": string(domain.OrderStatusPending)})
	return order, nil
}

// CorrectOrder applies admin line-item edits and recomputes the totals before any terminal
// state is reached.
func (s *orderService) CorrectOrder(ctx context.Context, actor Principal, cmd CorrectOrderCommand) (Order, error) {
	if len(cmd.Lines) == 0 && cmd.ShippingCost == nil && cmd.Subtotal == nil {
		return Order{}, fmt.Errorf("%w: no corrections supplied", ErrOrderInvalidInput)
	}
	order, err := s.writer.apply(ctx, actor, accessAdmin, cmd.OrderID, cmd.ExpectedVersion, func(order *Order) error {
		if order.Status.IsTerminal() {
			return fmt.Errorf("%w: %s order cannot be corrected", ErrOrderInvalidState, order.Status)
		}
		return applyCorrection(order, cmd)
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.corrected", map[string]any{
		"orderId":      order.OrderID,
		"actorId":      actor.ID,
		"subtotal":     order.Subtotal.StringFixed(2),
		"shippingCost": order.ShippingCost.StringFixed(2),
		"totalAmount":  order.TotalAmount.StringFixed(2),
		"version":      order.Version,
	})
	s.notifier.publish(ctx, orderEventCorrected, order, actor, map[string]string{
		"totalAmount": order.TotalAmount.StringFixed(2),
	})
	return order, nil
}

func (s *orderService) recordTransition(ctx context.Context, actor Principal, order Order, field, from, to string) {
	if s.metrics != nil {
		s.metrics.IncTransition(field, to)
	}
	s.logger(ctx, "order.transitioned", map[string]any{
		"orderId": order.OrderID,
		"field":   field,
		"from":    from,
		"to":      to,
		"actorId": actor.ID,
		"version": order.Version,
	})
}
