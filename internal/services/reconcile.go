package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/platform/storage"
	"github.com/pitta999/orderportal/internal/repositories"
)

// RemittanceReconcileJob is the job label used for metrics and logs.
const RemittanceReconcileJob = "remittance_reconcile"

const (
	defaultReconcileGrace = time.Hour
	reconcilePageSize     = 100
)

// RemittanceReconcilerDeps bundles collaborators for the reconciliation job.
type RemittanceReconcilerDeps struct {
	Orders  repositories.OrderRepository
	Blobs   repositories.BlobStore
	Grace   time.Duration
	Metrics JobMetrics
	Logger  EventLogger
}

type remittanceReconciler struct {
	orders  repositories.OrderRepository
	blobs   repositories.BlobStore
	grace   time.Duration
	metrics JobMetrics
	logger  EventLogger
}

// NewRemittanceReconciler constructs the job that settles the two-store remittance saga.
func NewRemittanceReconciler(deps RemittanceReconcilerDeps) (RemittanceReconciler, error) {
	if deps.Orders == nil || deps.Blobs == nil {
		return nil, errors.New("remittance reconciler: orders and blobs are required")
	}
	grace := deps.Grace
	if grace <= 0 {
		grace = defaultReconcileGrace
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &remittanceReconciler{
		orders:  deps.Orders,
		blobs:   deps.Blobs,
		grace:   grace,
		metrics: deps.Metrics,
		logger:  logger,
	}, nil
}

// Reconcile deletes blobs no order references once they are older than the grace period
// and reports order entries whose blob is gone. Dangling entries are never removed
// automatically.
func (r *remittanceReconciler) Reconcile(ctx context.Context, now time.Time) (report ReconcileReport, err error) {
	started := time.Now()
	defer func() {
		if r.metrics == nil {
			return
		}
		r.metrics.ObserveRun(RemittanceReconcileJob, time.Since(started), err)
		r.metrics.AddItems(RemittanceReconcileJob, "orphan_deleted", report.OrphansDeleted)
		r.metrics.AddItems(RemittanceReconcileJob, "orphan_pending", report.OrphansPending)
		r.metrics.AddItems(RemittanceReconcileJob, "dangling", len(report.DanglingReferences))
		r.metrics.AddItems(RemittanceReconcileJob, "failed", report.Failures)
	}()

	blobs, err := r.blobs.List(ctx, storage.RemittancePrefix)
	if err != nil {
		return report, fmt.Errorf("list remittance blobs: %w", err)
	}
	report.Scanned = len(blobs)

	byOrder := make(map[string][]remittanceBlob)
	present := make(map[string]struct{}, len(blobs))
	for _, blob := range blobs {
		present[blob.Path] = struct{}{}
		ref, ok := storage.ParseRemittancePath(blob.Path)
		if !ok {
			continue
		}
		byOrder[ref.OrderID] = append(byOrder[ref.OrderID], remittanceBlob{ref: ref, object: blob})
	}

	orders, failed, err := r.loadOrders(ctx, byOrder)
	if err != nil {
		return report, err
	}

	for orderID, entries := range byOrder {
		if _, skip := failed[orderID]; skip {
			report.Failures++
			continue
		}
		order, known := orders[orderID]
		for _, entry := range entries {
			if known {
				if _, ok := findRemittanceFile(order, entry.ref.FileID); ok {
					continue
				}
			}
			r.handleOrphan(ctx, now, entry, &report)
		}
	}

	for _, order := range orders {
		for _, file := range order.RemittanceFiles() {
			if _, ok := present[file.ObjectPath]; ok {
				continue
			}
			ref := DanglingReference{OrderID: order.OrderID, FileID: file.ID, Path: file.ObjectPath}
			report.DanglingReferences = append(report.DanglingReferences, ref)
			r.logger(ctx, "remittance.dangling_reference", map[string]any{
				"orderId": ref.OrderID,
				"fileId":  ref.FileID,
				"path":    ref.Path,
			})
		}
	}

	r.logger(ctx, "remittance.reconcile_completed", map[string]any{
		"scanned":        report.Scanned,
		"orphansDeleted": report.OrphansDeleted,
		"orphansPending": report.OrphansPending,
		"dangling":       len(report.DanglingReferences),
		"failures":       report.Failures,
	})
	return report, nil
}

type remittanceBlob struct {
	ref    storage.RemittancePathRef
	object repositories.BlobObject
}

// loadOrders returns the orders referenced by blobs plus every pending bank transfer order,
// so dangling entries are found even when none of an order's blobs survive. Orders that
// could not be read for a reason other than not-found are returned in failed and their
// blobs are left alone.
func (r *remittanceReconciler) loadOrders(ctx context.Context, byOrder map[string][]remittanceBlob) (map[string]Order, map[string]struct{}, error) {
	orders := make(map[string]Order, len(byOrder))
	failed := make(map[string]struct{})

	filter := repositories.OrderListFilter{
		Status:        []domain.OrderStatus{domain.OrderStatusPending},
		PaymentMethod: domain.PaymentMethodTT,
		Pagination:    domain.Pagination{PageSize: reconcilePageSize},
	}
	for {
		page, err := r.orders.List(ctx, filter)
		if err != nil {
			return nil, nil, fmt.Errorf("list bank transfer orders: %w", err)
		}
		for _, order := range page.Items {
			orders[order.OrderID] = order
		}
		if page.NextPageToken == "" {
			break
		}
		filter.Pagination.PageToken = page.NextPageToken
	}

	for orderID := range byOrder {
		if _, ok := orders[orderID]; ok {
			continue
		}
		order, err := r.orders.FindByID(ctx, orderID)
		switch {
		case err == nil:
			orders[orderID] = order
		case !isRepositoryNotFound(err):
			failed[orderID] = struct{}{}
			r.logger(ctx, "remittance.order_lookup_failed", map[string]any{"orderId": orderID, "error": err.Error()})
		}
	}
	return orders, failed, nil
}

func (r *remittanceReconciler) handleOrphan(ctx context.Context, now time.Time, entry remittanceBlob, report *ReconcileReport) {
	if entry.object.CreatedAt.IsZero() || now.Sub(entry.object.CreatedAt) < r.grace {
		report.OrphansPending++
		return
	}
	if err := r.blobs.Delete(ctx, entry.object.Path); err != nil && !isRepositoryNotFound(err) {
		report.Failures++
		r.logger(ctx, "remittance.orphan_delete_failed", map[string]any{
			"path":  entry.object.Path,
			"error": err.Error(),
		})
		return
	}
	report.OrphansDeleted++
	r.logger(ctx, "remittance.orphan_deleted", map[string]any{
		"orderId": entry.ref.OrderID,
		"fileId":  entry.ref.FileID,
		"path":    entry.object.Path,
	})
}
