package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitta999/orderportal/internal/platform/auth"
	"github.com/pitta999/orderportal/internal/platform/httpx"
	"github.com/pitta999/orderportal/internal/platform/requestctx"
	"github.com/pitta999/orderportal/internal/services"
)

// InternalJobHandlers exposes job triggers for Cloud Scheduler. The router protects the
// group with OIDC verification.
type InternalJobHandlers struct {
	reconciler services.RemittanceReconciler
	clock      func() time.Time
}

// NewInternalJobHandlers constructs job trigger handlers.
func NewInternalJobHandlers(reconciler services.RemittanceReconciler, clock func() time.Time) *InternalJobHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &InternalJobHandlers{reconciler: reconciler, clock: clock}
}

type reconcileResponse struct {
	Scanned        int                 `json:"scanned"`
	OrphansDeleted int                 `json:"orphans_deleted"`
	OrphansPending int                 `json:"orphans_pending"`
	Dangling       []danglingReference `json:"dangling_references"`
	Failures       int                 `json:"failures"`
}

type danglingReference struct {
	OrderID string `json:"order_id"`
	FileID  string `json:"file_id"`
	Path    string `json:"path"`
}

// Routes registers the /internal endpoints.
func (h *InternalJobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/jobs/remittance-reconcile", h.reconcile)
}

func (h *InternalJobHandlers) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := "unknown"
	if identity, ok := auth.ServiceIdentityFromContext(ctx); ok {
		caller = identity.Email
	}

	report, err := h.reconciler.Reconcile(ctx, h.clock().UTC())
	if err != nil {
		requestctx.Logger(ctx).Warn("remittance reconcile failed", zap.String("caller", caller), zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("reconcile_failed", "remittance reconciliation failed", http.StatusServiceUnavailable))
		return
	}

	resp := reconcileResponse{
		Scanned:        report.Scanned,
		OrphansDeleted: report.OrphansDeleted,
		OrphansPending: report.OrphansPending,
		Dangling:       make([]danglingReference, 0, len(report.DanglingReferences)),
		Failures:       report.Failures,
	}
	for _, ref := range report.DanglingReferences {
		resp.Dangling = append(resp.Dangling, danglingReference{OrderID: ref.OrderID, FileID: ref.FileID, Path: ref.Path})
	}
	requestctx.Logger(ctx).Info("remittance reconcile completed",
		zap.String("caller", caller),
		zap.Int("scanned", report.Scanned),
		zap.Int("orphansDeleted", report.OrphansDeleted),
		zap.Int("dangling", len(report.DanglingReferences)),
	)
	httpx.WriteJSON(w, http.StatusOK, resp)
}
