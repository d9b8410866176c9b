package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pitta999/orderportal/internal/platform/httpx"
	"github.com/pitta999/orderportal/internal/services"
)

const (
	remittanceFormField = "file"
	// multipartOverhead covers boundaries and part headers around the file bytes.
	multipartOverhead = 64 * 1024
)

type checkoutResponse struct {
	SessionID   string       `json:"session_id"`
	RedirectURL string       `json:"redirect_url"`
	ExpiresAt   string       `json:"expires_at,omitempty"`
	Order       orderPayload `json:"order"`
}

type remittanceResponse struct {
	File remittanceFilePayload `json:"file"`
}

type downloadResponse struct {
	URL string `json:"url"`
}

func (h *OrderHandlers) paymentRoutes(r chi.Router) {
	r.Route("/{orderID}/payments", func(pr chi.Router) {
		pr.With(h.guard).Post("/checkout", h.createCheckout)
		pr.With(h.guard).Post("/tt", h.requestTT)
		pr.Post("/tt/remittances", h.uploadRemittance)
		pr.Delete("/tt/remittances/{fileID}", h.deleteRemittance)
		pr.Get("/tt/remittances/{fileID}:download", h.downloadRemittance)
	})
}

func (h *OrderHandlers) createCheckout(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return
	}
	result, err := h.payments.CreateCheckoutSession(r.Context(), principal, orderID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	setNoStore(w)
	resp := checkoutResponse{
		SessionID:   result.SessionID,
		RedirectURL: result.RedirectURL,
		Order:       buildOrderPayload(result.Order),
	}
	if !result.ExpiresAt.IsZero() {
		resp.ExpiresAt = formatTime(result.ExpiresAt)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *OrderHandlers) requestTT(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return
	}
	order, err := h.payments.RequestTT(r.Context(), principal, orderID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, order)
}

// uploadRemittance streams the first "file" part straight into the payment service.
func (h *OrderHandlers) uploadRemittance(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return
	}
	if h.uploads != nil {
		if allowed, retry := h.uploads.Allow(principal.ID); !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Round(time.Second).Seconds())))
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many uploads; retry later", http.StatusTooManyRequests))
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	reader, err := r.MultipartReader()
	if err != nil {
		invalidRequest(r.Context(), w, "request must be multipart/form-data")
		return
	}
	part, err := nextFilePart(reader)
	if err != nil {
		h.writeUploadError(w, r, err)
		return
	}
	defer part.Close()

	var size int64
	if raw := strings.TrimSpace(r.Header.Get("X-Upload-Content-Length")); raw != "" {
		size, _ = strconv.ParseInt(raw, 10, 64)
	}
	file, err := h.payments.UploadRemittance(r.Context(), principal, services.UploadRemittanceCommand{
		OrderID:     orderID,
		FileName:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Size:        size,
		Data:        part,
	})
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeUploadError(w, r, err)
			return
		}
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, remittanceResponse{File: buildRemittancePayload(file)})
}

var errNoFilePart = errors.New(`multipart body has no "file" part`)

func nextFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, errNoFilePart
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == remittanceFormField && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

// writeUploadError handles failures while reading the multipart envelope.
func (h *OrderHandlers) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		httpx.WriteError(r.Context(), w, httpx.NewError("payload_too_large", "upload exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errNoFilePart):
		invalidRequest(r.Context(), w, err.Error())
	default:
		invalidRequest(r.Context(), w, "malformed multipart body")
	}
}

func (h *OrderHandlers) deleteRemittance(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return
	}
	fileID, ok := pathParam(w, r, "fileID")
	if !ok {
		return
	}
	order, err := h.payments.DeleteRemittance(r.Context(), principal, orderID, fileID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, order)
}

func (h *OrderHandlers) downloadRemittance(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return
	}
	fileID, ok := pathParam(w, r, "fileID")
	if !ok {
		return
	}
	url, err := h.payments.RemittanceDownloadURL(r.Context(), principal, orderID, fileID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	setNoStore(w)
	if r.URL.Query().Get("redirect") == "true" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, downloadResponse{URL: url})
}
