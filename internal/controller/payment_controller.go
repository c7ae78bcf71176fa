package controller

import (
	"io"
	"net/http"
	"sort"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/service"
	"github.com/go-chi/chi/v5"
)

// maxWebhookBody bounds the bytes read from a webhook delivery.
const maxWebhookBody = 1 << 20

// ProcessorCatalog lists the processors this deployment can be configured
// with.
type ProcessorCatalog interface {
	Supported() map[string]string
}

// PaymentController handles checkout, callback and webhook requests.
type PaymentController struct {
	checkout *service.CheckoutService
	catalog  ProcessorCatalog
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(checkout *service.CheckoutService, catalog ProcessorCatalog) *PaymentController {
	return &PaymentController{checkout: checkout, catalog: catalog}
}

// Checkout handles POST /api/v1/checkout
func (h *PaymentController) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.checkout.StartCheckout(r.Context(), service.CheckoutRequest{
		Email:    req.Email,
		Amount:   req.Amount,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromCheckout(res))
}

// Callback handles GET /api/v1/payments/callback?reference=...
func (h *PaymentController) Callback(w http.ResponseWriter, r *http.Request) {
	res, err := h.checkout.HandleCallback(r.Context(), r.URL.Query().Get("reference"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromFinalize(res))
}

// Webhook handles POST /api/v1/payments/webhook. Responses are plain text.
func (h *PaymentController) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil || len(body) > maxWebhookBody {
		writeWebhookError(w, domainErrors.ErrMalformedEvent)
		return
	}

	signature := r.Header.Get(h.checkout.Processor().SignatureHeader())
	if _, err := h.checkout.HandleWebhook(r.Context(), signature, body); err != nil {
		writeWebhookError(w, err)
		return
	}
	writeText(w, http.StatusOK, "Webhook processed successfully")
}

// GetPayment handles GET /api/v1/payments/{reference}
func (h *PaymentController) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.checkout.GetPayment(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}

// Processors handles GET /api/v1/processors
func (h *PaymentController) Processors(w http.ResponseWriter, r *http.Request) {
	active := h.checkout.Processor()
	resp := ProcessorsResponse{
		Active: ProcessorInfo{Name: active.Name(), DisplayName: active.DisplayName()},
	}
	if h.catalog != nil {
		for name, display := range h.catalog.Supported() {
			resp.Supported = append(resp.Supported, ProcessorInfo{Name: name, DisplayName: display})
		}
		sort.Slice(resp.Supported, func(i, j int) bool {
			return resp.Supported[i].Name < resp.Supported[j].Name
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
