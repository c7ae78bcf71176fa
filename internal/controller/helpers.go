package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// message overrides the wrapped error text for failures whose chain carries
// internal detail.
var errorMappings = []errorMapping{
	{domainErrors.ErrPaymentNotFound, http.StatusNotFound, "not_found", "Payment does not exist"},
	{domainErrors.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount", ""},
	{domainErrors.ErrInvalidInput, http.StatusBadRequest, "invalid_input", ""},
	{domainErrors.ErrEventVerificationFailed, http.StatusBadRequest, "event_verification_failed", "Event verification failed"},
	{domainErrors.ErrMalformedEvent, http.StatusBadRequest, "event_verification_failed", "Event verification failed"},
	{domainErrors.ErrGatewayUnavailable, http.StatusBadGateway, "gateway_unavailable", "Cannot process payment at the moment."},
	{domainErrors.ErrVerificationFailed, http.StatusBadGateway, "verification_failed", "Unable to verify payment."},
	{domainErrors.ErrDuplicateReference, http.StatusConflict, "duplicate_reference", ""},
	{domainErrors.ErrPaymentAlreadyProcessed, http.StatusConflict, "already_processed", ""},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition", ""},
	{domainErrors.ErrReferenceExhausted, http.StatusServiceUnavailable, "reference_exhausted", "could not allocate a payment reference, please retry"},
	{domainErrors.ErrLockAcquisitionFailed, http.StatusServiceUnavailable, "busy", "payment is being processed, please retry"},
}

func lookupError(err error) (errorMapping, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			if m.message == "" {
				m.message = err.Error()
			}
			return m, true
		}
	}
	return errorMapping{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeText answers in plain text, which is what gateways expect from a
// webhook endpoint.
func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	if m, ok := lookupError(err); ok {
		resp.Code = m.code
		resp.Error = m.message
		writeJSON(w, m.status, resp)
		return
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		resp.Error = domainErr.Message
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

// writeWebhookError answers a failed webhook delivery in plain text. Only
// the 502 case asks the gateway to redeliver.
func writeWebhookError(w http.ResponseWriter, err error) {
	if m, ok := lookupError(err); ok {
		writeText(w, m.status, m.message)
		return
	}
	log.Error().Err(err).Msg("unhandled error in webhook handler")
	writeText(w, http.StatusInternalServerError, "Internal server error")
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
