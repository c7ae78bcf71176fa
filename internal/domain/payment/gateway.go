package payment

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/errors"
)

// MaxAmount is the largest major-unit amount a payment can carry. It matches
// the NUMERIC(12,2) amount column.
const MaxAmount = 9999999999.99

// InitializationRequest carries what a processor needs to start a payment.
// Amount is always in the major currency unit.
type InitializationRequest struct {
	Email       string
	Amount      float64
	Reference   string
	CallbackURL string
	Metadata    map[string]any
}

// Validate checks the request before it reaches a vendor.
func (r InitializationRequest) Validate() error {
	if err := ValidateAmount(r.Amount); err != nil {
		return err
	}
	if r.Email == "" {
		return errors.NewValidationError("email", "is required")
	}
	if r.Reference == "" {
		return errors.NewValidationError("reference", "is required")
	}
	return nil
}

// MetadataJSON serializes the metadata map, defaulting to "{}".
func (r InitializationRequest) MetadataJSON() string {
	if len(r.Metadata) == 0 {
		return "{}"
	}
	b, err := json.Marshal(r.Metadata)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ValidateAmount rejects zero, negative, non-finite and oversized amounts.
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 || amount > MaxAmount {
		return errors.ErrInvalidAmount
	}
	return nil
}

// MinorUnits returns floor(amount*100) for a validated amount. It works on
// the shortest decimal form of amount, so 19.99 is 1999 and 19.9999999999
// is 1999, not whatever the binary product rounds to.
func MinorUnits(amount float64) int64 {
	whole, frac, _ := strings.Cut(strconv.FormatFloat(amount, 'f', -1, 64), ".")
	cents := frac + "00"
	n, err := strconv.ParseInt(whole+cents[:2], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// InitializationResult is the outcome of initializing a payment. The zero
// value is the failure sentinel.
type InitializationResult struct {
	AuthorizationURL string
}

// OK reports whether the processor returned an authorization URL.
func (r InitializationResult) OK() bool {
	return r.AuthorizationURL != ""
}

// VerificationResult is the normalized outcome of verifying a payment. The
// zero value is the failure sentinel.
type VerificationResult struct {
	Status      TransactionStatus
	PaymentDate *time.Time
	Reference   string
	Data        map[string]any
	Raw         map[string]any
}

// OK reports whether the vendor answered with a usable verification.
func (r VerificationResult) OK() bool {
	return r.Reference != ""
}

// WebhookEvent is one inbound webhook request. It lives for the duration of
// the request only.
type WebhookEvent struct {
	Signature string
	Body      []byte
	Payload   map[string]any
}

// ParseWebhookEvent decodes the raw body into the event payload.
func ParseWebhookEvent(signature string, body []byte) (WebhookEvent, error) {
	ev := WebhookEvent{Signature: signature, Body: body}
	if err := json.Unmarshal(body, &ev.Payload); err != nil {
		return ev, errors.NewDomainError("malformed_event", "webhook body is not valid JSON", errors.ErrMalformedEvent)
	}
	if ev.Payload == nil {
		return ev, errors.ErrMalformedEvent
	}
	return ev, nil
}

// WebhookPayload is the canonical shape every processor rewrites its
// webhook body into.
type WebhookPayload struct {
	Event       string // vendor event name exactly as sent
	Status      TransactionStatus
	Reference   string
	PaymentDate *time.Time
	Data        map[string]any
}

// Canonical payload keys shared by every processor.
const (
	KeyStatus      = "status"
	KeyReference   = "reference"
	KeyPaymentDate = "payment_date"
	KeyData        = "data"
)

// Map exposes the payload under the canonical keys.
func (p WebhookPayload) Map() map[string]any {
	var date any
	if p.PaymentDate != nil {
		date = *p.PaymentDate
	}
	return map[string]any{
		"event":        p.Event,
		KeyStatus:      p.Status,
		KeyReference:   p.Reference,
		KeyPaymentDate: date,
		KeyData:        p.Data,
	}
}
