package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

const (
	PaystackName            = "paystack"
	PaystackBaseURL         = "https://api.paystack.co"
	PaystackSignatureHeader = "X-Paystack-Signature"
)

var (
	paystackVerifyStatuses = statusTable{
		"success":  payment.Successful,
		"failed":   payment.Failed,
		"reversed": payment.Failed,
	}
	paystackEvents = statusTable{
		"charge.success": payment.Successful,
		"charge.failed":  payment.Failed,
	}
)

// PaystackProcessor talks to the Paystack transaction API. Webhooks are
// signed with HMAC-SHA512 over the raw body using the secret key.
type PaystackProcessor struct {
	secretKey   string
	baseURL     string
	useCallback bool
	loc         *time.Location
	verifier    PayloadHMAC
	client      *gatewayClient
	logger      zerolog.Logger
}

type paystackInitResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    *struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

func NewPaystackProcessor(s Settings, opts ...Option) (*PaystackProcessor, error) {
	if s.PaystackSecretKey == "" {
		return nil, fmt.Errorf("%w: paystack secret key", domainErrors.ErrMissingCredential)
	}
	o := buildOptions(s, opts)
	o.logger = observability.ForProcessor(o.logger, PaystackName)

	baseURL := PaystackBaseURL
	if o.baseURL != "" {
		baseURL = strings.TrimRight(o.baseURL, "/")
	}

	return &PaystackProcessor{
		secretKey:   s.PaystackSecretKey,
		baseURL:     baseURL,
		useCallback: s.UseCallback,
		loc:         s.location(),
		verifier:    PayloadHMAC{Secret: s.PaystackSecretKey},
		client:      newGatewayClient(PaystackName, s, o),
		logger:      o.logger,
	}, nil
}

func (p *PaystackProcessor) Name() string            { return PaystackName }
func (p *PaystackProcessor) DisplayName() string     { return "Paystack" }
func (p *PaystackProcessor) SignatureHeader() string { return PaystackSignatureHeader }

func (p *PaystackProcessor) InitializePayment(ctx context.Context, req payment.InitializationRequest) payment.InitializationResult {
	if err := req.Validate(); err != nil {
		p.logger.Warn().Err(err).Str("reference", req.Reference).Msg("rejected initialization request")
		return payment.InitializationResult{}
	}

	body := map[string]any{
		"email":     req.Email,
		"amount":    strconv.FormatInt(payment.MinorUnits(req.Amount), 10),
		"reference": req.Reference,
		"metadata":  req.MetadataJSON(),
	}
	if p.useCallback && req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}

	resp, err := p.client.do(ctx, "initialize", http.MethodPost, p.baseURL+"/transaction/initialize", p.authorization(), body)
	if err != nil {
		return payment.InitializationResult{}
	}
	if !resp.ok() {
		p.logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("reference", req.Reference).
			RawJSON("response", jsonOrQuoted(resp.Body)).
			Msg("initialization rejected by gateway")
		return payment.InitializationResult{}
	}

	var decoded paystackInitResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		p.logger.Error().Err(err).Str("reference", req.Reference).Msg("malformed initialization response")
		return payment.InitializationResult{}
	}
	if !decoded.Status || decoded.Data == nil || decoded.Data.AuthorizationURL == "" {
		p.logger.Warn().
			Str("reference", req.Reference).
			Str("message", decoded.Message).
			Msg("initialization not accepted")
		return payment.InitializationResult{}
	}

	p.logger.Info().Str("reference", req.Reference).Msg("payment initialized")
	return payment.InitializationResult{AuthorizationURL: decoded.Data.AuthorizationURL}
}

func (p *PaystackProcessor) VerifyPayment(ctx context.Context, reference string) payment.VerificationResult {
	if strings.TrimSpace(reference) == "" {
		p.logger.Warn().Msg("verification requested without reference")
		return payment.VerificationResult{}
	}

	endpoint := p.baseURL + "/transaction/verify/" + url.PathEscape(reference)
	resp, err := p.client.do(ctx, "verify", http.MethodGet, endpoint, p.authorization(), nil)
	if err != nil {
		return payment.VerificationResult{}
	}
	if !resp.ok() {
		p.logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("reference", reference).
			RawJSON("response", jsonOrQuoted(resp.Body)).
			Msg("verification rejected by gateway")
		return payment.VerificationResult{}
	}

	var raw map[string]any
	if err := json.Unmarshal(resp.Body, &raw); err != nil || raw == nil {
		p.logger.Error().Err(err).Str("reference", reference).Msg("malformed verification response")
		return payment.VerificationResult{}
	}
	if ok, _ := raw["status"].(bool); !ok {
		p.logger.Warn().Str("reference", reference).Str("message", stringField(raw, "message")).Msg("verification not accepted")
		return payment.VerificationResult{}
	}
	data, ok := mapField(raw, "data")
	if !ok {
		p.logger.Warn().Str("reference", reference).Msg("verification response has no data")
		return payment.VerificationResult{}
	}

	status := paystackVerifyStatuses.lookup(stringField(data, "status"))
	paidAt, err := parseTimestamp(data["paid_at"], p.loc)
	if err != nil {
		p.logger.Warn().Err(err).Str("reference", reference).Msg("unparseable payment date")
	}
	ref := stringField(data, "reference")
	if ref == "" {
		ref = reference
	}

	return payment.VerificationResult{
		Status:      status,
		PaymentDate: paidAt,
		Reference:   ref,
		Data:        normalizedData(data, status, ref, paidAt),
		Raw:         raw,
	}
}

func (p *PaystackProcessor) VerifyEvent(event payment.WebhookEvent) bool {
	return p.verifier.Verify(event.Signature, event.Body)
}

func (p *PaystackProcessor) FormatWebhookPayload(raw map[string]any) payment.WebhookPayload {
	event := stringField(raw, "event")
	status := paystackEvents.lookup(event)
	data, _ := mapField(raw, "data")

	paidAt, err := parseTimestamp(firstPresent(data, "paid_at", "paidAt"), p.loc)
	if err != nil {
		p.logger.Warn().Err(err).Str("event", event).Msg("unparseable payment date in webhook")
	}
	ref := stringField(data, "reference")

	return payment.WebhookPayload{
		Event:       event,
		Status:      status,
		Reference:   ref,
		PaymentDate: paidAt,
		Data:        normalizedData(data, status, ref, paidAt),
	}
}

func (p *PaystackProcessor) authorization() string {
	return "Bearer " + p.secretKey
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// jsonOrQuoted keeps log lines valid JSON when a gateway answers with HTML.
func jsonOrQuoted(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
