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
	CredoName            = "credo"
	CredoLiveURL         = "https://api.credocentral.com"
	CredoDemoURL         = "https://api.public.credodemo.com"
	CredoSignatureHeader = "X-Credo-Signature"
)

var credoEvents = statusTable{
	"transaction.successful": payment.Successful,
	"transaction.failed":     payment.Failed,
}

// CredoProcessor talks to the Credo transaction API. Initialization is
// authorized with the public key and verification with the secret key.
//
// Webhook signatures are SHA-512 of webhook token + business code, a static
// value that does not cover the body. Anyone holding one valid signature can
// forge events, so webhook payloads are treated as hints and the payment is
// always re-verified before it is finalized.
type CredoProcessor struct {
	publicKey   string
	secretKey   string
	serviceCode string
	baseURL     string
	useCallback bool
	loc         *time.Location
	verifier    StaticTokenDigest
	client      *gatewayClient
	logger      zerolog.Logger
}

type credoInitResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    *struct {
		AuthorizationURL string `json:"authorizationUrl"`
		Reference        string `json:"reference"`
		CredoReference   string `json:"credoReference"`
	} `json:"data"`
}

func NewCredoProcessor(s Settings, opts ...Option) (*CredoProcessor, error) {
	if s.CredoPublicKey == "" {
		return nil, fmt.Errorf("%w: credo public key", domainErrors.ErrMissingCredential)
	}
	if s.CredoSecretKey == "" {
		return nil, fmt.Errorf("%w: credo secret key", domainErrors.ErrMissingCredential)
	}
	o := buildOptions(s, opts)
	o.logger = observability.ForProcessor(o.logger, CredoName)

	baseURL := CredoDemoURL
	if s.Live {
		baseURL = CredoLiveURL
	}
	if o.baseURL != "" {
		baseURL = strings.TrimRight(o.baseURL, "/")
	}

	if s.CredoWebhookToken == "" || s.CredoBusinessCode == "" {
		o.logger.Warn().Msg("webhook token or business code not set, all webhook events will be rejected")
	}

	return &CredoProcessor{
		publicKey:   s.CredoPublicKey,
		secretKey:   s.CredoSecretKey,
		serviceCode: s.CredoServiceCode,
		baseURL:     baseURL,
		useCallback: s.UseCallback,
		loc:         s.location(),
		verifier:    NewStaticTokenDigest(s.CredoWebhookToken, s.CredoBusinessCode),
		client:      newGatewayClient(CredoName, s, o),
		logger:      o.logger,
	}, nil
}

func (p *CredoProcessor) Name() string            { return CredoName }
func (p *CredoProcessor) DisplayName() string     { return "Credo" }
func (p *CredoProcessor) SignatureHeader() string { return CredoSignatureHeader }

func (p *CredoProcessor) InitializePayment(ctx context.Context, req payment.InitializationRequest) payment.InitializationResult {
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
		body["callbackUrl"] = req.CallbackURL
	}
	if p.serviceCode != "" {
		body["serviceCode"] = p.serviceCode
	}

	resp, err := p.client.do(ctx, "initialize", http.MethodPost, p.baseURL+"/transaction/initialize", p.publicKey, body)
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

	var decoded credoInitResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		p.logger.Error().Err(err).Str("reference", req.Reference).Msg("malformed initialization response")
		return payment.InitializationResult{}
	}
	if decoded.Status != http.StatusOK || decoded.Data == nil || decoded.Data.AuthorizationURL == "" {
		p.logger.Warn().
			Str("reference", req.Reference).
			Int("gateway_status", decoded.Status).
			Str("message", decoded.Message).
			Msg("initialization not accepted")
		return payment.InitializationResult{}
	}

	p.logger.Info().Str("reference", req.Reference).Msg("payment initialized")
	return payment.InitializationResult{AuthorizationURL: decoded.Data.AuthorizationURL}
}

func (p *CredoProcessor) VerifyPayment(ctx context.Context, reference string) payment.VerificationResult {
	if strings.TrimSpace(reference) == "" {
		p.logger.Warn().Msg("verification requested without reference")
		return payment.VerificationResult{}
	}

	endpoint := p.baseURL + "/transaction/" + url.PathEscape(reference) + "/verify"
	resp, err := p.client.do(ctx, "verify", http.MethodGet, endpoint, p.secretKey, nil)
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
	if code, ok := numericField(raw, "status"); !ok || code != http.StatusOK {
		p.logger.Warn().Str("reference", reference).Str("message", stringField(raw, "message")).Msg("verification not accepted")
		return payment.VerificationResult{}
	}
	data, ok := mapField(raw, "data")
	if !ok {
		p.logger.Warn().Str("reference", reference).Msg("verification response has no data")
		return payment.VerificationResult{}
	}
	code, ok := numericField(data, "status")
	if !ok {
		p.logger.Warn().Str("reference", reference).Msg("verification response has no transaction status")
		return payment.VerificationResult{}
	}

	status := payment.Failed
	if code == 0 {
		status = payment.Successful
	}
	paidAt, err := parseTimestamp(data["transactionDate"], p.loc)
	if err != nil {
		p.logger.Warn().Err(err).Str("reference", reference).Msg("unparseable payment date")
	}
	ref := stringField(data, "businessRef")
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

func (p *CredoProcessor) VerifyEvent(event payment.WebhookEvent) bool {
	return p.verifier.Verify(event.Signature, event.Body)
}

func (p *CredoProcessor) FormatWebhookPayload(raw map[string]any) payment.WebhookPayload {
	event := stringField(raw, "event")
	status := credoEvents.lookup(event)
	data, _ := mapField(raw, "data")

	paidAt, err := parseTimestamp(data["transactionDate"], p.loc)
	if err != nil {
		p.logger.Warn().Err(err).Str("event", event).Msg("unparseable payment date in webhook")
	}
	ref := stringField(data, "businessRef")
	if ref == "" {
		ref = stringField(data, "reference")
	}

	return payment.WebhookPayload{
		Event:       event,
		Status:      status,
		Reference:   ref,
		PaymentDate: paidAt,
		Data:        normalizedData(data, status, ref, paidAt),
	}
}

// numericField reads an integer that the gateway may encode as a JSON number
// or a numeric string.
func numericField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
