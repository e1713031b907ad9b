// Package swiftpay implements the payout provider contract for the SwiftPay
// API (primary channel).
package swiftpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/danilovkiri/dk-go-settler/internal/config"
	"github.com/danilovkiri/dk-go-settler/internal/provider"
	providerErrors "github.com/danilovkiri/dk-go-settler/internal/provider/errors"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const providerName = "swiftpay"

type payoutRequest struct {
	Amount    float64 `json:"amount"`
	Account   string  `json:"account"`
	Reference string  `json:"reference"`
}

type payoutResponse struct {
	PayoutID string `json:"payout_id"`
	State    string `json:"state"`
}

type callbackPayload struct {
	PayoutID    string `json:"payout_id"`
	Reference   string `json:"reference"`
	State       string `json:"state"`
	FailureCode string `json:"failure_code"`
}

// Provider talks to the SwiftPay payout API. Credentials are fixed at
// construction time.
type Provider struct {
	client *resty.Client
	creds  config.ProviderCredentials
	log    *zerolog.Logger
}

// New initializes a SwiftPay adapter.
func New(creds config.ProviderCredentials, log *zerolog.Logger) *Provider {
	return &Provider{client: resty.New(), creds: creds, log: log}
}

// Name identifies the vendor in routes and logs.
func (p *Provider) Name() string {
	return providerName
}

// Configured reports whether the adapter holds usable credentials.
func (p *Provider) Configured() bool {
	return p.creds.Address != "" && p.creds.CallbackSecret != ""
}

// SignatureHeader names the HTTP header carrying the callback signature.
func (p *Provider) SignatureHeader() string {
	return "X-Swiftpay-Signature"
}

// CreatePayout submits a create-payout call. The reference is the
// deterministic dedup key, SwiftPay treats a repeated reference as the same
// payout.
func (p *Provider) CreatePayout(ctx context.Context, amount float64, destination, reference string) (*provider.PayoutResult, error) {
	if !p.Configured() {
		return nil, &providerErrors.NotConfiguredError{Provider: providerName}
	}
	var result payoutResponse
	response, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(p.creds.APIKey).
		SetBody(payoutRequest{Amount: amount, Account: destination, Reference: reference}).
		SetResult(&result).
		Post(p.creds.Address + "/v1/payouts")
	if err != nil {
		return nil, &providerErrors.CallFailedError{Provider: providerName, Err: err}
	}
	if response.StatusCode() >= 300 {
		return nil, &providerErrors.CallFailedError{Provider: providerName, Msg: fmt.Sprintf("status %d: %s", response.StatusCode(), response.String())}
	}
	switch result.State {
	case "queued":
		return &provider.PayoutResult{ProviderID: result.PayoutID, Status: provider.StatusQueued}, nil
	case "paid":
		return &provider.PayoutResult{ProviderID: result.PayoutID, Status: provider.StatusSettled}, nil
	default:
		return nil, &providerErrors.CallFailedError{Provider: providerName, Msg: fmt.Sprintf("unexpected payout state %q", result.State)}
	}
}

// ParseCallback verifies the HMAC signature over the raw body and normalizes
// the payload. Anything that is not an explicit paid/failed state is rejected
// as malformed, partial settlements are not modeled.
func (p *Provider) ParseCallback(body []byte, signature string) (*provider.CallbackEvent, error) {
	if !verifySignature(body, signature, p.creds.CallbackSecret) {
		return nil, &providerErrors.SignatureError{Provider: providerName}
	}
	var payload callbackPayload
	err := json.Unmarshal(body, &payload)
	if err != nil {
		return nil, &providerErrors.MalformedCallbackError{Provider: providerName, Err: err}
	}
	switch payload.State {
	case "paid":
		return &provider.CallbackEvent{ProviderRef: payload.PayoutID, ClientRef: payload.Reference, Succeeded: true}, nil
	case "failed":
		return &provider.CallbackEvent{ProviderRef: payload.PayoutID, ClientRef: payload.Reference, Succeeded: false, Reason: payload.FailureCode}, nil
	default:
		return nil, &providerErrors.MalformedCallbackError{Provider: providerName, Err: fmt.Errorf("unexpected callback state %q", payload.State)}
	}
}

// Sign computes the callback signature the way SwiftPay does. Exposed for the
// mock provider and tests.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected, err := hex.DecodeString(Sign(body, secret))
	if err != nil {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, provided)
}
