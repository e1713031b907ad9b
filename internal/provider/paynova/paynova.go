// Package paynova implements the payout provider contract for the PayNova
// transfer API (secondary channel).
package paynova

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

const providerName = "paynova"

type transferRequest struct {
	Value       float64 `json:"value"`
	Beneficiary string  `json:"beneficiary"`
	ClientRef   string  `json:"client_ref"`
}

type transferResponse struct {
	Tx     string `json:"tx"`
	Status string `json:"status"`
}

type callbackPayload struct {
	Tx        string `json:"tx"`
	ClientRef string `json:"client_ref"`
	Event     string `json:"event"`
	Reason    string `json:"reason"`
}

// Provider talks to the PayNova transfer API. Credentials are fixed at
// construction time.
type Provider struct {
	client *resty.Client
	creds  config.ProviderCredentials
	log    *zerolog.Logger
}

// New initializes a PayNova adapter.
func New(creds config.ProviderCredentials, log *zerolog.Logger) *Provider {
	return &Provider{client: resty.New(), creds: creds, log: log}
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) Configured() bool {
	return p.creds.Address != "" && p.creds.CallbackSecret != ""
}

func (p *Provider) SignatureHeader() string {
	return "X-Paynova-Hmac"
}

// CreatePayout submits a transfer. PayNova dedups on client_ref, so retried
// submissions with the same reference do not create a second transfer.
func (p *Provider) CreatePayout(ctx context.Context, amount float64, destination, reference string) (*provider.PayoutResult, error) {
	if !p.Configured() {
		return nil, &providerErrors.NotConfiguredError{Provider: providerName}
	}
	var result transferResponse
	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("X-Api-Key", p.creds.APIKey).
		SetBody(transferRequest{Value: amount, Beneficiary: destination, ClientRef: reference}).
		SetResult(&result).
		Post(p.creds.Address + "/api/transfers")
	if err != nil {
		return nil, &providerErrors.CallFailedError{Provider: providerName, Err: err}
	}
	if response.StatusCode() >= 300 {
		return nil, &providerErrors.CallFailedError{Provider: providerName, Msg: fmt.Sprintf("status %d: %s", response.StatusCode(), response.String())}
	}
	switch result.Status {
	case "ACCEPTED":
		return &provider.PayoutResult{ProviderID: result.Tx, Status: provider.StatusQueued}, nil
	case "SETTLED":
		return &provider.PayoutResult{ProviderID: result.Tx, Status: provider.StatusSettled}, nil
	default:
		return nil, &providerErrors.CallFailedError{Provider: providerName, Msg: fmt.Sprintf("unexpected transfer status %q", result.Status)}
	}
}

// ParseCallback verifies the HMAC signature over the raw body and normalizes
// the payload.
func (p *Provider) ParseCallback(body []byte, signature string) (*provider.CallbackEvent, error) {
	if !verifySignature(body, signature, p.creds.CallbackSecret) {
		return nil, &providerErrors.SignatureError{Provider: providerName}
	}
	var payload callbackPayload
	err := json.Unmarshal(body, &payload)
	if err != nil {
		return nil, &providerErrors.MalformedCallbackError{Provider: providerName, Err: err}
	}
	switch payload.Event {
	case "transfer.settled":
		return &provider.CallbackEvent{ProviderRef: payload.Tx, ClientRef: payload.ClientRef, Succeeded: true}, nil
	case "transfer.failed":
		return &provider.CallbackEvent{ProviderRef: payload.Tx, ClientRef: payload.ClientRef, Succeeded: false, Reason: payload.Reason}, nil
	default:
		return nil, &providerErrors.MalformedCallbackError{Provider: providerName, Err: fmt.Errorf("unexpected callback event %q", payload.Event)}
	}
}

// Sign computes the callback signature the way PayNova does. Exposed for the
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
