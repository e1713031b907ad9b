// Package provider defines the abstract payout provider contract shared by
// all vendor adapters. Vendor-specific wire shapes and signature schemes stay
// inside the adapters; the settlement core only ever sees the normalized
// types below.
package provider

import (
	"context"
)

// Normalized payout states reported by a create-payout call.
const (
	StatusQueued  = "QUEUED"
	StatusSettled = "SETTLED"
)

// PayoutResult is the normalized outcome of a successful create-payout call.
type PayoutResult struct {
	ProviderID string
	Status     string
}

// CallbackEvent is the normalized content of an asynchronous provider
// callback. ProviderRef is the provider-issued payout identifier, ClientRef
// is the deterministic reference the dispatcher submitted.
type CallbackEvent struct {
	ProviderRef string
	ClientRef   string
	Succeeded   bool
	Reason      string
}

// PayoutProvider is implemented once per vendor. CreatePayout returns a
// typed error for every failure mode, transport errors included; no failure
// crosses this boundary as anything else. ParseCallback verifies the
// signature over the raw body before interpreting any field.
type PayoutProvider interface {
	Name() string
	Configured() bool
	SignatureHeader() string
	CreatePayout(ctx context.Context, amount float64, destination, reference string) (*PayoutResult, error)
	ParseCallback(body []byte, signature string) (*CallbackEvent, error)
}
