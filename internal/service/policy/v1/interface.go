package policy

import (
	"context"
)

// Settings carries the per-user limits supplied by the policy engine.
type Settings struct {
	MinPayoutAmount       float64 `json:"min_payout_amount"`
	MaxWithdrawalsPerWeek int     `json:"max_withdrawals_per_week"`
	AutoApproveCeiling    float64 `json:"auto_approve_ceiling"`
}

// Provider defines a read-only policy engine consumer.
type Provider interface {
	GetEffectiveSettings(ctx context.Context, userID string) (*Settings, error)
}
