// Package modelstorage provides types for querying relational DB.

package modelstorage

import (
	"database/sql"
	"time"
)

// Withdrawal lifecycle statuses. COMPLETED, FAILED, REJECTED and
// CANCELLED are terminal, no field mutates once one of them is set.
const (
	StatusPending    = "PENDING"
	StatusApproved   = "APPROVED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusRejected   = "REJECTED"
	StatusCancelled  = "CANCELLED"
)

// Ledger entry types, one per balance mutation kind.
const (
	EntryTypeRequest = "WITHDRAWAL_REQUEST"
	EntryTypeRefund  = "WITHDRAWAL_REFUND"
	EntryTypeCredit  = "CREDIT"
)

// Member rank tiers.
const (
	TierBronze   = "BRONZE"
	TierSilver   = "SILVER"
	TierGold     = "GOLD"
	TierPlatinum = "PLATINUM"
)

// IsTerminalStatus reports whether a withdrawal status is absorbing.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

type MemberStorageEntry struct {
	ID              uint   `db:"id"`
	UserID          string `db:"user_id"`
	RankTier        string `db:"rank_tier"`
	TrustRestricted bool   `db:"trust_restricted"`
}

type WalletStorageEntry struct {
	ID            uint    `db:"id"`
	UserID        string  `db:"user_id"`
	Withdrawable  float64 `db:"withdrawable"`
	PendingAmount float64 `db:"pending_amount"`
	LockedAmount  float64 `db:"locked_amount"`
	TotalEarned   float64 `db:"total_earned"`
}

type WithdrawalStorageEntry struct {
	ID                uint           `db:"id"`
	WithdrawalID      string         `db:"withdrawal_id"`
	UserID            string         `db:"user_id"`
	Amount            float64        `db:"amount"`
	Destination       string         `db:"destination"`
	Status            string         `db:"status"`
	ExternalReference sql.NullString `db:"external_reference"`
	FailureReason     string         `db:"failure_reason"`
	Notes             string         `db:"notes"`
	RequestedAt       time.Time      `db:"requested_at"`
	ProcessedAt       sql.NullTime   `db:"processed_at"`
}

type LedgerStorageEntry struct {
	ID           uint      `db:"id"`
	UserID       string    `db:"user_id"`
	WithdrawalID string    `db:"withdrawal_id"`
	EntryType    string    `db:"entry_type"`
	Amount       float64   `db:"amount"`
	RecordedAt   time.Time `db:"recorded_at"`
}
