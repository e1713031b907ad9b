package storage

import (
	"context"
	"time"

	"github.com/danilovkiri/dk-go-settler/internal/models/modelstorage"
)

// MemberStore defines methods for member profile retrieval.
type MemberStore interface {
	GetMember(ctx context.Context, userID string) (*modelstorage.MemberStorageEntry, error)
}

// WalletStore defines methods for wallet balance access and crediting.
type WalletStore interface {
	GetWallet(ctx context.Context, userID string) (*modelstorage.WalletStorageEntry, error)
	CreditWallet(ctx context.Context, userID string, amount float64, source string) error
}

// WithdrawalStore defines methods for withdrawal lifecycle persistence. All
// state transitions are conditional on the current status so that duplicate
// or concurrent attempts cannot apply a side effect twice.
type WithdrawalStore interface {
	CreateWithdrawal(ctx context.Context, entry modelstorage.WithdrawalStorageEntry) error
	GetWithdrawal(ctx context.Context, withdrawalID string) (*modelstorage.WithdrawalStorageEntry, error)
	GetWithdrawalByReference(ctx context.Context, externalReference string) (*modelstorage.WithdrawalStorageEntry, error)
	GetWithdrawals(ctx context.Context, userID string) ([]modelstorage.WithdrawalStorageEntry, error)
	GetPendingWithdrawals(ctx context.Context) ([]modelstorage.WithdrawalStorageEntry, error)
	CountRecentWithdrawals(ctx context.Context, userID string, since time.Time) (int, error)
	ApproveWithdrawal(ctx context.Context, withdrawalID, notes string) error
	RejectWithdrawal(ctx context.Context, withdrawalID, notes string) error
	CancelWithdrawal(ctx context.Context, withdrawalID, userID string) error
	MarkProcessing(ctx context.Context, withdrawalID, externalReference string) error
	CompleteWithdrawal(ctx context.Context, withdrawalID, externalReference string, processedAt time.Time) error
	FailWithdrawal(ctx context.Context, withdrawalID, reason string) error
}

// LedgerStore defines methods for audit trail retrieval.
type LedgerStore interface {
	GetLedgerEntries(ctx context.Context, userID string) ([]modelstorage.LedgerStorageEntry, error)
}

// Storage combines all persistence concerns of the settlement engine.
type Storage interface {
	MemberStore
	WalletStore
	WithdrawalStore
	LedgerStore
}
