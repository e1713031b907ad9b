package settlement

import (
	"context"

	"github.com/danilovkiri/dk-go-settler/internal/models/modelclaims"
	"github.com/danilovkiri/dk-go-settler/internal/models/modeldto"
)

// Settlement defines a set of methods for types implementing Settlement.
type Settlement interface {
	GetClaims(accessToken string) (*modelclaims.MyCustomClaims, error)
	CreateWithdrawal(ctx context.Context, userID string, request modeldto.NewWithdrawal) (*modeldto.Withdrawal, error)
	CancelWithdrawal(ctx context.Context, userID, withdrawalID string) error
	ApproveWithdrawal(ctx context.Context, withdrawalID, notes string) (*modeldto.Withdrawal, error)
	RejectWithdrawal(ctx context.Context, withdrawalID, notes string) (*modeldto.Withdrawal, error)
	GetBalance(ctx context.Context, userID string) (*modeldto.Balance, error)
	GetWithdrawals(ctx context.Context, userID string) ([]modeldto.Withdrawal, error)
	GetPendingWithdrawals(ctx context.Context) ([]modeldto.Withdrawal, error)
	GetLedger(ctx context.Context, userID string) ([]modeldto.LedgerEntry, error)
}
