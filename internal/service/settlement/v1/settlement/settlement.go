// Package settlement provides the withdrawal request manager: validation,
// atomic fund reservation, auto-approval policy and the admin/member
// lifecycle actions up to dispatch.
package settlement

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ShiraazMoollatjie/goluhn"
	"github.com/danilovkiri/dk-go-settler/internal/models/modelclaims"
	"github.com/danilovkiri/dk-go-settler/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-settler/internal/models/modelqueue"
	"github.com/danilovkiri/dk-go-settler/internal/models/modelstorage"
	notifier "github.com/danilovkiri/dk-go-settler/internal/service/notifier/v1"
	policy "github.com/danilovkiri/dk-go-settler/internal/service/policy/v1"
	secretary "github.com/danilovkiri/dk-go-settler/internal/service/secretary/v1"
	serviceErrors "github.com/danilovkiri/dk-go-settler/internal/service/settlement/v1/errors"
	storage "github.com/danilovkiri/dk-go-settler/internal/storage/v1"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const weeklyWindow = 7 * 24 * time.Hour

// Processor defines attributes of a struct available to its methods.
type Processor struct {
	storage   storage.Storage
	policy    policy.Provider
	secretary secretary.Secretary
	notifier  notifier.Notifier
	queue     chan modelqueue.DispatchQueueEntry
	log       *zerolog.Logger
}

// InitService initializes the settlement request manager.
func InitService(st storage.Storage, pol policy.Provider, sec secretary.Secretary, ntf notifier.Notifier, queue chan modelqueue.DispatchQueueEntry, log *zerolog.Logger) (*Processor, error) {
	if st == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil storage was passed to service initializer"}
	}
	if pol == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil policy provider was passed to service initializer"}
	}
	if sec == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil secretary was passed to service initializer"}
	}
	if ntf == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil notifier was passed to service initializer"}
	}
	if queue == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil dispatch queue was passed to service initializer"}
	}
	processor := &Processor{
		storage:   st,
		policy:    pol,
		secretary: sec,
		notifier:  ntf,
		queue:     queue,
		log:       log,
	}
	return processor, nil
}

// GetClaims retrieves verified claims from an access token.
func (proc *Processor) GetClaims(accessToken string) (*modelclaims.MyCustomClaims, error) {
	return proc.secretary.ValidateToken(accessToken)
}

// CreateWithdrawal processes new withdrawal requests: it validates the input
// against the effective policy, reserves funds atomically and applies the
// auto-approval rule. A rejected request leaves no partial record.
func (proc *Processor) CreateWithdrawal(ctx context.Context, userID string, request modeldto.NewWithdrawal) (*modeldto.Withdrawal, error) {
	if request.Amount <= 0 {
		return nil, &serviceErrors.ServiceIllegalAmount{Msg: fmt.Sprintf("illegal withdrawal amount %v", request.Amount)}
	}
	err := goluhn.Validate(request.Destination)
	if err != nil {
		return nil, &serviceErrors.ServiceIllegalDestination{Msg: fmt.Sprintf("illegal destination account %s", request.Destination)}
	}
	member, err := proc.storage.GetMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	if member.TrustRestricted {
		return nil, &serviceErrors.ServiceRestrictedAccount{Msg: fmt.Sprintf("account of %s is under a trust restriction", userID)}
	}
	settings, err := proc.policy.GetEffectiveSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if request.Amount < settings.MinPayoutAmount {
		return nil, &serviceErrors.ServiceBelowMinimum{Msg: fmt.Sprintf("amount %v is below the minimum payout of %v", request.Amount, settings.MinPayoutAmount)}
	}
	count, err := proc.storage.CountRecentWithdrawals(ctx, userID, time.Now().Add(-weeklyWindow))
	if err != nil {
		return nil, err
	}
	if count >= settings.MaxWithdrawalsPerWeek {
		return nil, &serviceErrors.ServiceLimitExceeded{Msg: fmt.Sprintf("weekly withdrawal cap of %v is reached", settings.MaxWithdrawalsPerWeek)}
	}
	status := modelstorage.StatusPending
	var notes string
	if isAutoApproveTier(member.RankTier) && request.Amount <= settings.AutoApproveCeiling {
		status = modelstorage.StatusApproved
		notes = fmt.Sprintf("approved automatically: %s tier, amount within ceiling of %v", member.RankTier, settings.AutoApproveCeiling)
	}
	entry := modelstorage.WithdrawalStorageEntry{
		WithdrawalID: uuid.New().String(),
		UserID:       userID,
		Amount:       request.Amount,
		Destination:  request.Destination,
		Status:       status,
		Notes:        notes,
		RequestedAt:  time.Now(),
	}
	err = proc.storage.CreateWithdrawal(ctx, entry)
	if err != nil {
		return nil, err
	}
	if status == modelstorage.StatusApproved {
		proc.enqueueDispatch(entry.WithdrawalID, entry.UserID, entry.Amount, entry.Destination)
	}
	responseWithdrawal := toDTO(entry)
	return &responseWithdrawal, nil
}

// CancelWithdrawal processes a member-initiated cancellation, permitted only
// while the withdrawal is PENDING. The reservation is released atomically.
func (proc *Processor) CancelWithdrawal(ctx context.Context, userID, withdrawalID string) error {
	return proc.storage.CancelWithdrawal(ctx, withdrawalID, userID)
}

// ApproveWithdrawal processes a manual admin approval and enqueues the
// withdrawal for dispatch.
func (proc *Processor) ApproveWithdrawal(ctx context.Context, withdrawalID, notes string) (*modeldto.Withdrawal, error) {
	err := proc.storage.ApproveWithdrawal(ctx, withdrawalID, notes)
	if err != nil {
		return nil, err
	}
	withdrawal, err := proc.storage.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	proc.enqueueDispatch(withdrawal.WithdrawalID, withdrawal.UserID, withdrawal.Amount, withdrawal.Destination)
	responseWithdrawal := toDTO(*withdrawal)
	return &responseWithdrawal, nil
}

// RejectWithdrawal processes a manual admin rejection, releases the
// reservation and notifies the member.
func (proc *Processor) RejectWithdrawal(ctx context.Context, withdrawalID, notes string) (*modeldto.Withdrawal, error) {
	err := proc.storage.RejectWithdrawal(ctx, withdrawalID, notes)
	if err != nil {
		return nil, err
	}
	withdrawal, err := proc.storage.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	proc.notifier.Notify(withdrawal.UserID, "withdrawal_rejected", "Withdrawal rejected",
		fmt.Sprintf("Your withdrawal of %.2f was rejected, the amount was returned to your balance.", withdrawal.Amount),
		map[string]string{"withdrawal_id": withdrawal.WithdrawalID, "notes": notes})
	responseWithdrawal := toDTO(*withdrawal)
	return &responseWithdrawal, nil
}

// GetBalance processes balance query requests.
func (proc *Processor) GetBalance(ctx context.Context, userID string) (*modeldto.Balance, error) {
	wallet, err := proc.storage.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	balance := modeldto.Balance{
		Withdrawable:  wallet.Withdrawable,
		PendingAmount: wallet.PendingAmount,
		LockedAmount:  wallet.LockedAmount,
		TotalEarned:   wallet.TotalEarned,
	}
	return &balance, nil
}

// GetWithdrawals processes withdrawals query requests.
func (proc *Processor) GetWithdrawals(ctx context.Context, userID string) ([]modeldto.Withdrawal, error) {
	withdrawals, err := proc.storage.GetWithdrawals(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toSortedDTOs(withdrawals), nil
}

// GetPendingWithdrawals processes manual review queue query requests.
func (proc *Processor) GetPendingWithdrawals(ctx context.Context) ([]modeldto.Withdrawal, error) {
	withdrawals, err := proc.storage.GetPendingWithdrawals(ctx)
	if err != nil {
		return nil, err
	}
	return toSortedDTOs(withdrawals), nil
}

// GetLedger processes audit trail query requests.
func (proc *Processor) GetLedger(ctx context.Context, userID string) ([]modeldto.LedgerEntry, error) {
	entries, err := proc.storage.GetLedgerEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	var responseEntries []modeldto.LedgerEntry
	for _, entry := range entries {
		responseEntries = append(responseEntries, modeldto.LedgerEntry{
			WithdrawalID: entry.WithdrawalID,
			EntryType:    entry.EntryType,
			Amount:       entry.Amount,
			RecordedAt:   entry.RecordedAt.Format(time.RFC3339),
		})
	}
	return responseEntries, nil
}

func (proc *Processor) enqueueDispatch(withdrawalID, userID string, amount float64, destination string) {
	proc.queue <- modelqueue.DispatchQueueEntry{
		WithdrawalID: withdrawalID,
		UserID:       userID,
		Amount:       amount,
		Destination:  destination,
	}
	proc.log.Info().Msg(fmt.Sprintf("withdrawal %s enqueued for dispatch", withdrawalID))
}

func isAutoApproveTier(tier string) bool {
	return tier == modelstorage.TierGold || tier == modelstorage.TierPlatinum
}

func toDTO(entry modelstorage.WithdrawalStorageEntry) modeldto.Withdrawal {
	withdrawal := modeldto.Withdrawal{
		ID:            entry.WithdrawalID,
		Amount:        entry.Amount,
		Destination:   entry.Destination,
		Status:        entry.Status,
		FailureReason: entry.FailureReason,
		Notes:         entry.Notes,
		RequestedAt:   entry.RequestedAt.Format(time.RFC3339),
	}
	if entry.ExternalReference.Valid {
		withdrawal.ExternalReference = entry.ExternalReference.String
	}
	if entry.ProcessedAt.Valid {
		withdrawal.ProcessedAt = entry.ProcessedAt.Time.Format(time.RFC3339)
	}
	return withdrawal
}

func toSortedDTOs(withdrawals []modelstorage.WithdrawalStorageEntry) []modeldto.Withdrawal {
	var responseWithdrawals []modeldto.Withdrawal
	for _, withdrawal := range withdrawals {
		responseWithdrawals = append(responseWithdrawals, toDTO(withdrawal))
	}
	sort.Slice(responseWithdrawals, func(i, j int) bool {
		time1, _ := time.Parse(time.RFC3339, responseWithdrawals[i].RequestedAt)
		time2, _ := time.Parse(time.RFC3339, responseWithdrawals[j].RequestedAt)
		return time1.Before(time2)
	})
	return responseWithdrawals
}
