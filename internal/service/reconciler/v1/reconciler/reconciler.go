// Package reconciler provides the reconciliation listener for asynchronous
// provider callbacks. Delivery is at-least-once and possibly out of order;
// correctness relies solely on the storage layer's status-guarded transitions,
// never on delivery ordering.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danilovkiri/dk-go-settler/internal/provider"
	notifier "github.com/danilovkiri/dk-go-settler/internal/service/notifier/v1"
	serviceErrors "github.com/danilovkiri/dk-go-settler/internal/service/reconciler/v1/errors"
	storage "github.com/danilovkiri/dk-go-settler/internal/storage/v1"
	storageErrors "github.com/danilovkiri/dk-go-settler/internal/storage/v1/errors"
	"github.com/rs/zerolog"
)

// Reconciler defines attributes of a struct available to its methods.
type Reconciler struct {
	storage  storage.Storage
	adapters map[string]provider.PayoutProvider
	notifier notifier.Notifier
	log      *zerolog.Logger
}

// InitReconciler initializes a reconciliation listener over the known
// provider adapters.
func InitReconciler(st storage.Storage, adapters []provider.PayoutProvider, ntf notifier.Notifier, log *zerolog.Logger) (*Reconciler, error) {
	if st == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil storage was passed to reconciler initializer"}
	}
	if ntf == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil notifier was passed to reconciler initializer"}
	}
	adapterMap := make(map[string]provider.PayoutProvider, len(adapters))
	for _, adapter := range adapters {
		adapterMap[adapter.Name()] = adapter
	}
	return &Reconciler{
		storage:  st,
		adapters: adapterMap,
		notifier: ntf,
		log:      log,
	}, nil
}

// HandleCallback verifies and applies one provider callback. A nil return
// means the callback must be acknowledged with success: that covers applied
// transitions, duplicates of already-terminal withdrawals and unknown
// references alike, so that the provider never amplifies retries against us.
func (rec *Reconciler) HandleCallback(ctx context.Context, providerName string, body []byte, header http.Header) error {
	adapter, ok := rec.adapters[providerName]
	if !ok {
		return &serviceErrors.UnknownProviderError{Provider: providerName}
	}
	event, err := adapter.ParseCallback(body, header.Get(adapter.SignatureHeader()))
	if err != nil {
		return err
	}
	withdrawal, err := rec.storage.GetWithdrawalByReference(ctx, event.ProviderRef)
	if err != nil {
		var notFoundError *storageErrors.NotFoundError
		if errors.As(err, &notFoundError) {
			rec.log.Warn().Msg(fmt.Sprintf("callback from %s references unknown payout %s, acknowledged without effect", providerName, event.ProviderRef))
			return nil
		}
		return err
	}
	if event.Succeeded {
		err = rec.storage.CompleteWithdrawal(ctx, withdrawal.WithdrawalID, event.ProviderRef, time.Now())
		if err != nil {
			var stateConflictError *storageErrors.StateConflictError
			if errors.As(err, &stateConflictError) {
				rec.log.Info().Msg(fmt.Sprintf("duplicate success callback for withdrawal %s in state %s, acknowledged without effect", withdrawal.WithdrawalID, stateConflictError.Status))
				return nil
			}
			return err
		}
		rec.log.Info().Msg(fmt.Sprintf("withdrawal %s completed via %s callback", withdrawal.WithdrawalID, providerName))
		rec.notifier.Notify(withdrawal.UserID, "withdrawal_completed", "Withdrawal completed",
			fmt.Sprintf("Your withdrawal of %.2f was paid out.", withdrawal.Amount),
			map[string]string{"withdrawal_id": withdrawal.WithdrawalID})
		return nil
	}
	err = rec.storage.FailWithdrawal(ctx, withdrawal.WithdrawalID, event.Reason)
	if err != nil {
		var stateConflictError *storageErrors.StateConflictError
		if errors.As(err, &stateConflictError) {
			rec.log.Info().Msg(fmt.Sprintf("duplicate failure callback for withdrawal %s in state %s, acknowledged without effect", withdrawal.WithdrawalID, stateConflictError.Status))
			return nil
		}
		return err
	}
	rec.log.Info().Msg(fmt.Sprintf("withdrawal %s failed via %s callback, reservation released", withdrawal.WithdrawalID, providerName))
	rec.notifier.Notify(withdrawal.UserID, "withdrawal_failed", "Withdrawal failed",
		fmt.Sprintf("Your withdrawal of %.2f could not be paid out, the amount was returned to your balance.", withdrawal.Amount),
		map[string]string{"withdrawal_id": withdrawal.WithdrawalID, "reason": event.Reason})
	return nil
}
