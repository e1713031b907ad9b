// Package dispatcher provides the payout dispatcher: it submits an approved
// withdrawal to the primary provider, fails over to the secondary exactly
// once, normalizes the outcome into the withdrawal status and triggers the
// refund path when both channels are exhausted. Provider-level errors never
// escape this boundary.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danilovkiri/dk-go-settler/internal/models/modelqueue"
	"github.com/danilovkiri/dk-go-settler/internal/provider"
	serviceErrors "github.com/danilovkiri/dk-go-settler/internal/service/dispatcher/v1/errors"
	notifier "github.com/danilovkiri/dk-go-settler/internal/service/notifier/v1"
	storage "github.com/danilovkiri/dk-go-settler/internal/storage/v1"
	storageErrors "github.com/danilovkiri/dk-go-settler/internal/storage/v1/errors"
	"github.com/rs/zerolog"
)

// Dispatcher defines attributes of a struct available to its methods.
type Dispatcher struct {
	storage   storage.Storage
	providers []provider.PayoutProvider
	notifier  notifier.Notifier
	timeout   time.Duration
	log       *zerolog.Logger
}

// InitDispatcher initializes a payout dispatcher over an ordered provider
// chain (primary first).
func InitDispatcher(st storage.Storage, providers []provider.PayoutProvider, ntf notifier.Notifier, timeout time.Duration, log *zerolog.Logger) (*Dispatcher, error) {
	if st == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil storage was passed to dispatcher initializer"}
	}
	if len(providers) == 0 {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "empty provider chain was passed to dispatcher initializer"}
	}
	if ntf == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil notifier was passed to dispatcher initializer"}
	}
	return &Dispatcher{
		storage:   st,
		providers: providers,
		notifier:  ntf,
		timeout:   timeout,
		log:       log,
	}, nil
}

// Dispatch sends one approved withdrawal to the provider chain. The payout
// reference is derived deterministically from the withdrawal id so that a
// retried submission is deduplicated on the provider side. A timeout counts
// as a failure, never as success. The withdrawal is already durable when this
// runs, no DB transaction is held across the call.
func (d *Dispatcher) Dispatch(ctx context.Context, entry modelqueue.DispatchQueueEntry) error {
	reference := "WD-" + entry.WithdrawalID
	var lastErr error
	for _, prv := range d.providers {
		attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
		result, err := prv.CreatePayout(attemptCtx, entry.Amount, entry.Destination, reference)
		cancel()
		if err != nil {
			d.log.Warn().Err(err).Msg(fmt.Sprintf("payout attempt via %s failed for withdrawal %s", prv.Name(), entry.WithdrawalID))
			lastErr = err
			continue
		}
		switch result.Status {
		case provider.StatusQueued:
			err = d.storage.MarkProcessing(ctx, entry.WithdrawalID, result.ProviderID)
			if err != nil {
				var stateConflictError *storageErrors.StateConflictError
				if errors.As(err, &stateConflictError) {
					d.log.Warn().Msg(fmt.Sprintf("withdrawal %s was already transitioned to %s, dispatch result dropped", entry.WithdrawalID, stateConflictError.Status))
					return nil
				}
				return err
			}
			d.log.Info().Msg(fmt.Sprintf("withdrawal %s accepted by %s under reference %s", entry.WithdrawalID, prv.Name(), result.ProviderID))
			return nil
		case provider.StatusSettled:
			err = d.storage.CompleteWithdrawal(ctx, entry.WithdrawalID, result.ProviderID, time.Now())
			if err != nil {
				var stateConflictError *storageErrors.StateConflictError
				if errors.As(err, &stateConflictError) {
					d.log.Warn().Msg(fmt.Sprintf("withdrawal %s was already transitioned to %s, dispatch result dropped", entry.WithdrawalID, stateConflictError.Status))
					return nil
				}
				return err
			}
			d.log.Info().Msg(fmt.Sprintf("withdrawal %s settled synchronously by %s", entry.WithdrawalID, prv.Name()))
			d.notifier.Notify(entry.UserID, "withdrawal_completed", "Withdrawal completed",
				fmt.Sprintf("Your withdrawal of %.2f was paid out.", entry.Amount),
				map[string]string{"withdrawal_id": entry.WithdrawalID})
			return nil
		default:
			lastErr = fmt.Errorf("unexpected normalized payout status %q from %s", result.Status, prv.Name())
			d.log.Warn().Err(lastErr).Msg(fmt.Sprintf("payout attempt via %s failed for withdrawal %s", prv.Name(), entry.WithdrawalID))
		}
	}
	reason := "all payout providers failed"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	err := d.storage.FailWithdrawal(ctx, entry.WithdrawalID, reason)
	if err != nil {
		var stateConflictError *storageErrors.StateConflictError
		if errors.As(err, &stateConflictError) {
			d.log.Warn().Msg(fmt.Sprintf("withdrawal %s was already transitioned to %s, failure dropped", entry.WithdrawalID, stateConflictError.Status))
			return nil
		}
		return err
	}
	d.log.Error().Msg(fmt.Sprintf("withdrawal %s failed on all providers: %s", entry.WithdrawalID, reason))
	d.notifier.Notify(entry.UserID, "withdrawal_failed", "Withdrawal failed",
		fmt.Sprintf("Your withdrawal of %.2f could not be paid out, the amount was returned to your balance.", entry.Amount),
		map[string]string{"withdrawal_id": entry.WithdrawalID, "reason": reason})
	return nil
}
