// Package handlers provides API endpoint handling functionality.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	handlersErrors "github.com/danilovkiri/dk-go-settler/internal/api/rest/errors"
	"github.com/danilovkiri/dk-go-settler/internal/config"
	"github.com/danilovkiri/dk-go-settler/internal/models/modeldto"
	providerErrors "github.com/danilovkiri/dk-go-settler/internal/provider/errors"
	reconciler "github.com/danilovkiri/dk-go-settler/internal/service/reconciler/v1"
	reconcilerErrors "github.com/danilovkiri/dk-go-settler/internal/service/reconciler/v1/errors"
	settlement "github.com/danilovkiri/dk-go-settler/internal/service/settlement/v1"
	serviceErrors "github.com/danilovkiri/dk-go-settler/internal/service/settlement/v1/errors"
	storageErrors "github.com/danilovkiri/dk-go-settler/internal/storage/v1/errors"
	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
)

// Handler defines attributes of a struct available to its methods.
type Handler struct {
	service      settlement.Settlement
	reconciler   reconciler.Reconciler
	serverConfig *config.ServerConfig
	log          *zerolog.Logger
}

// InitHandlers initializes a handler object.
func InitHandlers(mainService settlement.Settlement, rec reconciler.Reconciler, serverConfig *config.ServerConfig, log *zerolog.Logger) (*Handler, error) {
	if mainService == nil {
		return nil, &handlersErrors.HandlersFoundNilArgument{Msg: "nil settlement service was passed to handlers initializer"}
	}
	if rec == nil {
		return nil, &handlersErrors.HandlersFoundNilArgument{Msg: "nil reconciler was passed to handlers initializer"}
	}
	return &Handler{service: mainService, reconciler: rec, serverConfig: serverConfig, log: log}, nil
}

// HandleNewWithdrawal processes new withdrawal requests.
func (h *Handler) HandleNewWithdrawal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		userID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleNewWithdrawal failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "Invalid Content-Type", http.StatusBadRequest)
		}
		b, err := ioutil.ReadAll(r.Body)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleNewWithdrawal failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		var newWithdrawal modeldto.NewWithdrawal
		err = json.Unmarshal(b, &newWithdrawal)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleNewWithdrawal failed")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Info().Msg(fmt.Sprintf("new withdrawal request detected for %v", newWithdrawal))
		withdrawal, err := h.service.CreateWithdrawal(ctx, userID, newWithdrawal)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleNewWithdrawal failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			var notEnoughFundsError *storageErrors.NotEnoughFundsError
			var notFoundError *storageErrors.NotFoundError
			var serviceIllegalAmount *serviceErrors.ServiceIllegalAmount
			var serviceIllegalDestination *serviceErrors.ServiceIllegalDestination
			var serviceBelowMinimum *serviceErrors.ServiceBelowMinimum
			var serviceLimitExceeded *serviceErrors.ServiceLimitExceeded
			var serviceRestrictedAccount *serviceErrors.ServiceRestrictedAccount
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			} else if errors.As(err, &serviceIllegalAmount) || errors.As(err, &serviceIllegalDestination) || errors.As(err, &serviceBelowMinimum) {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			} else if errors.As(err, &serviceLimitExceeded) {
				http.Error(w, err.Error(), http.StatusTooManyRequests)
			} else if errors.As(err, &serviceRestrictedAccount) {
				http.Error(w, err.Error(), http.StatusForbidden)
			} else if errors.As(err, &notEnoughFundsError) {
				http.Error(w, err.Error(), http.StatusPaymentRequired)
			} else if errors.As(err, &notFoundError) {
				http.Error(w, err.Error(), http.StatusNotFound)
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.respondJSON(w, http.StatusCreated, withdrawal)
	}
}

// HandleGetWithdrawals processes withdrawals query requests.
func (h *Handler) HandleGetWithdrawals() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		userID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetWithdrawals failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		withdrawals, err := h.service.GetWithdrawals(ctx, userID)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetWithdrawals failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(withdrawals) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.respondJSON(w, http.StatusOK, withdrawals)
	}
}

// HandleCancelWithdrawal processes member-initiated cancellation requests.
func (h *Handler) HandleCancelWithdrawal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		userID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleCancelWithdrawal failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		withdrawalID := chi.URLParam(r, "withdrawalID")
		err = h.service.CancelWithdrawal(ctx, userID, withdrawalID)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleCancelWithdrawal failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			var notFoundError *storageErrors.NotFoundError
			var stateConflictError *storageErrors.StateConflictError
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			} else if errors.As(err, &notFoundError) {
				http.Error(w, err.Error(), http.StatusNotFound)
			} else if errors.As(err, &stateConflictError) {
				http.Error(w, err.Error(), http.StatusConflict)
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// HandleGetBalance processes balance query requests.
func (h *Handler) HandleGetBalance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		userID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetBalance failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		balance, err := h.service.GetBalance(ctx, userID)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetBalance failed")
			var notFoundError *storageErrors.NotFoundError
			if errors.As(err, &notFoundError) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.respondJSON(w, http.StatusOK, balance)
	}
}

// HandleGetLedger processes audit trail query requests.
func (h *Handler) HandleGetLedger() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		userID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetLedger failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		entries, err := h.service.GetLedger(ctx, userID)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetLedger failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(entries) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.respondJSON(w, http.StatusOK, entries)
	}
}

// HandleGetPendingWithdrawals processes manual review queue query requests.
func (h *Handler) HandleGetPendingWithdrawals() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		withdrawals, err := h.service.GetPendingWithdrawals(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetPendingWithdrawals failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(withdrawals) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.respondJSON(w, http.StatusOK, withdrawals)
	}
}

// HandleAdminAction processes admin approve/reject requests.
func (h *Handler) HandleAdminAction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		withdrawalID := chi.URLParam(r, "withdrawalID")
		if r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "Invalid Content-Type", http.StatusBadRequest)
		}
		b, err := ioutil.ReadAll(r.Body)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleAdminAction failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		var action modeldto.AdminAction
		err = json.Unmarshal(b, &action)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleAdminAction failed")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Info().Msg(fmt.Sprintf("admin action %s detected for withdrawal %s", action.Action, withdrawalID))
		var withdrawal *modeldto.Withdrawal
		switch action.Action {
		case "approve":
			withdrawal, err = h.service.ApproveWithdrawal(ctx, withdrawalID, action.Notes)
		case "reject":
			withdrawal, err = h.service.RejectWithdrawal(ctx, withdrawalID, action.Notes)
		default:
			http.Error(w, fmt.Sprintf("unknown action %q", action.Action), http.StatusBadRequest)
			return
		}
		if err != nil {
			h.log.Error().Err(err).Msg("HandleAdminAction failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			var notFoundError *storageErrors.NotFoundError
			var stateConflictError *storageErrors.StateConflictError
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			} else if errors.As(err, &notFoundError) {
				http.Error(w, err.Error(), http.StatusNotFound)
			} else if errors.As(err, &stateConflictError) {
				http.Error(w, err.Error(), http.StatusConflict)
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.respondJSON(w, http.StatusOK, withdrawal)
	}
}

// HandleProviderCallback processes asynchronous payout provider callbacks.
// Once the signature is verified, the handler acknowledges with 200 even when
// no matching withdrawal exists, to avoid provider-side retry storms.
func (h *Handler) HandleProviderCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		providerName := chi.URLParam(r, "provider")
		b, err := ioutil.ReadAll(r.Body)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleProviderCallback failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		err = h.reconciler.HandleCallback(ctx, providerName, b, r.Header)
		if err != nil {
			var unknownProviderError *reconcilerErrors.UnknownProviderError
			var signatureError *providerErrors.SignatureError
			var malformedCallbackError *providerErrors.MalformedCallbackError
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			if errors.As(err, &unknownProviderError) {
				h.log.Error().Err(err).Msg("HandleProviderCallback failed")
				http.Error(w, err.Error(), http.StatusNotFound)
			} else if errors.As(err, &signatureError) {
				h.log.Error().Err(err).Msg(fmt.Sprintf("potential callback forgery attempt from %s", strings.Split(r.RemoteAddr, ":")[0]))
				http.Error(w, err.Error(), http.StatusUnauthorized)
			} else if errors.As(err, &malformedCallbackError) {
				h.log.Error().Err(err).Msg("HandleProviderCallback failed")
				http.Error(w, err.Error(), http.StatusBadRequest)
			} else if errors.As(err, &contextTimeoutExceededError) {
				h.log.Error().Err(err).Msg("HandleProviderCallback failed")
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			} else {
				h.log.Error().Err(err).Msg("HandleProviderCallback failed")
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// getUserID retrieves user identifier from the request metadata.
func (h *Handler) getUserID(r *http.Request) (string, error) {
	accessToken := r.Header.Get("Authorization")
	if len(accessToken) == 0 {
		return "", errors.New("token authorization required")
	}
	accessToken = strings.Replace(accessToken, "Bearer ", "", 1)
	claims, err := h.service.GetClaims(accessToken)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	resBody, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("response marshalling failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(resBody)
	if err != nil {
		h.log.Error().Err(err).Msg("response writing failed")
	}
}
