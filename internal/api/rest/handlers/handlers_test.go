package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danilovkiri/dk-go-settler/internal/config"
	"github.com/danilovkiri/dk-go-settler/internal/models/modelclaims"
	"github.com/danilovkiri/dk-go-settler/internal/models/modeldto"
	providerErrors "github.com/danilovkiri/dk-go-settler/internal/provider/errors"
	reconcilerErrors "github.com/danilovkiri/dk-go-settler/internal/service/reconciler/v1/errors"
	serviceErrors "github.com/danilovkiri/dk-go-settler/internal/service/settlement/v1/errors"
	storageErrors "github.com/danilovkiri/dk-go-settler/internal/storage/v1/errors"
	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettlement struct {
	createErr error
	cancelErr error
}

func (s *fakeSettlement) GetClaims(accessToken string) (*modelclaims.MyCustomClaims, error) {
	if accessToken != "good" {
		return nil, errors.New("invalid access token")
	}
	return &modelclaims.MyCustomClaims{UserID: "user1", Role: modelclaims.RoleMember}, nil
}

func (s *fakeSettlement) CreateWithdrawal(_ context.Context, _ string, request modeldto.NewWithdrawal) (*modeldto.Withdrawal, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &modeldto.Withdrawal{ID: "wd-1", Amount: request.Amount, Destination: request.Destination, Status: "PENDING"}, nil
}

func (s *fakeSettlement) CancelWithdrawal(_ context.Context, _, _ string) error {
	return s.cancelErr
}

func (s *fakeSettlement) ApproveWithdrawal(_ context.Context, withdrawalID, notes string) (*modeldto.Withdrawal, error) {
	return &modeldto.Withdrawal{ID: withdrawalID, Status: "APPROVED", Notes: notes}, nil
}

func (s *fakeSettlement) RejectWithdrawal(_ context.Context, withdrawalID, notes string) (*modeldto.Withdrawal, error) {
	return &modeldto.Withdrawal{ID: withdrawalID, Status: "REJECTED", Notes: notes}, nil
}

func (s *fakeSettlement) GetBalance(_ context.Context, _ string) (*modeldto.Balance, error) {
	return &modeldto.Balance{Withdrawable: 60, PendingAmount: 40}, nil
}

func (s *fakeSettlement) GetWithdrawals(_ context.Context, _ string) ([]modeldto.Withdrawal, error) {
	return nil, nil
}

func (s *fakeSettlement) GetPendingWithdrawals(_ context.Context) ([]modeldto.Withdrawal, error) {
	return nil, nil
}

func (s *fakeSettlement) GetLedger(_ context.Context, _ string) ([]modeldto.LedgerEntry, error) {
	return nil, nil
}

type fakeReconciler struct {
	err error
}

func (r *fakeReconciler) HandleCallback(_ context.Context, _ string, _ []byte, _ http.Header) error {
	return r.err
}

func newTestRouter(t *testing.T, svc *fakeSettlement, rec *fakeReconciler) *chi.Mux {
	t.Helper()
	log := zerolog.Nop()
	h, err := InitHandlers(svc, rec, &config.ServerConfig{}, &log)
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Post("/api/member/withdrawals", h.HandleNewWithdrawal())
	r.Get("/api/member/withdrawals", h.HandleGetWithdrawals())
	r.Post("/api/member/withdrawals/{withdrawalID}/cancel", h.HandleCancelWithdrawal())
	r.Get("/api/member/balance", h.HandleGetBalance())
	r.Post("/api/admin/withdrawals/{withdrawalID}", h.HandleAdminAction())
	r.Post("/api/callbacks/{provider}", h.HandleProviderCallback())
	return r
}

func memberRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Authorization", "Bearer good")
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestHandleNewWithdrawalCreated(t *testing.T) {
	router := newTestRouter(t, &fakeSettlement{}, &fakeReconciler{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, memberRequest(http.MethodPost, "/api/member/withdrawals", `{"amount":50,"destination":"79927398713"}`))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"wd-1"`)
}

func TestHandleNewWithdrawalUnauthorized(t *testing.T) {
	router := newTestRouter(t, &fakeSettlement{}, &fakeReconciler{})
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/member/withdrawals", strings.NewReader(`{}`))
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleNewWithdrawalStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"illegal amount", &serviceErrors.ServiceIllegalAmount{Msg: "illegal withdrawal amount 0"}, http.StatusUnprocessableEntity},
		{"illegal destination", &serviceErrors.ServiceIllegalDestination{Msg: "illegal destination account 1234"}, http.StatusUnprocessableEntity},
		{"below minimum", &serviceErrors.ServiceBelowMinimum{Msg: "amount 5 is below the minimum payout of 10"}, http.StatusUnprocessableEntity},
		{"weekly cap", &serviceErrors.ServiceLimitExceeded{Msg: "weekly withdrawal cap of 5 is reached"}, http.StatusTooManyRequests},
		{"restricted account", &serviceErrors.ServiceRestrictedAccount{Msg: "account of user1 is under a trust restriction"}, http.StatusForbidden},
		{"not enough funds", &storageErrors.NotEnoughFundsError{UserID: "user1", Amount: 50}, http.StatusPaymentRequired},
		{"unknown member", &storageErrors.NotFoundError{}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, &fakeSettlement{createErr: tc.err}, &fakeReconciler{})
			w := httptest.NewRecorder()
			router.ServeHTTP(w, memberRequest(http.MethodPost, "/api/member/withdrawals", `{"amount":50,"destination":"79927398713"}`))
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestHandleGetWithdrawalsNoContent(t *testing.T) {
	router := newTestRouter(t, &fakeSettlement{}, &fakeReconciler{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, memberRequest(http.MethodGet, "/api/member/withdrawals", ""))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandleCancelWithdrawalConflict(t *testing.T) {
	svc := &fakeSettlement{cancelErr: &storageErrors.StateConflictError{ID: "wd-1", Status: "PROCESSING"}}
	router := newTestRouter(t, svc, &fakeReconciler{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, memberRequest(http.MethodPost, "/api/member/withdrawals/wd-1/cancel", ""))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleGetBalance(t *testing.T) {
	router := newTestRouter(t, &fakeSettlement{}, &fakeReconciler{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, memberRequest(http.MethodGet, "/api/member/balance", ""))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"withdrawable":60`)
}

func TestHandleAdminActionUnknownVerb(t *testing.T) {
	router := newTestRouter(t, &fakeSettlement{}, &fakeReconciler{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, memberRequest(http.MethodPost, "/api/admin/withdrawals/wd-1", `{"action":"escalate"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAdminActionApprove(t *testing.T) {
	router := newTestRouter(t, &fakeSettlement{}, &fakeReconciler{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, memberRequest(http.MethodPost, "/api/admin/withdrawals/wd-1", `{"action":"approve","notes":"checked"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"APPROVED"`)
}

func TestHandleProviderCallbackStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"acknowledged", nil, http.StatusOK},
		{"unknown provider", &reconcilerErrors.UnknownProviderError{Provider: "acme"}, http.StatusNotFound},
		{"bad signature", &providerErrors.SignatureError{Provider: "swiftpay"}, http.StatusUnauthorized},
		{"malformed payload", &providerErrors.MalformedCallbackError{Provider: "swiftpay", Err: errors.New("bad json")}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, &fakeSettlement{}, &fakeReconciler{err: tc.err})
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/callbacks/swiftpay", strings.NewReader(`{}`))
			router.ServeHTTP(w, r)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}
