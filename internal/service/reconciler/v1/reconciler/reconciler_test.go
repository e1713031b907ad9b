package reconciler

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/danilovkiri/dk-go-settler/internal/config"
	"github.com/danilovkiri/dk-go-settler/internal/models/modelstorage"
	"github.com/danilovkiri/dk-go-settler/internal/provider"
	providerErrors "github.com/danilovkiri/dk-go-settler/internal/provider/errors"
	"github.com/danilovkiri/dk-go-settler/internal/provider/swiftpay"
	serviceErrors "github.com/danilovkiri/dk-go-settler/internal/service/reconciler/v1/errors"
	storageErrors "github.com/danilovkiri/dk-go-settler/internal/storage/v1/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const callbackSecret = "topsecret"

type callbackStorage struct {
	mu           sync.Mutex
	byReference  map[string]modelstorage.WithdrawalStorageEntry
	completedErr error
	failedErr    error
	completedFor string
	failedFor    string
	failedReason string
	lookupHits   int
}

func newCallbackStorage(entries ...modelstorage.WithdrawalStorageEntry) *callbackStorage {
	st := &callbackStorage{byReference: make(map[string]modelstorage.WithdrawalStorageEntry)}
	for _, entry := range entries {
		st.byReference[entry.ExternalReference.String] = entry
	}
	return st
}

func (s *callbackStorage) GetWithdrawalByReference(_ context.Context, externalReference string) (*modelstorage.WithdrawalStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookupHits++
	entry, ok := s.byReference[externalReference]
	if !ok {
		return nil, &storageErrors.NotFoundError{}
	}
	return &entry, nil
}

func (s *callbackStorage) CompleteWithdrawal(_ context.Context, withdrawalID, _ string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completedErr != nil {
		return s.completedErr
	}
	s.completedFor = withdrawalID
	return nil
}

func (s *callbackStorage) FailWithdrawal(_ context.Context, withdrawalID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failedErr != nil {
		return s.failedErr
	}
	s.failedFor = withdrawalID
	s.failedReason = reason
	return nil
}

func (s *callbackStorage) GetMember(_ context.Context, _ string) (*modelstorage.MemberStorageEntry, error) {
	return nil, &storageErrors.NotFoundError{}
}

func (s *callbackStorage) GetWallet(_ context.Context, _ string) (*modelstorage.WalletStorageEntry, error) {
	return nil, &storageErrors.NotFoundError{}
}

func (s *callbackStorage) CreditWallet(_ context.Context, _ string, _ float64, _ string) error {
	return nil
}

func (s *callbackStorage) CreateWithdrawal(_ context.Context, _ modelstorage.WithdrawalStorageEntry) error {
	return nil
}

func (s *callbackStorage) GetWithdrawal(_ context.Context, _ string) (*modelstorage.WithdrawalStorageEntry, error) {
	return nil, &storageErrors.NotFoundError{}
}

func (s *callbackStorage) GetWithdrawals(_ context.Context, _ string) ([]modelstorage.WithdrawalStorageEntry, error) {
	return nil, nil
}

func (s *callbackStorage) GetPendingWithdrawals(_ context.Context) ([]modelstorage.WithdrawalStorageEntry, error) {
	return nil, nil
}

func (s *callbackStorage) CountRecentWithdrawals(_ context.Context, _ string, _ time.Time) (int, error) {
	return 0, nil
}

func (s *callbackStorage) ApproveWithdrawal(_ context.Context, _, _ string) error { return nil }
func (s *callbackStorage) MarkProcessing(_ context.Context, _, _ string) error    { return nil }
func (s *callbackStorage) RejectWithdrawal(_ context.Context, _, _ string) error  { return nil }
func (s *callbackStorage) CancelWithdrawal(_ context.Context, _, _ string) error  { return nil }

func (s *callbackStorage) GetLedgerEntries(_ context.Context, _ string) ([]modelstorage.LedgerStorageEntry, error) {
	return nil, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	types []string
}

func (n *recordingNotifier) Notify(_, notificationType, _, _ string, _ map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.types = append(n.types, notificationType)
}

func processingWithdrawal() modelstorage.WithdrawalStorageEntry {
	return modelstorage.WithdrawalStorageEntry{
		WithdrawalID:      "wd-1",
		UserID:            "user1",
		Amount:            50,
		Status:            modelstorage.StatusProcessing,
		ExternalReference: sql.NullString{String: "sp-100", Valid: true},
	}
}

func newTestReconciler(t *testing.T, st *callbackStorage) (*Reconciler, *recordingNotifier) {
	t.Helper()
	log := zerolog.Nop()
	adapter := swiftpay.New(config.ProviderCredentials{Address: "http://localhost", APIKey: "key", CallbackSecret: callbackSecret}, &log)
	ntf := &recordingNotifier{}
	rec, err := InitReconciler(st, []provider.PayoutProvider{adapter}, ntf, &log)
	require.NoError(t, err)
	return rec, ntf
}

func signedHeader(body []byte) http.Header {
	header := http.Header{}
	header.Set("X-Swiftpay-Signature", swiftpay.Sign(body, callbackSecret))
	return header
}

func TestHandleCallbackUnknownProvider(t *testing.T) {
	rec, _ := newTestReconciler(t, newCallbackStorage())
	err := rec.HandleCallback(context.Background(), "acme", []byte(`{}`), http.Header{})
	var unknownProvider *serviceErrors.UnknownProviderError
	require.ErrorAs(t, err, &unknownProvider)
}

func TestHandleCallbackSignatureRejected(t *testing.T) {
	st := newCallbackStorage(processingWithdrawal())
	rec, _ := newTestReconciler(t, st)
	body := []byte(`{"payout_id":"sp-100","reference":"WD-wd-1","state":"paid"}`)
	header := http.Header{}
	header.Set("X-Swiftpay-Signature", swiftpay.Sign(body, "wrongsecret"))
	err := rec.HandleCallback(context.Background(), "swiftpay", body, header)
	var signatureError *providerErrors.SignatureError
	require.ErrorAs(t, err, &signatureError)
	assert.Equal(t, 0, st.lookupHits, "a forged callback must not reach storage")
	assert.Empty(t, st.completedFor)
	assert.Empty(t, st.failedFor)
}

func TestHandleCallbackMalformedRejected(t *testing.T) {
	rec, _ := newTestReconciler(t, newCallbackStorage())
	body := []byte(`{"payout_id":"sp-100","state":"partial"}`)
	err := rec.HandleCallback(context.Background(), "swiftpay", body, signedHeader(body))
	var malformed *providerErrors.MalformedCallbackError
	require.ErrorAs(t, err, &malformed)
}

func TestHandleCallbackSuccessCompletes(t *testing.T) {
	st := newCallbackStorage(processingWithdrawal())
	rec, ntf := newTestReconciler(t, st)
	body := []byte(`{"payout_id":"sp-100","reference":"WD-wd-1","state":"paid"}`)
	require.NoError(t, rec.HandleCallback(context.Background(), "swiftpay", body, signedHeader(body)))
	assert.Equal(t, "wd-1", st.completedFor)
	require.Len(t, ntf.types, 1)
	assert.Equal(t, "withdrawal_completed", ntf.types[0])
}

func TestHandleCallbackFailureReleases(t *testing.T) {
	st := newCallbackStorage(processingWithdrawal())
	rec, ntf := newTestReconciler(t, st)
	body := []byte(`{"payout_id":"sp-100","reference":"WD-wd-1","state":"failed","failure_code":"account_closed"}`)
	require.NoError(t, rec.HandleCallback(context.Background(), "swiftpay", body, signedHeader(body)))
	assert.Equal(t, "wd-1", st.failedFor)
	assert.Equal(t, "account_closed", st.failedReason)
	require.Len(t, ntf.types, 1)
	assert.Equal(t, "withdrawal_failed", ntf.types[0])
}

func TestHandleCallbackDuplicateAcked(t *testing.T) {
	withdrawal := processingWithdrawal()
	withdrawal.Status = modelstorage.StatusFailed
	st := newCallbackStorage(withdrawal)
	st.failedErr = &storageErrors.StateConflictError{ID: "wd-1", Status: modelstorage.StatusFailed}
	rec, ntf := newTestReconciler(t, st)
	body := []byte(`{"payout_id":"sp-100","reference":"WD-wd-1","state":"failed","failure_code":"account_closed"}`)
	require.NoError(t, rec.HandleCallback(context.Background(), "swiftpay", body, signedHeader(body)), "a duplicate callback must be acknowledged without a second refund")
	assert.Empty(t, st.failedFor)
	assert.Len(t, ntf.types, 0)
}

func TestHandleCallbackUnknownReferenceAcked(t *testing.T) {
	st := newCallbackStorage()
	rec, ntf := newTestReconciler(t, st)
	body := []byte(`{"payout_id":"sp-404","reference":"WD-wd-404","state":"paid"}`)
	require.NoError(t, rec.HandleCallback(context.Background(), "swiftpay", body, signedHeader(body)))
	assert.Empty(t, st.completedFor)
	assert.Len(t, ntf.types, 0)
}
