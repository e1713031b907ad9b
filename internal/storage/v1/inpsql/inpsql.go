// Package inpsql provides PSQL-backed persistence for wallets, withdrawals
// and the append-only settlement ledger.
package inpsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danilovkiri/dk-go-settler/internal/config"
	"github.com/danilovkiri/dk-go-settler/internal/models/modelstorage"
	storageErrors "github.com/danilovkiri/dk-go-settler/internal/storage/v1/errors"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/rs/zerolog"
)

type Storage struct {
	Cfg *config.StorageConfig
	DB  *sql.DB
	log *zerolog.Logger
}

// InitStorage establishes a DB connection, bootstraps the schema and arms a
// closer goroutine bound to the service context.
func InitStorage(ctx context.Context, cfg *config.StorageConfig, log *zerolog.Logger, wg *sync.WaitGroup) (*Storage, error) {
	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("")
	}
	st := Storage{
		Cfg: cfg,
		DB:  db,
		log: log,
	}
	err = st.createTables(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("")
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		err := st.DB.Close()
		if err != nil {
			st.log.Error().Err(err).Msg("could not close DB connection")
			return
		}
		st.log.Info().Msg("PSQL DB connection was closed")
	}()
	log.Info().Msg("PSQL DB connection was established")
	return &st, nil
}

// GetMember retrieves a member profile used for trust and tier checks.
func (s *Storage) GetMember(ctx context.Context, userID string) (*modelstorage.MemberStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT id, user_id, rank_tier, trust_restricted FROM members WHERE user_id = $1")
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan *modelstorage.MemberStorageEntry)
	chanEr := make(chan error)
	go func() {
		var queryOutput modelstorage.MemberStorageEntry
		err := selectStmt.QueryRowContext(ctx, userID).Scan(&queryOutput.ID, &queryOutput.UserID, &queryOutput.RankTier, &queryOutput.TrustRestricted)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				chanEr <- &storageErrors.NotFoundError{Err: err}
			default:
				chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			}
			return
		}
		chanOk <- &queryOutput
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("getting member failed for %s", userID))
		return nil, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("getting member failed for %s", userID))
		return nil, methodErr
	case member := <-chanOk:
		return member, nil
	}
}

// GetWallet retrieves the current wallet balances of one member.
func (s *Storage) GetWallet(ctx context.Context, userID string) (*modelstorage.WalletStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT id, user_id, withdrawable, pending_amount, locked_amount, total_earned FROM wallets WHERE user_id = $1")
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan *modelstorage.WalletStorageEntry)
	chanEr := make(chan error)
	go func() {
		var queryOutput modelstorage.WalletStorageEntry
		err := selectStmt.QueryRowContext(ctx, userID).Scan(&queryOutput.ID, &queryOutput.UserID, &queryOutput.Withdrawable, &queryOutput.PendingAmount, &queryOutput.LockedAmount, &queryOutput.TotalEarned)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				chanEr <- &storageErrors.NotFoundError{Err: err}
			default:
				chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			}
			return
		}
		chanOk <- &queryOutput
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("getting wallet failed for %s", userID))
		return nil, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("getting wallet failed for %s", userID))
		return nil, methodErr
	case wallet := <-chanOk:
		return wallet, nil
	}
}

// CreditWallet increases withdrawable and total_earned and appends a CREDIT
// ledger row. Missing wallets are created on first credit.
func (s *Storage) CreditWallet(ctx context.Context, userID string, amount float64, source string) error {
	chanOk := make(chan bool)
	chanEr := make(chan error)
	go func() {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer tx.Rollback()
		res, err := tx.ExecContext(ctx, "UPDATE wallets SET withdrawable = withdrawable + $1, total_earned = total_earned + $1 WHERE user_id = $2", amount, userID)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		nRows, _ := res.RowsAffected()
		if nRows == 0 {
			_, err = tx.ExecContext(ctx, "INSERT INTO wallets (user_id, withdrawable, pending_amount, locked_amount, total_earned) VALUES ($1, $2, 0, 0, $2)", userID, amount)
			if err != nil {
				chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
				return
			}
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO ledger_entries (user_id, withdrawal_id, entry_type, amount, recorded_at) VALUES ($1, '', $2, $3, $4)", userID, modelstorage.EntryTypeCredit, amount, time.Now())
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		if err = tx.Commit(); err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- true
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("crediting wallet failed for %s", userID))
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("crediting wallet failed for %s", userID))
		return methodErr
	case <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("crediting wallet done for %s (%s)", userID, source))
		return nil
	}
}

// CreateWithdrawal reserves funds and creates a withdrawal in one transaction:
// a conditional decrement of withdrawable guards against concurrent overdraw,
// the withdrawal row is inserted in the status decided by the caller, and a
// WITHDRAWAL_REQUEST ledger row is appended. A failed reservation leaves no
// partial record.
func (s *Storage) CreateWithdrawal(ctx context.Context, entry modelstorage.WithdrawalStorageEntry) error {
	chanOk := make(chan bool)
	chanEr := make(chan error)
	go func() {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer tx.Rollback()
		res, err := tx.ExecContext(ctx, "UPDATE wallets SET withdrawable = withdrawable - $1, pending_amount = pending_amount + $1 WHERE user_id = $2 AND withdrawable >= $1", entry.Amount, entry.UserID)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		nRows, _ := res.RowsAffected()
		if nRows == 0 {
			var exists bool
			err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM wallets WHERE user_id = $1)", entry.UserID).Scan(&exists)
			if err != nil {
				chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
				return
			}
			if !exists {
				chanEr <- &storageErrors.NotFoundError{Err: sql.ErrNoRows}
				return
			}
			chanEr <- &storageErrors.NotEnoughFundsError{UserID: entry.UserID, Amount: entry.Amount}
			return
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO withdrawals (withdrawal_id, user_id, amount, destination, status, failure_reason, notes, requested_at) VALUES ($1, $2, $3, $4, $5, '', $6, $7)",
			entry.WithdrawalID, entry.UserID, entry.Amount, entry.Destination, entry.Status, entry.Notes, entry.RequestedAt)
		if err != nil {
			if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == pgerrcode.UniqueViolation {
				chanEr <- &storageErrors.AlreadyExistsError{Err: err, ID: entry.WithdrawalID}
				return
			}
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO ledger_entries (user_id, withdrawal_id, entry_type, amount, recorded_at) VALUES ($1, $2, $3, $4, $5)",
			entry.UserID, entry.WithdrawalID, modelstorage.EntryTypeRequest, -entry.Amount, time.Now())
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		if err = tx.Commit(); err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- true
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("creating withdrawal failed for %s", entry.UserID))
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("creating withdrawal failed for %s", entry.UserID))
		return methodErr
	case <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("creating withdrawal %s done for %s", entry.WithdrawalID, entry.UserID))
		return nil
	}
}

// GetWithdrawal retrieves one withdrawal by its identifier.
func (s *Storage) GetWithdrawal(ctx context.Context, withdrawalID string) (*modelstorage.WithdrawalStorageEntry, error) {
	return s.getWithdrawalWhere(ctx, "withdrawal_id = $1", withdrawalID)
}

// GetWithdrawalByReference retrieves one withdrawal by the provider-issued
// external reference.
func (s *Storage) GetWithdrawalByReference(ctx context.Context, externalReference string) (*modelstorage.WithdrawalStorageEntry, error) {
	return s.getWithdrawalWhere(ctx, "external_reference = $1", externalReference)
}

func (s *Storage) getWithdrawalWhere(ctx context.Context, where, arg string) (*modelstorage.WithdrawalStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT id, withdrawal_id, user_id, amount, destination, status, external_reference, failure_reason, notes, requested_at, processed_at FROM withdrawals WHERE "+where)
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan *modelstorage.WithdrawalStorageEntry)
	chanEr := make(chan error)
	go func() {
		var queryOutput modelstorage.WithdrawalStorageEntry
		err := selectStmt.QueryRowContext(ctx, arg).Scan(&queryOutput.ID, &queryOutput.WithdrawalID, &queryOutput.UserID, &queryOutput.Amount, &queryOutput.Destination, &queryOutput.Status, &queryOutput.ExternalReference, &queryOutput.FailureReason, &queryOutput.Notes, &queryOutput.RequestedAt, &queryOutput.ProcessedAt)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				chanEr <- &storageErrors.NotFoundError{Err: err}
			default:
				chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			}
			return
		}
		chanOk <- &queryOutput
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("getting withdrawal failed")
		return nil, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		return nil, methodErr
	case withdrawal := <-chanOk:
		return withdrawal, nil
	}
}

// GetWithdrawals retrieves all withdrawals of one member.
func (s *Storage) GetWithdrawals(ctx context.Context, userID string) ([]modelstorage.WithdrawalStorageEntry, error) {
	return s.getWithdrawalsWhere(ctx, "user_id = $1", userID)
}

// GetPendingWithdrawals retrieves the manual review queue.
func (s *Storage) GetPendingWithdrawals(ctx context.Context) ([]modelstorage.WithdrawalStorageEntry, error) {
	return s.getWithdrawalsWhere(ctx, "status = $1", modelstorage.StatusPending)
}

func (s *Storage) getWithdrawalsWhere(ctx context.Context, where, arg string) ([]modelstorage.WithdrawalStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT id, withdrawal_id, user_id, amount, destination, status, external_reference, failure_reason, notes, requested_at, processed_at FROM withdrawals WHERE "+where)
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan []modelstorage.WithdrawalStorageEntry)
	chanEr := make(chan error)
	go func() {
		rows, err := selectStmt.QueryContext(ctx, arg)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer rows.Close()
		var queryOutput []modelstorage.WithdrawalStorageEntry
		for rows.Next() {
			var queryOutputRow modelstorage.WithdrawalStorageEntry
			err = rows.Scan(&queryOutputRow.ID, &queryOutputRow.WithdrawalID, &queryOutputRow.UserID, &queryOutputRow.Amount, &queryOutputRow.Destination, &queryOutputRow.Status, &queryOutputRow.ExternalReference, &queryOutputRow.FailureReason, &queryOutputRow.Notes, &queryOutputRow.RequestedAt, &queryOutputRow.ProcessedAt)
			if err != nil {
				chanEr <- &storageErrors.ScanningPSQLError{Err: err}
				return
			}
			queryOutput = append(queryOutput, queryOutputRow)
		}
		err = rows.Err()
		if err != nil {
			chanEr <- &storageErrors.ScanningPSQLError{Err: err}
			return
		}
		chanOk <- queryOutput
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("getting withdrawals failed")
		return nil, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("getting withdrawals failed")
		return nil, methodErr
	case withdrawals := <-chanOk:
		return withdrawals, nil
	}
}

// CountRecentWithdrawals counts withdrawals of one member requested after the
// given instant, rejected and cancelled ones excluded. Feeds the weekly cap.
func (s *Storage) CountRecentWithdrawals(ctx context.Context, userID string, since time.Time) (int, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT COUNT(*) FROM withdrawals WHERE user_id = $1 AND requested_at > $2 AND status NOT IN ($3, $4)")
	if err != nil {
		return 0, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan int)
	chanEr := make(chan error)
	go func() {
		var count int
		err := selectStmt.QueryRowContext(ctx, userID, since, modelstorage.StatusRejected, modelstorage.StatusCancelled).Scan(&count)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- count
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("counting withdrawals failed for %s", userID))
		return 0, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("counting withdrawals failed for %s", userID))
		return 0, methodErr
	case count := <-chanOk:
		return count, nil
	}
}

// ApproveWithdrawal flips PENDING to APPROVED. Any other current status
// yields a StateConflictError.
func (s *Storage) ApproveWithdrawal(ctx context.Context, withdrawalID, notes string) error {
	chanOk := make(chan bool)
	chanEr := make(chan error)
	go func() {
		res, err := s.DB.ExecContext(ctx, "UPDATE withdrawals SET status = $2, notes = $3 WHERE withdrawal_id = $1 AND status = $4",
			withdrawalID, modelstorage.StatusApproved, notes, modelstorage.StatusPending)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		nRows, _ := res.RowsAffected()
		if nRows == 0 {
			chanEr <- s.transitionConflict(ctx, withdrawalID)
			return
		}
		chanOk <- true
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("approving withdrawal %s failed", withdrawalID))
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("approving withdrawal %s failed", withdrawalID))
		return methodErr
	case <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("approving withdrawal %s done", withdrawalID))
		return nil
	}
}

// RejectWithdrawal flips PENDING to REJECTED, releases the reservation and
// appends a WITHDRAWAL_REFUND ledger row, all in one transaction.
func (s *Storage) RejectWithdrawal(ctx context.Context, withdrawalID, notes string) error {
	return s.voidWithdrawal(ctx, withdrawalID, modelstorage.StatusRejected,
		"UPDATE withdrawals SET status = $2, notes = $3 WHERE withdrawal_id = $1 AND status = $4 RETURNING user_id, amount",
		withdrawalID, modelstorage.StatusRejected, notes, modelstorage.StatusPending)
}

// CancelWithdrawal is the member-initiated counterpart of RejectWithdrawal,
// additionally scoped to the owning member. Permitted only while PENDING.
func (s *Storage) CancelWithdrawal(ctx context.Context, withdrawalID, userID string) error {
	return s.voidWithdrawal(ctx, withdrawalID, modelstorage.StatusCancelled,
		"UPDATE withdrawals SET status = $2 WHERE withdrawal_id = $1 AND user_id = $3 AND status = $4 RETURNING user_id, amount",
		withdrawalID, modelstorage.StatusCancelled, userID, modelstorage.StatusPending)
}

// voidWithdrawal applies a PENDING-only terminal transition with a refund.
// The conditional UPDATE is the sole guard, so two concurrent attempts
// cannot both release the reservation.
func (s *Storage) voidWithdrawal(ctx context.Context, withdrawalID, newStatus, query string, args ...interface{}) error {
	chanOk := make(chan bool)
	chanEr := make(chan error)
	go func() {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer tx.Rollback()
		var userID string
		var amount float64
		err = tx.QueryRowContext(ctx, query, args...).Scan(&userID, &amount)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				chanEr <- s.transitionConflict(ctx, withdrawalID)
				return
			}
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		err = s.refundInTx(ctx, tx, userID, withdrawalID, amount)
		if err != nil {
			chanEr <- err
			return
		}
		if err = tx.Commit(); err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- true
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("voiding withdrawal %s failed", withdrawalID))
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("voiding withdrawal %s failed", withdrawalID))
		return methodErr
	case <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("withdrawal %s set to %s, reservation released", withdrawalID, newStatus))
		return nil
	}
}

// MarkProcessing flips APPROVED to PROCESSING and records the provider-issued
// external reference.
func (s *Storage) MarkProcessing(ctx context.Context, withdrawalID, externalReference string) error {
	chanOk := make(chan bool)
	chanEr := make(chan error)
	go func() {
		res, err := s.DB.ExecContext(ctx, "UPDATE withdrawals SET status = $2, external_reference = $3 WHERE withdrawal_id = $1 AND status = $4",
			withdrawalID, modelstorage.StatusProcessing, externalReference, modelstorage.StatusApproved)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		nRows, _ := res.RowsAffected()
		if nRows == 0 {
			chanEr <- s.transitionConflict(ctx, withdrawalID)
			return
		}
		chanOk <- true
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("marking withdrawal %s as processing failed", withdrawalID))
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("marking withdrawal %s as processing failed", withdrawalID))
		return methodErr
	case <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("withdrawal %s is processing under reference %s", withdrawalID, externalReference))
		return nil
	}
}

// CompleteWithdrawal flips APPROVED or PROCESSING to COMPLETED and finalizes
// the debit: pending_amount drops by the withdrawal amount, withdrawable is
// untouched. The request ledger row stays as the permanent -amount record.
func (s *Storage) CompleteWithdrawal(ctx context.Context, withdrawalID, externalReference string, processedAt time.Time) error {
	chanOk := make(chan bool)
	chanEr := make(chan error)
	go func() {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer tx.Rollback()
		var userID string
		var amount float64
		err = tx.QueryRowContext(ctx, "UPDATE withdrawals SET status = $2, processed_at = $3, external_reference = COALESCE(NULLIF($4, ''), external_reference) WHERE withdrawal_id = $1 AND status IN ($5, $6) RETURNING user_id, amount",
			withdrawalID, modelstorage.StatusCompleted, processedAt, externalReference, modelstorage.StatusApproved, modelstorage.StatusProcessing).Scan(&userID, &amount)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				chanEr <- s.transitionConflict(ctx, withdrawalID)
				return
			}
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		_, err = tx.ExecContext(ctx, "UPDATE wallets SET pending_amount = pending_amount - $1 WHERE user_id = $2", amount, userID)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		if err = tx.Commit(); err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- true
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("completing withdrawal %s failed", withdrawalID))
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("completing withdrawal %s failed", withdrawalID))
		return methodErr
	case <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("withdrawal %s completed", withdrawalID))
		return nil
	}
}

// FailWithdrawal flips APPROVED or PROCESSING to FAILED, refunds the wallet
// and appends a WITHDRAWAL_REFUND ledger row. The conditional UPDATE makes a
// duplicate failure delivery a no-op conflict rather than a double refund.
func (s *Storage) FailWithdrawal(ctx context.Context, withdrawalID, reason string) error {
	chanOk := make(chan bool)
	chanEr := make(chan error)
	go func() {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer tx.Rollback()
		var userID string
		var amount float64
		err = tx.QueryRowContext(ctx, "UPDATE withdrawals SET status = $2, failure_reason = $3, processed_at = $4 WHERE withdrawal_id = $1 AND status IN ($5, $6) RETURNING user_id, amount",
			withdrawalID, modelstorage.StatusFailed, reason, time.Now(), modelstorage.StatusApproved, modelstorage.StatusProcessing).Scan(&userID, &amount)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				chanEr <- s.transitionConflict(ctx, withdrawalID)
				return
			}
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		err = s.refundInTx(ctx, tx, userID, withdrawalID, amount)
		if err != nil {
			chanEr <- err
			return
		}
		if err = tx.Commit(); err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- true
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("failing withdrawal %s failed", withdrawalID))
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("failing withdrawal %s failed", withdrawalID))
		return methodErr
	case <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("withdrawal %s failed, reservation released", withdrawalID))
		return nil
	}
}

// GetLedgerEntries retrieves the audit trail of one member.
func (s *Storage) GetLedgerEntries(ctx context.Context, userID string) ([]modelstorage.LedgerStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT id, user_id, withdrawal_id, entry_type, amount, recorded_at FROM ledger_entries WHERE user_id = $1 ORDER BY recorded_at")
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan []modelstorage.LedgerStorageEntry)
	chanEr := make(chan error)
	go func() {
		rows, err := selectStmt.QueryContext(ctx, userID)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer rows.Close()
		var queryOutput []modelstorage.LedgerStorageEntry
		for rows.Next() {
			var queryOutputRow modelstorage.LedgerStorageEntry
			err = rows.Scan(&queryOutputRow.ID, &queryOutputRow.UserID, &queryOutputRow.WithdrawalID, &queryOutputRow.EntryType, &queryOutputRow.Amount, &queryOutputRow.RecordedAt)
			if err != nil {
				chanEr <- &storageErrors.ScanningPSQLError{Err: err}
				return
			}
			queryOutput = append(queryOutput, queryOutputRow)
		}
		err = rows.Err()
		if err != nil {
			chanEr <- &storageErrors.ScanningPSQLError{Err: err}
			return
		}
		chanOk <- queryOutput
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("getting ledger entries failed for %s", userID))
		return nil, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("getting ledger entries failed for %s", userID))
		return nil, methodErr
	case entries := <-chanOk:
		return entries, nil
	}
}

// refundInTx moves amount from pending_amount back to withdrawable and
// appends the refund ledger row. Must only run after a conditional status
// transition matched, which is what makes the refund single-shot.
func (s *Storage) refundInTx(ctx context.Context, tx *sql.Tx, userID, withdrawalID string, amount float64) error {
	_, err := tx.ExecContext(ctx, "UPDATE wallets SET withdrawable = withdrawable + $1, pending_amount = pending_amount - $1 WHERE user_id = $2", amount, userID)
	if err != nil {
		return &storageErrors.ExecutionPSQLError{Err: err}
	}
	_, err = tx.ExecContext(ctx, "INSERT INTO ledger_entries (user_id, withdrawal_id, entry_type, amount, recorded_at) VALUES ($1, $2, $3, $4, $5)",
		userID, withdrawalID, modelstorage.EntryTypeRefund, amount, time.Now())
	if err != nil {
		return &storageErrors.ExecutionPSQLError{Err: err}
	}
	return nil
}

// transitionConflict resolves a zero-row conditional UPDATE into either a
// NotFoundError or a StateConflictError carrying the status found.
func (s *Storage) transitionConflict(ctx context.Context, withdrawalID string) error {
	var status string
	err := s.DB.QueryRowContext(ctx, "SELECT status FROM withdrawals WHERE withdrawal_id = $1", withdrawalID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &storageErrors.NotFoundError{Err: err}
		}
		return &storageErrors.ExecutionPSQLError{Err: err}
	}
	return &storageErrors.StateConflictError{ID: withdrawalID, Status: status}
}

func (s *Storage) createTables(ctx context.Context) error {
	var queries []string
	query := `CREATE TABLE IF NOT EXISTS members (
		id               BIGSERIAL NOT NULL,
		user_id          TEXT      NOT NULL UNIQUE,
		rank_tier        TEXT      NOT NULL,
		trust_restricted BOOLEAN   NOT NULL DEFAULT FALSE
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS wallets (
		id             BIGSERIAL      NOT NULL,
		user_id        TEXT           NOT NULL UNIQUE,
		withdrawable   NUMERIC(12, 2) NOT NULL,
		pending_amount NUMERIC(12, 2) NOT NULL,
		locked_amount  NUMERIC(12, 2) NOT NULL,
		total_earned   NUMERIC(12, 2) NOT NULL
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS withdrawals (
		id                 BIGSERIAL      NOT NULL,
		withdrawal_id      TEXT           NOT NULL UNIQUE,
		user_id            TEXT           NOT NULL,
		amount             NUMERIC(12, 2) NOT NULL,
		destination        TEXT           NOT NULL,
		status             TEXT           NOT NULL,
		external_reference TEXT           UNIQUE,
		failure_reason     TEXT           NOT NULL DEFAULT '',
		notes              TEXT           NOT NULL DEFAULT '',
		requested_at       TIMESTAMPTZ    NOT NULL,
		processed_at       TIMESTAMPTZ
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS ledger_entries (
		id            BIGSERIAL      NOT NULL,
		user_id       TEXT           NOT NULL,
		withdrawal_id TEXT           NOT NULL DEFAULT '',
		entry_type    TEXT           NOT NULL,
		amount        NUMERIC(12, 2) NOT NULL,
		recorded_at   TIMESTAMPTZ    NOT NULL
	);`
	queries = append(queries, query)
	for _, subquery := range queries {
		_, err := s.DB.ExecContext(ctx, subquery)
		if err != nil {
			return err
		}
	}
	return nil
}
