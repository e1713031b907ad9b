// Package errors provides custom error types.

package errors

import (
	"fmt"
)

type (
	StatementPSQLError struct {
		Err error
	}
	ExecutionPSQLError struct {
		Err error
	}
	ScanningPSQLError struct {
		Err error
	}
	AlreadyExistsError struct {
		Err error
		ID  string
	}
	NotFoundError struct {
		Err error
	}
	ContextTimeoutExceededError struct {
		Err error
	}
	// NotEnoughFundsError is returned when a conditional reservation against
	// a wallet does not match, i.e. withdrawable < requested amount. It is a
	// user-visible rejection, not a system fault.
	NotEnoughFundsError struct {
		UserID string
		Amount float64
	}
	// StateConflictError is returned when a conditional status transition
	// matched no rows because the withdrawal is not in an eligible state.
	// Status carries the state found at the time of the attempt.
	StateConflictError struct {
		ID     string
		Status string
	}
)

func (e *StatementPSQLError) Error() string {
	return fmt.Sprintf("%s: could not compile", e.Err.Error())
}

func (e *ExecutionPSQLError) Error() string {
	return fmt.Sprintf("%s: could not execute", e.Err.Error())
}

func (e *ScanningPSQLError) Error() string {
	return fmt.Sprintf("%s: could not scan", e.Err.Error())
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s: already exists", e.ID)
}

func (e *NotFoundError) Error() string {
	return "requested data was not found"
}

func (e *ContextTimeoutExceededError) Error() string {
	return fmt.Sprintf("%s: context timeout exceeded", e.Err.Error())
}

func (e *NotEnoughFundsError) Error() string {
	return fmt.Sprintf("wallet of %s holds less than %.2f withdrawable", e.UserID, e.Amount)
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("withdrawal %s is in state %s which forbids the transition", e.ID, e.Status)
}
