// Package errors provides custom error types.

package errors

import (
	"fmt"
)

type (
	ServiceFoundNilArgument struct {
		Msg string
	}
	// UnknownProviderError marks a callback addressed to a provider the
	// engine does not know.
	UnknownProviderError struct {
		Provider string
	}
)

func (e *ServiceFoundNilArgument) Error() string {
	return e.Msg
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("%s: unknown payout provider", e.Provider)
}
