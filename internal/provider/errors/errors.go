// Package errors provides custom error types.

package errors

import (
	"fmt"
)

type (
	// NotConfiguredError marks a provider with absent credentials; it fails
	// closed instead of attempting a call.
	NotConfiguredError struct {
		Provider string
	}
	// CallFailedError covers transport errors, timeouts and non-2xx or
	// unintelligible provider responses.
	CallFailedError struct {
		Provider string
		Err      error
		Msg      string
	}
	// SignatureError marks a callback whose authenticity could not be
	// verified. Treated as a security event by the caller.
	SignatureError struct {
		Provider string
	}
	// MalformedCallbackError marks an authentic callback whose payload could
	// not be interpreted.
	MalformedCallbackError struct {
		Provider string
		Err      error
	}
)

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("%s: provider credentials are not configured", e.Provider)
}

func (e *CallFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: payout call failed: %s", e.Provider, e.Err.Error())
	}
	return fmt.Sprintf("%s: payout call failed: %s", e.Provider, e.Msg)
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("%s: callback signature mismatch", e.Provider)
}

func (e *MalformedCallbackError) Error() string {
	return fmt.Sprintf("%s: callback payload could not be parsed: %s", e.Provider, e.Err.Error())
}
