// Package errors provides custom error types.

package errors

type (
	ServiceFoundNilArgument struct {
		Msg string
	}
	// ServiceIllegalAmount marks a non-positive withdrawal amount.
	ServiceIllegalAmount struct {
		Msg string
	}
	// ServiceIllegalDestination marks a destination account that failed the
	// Luhn check.
	ServiceIllegalDestination struct {
		Msg string
	}
	// ServiceBelowMinimum marks an amount below the policy minimum payout.
	ServiceBelowMinimum struct {
		Msg string
	}
	// ServiceLimitExceeded marks a weekly withdrawal count at or above the
	// policy cap.
	ServiceLimitExceeded struct {
		Msg string
	}
	// ServiceRestrictedAccount marks a member under a trust restriction.
	ServiceRestrictedAccount struct {
		Msg string
	}
	// ServiceUnknownAction marks an unsupported admin action verb.
	ServiceUnknownAction struct {
		Msg string
	}
)

func (e *ServiceFoundNilArgument) Error() string {
	return e.Msg
}

func (e *ServiceIllegalAmount) Error() string {
	return e.Msg
}

func (e *ServiceIllegalDestination) Error() string {
	return e.Msg
}

func (e *ServiceBelowMinimum) Error() string {
	return e.Msg
}

func (e *ServiceLimitExceeded) Error() string {
	return e.Msg
}

func (e *ServiceRestrictedAccount) Error() string {
	return e.Msg
}

func (e *ServiceUnknownAction) Error() string {
	return e.Msg
}
