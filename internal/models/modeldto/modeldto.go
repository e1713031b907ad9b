// Package modeldto provides types for API data interchange.

package modeldto

type (
	NewWithdrawal struct {
		Amount      float64 `json:"amount"`
		Destination string  `json:"destination"`
	}
	Withdrawal struct {
		ID                string  `json:"id"`
		Amount            float64 `json:"amount"`
		Destination       string  `json:"destination"`
		Status            string  `json:"status"`
		ExternalReference string  `json:"external_reference,omitempty"`
		FailureReason     string  `json:"failure_reason,omitempty"`
		Notes             string  `json:"notes,omitempty"`
		RequestedAt       string  `json:"requested_at"`
		ProcessedAt       string  `json:"processed_at,omitempty"`
	}
	Balance struct {
		Withdrawable  float64 `json:"withdrawable"`
		PendingAmount float64 `json:"pending_amount"`
		LockedAmount  float64 `json:"locked_amount"`
		TotalEarned   float64 `json:"total_earned"`
	}
	LedgerEntry struct {
		WithdrawalID string  `json:"withdrawal_id,omitempty"`
		EntryType    string  `json:"entry_type"`
		Amount       float64 `json:"amount"`
		RecordedAt   string  `json:"recorded_at"`
	}
	AdminAction struct {
		Action string `json:"action"`
		Notes  string `json:"notes,omitempty"`
	}
)
