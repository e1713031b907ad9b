// Package modelqueue provides types for queueing pieces of data.

package modelqueue

type DispatchQueueEntry struct {
	WithdrawalID string
	UserID       string
	Amount       float64
	Destination  string
}
