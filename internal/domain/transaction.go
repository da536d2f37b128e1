// Package domain defines the core interfaces and types for Kite.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransaction is returned when a submitted transaction fails
// validation. An invalid transaction is rejected before scoring; it is
// never reported as "low risk".
var ErrInvalidTransaction = errors.New("invalid transaction")

// Transaction represents an incoming transaction to be risk-scored.
// It is immutable once submitted.
type Transaction struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`

	// Financial details
	Amount float64 `json:"amount"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// Device fingerprint of the submitting client
	DeviceID string `json:"deviceId"`

	// Optional free-form tags
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
}

// Validate checks the structural invariants of a transaction.
func (t *Transaction) Validate() error {
	if t.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidTransaction)
	}
	if t.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %.2f", ErrInvalidTransaction, t.Amount)
	}
	return nil
}

// TransactionRequest is the API request payload for risk assessment.
type TransactionRequest struct {
	UserID      string  `json:"userId"`
	Amount      float64 `json:"amount"`
	DeviceID    string  `json:"deviceId"`
	Description string  `json:"description,omitempty"`
	Location    string  `json:"location,omitempty"`
}

// ToTransaction converts a request to a Transaction domain object.
func (r *TransactionRequest) ToTransaction() *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		UserID:      r.UserID,
		Amount:      r.Amount,
		Timestamp:   now,
		CreatedAt:   now,
		DeviceID:    r.DeviceID,
		Description: r.Description,
		Location:    r.Location,
	}
}
