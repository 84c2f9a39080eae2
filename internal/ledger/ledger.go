// Package ledger keeps per-user credit balances.
//
// A Store owns the persistent mapping from user id to balance. Service
// layers the fixed generation cost and per-user serialisation on top of
// any Store.
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInsufficientCredits = errors.New("ledger: insufficient credits")
	ErrInvalidAmount       = errors.New("ledger: amount must be positive")
	ErrEmptyUserID         = errors.New("ledger: empty user id")
)

// Store is the persistence contract shared by every ledger backend.
//
// Get, Debit and Credit create an absent user with the store's free
// balance before operating. Debit must check and write atomically so a
// balance never goes below zero.
type Store interface {
	Get(ctx context.Context, userID string) (int64, error)
	Debit(ctx context.Context, userID string, amount int64) (int64, error)
	Credit(ctx context.Context, userID string, amount int64) (int64, error)
	// ApplyPayment credits amount once per intentID. A repeated intentID
	// leaves the balance untouched and reports applied=false.
	ApplyPayment(ctx context.Context, intentID, userID string, amount int64) (balance int64, applied bool, err error)
	Close() error
}

// AppliedPayment records a payment intent whose credits reached the ledger.
type AppliedPayment struct {
	IntentID  string    `json:"intentId"`
	UserID    string    `json:"userId"`
	Credits   int64     `json:"credits"`
	AppliedAt time.Time `json:"appliedAt"`
}

func validate(userID string, amount int64) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
