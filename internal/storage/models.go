package storage

import (
	"time"
)

// UserCredit is one row of the credit ledger.
type UserCredit struct {
	UserID    string `gorm:"primaryKey;size:191"` // client-generated identifier
	Balance   int64  `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserCredit) TableName() string { return "user_credits" }

// AppliedPayment marks a payment intent whose credits were already added.
type AppliedPayment struct {
	IntentID  string `gorm:"primaryKey;size:191"`
	UserID    string `gorm:"size:191;not null;index"`
	Credits   int64  `gorm:"not null"`
	AppliedAt time.Time
}

func (AppliedPayment) TableName() string { return "applied_payments" }
