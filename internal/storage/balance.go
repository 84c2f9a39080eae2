package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bonosa/MarsLife/internal/ledger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is a ledger.Store on SQLite through GORM.
type GormStore struct {
	sqlDB   *sql.DB
	db      *gorm.DB
	initial int64      // free credits for first-time users
	mu      sync.Mutex // SQLite allows one writer; serialise in-process writes
	logger  *zap.Logger
}

// OpenGormStore opens (and migrates) the SQLite ledger at dbPath.
func OpenGormStore(dbPath string, freeCredits int64, logger *zap.Logger) (*GormStore, error) {
	logger = logger.Named("sqlite_ledger")
	sqlDB, err := InitDB(dbPath, logger)
	if err != nil {
		return nil, err
	}
	gdb, err := OpenGorm(sqlDB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &GormStore{sqlDB: sqlDB, db: gdb, initial: freeCredits, logger: logger}, nil
}

// ensureUser inserts the free balance for an unseen user inside tx.
func (s *GormStore) ensureUser(tx *gorm.DB, userID string) error {
	now := time.Now().UTC()
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&UserCredit{
		UserID:    userID,
		Balance:   s.initial,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to create user credit record: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Info("Created new credit record for user", zap.String("user_id", userID), zap.Int64("credits", s.initial))
	}
	return nil
}

func currentBalance(tx *gorm.DB, userID string) (int64, error) {
	var row UserCredit
	if err := tx.Where("user_id = ?", userID).First(&row).Error; err != nil {
		return 0, fmt.Errorf("database error reading balance: %w", err)
	}
	return row.Balance, nil
}

func (s *GormStore) Get(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ledger.ErrEmptyUserID
	}
	var row UserCredit
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err == nil {
		return row.Balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("database error checking balance: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var balance int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureUser(tx, userID); err != nil {
			return err
		}
		balance, err = currentBalance(tx, userID)
		return err
	})
	return balance, err
}

func (s *GormStore) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	if userID == "" {
		return 0, ledger.ErrEmptyUserID
	}
	if amount <= 0 {
		return 0, ledger.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var balance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureUser(tx, userID); err != nil {
			return err
		}
		// Conditional update: matches no row when the balance is too low.
		result := tx.Model(&UserCredit{}).
			Where("user_id = ? AND balance >= ?", userID, amount).
			Updates(map[string]any{
				"balance":    gorm.Expr("balance - ?", amount),
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update user balance: %w", result.Error)
		}
		var err error
		balance, err = currentBalance(tx, userID)
		if err != nil {
			return err
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: have %d, need %d", ledger.ErrInsufficientCredits, balance, amount)
		}
		return nil
	})
	if err != nil && !errors.Is(err, ledger.ErrInsufficientCredits) {
		s.logger.Error("Balance deduction transaction failed", zap.String("user_id", userID), zap.Error(err))
	}
	return balance, err
}

// addCredits must run inside a transaction with mu held.
func (s *GormStore) addCredits(tx *gorm.DB, userID string, amount int64) (int64, error) {
	if err := s.ensureUser(tx, userID); err != nil {
		return 0, err
	}
	result := tx.Model(&UserCredit{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update user balance on add: %w", result.Error)
	}
	return currentBalance(tx, userID)
}

func (s *GormStore) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if userID == "" {
		return 0, ledger.ErrEmptyUserID
	}
	if amount <= 0 {
		return 0, ledger.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var balance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = s.addCredits(tx, userID, amount)
		return err
	})
	return balance, err
}

func (s *GormStore) ApplyPayment(ctx context.Context, intentID, userID string, amount int64) (int64, bool, error) {
	if userID == "" {
		return 0, false, ledger.ErrEmptyUserID
	}
	if amount <= 0 {
		return 0, false, ledger.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var balance int64
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&AppliedPayment{
			IntentID:  intentID,
			UserID:    userID,
			Credits:   amount,
			AppliedAt: time.Now().UTC(),
		})
		if result.Error != nil {
			return fmt.Errorf("failed to record applied payment: %w", result.Error)
		}
		var err error
		if result.RowsAffected == 0 {
			if err := s.ensureUser(tx, userID); err != nil {
				return err
			}
			balance, err = currentBalance(tx, userID)
			return err
		}
		applied = true
		balance, err = s.addCredits(tx, userID, amount)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return balance, applied, nil
}

func (s *GormStore) Close() error {
	return s.sqlDB.Close()
}
