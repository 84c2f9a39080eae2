package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bonosa/MarsLife/internal/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const postgresSchemaSQL = `
CREATE TABLE IF NOT EXISTS user_credits (
	user_id TEXT PRIMARY KEY,
	balance BIGINT NOT NULL CHECK (balance >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS applied_payments (
	intent_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	credits BIGINT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_applied_payments_user_id ON applied_payments (user_id);
`

// PostgresStore is a ledger.Store on PostgreSQL. Debits use a conditional
// UPDATE so concurrent writers from several processes stay consistent.
type PostgresStore struct {
	pool    *pgxpool.Pool
	initial int64
	logger  *zap.Logger
}

func OpenPostgresStore(ctx context.Context, dsn string, freeCredits int64, logger *zap.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	return &PostgresStore{pool: pool, initial: freeCredits, logger: logger.Named("postgres_ledger")}, nil
}

func (s *PostgresStore) ensureUser(ctx context.Context, tx pgx.Tx, userID string) error {
	tag, err := tx.Exec(ctx,
		"INSERT INTO user_credits (user_id, balance) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING",
		userID, s.initial)
	if err != nil {
		return fmt.Errorf("failed to create user credit record: %w", err)
	}
	if tag.RowsAffected() > 0 {
		s.logger.Info("Created new credit record for user", zap.String("user_id", userID), zap.Int64("credits", s.initial))
	}
	return nil
}

// inTx runs fn in a transaction, committing when fn returns nil.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ledger.ErrEmptyUserID
	}
	var balance int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, "SELECT balance FROM user_credits WHERE user_id = $1", userID).Scan(&balance)
	})
	return balance, err
}

func (s *PostgresStore) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	if userID == "" {
		return 0, ledger.ErrEmptyUserID
	}
	if amount <= 0 {
		return 0, ledger.ErrInvalidAmount
	}
	var balance int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		err := tx.QueryRow(ctx,
			"UPDATE user_credits SET balance = balance - $2, updated_at = now() WHERE user_id = $1 AND balance >= $2 RETURNING balance",
			userID, amount).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.QueryRow(ctx, "SELECT balance FROM user_credits WHERE user_id = $1", userID).Scan(&balance); err != nil {
				return fmt.Errorf("read balance: %w", err)
			}
			return fmt.Errorf("%w: have %d, need %d", ledger.ErrInsufficientCredits, balance, amount)
		}
		if err != nil {
			return fmt.Errorf("failed to update user balance: %w", err)
		}
		return nil
	})
	return balance, err
}

func (s *PostgresStore) addCredits(ctx context.Context, tx pgx.Tx, userID string, amount int64) (int64, error) {
	if err := s.ensureUser(ctx, tx, userID); err != nil {
		return 0, err
	}
	var balance int64
	err := tx.QueryRow(ctx,
		"UPDATE user_credits SET balance = balance + $2, updated_at = now() WHERE user_id = $1 RETURNING balance",
		userID, amount).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to update user balance on add: %w", err)
	}
	return balance, nil
}

func (s *PostgresStore) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if userID == "" {
		return 0, ledger.ErrEmptyUserID
	}
	if amount <= 0 {
		return 0, ledger.ErrInvalidAmount
	}
	var balance int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		balance, err = s.addCredits(ctx, tx, userID, amount)
		return err
	})
	return balance, err
}

func (s *PostgresStore) ApplyPayment(ctx context.Context, intentID, userID string, amount int64) (int64, bool, error) {
	if userID == "" {
		return 0, false, ledger.ErrEmptyUserID
	}
	if amount <= 0 {
		return 0, false, ledger.ErrInvalidAmount
	}
	var balance int64
	applied := false
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			"INSERT INTO applied_payments (intent_id, user_id, credits) VALUES ($1, $2, $3) ON CONFLICT (intent_id) DO NOTHING",
			intentID, userID, amount)
		if err != nil {
			return fmt.Errorf("failed to record applied payment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if err := s.ensureUser(ctx, tx, userID); err != nil {
				return err
			}
			return tx.QueryRow(ctx, "SELECT balance FROM user_credits WHERE user_id = $1", userID).Scan(&balance)
		}
		applied = true
		balance, err = s.addCredits(ctx, tx, userID, amount)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return balance, applied, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
