package storage

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // pure Go SQLite driver, registered as "sqlite"
)

const (
	createUserCreditsTableSQL = `
	CREATE TABLE IF NOT EXISTS user_credits (
		user_id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL CHECK (balance >= 0),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	createAppliedPaymentsTableSQL = `
	CREATE TABLE IF NOT EXISTS applied_payments (
		intent_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		credits INTEGER NOT NULL,
		applied_at DATETIME NOT NULL
	);`

	createAppliedPaymentsUserIndexSQL = `CREATE INDEX IF NOT EXISTS idx_applied_payments_user_id ON applied_payments (user_id);`
)

// InitDB opens the SQLite file through database/sql and runs migrations.
func InitDB(dbPath string, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Running database migrations...", zap.String("path", dbPath))
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migration completed.")

	return db, nil
}

func runMigrations(db *sql.DB) error {
	statements := []string{
		createUserCreditsTableSQL,
		createAppliedPaymentsTableSQL,
		createAppliedPaymentsUserIndexSQL,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute migration statement: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}

// OpenGorm wraps an already-migrated connection in GORM.
func OpenGorm(db *sql.DB) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", Conn: db}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return gdb, nil
}
