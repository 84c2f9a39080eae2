package storage

import (
	"context"
	"os"
	"testing"

	"github.com/bonosa/MarsLife/internal/ledger"
	"github.com/bonosa/MarsLife/internal/ledger/ledgertest"
	"go.uber.org/zap"
)

// Set MARSLIFE_TEST_PG_DSN to a disposable database to run these.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("MARSLIFE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("MARSLIFE_TEST_PG_DSN not set")
	}
	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		ctx := context.Background()
		s, err := OpenPostgresStore(ctx, dsn, ledgertest.FreeCredits, zap.NewNop())
		if err != nil {
			t.Fatalf("OpenPostgresStore: %v", err)
		}
		if _, err := s.pool.Exec(ctx, "TRUNCATE user_credits, applied_payments"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}
