package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bonosa/MarsLife/internal/ledger"
	"github.com/bonosa/MarsLife/internal/ledger/ledgertest"
	"go.uber.org/zap"
)

func openTestGormStore(t *testing.T, path string) *GormStore {
	t.Helper()
	s, err := OpenGormStore(path, ledgertest.FreeCredits, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenGormStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGormStore(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		return openTestGormStore(t, filepath.Join(t.TempDir(), "credits.db"))
	})
}

func TestGormStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credits.db")
	ctx := context.Background()

	s, err := OpenGormStore(path, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenGormStore: %v", err)
	}
	if _, err := s.Debit(ctx, "u1", 25); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if _, _, err := s.ApplyPayment(ctx, "pi_1", "u1", 50); err != nil {
		t.Fatalf("ApplyPayment: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTestGormStore(t, path)
	if got, _ := reopened.Get(ctx, "u1"); got != 125 {
		t.Fatalf("balance after reopen = %d, want 125", got)
	}
	if _, applied, _ := reopened.ApplyPayment(ctx, "pi_1", "u1", 50); applied {
		t.Fatal("payment applied twice across reopen")
	}
}
