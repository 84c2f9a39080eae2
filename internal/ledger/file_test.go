package ledger_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/bonosa/MarsLife/internal/ledger"
	"github.com/bonosa/MarsLife/internal/ledger/ledgertest"
	"go.uber.org/zap"
)

func TestFileStore(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		s, err := ledger.OpenFileStore(filepath.Join(t.TempDir(), "user_credits.json"), ledgertest.FreeCredits, zap.NewNop())
		if err != nil {
			t.Fatalf("OpenFileStore: %v", err)
		}
		return s
	})
}

func TestFileStorePersistsFlatJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_credits.json")
	ctx := context.Background()

	s, err := ledger.OpenFileStore(path, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	if _, err := s.Debit(ctx, "u1", 25); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if _, _, err := s.ApplyPayment(ctx, "pi_9", "u2", 50); err != nil {
		t.Fatalf("ApplyPayment: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read credits file: %v", err)
	}
	var onDisk map[string]int64
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("credits file is not a flat JSON object: %v\n%s", err, data)
	}
	if onDisk["u1"] != 75 || onDisk["u2"] != 150 {
		t.Fatalf("credits file = %v", onDisk)
	}

	reopened, err := ledger.OpenFileStore(path, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got, _ := reopened.Get(ctx, "u1"); got != 75 {
		t.Errorf("u1 after reopen = %d, want 75", got)
	}
	if _, applied, _ := reopened.ApplyPayment(ctx, "pi_9", "u2", 50); applied {
		t.Error("payment applied twice across restart")
	}
	if got := reopened.Snapshot()["u2"]; got != 150 {
		t.Errorf("u2 after reopen = %d, want 150", got)
	}
}

func TestOpenFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_credits.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.OpenFileStore(path, 100, zap.NewNop()); err == nil {
		t.Fatal("expected error for corrupt credits file")
	}
}

func TestOpenFileStoreNullFiles(t *testing.T) {
	for _, tc := range []struct {
		name   string
		suffix string
	}{
		{"credits", ""},
		{"payments", ".payments.json"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "user_credits.json")
			if err := os.WriteFile(path+tc.suffix, []byte("null"), 0o644); err != nil {
				t.Fatal(err)
			}
			s, err := ledger.OpenFileStore(path, 100, zap.NewNop())
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if got, err := s.Get(ctx, "u1"); err != nil || got != 100 {
				t.Fatalf("Get = %d, %v; want 100", got, err)
			}
			balance, applied, err := s.ApplyPayment(ctx, "pi_1", "u1", 50)
			if err != nil || !applied || balance != 150 {
				t.Fatalf("ApplyPayment = %d, %v, %v; want 150, true", balance, applied, err)
			}
		})
	}
}

func TestFileStoreSwallowsWriteErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing", "user_credits.json")
	s, err := ledger.OpenFileStore(path, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	got, err := s.Debit(context.Background(), "u1", 25)
	if err != nil {
		t.Fatalf("Debit should not surface write errors: %v", err)
	}
	if got != 75 {
		t.Fatalf("Debit = %d, want 75", got)
	}
}
