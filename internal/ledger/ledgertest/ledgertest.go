// Package ledgertest holds the behaviour every ledger.Store must share.
package ledgertest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bonosa/MarsLife/internal/ledger"
)

// FreeCredits is the free balance factories must seed new users with.
const FreeCredits = 100

// Factory returns a fresh, empty store seeded with FreeCredits.
type Factory func(t *testing.T) ledger.Store

// Run exercises a Store implementation.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetSeedsFreeBalance", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := 0; i < 2; i++ {
			got, err := s.Get(ctx, "u1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != FreeCredits {
				t.Fatalf("Get #%d = %d, want %d", i, got, FreeCredits)
			}
		}
	})

	t.Run("DebitAndCredit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		got, err := s.Debit(ctx, "u1", 25)
		if err != nil {
			t.Fatalf("Debit: %v", err)
		}
		if got != 75 {
			t.Fatalf("Debit = %d, want 75", got)
		}
		got, err = s.Credit(ctx, "u1", 50)
		if err != nil {
			t.Fatalf("Credit: %v", err)
		}
		if got != 125 {
			t.Fatalf("Credit = %d, want 125", got)
		}
		got, _ = s.Get(ctx, "u1")
		if got != 125 {
			t.Fatalf("Get after mutations = %d, want 125", got)
		}
	})

	t.Run("DebitInsufficient", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Debit(ctx, "u1", FreeCredits); err != nil {
			t.Fatalf("Debit to zero: %v", err)
		}
		_, err := s.Debit(ctx, "u1", 1)
		if !errors.Is(err, ledger.ErrInsufficientCredits) {
			t.Fatalf("Debit below zero err = %v, want ErrInsufficientCredits", err)
		}
		got, _ := s.Get(ctx, "u1")
		if got != 0 {
			t.Fatalf("balance = %d, want 0 (zero balance must not be reset)", got)
		}
	})

	t.Run("RejectsBadInput", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Debit(ctx, "u1", 0); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Errorf("Debit(0) err = %v", err)
		}
		if _, err := s.Credit(ctx, "u1", -5); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Errorf("Credit(-5) err = %v", err)
		}
		if _, err := s.Get(ctx, ""); !errors.Is(err, ledger.ErrEmptyUserID) {
			t.Errorf("Get(\"\") err = %v", err)
		}
	})

	t.Run("ApplyPaymentOnce", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		got, applied, err := s.ApplyPayment(ctx, "pi_1", "u1", 150)
		if err != nil {
			t.Fatalf("ApplyPayment: %v", err)
		}
		if !applied || got != FreeCredits+150 {
			t.Fatalf("ApplyPayment = (%d, %v), want (%d, true)", got, applied, FreeCredits+150)
		}
		got, applied, err = s.ApplyPayment(ctx, "pi_1", "u1", 150)
		if err != nil {
			t.Fatalf("ApplyPayment replay: %v", err)
		}
		if applied || got != FreeCredits+150 {
			t.Fatalf("ApplyPayment replay = (%d, %v), want (%d, false)", got, applied, FreeCredits+150)
		}
	})

	t.Run("ConcurrentDebitsNeverNegative", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Get(ctx, "u1"); err != nil {
			t.Fatalf("Get: %v", err)
		}

		const workers = 10
		var wg sync.WaitGroup
		var mu sync.Mutex
		successes := 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Debit(ctx, "u1", 25); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if successes != FreeCredits/25 {
			t.Fatalf("successful debits = %d, want %d", successes, FreeCredits/25)
		}
		got, _ := s.Get(ctx, "u1")
		if got != 0 {
			t.Fatalf("final balance = %d, want 0", got)
		}
	})
}
