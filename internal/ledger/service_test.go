package ledger_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bonosa/MarsLife/internal/ledger"
	"go.uber.org/zap"
)

func newService(t *testing.T) *ledger.Service {
	t.Helper()
	store, err := ledger.OpenFileStore(filepath.Join(t.TempDir(), "credits.json"), 100, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	return ledger.NewService(store, 25, zap.NewNop())
}

func TestServiceChargeScenario(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	bal, err := svc.Balance(ctx, "u1")
	if err != nil || bal != 100 {
		t.Fatalf("Balance = %d, %v; want 100", bal, err)
	}
	bal, err = svc.Charge(ctx, "u1")
	if err != nil || bal != 75 {
		t.Fatalf("Charge = %d, %v; want 75", bal, err)
	}
}

func TestServiceCheckAffordable(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := svc.Charge(ctx, "u1"); err != nil {
			t.Fatalf("Charge #%d: %v", i, err)
		}
	}
	bal, err := svc.CheckAffordable(ctx, "u1")
	if !errors.Is(err, ledger.ErrInsufficientCredits) {
		t.Fatalf("CheckAffordable err = %v, want ErrInsufficientCredits", err)
	}
	if bal != 0 {
		t.Fatalf("balance = %d, want 0", bal)
	}
	if _, err := svc.Charge(ctx, "u1"); !errors.Is(err, ledger.ErrInsufficientCredits) {
		t.Fatalf("Charge at zero err = %v", err)
	}
}

func TestServiceLockSerialisesPerUser(t *testing.T) {
	svc := newService(t)

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := svc.Lock("u1")
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxInside)
	}
}

func TestServiceLockIndependentUsers(t *testing.T) {
	svc := newService(t)
	unlockA := svc.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := svc.Lock("b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for user b blocked on user a")
	}
}
