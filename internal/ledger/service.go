package ledger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Service charges the fixed generation cost against a Store.
type Service struct {
	store  Store
	cost   int64
	locks  *keyedMutex
	logger *zap.Logger
}

func NewService(store Store, generationCost int64, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		cost:   generationCost,
		locks:  newKeyedMutex(),
		logger: logger.Named("ledger"),
	}
}

// Cost is the number of credits one successful generation consumes.
func (s *Service) Cost() int64 { return s.cost }

// Balance returns the user's balance, seeding first-time users.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrEmptyUserID
	}
	balance, err := s.store.Get(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// CheckAffordable returns the current balance, or ErrInsufficientCredits
// when it is below the generation cost.
func (s *Service) CheckAffordable(ctx context.Context, userID string) (int64, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	if balance < s.cost {
		s.logger.Info("Balance below generation cost", zap.String("user_id", userID), zap.Int64("balance", balance), zap.Int64("cost", s.cost))
		return balance, ErrInsufficientCredits
	}
	return balance, nil
}

// Charge debits exactly one generation cost.
func (s *Service) Charge(ctx context.Context, userID string) (int64, error) {
	balance, err := s.store.Debit(ctx, userID, s.cost)
	if err != nil {
		return 0, fmt.Errorf("charge generation: %w", err)
	}
	s.logger.Info("Charged generation", zap.String("user_id", userID), zap.Int64("cost", s.cost), zap.Int64("new_balance", balance))
	return balance, nil
}

// Credit adds amount to the user's balance.
func (s *Service) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	balance, err := s.store.Credit(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("credit: %w", err)
	}
	s.logger.Info("Credited balance", zap.String("user_id", userID), zap.Int64("amount", amount), zap.Int64("new_balance", balance))
	return balance, nil
}

// ApplyPayment credits a confirmed payment intent at most once.
func (s *Service) ApplyPayment(ctx context.Context, intentID, userID string, amount int64) (int64, bool, error) {
	if intentID == "" {
		return 0, false, fmt.Errorf("apply payment: empty intent id")
	}
	balance, applied, err := s.store.ApplyPayment(ctx, intentID, userID, amount)
	if err != nil {
		return 0, false, fmt.Errorf("apply payment %s: %w", intentID, err)
	}
	if applied {
		s.logger.Info("Applied payment", zap.String("intent_id", intentID), zap.String("user_id", userID), zap.Int64("credits", amount), zap.Int64("new_balance", balance))
	} else {
		s.logger.Warn("Payment intent already applied", zap.String("intent_id", intentID), zap.String("user_id", userID))
	}
	return balance, applied, nil
}

// Lock serialises work for one user. Call the returned func to release.
func (s *Service) Lock(userID string) func() {
	return s.locks.lock(userID)
}

// keyedMutex hands out one mutex per key and drops it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
