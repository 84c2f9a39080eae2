package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileStore keeps balances in one JSON object, {"<userId>": <credits>},
// rewritten wholesale after every mutation. Applied payment intents live
// in a sidecar file next to it.
//
// Write failures are logged and swallowed; the in-memory map stays
// authoritative for the life of the process.
type FileStore struct {
	mu          sync.Mutex
	path        string
	paymentPath string
	free        int64
	balances    map[string]int64
	applied     map[string]AppliedPayment
	logger      *zap.Logger
	now         func() time.Time
}

// OpenFileStore loads path if it exists. A missing file is an empty ledger;
// an unreadable or corrupt one is an error.
func OpenFileStore(path string, freeCredits int64, logger *zap.Logger) (*FileStore, error) {
	s := &FileStore{
		path:        path,
		paymentPath: path + ".payments.json",
		free:        freeCredits,
		balances:    make(map[string]int64),
		applied:     make(map[string]AppliedPayment),
		logger:      logger.Named("file_ledger"),
		now:         time.Now,
	}
	if err := readJSON(s.path, &s.balances); err != nil {
		return nil, fmt.Errorf("load credits file: %w", err)
	}
	if err := readJSON(s.paymentPath, &s.applied); err != nil {
		return nil, fmt.Errorf("load payments file: %w", err)
	}
	// A file holding JSON null decodes to a nil map.
	if s.balances == nil {
		s.balances = make(map[string]int64)
	}
	if s.applied == nil {
		s.applied = make(map[string]AppliedPayment)
	}
	s.logger.Info("Loaded credits file", zap.String("path", path), zap.Int("users", len(s.balances)), zap.Int("applied_payments", len(s.applied)))
	return s, nil
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

// writeJSON replaces path atomically via a temp file in the same directory.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// seed must be called with mu held. It reports whether the user was new.
func (s *FileStore) seed(userID string) bool {
	if _, ok := s.balances[userID]; ok {
		return false
	}
	s.balances[userID] = s.free
	s.logger.Info("New user, seeding free credits", zap.String("user_id", userID), zap.Int64("credits", s.free))
	return true
}

// saveBalances must be called with mu held.
func (s *FileStore) saveBalances() {
	if err := writeJSON(s.path, s.balances); err != nil {
		s.logger.Error("Error saving credits", zap.String("path", s.path), zap.Error(err))
	}
}

func (s *FileStore) Get(_ context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seed(userID) {
		s.saveBalances()
	}
	return s.balances[userID], nil
}

func (s *FileStore) Debit(_ context.Context, userID string, amount int64) (int64, error) {
	if err := validate(userID, amount); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seeded := s.seed(userID)
	current := s.balances[userID]
	if current < amount {
		if seeded {
			s.saveBalances()
		}
		return current, fmt.Errorf("%w: have %d, need %d", ErrInsufficientCredits, current, amount)
	}
	s.balances[userID] = current - amount
	s.saveBalances()
	return s.balances[userID], nil
}

func (s *FileStore) Credit(_ context.Context, userID string, amount int64) (int64, error) {
	if err := validate(userID, amount); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed(userID)
	s.balances[userID] += amount
	s.saveBalances()
	return s.balances[userID], nil
}

func (s *FileStore) ApplyPayment(_ context.Context, intentID, userID string, amount int64) (int64, bool, error) {
	if err := validate(userID, amount); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.applied[intentID]; done {
		seeded := s.seed(userID)
		if seeded {
			s.saveBalances()
		}
		return s.balances[userID], false, nil
	}
	s.applied[intentID] = AppliedPayment{
		IntentID:  intentID,
		UserID:    userID,
		Credits:   amount,
		AppliedAt: s.now().UTC(),
	}
	if err := writeJSON(s.paymentPath, s.applied); err != nil {
		s.logger.Error("Error saving payments file", zap.String("path", s.paymentPath), zap.Error(err))
	}
	s.seed(userID)
	s.balances[userID] += amount
	s.saveBalances()
	return s.balances[userID], true, nil
}

// Snapshot returns a copy of all balances.
func (s *FileStore) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.balances))
	for k, v := range s.balances {
		out[k] = v
	}
	return out
}

func (s *FileStore) Close() error { return nil }
