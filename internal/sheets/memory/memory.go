package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/sheets"
)

var _ sheets.LedgerMirror = (*Store)(nil)

// Store is an in-process ledger mirror for tests and local runs.
type Store struct {
	mu    sync.Mutex
	next  int
	refs  map[string]string
	items []core.Transaction
}

func New() *Store {
	return &Store{refs: make(map[string]string)}
}

// Append stores the entry and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.refs[tx.ID]; ok {
		return ref, nil
	}
	s.next++
	ref := fmt.Sprintf("mem:%d", s.next)
	s.refs[tx.ID] = ref
	s.items = append(s.items, tx)
	return ref, nil
}

func (s *Store) Remove(_ context.Context, userID, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, tx := range s.items {
		if tx.ID == transactionID && tx.UserID == userID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			delete(s.refs, transactionID)
			return nil
		}
	}
	return nil
}

// Entries returns the mirrored entries of an owner in insertion order.
func (s *Store) Entries(userID string) []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.items {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out
}
