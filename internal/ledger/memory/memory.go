// Package memory is an in-memory ledger store used by tests and local
// development runs without a database file.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"finsync/internal/core"
	"finsync/internal/ledger"
)

type Store struct {
	mu           sync.Mutex
	accounts     map[string]*core.LinkedAccount
	transactions map[string]core.LedgerTransaction
	runs         []core.SyncReport
}

func New() *Store {
	return &Store{
		accounts:     make(map[string]*core.LinkedAccount),
		transactions: make(map[string]core.LedgerTransaction),
	}
}

// AddAccount seeds an account. Test helper, not part of the ports.
func (s *Store) AddAccount(account core.LinkedAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := account
	s.accounts[account.ID] = &copied
}

// Account returns a snapshot of the stored account. Test helper.
func (s *Store) Account(id string) (core.LinkedAccount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.LinkedAccount{}, false
	}
	return *a, true
}

// Transactions returns a snapshot of all stored transactions. Test helper.
func (s *Store) Transactions() []core.LedgerTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.LedgerTransaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SyncRuns returns persisted run reports. Test helper.
func (s *Store) SyncRuns() []core.SyncReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.SyncReport(nil), s.runs...)
}

func (s *Store) GetTransaction(_ context.Context, id string) (*core.LedgerTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (s *Store) UpsertTransaction(_ context.Context, tx core.LedgerTransaction) (bool, error) {
	if err := tx.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.transactions[tx.ID]
	if !ok {
		s.transactions[tx.ID] = tx
		return true, nil
	}

	// Category fields are never touched on update; user feedback and prior
	// auto-classification both survive a re-sync.
	existing.Amount = tx.Amount
	existing.Type = tx.Type
	existing.Date = tx.Date
	existing.Description = tx.Description
	s.transactions[tx.ID] = existing
	return false, nil
}

func (s *Store) FindSimilarTransactions(_ context.Context, narration string, limit int) ([]core.LedgerTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := strings.Fields(strings.ToLower(narration))
	var out []core.LedgerTransaction
	for _, tx := range s.transactions {
		desc := strings.ToLower(tx.Description)
		for _, tok := range tokens {
			if strings.Contains(desc, tok) {
				out = append(out, tx)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListActiveAccounts(_ context.Context) ([]core.LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.LinkedAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		if a.Deactivated {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ClaimForSync(_ context.Context, accountID string, expected core.SyncStatus, expectedChangedAt, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return false, nil
	}
	if a.Status != expected || !a.StatusChangedAt.Equal(expectedChangedAt) {
		return false, nil
	}
	a.Status = core.SyncInProgress
	a.StatusChangedAt = now
	return true, nil
}

func (s *Store) UpdateSyncHealth(_ context.Context, accountID string, patch ledger.HealthPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return nil
	}
	a.Status = patch.Status
	a.ConsecutiveFailures = patch.ConsecutiveFailures
	a.StatusChangedAt = patch.StatusChangedAt
	if patch.LastSyncedAt != nil {
		t := *patch.LastSyncedAt
		a.LastSyncedAt = &t
	}
	return nil
}

func (s *Store) SaveSyncRun(_ context.Context, report *core.SyncReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *report)
	return nil
}

func (s *Store) NetWorth(_ context.Context, userID string) (core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accountUser := make(map[string]string, len(s.accounts))
	for id, a := range s.accounts {
		accountUser[id] = a.UserID
	}

	var total int64
	for _, tx := range s.transactions {
		if accountUser[tx.AccountID] != userID {
			continue
		}
		if tx.Type == core.Income {
			total += tx.Amount.Cents
		} else {
			total -= tx.Amount.Cents
		}
	}
	return core.Money{Cents: total}, nil
}
