package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

const (
	PlatformBank        Platform = "bank"
	PlatformMobileMoney Platform = "mobile_money"
)

const (
	SyncActive       SyncStatus = "active"
	SyncAuthRequired SyncStatus = "auth_required"
	SyncError        SyncStatus = "error"
	SyncInProgress   SyncStatus = "in_progress"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	// Platform identifies one of the two upstream transaction sources.
	Platform string

	// SyncStatus is the per-account sync health state surfaced to the user.
	SyncStatus string

	TransactionType string

	Money struct {
		Cents int64
	}

	// LinkedAccount is an upstream account a user has connected.
	// CredentialRef is an opaque reference into the platform's credential
	// store (bank institution id, mobile-money provider reference). It must
	// never appear in logs.
	LinkedAccount struct {
		ID                  string
		UserID              string
		Name                string
		Platform            Platform
		CredentialRef       string
		Balance             Money
		Status              SyncStatus
		ConsecutiveFailures uint
		LastSyncedAt        *time.Time
		StatusChangedAt     time.Time
		Deactivated         bool
	}

	// RawTransaction is a platform-native record as returned by an upstream
	// client. It only exists inside a worker's pipeline and is never persisted.
	RawTransaction struct {
		PlatformTxID string
		// AmountCents is signed, already converted to the ledger currency's
		// minor units by the platform client: negative means money out.
		AmountCents  int64
		Timestamp    time.Time
		Narration    string
		Counterparty string
	}

	// LedgerTransaction is the normalized, persisted form of a transaction.
	LedgerTransaction struct {
		ID              string
		AccountID       string
		Platform        Platform
		PlatformTxID    string
		Amount          Money // positive magnitude; Type carries the sign
		Type            TransactionType
		CategoryID      string
		AutoCategorized bool
		Confidence      float64
		Date            time.Time
		Description     string
	}

	CategorySuggestion struct {
		CategoryID    string
		Confidence    float64
		Reasons       []string
		SuggestedType TransactionType
	}
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrEmptyAccountID = errors.New("empty account id")
	ErrEmptyPlatform  = errors.New("empty platform")
)

// Valid reports whether p is one of the two supported platforms.
func (p Platform) Valid() bool {
	return p == PlatformBank || p == PlatformMobileMoney
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// DueForSync reports whether the account should be picked up by an
// orchestrator pass. An account is due when it was never synced, when its
// last sync is older than the platform threshold, or when it is stuck
// InProgress past the threshold (stale lock left by a crashed run).
func (a LinkedAccount) DueForSync(now time.Time, threshold time.Duration, force bool) bool {
	if a.Deactivated {
		return false
	}
	if a.Status == SyncInProgress {
		return now.Sub(a.StatusChangedAt) > threshold
	}
	if force {
		return true
	}
	if a.LastSyncedAt == nil {
		return true
	}
	return now.Sub(*a.LastSyncedAt) > threshold
}

// TransactionID derives the stable ledger id for an upstream record.
// Re-syncing the same upstream record always maps to the same id, which is
// what makes the upsert idempotent.
func TransactionID(platform Platform, platformTxID string) string {
	sum := sha256.Sum256([]byte(string(platform) + "|" + platformTxID))
	return hex.EncodeToString(sum[:16])
}

// Normalize converts a raw upstream record into a ledger transaction
// candidate for the given account. Category fields are left empty; the
// worker fills them in for new transactions only.
func (r RawTransaction) Normalize(account LinkedAccount) LedgerTransaction {
	t := LedgerTransaction{
		ID:           TransactionID(account.Platform, r.PlatformTxID),
		AccountID:    account.ID,
		Platform:     account.Platform,
		PlatformTxID: r.PlatformTxID,
		Date:         r.Timestamp,
		Description:  buildDescription(r.Narration, r.Counterparty),
	}
	if r.AmountCents < 0 {
		t.Amount = Money{Cents: -r.AmountCents}
		t.Type = Expense
	} else {
		t.Amount = Money{Cents: r.AmountCents}
		t.Type = Income
	}
	return t
}

func (t LedgerTransaction) Validate() error {
	if t.AccountID == "" {
		return ErrEmptyAccountID
	}
	if !t.Platform.Valid() {
		return ErrEmptyPlatform
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.Type != Income && t.Type != Expense {
		return errors.New("invalid transaction type")
	}
	return nil
}

func buildDescription(narration, counterparty string) string {
	narration = strings.TrimSpace(narration)
	counterparty = strings.TrimSpace(counterparty)
	switch {
	case narration == "":
		return counterparty
	case counterparty == "" || strings.Contains(strings.ToLower(narration), strings.ToLower(counterparty)):
		return narration
	default:
		return narration + " - " + counterparty
	}
}
