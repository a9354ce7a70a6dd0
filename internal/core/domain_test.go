package core

import (
	"errors"
	"testing"
	"time"
)

func TestTransactionID_Deterministic(t *testing.T) {
	a := TransactionID(PlatformBank, "tx-123")
	b := TransactionID(PlatformBank, "tx-123")
	if a != b {
		t.Errorf("same input produced different ids: %s vs %s", a, b)
	}
	if a == "" {
		t.Error("id should not be empty")
	}
}

func TestTransactionID_PlatformSeparation(t *testing.T) {
	bank := TransactionID(PlatformBank, "tx-123")
	momo := TransactionID(PlatformMobileMoney, "tx-123")
	if bank == momo {
		t.Error("same upstream id on different platforms must map to different ledger ids")
	}
}

func TestNormalize_ExpenseFromNegativeAmount(t *testing.T) {
	account := LinkedAccount{ID: "acc-1", Platform: PlatformBank}
	raw := RawTransaction{
		PlatformTxID: "tx-9",
		AmountCents:  -2550,
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Narration:    "KFC Accra Mall",
	}

	tx := raw.Normalize(account)

	if tx.Type != Expense {
		t.Errorf("expected expense, got %s", tx.Type)
	}
	if tx.Amount.Cents != 2550 {
		t.Errorf("expected positive magnitude 2550, got %d", tx.Amount.Cents)
	}
	if tx.ID != TransactionID(PlatformBank, "tx-9") {
		t.Error("normalized id must match derived id")
	}
	if err := tx.Validate(); err != nil {
		t.Errorf("normalized transaction should validate: %v", err)
	}
}

func TestNormalize_IncomeFromPositiveAmount(t *testing.T) {
	account := LinkedAccount{ID: "acc-1", Platform: PlatformMobileMoney}
	tx := RawTransaction{PlatformTxID: "t", AmountCents: 10000, Narration: "Salary"}.Normalize(account)

	if tx.Type != Income {
		t.Errorf("expected income, got %s", tx.Type)
	}
	if tx.Amount.Cents != 10000 {
		t.Errorf("expected 10000, got %d", tx.Amount.Cents)
	}
}

func TestNormalize_DescriptionFromCounterparty(t *testing.T) {
	account := LinkedAccount{ID: "acc-1", Platform: PlatformBank}

	tests := []struct {
		name         string
		narration    string
		counterparty string
		want         string
	}{
		{"narration only", "POS purchase", "", "POS purchase"},
		{"counterparty only", "", "Shoprite", "Shoprite"},
		{"both distinct", "POS purchase", "Shoprite", "POS purchase - Shoprite"},
		{"counterparty already in narration", "Transfer to Ama Mensah", "Ama Mensah", "Transfer to Ama Mensah"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := RawTransaction{PlatformTxID: "t", Narration: tt.narration, Counterparty: tt.counterparty}.Normalize(account)
			if tx.Description != tt.want {
				t.Errorf("expected %q, got %q", tt.want, tx.Description)
			}
		})
	}
}

func TestDueForSync(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	recent := now.Add(-1 * time.Hour)
	stale := now.Add(-13 * time.Hour)
	threshold := 12 * time.Hour

	tests := []struct {
		name    string
		account LinkedAccount
		force   bool
		want    bool
	}{
		{"never synced", LinkedAccount{Status: SyncActive}, false, true},
		{"recently synced", LinkedAccount{Status: SyncActive, LastSyncedAt: &recent}, false, false},
		{"stale", LinkedAccount{Status: SyncActive, LastSyncedAt: &stale}, false, true},
		{"recent but forced", LinkedAccount{Status: SyncActive, LastSyncedAt: &recent}, true, true},
		{"deactivated never due", LinkedAccount{Status: SyncActive, Deactivated: true}, true, false},
		{"fresh in-progress lock", LinkedAccount{Status: SyncInProgress, StatusChangedAt: recent}, true, false},
		{"stale in-progress lock", LinkedAccount{Status: SyncInProgress, StatusChangedAt: stale}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.account.DueForSync(now, threshold, tt.force); got != tt.want {
				t.Errorf("DueForSync = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOutcomeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want OutcomeStatus
	}{
		{"nil", nil, OutcomeSuccess},
		{"auth", ErrAuthRequired, OutcomeAuthError},
		{"wrapped auth", errors.Join(errors.New("validate credentials"), ErrAuthRequired), OutcomeAuthError},
		{"rate limited", ErrRateLimited, OutcomeRateLimited},
		{"data error", &DataError{Platform: PlatformBank, Detail: "missing id"}, OutcomeError},
		{"generic", errors.New("connection reset"), OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutcomeForError(tt.err); got != tt.want {
				t.Errorf("OutcomeForError = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSyncReport_Totals(t *testing.T) {
	r := &SyncReport{}
	r.Add(AccountOutcome{AccountID: "b1", Platform: PlatformBank, Status: OutcomeSuccess, TransactionsSynced: 15, NewTransactions: 15})
	r.Add(AccountOutcome{AccountID: "m1", Platform: PlatformMobileMoney, Status: OutcomeAuthError})

	if r.TotalAccounts() != 2 {
		t.Errorf("expected 2 accounts, got %d", r.TotalAccounts())
	}
	if r.TotalTransactionsSynced() != 15 {
		t.Errorf("expected 15 synced, got %d", r.TotalTransactionsSynced())
	}
	if r.FailureCount() != 1 {
		t.Errorf("expected 1 failure, got %d", r.FailureCount())
	}
	if len(r.Bank) != 1 || len(r.MobileMoney) != 1 {
		t.Error("outcomes should partition by platform")
	}
}

func TestOutcomeStatus_Failed(t *testing.T) {
	if OutcomeRateLimited.Failed() {
		t.Error("rate limited must not count as a failure")
	}
	if !OutcomeAuthError.Failed() || !OutcomeError.Failed() {
		t.Error("error and auth_error count as failures")
	}
	if OutcomeSuccess.Failed() {
		t.Error("success is not a failure")
	}
}
