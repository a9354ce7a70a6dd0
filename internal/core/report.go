package core

import (
	"errors"
	"time"
)

const (
	OutcomeSuccess     OutcomeStatus = "success"
	OutcomeAuthError   OutcomeStatus = "auth_error"
	OutcomeRateLimited OutcomeStatus = "rate_limited"
	OutcomeError       OutcomeStatus = "error"
)

type (
	// OutcomeStatus is the result class of one account's sync attempt.
	OutcomeStatus string

	// AccountOutcome reports a single account's result within one run.
	AccountOutcome struct {
		AccountID           string
		UserID              string
		Platform            Platform
		Status              OutcomeStatus
		TransactionsSynced  int
		NewTransactions     int
		UpdatedTransactions int
		NewExpenses         int
		BalanceChanged      bool
		Duration            time.Duration
		ErrorDetail         string
	}

	// SyncReport aggregates every due account's outcome for one
	// orchestrator run. Every due account appears exactly once.
	SyncReport struct {
		RunID       string
		StartedAt   time.Time
		FinishedAt  time.Time
		Bank        []AccountOutcome
		MobileMoney []AccountOutcome
	}
)

// OutcomeForError maps a worker error onto the outcome taxonomy.
func OutcomeForError(err error) OutcomeStatus {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrAuthRequired):
		return OutcomeAuthError
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	default:
		return OutcomeError
	}
}

// Failed reports whether the outcome counts against the account's failure
// streak. Rate limiting is transient and deliberately excluded.
func (s OutcomeStatus) Failed() bool {
	return s == OutcomeError || s == OutcomeAuthError
}

// Add appends an outcome to the platform list it belongs to.
func (r *SyncReport) Add(o AccountOutcome) {
	if o.Platform == PlatformMobileMoney {
		r.MobileMoney = append(r.MobileMoney, o)
		return
	}
	r.Bank = append(r.Bank, o)
}

// Outcomes returns both platform lists as one slice.
func (r *SyncReport) Outcomes() []AccountOutcome {
	out := make([]AccountOutcome, 0, len(r.Bank)+len(r.MobileMoney))
	out = append(out, r.Bank...)
	return append(out, r.MobileMoney...)
}

// TotalAccounts counts every account covered by the run.
func (r *SyncReport) TotalAccounts() int {
	return len(r.Bank) + len(r.MobileMoney)
}

// TotalTransactionsSynced sums processed transactions across both platforms,
// including partial progress from failed accounts.
func (r *SyncReport) TotalTransactionsSynced() int {
	total := 0
	for _, o := range r.Outcomes() {
		total += o.TransactionsSynced
	}
	return total
}

// TotalNewTransactions sums newly inserted transactions across both platforms.
func (r *SyncReport) TotalNewTransactions() int {
	total := 0
	for _, o := range r.Outcomes() {
		total += o.NewTransactions
	}
	return total
}

// FailureCount counts accounts whose outcome was error or auth_error.
func (r *SyncReport) FailureCount() int {
	failed := 0
	for _, o := range r.Outcomes() {
		if o.Status.Failed() {
			failed++
		}
	}
	return failed
}

func (r *SyncReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
