// Package ledger declares the ports the sync engine needs from persistent
// storage. The SQLite implementation lives in internal/storage; an
// in-memory implementation for tests lives in ledger/memory.
package ledger

import (
	"context"
	"time"

	"finsync/internal/core"
)

// HealthPatch is the post-sync account health update. It is applied as one
// atomic write so concurrent runs can never interleave partial field sets.
type HealthPatch struct {
	Status              core.SyncStatus
	ConsecutiveFailures uint
	// LastSyncedAt is set only on success; nil leaves the stored value.
	LastSyncedAt    *time.Time
	StatusChangedAt time.Time
}

type (
	TransactionStore interface {
		// GetTransaction returns the stored transaction for the derived id,
		// or nil when the id has never been seen.
		GetTransaction(ctx context.Context, id string) (*core.LedgerTransaction, error)

		// UpsertTransaction inserts the candidate or, when the derived id
		// already exists, refreshes amount, type, date and description while
		// leaving the stored category fields untouched. The bool reports
		// whether a new row was created.
		UpsertTransaction(ctx context.Context, tx core.LedgerTransaction) (bool, error)

		// FindSimilarTransactions returns stored transactions whose
		// description shares tokens with the narration, most recent first.
		FindSimilarTransactions(ctx context.Context, narration string, limit int) ([]core.LedgerTransaction, error)
	}

	AccountStore interface {
		// ListActiveAccounts returns every non-deactivated linked account.
		ListActiveAccounts(ctx context.Context) ([]core.LinkedAccount, error)

		// ClaimForSync is a compare-and-set: it moves the account to
		// InProgress only if its status and status-changed timestamp still
		// match what the caller loaded. A false return means a concurrent
		// run claimed the account first.
		ClaimForSync(ctx context.Context, accountID string, expected core.SyncStatus, expectedChangedAt, now time.Time) (bool, error)

		// UpdateSyncHealth applies the post-sync health patch as a single
		// atomic update.
		UpdateSyncHealth(ctx context.Context, accountID string, patch HealthPatch) error
	}

	ReportStore interface {
		// SaveSyncRun persists the run report as an audit log entry.
		SaveSyncRun(ctx context.Context, report *core.SyncReport) error
	}

	NetWorthReader interface {
		// NetWorth returns the user's ledger net position
		// (income minus expenses across all linked accounts).
		NetWorth(ctx context.Context, userID string) (core.Money, error)
	}

	// Store is the full surface the orchestrator wires together.
	Store interface {
		TransactionStore
		AccountStore
		ReportStore
		NetWorthReader
	}
)
