// Package storage is the SQLite persistence layer behind the ledger ports.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finsync/internal/core"
	"finsync/internal/ledger"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Worker pools write concurrently; wait for locks instead of failing.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// GetTransaction implements ledger.TransactionStore.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (*core.LedgerTransaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, platform, platform_tx_id, amount_cents, tx_type,
		       category_id, auto_categorized, confidence, date, description
		FROM transactions WHERE id = ?`, id)

	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// UpsertTransaction implements ledger.TransactionStore. Updates refresh the
// platform-derived fields only; category_id, auto_categorized and confidence
// are owned by the user once written and never overwritten here.
func (r *SQLiteRepository) UpsertTransaction(ctx context.Context, tx core.LedgerTransaction) (bool, error) {
	now := time.Now().UnixNano()

	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO transactions
			(id, account_id, platform, platform_tx_id, amount_cents, tx_type,
			 category_id, auto_categorized, confidence, date, description,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.AccountID, string(tx.Platform), tx.PlatformTxID,
		tx.Amount.Cents, string(tx.Type),
		tx.CategoryID, boolToInt(tx.AutoCategorized), tx.Confidence,
		tx.Date.UnixNano(), tx.Description, now, now)
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert transaction rows affected: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE transactions
		SET amount_cents = ?, tx_type = ?, date = ?, description = ?, updated_at = ?
		WHERE id = ?`,
		tx.Amount.Cents, string(tx.Type), tx.Date.UnixNano(), tx.Description, now, tx.ID)
	if err != nil {
		return false, fmt.Errorf("update transaction: %w", err)
	}
	return false, nil
}

// FindSimilarTransactions implements ledger.TransactionStore. Candidate rows
// share at least one narration token with the query; the classifier does the
// real similarity scoring on top.
func (r *SQLiteRepository) FindSimilarTransactions(ctx context.Context, narration string, limit int) ([]core.LedgerTransaction, error) {
	tokens := searchTokens(narration)
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}

	conds := make([]string, len(tokens))
	args := make([]any, 0, len(tokens)+1)
	for i, tok := range tokens {
		conds[i] = "LOWER(description) LIKE ?"
		args = append(args, "%"+tok+"%")
	}
	args = append(args, limit)

	query := `
		SELECT id, account_id, platform, platform_tx_id, amount_cents, tx_type,
		       category_id, auto_categorized, confidence, date, description
		FROM transactions
		WHERE ` + strings.Join(conds, " OR ") + `
		ORDER BY date DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find similar transactions: %w", err)
	}
	defer rows.Close()

	var out []core.LedgerTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan similar transaction: %w", err)
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

// ListActiveAccounts implements ledger.AccountStore.
func (r *SQLiteRepository) ListActiveAccounts(ctx context.Context) ([]core.LinkedAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, platform, credential_ref, balance_cents,
		       sync_status, consecutive_failures, last_synced_at,
		       status_changed_at, deactivated
		FROM linked_accounts
		WHERE deactivated = 0`)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}
	defer rows.Close()

	var out []core.LinkedAccount
	for rows.Next() {
		var (
			a            core.LinkedAccount
			platform     string
			status       string
			lastSynced   sql.NullInt64
			statusChange int64
			deactivated  int64
		)
		err := rows.Scan(&a.ID, &a.UserID, &a.Name, &platform, &a.CredentialRef,
			&a.Balance.Cents, &status, &a.ConsecutiveFailures, &lastSynced,
			&statusChange, &deactivated)
		if err != nil {
			return nil, fmt.Errorf("scan linked account: %w", err)
		}
		a.Platform = core.Platform(platform)
		a.Status = core.SyncStatus(status)
		a.StatusChangedAt = time.Unix(0, statusChange)
		a.Deactivated = deactivated != 0
		if lastSynced.Valid {
			t := time.Unix(0, lastSynced.Int64)
			a.LastSyncedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ClaimForSync implements ledger.AccountStore. The WHERE clause carries the
// expected status and its change timestamp, so only the run that loaded the
// current row wins the claim.
func (r *SQLiteRepository) ClaimForSync(ctx context.Context, accountID string, expected core.SyncStatus, expectedChangedAt, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE linked_accounts
		SET sync_status = ?, status_changed_at = ?
		WHERE id = ? AND sync_status = ? AND status_changed_at = ?`,
		string(core.SyncInProgress), now.UnixNano(),
		accountID, string(expected), expectedChangedAt.UnixNano())
	if err != nil {
		return false, fmt.Errorf("claim account for sync: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim account rows affected: %w", err)
	}
	return affected == 1, nil
}

// UpdateSyncHealth implements ledger.AccountStore. One statement, so the
// status, streak and timestamps can never be observed half-applied.
func (r *SQLiteRepository) UpdateSyncHealth(ctx context.Context, accountID string, patch ledger.HealthPatch) error {
	var lastSynced sql.NullInt64
	if patch.LastSyncedAt != nil {
		lastSynced = sql.NullInt64{Int64: patch.LastSyncedAt.UnixNano(), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE linked_accounts
		SET sync_status = ?, consecutive_failures = ?,
		    last_synced_at = COALESCE(?, last_synced_at),
		    status_changed_at = ?
		WHERE id = ?`,
		string(patch.Status), patch.ConsecutiveFailures, lastSynced,
		patch.StatusChangedAt.UnixNano(), accountID)
	if err != nil {
		return fmt.Errorf("update sync health: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sync health rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update sync health: account %s not found", accountID)
	}
	return nil
}

// SaveSyncRun implements ledger.ReportStore. Per-account outcomes go in as a
// JSON column; the aggregates get their own columns for querying.
func (r *SQLiteRepository) SaveSyncRun(ctx context.Context, report *core.SyncReport) error {
	outcomes, err := json.Marshal(report.Outcomes())
	if err != nil {
		return fmt.Errorf("marshal run outcomes: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sync_runs
			(run_id, started_at, finished_at, total_accounts,
			 total_transactions, total_new_transactions, failure_count, outcomes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.StartedAt.UnixNano(), report.FinishedAt.UnixNano(),
		report.TotalAccounts(), report.TotalTransactionsSynced(),
		report.TotalNewTransactions(), report.FailureCount(), string(outcomes))
	if err != nil {
		return fmt.Errorf("save sync run: %w", err)
	}

	slog.InfoContext(ctx, "Sync run saved",
		"run_id", report.RunID,
		"accounts", report.TotalAccounts(),
		"failures", report.FailureCount())
	return nil
}

// NetWorth implements ledger.NetWorthReader.
func (r *SQLiteRepository) NetWorth(ctx context.Context, userID string) (core.Money, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN t.tx_type = 'income'
		                         THEN t.amount_cents
		                         ELSE -t.amount_cents END), 0)
		FROM transactions t
		JOIN linked_accounts a ON a.id = t.account_id
		WHERE a.user_id = ?`, userID)

	var cents int64
	if err := row.Scan(&cents); err != nil {
		return core.Money{}, fmt.Errorf("compute net worth: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// CreateAccount inserts a linked account. Account linking itself happens in
// another service; this exists for seeding and tests.
func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.LinkedAccount) error {
	var lastSynced sql.NullInt64
	if a.LastSyncedAt != nil {
		lastSynced = sql.NullInt64{Int64: a.LastSyncedAt.UnixNano(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO linked_accounts
			(id, user_id, name, platform, credential_ref, balance_cents,
			 sync_status, consecutive_failures, last_synced_at,
			 status_changed_at, deactivated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, string(a.Platform), a.CredentialRef,
		a.Balance.Cents, string(a.Status), a.ConsecutiveFailures,
		lastSynced, a.StatusChangedAt.UnixNano(), boolToInt(a.Deactivated))
	if err != nil {
		return fmt.Errorf("create linked account: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*core.LedgerTransaction, error) {
	var (
		tx       core.LedgerTransaction
		platform string
		txType   string
		autoCat  int64
		date     int64
	)
	err := row.Scan(&tx.ID, &tx.AccountID, &platform, &tx.PlatformTxID,
		&tx.Amount.Cents, &txType, &tx.CategoryID, &autoCat, &tx.Confidence,
		&date, &tx.Description)
	if err != nil {
		return nil, err
	}
	tx.Platform = core.Platform(platform)
	tx.Type = core.TransactionType(txType)
	tx.AutoCategorized = autoCat != 0
	tx.Date = time.Unix(0, date)
	return &tx, nil
}

// searchTokens lowercases the narration, strips punctuation and keeps tokens
// long enough to be selective in a LIKE scan.
func searchTokens(narration string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(narration) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	var tokens []string
	for _, tok := range strings.Fields(b.String()) {
		if len(tok) >= 3 {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) > 5 {
		tokens = tokens[:5]
	}
	return tokens
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
