// Package sync implements the dual-platform background synchronization
// engine: per-platform workers that pull, normalize, classify and upsert
// transactions, and the orchestrator that drives them with bounded
// concurrency per platform.
package sync

import (
	"context"
	"log/slog"
	"time"

	"finsync/internal/classify"
	"finsync/internal/core"
	"finsync/internal/ledger"
	"finsync/internal/platform"
)

// Platform-specific default lookbacks for accounts that have never synced.
// The mobile-money API throttles aggressively, so its first pull is kept
// short; the bank aggregator tolerates a full month.
const (
	DefaultBankLookback        = 30 * 24 * time.Hour
	DefaultMobileMoneyLookback = 14 * 24 * time.Hour
)

// Worker syncs one account of its platform per call. It never retries;
// retry policy belongs to the next scheduled orchestrator pass.
type Worker struct {
	client     platform.Client
	store      ledger.TransactionStore
	classifier *classify.Classifier
	lookback   time.Duration
}

func NewWorker(client platform.Client, store ledger.TransactionStore, classifier *classify.Classifier, lookback time.Duration) *Worker {
	return &Worker{
		client:     client,
		store:      store,
		classifier: classifier,
		lookback:   lookback,
	}
}

// NewBankWorker builds the bank-platform variant with its default lookback.
func NewBankWorker(client platform.Client, store ledger.TransactionStore, classifier *classify.Classifier) *Worker {
	return NewWorker(client, store, classifier, DefaultBankLookback)
}

// NewMobileMoneyWorker builds the mobile-money variant with its default lookback.
func NewMobileMoneyWorker(client platform.Client, store ledger.TransactionStore, classifier *classify.Classifier) *Worker {
	return NewWorker(client, store, classifier, DefaultMobileMoneyLookback)
}

// SyncAccount runs the strictly sequential per-account pipeline: credential
// check, fetch, normalize, classify new records, upsert, count. Errors are
// folded into the outcome and never escape the worker boundary.
//
// A partial upstream failure mid-fetch does not lose the pages already
// fetched: whatever arrived is still upserted and the outcome reports the
// partial count with status error.
func (w *Worker) SyncAccount(ctx context.Context, account core.LinkedAccount, dateRange *platform.DateRange) core.AccountOutcome {
	started := time.Now()
	outcome := core.AccountOutcome{
		AccountID: account.ID,
		UserID:    account.UserID,
		Platform:  account.Platform,
	}

	if account.Platform != w.client.Platform() {
		outcome.Status = core.OutcomeError
		outcome.ErrorDetail = "account platform does not match worker platform"
		return *finish(&outcome, started)
	}

	valid, err := w.client.ValidateCredentials(ctx, account.CredentialRef)
	if err != nil {
		outcome.Status = core.OutcomeForError(err)
		outcome.ErrorDetail = err.Error()
		slog.WarnContext(ctx, "Credential check failed",
			"account_id", account.ID,
			"platform", account.Platform,
			"status", outcome.Status)
		return *finish(&outcome, started)
	}
	if !valid {
		outcome.Status = core.OutcomeAuthError
		outcome.ErrorDetail = "upstream reports credentials no longer authorized"
		return *finish(&outcome, started)
	}

	r := w.resolveRange(account, dateRange)
	raws, fetchErr := w.client.FetchTransactions(ctx, account.CredentialRef, r)
	if fetchErr != nil {
		slog.WarnContext(ctx, "Transaction fetch failed, keeping partial results",
			"account_id", account.ID,
			"platform", account.Platform,
			"fetched", len(raws),
			"error", fetchErr)
	}

	upsertErr := w.processRecords(ctx, account, raws, &outcome)

	switch {
	case fetchErr != nil:
		outcome.Status = core.OutcomeForError(fetchErr)
		outcome.ErrorDetail = fetchErr.Error()
	case upsertErr != nil:
		outcome.Status = core.OutcomeError
		outcome.ErrorDetail = upsertErr.Error()
	default:
		outcome.Status = core.OutcomeSuccess
	}

	slog.InfoContext(ctx, "Account sync finished",
		"account_id", account.ID,
		"platform", account.Platform,
		"status", outcome.Status,
		"synced", outcome.TransactionsSynced,
		"new", outcome.NewTransactions,
		"updated", outcome.UpdatedTransactions)

	return *finish(&outcome, started)
}

// processRecords normalizes and upserts every fetched record. Only records
// the ledger has never seen are classified; existing rows keep their
// category fields, so user feedback always wins over re-classification.
// The first upsert failure is returned but later records are still tried.
func (w *Worker) processRecords(ctx context.Context, account core.LinkedAccount, raws []core.RawTransaction, outcome *core.AccountOutcome) error {
	var firstErr error
	for _, raw := range raws {
		candidate := raw.Normalize(account)

		existing, err := w.store.GetTransaction(ctx, candidate.ID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if existing == nil {
			suggestion := w.classifier.Classify(ctx, raw.Narration, raw.AmountCents, string(account.Platform), raw.Counterparty)
			candidate.CategoryID = suggestion.CategoryID
			candidate.AutoCategorized = true
			candidate.Confidence = suggestion.Confidence
		}

		created, err := w.store.UpsertTransaction(ctx, candidate)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		outcome.TransactionsSynced++
		if created {
			outcome.NewTransactions++
			if candidate.Type == core.Expense {
				outcome.NewExpenses++
			}
		} else {
			outcome.UpdatedTransactions++
		}
	}

	outcome.BalanceChanged = outcome.NewTransactions > 0 || outcome.UpdatedTransactions > 0
	return firstErr
}

// resolveRange picks the explicit range, or defaults to everything since
// the last sync, or the platform lookback for accounts never synced.
func (w *Worker) resolveRange(account core.LinkedAccount, dateRange *platform.DateRange) platform.DateRange {
	if dateRange != nil {
		return *dateRange
	}
	end := time.Now().UTC()
	if account.LastSyncedAt != nil {
		return platform.DateRange{Start: *account.LastSyncedAt, End: end}
	}
	return platform.DateRange{Start: end.Add(-w.lookback), End: end}
}

func finish(outcome *core.AccountOutcome, started time.Time) *core.AccountOutcome {
	outcome.Duration = time.Since(started)
	return outcome
}
