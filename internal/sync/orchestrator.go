package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"finsync/internal/core"
	"finsync/internal/ledger"
)

// Notifier is the push-notification trigger contract. Implementations are
// fire-and-forget: delivery failures must never fail a sync run, so the
// methods return nothing.
type Notifier interface {
	NotifyReauthRequired(ctx context.Context, userID, accountName, accountID string, platform core.Platform)
	NotifySyncCompleted(ctx context.Context, userID, accountName string, transactionCount int, platform core.Platform)
}

// AlertTrigger receives one coalesced signal per user whose expense
// transactions changed during a run.
type AlertTrigger interface {
	OnExpenseTransactionsChanged(userID string)
}

// CacheInvalidator drops cached net-worth snapshots for users whose
// balances moved.
type CacheInvalidator interface {
	Invalidate(userID string)
}

// Options control a single orchestrator run.
type Options struct {
	// ForceSync makes every active account due regardless of staleness.
	ForceSync bool

	// Staleness thresholds are platform-specific because the two upstream
	// APIs have different rate-limit and freshness characteristics.
	BankStaleThreshold        time.Duration
	MobileMoneyStaleThreshold time.Duration

	// Per-platform concurrency caps for the worker pools.
	MaxConcurrentBank        int
	MaxConcurrentMobileMoney int

	// Timeout is the hard deadline for the whole run. Zero means the
	// caller's context governs.
	Timeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		BankStaleThreshold:        12 * time.Hour,
		MobileMoneyStaleThreshold: 4 * time.Hour,
		MaxConcurrentBank:         3,
		MaxConcurrentMobileMoney:  5,
		Timeout:                   10 * time.Minute,
	}
}

// FailureNotifyThreshold is the consecutive-failure count at which a
// re-authentication notification fires, exactly once per crossing.
const FailureNotifyThreshold = 3

// Orchestrator loads due accounts, partitions them by platform, drives the
// two worker pools and persists the resulting health updates. Construct one
// per process with its dependencies passed in; there is no shared global
// instance.
type Orchestrator struct {
	store    ledger.Store
	bank     *Worker
	momo     *Worker
	notifier Notifier
	alerts   AlertTrigger
	cache    CacheInvalidator

	now func() time.Time
}

func NewOrchestrator(store ledger.Store, bank, momo *Worker, notifier Notifier, alerts AlertTrigger, cache CacheInvalidator) *Orchestrator {
	return &Orchestrator{
		store:    store,
		bank:     bank,
		momo:     momo,
		notifier: notifier,
		alerts:   alerts,
		cache:    cache,
		now:      time.Now,
	}
}

// Run executes one full sync pass and always returns a report covering
// every due account, with failures reflected per account. The only fatal
// condition is failing to enumerate the due accounts at all.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*core.SyncReport, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	started := o.now()
	accounts, err := o.store.ListActiveAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}

	bankQueue, momoQueue := o.partitionDue(accounts, started, opts)

	report := &core.SyncReport{
		RunID:     uuid.NewString(),
		StartedAt: started,
	}

	slog.InfoContext(ctx, "Sync run starting",
		"run_id", report.RunID,
		"bank_due", len(bankQueue),
		"mobile_money_due", len(momoQueue),
		"force", opts.ForceSync)

	bankOutcomes := make([]core.AccountOutcome, len(bankQueue))
	momoOutcomes := make([]core.AccountOutcome, len(momoQueue))

	// The two platform pools are fully independent: an outage or stall on
	// one upstream never blocks the other.
	var pools errgroup.Group
	pools.Go(func() error {
		o.runQueue(ctx, o.bank, bankQueue, bankOutcomes, opts.MaxConcurrentBank)
		return nil
	})
	pools.Go(func() error {
		o.runQueue(ctx, o.momo, momoQueue, momoOutcomes, opts.MaxConcurrentMobileMoney)
		return nil
	})
	_ = pools.Wait()

	for _, outcome := range bankOutcomes {
		report.Add(outcome)
	}
	for _, outcome := range momoOutcomes {
		report.Add(outcome)
	}
	report.FinishedAt = o.now()

	o.fanOutSideEffects(ctx, report)

	if err := o.store.SaveSyncRun(ctx, report); err != nil {
		// Audit logging is best-effort; the report is still valid.
		slog.WarnContext(ctx, "Failed to persist sync run", "run_id", report.RunID, "error", err)
	}

	slog.InfoContext(ctx, "Sync run finished",
		"run_id", report.RunID,
		"accounts", report.TotalAccounts(),
		"synced", report.TotalTransactionsSynced(),
		"failures", report.FailureCount(),
		"duration", report.Duration())

	return report, nil
}

// partitionDue selects due accounts and splits them into per-platform queues.
func (o *Orchestrator) partitionDue(accounts []core.LinkedAccount, now time.Time, opts Options) (bank, momo []core.LinkedAccount) {
	for _, account := range accounts {
		switch account.Platform {
		case core.PlatformBank:
			if account.DueForSync(now, opts.BankStaleThreshold, opts.ForceSync) {
				bank = append(bank, account)
			}
		case core.PlatformMobileMoney:
			if account.DueForSync(now, opts.MobileMoneyStaleThreshold, opts.ForceSync) {
				momo = append(momo, account)
			}
		}
	}
	return bank, momo
}

// runQueue executes one platform's queue with a fixed-size worker pool.
// Outcomes land in the slot matching their queue index, so every due
// account reports exactly once without any locking.
func (o *Orchestrator) runQueue(ctx context.Context, worker *Worker, queue []core.LinkedAccount, outcomes []core.AccountOutcome, limit int) {
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, account := range queue {
		i, account := i, account
		g.Go(func() error {
			outcomes[i] = o.syncOne(ctx, worker, account)
			return nil
		})
	}
	_ = g.Wait()
}

// syncOne claims the account, runs the worker and applies the health
// update. The claim is a compare-and-set: when a concurrent run (manual
// force-sync overlapping the schedule) wins the claim, this run reports
// the account without touching its state.
func (o *Orchestrator) syncOne(ctx context.Context, worker *Worker, account core.LinkedAccount) core.AccountOutcome {
	if ctx.Err() != nil {
		return core.AccountOutcome{
			AccountID:   account.ID,
			UserID:      account.UserID,
			Platform:    account.Platform,
			Status:      core.OutcomeError,
			ErrorDetail: "run deadline reached before account was dispatched",
		}
	}

	claimed, err := o.store.ClaimForSync(ctx, account.ID, account.Status, account.StatusChangedAt, o.now())
	if err != nil {
		return core.AccountOutcome{
			AccountID:   account.ID,
			UserID:      account.UserID,
			Platform:    account.Platform,
			Status:      core.OutcomeError,
			ErrorDetail: fmt.Sprintf("claim account: %v", err),
		}
	}
	if !claimed {
		slog.InfoContext(ctx, "Account claimed by concurrent run, skipping",
			"account_id", account.ID, "platform", account.Platform)
		return core.AccountOutcome{
			AccountID:   account.ID,
			UserID:      account.UserID,
			Platform:    account.Platform,
			Status:      core.OutcomeError,
			ErrorDetail: "account already in progress in a concurrent run",
		}
	}

	outcome := worker.SyncAccount(ctx, account, nil)

	if ctx.Err() != nil && outcome.Status != core.OutcomeSuccess {
		// Deadline hit mid-flight: leave the account InProgress so the next
		// run's stale-lock recovery retries it, instead of forcing an error
		// state prematurely.
		return outcome
	}

	o.applyHealthUpdate(ctx, account, outcome)
	return outcome
}

// applyHealthUpdate persists the post-run account state transition and
// fires the re-auth notification exactly once per threshold crossing.
func (o *Orchestrator) applyHealthUpdate(ctx context.Context, account core.LinkedAccount, outcome core.AccountOutcome) {
	now := o.now()
	patch := ledger.HealthPatch{StatusChangedAt: now}

	switch outcome.Status {
	case core.OutcomeSuccess:
		patch.Status = core.SyncActive
		patch.ConsecutiveFailures = 0
		patch.LastSyncedAt = &now
	case core.OutcomeRateLimited:
		// Transient throttle: the account itself is healthy and the streak
		// is left untouched.
		patch.Status = core.SyncActive
		patch.ConsecutiveFailures = account.ConsecutiveFailures
	case core.OutcomeAuthError:
		patch.Status = core.SyncAuthRequired
		patch.ConsecutiveFailures = account.ConsecutiveFailures + 1
	default:
		patch.Status = core.SyncError
		patch.ConsecutiveFailures = account.ConsecutiveFailures + 1
	}

	if err := o.store.UpdateSyncHealth(ctx, account.ID, patch); err != nil {
		slog.ErrorContext(ctx, "Failed to update account sync health",
			"account_id", account.ID, "error", err)
	}

	o.maybeNotify(ctx, account, outcome, patch)
}

func (o *Orchestrator) maybeNotify(ctx context.Context, account core.LinkedAccount, outcome core.AccountOutcome, patch ledger.HealthPatch) {
	if o.notifier == nil {
		return
	}

	becameAuthError := outcome.Status == core.OutcomeAuthError && account.Status != core.SyncAuthRequired
	crossedThreshold := outcome.Status.Failed() &&
		account.ConsecutiveFailures < FailureNotifyThreshold &&
		patch.ConsecutiveFailures >= FailureNotifyThreshold

	if becameAuthError || crossedThreshold {
		o.notifier.NotifyReauthRequired(ctx, account.UserID, account.Name, account.ID, account.Platform)
	}

	if outcome.Status == core.OutcomeSuccess && outcome.NewTransactions > 0 {
		o.notifier.NotifySyncCompleted(ctx, account.UserID, account.Name, outcome.NewTransactions, account.Platform)
	}
}

// fanOutSideEffects invalidates cached net worth and emits one coalesced
// alert trigger per user with new expense activity.
func (o *Orchestrator) fanOutSideEffects(ctx context.Context, report *core.SyncReport) {
	invalidated := make(map[string]bool)
	alerted := make(map[string]bool)

	for _, outcome := range report.Outcomes() {
		if outcome.UserID == "" {
			continue
		}
		if o.cache != nil && outcome.BalanceChanged && !invalidated[outcome.UserID] {
			invalidated[outcome.UserID] = true
			o.cache.Invalidate(outcome.UserID)
		}
		if o.alerts != nil && outcome.Status == core.OutcomeSuccess && outcome.NewExpenses > 0 && !alerted[outcome.UserID] {
			alerted[outcome.UserID] = true
			o.alerts.OnExpenseTransactionsChanged(outcome.UserID)
		}
	}

	if len(invalidated) > 0 || len(alerted) > 0 {
		slog.DebugContext(ctx, "Post-sync side effects dispatched",
			"cache_invalidations", len(invalidated),
			"alert_triggers", len(alerted))
	}
}
