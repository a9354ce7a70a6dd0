// Package platform defines the fetch-and-parse boundary in front of the
// two upstream transaction sources. The engine treats both as opaque,
// fallible network services; transport specifics live in the bankapi and
// momoapi subpackages.
package platform

import (
	"context"
	"time"

	"finsync/internal/core"
)

// DateRange bounds a transaction fetch. End is inclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Client is implemented once per upstream platform.
type Client interface {
	// Platform reports which upstream this client talks to.
	Platform() core.Platform

	// ValidateCredentials performs a cheap existence/credential check for
	// the opaque credential reference. A false return means the user has
	// to re-link the account.
	ValidateCredentials(ctx context.Context, credentialRef string) (bool, error)

	// FetchTransactions returns the raw records for the range, already
	// converted to ledger-currency minor units. Implementations page
	// through the upstream API and may return the records fetched so far
	// together with a non-nil error when a later page fails; callers are
	// expected to keep that partial progress.
	FetchTransactions(ctx context.Context, credentialRef string, r DateRange) ([]core.RawTransaction, error)
}
