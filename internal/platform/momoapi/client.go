// Package momoapi is the HTTP client for the mobile-money platform.
package momoapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"finsync/internal/core"
	"finsync/internal/platform"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) Platform() core.Platform { return core.PlatformMobileMoney }

type walletEnvelope struct {
	Wallet struct {
		Reference string `json:"reference"`
		Active    bool   `json:"active"`
	} `json:"wallet"`
}

// transactionsEnvelope is one cursor page of wallet transactions. Amounts
// arrive as minor units with a direction flag instead of a sign.
type transactionsEnvelope struct {
	Transactions []struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Direction string `json:"direction"` // "credit" or "debit"
		Timestamp int64  `json:"timestamp"` // unix seconds
		Narration string `json:"narration"`
		Party     string `json:"party,omitempty"`
	} `json:"transactions"`
	NextCursor string `json:"next_cursor"`
}

// ValidateCredentials checks the wallet reference is still active for the
// linked phone number.
func (c *Client) ValidateCredentials(ctx context.Context, credentialRef string) (bool, error) {
	var envelope walletEnvelope
	endpoint := fmt.Sprintf("%s/wallets/%s", c.baseURL, url.PathEscape(credentialRef))
	if err := c.get(ctx, endpoint, &envelope); err != nil {
		return false, err
	}
	return envelope.Wallet.Active, nil
}

// FetchTransactions walks the cursor-paged wallet history. Partial progress
// is returned alongside any mid-fetch error.
func (c *Client) FetchTransactions(ctx context.Context, credentialRef string, r platform.DateRange) ([]core.RawTransaction, error) {
	var out []core.RawTransaction

	cursor := ""
	for {
		endpoint := fmt.Sprintf("%s/wallets/%s/transactions?from=%d&to=%d",
			c.baseURL, url.PathEscape(credentialRef), r.Start.Unix(), r.End.Unix())
		if cursor != "" {
			endpoint += "&cursor=" + url.QueryEscape(cursor)
		}

		var envelope transactionsEnvelope
		if err := c.get(ctx, endpoint, &envelope); err != nil {
			return out, fmt.Errorf("fetch wallet transactions: %w", err)
		}

		for _, rec := range envelope.Transactions {
			if rec.Reference == "" {
				return out, &core.DataError{Platform: core.PlatformMobileMoney, Detail: "transaction without reference"}
			}
			amount := rec.Amount
			switch rec.Direction {
			case "debit":
				amount = -amount
			case "credit":
			default:
				return out, &core.DataError{
					Platform: core.PlatformMobileMoney,
					Detail:   "unknown direction " + rec.Direction,
				}
			}
			out = append(out, core.RawTransaction{
				PlatformTxID: rec.Reference,
				AmountCents:  amount,
				Timestamp:    time.Unix(rec.Timestamp, 0).UTC(),
				Narration:    rec.Narration,
				Counterparty: rec.Party,
			})
		}

		if envelope.NextCursor == "" {
			return out, nil
		}
		cursor = envelope.NextCursor
	}
}

func (c *Client) get(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("momo api request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("momo api status %d: %w", resp.StatusCode, core.ErrAuthRequired)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("momo api status %d: %w", resp.StatusCode, core.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("momo api status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &core.DataError{Platform: core.PlatformMobileMoney, Detail: "decode response", Err: err}
	}
	return nil
}
