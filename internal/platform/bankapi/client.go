// Package bankapi is the HTTP client for the bank-aggregation platform.
package bankapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
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

func (c *Client) Platform() core.Platform { return core.PlatformBank }

// accountEnvelope is the subset of the account endpoint we care about.
type accountEnvelope struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// transactionsEnvelope is one page of the transactions endpoint.
type transactionsEnvelope struct {
	Data []struct {
		ID           string `json:"id"`
		Amount       int64  `json:"amount"`
		Date         string `json:"date"`
		Narration    string `json:"narration"`
		Counterparty string `json:"counterparty,omitempty"`
	} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// ValidateCredentials checks the linked institution account still exists
// and is not flagged for re-authentication upstream.
func (c *Client) ValidateCredentials(ctx context.Context, credentialRef string) (bool, error) {
	var envelope accountEnvelope
	endpoint := fmt.Sprintf("%s/accounts/%s", c.baseURL, url.PathEscape(credentialRef))
	if err := c.get(ctx, endpoint, &envelope); err != nil {
		return false, err
	}
	return envelope.Data.Status != "reauthorisation_required", nil
}

// FetchTransactions pages through the transactions endpoint. On a mid-fetch
// failure the records collected so far are returned with the error so the
// caller can keep partial progress.
func (c *Client) FetchTransactions(ctx context.Context, credentialRef string, r platform.DateRange) ([]core.RawTransaction, error) {
	var out []core.RawTransaction

	page := 1
	for {
		endpoint := fmt.Sprintf("%s/accounts/%s/transactions?start=%s&end=%s&page=%d",
			c.baseURL,
			url.PathEscape(credentialRef),
			r.Start.Format("2006-01-02"),
			r.End.Format("2006-01-02"),
			page)

		var envelope transactionsEnvelope
		if err := c.get(ctx, endpoint, &envelope); err != nil {
			return out, fmt.Errorf("fetch transactions page %d: %w", page, err)
		}

		for _, rec := range envelope.Data {
			ts, err := time.Parse(time.RFC3339, rec.Date)
			if err != nil {
				return out, &core.DataError{
					Platform: core.PlatformBank,
					Detail:   "unparseable transaction date " + strconv.Quote(rec.Date),
					Err:      err,
				}
			}
			if rec.ID == "" {
				return out, &core.DataError{Platform: core.PlatformBank, Detail: "transaction without id"}
			}
			out = append(out, core.RawTransaction{
				PlatformTxID: rec.ID,
				AmountCents:  rec.Amount,
				Timestamp:    ts,
				Narration:    rec.Narration,
				Counterparty: rec.Counterparty,
			})
		}

		if envelope.Paging.Next == "" {
			return out, nil
		}
		page++
	}
}

func (c *Client) get(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bank api request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("bank api status %d: %w", resp.StatusCode, core.ErrAuthRequired)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("bank api status %d: %w", resp.StatusCode, core.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("bank api status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &core.DataError{Platform: core.PlatformBank, Detail: "decode response", Err: err}
	}
	return nil
}
