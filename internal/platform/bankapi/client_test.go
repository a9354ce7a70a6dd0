package bankapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"finsync/internal/core"
	"finsync/internal/platform"
)

func testRange() platform.DateRange {
	return platform.DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetchTransactionsPagination(t *testing.T) {
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{
				"data": [
					{"id": "tx-1", "amount": -4500, "date": "2024-01-10T09:30:00Z", "narration": "KFC Accra Mall"},
					{"id": "tx-2", "amount": 500000, "date": "2024-01-15T00:00:00Z", "narration": "Salary", "counterparty": "Employer Ltd"}
				],
				"paging": {"next": "page2"}
			}`)
		case "2":
			fmt.Fprint(w, `{
				"data": [{"id": "tx-3", "amount": -1200, "date": "2024-01-20T12:00:00Z", "narration": "Uber trip"}],
				"paging": {"next": ""}
			}`)
		default:
			http.Error(w, "bad page", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	txs, err := client.FetchTransactions(context.Background(), "inst-1", testRange())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions across pages, got %d", len(txs))
	}
	if txs[0].PlatformTxID != "tx-1" || txs[0].AmountCents != -4500 {
		t.Errorf("first record = %+v", txs[0])
	}
	if txs[1].Counterparty != "Employer Ltd" {
		t.Errorf("counterparty not decoded: %+v", txs[1])
	}
	if authHeader != "Bearer test-token" {
		t.Errorf("auth header = %q", authHeader)
	}
}

func TestFetchTransactionsStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, core.ErrAuthRequired},
		{"forbidden", http.StatusForbidden, core.ErrAuthRequired},
		{"rate limited", http.StatusTooManyRequests, core.ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := NewClient(srv.URL, "test-token")
			_, err := client.FetchTransactions(context.Background(), "inst-1", testRange())
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFetchTransactionsPartialProgress(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, `{
				"data": [{"id": "tx-1", "amount": -100, "date": "2024-01-10T09:30:00Z", "narration": "first page"}],
				"paging": {"next": "page2"}
			}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	txs, err := client.FetchTransactions(context.Background(), "inst-1", testRange())
	if err == nil {
		t.Fatal("expected error from second page")
	}
	if len(txs) != 1 {
		t.Fatalf("expected the first page back with the error, got %d records", len(txs))
	}
}

func TestFetchTransactionsBadDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [{"id": "tx-1", "amount": -100, "date": "10/01/2024", "narration": "x"}], "paging": {"next": ""}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	_, err := client.FetchTransactions(context.Background(), "inst-1", testRange())
	var de *core.DataError
	if !errors.As(err, &de) {
		t.Fatalf("expected DataError, got %v", err)
	}
	if de.Platform != core.PlatformBank {
		t.Errorf("data error platform = %s", de.Platform)
	}
}

func TestValidateCredentials(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantValid bool
	}{
		{"active account", `{"data": {"id": "inst-1", "status": "available"}}`, true},
		{"needs reauth", `{"data": {"id": "inst-1", "status": "reauthorisation_required"}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			client := NewClient(srv.URL, "test-token")
			valid, err := client.ValidateCredentials(context.Background(), "inst-1")
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if valid != tt.wantValid {
				t.Errorf("valid = %v, want %v", valid, tt.wantValid)
			}
		})
	}
}
