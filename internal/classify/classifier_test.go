package classify

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"finsync/internal/core"
)

type stubFinder struct {
	results []core.LedgerTransaction
	err     error
}

func (f *stubFinder) FindSimilarTransactions(_ context.Context, _ string, _ int) ([]core.LedgerTransaction, error) {
	return f.results, f.err
}

func TestClassify_Deterministic(t *testing.T) {
	c := New(nil)
	ctx := context.Background()

	first := c.Classify(ctx, "KFC Accra Mall", -2550, "bank", "")
	second := c.Classify(ctx, "KFC Accra Mall", -2550, "bank", "")

	if !reflect.DeepEqual(first, second) {
		t.Errorf("same input produced different suggestions: %+v vs %+v", first, second)
	}
	if first.CategoryID != "food_dining" {
		t.Errorf("expected food_dining, got %s", first.CategoryID)
	}
	if first.Confidence <= HighConfidence {
		t.Errorf("expected high confidence (> %.2f), got %.2f", HighConfidence, first.Confidence)
	}
}

func TestClassify_KeywordMatches(t *testing.T) {
	c := New(nil)
	ctx := context.Background()

	tests := []struct {
		name       string
		narration  string
		hint       string
		category   string
		txType     core.TransactionType
		minReasons int
	}{
		{"ride hailing", "UBER TRIP HELP.UBER.COM", "bank", "transport", core.Expense, 1},
		{"groceries", "POS Purchase SHOPRITE ACCRA", "bank", "groceries", core.Expense, 1},
		{"airtime via momo", "MTN airtime recharge", "mobile_money", "airtime_data", core.Expense, 2},
		{"salary", "ACME LTD SALARY MARCH", "bank", "income_salary", core.Income, 1},
		{"utility", "ECG prepaid meter purchase", "bank", "utilities", core.Expense, 1},
		{"levy", "E-LEVY charge on transfer", "mobile_money", "fees_charges", core.Expense, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(ctx, tt.narration, -1000, tt.hint, "")
			if got.CategoryID != tt.category {
				t.Errorf("category = %s, want %s (reasons: %v)", got.CategoryID, tt.category, got.Reasons)
			}
			if got.SuggestedType != tt.txType {
				t.Errorf("type = %s, want %s", got.SuggestedType, tt.txType)
			}
			if got.Confidence < HighConfidence {
				t.Errorf("keyword match should be high confidence, got %.2f", got.Confidence)
			}
			if len(got.Reasons) < tt.minReasons {
				t.Errorf("expected at least %d reasons, got %v", tt.minReasons, got.Reasons)
			}
		})
	}
}

func TestClassify_NoSignalReturnsUncategorized(t *testing.T) {
	c := New(nil)

	got := c.Classify(context.Background(), "ZXQR 99881 REF", -500, "bank", "")

	if got.CategoryID != CategoryUncategorized {
		t.Errorf("expected uncategorized, got %s", got.CategoryID)
	}
	if got.Confidence != 0 {
		t.Errorf("expected zero confidence, got %.2f", got.Confidence)
	}
	if got.SuggestedType != core.Expense {
		t.Errorf("negative amount should suggest expense, got %s", got.SuggestedType)
	}
}

func TestClassify_SimilarityFallback(t *testing.T) {
	date := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	finder := &stubFinder{results: []core.LedgerTransaction{
		{Description: "Aseda Ventures payment", CategoryID: "rent_housing", Type: core.Expense, Date: date},
		{Description: "Aseda Ventures monthly payment", CategoryID: "rent_housing", Type: core.Expense, Date: date},
		{Description: "Aseda Ventures", CategoryID: "rent_housing", Type: core.Expense, Date: date},
	}}
	c := New(finder)

	got := c.Classify(context.Background(), "Aseda Ventures payment ref 4417", -90000, "bank", "")

	if got.CategoryID != "rent_housing" {
		t.Errorf("expected rent_housing via similarity, got %s (reasons %v)", got.CategoryID, got.Reasons)
	}
	if got.Confidence < LowConfidence || got.Confidence >= HighConfidence {
		t.Errorf("fallback confidence should sit in the medium band, got %.2f", got.Confidence)
	}
	if got.SuggestedType != core.Expense {
		t.Errorf("expected expense, got %s", got.SuggestedType)
	}
}

func TestClassify_SimilarityIgnoresUncategorized(t *testing.T) {
	finder := &stubFinder{results: []core.LedgerTransaction{
		{Description: "Mystery merchant 1", CategoryID: CategoryUncategorized},
		{Description: "Mystery merchant 2", CategoryID: ""},
	}}
	c := New(finder)

	got := c.Classify(context.Background(), "Mystery merchant 3", -100, "bank", "")

	if got.CategoryID != CategoryUncategorized {
		t.Errorf("uncategorized neighbours must not vote, got %s", got.CategoryID)
	}
}

func TestClassify_FinderErrorDisablesFallbackOnly(t *testing.T) {
	finder := &stubFinder{err: errors.New("db closed")}
	c := New(finder)

	got := c.Classify(context.Background(), "unknown narration", -100, "bank", "")

	if got.CategoryID != CategoryUncategorized || got.Confidence != 0 {
		t.Errorf("finder failure must degrade to uncategorized, got %+v", got)
	}
}

func TestClassify_CounterpartyContributes(t *testing.T) {
	c := New(nil)

	got := c.Classify(context.Background(), "POS purchase 99812", -3000, "bank", "Shoprite")

	if got.CategoryID != "groceries" {
		t.Errorf("counterparty should feed keyword matching, got %s", got.CategoryID)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"KFC Accra Mall", "kfc accra mall"},
		{"  UBER *TRIP-4417  ", "uber trip 4417"},
		{"E-LEVY!!", "e levy"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalize(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokenOverlap(t *testing.T) {
	if got := tokenOverlap("uber trip accra", "uber trip accra"); got != 1 {
		t.Errorf("identical token sets should overlap fully, got %.2f", got)
	}
	if got := tokenOverlap("uber trip", "shoprite accra"); got != 0 {
		t.Errorf("disjoint token sets should not overlap, got %.2f", got)
	}
}
