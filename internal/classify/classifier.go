// Package classify implements the transaction category classifier: a
// deterministic keyword scorer with a similarity fallback over previously
// seen transactions. Classification never performs network I/O and never
// fails; absence of a match is a zero-confidence result.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"finsync/internal/core"
)

// Confidence bands. At or above High the guess is auto-applied; between
// Low and High it is auto-applied but surfaced for review; below Low the
// classifier refuses to guess and returns Uncategorized instead.
const (
	HighConfidence = 0.8
	LowConfidence  = 0.4
)

// similarity fallback tuning
const (
	similarLimit        = 20
	similarityThreshold = 0.5
	minFallbackWeight   = 0.5
)

// SimilarFinder looks up previously stored transactions whose narration
// resembles the one being classified, most recent first.
type SimilarFinder interface {
	FindSimilarTransactions(ctx context.Context, narration string, limit int) ([]core.LedgerTransaction, error)
}

// Classifier guesses a spending category for a transaction narration.
// With a nil finder only the keyword table is consulted.
type Classifier struct {
	finder SimilarFinder
}

func New(finder SimilarFinder) *Classifier {
	return &Classifier{finder: finder}
}

// Classify returns a category suggestion for the given narration and signed
// amount. The same inputs (including finder results) always produce the
// same suggestion.
func (c *Classifier) Classify(ctx context.Context, narration string, amountCents int64, platformHint string, counterparty string) core.CategorySuggestion {
	text := normalize(narration + " " + counterparty)

	if s, ok := c.classifyByKeywords(text, platformHint); ok {
		return s
	}
	if s, ok := c.classifyBySimilarity(ctx, text, narration); ok {
		return s
	}

	return core.CategorySuggestion{
		CategoryID:    CategoryUncategorized,
		Confidence:    0,
		Reasons:       []string{"no keyword or similarity match"},
		SuggestedType: typeForAmount(amountCents),
	}
}

// keywordScore is one category's tally against the normalized text.
type keywordScore struct {
	entry   categoryKeywords
	matched []string
	// specificity is the length of the longest matched keyword; longer
	// keywords are rarer and break ties between equal match counts.
	specificity int
	hintBonus   bool
}

func (s keywordScore) score() int {
	n := len(s.matched)
	if s.hintBonus {
		n++
	}
	return n
}

func (c *Classifier) classifyByKeywords(text, platformHint string) (core.CategorySuggestion, bool) {
	padded := " " + text + " "

	var best *keywordScore
	for _, entry := range keywordTable {
		s := keywordScore{entry: entry}
		for _, kw := range entry.keywords {
			if strings.Contains(padded, " "+kw+" ") {
				s.matched = append(s.matched, kw)
				if len(kw) > s.specificity {
					s.specificity = len(kw)
				}
			}
		}
		if len(s.matched) == 0 {
			continue
		}
		if platformHint == string(core.PlatformMobileMoney) && momoAffinity[entry.categoryID] {
			s.hintBonus = true
		}
		if best == nil || s.score() > best.score() ||
			(s.score() == best.score() && s.specificity > best.specificity) {
			scored := s
			best = &scored
		}
	}
	if best == nil {
		return core.CategorySuggestion{}, false
	}

	confidence := 0.8 + 0.05*float64(min(len(best.matched), 3))
	reasons := make([]string, 0, len(best.matched)+1)
	for _, kw := range best.matched {
		reasons = append(reasons, "matched keyword: "+kw)
	}
	if best.hintBonus {
		reasons = append(reasons, "platform hint: "+platformHint)
	}

	return core.CategorySuggestion{
		CategoryID:    best.entry.categoryID,
		Confidence:    confidence,
		Reasons:       reasons,
		SuggestedType: best.entry.txType,
	}, true
}

func (c *Classifier) classifyBySimilarity(ctx context.Context, text, narration string) (core.CategorySuggestion, bool) {
	if c.finder == nil {
		return core.CategorySuggestion{}, false
	}
	previous, err := c.finder.FindSimilarTransactions(ctx, narration, similarLimit)
	if err != nil || len(previous) == 0 {
		// A store failure here only disables the fallback.
		return core.CategorySuggestion{}, false
	}

	type vote struct {
		weight  float64
		count   int
		txType  core.TransactionType
		firstAt int
	}
	votes := make(map[string]*vote)
	var totalWeight float64

	for i, prev := range previous {
		if prev.CategoryID == "" || prev.CategoryID == CategoryUncategorized {
			continue
		}
		sim := textSimilarity(text, normalize(prev.Description))
		if sim < similarityThreshold {
			continue
		}
		// Recency weight: the store returns most-recent-first, so earlier
		// entries count more.
		weight := sim * (1 - 0.5*float64(i)/float64(len(previous)))
		totalWeight += weight
		v, ok := votes[prev.CategoryID]
		if !ok {
			v = &vote{txType: prev.Type, firstAt: i}
			votes[prev.CategoryID] = v
		}
		v.weight += weight
		v.count++
	}
	if totalWeight == 0 {
		return core.CategorySuggestion{}, false
	}

	var bestID string
	var best *vote
	for id, v := range votes {
		if best == nil || v.weight > best.weight ||
			(v.weight == best.weight && v.firstAt < best.firstAt) {
			bestID, best = id, v
		}
	}
	if best.weight < minFallbackWeight {
		return core.CategorySuggestion{}, false
	}

	share := best.weight / totalWeight
	confidence := LowConfidence + 0.25*share

	return core.CategorySuggestion{
		CategoryID: bestID,
		Confidence: confidence,
		Reasons: []string{
			fmt.Sprintf("similar to %d previous transactions", best.count),
		},
		SuggestedType: best.txType,
	}, true
}

// textSimilarity blends edit distance with token overlap so both
// near-identical narrations and reordered merchant names score well.
func textSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	lev := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
	return 0.5*lev + 0.5*tokenOverlap(a, b)
}

func tokenOverlap(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, tok := range ta {
		set[tok] = true
	}
	shared := 0
	union := len(set)
	seen := make(map[string]bool, len(tb))
	for _, tok := range tb {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		if set[tok] {
			shared++
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}

func normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				sb.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func typeForAmount(amountCents int64) core.TransactionType {
	if amountCents > 0 {
		return core.Income
	}
	return core.Expense
}
