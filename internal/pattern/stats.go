package pattern

import (
	"math"
	"time"
)

// Aggregate is the memoizable summary of one fingerprint's history, persisted
// as the historical pattern cache and rebuilt whenever new invoices arrive.
type Aggregate struct {
	SampleCount      int
	DistinctMonths   int
	MeanCents        int64
	MinCents         int64
	MaxCents         int64
	StdevCents       float64
	CV               float64 // coefficient of variation, percent
	Tag              string  // sparse | stable | variable | volatile
	ExpectedMinCents int64
	ExpectedMaxCents int64
}

// Summarize folds a fingerprint's history into its aggregate. Deterministic:
// the same history always produces the same aggregate, so recomputing is safe.
func Summarize(history []HistoricalInvoice) Aggregate {
	if len(history) == 0 {
		return Aggregate{Tag: "sparse"}
	}

	amounts := make([]float64, 0, len(history))
	months := make(map[monthKey]struct{}, len(history))
	minCents, maxCents := history[0].TotalCents, history[0].TotalCents

	for _, h := range history {
		amounts = append(amounts, float64(h.TotalCents))
		months[monthKeyOf(h.IssueDate)] = struct{}{}
		if h.TotalCents < minCents {
			minCents = h.TotalCents
		}
		if h.TotalCents > maxCents {
			maxCents = h.TotalCents
		}
	}

	meanAmount := mean(amounts)
	stdevAmount := stdev(amounts, meanAmount)

	cv := 0.0
	if meanAmount > 0 {
		cv = stdevAmount / meanAmount * 100
	}

	agg := Aggregate{
		SampleCount:    len(history),
		DistinctMonths: len(months),
		MeanCents:      int64(math.Round(meanAmount)),
		MinCents:       minCents,
		MaxCents:       maxCents,
		StdevCents:     stdevAmount,
		CV:             cv,
		Tag:            tagFor(len(history), cv),
	}

	// Expected range covers everything observed plus a two-sigma margin.
	agg.ExpectedMinCents = int64(math.Max(0, math.Min(float64(minCents), meanAmount-2*stdevAmount)))
	agg.ExpectedMaxCents = int64(math.Max(float64(maxCents), meanAmount+2*stdevAmount))

	return agg
}

func tagFor(samples int, cv float64) string {
	switch {
	case samples < 3:
		return "sparse"
	case cv < 15:
		return "stable"
	case cv < 80:
		return "variable"
	default:
		return "volatile"
	}
}

type monthKey struct {
	year  int
	month time.Month
}

func monthKeyOf(t time.Time) monthKey {
	return monthKey{year: t.Year(), month: t.Month()}
}
