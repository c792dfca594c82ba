// Package pattern analyzes the invoice history behind one concept fingerprint:
// how regularly the provider bills and how stable the amounts are. Results feed
// the decision engine; nothing here touches storage.
package pattern

import (
	"math"
	"sort"
	"time"
)

// Cadence labels the billing rhythm detected from issue-date gaps.
type Cadence string

const (
	CadenceWeekly       Cadence = "weekly"
	CadenceBiweekly     Cadence = "biweekly"
	CadenceMonthly      Cadence = "monthly"
	CadenceBimonthly    Cadence = "bimonthly"
	CadenceQuarterly    Cadence = "quarterly"
	CadenceIrregular    Cadence = "irregular"
	CadenceInsufficient Cadence = "insufficient" // fewer than two historical invoices
)

// HistoricalInvoice is the slice of an invoice the detector needs.
type HistoricalInvoice struct {
	IssueDate  time.Time
	TotalCents int64
}

// TemporalResult describes billing regularity.
type TemporalResult struct {
	Cadence    Cadence
	MeanDays   float64
	StdevDays  float64
	Consistent bool    // gap stdev within three days
	Confidence float64 // [0,1]
}

// MonetaryResult describes amount stability.
type MonetaryResult struct {
	MeanCents    int64
	MaxDeviation float64 // largest |amount-mean|/mean across the series
	Stable       bool    // no deviation above 15 percent
	Confidence   float64 // [0,1]
}

// Result is the full pattern analysis for one target invoice.
type Result struct {
	Temporal    TemporalResult
	Monetary    MonetaryResult
	Combined    float64 // [0,1], temporal weighted over monetary
	Recurrent   bool    // combined confidence reached 0.7
	SampleCount int     // historical invoices considered
}

// MonthOverMonth is the fast-path comparison against the invoice from the
// previous calendar month.
type MonthOverMonth struct {
	Found           bool
	PriorTotalCents int64
	DeltaPct        float64 // absolute percent change against the prior month
	WithinTolerance bool
	Confidence      float64 // 1 - delta/100, floored at zero
}

// Detector runs pattern analysis with a configured month-over-month tolerance.
type Detector struct {
	momTolerancePct float64
}

// NewDetector creates a Detector. A non-positive tolerance falls back to 5%.
func NewDetector(momTolerancePct float64) *Detector {
	if momTolerancePct <= 0 {
		momTolerancePct = 5.0
	}
	return &Detector{momTolerancePct: momTolerancePct}
}

// Detect analyzes the target invoice against its fingerprint history. Fewer
// than two historical invoices is not an error: the result reports an
// insufficient cadence with zero confidence and the caller routes to review.
func (d *Detector) Detect(target HistoricalInvoice, history []HistoricalInvoice) Result {
	if len(history) < 2 {
		return Result{
			Temporal:    TemporalResult{Cadence: CadenceInsufficient},
			SampleCount: len(history),
		}
	}

	temporal := analyzeTemporal(target, history)
	monetary := analyzeMonetary(target, history)

	combined := 0.6*temporal.Confidence + 0.4*monetary.Confidence
	if temporal.Consistent && monetary.Stable {
		combined += 0.1
	}
	if temporal.Confidence < 0.3 || monetary.Confidence < 0.3 {
		combined -= 0.15
	}
	combined = clamp01(combined)

	return Result{
		Temporal:    temporal,
		Monetary:    monetary,
		Combined:    combined,
		Recurrent:   combined >= 0.7,
		SampleCount: len(history),
	}
}

// CompareMonthOverMonth looks for an invoice issued in the calendar month
// before the target's and measures the amount change. The most recent invoice
// of that month wins when there are several.
func (d *Detector) CompareMonthOverMonth(target HistoricalInvoice, history []HistoricalInvoice) MonthOverMonth {
	prevYear, prevMonth := previousMonth(target.IssueDate)

	var prior *HistoricalInvoice
	for i := range history {
		h := history[i]
		if h.IssueDate.Year() != prevYear || h.IssueDate.Month() != prevMonth {
			continue
		}
		if prior == nil || h.IssueDate.After(prior.IssueDate) {
			prior = &history[i]
		}
	}
	if prior == nil || prior.TotalCents == 0 {
		return MonthOverMonth{}
	}

	deltaPct := math.Abs(float64(target.TotalCents-prior.TotalCents)) / float64(prior.TotalCents) * 100

	return MonthOverMonth{
		Found:           true,
		PriorTotalCents: prior.TotalCents,
		DeltaPct:        deltaPct,
		WithinTolerance: deltaPct <= d.momTolerancePct,
		Confidence:      math.Max(0, 1-deltaPct/100),
	}
}

// TolerancePct returns the configured month-over-month tolerance.
func (d *Detector) TolerancePct() float64 {
	return d.momTolerancePct
}

// ── temporal analysis ─────────────────────────────────────────────────────────

func analyzeTemporal(target HistoricalInvoice, history []HistoricalInvoice) TemporalResult {
	dates := make([]time.Time, 0, len(history)+1)
	for _, h := range history {
		dates = append(dates, h.IssueDate)
	}
	dates = append(dates, target.IssueDate)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	gaps := make([]float64, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		gaps = append(gaps, dates[i].Sub(dates[i-1]).Hours()/24)
	}

	meanGap := mean(gaps)
	stdevGap := stdev(gaps, meanGap)
	cadence := cadenceFor(meanGap)
	consistent := stdevGap <= 3

	confidence := 0.5
	if consistent {
		confidence += 0.3
	}
	confidence += math.Min(0.2, 0.02*float64(len(history)))
	if stdevGap > 5 {
		confidence -= 0.2
	}
	if cadence == CadenceMonthly || cadence == CadenceBiweekly {
		confidence += 0.1
	}

	return TemporalResult{
		Cadence:    cadence,
		MeanDays:   meanGap,
		StdevDays:  stdevGap,
		Consistent: consistent,
		Confidence: clamp01(confidence),
	}
}

func cadenceFor(meanDays float64) Cadence {
	switch {
	case meanDays >= 5 && meanDays <= 9:
		return CadenceWeekly
	case meanDays >= 12 && meanDays <= 16:
		return CadenceBiweekly
	case meanDays >= 26 && meanDays <= 35:
		return CadenceMonthly
	case meanDays >= 55 && meanDays <= 67:
		return CadenceBimonthly
	case meanDays >= 80 && meanDays <= 100:
		return CadenceQuarterly
	default:
		return CadenceIrregular
	}
}

// ── monetary analysis ─────────────────────────────────────────────────────────

func analyzeMonetary(target HistoricalInvoice, history []HistoricalInvoice) MonetaryResult {
	amounts := make([]float64, 0, len(history)+1)
	for _, h := range history {
		amounts = append(amounts, float64(h.TotalCents))
	}
	amounts = append(amounts, float64(target.TotalCents))

	meanAmount := mean(amounts)
	if meanAmount == 0 {
		return MonetaryResult{}
	}

	maxDev := 0.0
	for _, a := range amounts {
		if dev := math.Abs(a-meanAmount) / meanAmount; dev > maxDev {
			maxDev = dev
		}
	}
	stable := maxDev <= 0.15

	confidence := 0.5
	if stable {
		confidence += 0.3
	}
	switch {
	case maxDev < 0.05:
		confidence += 0.2
	case maxDev < 0.10:
		confidence += 0.1
	}
	if maxDev > 0.25 {
		confidence -= 0.2
	}
	confidence += math.Min(0.1, 0.02*float64(len(history)))

	return MonetaryResult{
		MeanCents:    int64(math.Round(meanAmount)),
		MaxDeviation: maxDev,
		Stable:       stable,
		Confidence:   clamp01(confidence),
	}
}

// ── shared math ───────────────────────────────────────────────────────────────

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func previousMonth(t time.Time) (int, time.Month) {
	year, month := t.Year(), t.Month()
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}
