package service

import (
	"time"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/compare"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/decision"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/pattern"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/repository"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/workflow"
)

// analysisData is everything one workflow analysis needs, already loaded.
// Keeping the evaluation free of I/O lets the decision path be tested against
// constructed histories.
type analysisData struct {
	invoice        *repository.Invoice
	history        []*repository.Invoice // approved comparables, newest first
	priorItems     []repository.InvoiceLineItem
	policy         decision.Policy
	threshold      float64
	tolerancePct   float64 // effective month-over-month tolerance
	fuzzyThreshold float64
	extraReasons   []string // context the engine cannot know, e.g. missing assignment
}

// analysisOutput is the full evaluation result for one workflow.
type analysisOutput struct {
	outcome decision.Outcome
	state   workflow.State
	pattern pattern.Result
	mom     pattern.MonthOverMonth
	items   compare.Report
}

// evaluate runs the engines over loaded data and folds their results into the
// workflow's verdict.
func evaluate(d analysisData) analysisOutput {
	detector := pattern.NewDetector(d.tolerancePct)
	comparator := compare.NewComparator(d.fuzzyThreshold)

	target := pattern.HistoricalInvoice{
		IssueDate:  d.invoice.IssueDate,
		TotalCents: d.invoice.TotalCents,
	}
	series := historySeries(d.history)

	patternResult := detector.Detect(target, series)
	mom := detector.CompareMonthOverMonth(target, series)
	items := comparator.Compare(compareItems(d.invoice.LineItems), compareItems(d.priorItems))

	outcome := decision.Decide(decision.Input{
		Pattern:           patternResult,
		MonthOverMonth:    mom,
		Items:             items,
		Threshold:         d.threshold,
		Policy:            d.policy,
		InvoiceTotalCents: d.invoice.TotalCents,
		HasPurchaseOrder:  d.invoice.PONumber != nil && *d.invoice.PONumber != "",
		TolerancePct:      detector.TolerancePct(),
	})
	if len(d.extraReasons) > 0 {
		outcome.Verdict = decision.VerdictManualReview
		outcome.Reasons = append(d.extraReasons, outcome.Reasons...)
	}

	state := workflow.StatePendingReview
	if outcome.Verdict == decision.VerdictAutoApprove {
		state = workflow.StateAutoApproved
	}

	return analysisOutput{
		outcome: outcome,
		state:   state,
		pattern: patternResult,
		mom:     mom,
		items:   items,
	}
}

// compareItems converts stored line items into the comparator's shape.
func compareItems(lines []repository.InvoiceLineItem) []compare.LineItem {
	items := make([]compare.LineItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, compare.LineItem{
			Description:     line.Description,
			DescriptionHash: line.DescriptionHash,
			Quantity:        line.Quantity,
			UnitPriceCents:  line.UnitPriceCents,
			TotalCents:      line.TotalCents,
		})
	}
	return items
}

// differences builds the reviewer-facing JSONB payload stored on the workflow.
func (out analysisOutput) differences() map[string]interface{} {
	diff := map[string]interface{}{
		"cadence":            string(out.pattern.Temporal.Cadence),
		"pattern_confidence": round2(out.pattern.Combined),
		"recurrent":          out.pattern.Recurrent,
		"sample_count":       out.pattern.SampleCount,
		"monetary_stable":    out.pattern.Monetary.Stable,
		"item_confidence":    round2(out.items.Confidence),
		"new_items":          out.items.NewItems,
		"high_alerts":        out.items.HighAlerts,
		"moderate_alerts":    out.items.ModerateAlerts,
	}

	if out.mom.Found {
		diff["month_over_month"] = map[string]interface{}{
			"prior_total_cents": out.mom.PriorTotalCents,
			"delta_pct":         round2(out.mom.DeltaPct),
			"within_tolerance":  out.mom.WithinTolerance,
		}
	}

	drifted := make([]map[string]interface{}, 0)
	for _, item := range out.items.Items {
		if item.Severity == compare.SeverityInfo {
			continue
		}
		entry := map[string]interface{}{
			"description": item.Description,
			"severity":    string(item.Severity),
		}
		if item.Matched {
			entry["matched_description"] = item.MatchedDescription
			entry["price_delta_pct"] = round2(item.PriceDeltaPct)
			entry["quantity_delta_pct"] = round2(item.QuantityDeltaPct)
		} else {
			entry["new_item"] = true
		}
		drifted = append(drifted, entry)
	}
	if len(drifted) > 0 {
		diff["items"] = drifted
	}

	return diff
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// historySeries converts repository rows to the detector's input shape.
func historySeries(history []*repository.Invoice) []pattern.HistoricalInvoice {
	series := make([]pattern.HistoricalInvoice, 0, len(history))
	for _, h := range history {
		series = append(series, pattern.HistoricalInvoice{
			IssueDate:  h.IssueDate,
			TotalCents: h.TotalCents,
		})
	}
	return series
}

// totalsSeries converts dated totals to the detector's input shape.
func totalsSeries(totals []repository.DatedTotal) []pattern.HistoricalInvoice {
	series := make([]pattern.HistoricalInvoice, 0, len(totals))
	for _, t := range totals {
		series = append(series, pattern.HistoricalInvoice{
			IssueDate:  t.IssueDate,
			TotalCents: t.TotalCents,
		})
	}
	return series
}

// historyWindow anchors the trailing window at the invoice's issue date so
// reprocessing an old invoice sees the same history it saw the first time.
func historyWindow(issueDate time.Time, months int) (since, until time.Time) {
	if months <= 0 {
		months = 12
	}
	return issueDate.AddDate(0, -months, 0), issueDate
}
