// Package compare diffs an invoice's line items against the items seen before
// under the same fingerprint. Matching tries normalized-description hashes
// first and falls back to fuzzy string distance, so reworded but equivalent
// lines still pair up.
package compare

import (
	"fmt"

	"github.com/agnivade/levenshtein"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/fingerprint"
)

// Severity grades a single finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// AlertKind names what a finding is about. borderline_confidence is emitted by
// the decision engine, the rest by the comparator.
type AlertKind string

const (
	AlertPriceDrift           AlertKind = "price_drift"
	AlertQuantityDrift        AlertKind = "quantity_drift"
	AlertNewItem              AlertKind = "new_item"
	AlertBorderlineConfidence AlertKind = "borderline_confidence"
)

// Alert is one finding worth surfacing to a reviewer.
type Alert struct {
	Kind       AlertKind
	Severity   Severity
	Detail     string
	BlocksAuto bool
}

// LineItem is the slice of an invoice line the comparator needs. An empty
// DescriptionHash is computed from the description.
type LineItem struct {
	Description     string
	DescriptionHash string
	Quantity        float64
	UnitPriceCents  int64
	TotalCents      int64
}

// ItemMatch reports how one current line item compared.
type ItemMatch struct {
	Description        string
	MatchedDescription string
	Matched            bool
	Fuzzy              bool    // matched through string distance, not hash
	Similarity         float64 // [0,1], 1 for hash matches
	PriceDeltaPct      float64
	QuantityDeltaPct   float64
	Severity           Severity
}

// Report is the comparator output for one invoice.
type Report struct {
	Items          []ItemMatch
	Confidence     float64 // 0-100, share of matched items without findings
	NewItems       int
	HighAlerts     int
	ModerateAlerts int
	Alerts         []Alert
	AutoEligible   bool // confidence at least 95, no new items, no high findings
}

// Comparator matches line items with a configured fuzzy threshold.
type Comparator struct {
	fuzzyThreshold float64
}

// NewComparator creates a Comparator. A non-positive threshold falls back to 0.85.
func NewComparator(fuzzyThreshold float64) *Comparator {
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = 0.85
	}
	return &Comparator{fuzzyThreshold: fuzzyThreshold}
}

// Compare diffs current items against historical ones. Pass historical items
// most recent first; each is consumed by at most one match so duplicated lines
// pair one-to-one. An invoice without lines scores zero confidence, which
// routes the decision to the month-over-month path or to review.
func (c *Comparator) Compare(current, historical []LineItem) Report {
	report := Report{}
	if len(current) == 0 {
		return report
	}

	hist := make([]LineItem, len(historical))
	copy(hist, historical)
	for i := range hist {
		if hist[i].DescriptionHash == "" {
			hist[i].DescriptionHash = fingerprint.HashDescription(hist[i].Description)
		}
	}
	used := make([]bool, len(hist))

	clean := 0
	for _, cur := range current {
		if cur.DescriptionHash == "" {
			cur.DescriptionHash = fingerprint.HashDescription(cur.Description)
		}

		match := c.findMatch(cur, hist, used)
		if match == nil {
			report.NewItems++
			report.Items = append(report.Items, ItemMatch{Description: cur.Description, Severity: SeverityModerate})
			report.Alerts = append(report.Alerts, Alert{
				Kind:       AlertNewItem,
				Severity:   SeverityModerate,
				Detail:     fmt.Sprintf("line %q has no historical counterpart", cur.Description),
				BlocksAuto: true,
			})
			report.countSeverity(SeverityModerate)
			continue
		}

		item := c.diffItems(cur, hist[match.index])
		item.Fuzzy = match.fuzzy
		item.Similarity = match.similarity
		used[match.index] = true
		report.Items = append(report.Items, item)

		c.collectDriftAlerts(&report, item)
		if item.Severity == SeverityInfo {
			clean++
		}
	}

	report.Confidence = float64(clean) / float64(len(current)) * 100
	report.AutoEligible = report.Confidence >= 95 && report.NewItems == 0 && report.HighAlerts == 0
	return report
}

type matchCandidate struct {
	index      int
	fuzzy      bool
	similarity float64
}

// findMatch prefers the first unconsumed hash match (most recent given the
// input ordering), then the best fuzzy match above the threshold.
func (c *Comparator) findMatch(cur LineItem, hist []LineItem, used []bool) *matchCandidate {
	for i := range hist {
		if !used[i] && hist[i].DescriptionHash == cur.DescriptionHash {
			return &matchCandidate{index: i, similarity: 1}
		}
	}

	curNorm := fingerprint.NormalizeDescription(cur.Description)
	if curNorm == "" {
		return nil
	}

	best := -1
	bestSim := 0.0
	for i := range hist {
		if used[i] {
			continue
		}
		sim := similarity(curNorm, fingerprint.NormalizeDescription(hist[i].Description))
		if sim >= c.fuzzyThreshold && sim > bestSim {
			best, bestSim = i, sim
		}
	}
	if best < 0 {
		return nil
	}
	return &matchCandidate{index: best, fuzzy: true, similarity: bestSim}
}

func (c *Comparator) diffItems(cur, prev LineItem) ItemMatch {
	item := ItemMatch{
		Description:        cur.Description,
		MatchedDescription: prev.Description,
		Matched:            true,
		PriceDeltaPct:      deltaPct(float64(cur.UnitPriceCents), float64(prev.UnitPriceCents)),
		QuantityDeltaPct:   deltaPct(cur.Quantity, prev.Quantity),
		Severity:           SeverityInfo,
	}

	if sev := priceSeverity(item.PriceDeltaPct); sev != SeverityInfo {
		item.Severity = sev
	}
	if sev := quantitySeverity(item.QuantityDeltaPct); sev == SeverityHigh || (sev == SeverityModerate && item.Severity == SeverityInfo) {
		item.Severity = sev
	}
	return item
}

func (c *Comparator) collectDriftAlerts(report *Report, item ItemMatch) {
	if sev := priceSeverity(item.PriceDeltaPct); sev != SeverityInfo {
		report.Alerts = append(report.Alerts, Alert{
			Kind:       AlertPriceDrift,
			Severity:   sev,
			Detail:     fmt.Sprintf("line %q unit price moved %.1f%%", item.Description, item.PriceDeltaPct),
			BlocksAuto: sev == SeverityHigh,
		})
		report.countSeverity(sev)
	}
	if sev := quantitySeverity(item.QuantityDeltaPct); sev != SeverityInfo {
		report.Alerts = append(report.Alerts, Alert{
			Kind:       AlertQuantityDrift,
			Severity:   sev,
			Detail:     fmt.Sprintf("line %q quantity moved %.1f%%", item.Description, item.QuantityDeltaPct),
			BlocksAuto: sev == SeverityHigh,
		})
		report.countSeverity(sev)
	}
}

func (r *Report) countSeverity(sev Severity) {
	switch sev {
	case SeverityHigh:
		r.HighAlerts++
	case SeverityModerate:
		r.ModerateAlerts++
	}
}

// ── grading ───────────────────────────────────────────────────────────────────

func priceSeverity(deltaPct float64) Severity {
	switch {
	case deltaPct > 30:
		return SeverityHigh
	case deltaPct >= 15:
		return SeverityModerate
	default:
		return SeverityInfo
	}
}

func quantitySeverity(deltaPct float64) Severity {
	switch {
	case deltaPct > 50:
		return SeverityHigh
	case deltaPct >= 20:
		return SeverityModerate
	default:
		return SeverityInfo
	}
}

func deltaPct(cur, prev float64) float64 {
	if prev == 0 {
		if cur == 0 {
			return 0
		}
		return 100
	}
	d := (cur - prev) / prev * 100
	if d < 0 {
		return -d
	}
	return d
}

// similarity converts levenshtein distance into [0,1], 1 meaning identical.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	la, lb := len([]rune(a)), len([]rune(b))
	max := la
	if lb > max {
		max = lb
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(max)
}
