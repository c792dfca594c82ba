// Package decision folds the pattern, comparison and classification results
// into a single auto-approve or manual-review verdict. The engine is pure and
// all-or-nothing: it either clears every condition or reports exactly which
// ones failed.
package decision

import (
	"fmt"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/compare"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/pattern"
)

// Verdict is the engine's final call for one workflow.
type Verdict string

const (
	VerdictAutoApprove  Verdict = "auto_approve"
	VerdictManualReview Verdict = "manual_review"
)

// Policy is the per-assignment slice of configuration the engine enforces.
type Policy struct {
	AllowAutoApproval    bool
	AlwaysRequireReview  bool
	MaxAutoAmountCents   int64 // 0 means no cap
	RequirePurchaseOrder bool
}

// Input carries everything one decision needs. TolerancePct is only used to
// word the month-over-month reason.
type Input struct {
	Pattern           pattern.Result
	MonthOverMonth    pattern.MonthOverMonth
	Items             compare.Report
	Threshold         float64
	Policy            Policy
	InvoiceTotalCents int64
	HasPurchaseOrder  bool
	TolerancePct      float64
}

// Outcome is the decision plus everything a reviewer or auditor needs to see.
type Outcome struct {
	Verdict    Verdict
	Confidence float64 // [0,1]
	Reasons    []string
	Alerts     []compare.Alert
}

// Decide applies the decision rule. Every condition must hold for an
// auto-approval; each failing condition is recorded verbatim in Reasons.
func Decide(in Input) Outcome {
	confidence := resolveConfidence(in)
	out := Outcome{
		Verdict:    VerdictAutoApprove,
		Confidence: confidence,
		Alerts:     in.Items.Alerts,
	}
	fail := func(reason string) {
		out.Verdict = VerdictManualReview
		out.Reasons = append(out.Reasons, reason)
	}

	// 1. The assignment must allow automatic decisions at all.
	if !in.Policy.AllowAutoApproval {
		fail("auto-approval not allowed by assignment policy")
	} else if in.Policy.AlwaysRequireReview {
		fail("assignment requires manual review for every invoice")
	}

	// 2. Confidence must clear the classification threshold. A threshold of
	// 1.0 marks providers that can never auto-approve.
	switch {
	case in.Threshold >= 1.0:
		fail("provider classification requires manual review (new provider or eventual service)")
	case in.MonthOverMonth.Found && !in.MonthOverMonth.WithinTolerance:
		fail(fmt.Sprintf("month-over-month variation %.1f%% exceeds %.1f%% tolerance",
			in.MonthOverMonth.DeltaPct, in.TolerancePct))
	case confidence < in.Threshold:
		fail(fmt.Sprintf("confidence %.2f below required threshold %.2f", confidence, in.Threshold))
	}

	// 3. High-severity findings block regardless of confidence.
	if in.Items.HighAlerts > 0 {
		fail(fmt.Sprintf("%d high severity alert(s) on line items", in.Items.HighAlerts))
	}

	// 4. Never-seen items always go through a human.
	if in.Items.NewItems > 0 {
		fail(fmt.Sprintf("%d line item(s) without historical match", in.Items.NewItems))
	}

	// 5. Amount cap, when configured.
	if in.Policy.MaxAutoAmountCents > 0 && in.InvoiceTotalCents > in.Policy.MaxAutoAmountCents {
		fail(fmt.Sprintf("invoice total %d exceeds auto-approval cap %d",
			in.InvoiceTotalCents, in.Policy.MaxAutoAmountCents))
	}

	// 6. Purchase order requirement, when configured.
	if in.Policy.RequirePurchaseOrder && !in.HasPurchaseOrder {
		fail("purchase order required but missing")
	}

	if out.Verdict == VerdictManualReview && in.Pattern.SampleCount < 2 {
		out.Reasons = append(out.Reasons,
			fmt.Sprintf("insufficient billing history (%d invoice(s) on record)", in.Pattern.SampleCount))
	}

	if out.Verdict == VerdictAutoApprove && confidence-in.Threshold < 0.03 {
		out.Alerts = append(out.Alerts, compare.Alert{
			Kind:     compare.AlertBorderlineConfidence,
			Severity: compare.SeverityModerate,
			Detail: fmt.Sprintf("approved with confidence %.2f against threshold %.2f",
				confidence, in.Threshold),
		})
	}

	return out
}

// resolveConfidence prefers the month-over-month fast path when a prior-month
// invoice exists, otherwise falls back to the line-item comparison score.
func resolveConfidence(in Input) float64 {
	if in.MonthOverMonth.Found {
		return in.MonthOverMonth.Confidence
	}
	return in.Items.Confidence / 100
}
