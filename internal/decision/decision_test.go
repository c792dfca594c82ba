package decision

import (
	"strings"
	"testing"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/compare"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/pattern"
)

func allowAll() Policy {
	return Policy{AllowAutoApproval: true}
}

func cleanItems(confidence float64) compare.Report {
	return compare.Report{Confidence: confidence}
}

func steadyPattern() pattern.Result {
	return pattern.Result{SampleCount: 12, Recurrent: true, Combined: 0.9}
}

func TestDecideAutoApprovesSteadyMonthly(t *testing.T) {
	out := Decide(Input{
		Pattern:           steadyPattern(),
		MonthOverMonth:    pattern.MonthOverMonth{Found: true, WithinTolerance: true, Confidence: 1.0},
		Items:             cleanItems(100),
		Threshold:         0.88, // critical tier, fixed monthly
		Policy:            allowAll(),
		InvoiceTotalCents: 99900,
		TolerancePct:      5,
	})

	if out.Verdict != VerdictAutoApprove {
		t.Fatalf("verdict = %s, reasons = %v", out.Verdict, out.Reasons)
	}
	if out.Confidence < 0.95 {
		t.Errorf("confidence = %.2f, want at least 0.95", out.Confidence)
	}
	if len(out.Reasons) != 0 {
		t.Errorf("approval should carry no failure reasons, got %v", out.Reasons)
	}
}

func TestDecidePinnedThresholdNeverApproves(t *testing.T) {
	// Two historical invoices: eventual service, new tier, threshold 1.0.
	// Even a perfect month-over-month match must go to a human.
	out := Decide(Input{
		Pattern:        pattern.Result{SampleCount: 2},
		MonthOverMonth: pattern.MonthOverMonth{Found: true, WithinTolerance: true, Confidence: 1.0},
		Items:          cleanItems(100),
		Threshold:      1.0,
		Policy:         allowAll(),
		TolerancePct:   5,
	})

	if out.Verdict != VerdictManualReview {
		t.Fatal("threshold 1.0 must make auto-approval impossible")
	}
	if !hasReason(out, "requires manual review") {
		t.Errorf("reasons = %v, want the pinned-threshold explanation", out.Reasons)
	}
}

func TestDecideMonthOverMonthOutsideTolerance(t *testing.T) {
	out := Decide(Input{
		Pattern:        steadyPattern(),
		MonthOverMonth: pattern.MonthOverMonth{Found: true, DeltaPct: 12, Confidence: 0.88},
		Items:          cleanItems(100),
		Threshold:      0.88,
		Policy:         allowAll(),
		TolerancePct:   5,
	})

	if out.Verdict != VerdictManualReview {
		t.Fatal("a 12% month-over-month jump must not auto-approve")
	}
	if !hasReason(out, "exceeds 5.0% tolerance") {
		t.Errorf("reasons = %v, want the tolerance failure verbatim", out.Reasons)
	}
}

func TestDecideHighAlertBlocks(t *testing.T) {
	items := cleanItems(100)
	items.HighAlerts = 1
	items.Alerts = []compare.Alert{{Kind: compare.AlertPriceDrift, Severity: compare.SeverityHigh, BlocksAuto: true}}

	out := Decide(Input{
		Pattern:        steadyPattern(),
		MonthOverMonth: pattern.MonthOverMonth{Found: true, WithinTolerance: true, Confidence: 1.0},
		Items:          items,
		Threshold:      0.88,
		Policy:         allowAll(),
		TolerancePct:   5,
	})

	if out.Verdict != VerdictManualReview {
		t.Fatal("high severity alerts must block auto-approval")
	}
	if !hasReason(out, "high severity") {
		t.Errorf("reasons = %v, want the high-alert failure", out.Reasons)
	}
}

func TestDecideNewItemBlocksDespiteConfidence(t *testing.T) {
	items := cleanItems(96)
	items.NewItems = 1

	out := Decide(Input{
		Pattern:      steadyPattern(),
		Items:        items,
		Threshold:    0.88,
		Policy:       allowAll(),
		TolerancePct: 5,
	})

	if out.Verdict != VerdictManualReview {
		t.Fatal("a never-seen line item must force review")
	}
	if !hasReason(out, "without historical match") {
		t.Errorf("reasons = %v, want the new-item failure", out.Reasons)
	}
}

func TestDecideAmountCap(t *testing.T) {
	policy := allowAll()
	policy.MaxAutoAmountCents = 50000

	out := Decide(Input{
		Pattern:           steadyPattern(),
		MonthOverMonth:    pattern.MonthOverMonth{Found: true, WithinTolerance: true, Confidence: 1.0},
		Items:             cleanItems(100),
		Threshold:         0.88,
		Policy:            policy,
		InvoiceTotalCents: 120000,
		TolerancePct:      5,
	})

	if out.Verdict != VerdictManualReview {
		t.Fatal("totals above the cap must force review")
	}
	if !hasReason(out, "exceeds auto-approval cap") {
		t.Errorf("reasons = %v, want the cap failure", out.Reasons)
	}
}

func TestDecidePurchaseOrderRequired(t *testing.T) {
	policy := allowAll()
	policy.RequirePurchaseOrder = true

	out := Decide(Input{
		Pattern:        steadyPattern(),
		MonthOverMonth: pattern.MonthOverMonth{Found: true, WithinTolerance: true, Confidence: 1.0},
		Items:          cleanItems(100),
		Threshold:      0.88,
		Policy:         policy,
		TolerancePct:   5,
	})

	if out.Verdict != VerdictManualReview || !hasReason(out, "purchase order required") {
		t.Fatalf("verdict = %s reasons = %v, want PO failure", out.Verdict, out.Reasons)
	}

	out = Decide(Input{
		Pattern:          steadyPattern(),
		MonthOverMonth:   pattern.MonthOverMonth{Found: true, WithinTolerance: true, Confidence: 1.0},
		Items:            cleanItems(100),
		Threshold:        0.88,
		Policy:           policy,
		HasPurchaseOrder: true,
		TolerancePct:     5,
	})
	if out.Verdict != VerdictAutoApprove {
		t.Errorf("with a PO present the decision should pass, got %v", out.Reasons)
	}
}

func TestDecidePolicyGates(t *testing.T) {
	out := Decide(Input{
		Pattern:        steadyPattern(),
		MonthOverMonth: pattern.MonthOverMonth{Found: true, WithinTolerance: true, Confidence: 1.0},
		Items:          cleanItems(100),
		Threshold:      0.88,
		Policy:         Policy{AllowAutoApproval: false},
		TolerancePct:   5,
	})
	if out.Verdict != VerdictManualReview || !hasReason(out, "not allowed by assignment policy") {
		t.Errorf("disallowed policy should force review, reasons = %v", out.Reasons)
	}

	out = Decide(Input{
		Pattern:        steadyPattern(),
		MonthOverMonth: pattern.MonthOverMonth{Found: true, WithinTolerance: true, Confidence: 1.0},
		Items:          cleanItems(100),
		Threshold:      0.88,
		Policy:         Policy{AllowAutoApproval: true, AlwaysRequireReview: true},
		TolerancePct:   5,
	})
	if out.Verdict != VerdictManualReview || !hasReason(out, "manual review for every invoice") {
		t.Errorf("always-review policy should force review, reasons = %v", out.Reasons)
	}
}

func TestDecideAccumulatesFailures(t *testing.T) {
	items := cleanItems(40)
	items.NewItems = 2
	items.HighAlerts = 1

	out := Decide(Input{
		Pattern:      steadyPattern(),
		Items:        items,
		Threshold:    0.88,
		Policy:       allowAll(),
		TolerancePct: 5,
	})

	if len(out.Reasons) < 3 {
		t.Errorf("confidence, high-alert and new-item failures should all be recorded, got %v", out.Reasons)
	}
}

func TestDecideBorderlineAlert(t *testing.T) {
	out := Decide(Input{
		Pattern:      steadyPattern(),
		Items:        cleanItems(90),
		Threshold:    0.88,
		Policy:       allowAll(),
		TolerancePct: 5,
	})

	if out.Verdict != VerdictAutoApprove {
		t.Fatalf("0.90 against 0.88 should approve, reasons = %v", out.Reasons)
	}
	found := false
	for _, a := range out.Alerts {
		if a.Kind == compare.AlertBorderlineConfidence {
			found = true
			if a.BlocksAuto {
				t.Error("borderline alert must not block")
			}
		}
	}
	if !found {
		t.Error("a 0.02 margin should raise a borderline alert")
	}
}

func TestDecideInsufficientHistoryNote(t *testing.T) {
	out := Decide(Input{
		Pattern:      pattern.Result{SampleCount: 1},
		Items:        cleanItems(0),
		Threshold:    1.0,
		Policy:       allowAll(),
		TolerancePct: 5,
	})

	if out.Verdict != VerdictManualReview {
		t.Fatal("one historical invoice cannot auto-approve")
	}
	if !hasReason(out, "insufficient billing history") {
		t.Errorf("reasons = %v, want the history note", out.Reasons)
	}
}

func TestDecideConfidenceBounds(t *testing.T) {
	inputs := []Input{
		{Items: cleanItems(0), Threshold: 0.85, Policy: allowAll()},
		{Items: cleanItems(100), Threshold: 0.85, Policy: allowAll()},
		{MonthOverMonth: pattern.MonthOverMonth{Found: true, DeltaPct: 250, Confidence: 0}, Items: cleanItems(50), Threshold: 0.85, Policy: allowAll()},
	}
	for i, in := range inputs {
		out := Decide(in)
		if out.Confidence < 0 || out.Confidence > 1 {
			t.Errorf("input %d: confidence %.3f out of [0,1]", i, out.Confidence)
		}
	}
}

func hasReason(out Outcome, fragment string) bool {
	for _, r := range out.Reasons {
		if strings.Contains(r, fragment) {
			return true
		}
	}
	return false
}
