package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/decision"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/repository"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/workflow"
)

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

// monthlySeries builds one invoice per month starting at first, one total per
// entry.
func monthlySeries(first time.Time, totals []int64) []*repository.Invoice {
	invoices := make([]*repository.Invoice, 0, len(totals))
	for i, total := range totals {
		invoices = append(invoices, &repository.Invoice{
			IssueDate:  first.AddDate(0, i, 0),
			TotalCents: total,
		})
	}
	return invoices
}

func line(desc string, qty float64, unitCents int64) repository.InvoiceLineItem {
	return repository.InvoiceLineItem{
		Description:    desc,
		Quantity:       qty,
		UnitPriceCents: unitCents,
		TotalCents:     int64(qty * float64(unitCents)),
	}
}

func allowAllPolicy() decision.Policy {
	return decision.Policy{AllowAutoApproval: true}
}

func TestEvaluateStableYearAutoApproves(t *testing.T) {
	t.Parallel()

	history := monthlySeries(date("2024-01-15"), []int64{
		100000, 101000, 99500, 100200, 100800, 99900,
		100400, 100100, 99700, 100600, 100300, 100000,
	})
	target := &repository.Invoice{
		IssueDate:  date("2025-01-15"),
		TotalCents: 101000,
		LineItems:  []repository.InvoiceLineItem{line("Cuota mensual mantenimiento", 1, 101000)},
	}

	out := evaluate(analysisData{
		invoice:      target,
		history:      history,
		priorItems:   []repository.InvoiceLineItem{line("Cuota mensual mantenimiento", 1, 100000)},
		policy:       allowAllPolicy(),
		threshold:    0.92,
		tolerancePct: 5.0,
	})

	require.Equal(t, decision.VerdictAutoApprove, out.outcome.Verdict)
	require.Equal(t, workflow.StateAutoApproved, out.state)
	require.Empty(t, out.outcome.Reasons)
	require.True(t, out.mom.Found)
	require.True(t, out.mom.WithinTolerance)
	require.GreaterOrEqual(t, out.outcome.Confidence, 0.92)
	require.True(t, out.pattern.Recurrent)
}

func TestEvaluatePinnedThresholdForcesReview(t *testing.T) {
	t.Parallel()

	target := &repository.Invoice{
		IssueDate:  date("2025-03-01"),
		TotalCents: 50000,
	}

	out := evaluate(analysisData{
		invoice:      target,
		policy:       allowAllPolicy(),
		threshold:    1.0, // new provider or eventual service
		tolerancePct: 5.0,
	})

	require.Equal(t, workflow.StatePendingReview, out.state)
	require.Contains(t, out.outcome.Reasons,
		"provider classification requires manual review (new provider or eventual service)")
	require.Contains(t, out.outcome.Reasons,
		"insufficient billing history (0 invoice(s) on record)")
}

func TestEvaluateMonthOverMonthJumpForcesReview(t *testing.T) {
	t.Parallel()

	history := monthlySeries(date("2024-07-10"), []int64{
		100000, 100000, 100000, 100000, 100000, 100000,
	})
	target := &repository.Invoice{
		IssueDate:  date("2025-01-10"),
		TotalCents: 140000, // 40% above December
	}

	out := evaluate(analysisData{
		invoice:      target,
		history:      history,
		policy:       allowAllPolicy(),
		threshold:    0.88,
		tolerancePct: 5.0,
	})

	require.Equal(t, workflow.StatePendingReview, out.state)
	require.Contains(t, out.outcome.Reasons,
		"month-over-month variation 40.0% exceeds 5.0% tolerance")
}

func TestEvaluateAllowedVarianceOverride(t *testing.T) {
	t.Parallel()

	history := monthlySeries(date("2024-01-20"), []int64{
		100000, 102000, 98000, 101000, 99000, 100000,
		103000, 100000, 98000, 102000, 101000, 100000,
	})
	target := &repository.Invoice{
		IssueDate:  date("2025-01-20"),
		TotalCents: 110000, // 10% above December
	}

	strict := evaluate(analysisData{
		invoice:      target,
		history:      history,
		policy:       allowAllPolicy(),
		threshold:    0.85,
		tolerancePct: 5.0,
	})
	require.Equal(t, workflow.StatePendingReview, strict.state)

	relaxed := evaluate(analysisData{
		invoice:      target,
		history:      history,
		policy:       allowAllPolicy(),
		threshold:    0.85,
		tolerancePct: 15.0, // assignment-level override
	})
	require.Equal(t, workflow.StateAutoApproved, relaxed.state)
	require.True(t, relaxed.mom.WithinTolerance)
}

func TestEvaluateHighSeverityItemBlocksDespiteConfidence(t *testing.T) {
	t.Parallel()

	history := monthlySeries(date("2024-01-05"), []int64{
		200000, 200000, 200000, 200000, 200000, 200000,
		200000, 200000, 200000, 200000, 200000, 200000,
	})
	target := &repository.Invoice{
		IssueDate:  date("2025-01-05"),
		TotalCents: 200000,
		LineItems:  []repository.InvoiceLineItem{line("Licencia software gestion", 1, 135000)},
	}

	out := evaluate(analysisData{
		invoice:      target,
		history:      history,
		priorItems:   []repository.InvoiceLineItem{line("Licencia software gestion", 1, 100000)},
		policy:       allowAllPolicy(),
		threshold:    0.88,
		tolerancePct: 5.0,
	})

	require.Equal(t, workflow.StatePendingReview, out.state)
	require.Contains(t, out.outcome.Reasons, "1 high severity alert(s) on line items")
	require.Equal(t, 1, out.items.HighAlerts)

	diff := out.differences()
	items, ok := diff["items"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)
	require.Equal(t, "high", items[0]["severity"])
}

func TestEvaluateFallbackReasonPrepended(t *testing.T) {
	t.Parallel()

	history := monthlySeries(date("2024-01-15"), []int64{
		100000, 100000, 100000, 100000, 100000, 100000,
		100000, 100000, 100000, 100000, 100000, 100000,
	})
	target := &repository.Invoice{
		IssueDate:  date("2025-01-15"),
		TotalCents: 100000,
	}

	out := evaluate(analysisData{
		invoice:      target,
		history:      history,
		policy:       allowAllPolicy(),
		threshold:    0.85,
		tolerancePct: 5.0,
		extraReasons: []string{"no active assignment for provider; routed to fallback reviewer"},
	})

	require.Equal(t, workflow.StatePendingReview, out.state)
	require.Equal(t, "no active assignment for provider; routed to fallback reviewer", out.outcome.Reasons[0])
}

func TestEvaluateNoHistoryLowConfidence(t *testing.T) {
	t.Parallel()

	target := &repository.Invoice{
		IssueDate:  date("2025-02-01"),
		TotalCents: 75000,
		LineItems:  []repository.InvoiceLineItem{line("Servicio consultoria", 1, 75000)},
	}

	out := evaluate(analysisData{
		invoice:      target,
		policy:       allowAllPolicy(),
		threshold:    0.95,
		tolerancePct: 5.0,
	})

	require.Equal(t, workflow.StatePendingReview, out.state)
	require.False(t, out.mom.Found)
	require.Equal(t, 0.0, out.outcome.Confidence)
	require.Contains(t, out.outcome.Reasons, "confidence 0.00 below required threshold 0.95")
}

func TestManualTransitionMatrix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		from     workflow.State
		action   string
		wantTo   workflow.State
		wantKind workflow.EventKind
		wantErr  bool
	}{
		{"approve pending", workflow.StatePendingReview, ActionApprove, workflow.StateManuallyApproved, workflow.EventManual, false},
		{"reject pending", workflow.StatePendingReview, ActionReject, workflow.StateRejected, workflow.EventManual, false},
		{"confirm auto approval", workflow.StateAutoApproved, ActionApprove, workflow.StateManuallyApproved, workflow.EventCorrection, false},
		{"override auto approval", workflow.StateAutoApproved, ActionReject, workflow.StateRejected, workflow.EventCorrection, false},
		{"reverse rejection", workflow.StateRejected, ActionApprove, workflow.StateManuallyApproved, workflow.EventCorrection, false},
		{"retract manual approval", workflow.StateManuallyApproved, ActionReject, workflow.StateRejected, workflow.EventCorrection, false},
		{"approve during analysis", workflow.StateAnalyzing, ActionApprove, "", "", true},
		{"approve before analysis", workflow.StateReceived, ActionApprove, "", "", true},
		{"reject twice", workflow.StateRejected, ActionReject, "", "", true},
		{"unknown action", workflow.StatePendingReview, "escalate", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			to, kind, err := manualTransition(tt.from, tt.action)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantTo, to)
			require.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestSnapshotOfDefaultsToSystemActor(t *testing.T) {
	t.Parallel()

	decidedAt := date("2025-01-10")
	actor := "maria"

	wf := &repository.Workflow{State: workflow.StateAutoApproved, DecidedAt: &decidedAt}
	snap := snapshotOf(wf)
	require.Equal(t, "system", snap.Actor)
	require.Equal(t, decidedAt, snap.DecidedAt)

	wf = &repository.Workflow{State: workflow.StateManuallyApproved, DecisionActor: &actor, DecidedAt: &decidedAt}
	snap = snapshotOf(wf)
	require.Equal(t, "maria", snap.Actor)
}
