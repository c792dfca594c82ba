package workflow

import (
	"testing"
	"time"
)

func at(minute int) time.Time {
	return time.Date(2024, time.March, 1, 10, minute, 0, 0, time.UTC)
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to State }{
		{StateReceived, StateAnalyzing},
		{StateAnalyzing, StateAutoApproved},
		{StateAnalyzing, StatePendingReview},
		{StatePendingReview, StateManuallyApproved},
		{StatePendingReview, StateRejected},
		{StatePendingReview, StateAnalyzing},
		{StateAutoApproved, StateRejected},
		{StateAutoApproved, StateManuallyApproved},
		{StateManuallyApproved, StateRejected},
		{StateRejected, StateManuallyApproved},
	}
	for _, tt := range allowed {
		if !CanTransition(tt.from, tt.to) {
			t.Errorf("%s -> %s should be legal", tt.from, tt.to)
		}
	}

	denied := []struct{ from, to State }{
		{StateReceived, StateAutoApproved},
		{StateReceived, StateRejected},
		{StateAnalyzing, StateManuallyApproved},
		{StateAutoApproved, StateAnalyzing},
		{StateManuallyApproved, StateManuallyApproved},
	}
	for _, tt := range denied {
		if CanTransition(tt.from, tt.to) {
			t.Errorf("%s -> %s should be illegal", tt.from, tt.to)
		}
	}
}

func TestParseStateFallback(t *testing.T) {
	if got := ParseState("auto_approved"); got != StateAutoApproved {
		t.Errorf("known value must round-trip, got %s", got)
	}
	if got := ParseState("some_legacy_state"); got != StatePendingReview {
		t.Errorf("unknown value must degrade to pending_review, got %s", got)
	}
	if got := ParseInvoiceState("nonsense"); got != InvoicePendingReview {
		t.Errorf("unknown aggregate must degrade to pending_review, got %s", got)
	}
}

func TestReconcileApprovalThenRejection(t *testing.T) {
	// Workflow 1 approves at T1, workflow 2 rejects at T2 > T1: the invoice
	// stays approved, flagged as conflicting, attributed to the first actor.
	agg := Reconcile([]Snapshot{
		{State: StateManuallyApproved, Actor: "maria", DecidedAt: at(0)},
		{State: StateRejected, Actor: "jon", DecidedAt: at(30)},
	})

	if agg.State != InvoiceApproved {
		t.Fatalf("state = %s, want approved", agg.State)
	}
	if !agg.Conflict {
		t.Error("conflicting decisions must raise the conflict flag")
	}
	if agg.ActedBy != "maria" {
		t.Errorf("acted_by = %s, want the first actor (maria)", agg.ActedBy)
	}
}

func TestReconcileRejectionThenApproval(t *testing.T) {
	agg := Reconcile([]Snapshot{
		{State: StateRejected, Actor: "jon", DecidedAt: at(0)},
		{State: StateManuallyApproved, Actor: "maria", DecidedAt: at(30)},
	})

	if agg.State != InvoiceApproved || !agg.Conflict {
		t.Fatalf("approval wins the aggregate even when later: %+v", agg)
	}
	if agg.ActedBy != "jon" {
		t.Errorf("acted_by = %s, want whoever acted first (jon)", agg.ActedBy)
	}
}

func TestReconcileRejectionOnly(t *testing.T) {
	agg := Reconcile([]Snapshot{
		{State: StatePendingReview},
		{State: StateRejected, Actor: "jon", DecidedAt: at(5)},
	})

	if agg.State != InvoiceRejected || agg.ActedBy != "jon" {
		t.Errorf("aggregate = %+v, want rejected by jon", agg)
	}
	if agg.Conflict {
		t.Error("a lone rejection is not a conflict")
	}
}

func TestReconcileManualPreferredForDisplay(t *testing.T) {
	agg := Reconcile([]Snapshot{
		{State: StateAutoApproved, Actor: "system", DecidedAt: at(0)},
		{State: StateManuallyApproved, Actor: "maria", DecidedAt: at(10)},
	})

	if agg.State != InvoiceApproved || agg.Conflict {
		t.Fatalf("two approvals should aggregate cleanly, got %+v", agg)
	}
	if agg.Kind != DecisionManual {
		t.Errorf("kind = %s, manual approval takes display precedence", agg.Kind)
	}
	if agg.ActedBy != "maria" {
		t.Errorf("acted_by = %s, want the manual approver", agg.ActedBy)
	}
}

func TestReconcileAutoOnly(t *testing.T) {
	agg := Reconcile([]Snapshot{
		{State: StateAutoApproved, Actor: "system", DecidedAt: at(0)},
		{State: StatePendingReview},
	})

	if agg.State != InvoiceApproved || agg.Kind != DecisionAuto {
		t.Errorf("aggregate = %+v, want auto approval", agg)
	}
}

func TestReconcileUndecided(t *testing.T) {
	for _, workflows := range [][]Snapshot{
		nil,
		{{State: StateAnalyzing}, {State: StatePendingReview}},
	} {
		agg := Reconcile(workflows)
		if agg.State != InvoicePendingReview || agg.Conflict || agg.ActedBy != "" {
			t.Errorf("undecided set must stay pending: %+v", agg)
		}
	}
}

func TestReconcileIsPure(t *testing.T) {
	input := []Snapshot{
		{State: StateAutoApproved, Actor: "system", DecidedAt: at(0)},
		{State: StateRejected, Actor: "jon", DecidedAt: at(1)},
	}
	first := Reconcile(input)
	second := Reconcile(input)
	if first != second {
		t.Errorf("same snapshots must fold identically: %+v vs %+v", first, second)
	}
}
