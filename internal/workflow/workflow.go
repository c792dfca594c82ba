// Package workflow defines the per-responsible approval state machine and the
// pure reconciliation that derives one invoice-level state from the full set of
// sibling workflows. Reconciliation never mutates anything: callers persist the
// fold result inside the invoice's critical section.
package workflow

import "time"

// State is the per-responsible workflow state.
type State string

const (
	StateReceived         State = "received"
	StateAnalyzing        State = "analyzing"
	StateAutoApproved     State = "auto_approved"
	StatePendingReview    State = "pending_review"
	StateManuallyApproved State = "manually_approved"
	StateRejected         State = "rejected"
)

// InvoiceState is the aggregate state derived from the sibling workflows.
type InvoiceState string

const (
	InvoicePendingReview InvoiceState = "pending_review"
	InvoiceApproved      InvoiceState = "approved"
	InvoiceRejected      InvoiceState = "rejected"
)

// DecisionKind distinguishes how an approval happened.
type DecisionKind string

const (
	DecisionAuto   DecisionKind = "auto"
	DecisionManual DecisionKind = "manual"
)

// EventKind labels a transition for the event log.
type EventKind string

const (
	EventAnalysis   EventKind = "analysis"   // engine-driven transition
	EventManual     EventKind = "manual"     // responsible acted
	EventCorrection EventKind = "correction" // later action overriding a decided state
)

// ParseState maps a stored value to the closed type. Unknown values degrade to
// pending_review so a bad row always lands in front of a human.
func ParseState(s string) State {
	switch State(s) {
	case StateReceived, StateAnalyzing, StateAutoApproved, StatePendingReview, StateManuallyApproved, StateRejected:
		return State(s)
	default:
		return StatePendingReview
	}
}

// ParseInvoiceState maps a stored aggregate value to the closed type, with the
// same conservative fallback.
func ParseInvoiceState(s string) InvoiceState {
	switch InvoiceState(s) {
	case InvoicePendingReview, InvoiceApproved, InvoiceRejected:
		return InvoiceState(s)
	default:
		return InvoicePendingReview
	}
}

// ParseDecisionKind maps a stored value to the closed type. Anything unknown
// reads as unset.
func ParseDecisionKind(s string) DecisionKind {
	switch DecisionKind(s) {
	case DecisionAuto, DecisionManual:
		return DecisionKind(s)
	default:
		return ""
	}
}

// Decided reports whether the state is a decision, automatic or human.
func (s State) Decided() bool {
	return s == StateAutoApproved || s == StateManuallyApproved || s == StateRejected
}

// Approved reports whether the state is either approval.
func (s State) Approved() bool {
	return s == StateAutoApproved || s == StateManuallyApproved
}

// transitions lists every legal edge. Decided states re-enter through
// corrections rather than being terminal.
var transitions = map[State][]State{
	StateReceived:         {StateAnalyzing},
	StateAnalyzing:        {StateAutoApproved, StatePendingReview},
	StatePendingReview:    {StateManuallyApproved, StateRejected, StateAnalyzing},
	StateAutoApproved:     {StateManuallyApproved, StateRejected},
	StateManuallyApproved: {StateRejected},
	StateRejected:         {StateManuallyApproved},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Snapshot is the slice of one workflow the reconciliation fold reads.
type Snapshot struct {
	State     State
	Actor     string    // decision actor; "system" for automatic decisions
	DecidedAt time.Time // zero while undecided
}

// Aggregate is the fold result persisted onto the invoice.
type Aggregate struct {
	State    InvoiceState
	Kind     DecisionKind // set when State is approved
	Conflict bool
	ActedBy  string
	ActedAt  time.Time
}

// Reconcile folds the sibling workflows into the invoice state.
//
// An approval beats a later rejection: the invoice stays approved with the
// conflict flag raised and acted_by pointing at whoever acted first. A
// rejection does not retract an approval already granted; reviewers see the
// conflict flag instead.
func Reconcile(workflows []Snapshot) Aggregate {
	var (
		approved []Snapshot
		rejected []Snapshot
	)
	for _, wf := range workflows {
		switch {
		case wf.State.Approved():
			approved = append(approved, wf)
		case wf.State == StateRejected:
			rejected = append(rejected, wf)
		}
	}

	switch {
	case len(approved) > 0 && len(rejected) > 0:
		first := earliest(append(approved, rejected...))
		return Aggregate{
			State:    InvoiceApproved,
			Kind:     approvalKind(approved),
			Conflict: true,
			ActedBy:  first.Actor,
			ActedAt:  first.DecidedAt,
		}
	case len(rejected) > 0:
		first := earliest(rejected)
		return Aggregate{State: InvoiceRejected, ActedBy: first.Actor, ActedAt: first.DecidedAt}
	case len(approved) > 0:
		kind := approvalKind(approved)
		actor := earliestOfKind(approved, kind)
		return Aggregate{State: InvoiceApproved, Kind: kind, ActedBy: actor.Actor, ActedAt: actor.DecidedAt}
	default:
		return Aggregate{State: InvoicePendingReview}
	}
}

// approvalKind prefers manual for display when both kinds exist.
func approvalKind(approved []Snapshot) DecisionKind {
	for _, wf := range approved {
		if wf.State == StateManuallyApproved {
			return DecisionManual
		}
	}
	return DecisionAuto
}

func earliest(workflows []Snapshot) Snapshot {
	first := workflows[0]
	for _, wf := range workflows[1:] {
		if wf.DecidedAt.Before(first.DecidedAt) {
			first = wf
		}
	}
	return first
}

func earliestOfKind(approved []Snapshot, kind DecisionKind) Snapshot {
	var candidates []Snapshot
	for _, wf := range approved {
		if kind == DecisionManual && wf.State == StateManuallyApproved {
			candidates = append(candidates, wf)
		}
		if kind == DecisionAuto && wf.State == StateAutoApproved {
			candidates = append(candidates, wf)
		}
	}
	if len(candidates) == 0 {
		candidates = approved
	}
	return earliest(candidates)
}
