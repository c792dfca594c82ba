package repository

import (
	"time"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/classifier"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/compare"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/workflow"
)

// ── Domain types for automatic approval ───────────────────────────────────────

// Invoice is an ingested vendor invoice tracked through automatic approval.
// The aggregate state fields are only written by reconciliation inside the
// invoice's critical section.
type Invoice struct {
	ID                 string
	ExternalDocID      string // ingestion document reference, unique
	InvoiceNumber      string
	ProviderID         string
	GroupID            string // organizational scope the invoice was billed to
	IssueDate          time.Time
	SubtotalCents      int64
	TaxCents           int64
	TotalCents         int64
	Concept            string
	ConceptNormalized  string
	ConceptFingerprint string // concept variant, the primary matching key
	FingerprintStrict  string
	FingerprintAmount  string // amount-tolerant variant
	FingerprintPO      *string
	PONumber           *string
	State              workflow.InvoiceState
	StateKind          workflow.DecisionKind // auto | manual; empty until approved
	Conflict           bool
	ActedBy            *string
	ActedAt            *time.Time
	AnalyzedAt         *time.Time // set once workflows have been created and analyzed
	Archived           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LineItems          []InvoiceLineItem
}

// InvoiceLineItem is one line of an invoice.
type InvoiceLineItem struct {
	ID              string
	InvoiceID       string
	LineNumber      int
	Description     string
	DescriptionHash string // normalized-description hash used for item matching
	Quantity        float64
	UnitPriceCents  int64
	TotalCents      int64
	ProductCode     *string
}

// Provider is a vendor with its current classification. Display data lives
// only here; assignments join at read time instead of carrying copies.
type Provider struct {
	ID                string
	TaxID             string
	Name              string
	ServiceType       classifier.ServiceType
	TrustTier         classifier.TrustTier
	CV                float64 // trailing-window coefficient of variation, percent
	RelationshipStart time.Time
	ClassifiedAt      *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ProviderAssignment binds a responsible party to a provider within a group
// and carries the policy the decision engine enforces.
type ProviderAssignment struct {
	ID                   string
	ProviderID           string
	ResponsibleID        string
	GroupID              string
	AllowAutoApproval    bool
	AlwaysRequireReview  bool
	MaxAutoAmountCents   int64   // 0 = no cap
	AllowedVariancePct   float64 // overrides the global month-over-month tolerance when > 0
	RequirePurchaseOrder bool
	Active               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Workflow tracks one responsible party's approval of one invoice.
type Workflow struct {
	ID              string
	InvoiceID       string
	ResponsibleID   string
	State           workflow.State
	Confidence      *float64 // decision confidence, set after analysis
	Threshold       *float64 // threshold applied at decision time
	Reasons         []string // verbatim failing conditions from the decision engine
	Differences     map[string]interface{}
	DecisionActor   *string
	DecidedAt       *time.Time
	Justification   *string
	RejectionReason *string // reason code, required on rejections
	AnalysisError   *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WorkflowEvent is one append-only entry in the per-invoice transition log.
// Reconciliation folds over workflow snapshots backed by this log.
type WorkflowEvent struct {
	ID         string
	WorkflowID string
	InvoiceID  string
	FromState  workflow.State
	ToState    workflow.State
	Kind       workflow.EventKind
	Actor      string
	Detail     map[string]interface{}
	OccurredAt time.Time
}

// HistoricalPattern caches the per-fingerprint statistics. Derived data,
// recomputed by the classification batch; safe to drop and rebuild.
type HistoricalPattern struct {
	ID                 string
	ProviderID         string
	ConceptFingerprint string
	SampleCount        int
	DistinctMonths     int
	MeanCents          int64
	MinCents           int64
	MaxCents           int64
	StdevCents         float64
	CV                 float64
	Tag                string // sparse | stable | variable | volatile
	ExpectedMinCents   int64
	ExpectedMaxCents   int64
	ComputedAt         time.Time
}

// Alert is one reviewer-facing finding attached to a workflow.
type Alert struct {
	ID         string
	WorkflowID string
	InvoiceID  string
	Kind       compare.AlertKind
	Severity   compare.Severity
	Detail     string
	BlocksAuto bool
	CreatedAt  time.Time
}

// DatedTotal is a minimal invoice projection for statistics queries.
type DatedTotal struct {
	IssueDate  time.Time
	TotalCents int64
}

// AuditEntry is one immutable record in the approval audit log.
type AuditEntry struct {
	ID          string
	InvoiceID   string
	WorkflowID  *string
	Action      string // analyzed | auto_approved | sent_to_review | manually_approved | rejected | reclassified
	PerformedBy string
	PerformedAt time.Time
	StateBefore *string
	StateAfter  *string
	Metadata    map[string]interface{}
}
