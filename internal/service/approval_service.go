package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/classifier"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/config"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/database"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/decision"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/errors"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/logger"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/pattern"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/repository"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/workflow"
)

// NotifierInterface publishes decision events. Implementations must be
// non-fatal: a broken broker never blocks an approval.
type NotifierInterface interface {
	PublishInvoiceEvent(ctx context.Context, eventType, invoiceID, groupID, actorID string, recipients []string, payload map[string]interface{})
}

// DirectoryInterface resolves a group's fallback review queue.
type DirectoryInterface interface {
	GroupReviewers(ctx context.Context, groupID string) []string
}

// Notification event types, mirrored by the publisher.
const (
	eventAutoApproved     = "invoice_auto_approved"
	eventSentToReview     = "invoice_sent_to_review"
	eventManuallyApproved = "invoice_manually_approved"
	eventRejected         = "invoice_rejected"
	eventDecisionConflict = "invoice_decision_conflict"
)

// Manual decision actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// ApprovalService orchestrates invoice analysis, per-responsible workflow
// decisions and the invoice-level reconciliation.
type ApprovalService struct {
	invoiceRepo    *repository.InvoiceRepository
	workflowRepo   *repository.WorkflowRepository
	eventRepo      *repository.WorkflowEventRepository
	providerRepo   *repository.ProviderRepository
	assignmentRepo *repository.AssignmentRepository
	alertRepo      *repository.AlertRepository
	auditRepo      *repository.AuditRepository
	db             *database.DB
	notifier       NotifierInterface
	directory      DirectoryInterface
	engine         config.EngineConfig
	log            *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	invoiceRepo *repository.InvoiceRepository,
	workflowRepo *repository.WorkflowRepository,
	eventRepo *repository.WorkflowEventRepository,
	providerRepo *repository.ProviderRepository,
	assignmentRepo *repository.AssignmentRepository,
	alertRepo *repository.AlertRepository,
	auditRepo *repository.AuditRepository,
	db *database.DB,
	notifier NotifierInterface,
	directory DirectoryInterface,
	engine config.EngineConfig,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		invoiceRepo:    invoiceRepo,
		workflowRepo:   workflowRepo,
		eventRepo:      eventRepo,
		providerRepo:   providerRepo,
		assignmentRepo: assignmentRepo,
		alertRepo:      alertRepo,
		auditRepo:      auditRepo,
		db:             db,
		notifier:       notifier,
		directory:      directory,
		engine:         engine,
		log:            log,
	}
}

// ProcessResult summarizes one invoice's analysis run.
type ProcessResult struct {
	InvoiceID        string
	WorkflowsCreated int
	AutoApproved     int
	SentToReview     int
	InvoiceState     workflow.InvoiceState
	Conflict         bool
}

// ── Invoice analysis ──────────────────────────────────────────────────────────

// ProcessNewInvoice opens one workflow per active assignment, analyzes each and
// reconciles the invoice state. Calling it again for an analyzed invoice is a
// no-op that reports the current state, so stream redeliveries are safe.
//
// A failed analysis routes that workflow to review with the error recorded; it
// never aborts the sibling workflows.
func (s *ApprovalService) ProcessNewInvoice(ctx context.Context, invoiceID string) (*ProcessResult, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.AnalyzedAt != nil {
		s.log.Debug().Str("invoice_id", invoiceID).Msg("Invoice already analyzed; skipping")
		return s.currentResult(ctx, invoice)
	}

	provider, err := s.providerRepo.GetByID(ctx, invoice.ProviderID)
	if err != nil {
		return nil, err
	}

	assignments, err := s.assignmentRepo.ListActiveByProvider(ctx, invoice.ProviderID, invoice.GroupID)
	if err != nil {
		return nil, err
	}

	var fallbackReasons []string
	if len(assignments) == 0 {
		// No one is assigned to this provider: open a single review-only
		// workflow owned by the group's fallback queue.
		assignments = []*repository.ProviderAssignment{s.fallbackAssignment(ctx, invoice)}
		fallbackReasons = []string{"no active assignment for provider; routed to fallback reviewer"}
	}

	// Workflows that already exist (from an interrupted run) are reused, not
	// duplicated.
	existing, err := s.workflowRepo.ListByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	byResponsible := make(map[string]*repository.Workflow, len(existing))
	for _, wf := range existing {
		byResponsible[wf.ResponsibleID] = wf
	}

	result := &ProcessResult{InvoiceID: invoiceID}
	for _, assignment := range assignments {
		wf := byResponsible[assignment.ResponsibleID]
		if wf == nil {
			wf = &repository.Workflow{InvoiceID: invoiceID, ResponsibleID: assignment.ResponsibleID}
			if err := s.workflowRepo.Create(ctx, wf); err != nil {
				return nil, err
			}
			result.WorkflowsCreated++
		} else if wf.State != workflow.StateReceived && wf.State != workflow.StateAnalyzing {
			// Already decided or queued for a human; leave it alone.
			continue
		}

		updated, err := s.analyzeWorkflow(ctx, invoice, provider, wf, assignment, fallbackReasons)
		if err != nil {
			s.log.Error().Err(err).
				Str("invoice_id", invoiceID).
				Str("workflow_id", wf.ID).
				Msg("Workflow analysis failed; routing to review")
			updated = s.failWorkflow(ctx, wf, err)
			if updated == nil {
				continue
			}
		}

		switch updated.State {
		case workflow.StateAutoApproved:
			result.AutoApproved++
			s.notifyWorkflow(ctx, invoice, updated, eventAutoApproved)
		case workflow.StatePendingReview:
			result.SentToReview++
			s.notifyWorkflow(ctx, invoice, updated, eventSentToReview)
		}
	}

	agg, err := s.reconcileInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	result.InvoiceState = agg.State
	result.Conflict = agg.Conflict

	if err := s.invoiceRepo.MarkAnalyzed(ctx, invoiceID); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		InvoiceID:   invoiceID,
		Action:      "analyzed",
		PerformedBy: "system",
		StateAfter:  strPtr(string(agg.State)),
		Metadata: map[string]interface{}{
			"workflows_created": result.WorkflowsCreated,
			"auto_approved":     result.AutoApproved,
			"sent_to_review":    result.SentToReview,
		},
	})

	s.log.Info().
		Str("invoice_id", invoiceID).
		Str("invoice_number", invoice.InvoiceNumber).
		Int("workflows", result.WorkflowsCreated).
		Int("auto_approved", result.AutoApproved).
		Int("sent_to_review", result.SentToReview).
		Str("invoice_state", string(agg.State)).
		Msg("Invoice analyzed")

	return result, nil
}

// analyzeWorkflow runs one workflow through analysis and records the verdict.
func (s *ApprovalService) analyzeWorkflow(
	ctx context.Context,
	invoice *repository.Invoice,
	provider *repository.Provider,
	wf *repository.Workflow,
	assignment *repository.ProviderAssignment,
	extraReasons []string,
) (*repository.Workflow, error) {
	// A workflow found back in analyzing was interrupted mid-run; analysis is
	// restartable so it just resumes.
	if wf.State != workflow.StateAnalyzing {
		if err := s.workflowRepo.Start(ctx, wf.ID, wf.State); err != nil {
			return nil, err
		}
	}

	since, until := historyWindow(invoice.IssueDate, s.engine.HistoryWindowMonths)
	history, err := s.invoiceRepo.ListHistory(ctx, invoice.ProviderID, invoice.ConceptFingerprint, since, until, invoice.ID)
	if err != nil {
		return nil, err
	}
	priorItems, err := s.invoiceRepo.ListHistoricalLineItems(ctx, invoice.ProviderID, invoice.ConceptFingerprint, until, 1)
	if err != nil {
		return nil, err
	}

	threshold := s.resolveThreshold(ctx, provider, history)

	tolerance := s.engine.MonthOverMonthTolerancePct
	if assignment.AllowedVariancePct > 0 {
		tolerance = assignment.AllowedVariancePct
	}

	out := evaluate(analysisData{
		invoice:    invoice,
		history:    history,
		priorItems: priorItems,
		policy: decision.Policy{
			AllowAutoApproval:    assignment.AllowAutoApproval,
			AlwaysRequireReview:  assignment.AlwaysRequireReview,
			MaxAutoAmountCents:   assignment.MaxAutoAmountCents,
			RequirePurchaseOrder: assignment.RequirePurchaseOrder,
		},
		threshold:      threshold,
		tolerancePct:   tolerance,
		fuzzyThreshold: s.engine.FuzzyMatchThreshold,
		extraReasons:   extraReasons,
	})

	updated, err := s.workflowRepo.RecordAnalysis(ctx, repository.AnalysisResult{
		WorkflowID:  wf.ID,
		To:          out.state,
		Confidence:  out.outcome.Confidence,
		Threshold:   threshold,
		Reasons:     out.outcome.Reasons,
		Differences: out.differences(),
		DecidedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.storeAlerts(ctx, updated, out)

	s.log.Info().
		Str("invoice_id", invoice.ID).
		Str("workflow_id", wf.ID).
		Str("responsible_id", wf.ResponsibleID).
		Str("state", string(updated.State)).
		Float64("confidence", out.outcome.Confidence).
		Float64("threshold", threshold).
		Int("reasons", len(out.outcome.Reasons)).
		Msg("Workflow analyzed")

	return updated, nil
}

// resolveThreshold returns the provider's auto-approval threshold, classifying
// on the fly when the provider has never been through the classification job.
func (s *ApprovalService) resolveThreshold(ctx context.Context, provider *repository.Provider, history []*repository.Invoice) float64 {
	if provider.ClassifiedAt != nil {
		return classifier.Threshold(provider.ServiceType, provider.TrustTier)
	}

	c := classifier.Classify(pattern.Summarize(historySeries(history)), provider.RelationshipStart, time.Now().UTC())
	if err := s.providerRepo.UpdateClassification(ctx, provider.ID, c, time.Now().UTC()); err != nil {
		s.log.Warn().Err(err).
			Str("provider_id", provider.ID).
			Msg("Could not persist on-the-fly classification")
	}
	return c.Threshold
}

// failWorkflow records a failed analysis as a pending review. Returns nil when
// even that could not be persisted.
func (s *ApprovalService) failWorkflow(ctx context.Context, wf *repository.Workflow, cause error) *repository.Workflow {
	msg := cause.Error()
	updated, err := s.workflowRepo.RecordAnalysis(ctx, repository.AnalysisResult{
		WorkflowID:    wf.ID,
		To:            workflow.StatePendingReview,
		Reasons:       []string{"automatic analysis failed; manual review required"},
		AnalysisError: &msg,
		DecidedAt:     time.Now().UTC(),
	})
	if err != nil {
		s.log.Error().Err(err).
			Str("workflow_id", wf.ID).
			Msg("Could not record failed analysis")
		return nil
	}
	return updated
}

// storeAlerts persists analysis alerts. Losing an alert row is tolerable; the
// blocking conditions are already in the workflow's reasons.
func (s *ApprovalService) storeAlerts(ctx context.Context, wf *repository.Workflow, out analysisOutput) {
	if len(out.outcome.Alerts) == 0 {
		return
	}

	alerts := make([]*repository.Alert, 0, len(out.outcome.Alerts))
	for _, a := range out.outcome.Alerts {
		alerts = append(alerts, &repository.Alert{
			WorkflowID: wf.ID,
			InvoiceID:  wf.InvoiceID,
			Kind:       a.Kind,
			Severity:   a.Severity,
			Detail:     a.Detail,
			BlocksAuto: a.BlocksAuto,
		})
	}
	if err := s.alertRepo.CreateBatch(ctx, alerts); err != nil {
		s.log.Warn().Err(err).
			Str("workflow_id", wf.ID).
			Int("alerts", len(alerts)).
			Msg("Failed to store analysis alerts")
	}
}

// fallbackAssignment builds the synthetic review-only policy used when a
// provider has nobody assigned.
func (s *ApprovalService) fallbackAssignment(ctx context.Context, invoice *repository.Invoice) *repository.ProviderAssignment {
	responsible := s.engine.DefaultReviewerID
	if s.directory != nil {
		if reviewers := s.directory.GroupReviewers(ctx, invoice.GroupID); len(reviewers) > 0 {
			responsible = reviewers[0]
		}
	}
	return &repository.ProviderAssignment{
		ProviderID:    invoice.ProviderID,
		ResponsibleID: responsible,
		GroupID:       invoice.GroupID,
	}
}

// ── Manual decisions ──────────────────────────────────────────────────────────

// ManualDecisionRequest is a responsible acting on their workflow.
type ManualDecisionRequest struct {
	WorkflowID    string
	Actor         string
	Action        string // approve | reject
	Justification *string
	Reason        *string // required when rejecting
}

// ApplyManualDecision validates and applies a human decision, then reconciles
// the invoice state. Acting on an already-decided workflow is a correction and
// is recorded as such in the event log.
func (s *ApprovalService) ApplyManualDecision(ctx context.Context, req *ManualDecisionRequest) (*repository.Workflow, error) {
	if req.Actor == "" {
		return nil, errors.InvalidInput("actor", "acting user is required")
	}

	wf, err := s.workflowRepo.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	to, kind, err := manualTransition(wf.State, req.Action)
	if err != nil {
		return nil, err
	}
	if to == workflow.StateRejected && (req.Reason == nil || *req.Reason == "") {
		return nil, errors.InvalidInput("reason", "rejection reason is required")
	}

	updated, err := s.workflowRepo.RecordManualDecision(ctx, repository.ManualDecision{
		WorkflowID:      req.WorkflowID,
		From:            wf.State,
		To:              to,
		Kind:            kind,
		Actor:           req.Actor,
		Justification:   req.Justification,
		RejectionReason: req.Reason,
		DecidedAt:       time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, updated.InvoiceID)
	if err != nil {
		return nil, err
	}
	wasConflict := invoice.Conflict

	agg, err := s.reconcileInvoice(ctx, updated.InvoiceID)
	if err != nil {
		return nil, err
	}

	eventType := eventRejected
	action := "rejected"
	if to == workflow.StateManuallyApproved {
		eventType = eventManuallyApproved
		action = "manually_approved"
	}
	s.notifyWorkflow(ctx, invoice, updated, eventType)
	if agg.Conflict && !wasConflict {
		s.notifyConflict(ctx, invoice)
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		InvoiceID:   updated.InvoiceID,
		WorkflowID:  &updated.ID,
		Action:      action,
		PerformedBy: req.Actor,
		StateBefore: strPtr(string(wf.State)),
		StateAfter:  strPtr(string(to)),
		Metadata:    auditMetadata(req, kind),
	})

	s.log.Info().
		Str("invoice_id", updated.InvoiceID).
		Str("workflow_id", updated.ID).
		Str("actor", req.Actor).
		Str("from", string(wf.State)).
		Str("to", string(to)).
		Str("invoice_state", string(agg.State)).
		Bool("conflict", agg.Conflict).
		Msg("Manual decision applied")

	return updated, nil
}

// manualTransition maps an action onto the state machine. Overriding a decided
// state is legal but flagged as a correction.
func manualTransition(from workflow.State, action string) (workflow.State, workflow.EventKind, error) {
	var to workflow.State
	switch action {
	case ActionApprove:
		to = workflow.StateManuallyApproved
	case ActionReject:
		to = workflow.StateRejected
	default:
		return "", "", errors.InvalidInput("action", "must be 'approve' or 'reject'")
	}

	if !workflow.CanTransition(from, to) {
		return "", "", errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("cannot %s a workflow in state '%s'", action, from))
	}

	kind := workflow.EventManual
	if from.Decided() {
		kind = workflow.EventCorrection
	}
	return to, kind, nil
}

// ── Batch processing ──────────────────────────────────────────────────────────

// BatchResult summarizes one ProcessPending run.
type BatchResult struct {
	Processed    int
	AutoApproved int
	SentToReview int
	Failed       int
}

// ProcessPending drains unanalyzed invoices, oldest first. Each invoice is
// processed independently: one failure is logged and counted, the rest of the
// batch continues.
func (s *ApprovalService) ProcessPending(ctx context.Context, limit int) (*BatchResult, error) {
	if limit <= 0 {
		limit = s.engine.BatchLimit
	}

	invoices, err := s.invoiceRepo.ListPendingAnalysis(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for _, invoice := range invoices {
		res, err := s.ProcessNewInvoice(ctx, invoice.ID)
		if err != nil {
			result.Failed++
			s.log.Error().Err(err).
				Str("invoice_id", invoice.ID).
				Msg("Batch: invoice processing failed")
			continue
		}
		result.Processed++
		result.AutoApproved += res.AutoApproved
		result.SentToReview += res.SentToReview
	}

	if len(invoices) > 0 {
		s.log.Info().
			Int("processed", result.Processed).
			Int("auto_approved", result.AutoApproved).
			Int("sent_to_review", result.SentToReview).
			Int("failed", result.Failed).
			Msg("Pending batch processed")
	}
	return result, nil
}

// ── Query helpers ─────────────────────────────────────────────────────────────

// InvoiceStatus bundles an invoice with its workflows and alerts.
type InvoiceStatus struct {
	Invoice   *repository.Invoice
	Workflows []*repository.Workflow
	Alerts    []*repository.Alert
}

// GetInvoiceStatus returns the invoice, all sibling workflows and their alerts.
func (s *ApprovalService) GetInvoiceStatus(ctx context.Context, invoiceID string) (*InvoiceStatus, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	workflows, err := s.workflowRepo.ListByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	alerts, err := s.alertRepo.ListByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return &InvoiceStatus{Invoice: invoice, Workflows: workflows, Alerts: alerts}, nil
}

// GetPendingReviews returns the workflows waiting on one responsible.
func (s *ApprovalService) GetPendingReviews(ctx context.Context, responsibleID string, page, pageSize int) ([]*repository.Workflow, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return s.workflowRepo.ListPendingByResponsible(ctx, responsibleID, pageSize, (page-1)*pageSize)
}

// GetTimeline returns the transition log for an invoice, oldest first.
func (s *ApprovalService) GetTimeline(ctx context.Context, invoiceID string) ([]*repository.WorkflowEvent, error) {
	return s.eventRepo.ListByInvoiceID(ctx, invoiceID)
}

// GetApprovalHistory returns the audit trail for an invoice.
func (s *ApprovalService) GetApprovalHistory(ctx context.Context, invoiceID string) ([]*repository.AuditEntry, error) {
	return s.auditRepo.ListByInvoiceID(ctx, invoiceID)
}

// ── Reconciliation ────────────────────────────────────────────────────────────

// reconcileInvoice folds the sibling workflows into the invoice state inside
// the invoice's critical section. Concurrent decisions on different workflows
// serialize on the row lock, so the last fold always sees every decision.
func (s *ApprovalService) reconcileInvoice(ctx context.Context, invoiceID string) (workflow.Aggregate, error) {
	var agg workflow.Aggregate
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.invoiceRepo.LockForUpdate(ctx, tx, invoiceID); err != nil {
			return err
		}

		workflows, err := s.workflowRepo.ListByInvoiceIDTx(ctx, tx, invoiceID)
		if err != nil {
			return err
		}

		snapshots := make([]workflow.Snapshot, 0, len(workflows))
		for _, wf := range workflows {
			snapshots = append(snapshots, snapshotOf(wf))
		}

		agg = workflow.Reconcile(snapshots)
		return s.invoiceRepo.ApplyAggregate(ctx, tx, invoiceID, agg)
	})
	if err != nil {
		return workflow.Aggregate{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to reconcile invoice state")
	}
	return agg, nil
}

// snapshotOf reduces a workflow row to the reconciliation fold's input.
func snapshotOf(wf *repository.Workflow) workflow.Snapshot {
	snap := workflow.Snapshot{State: wf.State, Actor: "system"}
	if wf.DecisionActor != nil {
		snap.Actor = *wf.DecisionActor
	}
	if wf.DecidedAt != nil {
		snap.DecidedAt = *wf.DecidedAt
	}
	return snap
}

// currentResult reassembles a ProcessResult for an already-analyzed invoice.
func (s *ApprovalService) currentResult(ctx context.Context, invoice *repository.Invoice) (*ProcessResult, error) {
	workflows, err := s.workflowRepo.ListByInvoiceID(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{
		InvoiceID:    invoice.ID,
		InvoiceState: invoice.State,
		Conflict:     invoice.Conflict,
	}
	for _, wf := range workflows {
		switch wf.State {
		case workflow.StateAutoApproved:
			result.AutoApproved++
		case workflow.StatePendingReview:
			result.SentToReview++
		}
	}
	return result, nil
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// notifyWorkflow publishes a per-workflow decision event to its responsible.
func (s *ApprovalService) notifyWorkflow(ctx context.Context, invoice *repository.Invoice, wf *repository.Workflow, eventType string) {
	if s.notifier == nil {
		return
	}

	actor := "system"
	if wf.DecisionActor != nil {
		actor = *wf.DecisionActor
	}

	payload := map[string]interface{}{
		"invoice_number": invoice.InvoiceNumber,
		"provider_id":    invoice.ProviderID,
		"total_cents":    invoice.TotalCents,
	}
	if wf.Confidence != nil {
		payload["confidence"] = *wf.Confidence
	}
	if len(wf.Reasons) > 0 {
		payload["reasons"] = wf.Reasons
	}

	s.notifier.PublishInvoiceEvent(ctx, eventType, invoice.ID, invoice.GroupID, actor,
		[]string{wf.ResponsibleID}, payload)
}

// notifyConflict tells every responsible that the invoice now carries both an
// approval and a rejection.
func (s *ApprovalService) notifyConflict(ctx context.Context, invoice *repository.Invoice) {
	if s.notifier == nil {
		return
	}

	workflows, err := s.workflowRepo.ListByInvoiceID(ctx, invoice.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("invoice_id", invoice.ID).Msg("Could not resolve conflict recipients")
		return
	}

	seen := make(map[string]struct{}, len(workflows))
	recipients := make([]string, 0, len(workflows))
	for _, wf := range workflows {
		if _, ok := seen[wf.ResponsibleID]; ok {
			continue
		}
		seen[wf.ResponsibleID] = struct{}{}
		recipients = append(recipients, wf.ResponsibleID)
	}

	s.notifier.PublishInvoiceEvent(ctx, eventDecisionConflict, invoice.ID, invoice.GroupID, "system",
		recipients, map[string]interface{}{
			"invoice_number": invoice.InvoiceNumber,
			"provider_id":    invoice.ProviderID,
		})
}

// appendAudit writes an audit entry and logs a warning on failure (never
// returns an error).
func (s *ApprovalService) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	if err := s.auditRepo.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("invoice_id", entry.InvoiceID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

func auditMetadata(req *ManualDecisionRequest, kind workflow.EventKind) map[string]interface{} {
	metadata := map[string]interface{}{"event_kind": string(kind)}
	if req.Justification != nil {
		metadata["justification"] = *req.Justification
	}
	if req.Reason != nil {
		metadata["rejection_reason"] = *req.Reason
	}
	return metadata
}

func strPtr(s string) *string {
	return &s
}
