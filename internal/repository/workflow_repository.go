package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/database"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/errors"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/workflow"
)

// WorkflowRepository manages per-responsible workflows. Every state change
// appends a workflow_events row in the same transaction, so the event log and
// the workflow row can never drift apart.
type WorkflowRepository struct {
	db *database.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *database.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts a workflow in the received state.
func (r *WorkflowRepository) Create(ctx context.Context, wf *Workflow) error {
	query := `
		INSERT INTO workflows (invoice_id, responsible_id, state)
		VALUES ($1, $2, 'received'::workflow_state)
		RETURNING id, state, created_at, updated_at
	`

	var stateStr string
	err := r.db.QueryRow(ctx, query, wf.InvoiceID, wf.ResponsibleID).
		Scan(&wf.ID, &stateStr, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create workflow")
	}
	wf.State = workflow.ParseState(stateStr)
	return nil
}

// Start moves a workflow into analyzing. Legal from received (fresh workflow)
// and from pending_review (re-analysis).
func (r *WorkflowRepository) Start(ctx context.Context, id string, from workflow.State) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE workflows
			SET state = 'analyzing'::workflow_state, updated_at = NOW()
			WHERE id = $1 AND state = $2::workflow_state
			RETURNING invoice_id
		`

		var invoiceID string
		err := tx.QueryRow(ctx, query, id, string(from)).Scan(&invoiceID)
		if err != nil {
			return r.transitionError(ctx, err, id)
		}

		return r.appendEvent(ctx, tx, &WorkflowEvent{
			WorkflowID: id,
			InvoiceID:  invoiceID,
			FromState:  from,
			ToState:    workflow.StateAnalyzing,
			Kind:       workflow.EventAnalysis,
			Actor:      "system",
		})
	})
}

// AnalysisResult is the decision payload recorded when analysis lands.
type AnalysisResult struct {
	WorkflowID    string
	To            workflow.State // auto_approved or pending_review
	Confidence    float64
	Threshold     float64
	Reasons       []string
	Differences   map[string]interface{}
	AnalysisError *string
	DecidedAt     time.Time
}

// RecordAnalysis moves a workflow from analyzing to its verdict and stores the
// decision payload. Auto-approvals are stamped as decided by the system.
func (r *WorkflowRepository) RecordAnalysis(ctx context.Context, res AnalysisResult) (*Workflow, error) {
	var updated *Workflow
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		differencesJSON, err := marshalDetail(res.Differences)
		if err != nil {
			return err
		}

		var decisionActor *string
		var decidedAt *time.Time
		if res.To == workflow.StateAutoApproved {
			system := "system"
			decisionActor = &system
			decidedAt = &res.DecidedAt
		}

		query := `
			UPDATE workflows
			SET state = $2::workflow_state,
			    confidence = $3,
			    threshold = $4,
			    reasons = $5,
			    differences = $6,
			    analysis_error = $7,
			    decision_actor = $8,
			    decided_at = $9,
			    updated_at = NOW()
			WHERE id = $1 AND state = 'analyzing'::workflow_state
			RETURNING ` + workflowColumns

		updated, err = r.scanWorkflow(tx.QueryRow(ctx, query,
			res.WorkflowID,
			string(res.To),
			res.Confidence,
			res.Threshold,
			res.Reasons,
			differencesJSON,
			res.AnalysisError,
			decisionActor,
			decidedAt,
		))
		if err != nil {
			return r.transitionError(ctx, err, res.WorkflowID)
		}

		return r.appendEvent(ctx, tx, &WorkflowEvent{
			WorkflowID: updated.ID,
			InvoiceID:  updated.InvoiceID,
			FromState:  workflow.StateAnalyzing,
			ToState:    res.To,
			Kind:       workflow.EventAnalysis,
			Actor:      "system",
			Detail:     res.Differences,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ManualDecision is a human action on one workflow.
type ManualDecision struct {
	WorkflowID      string
	From            workflow.State
	To              workflow.State // manually_approved or rejected
	Kind            workflow.EventKind
	Actor           string
	Justification   *string
	RejectionReason *string
	DecidedAt       time.Time
}

// RecordManualDecision applies a human decision. The caller validates the
// transition; the state guard here catches concurrent actors.
func (r *WorkflowRepository) RecordManualDecision(ctx context.Context, dec ManualDecision) (*Workflow, error) {
	var updated *Workflow
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE workflows
			SET state = $2::workflow_state,
			    decision_actor = $3,
			    decided_at = $4,
			    justification = $5,
			    rejection_reason = $6,
			    updated_at = NOW()
			WHERE id = $1 AND state = $7::workflow_state
			RETURNING ` + workflowColumns

		var err error
		updated, err = r.scanWorkflow(tx.QueryRow(ctx, query,
			dec.WorkflowID,
			string(dec.To),
			dec.Actor,
			dec.DecidedAt,
			dec.Justification,
			dec.RejectionReason,
			string(dec.From),
		))
		if err != nil {
			return r.transitionError(ctx, err, dec.WorkflowID)
		}

		detail := map[string]interface{}{}
		if dec.Justification != nil {
			detail["justification"] = *dec.Justification
		}
		if dec.RejectionReason != nil {
			detail["rejection_reason"] = *dec.RejectionReason
		}

		return r.appendEvent(ctx, tx, &WorkflowEvent{
			WorkflowID: updated.ID,
			InvoiceID:  updated.InvoiceID,
			FromState:  dec.From,
			ToState:    dec.To,
			Kind:       dec.Kind,
			Actor:      dec.Actor,
			Detail:     detail,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetByID retrieves a workflow by its primary key.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("workflow", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get workflow")
	}
	return wf, nil
}

// ListByInvoiceID returns every workflow of an invoice, the reconciliation
// input set.
func (r *WorkflowRepository) ListByInvoiceID(ctx context.Context, invoiceID string) ([]*Workflow, error) {
	return r.listByInvoice(ctx, r.db, invoiceID)
}

// ListByInvoiceIDTx is ListByInvoiceID inside an open transaction, so
// reconciliation reads a consistent set under the invoice row lock.
func (r *WorkflowRepository) ListByInvoiceIDTx(ctx context.Context, tx pgx.Tx, invoiceID string) ([]*Workflow, error) {
	return r.listByInvoice(ctx, tx, invoiceID)
}

type rowQueryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *WorkflowRepository) listByInvoice(ctx context.Context, q rowQueryer, invoiceID string) ([]*Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE invoice_id = $1
		ORDER BY created_at
	`

	rows, err := q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list invoice workflows")
	}
	defer rows.Close()

	workflows := make([]*Workflow, 0)
	for rows.Next() {
		wf, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow")
		}
		workflows = append(workflows, wf)
	}

	return workflows, nil
}

// ListPendingByResponsible returns workflows waiting on one responsible party,
// oldest first.
func (r *WorkflowRepository) ListPendingByResponsible(ctx context.Context, responsibleID string, limit, offset int) ([]*Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE responsible_id = $1 AND state = 'pending_review'::workflow_state
		ORDER BY created_at
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, responsibleID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending workflows")
	}
	defer rows.Close()

	workflows := make([]*Workflow, 0)
	for rows.Next() {
		wf, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan pending workflow")
		}
		workflows = append(workflows, wf)
	}

	return workflows, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

const workflowColumns = `id, invoice_id, responsible_id, state,
	       confidence, threshold, reasons, differences,
	       decision_actor, decided_at, justification, rejection_reason,
	       analysis_error, created_at, updated_at`

type workflowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row workflowScanner) (*Workflow, error) {
	wf := &Workflow{}
	var stateStr string
	var differencesJSON []byte

	err := row.Scan(
		&wf.ID,
		&wf.InvoiceID,
		&wf.ResponsibleID,
		&stateStr,
		&wf.Confidence,
		&wf.Threshold,
		&wf.Reasons,
		&differencesJSON,
		&wf.DecisionActor,
		&wf.DecidedAt,
		&wf.Justification,
		&wf.RejectionReason,
		&wf.AnalysisError,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	wf.State = workflow.ParseState(stateStr)
	if differencesJSON != nil {
		if err := json.Unmarshal(differencesJSON, &wf.Differences); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal workflow differences")
		}
	}
	return wf, nil
}

// appendEvent writes one transition log entry inside the caller's transaction.
func (r *WorkflowRepository) appendEvent(ctx context.Context, tx pgx.Tx, event *WorkflowEvent) error {
	detailJSON, err := marshalDetail(event.Detail)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_events (id, workflow_id, invoice_id, from_state, to_state, kind, actor, detail)
		VALUES ($1, $2, $3, $4::workflow_state, $5::workflow_state, $6::event_kind, $7, $8)
	`

	_, err = tx.Exec(ctx, query,
		uuid.New().String(),
		event.WorkflowID,
		event.InvoiceID,
		string(event.FromState),
		string(event.ToState),
		string(event.Kind),
		event.Actor,
		detailJSON,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append workflow event")
	}
	return nil
}

// transitionError distinguishes a missing workflow from a concurrent state
// change when a guarded update matches no row.
func (r *WorkflowRepository) transitionError(ctx context.Context, err error, id string) error {
	if err != pgx.ErrNoRows {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update workflow")
	}
	if _, getErr := r.GetByID(ctx, id); errors.IsNotFound(getErr) {
		return errors.NotFound("workflow", id)
	}
	return errors.New(errors.ErrCodeConflict, "workflow state changed concurrently")
}

func marshalDetail(detail map[string]interface{}) ([]byte, error) {
	if detail == nil {
		return nil, nil
	}
	out, err := json.Marshal(detail)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal event detail")
	}
	return out, nil
}
