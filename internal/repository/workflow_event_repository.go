package repository

import (
	"context"
	"encoding/json"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/database"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/errors"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/workflow"
)

// WorkflowEventRepository reads the append-only transition log. Writes happen
// inside WorkflowRepository transitions so an event can never exist without
// its workflow mutation.
type WorkflowEventRepository struct {
	db *database.DB
}

// NewWorkflowEventRepository creates a new WorkflowEventRepository.
func NewWorkflowEventRepository(db *database.DB) *WorkflowEventRepository {
	return &WorkflowEventRepository{db: db}
}

// ListByInvoiceID returns the full transition history of an invoice,
// oldest first.
func (r *WorkflowEventRepository) ListByInvoiceID(ctx context.Context, invoiceID string) ([]*WorkflowEvent, error) {
	query := `
		SELECT id, workflow_id, invoice_id, from_state, to_state, kind, actor, detail, occurred_at
		FROM workflow_events
		WHERE invoice_id = $1
		ORDER BY occurred_at ASC
	`

	rows, err := r.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list workflow events")
	}
	defer rows.Close()

	events := make([]*WorkflowEvent, 0)
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, nil
}

// ListByWorkflowID returns one workflow's transitions, oldest first.
func (r *WorkflowEventRepository) ListByWorkflowID(ctx context.Context, workflowID string) ([]*WorkflowEvent, error) {
	query := `
		SELECT id, workflow_id, invoice_id, from_state, to_state, kind, actor, detail, occurred_at
		FROM workflow_events
		WHERE workflow_id = $1
		ORDER BY occurred_at ASC
	`

	rows, err := r.db.Query(ctx, query, workflowID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list workflow events")
	}
	defer rows.Close()

	events := make([]*WorkflowEvent, 0)
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type eventScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowEventRepository) scanEvent(sc eventScanner) (*WorkflowEvent, error) {
	event := &WorkflowEvent{}
	var fromStr, toStr, kindStr string
	var detailJSON []byte

	err := sc.Scan(
		&event.ID,
		&event.WorkflowID,
		&event.InvoiceID,
		&fromStr,
		&toStr,
		&kindStr,
		&event.Actor,
		&detailJSON,
		&event.OccurredAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow event")
	}

	event.FromState = workflow.ParseState(fromStr)
	event.ToState = workflow.ParseState(toStr)
	event.Kind = workflow.EventKind(kindStr)
	if detailJSON != nil {
		if err := json.Unmarshal(detailJSON, &event.Detail); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal event detail")
		}
	}

	return event, nil
}
