package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/compare"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/database"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/errors"
)

// AlertRepository persists the alerts raised during invoice analysis.
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// CreateBatch inserts the alerts for one analysis pass in a single
// transaction. Alert ids are generated client-side so callers can reference
// them before commit.
func (r *AlertRepository) CreateBatch(ctx context.Context, alerts []*Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO alerts
			    (id, workflow_id, invoice_id, kind, severity, detail, blocks_auto)
			VALUES ($1, $2, $3, $4::alert_kind, $5::alert_severity, $6, $7)
			RETURNING created_at
		`

		for _, a := range alerts {
			if a.ID == "" {
				a.ID = uuid.New().String()
			}
			err := tx.QueryRow(ctx, query,
				a.ID,
				a.WorkflowID,
				a.InvoiceID,
				string(a.Kind),
				string(a.Severity),
				a.Detail,
				a.BlocksAuto,
			).Scan(&a.CreatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create alert")
			}
		}
		return nil
	})
}

// ListByWorkflowID returns the alerts raised for one workflow, oldest first.
func (r *AlertRepository) ListByWorkflowID(ctx context.Context, workflowID string) ([]*Alert, error) {
	query := selectAlert + `
		WHERE workflow_id = $1
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, workflowID)
}

// ListByInvoiceID returns the alerts raised for an invoice across all of its
// workflows, oldest first.
func (r *AlertRepository) ListByInvoiceID(ctx context.Context, invoiceID string) ([]*Alert, error) {
	query := selectAlert + `
		WHERE invoice_id = $1
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, invoiceID)
}

func (r *AlertRepository) list(ctx context.Context, query string, arg any) ([]*Alert, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list alerts")
	}
	defer rows.Close()

	alerts := make([]*Alert, 0)
	for rows.Next() {
		a := &Alert{}
		var kindStr, severityStr string
		err := rows.Scan(
			&a.ID,
			&a.WorkflowID,
			&a.InvoiceID,
			&kindStr,
			&severityStr,
			&a.Detail,
			&a.BlocksAuto,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan alert")
		}
		a.Kind = compare.AlertKind(kindStr)
		a.Severity = compare.Severity(severityStr)
		alerts = append(alerts, a)
	}

	return alerts, nil
}

const selectAlert = `
	SELECT id, workflow_id, invoice_id, kind, severity, detail, blocks_auto, created_at
	FROM alerts`
