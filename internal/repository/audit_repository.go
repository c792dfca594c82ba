package repository

import (
	"context"
	"encoding/json"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/database"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/errors"
)

// AuditRepository appends to the approval audit log. The log is append-only;
// a trigger in the schema rejects UPDATE and DELETE.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append records an audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO approval_audit_log
		    (invoice_id, workflow_id, action, performed_by,
		     state_before, state_after, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, performed_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.InvoiceID,
		entry.WorkflowID,
		entry.Action,
		entry.PerformedBy,
		entry.StateBefore,
		entry.StateAfter,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// ListByInvoiceID returns the audit trail for an invoice, oldest first.
func (r *AuditRepository) ListByInvoiceID(ctx context.Context, invoiceID string) ([]*AuditEntry, error) {
	query := selectAudit + `
		WHERE invoice_id = $1
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list audit entries")
	}
	defer rows.Close()

	entries := make([]*AuditEntry, 0)
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

const selectAudit = `
	SELECT id, invoice_id, workflow_id, action, performed_by,
	       state_before, state_after, metadata, performed_at
	FROM approval_audit_log`

type auditScanner interface {
	Scan(dest ...any) error
}

func (r *AuditRepository) scanEntry(sc auditScanner) (*AuditEntry, error) {
	entry := &AuditEntry{}
	var metadataJSON []byte

	err := sc.Scan(
		&entry.ID,
		&entry.InvoiceID,
		&entry.WorkflowID,
		&entry.Action,
		&entry.PerformedBy,
		&entry.StateBefore,
		&entry.StateAfter,
		&metadataJSON,
		&entry.PerformedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}
	return entry, nil
}
