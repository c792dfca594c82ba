package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/database"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/errors"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/workflow"
)

// InvoiceRepository handles invoice data operations.
type InvoiceRepository struct {
	db *database.DB
}

// NewInvoiceRepository creates a new invoice repository.
func NewInvoiceRepository(db *database.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create inserts an invoice with its lines in one transaction. Fingerprints
// and normalized fields must already be computed by the caller.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *Invoice) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO invoices (external_doc_id, invoice_number, provider_id, group_id,
			                      issue_date, subtotal_cents, tax_cents, total_cents,
			                      concept, concept_normalized, concept_fingerprint,
			                      fingerprint_strict, fingerprint_amount, fingerprint_po,
			                      po_number)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING id, state, created_at, updated_at
		`

		var stateStr string
		err := tx.QueryRow(ctx, query,
			invoice.ExternalDocID,
			invoice.InvoiceNumber,
			invoice.ProviderID,
			invoice.GroupID,
			invoice.IssueDate,
			invoice.SubtotalCents,
			invoice.TaxCents,
			invoice.TotalCents,
			invoice.Concept,
			invoice.ConceptNormalized,
			invoice.ConceptFingerprint,
			invoice.FingerprintStrict,
			invoice.FingerprintAmount,
			invoice.FingerprintPO,
			invoice.PONumber,
		).Scan(&invoice.ID, &stateStr, &invoice.CreatedAt, &invoice.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create invoice")
		}
		invoice.State = workflow.ParseInvoiceState(stateStr)

		for i := range invoice.LineItems {
			line := &invoice.LineItems[i]
			lineQuery := `
				INSERT INTO invoice_line_items (invoice_id, line_number, description,
				                                description_hash, quantity,
				                                unit_price_cents, total_cents, product_code)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING id
			`

			err := tx.QueryRow(ctx, lineQuery,
				invoice.ID,
				line.LineNumber,
				line.Description,
				line.DescriptionHash,
				line.Quantity,
				line.UnitPriceCents,
				line.TotalCents,
				line.ProductCode,
			).Scan(&line.ID)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create invoice line item")
			}

			line.InvoiceID = invoice.ID
		}

		return nil
	})
}

// GetByID retrieves an invoice by ID with all line items.
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*Invoice, error) {
	query := selectInvoice + ` WHERE id = $1`

	invoice, err := r.scanInvoice(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("invoice", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get invoice")
	}

	lines, err := r.GetLineItems(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.LineItems = lines

	return invoice, nil
}

// GetByExternalDocID retrieves an invoice by its ingestion document reference.
// Used to keep ingestion idempotent on redelivered events.
func (r *InvoiceRepository) GetByExternalDocID(ctx context.Context, externalDocID string) (*Invoice, error) {
	query := selectInvoice + ` WHERE external_doc_id = $1`

	invoice, err := r.scanInvoice(r.db.QueryRow(ctx, query, externalDocID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("invoice", externalDocID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get invoice by document reference")
	}
	return invoice, nil
}

// GetLineItems retrieves all line items for an invoice ordered by line number.
func (r *InvoiceRepository) GetLineItems(ctx context.Context, invoiceID string) ([]InvoiceLineItem, error) {
	query := `
		SELECT id, invoice_id, line_number, description, description_hash,
		       quantity, unit_price_cents, total_cents, product_code
		FROM invoice_line_items
		WHERE invoice_id = $1
		ORDER BY line_number
	`

	rows, err := r.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get invoice line items")
	}
	defer rows.Close()

	lines := make([]InvoiceLineItem, 0)
	for rows.Next() {
		var line InvoiceLineItem
		err := rows.Scan(
			&line.ID,
			&line.InvoiceID,
			&line.LineNumber,
			&line.Description,
			&line.DescriptionHash,
			&line.Quantity,
			&line.UnitPriceCents,
			&line.TotalCents,
			&line.ProductCode,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan invoice line item")
		}

		lines = append(lines, line)
	}

	return lines, nil
}

// List retrieves invoices with filtering and pagination.
func (r *InvoiceRepository) List(ctx context.Context, groupID string, providerID, state *string, fromDate, toDate *time.Time, limit, offset int) ([]*Invoice, int64, error) {
	query := selectInvoice + ` WHERE group_id = $1`
	countQuery := `SELECT COUNT(*) FROM invoices WHERE group_id = $1`

	args := []interface{}{groupID}
	argCount := 2

	if providerID != nil {
		query += fmt.Sprintf(" AND provider_id = $%d", argCount)
		countQuery += fmt.Sprintf(" AND provider_id = $%d", argCount)
		args = append(args, *providerID)
		argCount++
	}

	if state != nil {
		query += fmt.Sprintf(" AND state = $%d::invoice_state", argCount)
		countQuery += fmt.Sprintf(" AND state = $%d::invoice_state", argCount)
		args = append(args, *state)
		argCount++
	}

	if fromDate != nil {
		query += fmt.Sprintf(" AND issue_date >= $%d", argCount)
		countQuery += fmt.Sprintf(" AND issue_date >= $%d", argCount)
		args = append(args, *fromDate)
		argCount++
	}

	if toDate != nil {
		query += fmt.Sprintf(" AND issue_date <= $%d", argCount)
		countQuery += fmt.Sprintf(" AND issue_date <= $%d", argCount)
		args = append(args, *toDate)
		argCount++
	}

	query += " ORDER BY issue_date DESC, invoice_number DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)

	queryArgs := append(args, limit, offset)

	var total int64
	err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count invoices")
	}

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list invoices")
	}
	defer rows.Close()

	invoices := make([]*Invoice, 0)
	for rows.Next() {
		invoice, err := r.scanInvoice(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan invoice")
		}
		invoices = append(invoices, invoice)
	}

	return invoices, total, nil
}

// ListPendingAnalysis returns invoices that never went through analysis,
// oldest first, capped at limit.
func (r *InvoiceRepository) ListPendingAnalysis(ctx context.Context, limit int) ([]*Invoice, error) {
	query := selectInvoice + `
		WHERE analyzed_at IS NULL AND archived = FALSE
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending invoices")
	}
	defer rows.Close()

	invoices := make([]*Invoice, 0)
	for rows.Next() {
		invoice, err := r.scanInvoice(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan pending invoice")
		}
		invoices = append(invoices, invoice)
	}

	return invoices, nil
}

// ListHistory returns the approved invoices sharing a concept fingerprint,
// newest first. The target invoice is excluded so an invoice never matches
// against itself.
func (r *InvoiceRepository) ListHistory(ctx context.Context, providerID, conceptFingerprint string, since, until time.Time, excludeID string) ([]*Invoice, error) {
	query := selectInvoice + `
		WHERE provider_id = $1
		  AND concept_fingerprint = $2
		  AND issue_date >= $3 AND issue_date <= $4
		  AND id <> $5
		  AND state = 'approved'::invoice_state
		  AND archived = FALSE
		ORDER BY issue_date DESC
	`

	rows, err := r.db.Query(ctx, query, providerID, conceptFingerprint, since, until, excludeID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list invoice history")
	}
	defer rows.Close()

	invoices := make([]*Invoice, 0)
	for rows.Next() {
		invoice, err := r.scanInvoice(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan historical invoice")
		}
		invoices = append(invoices, invoice)
	}

	return invoices, nil
}

// ListHistoricalLineItems returns the line items of the most recent historical
// invoices for a fingerprint, newest invoice first.
func (r *InvoiceRepository) ListHistoricalLineItems(ctx context.Context, providerID, conceptFingerprint string, until time.Time, maxInvoices int) ([]InvoiceLineItem, error) {
	query := `
		SELECT li.id, li.invoice_id, li.line_number, li.description, li.description_hash,
		       li.quantity, li.unit_price_cents, li.total_cents, li.product_code
		FROM invoice_line_items li
		JOIN (
			SELECT id, issue_date
			FROM invoices
			WHERE provider_id = $1
			  AND concept_fingerprint = $2
			  AND issue_date <= $3
			  AND state = 'approved'::invoice_state
			  AND archived = FALSE
			ORDER BY issue_date DESC
			LIMIT $4
		) inv ON inv.id = li.invoice_id
		ORDER BY inv.issue_date DESC, li.line_number
	`

	rows, err := r.db.Query(ctx, query, providerID, conceptFingerprint, until, maxInvoices)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list historical line items")
	}
	defer rows.Close()

	lines := make([]InvoiceLineItem, 0)
	for rows.Next() {
		var line InvoiceLineItem
		err := rows.Scan(
			&line.ID,
			&line.InvoiceID,
			&line.LineNumber,
			&line.Description,
			&line.DescriptionHash,
			&line.Quantity,
			&line.UnitPriceCents,
			&line.TotalCents,
			&line.ProductCode,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan historical line item")
		}
		lines = append(lines, line)
	}

	return lines, nil
}

// ListProviderTotals returns issue date and total of every approved invoice
// for a provider since the given date, for classification.
func (r *InvoiceRepository) ListProviderTotals(ctx context.Context, providerID string, since time.Time) ([]DatedTotal, error) {
	query := `
		SELECT issue_date, total_cents
		FROM invoices
		WHERE provider_id = $1
		  AND issue_date >= $2
		  AND state = 'approved'::invoice_state
		  AND archived = FALSE
		ORDER BY issue_date
	`

	rows, err := r.db.Query(ctx, query, providerID, since)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list provider totals")
	}
	defer rows.Close()

	totals := make([]DatedTotal, 0)
	for rows.Next() {
		var t DatedTotal
		if err := rows.Scan(&t.IssueDate, &t.TotalCents); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan provider total")
		}
		totals = append(totals, t)
	}

	return totals, nil
}

// ListFingerprints returns the distinct concept fingerprints a provider has
// approved invoices under, for pattern cache rebuilds.
func (r *InvoiceRepository) ListFingerprints(ctx context.Context, providerID string) ([]string, error) {
	query := `
		SELECT DISTINCT concept_fingerprint
		FROM invoices
		WHERE provider_id = $1
		  AND state = 'approved'::invoice_state
		  AND archived = FALSE
	`

	rows, err := r.db.Query(ctx, query, providerID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list provider fingerprints")
	}
	defer rows.Close()

	fingerprints := make([]string, 0)
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan fingerprint")
		}
		fingerprints = append(fingerprints, fp)
	}

	return fingerprints, nil
}

// LockForUpdate locks the invoice row inside the given transaction. It is the
// invoice-level critical section for aggregate reconciliation.
func (r *InvoiceRepository) LockForUpdate(ctx context.Context, tx pgx.Tx, id string) error {
	var lockedID string
	err := tx.QueryRow(ctx, `SELECT id FROM invoices WHERE id = $1 FOR UPDATE`, id).Scan(&lockedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("invoice", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock invoice")
	}
	return nil
}

// ApplyAggregate writes the reconciled aggregate state. Must run inside the
// transaction that holds the invoice lock.
func (r *InvoiceRepository) ApplyAggregate(ctx context.Context, tx pgx.Tx, id string, agg workflow.Aggregate) error {
	query := `
		UPDATE invoices
		SET state = $2::invoice_state,
		    state_kind = $3,
		    conflict = $4,
		    acted_by = NULLIF($5, ''),
		    acted_at = $6,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var actedAt *time.Time
	if !agg.ActedAt.IsZero() {
		actedAt = &agg.ActedAt
	}

	var returnedID string
	err := tx.QueryRow(ctx, query, id, string(agg.State), string(agg.Kind), agg.Conflict, agg.ActedBy, actedAt).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("invoice", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to apply aggregate state")
	}

	return nil
}

// MarkAnalyzed stamps the invoice as having been through analysis.
func (r *InvoiceRepository) MarkAnalyzed(ctx context.Context, id string) error {
	query := `
		UPDATE invoices
		SET analyzed_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("invoice", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to mark invoice analyzed")
	}

	return nil
}

// Archive hides an invoice from pending queries and history.
func (r *InvoiceRepository) Archive(ctx context.Context, id string) error {
	query := `
		UPDATE invoices
		SET archived = TRUE, updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("invoice", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to archive invoice")
	}

	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

const selectInvoice = `
	SELECT id, external_doc_id, invoice_number, provider_id, group_id,
	       issue_date, subtotal_cents, tax_cents, total_cents,
	       concept, concept_normalized, concept_fingerprint,
	       fingerprint_strict, fingerprint_amount, fingerprint_po, po_number,
	       state, state_kind, conflict, acted_by, acted_at,
	       analyzed_at, archived, created_at, updated_at
	FROM invoices`

type invoiceScanner interface {
	Scan(dest ...any) error
}

func (r *InvoiceRepository) scanInvoice(sc invoiceScanner) (*Invoice, error) {
	invoice := &Invoice{}
	var stateStr, kindStr string

	err := sc.Scan(
		&invoice.ID,
		&invoice.ExternalDocID,
		&invoice.InvoiceNumber,
		&invoice.ProviderID,
		&invoice.GroupID,
		&invoice.IssueDate,
		&invoice.SubtotalCents,
		&invoice.TaxCents,
		&invoice.TotalCents,
		&invoice.Concept,
		&invoice.ConceptNormalized,
		&invoice.ConceptFingerprint,
		&invoice.FingerprintStrict,
		&invoice.FingerprintAmount,
		&invoice.FingerprintPO,
		&invoice.PONumber,
		&stateStr,
		&kindStr,
		&invoice.Conflict,
		&invoice.ActedBy,
		&invoice.ActedAt,
		&invoice.AnalyzedAt,
		&invoice.Archived,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	invoice.State = workflow.ParseInvoiceState(stateStr)
	invoice.StateKind = workflow.ParseDecisionKind(kindStr)
	return invoice, nil
}
