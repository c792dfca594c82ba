package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/database"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/errors"
)

// AssignmentRepository handles CRUD for provider_assignments, the
// per-responsible approval policies that drive workflow fan-out.
type AssignmentRepository struct {
	db *database.DB
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(db *database.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create inserts a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, a *ProviderAssignment) error {
	query := `
		INSERT INTO provider_assignments
		    (provider_id, responsible_id, group_id,
		     allow_auto_approval, always_require_review,
		     max_auto_amount_cents, allowed_variance_pct, require_purchase_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, active, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		a.ProviderID,
		a.ResponsibleID,
		a.GroupID,
		a.AllowAutoApproval,
		a.AlwaysRequireReview,
		a.MaxAutoAmountCents,
		a.AllowedVariancePct,
		a.RequirePurchaseOrder,
	).Scan(&a.ID, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create provider assignment")
	}
	return nil
}

// ListActiveByProvider returns the active assignments for a provider within a
// group. One approval workflow is opened per returned assignment.
func (r *AssignmentRepository) ListActiveByProvider(ctx context.Context, providerID, groupID string) ([]*ProviderAssignment, error) {
	query := selectAssignment + `
		WHERE provider_id = $1 AND group_id = $2 AND active = TRUE
		ORDER BY responsible_id ASC
	`

	rows, err := r.db.Query(ctx, query, providerID, groupID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list provider assignments")
	}
	defer rows.Close()

	assignments := make([]*ProviderAssignment, 0)
	for rows.Next() {
		a, err := r.scanAssignment(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan provider assignment")
		}
		assignments = append(assignments, a)
	}

	return assignments, nil
}

// GetActive retrieves the active assignment for a specific responsible.
func (r *AssignmentRepository) GetActive(ctx context.Context, providerID, responsibleID, groupID string) (*ProviderAssignment, error) {
	query := selectAssignment + `
		WHERE provider_id = $1 AND responsible_id = $2 AND group_id = $3 AND active = TRUE
	`

	a, err := r.scanAssignment(r.db.QueryRow(ctx, query, providerID, responsibleID, groupID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("provider_assignment", providerID+"/"+responsibleID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get provider assignment")
	}
	return a, nil
}

// Update persists policy changes to an existing assignment.
func (r *AssignmentRepository) Update(ctx context.Context, a *ProviderAssignment) error {
	query := `
		UPDATE provider_assignments
		SET allow_auto_approval    = $2,
		    always_require_review  = $3,
		    max_auto_amount_cents  = $4,
		    allowed_variance_pct   = $5,
		    require_purchase_order = $6,
		    updated_at             = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		a.ID,
		a.AllowAutoApproval,
		a.AlwaysRequireReview,
		a.MaxAutoAmountCents,
		a.AllowedVariancePct,
		a.RequirePurchaseOrder,
	).Scan(&a.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.NotFound("provider_assignment", a.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update provider assignment")
	}
	return nil
}

// Deactivate soft-deletes an assignment. Historical workflows keep referencing
// it, so rows are never removed.
func (r *AssignmentRepository) Deactivate(ctx context.Context, id string) error {
	query := `
		UPDATE provider_assignments
		SET active = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("provider_assignment", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to deactivate provider assignment")
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

const selectAssignment = `
	SELECT id, provider_id, responsible_id, group_id,
	       allow_auto_approval, always_require_review,
	       max_auto_amount_cents, allowed_variance_pct, require_purchase_order,
	       active, created_at, updated_at
	FROM provider_assignments`

type assignmentScanner interface {
	Scan(dest ...any) error
}

func (r *AssignmentRepository) scanAssignment(sc assignmentScanner) (*ProviderAssignment, error) {
	a := &ProviderAssignment{}
	err := sc.Scan(
		&a.ID,
		&a.ProviderID,
		&a.ResponsibleID,
		&a.GroupID,
		&a.AllowAutoApproval,
		&a.AlwaysRequireReview,
		&a.MaxAutoAmountCents,
		&a.AllowedVariancePct,
		&a.RequirePurchaseOrder,
		&a.Active,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}
