package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/classifier"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/database"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/errors"
)

// ProviderRepository handles provider data and classification state.
type ProviderRepository struct {
	db *database.DB
}

// NewProviderRepository creates a new ProviderRepository.
func NewProviderRepository(db *database.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

// Create inserts a provider. New providers start unclassified: eventual
// service type, new trust tier.
func (r *ProviderRepository) Create(ctx context.Context, provider *Provider) error {
	query := `
		INSERT INTO providers (tax_id, name, relationship_start)
		VALUES ($1, $2, $3)
		RETURNING id, service_type, trust_tier, cv, created_at, updated_at
	`

	var serviceStr, tierStr string
	err := r.db.QueryRow(ctx, query,
		provider.TaxID,
		provider.Name,
		provider.RelationshipStart,
	).Scan(&provider.ID, &serviceStr, &tierStr, &provider.CV, &provider.CreatedAt, &provider.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create provider")
	}

	provider.ServiceType = classifier.ParseServiceType(serviceStr)
	provider.TrustTier = classifier.ParseTrustTier(tierStr)
	return nil
}

// GetByID retrieves a provider by primary key.
func (r *ProviderRepository) GetByID(ctx context.Context, id string) (*Provider, error) {
	query := selectProvider + ` WHERE id = $1`

	provider, err := r.scanProvider(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("provider", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get provider")
	}
	return provider, nil
}

// GetByTaxID retrieves a provider by tax identifier.
func (r *ProviderRepository) GetByTaxID(ctx context.Context, taxID string) (*Provider, error) {
	query := selectProvider + ` WHERE tax_id = $1`

	provider, err := r.scanProvider(r.db.QueryRow(ctx, query, taxID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("provider", taxID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get provider by tax id")
	}
	return provider, nil
}

// UpdateClassification writes a classification result.
func (r *ProviderRepository) UpdateClassification(ctx context.Context, id string, c classifier.Classification, classifiedAt time.Time) error {
	query := `
		UPDATE providers
		SET service_type = $2::service_type,
		    trust_tier = $3::trust_tier,
		    cv = $4,
		    classified_at = $5,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, string(c.ServiceType), string(c.TrustTier), c.CV, classifiedAt).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("provider", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update provider classification")
	}

	return nil
}

// ListForReclassification returns providers ordered by classification
// staleness, never-classified first.
func (r *ProviderRepository) ListForReclassification(ctx context.Context, limit int) ([]*Provider, error) {
	query := selectProvider + `
		ORDER BY classified_at ASC NULLS FIRST
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list providers for reclassification")
	}
	defer rows.Close()

	providers := make([]*Provider, 0)
	for rows.Next() {
		provider, err := r.scanProvider(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan provider")
		}
		providers = append(providers, provider)
	}

	return providers, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

const selectProvider = `
	SELECT id, tax_id, name, service_type, trust_tier, cv,
	       relationship_start, classified_at, created_at, updated_at
	FROM providers`

type providerScanner interface {
	Scan(dest ...any) error
}

func (r *ProviderRepository) scanProvider(sc providerScanner) (*Provider, error) {
	provider := &Provider{}
	var serviceStr, tierStr string

	err := sc.Scan(
		&provider.ID,
		&provider.TaxID,
		&provider.Name,
		&serviceStr,
		&tierStr,
		&provider.CV,
		&provider.RelationshipStart,
		&provider.ClassifiedAt,
		&provider.CreatedAt,
		&provider.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	provider.ServiceType = classifier.ParseServiceType(serviceStr)
	provider.TrustTier = classifier.ParseTrustTier(tierStr)
	return provider, nil
}
