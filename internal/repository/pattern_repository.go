package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/database"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/errors"
)

// PatternRepository caches trailing aggregates per provider and concept
// fingerprint. The cache is advisory: analysis always recomputes from invoice
// history, the cached rows feed reporting and the reclassification job.
type PatternRepository struct {
	db *database.DB
}

// NewPatternRepository creates a new PatternRepository.
func NewPatternRepository(db *database.DB) *PatternRepository {
	return &PatternRepository{db: db}
}

// Upsert writes the aggregate for a (provider, fingerprint) pair, replacing
// any previous snapshot.
func (r *PatternRepository) Upsert(ctx context.Context, p *HistoricalPattern) error {
	query := `
		INSERT INTO historical_patterns
		    (provider_id, concept_fingerprint, sample_count, distinct_months,
		     mean_cents, min_cents, max_cents, stdev_cents, cv, tag,
		     expected_min_cents, expected_max_cents, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (provider_id, concept_fingerprint) DO UPDATE
		SET sample_count       = EXCLUDED.sample_count,
		    distinct_months    = EXCLUDED.distinct_months,
		    mean_cents         = EXCLUDED.mean_cents,
		    min_cents          = EXCLUDED.min_cents,
		    max_cents          = EXCLUDED.max_cents,
		    stdev_cents        = EXCLUDED.stdev_cents,
		    cv                 = EXCLUDED.cv,
		    tag                = EXCLUDED.tag,
		    expected_min_cents = EXCLUDED.expected_min_cents,
		    expected_max_cents = EXCLUDED.expected_max_cents,
		    computed_at        = NOW()
		RETURNING id, computed_at
	`

	err := r.db.QueryRow(ctx, query,
		p.ProviderID,
		p.ConceptFingerprint,
		p.SampleCount,
		p.DistinctMonths,
		p.MeanCents,
		p.MinCents,
		p.MaxCents,
		p.StdevCents,
		p.CV,
		p.Tag,
		p.ExpectedMinCents,
		p.ExpectedMaxCents,
	).Scan(&p.ID, &p.ComputedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to upsert historical pattern")
	}
	return nil
}

// GetByFingerprint retrieves the cached aggregate for a concept.
func (r *PatternRepository) GetByFingerprint(ctx context.Context, providerID, conceptFingerprint string) (*HistoricalPattern, error) {
	query := selectPattern + `
		WHERE provider_id = $1 AND concept_fingerprint = $2
	`

	p, err := r.scanPattern(r.db.QueryRow(ctx, query, providerID, conceptFingerprint))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("historical_pattern", conceptFingerprint)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get historical pattern")
	}
	return p, nil
}

// ListByProvider returns all cached aggregates for a provider.
func (r *PatternRepository) ListByProvider(ctx context.Context, providerID string) ([]*HistoricalPattern, error) {
	query := selectPattern + `
		WHERE provider_id = $1
		ORDER BY concept_fingerprint ASC
	`

	rows, err := r.db.Query(ctx, query, providerID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list historical patterns")
	}
	defer rows.Close()

	patterns := make([]*HistoricalPattern, 0)
	for rows.Next() {
		p, err := r.scanPattern(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan historical pattern")
		}
		patterns = append(patterns, p)
	}

	return patterns, nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

const selectPattern = `
	SELECT id, provider_id, concept_fingerprint, sample_count, distinct_months,
	       mean_cents, min_cents, max_cents, stdev_cents, cv, tag,
	       expected_min_cents, expected_max_cents, computed_at
	FROM historical_patterns`

type patternScanner interface {
	Scan(dest ...any) error
}

func (r *PatternRepository) scanPattern(sc patternScanner) (*HistoricalPattern, error) {
	p := &HistoricalPattern{}
	err := sc.Scan(
		&p.ID,
		&p.ProviderID,
		&p.ConceptFingerprint,
		&p.SampleCount,
		&p.DistinctMonths,
		&p.MeanCents,
		&p.MinCents,
		&p.MaxCents,
		&p.StdevCents,
		&p.CV,
		&p.Tag,
		&p.ExpectedMinCents,
		&p.ExpectedMaxCents,
		&p.ComputedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
