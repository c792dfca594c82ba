package service

import (
	"context"
	"time"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/classifier"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/config"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/logger"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/pattern"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/repository"
)

// ClassificationService periodically re-derives each provider's service type
// and trust tier from its trailing billing behavior, and refreshes the cached
// per-concept aggregates.
type ClassificationService struct {
	providerRepo *repository.ProviderRepository
	invoiceRepo  *repository.InvoiceRepository
	patternRepo  *repository.PatternRepository
	engine       config.EngineConfig
	log          *logger.Logger
}

// NewClassificationService creates a new ClassificationService.
func NewClassificationService(
	providerRepo *repository.ProviderRepository,
	invoiceRepo *repository.InvoiceRepository,
	patternRepo *repository.PatternRepository,
	engine config.EngineConfig,
	log *logger.Logger,
) *ClassificationService {
	return &ClassificationService{
		providerRepo: providerRepo,
		invoiceRepo:  invoiceRepo,
		patternRepo:  patternRepo,
		engine:       engine,
		log:          log,
	}
}

// ReclassifyResult summarizes one reclassification run.
type ReclassifyResult struct {
	Processed int
	Changed   int
	Failed    int
}

// ReclassifyProviders recomputes classification for the stalest providers.
// Each provider is handled independently; a failure is logged and counted.
func (s *ClassificationService) ReclassifyProviders(ctx context.Context, limit int) (*ReclassifyResult, error) {
	if limit <= 0 {
		limit = s.engine.BatchLimit
	}

	providers, err := s.providerRepo.ListForReclassification(ctx, limit)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := &ReclassifyResult{}
	for _, provider := range providers {
		changed, err := s.reclassify(ctx, provider, now)
		if err != nil {
			result.Failed++
			s.log.Error().Err(err).
				Str("provider_id", provider.ID).
				Msg("Provider reclassification failed")
			continue
		}
		result.Processed++
		if changed {
			result.Changed++
		}
	}

	if len(providers) > 0 {
		s.log.Info().
			Int("processed", result.Processed).
			Int("changed", result.Changed).
			Int("failed", result.Failed).
			Msg("Provider reclassification run finished")
	}
	return result, nil
}

// reclassify recomputes one provider's classification from its trailing spend
// and refreshes its per-concept pattern cache.
func (s *ClassificationService) reclassify(ctx context.Context, provider *repository.Provider, now time.Time) (bool, error) {
	months := s.engine.HistoryWindowMonths
	if months <= 0 {
		months = 12
	}
	since := now.AddDate(0, -months, 0)

	totals, err := s.invoiceRepo.ListProviderTotals(ctx, provider.ID, since)
	if err != nil {
		return false, err
	}

	c := classifier.Classify(pattern.Summarize(totalsSeries(totals)), provider.RelationshipStart, now)
	changed := c.ServiceType != provider.ServiceType || c.TrustTier != provider.TrustTier

	if err := s.providerRepo.UpdateClassification(ctx, provider.ID, c, now); err != nil {
		return false, err
	}

	if err := s.refreshPatternCache(ctx, provider.ID, since, now); err != nil {
		// Cache refresh is advisory; analysis recomputes from raw history.
		s.log.Warn().Err(err).
			Str("provider_id", provider.ID).
			Msg("Pattern cache refresh failed")
	}

	if changed {
		s.log.Info().
			Str("provider_id", provider.ID).
			Str("service_type", string(c.ServiceType)).
			Str("trust_tier", string(c.TrustTier)).
			Float64("cv", c.CV).
			Float64("threshold", c.Threshold).
			Msg("Provider reclassified")
	}
	return changed, nil
}

// refreshPatternCache recomputes the cached aggregate for every concept the
// provider bills under.
func (s *ClassificationService) refreshPatternCache(ctx context.Context, providerID string, since, now time.Time) error {
	fingerprints, err := s.invoiceRepo.ListFingerprints(ctx, providerID)
	if err != nil {
		return err
	}

	for _, fp := range fingerprints {
		history, err := s.invoiceRepo.ListHistory(ctx, providerID, fp, since, now, "")
		if err != nil {
			return err
		}

		agg := pattern.Summarize(historySeries(history))
		err = s.patternRepo.Upsert(ctx, &repository.HistoricalPattern{
			ProviderID:         providerID,
			ConceptFingerprint: fp,
			SampleCount:        agg.SampleCount,
			DistinctMonths:     agg.DistinctMonths,
			MeanCents:          agg.MeanCents,
			MinCents:           agg.MinCents,
			MaxCents:           agg.MaxCents,
			StdevCents:         agg.StdevCents,
			CV:                 agg.CV,
			Tag:                agg.Tag,
			ExpectedMinCents:   agg.ExpectedMinCents,
			ExpectedMaxCents:   agg.ExpectedMaxCents,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
