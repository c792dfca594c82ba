// Package classifier assigns providers a service type, a trust tier and the
// auto-approval confidence threshold that follows from both. Classification is
// a pure function of the trailing invoice statistics and the relationship age,
// so re-running it on unchanged inputs always yields the same result.
package classifier

import (
	"time"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/pattern"
)

// ServiceType captures how a provider's billing behaves.
type ServiceType string

const (
	ServiceFixedMonthly        ServiceType = "fixed_monthly"        // CV under 15%
	ServiceVariablePredictable ServiceType = "variable_predictable" // CV 15-80%
	ServiceConsumptionBased    ServiceType = "consumption_based"    // CV 80% and up
	ServiceEventual            ServiceType = "eventual"             // too little history to type
)

// TrustTier captures how long and how cleanly a provider has billed.
type TrustTier string

const (
	TierNew      TrustTier = "new"      // under 90 days
	TierLow      TrustTier = "low"      // under 180 days
	TierMedium   TrustTier = "medium"   // under a year
	TierHigh     TrustTier = "high"     // over a year with clean behavior
	TierCritical TrustTier = "critical" // over two years, fixed and tight
)

// Classification is the full result for one provider.
type Classification struct {
	ServiceType ServiceType
	TrustTier   TrustTier
	CV          float64 // coefficient of variation over the trailing window, percent
	Threshold   float64 // minimum decision confidence for auto-approval
}

// Base thresholds by service type and adjustments by trust tier. Kept as data
// so the whole policy reads in one place.
var baseThreshold = map[ServiceType]float64{
	ServiceFixedMonthly:        0.95,
	ServiceVariablePredictable: 0.88,
	ServiceConsumptionBased:    0.85,
	ServiceEventual:            1.00,
}

var tierAdjustment = map[TrustTier]float64{
	TierCritical: -0.07,
	TierHigh:     -0.03,
	TierMedium:   0,
	TierLow:      +0.05,
	TierNew:      +0.15,
}

// Classify types a provider from its trailing-window aggregate and the start
// of the commercial relationship.
func Classify(agg pattern.Aggregate, relationshipStart, now time.Time) Classification {
	serviceType := serviceTypeFor(agg)
	tier := tierFor(now.Sub(relationshipStart), serviceType, agg.CV)

	return Classification{
		ServiceType: serviceType,
		TrustTier:   tier,
		CV:          agg.CV,
		Threshold:   Threshold(serviceType, tier),
	}
}

// Threshold resolves the auto-approval threshold for a type/tier pair. New
// providers and eventual services can never auto-approve: their threshold is
// pinned to 1.0 regardless of the tables.
func Threshold(serviceType ServiceType, tier TrustTier) float64 {
	if tier == TierNew || serviceType == ServiceEventual {
		return 1.0
	}

	t := baseThreshold[serviceType] + tierAdjustment[tier]
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

func serviceTypeFor(agg pattern.Aggregate) ServiceType {
	if agg.SampleCount < 3 || agg.DistinctMonths < 2 {
		return ServiceEventual
	}
	switch {
	case agg.CV < 15:
		return ServiceFixedMonthly
	case agg.CV < 80:
		return ServiceVariablePredictable
	default:
		return ServiceConsumptionBased
	}
}

// tierFor walks the age ladder. The upper tiers are gated on billing quality:
// a long relationship with noisy amounts stays a rung below.
func tierFor(age time.Duration, serviceType ServiceType, cv float64) TrustTier {
	days := age.Hours() / 24
	switch {
	case days < 90:
		return TierNew
	case days < 180:
		return TierLow
	case days < 365:
		return TierMedium
	case days < 730:
		if serviceType == ServiceFixedMonthly && cv < 10 {
			return TierHigh
		}
		return TierMedium
	default:
		if serviceType == ServiceFixedMonthly && cv < 5 {
			return TierCritical
		}
		return TierHigh
	}
}

// ── storage parsing ───────────────────────────────────────────────────────────

// ParseServiceType maps a stored value back to the closed type. Unknown values
// degrade to eventual, the most conservative member.
func ParseServiceType(s string) ServiceType {
	switch ServiceType(s) {
	case ServiceFixedMonthly, ServiceVariablePredictable, ServiceConsumptionBased, ServiceEventual:
		return ServiceType(s)
	default:
		return ServiceEventual
	}
}

// ParseTrustTier maps a stored value back to the closed type. Unknown values
// degrade to new, the most conservative member.
func ParseTrustTier(s string) TrustTier {
	switch TrustTier(s) {
	case TierNew, TierLow, TierMedium, TierHigh, TierCritical:
		return TrustTier(s)
	default:
		return TierNew
	}
}
