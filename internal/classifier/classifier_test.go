package classifier

import (
	"testing"
	"time"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/pattern"
)

var now = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

func agg(samples, months int, cv float64) pattern.Aggregate {
	return pattern.Aggregate{SampleCount: samples, DistinctMonths: months, CV: cv}
}

func TestServiceTypeBands(t *testing.T) {
	tests := []struct {
		name string
		agg  pattern.Aggregate
		want ServiceType
	}{
		{"tight cv is fixed monthly", agg(12, 12, 4.2), ServiceFixedMonthly},
		{"edge below fifteen", agg(12, 12, 14.9), ServiceFixedMonthly},
		{"mid cv is variable", agg(12, 12, 15.0), ServiceVariablePredictable},
		{"wide cv is consumption", agg(12, 12, 80.0), ServiceConsumptionBased},
		{"two invoices is eventual", agg(2, 2, 1.0), ServiceEventual},
		{"single month is eventual", agg(5, 1, 1.0), ServiceEventual},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.agg, now.AddDate(-2, 0, 0), now)
			if got.ServiceType != tt.want {
				t.Errorf("service type = %s, want %s", got.ServiceType, tt.want)
			}
		})
	}
}

func TestTrustTierLadder(t *testing.T) {
	stable := agg(24, 24, 3.0) // fixed_monthly, qualifies for the gated tiers
	noisy := agg(24, 24, 40.0) // variable_predictable, never qualifies

	tests := []struct {
		name    string
		ageDays int
		agg     pattern.Aggregate
		want    TrustTier
	}{
		{"fresh provider", 30, stable, TierNew},
		{"under six months", 120, stable, TierLow},
		{"under a year", 300, stable, TierMedium},
		{"second year clean", 500, stable, TierHigh},
		{"second year noisy stays medium", 500, noisy, TierMedium},
		{"two years tight", 900, stable, TierCritical},
		{"two years noisy stays high", 900, noisy, TierHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := now.AddDate(0, 0, -tt.ageDays)
			got := Classify(tt.agg, start, now)
			if got.TrustTier != tt.want {
				t.Errorf("tier = %s, want %s", got.TrustTier, tt.want)
			}
		})
	}
}

func TestCriticalNeedsTightCV(t *testing.T) {
	// Fixed monthly but CV between 5 and 10: old enough for critical, not tight enough.
	got := Classify(agg(30, 30, 7.0), now.AddDate(-3, 0, 0), now)
	if got.ServiceType != ServiceFixedMonthly {
		t.Fatalf("service type = %s, want fixed_monthly", got.ServiceType)
	}
	if got.TrustTier != TierHigh {
		t.Errorf("tier = %s, want high (cv 7 blocks critical)", got.TrustTier)
	}
}

func TestThresholdTable(t *testing.T) {
	tests := []struct {
		serviceType ServiceType
		tier        TrustTier
		want        float64
	}{
		{ServiceFixedMonthly, TierCritical, 0.88},
		{ServiceFixedMonthly, TierHigh, 0.92},
		{ServiceFixedMonthly, TierMedium, 0.95},
		{ServiceVariablePredictable, TierMedium, 0.88},
		{ServiceVariablePredictable, TierLow, 0.93},
		{ServiceConsumptionBased, TierHigh, 0.82},
	}

	for _, tt := range tests {
		got := Threshold(tt.serviceType, tt.tier)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Threshold(%s, %s) = %.4f, want %.4f", tt.serviceType, tt.tier, got, tt.want)
		}
	}
}

func TestThresholdHardOverrides(t *testing.T) {
	for _, st := range []ServiceType{ServiceFixedMonthly, ServiceVariablePredictable, ServiceConsumptionBased, ServiceEventual} {
		if got := Threshold(st, TierNew); got != 1.0 {
			t.Errorf("new tier must pin threshold to 1.0, got %.4f for %s", got, st)
		}
	}
	for _, tier := range []TrustTier{TierNew, TierLow, TierMedium, TierHigh, TierCritical} {
		if got := Threshold(ServiceEventual, tier); got != 1.0 {
			t.Errorf("eventual service must pin threshold to 1.0, got %.4f for %s", got, tier)
		}
	}
}

func TestClassifyIdempotent(t *testing.T) {
	a := agg(18, 18, 9.5)
	start := now.AddDate(-1, -6, 0)

	first := Classify(a, start, now)
	second := Classify(a, start, now)
	if first != second {
		t.Errorf("same inputs must classify identically: %+v vs %+v", first, second)
	}
}

func TestParseFallbacks(t *testing.T) {
	if got := ParseServiceType("definitely_not_a_type"); got != ServiceEventual {
		t.Errorf("unknown service type should degrade to eventual, got %s", got)
	}
	if got := ParseTrustTier("legacy_tier"); got != TierNew {
		t.Errorf("unknown tier should degrade to new, got %s", got)
	}
	if got := ParseServiceType(string(ServiceFixedMonthly)); got != ServiceFixedMonthly {
		t.Errorf("known value must round-trip, got %s", got)
	}
}
