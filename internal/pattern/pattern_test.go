package pattern

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func monthlySeries(n int, cents int64) []HistoricalInvoice {
	out := make([]HistoricalInvoice, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, HistoricalInvoice{
			IssueDate:  date(2024, time.January, 15).AddDate(0, i, 0),
			TotalCents: cents,
		})
	}
	return out
}

func TestDetectInsufficientHistory(t *testing.T) {
	d := NewDetector(5)
	target := HistoricalInvoice{IssueDate: date(2024, time.July, 15), TotalCents: 100000}

	for _, history := range [][]HistoricalInvoice{nil, monthlySeries(1, 100000)} {
		res := d.Detect(target, history)
		if res.Temporal.Cadence != CadenceInsufficient {
			t.Errorf("with %d records want insufficient cadence, got %s", len(history), res.Temporal.Cadence)
		}
		if res.Combined != 0 || res.Recurrent {
			t.Errorf("with %d records want zero confidence, got %.2f recurrent=%v", len(history), res.Combined, res.Recurrent)
		}
	}
}

func TestDetectStableMonthly(t *testing.T) {
	d := NewDetector(5)
	history := monthlySeries(6, 99900)
	target := HistoricalInvoice{IssueDate: date(2024, time.July, 15), TotalCents: 99900}

	res := d.Detect(target, history)

	if res.Temporal.Cadence != CadenceMonthly {
		t.Errorf("cadence = %s, want monthly", res.Temporal.Cadence)
	}
	if !res.Temporal.Consistent {
		t.Errorf("stdev %.2f days should count as consistent", res.Temporal.StdevDays)
	}
	if !res.Monetary.Stable {
		t.Error("identical amounts should be stable")
	}
	if !res.Recurrent {
		t.Errorf("combined %.2f should mark the pattern recurrent", res.Combined)
	}
	if res.Combined < 0.95 {
		t.Errorf("six identical monthly invoices should score near 1.0, got %.2f", res.Combined)
	}
}

func TestDetectErraticHistory(t *testing.T) {
	d := NewDetector(5)
	history := []HistoricalInvoice{
		{IssueDate: date(2024, time.January, 3), TotalCents: 10000},
		{IssueDate: date(2024, time.January, 20), TotalCents: 90000},
		{IssueDate: date(2024, time.April, 2), TotalCents: 5000},
		{IssueDate: date(2024, time.April, 11), TotalCents: 160000},
	}
	target := HistoricalInvoice{IssueDate: date(2024, time.June, 28), TotalCents: 43000}

	res := d.Detect(target, history)

	if res.Recurrent {
		t.Errorf("erratic history must not be recurrent (combined %.2f)", res.Combined)
	}
	if res.Temporal.Cadence == CadenceMonthly {
		t.Error("erratic gaps must not look monthly")
	}
}

func TestDetectConfidenceBounds(t *testing.T) {
	d := NewDetector(5)
	histories := [][]HistoricalInvoice{
		monthlySeries(2, 50000),
		monthlySeries(12, 50000),
		{
			{IssueDate: date(2024, time.January, 1), TotalCents: 1},
			{IssueDate: date(2024, time.December, 31), TotalCents: 99999999},
		},
	}
	target := HistoricalInvoice{IssueDate: date(2025, time.January, 15), TotalCents: 123456}

	for i, history := range histories {
		res := d.Detect(target, history)
		for name, v := range map[string]float64{
			"temporal": res.Temporal.Confidence,
			"monetary": res.Monetary.Confidence,
			"combined": res.Combined,
		} {
			if v < 0 || v > 1 {
				t.Errorf("history %d: %s confidence %.3f out of [0,1]", i, name, v)
			}
		}
	}
}

func TestCompareMonthOverMonth(t *testing.T) {
	d := NewDetector(5)
	history := []HistoricalInvoice{
		{IssueDate: date(2024, time.February, 14), TotalCents: 100000},
		{IssueDate: date(2024, time.January, 15), TotalCents: 98000},
	}
	target := HistoricalInvoice{IssueDate: date(2024, time.March, 15), TotalCents: 105000}

	mom := d.CompareMonthOverMonth(target, history)

	if !mom.Found {
		t.Fatal("february invoice should be found for a march target")
	}
	if mom.PriorTotalCents != 100000 {
		t.Errorf("prior total = %d, want 100000", mom.PriorTotalCents)
	}
	if mom.DeltaPct < 4.99 || mom.DeltaPct > 5.01 {
		t.Errorf("delta = %.2f%%, want 5%%", mom.DeltaPct)
	}
	if !mom.WithinTolerance {
		t.Error("5% delta should sit inside the 5% tolerance")
	}
	if mom.Confidence < 0.949 || mom.Confidence > 0.951 {
		t.Errorf("confidence = %.3f, want 0.95", mom.Confidence)
	}
}

func TestCompareMonthOverMonthYearBoundary(t *testing.T) {
	d := NewDetector(5)
	history := []HistoricalInvoice{
		{IssueDate: date(2023, time.December, 28), TotalCents: 70000},
	}
	target := HistoricalInvoice{IssueDate: date(2024, time.January, 29), TotalCents: 70000}

	mom := d.CompareMonthOverMonth(target, history)
	if !mom.Found {
		t.Fatal("december invoice should be found for a january target")
	}
	if mom.DeltaPct != 0 {
		t.Errorf("delta = %.2f%%, want 0", mom.DeltaPct)
	}
}

func TestCompareMonthOverMonthPicksLatest(t *testing.T) {
	d := NewDetector(5)
	history := []HistoricalInvoice{
		{IssueDate: date(2024, time.February, 2), TotalCents: 50000},
		{IssueDate: date(2024, time.February, 25), TotalCents: 60000},
	}
	target := HistoricalInvoice{IssueDate: date(2024, time.March, 10), TotalCents: 60000}

	mom := d.CompareMonthOverMonth(target, history)
	if mom.PriorTotalCents != 60000 {
		t.Errorf("prior total = %d, want the later february invoice (60000)", mom.PriorTotalCents)
	}
}

func TestCompareMonthOverMonthMissing(t *testing.T) {
	d := NewDetector(5)
	history := []HistoricalInvoice{
		{IssueDate: date(2024, time.January, 10), TotalCents: 50000},
	}
	target := HistoricalInvoice{IssueDate: date(2024, time.June, 10), TotalCents: 50000}

	if mom := d.CompareMonthOverMonth(target, history); mom.Found {
		t.Error("no invoice in may means no month-over-month comparison")
	}
}

func TestSummarize(t *testing.T) {
	history := []HistoricalInvoice{
		{IssueDate: date(2024, time.January, 15), TotalCents: 100000},
		{IssueDate: date(2024, time.February, 15), TotalCents: 100000},
		{IssueDate: date(2024, time.March, 15), TotalCents: 110000},
		{IssueDate: date(2024, time.March, 28), TotalCents: 90000},
	}

	agg := Summarize(history)

	if agg.SampleCount != 4 {
		t.Errorf("samples = %d, want 4", agg.SampleCount)
	}
	if agg.DistinctMonths != 3 {
		t.Errorf("distinct months = %d, want 3", agg.DistinctMonths)
	}
	if agg.MeanCents != 100000 {
		t.Errorf("mean = %d, want 100000", agg.MeanCents)
	}
	if agg.MinCents != 90000 || agg.MaxCents != 110000 {
		t.Errorf("range = [%d,%d], want [90000,110000]", agg.MinCents, agg.MaxCents)
	}
	if agg.Tag != "stable" {
		t.Errorf("tag = %s, want stable (cv %.1f)", agg.Tag, agg.CV)
	}
	if agg.ExpectedMinCents > 90000 || agg.ExpectedMaxCents < 110000 {
		t.Errorf("expected range [%d,%d] must cover the observed range", agg.ExpectedMinCents, agg.ExpectedMaxCents)
	}

	if again := Summarize(history); again != agg {
		t.Error("summarizing the same history twice must give identical aggregates")
	}
}

func TestSummarizeEmpty(t *testing.T) {
	agg := Summarize(nil)
	if agg.Tag != "sparse" || agg.SampleCount != 0 {
		t.Errorf("empty history should summarize as sparse, got %+v", agg)
	}
}
