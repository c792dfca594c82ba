package compare

import "testing"

func item(desc string, qty float64, unitCents int64) LineItem {
	return LineItem{
		Description:    desc,
		Quantity:       qty,
		UnitPriceCents: unitCents,
		TotalCents:     int64(qty * float64(unitCents)),
	}
}

func TestCompareIdenticalItems(t *testing.T) {
	c := NewComparator(0.85)
	current := []LineItem{
		item("Licencias Microsoft 365", 10, 1200),
		item("Soporte tecnico mensual", 1, 45000),
	}
	historical := []LineItem{
		item("Licencias Microsoft 365", 10, 1200),
		item("Soporte tecnico mensual", 1, 45000),
	}

	report := c.Compare(current, historical)

	if report.Confidence != 100 {
		t.Errorf("confidence = %.1f, want 100", report.Confidence)
	}
	if !report.AutoEligible {
		t.Error("identical items should be auto eligible")
	}
	if len(report.Alerts) != 0 {
		t.Errorf("no alerts expected, got %v", report.Alerts)
	}
}

func TestCompareHighPriceRise(t *testing.T) {
	c := NewComparator(0.85)
	current := []LineItem{item("Tarifa plana fibra", 1, 13500)}
	historical := []LineItem{item("Tarifa plana fibra", 1, 10000)}

	report := c.Compare(current, historical)

	if report.HighAlerts != 1 {
		t.Fatalf("a 35%% price rise must raise one high alert, got %d", report.HighAlerts)
	}
	if report.AutoEligible {
		t.Error("high alert must block auto eligibility")
	}
	if report.Alerts[0].Kind != AlertPriceDrift || !report.Alerts[0].BlocksAuto {
		t.Errorf("alert = %+v, want blocking price_drift", report.Alerts[0])
	}
}

func TestCompareModeratePriceDrift(t *testing.T) {
	c := NewComparator(0.85)
	current := []LineItem{
		item("Linea movil 600111222", 1, 1500),
		item("Linea movil 600111223", 1, 1500),
		item("Linea movil 600111224", 1, 1500),
		item("Bono datos compartido", 1, 6000),
	}
	historical := []LineItem{
		item("Linea movil 600111222", 1, 1500),
		item("Linea movil 600111223", 1, 1500),
		item("Linea movil 600111224", 1, 1500),
		item("Bono datos compartido", 1, 5000), // +20%
	}

	report := c.Compare(current, historical)

	if report.ModerateAlerts != 1 || report.HighAlerts != 0 {
		t.Fatalf("want exactly one moderate alert, got moderate=%d high=%d", report.ModerateAlerts, report.HighAlerts)
	}
	if report.Confidence != 75 {
		t.Errorf("confidence = %.1f, want 75 (three clean of four)", report.Confidence)
	}
	if report.AutoEligible {
		t.Error("75 percent confidence must not be auto eligible")
	}
}

func TestCompareNewItemBlocks(t *testing.T) {
	c := NewComparator(0.85)
	current := []LineItem{
		item("Cuota mensual hosting", 1, 9900),
		item("Certificado SSL wildcard", 1, 15000),
	}
	historical := []LineItem{
		item("Cuota mensual hosting", 1, 9900),
	}

	report := c.Compare(current, historical)

	if report.NewItems != 1 {
		t.Fatalf("new items = %d, want 1", report.NewItems)
	}
	if report.AutoEligible {
		t.Error("a never-seen item must block auto eligibility")
	}
	found := false
	for _, a := range report.Alerts {
		if a.Kind == AlertNewItem && a.BlocksAuto {
			found = true
		}
	}
	if !found {
		t.Error("expected a blocking new_item alert")
	}
}

func TestCompareFuzzyMatch(t *testing.T) {
	c := NewComparator(0.85)
	current := []LineItem{item("Cuota mantenimiento servidores", 1, 30000)}
	historical := []LineItem{item("Cuota mantenimiento servidor", 1, 30000)}

	report := c.Compare(current, historical)

	if report.NewItems != 0 {
		t.Fatal("reworded description should fuzzy-match, not count as new")
	}
	if !report.Items[0].Fuzzy {
		t.Error("match should be marked fuzzy")
	}
	if report.Items[0].Similarity < 0.85 {
		t.Errorf("similarity = %.2f, want at least the threshold", report.Items[0].Similarity)
	}
	if report.Confidence != 100 {
		t.Errorf("confidence = %.1f, want 100", report.Confidence)
	}
}

func TestCompareQuantityJump(t *testing.T) {
	c := NewComparator(0.85)
	current := []LineItem{item("Horas soporte premium", 16, 9500)}
	historical := []LineItem{item("Horas soporte premium", 10, 9500)}

	report := c.Compare(current, historical)

	if report.HighAlerts != 1 {
		t.Fatalf("a 60%% quantity jump must raise one high alert, got %d", report.HighAlerts)
	}
	if report.Alerts[0].Kind != AlertQuantityDrift {
		t.Errorf("alert kind = %s, want quantity_drift", report.Alerts[0].Kind)
	}
}

func TestCompareNoLineItems(t *testing.T) {
	c := NewComparator(0.85)
	report := c.Compare(nil, []LineItem{item("Algo historico", 1, 1000)})

	if report.Confidence != 0 || report.AutoEligible {
		t.Errorf("no current lines should score zero, got %.1f eligible=%v", report.Confidence, report.AutoEligible)
	}
}

func TestCompareConsumesHistoricalOnce(t *testing.T) {
	c := NewComparator(0.85)
	current := []LineItem{
		item("Puesto coworking", 1, 25000),
		item("Puesto coworking", 1, 25000),
	}
	historical := []LineItem{
		item("Puesto coworking", 1, 25000),
	}

	report := c.Compare(current, historical)

	if report.NewItems != 1 {
		t.Errorf("second duplicate line has nothing left to match, want 1 new item, got %d", report.NewItems)
	}
}
