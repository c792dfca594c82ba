package fingerprint

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		concept string
		want    string
	}{
		{
			name:    "strips month and year",
			concept: "Factura servicios cloud marzo 2024",
			want:    "servicios cloud",
		},
		{
			name:    "same service different month",
			concept: "FACTURA SERVICIOS CLOUD ABRIL 2024",
			want:    "servicios cloud",
		},
		{
			name:    "english concept",
			concept: "Monthly invoice for cloud services January 2024",
			want:    "cloud services",
		},
		{
			name:    "accents folded",
			concept: "Suscripción telefonía móvil",
			want:    "suscripcion telefonia movil",
		},
		{
			name:    "keeps at most four tokens",
			concept: "mantenimiento integral equipos informaticos oficinas centrales madrid",
			want:    "mantenimiento integral equipos informaticos",
		},
		{
			name:    "date formats removed",
			concept: "Alquiler oficina 01/03/2024",
			want:    "alquiler oficina",
		},
		{
			name:    "acronym fallback",
			concept: "FACTURA BT 03/2024",
			want:    "bt",
		},
		{
			name:    "generic fallback",
			concept: "2024-03 0001",
			want:    "product",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.concept); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.concept, got, tt.want)
			}
		})
	}
}

func TestNewVariants(t *testing.T) {
	march := New("prov-1", "Factura servicios cloud marzo 2024", 199900, "")
	april := New("prov-1", "Factura servicios cloud abril 2024", 204900, "")

	if march.Concept != april.Concept {
		t.Errorf("concept variant should ignore the billing month: %q != %q", march.Concept, april.Concept)
	}
	if march.Strict != april.Strict {
		t.Errorf("strict variant should survive rounding drift: %q != %q", march.Strict, april.Strict)
	}
	if march.PurchaseOrder != "" {
		t.Errorf("no PO reference should mean no PO variant, got %q", march.PurchaseOrder)
	}
}

func TestNewAmountTolerance(t *testing.T) {
	base := New("prov-1", "Consultoria tecnica", 100000, "")
	within := New("prov-1", "Consultoria tecnica", 105000, "")
	outside := New("prov-1", "Consultoria tecnica", 150000, "")

	if base.AmountTolerant != within.AmountTolerant {
		t.Error("amounts within 10 percent should share the tolerant bucket")
	}
	if base.AmountTolerant == outside.AmountTolerant {
		t.Error("50 percent more should land in a different tolerant bucket")
	}
	if base.Concept != outside.Concept {
		t.Error("concept variant must not depend on amount")
	}
}

func TestNewDifferentProviders(t *testing.T) {
	a := New("prov-1", "Servicio limpieza", 50000, "")
	b := New("prov-2", "Servicio limpieza", 50000, "")

	if a.Concept == b.Concept {
		t.Error("fingerprints must be scoped to the provider")
	}
}

func TestNewPurchaseOrder(t *testing.T) {
	a := New("prov-1", "Material oficina", 32000, "po-2024-117")
	b := New("prov-1", "Material de oficina variado", 35000, "PO-2024-117")

	if a.PurchaseOrder == "" || a.PurchaseOrder != b.PurchaseOrder {
		t.Errorf("PO variant should match case-insensitively: %q vs %q", a.PurchaseOrder, b.PurchaseOrder)
	}
}

func TestHashDescription(t *testing.T) {
	a := HashDescription("Licencias Microsoft 365 - Marzo")
	b := HashDescription("licencias microsoft 365 abril")
	c := HashDescription("Licencias Adobe CC")

	if a != b {
		t.Error("descriptions differing only in month and case should hash equal")
	}
	if a == c {
		t.Error("different products must not collide")
	}
	if HashDescription("") == "" {
		t.Error("empty description still needs a stable hash")
	}
}
