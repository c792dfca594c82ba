package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/errors"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "disabled"})
}

func validIngestRequest() *IngestInvoiceRequest {
	return &IngestInvoiceRequest{
		ExternalDocID: "doc-2025-000123",
		InvoiceNumber: "F-2025-0042",
		GroupID:       "group-1",
		ProviderTaxID: "B12345678",
		ProviderName:  "Limpiezas del Norte SL",
		IssueDate:     "2025-01-15",
		SubtotalCents: 82645,
		TaxCents:      17355,
		TotalCents:    100000,
		Concept:       "Limpieza oficinas enero",
		Lines: []*IngestLineRequest{
			{LineNumber: 1, Description: "Limpieza oficinas", Quantity: 1, UnitPriceCents: 82645, TotalCents: 82645},
		},
	}
}

func TestIngestInvoiceValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*IngestInvoiceRequest)
	}{
		{"missing external doc id", func(r *IngestInvoiceRequest) { r.ExternalDocID = "" }},
		{"missing invoice number", func(r *IngestInvoiceRequest) { r.InvoiceNumber = "" }},
		{"missing group", func(r *IngestInvoiceRequest) { r.GroupID = "" }},
		{"missing tax id", func(r *IngestInvoiceRequest) { r.ProviderTaxID = "" }},
		{"bad date format", func(r *IngestInvoiceRequest) { r.IssueDate = "15/01/2025" }},
		{"zero total", func(r *IngestInvoiceRequest) { r.TotalCents = 0 }},
		{"negative subtotal", func(r *IngestInvoiceRequest) { r.SubtotalCents = -1 }},
		{"blank concept", func(r *IngestInvoiceRequest) { r.Concept = "   " }},
		{"blank line description", func(r *IngestInvoiceRequest) { r.Lines[0].Description = " " }},
		{"zero quantity", func(r *IngestInvoiceRequest) { r.Lines[0].Quantity = 0 }},
		{"negative unit price", func(r *IngestInvoiceRequest) { r.Lines[0].UnitPriceCents = -500 }},
	}

	svc := NewIngestService(nil, nil, testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validIngestRequest()
			tt.mutate(req)

			_, created, err := svc.IngestInvoice(context.Background(), req)
			require.Error(t, err)
			require.False(t, created)
			require.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
		})
	}
}
