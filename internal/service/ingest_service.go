package service

import (
	"context"
	"strings"
	"time"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/errors"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/fingerprint"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/logger"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/repository"
)

// IngestService turns upstream invoice documents into analyzable invoices:
// it resolves the provider, computes the fingerprints and persists the
// invoice with its line items.
type IngestService struct {
	invoiceRepo  *repository.InvoiceRepository
	providerRepo *repository.ProviderRepository
	log          *logger.Logger
}

// NewIngestService creates a new IngestService.
func NewIngestService(
	invoiceRepo *repository.InvoiceRepository,
	providerRepo *repository.ProviderRepository,
	log *logger.Logger,
) *IngestService {
	return &IngestService{
		invoiceRepo:  invoiceRepo,
		providerRepo: providerRepo,
		log:          log,
	}
}

// IngestInvoiceRequest is one invoice document from the ingestion stream.
type IngestInvoiceRequest struct {
	ExternalDocID string
	InvoiceNumber string
	GroupID       string
	ProviderTaxID string
	ProviderName  string
	IssueDate     string // YYYY-MM-DD
	SubtotalCents int64
	TaxCents      int64
	TotalCents    int64
	Concept       string
	PONumber      *string
	Lines         []*IngestLineRequest
}

// IngestLineRequest is one line item of an ingested invoice.
type IngestLineRequest struct {
	LineNumber     int
	Description    string
	Quantity       float64
	UnitPriceCents int64
	TotalCents     int64
	ProductCode    *string
}

// IngestInvoice validates and persists an invoice. Re-delivering the same
// external document is not an error: the stored invoice is returned with
// created false.
func (s *IngestService) IngestInvoice(ctx context.Context, req *IngestInvoiceRequest) (*repository.Invoice, bool, error) {
	// Validate identifiers
	if req.ExternalDocID == "" {
		return nil, false, errors.InvalidInput("external_doc_id", "external document id is required")
	}
	if req.InvoiceNumber == "" {
		return nil, false, errors.InvalidInput("invoice_number", "invoice number is required")
	}
	if req.GroupID == "" {
		return nil, false, errors.InvalidInput("group_id", "group id is required")
	}
	if req.ProviderTaxID == "" {
		return nil, false, errors.InvalidInput("provider_tax_id", "provider tax id is required")
	}

	// Validate dates and amounts
	issueDate, err := time.Parse("2006-01-02", req.IssueDate)
	if err != nil {
		return nil, false, errors.InvalidInput("issue_date", "invalid date format, expected YYYY-MM-DD")
	}
	if req.TotalCents <= 0 {
		return nil, false, errors.InvalidInput("total_cents", "invoice total must be positive")
	}
	if req.SubtotalCents < 0 || req.TaxCents < 0 {
		return nil, false, errors.InvalidInput("subtotal_cents", "amounts cannot be negative")
	}
	if strings.TrimSpace(req.Concept) == "" {
		return nil, false, errors.InvalidInput("concept", "billing concept is required")
	}

	// Validate lines
	for _, line := range req.Lines {
		if strings.TrimSpace(line.Description) == "" {
			return nil, false, errors.InvalidInput("description", "line description is required")
		}
		if line.Quantity <= 0 {
			return nil, false, errors.InvalidInput("quantity", "quantity must be positive")
		}
		if line.UnitPriceCents < 0 || line.TotalCents < 0 {
			return nil, false, errors.InvalidInput("unit_price_cents", "line amounts cannot be negative")
		}
	}

	// Idempotency: the external document id is the dedup key
	if existing, err := s.invoiceRepo.GetByExternalDocID(ctx, req.ExternalDocID); err == nil {
		s.log.Debug().
			Str("external_doc_id", req.ExternalDocID).
			Str("invoice_id", existing.ID).
			Msg("Invoice already ingested; skipping")
		return existing, false, nil
	} else if !errors.IsNotFound(err) {
		return nil, false, err
	}

	provider, err := s.resolveProvider(ctx, req, issueDate)
	if err != nil {
		return nil, false, err
	}

	// Fingerprints bind the invoice to its recurring concept
	po := ""
	if req.PONumber != nil {
		po = *req.PONumber
	}
	prints := fingerprint.New(provider.ID, req.Concept, req.TotalCents, po)

	invoice := &repository.Invoice{
		ExternalDocID:      req.ExternalDocID,
		InvoiceNumber:      req.InvoiceNumber,
		ProviderID:         provider.ID,
		GroupID:            req.GroupID,
		IssueDate:          issueDate,
		SubtotalCents:      req.SubtotalCents,
		TaxCents:           req.TaxCents,
		TotalCents:         req.TotalCents,
		Concept:            req.Concept,
		ConceptNormalized:  fingerprint.Normalize(req.Concept),
		ConceptFingerprint: prints.Concept,
		FingerprintStrict:  prints.Strict,
		FingerprintAmount:  prints.AmountTolerant,
		PONumber:           req.PONumber,
		LineItems:          make([]repository.InvoiceLineItem, 0, len(req.Lines)),
	}
	if prints.PurchaseOrder != "" {
		invoice.FingerprintPO = &prints.PurchaseOrder
	}

	for _, line := range req.Lines {
		invoice.LineItems = append(invoice.LineItems, repository.InvoiceLineItem{
			LineNumber:      line.LineNumber,
			Description:     line.Description,
			DescriptionHash: fingerprint.HashDescription(line.Description),
			Quantity:        line.Quantity,
			UnitPriceCents:  line.UnitPriceCents,
			TotalCents:      line.TotalCents,
			ProductCode:     line.ProductCode,
		})
	}

	if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
		return nil, false, err
	}

	s.log.Info().
		Str("invoice_id", invoice.ID).
		Str("invoice_number", invoice.InvoiceNumber).
		Str("provider_id", provider.ID).
		Str("group_id", invoice.GroupID).
		Int64("total_cents", invoice.TotalCents).
		Int("line_count", len(invoice.LineItems)).
		Str("concept_fingerprint", invoice.ConceptFingerprint).
		Msg("Invoice ingested")

	return invoice, true, nil
}

// resolveProvider finds the provider by tax id, creating it on first sight.
// The relationship starts at the first invoice's issue date, which seeds the
// trust tier ladder.
func (s *IngestService) resolveProvider(ctx context.Context, req *IngestInvoiceRequest, issueDate time.Time) (*repository.Provider, error) {
	provider, err := s.providerRepo.GetByTaxID(ctx, req.ProviderTaxID)
	if err == nil {
		return provider, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	name := strings.TrimSpace(req.ProviderName)
	if name == "" {
		name = req.ProviderTaxID
	}

	provider = &repository.Provider{
		TaxID:             req.ProviderTaxID,
		Name:              name,
		RelationshipStart: issueDate,
	}
	if err := s.providerRepo.Create(ctx, provider); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("provider_id", provider.ID).
		Str("tax_id", provider.TaxID).
		Str("name", provider.Name).
		Msg("Provider registered")

	return provider, nil
}
