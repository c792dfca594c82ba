package handler

import (
	"context"
	"encoding/json"
	"time"

	natsio "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/errors"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/logger"
	natsclient "github.com/aprovia-ai/be-ap-autoapprove/internal/nats"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/service"
)

// Subjects consumed by the approval service.
const (
	SubjectInvoiceIngested = "ap.invoices.ingested"
	SubjectManualDecision  = "ap.approvals.decision"
)

// queueGroup makes replicas share the subjects instead of each processing
// every message.
const queueGroup = "be-ap-autoapprove"

// handlerTimeout bounds the work done for a single message.
const handlerTimeout = time.Minute

// NATSHandler consumes the inbound approval subjects: newly ingested
// invoices and manual decision commands from reviewers.
type NATSHandler struct {
	ingest   *service.IngestService
	approval *service.ApprovalService
	nats     *natsclient.Client
	log      *logger.Logger
}

// NewNATSHandler creates a new NATS handler.
func NewNATSHandler(
	ingest *service.IngestService,
	approval *service.ApprovalService,
	nats *natsclient.Client,
	log *logger.Logger,
) *NATSHandler {
	return &NATSHandler{
		ingest:   ingest,
		approval: approval,
		nats:     nats,
		log:      log,
	}
}

// Subscribe attaches the queue subscriptions. They stay active until the
// connection is drained.
func (h *NATSHandler) Subscribe() error {
	if _, err := h.nats.QueueSubscribe(SubjectInvoiceIngested, queueGroup, h.handleInvoiceIngested); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to subscribe to "+SubjectInvoiceIngested)
	}
	if _, err := h.nats.QueueSubscribe(SubjectManualDecision, queueGroup, h.handleManualDecision); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to subscribe to "+SubjectManualDecision)
	}
	h.log.Info().
		Str("subjects", SubjectInvoiceIngested+", "+SubjectManualDecision).
		Str("queue_group", queueGroup).
		Msg("NATS subscriptions active")
	return nil
}

// ingestedEvent is the payload published by the ingestion pipeline for each
// received invoice document.
type ingestedEvent struct {
	ExternalDocID string         `json:"external_doc_id"`
	InvoiceNumber string         `json:"invoice_number"`
	GroupID       string         `json:"group_id"`
	ProviderTaxID string         `json:"provider_tax_id"`
	ProviderName  string         `json:"provider_name"`
	IssueDate     string         `json:"issue_date"`
	SubtotalCents int64          `json:"subtotal_cents"`
	TaxCents      int64          `json:"tax_cents"`
	TotalCents    int64          `json:"total_cents"`
	Concept       string         `json:"concept"`
	PONumber      *string        `json:"po_number,omitempty"`
	Lines         []ingestedLine `json:"lines"`
}

type ingestedLine struct {
	LineNumber     int     `json:"line_number"`
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	TotalCents     int64   `json:"total_cents"`
	ProductCode    *string `json:"product_code,omitempty"`
}

func (h *NATSHandler) handleInvoiceIngested(msg *natsio.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var event ingestedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		h.log.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping malformed invoice message")
		return
	}

	req := &service.IngestInvoiceRequest{
		ExternalDocID: event.ExternalDocID,
		InvoiceNumber: event.InvoiceNumber,
		GroupID:       event.GroupID,
		ProviderTaxID: event.ProviderTaxID,
		ProviderName:  event.ProviderName,
		IssueDate:     event.IssueDate,
		SubtotalCents: event.SubtotalCents,
		TaxCents:      event.TaxCents,
		TotalCents:    event.TotalCents,
		Concept:       event.Concept,
		PONumber:      event.PONumber,
	}
	for _, line := range event.Lines {
		req.Lines = append(req.Lines, &service.IngestLineRequest{
			LineNumber:     line.LineNumber,
			Description:    line.Description,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			TotalCents:     line.TotalCents,
			ProductCode:    line.ProductCode,
		})
	}

	invoice, created, err := h.ingest.IngestInvoice(ctx, req)
	if err != nil {
		h.logHandlerError(err, "Invoice ingestion failed", "external_doc_id", event.ExternalDocID)
		return
	}
	if !created {
		h.log.Debug().Str("invoice_id", invoice.ID).Msg("Redelivered invoice document")
	}

	// Analysis is idempotent, so redeliveries just resume whatever is left.
	if _, err := h.approval.ProcessNewInvoice(ctx, invoice.ID); err != nil {
		h.logHandlerError(err, "Invoice processing failed", "invoice_id", invoice.ID)
	}
}

// decisionCommand is the payload reviewers' tooling publishes to approve or
// reject a pending workflow.
type decisionCommand struct {
	WorkflowID    string  `json:"workflow_id"`
	Action        string  `json:"action"` // approve | reject
	ActorID       string  `json:"actor_id"`
	Justification *string `json:"justification,omitempty"`
	Reason        *string `json:"rejection_reason,omitempty"`
}

func (h *NATSHandler) handleManualDecision(msg *natsio.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var cmd decisionCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		h.log.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping malformed decision message")
		return
	}

	_, err := h.approval.ApplyManualDecision(ctx, &service.ManualDecisionRequest{
		WorkflowID:    cmd.WorkflowID,
		Actor:         cmd.ActorID,
		Action:        cmd.Action,
		Justification: cmd.Justification,
		Reason:        cmd.Reason,
	})
	if err != nil {
		h.logHandlerError(err, "Manual decision failed", "workflow_id", cmd.WorkflowID)
	}
}

// logHandlerError downgrades caller mistakes to warnings; everything else is
// an operational error.
func (h *NATSHandler) logHandlerError(err error, msg, key, value string) {
	var event *zerolog.Event
	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeConflict, errors.ErrCodeNotFound:
		event = h.log.Warn()
	default:
		event = h.log.Error()
	}
	event.Err(err).Str(key, value).Msg(msg)
}
