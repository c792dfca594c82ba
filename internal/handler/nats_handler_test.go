package handler

import (
	"testing"

	natsio "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/logger"
)

// Malformed payloads must be dropped without ever reaching the services.
func TestMalformedMessagesAreDropped(t *testing.T) {
	t.Parallel()

	h := NewNATSHandler(nil, nil, nil, logger.New(logger.Config{Level: "disabled"}))

	payloads := [][]byte{
		nil,
		[]byte(""),
		[]byte("{truncated"),
		[]byte(`"a plain string"`),
		[]byte(`[1, 2, 3]`),
	}
	for _, data := range payloads {
		require.NotPanics(t, func() {
			h.handleInvoiceIngested(&natsio.Msg{Subject: SubjectInvoiceIngested, Data: data})
		})
		require.NotPanics(t, func() {
			h.handleManualDecision(&natsio.Msg{Subject: SubjectManualDecision, Data: data})
		})
	}

	// Wrong field types are also a decode failure, not a crash.
	require.NotPanics(t, func() {
		h.handleInvoiceIngested(&natsio.Msg{
			Subject: SubjectInvoiceIngested,
			Data:    []byte(`{"total_cents": "not a number"}`),
		})
	})
}
