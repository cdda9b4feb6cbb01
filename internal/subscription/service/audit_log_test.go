package service_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subport/internal/audit"
	auditmem "subport/internal/audit/store/memory"
	"subport/internal/subscription/models"
	"subport/internal/subscription/service"
	"subport/internal/subscription/store/submission"
	"subport/pkg/attrs"
)

// capturingHandler records every log line with its flattened attributes.
type capturingHandler struct {
	mu      sync.Mutex
	records []capturedRecord
}

type capturedRecord struct {
	message string
	attrs   []any
}

func (h *capturingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capturingHandler) Handle(_ context.Context, record slog.Record) error {
	captured := capturedRecord{message: record.Message}
	record.Attrs(func(attr slog.Attr) bool {
		captured.attrs = append(captured.attrs, attr.Key, attr.Value.Any())
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, captured)
	return nil
}

func (h *capturingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *capturingHandler) WithGroup(string) slog.Handler      { return h }

func (h *capturingHandler) find(message string) (capturedRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, record := range h.records {
		if record.message == message {
			return record, true
		}
	}
	return capturedRecord{}, false
}

func TestMutationEmitsAuditLogLine(t *testing.T) {
	e := newEnv(t)
	logHandler := &capturingHandler{}
	e.svc = service.New(e.store, e.catalog, e.catalog, e.directory,
		service.WithLogger(slog.New(logHandler)),
		service.WithAuditPublisher(audit.NewPublisher(auditmem.New())),
		service.WithSubmissionGuard(submission.NewInMemory(time.Minute)),
	)
	o, caller := e.newSubscription(t)
	product := e.seedProduct("coffee beans 1kg")

	_, err := e.svc.AddProduct(testCtx(), caller, o.ID, &models.AddProductRequest{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)

	record, found := logHandler.find("audit event")
	require.True(t, found, "every successful mutation logs an audit line")
	assert.Equal(t, "audit", attrs.ExtractString(record.attrs, "log_type"))
	assert.Equal(t, o.ID.String(), attrs.ExtractString(record.attrs, "order_id"))
	assert.Equal(t, caller.UserID.String(), attrs.ExtractString(record.attrs, "actor_id"))
}
