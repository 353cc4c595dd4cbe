package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.elastic.co/apm"
	"go.elastic.co/apm/apmtest"
)

func Test_tracerImpl_BackgroundTx(t *testing.T) {
	recorder := apmtest.NewRecordingTracer()
	defer recorder.Close()
	tracer := &tracerImpl{getApmTracer: func() *apm.Tracer {
		return recorder.Tracer
	}}

	tx := tracer.BackgroundTx("audit")
	spanCtx, span := tracer.StartSpan(tx.Context(), "voting.Audit", "app")
	assert.NotNil(t, apm.TransactionFromContext(spanCtx))
	span.End()
	tx.End()
	recorder.Flush(nil)

	payloads := recorder.Payloads()
	if assert.Len(t, payloads.Transactions, 1) {
		assert.Equal(t, "audit", payloads.Transactions[0].Name)
		assert.Equal(t, "backgroundjob", payloads.Transactions[0].Type)
	}
	if assert.Len(t, payloads.Spans, 1) {
		assert.Equal(t, "voting.Audit", payloads.Spans[0].Name)
	}
}

func Test_tracerImpl_StartSpan_noTransaction(t *testing.T) {
	tracer := NewTracer()
	ctx := context.Background()
	spanCtx, span := tracer.StartSpan(ctx, "voting.Meta", "app")
	assert.Nil(t, apm.TransactionFromContext(spanCtx))
	// Ending a span that was never started must not panic
	span.End()
}

func TestNoopTracer(t *testing.T) {
	tracer := NoopTracer{}
	tx := tracer.BackgroundTx("anything")
	ctx, span := tracer.StartSpan(tx.Context(), "anything", "app")
	assert.Equal(t, tx.Context(), ctx)
	span.End()
	tx.End()
}
