package tracing

import (
	"context"

	"go.elastic.co/apm"

	"github.com/fedus/safe-crossing-cf/internal/domain/tracing"
)

// Returns a thin wrapper around APM's tracing implementation
func NewTracer() tracing.Tracer {
	return &tracerImpl{getApmTracer: func() *apm.Tracer {
		return apm.DefaultTracer
	}}
}

type transactionImpl struct {
	apmTx *apm.Transaction
}

func (t *transactionImpl) Context() context.Context {
	return apm.ContextWithTransaction(context.Background(), t.apmTx)
}

func (t *transactionImpl) End() {
	t.apmTx.End()
}

type tracerImpl struct {
	getApmTracer func() *apm.Tracer
}

func (t *tracerImpl) BackgroundTx(name string) tracing.Transaction {
	tracer := t.getApmTracer()
	tx := tracer.StartTransaction(name, "backgroundjob")
	return &transactionImpl{apmTx: tx}
}

func (t *tracerImpl) StartSpan(ctx context.Context, name string, spanType string) (context.Context, tracing.Span) {
	span, spanCtx := apm.StartSpan(ctx, name, spanType)
	return spanCtx, span
}

// <--- For testing

type noopTx struct{}

func (n noopTx) Context() context.Context {
	return context.Background()
}

func (n noopTx) End() {
}

type noopSpan struct{}

func (n noopSpan) End() {
}

type NoopTracer struct{}

func (n NoopTracer) BackgroundTx(name string) tracing.Transaction {
	return noopTx{}
}

func (n NoopTracer) StartSpan(ctx context.Context, name string, spanType string) (context.Context, tracing.Span) {
	return ctx, noopSpan{}
}

// For testing -->
