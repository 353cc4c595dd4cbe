package tracing

import "context"

// Transaction is a unit of traced work that does not originate from a request
type Transaction interface {
	Context() context.Context
	End()
}

// Span is a traced section within whatever Transaction the context carries
type Span interface {
	End()
}

type Tracer interface {
	BackgroundTx(name string) Transaction
	// StartSpan returns a context carrying the new span; if ctx has no Transaction the span is a no-op
	StartSpan(ctx context.Context, name string, spanType string) (context.Context, Span)
}
