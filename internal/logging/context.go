package logging

import "context"

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// TraceIDKey returns the context key under which a trace ID is attached,
// e.g. context.WithValue(ctx, logging.TraceIDKey(), traceID).
func TraceIDKey() interface{} { return traceIDKey }

// SpanIDKey returns the context key under which a span ID is attached
func SpanIDKey() interface{} { return spanIDKey }

// extractContextFields pulls trace_id and span_id out of the context so a
// context-aware logger stamps them onto every line. Returns nil when there
// is nothing to extract.
func extractContextFields(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	var fields map[string]interface{}
	for _, key := range []contextKey{traceIDKey, spanIDKey} {
		if v := ctx.Value(key); v != nil {
			if fields == nil {
				fields = make(map[string]interface{}, 2)
			}
			fields[string(key)] = v
		}
	}
	return fields
}
