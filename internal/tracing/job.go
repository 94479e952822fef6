package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TraceCarrier rides inside queue messages so a job's processing span joins
// the trace of the request that enqueued it.
type TraceCarrier map[string]string

func (c TraceCarrier) Get(key string) string { return c[key] }

func (c TraceCarrier) Set(key, value string) { c[key] = value }

func (c TraceCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectTrace captures the current trace context into a carrier suitable for
// embedding in a message payload.
func InjectTrace(ctx context.Context) TraceCarrier {
	carrier := TraceCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier
}

// ExtractTrace restores trace context previously captured with InjectTrace.
func ExtractTrace(ctx context.Context, carrier TraceCarrier) context.Context {
	if len(carrier) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// StartJobSpan starts the consumer-side span for one leased job.
func StartJobSpan(ctx context.Context, jobID, videoID string, attempt int64) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "job.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("video.id", videoID),
			attribute.Int64("job.attempt", attempt),
		),
	)
}

// StartEnqueueSpan starts the producer-side span for publishing a job.
func StartEnqueueSpan(ctx context.Context, videoID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "job.enqueue",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("video.id", videoID)),
	)
}
