package rpc

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/rsocket/rpc-go"

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func startSpan(ctx context.Context, kind trace.SpanKind, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("rpc.system", "rpc-go"), attribute.String("rpc.method", op))
	return tracer().Start(ctx, op, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
