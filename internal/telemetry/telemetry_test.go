package telemetry

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/propagation"
)

var traceparentRe = regexp.MustCompile(`^00-[0-9a-f]{32}-[0-9a-f]{16}-01$`)

func TestProviderExportsSpans(t *testing.T) {
	var out bytes.Buffer
	tp, err := NewProvider(&out, "dlclient-test")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "fetch artifact")
	traceID := span.SpanContext().TraceID().String()
	span.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "fetch artifact") || !strings.Contains(got, traceID) {
		t.Fatalf("span not exported: %s", got)
	}
	if !strings.Contains(got, "dlclient-test") {
		t.Fatalf("service name missing from export: %s", got)
	}
}

func TestPropagatorInjectsTraceparent(t *testing.T) {
	tp, err := NewProvider(nil, "dlclient-test")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "poll")
	defer span.End()

	header := http.Header{}
	Propagator().Inject(ctx, propagation.HeaderCarrier(header))
	got := header.Get("traceparent")
	if !traceparentRe.MatchString(got) {
		t.Fatalf("unexpected traceparent %q", got)
	}
	if !strings.Contains(got, span.SpanContext().TraceID().String()) {
		t.Fatalf("traceparent %q does not carry the span's trace id", got)
	}
}
