package saga_test

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"claimsaga/internal/domain"
)

func TestFileClaimRecordsSpanPerStep(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	h := newHarness(t, simulatorVerifier(), fixedValuation(10, nil), successPayer())
	h.orch.Tracer = tp.Tracer("saga-test")
	c, err := h.orch.FileClaim(context.Background(), input("1HGCM82633A004350", "hail", "2024-03-20"))
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if c.Status != domain.StatusPaid {
		t.Fatalf("status: %s", c.Status)
	}
	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	want := []string{"saga.verify", "saga.valuate", "saga.settle", "saga.FileClaim"}
	if !equalStrings(names, want) {
		t.Fatalf("spans: %v want %v", names, want)
	}
}
