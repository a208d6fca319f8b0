package instrumentation

import (
	"context"
	"testing"
	"time"
)

func TestNewWithDefaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if inst.Metrics() == nil {
		t.Fatal("Metrics() = nil")
	}
	if inst.Tracer() == nil {
		t.Fatal("Tracer() = nil")
	}

	// No-op providers must absorb recordings without side effects.
	ctx := context.Background()
	inst.Metrics().RecordRequest(ctx, "token", "", 12*time.Millisecond)
	inst.Metrics().RecordRequest(ctx, "token", "invalid_grant", time.Millisecond)
	inst.Metrics().RecordTokenIssued(ctx, "authorization_code")
	inst.Metrics().RecordCodeIssued(ctx)
}

func TestNewNamesService(t *testing.T) {
	inst, err := New(Config{ServiceName: "idp", ServiceVersion: "1.2.3"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if inst.Resource() == nil {
		t.Fatal("Resource() = nil")
	}
}
