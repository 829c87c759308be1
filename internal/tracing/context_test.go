package tracing

import (
	"context"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestWithTraceID(t *testing.T) {
	ctx := context.Background()
	traceID := "test-trace-id"

	ctx = WithTraceID(ctx, traceID)

	retrieved := GetTraceID(ctx)
	if retrieved != traceID {
		t.Errorf("Expected trace ID %s, got %s", traceID, retrieved)
	}
}

func TestWithExecutionID(t *testing.T) {
	ctx := context.Background()
	executionID := "exec-1"

	ctx = WithExecutionID(ctx, executionID)

	retrieved := GetExecutionID(ctx)
	if retrieved != executionID {
		t.Errorf("Expected execution ID %s, got %s", executionID, retrieved)
	}
}

func TestWithPersonaID(t *testing.T) {
	ctx := context.Background()
	personaID := "p-research"

	ctx = WithPersonaID(ctx, personaID)

	retrieved := GetPersonaID(ctx)
	if retrieved != personaID {
		t.Errorf("Expected persona ID %s, got %s", personaID, retrieved)
	}
}

func TestWithChainID(t *testing.T) {
	ctx := context.Background()
	chainID := "chain-7"

	ctx = WithChainID(ctx, chainID)

	retrieved := GetChainID(ctx)
	if retrieved != chainID {
		t.Errorf("Expected chain ID %s, got %s", chainID, retrieved)
	}
}

func TestGettersEmptyContext(t *testing.T) {
	ctx := context.Background()

	if GetTraceID(ctx) != "" {
		t.Error("Expected empty trace ID")
	}
	if GetExecutionID(ctx) != "" {
		t.Error("Expected empty execution ID")
	}
	if GetPersonaID(ctx) != "" {
		t.Error("Expected empty persona ID")
	}
	if GetChainID(ctx) != "" {
		t.Error("Expected empty chain ID")
	}
	if GetTriggerID(ctx) != "" {
		t.Error("Expected empty trigger ID")
	}
}

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-123")
	ctx = WithExecutionID(ctx, "exec-456")
	ctx = WithPersonaID(ctx, "p-789")
	ctx = WithChainID(ctx, "chain-abc")
	ctx = WithTriggerID(ctx, "trg-def")

	tc := FromContext(ctx)

	if tc.TraceID != "trace-123" {
		t.Errorf("Expected trace ID trace-123, got %s", tc.TraceID)
	}
	if tc.ExecutionID != "exec-456" {
		t.Errorf("Expected execution ID exec-456, got %s", tc.ExecutionID)
	}
	if tc.PersonaID != "p-789" {
		t.Errorf("Expected persona ID p-789, got %s", tc.PersonaID)
	}
	if tc.ChainID != "chain-abc" {
		t.Errorf("Expected chain ID chain-abc, got %s", tc.ChainID)
	}
	if tc.TriggerID != "trg-def" {
		t.Errorf("Expected trigger ID trg-def, got %s", tc.TriggerID)
	}
}

func TestNewContext(t *testing.T) {
	ctx := context.Background()

	tc := &TraceContext{
		TraceID:     "trace-123",
		ExecutionID: "exec-456",
		PersonaID:   "p-789",
		ChainID:     "chain-abc",
	}

	ctx = NewContext(ctx, tc)

	if GetTraceID(ctx) != "trace-123" {
		t.Error("Trace ID not set correctly")
	}
	if GetExecutionID(ctx) != "exec-456" {
		t.Error("Execution ID not set correctly")
	}
	if GetPersonaID(ctx) != "p-789" {
		t.Error("Persona ID not set correctly")
	}
	if GetChainID(ctx) != "chain-abc" {
		t.Error("Chain ID not set correctly")
	}
}

func TestNewContextPartial(t *testing.T) {
	ctx := context.Background()

	tc := &TraceContext{
		TraceID: "trace-123",
		// Other fields empty
	}

	ctx = NewContext(ctx, tc)

	if GetTraceID(ctx) != "trace-123" {
		t.Error("Trace ID not set correctly")
	}
	if GetExecutionID(ctx) != "" {
		t.Error("Execution ID should be empty")
	}
	if GetPersonaID(ctx) != "" {
		t.Error("Persona ID should be empty")
	}
}

func TestNewExecutionContext(t *testing.T) {
	ctx := context.Background()

	ctx = NewExecutionContext(ctx, "exec-1", "p-research")

	if GetExecutionID(ctx) != "exec-1" {
		t.Error("Execution ID not set")
	}
	if GetPersonaID(ctx) != "p-research" {
		t.Error("Persona ID not set")
	}
}
