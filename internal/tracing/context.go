package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for the otel trace ID
	TraceIDKey ContextKey = "trace_id"
	// ExecutionIDKey is the context key for the execution ID
	ExecutionIDKey ContextKey = "execution_id"
	// PersonaIDKey is the context key for the persona ID
	PersonaIDKey ContextKey = "persona_id"
	// ChainIDKey is the context key for the chain correlation ID
	ChainIDKey ContextKey = "chain_trace_id"
	// TriggerIDKey is the context key for the originating trigger ID
	TriggerIDKey ContextKey = "trigger_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID     string
	ExecutionID string
	PersonaID   string
	ChainID     string
	TriggerID   string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithExecutionID adds an execution ID to the context
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, ExecutionIDKey, executionID)
}

// WithPersonaID adds a persona ID to the context
func WithPersonaID(ctx context.Context, personaID string) context.Context {
	return context.WithValue(ctx, PersonaIDKey, personaID)
}

// WithChainID adds a chain correlation ID to the context
func WithChainID(ctx context.Context, chainID string) context.Context {
	return context.WithValue(ctx, ChainIDKey, chainID)
}

// WithTriggerID adds a trigger ID to the context
func WithTriggerID(ctx context.Context, triggerID string) context.Context {
	return context.WithValue(ctx, TriggerIDKey, triggerID)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetExecutionID retrieves the execution ID from the context
func GetExecutionID(ctx context.Context) string {
	if executionID, ok := ctx.Value(ExecutionIDKey).(string); ok {
		return executionID
	}
	return ""
}

// GetPersonaID retrieves the persona ID from the context
func GetPersonaID(ctx context.Context) string {
	if personaID, ok := ctx.Value(PersonaIDKey).(string); ok {
		return personaID
	}
	return ""
}

// GetChainID retrieves the chain correlation ID from the context
func GetChainID(ctx context.Context) string {
	if chainID, ok := ctx.Value(ChainIDKey).(string); ok {
		return chainID
	}
	return ""
}

// GetTriggerID retrieves the trigger ID from the context
func GetTriggerID(ctx context.Context) string {
	if triggerID, ok := ctx.Value(TriggerIDKey).(string); ok {
		return triggerID
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:     GetTraceID(ctx),
		ExecutionID: GetExecutionID(ctx),
		PersonaID:   GetPersonaID(ctx),
		ChainID:     GetChainID(ctx),
		TriggerID:   GetTriggerID(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.ExecutionID != "" {
		ctx = WithExecutionID(ctx, tc.ExecutionID)
	}
	if tc.PersonaID != "" {
		ctx = WithPersonaID(ctx, tc.PersonaID)
	}
	if tc.ChainID != "" {
		ctx = WithChainID(ctx, tc.ChainID)
	}
	if tc.TriggerID != "" {
		ctx = WithTriggerID(ctx, tc.TriggerID)
	}
	return ctx
}

// NewExecutionContext creates a context for one pipeline run.
func NewExecutionContext(ctx context.Context, executionID, personaID string) context.Context {
	ctx = WithExecutionID(ctx, executionID)
	ctx = WithPersonaID(ctx, personaID)
	return ctx
}
