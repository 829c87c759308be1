package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToChainedRun carries a chain's correlation ID into the context
// for a follow-up execution. The execution ID is fresh per run; the chain
// ID is shared so the runs can be stitched back together.
func PropagateToChainedRun(ctx context.Context, executionID, personaID string) context.Context {
	chainID := GetChainID(ctx)
	if chainID == "" {
		chainID = NewTraceID()
	}

	newCtx := WithChainID(ctx, chainID)
	newCtx = WithExecutionID(newCtx, executionID)
	newCtx = WithPersonaID(newCtx, personaID)

	if triggerID := GetTriggerID(ctx); triggerID != "" {
		newCtx = WithTriggerID(newCtx, triggerID)
	}

	return newCtx
}

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.ExecutionID != "" {
		logger = logger.With().Str("execution_id", tc.ExecutionID).Logger()
	}
	if tc.PersonaID != "" {
		logger = logger.With().Str("persona_id", tc.PersonaID).Logger()
	}
	if tc.ChainID != "" {
		logger = logger.With().Str("chain_trace_id", tc.ChainID).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext merges tracing information from source context into target context
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.ExecutionID != "" && GetExecutionID(target) == "" {
		target = WithExecutionID(target, tc.ExecutionID)
	}
	if tc.PersonaID != "" && GetPersonaID(target) == "" {
		target = WithPersonaID(target, tc.PersonaID)
	}
	if tc.ChainID != "" && GetChainID(target) == "" {
		target = WithChainID(target, tc.ChainID)
	}

	return target
}
