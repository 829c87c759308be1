package execerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(KindNotFound, "persona missing")
	assert.Equal(t, KindNotFound, KindOf(err))

	wrapped := fmt.Errorf("submit failed: %w", err)
	assert.Equal(t, KindNotFound, KindOf(wrapped))

	assert.Equal(t, KindFatalProvider, KindOf(errors.New("plain")))
}

func TestWithStageKeepsOriginalStage(t *testing.T) {
	err := WithStage(New(KindRepository, "db locked"), "create_record")
	assert.Equal(t, "create_record", StageOf(err))

	// A second tag must not overwrite the original stage.
	err = WithStage(err, "finalize_status")
	assert.Equal(t, "create_record", StageOf(err))
}

func TestWithStageWrapsPlainErrors(t *testing.T) {
	err := WithStage(errors.New("boom"), "validate")
	assert.Equal(t, "validate", StageOf(err))
	assert.Equal(t, KindFatalProvider, KindOf(err))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(KindRetryableProvider, "rate limited")))
	assert.False(t, IsRetryable(New(KindFatalProvider, "bad prompt")))
	assert.False(t, IsRetryable(New(KindValidation, "empty persona")))
	assert.False(t, IsRetryable(nil))
}

func TestClassifyProviderFailure(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{"rate limit exceeded", KindRetryableProvider},
		{"Session limit reached", KindRetryableProvider},
		{"Usage Limit: quota exceeded", KindRetryableProvider},
		{"Too many requests, slow down", KindRetryableProvider},
		{"HTTP 429: rate limited", KindRetryableProvider},
		{"Execution timed out after 300s", KindRetryableProvider},
		{"exec: \"claude\": executable file not found in $PATH", KindRetryableProvider},
		{"Syntax error in prompt", KindFatalProvider},
		{"Permission denied", KindFatalProvider},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyProviderFailure(tt.msg, nil), tt.msg)
	}
}

func TestClassifyProviderFailureExtraPatterns(t *testing.T) {
	msg := "provider said: capacity saturated"
	assert.Equal(t, KindFatalProvider, ClassifyProviderFailure(msg, nil))
	assert.Equal(t, KindRetryableProvider, ClassifyProviderFailure(msg, []string{"capacity saturated"}))
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: KindConfig, Stage: "validate", Err: errors.New("no candidates")}
	assert.Equal(t, "validate: config: no candidates", err.Error())
}
