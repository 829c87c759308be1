package execerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an engine error for callers that need to branch on it
// (failover decisions, terminal status, user-facing summaries).
type Kind string

const (
	// KindValidation - malformed request, no execution record was created.
	KindValidation Kind = "validation"
	// KindNotFound - unknown persona or trigger.
	KindNotFound Kind = "not_found"
	// KindConfig - persona has no usable candidates configured.
	KindConfig Kind = "config"
	// KindRetryableProvider - transient provider failure (rate limit,
	// missing binary, session limit, timeout). Drives failover.
	KindRetryableProvider Kind = "retryable_provider"
	// KindFatalProvider - unrecoverable provider response. Stops the run
	// without trying further candidates.
	KindFatalProvider Kind = "fatal_provider"
	// KindExhausted - every candidate was tried or circuit-open.
	KindExhausted Kind = "all_providers_exhausted"
	// KindRepository - persistence failure.
	KindRepository Kind = "repository"
	// KindCancelled - user or system initiated stop.
	KindCancelled Kind = "cancelled"
)

// Error carries the taxonomy kind plus the pipeline stage where the
// failure originated, so traces and records can report both.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an engine error with the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// Newf creates an engine error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to an existing error. A nil error stays nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// WithStage tags an error with the pipeline stage it occurred in.
// An already-tagged error keeps its original stage.
func WithStage(err error, stage string) error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		if ee.Stage == "" {
			ee.Stage = stage
		}
		return err
	}
	return &Error{Kind: KindFatalProvider, Stage: stage, Err: err}
}

// KindOf extracts the taxonomy kind from an error chain.
// Unclassified errors report KindFatalProvider.
func KindOf(err error) Kind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindFatalProvider
}

// StageOf extracts the originating pipeline stage, if tagged.
func StageOf(err error) string {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Stage
	}
	return ""
}

// IsRetryable reports whether the error should drive failover to the
// next candidate rather than failing the run.
func IsRetryable(err error) bool {
	return KindOf(err) == KindRetryableProvider
}

// defaultRetryPatterns are the provider output fragments that mark a
// failure as retryable. Callers can extend the set via configuration.
var defaultRetryPatterns = []string{
	"rate limit",
	"session limit",
	"usage limit",
	"quota exceeded",
	"too many requests",
	"429",
	"timed out",
	"overloaded",
	"econnreset",
	"etimedout",
}

// notFoundPatterns mark a spawn failure caused by a missing CLI binary.
var notFoundPatterns = []string{
	"executable file not found",
	"no such file or directory",
	"not found",
}

// ClassifyProviderFailure turns a raw provider failure message into a
// taxonomy kind. Extra patterns from configuration are checked alongside
// the built-in set; anything unrecognized is fatal.
func ClassifyProviderFailure(msg string, extraPatterns []string) Kind {
	lower := strings.ToLower(msg)

	for _, p := range notFoundPatterns {
		if strings.Contains(lower, p) {
			return KindRetryableProvider
		}
	}
	for _, p := range defaultRetryPatterns {
		if strings.Contains(lower, p) {
			return KindRetryableProvider
		}
	}
	for _, p := range extraPatterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return KindRetryableProvider
		}
	}
	return KindFatalProvider
}
