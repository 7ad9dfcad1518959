package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
)

// codedError mimics a vendor error exposing Code().
type codedError struct {
	code string
	msg  string
}

func (e *codedError) Error() string { return e.msg }
func (e *codedError) Code() string  { return e.code }

func coded(code, msg string) error { return &codedError{code: code, msg: msg} }

func TestClassify_Codes(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{"unavailable", CategoryNetwork, SeverityHigh, true},
		{"deadline-exceeded", CategoryNetwork, SeverityHigh, true},
		{"auth/network-request-failed", CategoryNetwork, SeverityHigh, true},
		{"unauthenticated", CategoryAuth, SeverityMedium, false},
		{"auth/user-token-expired", CategoryAuth, SeverityMedium, false},
		{"permission-denied", CategoryPermission, SeverityMedium, false},
		{"storage/unauthorized", CategoryPermission, SeverityMedium, false},
		{"invalid-argument", CategoryValidation, SeverityLow, false},
		{"failed-precondition", CategoryValidation, SeverityLow, false},
		{"resource-exhausted", CategoryQuota, SeverityHigh, true},
		{"not-found", CategoryNotFound, SeverityLow, false},
		{"already-exists", CategoryConflict, SeverityLow, false},
		{"internal", CategoryServer, SeverityCritical, true},
		{"data-loss", CategoryServer, SeverityCritical, false},
		{"aborted", CategoryClient, SeverityLow, true},
		{"cancelled", CategoryClient, SeverityLow, false},
		{"unknown", CategoryUnknown, SeverityLow, false},
		{"RESOURCE_EXHAUSTED", CategoryQuota, SeverityHigh, true},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			d := c.Classify(coded(tt.code, "boom"), Context{Operation: "get"})
			assert.Equal(t, tt.category, d.Category)
			assert.Equal(t, tt.severity, d.Severity)
			assert.Equal(t, tt.retryable, d.Retryable)
			assert.Equal(t, "get", d.Operation)
			assert.False(t, d.Catastrophic)
		})
	}
}

func TestClassify_RetryableOnlyForAllowlist(t *testing.T) {
	c := New()
	for _, code := range []string{
		"unavailable", "permission-denied", "not-found", "internal", "aborted",
		"storage/retry-limit-exceeded", "invalid-argument", "unknown", "out-of-range",
	} {
		d := c.Classify(coded(code, "x"))
		assert.Equal(t, IsRetryableCode(code), d.Retryable, code)
	}
}

func TestClassify_MessageFallback(t *testing.T) {
	tests := []struct {
		msg      string
		category Category
		code     string
	}{
		{"request timed out", CategoryNetwork, "deadline-exceeded"},
		{"connection refused", CategoryNetwork, "unavailable"},
		{"client is offline", CategoryNetwork, "unavailable"},
		{"Access Denied for user", CategoryPermission, "permission-denied"},
		{"document not found", CategoryNotFound, "not-found"},
		{"field name is required", CategoryValidation, "invalid-argument"},
		{"duplicate key", CategoryConflict, "already-exists"},
		{"something odd", CategoryUnknown, "unknown"},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			d := c.Classify(errors.New(tt.msg))
			assert.Equal(t, tt.category, d.Category)
			assert.Equal(t, tt.code, d.Code)
		})
	}
}

func TestClassify_Catastrophic(t *testing.T) {
	c := New()

	d := c.Classify(coded("internal", "FIRESTORE INTERNAL ASSERTION FAILED: Unexpected state (ID: ca9)"))
	assert.True(t, d.Catastrophic)
	assert.True(t, d.Retryable, "internal stays in the allowlist")
	assert.Equal(t, "reinitialize_client", d.SuggestedAction)
	assert.Equal(t, SeverityCritical, d.Severity)

	for _, msg := range []string{
		"internal assertion failed",
		"Unexpected state",
		"ID: b815",
		"Target ID already exists: 4",
		"watch target conflict",
		"docstore: failed-precondition: client has been terminated",
	} {
		assert.True(t, IsCatastrophicInternalFailure(errors.New(msg)), msg)
	}
}

func TestIsCatastrophicInternalFailure_Negative(t *testing.T) {
	assert.False(t, IsCatastrophicInternalFailure(nil))
	assert.False(t, IsCatastrophicInternalFailure(coded("internal", "server error")))
	assert.False(t, IsCatastrophicInternalFailure(coded("unavailable", "backend down")))
	assert.False(t, IsCatastrophicInternalFailure(coded("permission-denied", "unexpected state")))
	assert.False(t, IsCatastrophicInternalFailure(coded("not-found", "internal assertion failed")))
	assert.False(t, IsCatastrophicInternalFailure(coded("storage/unauthorized", "unexpected state")))
}

func TestClassify_GRPCStatus(t *testing.T) {
	st, err := status.New(codes.Unavailable, "backend restarting").WithDetails(
		&errdetails.ErrorInfo{Reason: "BACKEND_RESTART", Domain: "docs.example.com"},
		&errdetails.RetryInfo{RetryDelay: durationpb.New(2 * time.Second)},
	)
	require.NoError(t, err)

	d := New().Classify(fmt.Errorf("get users/1: %w", st.Err()))
	assert.Equal(t, "unavailable", d.Code)
	assert.Equal(t, CategoryNetwork, d.Category)
	assert.True(t, d.Retryable)
	assert.Equal(t, "BACKEND_RESTART", d.TechnicalDetails["reason"])
	assert.Equal(t, "docs.example.com", d.TechnicalDetails["domain"])
	assert.Equal(t, "2s", d.TechnicalDetails["retry_delay"])
	assert.Equal(t, "Unavailable", d.TechnicalDetails["grpc_code"])
}

func TestClassify_ContextErrors(t *testing.T) {
	c := New()

	d := c.Classify(fmt.Errorf("wrapped: %w", context.DeadlineExceeded))
	assert.Equal(t, "deadline-exceeded", d.Code)
	assert.True(t, d.Retryable)

	d = c.Classify(context.Canceled)
	assert.Equal(t, "cancelled", d.Code)
	assert.False(t, d.Retryable)
}

func TestClassify_NilAndFields(t *testing.T) {
	c := New()

	d := c.Classify(nil)
	assert.Equal(t, CategoryUnknown, d.Category)
	assert.Equal(t, "unknown", d.Code)
	assert.NotEmpty(t, d.UserMessage)

	d = c.Classify(coded("aborted", "tx aborted"), Context{Fields: map[string]any{"doc": "users/1"}})
	assert.Equal(t, "users/1", d.TechnicalDetails["doc"])
	assert.Equal(t, "aborted", d.TechnicalDetails["vendor_code"])
}

type panicError struct{}

func (panicError) Error() string { panic("broken Error()") }

func TestClassify_NeverPanics(t *testing.T) {
	c := New()
	var d ErrorDetails
	require.NotPanics(t, func() { d = c.Classify(panicError{}) })
	assert.Equal(t, CategoryUnknown, d.Category)
	assert.Contains(t, d.Message, "classification panicked")
}

func TestClassify_Locales(t *testing.T) {
	err := coded("unavailable", "down")

	en := New().Classify(err)
	fr := New(WithLocale(LocaleFR)).Classify(err)
	de := New().Classify(err, Context{Locale: LocaleDE})
	xx := New(WithLocale("xx")).Classify(err)

	assert.Equal(t, userMessages["unavailable"][LocaleEN], en.UserMessage)
	assert.Equal(t, userMessages["unavailable"][LocaleFR], fr.UserMessage)
	assert.Equal(t, userMessages["unavailable"][LocaleDE], de.UserMessage)
	assert.Equal(t, en.UserMessage, xx.UserMessage)
}

func TestUserMessage_Fallbacks(t *testing.T) {
	assert.Equal(t, UserMessage("not-found", LocaleES), UserMessage("storage/not-found", LocaleES))
	assert.Equal(t, UserMessage("unknown", LocaleEN), UserMessage("totally-new-code", LocaleEN))
	for _, locale := range Locales() {
		for code := range userMessages {
			assert.NotEmpty(t, UserMessage(code, locale), "%s/%s", code, locale)
		}
	}
}

func TestClassify_History(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(WithHistorySize(2), WithNow(func() time.Time { return now }))

	c.Classify(coded("unavailable", "a"))
	c.Classify(coded("not-found", "b"))
	c.Classify(coded("aborted", "c"))

	history := c.History()
	require.Len(t, history, 2)
	assert.Equal(t, "not-found", history[0].Code)
	assert.Equal(t, "aborted", history[1].Code)
	assert.Equal(t, now, history[1].Timestamp)
}

func TestCategoryOf_DoesNotRecord(t *testing.T) {
	before := len(Default.History())
	assert.Equal(t, CategoryNetwork, CategoryOf(coded("unavailable", "x")))
	assert.Equal(t, CategoryPermission, CategoryOf(errors.New("forbidden")))
	assert.Equal(t, CategoryUnknown, CategoryOf(nil))
	assert.Equal(t, before, len(Default.History()))
}

func TestRetryableCodes_IsCopy(t *testing.T) {
	allow := RetryableCodes()
	allow["not-found"] = true
	assert.False(t, IsRetryableCode("not-found"))
	assert.True(t, IsRetryableCode("UNAVAILABLE"))
}
