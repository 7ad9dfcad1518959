// Package classify maps opaque error values into an actionable taxonomy and
// detects the narrow signature of catastrophic client-internal failures.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/docsync/internal/core/ring"
	"github.com/vietddude/docsync/internal/resilience/metrics"
)

// Category is the coarse kind of an error.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryAuth       Category = "auth"
	CategoryPermission Category = "permission"
	CategoryValidation Category = "validation"
	CategoryQuota      Category = "quota"
	CategoryNotFound   Category = "not_found"
	CategoryConflict   Category = "conflict"
	CategoryServer     Category = "server"
	CategoryClient     Category = "client"
	CategoryUnknown    Category = "unknown"
)

// Severity ranks how badly an error degrades the client.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorDetails is the classification of a single error. Treat it as
// immutable; TechnicalDetails is a private copy.
type ErrorDetails struct {
	Category         Category       `json:"category"`
	Severity         Severity       `json:"severity"`
	Code             string         `json:"code"`
	Message          string         `json:"message"`
	UserMessage      string         `json:"user_message"`
	Retryable        bool           `json:"retryable"`
	Catastrophic     bool           `json:"catastrophic"`
	SuggestedAction  string         `json:"suggested_action,omitempty"`
	Operation        string         `json:"operation,omitempty"`
	TechnicalDetails map[string]any `json:"technical_details,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// Context adds caller information to a classification.
type Context struct {
	Operation string
	// Locale overrides the classifier's locale for the user message.
	Locale string
	Fields map[string]any
}

const defaultHistorySize = 50

// Classifier classifies errors and keeps a bounded history of the results.
type Classifier struct {
	locale  string
	history *ring.Buffer[ErrorDetails]
	log     *slog.Logger
	now     func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLocale sets the default locale for user messages.
func WithLocale(locale string) Option {
	return func(c *Classifier) {
		if locale != "" {
			c.locale = locale
		}
	}
}

// WithHistorySize bounds the classification history.
func WithHistorySize(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.history = ring.New[ErrorDetails](n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.log = l
		}
	}
}

// WithNow overrides the time source used for timestamps.
func WithNow(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		locale:  DefaultLocale,
		history: ring.New[ErrorDetails](defaultHistorySize),
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Default is the process-wide classifier used when none is injected.
var Default = New()

// Classify classifies err with the Default classifier.
func Classify(err error, opctx ...Context) ErrorDetails {
	return Default.Classify(err, opctx...)
}

// Classify maps err into ErrorDetails. It never panics.
func (c *Classifier) Classify(err error, opctx ...Context) (details ErrorDetails) {
	var cctx Context
	if len(opctx) > 0 {
		cctx = opctx[0]
	}

	defer func() {
		if r := recover(); r != nil {
			details = c.fallback(fmt.Sprintf("classification panicked: %v", r), cctx)
		}
		c.record(details)
	}()

	if err == nil {
		return c.fallback("nil error", cctx)
	}

	details = ErrorDetails{
		Message:          err.Error(),
		Operation:        cctx.Operation,
		Timestamp:        c.now(),
		TechnicalDetails: map[string]any{"raw": err.Error(), "type": fmt.Sprintf("%T", err)},
	}

	code, extra := extractCode(err)
	maps.Copy(details.TechnicalDetails, extra)
	maps.Copy(details.TechnicalDetails, cctx.Fields)

	if code != "" {
		details.Code = code
		details.Category = categoryForCode(code)
		details.TechnicalDetails["vendor_code"] = code
	} else {
		details.Category, details.Code = categoryForMessage(err.Error())
	}

	details.Severity = severityFor(details.Code, details.Category)
	details.Catastrophic = IsCatastrophicInternalFailure(err)
	details.Retryable = retryableCodes[details.Code]
	details.SuggestedAction = suggestedActions[details.Category]
	if details.Catastrophic {
		details.SuggestedAction = "reinitialize_client"
	}

	locale := c.locale
	if cctx.Locale != "" {
		locale = cctx.Locale
	}
	details.UserMessage = UserMessage(details.Code, locale)
	return details
}

func (c *Classifier) fallback(msg string, cctx Context) ErrorDetails {
	locale := c.locale
	if cctx.Locale != "" {
		locale = cctx.Locale
	}
	return ErrorDetails{
		Category:         CategoryUnknown,
		Severity:         SeverityLow,
		Code:             "unknown",
		Message:          msg,
		UserMessage:      UserMessage("unknown", locale),
		Operation:        cctx.Operation,
		TechnicalDetails: map[string]any{},
		Timestamp:        c.now(),
	}
}

func (c *Classifier) record(d ErrorDetails) {
	c.history.Push(d)
	metrics.ErrorsClassified.WithLabelValues(string(d.Category), string(d.Severity)).Inc()
	if d.Catastrophic {
		metrics.CatastrophicFailures.Inc()
	}
	c.log.Debug("Classified error",
		"operation", d.Operation,
		"code", d.Code,
		"category", d.Category,
		"severity", d.Severity,
		"retryable", d.Retryable,
		"catastrophic", d.Catastrophic,
		"details", d.TechnicalDetails,
	)
}

// History returns recent classifications, oldest first.
func (c *Classifier) History() []ErrorDetails {
	return c.history.Items()
}

// CategoryOf returns the category of err without recording a
// classification.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	if code, _ := extractCode(err); code != "" {
		return categoryForCode(code)
	}
	category, _ := categoryForMessage(err.Error())
	return category
}

// IsRetryableCode reports whether code is in the transient allowlist.
func IsRetryableCode(code string) bool {
	return retryableCodes[normalizeCode(code)]
}

// RetryableCodes returns a copy of the transient allowlist.
func RetryableCodes() map[string]bool {
	return maps.Clone(retryableCodes)
}

// IsCatastrophicInternalFailure reports whether err carries one of the fixed
// vendor-internal failure signatures. It is deliberately independent of
// Category and Severity: ordinary server errors never match.
func IsCatastrophicInternalFailure(err error) bool {
	if err == nil {
		return false
	}
	code, _ := extractCode(err)
	if code == "permission-denied" || code == "not-found" || strings.HasSuffix(code, "/unauthorized") {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range catastrophicSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// grpcCodeNames maps gRPC canonical codes to vendor spelling.
var grpcCodeNames = map[codes.Code]string{
	codes.Canceled:           "cancelled",
	codes.Unknown:            "unknown",
	codes.InvalidArgument:    "invalid-argument",
	codes.DeadlineExceeded:   "deadline-exceeded",
	codes.NotFound:           "not-found",
	codes.AlreadyExists:      "already-exists",
	codes.PermissionDenied:   "permission-denied",
	codes.ResourceExhausted:  "resource-exhausted",
	codes.FailedPrecondition: "failed-precondition",
	codes.Aborted:            "aborted",
	codes.OutOfRange:         "out-of-range",
	codes.Unimplemented:      "unimplemented",
	codes.Internal:           "internal",
	codes.Unavailable:        "unavailable",
	codes.DataLoss:           "data-loss",
	codes.Unauthenticated:    "unauthenticated",
}

// extractCode finds a vendor code on err, returning it normalized together
// with any structured details it carries.
func extractCode(err error) (string, map[string]any) {
	extra := map[string]any{}

	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := normalizeCode(coded.Code()); code != "" {
			return code, extra
		}
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		for _, d := range st.Details() {
			switch v := d.(type) {
			case *errdetails.ErrorInfo:
				extra["reason"] = v.GetReason()
				extra["domain"] = v.GetDomain()
				if md := v.GetMetadata(); len(md) > 0 {
					extra["metadata"] = maps.Clone(md)
				}
			case *errdetails.RetryInfo:
				extra["retry_delay"] = v.GetRetryDelay().AsDuration().String()
			case *errdetails.QuotaFailure:
				extra["quota_violations"] = len(v.GetViolations())
			}
		}
		extra["grpc_code"] = st.Code().String()
		return grpcCodeNames[st.Code()], extra
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline-exceeded", extra
	case errors.Is(err, context.Canceled):
		return "cancelled", extra
	}
	return "", extra
}

func normalizeCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	return strings.ReplaceAll(code, "_", "-")
}

func codeTokens(code string) []string {
	return strings.FieldsFunc(code, func(r rune) bool {
		return r == '/' || r == '-' || r == '_'
	})
}

func matchesKeyword(code string, tokens []string, kw string) bool {
	if strings.Contains(kw, "-") {
		return strings.Contains(code, kw)
	}
	for _, t := range tokens {
		if t == kw {
			return true
		}
	}
	return false
}

func categoryForCode(code string) Category {
	if code == "unknown" {
		return CategoryUnknown
	}
	tokens := codeTokens(code)
	for _, rule := range codeRules {
		for _, kw := range rule.keywords {
			if matchesKeyword(code, tokens, kw) {
				return rule.category
			}
		}
	}
	return CategoryClient
}

func categoryForMessage(msg string) (Category, string) {
	lower := strings.ToLower(msg)
	for _, rule := range messageRules {
		for _, sub := range rule.substrings {
			if strings.Contains(lower, sub) {
				return rule.category, rule.code
			}
		}
	}
	return CategoryUnknown, "unknown"
}

func severityFor(code string, category Category) Severity {
	tokens := codeTokens(code)
	for _, kw := range criticalCodes {
		if matchesKeyword(code, tokens, kw) {
			return SeverityCritical
		}
	}
	switch category {
	case CategoryNetwork, CategoryServer, CategoryQuota:
		return SeverityHigh
	case CategoryAuth, CategoryPermission:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
