package classify

// Every piece of vendor-specific matching lives in this file. When the SDK
// changes its error spelling, only these tables need updating.

// codeRule maps keywords found in a vendor code to a category. Single-word
// keywords match whole code tokens; hyphenated keywords match substrings.
type codeRule struct {
	keywords []string
	category Category
}

// codeRules is evaluated in order; the first match wins.
var codeRules = []codeRule{
	{[]string{"network", "unavailable", "deadline"}, CategoryNetwork},
	{[]string{"auth", "unauthenticated"}, CategoryAuth},
	{[]string{"permission", "unauthorized"}, CategoryPermission},
	{[]string{"invalid", "failed-precondition"}, CategoryValidation},
	{[]string{"quota", "resource-exhausted"}, CategoryQuota},
	{[]string{"not-found"}, CategoryNotFound},
	{[]string{"already-exists", "conflict"}, CategoryConflict},
	{[]string{"internal", "data-loss"}, CategoryServer},
}

// messageRule classifies errors that carry no vendor code. The synthesized
// code feeds the retryable allowlist and the user message table.
type messageRule struct {
	substrings []string
	category   Category
	code       string
}

var messageRules = []messageRule{
	{[]string{"deadline", "timeout", "timed out"}, CategoryNetwork, "deadline-exceeded"},
	{[]string{"network", "connection", "offline", "unreachable", "eof"}, CategoryNetwork, "unavailable"},
	{[]string{"unauthenticated", "not signed in", "sign in", "token expired"}, CategoryAuth, "unauthenticated"},
	{[]string{"permission", "forbidden", "access denied", "unauthorized"}, CategoryPermission, "permission-denied"},
	{[]string{"not found", "no such"}, CategoryNotFound, "not-found"},
	{[]string{"quota", "too many requests", "rate limit"}, CategoryQuota, "resource-exhausted"},
	{[]string{"invalid", "required", "malformed"}, CategoryValidation, "invalid-argument"},
	{[]string{"already exists", "conflict", "duplicate"}, CategoryConflict, "already-exists"},
}

// retryableCodes is the allowlist of transient codes.
var retryableCodes = map[string]bool{
	"aborted":                      true,
	"deadline-exceeded":            true,
	"internal":                     true,
	"resource-exhausted":           true,
	"unavailable":                  true,
	"auth/network-request-failed":  true,
	"storage/retry-limit-exceeded": true,
}

// criticalCodes always produce SeverityCritical.
var criticalCodes = []string{"data-loss", "internal"}

// catastrophicSignatures identify vendor-internal assertion failures that
// only a full client reinitialization clears. Matched case-insensitively
// against the error text.
var catastrophicSignatures = []string{
	// internal assertion markers
	"internal assertion failed",
	"unexpected state",
	// known incident identifiers
	"id: ca9",
	"id: b815",
	// watch/target conflicts
	"target id already exists",
	"watch target conflict",
	// a client left terminated by an interrupted rebuild
	"client has been terminated",
}

// suggestedActions holds operator-facing hints per category.
var suggestedActions = map[Category]string{
	CategoryNetwork:    "check_connection",
	CategoryAuth:       "sign_in_again",
	CategoryPermission: "request_access",
	CategoryValidation: "fix_input",
	CategoryQuota:      "retry_later",
	CategoryNotFound:   "refresh_view",
	CategoryConflict:   "reload_and_merge",
	CategoryServer:     "retry_later",
}
