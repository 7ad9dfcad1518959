package recovery

import (
	"context"

	"github.com/vietddude/docsync/internal/resilience/classify"
)

// Recoverer is the part of the Orchestrator WithRecovery needs.
type Recoverer interface {
	Recover(ctx context.Context) bool
}

// WithRecovery runs op. If it fails with a catastrophic internal failure,
// recovery is requested and, when it succeeds, op runs exactly once more.
// Any remaining failure yields the fallback with a nil error when one is
// given, and the error otherwise. Callers that need to know a fallback was
// served use Run.
func WithRecovery[T any](
	ctx context.Context,
	r Recoverer,
	op func(ctx context.Context) (T, error),
	fallback ...T,
) (T, error) {
	result, _, err := Run(ctx, r, op)
	if err == nil {
		return result, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	var zero T
	return zero, err
}

// Outcome describes what Run did about a failure.
type Outcome struct {
	Catastrophic bool
	// Attempted is set when recovery was requested from the Recoverer.
	Attempted bool
	// Recovered is set when the Recoverer rebuilt the client.
	Recovered bool
}

// Run is WithRecovery without the fallback, additionally reporting whether
// recovery was attempted and succeeded.
func Run[T any](
	ctx context.Context,
	r Recoverer,
	op func(ctx context.Context) (T, error),
) (T, Outcome, error) {
	var out Outcome
	result, err := op(ctx)
	if err == nil {
		return result, out, nil
	}
	if !classify.IsCatastrophicInternalFailure(err) {
		return result, out, err
	}

	out.Catastrophic = true
	out.Attempted = true
	if !r.Recover(ctx) {
		return result, out, err
	}
	out.Recovered = true

	result, err = op(ctx)
	return result, out, err
}
