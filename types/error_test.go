package types

import (
	"errors"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrNoActorsResolved, "actor expression yielded no principals").
		WithCause(root).
		WithInstance("inst-1").
		WithStep("validate").
		WithRetryable(false)

	if GetErrorCode(err) != ErrNoActorsResolved {
		t.Fatalf("expected code %s, got %s", ErrNoActorsResolved, GetErrorCode(err))
	}
	if IsRetryable(err) {
		t.Fatalf("expected non-retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestIsSuspending(t *testing.T) {
	t.Parallel()

	suspending := []ErrorCode{
		ErrNoApplicableTransition,
		ErrUnknownOutcome,
		ErrNoActorsResolved,
		ErrChainFailure,
	}
	for _, code := range suspending {
		if !IsSuspending(NewError(code, "x")) {
			t.Fatalf("expected %s to suspend", code)
		}
	}

	rejected := []ErrorCode{ErrForbidden, ErrInvalidTaskState, ErrRepositoryFailure}
	for _, code := range rejected {
		if IsSuspending(NewError(code, "x")) {
			t.Fatalf("expected %s not to suspend", code)
		}
	}
	if IsSuspending(errors.New("plain")) {
		t.Fatalf("plain errors never suspend")
	}
}
