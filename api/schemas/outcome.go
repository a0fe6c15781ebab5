package schemas

import (
	"errors"
	"fmt"
)

// FailKind enumerates every way a core operation can fail. The taxonomy is
// closed: the pool and dispatcher layers add only NotFound and Validation and
// pass session failures through untouched.
type FailKind string

const (
	FailLogin       FailKind = "LOGIN_FAILED"
	FailNotLoggedIn FailKind = "NOT_LOGGED_IN"
	FailStepTimeout FailKind = "STEP_TIMEOUT"
	FailExtraction  FailKind = "EXTRACTION_FAILED"
	FailNotFound    FailKind = "NOT_FOUND"
	FailValidation  FailKind = "VALIDATION_FAILED"
	FailInternal    FailKind = "INTERNAL"
)

// Sentinel errors emitted by the UI step layer. The session boundary maps
// them onto FailKind; nothing below the session layer knows about Outcome.
var (
	// ErrStepTimeout marks a UI wait that exceeded its explicit bound.
	ErrStepTimeout = errors.New("ui step timed out")
	// ErrExtraction marks a step whose interaction succeeded but whose
	// confirming read could not be completed. Treated identically to a
	// timeout: only observed state is trusted.
	ErrExtraction = errors.New("ui extraction failed")
)

// Failure is the structured, data-not-exception form every error takes once
// it crosses the session boundary. It implements error so internal layers can
// return it directly.
type Failure struct {
	Kind      FailKind `json:"kind"`
	AccountID string   `json:"account_id,omitempty"`
	Op        string   `json:"op,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func (f *Failure) Error() string {
	if f.AccountID != "" {
		return fmt.Sprintf("%s: %s (account %s): %s", f.Kind, f.Op, f.AccountID, f.Message)
	}
	return fmt.Sprintf("%s: %s: %s", f.Kind, f.Op, f.Message)
}

// NewFailure builds a Failure for the given operation.
func NewFailure(kind FailKind, accountID, op, msg string) *Failure {
	return &Failure{Kind: kind, AccountID: accountID, Op: op, Message: msg}
}

// FailureFrom normalizes an arbitrary error into a Failure, classifying the
// step-layer sentinels and passing existing Failures through unchanged.
func FailureFrom(err error, accountID, op string) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	kind := FailInternal
	switch {
	case errors.Is(err, ErrStepTimeout):
		kind = FailStepTimeout
	case errors.Is(err, ErrExtraction):
		kind = FailExtraction
	}
	return &Failure{Kind: kind, AccountID: accountID, Op: op, Message: err.Error()}
}

// Outcome is the uniform result type returned for every operation. Exactly
// one of Data/Failure is meaningful; Command echoes the triggering command on
// action outcomes.
type Outcome struct {
	OK      bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
	Command *Command `json:"action,omitempty"`
}

// Succeed wraps a payload in a successful outcome.
func Succeed(data any) Outcome { return Outcome{OK: true, Data: data} }

// Fail wraps a failure in an unsuccessful outcome.
func Fail(f *Failure) Outcome { return Outcome{OK: false, Failure: f} }
