package consultation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when a draft without a chief complaint is
	// turned into a payload.
	ErrNotReady = errors.New("consultation not ready: chief complaint is required")

	ErrUnknownFrequency = errors.New("unknown frequency code")
	ErrUnknownField     = errors.New("unknown field")

	// ErrNotPermitted is returned when the signed-in user may not record
	// consultations.
	ErrNotPermitted = errors.New("only a signed-in doctor can record a consultation")
)

// OutOfRangeError reports an index outside a draft list.
type OutOfRangeError struct {
	List  string
	Index int
	Len   int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s index %d out of range [0,%d)", e.List, e.Index, e.Len)
}

// InvalidTransitionError reports a workflow operation that is not allowed
// from the current step.
type InvalidTransitionError struct {
	Op   string
	From Step
	To   Step
}

func (e *InvalidTransitionError) Error() string {
	if e.Op == "jump" {
		return fmt.Sprintf("cannot jump from %s to %s", e.From, e.To)
	}
	return fmt.Sprintf("cannot %s from %s", e.Op, e.From)
}
