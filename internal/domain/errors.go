package domain

import (
	"fmt"
	"strings"
)

// Finalize validation errors. Each carries enough detail for a human to fix
// the input and unwraps to a sentinel so the HTTP layer can map it with
// errors.Is.

// AlreadyFinalizedError is returned when finalize is attempted on an
// evaluation that already transitioned out of draft.
type AlreadyFinalizedError struct {
	EvaluationID string
}

func (e *AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("evaluation %s already finalized", e.EvaluationID)
}

func (e *AlreadyFinalizedError) Unwrap() error { return ErrConflict }

// IncompleteAnswersError reports how many items were answered against the
// catalog total.
type IncompleteAnswersError struct {
	Answered int
	Required int
}

func (e *IncompleteAnswersError) Error() string {
	return fmt.Sprintf("all %d items must be answered, got %d", e.Required, e.Answered)
}

func (e *IncompleteAnswersError) Unwrap() error { return ErrInvalidArgument }

// MissingObservationsError lists the distinct sections holding "no" answers
// without an observation.
type MissingObservationsError struct {
	SectionIDs    []string
	SectionTitles []string
}

func (e *MissingObservationsError) Error() string {
	return fmt.Sprintf("items answered no require an observation; pending in: %s",
		strings.Join(e.SectionTitles, ", "))
}

func (e *MissingObservationsError) Unwrap() error { return ErrInvalidArgument }
