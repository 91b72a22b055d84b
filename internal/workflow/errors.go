// Package workflow implements the template-to-instance instantiation engine,
// the step and process state machines, and the progress calculator.
package workflow

import (
	"errors"
	"fmt"

	"github.com/fiecsoft/procflow/internal/model"
)

// Sentinel errors for core operations. Callers match them with errors.Is;
// structured variants below wrap them and add context via errors.As.
var (
	ErrNotFound             = errors.New("entity not found")
	ErrTemplateNotPublished = errors.New("template is not published")
	ErrInactiveUser         = errors.New("user is inactive")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrSkipRequiredStep     = errors.New("cannot skip a required step")
	ErrUnauthorizedReviewer = errors.New("caller does not hold the reviewer role")
	ErrInstanceArchived     = errors.New("instance is archived")
	ErrVersionConflict      = errors.New("concurrent modification")
)

// ValidationError reports a malformed catalog definition.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Entity, e.Field, e.Reason)
}

// StepTransitionError reports an illegal state × action combination on a
// step. It unwraps to ErrInvalidTransition (or ErrSkipRequiredStep when the
// action was a skip on a required step).
type StepTransitionError struct {
	StepID string
	From   model.StepStatus
	Action model.StepAction
	reason error
}

func (e *StepTransitionError) Error() string {
	return fmt.Sprintf("step %s: cannot %s from %s: %v", e.StepID, e.Action, e.From, e.reason)
}

func (e *StepTransitionError) Unwrap() error { return e.reason }

// ProcessTransitionError reports an illegal process-level transition.
type ProcessTransitionError struct {
	InstanceID string
	From       model.ProcessState
	Action     string
	reason     error
}

func (e *ProcessTransitionError) Error() string {
	return fmt.Sprintf("process %s: cannot %s from %s: %v", e.InstanceID, e.Action, e.From, e.reason)
}

func (e *ProcessTransitionError) Unwrap() error { return e.reason }
