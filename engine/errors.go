/*
errors.go - Centralized error types for the generation engine

ERROR CATEGORIES:
  1. Input errors - bad selections, reported before any collaborator call
  2. Precondition errors - period/frequency mismatches
  3. Collaborator errors - relation fetch or bulk insert failures
  4. Conflicts - a run for the same firm and period already in progress

Silent skips (no assignee for a pair) are not errors; they are counted in
Summary.Skipped.

SEE ALSO:
  - generator.go: Wraps collaborator failures
  - api/handlers.go: Maps categories to HTTP status codes
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned for malformed period selections.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrFrequencyMismatch is returned when a due date is requested for a
	// period type that does not match the compliance frequency.
	ErrFrequencyMismatch = errors.New("period type does not match compliance frequency")

	// ErrNoClientsSelected is returned when a run resolves to zero clients.
	ErrNoClientsSelected = errors.New("no clients selected")

	// ErrNoActiveStaff is returned when the firm has no active staff to assign.
	ErrNoActiveStaff = errors.New("no active staff available")

	// ErrNoComplianceTypes is returned when nothing in the calendar applies to the period.
	ErrNoComplianceTypes = errors.New("no compliance types apply to the selected period")

	// ErrClientNotFound is returned when an explicitly selected client does not exist.
	ErrClientNotFound = errors.New("client not found")

	// ErrStaffNotFound is returned when a referenced staff member does not exist.
	ErrStaffNotFound = errors.New("staff not found")

	// ErrComplianceTypeNotFound is returned when a pre-selected code is not in the calendar.
	ErrComplianceTypeNotFound = errors.New("compliance type not found")

	// ErrCollaborator marks failures of the storage collaborators.
	ErrCollaborator = errors.New("collaborator failure")

	// ErrGenerationInProgress is returned when another run holds the lock for
	// the same firm and period.
	ErrGenerationInProgress = errors.New("generation already in progress for this period")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidPeriodError describes why a period selection was rejected.
type InvalidPeriodError struct {
	Period Period
	Reason string
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("invalid period: %s", e.Reason)
}

func (e *InvalidPeriodError) Unwrap() error { return ErrInvalidPeriod }

// FrequencyMismatchError names the compliance type and period that do not fit.
type FrequencyMismatchError struct {
	Code       string
	Frequency  Frequency
	PeriodType PeriodType
}

func (e *FrequencyMismatchError) Error() string {
	return fmt.Sprintf("compliance %s is %s and cannot be generated for a %s period",
		e.Code, e.Frequency, e.PeriodType)
}

func (e *FrequencyMismatchError) Unwrap() error { return ErrFrequencyMismatch }

// CollaboratorError wraps a failure returned by a storage collaborator.
type CollaboratorError struct {
	Op  string // "fetch relations", "create tasks", ...
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the category and the cause.
func (e *CollaboratorError) Unwrap() []error { return []error{ErrCollaborator, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsInputError returns true if the error is due to the operator's selection.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrFrequencyMismatch) ||
		errors.Is(err, ErrNoClientsSelected) ||
		errors.Is(err, ErrNoActiveStaff) ||
		errors.Is(err, ErrNoComplianceTypes)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrStaffNotFound) ||
		errors.Is(err, ErrComplianceTypeNotFound)
}

// IsConflict returns true if the run clashed with another run.
func IsConflict(err error) bool {
	return errors.Is(err, ErrGenerationInProgress)
}
