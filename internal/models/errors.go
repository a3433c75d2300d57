package models

import "errors"

// Sentinel errors for the action engine. Callers branch with errors.Is.
var (
	// ErrEntityUnavailable: the target entity is missing, blocked, or already
	// locked at guard acquisition. No history entry is written because the
	// entity could not be loaded.
	ErrEntityUnavailable = errors.New("entity unavailable")

	// ErrAncestorUnavailable: an ancestor in the resolution chain is missing,
	// blocked, or (on the instance path) the ancestor set resolved empty.
	ErrAncestorUnavailable = errors.New("ancestor unavailable")

	// ErrInvalidParamKind: an unknown parameter wiring kind. Indicates a
	// registration bug, not a runtime condition.
	ErrInvalidParamKind = errors.New("invalid param kind")

	// ErrDuplicateAction: an action name collided within its scope at
	// registration time.
	ErrDuplicateAction = errors.New("action already registered")

	// ErrUnknownAction: lookup of an unregistered action.
	ErrUnknownAction = errors.New("unknown action")

	// ErrInvalidActionPath: a dotted action name with a segment that does not
	// match the declaration tree.
	ErrInvalidActionPath = errors.New("invalid action path")

	// ErrScheduleRunning: a trigger arrived while the schedule's previous
	// firing was still in flight.
	ErrScheduleRunning = errors.New("schedule is already running")

	// ErrScheduleNotFound: schedule id not present in the store.
	ErrScheduleNotFound = errors.New("schedule not found")
)
