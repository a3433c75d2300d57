package models

import (
	"context"
)

// ConcurrencyMode governs how executions of one action are serialized
type ConcurrencyMode string

// ConcurrencyMode constants
const (
	// ConcurrencyLocks takes an optimistic single-flight lock on the target
	// entity. The atomic conditional update in the store is the actual
	// guarantee, so it holds across processes sharing one store.
	ConcurrencyLocks ConcurrencyMode = "locks"
	// ConcurrencyQueue funnels every invocation of the action through one
	// FIFO worker with concurrency 1. Process-local only: a second process
	// sharing the store gets no serialization from this mode.
	ConcurrencyQueue ConcurrencyMode = "queue"
	// ConcurrencyNone runs with no serialization and no history or error
	// recording. Intended for lightweight idempotent polling actions.
	ConcurrencyNone ConcurrencyMode = "none"
)

// IsValidConcurrencyMode checks if a given mode is one of the valid constants
func IsValidConcurrencyMode(mode ConcurrencyMode) bool {
	switch mode {
	case ConcurrencyLocks, ConcurrencyQueue, ConcurrencyNone:
		return true
	default:
		return false
	}
}

// Role identifies a caller role permitted to invoke an action
type Role string

// Role constants
const (
	RoleStudent    Role = "student"
	RoleTutor      Role = "tutor"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// ParamKind selects which resolved value is placed at a wired parameter position
type ParamKind string

// ParamKind constants. The instance kinds pass a single pointer when exactly
// one ancestor was resolved and a slice when the ancestor set has several
// members; at the level being executed the value is always a single pointer.
const (
	ParamArgument       ParamKind = "argument"
	ParamCourse         ParamKind = "course"
	ParamPhase          ParamKind = "phase"
	ParamTask           ParamKind = "task"
	ParamLogger         ParamKind = "logger"
	ParamCourseInstance ParamKind = "course_instance"
	ParamPhaseInstance  ParamKind = "phase_instance"
	ParamTaskInstance   ParamKind = "task_instance"
)

// ParamSpec wires one position of the business callable's parameter list
type ParamSpec struct {
	Index int       `json:"index"`
	Kind  ParamKind `json:"kind"`
}

// Callable is the opaque business logic body registered under an action name.
// Params is assembled from the descriptor's ParamSpec wiring.
type Callable func(ctx context.Context, params []any) (any, error)

// ActionContext carries the candidate entity and entry parameters handed to a
// descriptor's ShouldRun predicate during schedule fan-out. Only the fields
// matching the action's level and variant are populated.
type ActionContext struct {
	Level  Level
	Action string
	Params map[string]any

	Course *Course
	Phase  *Phase
	Task   *Task

	CourseInstance *CourseInstance
	PhaseInstance  *PhaseInstance
	TaskInstance   *TaskInstance
}

// ShouldRunFunc decides per candidate entity whether a scheduled action fires.
// A nil predicate means the action always runs.
type ShouldRunFunc func(c *ActionContext) bool

// ActionDescriptor declares one registered action. Descriptors are immutable
// once handed to the registry; name collisions within a scope are registration
// errors, never runtime ones.
type ActionDescriptor struct {
	Name                string
	AllowedRoles        []Role
	Instance            bool // Targets the per-student instance rather than the definition
	Concurrency         ConcurrencyMode
	DisableExternalAuth bool
	Params              []ParamSpec
	ShouldRun           ShouldRunFunc
	Handler             Callable
}
