package interfaces

import (
	"context"

	"github.com/ternarybob/cursus/internal/models"
)

// EntityStorage is the persistence boundary for the six entity collections.
// AcquireLock is the one atomic conditional-update primitive: it is the
// cross-process guarantee behind the Locks concurrency mode.
type EntityStorage interface {
	// Definitions
	SaveCourse(ctx context.Context, course *models.Course) error
	GetCourse(ctx context.Context, id string) (*models.Course, error)
	ListCourses(ctx context.Context, courseType string) ([]*models.Course, error)

	SavePhase(ctx context.Context, phase *models.Phase) error
	GetPhase(ctx context.Context, id string) (*models.Phase, error)
	ListPhases(ctx context.Context, courseID string, phaseType string) ([]*models.Phase, error)

	SaveTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, phaseIDs []string, taskType string) ([]*models.Task, error)

	// Instances
	SaveCourseInstance(ctx context.Context, instance *models.CourseInstance) error
	GetCourseInstance(ctx context.Context, id string) (*models.CourseInstance, error)
	// ListCourseInstances returns instances of one course matching every
	// filter term. Terms on exported struct fields compile onto the store
	// query; remaining terms match against the instance attribute map.
	ListCourseInstances(ctx context.Context, courseID string, filter map[string]any) ([]*models.CourseInstance, error)

	SavePhaseInstance(ctx context.Context, instance *models.PhaseInstance) error
	GetPhaseInstance(ctx context.Context, id string) (*models.PhaseInstance, error)
	// ListPhaseInstances returns instances whose parent set intersects the
	// given course instance ids, optionally narrowed by type.
	ListPhaseInstances(ctx context.Context, courseInstanceIDs []string, phaseType string) ([]*models.PhaseInstance, error)

	SaveTaskInstance(ctx context.Context, instance *models.TaskInstance) error
	GetTaskInstance(ctx context.Context, id string) (*models.TaskInstance, error)
	ListTaskInstances(ctx context.Context, phaseInstanceIDs []string, taskType string) ([]*models.TaskInstance, error)

	// Guard primitives. AcquireLock matches id AND !locked AND !blocked and
	// sets locked=true in the same transaction; zero matches fail with
	// models.ErrEntityUnavailable. ReleaseLock unconditionally clears the
	// flag for that id only and is idempotent.
	AcquireLock(ctx context.Context, kind models.EntityKind, id string) error
	ReleaseLock(ctx context.Context, kind models.EntityKind, id string) error

	// AppendHistory appends one entry to the entity's immutable history trail
	AppendHistory(ctx context.Context, kind models.EntityKind, id string, entry models.HistoryEntry) error

	// ResetAllLocks clears every locked flag across all six collections.
	// Startup recovery invariant: stale locks from a crashed process must not
	// survive a restart. Returns the number of entities cleared.
	ResetAllLocks(ctx context.Context) (int, error)
}
