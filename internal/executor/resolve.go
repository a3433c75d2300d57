package executor

import (
	"context"
	"fmt"

	"github.com/ternarybob/cursus/internal/models"
)

// chain holds the resolved ancestor values for one invocation. Definition
// fields are populated on both paths: the instance path reaches the
// definitions by following the back-references from the target instance.
type chain struct {
	course *models.Course
	phase  *models.Phase
	task   *models.Task

	// Target-level instance (single value at the level being executed)
	courseInstance *models.CourseInstance
	phaseInstance  *models.PhaseInstance
	taskInstance   *models.TaskInstance

	// Ancestor instance sets (usually one member, possibly more for merged
	// instances)
	courseInstances []*models.CourseInstance
	phaseInstances  []*models.PhaseInstance

	// courseID scopes error records. Set as soon as the course reference is
	// known, even when a later hop fails.
	courseID string
}

// resolveDefinitionChain walks one level of parent resolution per hop:
// task -> phase -> course, each hop requiring blocked == false.
func (e *Executor) resolveDefinitionChain(ctx context.Context, entityID string) (*chain, error) {
	ch := &chain{}

	switch e.level {
	case models.LevelCourse:
		course, err := e.entities.GetCourse(ctx, entityID)
		if err != nil {
			return ch, fmt.Errorf("course %s: %w", entityID, models.ErrEntityUnavailable)
		}
		ch.course = course
		ch.courseID = course.ID

	case models.LevelPhase:
		phase, err := e.entities.GetPhase(ctx, entityID)
		if err != nil {
			return ch, fmt.Errorf("phase %s: %w", entityID, models.ErrEntityUnavailable)
		}
		ch.phase = phase
		ch.courseID = phase.CourseID

		course, err := e.resolveCourse(ctx, phase.CourseID)
		if err != nil {
			return ch, err
		}
		ch.course = course

	case models.LevelTask:
		task, err := e.entities.GetTask(ctx, entityID)
		if err != nil {
			return ch, fmt.Errorf("task %s: %w", entityID, models.ErrEntityUnavailable)
		}
		ch.task = task

		phase, err := e.entities.GetPhase(ctx, task.PhaseID)
		if err != nil {
			return ch, fmt.Errorf("phase %s: %w", task.PhaseID, models.ErrAncestorUnavailable)
		}
		if phase.Blocked {
			return ch, fmt.Errorf("phase %s is blocked: %w", phase.ID, models.ErrAncestorUnavailable)
		}
		ch.phase = phase
		ch.courseID = phase.CourseID

		course, err := e.resolveCourse(ctx, phase.CourseID)
		if err != nil {
			return ch, err
		}
		ch.course = course
	}

	return ch, nil
}

func (e *Executor) resolveCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := e.entities.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("course %s: %w", courseID, models.ErrAncestorUnavailable)
	}
	if course.Blocked {
		return nil, fmt.Errorf("course %s is blocked: %w", course.ID, models.ErrAncestorUnavailable)
	}
	return course, nil
}

// resolveInstanceChain walks the instance parent sets upward. Every set must
// resolve non-empty with no blocked member; the definitions are then reached
// through the instance back-references for the course/phase/task param kinds.
func (e *Executor) resolveInstanceChain(ctx context.Context, entityID string) (*chain, error) {
	ch := &chain{}

	switch e.level {
	case models.LevelCourse:
		instance, err := e.entities.GetCourseInstance(ctx, entityID)
		if err != nil {
			return ch, fmt.Errorf("course instance %s: %w", entityID, models.ErrEntityUnavailable)
		}
		ch.courseInstance = instance
		ch.courseID = instance.CourseID

		course, err := e.entities.GetCourse(ctx, instance.CourseID)
		if err != nil {
			return ch, fmt.Errorf("course %s: %w", instance.CourseID, models.ErrAncestorUnavailable)
		}
		ch.course = course

	case models.LevelPhase:
		instance, err := e.entities.GetPhaseInstance(ctx, entityID)
		if err != nil {
			return ch, fmt.Errorf("phase instance %s: %w", entityID, models.ErrEntityUnavailable)
		}
		ch.phaseInstance = instance

		ch.courseInstances, err = e.resolveCourseInstances(ctx, instance.CourseInstanceIDs)
		if err != nil {
			return ch, err
		}
		ch.courseID = ch.courseInstances[0].CourseID

		phase, err := e.entities.GetPhase(ctx, instance.PhaseID)
		if err != nil {
			return ch, fmt.Errorf("phase %s: %w", instance.PhaseID, models.ErrAncestorUnavailable)
		}
		ch.phase = phase

		course, err := e.entities.GetCourse(ctx, phase.CourseID)
		if err != nil {
			return ch, fmt.Errorf("course %s: %w", phase.CourseID, models.ErrAncestorUnavailable)
		}
		ch.course = course
		ch.courseID = course.ID

	case models.LevelTask:
		instance, err := e.entities.GetTaskInstance(ctx, entityID)
		if err != nil {
			return ch, fmt.Errorf("task instance %s: %w", entityID, models.ErrEntityUnavailable)
		}
		ch.taskInstance = instance

		ch.phaseInstances, err = e.resolvePhaseInstances(ctx, instance.PhaseInstanceIDs)
		if err != nil {
			return ch, err
		}

		// Union of the phase instances' parent sets, order-preserving
		seen := make(map[string]struct{})
		courseInstanceIDs := make([]string, 0, len(ch.phaseInstances))
		for _, pi := range ch.phaseInstances {
			for _, id := range pi.CourseInstanceIDs {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					courseInstanceIDs = append(courseInstanceIDs, id)
				}
			}
		}
		ch.courseInstances, err = e.resolveCourseInstances(ctx, courseInstanceIDs)
		if err != nil {
			return ch, err
		}
		ch.courseID = ch.courseInstances[0].CourseID

		task, err := e.entities.GetTask(ctx, instance.TaskID)
		if err != nil {
			return ch, fmt.Errorf("task %s: %w", instance.TaskID, models.ErrAncestorUnavailable)
		}
		ch.task = task

		phase, err := e.entities.GetPhase(ctx, task.PhaseID)
		if err != nil {
			return ch, fmt.Errorf("phase %s: %w", task.PhaseID, models.ErrAncestorUnavailable)
		}
		ch.phase = phase

		course, err := e.entities.GetCourse(ctx, phase.CourseID)
		if err != nil {
			return ch, fmt.Errorf("course %s: %w", phase.CourseID, models.ErrAncestorUnavailable)
		}
		ch.course = course
		ch.courseID = course.ID
	}

	return ch, nil
}

func (e *Executor) resolveCourseInstances(ctx context.Context, ids []string) ([]*models.CourseInstance, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("course instance set is empty: %w", models.ErrAncestorUnavailable)
	}
	instances := make([]*models.CourseInstance, 0, len(ids))
	for _, id := range ids {
		instance, err := e.entities.GetCourseInstance(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("course instance %s: %w", id, models.ErrAncestorUnavailable)
		}
		if instance.Blocked {
			return nil, fmt.Errorf("course instance %s is blocked: %w", id, models.ErrAncestorUnavailable)
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

func (e *Executor) resolvePhaseInstances(ctx context.Context, ids []string) ([]*models.PhaseInstance, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("phase instance set is empty: %w", models.ErrAncestorUnavailable)
	}
	instances := make([]*models.PhaseInstance, 0, len(ids))
	for _, id := range ids {
		instance, err := e.entities.GetPhaseInstance(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("phase instance %s: %w", id, models.ErrAncestorUnavailable)
		}
		if instance.Blocked {
			return nil, fmt.Errorf("phase instance %s is blocked: %w", id, models.ErrAncestorUnavailable)
		}
		instances = append(instances, instance)
	}
	return instances, nil
}
