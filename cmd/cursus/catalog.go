package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cursus/internal/actions"
	"github.com/ternarybob/cursus/internal/common"
	"github.com/ternarybob/cursus/internal/interfaces"
	"github.com/ternarybob/cursus/internal/models"
)

// demoCatalog declares a built-in essay course so a fresh binary has
// something to schedule against: enroll creates course instances, provision
// fans writing work out into phase and task instances, and grade runs over
// the task instances.
func demoCatalog(storage interfaces.StorageManager) []actions.CourseMeta {
	entities := storage.EntityStorage()

	return []actions.CourseMeta{
		{
			Type: "essay",
			Actions: []*models.ActionDescriptor{
				{
					Name:         "enroll",
					AllowedRoles: []models.Role{models.RoleInstructor, models.RoleAdmin},
					Concurrency:  models.ConcurrencyLocks,
					Params: []models.ParamSpec{
						{Index: 0, Kind: models.ParamArgument},
						{Index: 1, Kind: models.ParamCourse},
						{Index: 2, Kind: models.ParamLogger},
					},
					Handler: func(ctx context.Context, params []any) (any, error) {
						args := params[0].(map[string]any)
						course := params[1].(*models.Course)
						logger := params[2].(arbor.ILogger)

						studentID, _ := args["student_id"].(string)
						if studentID == "" {
							return nil, fmt.Errorf("enroll requires a student_id argument")
						}

						instance := &models.CourseInstance{
							ID:         common.NewEntityID("ci_"),
							Type:       course.Type,
							CourseID:   course.ID,
							StudentID:  studentID,
							Attributes: map[string]string{"status": "active"},
						}
						if err := entities.SaveCourseInstance(ctx, instance); err != nil {
							return nil, fmt.Errorf("failed to enroll student %s: %w", studentID, err)
						}

						logger.Info().
							Str("student_id", studentID).
							Str("course_instance_id", instance.ID).
							Msg("Student enrolled")
						return instance.ID, nil
					},
				},
				{
					Name:         "advance",
					AllowedRoles: []models.Role{models.RoleTutor, models.RoleInstructor},
					Instance:     true,
					Concurrency:  models.ConcurrencyLocks,
					ShouldRun: func(c *models.ActionContext) bool {
						return c.CourseInstance.Attributes["status"] == "active"
					},
					Params: []models.ParamSpec{
						{Index: 0, Kind: models.ParamCourseInstance},
						{Index: 1, Kind: models.ParamLogger},
					},
					Handler: func(ctx context.Context, params []any) (any, error) {
						instance := params[0].(*models.CourseInstance)
						logger := params[1].(arbor.ILogger)

						instance.Attributes["last_advanced"] = time.Now().Format(time.RFC3339)
						if err := entities.SaveCourseInstance(ctx, instance); err != nil {
							return nil, err
						}
						logger.Info().
							Str("course_instance_id", instance.ID).
							Str("student_id", instance.StudentID).
							Msg("Course instance advanced")
						return nil, nil
					},
				},
			},
			Phases: []actions.PhaseMeta{
				{
					Type: "writing",
					Actions: []*models.ActionDescriptor{
						{
							Name:         "provision",
							AllowedRoles: []models.Role{models.RoleInstructor, models.RoleAdmin},
							Concurrency:  models.ConcurrencyLocks,
							Params: []models.ParamSpec{
								{Index: 0, Kind: models.ParamPhase},
								{Index: 1, Kind: models.ParamCourse},
								{Index: 2, Kind: models.ParamLogger},
							},
							Handler: func(ctx context.Context, params []any) (any, error) {
								phase := params[0].(*models.Phase)
								course := params[1].(*models.Course)
								logger := params[2].(arbor.ILogger)

								return provisionWriting(ctx, entities, course, phase, logger)
							},
						},
					},
					Tasks: []actions.TaskMeta{
						{
							Type: "draft",
							Actions: []*models.ActionDescriptor{
								{
									Name:         "grade",
									AllowedRoles: []models.Role{models.RoleTutor, models.RoleInstructor},
									Instance:     true,
									Concurrency:  models.ConcurrencyQueue,
									Params: []models.ParamSpec{
										{Index: 0, Kind: models.ParamTaskInstance},
										{Index: 1, Kind: models.ParamCourseInstance},
										{Index: 2, Kind: models.ParamArgument},
										{Index: 3, Kind: models.ParamLogger},
									},
									Handler: func(ctx context.Context, params []any) (any, error) {
										instance := params[0].(*models.TaskInstance)
										logger := params[3].(arbor.ILogger)

										logger.Info().
											Str("task_instance_id", instance.ID).
											Msg("Draft graded")
										return "pass", nil
									},
								},
								{
									Name:        "poll",
									Concurrency: models.ConcurrencyNone,
									Params: []models.ParamSpec{
										{Index: 0, Kind: models.ParamTask},
										{Index: 1, Kind: models.ParamLogger},
									},
									Handler: func(ctx context.Context, params []any) (any, error) {
										task := params[0].(*models.Task)
										logger := params[1].(arbor.ILogger)

										logger.Debug().Str("task_id", task.ID).Msg("Draft task polled")
										return nil, nil
									},
								},
							},
						},
					},
				},
			},
		},
	}
}

// provisionWriting creates one phase instance per active course instance and
// a draft task instance under each.
func provisionWriting(ctx context.Context, entities interfaces.EntityStorage, course *models.Course, phase *models.Phase, logger arbor.ILogger) (any, error) {
	courseInstances, err := entities.ListCourseInstances(ctx, course.ID, map[string]any{"status": "active"})
	if err != nil {
		return nil, fmt.Errorf("failed to list course instances: %w", err)
	}

	tasks, err := entities.ListTasks(ctx, []string{phase.ID}, "draft")
	if err != nil {
		return nil, fmt.Errorf("failed to list draft tasks: %w", err)
	}

	created := 0
	for _, ci := range courseInstances {
		phaseInstance := &models.PhaseInstance{
			ID:                common.NewEntityID("pi_"),
			Type:              phase.Type,
			PhaseID:           phase.ID,
			CourseInstanceIDs: []string{ci.ID},
		}
		if err := entities.SavePhaseInstance(ctx, phaseInstance); err != nil {
			return nil, fmt.Errorf("failed to create phase instance for %s: %w", ci.ID, err)
		}
		created++

		for _, task := range tasks {
			taskInstance := &models.TaskInstance{
				ID:               common.NewEntityID("ti_"),
				Type:             task.Type,
				TaskID:           task.ID,
				PhaseInstanceIDs: []string{phaseInstance.ID},
			}
			if err := entities.SaveTaskInstance(ctx, taskInstance); err != nil {
				return nil, fmt.Errorf("failed to create task instance under %s: %w", phaseInstance.ID, err)
			}
			created++
		}
	}

	logger.Info().
		Str("phase_id", phase.ID).
		Int("created", created).
		Msg("Writing phase provisioned")
	return created, nil
}
