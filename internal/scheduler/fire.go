package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cursus/internal/actions"
	"github.com/ternarybob/cursus/internal/executor"
	"github.com/ternarybob/cursus/internal/models"
)

// fire executes one pass of a schedule: claim the running flag, walk
// the schema entries in order, and for each entry recompute the target
// population and fan the action out item by item. A failing item is logged
// and skipped; an unresolvable action name or a broken instance filter aborts
// the remainder of the pass.
func (s *Service) fire(scheduleID string, trigger string) {
	ctx := context.Background()

	sched, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		s.logger.Warn().Err(err).Str("schedule_id", scheduleID).Msg("Skipping firing, schedule not loadable")
		return
	}
	if err := s.schedules.ClaimSchedule(ctx, sched.ID); err != nil {
		if errors.Is(err, models.ErrScheduleRunning) {
			s.logger.Warn().
				Str("schedule_id", sched.ID).
				Str("schedule_name", sched.Name).
				Str("trigger", trigger).
				Msg("Skipping firing, previous pass still running")
		} else {
			s.logger.Error().Err(err).Str("schedule_id", sched.ID).Msg("Failed to claim schedule")
		}
		return
	}

	passLog := &models.ActionLog{
		ScheduleID: sched.ID,
		Action:     "schedule:" + sched.Name,
		Status:     models.LogStatusRunning,
		StartedAt:  time.Now(),
	}
	if err := s.records.SaveActionLog(ctx, passLog); err != nil {
		s.logger.Warn().Err(err).Str("schedule_id", sched.ID).Msg("Failed to open schedule pass log")
	}
	logger := s.logger.WithCorrelationId(passLog.ID)

	logger.Info().
		Str("schedule_id", sched.ID).
		Str("schedule_name", sched.Name).
		Str("trigger", trigger).
		Int("entries", len(sched.Schema)).
		Msg("Schedule firing started")

	var fatal error
	defer func() {
		if r := recover(); r != nil {
			fatal = fmt.Errorf("schedule pass panicked: %v", r)
			logger.Error().Str("schedule_id", sched.ID).Msgf("Schedule pass panicked: %v", r)
		}
		if fatal != nil {
			s.recordPassFailure(sched, passLog.ID, fatal)
		}
		// Cleared even on panic so the schedule never sticks in running
		if err := s.schedules.SetScheduleRunning(context.Background(), sched.ID, false); err != nil {
			logger.Warn().Err(err).Str("schedule_id", sched.ID).Msg("Failed to clear running flag")
		}
		passLog.Finish(fatal)
		if err := s.records.SaveActionLog(context.Background(), passLog); err != nil {
			logger.Warn().Err(err).Str("schedule_id", sched.ID).Msg("Failed to close schedule pass log")
		}
		logger.Info().
			Str("schedule_id", sched.ID).
			Str("status", string(passLog.Status)).
			Msg("Schedule firing finished")
	}()

	for i, entry := range sched.Schema {
		res, err := s.registry.ResolveDottedName(entry.Action)
		if err != nil {
			fatal = fmt.Errorf("schema entry %d (%s): %w", i, entry.Action, err)
			return
		}
		if err := s.runEntry(ctx, logger, sched, passLog, entry, res); err != nil {
			fatal = fmt.Errorf("schema entry %d (%s): %w", i, entry.Action, err)
			return
		}
	}
}

// runEntry recomputes the population for one schema entry and fans the action
// out over it. The population is always recomputed from storage so instances
// created by earlier entries in the same pass are visible. Only population
// lookup failures are returned; per-item execution failures are swallowed
// after logging.
func (s *Service) runEntry(ctx context.Context, logger arbor.ILogger, sched *models.Schedule, passLog *models.ActionLog, entry models.ScheduleEntry, res *actions.Resolution) error {
	var filter map[string]any
	if sched.CourseInstanceFilter != "" {
		if err := json.Unmarshal([]byte(sched.CourseInstanceFilter), &filter); err != nil {
			return fmt.Errorf("invalid course instance filter: %w", err)
		}
	}

	scopeType := res.ScopeType()
	desc := res.Descriptor

	if !desc.Instance {
		return s.runDefinitionEntry(ctx, logger, sched, passLog, entry, res)
	}

	courseInstances, err := s.entities.ListCourseInstances(ctx, sched.CourseID, filter)
	if err != nil {
		return fmt.Errorf("failed to list course instances: %w", err)
	}

	switch res.Level {
	case models.LevelCourse:
		for _, ci := range courseInstances {
			if ci.Type != scopeType {
				continue
			}
			if !s.shouldRun(desc, models.ActionContext{Level: res.Level, Action: entry.Action, Params: entry.Params, CourseInstance: ci}) {
				continue
			}
			s.runItem(ctx, logger, sched, passLog, entry, res, ci.ID)
		}

	case models.LevelPhase:
		phaseInstances, err := s.entities.ListPhaseInstances(ctx, instanceIDs(courseInstances), scopeType)
		if err != nil {
			return fmt.Errorf("failed to list phase instances: %w", err)
		}
		for _, pi := range phaseInstances {
			if !s.shouldRun(desc, models.ActionContext{Level: res.Level, Action: entry.Action, Params: entry.Params, PhaseInstance: pi}) {
				continue
			}
			s.runItem(ctx, logger, sched, passLog, entry, res, pi.ID)
		}

	case models.LevelTask:
		// All phase instance types feed the task population
		phaseInstances, err := s.entities.ListPhaseInstances(ctx, instanceIDs(courseInstances), "")
		if err != nil {
			return fmt.Errorf("failed to list phase instances: %w", err)
		}
		taskInstances, err := s.entities.ListTaskInstances(ctx, phaseInstanceIDs(phaseInstances), scopeType)
		if err != nil {
			return fmt.Errorf("failed to list task instances: %w", err)
		}
		for _, ti := range taskInstances {
			if !s.shouldRun(desc, models.ActionContext{Level: res.Level, Action: entry.Action, Params: entry.Params, TaskInstance: ti}) {
				continue
			}
			s.runItem(ctx, logger, sched, passLog, entry, res, ti.ID)
		}
	}

	return nil
}

// runDefinitionEntry fans a definition-targeted action out over the matching
// definitions under the schedule's course.
func (s *Service) runDefinitionEntry(ctx context.Context, logger arbor.ILogger, sched *models.Schedule, passLog *models.ActionLog, entry models.ScheduleEntry, res *actions.Resolution) error {
	scopeType := res.ScopeType()
	desc := res.Descriptor

	switch res.Level {
	case models.LevelCourse:
		course, err := s.entities.GetCourse(ctx, sched.CourseID)
		if err != nil {
			return fmt.Errorf("failed to load course: %w", err)
		}
		if course.Type != scopeType {
			return nil
		}
		if s.shouldRun(desc, models.ActionContext{Level: res.Level, Action: entry.Action, Params: entry.Params, Course: course}) {
			s.runItem(ctx, logger, sched, passLog, entry, res, course.ID)
		}

	case models.LevelPhase:
		phases, err := s.entities.ListPhases(ctx, sched.CourseID, scopeType)
		if err != nil {
			return fmt.Errorf("failed to list phases: %w", err)
		}
		for _, phase := range phases {
			if !s.shouldRun(desc, models.ActionContext{Level: res.Level, Action: entry.Action, Params: entry.Params, Phase: phase}) {
				continue
			}
			s.runItem(ctx, logger, sched, passLog, entry, res, phase.ID)
		}

	case models.LevelTask:
		phases, err := s.entities.ListPhases(ctx, sched.CourseID, "")
		if err != nil {
			return fmt.Errorf("failed to list phases: %w", err)
		}
		tasks, err := s.entities.ListTasks(ctx, phaseIDs(phases), scopeType)
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}
		for _, task := range tasks {
			if !s.shouldRun(desc, models.ActionContext{Level: res.Level, Action: entry.Action, Params: entry.Params, Task: task}) {
				continue
			}
			s.runItem(ctx, logger, sched, passLog, entry, res, task.ID)
		}
	}

	return nil
}

// runItem executes the action against one entity synchronously under its own
// child log. Failures are recorded and swallowed so the rest of the fan-out
// proceeds.
func (s *Service) runItem(ctx context.Context, logger arbor.ILogger, sched *models.Schedule, passLog *models.ActionLog, entry models.ScheduleEntry, res *actions.Resolution, entityID string) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			logger.Warn().Err(err).Msg("Fan-out rate limiter interrupted")
			return
		}
	}

	itemLog := &models.ActionLog{
		ScheduleID: sched.ID,
		ParentID:   passLog.ID,
		Action:     entry.Action,
		EntityID:   entityID,
		Status:     models.LogStatusRunning,
		StartedAt:  time.Now(),
	}
	if err := s.records.SaveActionLog(ctx, itemLog); err != nil {
		logger.Warn().Err(err).Str("entity_id", entityID).Msg("Failed to open item log")
	}

	exec := s.executors[res.Level]
	_, err := exec.Execute(ctx, executor.Request{
		EntityID:   entityID,
		ActionPath: entry.Action,
		Descriptor: res.Descriptor,
		Args:       entry.Params,
		Logger:     logger,
		LogID:      itemLog.ID,
	})

	itemLog.Finish(err)
	if saveErr := s.records.SaveActionLog(ctx, itemLog); saveErr != nil {
		logger.Warn().Err(saveErr).Str("entity_id", entityID).Msg("Failed to close item log")
	}

	if err != nil {
		logger.Warn().
			Err(err).
			Str("action", entry.Action).
			Str("entity_id", entityID).
			Msg("Scheduled action failed for item, continuing")
	}
}

// shouldRun applies the descriptor's optional predicate, treating a panicking
// predicate as false.
func (s *Service) shouldRun(desc *models.ActionDescriptor, actionCtx models.ActionContext) (ok bool) {
	if desc.ShouldRun == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().Str("action", desc.Name).Msgf("ShouldRun predicate panicked: %v", r)
			ok = false
		}
	}()
	return desc.ShouldRun(&actionCtx)
}

// recordPassFailure persists an ErrorRecord for a fatal pass abort
func (s *Service) recordPassFailure(sched *models.Schedule, logID string, cause error) {
	record := &models.ErrorRecord{
		CourseID:  sched.CourseID,
		TargetID:  sched.ID,
		LogID:     logID,
		Message:   fmt.Sprintf("schedule %s firing aborted: %v", sched.Name, cause),
		Timestamp: time.Now(),
	}
	if err := s.records.SaveErrorRecord(context.Background(), record); err != nil {
		s.logger.Warn().Err(err).Str("schedule_id", sched.ID).Msg("Failed to persist pass failure record")
	}
}

func instanceIDs(instances []*models.CourseInstance) []string {
	ids := make([]string, 0, len(instances))
	for _, ci := range instances {
		ids = append(ids, ci.ID)
	}
	return ids
}

func phaseInstanceIDs(instances []*models.PhaseInstance) []string {
	ids := make([]string, 0, len(instances))
	for _, pi := range instances {
		ids = append(ids, pi.ID)
	}
	return ids
}

func phaseIDs(phases []*models.Phase) []string {
	ids := make([]string, 0, len(phases))
	for _, p := range phases {
		ids = append(ids, p.ID)
	}
	return ids
}
