// Package scheduler owns the live cron timer registry and drives schedule
// firings: one pass over the schema list, fanned out across the filtered
// population with per-item failure isolation.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/cursus/internal/actions"
	"github.com/ternarybob/cursus/internal/common"
	"github.com/ternarybob/cursus/internal/executor"
	"github.com/ternarybob/cursus/internal/interfaces"
	"github.com/ternarybob/cursus/internal/models"
)

// Service implements SchedulerService
type Service struct {
	schedules interfaces.ScheduleStorage
	entities  interfaces.EntityStorage
	records   interfaces.RecordStorage
	registry  *actions.Registry
	executors map[models.Level]*executor.Executor
	cron      *cron.Cron
	logger    arbor.ILogger
	limiter   *rate.Limiter // Optional fan-out throttle, nil = unlimited

	mu      sync.Mutex // Protects entries and running
	entries map[string]cron.EntryID
	running bool
}

// NewService creates a new scheduler service
func NewService(storage interfaces.StorageManager, registry *actions.Registry, executors map[models.Level]*executor.Executor, config *common.SchedulerConfig, logger arbor.ILogger) interfaces.SchedulerService {
	var limiter *rate.Limiter
	if config != nil && config.FanoutRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.FanoutRate), config.FanoutBurst)
	}

	return &Service{
		schedules: storage.ScheduleStorage(),
		entities:  storage.EntityStorage(),
		records:   storage.RecordStorage(),
		registry:  registry,
		executors: executors,
		cron:      cron.New(cron.WithParser(models.CronParser())),
		logger:    logger,
		limiter:   limiter,
		entries:   make(map[string]cron.EntryID),
	}
}

// Start re-arms timers for every persisted schedule and replays schedules
// whose running flag survived an unclean shutdown, then starts the cron loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	schedules, err := s.schedules.ListAllSchedules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	armed := 0
	replayed := 0
	for _, sched := range schedules {
		if sched.HasTimer() {
			if err := s.arm(sched); err != nil {
				s.logger.Error().Err(err).Str("schedule_id", sched.ID).Msg("Failed to arm schedule timer")
				continue
			}
			armed++
		}

		if sched.Running {
			// The previous process died while this schedule was firing:
			// record it and re-fire once.
			s.logger.Warn().
				Str("schedule_id", sched.ID).
				Str("schedule_name", sched.Name).
				Msg("Schedule was running at shutdown, replaying")

			record := &models.ErrorRecord{
				CourseID:  sched.CourseID,
				TargetID:  sched.ID,
				Message:   fmt.Sprintf("schedule %s (%s) was running during an unclean shutdown, re-firing", sched.Name, sched.ID),
				Timestamp: time.Now(),
			}
			if err := s.records.SaveErrorRecord(ctx, record); err != nil {
				s.logger.Warn().Err(err).Str("schedule_id", sched.ID).Msg("Failed to persist unclean restart record")
			}

			if err := s.schedules.SetScheduleRunning(ctx, sched.ID, false); err != nil {
				s.logger.Warn().Err(err).Str("schedule_id", sched.ID).Msg("Failed to clear stale running flag")
				continue
			}
			s.fireAsync(sched.ID, "replay")
			replayed++
		}
	}

	s.cron.Start()

	s.logger.Info().
		Int("schedules", len(schedules)).
		Int("armed", armed).
		Int("replayed", replayed).
		Msg("Scheduler started")

	return nil
}

// Stop halts the cron loop. In-flight firings run to completion; there is no
// cancellation.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.cron.Stop()
	s.running = false

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if the scheduler is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SaveSchedule creates or updates a schedule. The timer registration is a
// derived side effect of the stored cron value: any existing timer is
// deregistered, then "now" fires once immediately, "never" stays inert, and
// anything else arms a fresh cron timer.
func (s *Service) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = common.NewScheduleID()
	}
	if err := schedule.Validate(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	// An update must not clobber the liveness flag of an in-flight firing
	if existing, err := s.schedules.GetSchedule(ctx, schedule.ID); err == nil {
		schedule.Running = existing.Running
		schedule.CreatedAt = existing.CreatedAt
	} else {
		schedule.Running = false
	}

	if err := s.schedules.SaveSchedule(ctx, schedule); err != nil {
		return err
	}

	s.disarm(schedule.ID)
	switch {
	case schedule.Cron == models.CronNow:
		s.fireAsync(schedule.ID, "now")
	case schedule.HasTimer():
		if err := s.arm(schedule); err != nil {
			return err
		}
	}

	s.logger.Info().
		Str("schedule_id", schedule.ID).
		Str("schedule_name", schedule.Name).
		Str("cron", schedule.Cron).
		Msg("Schedule saved")

	return nil
}

// DeleteSchedule deregisters any timer and removes the persisted record
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	s.disarm(id)
	if err := s.schedules.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("schedule_id", id).Msg("Schedule deleted")
	return nil
}

// TriggerSchedule fires a schedule ad hoc, rejecting overlap with a firing
// already in flight.
func (s *Service) TriggerSchedule(ctx context.Context, id string) error {
	sched, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if sched.Running {
		return fmt.Errorf("schedule %s: %w", id, models.ErrScheduleRunning)
	}

	s.logger.Info().Str("schedule_id", id).Msg("Manually triggering schedule")
	s.fireAsync(id, "manual")
	return nil
}

// GetScheduleStatus reports the live timer state of one schedule
func (s *Service) GetScheduleStatus(ctx context.Context, id string) (*interfaces.ScheduleStatus, error) {
	sched, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	status := &interfaces.ScheduleStatus{
		ID:      sched.ID,
		Name:    sched.Name,
		Cron:    sched.Cron,
		Running: sched.Running,
	}

	s.mu.Lock()
	entryID, armed := s.entries[sched.ID]
	s.mu.Unlock()

	if armed {
		status.Armed = true
		next := s.cron.Entry(entryID).Next
		if !next.IsZero() {
			status.NextRun = &next
		}
	}

	return status, nil
}

// arm registers a cron timer for the schedule, replacing any existing one
func (s *Service) arm(schedule *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[schedule.ID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, schedule.ID)
	}

	scheduleID := schedule.ID
	entryID, err := s.cron.AddFunc(schedule.Cron, func() {
		s.fireAsync(scheduleID, "cron")
	})
	if err != nil {
		return fmt.Errorf("failed to register cron timer for schedule %s: %w", schedule.ID, err)
	}
	s.entries[schedule.ID] = entryID

	return nil
}

// disarm removes the schedule's cron timer if one is registered
func (s *Service) disarm(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, scheduleID)
	}
}

// fireAsync spawns one fire-and-forget firing. The timer thread never awaits
// the pass.
func (s *Service) fireAsync(scheduleID string, trigger string) {
	common.SafeGo(s.logger, "schedule:"+scheduleID, func() {
		s.fire(scheduleID, trigger)
	})
}
