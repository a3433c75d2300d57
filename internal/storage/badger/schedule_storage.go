package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cursus/internal/interfaces"
	"github.com/ternarybob/cursus/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ScheduleStorage implements the ScheduleStorage interface for Badger
type ScheduleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewScheduleStorage creates a new ScheduleStorage instance
func NewScheduleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ScheduleStorage {
	return &ScheduleStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ScheduleStorage) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ID == "" {
		return fmt.Errorf("schedule ID is required")
	}

	now := time.Now()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	if err := s.db.Store().Upsert(schedule.ID, schedule); err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

func (s *ScheduleStorage) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := s.db.Store().Get(id, &schedule); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", models.ErrScheduleNotFound, id)
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

func (s *ScheduleStorage) DeleteSchedule(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Schedule{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("%w: %s", models.ErrScheduleNotFound, id)
		}
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return nil
}

func (s *ScheduleStorage) ListSchedules(ctx context.Context, courseID string) ([]*models.Schedule, error) {
	var schedules []models.Schedule
	if err := s.db.Store().Find(&schedules, badgerhold.Where("CourseID").Eq(courseID).SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	result := make([]*models.Schedule, len(schedules))
	for i := range schedules {
		result[i] = &schedules[i]
	}
	return result, nil
}

func (s *ScheduleStorage) ListAllSchedules(ctx context.Context) ([]*models.Schedule, error) {
	var schedules []models.Schedule
	if err := s.db.Store().Find(&schedules, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	result := make([]*models.Schedule, len(schedules))
	for i := range schedules {
		result[i] = &schedules[i]
	}
	return result, nil
}

// ClaimSchedule is the no-overlap gate for a firing: match the id where
// running=false and set running=true in the same transaction, the shape
// entity locks use. Zero matches means the schedule is gone or already claimed.
func (s *ScheduleStorage) ClaimSchedule(ctx context.Context, id string) error {
	matched := false
	query := badgerhold.Where(badgerhold.Key).Eq(id).And("Running").Eq(false)
	err := s.db.Store().UpdateMatching(&models.Schedule{}, query, func(record interface{}) error {
		schedule, ok := record.(*models.Schedule)
		if !ok {
			return fmt.Errorf("record is not a schedule: %T", record)
		}
		schedule.Running = true
		schedule.UpdatedAt = time.Now()
		matched = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to claim schedule: %w", err)
	}
	if matched {
		return nil
	}
	if _, err := s.GetSchedule(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", models.ErrScheduleRunning, id)
}

func (s *ScheduleStorage) SetScheduleRunning(ctx context.Context, id string, running bool) error {
	matched := false
	err := s.db.Store().UpdateMatching(&models.Schedule{}, badgerhold.Where(badgerhold.Key).Eq(id), func(record interface{}) error {
		schedule, ok := record.(*models.Schedule)
		if !ok {
			return fmt.Errorf("record is not a schedule: %T", record)
		}
		schedule.Running = running
		schedule.UpdatedAt = time.Now()
		matched = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update schedule running flag: %w", err)
	}
	if !matched {
		return fmt.Errorf("%w: %s", models.ErrScheduleNotFound, id)
	}
	return nil
}
