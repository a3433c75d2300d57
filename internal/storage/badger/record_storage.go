package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cursus/internal/common"
	"github.com/ternarybob/cursus/internal/interfaces"
	"github.com/ternarybob/cursus/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// RecordStorage implements the RecordStorage interface for Badger
type RecordStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRecordStorage creates a new RecordStorage instance
func NewRecordStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RecordStorage {
	return &RecordStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RecordStorage) SaveErrorRecord(ctx context.Context, record *models.ErrorRecord) error {
	if record.CourseID == "" {
		return fmt.Errorf("error record course ID is required")
	}
	if record.ID == "" {
		record.ID = common.NewErrorID()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := s.db.Store().Insert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save error record: %w", err)
	}
	return nil
}

func (s *RecordStorage) ListErrorRecords(ctx context.Context, courseID string) ([]*models.ErrorRecord, error) {
	var records []models.ErrorRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("CourseID").Eq(courseID).SortBy("Timestamp")); err != nil {
		return nil, fmt.Errorf("failed to list error records: %w", err)
	}
	result := make([]*models.ErrorRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

func (s *RecordStorage) CountErrorRecords(ctx context.Context, courseID string) (int, error) {
	count, err := s.db.Store().Count(&models.ErrorRecord{}, badgerhold.Where("CourseID").Eq(courseID))
	if err != nil {
		return 0, fmt.Errorf("failed to count error records: %w", err)
	}
	return int(count), nil
}

func (s *RecordStorage) SaveActionLog(ctx context.Context, log *models.ActionLog) error {
	if log.ID == "" {
		log.ID = common.NewLogID()
	}
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now()
	}
	if log.Status == "" {
		log.Status = models.LogStatusRunning
	}
	if err := s.db.Store().Upsert(log.ID, log); err != nil {
		return fmt.Errorf("failed to save action log: %w", err)
	}
	return nil
}

func (s *RecordStorage) GetActionLog(ctx context.Context, id string) (*models.ActionLog, error) {
	var log models.ActionLog
	if err := s.db.Store().Get(id, &log); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("action log not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get action log: %w", err)
	}
	return &log, nil
}

func (s *RecordStorage) ListActionLogs(ctx context.Context, scheduleID string) ([]*models.ActionLog, error) {
	var logs []models.ActionLog
	if err := s.db.Store().Find(&logs, badgerhold.Where("ScheduleID").Eq(scheduleID).SortBy("StartedAt")); err != nil {
		return nil, fmt.Errorf("failed to list action logs: %w", err)
	}
	result := make([]*models.ActionLog, len(logs))
	for i := range logs {
		result[i] = &logs[i]
	}
	return result, nil
}

func (s *RecordStorage) ListChildActionLogs(ctx context.Context, parentID string) ([]*models.ActionLog, error) {
	var logs []models.ActionLog
	if err := s.db.Store().Find(&logs, badgerhold.Where("ParentID").Eq(parentID).SortBy("StartedAt")); err != nil {
		return nil, fmt.Errorf("failed to list child action logs: %w", err)
	}
	result := make([]*models.ActionLog, len(logs))
	for i := range logs {
		result[i] = &logs[i]
	}
	return result, nil
}
