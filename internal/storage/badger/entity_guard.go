package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/cursus/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AcquireLock performs the one atomic conditional update behind the Locks
// concurrency mode: match the id where locked=false and blocked=false and set
// locked=true in the same transaction. Zero matches means the entity is
// missing, blocked, or already locked.
func (s *EntityStorage) AcquireLock(ctx context.Context, kind models.EntityKind, id string) error {
	sample, err := kindSample(kind)
	if err != nil {
		return err
	}

	matched := false
	query := badgerhold.Where(badgerhold.Key).Eq(id).
		And("Locked").Eq(false).
		And("Blocked").Eq(false)

	err = s.db.Store().UpdateMatching(sample, query, func(record interface{}) error {
		lockable, ok := record.(models.Lockable)
		if !ok {
			return fmt.Errorf("record is not lockable: %T", record)
		}
		lockable.SetLocked(true)
		matched = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s %s: %w", kind, id, err)
	}
	if !matched {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrEntityUnavailable)
	}

	s.logger.Debug().Str("kind", string(kind)).Str("id", id).Msg("Lock acquired")
	return nil
}

// ReleaseLock unconditionally clears the locked flag for that id only.
// Idempotent: releasing an unlocked or missing entity is not an error.
func (s *EntityStorage) ReleaseLock(ctx context.Context, kind models.EntityKind, id string) error {
	sample, err := kindSample(kind)
	if err != nil {
		return err
	}

	query := badgerhold.Where(badgerhold.Key).Eq(id)
	err = s.db.Store().UpdateMatching(sample, query, func(record interface{}) error {
		if lockable, ok := record.(models.Lockable); ok {
			lockable.SetLocked(false)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to release lock on %s %s: %w", kind, id, err)
	}

	s.logger.Debug().Str("kind", string(kind)).Str("id", id).Msg("Lock released")
	return nil
}

// AppendHistory appends one entry to the entity's history trail. Entries are
// never mutated or removed after this point.
func (s *EntityStorage) AppendHistory(ctx context.Context, kind models.EntityKind, id string, entry models.HistoryEntry) error {
	sample, err := kindSample(kind)
	if err != nil {
		return err
	}

	matched := false
	query := badgerhold.Where(badgerhold.Key).Eq(id)
	err = s.db.Store().UpdateMatching(sample, query, func(record interface{}) error {
		lockable, ok := record.(models.Lockable)
		if !ok {
			return fmt.Errorf("record is not lockable: %T", record)
		}
		lockable.AddHistory(entry)
		matched = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append history on %s %s: %w", kind, id, err)
	}
	if !matched {
		return fmt.Errorf("cannot append history, %s not found: %s", kind, id)
	}
	return nil
}

// ResetAllLocks clears every locked flag across all six collections. Called
// once at process start so a crashed process cannot leave an entity locked
// forever.
func (s *EntityStorage) ResetAllLocks(ctx context.Context) (int, error) {
	kinds := []models.EntityKind{
		models.KindCourse,
		models.KindPhase,
		models.KindTask,
		models.KindCourseInstance,
		models.KindPhaseInstance,
		models.KindTaskInstance,
	}

	cleared := 0
	for _, kind := range kinds {
		sample, err := kindSample(kind)
		if err != nil {
			return cleared, err
		}
		query := badgerhold.Where("Locked").Eq(true)
		err = s.db.Store().UpdateMatching(sample, query, func(record interface{}) error {
			if lockable, ok := record.(models.Lockable); ok {
				lockable.SetLocked(false)
				cleared++
			}
			return nil
		})
		if err != nil {
			return cleared, fmt.Errorf("failed to reset locks for %s: %w", kind, err)
		}
	}

	if cleared > 0 {
		s.logger.Info().Int("count", cleared).Msg("Cleared stale entity locks from previous run")
	}
	return cleared, nil
}
