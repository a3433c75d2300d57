package interfaces

import (
	"context"

	"github.com/ternarybob/cursus/internal/models"
)

// ScheduleStorage persists schedule records. Timer registration is never
// stored: it is recomputed from the Cron field by the scheduler service.
type ScheduleStorage interface {
	SaveSchedule(ctx context.Context, schedule *models.Schedule) error
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
	ListSchedules(ctx context.Context, courseID string) ([]*models.Schedule, error)
	ListAllSchedules(ctx context.Context) ([]*models.Schedule, error)

	// SetScheduleRunning flips the liveness flag. Returns
	// models.ErrScheduleNotFound if the record is gone.
	SetScheduleRunning(ctx context.Context, id string, running bool) error

	// ClaimSchedule atomically sets running=true where running=false, in one
	// conditional update. Returns models.ErrScheduleRunning when the flag is
	// already set and models.ErrScheduleNotFound when the record is gone.
	ClaimSchedule(ctx context.Context, id string) error
}
