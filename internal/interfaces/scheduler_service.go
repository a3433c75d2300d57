package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/cursus/internal/models"
)

// ScheduleStatus reports the live timer state of one schedule
type ScheduleStatus struct {
	ID      string
	Name    string
	Cron    string
	Armed   bool // A cron timer is registered
	Running bool // A firing is currently in flight
	NextRun *time.Time
}

// SchedulerService owns the cron timer registry and drives schedule firings.
// Create/update/delete side effects (timer registration, immediate firing for
// "now") are deterministic functions of the stored cron value.
type SchedulerService interface {
	// Start re-arms timers for every persisted schedule and replays the ones
	// found with running=true (unclean shutdown recovery).
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool

	// SaveSchedule creates or updates a schedule and recomputes its timer
	SaveSchedule(ctx context.Context, schedule *models.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error

	// TriggerSchedule fires a schedule ad hoc. Rejected with
	// models.ErrScheduleRunning while a previous firing is in flight.
	TriggerSchedule(ctx context.Context, id string) error

	GetScheduleStatus(ctx context.Context, id string) (*ScheduleStatus, error)
}

// StorageManager aggregates the storage concerns behind one lifecycle
type StorageManager interface {
	EntityStorage() EntityStorage
	ScheduleStorage() ScheduleStorage
	RecordStorage() RecordStorage
	Close() error
}
