package interfaces

import (
	"context"

	"github.com/ternarybob/cursus/internal/models"
)

// RecordStorage persists the append-only ledger: course-scoped error records
// and the action logs observed by background callers.
type RecordStorage interface {
	SaveErrorRecord(ctx context.Context, record *models.ErrorRecord) error
	ListErrorRecords(ctx context.Context, courseID string) ([]*models.ErrorRecord, error)
	CountErrorRecords(ctx context.Context, courseID string) (int, error)

	SaveActionLog(ctx context.Context, log *models.ActionLog) error
	GetActionLog(ctx context.Context, id string) (*models.ActionLog, error)
	ListActionLogs(ctx context.Context, scheduleID string) ([]*models.ActionLog, error)
	ListChildActionLogs(ctx context.Context, parentID string) ([]*models.ActionLog, error)
}
