package executor

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cursus/internal/models"
)

// lockGuard represents an acquired (or mode-exempt) execution guard.
//
// Locks mode is optimistic single-flight: acquisition is one atomic "match id
// where locked=false and blocked=false, set locked=true" conditional update in
// the store, which makes the guarantee hold across processes sharing the
// store. Queue mode serializes in-process only and takes no entity lock, so a
// Queue-mode action can run concurrently with a Locks-mode action on the same
// entity. None mode only verifies the entity exists and is not blocked.
type lockGuard struct {
	executor *Executor
	kind     models.EntityKind
	id       string
	held     bool
}

// acquireGuard enforces the availability precondition for every mode and
// additionally takes the entity lock in Locks mode. Failure is always
// models.ErrEntityUnavailable.
func (e *Executor) acquireGuard(ctx context.Context, mode models.ConcurrencyMode, kind models.EntityKind, id string) (*lockGuard, error) {
	guard := &lockGuard{executor: e, kind: kind, id: id}

	if mode == models.ConcurrencyLocks {
		if err := e.entities.AcquireLock(ctx, kind, id); err != nil {
			return nil, err
		}
		guard.held = true
		return guard, nil
	}

	// Queue and None modes: no lock, but the entity must exist and must not
	// be blocked.
	entity, err := e.loadEntity(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", kind, id, models.ErrEntityUnavailable)
	}
	if entity.IsBlocked() {
		return nil, fmt.Errorf("%s %s is blocked: %w", kind, id, models.ErrEntityUnavailable)
	}
	return guard, nil
}

// release clears the lock flag when one was taken. It runs in the deferred
// stage regardless of outcome, uses a background context so a cancelled
// caller cannot leave the entity locked, and is scoped to this entity id
// only.
func (g *lockGuard) release(logger arbor.ILogger) {
	if !g.held {
		return
	}
	g.held = false
	if err := g.executor.entities.ReleaseLock(context.Background(), g.kind, g.id); err != nil {
		logger.Warn().
			Err(err).
			Str("kind", string(g.kind)).
			Str("id", g.id).
			Msg("Failed to release entity lock")
	}
}

// loadEntity fetches the target entity through its kind's accessor
func (e *Executor) loadEntity(ctx context.Context, kind models.EntityKind, id string) (models.Lockable, error) {
	switch kind {
	case models.KindCourse:
		return e.entities.GetCourse(ctx, id)
	case models.KindPhase:
		return e.entities.GetPhase(ctx, id)
	case models.KindTask:
		return e.entities.GetTask(ctx, id)
	case models.KindCourseInstance:
		return e.entities.GetCourseInstance(ctx, id)
	case models.KindPhaseInstance:
		return e.entities.GetPhaseInstance(ctx, id)
	case models.KindTaskInstance:
		return e.entities.GetTaskInstance(ctx, id)
	default:
		return nil, fmt.Errorf("unknown entity kind: %s", kind)
	}
}
