// Package executor runs registered actions against hierarchy entities. One
// generic engine implements the algorithm; a factory binds it per level so
// the course, phase, and task executors share a single audited code path.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cursus/internal/common"
	"github.com/ternarybob/cursus/internal/interfaces"
	"github.com/ternarybob/cursus/internal/models"
)

// Executor executes actions for one hierarchy level
type Executor struct {
	level    models.Level
	entities interfaces.EntityStorage
	records  interfaces.RecordStorage
	queues   *queueSet
	logger   arbor.ILogger
}

// Request describes one action invocation
type Request struct {
	EntityID   string
	ActionPath string // Dotted name used for history events, queue keying, and error messages
	Descriptor *models.ActionDescriptor
	Args       map[string]any
	Logger     arbor.ILogger // Optional per-invocation logger; defaults to the executor logger
	LogID      string        // Optional action log correlation id
}

// New creates an executor bound to one hierarchy level
func New(level models.Level, storage interfaces.StorageManager, logger arbor.ILogger) *Executor {
	return &Executor{
		level:    level,
		entities: storage.EntityStorage(),
		records:  storage.RecordStorage(),
		queues:   newQueueSet(logger),
		logger:   logger,
	}
}

// NewForLevels builds one executor per hierarchy level
func NewForLevels(storage interfaces.StorageManager, logger arbor.ILogger) map[models.Level]*Executor {
	return map[models.Level]*Executor{
		models.LevelCourse: New(models.LevelCourse, storage, logger),
		models.LevelPhase:  New(models.LevelPhase, storage, logger),
		models.LevelTask:   New(models.LevelTask, storage, logger),
	}
}

// Execute runs an action synchronously. The caller sees the original error
// surface; history entries and error records are persisted according to the
// descriptor's concurrency mode before the error is re-raised.
func (e *Executor) Execute(ctx context.Context, req Request) (any, error) {
	if req.EntityID == "" {
		return nil, fmt.Errorf("entity ID is required")
	}
	if req.Descriptor == nil {
		return nil, fmt.Errorf("action descriptor is required")
	}

	if req.Descriptor.Concurrency == models.ConcurrencyQueue {
		// One FIFO per (level, scope-path, action), concurrency 1. Every
		// invocation of this action on any entity id runs in submission
		// order.
		key := fmt.Sprintf("%s:%s", e.level, req.ActionPath)
		if req.ActionPath == "" {
			key = fmt.Sprintf("%s:%s", e.level, req.Descriptor.Name)
		}
		return e.queues.run(key, func() (any, error) {
			return e.run(ctx, req)
		})
	}

	return e.run(ctx, req)
}

// ExecuteBackground fires the action and returns its log handle immediately.
// Completion and failure are only observable through the persisted log.
func (e *Executor) ExecuteBackground(ctx context.Context, req Request) (*models.ActionLog, error) {
	log := &models.ActionLog{
		ID:        common.NewLogID(),
		Action:    e.eventName(req),
		EntityID:  req.EntityID,
		Status:    models.LogStatusRunning,
		StartedAt: time.Now(),
	}
	if err := e.records.SaveActionLog(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to create action log: %w", err)
	}

	req.LogID = log.ID
	common.SafeGo(e.logger, "action:"+log.Action, func() {
		_, err := e.Execute(context.Background(), req)
		log.Finish(err)
		if saveErr := e.records.SaveActionLog(context.Background(), log); saveErr != nil {
			e.logger.Warn().Err(saveErr).Str("log_id", log.ID).Msg("Failed to persist action log result")
		}
	})

	snapshot := *log
	return &snapshot, nil
}

// run is the single generic algorithm: guard, ancestor chain, param
// assembly, callable invocation, ledger, guard release.
func (e *Executor) run(ctx context.Context, req Request) (result any, err error) {
	desc := req.Descriptor
	kind := models.KindFor(e.level, desc.Instance)

	logger := req.Logger
	if logger == nil {
		logger = e.logger
	}
	if req.LogID != "" {
		logger = logger.WithCorrelationId(req.LogID)
	}

	guard, err := e.acquireGuard(ctx, desc.Concurrency, kind, req.EntityID)
	if err != nil {
		// Entity missing, blocked, or already locked. Nothing was loaded, so
		// no history entry is written.
		return nil, err
	}
	defer guard.release(logger)

	start := time.Now()
	logger.Debug().
		Str("level", e.level.String()).
		Str("action", e.eventName(req)).
		Str("entity_id", req.EntityID).
		Msg("Action execution started")

	var ch *chain
	if desc.Instance {
		ch, err = e.resolveInstanceChain(ctx, req.EntityID)
	} else {
		ch, err = e.resolveDefinitionChain(ctx, req.EntityID)
	}
	if err != nil {
		e.recordFailure(ctx, logger, req, ch, err)
		return nil, err
	}

	params, err := assembleParams(desc, ch, req.Args, logger)
	if err != nil {
		// Registration bug: fatal and never wrapped into the ledger
		return nil, err
	}

	result, err = invoke(ctx, desc.Handler, params)
	if err != nil {
		e.recordFailure(ctx, logger, req, ch, err)
		logger.Error().
			Err(err).
			Str("action", e.eventName(req)).
			Str("entity_id", req.EntityID).
			Dur("duration", time.Since(start)).
			Msg("Action execution failed")
		return nil, err
	}

	if desc.Concurrency != models.ConcurrencyNone {
		entry := models.HistoryEntry{
			Event:      e.eventName(req),
			Successful: true,
			Timestamp:  time.Now(),
			LogID:      req.LogID,
		}
		if histErr := e.entities.AppendHistory(ctx, kind, req.EntityID, entry); histErr != nil {
			logger.Warn().Err(histErr).Str("entity_id", req.EntityID).Msg("Failed to append history entry")
		}
	}

	logger.Debug().
		Str("action", e.eventName(req)).
		Str("entity_id", req.EntityID).
		Dur("duration", time.Since(start)).
		Msg("Action execution completed")

	return result, nil
}

// recordFailure appends the failed history entry and persists a course-scoped
// error record, unless the action runs in audit-free None mode. Persistence
// problems are logged, never allowed to mask the original error.
func (e *Executor) recordFailure(ctx context.Context, logger arbor.ILogger, req Request, ch *chain, cause error) {
	if req.Descriptor.Concurrency == models.ConcurrencyNone {
		return
	}

	kind := models.KindFor(e.level, req.Descriptor.Instance)
	entry := models.HistoryEntry{
		Event:      e.eventName(req),
		Successful: false,
		Timestamp:  time.Now(),
		LogID:      req.LogID,
	}
	if err := e.entities.AppendHistory(ctx, kind, req.EntityID, entry); err != nil {
		logger.Warn().Err(err).Str("entity_id", req.EntityID).Msg("Failed to append failure history entry")
	}

	courseID := ""
	if ch != nil {
		courseID = ch.courseID
	}
	if courseID == "" {
		logger.Warn().
			Str("entity_id", req.EntityID).
			Msg("No course resolved for error record, skipping")
		return
	}

	stack := string(debug.Stack())
	if pe, ok := cause.(*panicError); ok {
		stack = pe.stack
	}

	record := &models.ErrorRecord{
		CourseID:  courseID,
		TargetID:  req.EntityID,
		LogID:     req.LogID,
		Message:   fmt.Sprintf("action %s failed on %s %s: %v", e.eventName(req), kind, req.EntityID, cause),
		Stack:     stack,
		Timestamp: time.Now(),
	}
	if err := e.records.SaveErrorRecord(ctx, record); err != nil {
		logger.Warn().Err(err).Str("course_id", courseID).Msg("Failed to persist error record")
	}
}

func (e *Executor) eventName(req Request) string {
	if req.ActionPath != "" {
		return req.ActionPath
	}
	return req.Descriptor.Name
}

// panicError carries the stack captured when a business callable panicked
type panicError struct {
	value any
	stack string
}

func (p *panicError) Error() string {
	return fmt.Sprintf("callable panicked: %v", p.value)
}

// invoke runs the business callable with panic recovery so a panicking
// handler surfaces as a regular callable error.
func invoke(ctx context.Context, handler models.Callable, params []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: string(debug.Stack())}
		}
	}()
	return handler(ctx, params)
}
