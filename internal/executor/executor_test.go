package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cursus/internal/common"
	"github.com/ternarybob/cursus/internal/interfaces"
	"github.com/ternarybob/cursus/internal/models"
	"github.com/ternarybob/cursus/internal/storage/badger"
)

// setupStorage opens a throwaway store and seeds one essay course hierarchy:
// course_1 > phase_1 (writing) > task_1 (draft), with instances
// ci_1 > pi_1 > ti_1 hanging off it.
func setupStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()

	storage, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "cursus-test"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, storage.Close())
	})

	ctx := context.Background()
	entities := storage.EntityStorage()
	require.NoError(t, entities.SaveCourse(ctx, &models.Course{ID: "course_1", Type: "essay", Title: "Essay Writing"}))
	require.NoError(t, entities.SavePhase(ctx, &models.Phase{ID: "phase_1", Type: "writing", CourseID: "course_1"}))
	require.NoError(t, entities.SaveTask(ctx, &models.Task{ID: "task_1", Type: "draft", PhaseID: "phase_1"}))
	require.NoError(t, entities.SaveCourseInstance(ctx, &models.CourseInstance{
		ID: "ci_1", Type: "essay", CourseID: "course_1", StudentID: "stu_a",
	}))
	require.NoError(t, entities.SavePhaseInstance(ctx, &models.PhaseInstance{
		ID: "pi_1", Type: "writing", PhaseID: "phase_1", CourseInstanceIDs: []string{"ci_1"},
	}))
	require.NoError(t, entities.SaveTaskInstance(ctx, &models.TaskInstance{
		ID: "ti_1", Type: "draft", TaskID: "task_1", PhaseInstanceIDs: []string{"pi_1"},
	}))

	return storage
}

func TestExecuteDefinitionAction(t *testing.T) {
	storage := setupStorage(t)
	exec := New(models.LevelCourse, storage, arbor.NewLogger())
	ctx := context.Background()

	var gotCourse *models.Course
	var gotArgs map[string]any
	desc := &models.ActionDescriptor{
		Name:        "enroll",
		Concurrency: models.ConcurrencyLocks,
		Params: []models.ParamSpec{
			{Index: 0, Kind: models.ParamCourse},
			{Index: 1, Kind: models.ParamArgument},
			{Index: 2, Kind: models.ParamLogger},
		},
		Handler: func(ctx context.Context, params []any) (any, error) {
			gotCourse = params[0].(*models.Course)
			gotArgs = params[1].(map[string]any)
			require.NotNil(t, params[2].(arbor.ILogger))
			return "done", nil
		},
	}

	result, err := exec.Execute(ctx, Request{
		EntityID:   "course_1",
		ActionPath: "essay.enroll",
		Descriptor: desc,
		Args:       map[string]any{"student_id": "stu_b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, "course_1", gotCourse.ID)
	assert.Equal(t, "stu_b", gotArgs["student_id"])

	// Lock released, success entry appended
	loaded, err := storage.EntityStorage().GetCourse(ctx, "course_1")
	require.NoError(t, err)
	assert.False(t, loaded.Locked)
	require.Len(t, loaded.History, 1)
	assert.Equal(t, "essay.enroll", loaded.History[0].Event)
	assert.True(t, loaded.History[0].Successful)
}

func TestExecuteInstanceChainParams(t *testing.T) {
	storage := setupStorage(t)
	exec := New(models.LevelTask, storage, arbor.NewLogger())
	ctx := context.Background()

	desc := &models.ActionDescriptor{
		Name:        "grade",
		Instance:    true,
		Concurrency: models.ConcurrencyLocks,
		Params: []models.ParamSpec{
			{Index: 0, Kind: models.ParamTaskInstance},
			{Index: 1, Kind: models.ParamPhaseInstance},
			{Index: 2, Kind: models.ParamCourseInstance},
			{Index: 3, Kind: models.ParamTask},
			{Index: 4, Kind: models.ParamCourse},
		},
		Handler: func(ctx context.Context, params []any) (any, error) {
			ti := params[0].(*models.TaskInstance)
			assert.Equal(t, "ti_1", ti.ID)

			// Lone ancestors arrive as single pointers, not slices
			pi := params[1].(*models.PhaseInstance)
			assert.Equal(t, "pi_1", pi.ID)
			ci := params[2].(*models.CourseInstance)
			assert.Equal(t, "ci_1", ci.ID)

			// Definitions reached through the instance back-references
			assert.Equal(t, "task_1", params[3].(*models.Task).ID)
			assert.Equal(t, "course_1", params[4].(*models.Course).ID)
			return nil, nil
		},
	}

	_, err := exec.Execute(ctx, Request{
		EntityID:   "ti_1",
		ActionPath: "essay.writing.draft.grade",
		Descriptor: desc,
	})
	require.NoError(t, err)

	// The lock and the history land on the instance, not the definition
	ti, err := storage.EntityStorage().GetTaskInstance(ctx, "ti_1")
	require.NoError(t, err)
	assert.False(t, ti.Locked)
	require.Len(t, ti.History, 1)
	task, err := storage.EntityStorage().GetTask(ctx, "task_1")
	require.NoError(t, err)
	assert.Empty(t, task.History)
}

func TestExecuteMergedInstanceSets(t *testing.T) {
	storage := setupStorage(t)
	entities := storage.EntityStorage()
	ctx := context.Background()

	// A merged task instance spanning two phase instances with distinct
	// course instances
	require.NoError(t, entities.SaveCourseInstance(ctx, &models.CourseInstance{
		ID: "ci_2", Type: "essay", CourseID: "course_1", StudentID: "stu_b",
	}))
	require.NoError(t, entities.SavePhaseInstance(ctx, &models.PhaseInstance{
		ID: "pi_2", Type: "writing", PhaseID: "phase_1", CourseInstanceIDs: []string{"ci_2"},
	}))
	require.NoError(t, entities.SaveTaskInstance(ctx, &models.TaskInstance{
		ID: "ti_merged", Type: "draft", TaskID: "task_1", PhaseInstanceIDs: []string{"pi_1", "pi_2"},
	}))

	exec := New(models.LevelTask, storage, arbor.NewLogger())
	desc := &models.ActionDescriptor{
		Name:        "grade",
		Instance:    true,
		Concurrency: models.ConcurrencyLocks,
		Params: []models.ParamSpec{
			{Index: 0, Kind: models.ParamPhaseInstance},
			{Index: 1, Kind: models.ParamCourseInstance},
		},
		Handler: func(ctx context.Context, params []any) (any, error) {
			// Multi-member ancestor sets arrive as slices
			pis := params[0].([]*models.PhaseInstance)
			assert.Len(t, pis, 2)
			cis := params[1].([]*models.CourseInstance)
			assert.Len(t, cis, 2)
			return nil, nil
		},
	}

	_, err := exec.Execute(ctx, Request{EntityID: "ti_merged", Descriptor: desc})
	require.NoError(t, err)
}

func TestExecuteFailureRecorded(t *testing.T) {
	storage := setupStorage(t)
	exec := New(models.LevelTask, storage, arbor.NewLogger())
	ctx := context.Background()

	desc := &models.ActionDescriptor{
		Name:        "grade",
		Instance:    true,
		Concurrency: models.ConcurrencyLocks,
		Handler: func(ctx context.Context, params []any) (any, error) {
			return nil, fmt.Errorf("rubric missing")
		},
	}

	_, err := exec.Execute(ctx, Request{
		EntityID:   "ti_1",
		ActionPath: "essay.writing.draft.grade",
		Descriptor: desc,
		LogID:      "log_test",
	})
	require.ErrorContains(t, err, "rubric missing")

	ti, err := storage.EntityStorage().GetTaskInstance(ctx, "ti_1")
	require.NoError(t, err)
	assert.False(t, ti.Locked, "lock must be released on failure")
	require.Len(t, ti.History, 1)
	assert.False(t, ti.History[0].Successful)
	assert.Equal(t, "log_test", ti.History[0].LogID)

	// Error record scoped to the resolved course
	records, err := storage.RecordStorage().ListErrorRecords(ctx, "course_1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ti_1", records[0].TargetID)
	assert.Contains(t, records[0].Message, "rubric missing")
	assert.NotEmpty(t, records[0].Stack)
}

func TestExecutePanicRecovered(t *testing.T) {
	storage := setupStorage(t)
	exec := New(models.LevelCourse, storage, arbor.NewLogger())
	ctx := context.Background()

	desc := &models.ActionDescriptor{
		Name:        "explode",
		Concurrency: models.ConcurrencyLocks,
		Handler: func(ctx context.Context, params []any) (any, error) {
			panic("boom")
		},
	}

	_, err := exec.Execute(ctx, Request{EntityID: "course_1", Descriptor: desc})
	require.ErrorContains(t, err, "callable panicked: boom")

	// The panicking handler still releases the lock and lands in the ledger
	course, err := storage.EntityStorage().GetCourse(ctx, "course_1")
	require.NoError(t, err)
	assert.False(t, course.Locked)

	records, err := storage.RecordStorage().ListErrorRecords(ctx, "course_1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Stack, "executor")
}

func TestExecuteNoneModeSkipsLedger(t *testing.T) {
	storage := setupStorage(t)
	exec := New(models.LevelTask, storage, arbor.NewLogger())
	ctx := context.Background()

	desc := &models.ActionDescriptor{
		Name:        "poll",
		Concurrency: models.ConcurrencyNone,
		Handler: func(ctx context.Context, params []any) (any, error) {
			return nil, fmt.Errorf("transient poll failure")
		},
	}

	_, err := exec.Execute(ctx, Request{EntityID: "task_1", Descriptor: desc})
	require.Error(t, err)

	task, err := storage.EntityStorage().GetTask(ctx, "task_1")
	require.NoError(t, err)
	assert.Empty(t, task.History, "none mode writes no history")

	count, err := storage.RecordStorage().CountErrorRecords(ctx, "course_1")
	require.NoError(t, err)
	assert.Zero(t, count, "none mode writes no error records")
}

func TestExecuteUnavailableTargets(t *testing.T) {
	storage := setupStorage(t)
	entities := storage.EntityStorage()
	ctx := context.Background()

	locksDesc := &models.ActionDescriptor{
		Name:        "noop",
		Concurrency: models.ConcurrencyLocks,
		Handler: func(ctx context.Context, params []any) (any, error) {
			return nil, nil
		},
	}

	exec := New(models.LevelCourse, storage, arbor.NewLogger())

	// Missing entity
	_, err := exec.Execute(ctx, Request{EntityID: "course_missing", Descriptor: locksDesc})
	assert.ErrorIs(t, err, models.ErrEntityUnavailable)

	// Already locked entity
	require.NoError(t, entities.AcquireLock(ctx, models.KindCourse, "course_1"))
	_, err = exec.Execute(ctx, Request{EntityID: "course_1", Descriptor: locksDesc})
	assert.ErrorIs(t, err, models.ErrEntityUnavailable)
	require.NoError(t, entities.ReleaseLock(ctx, models.KindCourse, "course_1"))

	// A refused acquisition leaves no trace
	course, err := entities.GetCourse(ctx, "course_1")
	require.NoError(t, err)
	assert.Empty(t, course.History)

	// Blocked entity refuses even None mode
	noneDesc := &models.ActionDescriptor{
		Name:        "noop",
		Concurrency: models.ConcurrencyNone,
		Handler:     locksDesc.Handler,
	}
	course.Blocked = true
	require.NoError(t, entities.SaveCourse(ctx, course))
	_, err = exec.Execute(ctx, Request{EntityID: "course_1", Descriptor: noneDesc})
	assert.ErrorIs(t, err, models.ErrEntityUnavailable)
}

func TestExecuteBlockedAncestor(t *testing.T) {
	storage := setupStorage(t)
	entities := storage.EntityStorage()
	ctx := context.Background()

	course, err := entities.GetCourse(ctx, "course_1")
	require.NoError(t, err)
	course.Blocked = true
	require.NoError(t, entities.SaveCourse(ctx, course))

	exec := New(models.LevelTask, storage, arbor.NewLogger())
	desc := &models.ActionDescriptor{
		Name:        "stats",
		Concurrency: models.ConcurrencyLocks,
		Handler: func(ctx context.Context, params []any) (any, error) {
			t.Fatal("handler must not run with a blocked ancestor")
			return nil, nil
		},
	}

	_, err = exec.Execute(ctx, Request{EntityID: "task_1", Descriptor: desc})
	assert.ErrorIs(t, err, models.ErrAncestorUnavailable)

	// The target lock was taken and must be released again
	task, err := entities.GetTask(ctx, "task_1")
	require.NoError(t, err)
	assert.False(t, task.Locked)
	require.Len(t, task.History, 1)
	assert.False(t, task.History[0].Successful)
}

func TestExecuteBlockedInstanceAncestor(t *testing.T) {
	storage := setupStorage(t)
	entities := storage.EntityStorage()
	ctx := context.Background()

	ci, err := entities.GetCourseInstance(ctx, "ci_1")
	require.NoError(t, err)
	ci.Blocked = true
	require.NoError(t, entities.SaveCourseInstance(ctx, ci))

	exec := New(models.LevelTask, storage, arbor.NewLogger())
	desc := &models.ActionDescriptor{
		Name:        "grade",
		Instance:    true,
		Concurrency: models.ConcurrencyLocks,
		Handler: func(ctx context.Context, params []any) (any, error) {
			t.Fatal("handler must not run with a blocked instance ancestor")
			return nil, nil
		},
	}

	_, err = exec.Execute(ctx, Request{EntityID: "ti_1", Descriptor: desc})
	assert.ErrorIs(t, err, models.ErrAncestorUnavailable)
}

func TestExecuteLocksMutualExclusion(t *testing.T) {
	storage := setupStorage(t)
	exec := New(models.LevelCourse, storage, arbor.NewLogger())
	ctx := context.Background()

	started := make(chan struct{})
	proceed := make(chan struct{})
	desc := &models.ActionDescriptor{
		Name:        "slow",
		Concurrency: models.ConcurrencyLocks,
		Handler: func(ctx context.Context, params []any) (any, error) {
			close(started)
			<-proceed
			return nil, nil
		},
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = exec.Execute(ctx, Request{EntityID: "course_1", Descriptor: desc})
	}()

	<-started
	// While the first invocation holds the lock, a second one is refused
	_, err := exec.Execute(ctx, Request{EntityID: "course_1", Descriptor: &models.ActionDescriptor{
		Name:        "slow",
		Concurrency: models.ConcurrencyLocks,
		Handler: func(ctx context.Context, params []any) (any, error) {
			return nil, nil
		},
	}})
	assert.ErrorIs(t, err, models.ErrEntityUnavailable)

	close(proceed)
	wg.Wait()
	require.NoError(t, firstErr)
}

func TestExecuteBackground(t *testing.T) {
	storage := setupStorage(t)
	exec := New(models.LevelCourse, storage, arbor.NewLogger())
	ctx := context.Background()

	done := make(chan struct{})
	desc := &models.ActionDescriptor{
		Name:        "enroll",
		Concurrency: models.ConcurrencyLocks,
		Handler: func(ctx context.Context, params []any) (any, error) {
			defer close(done)
			return nil, nil
		},
	}

	log, err := exec.ExecuteBackground(ctx, Request{EntityID: "course_1", ActionPath: "essay.enroll", Descriptor: desc})
	require.NoError(t, err)
	require.NotEmpty(t, log.ID)
	assert.Equal(t, models.LogStatusRunning, log.Status)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("background action did not run")
	}

	// Completion is observable through the persisted log
	require.Eventually(t, func() bool {
		stored, err := storage.RecordStorage().GetActionLog(ctx, log.ID)
		return err == nil && stored.Status == models.LogStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}
