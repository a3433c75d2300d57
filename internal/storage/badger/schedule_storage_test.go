package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cursus/internal/interfaces"
	"github.com/ternarybob/cursus/internal/models"
)

func setupScheduleStorage(t *testing.T) interfaces.ScheduleStorage {
	t.Helper()
	return NewScheduleStorage(setupTestDB(t), arbor.NewLogger())
}

func testSchedule(id, courseID string) *models.Schedule {
	return &models.Schedule{
		ID:       id,
		CourseID: courseID,
		Name:     "nightly " + id,
		Cron:     "0 0 2 * * *",
		Schema:   []models.ScheduleEntry{{Action: "essay.enroll"}},
	}
}

func TestScheduleSaveGetDelete(t *testing.T) {
	storage := setupScheduleStorage(t)
	ctx := context.Background()

	sched := testSchedule("sched_1", "course_1")
	require.NoError(t, storage.SaveSchedule(ctx, sched))
	assert.False(t, sched.CreatedAt.IsZero())

	loaded, err := storage.GetSchedule(ctx, "sched_1")
	require.NoError(t, err)
	assert.Equal(t, "0 0 2 * * *", loaded.Cron)
	assert.Len(t, loaded.Schema, 1)

	require.NoError(t, storage.DeleteSchedule(ctx, "sched_1"))

	_, err = storage.GetSchedule(ctx, "sched_1")
	assert.True(t, errors.Is(err, models.ErrScheduleNotFound))
	err = storage.DeleteSchedule(ctx, "sched_1")
	assert.True(t, errors.Is(err, models.ErrScheduleNotFound))
}

func TestScheduleSaveRejectsMissingID(t *testing.T) {
	storage := setupScheduleStorage(t)

	err := storage.SaveSchedule(context.Background(), &models.Schedule{CourseID: "course_1"})
	assert.ErrorContains(t, err, "schedule ID is required")
}

func TestScheduleSavePreservesCreatedAt(t *testing.T) {
	storage := setupScheduleStorage(t)
	ctx := context.Background()

	sched := testSchedule("sched_1", "course_1")
	require.NoError(t, storage.SaveSchedule(ctx, sched))
	created := sched.CreatedAt

	time.Sleep(5 * time.Millisecond)
	sched.Name = "renamed"
	require.NoError(t, storage.SaveSchedule(ctx, sched))

	loaded, err := storage.GetSchedule(ctx, "sched_1")
	require.NoError(t, err)
	assert.Equal(t, created.UnixNano(), loaded.CreatedAt.UnixNano())
	assert.True(t, loaded.UpdatedAt.After(loaded.CreatedAt))
}

func TestListSchedulesByCourse(t *testing.T) {
	storage := setupScheduleStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveSchedule(ctx, testSchedule("sched_a", "course_1")))
	require.NoError(t, storage.SaveSchedule(ctx, testSchedule("sched_b", "course_1")))
	require.NoError(t, storage.SaveSchedule(ctx, testSchedule("sched_c", "course_2")))

	forCourse, err := storage.ListSchedules(ctx, "course_1")
	require.NoError(t, err)
	require.Len(t, forCourse, 2)
	for _, s := range forCourse {
		assert.Equal(t, "course_1", s.CourseID)
	}

	all, err := storage.ListAllSchedules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := storage.ListSchedules(ctx, "course_missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClaimScheduleSingleFlight(t *testing.T) {
	storage := setupScheduleStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveSchedule(ctx, testSchedule("sched_1", "course_1")))

	require.NoError(t, storage.ClaimSchedule(ctx, "sched_1"))
	loaded, err := storage.GetSchedule(ctx, "sched_1")
	require.NoError(t, err)
	assert.True(t, loaded.Running)

	err = storage.ClaimSchedule(ctx, "sched_1")
	assert.True(t, errors.Is(err, models.ErrScheduleRunning))

	require.NoError(t, storage.SetScheduleRunning(ctx, "sched_1", false))
	require.NoError(t, storage.ClaimSchedule(ctx, "sched_1"))

	err = storage.ClaimSchedule(ctx, "sched_missing")
	assert.True(t, errors.Is(err, models.ErrScheduleNotFound))
}

func TestSetScheduleRunning(t *testing.T) {
	storage := setupScheduleStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveSchedule(ctx, testSchedule("sched_1", "course_1")))

	require.NoError(t, storage.SetScheduleRunning(ctx, "sched_1", true))
	loaded, err := storage.GetSchedule(ctx, "sched_1")
	require.NoError(t, err)
	assert.True(t, loaded.Running)

	require.NoError(t, storage.SetScheduleRunning(ctx, "sched_1", false))
	loaded, err = storage.GetSchedule(ctx, "sched_1")
	require.NoError(t, err)
	assert.False(t, loaded.Running)

	err = storage.SetScheduleRunning(ctx, "sched_missing", true)
	assert.True(t, errors.Is(err, models.ErrScheduleNotFound))
}
