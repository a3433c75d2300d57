package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cursus/internal/interfaces"
	"github.com/ternarybob/cursus/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// EntityStorage implements the EntityStorage interface for Badger
type EntityStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEntityStorage creates a new EntityStorage instance
func NewEntityStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EntityStorage {
	return &EntityStorage{
		db:     db,
		logger: logger,
	}
}

// kindSample returns an empty pointer value used as the badgerhold dataType
// for queries against that collection
func kindSample(kind models.EntityKind) (interface{}, error) {
	switch kind {
	case models.KindCourse:
		return &models.Course{}, nil
	case models.KindPhase:
		return &models.Phase{}, nil
	case models.KindTask:
		return &models.Task{}, nil
	case models.KindCourseInstance:
		return &models.CourseInstance{}, nil
	case models.KindPhaseInstance:
		return &models.PhaseInstance{}, nil
	case models.KindTaskInstance:
		return &models.TaskInstance{}, nil
	default:
		return nil, fmt.Errorf("unknown entity kind: %s", kind)
	}
}

// --- Definitions ---

func (s *EntityStorage) SaveCourse(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		return fmt.Errorf("course ID is required")
	}
	touch(&course.CreatedAt, &course.UpdatedAt)
	if err := s.db.Store().Upsert(course.ID, course); err != nil {
		return fmt.Errorf("failed to save course: %w", err)
	}
	return nil
}

func (s *EntityStorage) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := s.db.Store().Get(id, &course); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("course not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &course, nil
}

func (s *EntityStorage) ListCourses(ctx context.Context, courseType string) ([]*models.Course, error) {
	query := badgerhold.Where("ID").Ne("")
	if courseType != "" {
		query = query.And("Type").Eq(courseType)
	}
	var courses []models.Course
	if err := s.db.Store().Find(&courses, query.SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	result := make([]*models.Course, len(courses))
	for i := range courses {
		result[i] = &courses[i]
	}
	return result, nil
}

func (s *EntityStorage) SavePhase(ctx context.Context, phase *models.Phase) error {
	if phase.ID == "" {
		return fmt.Errorf("phase ID is required")
	}
	touch(&phase.CreatedAt, &phase.UpdatedAt)
	if err := s.db.Store().Upsert(phase.ID, phase); err != nil {
		return fmt.Errorf("failed to save phase: %w", err)
	}
	return nil
}

func (s *EntityStorage) GetPhase(ctx context.Context, id string) (*models.Phase, error) {
	var phase models.Phase
	if err := s.db.Store().Get(id, &phase); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("phase not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get phase: %w", err)
	}
	return &phase, nil
}

func (s *EntityStorage) ListPhases(ctx context.Context, courseID string, phaseType string) ([]*models.Phase, error) {
	query := badgerhold.Where("CourseID").Eq(courseID)
	if phaseType != "" {
		query = query.And("Type").Eq(phaseType)
	}
	var phases []models.Phase
	if err := s.db.Store().Find(&phases, query.SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list phases: %w", err)
	}
	result := make([]*models.Phase, len(phases))
	for i := range phases {
		result[i] = &phases[i]
	}
	return result, nil
}

func (s *EntityStorage) SaveTask(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	touch(&task.CreatedAt, &task.UpdatedAt)
	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

func (s *EntityStorage) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := s.db.Store().Get(id, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("task not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

func (s *EntityStorage) ListTasks(ctx context.Context, phaseIDs []string, taskType string) ([]*models.Task, error) {
	query := badgerhold.Where("ID").Ne("")
	if taskType != "" {
		query = query.And("Type").Eq(taskType)
	}
	var tasks []models.Task
	if err := s.db.Store().Find(&tasks, query.SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	wanted := stringSet(phaseIDs)
	result := make([]*models.Task, 0, len(tasks))
	for i := range tasks {
		if _, ok := wanted[tasks[i].PhaseID]; ok {
			result = append(result, &tasks[i])
		}
	}
	return result, nil
}

// --- Instances ---

func (s *EntityStorage) SaveCourseInstance(ctx context.Context, instance *models.CourseInstance) error {
	if instance.ID == "" {
		return fmt.Errorf("course instance ID is required")
	}
	touch(&instance.CreatedAt, &instance.UpdatedAt)
	if err := s.db.Store().Upsert(instance.ID, instance); err != nil {
		return fmt.Errorf("failed to save course instance: %w", err)
	}
	return nil
}

func (s *EntityStorage) GetCourseInstance(ctx context.Context, id string) (*models.CourseInstance, error) {
	var instance models.CourseInstance
	if err := s.db.Store().Get(id, &instance); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("course instance not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get course instance: %w", err)
	}
	return &instance, nil
}

// filterFields maps structured-query keys onto queryable struct fields.
// Keys outside this map match against the instance attribute map instead.
var filterFields = map[string]string{
	"type":       "Type",
	"student_id": "StudentID",
	"locked":     "Locked",
	"blocked":    "Blocked",
}

func (s *EntityStorage) ListCourseInstances(ctx context.Context, courseID string, filter map[string]any) ([]*models.CourseInstance, error) {
	query := badgerhold.Where("CourseID").Eq(courseID)
	attrTerms := make(map[string]any)
	for key, value := range filter {
		if field, ok := filterFields[key]; ok {
			query = query.And(field).Eq(value)
		} else {
			attrTerms[key] = value
		}
	}

	var instances []models.CourseInstance
	if err := s.db.Store().Find(&instances, query.SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list course instances: %w", err)
	}

	result := make([]*models.CourseInstance, 0, len(instances))
	for i := range instances {
		if attributesMatch(instances[i].Attributes, attrTerms) {
			result = append(result, &instances[i])
		}
	}
	return result, nil
}

func (s *EntityStorage) SavePhaseInstance(ctx context.Context, instance *models.PhaseInstance) error {
	if instance.ID == "" {
		return fmt.Errorf("phase instance ID is required")
	}
	touch(&instance.CreatedAt, &instance.UpdatedAt)
	if err := s.db.Store().Upsert(instance.ID, instance); err != nil {
		return fmt.Errorf("failed to save phase instance: %w", err)
	}
	return nil
}

func (s *EntityStorage) GetPhaseInstance(ctx context.Context, id string) (*models.PhaseInstance, error) {
	var instance models.PhaseInstance
	if err := s.db.Store().Get(id, &instance); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("phase instance not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get phase instance: %w", err)
	}
	return &instance, nil
}

func (s *EntityStorage) ListPhaseInstances(ctx context.Context, courseInstanceIDs []string, phaseType string) ([]*models.PhaseInstance, error) {
	query := badgerhold.Where("ID").Ne("")
	if phaseType != "" {
		query = query.And("Type").Eq(phaseType)
	}
	var instances []models.PhaseInstance
	if err := s.db.Store().Find(&instances, query); err != nil {
		return nil, fmt.Errorf("failed to list phase instances: %w", err)
	}

	wanted := stringSet(courseInstanceIDs)
	result := make([]*models.PhaseInstance, 0, len(instances))
	for i := range instances {
		if intersects(instances[i].CourseInstanceIDs, wanted) {
			result = append(result, &instances[i])
		}
	}
	sortPhaseInstances(result)
	return result, nil
}

func (s *EntityStorage) SaveTaskInstance(ctx context.Context, instance *models.TaskInstance) error {
	if instance.ID == "" {
		return fmt.Errorf("task instance ID is required")
	}
	touch(&instance.CreatedAt, &instance.UpdatedAt)
	if err := s.db.Store().Upsert(instance.ID, instance); err != nil {
		return fmt.Errorf("failed to save task instance: %w", err)
	}
	return nil
}

func (s *EntityStorage) GetTaskInstance(ctx context.Context, id string) (*models.TaskInstance, error) {
	var instance models.TaskInstance
	if err := s.db.Store().Get(id, &instance); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("task instance not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get task instance: %w", err)
	}
	return &instance, nil
}

func (s *EntityStorage) ListTaskInstances(ctx context.Context, phaseInstanceIDs []string, taskType string) ([]*models.TaskInstance, error) {
	query := badgerhold.Where("ID").Ne("")
	if taskType != "" {
		query = query.And("Type").Eq(taskType)
	}
	var instances []models.TaskInstance
	if err := s.db.Store().Find(&instances, query); err != nil {
		return nil, fmt.Errorf("failed to list task instances: %w", err)
	}

	wanted := stringSet(phaseInstanceIDs)
	result := make([]*models.TaskInstance, 0, len(instances))
	for i := range instances {
		if intersects(instances[i].PhaseInstanceIDs, wanted) {
			result = append(result, &instances[i])
		}
	}
	sortTaskInstances(result)
	return result, nil
}

// --- Helpers ---

func touch(createdAt, updatedAt *time.Time) {
	now := time.Now()
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func intersects(ids []string, set map[string]struct{}) bool {
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

func attributesMatch(attributes map[string]string, terms map[string]any) bool {
	for key, value := range terms {
		if attributes[key] != fmt.Sprintf("%v", value) {
			return false
		}
	}
	return true
}

func sortPhaseInstances(instances []*models.PhaseInstance) {
	sort.Slice(instances, func(i, j int) bool {
		if !instances[i].CreatedAt.Equal(instances[j].CreatedAt) {
			return instances[i].CreatedAt.Before(instances[j].CreatedAt)
		}
		return instances[i].ID < instances[j].ID
	})
}

func sortTaskInstances(instances []*models.TaskInstance) {
	sort.Slice(instances, func(i, j int) bool {
		if !instances[i].CreatedAt.Equal(instances[j].CreatedAt) {
			return instances[i].CreatedAt.Before(instances[j].CreatedAt)
		}
		return instances[i].ID < instances[j].ID
	})
}
