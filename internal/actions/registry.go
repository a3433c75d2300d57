package actions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cursus/internal/models"
)

// scopeKey addresses one registered action
type scopeKey struct {
	level models.Level
	scope string // Dotted type path: courseType[.phaseType[.taskType]]
	name  string
}

// Registry holds the immutable action table built from the declaration tree.
// All duplicate and shape checks happen at construction; lookups never
// allocate and need no locking because the table is read-only after
// NewRegistry returns.
type Registry struct {
	table   map[scopeKey]*models.ActionDescriptor
	courses map[string]*CourseMeta
	logger  arbor.ILogger
}

// NewRegistry builds the registry from the catalog, failing on the first
// duplicate (level, scope, name) tuple or malformed descriptor.
func NewRegistry(catalog []CourseMeta, logger arbor.ILogger) (*Registry, error) {
	r := &Registry{
		table:   make(map[scopeKey]*models.ActionDescriptor),
		courses: make(map[string]*CourseMeta, len(catalog)),
		logger:  logger,
	}

	for i := range catalog {
		course := &catalog[i]
		if course.Type == "" {
			return nil, fmt.Errorf("course type is required")
		}
		if _, exists := r.courses[course.Type]; exists {
			return nil, fmt.Errorf("course type %s declared twice", course.Type)
		}
		r.courses[course.Type] = course

		if err := r.registerAll(models.LevelCourse, course.Type, course.Actions); err != nil {
			return nil, err
		}

		for j := range course.Phases {
			phase := &course.Phases[j]
			if phase.Type == "" {
				return nil, fmt.Errorf("phase type is required in course %s", course.Type)
			}
			phaseScope := course.Type + "." + phase.Type
			if err := r.registerAll(models.LevelPhase, phaseScope, phase.Actions); err != nil {
				return nil, err
			}

			for k := range phase.Tasks {
				task := &phase.Tasks[k]
				if task.Type == "" {
					return nil, fmt.Errorf("task type is required in phase %s", phaseScope)
				}
				taskScope := phaseScope + "." + task.Type
				if err := r.registerAll(models.LevelTask, taskScope, task.Actions); err != nil {
					return nil, err
				}
			}
		}
	}

	if logger != nil {
		logger.Info().
			Int("actions", len(r.table)).
			Int("courses", len(r.courses)).
			Msg("Action registry initialized")
	}

	return r, nil
}

func (r *Registry) registerAll(level models.Level, scope string, descriptors []*models.ActionDescriptor) error {
	for _, desc := range descriptors {
		if err := r.register(level, scope, desc); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) register(level models.Level, scope string, desc *models.ActionDescriptor) error {
	if desc == nil {
		return fmt.Errorf("action descriptor cannot be nil in scope %s", scope)
	}
	if desc.Name == "" {
		return fmt.Errorf("action name is required in scope %s", scope)
	}
	if desc.Handler == nil {
		return fmt.Errorf("action %s.%s has no handler", scope, desc.Name)
	}
	if !models.IsValidConcurrencyMode(desc.Concurrency) {
		return fmt.Errorf("action %s.%s has invalid concurrency mode %q", scope, desc.Name, desc.Concurrency)
	}

	key := scopeKey{level: level, scope: scope, name: desc.Name}
	if _, exists := r.table[key]; exists {
		return fmt.Errorf("%s.%s: %w", scope, desc.Name, models.ErrDuplicateAction)
	}
	r.table[key] = desc

	return nil
}

// Lookup retrieves a descriptor by level, dotted scope path, and action name
func (r *Registry) Lookup(level models.Level, scope string, name string) (*models.ActionDescriptor, error) {
	desc, ok := r.table[scopeKey{level: level, scope: scope, name: name}]
	if !ok {
		return nil, fmt.Errorf("%s %s.%s: %w", level, scope, name, models.ErrUnknownAction)
	}
	return desc, nil
}

// ResolveDottedName walks a dotted action name through the declaration tree.
// Two segments select a course action, three a phase action, four a task
// action. Any unmatched segment fails with ErrInvalidActionPath.
func (r *Registry) ResolveDottedName(dotted string) (*Resolution, error) {
	segments := strings.Split(dotted, ".")
	if len(segments) < 2 || len(segments) > 4 {
		return nil, fmt.Errorf("%q must have 2 to 4 segments: %w", dotted, models.ErrInvalidActionPath)
	}
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%q has an empty segment: %w", dotted, models.ErrInvalidActionPath)
		}
	}

	course, ok := r.courses[segments[0]]
	if !ok {
		return nil, fmt.Errorf("course type %q: %w", segments[0], models.ErrInvalidActionPath)
	}

	res := &Resolution{Course: course}
	actionName := segments[len(segments)-1]

	switch len(segments) {
	case 2:
		res.Level = models.LevelCourse
		res.ScopePath = course.Type
	case 3:
		phase := findPhase(course, segments[1])
		if phase == nil {
			return nil, fmt.Errorf("phase type %q in course %q: %w", segments[1], course.Type, models.ErrInvalidActionPath)
		}
		res.Phase = phase
		res.Level = models.LevelPhase
		res.ScopePath = course.Type + "." + phase.Type
	case 4:
		phase := findPhase(course, segments[1])
		if phase == nil {
			return nil, fmt.Errorf("phase type %q in course %q: %w", segments[1], course.Type, models.ErrInvalidActionPath)
		}
		task := findTask(phase, segments[2])
		if task == nil {
			return nil, fmt.Errorf("task type %q in phase %q: %w", segments[2], phase.Type, models.ErrInvalidActionPath)
		}
		res.Phase = phase
		res.Task = task
		res.Level = models.LevelTask
		res.ScopePath = course.Type + "." + phase.Type + "." + task.Type
	}

	desc, err := r.Lookup(res.Level, res.ScopePath, actionName)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", dotted, models.ErrInvalidActionPath)
	}
	res.Descriptor = desc

	return res, nil
}

// ListActions returns the sorted dotted names of every registered action
func (r *Registry) ListActions() []string {
	names := make([]string, 0, len(r.table))
	for key := range r.table {
		names = append(names, key.scope+"."+key.name)
	}
	sort.Strings(names)
	return names
}

func findPhase(course *CourseMeta, phaseType string) *PhaseMeta {
	for i := range course.Phases {
		if course.Phases[i].Type == phaseType {
			return &course.Phases[i]
		}
	}
	return nil
}

func findTask(phase *PhaseMeta, taskType string) *TaskMeta {
	for i := range phase.Tasks {
		if phase.Tasks[i].Type == taskType {
			return &phase.Tasks[i]
		}
	}
	return nil
}
