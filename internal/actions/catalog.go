// Package actions holds the static declaration tree of course, phase, and
// task types and the registry of the actions declared on them. The tree is
// authored in code at process composition time and is read-only afterwards.
package actions

import (
	"github.com/ternarybob/cursus/internal/models"
)

// TaskMeta declares one task type and its actions
type TaskMeta struct {
	Type    string
	Actions []*models.ActionDescriptor
}

// PhaseMeta declares one phase type, its task types, and its actions
type PhaseMeta struct {
	Type    string
	Tasks   []TaskMeta
	Actions []*models.ActionDescriptor
}

// CourseMeta declares one course type, its phase types, and its actions
type CourseMeta struct {
	Type    string
	Phases  []PhaseMeta
	Actions []*models.ActionDescriptor
}

// Resolution is the strongly-typed result of walking a dotted action name
// through the declaration tree. Phase and Task are nil for shorter paths.
type Resolution struct {
	Course     *CourseMeta
	Phase      *PhaseMeta
	Task       *TaskMeta
	Descriptor *models.ActionDescriptor
	Level      models.Level
	ScopePath  string // Dotted type path without the action name
}

// ScopeType returns the entity type the resolved action runs against
func (r *Resolution) ScopeType() string {
	switch r.Level {
	case models.LevelCourse:
		return r.Course.Type
	case models.LevelPhase:
		return r.Phase.Type
	default:
		return r.Task.Type
	}
}
