package models

import (
	"fmt"
	"time"
)

// Level identifies a tier of the Course -> Phase -> Task hierarchy
type Level int

// Level constants
const (
	LevelCourse Level = iota
	LevelPhase
	LevelTask
)

// String returns the lowercase name of the level
func (l Level) String() string {
	switch l {
	case LevelCourse:
		return "course"
	case LevelPhase:
		return "phase"
	case LevelTask:
		return "task"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// EntityKind identifies one of the six stored entity collections
type EntityKind string

// EntityKind constants
const (
	KindCourse         EntityKind = "course"
	KindPhase          EntityKind = "phase"
	KindTask           EntityKind = "task"
	KindCourseInstance EntityKind = "course_instance"
	KindPhaseInstance  EntityKind = "phase_instance"
	KindTaskInstance   EntityKind = "task_instance"
)

// KindFor maps a hierarchy level and the instance/definition variant to its collection
func KindFor(level Level, instance bool) EntityKind {
	switch level {
	case LevelCourse:
		if instance {
			return KindCourseInstance
		}
		return KindCourse
	case LevelPhase:
		if instance {
			return KindPhaseInstance
		}
		return KindPhase
	default:
		if instance {
			return KindTaskInstance
		}
		return KindTask
	}
}

// HistoryEntry records one completed action invocation against an entity.
// Entries are append-only and ordered by append time.
type HistoryEntry struct {
	Event      string         `json:"event"`
	Successful bool           `json:"successful"`
	Timestamp  time.Time      `json:"timestamp"`
	LogID      string         `json:"log_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Lockable is implemented by every stored entity kind. The executor and the
// storage layer only touch entities through this surface when arbitrating the
// Locked/Blocked flags and the history trail.
type Lockable interface {
	GetID() string
	GetType() string
	IsLocked() bool
	IsBlocked() bool
	SetLocked(locked bool)
	AddHistory(entry HistoryEntry)
}

// Course is the top-level definition entity. It has no parent.
type Course struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"` // Discriminator selecting the registered course business logic
	Title     string         `json:"title"`
	Locked    bool           `json:"locked"`
	Blocked   bool           `json:"blocked"`
	History   []HistoryEntry `json:"history"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Phase is a definition entity belonging to exactly one Course.
type Phase struct {
	ID        string         `json:"id"`
	CourseID  string         `json:"course_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Locked    bool           `json:"locked"`
	Blocked   bool           `json:"blocked"`
	History   []HistoryEntry `json:"history"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Task is a definition entity belonging to exactly one Phase.
type Task struct {
	ID        string         `json:"id"`
	PhaseID   string         `json:"phase_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Locked    bool           `json:"locked"`
	Blocked   bool           `json:"blocked"`
	History   []HistoryEntry `json:"history"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CourseInstance is the per-student realization of a Course.
type CourseInstance struct {
	ID         string            `json:"id"`
	CourseID   string            `json:"course_id"` // Definition back-reference
	StudentID  string            `json:"student_id"`
	Type       string            `json:"type"`
	Locked     bool              `json:"locked"`
	Blocked    bool              `json:"blocked"`
	History    []HistoryEntry    `json:"history"`
	Attributes map[string]string `json:"attributes,omitempty"` // Free-form state consulted by filters and predicates
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// PhaseInstance is the per-student realization of a Phase. The parent
// reference is a set: merged instances may point at several course instances,
// though the common case is exactly one.
type PhaseInstance struct {
	ID                string            `json:"id"`
	PhaseID           string            `json:"phase_id"`
	CourseInstanceIDs []string          `json:"course_instance_ids"`
	Type              string            `json:"type"`
	Locked            bool              `json:"locked"`
	Blocked           bool              `json:"blocked"`
	History           []HistoryEntry    `json:"history"`
	Attributes        map[string]string `json:"attributes,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// TaskInstance is the per-student realization of a Task.
type TaskInstance struct {
	ID               string            `json:"id"`
	TaskID           string            `json:"task_id"`
	PhaseInstanceIDs []string          `json:"phase_instance_ids"`
	Type             string            `json:"type"`
	Locked           bool              `json:"locked"`
	Blocked          bool              `json:"blocked"`
	History          []HistoryEntry    `json:"history"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (c *Course) GetID() string              { return c.ID }
func (c *Course) GetType() string            { return c.Type }
func (c *Course) IsLocked() bool             { return c.Locked }
func (c *Course) IsBlocked() bool            { return c.Blocked }
func (c *Course) SetLocked(locked bool)      { c.Locked = locked }
func (c *Course) AddHistory(e HistoryEntry)  { c.History = append(c.History, e) }

func (p *Phase) GetID() string               { return p.ID }
func (p *Phase) GetType() string             { return p.Type }
func (p *Phase) IsLocked() bool              { return p.Locked }
func (p *Phase) IsBlocked() bool             { return p.Blocked }
func (p *Phase) SetLocked(locked bool)       { p.Locked = locked }
func (p *Phase) AddHistory(e HistoryEntry)   { p.History = append(p.History, e) }

func (t *Task) GetID() string                { return t.ID }
func (t *Task) GetType() string              { return t.Type }
func (t *Task) IsLocked() bool               { return t.Locked }
func (t *Task) IsBlocked() bool              { return t.Blocked }
func (t *Task) SetLocked(locked bool)        { t.Locked = locked }
func (t *Task) AddHistory(e HistoryEntry)    { t.History = append(t.History, e) }

func (c *CourseInstance) GetID() string             { return c.ID }
func (c *CourseInstance) GetType() string           { return c.Type }
func (c *CourseInstance) IsLocked() bool            { return c.Locked }
func (c *CourseInstance) IsBlocked() bool           { return c.Blocked }
func (c *CourseInstance) SetLocked(locked bool)     { c.Locked = locked }
func (c *CourseInstance) AddHistory(e HistoryEntry) { c.History = append(c.History, e) }

func (p *PhaseInstance) GetID() string             { return p.ID }
func (p *PhaseInstance) GetType() string           { return p.Type }
func (p *PhaseInstance) IsLocked() bool            { return p.Locked }
func (p *PhaseInstance) IsBlocked() bool           { return p.Blocked }
func (p *PhaseInstance) SetLocked(locked bool)     { p.Locked = locked }
func (p *PhaseInstance) AddHistory(e HistoryEntry) { p.History = append(p.History, e) }

func (t *TaskInstance) GetID() string             { return t.ID }
func (t *TaskInstance) GetType() string           { return t.Type }
func (t *TaskInstance) IsLocked() bool            { return t.Locked }
func (t *TaskInstance) IsBlocked() bool           { return t.Blocked }
func (t *TaskInstance) SetLocked(locked bool)     { t.Locked = locked }
func (t *TaskInstance) AddHistory(e HistoryEntry) { t.History = append(t.History, e) }
