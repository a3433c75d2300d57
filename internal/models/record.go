package models

import "time"

// ErrorRecord is a persisted failure entry. Every record is scoped to exactly
// one top-level course even when the failing entity is nested below it.
type ErrorRecord struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	TargetID  string    `json:"target_id"` // The entity the failing invocation ran against
	LogID     string    `json:"log_id,omitempty"`
	Message   string    `json:"message"`
	Stack     string    `json:"stack"`
	Timestamp time.Time `json:"timestamp"`
}

// LogStatus represents the lifecycle state of an action log
type LogStatus string

// LogStatus constants
const (
	LogStatusRunning   LogStatus = "running"
	LogStatusCompleted LogStatus = "completed"
	LogStatusFailed    LogStatus = "failed"
)

// ActionLog is the observable handle for a background or scheduled
// invocation. Callers that fire and forget poll this record; they never see a
// thrown error directly.
type ActionLog struct {
	ID         string    `json:"id"`
	ScheduleID string    `json:"schedule_id,omitempty"` // Set when the invocation was triggered by a schedule firing
	ParentID   string    `json:"parent_id,omitempty"`   // Top-level firing log for fan-out sub-logs
	Action     string    `json:"action"`
	EntityID   string    `json:"entity_id,omitempty"`
	Status     LogStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Finish transitions the log to its terminal status
func (l *ActionLog) Finish(err error) {
	l.FinishedAt = time.Now()
	if err != nil {
		l.Status = LogStatusFailed
		l.Error = err.Error()
		return
	}
	l.Status = LogStatusCompleted
}
