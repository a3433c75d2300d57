package common

import (
	"github.com/google/uuid"
)

// NewScheduleID generates a unique schedule ID with the "sched_" prefix
func NewScheduleID() string {
	return "sched_" + uuid.New().String()
}

// NewLogID generates a unique action log ID with the "log_" prefix
func NewLogID() string {
	return "log_" + uuid.New().String()
}

// NewErrorID generates a unique error record ID with the "err_" prefix
func NewErrorID() string {
	return "err_" + uuid.New().String()
}

// NewEntityID generates a unique entity ID with the given kind prefix,
// e.g. "task_inst_" for task instances
func NewEntityID(prefix string) string {
	return prefix + uuid.New().String()
}
