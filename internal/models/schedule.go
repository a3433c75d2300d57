package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Cron sentinel values accepted in place of a cron expression
const (
	CronNow   = "now"   // Fire once immediately, never re-armed
	CronNever = "never" // Inert: no timer registered
)

// ScheduleEntry names one action of a schedule's ordered schema
type ScheduleEntry struct {
	Action string         `json:"action"` // Dotted name: courseType[.phaseType[.taskType]].actionName
	Params map[string]any `json:"params,omitempty"`
}

// Schedule is a persisted, optionally cron-driven, ordered list of actions
// fanned out across a filtered population of a course's entities.
type Schedule struct {
	ID                   string          `json:"id"`
	CourseID             string          `json:"course_id"`
	Name                 string          `json:"name"`
	Cron                 string          `json:"cron"` // 6-field cron expression, "now", or "never"
	CourseInstanceFilter string          `json:"course_instance_filter,omitempty"`
	Schema               []ScheduleEntry `json:"schema"`
	// Running is a liveness flag: true only while a firing triggered by this
	// schedule is in flight. A true value found at process start means the
	// previous process died mid-run.
	Running   bool      `json:"running"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// cronParser accepts the standard 6-field syntax (seconds first)
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCron validates a schedule's cron value, accepting the two sentinels
func ValidateCron(expr string) error {
	if expr == CronNow || expr == CronNever {
		return nil
	}
	if strings.TrimSpace(expr) == "" {
		return errors.New("cron expression is required")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// CronParser exposes the 6-field parser for timer registration
func CronParser() cron.Parser {
	return cronParser
}

// HasTimer reports whether the schedule's cron value calls for a recurring timer
func (s *Schedule) HasTimer() bool {
	return s.Cron != CronNow && s.Cron != CronNever
}

// Validate validates the schedule
func (s *Schedule) Validate() error {
	if s.ID == "" {
		return errors.New("schedule ID is required")
	}
	if s.CourseID == "" {
		return errors.New("schedule course ID is required")
	}
	if s.Name == "" {
		return errors.New("schedule name is required")
	}
	if err := ValidateCron(s.Cron); err != nil {
		return err
	}
	if len(s.Schema) == 0 {
		return errors.New("schedule schema must contain at least one entry")
	}
	for i, entry := range s.Schema {
		segments := strings.Split(entry.Action, ".")
		if len(segments) < 2 || len(segments) > 4 {
			return fmt.Errorf("schema entry %d: action %q must have 2 to 4 dotted segments", i, entry.Action)
		}
		for _, seg := range segments {
			if seg == "" {
				return fmt.Errorf("schema entry %d: action %q has an empty segment", i, entry.Action)
			}
		}
	}
	if s.CourseInstanceFilter != "" {
		var probe map[string]any
		if err := json.Unmarshal([]byte(s.CourseInstanceFilter), &probe); err != nil {
			return fmt.Errorf("invalid course instance filter: %w", err)
		}
	}
	return nil
}
