package models

import (
	"strings"
	"testing"
)

func validSchedule() *Schedule {
	return &Schedule{
		ID:       "sched_test",
		CourseID: "course_essay",
		Name:     "nightly grading",
		Cron:     "0 0 2 * * *",
		Schema: []ScheduleEntry{
			{Action: "essay.writing.draft.grade"},
		},
	}
}

func TestValidateCron(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"six field expression", "0 */5 * * * *", false},
		{"every second", "* * * * * *", false},
		{"now sentinel", CronNow, false},
		{"never sentinel", CronNever, false},
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"five fields", "*/5 * * * *", true},
		{"garbage", "not a cron", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCron(tt.expr)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateCron(%q) = nil, want error", tt.expr)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateCron(%q) = %v, want nil", tt.expr, err)
			}
		})
	}
}

func TestScheduleHasTimer(t *testing.T) {
	s := validSchedule()
	if !s.HasTimer() {
		t.Error("cron expression schedule should have a timer")
	}

	s.Cron = CronNow
	if s.HasTimer() {
		t.Error("now schedule should not have a timer")
	}

	s.Cron = CronNever
	if s.HasTimer() {
		t.Error("never schedule should not have a timer")
	}
}

func TestScheduleValidate(t *testing.T) {
	if err := validSchedule().Validate(); err != nil {
		t.Fatalf("valid schedule failed validation: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Schedule)
		wantMsg string
	}{
		{"missing id", func(s *Schedule) { s.ID = "" }, "ID is required"},
		{"missing course", func(s *Schedule) { s.CourseID = "" }, "course ID is required"},
		{"missing name", func(s *Schedule) { s.Name = "" }, "name is required"},
		{"bad cron", func(s *Schedule) { s.Cron = "bogus" }, "invalid cron"},
		{"empty schema", func(s *Schedule) { s.Schema = nil }, "at least one entry"},
		{"one segment action", func(s *Schedule) { s.Schema = []ScheduleEntry{{Action: "grade"}} }, "2 to 4 dotted segments"},
		{"five segment action", func(s *Schedule) { s.Schema = []ScheduleEntry{{Action: "a.b.c.d.e"}} }, "2 to 4 dotted segments"},
		{"empty segment", func(s *Schedule) { s.Schema = []ScheduleEntry{{Action: "essay..grade"}} }, "empty segment"},
		{"broken filter json", func(s *Schedule) { s.CourseInstanceFilter = "{not json" }, "invalid course instance filter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSchedule()
			tt.mutate(s)
			err := s.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestScheduleValidateAcceptsSentinelsAndFilter(t *testing.T) {
	s := validSchedule()
	s.Cron = CronNow
	s.CourseInstanceFilter = `{"type":"essay","locked":false,"cohort":"2026"}`
	if err := s.Validate(); err != nil {
		t.Fatalf("schedule with sentinel cron and filter failed validation: %v", err)
	}
}
