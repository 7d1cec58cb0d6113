package plan

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/mokykla/backend/core"
)

// AttendanceStatus marks how a student attended one slot. The zero value on
// the wire is NULL: "not yet marked", excluded from every aggregate.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLeft    AttendanceStatus = "left"
	AttendanceExcused AttendanceStatus = "excused"
)

func ValidAttendance(s AttendanceStatus) bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLeft, AttendanceExcused:
		return true
	}
	return false
}

type (
	// IMUPlan binds one student to one schedule slot; at most one per pair.
	// Lesson stays writable only while the owning slot is planned.
	IMUPlan struct {
		ID               int         `json:"id"`
		StudentID        int         `json:"student_id"`
		GlobalScheduleID int         `json:"global_schedule_id"`
		LessonID         null.Int    `json:"lesson_id"`
		AttendanceStatus null.String `json:"attendance_status"`
		Notes            string      `json:"notes"`
		CreatedAt        time.Time   `json:"created_at"` // UTC
		UpdatedAt        time.Time   `json:"updated_at"` // UTC
	}

	// LessonSequence is an ordered curriculum template for a subject/level.
	LessonSequence struct {
		ID          int                  `json:"id"`
		Name        string               `json:"name"`
		Description string               `json:"description"`
		SubjectID   int                  `json:"subject_id"`
		LevelID     int                  `json:"level_id"`
		CreatedBy   null.Int             `json:"created_by"`
		IsActive    bool                 `json:"is_active"`
		CreatedAt   time.Time            `json:"created_at"` // UTC
		Items       []LessonSequenceItem `json:"items"`
	}

	// LessonSequenceItem places one lesson at a 1-based position. Positions
	// are unique per sequence, not necessarily contiguous, always read
	// ascending. LessonTitle is denormalized on read for reporting.
	LessonSequenceItem struct {
		ID          int    `json:"id"`
		SequenceID  int    `json:"sequence_id"`
		LessonID    int    `json:"lesson_id"`
		Position    int    `json:"position"`
		LessonTitle string `json:"lesson_title,omitempty"`
	}
)

type NewSequenceItem struct {
	LessonID int `json:"lesson_id" validate:"required"`
	Position int `json:"position" validate:"required,min=1"`
}

type NewSequence struct {
	Name        string            `json:"name" validate:"required"`
	Description string            `json:"description"`
	SubjectID   int               `json:"subject_id" validate:"required"`
	LevelID     int               `json:"level_id" validate:"required"`
	Items       []NewSequenceItem `json:"items" validate:"required,min=1,dive"`
}

func (ns *NewSequence) Validate() error {
	ns.Name = core.CleanString(ns.Name)
	ns.Description = core.CleanString(ns.Description)
	if err := core.Validate.Struct(ns); err != nil {
		return err
	}
	seen := make(map[int]struct{}, len(ns.Items))
	for _, item := range ns.Items {
		if _, dup := seen[item.Position]; dup {
			return core.NewValidationError(nil, core.FieldError{
				Field: "items", Error: "positions must be unique within a sequence"})
		}
		seen[item.Position] = struct{}{}
	}
	return nil
}

// GenerateInput is one generation-run request.
type GenerateInput struct {
	StudentID        int    `json:"student_id" validate:"required"`
	SubjectID        int    `json:"subject_id" validate:"required"`
	LevelID          int    `json:"level_id" validate:"required"`
	LessonSequenceID int    `json:"lesson_sequence_id" validate:"required"`
	StartDate        string `json:"start_date" validate:"required,dateonly"`
	EndDate          string `json:"end_date" validate:"required,dateonly"`
}

func (gi *GenerateInput) Validate() error {
	gi.StartDate = core.CleanString(gi.StartDate)
	gi.EndDate = core.CleanString(gi.EndDate)
	if err := core.Validate.Struct(gi); err != nil {
		return err
	}
	start, _ := time.Parse(core.DateFormat, gi.StartDate)
	end, _ := time.Parse(core.DateFormat, gi.EndDate)
	if !start.Before(end) {
		return core.NewValidationError(nil, core.FieldError{
			Field: "start_date", Error: "start_date must be before end_date"})
	}
	return nil
}

func (gi GenerateInput) DateRange() (time.Time, time.Time) {
	start, _ := time.Parse(core.DateFormat, gi.StartDate)
	end, _ := time.Parse(core.DateFormat, gi.EndDate)
	return start, end
}

type (
	// SkippedPlan records one slot a generation run refused to touch.
	SkippedPlan struct {
		SlotID int    `json:"slot_id"`
		Date   string `json:"date"`
		Reason string `json:"reason"`
	}

	// UnusedLesson is a trailing sequence item the run never placed.
	UnusedLesson struct {
		Position    int    `json:"position"`
		LessonTitle string `json:"lesson_title"`
	}

	// GenerationReport summarizes one generation run.
	GenerationReport struct {
		RunID         uuid.UUID      `json:"run_id"`
		StudentID     int            `json:"student_id"`
		Processed     int            `json:"processed"`
		Created       int            `json:"created"`
		Updated       int            `json:"updated"`
		Skipped       int            `json:"skipped"`
		SkippedPlans  []SkippedPlan  `json:"skipped_details"`
		NullLessons   int            `json:"null_lessons"`
		UnusedLessons []UnusedLesson `json:"unused_lessons"`
		InfoMessage   string         `json:"info_message,omitempty"`
	}

	// Stats is one student's attendance aggregate for a subject. Unmarked
	// plans never enter Total.
	Stats struct {
		StudentID  int `json:"student_id"`
		SubjectID  int `json:"subject_id"`
		Total      int `json:"total_records"`
		Present    int `json:"present_records"`
		Absent     int `json:"absent_records"`
		Left       int `json:"left_records"`
		Excused    int `json:"excused_records"`
		Percentage int `json:"percentage"`
	}

	// BulkStatsFilter narrows the bulk aggregate; SubjectID is mandatory.
	BulkStatsFilter struct {
		SubjectID        int
		GlobalScheduleID int
		LessonID         int
	}
)
