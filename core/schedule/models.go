package schedule

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/mokykla/backend/core"
)

// PlanStatus is the lifecycle state of a GlobalSchedule slot.
type PlanStatus string

const (
	StatusPlanned    PlanStatus = "planned"
	StatusInProgress PlanStatus = "in_progress"
	StatusCompleted  PlanStatus = "completed"
)

func ValidStatus(s PlanStatus) bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type (
	// Period is a named teaching time-window within a day. EndTime is always
	// derived from StartTime + Duration, never stored independently.
	Period struct {
		ID        int    `json:"id"`
		Name      string `json:"name"`
		StartTime string `json:"start_time"` // HH:MM
		Duration  int    `json:"duration"`   // minutes
	}

	Classroom struct {
		ID          int    `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	// GlobalSchedule is a calendar slot: at most one per
	// (date, period, classroom).
	GlobalSchedule struct {
		ID          int        `json:"id"`
		Date        time.Time  `json:"date"` // date only, UTC midnight
		Weekday     string     `json:"weekday"`
		PeriodID    int        `json:"period_id"`
		ClassroomID int        `json:"classroom_id"`
		SubjectID   int        `json:"subject_id"`
		LevelID     int        `json:"level_id"`
		MentorID    int        `json:"mentor_id"`
		PlanStatus  PlanStatus `json:"plan_status"`
		StartedAt   null.Time  `json:"started_at"`
		CompletedAt null.Time  `json:"completed_at"`
		CreatedAt   time.Time  `json:"created_at"` // UTC
		UpdatedAt   time.Time  `json:"updated_at"` // UTC
	}
)

// EndTime computes the period's end from its start and duration.
func (p Period) EndTime() string {
	start, err := time.Parse(core.ClockFormat, p.StartTime)
	if err != nil {
		return ""
	}
	return start.Add(time.Duration(p.Duration) * time.Minute).Format(core.ClockFormat)
}

// IsActive reports whether the slot has left the planned state; active slots
// lock their plans' lesson assignments.
func (gs GlobalSchedule) IsActive() bool {
	return gs.PlanStatus != StatusPlanned
}

type NewPeriod struct {
	Name      string `json:"name"`
	StartTime string `json:"start_time" validate:"required,clocktime"`
	Duration  int    `json:"duration" validate:"required,min=1"`
}

func (np *NewPeriod) Validate() error {
	np.Name = core.CleanString(np.Name)
	np.StartTime = core.CleanString(np.StartTime)
	return core.Validate.Struct(np)
}

type NewClassroom struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (nc *NewClassroom) Validate() error {
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
	return core.Validate.Struct(nc)
}

type NewSlot struct {
	Date        string `json:"date" validate:"required,dateonly"`
	PeriodID    int    `json:"period_id" validate:"required"`
	ClassroomID int    `json:"classroom_id" validate:"required"`
	SubjectID   int    `json:"subject_id" validate:"required"`
	LevelID     int    `json:"level_id" validate:"required"`
	MentorID    int    `json:"mentor_id" validate:"required"`
}

func (ns *NewSlot) Validate() error {
	ns.Date = core.CleanString(ns.Date)
	return core.Validate.Struct(ns)
}

// ParsedDate returns the slot date at UTC midnight; call after Validate.
func (ns NewSlot) ParsedDate() time.Time {
	d, _ := time.Parse(core.DateFormat, ns.Date)
	return d
}

// UpdateSlot carries slot edits; lifecycle fields are only reachable through
// Start/End/Cancel.
type UpdateSlot struct {
	Date        string `json:"date" validate:"omitempty,dateonly"`
	PeriodID    int    `json:"period_id"`
	ClassroomID int    `json:"classroom_id"`
	SubjectID   int    `json:"subject_id"`
	LevelID     int    `json:"level_id"`
	MentorID    int    `json:"mentor_id"`
}

func (us *UpdateSlot) Validate() error {
	us.Date = core.CleanString(us.Date)
	return core.Validate.Struct(us)
}

// QueryFilter narrows FilterSlots; zero fields are ignored. Results are
// always ordered by (date, period start time).
type QueryFilter struct {
	SubjectID   int
	LevelID     int
	MentorID    int
	ClassroomID int
	DateFrom    time.Time
	DateTo      time.Time
	Statuses    []PlanStatus
}

// Weekday names a date's day of week the way the original data does.
func Weekday(date time.Time) string {
	return date.Weekday().String()
}
