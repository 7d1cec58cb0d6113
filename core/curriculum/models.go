package curriculum

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/mokykla/backend/core"
)

type (
	// Subject is a taught discipline.
	Subject struct {
		ID          int    `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	// Level is a teaching level a lesson can target.
	Level struct {
		ID          int    `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	// Lesson is a reusable teaching-plan template. Lessons are never hard
	// deleted; IsDeleted keeps student history intact.
	Lesson struct {
		ID        int       `json:"id"`
		Title     string    `json:"title"`
		SubjectID int       `json:"subject_id"`
		Topic     string    `json:"topic"`
		Content   string    `json:"content"`
		MentorID  null.Int  `json:"mentor_id"`
		IsDeleted bool      `json:"is_deleted"`
		DeletedAt null.Time `json:"deleted_at"`
		CreatedAt time.Time `json:"created_at"` // UTC
		UpdatedAt time.Time `json:"updated_at"` // UTC
	}
)

type NewSubject struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (ns *NewSubject) Validate() error {
	ns.Name = core.CleanString(ns.Name)
	ns.Description = core.CleanString(ns.Description)
	return core.Validate.Struct(ns)
}

type NewLevel struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (nl *NewLevel) Validate() error {
	nl.Name = core.CleanString(nl.Name)
	nl.Description = core.CleanString(nl.Description)
	return core.Validate.Struct(nl)
}

type NewLesson struct {
	Title     string   `json:"title" validate:"required"`
	SubjectID int      `json:"subject_id" validate:"required"`
	Topic     string   `json:"topic"`
	Content   string   `json:"content"`
	MentorID  null.Int `json:"mentor_id"`
}

func (nl *NewLesson) Validate() error {
	nl.Title = core.CleanString(nl.Title)
	nl.Topic = core.CleanString(nl.Topic)
	return core.Validate.Struct(nl)
}

// LessonFilter narrows QueryLessons. Deleted rows are returned only when
// IncludeDeleted is set; there is no implicit filter anywhere else.
type LessonFilter struct {
	SubjectID      int
	IncludeDeleted bool
}
