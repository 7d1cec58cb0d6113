package curriculum

import (
	"context"
	"errors"
	"time"

	"github.com/mokykla/backend/core"
)

var (
	// errors
	ErrSubjectNotFound = errors.New("subject not found")
	ErrLevelNotFound   = errors.New("level not found")
	ErrLessonNotFound  = errors.New("lesson not found")
	ErrSubjectExists   = errors.New("a subject with this name already exists")
	ErrLevelExists     = errors.New("a level with this name already exists")
)

type (
	Repository interface {
		CreateSubject(ctx context.Context, sub Subject, exec ...core.DBExecutor) (Subject, error)
		GetSubjectByID(ctx context.Context, id int, exec ...core.DBExecutor) (Subject, error)
		GetSubjectByName(ctx context.Context, name string, exec ...core.DBExecutor) (Subject, error)
		QueryAllSubjects(ctx context.Context) ([]Subject, error)

		CreateLevel(ctx context.Context, lvl Level, exec ...core.DBExecutor) (Level, error)
		GetLevelByID(ctx context.Context, id int, exec ...core.DBExecutor) (Level, error)
		GetLevelByName(ctx context.Context, name string, exec ...core.DBExecutor) (Level, error)
		QueryAllLevels(ctx context.Context) ([]Level, error)

		CreateLesson(ctx context.Context, les Lesson, exec ...core.DBExecutor) (Lesson, error)
		// GetLessonByID returns the lesson whether or not it is soft-deleted;
		// callers that care must check IsDeleted themselves.
		GetLessonByID(ctx context.Context, id int, exec ...core.DBExecutor) (Lesson, error)
		FilterLessons(ctx context.Context, filter LessonFilter) ([]Lesson, error)
		UpdateLessonDeleted(ctx context.Context, id int, deleted bool, at time.Time) (Lesson, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CreateSubject(ctx context.Context, ns NewSubject) (Subject, error) {
	if err := ns.Validate(); err != nil {
		return Subject{}, err
	}
	if _, err := svc.repo.GetSubjectByName(ctx, ns.Name); err == nil {
		return Subject{}, core.NewValidationError(ErrSubjectExists, core.FieldError{Field: "name", Error: ErrSubjectExists.Error()})
	} else if err != ErrSubjectNotFound {
		return Subject{}, err
	}
	return svc.repo.CreateSubject(ctx, Subject{Name: ns.Name, Description: ns.Description})
}

func (svc *Service) QuerySubjects(ctx context.Context) ([]Subject, error) {
	return svc.repo.QueryAllSubjects(ctx)
}

func (svc *Service) CreateLevel(ctx context.Context, nl NewLevel) (Level, error) {
	if err := nl.Validate(); err != nil {
		return Level{}, err
	}
	if _, err := svc.repo.GetLevelByName(ctx, nl.Name); err == nil {
		return Level{}, core.NewValidationError(ErrLevelExists, core.FieldError{Field: "name", Error: ErrLevelExists.Error()})
	} else if err != ErrLevelNotFound {
		return Level{}, err
	}
	return svc.repo.CreateLevel(ctx, Level{Name: nl.Name, Description: nl.Description})
}

func (svc *Service) QueryLevels(ctx context.Context) ([]Level, error) {
	return svc.repo.QueryAllLevels(ctx)
}

func (svc *Service) CreateLesson(ctx context.Context, nl NewLesson) (Lesson, error) {
	if err := nl.Validate(); err != nil {
		return Lesson{}, err
	}
	if _, err := svc.repo.GetSubjectByID(ctx, nl.SubjectID); err != nil {
		if err == ErrSubjectNotFound {
			return Lesson{}, core.NewValidationError(err, core.FieldError{Field: "subject_id", Error: err.Error()})
		}
		return Lesson{}, err
	}
	now := time.Now().UTC()
	les := Lesson{
		Title:     nl.Title,
		SubjectID: nl.SubjectID,
		Topic:     nl.Topic,
		Content:   nl.Content,
		MentorID:  nl.MentorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateLesson(ctx, les)
}

func (svc *Service) GetLesson(ctx context.Context, id int) (Lesson, error) {
	return svc.repo.GetLessonByID(ctx, id)
}

func (svc *Service) QueryLessons(ctx context.Context, filter LessonFilter) ([]Lesson, error) {
	return svc.repo.FilterLessons(ctx, filter)
}

// SoftDeleteLesson flags a lesson as deleted without touching plans that
// reference it; student history survives.
func (svc *Service) SoftDeleteLesson(ctx context.Context, id int) (Lesson, error) {
	return svc.repo.UpdateLessonDeleted(ctx, id, true, time.Now().UTC())
}

func (svc *Service) RestoreLesson(ctx context.Context, id int) (Lesson, error) {
	return svc.repo.UpdateLessonDeleted(ctx, id, false, time.Now().UTC())
}
