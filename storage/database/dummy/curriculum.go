package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/curriculum"
)

type curriculumRepository struct {
	db *curriculumTables
}

var _ curriculum.Repository = (*curriculumRepository)(nil) // interface compliance check

func NewCurriculumRepository(db *DB) *curriculumRepository {
	return &curriculumRepository{db: db.curriculum}
}

func (repo *curriculumRepository) CreateSubject(_ context.Context, sub curriculum.Subject, _ ...core.DBExecutor) (curriculum.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.subjectPK++
	sub.ID = repo.db.subjectPK
	repo.db.subjects[sub.ID] = &sub
	return sub, nil
}

func (repo *curriculumRepository) GetSubjectByID(_ context.Context, id int, _ ...core.DBExecutor) (curriculum.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sub, ok := repo.db.subjects[id]; ok {
		return *sub, nil
	}
	return curriculum.Subject{}, curriculum.ErrSubjectNotFound
}

func (repo *curriculumRepository) GetSubjectByName(_ context.Context, name string, _ ...core.DBExecutor) (curriculum.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, sub := range repo.db.subjects {
		if sub.Name == name {
			return *sub, nil
		}
	}
	return curriculum.Subject{}, curriculum.ErrSubjectNotFound
}

func (repo *curriculumRepository) QueryAllSubjects(_ context.Context) ([]curriculum.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subs := make([]curriculum.Subject, 0, len(repo.db.subjects))
	for _, sub := range repo.db.subjects {
		subs = append(subs, *sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Name < subs[j].Name })
	return subs, nil
}

func (repo *curriculumRepository) CreateLevel(_ context.Context, lvl curriculum.Level, _ ...core.DBExecutor) (curriculum.Level, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.levelPK++
	lvl.ID = repo.db.levelPK
	repo.db.levels[lvl.ID] = &lvl
	return lvl, nil
}

func (repo *curriculumRepository) GetLevelByID(_ context.Context, id int, _ ...core.DBExecutor) (curriculum.Level, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if lvl, ok := repo.db.levels[id]; ok {
		return *lvl, nil
	}
	return curriculum.Level{}, curriculum.ErrLevelNotFound
}

func (repo *curriculumRepository) GetLevelByName(_ context.Context, name string, _ ...core.DBExecutor) (curriculum.Level, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, lvl := range repo.db.levels {
		if lvl.Name == name {
			return *lvl, nil
		}
	}
	return curriculum.Level{}, curriculum.ErrLevelNotFound
}

func (repo *curriculumRepository) QueryAllLevels(_ context.Context) ([]curriculum.Level, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	lvls := make([]curriculum.Level, 0, len(repo.db.levels))
	for _, lvl := range repo.db.levels {
		lvls = append(lvls, *lvl)
	}
	sort.Slice(lvls, func(i, j int) bool { return lvls[i].Name < lvls[j].Name })
	return lvls, nil
}

func (repo *curriculumRepository) CreateLesson(_ context.Context, les curriculum.Lesson, _ ...core.DBExecutor) (curriculum.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.lessonPK++
	les.ID = repo.db.lessonPK
	repo.db.lessons[les.ID] = &les
	return les, nil
}

func (repo *curriculumRepository) GetLessonByID(_ context.Context, id int, _ ...core.DBExecutor) (curriculum.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if les, ok := repo.db.lessons[id]; ok {
		return *les, nil
	}
	return curriculum.Lesson{}, curriculum.ErrLessonNotFound
}

func (repo *curriculumRepository) FilterLessons(_ context.Context, filter curriculum.LessonFilter) ([]curriculum.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	lessons := make([]curriculum.Lesson, 0, len(repo.db.lessons))
	for _, les := range repo.db.lessons {
		if les.IsDeleted && !filter.IncludeDeleted {
			continue
		}
		if filter.SubjectID != 0 && les.SubjectID != filter.SubjectID {
			continue
		}
		lessons = append(lessons, *les)
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].CreatedAt.After(lessons[j].CreatedAt) })
	return lessons, nil
}

func (repo *curriculumRepository) UpdateLessonDeleted(_ context.Context, id int, deleted bool, at time.Time) (curriculum.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	les, ok := repo.db.lessons[id]
	if !ok {
		return curriculum.Lesson{}, curriculum.ErrLessonNotFound
	}
	les.IsDeleted = deleted
	if deleted {
		les.DeletedAt = null.TimeFrom(at)
	} else {
		les.DeletedAt = null.Time{}
	}
	les.UpdatedAt = at
	return *les, nil
}
