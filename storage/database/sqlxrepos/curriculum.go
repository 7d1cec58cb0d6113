package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/curriculum"
)

type lessonRow struct {
	ID        int       `db:"id"`
	Title     string    `db:"title"`
	SubjectID int       `db:"subject_id"`
	Topic     string    `db:"topic"`
	Content   string    `db:"content"`
	MentorID  null.Int  `db:"mentor_id"`
	IsDeleted bool      `db:"is_deleted"`
	DeletedAt null.Time `db:"deleted_at"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row lessonRow) domain() curriculum.Lesson {
	return curriculum.Lesson{
		ID:        row.ID,
		Title:     row.Title,
		SubjectID: row.SubjectID,
		Topic:     row.Topic,
		Content:   row.Content,
		MentorID:  row.MentorID,
		IsDeleted: row.IsDeleted,
		DeletedAt: row.DeletedAt,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

type curriculumRepository struct {
	db *sqlx.DB
}

var _ curriculum.Repository = (*curriculumRepository)(nil) // interface compliance check

func NewCurriculumRepository(db *sqlx.DB) *curriculumRepository {
	return &curriculumRepository{db: db}
}

func (repo *curriculumRepository) CreateSubject(ctx context.Context, sub curriculum.Subject, exec ...core.DBExecutor) (curriculum.Subject, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx, `
		INSERT INTO subjects (name, description) VALUES ($1, $2) RETURNING id`,
		sub.Name, sub.Description,
	).Scan(&sub.ID)
	if err != nil {
		return curriculum.Subject{}, errors.Wrap(err, "creating subject")
	}
	return sub, nil
}

func (repo *curriculumRepository) GetSubjectByID(ctx context.Context, id int, exec ...core.DBExecutor) (curriculum.Subject, error) {
	var sub curriculum.Subject
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT id, name, description FROM subjects WHERE id = $1`, id,
	).Scan(&sub.ID, &sub.Name, &sub.Description)
	if err == sql.ErrNoRows {
		return curriculum.Subject{}, curriculum.ErrSubjectNotFound
	}
	if err != nil {
		return curriculum.Subject{}, errors.Wrap(err, "getting subject")
	}
	return sub, nil
}

func (repo *curriculumRepository) GetSubjectByName(ctx context.Context, name string, exec ...core.DBExecutor) (curriculum.Subject, error) {
	var sub curriculum.Subject
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT id, name, description FROM subjects WHERE name = $1`, name,
	).Scan(&sub.ID, &sub.Name, &sub.Description)
	if err == sql.ErrNoRows {
		return curriculum.Subject{}, curriculum.ErrSubjectNotFound
	}
	if err != nil {
		return curriculum.Subject{}, errors.Wrap(err, "getting subject by name")
	}
	return sub, nil
}

func (repo *curriculumRepository) QueryAllSubjects(ctx context.Context) ([]curriculum.Subject, error) {
	subs := make([]curriculum.Subject, 0)
	if err := repo.db.SelectContext(ctx, &subs, `SELECT * FROM subjects ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	return subs, nil
}

func (repo *curriculumRepository) CreateLevel(ctx context.Context, lvl curriculum.Level, exec ...core.DBExecutor) (curriculum.Level, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx, `
		INSERT INTO levels (name, description) VALUES ($1, $2) RETURNING id`,
		lvl.Name, lvl.Description,
	).Scan(&lvl.ID)
	if err != nil {
		return curriculum.Level{}, errors.Wrap(err, "creating level")
	}
	return lvl, nil
}

func (repo *curriculumRepository) GetLevelByID(ctx context.Context, id int, exec ...core.DBExecutor) (curriculum.Level, error) {
	var lvl curriculum.Level
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT id, name, description FROM levels WHERE id = $1`, id,
	).Scan(&lvl.ID, &lvl.Name, &lvl.Description)
	if err == sql.ErrNoRows {
		return curriculum.Level{}, curriculum.ErrLevelNotFound
	}
	if err != nil {
		return curriculum.Level{}, errors.Wrap(err, "getting level")
	}
	return lvl, nil
}

func (repo *curriculumRepository) GetLevelByName(ctx context.Context, name string, exec ...core.DBExecutor) (curriculum.Level, error) {
	var lvl curriculum.Level
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT id, name, description FROM levels WHERE name = $1`, name,
	).Scan(&lvl.ID, &lvl.Name, &lvl.Description)
	if err == sql.ErrNoRows {
		return curriculum.Level{}, curriculum.ErrLevelNotFound
	}
	if err != nil {
		return curriculum.Level{}, errors.Wrap(err, "getting level by name")
	}
	return lvl, nil
}

func (repo *curriculumRepository) QueryAllLevels(ctx context.Context) ([]curriculum.Level, error) {
	lvls := make([]curriculum.Level, 0)
	if err := repo.db.SelectContext(ctx, &lvls, `SELECT * FROM levels ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "querying levels")
	}
	return lvls, nil
}

func (repo *curriculumRepository) CreateLesson(ctx context.Context, les curriculum.Lesson, exec ...core.DBExecutor) (curriculum.Lesson, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx, `
		INSERT INTO lessons (title, subject_id, topic, content, mentor_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		les.Title, les.SubjectID, les.Topic, les.Content, les.MentorID,
	).Scan(&les.ID, &les.CreatedAt, &les.UpdatedAt)
	if err != nil {
		return curriculum.Lesson{}, errors.Wrap(err, "creating lesson")
	}
	return les, nil
}

func (repo *curriculumRepository) GetLessonByID(ctx context.Context, id int, exec ...core.DBExecutor) (curriculum.Lesson, error) {
	var row lessonRow
	err := getExec(repo.db, exec).QueryRowContext(ctx, `
		SELECT id, title, subject_id, topic, content, mentor_id, is_deleted, deleted_at, created_at, updated_at
		FROM lessons WHERE id = $1`, id,
	).Scan(&row.ID, &row.Title, &row.SubjectID, &row.Topic, &row.Content, &row.MentorID,
		&row.IsDeleted, &row.DeletedAt, &row.CreatedAt, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return curriculum.Lesson{}, curriculum.ErrLessonNotFound
	}
	if err != nil {
		return curriculum.Lesson{}, errors.Wrap(err, "getting lesson")
	}
	return row.domain(), nil
}

func (repo *curriculumRepository) FilterLessons(ctx context.Context, filter curriculum.LessonFilter) ([]curriculum.Lesson, error) {
	q := `SELECT * FROM lessons WHERE ($1 = 0 OR subject_id = $1)`
	if !filter.IncludeDeleted {
		q += ` AND NOT is_deleted`
	}
	q += ` ORDER BY created_at DESC`

	rows := make([]lessonRow, 0)
	if err := repo.db.SelectContext(ctx, &rows, q, filter.SubjectID); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	lessons := make([]curriculum.Lesson, len(rows))
	for i, row := range rows {
		lessons[i] = row.domain()
	}
	return lessons, nil
}

func (repo *curriculumRepository) UpdateLessonDeleted(ctx context.Context, id int, deleted bool, at time.Time) (curriculum.Lesson, error) {
	var deletedAt null.Time
	if deleted {
		deletedAt = null.TimeFrom(at)
	}
	res, err := repo.db.ExecContext(ctx, `
		UPDATE lessons SET is_deleted = $2, deleted_at = $3, updated_at = $4 WHERE id = $1`,
		id, deleted, deletedAt, at,
	)
	if err != nil {
		return curriculum.Lesson{}, errors.Wrap(err, "updating lesson deletion")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return curriculum.Lesson{}, curriculum.ErrLessonNotFound
	}
	return repo.GetLessonByID(ctx, id)
}
