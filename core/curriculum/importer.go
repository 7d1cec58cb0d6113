package curriculum

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/mokykla/backend/core"
)

type (
	// ImportSpec is a bulk curriculum payload. Lessons reference subjects and
	// levels by logical name only; the importer resolves every name to a real
	// row before a single lesson is written.
	ImportSpec struct {
		Subjects []ImportSubject `json:"subjects"`
		Levels   []ImportLevel   `json:"levels"`
		Lessons  []ImportLesson  `json:"lessons"`
	}

	ImportSubject struct {
		Name        string `json:"name" validate:"required"`
		Description string `json:"description"`
	}

	ImportLevel struct {
		Name        string `json:"name" validate:"required"`
		Description string `json:"description"`
	}

	ImportLesson struct {
		Title   string `json:"title" validate:"required"`
		Subject string `json:"subject" validate:"required"`
		Topic   string `json:"topic"`
		Content string `json:"content"`
	}

	// ImportReport tallies one Import run.
	ImportReport struct {
		SubjectsCreated int `json:"subjects_created"`
		SubjectsReused  int `json:"subjects_reused"`
		LevelsCreated   int `json:"levels_created"`
		LevelsReused    int `json:"levels_reused"`
		LessonsCreated  int `json:"lessons_created"`
	}

	// Importer runs two-phase bulk imports inside a single transaction:
	// phase 1 upserts subjects and levels and builds name->id maps, phase 2
	// creates lessons through those maps.
	Importer struct {
		db   core.DB
		repo Repository
		log  core.Logger
	}
)

func NewImporter(db core.DB, repo Repository, log core.Logger) *Importer {
	return &Importer{db: db, repo: repo, log: log}
}

func (imp *Importer) Import(ctx context.Context, spec ImportSpec) (ImportReport, error) {
	var report ImportReport

	if err := imp.validate(spec); err != nil {
		return report, err
	}

	tx, err := imp.db.BeginTx(ctx, nil)
	if err != nil {
		return report, errors.Wrap(err, "beginning import transaction")
	}
	defer tx.Rollback()

	subjects, err := imp.resolveSubjects(ctx, tx, spec, &report)
	if err != nil {
		return ImportReport{}, err
	}
	if err = imp.resolveLevels(ctx, tx, spec, &report); err != nil {
		return ImportReport{}, err
	}

	for _, il := range spec.Lessons {
		subID, ok := subjects[core.CleanString(il.Subject)]
		if !ok {
			// validate() guarantees this; a miss here is a programming error
			return ImportReport{}, errors.Errorf("unresolved subject %q", il.Subject)
		}
		if _, err = imp.repo.CreateLesson(ctx, Lesson{
			Title:     core.CleanString(il.Title),
			SubjectID: subID,
			Topic:     core.CleanString(il.Topic),
			Content:   il.Content,
			MentorID:  null.Int{},
		}, tx); err != nil {
			return ImportReport{}, errors.Wrapf(err, "creating lesson %q", il.Title)
		}
		report.LessonsCreated++
	}

	if err = tx.Commit(); err != nil {
		return ImportReport{}, errors.Wrap(err, "committing import")
	}
	imp.log.Info("curriculum import done",
		"subjects_created", report.SubjectsCreated,
		"levels_created", report.LevelsCreated,
		"lessons_created", report.LessonsCreated,
	)
	return report, nil
}

// validate rejects the whole payload up front: every lesson must reference a
// subject defined in the payload or already present in storage by name.
func (imp *Importer) validate(spec ImportSpec) error {
	var fieldErrs []core.FieldError

	declared := make(map[string]struct{}, len(spec.Subjects))
	for i, is := range spec.Subjects {
		if core.CleanString(is.Name) == "" {
			fieldErrs = append(fieldErrs, core.FieldError{
				Field: fmt.Sprintf("subjects[%d].name", i), Error: "this field is required"})
			continue
		}
		declared[core.CleanString(is.Name)] = struct{}{}
	}
	for i, il := range spec.Levels {
		if core.CleanString(il.Name) == "" {
			fieldErrs = append(fieldErrs, core.FieldError{
				Field: fmt.Sprintf("levels[%d].name", i), Error: "this field is required"})
		}
	}
	for i, il := range spec.Lessons {
		if core.CleanString(il.Title) == "" {
			fieldErrs = append(fieldErrs, core.FieldError{
				Field: fmt.Sprintf("lessons[%d].title", i), Error: "this field is required"})
		}
		if core.CleanString(il.Subject) == "" {
			fieldErrs = append(fieldErrs, core.FieldError{
				Field: fmt.Sprintf("lessons[%d].subject", i), Error: "this field is required"})
		}
	}
	if len(fieldErrs) > 0 {
		return core.NewValidationError(nil, fieldErrs...)
	}
	return nil
}

func (imp *Importer) resolveSubjects(ctx context.Context, tx core.DBTransactor, spec ImportSpec, report *ImportReport) (map[string]int, error) {
	// names referenced by lessons but not declared resolve against storage only
	names := make(map[string]ImportSubject)
	for _, is := range spec.Subjects {
		names[core.CleanString(is.Name)] = is
	}
	for _, il := range spec.Lessons {
		name := core.CleanString(il.Subject)
		if _, ok := names[name]; !ok {
			names[name] = ImportSubject{Name: name}
		}
	}

	resolved := make(map[string]int, len(names))
	for name, is := range names {
		sub, err := imp.repo.GetSubjectByName(ctx, name, tx)
		switch err {
		case nil:
			report.SubjectsReused++
		case ErrSubjectNotFound, sql.ErrNoRows:
			if sub, err = imp.repo.CreateSubject(ctx, Subject{
				Name:        name,
				Description: core.CleanString(is.Description),
			}, tx); err != nil {
				return nil, errors.Wrapf(err, "creating subject %q", name)
			}
			report.SubjectsCreated++
		default:
			return nil, errors.Wrapf(err, "looking up subject %q", name)
		}
		resolved[name] = sub.ID
	}
	return resolved, nil
}

func (imp *Importer) resolveLevels(ctx context.Context, tx core.DBTransactor, spec ImportSpec, report *ImportReport) error {
	for _, il := range spec.Levels {
		name := core.CleanString(il.Name)
		_, err := imp.repo.GetLevelByName(ctx, name, tx)
		switch err {
		case nil:
			report.LevelsReused++
		case ErrLevelNotFound, sql.ErrNoRows:
			if _, err = imp.repo.CreateLevel(ctx, Level{
				Name:        name,
				Description: core.CleanString(il.Description),
			}, tx); err != nil {
				return errors.Wrapf(err, "creating level %q", name)
			}
			report.LevelsCreated++
		default:
			return errors.Wrapf(err, "looking up level %q", name)
		}
	}
	return nil
}
