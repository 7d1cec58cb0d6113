package curriculum_test

import (
	"context"
	"testing"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/curriculum"
	dummydb "github.com/mokykla/backend/storage/database/dummy"
)

func setup(t *testing.T) (*curriculum.Service, *curriculum.Importer, curriculum.Repository) {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatal(err)
	}
	repo := dummydb.NewCurriculumRepository(db)
	return curriculum.NewService(repo), curriculum.NewImporter(db, repo, core.NopLogger{}), repo
}

func TestImporter_Import(t *testing.T) {
	svc, imp, _ := setup(t)
	ctx := context.Background()

	// one subject pre-exists; the import must reuse it, not duplicate
	if _, err := svc.CreateSubject(ctx, curriculum.NewSubject{Name: "Mathematics"}); err != nil {
		t.Fatal(err)
	}

	report, err := imp.Import(ctx, curriculum.ImportSpec{
		Subjects: []curriculum.ImportSubject{
			{Name: "Mathematics"},
			{Name: "Physics", Description: "natural sciences"},
		},
		Levels: []curriculum.ImportLevel{{Name: "Grade 7"}},
		Lessons: []curriculum.ImportLesson{
			{Title: "Fractions", Subject: "Mathematics"},
			{Title: "Kinematics", Subject: "Physics"},
			// references a subject declared nowhere: created on the fly
			{Title: "Cells", Subject: "Biology"},
		},
	})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if report.SubjectsCreated != 2 || report.SubjectsReused != 1 {
		t.Errorf("subjects created %d reused %d, want 2/1", report.SubjectsCreated, report.SubjectsReused)
	}
	if report.LevelsCreated != 1 {
		t.Errorf("LevelsCreated = %d, want 1", report.LevelsCreated)
	}
	if report.LessonsCreated != 3 {
		t.Errorf("LessonsCreated = %d, want 3", report.LessonsCreated)
	}

	subjects, err := svc.QuerySubjects(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(subjects) != 3 {
		t.Errorf("len(subjects) = %d, want 3 (no duplicate Mathematics)", len(subjects))
	}

	lessons, err := svc.QueryLessons(ctx, curriculum.LessonFilter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, les := range lessons {
		if les.SubjectID == 0 {
			t.Errorf("lesson %q has no resolved subject", les.Title)
		}
	}
}

func TestImporter_Import_validation(t *testing.T) {
	_, imp, _ := setup(t)

	_, err := imp.Import(context.Background(), curriculum.ImportSpec{
		Lessons: []curriculum.ImportLesson{{Title: "", Subject: ""}},
	})
	vErr, ok := err.(*core.ValidationError)
	if !ok {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if len(vErr.Fields) != 2 {
		t.Errorf("field errors = %+v, want title and subject flagged", vErr.Fields)
	}
}

func TestService_lessonSoftDelete(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	sub, err := svc.CreateSubject(ctx, curriculum.NewSubject{Name: "Mathematics"})
	if err != nil {
		t.Fatal(err)
	}
	les, err := svc.CreateLesson(ctx, curriculum.NewLesson{Title: "Fractions", SubjectID: sub.ID})
	if err != nil {
		t.Fatal(err)
	}

	if _, err = svc.SoftDeleteLesson(ctx, les.ID); err != nil {
		t.Fatalf("SoftDeleteLesson() error = %v", err)
	}

	// deleted lessons only show up when explicitly asked for
	visible, err := svc.QueryLessons(ctx, curriculum.LessonFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 0 {
		t.Errorf("len(visible) = %d, want 0", len(visible))
	}
	all, err := svc.QueryLessons(ctx, curriculum.LessonFilter{IncludeDeleted: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || !all[0].IsDeleted || !all[0].DeletedAt.Valid {
		t.Errorf("all = %+v, want one deleted lesson with DeletedAt set", all)
	}

	// direct lookup still works; history references stay intact
	if _, err = svc.GetLesson(ctx, les.ID); err != nil {
		t.Errorf("GetLesson() after delete error = %v", err)
	}

	restored, err := svc.RestoreLesson(ctx, les.ID)
	if err != nil {
		t.Fatalf("RestoreLesson() error = %v", err)
	}
	if restored.IsDeleted || restored.DeletedAt.Valid {
		t.Errorf("restored = %+v, want flags cleared", restored)
	}
}

func TestService_CreateSubject_uniqueName(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.CreateSubject(ctx, curriculum.NewSubject{Name: "Mathematics"}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.CreateSubject(ctx, curriculum.NewSubject{Name: " Mathematics "})
	if _, ok := err.(*core.ValidationError); !ok {
		t.Errorf("error = %v, want ValidationError", err)
	}
}
