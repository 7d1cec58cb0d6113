package plan_test

import (
	"context"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/curriculum"
	"github.com/mokykla/backend/core/plan"
	"github.com/mokykla/backend/core/schedule"
	dummydb "github.com/mokykla/backend/storage/database/dummy"
)

const (
	subjectID = 1
	levelID   = 1
	studentID = 10
	mentorID  = 20
)

type testEnv struct {
	svc       *plan.Service
	planRepo  plan.Repository
	schedRepo schedule.Repository
	curRepo   curriculum.Repository
	period    schedule.Period
	classroom schedule.Classroom
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatal(err)
	}
	planRepo := dummydb.NewPlanRepository(db)
	schedRepo := dummydb.NewScheduleRepository(db)
	curRepo := dummydb.NewCurriculumRepository(db)

	period, err := schedRepo.CreatePeriod(ctx, schedule.Period{Name: "1st period", StartTime: "08:00", Duration: 45})
	if err != nil {
		t.Fatal(err)
	}
	classroom, err := schedRepo.CreateClassroom(ctx, schedule.Classroom{Name: "A1"})
	if err != nil {
		t.Fatal(err)
	}

	return &testEnv{
		svc:       plan.NewService(db, planRepo, schedRepo, core.NopLogger{}),
		planRepo:  planRepo,
		schedRepo: schedRepo,
		curRepo:   curRepo,
		period:    period,
		classroom: classroom,
	}
}

// seedSlot persists a planned slot on the shared period; room varies per date
// so uniqueness never trips.
func (env *testEnv) seedSlot(t *testing.T, date string) schedule.GlobalSchedule {
	t.Helper()
	d, err := time.Parse(core.DateFormat, date)
	if err != nil {
		t.Fatal(err)
	}
	room, err := env.schedRepo.CreateClassroom(context.Background(), schedule.Classroom{Name: "room for " + date})
	if err != nil {
		t.Fatal(err)
	}
	gs, err := env.schedRepo.CreateSlot(context.Background(), schedule.GlobalSchedule{
		Date:        d,
		Weekday:     schedule.Weekday(d),
		PeriodID:    env.period.ID,
		ClassroomID: room.ID,
		SubjectID:   subjectID,
		LevelID:     levelID,
		MentorID:    mentorID,
		PlanStatus:  schedule.StatusPlanned,
	})
	if err != nil {
		t.Fatal(err)
	}
	return gs
}

// seedSequence creates lessons with the given titles and a sequence placing
// them at positions 1..n.
func (env *testEnv) seedSequence(t *testing.T, titles ...string) plan.LessonSequence {
	t.Helper()
	ctx := context.Background()

	items := make([]plan.NewSequenceItem, len(titles))
	for i, title := range titles {
		les, err := env.curRepo.CreateLesson(ctx, curriculum.Lesson{Title: title, SubjectID: subjectID})
		if err != nil {
			t.Fatal(err)
		}
		items[i] = plan.NewSequenceItem{LessonID: les.ID, Position: i + 1}
	}
	seq, err := env.svc.CreateSequence(ctx, plan.NewSequence{
		Name:      "seq " + titles[0],
		SubjectID: subjectID,
		LevelID:   levelID,
		Items:     items,
	}, null.Int{})
	if err != nil {
		t.Fatal(err)
	}
	return seq
}

func (env *testEnv) generate(t *testing.T, seqID int) plan.GenerationReport {
	t.Helper()
	report, err := env.svc.Generate(context.Background(), plan.GenerateInput{
		StudentID:        studentID,
		SubjectID:        subjectID,
		LevelID:          levelID,
		LessonSequenceID: seqID,
		StartDate:        "2026-09-01",
		EndDate:          "2026-09-30",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return report
}

func (env *testEnv) planFor(t *testing.T, slotID int) plan.IMUPlan {
	t.Helper()
	p, err := env.planRepo.GetPlanByStudentAndSlot(context.Background(), studentID, slotID)
	if err != nil {
		t.Fatalf("no plan for slot %d: %v", slotID, err)
	}
	return p
}

func TestService_Generate_assignmentOrdering(t *testing.T) {
	env := setup(t)

	slot1 := env.seedSlot(t, "2026-09-07")
	slot2 := env.seedSlot(t, "2026-09-08")
	seq := env.seedSequence(t, "A", "B", "C")

	report := env.generate(t, seq.ID)

	if report.Processed != 2 || report.Created != 2 || report.Updated != 0 || report.Skipped != 0 {
		t.Errorf("report = processed %d created %d updated %d skipped %d, want 2/2/0/0",
			report.Processed, report.Created, report.Updated, report.Skipped)
	}
	if got := env.planFor(t, slot1.ID).LessonID.Int; got != seq.Items[0].LessonID {
		t.Errorf("slot1 lesson = %d, want %d (A)", got, seq.Items[0].LessonID)
	}
	if got := env.planFor(t, slot2.ID).LessonID.Int; got != seq.Items[1].LessonID {
		t.Errorf("slot2 lesson = %d, want %d (B)", got, seq.Items[1].LessonID)
	}
	if len(report.UnusedLessons) != 1 || report.UnusedLessons[0].Position != 3 || report.UnusedLessons[0].LessonTitle != "C" {
		t.Errorf("UnusedLessons = %+v, want [{3 C}]", report.UnusedLessons)
	}
	if report.NullLessons != 0 {
		t.Errorf("NullLessons = %d, want 0", report.NullLessons)
	}
}

func TestService_Generate_sequenceExhausted(t *testing.T) {
	env := setup(t)

	env.seedSlot(t, "2026-09-07")
	env.seedSlot(t, "2026-09-08")
	slot3 := env.seedSlot(t, "2026-09-09")
	seq := env.seedSequence(t, "A", "B")

	report := env.generate(t, seq.ID)

	if report.Created != 3 {
		t.Errorf("Created = %d, want 3", report.Created)
	}
	if report.NullLessons != 1 {
		t.Errorf("NullLessons = %d, want 1", report.NullLessons)
	}
	if p := env.planFor(t, slot3.ID); p.LessonID.Valid {
		t.Errorf("slot3 lesson = %v, want null", p.LessonID.Int)
	}
	if len(report.UnusedLessons) != 0 {
		t.Errorf("UnusedLessons = %+v, want none", report.UnusedLessons)
	}
}

func TestService_Generate_idempotentForPlannedSlots(t *testing.T) {
	env := setup(t)

	slot1 := env.seedSlot(t, "2026-09-07")
	seq := env.seedSequence(t, "A")

	first := env.generate(t, seq.ID)
	second := env.generate(t, seq.ID)

	if first.Created != 1 {
		t.Errorf("first run Created = %d, want 1", first.Created)
	}
	if second.Created != 0 || second.Updated != 1 {
		t.Errorf("second run created %d updated %d, want 0/1", second.Created, second.Updated)
	}
	if got := env.planFor(t, slot1.ID).LessonID.Int; got != seq.Items[0].LessonID {
		t.Errorf("lesson = %d, want %d", got, seq.Items[0].LessonID)
	}
}

func TestService_Generate_lockedSlotSkipped(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	slot1 := env.seedSlot(t, "2026-09-07")
	env.seedSlot(t, "2026-09-08")
	seq := env.seedSequence(t, "A", "B")

	env.generate(t, seq.ID)
	assigned := env.planFor(t, slot1.ID).LessonID

	// the first activity begins; its plan is now locked
	if n, err := env.schedRepo.StartSlot(ctx, slot1.ID, time.Now().UTC()); err != nil || n != 1 {
		t.Fatalf("StartSlot() = %d, %v", n, err)
	}

	report := env.generate(t, seq.ID)

	if report.Skipped != 1 || len(report.SkippedPlans) != 1 {
		t.Fatalf("Skipped = %d (%+v), want 1 entry", report.Skipped, report.SkippedPlans)
	}
	skip := report.SkippedPlans[0]
	if skip.SlotID != slot1.ID || skip.Date != "2026-09-07" {
		t.Errorf("skip entry = %+v", skip)
	}
	if skip.Reason != `plan status "in_progress" - cannot overwrite` {
		t.Errorf("skip reason = %q", skip.Reason)
	}
	if got := env.planFor(t, slot1.ID).LessonID; got != assigned {
		t.Errorf("locked plan lesson changed: %v -> %v", assigned, got)
	}
	if report.Updated != 1 {
		t.Errorf("Updated = %d, want 1 (the still-planned slot)", report.Updated)
	}
}

func TestService_Generate_noMatchingSlots(t *testing.T) {
	env := setup(t)
	seq := env.seedSequence(t, "A")

	report := env.generate(t, seq.ID)

	if report.Processed != 0 || report.Created != 0 {
		t.Errorf("report = %+v, want all-zero counts", report)
	}
	if report.InfoMessage == "" {
		t.Error("InfoMessage not set for empty run")
	}
}

func TestService_Generate_validation(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	t.Run("start after end", func(t *testing.T) {
		_, err := env.svc.Generate(ctx, plan.GenerateInput{
			StudentID: studentID, SubjectID: subjectID, LevelID: levelID, LessonSequenceID: 1,
			StartDate: "2026-09-30", EndDate: "2026-09-01",
		})
		if _, ok := err.(*core.ValidationError); !ok {
			t.Errorf("error = %v, want ValidationError", err)
		}
	})
	t.Run("malformed date", func(t *testing.T) {
		_, err := env.svc.Generate(ctx, plan.GenerateInput{
			StudentID: studentID, SubjectID: subjectID, LevelID: levelID, LessonSequenceID: 1,
			StartDate: "07/09/2026", EndDate: "2026-09-30",
		})
		if err == nil {
			t.Error("expected a validation error for a non YYYY-MM-DD date")
		}
	})
	t.Run("unknown sequence", func(t *testing.T) {
		env.seedSlot(t, "2026-09-07")
		_, err := env.svc.Generate(ctx, plan.GenerateInput{
			StudentID: studentID, SubjectID: subjectID, LevelID: levelID, LessonSequenceID: 999,
			StartDate: "2026-09-01", EndDate: "2026-09-30",
		})
		if err != plan.ErrSequenceNotFound {
			t.Errorf("error = %v, want ErrSequenceNotFound", err)
		}
	})
}

func TestService_GetOrCreate(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	gs := env.seedSlot(t, "2026-09-07")

	p, err := env.svc.GetOrCreate(ctx, studentID, gs.ID)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if p.LessonID.Valid || p.AttendanceStatus.Valid {
		t.Error("fresh plan must have no lesson and unset attendance")
	}

	again, err := env.svc.GetOrCreate(ctx, studentID, gs.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != p.ID {
		t.Errorf("second call created a new plan: %d != %d", again.ID, p.ID)
	}

	if _, err = env.svc.GetOrCreate(ctx, studentID, 999); err != schedule.ErrSlotNotFound {
		t.Errorf("unknown slot error = %v, want ErrSlotNotFound", err)
	}
}

func TestService_SetAttendance(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	gs := env.seedSlot(t, "2026-09-07")
	p, err := env.svc.GetOrCreate(ctx, studentID, gs.ID)
	if err != nil {
		t.Fatal(err)
	}

	p, err = env.svc.SetAttendance(ctx, p.ID, null.StringFrom("absent"))
	if err != nil {
		t.Fatalf("SetAttendance() error = %v", err)
	}
	if p.AttendanceStatus.String != "absent" {
		t.Errorf("attendance = %q, want absent", p.AttendanceStatus.String)
	}

	// attendance stays editable after the slot goes active
	if n, err := env.schedRepo.StartSlot(ctx, gs.ID, time.Now().UTC()); err != nil || n != 1 {
		t.Fatalf("StartSlot() = %d, %v", n, err)
	}
	if _, err = env.svc.SetAttendance(ctx, p.ID, null.StringFrom("left")); err != nil {
		t.Errorf("SetAttendance() after start error = %v", err)
	}

	// null clears back to unset
	p, err = env.svc.SetAttendance(ctx, p.ID, null.String{})
	if err != nil {
		t.Fatal(err)
	}
	if p.AttendanceStatus.Valid {
		t.Error("attendance not cleared")
	}

	if _, err = env.svc.SetAttendance(ctx, p.ID, null.StringFrom("vanished")); err == nil {
		t.Error("expected a validation error for an unknown status")
	}
}

func TestService_AssignLesson_lockedOnceActive(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	gs := env.seedSlot(t, "2026-09-07")
	les, err := env.curRepo.CreateLesson(ctx, curriculum.Lesson{Title: "X", SubjectID: subjectID})
	if err != nil {
		t.Fatal(err)
	}
	p, err := env.svc.GetOrCreate(ctx, studentID, gs.ID)
	if err != nil {
		t.Fatal(err)
	}

	p, err = env.svc.AssignLesson(ctx, p.ID, null.IntFrom(les.ID))
	if err != nil {
		t.Fatalf("AssignLesson() error = %v", err)
	}
	if p.LessonID.Int != les.ID {
		t.Errorf("lesson = %d, want %d", p.LessonID.Int, les.ID)
	}

	if n, err := env.schedRepo.StartSlot(ctx, gs.ID, time.Now().UTC()); err != nil || n != 1 {
		t.Fatalf("StartSlot() = %d, %v", n, err)
	}
	if _, err = env.svc.AssignLesson(ctx, p.ID, null.Int{}); err != plan.ErrPlanLocked {
		t.Errorf("error = %v, want ErrPlanLocked", err)
	}
}

func TestService_Stats(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	marks := []null.String{
		null.StringFrom("present"),
		null.StringFrom("present"),
		null.StringFrom("absent"),
		null.String{}, // unset: not yet reached, excluded from totals
	}
	dates := []string{"2026-09-07", "2026-09-08", "2026-09-09", "2026-09-10"}
	for i, mark := range marks {
		gs := env.seedSlot(t, dates[i])
		p, err := env.svc.GetOrCreate(ctx, studentID, gs.ID)
		if err != nil {
			t.Fatal(err)
		}
		if mark.Valid {
			if _, err = env.svc.SetAttendance(ctx, p.ID, mark); err != nil {
				t.Fatal(err)
			}
		}
	}

	stats, err := env.svc.Stats(ctx, studentID, subjectID)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 3 || stats.Present != 2 || stats.Absent != 1 {
		t.Errorf("stats = %+v, want total 3, present 2, absent 1", stats)
	}
	if stats.Percentage != 67 {
		t.Errorf("Percentage = %d, want 67", stats.Percentage)
	}
}

func TestService_Stats_empty(t *testing.T) {
	env := setup(t)

	stats, err := env.svc.Stats(context.Background(), studentID, subjectID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 0 || stats.Percentage != 0 {
		t.Errorf("stats = %+v, want zero total and percentage", stats)
	}
}

func TestService_BulkStats(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	gs1 := env.seedSlot(t, "2026-09-07")
	gs2 := env.seedSlot(t, "2026-09-08")

	otherStudent := studentID + 1
	mark := func(sid, slotID int, status string) {
		t.Helper()
		p, err := env.svc.GetOrCreate(ctx, sid, slotID)
		if err != nil {
			t.Fatal(err)
		}
		if _, err = env.svc.SetAttendance(ctx, p.ID, null.StringFrom(status)); err != nil {
			t.Fatal(err)
		}
	}
	mark(studentID, gs1.ID, "present")
	mark(studentID, gs2.ID, "excused")
	mark(otherStudent, gs1.ID, "absent")

	stats, err := env.svc.BulkStats(ctx, plan.BulkStatsFilter{SubjectID: subjectID})
	if err != nil {
		t.Fatalf("BulkStats() error = %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("len(stats) = %d, want 2", len(stats))
	}
	if stats[0].StudentID != studentID || stats[0].Total != 2 || stats[0].Present != 1 || stats[0].Excused != 1 || stats[0].Percentage != 50 {
		t.Errorf("stats[0] = %+v", stats[0])
	}
	if stats[1].StudentID != otherStudent || stats[1].Total != 1 || stats[1].Absent != 1 || stats[1].Percentage != 0 {
		t.Errorf("stats[1] = %+v", stats[1])
	}

	t.Run("narrowed to one slot", func(t *testing.T) {
		stats, err := env.svc.BulkStats(ctx, plan.BulkStatsFilter{SubjectID: subjectID, GlobalScheduleID: gs2.ID})
		if err != nil {
			t.Fatal(err)
		}
		if len(stats) != 1 || stats[0].Excused != 1 {
			t.Errorf("stats = %+v, want only the excused mark on gs2", stats)
		}
	})
	t.Run("subject required", func(t *testing.T) {
		if _, err := env.svc.BulkStats(ctx, plan.BulkStatsFilter{}); err == nil {
			t.Error("expected a validation error without subject_id")
		}
	})
}

func TestService_sequences(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	seq := env.seedSequence(t, "A", "B", "C")

	t.Run("duplicate positions rejected", func(t *testing.T) {
		_, err := env.svc.CreateSequence(ctx, plan.NewSequence{
			Name: "bad", SubjectID: subjectID, LevelID: levelID,
			Items: []plan.NewSequenceItem{
				{LessonID: seq.Items[0].LessonID, Position: 1},
				{LessonID: seq.Items[1].LessonID, Position: 1},
			},
		}, null.Int{})
		if _, ok := err.(*core.ValidationError); !ok {
			t.Errorf("error = %v, want ValidationError", err)
		}
	})

	t.Run("items replaced wholesale on update", func(t *testing.T) {
		updated, err := env.svc.UpdateSequence(ctx, seq.ID, plan.NewSequence{
			Name: seq.Name, SubjectID: subjectID, LevelID: levelID,
			Items: []plan.NewSequenceItem{{LessonID: seq.Items[2].LessonID, Position: 5}},
		})
		if err != nil {
			t.Fatalf("UpdateSequence() error = %v", err)
		}
		if len(updated.Items) != 1 || updated.Items[0].Position != 5 {
			t.Errorf("items = %+v, want single item at position 5", updated.Items)
		}
	})

	t.Run("duplicate copies name and items", func(t *testing.T) {
		dup, err := env.svc.DuplicateSequence(ctx, seq.ID, null.Int{})
		if err != nil {
			t.Fatalf("DuplicateSequence() error = %v", err)
		}
		if dup.Name != seq.Name+" (copy)" {
			t.Errorf("Name = %q, want %q", dup.Name, seq.Name+" (copy)")
		}
		src, err := env.svc.GetSequence(ctx, seq.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(dup.Items) != len(src.Items) {
			t.Errorf("len(items) = %d, want %d", len(dup.Items), len(src.Items))
		}
	})
}

func TestService_StudentSchedule_ordering(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	gs2 := env.seedSlot(t, "2026-09-08")
	gs1 := env.seedSlot(t, "2026-09-07")
	for _, gs := range []schedule.GlobalSchedule{gs1, gs2} {
		if _, err := env.svc.GetOrCreate(ctx, studentID, gs.ID); err != nil {
			t.Fatal(err)
		}
	}

	from, _ := time.Parse(core.DateFormat, "2026-09-01")
	to, _ := time.Parse(core.DateFormat, "2026-09-30")
	entries, err := env.svc.StudentSchedule(ctx, studentID, from, to)
	if err != nil {
		t.Fatalf("StudentSchedule() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if !entries[0].Slot.Date.Before(entries[1].Slot.Date) {
		t.Error("entries not in date order")
	}
}
