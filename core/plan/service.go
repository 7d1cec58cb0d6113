package plan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/schedule"
)

var (
	// errors
	ErrPlanNotFound     = errors.New("plan not found")
	ErrPlanExists       = errors.New("a plan for this student and slot already exists")
	ErrPlanLocked       = errors.New("the slot is no longer planned - lesson cannot be overwritten")
	ErrSequenceNotFound = errors.New("lesson sequence not found")
	ErrSequenceExists   = errors.New("a sequence with this name already exists for this subject and level")
)

type (
	// StudentScheduleEntry pairs a student's plan with its slot for timetable
	// views.
	StudentScheduleEntry struct {
		Plan IMUPlan                 `json:"plan"`
		Slot schedule.GlobalSchedule `json:"slot"`
	}

	Repository interface {
		GetPlanByID(ctx context.Context, id int, exec ...core.DBExecutor) (IMUPlan, error)
		GetPlanByStudentAndSlot(ctx context.Context, studentID, slotID int, exec ...core.DBExecutor) (IMUPlan, error)
		// CreatePlan returns ErrPlanExists when the (student, slot) unique
		// index rejects the row.
		CreatePlan(ctx context.Context, p IMUPlan, exec ...core.DBExecutor) (IMUPlan, error)
		UpdateAttendance(ctx context.Context, id int, status null.String, exec ...core.DBExecutor) (IMUPlan, error)
		// AssignLessonIfSlotPlanned writes lesson_id only while the owning
		// slot is still planned; returns the number of rows updated.
		AssignLessonIfSlotPlanned(ctx context.Context, id int, lessonID null.Int, exec ...core.DBExecutor) (int64, error)
		// UpsertPlanForPlannedSlot inserts or overwrites the (student, slot)
		// plan in one guarded statement and reports whether a row was
		// created. ErrPlanLocked when the slot has left the planned state.
		UpsertPlanForPlannedSlot(ctx context.Context, p IMUPlan, exec ...core.DBExecutor) (IMUPlan, bool, error)
		FilterPlansByStudentAndSlots(ctx context.Context, studentID int, slotIDs []int) ([]IMUPlan, error)
		FilterPlansBySubject(ctx context.Context, studentID, subjectID int) ([]IMUPlan, error)
		FilterPlansForStats(ctx context.Context, filter BulkStatsFilter) ([]IMUPlan, error)
		StudentPlansBetween(ctx context.Context, studentID int, from, to time.Time) ([]StudentScheduleEntry, error)
		// DefaultPresent marks unset attendance as present for every plan of
		// a slot; returns the number of rows touched.
		DefaultPresent(ctx context.Context, slotID int, exec ...core.DBExecutor) (int64, error)

		CreateSequence(ctx context.Context, seq LessonSequence, exec ...core.DBExecutor) (LessonSequence, error)
		// GetSequenceByID loads the sequence with items ordered by position.
		GetSequenceByID(ctx context.Context, id int, exec ...core.DBExecutor) (LessonSequence, error)
		QueryAllSequences(ctx context.Context) ([]LessonSequence, error)
		UpdateSequence(ctx context.Context, seq LessonSequence, exec ...core.DBExecutor) (LessonSequence, error)
		DeleteSequenceItems(ctx context.Context, sequenceID int, exec ...core.DBExecutor) error
		CreateSequenceItems(ctx context.Context, sequenceID int, items []LessonSequenceItem, exec ...core.DBExecutor) error
	}

	// SlotDirectory is the slice of the schedule store the plan service
	// needs; schedule.Repository satisfies it.
	SlotDirectory interface {
		GetSlotByID(ctx context.Context, id int, exec ...core.DBExecutor) (schedule.GlobalSchedule, error)
		FilterSlots(ctx context.Context, filter schedule.QueryFilter) ([]schedule.GlobalSchedule, error)
	}

	Service struct {
		db    core.DB
		repo  Repository
		slots SlotDirectory
		log   core.Logger
	}
)

func NewService(db core.DB, repo Repository, slots SlotDirectory, log core.Logger) *Service {
	return &Service{db: db, repo: repo, slots: slots, log: log}
}

// ~~~~~~~~~~~~~~~~~~~~~
// Plans

// GetOrCreate returns the (student, slot) plan, creating an empty one when
// missing: no lesson, attendance unset.
func (svc *Service) GetOrCreate(ctx context.Context, studentID, slotID int) (IMUPlan, error) {
	if _, err := svc.slots.GetSlotByID(ctx, slotID); err != nil {
		return IMUPlan{}, err
	}
	p, err := svc.repo.GetPlanByStudentAndSlot(ctx, studentID, slotID)
	if err == nil {
		return p, nil
	}
	if err != ErrPlanNotFound {
		return IMUPlan{}, err
	}

	now := time.Now().UTC()
	p, err = svc.repo.CreatePlan(ctx, IMUPlan{
		StudentID:        studentID,
		GlobalScheduleID: slotID,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err == ErrPlanExists {
		// lost a create race; the winner's row is what we want
		return svc.repo.GetPlanByStudentAndSlot(ctx, studentID, slotID)
	}
	return p, err
}

func (svc *Service) GetPlan(ctx context.Context, id int) (IMUPlan, error) {
	return svc.repo.GetPlanByID(ctx, id)
}

// SetAttendance updates a plan's attendance mark in any slot state. A null
// status clears the mark back to unset.
func (svc *Service) SetAttendance(ctx context.Context, planID int, status null.String) (IMUPlan, error) {
	if status.Valid && !ValidAttendance(AttendanceStatus(status.String)) {
		return IMUPlan{}, core.NewValidationError(nil, core.FieldError{
			Field: "attendance_status", Error: fmt.Sprintf("unknown attendance status %q", status.String)})
	}
	if _, err := svc.repo.GetPlanByID(ctx, planID); err != nil {
		return IMUPlan{}, err
	}
	return svc.repo.UpdateAttendance(ctx, planID, status)
}

// AssignLesson sets a plan's lesson; rejected with ErrPlanLocked once the
// owning slot has been started.
func (svc *Service) AssignLesson(ctx context.Context, planID int, lessonID null.Int) (IMUPlan, error) {
	if _, err := svc.repo.GetPlanByID(ctx, planID); err != nil {
		return IMUPlan{}, err
	}
	n, err := svc.repo.AssignLessonIfSlotPlanned(ctx, planID, lessonID)
	if err != nil {
		return IMUPlan{}, err
	}
	if n == 0 {
		return IMUPlan{}, ErrPlanLocked
	}
	return svc.repo.GetPlanByID(ctx, planID)
}

// StudentSchedule returns a student's plans with their slots for a date
// range, ordered by (date, period start time).
func (svc *Service) StudentSchedule(ctx context.Context, studentID int, from, to time.Time) ([]StudentScheduleEntry, error) {
	return svc.repo.StudentPlansBetween(ctx, studentID, from, to)
}

// ~~~~~~~~~~~~~~~~~~~~~
// Generation

// Generate zips ordered matching slots against the sequence's ordered items
// and upserts one plan per slot. Slots and items pair strictly by index:
// slot ordering is the source of truth for when, the sequence for what.
// Active slots are skipped, never overwritten; a run over planned slots is
// idempotent.
func (svc *Service) Generate(ctx context.Context, gi GenerateInput) (GenerationReport, error) {
	report := GenerationReport{
		RunID:         uuid.New(),
		StudentID:     gi.StudentID,
		SkippedPlans:  []SkippedPlan{},
		UnusedLessons: []UnusedLesson{},
	}
	if err := gi.Validate(); err != nil {
		return report, err
	}

	from, to := gi.DateRange()
	slots, err := svc.slots.FilterSlots(ctx, schedule.QueryFilter{
		SubjectID: gi.SubjectID,
		LevelID:   gi.LevelID,
		DateFrom:  from,
		DateTo:    to,
	})
	if err != nil {
		return report, err
	}
	if len(slots) == 0 {
		report.InfoMessage = fmt.Sprintf(
			"no schedule slots between %s and %s for this subject and level", gi.StartDate, gi.EndDate)
		return report, nil
	}

	seq, err := svc.repo.GetSequenceByID(ctx, gi.LessonSequenceID)
	if err != nil {
		return report, err
	}
	items := seq.Items

	slotIDs := make([]int, len(slots))
	for i, s := range slots {
		slotIDs[i] = s.ID
	}
	existingPlans, err := svc.repo.FilterPlansByStudentAndSlots(ctx, gi.StudentID, slotIDs)
	if err != nil {
		return report, err
	}
	existingBySlot := make(map[int]IMUPlan, len(existingPlans))
	for _, p := range existingPlans {
		existingBySlot[p.GlobalScheduleID] = p
	}

	svc.log.Info("generation run starting",
		"run", report.RunID, "student", gi.StudentID, "slots", len(slots), "items", len(items))

	for i, slot := range slots {
		report.Processed++

		if _, exists := existingBySlot[slot.ID]; exists && slot.IsActive() {
			report.Skipped++
			report.SkippedPlans = append(report.SkippedPlans, SkippedPlan{
				SlotID: slot.ID,
				Date:   slot.Date.Format(core.DateFormat),
				Reason: fmt.Sprintf("plan status %q - cannot overwrite", slot.PlanStatus),
			})
			continue
		}

		// a skipped slot still consumes its item: pairing is by slot index
		var lessonID null.Int
		if i < len(items) {
			lessonID = null.IntFrom(items[i].LessonID)
		}

		now := time.Now().UTC()
		_, created, err := svc.repo.UpsertPlanForPlannedSlot(ctx, IMUPlan{
			StudentID:        gi.StudentID,
			GlobalScheduleID: slot.ID,
			LessonID:         lessonID,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		if err == ErrPlanLocked {
			// the slot went active between our read and the guarded write
			report.Skipped++
			report.SkippedPlans = append(report.SkippedPlans, SkippedPlan{
				SlotID: slot.ID,
				Date:   slot.Date.Format(core.DateFormat),
				Reason: "slot is no longer planned - cannot overwrite",
			})
			continue
		}
		if err != nil {
			return report, err
		}

		if created {
			report.Created++
		} else {
			report.Updated++
		}
		if !lessonID.Valid {
			report.NullLessons++
		}
	}

	if len(items) > len(slots) {
		for _, item := range items[len(slots):] {
			report.UnusedLessons = append(report.UnusedLessons, UnusedLesson{
				Position:    item.Position,
				LessonTitle: item.LessonTitle,
			})
		}
	}

	svc.log.Info("generation run done",
		"run", report.RunID,
		"created", report.Created,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"null_lessons", report.NullLessons,
	)
	return report, nil
}

// ~~~~~~~~~~~~~~~~~~~~~
// Attendance aggregation

// Stats aggregates one student's attendance for a subject. Plans without an
// attendance mark are excluded from the denominator.
func (svc *Service) Stats(ctx context.Context, studentID, subjectID int) (Stats, error) {
	plans, err := svc.repo.FilterPlansBySubject(ctx, studentID, subjectID)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{StudentID: studentID, SubjectID: subjectID}
	for _, p := range plans {
		tally(&stats, p)
	}
	stats.Percentage = percentage(stats.Present, stats.Total)
	return stats, nil
}

// BulkStats aggregates attendance per student across everyone sharing a
// subject (optionally one slot or lesson), in a single pass over the plans.
func (svc *Service) BulkStats(ctx context.Context, filter BulkStatsFilter) ([]Stats, error) {
	if filter.SubjectID == 0 {
		return nil, core.NewValidationError(nil, core.FieldError{
			Field: "subject_id", Error: "this field is required"})
	}
	plans, err := svc.repo.FilterPlansForStats(ctx, filter)
	if err != nil {
		return nil, err
	}

	byStudent := make(map[int]*Stats)
	for _, p := range plans {
		stats, ok := byStudent[p.StudentID]
		if !ok {
			stats = &Stats{StudentID: p.StudentID, SubjectID: filter.SubjectID}
			byStudent[p.StudentID] = stats
		}
		tally(stats, p)
	}

	out := make([]Stats, 0, len(byStudent))
	for _, stats := range byStudent {
		stats.Percentage = percentage(stats.Present, stats.Total)
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func tally(stats *Stats, p IMUPlan) {
	if !p.AttendanceStatus.Valid {
		return
	}
	stats.Total++
	switch AttendanceStatus(p.AttendanceStatus.String) {
	case AttendancePresent:
		stats.Present++
	case AttendanceAbsent:
		stats.Absent++
	case AttendanceLeft:
		stats.Left++
	case AttendanceExcused:
		stats.Excused++
	}
}

func percentage(present, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(present) / float64(total) * 100))
}

// ~~~~~~~~~~~~~~~~~~~~~
// Sequences

func (svc *Service) CreateSequence(ctx context.Context, ns NewSequence, createdBy null.Int) (LessonSequence, error) {
	if err := ns.Validate(); err != nil {
		return LessonSequence{}, err
	}

	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return LessonSequence{}, err
	}
	defer tx.Rollback()

	seq, err := svc.repo.CreateSequence(ctx, LessonSequence{
		Name:        ns.Name,
		Description: ns.Description,
		SubjectID:   ns.SubjectID,
		LevelID:     ns.LevelID,
		CreatedBy:   createdBy,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}, tx)
	if err != nil {
		if err == ErrSequenceExists {
			return LessonSequence{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return LessonSequence{}, err
	}
	if err = svc.createItems(ctx, tx, seq.ID, ns.Items); err != nil {
		return LessonSequence{}, err
	}
	if err = tx.Commit(); err != nil {
		return LessonSequence{}, err
	}
	return svc.repo.GetSequenceByID(ctx, seq.ID)
}

func (svc *Service) GetSequence(ctx context.Context, id int) (LessonSequence, error) {
	return svc.repo.GetSequenceByID(ctx, id)
}

func (svc *Service) QuerySequences(ctx context.Context) ([]LessonSequence, error) {
	return svc.repo.QueryAllSequences(ctx)
}

// UpdateSequence edits the header and replaces the item set wholesale in one
// transaction; there is no per-item patching.
func (svc *Service) UpdateSequence(ctx context.Context, id int, ns NewSequence) (LessonSequence, error) {
	if err := ns.Validate(); err != nil {
		return LessonSequence{}, err
	}
	seq, err := svc.repo.GetSequenceByID(ctx, id)
	if err != nil {
		return LessonSequence{}, err
	}

	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return LessonSequence{}, err
	}
	defer tx.Rollback()

	seq.Name = ns.Name
	seq.Description = ns.Description
	seq.SubjectID = ns.SubjectID
	seq.LevelID = ns.LevelID
	if _, err = svc.repo.UpdateSequence(ctx, seq, tx); err != nil {
		if err == ErrSequenceExists {
			return LessonSequence{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return LessonSequence{}, err
	}
	if err = svc.repo.DeleteSequenceItems(ctx, id, tx); err != nil {
		return LessonSequence{}, err
	}
	if err = svc.createItems(ctx, tx, id, ns.Items); err != nil {
		return LessonSequence{}, err
	}
	if err = tx.Commit(); err != nil {
		return LessonSequence{}, err
	}
	return svc.repo.GetSequenceByID(ctx, id)
}

// DuplicateSequence copies a sequence and its items under "<name> (copy)".
func (svc *Service) DuplicateSequence(ctx context.Context, id int, createdBy null.Int) (LessonSequence, error) {
	src, err := svc.repo.GetSequenceByID(ctx, id)
	if err != nil {
		return LessonSequence{}, err
	}

	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return LessonSequence{}, err
	}
	defer tx.Rollback()

	dup, err := svc.repo.CreateSequence(ctx, LessonSequence{
		Name:        src.Name + " (copy)",
		Description: src.Description,
		SubjectID:   src.SubjectID,
		LevelID:     src.LevelID,
		CreatedBy:   createdBy,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}, tx)
	if err != nil {
		if err == ErrSequenceExists {
			return LessonSequence{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return LessonSequence{}, err
	}

	items := make([]LessonSequenceItem, len(src.Items))
	for i, item := range src.Items {
		items[i] = LessonSequenceItem{LessonID: item.LessonID, Position: item.Position}
	}
	if err = svc.repo.CreateSequenceItems(ctx, dup.ID, items, tx); err != nil {
		return LessonSequence{}, err
	}
	if err = tx.Commit(); err != nil {
		return LessonSequence{}, err
	}
	return svc.repo.GetSequenceByID(ctx, dup.ID)
}

func (svc *Service) createItems(ctx context.Context, tx core.DBTransactor, seqID int, newItems []NewSequenceItem) error {
	items := make([]LessonSequenceItem, len(newItems))
	for i, item := range newItems {
		items[i] = LessonSequenceItem{LessonID: item.LessonID, Position: item.Position}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	return svc.repo.CreateSequenceItems(ctx, seqID, items, tx)
}
