package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/plan"
	"github.com/mokykla/backend/core/schedule"
)

// planRepository spans the whole store: plan reads join against slots,
// sequences against lessons, the way the SQL repositories do.
type planRepository struct {
	db *DB
}

var (
	_ plan.Repository              = (*planRepository)(nil) // interface compliance check
	_ schedule.AttendanceDefaulter = (*planRepository)(nil)
)

func NewPlanRepository(db *DB) *planRepository {
	return &planRepository{db: db}
}

func (repo *planRepository) GetPlanByID(_ context.Context, id int, _ ...core.DBExecutor) (plan.IMUPlan, error) {
	repo.db.plan.RLock()
	defer repo.db.plan.RUnlock()

	if p, ok := repo.db.plan.plans[id]; ok {
		return *p, nil
	}
	return plan.IMUPlan{}, plan.ErrPlanNotFound
}

func (repo *planRepository) GetPlanByStudentAndSlot(_ context.Context, studentID, slotID int, _ ...core.DBExecutor) (plan.IMUPlan, error) {
	repo.db.plan.RLock()
	defer repo.db.plan.RUnlock()

	for _, p := range repo.db.plan.plans {
		if p.StudentID == studentID && p.GlobalScheduleID == slotID {
			return *p, nil
		}
	}
	return plan.IMUPlan{}, plan.ErrPlanNotFound
}

func (repo *planRepository) CreatePlan(_ context.Context, p plan.IMUPlan, _ ...core.DBExecutor) (plan.IMUPlan, error) {
	repo.db.plan.Lock()
	defer repo.db.plan.Unlock()

	for _, other := range repo.db.plan.plans {
		if other.StudentID == p.StudentID && other.GlobalScheduleID == p.GlobalScheduleID {
			return plan.IMUPlan{}, plan.ErrPlanExists
		}
	}
	repo.db.plan.planPK++
	p.ID = repo.db.plan.planPK
	repo.db.plan.plans[p.ID] = &p
	return p, nil
}

func (repo *planRepository) UpdateAttendance(_ context.Context, id int, status null.String, _ ...core.DBExecutor) (plan.IMUPlan, error) {
	repo.db.plan.Lock()
	defer repo.db.plan.Unlock()

	p, ok := repo.db.plan.plans[id]
	if !ok {
		return plan.IMUPlan{}, plan.ErrPlanNotFound
	}
	p.AttendanceStatus = status
	p.UpdatedAt = time.Now().UTC()
	return *p, nil
}

func (repo *planRepository) AssignLessonIfSlotPlanned(_ context.Context, id int, lessonID null.Int, _ ...core.DBExecutor) (int64, error) {
	repo.db.plan.Lock()
	defer repo.db.plan.Unlock()

	p, ok := repo.db.plan.plans[id]
	if !ok {
		return 0, nil
	}
	if !repo.slotPlanned(p.GlobalScheduleID) {
		return 0, nil
	}
	p.LessonID = lessonID
	p.UpdatedAt = time.Now().UTC()
	return 1, nil
}

func (repo *planRepository) UpsertPlanForPlannedSlot(_ context.Context, p plan.IMUPlan, _ ...core.DBExecutor) (plan.IMUPlan, bool, error) {
	repo.db.plan.Lock()
	defer repo.db.plan.Unlock()

	if !repo.slotPlanned(p.GlobalScheduleID) {
		return plan.IMUPlan{}, false, plan.ErrPlanLocked
	}
	for _, other := range repo.db.plan.plans {
		if other.StudentID == p.StudentID && other.GlobalScheduleID == p.GlobalScheduleID {
			other.LessonID = p.LessonID
			other.AttendanceStatus = null.String{}
			other.UpdatedAt = p.UpdatedAt
			return *other, false, nil
		}
	}
	repo.db.plan.planPK++
	p.ID = repo.db.plan.planPK
	repo.db.plan.plans[p.ID] = &p
	return p, true, nil
}

func (repo *planRepository) slotPlanned(slotID int) bool {
	repo.db.schedule.RLock()
	defer repo.db.schedule.RUnlock()

	gs, ok := repo.db.schedule.slots[slotID]
	return ok && gs.PlanStatus == schedule.StatusPlanned
}

func (repo *planRepository) FilterPlansByStudentAndSlots(_ context.Context, studentID int, slotIDs []int) ([]plan.IMUPlan, error) {
	repo.db.plan.RLock()
	defer repo.db.plan.RUnlock()

	wanted := make(map[int]struct{}, len(slotIDs))
	for _, id := range slotIDs {
		wanted[id] = struct{}{}
	}
	plans := make([]plan.IMUPlan, 0)
	for _, p := range repo.db.plan.plans {
		if p.StudentID != studentID {
			continue
		}
		if _, ok := wanted[p.GlobalScheduleID]; ok {
			plans = append(plans, *p)
		}
	}
	return plans, nil
}

func (repo *planRepository) FilterPlansBySubject(_ context.Context, studentID, subjectID int) ([]plan.IMUPlan, error) {
	repo.db.plan.RLock()
	defer repo.db.plan.RUnlock()

	plans := make([]plan.IMUPlan, 0)
	for _, p := range repo.db.plan.plans {
		if p.StudentID != studentID {
			continue
		}
		if repo.slotSubject(p.GlobalScheduleID) != subjectID {
			continue
		}
		plans = append(plans, *p)
	}
	return plans, nil
}

func (repo *planRepository) FilterPlansForStats(_ context.Context, filter plan.BulkStatsFilter) ([]plan.IMUPlan, error) {
	repo.db.plan.RLock()
	defer repo.db.plan.RUnlock()

	plans := make([]plan.IMUPlan, 0)
	for _, p := range repo.db.plan.plans {
		if repo.slotSubject(p.GlobalScheduleID) != filter.SubjectID {
			continue
		}
		if filter.GlobalScheduleID != 0 && p.GlobalScheduleID != filter.GlobalScheduleID {
			continue
		}
		if filter.LessonID != 0 && (!p.LessonID.Valid || int(p.LessonID.Int) != filter.LessonID) {
			continue
		}
		plans = append(plans, *p)
	}
	return plans, nil
}

func (repo *planRepository) slotSubject(slotID int) int {
	repo.db.schedule.RLock()
	defer repo.db.schedule.RUnlock()

	if gs, ok := repo.db.schedule.slots[slotID]; ok {
		return gs.SubjectID
	}
	return 0
}

func (repo *planRepository) StudentPlansBetween(_ context.Context, studentID int, from, to time.Time) ([]plan.StudentScheduleEntry, error) {
	repo.db.plan.RLock()
	repo.db.schedule.RLock()
	defer repo.db.schedule.RUnlock()
	defer repo.db.plan.RUnlock()

	entries := make([]plan.StudentScheduleEntry, 0)
	for _, p := range repo.db.plan.plans {
		if p.StudentID != studentID {
			continue
		}
		gs, ok := repo.db.schedule.slots[p.GlobalScheduleID]
		if !ok {
			continue
		}
		if !from.IsZero() && gs.Date.Before(from) {
			continue
		}
		if !to.IsZero() && gs.Date.After(to) {
			continue
		}
		entries = append(entries, plan.StudentScheduleEntry{Plan: *p, Slot: *gs})
	}
	startOf := func(gs schedule.GlobalSchedule) string {
		if p, ok := repo.db.schedule.periods[gs.PeriodID]; ok {
			return p.StartTime
		}
		return ""
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Slot.Date.Equal(entries[j].Slot.Date) {
			return entries[i].Slot.Date.Before(entries[j].Slot.Date)
		}
		return startOf(entries[i].Slot) < startOf(entries[j].Slot)
	})
	return entries, nil
}

func (repo *planRepository) DefaultPresent(_ context.Context, slotID int, _ ...core.DBExecutor) (int64, error) {
	repo.db.plan.Lock()
	defer repo.db.plan.Unlock()

	var n int64
	now := time.Now().UTC()
	for _, p := range repo.db.plan.plans {
		if p.GlobalScheduleID != slotID || p.AttendanceStatus.Valid {
			continue
		}
		p.AttendanceStatus = null.StringFrom(string(plan.AttendancePresent))
		p.UpdatedAt = now
		n++
	}
	return n, nil
}

// ~~~~~~~~~~~~~~~~~~~~~
// Sequences

func (repo *planRepository) CreateSequence(_ context.Context, seq plan.LessonSequence, _ ...core.DBExecutor) (plan.LessonSequence, error) {
	repo.db.plan.Lock()
	defer repo.db.plan.Unlock()

	for _, other := range repo.db.plan.sequences {
		if other.Name == seq.Name && other.SubjectID == seq.SubjectID && other.LevelID == seq.LevelID {
			return plan.LessonSequence{}, plan.ErrSequenceExists
		}
	}
	repo.db.plan.seqPK++
	seq.ID = repo.db.plan.seqPK
	seq.Items = nil
	repo.db.plan.sequences[seq.ID] = &seq
	return seq, nil
}

func (repo *planRepository) GetSequenceByID(_ context.Context, id int, _ ...core.DBExecutor) (plan.LessonSequence, error) {
	repo.db.plan.RLock()
	defer repo.db.plan.RUnlock()

	seq, ok := repo.db.plan.sequences[id]
	if !ok {
		return plan.LessonSequence{}, plan.ErrSequenceNotFound
	}
	out := *seq
	out.Items = append([]plan.LessonSequenceItem(nil), seq.Items...)
	sort.Slice(out.Items, func(i, j int) bool { return out.Items[i].Position < out.Items[j].Position })
	for i := range out.Items {
		out.Items[i].LessonTitle = repo.lessonTitle(out.Items[i].LessonID)
	}
	return out, nil
}

func (repo *planRepository) lessonTitle(lessonID int) string {
	repo.db.curriculum.RLock()
	defer repo.db.curriculum.RUnlock()

	if les, ok := repo.db.curriculum.lessons[lessonID]; ok {
		return les.Title
	}
	return ""
}

func (repo *planRepository) QueryAllSequences(_ context.Context) ([]plan.LessonSequence, error) {
	repo.db.plan.RLock()
	defer repo.db.plan.RUnlock()

	seqs := make([]plan.LessonSequence, 0, len(repo.db.plan.sequences))
	for _, seq := range repo.db.plan.sequences {
		seqs = append(seqs, *seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i].ID < seqs[j].ID })
	return seqs, nil
}

func (repo *planRepository) UpdateSequence(_ context.Context, seq plan.LessonSequence, _ ...core.DBExecutor) (plan.LessonSequence, error) {
	repo.db.plan.Lock()
	defer repo.db.plan.Unlock()

	stored, ok := repo.db.plan.sequences[seq.ID]
	if !ok {
		return plan.LessonSequence{}, plan.ErrSequenceNotFound
	}
	for _, other := range repo.db.plan.sequences {
		if other.ID != seq.ID && other.Name == seq.Name && other.SubjectID == seq.SubjectID && other.LevelID == seq.LevelID {
			return plan.LessonSequence{}, plan.ErrSequenceExists
		}
	}
	stored.Name = seq.Name
	stored.Description = seq.Description
	stored.SubjectID = seq.SubjectID
	stored.LevelID = seq.LevelID
	stored.IsActive = seq.IsActive
	return *stored, nil
}

func (repo *planRepository) DeleteSequenceItems(_ context.Context, sequenceID int, _ ...core.DBExecutor) error {
	repo.db.plan.Lock()
	defer repo.db.plan.Unlock()

	seq, ok := repo.db.plan.sequences[sequenceID]
	if !ok {
		return plan.ErrSequenceNotFound
	}
	seq.Items = nil
	return nil
}

func (repo *planRepository) CreateSequenceItems(_ context.Context, sequenceID int, items []plan.LessonSequenceItem, _ ...core.DBExecutor) error {
	repo.db.plan.Lock()
	defer repo.db.plan.Unlock()

	seq, ok := repo.db.plan.sequences[sequenceID]
	if !ok {
		return plan.ErrSequenceNotFound
	}
	for _, item := range items {
		repo.db.plan.itemPK++
		item.ID = repo.db.plan.itemPK
		item.SequenceID = sequenceID
		seq.Items = append(seq.Items, item)
	}
	return nil
}
