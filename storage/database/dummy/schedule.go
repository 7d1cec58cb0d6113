package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/schedule"
)

type scheduleRepository struct {
	db *scheduleTables
}

var _ schedule.Repository = (*scheduleRepository)(nil) // interface compliance check

func NewScheduleRepository(db *DB) *scheduleRepository {
	return &scheduleRepository{db: db.schedule}
}

func (repo *scheduleRepository) CreatePeriod(_ context.Context, p schedule.Period) (schedule.Period, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.periodPK++
	p.ID = repo.db.periodPK
	repo.db.periods[p.ID] = &p
	return p, nil
}

func (repo *scheduleRepository) GetPeriodByID(_ context.Context, id int) (schedule.Period, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.periods[id]; ok {
		return *p, nil
	}
	return schedule.Period{}, schedule.ErrPeriodNotFound
}

func (repo *scheduleRepository) QueryAllPeriods(_ context.Context) ([]schedule.Period, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	periods := make([]schedule.Period, 0, len(repo.db.periods))
	for _, p := range repo.db.periods {
		periods = append(periods, *p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].StartTime < periods[j].StartTime })
	return periods, nil
}

func (repo *scheduleRepository) CreateClassroom(_ context.Context, c schedule.Classroom) (schedule.Classroom, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.classroomPK++
	c.ID = repo.db.classroomPK
	repo.db.classrooms[c.ID] = &c
	return c, nil
}

func (repo *scheduleRepository) GetClassroomByID(_ context.Context, id int) (schedule.Classroom, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.classrooms[id]; ok {
		return *c, nil
	}
	return schedule.Classroom{}, schedule.ErrClassroomNotFound
}

func (repo *scheduleRepository) QueryAllClassrooms(_ context.Context) ([]schedule.Classroom, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rooms := make([]schedule.Classroom, 0, len(repo.db.classrooms))
	for _, c := range repo.db.classrooms {
		rooms = append(rooms, *c)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms, nil
}

func (repo *scheduleRepository) CreateSlot(_ context.Context, gs schedule.GlobalSchedule, _ ...core.DBExecutor) (schedule.GlobalSchedule, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, other := range repo.db.slots {
		if other.Date.Equal(gs.Date) && other.PeriodID == gs.PeriodID && other.ClassroomID == gs.ClassroomID {
			return schedule.GlobalSchedule{}, schedule.ErrSlotTaken
		}
	}
	repo.db.slotPK++
	gs.ID = repo.db.slotPK
	repo.db.slots[gs.ID] = &gs
	return gs, nil
}

func (repo *scheduleRepository) GetSlotByID(_ context.Context, id int, _ ...core.DBExecutor) (schedule.GlobalSchedule, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if gs, ok := repo.db.slots[id]; ok {
		return *gs, nil
	}
	return schedule.GlobalSchedule{}, schedule.ErrSlotNotFound
}

func (repo *scheduleRepository) UpdateSlot(_ context.Context, gs schedule.GlobalSchedule, _ ...core.DBExecutor) (schedule.GlobalSchedule, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.slots[gs.ID]; !ok {
		return schedule.GlobalSchedule{}, schedule.ErrSlotNotFound
	}
	for _, other := range repo.db.slots {
		if other.ID != gs.ID && other.Date.Equal(gs.Date) && other.PeriodID == gs.PeriodID && other.ClassroomID == gs.ClassroomID {
			return schedule.GlobalSchedule{}, schedule.ErrSlotTaken
		}
	}
	repo.db.slots[gs.ID] = &gs
	return gs, nil
}

func (repo *scheduleRepository) SlotExists(_ context.Context, date time.Time, periodID, classroomID, excludeID int) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, gs := range repo.db.slots {
		if gs.ID != excludeID && gs.Date.Equal(date) && gs.PeriodID == periodID && gs.ClassroomID == classroomID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *scheduleRepository) FilterSlots(_ context.Context, filter schedule.QueryFilter) ([]schedule.GlobalSchedule, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	slots := make([]schedule.GlobalSchedule, 0)
	for _, gs := range repo.db.slots {
		if filter.SubjectID != 0 && gs.SubjectID != filter.SubjectID {
			continue
		}
		if filter.LevelID != 0 && gs.LevelID != filter.LevelID {
			continue
		}
		if filter.MentorID != 0 && gs.MentorID != filter.MentorID {
			continue
		}
		if filter.ClassroomID != 0 && gs.ClassroomID != filter.ClassroomID {
			continue
		}
		if !filter.DateFrom.IsZero() && gs.Date.Before(filter.DateFrom) {
			continue
		}
		if !filter.DateTo.IsZero() && gs.Date.After(filter.DateTo) {
			continue
		}
		if len(filter.Statuses) > 0 && !statusIn(gs.PlanStatus, filter.Statuses) {
			continue
		}
		slots = append(slots, *gs)
	}
	repo.sortSlots(slots)
	return slots, nil
}

// sortSlots orders by (date, period start time); generation correctness
// depends on this order.
func (repo *scheduleRepository) sortSlots(slots []schedule.GlobalSchedule) {
	startOf := func(gs schedule.GlobalSchedule) string {
		if p, ok := repo.db.periods[gs.PeriodID]; ok {
			return p.StartTime
		}
		return ""
	}
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Date.Equal(slots[j].Date) {
			return slots[i].Date.Before(slots[j].Date)
		}
		return startOf(slots[i]) < startOf(slots[j])
	})
}

func statusIn(s schedule.PlanStatus, statuses []schedule.PlanStatus) bool {
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

func (repo *scheduleRepository) StartSlot(_ context.Context, id int, at time.Time, _ ...core.DBExecutor) (int64, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	gs, ok := repo.db.slots[id]
	if !ok || gs.PlanStatus != schedule.StatusPlanned {
		return 0, nil
	}
	gs.PlanStatus = schedule.StatusInProgress
	gs.StartedAt = null.TimeFrom(at)
	gs.UpdatedAt = at
	return 1, nil
}

func (repo *scheduleRepository) CompleteSlot(_ context.Context, id int, at time.Time, _ ...core.DBExecutor) (int64, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	gs, ok := repo.db.slots[id]
	if !ok || gs.PlanStatus != schedule.StatusInProgress {
		return 0, nil
	}
	gs.PlanStatus = schedule.StatusCompleted
	gs.CompletedAt = null.TimeFrom(at)
	gs.UpdatedAt = at
	return 1, nil
}

func (repo *scheduleRepository) CancelSlot(_ context.Context, id int, _ ...core.DBExecutor) (int64, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	gs, ok := repo.db.slots[id]
	if !ok || gs.PlanStatus == schedule.StatusPlanned {
		return 0, nil
	}
	gs.PlanStatus = schedule.StatusPlanned
	gs.StartedAt = null.Time{}
	gs.CompletedAt = null.Time{}
	gs.UpdatedAt = time.Now().UTC()
	return 1, nil
}
