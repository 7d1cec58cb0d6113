package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/user"
)

var (
	// errors
	ErrSlotNotFound      = errors.New("schedule slot not found")
	ErrPeriodNotFound    = errors.New("period not found")
	ErrClassroomNotFound = errors.New("classroom not found")
	ErrSlotTaken         = errors.New("this classroom and period are already booked for that date")
	ErrNotPermitted      = errors.New("only mentors and managers may manage the schedule")
	ErrNotMentor         = errors.New("the assigned user does not hold the mentor role")
)

type (
	Repository interface {
		CreatePeriod(ctx context.Context, p Period) (Period, error)
		GetPeriodByID(ctx context.Context, id int) (Period, error)
		QueryAllPeriods(ctx context.Context) ([]Period, error)

		CreateClassroom(ctx context.Context, c Classroom) (Classroom, error)
		GetClassroomByID(ctx context.Context, id int) (Classroom, error)
		QueryAllClassrooms(ctx context.Context) ([]Classroom, error)

		// CreateSlot returns ErrSlotTaken when the (date, period, classroom)
		// unique index rejects the row.
		CreateSlot(ctx context.Context, gs GlobalSchedule, exec ...core.DBExecutor) (GlobalSchedule, error)
		GetSlotByID(ctx context.Context, id int, exec ...core.DBExecutor) (GlobalSchedule, error)
		UpdateSlot(ctx context.Context, gs GlobalSchedule, exec ...core.DBExecutor) (GlobalSchedule, error)
		// SlotExists reports whether another slot occupies (date, period,
		// classroom); excludeID skips the slot being edited.
		SlotExists(ctx context.Context, date time.Time, periodID, classroomID, excludeID int) (bool, error)
		FilterSlots(ctx context.Context, filter QueryFilter) ([]GlobalSchedule, error)

		// Conditional single-statement transitions; each returns the number
		// of rows updated (0 or 1).
		StartSlot(ctx context.Context, id int, at time.Time, exec ...core.DBExecutor) (int64, error)
		CompleteSlot(ctx context.Context, id int, at time.Time, exec ...core.DBExecutor) (int64, error)
		CancelSlot(ctx context.Context, id int, exec ...core.DBExecutor) (int64, error)
	}

	// UserDirectory is the slice of the user store the schedule needs.
	UserDirectory interface {
		GetUserByID(ctx context.Context, id int) (user.User, error)
	}

	// AttendanceDefaulter marks unset attendance as present for every plan
	// attached to a slot. Implemented by the plan repository; declared here to
	// keep the dependency pointing plan -> schedule only.
	AttendanceDefaulter interface {
		DefaultPresent(ctx context.Context, slotID int, exec ...core.DBExecutor) (int64, error)
	}

	Service struct {
		db    core.DB
		repo  Repository
		users UserDirectory
		plans AttendanceDefaulter
		log   core.Logger
	}
)

func NewService(db core.DB, repo Repository, users UserDirectory, plans AttendanceDefaulter, log core.Logger) *Service {
	return &Service{db: db, repo: repo, users: users, plans: plans, log: log}
}

// ~~~~~~~~~~~~~~~~~~~~~
// Periods & classrooms

func (svc *Service) CreatePeriod(ctx context.Context, np NewPeriod) (Period, error) {
	if err := np.Validate(); err != nil {
		return Period{}, err
	}
	return svc.repo.CreatePeriod(ctx, Period{Name: np.Name, StartTime: np.StartTime, Duration: np.Duration})
}

func (svc *Service) QueryPeriods(ctx context.Context) ([]Period, error) {
	return svc.repo.QueryAllPeriods(ctx)
}

func (svc *Service) CreateClassroom(ctx context.Context, nc NewClassroom) (Classroom, error) {
	if err := nc.Validate(); err != nil {
		return Classroom{}, err
	}
	return svc.repo.CreateClassroom(ctx, Classroom{Name: nc.Name, Description: nc.Description})
}

func (svc *Service) QueryClassrooms(ctx context.Context) ([]Classroom, error) {
	return svc.repo.QueryAllClassrooms(ctx)
}

// ~~~~~~~~~~~~~~~~~~~~~
// Slots

func (svc *Service) CreateSlot(ctx context.Context, actor user.RoleSet, ns NewSlot) (GlobalSchedule, error) {
	if !actor.CanSchedule() {
		return GlobalSchedule{}, ErrNotPermitted
	}
	if err := ns.Validate(); err != nil {
		return GlobalSchedule{}, err
	}
	if err := svc.checkMentor(ctx, ns.MentorID); err != nil {
		return GlobalSchedule{}, err
	}

	date := ns.ParsedDate()
	if err := svc.checkConflict(ctx, date, ns.PeriodID, ns.ClassroomID, 0); err != nil {
		return GlobalSchedule{}, err
	}

	now := time.Now().UTC()
	gs := GlobalSchedule{
		Date:        date,
		Weekday:     Weekday(date),
		PeriodID:    ns.PeriodID,
		ClassroomID: ns.ClassroomID,
		SubjectID:   ns.SubjectID,
		LevelID:     ns.LevelID,
		MentorID:    ns.MentorID,
		PlanStatus:  StatusPlanned,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	gs, err := svc.repo.CreateSlot(ctx, gs)
	if err == ErrSlotTaken {
		// the unique index closed a race the pre-check missed
		return GlobalSchedule{}, core.NewConflictError(err)
	}
	return gs, err
}

func (svc *Service) UpdateSlot(ctx context.Context, actor user.RoleSet, id int, us UpdateSlot) (GlobalSchedule, error) {
	if !actor.CanSchedule() {
		return GlobalSchedule{}, ErrNotPermitted
	}
	if err := us.Validate(); err != nil {
		return GlobalSchedule{}, err
	}

	gs, err := svc.repo.GetSlotByID(ctx, id)
	if err != nil {
		return GlobalSchedule{}, err
	}

	if us.Date != "" {
		gs.Date, _ = time.Parse(core.DateFormat, us.Date)
		gs.Weekday = Weekday(gs.Date)
	}
	if us.PeriodID != 0 {
		gs.PeriodID = us.PeriodID
	}
	if us.ClassroomID != 0 {
		gs.ClassroomID = us.ClassroomID
	}
	if us.SubjectID != 0 {
		gs.SubjectID = us.SubjectID
	}
	if us.LevelID != 0 {
		gs.LevelID = us.LevelID
	}
	if us.MentorID != 0 {
		if err = svc.checkMentor(ctx, us.MentorID); err != nil {
			return GlobalSchedule{}, err
		}
		gs.MentorID = us.MentorID
	}

	if err = svc.checkConflict(ctx, gs.Date, gs.PeriodID, gs.ClassroomID, gs.ID); err != nil {
		return GlobalSchedule{}, err
	}

	gs.UpdatedAt = time.Now().UTC()
	gs, err = svc.repo.UpdateSlot(ctx, gs)
	if err == ErrSlotTaken {
		return GlobalSchedule{}, core.NewConflictError(err)
	}
	return gs, err
}

func (svc *Service) GetSlot(ctx context.Context, id int) (GlobalSchedule, error) {
	return svc.repo.GetSlotByID(ctx, id)
}

func (svc *Service) QuerySlots(ctx context.Context, filter QueryFilter) ([]GlobalSchedule, error) {
	return svc.repo.FilterSlots(ctx, filter)
}

func (svc *Service) Daily(ctx context.Context, date time.Time) ([]GlobalSchedule, error) {
	return svc.repo.FilterSlots(ctx, QueryFilter{DateFrom: date, DateTo: date})
}

func (svc *Service) Weekly(ctx context.Context, weekStart time.Time) ([]GlobalSchedule, error) {
	return svc.repo.FilterSlots(ctx, QueryFilter{DateFrom: weekStart, DateTo: weekStart.AddDate(0, 0, 6)})
}

// ~~~~~~~~~~~~~~~~~~~~~
// Lifecycle

// Start moves a planned slot to in_progress and defaults unset attendance to
// present for every plan in the slot, atomically. Attendance already set
// (eg. excused) is preserved. A second Start is rejected without touching
// attendance again.
func (svc *Service) Start(ctx context.Context, id int) (GlobalSchedule, error) {
	now := time.Now().UTC()

	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return GlobalSchedule{}, err
	}
	defer tx.Rollback()

	n, err := svc.repo.StartSlot(ctx, id, now, tx)
	if err != nil {
		return GlobalSchedule{}, err
	}
	if n == 0 {
		return GlobalSchedule{}, svc.transitionErr(ctx, id, StatusInProgress)
	}

	marked, err := svc.plans.DefaultPresent(ctx, id, tx)
	if err != nil {
		return GlobalSchedule{}, err
	}
	if err = tx.Commit(); err != nil {
		return GlobalSchedule{}, err
	}

	svc.log.Info("activity started", "slot", id, "attendance_defaulted", marked)
	return svc.repo.GetSlotByID(ctx, id)
}

// End moves an in_progress slot to completed. Attendance is left as is.
func (svc *Service) End(ctx context.Context, id int) (GlobalSchedule, error) {
	n, err := svc.repo.CompleteSlot(ctx, id, time.Now().UTC())
	if err != nil {
		return GlobalSchedule{}, err
	}
	if n == 0 {
		return GlobalSchedule{}, svc.transitionErr(ctx, id, StatusCompleted)
	}
	return svc.repo.GetSlotByID(ctx, id)
}

// Cancel returns an active slot to planned and clears both timestamps.
// Plans keep whatever attendance they have; mentors correct records manually
// after an accidental start.
func (svc *Service) Cancel(ctx context.Context, id int) (GlobalSchedule, error) {
	n, err := svc.repo.CancelSlot(ctx, id)
	if err != nil {
		return GlobalSchedule{}, err
	}
	if n == 0 {
		return GlobalSchedule{}, svc.transitionErr(ctx, id, StatusPlanned)
	}
	svc.log.Info("activity cancelled", "slot", id)
	return svc.repo.GetSlotByID(ctx, id)
}

// transitionErr resolves a zero-row conditional update: either the slot is
// gone or it sits in a state the transition does not accept.
func (svc *Service) transitionErr(ctx context.Context, id int, requested PlanStatus) error {
	gs, err := svc.repo.GetSlotByID(ctx, id)
	if err != nil {
		return err
	}
	return core.NewInvalidTransitionError(string(gs.PlanStatus), string(requested))
}

func (svc *Service) checkMentor(ctx context.Context, mentorID int) error {
	usr, err := svc.users.GetUserByID(ctx, mentorID)
	if err != nil {
		if err == user.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "mentor_id", Error: err.Error()})
		}
		return err
	}
	if !usr.IsMentor() {
		return ErrNotMentor
	}
	return nil
}

func (svc *Service) checkConflict(ctx context.Context, date time.Time, periodID, classroomID, excludeID int) error {
	taken, err := svc.repo.SlotExists(ctx, date, periodID, classroomID, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return core.NewConflictError(ErrSlotTaken)
	}
	return nil
}
