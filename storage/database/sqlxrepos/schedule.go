package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/schedule"
)

type slotRow struct {
	ID          int       `db:"id"`
	Date        time.Time `db:"date"`
	Weekday     string    `db:"weekday"`
	PeriodID    int       `db:"period_id"`
	ClassroomID int       `db:"classroom_id"`
	SubjectID   int       `db:"subject_id"`
	LevelID     int       `db:"level_id"`
	MentorID    int       `db:"mentor_id"`
	PlanStatus  string    `db:"plan_status"`
	StartedAt   null.Time `db:"started_at"`
	CompletedAt null.Time `db:"completed_at"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row slotRow) domain() schedule.GlobalSchedule {
	return schedule.GlobalSchedule{
		ID:          row.ID,
		Date:        row.Date,
		Weekday:     row.Weekday,
		PeriodID:    row.PeriodID,
		ClassroomID: row.ClassroomID,
		SubjectID:   row.SubjectID,
		LevelID:     row.LevelID,
		MentorID:    row.MentorID,
		PlanStatus:  schedule.PlanStatus(row.PlanStatus),
		StartedAt:   row.StartedAt,
		CompletedAt: row.CompletedAt,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

const slotColumns = `id, date, weekday, period_id, classroom_id, subject_id, level_id, mentor_id,
	plan_status, started_at, completed_at, created_at, updated_at`

func scanSlot(scan func(dest ...interface{}) error) (schedule.GlobalSchedule, error) {
	var row slotRow
	err := scan(&row.ID, &row.Date, &row.Weekday, &row.PeriodID, &row.ClassroomID, &row.SubjectID,
		&row.LevelID, &row.MentorID, &row.PlanStatus, &row.StartedAt, &row.CompletedAt,
		&row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return schedule.GlobalSchedule{}, err
	}
	return row.domain(), nil
}

type scheduleRepository struct {
	db *sqlx.DB
}

var _ schedule.Repository = (*scheduleRepository)(nil) // interface compliance check

func NewScheduleRepository(db *sqlx.DB) *scheduleRepository {
	return &scheduleRepository{db: db}
}

func (repo *scheduleRepository) CreatePeriod(ctx context.Context, p schedule.Period) (schedule.Period, error) {
	err := repo.db.QueryRowContext(ctx, `
		INSERT INTO periods (name, start_time, duration) VALUES ($1, $2, $3) RETURNING id`,
		p.Name, p.StartTime, p.Duration,
	).Scan(&p.ID)
	if err != nil {
		return schedule.Period{}, errors.Wrap(err, "creating period")
	}
	return p, nil
}

func (repo *scheduleRepository) GetPeriodByID(ctx context.Context, id int) (schedule.Period, error) {
	var p schedule.Period
	err := repo.db.QueryRowContext(ctx,
		`SELECT id, name, start_time, duration FROM periods WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.StartTime, &p.Duration)
	if err == sql.ErrNoRows {
		return schedule.Period{}, schedule.ErrPeriodNotFound
	}
	if err != nil {
		return schedule.Period{}, errors.Wrap(err, "getting period")
	}
	return p, nil
}

func (repo *scheduleRepository) QueryAllPeriods(ctx context.Context) ([]schedule.Period, error) {
	rows, err := repo.db.QueryContext(ctx, `SELECT id, name, start_time, duration FROM periods ORDER BY start_time`)
	if err != nil {
		return nil, errors.Wrap(err, "querying periods")
	}
	defer func() { _ = rows.Close() }()

	periods := make([]schedule.Period, 0)
	for rows.Next() {
		var p schedule.Period
		if err = rows.Scan(&p.ID, &p.Name, &p.StartTime, &p.Duration); err != nil {
			return nil, errors.Wrap(err, "scanning period")
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (repo *scheduleRepository) CreateClassroom(ctx context.Context, c schedule.Classroom) (schedule.Classroom, error) {
	err := repo.db.QueryRowContext(ctx, `
		INSERT INTO classrooms (name, description) VALUES ($1, $2) RETURNING id`,
		c.Name, c.Description,
	).Scan(&c.ID)
	if err != nil {
		return schedule.Classroom{}, errors.Wrap(err, "creating classroom")
	}
	return c, nil
}

func (repo *scheduleRepository) GetClassroomByID(ctx context.Context, id int) (schedule.Classroom, error) {
	var c schedule.Classroom
	err := repo.db.QueryRowContext(ctx,
		`SELECT id, name, description FROM classrooms WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Description)
	if err == sql.ErrNoRows {
		return schedule.Classroom{}, schedule.ErrClassroomNotFound
	}
	if err != nil {
		return schedule.Classroom{}, errors.Wrap(err, "getting classroom")
	}
	return c, nil
}

func (repo *scheduleRepository) QueryAllClassrooms(ctx context.Context) ([]schedule.Classroom, error) {
	rooms := make([]schedule.Classroom, 0)
	if err := repo.db.SelectContext(ctx, &rooms, `SELECT * FROM classrooms ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "querying classrooms")
	}
	return rooms, nil
}

func (repo *scheduleRepository) CreateSlot(ctx context.Context, gs schedule.GlobalSchedule, exec ...core.DBExecutor) (schedule.GlobalSchedule, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx, `
		INSERT INTO global_schedules
			(date, weekday, period_id, classroom_id, subject_id, level_id, mentor_id, plan_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		gs.Date, gs.Weekday, gs.PeriodID, gs.ClassroomID, gs.SubjectID, gs.LevelID, gs.MentorID,
		gs.PlanStatus, gs.CreatedAt, gs.UpdatedAt,
	).Scan(&gs.ID)
	if err != nil {
		if isUniqueViolation(err, "global_schedules_booking_key") {
			return schedule.GlobalSchedule{}, schedule.ErrSlotTaken
		}
		return schedule.GlobalSchedule{}, errors.Wrap(err, "creating slot")
	}
	return gs, nil
}

func (repo *scheduleRepository) GetSlotByID(ctx context.Context, id int, exec ...core.DBExecutor) (schedule.GlobalSchedule, error) {
	gs, err := scanSlot(getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM global_schedules WHERE id = $1`, id,
	).Scan)
	if err == sql.ErrNoRows {
		return schedule.GlobalSchedule{}, schedule.ErrSlotNotFound
	}
	if err != nil {
		return schedule.GlobalSchedule{}, errors.Wrap(err, "getting slot")
	}
	return gs, nil
}

func (repo *scheduleRepository) UpdateSlot(ctx context.Context, gs schedule.GlobalSchedule, exec ...core.DBExecutor) (schedule.GlobalSchedule, error) {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `
		UPDATE global_schedules
		SET date = $2, weekday = $3, period_id = $4, classroom_id = $5, subject_id = $6,
			level_id = $7, mentor_id = $8, updated_at = $9
		WHERE id = $1`,
		gs.ID, gs.Date, gs.Weekday, gs.PeriodID, gs.ClassroomID, gs.SubjectID, gs.LevelID,
		gs.MentorID, gs.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "global_schedules_booking_key") {
			return schedule.GlobalSchedule{}, schedule.ErrSlotTaken
		}
		return schedule.GlobalSchedule{}, errors.Wrap(err, "updating slot")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schedule.GlobalSchedule{}, schedule.ErrSlotNotFound
	}
	return repo.GetSlotByID(ctx, gs.ID, exec...)
}

func (repo *scheduleRepository) SlotExists(ctx context.Context, date time.Time, periodID, classroomID, excludeID int) (bool, error) {
	var exists bool
	err := repo.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM global_schedules
			WHERE date = $1 AND period_id = $2 AND classroom_id = $3 AND id != $4
		)`,
		date, periodID, classroomID, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "checking slot conflict")
	}
	return exists, nil
}

func (repo *scheduleRepository) FilterSlots(ctx context.Context, filter schedule.QueryFilter) ([]schedule.GlobalSchedule, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.SubjectID != 0 {
		where = append(where, "gs.subject_id = "+arg(filter.SubjectID))
	}
	if filter.LevelID != 0 {
		where = append(where, "gs.level_id = "+arg(filter.LevelID))
	}
	if filter.MentorID != 0 {
		where = append(where, "gs.mentor_id = "+arg(filter.MentorID))
	}
	if filter.ClassroomID != 0 {
		where = append(where, "gs.classroom_id = "+arg(filter.ClassroomID))
	}
	if !filter.DateFrom.IsZero() {
		where = append(where, "gs.date >= "+arg(filter.DateFrom))
	}
	if !filter.DateTo.IsZero() {
		where = append(where, "gs.date <= "+arg(filter.DateTo))
	}
	if len(filter.Statuses) > 0 {
		statuses := make(pq.StringArray, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, "gs.plan_status = ANY("+arg(statuses)+")")
	}

	q := `SELECT gs.id, gs.date, gs.weekday, gs.period_id, gs.classroom_id, gs.subject_id,
			gs.level_id, gs.mentor_id, gs.plan_status, gs.started_at, gs.completed_at,
			gs.created_at, gs.updated_at
		FROM global_schedules gs
		JOIN periods p ON p.id = gs.period_id`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	// generation pairs slots to lessons by index; this order is a
	// correctness requirement, not cosmetics
	q += " ORDER BY gs.date, p.start_time"

	rows, err := repo.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying slots")
	}
	defer func() { _ = rows.Close() }()

	slots := make([]schedule.GlobalSchedule, 0)
	for rows.Next() {
		gs, err := scanSlot(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "scanning slot")
		}
		slots = append(slots, gs)
	}
	return slots, rows.Err()
}

// Lifecycle transitions are single conditional updates: first writer wins,
// later callers see zero rows.

func (repo *scheduleRepository) StartSlot(ctx context.Context, id int, at time.Time, exec ...core.DBExecutor) (int64, error) {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `
		UPDATE global_schedules
		SET plan_status = 'in_progress', started_at = $2, updated_at = $2
		WHERE id = $1 AND plan_status = 'planned'`,
		id, at,
	)
	if err != nil {
		return 0, errors.Wrap(err, "starting slot")
	}
	return res.RowsAffected()
}

func (repo *scheduleRepository) CompleteSlot(ctx context.Context, id int, at time.Time, exec ...core.DBExecutor) (int64, error) {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `
		UPDATE global_schedules
		SET plan_status = 'completed', completed_at = $2, updated_at = $2
		WHERE id = $1 AND plan_status = 'in_progress'`,
		id, at,
	)
	if err != nil {
		return 0, errors.Wrap(err, "completing slot")
	}
	return res.RowsAffected()
}

func (repo *scheduleRepository) CancelSlot(ctx context.Context, id int, exec ...core.DBExecutor) (int64, error) {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `
		UPDATE global_schedules
		SET plan_status = 'planned', started_at = NULL, completed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND plan_status IN ('in_progress', 'completed')`,
		id,
	)
	if err != nil {
		return 0, errors.Wrap(err, "cancelling slot")
	}
	return res.RowsAffected()
}
