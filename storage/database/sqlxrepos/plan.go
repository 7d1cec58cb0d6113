package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/plan"
	"github.com/mokykla/backend/core/schedule"
)

type planRow struct {
	ID               int         `db:"id"`
	StudentID        int         `db:"student_id"`
	GlobalScheduleID int         `db:"global_schedule_id"`
	LessonID         null.Int    `db:"lesson_id"`
	AttendanceStatus null.String `db:"attendance_status"`
	Notes            string      `db:"notes"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

func (row planRow) domain() plan.IMUPlan {
	return plan.IMUPlan{
		ID:               row.ID,
		StudentID:        row.StudentID,
		GlobalScheduleID: row.GlobalScheduleID,
		LessonID:         row.LessonID,
		AttendanceStatus: row.AttendanceStatus,
		Notes:            row.Notes,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

const planColumns = `id, student_id, global_schedule_id, lesson_id, attendance_status, notes, created_at, updated_at`

func scanPlan(scan func(dest ...interface{}) error) (plan.IMUPlan, error) {
	var row planRow
	err := scan(&row.ID, &row.StudentID, &row.GlobalScheduleID, &row.LessonID,
		&row.AttendanceStatus, &row.Notes, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return plan.IMUPlan{}, err
	}
	return row.domain(), nil
}

type planRepository struct {
	db *sqlx.DB
}

var (
	_ plan.Repository              = (*planRepository)(nil) // interface compliance check
	_ schedule.AttendanceDefaulter = (*planRepository)(nil)
)

func NewPlanRepository(db *sqlx.DB) *planRepository {
	return &planRepository{db: db}
}

func (repo *planRepository) GetPlanByID(ctx context.Context, id int, exec ...core.DBExecutor) (plan.IMUPlan, error) {
	p, err := scanPlan(getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM imu_plans WHERE id = $1`, id,
	).Scan)
	if err == sql.ErrNoRows {
		return plan.IMUPlan{}, plan.ErrPlanNotFound
	}
	if err != nil {
		return plan.IMUPlan{}, errors.Wrap(err, "getting plan")
	}
	return p, nil
}

func (repo *planRepository) GetPlanByStudentAndSlot(ctx context.Context, studentID, slotID int, exec ...core.DBExecutor) (plan.IMUPlan, error) {
	p, err := scanPlan(getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM imu_plans WHERE student_id = $1 AND global_schedule_id = $2`,
		studentID, slotID,
	).Scan)
	if err == sql.ErrNoRows {
		return plan.IMUPlan{}, plan.ErrPlanNotFound
	}
	if err != nil {
		return plan.IMUPlan{}, errors.Wrap(err, "getting plan by student and slot")
	}
	return p, nil
}

func (repo *planRepository) CreatePlan(ctx context.Context, p plan.IMUPlan, exec ...core.DBExecutor) (plan.IMUPlan, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx, `
		INSERT INTO imu_plans (student_id, global_schedule_id, lesson_id, attendance_status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		p.StudentID, p.GlobalScheduleID, p.LessonID, p.AttendanceStatus, p.Notes, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		if isUniqueViolation(err, "imu_plans_student_slot_key") {
			return plan.IMUPlan{}, plan.ErrPlanExists
		}
		return plan.IMUPlan{}, errors.Wrap(err, "creating plan")
	}
	return p, nil
}

func (repo *planRepository) UpdateAttendance(ctx context.Context, id int, status null.String, exec ...core.DBExecutor) (plan.IMUPlan, error) {
	p, err := scanPlan(getExec(repo.db, exec).QueryRowContext(ctx, `
		UPDATE imu_plans SET attendance_status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+planColumns,
		id, status,
	).Scan)
	if err == sql.ErrNoRows {
		return plan.IMUPlan{}, plan.ErrPlanNotFound
	}
	if err != nil {
		return plan.IMUPlan{}, errors.Wrap(err, "updating attendance")
	}
	return p, nil
}

func (repo *planRepository) AssignLessonIfSlotPlanned(ctx context.Context, id int, lessonID null.Int, exec ...core.DBExecutor) (int64, error) {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `
		UPDATE imu_plans SET lesson_id = $2, updated_at = NOW()
		WHERE id = $1
		AND (SELECT plan_status FROM global_schedules WHERE id = imu_plans.global_schedule_id) = 'planned'`,
		id, lessonID,
	)
	if err != nil {
		return 0, errors.Wrap(err, "assigning lesson")
	}
	return res.RowsAffected()
}

func (repo *planRepository) UpsertPlanForPlannedSlot(ctx context.Context, p plan.IMUPlan, exec ...core.DBExecutor) (plan.IMUPlan, bool, error) {
	// The slot-status guard sits inside the INSERT's source query, so a slot
	// started after the caller's read yields zero rows instead of a stale
	// overwrite. xmax = 0 distinguishes a fresh row from a conflict update.
	// Overwrites reset the attendance mark.
	var created bool
	var out planRow
	err := getExec(repo.db, exec).QueryRowContext(ctx, `
		INSERT INTO imu_plans (student_id, global_schedule_id, lesson_id, created_at, updated_at)
		SELECT $1, gs.id, $3, $4, $4
		FROM global_schedules gs
		WHERE gs.id = $2 AND gs.plan_status = 'planned'
		ON CONFLICT (student_id, global_schedule_id) DO UPDATE
		SET lesson_id = EXCLUDED.lesson_id, attendance_status = NULL, updated_at = EXCLUDED.updated_at
		RETURNING id, student_id, global_schedule_id, lesson_id, attendance_status, notes, created_at, updated_at,
			(xmax = 0)`,
		p.StudentID, p.GlobalScheduleID, p.LessonID, p.UpdatedAt,
	).Scan(&out.ID, &out.StudentID, &out.GlobalScheduleID, &out.LessonID, &out.AttendanceStatus,
		&out.Notes, &out.CreatedAt, &out.UpdatedAt, &created)
	if err == sql.ErrNoRows {
		return plan.IMUPlan{}, false, plan.ErrPlanLocked
	}
	if err != nil {
		return plan.IMUPlan{}, false, errors.Wrap(err, "upserting plan")
	}
	return out.domain(), created, nil
}

func (repo *planRepository) FilterPlansByStudentAndSlots(ctx context.Context, studentID int, slotIDs []int) ([]plan.IMUPlan, error) {
	ids := make(pq.Int64Array, len(slotIDs))
	for i, id := range slotIDs {
		ids[i] = int64(id)
	}
	return repo.queryPlans(ctx, `
		SELECT `+planColumns+` FROM imu_plans
		WHERE student_id = $1 AND global_schedule_id = ANY($2)`,
		studentID, ids)
}

func (repo *planRepository) FilterPlansBySubject(ctx context.Context, studentID, subjectID int) ([]plan.IMUPlan, error) {
	return repo.queryPlans(ctx, `
		SELECT p.id, p.student_id, p.global_schedule_id, p.lesson_id, p.attendance_status, p.notes, p.created_at, p.updated_at
		FROM imu_plans p
		JOIN global_schedules gs ON gs.id = p.global_schedule_id
		WHERE p.student_id = $1 AND gs.subject_id = $2`,
		studentID, subjectID)
}

func (repo *planRepository) FilterPlansForStats(ctx context.Context, filter plan.BulkStatsFilter) ([]plan.IMUPlan, error) {
	return repo.queryPlans(ctx, `
		SELECT p.id, p.student_id, p.global_schedule_id, p.lesson_id, p.attendance_status, p.notes, p.created_at, p.updated_at
		FROM imu_plans p
		JOIN global_schedules gs ON gs.id = p.global_schedule_id
		WHERE gs.subject_id = $1
		AND ($2 = 0 OR p.global_schedule_id = $2)
		AND ($3 = 0 OR p.lesson_id = $3)`,
		filter.SubjectID, filter.GlobalScheduleID, filter.LessonID)
}

func (repo *planRepository) queryPlans(ctx context.Context, q string, args ...interface{}) ([]plan.IMUPlan, error) {
	rows, err := repo.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying plans")
	}
	defer func() { _ = rows.Close() }()

	plans := make([]plan.IMUPlan, 0)
	for rows.Next() {
		p, err := scanPlan(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "scanning plan")
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (repo *planRepository) StudentPlansBetween(ctx context.Context, studentID int, from, to time.Time) ([]plan.StudentScheduleEntry, error) {
	rows, err := repo.db.QueryContext(ctx, `
		SELECT p.id, p.student_id, p.global_schedule_id, p.lesson_id, p.attendance_status, p.notes, p.created_at, p.updated_at,
			gs.id, gs.date, gs.weekday, gs.period_id, gs.classroom_id, gs.subject_id, gs.level_id, gs.mentor_id,
			gs.plan_status, gs.started_at, gs.completed_at, gs.created_at, gs.updated_at
		FROM imu_plans p
		JOIN global_schedules gs ON gs.id = p.global_schedule_id
		JOIN periods pe ON pe.id = gs.period_id
		WHERE p.student_id = $1 AND gs.date >= $2 AND gs.date <= $3
		ORDER BY gs.date, pe.start_time`,
		studentID, from, to,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying student schedule")
	}
	defer func() { _ = rows.Close() }()

	entries := make([]plan.StudentScheduleEntry, 0)
	for rows.Next() {
		var pr planRow
		var sr slotRow
		err = rows.Scan(
			&pr.ID, &pr.StudentID, &pr.GlobalScheduleID, &pr.LessonID, &pr.AttendanceStatus,
			&pr.Notes, &pr.CreatedAt, &pr.UpdatedAt,
			&sr.ID, &sr.Date, &sr.Weekday, &sr.PeriodID, &sr.ClassroomID, &sr.SubjectID,
			&sr.LevelID, &sr.MentorID, &sr.PlanStatus, &sr.StartedAt, &sr.CompletedAt,
			&sr.CreatedAt, &sr.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scanning student schedule entry")
		}
		entries = append(entries, plan.StudentScheduleEntry{Plan: pr.domain(), Slot: sr.domain()})
	}
	return entries, rows.Err()
}

func (repo *planRepository) DefaultPresent(ctx context.Context, slotID int, exec ...core.DBExecutor) (int64, error) {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `
		UPDATE imu_plans SET attendance_status = 'present', updated_at = NOW()
		WHERE global_schedule_id = $1 AND attendance_status IS NULL`,
		slotID,
	)
	if err != nil {
		return 0, errors.Wrap(err, "defaulting attendance")
	}
	return res.RowsAffected()
}

// ~~~~~~~~~~~~~~~~~~~~~
// Sequences

func (repo *planRepository) CreateSequence(ctx context.Context, seq plan.LessonSequence, exec ...core.DBExecutor) (plan.LessonSequence, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx, `
		INSERT INTO lesson_sequences (name, description, subject_id, level_id, created_by, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		seq.Name, seq.Description, seq.SubjectID, seq.LevelID, seq.CreatedBy, seq.IsActive, seq.CreatedAt,
	).Scan(&seq.ID)
	if err != nil {
		if isUniqueViolation(err, "lesson_sequences_name_key") {
			return plan.LessonSequence{}, plan.ErrSequenceExists
		}
		return plan.LessonSequence{}, errors.Wrap(err, "creating sequence")
	}
	return seq, nil
}

func (repo *planRepository) GetSequenceByID(ctx context.Context, id int, exec ...core.DBExecutor) (plan.LessonSequence, error) {
	dbx := getExec(repo.db, exec)

	var seq plan.LessonSequence
	err := dbx.QueryRowContext(ctx, `
		SELECT id, name, description, subject_id, level_id, created_by, is_active, created_at
		FROM lesson_sequences WHERE id = $1`, id,
	).Scan(&seq.ID, &seq.Name, &seq.Description, &seq.SubjectID, &seq.LevelID,
		&seq.CreatedBy, &seq.IsActive, &seq.CreatedAt)
	if err == sql.ErrNoRows {
		return plan.LessonSequence{}, plan.ErrSequenceNotFound
	}
	if err != nil {
		return plan.LessonSequence{}, errors.Wrap(err, "getting sequence")
	}

	rows, err := dbx.QueryContext(ctx, `
		SELECT i.id, i.sequence_id, i.lesson_id, i.position, l.title
		FROM lesson_sequence_items i
		JOIN lessons l ON l.id = i.lesson_id
		WHERE i.sequence_id = $1
		ORDER BY i.position`, id,
	)
	if err != nil {
		return plan.LessonSequence{}, errors.Wrap(err, "querying sequence items")
	}
	defer func() { _ = rows.Close() }()

	seq.Items = make([]plan.LessonSequenceItem, 0)
	for rows.Next() {
		var item plan.LessonSequenceItem
		if err = rows.Scan(&item.ID, &item.SequenceID, &item.LessonID, &item.Position, &item.LessonTitle); err != nil {
			return plan.LessonSequence{}, errors.Wrap(err, "scanning sequence item")
		}
		seq.Items = append(seq.Items, item)
	}
	return seq, rows.Err()
}

func (repo *planRepository) QueryAllSequences(ctx context.Context) ([]plan.LessonSequence, error) {
	rows, err := repo.db.QueryContext(ctx, `
		SELECT id, name, description, subject_id, level_id, created_by, is_active, created_at
		FROM lesson_sequences
		ORDER BY name`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying sequences")
	}
	defer func() { _ = rows.Close() }()

	seqs := make([]plan.LessonSequence, 0)
	for rows.Next() {
		var seq plan.LessonSequence
		err = rows.Scan(&seq.ID, &seq.Name, &seq.Description, &seq.SubjectID, &seq.LevelID,
			&seq.CreatedBy, &seq.IsActive, &seq.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "scanning sequence")
		}
		seqs = append(seqs, seq)
	}
	return seqs, rows.Err()
}

func (repo *planRepository) UpdateSequence(ctx context.Context, seq plan.LessonSequence, exec ...core.DBExecutor) (plan.LessonSequence, error) {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `
		UPDATE lesson_sequences
		SET name = $2, description = $3, subject_id = $4, level_id = $5, is_active = $6
		WHERE id = $1`,
		seq.ID, seq.Name, seq.Description, seq.SubjectID, seq.LevelID, seq.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err, "lesson_sequences_name_key") {
			return plan.LessonSequence{}, plan.ErrSequenceExists
		}
		return plan.LessonSequence{}, errors.Wrap(err, "updating sequence")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return plan.LessonSequence{}, plan.ErrSequenceNotFound
	}
	return seq, nil
}

func (repo *planRepository) DeleteSequenceItems(ctx context.Context, sequenceID int, exec ...core.DBExecutor) error {
	_, err := getExec(repo.db, exec).ExecContext(ctx,
		`DELETE FROM lesson_sequence_items WHERE sequence_id = $1`, sequenceID)
	return errors.Wrap(err, "deleting sequence items")
}

func (repo *planRepository) CreateSequenceItems(ctx context.Context, sequenceID int, items []plan.LessonSequenceItem, exec ...core.DBExecutor) error {
	dbx := getExec(repo.db, exec)
	for _, item := range items {
		_, err := dbx.ExecContext(ctx, `
			INSERT INTO lesson_sequence_items (sequence_id, lesson_id, position) VALUES ($1, $2, $3)`,
			sequenceID, item.LessonID, item.Position,
		)
		if err != nil {
			return errors.Wrap(err, "creating sequence item")
		}
	}
	return nil
}
