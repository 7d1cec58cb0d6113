package dummydb

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/curriculum"
	"github.com/mokykla/backend/core/plan"
	"github.com/mokykla/backend/core/schedule"
	"github.com/mokykla/backend/core/user"
)

// in-memory storage for tests; locking mirrors what the SQL layer gets from
// the database so the services can be exercised unchanged.

type (
	DB struct {
		user       *userTable
		curriculum *curriculumTables
		schedule   *scheduleTables
		plan       *planTables
	}

	userTable struct {
		sync.RWMutex
		table map[int]*user.User
		pk    int
	}

	curriculumTables struct {
		sync.RWMutex
		subjects  map[int]*curriculum.Subject
		levels    map[int]*curriculum.Level
		lessons   map[int]*curriculum.Lesson
		subjectPK int
		levelPK   int
		lessonPK  int
	}

	scheduleTables struct {
		sync.RWMutex
		periods     map[int]*schedule.Period
		classrooms  map[int]*schedule.Classroom
		slots       map[int]*schedule.GlobalSchedule
		periodPK    int
		classroomPK int
		slotPK      int
	}

	planTables struct {
		sync.RWMutex
		plans     map[int]*plan.IMUPlan
		sequences map[int]*plan.LessonSequence
		planPK    int
		seqPK     int
		itemPK    int
	}
)

var _ core.DB = (*DB)(nil) // interface compliance check

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[int]*user.User)},
		curriculum: &curriculumTables{
			subjects: make(map[int]*curriculum.Subject),
			levels:   make(map[int]*curriculum.Level),
			lessons:  make(map[int]*curriculum.Lesson),
		},
		schedule: &scheduleTables{
			periods:    make(map[int]*schedule.Period),
			classrooms: make(map[int]*schedule.Classroom),
			slots:      make(map[int]*schedule.GlobalSchedule),
		},
		plan: &planTables{
			plans:     make(map[int]*plan.IMUPlan),
			sequences: make(map[int]*plan.LessonSequence),
		},
	}
	return db, nil
}

// BeginTx hands out a no-op transactor; the dummy store mutates in place and
// has nothing to roll back.
func (db *DB) BeginTx(context.Context, *sql.TxOptions) (core.DBTransactor, error) {
	return nopTx{}, nil
}

var errNotRelational = errors.New("dummydb: raw SQL is not supported")

type nopTx struct{}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

func (nopTx) Exec(string, ...interface{}) (sql.Result, error) { return nil, errNotRelational }
func (nopTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNotRelational
}
func (nopTx) Query(string, ...interface{}) (*sql.Rows, error) { return nil, errNotRelational }
func (nopTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNotRelational
}
func (nopTx) QueryRow(string, ...interface{}) *sql.Row                         { return nil }
func (nopTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }

func (db *DB) Exec(string, ...interface{}) (sql.Result, error) { return nil, errNotRelational }
func (db *DB) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNotRelational
}
func (db *DB) Query(string, ...interface{}) (*sql.Rows, error) { return nil, errNotRelational }
func (db *DB) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNotRelational
}
func (db *DB) QueryRow(string, ...interface{}) *sql.Row                         { return nil }
func (db *DB) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }
