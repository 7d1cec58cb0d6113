package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/curriculum"
	"github.com/mokykla/backend/core/plan"
	"github.com/mokykla/backend/core/schedule"
	"github.com/mokykla/backend/core/user"
	dummydb "github.com/mokykla/backend/storage/database/dummy"
)

type testEnv struct {
	server    Server
	auth      authenticator
	db        *dummydb.DB
	usrRepo   user.Repository
	currRepo  curriculum.Repository
	schedRepo schedule.Repository
	planRepo  plan.Repository
	schedSvc  *schedule.Service
	planSvc   *plan.Service

	mentor  user.User
	student user.User
}

func testConfig() *core.Config {
	return &core.Config{
		TestMode:  true,
		Env:       "TEST",
		AppName:   "Mokykla",
		SecretKey: "secret",
		Server: core.ServerConfig{
			Addr:               ":0",
			JWTExpirationDelta: 10 * time.Minute,
		},
	}
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	usrRepo := dummydb.NewUserRepository(db)
	currRepo := dummydb.NewCurriculumRepository(db)
	schedRepo := dummydb.NewScheduleRepository(db)
	planRepo := dummydb.NewPlanRepository(db)

	log := core.NopLogger{}
	usrSvc := user.NewService(usrRepo)
	currSvc := curriculum.NewService(currRepo)
	importer := curriculum.NewImporter(db, currRepo, log)
	schedSvc := schedule.NewService(db, schedRepo, usrRepo, planRepo, log)
	planSvc := plan.NewService(db, planRepo, schedRepo, log)

	conf := testConfig()
	env := &testEnv{
		auth:      authenticator{conf: conf, svc: usrSvc},
		db:        db,
		usrRepo:   usrRepo,
		currRepo:  currRepo,
		schedRepo: schedRepo,
		planRepo:  planRepo,
		schedSvc:  schedSvc,
		planSvc:   planSvc,
	}
	env.server = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         log,
		UserSvc:        usrSvc,
		ScheduleSvc:    schedSvc,
		PlanSvc:        planSvc,
		CurriculumSvc:  currSvc,
		Importer:       importer,
		DisableReqLogs: true,
	})

	env.mentor = env.createUser(t, "Maya Mentor", "maya", "maya@example.com", "Secret123", user.RoleMentor)
	env.student = env.createUser(t, "Sam Student", "sam", "sam@example.com", "Secret123", user.RoleStudent)
	return env
}

func (env *testEnv) createUser(t *testing.T, name, uname, email, pwd string, roles ...user.Role) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		IsActive:  true,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	usr, err := env.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func (env *testEnv) token(t *testing.T, usr user.User) string {
	t.Helper()

	token, err := env.auth.generateToken(env.auth.userClaims(usr))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (env *testEnv) seedSlot(t *testing.T, date string, subjectID, levelID int) schedule.GlobalSchedule {
	t.Helper()
	ctx := context.Background()

	period, err := env.schedRepo.CreatePeriod(ctx, schedule.Period{Name: "P1", StartTime: "09:00", Duration: 45})
	if err != nil {
		t.Fatalf("seedSlot() failed: %v", err)
	}
	room, err := env.schedRepo.CreateClassroom(ctx, schedule.Classroom{Name: "Room " + date})
	if err != nil {
		t.Fatalf("seedSlot() failed: %v", err)
	}

	day, err := time.Parse(core.DateFormat, date)
	if err != nil {
		t.Fatalf("seedSlot() failed: %v", err)
	}
	now := time.Now().UTC()
	gs, err := env.schedRepo.CreateSlot(ctx, schedule.GlobalSchedule{
		Date:        day,
		Weekday:     schedule.Weekday(day),
		PeriodID:    period.ID,
		ClassroomID: room.ID,
		SubjectID:   subjectID,
		LevelID:     levelID,
		MentorID:    env.mentor.ID,
		PlanStatus:  schedule.StatusPlanned,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("seedSlot() failed: %v", err)
	}
	return gs
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echoHeaderContentType, echoMIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

const (
	echoHeaderContentType   = "Content-Type"
	echoMIMEApplicationJSON = "application/json"
)

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()

	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()

	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decodeBody() failed: %v; body %s", err, rec.Body.String())
	}
}
