package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/volatiletech/null/v8"

	"github.com/mokykla/backend/core/curriculum"
	"github.com/mokykla/backend/core/plan"
	"github.com/mokykla/backend/core/schedule"
	"github.com/mokykla/backend/core/user"
)

func TestServer_home(t *testing.T) {
	env := setup(t)

	req, rec := newAuthRequest(http.MethodGet, "/", "")
	env.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("code = %v; want %v", rec.Code, http.StatusOK)
	}
}

func TestUserApi_login(t *testing.T) {
	env := setup(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"valid credentials", `{"username": "maya", "password": "Secret123"}`, http.StatusOK},
		{"email works too", `{"username": "maya@example.com", "password": "Secret123"}`, http.StatusOK},
		{"wrong password", `{"username": "maya", "password": "nope"}`, http.StatusBadRequest},
		{"unknown user", `{"username": "ghost", "password": "Secret123"}`, http.StatusBadRequest},
		{"missing fields", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/users/login", "", []byte(tt.body))
			env.server.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("code = %v; want %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				decodeBody(t, rec, &resp)
				if resp.Token == "" {
					t.Error("expected a token in the response")
				}
			}
		})
	}
}

func TestApi_authRequired(t *testing.T) {
	env := setup(t)

	req, rec := newAuthRequest(http.MethodGet, "/v1/schedule/slots", "")
	env.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("code = %v; want %v", rec.Code, http.StatusUnauthorized)
	}
}

func TestScheduleApi_createSlot(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	period, _ := env.schedRepo.CreatePeriod(ctx, schedule.Period{Name: "P1", StartTime: "09:00", Duration: 45})
	room, _ := env.schedRepo.CreateClassroom(ctx, schedule.Classroom{Name: "101"})
	body := marshallObj(t, schedule.NewSlot{
		Date:        "2026-09-07",
		PeriodID:    period.ID,
		ClassroomID: room.ID,
		SubjectID:   1,
		LevelID:     1,
		MentorID:    env.mentor.ID,
	})

	mentorToken := env.token(t, env.mentor)

	req, rec := newAuthRequest(http.MethodPost, "/v1/schedule/slots", mentorToken, body)
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var gs schedule.GlobalSchedule
	decodeBody(t, rec, &gs)
	if gs.PlanStatus != schedule.StatusPlanned {
		t.Errorf("plan_status = %q; want %q", gs.PlanStatus, schedule.StatusPlanned)
	}
	if gs.Weekday != "Monday" {
		t.Errorf("weekday = %q; want Monday", gs.Weekday)
	}

	// same (date, period, classroom) again
	req, rec = newAuthRequest(http.MethodPost, "/v1/schedule/slots", mentorToken, body)
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("double booking: code = %v; want %v; body %s", rec.Code, http.StatusConflict, rec.Body.String())
	}

	// students cannot schedule
	req, rec = newAuthRequest(http.MethodPost, "/v1/schedule/slots", env.token(t, env.student), body)
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("student create: code = %v; want %v", rec.Code, http.StatusForbidden)
	}
}

func TestScheduleApi_lifecycle(t *testing.T) {
	env := setup(t)
	gs := env.seedSlot(t, "2026-09-08", 1, 1)
	token := env.token(t, env.mentor)

	transition := func(action string) (*schedule.GlobalSchedule, int, string) {
		req, rec := newAuthRequest(http.MethodPost, fmt.Sprintf("/v1/schedule/slots/%d/%s", gs.ID, action), token)
		env.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			return nil, rec.Code, rec.Body.String()
		}
		var resp schedule.GlobalSchedule
		decodeBody(t, rec, &resp)
		return &resp, rec.Code, rec.Body.String()
	}

	// end before start is rejected
	if _, code, body := transition("end"); code != http.StatusBadRequest {
		t.Errorf("end before start: code = %v; want %v; body %s", code, http.StatusBadRequest, body)
	}

	resp, code, body := transition("start")
	if code != http.StatusOK {
		t.Fatalf("start: code = %v; body %s", code, body)
	}
	if resp.PlanStatus != schedule.StatusInProgress || !resp.StartedAt.Valid {
		t.Errorf("start: status = %q, started_at valid = %v", resp.PlanStatus, resp.StartedAt.Valid)
	}

	// second start is rejected with the current state in the message
	if _, code, body := transition("start"); code != http.StatusBadRequest || !strings.Contains(body, "in_progress") {
		t.Errorf("double start: code = %v; body %s", code, body)
	}

	resp, code, body = transition("end")
	if code != http.StatusOK {
		t.Fatalf("end: code = %v; body %s", code, body)
	}
	if resp.PlanStatus != schedule.StatusCompleted || !resp.CompletedAt.Valid {
		t.Errorf("end: status = %q, completed_at valid = %v", resp.PlanStatus, resp.CompletedAt.Valid)
	}

	resp, code, body = transition("cancel")
	if code != http.StatusOK {
		t.Fatalf("cancel: code = %v; body %s", code, body)
	}
	if resp.PlanStatus != schedule.StatusPlanned || resp.StartedAt.Valid || resp.CompletedAt.Valid {
		t.Errorf("cancel: status = %q, timestamps cleared = %v/%v",
			resp.PlanStatus, !resp.StartedAt.Valid, !resp.CompletedAt.Valid)
	}

	// unknown slot
	req, rec := newAuthRequest(http.MethodPost, "/v1/schedule/slots/9999/start", token)
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown slot: code = %v; want %v", rec.Code, http.StatusNotFound)
	}
}

func TestPlanApi_generateAndAttendance(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	sub, _ := env.currRepo.CreateSubject(ctx, curriculum.Subject{Name: "Mathematics"})
	lvl, _ := env.currRepo.CreateLevel(ctx, curriculum.Level{Name: "Level 1"})
	var items []plan.NewSequenceItem
	for i, title := range []string{"Counting", "Addition"} {
		les, err := env.currRepo.CreateLesson(ctx, curriculum.Lesson{Title: title, SubjectID: sub.ID})
		if err != nil {
			t.Fatalf("creating lesson: %v", err)
		}
		items = append(items, plan.NewSequenceItem{LessonID: les.ID, Position: i + 1})
	}
	seq, err := env.planSvc.CreateSequence(ctx, plan.NewSequence{
		Name:      "Maths intro",
		SubjectID: sub.ID,
		LevelID:   lvl.ID,
		Items:     items,
	}, null.IntFrom(env.mentor.ID))
	if err != nil {
		t.Fatalf("creating sequence: %v", err)
	}

	slot1 := env.seedSlot(t, "2026-09-07", sub.ID, lvl.ID)
	env.seedSlot(t, "2026-09-08", sub.ID, lvl.ID)

	token := env.token(t, env.mentor)
	body := marshallObj(t, plan.GenerateInput{
		StudentID:        env.student.ID,
		SubjectID:        sub.ID,
		LevelID:          lvl.ID,
		LessonSequenceID: seq.ID,
		StartDate:        "2026-09-01",
		EndDate:          "2026-09-30",
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/plans/generate", token, body)
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate: code = %v; body %s", rec.Code, rec.Body.String())
	}
	var report plan.GenerationReport
	decodeBody(t, rec, &report)
	if report.Created != 2 || report.Skipped != 0 {
		t.Errorf("report = created %d, skipped %d; want 2, 0", report.Created, report.Skipped)
	}

	// bad dates
	req, rec = newAuthRequest(http.MethodPost, "/v1/plans/generate", token, marshallObj(t, plan.GenerateInput{
		StudentID: env.student.ID, SubjectID: sub.ID, LevelID: lvl.ID, LessonSequenceID: seq.ID,
		StartDate: "2026-09-30", EndDate: "2026-09-01",
	}))
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("reversed dates: code = %v; want %v", rec.Code, http.StatusBadRequest)
	}

	// unknown sequence
	req, rec = newAuthRequest(http.MethodPost, "/v1/plans/generate", token, marshallObj(t, plan.GenerateInput{
		StudentID: env.student.ID, SubjectID: sub.ID, LevelID: lvl.ID, LessonSequenceID: 999,
		StartDate: "2026-09-01", EndDate: "2026-09-30",
	}))
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown sequence: code = %v; want %v", rec.Code, http.StatusNotFound)
	}

	// mark attendance on the first plan
	p, err := env.planRepo.GetPlanByStudentAndSlot(ctx, env.student.ID, slot1.ID)
	if err != nil {
		t.Fatalf("fetching plan: %v", err)
	}
	req, rec = newAuthRequest(http.MethodPost, fmt.Sprintf("/v1/plans/%d/attendance", p.ID), token,
		[]byte(`{"attendance_status": "absent"}`))
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("attendance: code = %v; body %s", rec.Code, rec.Body.String())
	}

	// aggregate: one absent mark, one unset
	req, rec = newAuthRequest(http.MethodGet,
		fmt.Sprintf("/v1/plans/attendance-stats?student_id=%d&subject_id=%d", env.student.ID, sub.ID), token)
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: code = %v; body %s", rec.Code, rec.Body.String())
	}
	var stats plan.Stats
	decodeBody(t, rec, &stats)
	if stats.Total != 1 || stats.Absent != 1 || stats.Percentage != 0 {
		t.Errorf("stats = %+v; want total 1, absent 1, percentage 0", stats)
	}
}

func TestCurriculumApi_importRequiresCurator(t *testing.T) {
	env := setup(t)
	curator := env.createUser(t, "Cora Curator", "cora", "cora@example.com", "Secret123", user.RoleCurator)

	body := []byte(`{
		"subjects": [{"name": "Physics"}],
		"levels": [{"name": "Level 2"}],
		"lessons": [{"title": "Motion", "subject": "Physics"}]
	}`)

	req, rec := newAuthRequest(http.MethodPost, "/v1/curriculum/import", env.token(t, env.student), body)
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("student import: code = %v; want %v", rec.Code, http.StatusForbidden)
	}

	req, rec = newAuthRequest(http.MethodPost, "/v1/curriculum/import", env.token(t, curator), body)
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("curator import: code = %v; body %s", rec.Code, rec.Body.String())
	}
	var report curriculum.ImportReport
	decodeBody(t, rec, &report)
	if report.SubjectsCreated != 1 || report.LevelsCreated != 1 || report.LessonsCreated != 1 {
		t.Errorf("report = %+v; want 1/1/1", report)
	}
}
