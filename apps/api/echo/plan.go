package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/plan"
)

type planApi struct {
	svc *plan.Service
}

func registerPlanAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *plan.Service) {
	api := planApi{svc: svc}

	pg := g.Group("/plans", jwt)

	pg.POST("", api.getOrCreate)
	pg.POST("/generate", api.generate)
	pg.GET("/attendance-stats", api.stats)
	pg.GET("/attendance-stats/bulk", api.bulkStats)
	pg.GET("/student-schedule", api.studentSchedule)
	pg.GET("/:id", api.retrieve)
	pg.POST("/:id/attendance", api.setAttendance)
	pg.POST("/:id/lesson", api.assignLesson)

	pg.GET("/sequences", api.querySequences)
	pg.POST("/sequences", api.createSequence)
	pg.GET("/sequences/:id", api.retrieveSequence)
	pg.PUT("/sequences/:id", api.updateSequence)
	pg.POST("/sequences/:id/duplicate", api.duplicateSequence)
}

// Handlers

func (api *planApi) getOrCreate(ctx echo.Context) error {
	var data GetOrCreatePlanRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GetOrCreatePlanRequest")
	}
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	p, err := api.svc.GetOrCreate(ctx.Request().Context(), data.StudentID, data.GlobalScheduleID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *planApi) retrieve(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	p, err := api.svc.GetPlan(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *planApi) setAttendance(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	var data AttendanceRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AttendanceRequest")
	}

	p, err := api.svc.SetAttendance(ctx.Request().Context(), id, data.AttendanceStatus)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *planApi) assignLesson(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	var data AssignLessonRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignLessonRequest")
	}

	p, err := api.svc.AssignLesson(ctx.Request().Context(), id, data.LessonID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *planApi) generate(ctx echo.Context) error {
	var data plan.GenerateInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateInput")
	}

	report, err := api.svc.Generate(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *planApi) stats(ctx echo.Context) error {
	studentID := intQuery(ctx, "student_id")
	subjectID := intQuery(ctx, "subject_id")
	if studentID == 0 || subjectID == 0 {
		return core.NewValidationError(nil, core.FieldError{
			Field: "student_id", Error: "student_id and subject_id are required"})
	}

	stats, err := api.svc.Stats(ctx.Request().Context(), studentID, subjectID)
	if err != nil {
		return errors.Wrap(err, "aggregating attendance")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *planApi) bulkStats(ctx echo.Context) error {
	stats, err := api.svc.BulkStats(ctx.Request().Context(), plan.BulkStatsFilter{
		SubjectID:        intQuery(ctx, "subject_id"),
		GlobalScheduleID: intQuery(ctx, "global_schedule_id"),
		LessonID:         intQuery(ctx, "lesson_id"),
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *planApi) studentSchedule(ctx echo.Context) error {
	studentID := intQuery(ctx, "student_id")
	if studentID == 0 {
		return core.NewValidationError(nil, core.FieldError{
			Field: "student_id", Error: "this field is required"})
	}

	// one day by default, seven with week_start
	from, err := dateQuery(ctx, "date")
	to := from
	if err != nil {
		if from, err = dateQuery(ctx, "week_start"); err != nil {
			return core.NewValidationError(nil, core.FieldError{
				Field: "date", Error: "either date or week_start is required"})
		}
		to = from.AddDate(0, 0, 6)
	}

	entries, err := api.svc.StudentSchedule(ctx.Request().Context(), studentID, from, to)
	if err != nil {
		return errors.Wrap(err, "querying student schedule")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *planApi) querySequences(ctx echo.Context) error {
	seqs, err := api.svc.QuerySequences(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying sequences")
	}
	return ctx.JSON(http.StatusOK, seqs)
}

func (api *planApi) createSequence(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	var data plan.NewSequence
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSequence")
	}

	seq, err := api.svc.CreateSequence(ctx.Request().Context(), data, null.IntFrom(claims.UserID()))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, seq)
}

func (api *planApi) retrieveSequence(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	seq, err := api.svc.GetSequence(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, seq)
}

func (api *planApi) updateSequence(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	var data plan.NewSequence
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSequence")
	}

	seq, err := api.svc.UpdateSequence(ctx.Request().Context(), id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, seq)
}

func (api *planApi) duplicateSequence(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	dup, err := api.svc.DuplicateSequence(ctx.Request().Context(), id, null.IntFrom(claims.UserID()))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, dup)
}

// Bindings

type (
	GetOrCreatePlanRequest struct {
		StudentID        int `json:"student_id" validate:"required"`
		GlobalScheduleID int `json:"global_schedule_id" validate:"required"`
	}

	AttendanceRequest struct {
		AttendanceStatus null.String `json:"attendance_status"`
	}

	AssignLessonRequest struct {
		LessonID null.Int `json:"lesson_id"`
	}
)
