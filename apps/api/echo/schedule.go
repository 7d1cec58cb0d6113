package echoapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/schedule"
)

type scheduleApi struct {
	svc *schedule.Service
}

func registerScheduleAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *schedule.Service) {
	api := scheduleApi{svc: svc}

	sg := g.Group("/schedule", jwt)

	sg.POST("/slots", api.createSlot)
	sg.GET("/slots", api.querySlots)
	sg.GET("/slots/daily", api.daily)
	sg.GET("/slots/weekly", api.weekly)
	sg.GET("/slots/:id", api.retrieveSlot)
	sg.PUT("/slots/:id", api.updateSlot)
	sg.POST("/slots/:id/start", api.startSlot)
	sg.POST("/slots/:id/end", api.endSlot)
	sg.POST("/slots/:id/cancel", api.cancelSlot)

	sg.GET("/periods", api.queryPeriods)
	sg.POST("/periods", api.createPeriod)
	sg.GET("/classrooms", api.queryClassrooms)
	sg.POST("/classrooms", api.createClassroom)
}

// Handlers

func (api *scheduleApi) createSlot(ctx echo.Context) error {
	actor, err := getContextRoleSet(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data schedule.NewSlot
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSlot")
	}

	gs, err := api.svc.CreateSlot(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, gs)
}

func (api *scheduleApi) querySlots(ctx echo.Context) error {
	var query slotFilterRequest
	if err := ctx.Bind(&query); err != nil {
		return ctx.JSON(http.StatusOK, []schedule.GlobalSchedule{})
	}
	filter, err := query.filter()
	if err != nil {
		return err
	}

	slots, err := api.svc.QuerySlots(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying slots")
	}
	return ctx.JSON(http.StatusOK, slots)
}

func (api *scheduleApi) daily(ctx echo.Context) error {
	date, err := dateQuery(ctx, "date")
	if err != nil {
		return err
	}
	slots, err := api.svc.Daily(ctx.Request().Context(), date)
	if err != nil {
		return errors.Wrap(err, "querying daily slots")
	}
	return ctx.JSON(http.StatusOK, slots)
}

func (api *scheduleApi) weekly(ctx echo.Context) error {
	weekStart, err := dateQuery(ctx, "week_start")
	if err != nil {
		return err
	}
	slots, err := api.svc.Weekly(ctx.Request().Context(), weekStart)
	if err != nil {
		return errors.Wrap(err, "querying weekly slots")
	}
	return ctx.JSON(http.StatusOK, slots)
}

func (api *scheduleApi) retrieveSlot(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	gs, err := api.svc.GetSlot(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, gs)
}

func (api *scheduleApi) updateSlot(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	actor, err := getContextRoleSet(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data schedule.UpdateSlot
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSlot")
	}

	gs, err := api.svc.UpdateSlot(ctx.Request().Context(), actor, id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, gs)
}

func (api *scheduleApi) startSlot(ctx echo.Context) error {
	return api.transition(ctx, api.svc.Start)
}

func (api *scheduleApi) endSlot(ctx echo.Context) error {
	return api.transition(ctx, api.svc.End)
}

func (api *scheduleApi) cancelSlot(ctx echo.Context) error {
	return api.transition(ctx, api.svc.Cancel)
}

func (api *scheduleApi) transition(
	ctx echo.Context,
	op func(c context.Context, id int) (schedule.GlobalSchedule, error),
) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	gs, err := op(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, TransitionResponse{
		ID:          gs.ID,
		PlanStatus:  gs.PlanStatus,
		StartedAt:   gs.StartedAt.Ptr(),
		CompletedAt: gs.CompletedAt.Ptr(),
	})
}

func (api *scheduleApi) queryPeriods(ctx echo.Context) error {
	periods, err := api.svc.QueryPeriods(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying periods")
	}
	return ctx.JSON(http.StatusOK, periods)
}

func (api *scheduleApi) createPeriod(ctx echo.Context) error {
	var data schedule.NewPeriod
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPeriod")
	}
	p, err := api.svc.CreatePeriod(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *scheduleApi) queryClassrooms(ctx echo.Context) error {
	rooms, err := api.svc.QueryClassrooms(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying classrooms")
	}
	return ctx.JSON(http.StatusOK, rooms)
}

func (api *scheduleApi) createClassroom(ctx echo.Context) error {
	var data schedule.NewClassroom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClassroom")
	}
	c, err := api.svc.CreateClassroom(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, c)
}

// Bindings

type (
	slotFilterRequest struct {
		SubjectID   int    `query:"subject_id"`
		LevelID     int    `query:"level_id"`
		MentorID    int    `query:"mentor_id"`
		ClassroomID int    `query:"classroom_id"`
		DateFrom    string `query:"date_from"`
		DateTo      string `query:"date_to"`
		Status      string `query:"status"`
	}

	TransitionResponse struct {
		ID          int                 `json:"id"`
		PlanStatus  schedule.PlanStatus `json:"plan_status"`
		StartedAt   *time.Time          `json:"started_at,omitempty"`
		CompletedAt *time.Time          `json:"completed_at,omitempty"`
	}
)

func (req slotFilterRequest) filter() (schedule.QueryFilter, error) {
	filter := schedule.QueryFilter{
		SubjectID:   req.SubjectID,
		LevelID:     req.LevelID,
		MentorID:    req.MentorID,
		ClassroomID: req.ClassroomID,
	}
	var err error
	if req.DateFrom != "" {
		if filter.DateFrom, err = time.Parse(core.DateFormat, req.DateFrom); err != nil {
			return filter, badDateError("date_from")
		}
	}
	if req.DateTo != "" {
		if filter.DateTo, err = time.Parse(core.DateFormat, req.DateTo); err != nil {
			return filter, badDateError("date_to")
		}
	}
	if req.Status != "" {
		status := schedule.PlanStatus(req.Status)
		if !schedule.ValidStatus(status) {
			return filter, core.NewValidationError(nil, core.FieldError{
				Field: "status", Error: "unknown plan status " + req.Status})
		}
		filter.Statuses = []schedule.PlanStatus{status}
	}
	return filter, nil
}

// Helpers shared by the v1 handlers.

func intParam(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil {
		return 0, echo.ErrNotFound
	}
	return id, nil
}

func intQuery(ctx echo.Context, name string) int {
	v, _ := strconv.Atoi(ctx.QueryParam(name))
	return v
}

func dateQuery(ctx echo.Context, name string) (time.Time, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{
			Field: name, Error: "this field is required"})
	}
	date, err := time.Parse(core.DateFormat, raw)
	if err != nil {
		return time.Time{}, badDateError(name)
	}
	return date, nil
}

func badDateError(field string) error {
	return core.NewValidationError(nil, core.FieldError{
		Field: field, Error: "must be a date in YYYY-MM-DD format"})
}
