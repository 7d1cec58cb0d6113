package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/mokykla/backend/core/curriculum"
	"github.com/mokykla/backend/core/user"
)

type curriculumApi struct {
	svc      *curriculum.Service
	importer *curriculum.Importer
}

func registerCurriculumAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *curriculum.Service, imp *curriculum.Importer) {
	api := curriculumApi{svc: svc, importer: imp}

	cg := g.Group("/curriculum", jwt)

	cg.GET("/subjects", api.querySubjects)
	cg.POST("/subjects", api.createSubject)
	cg.GET("/levels", api.queryLevels)
	cg.POST("/levels", api.createLevel)
	cg.GET("/lessons", api.queryLessons)
	cg.POST("/lessons", api.createLesson)
	cg.GET("/lessons/:id", api.retrieveLesson)
	cg.DELETE("/lessons/:id", api.destroyLesson)
	cg.POST("/lessons/:id/restore", api.restoreLesson)
	cg.POST("/import", api.importSpec, roleMiddleware(user.RoleCurator, user.RoleManager))
}

// Handlers

func (api *curriculumApi) querySubjects(ctx echo.Context) error {
	subs, err := api.svc.QuerySubjects(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *curriculumApi) createSubject(ctx echo.Context) error {
	var data curriculum.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	sub, err := api.svc.CreateSubject(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *curriculumApi) queryLevels(ctx echo.Context) error {
	lvls, err := api.svc.QueryLevels(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying levels")
	}
	return ctx.JSON(http.StatusOK, lvls)
}

func (api *curriculumApi) createLevel(ctx echo.Context) error {
	var data curriculum.NewLevel
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLevel")
	}
	lvl, err := api.svc.CreateLevel(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, lvl)
}

func (api *curriculumApi) queryLessons(ctx echo.Context) error {
	filter := curriculum.LessonFilter{
		SubjectID:      intQuery(ctx, "subject_id"),
		IncludeDeleted: ctx.QueryParam("include_deleted") == "true",
	}
	lessons, err := api.svc.QueryLessons(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *curriculumApi) createLesson(ctx echo.Context) error {
	var data curriculum.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	les, err := api.svc.CreateLesson(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, les)
}

func (api *curriculumApi) retrieveLesson(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	les, err := api.svc.GetLesson(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, les)
}

func (api *curriculumApi) destroyLesson(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	if _, err = api.svc.SoftDeleteLesson(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *curriculumApi) restoreLesson(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	les, err := api.svc.RestoreLesson(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, les)
}

func (api *curriculumApi) importSpec(ctx echo.Context) error {
	var data curriculum.ImportSpec
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ImportSpec")
	}
	report, err := api.importer.Import(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, report)
}
