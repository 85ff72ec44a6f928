package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/curricula/core/curriculum"
)

type curriculumApi struct {
	catalog *curriculum.Catalog
}

func registerCurriculumAPI(g *echo.Group, catalog *curriculum.Catalog) {
	api := curriculumApi{catalog: catalog}

	cg := g.Group("/curriculum")
	cg.GET("", api.query)
	cg.POST("", api.create, editorMiddleware)

	// detail endpoints
	dg := cg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.GET("/full", api.retrieveFull)
	dg.PUT("", api.update, editorMiddleware)
	dg.DELETE("", api.destroy, roleMiddleware(RoleAdmin))
}

// Handlers

func (api *curriculumApi) query(ctx echo.Context) error {
	var ord Ordering
	ord.Bind(ctx)
	curricula, err := api.catalog.QueryCurricula(ctx.Request().Context(), ord.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying curricula")
	}
	if curricula == nil {
		curricula = []curriculum.Curriculum{}
	}
	return ctx.JSON(http.StatusOK, curricula)
}

func (api *curriculumApi) create(ctx echo.Context) error {
	var data curriculum.NewCurriculum
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCurriculum")
	}
	cur, err := api.catalog.CreateCurriculum(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating curriculum")
	}
	return ctx.JSON(http.StatusCreated, cur)
}

func (api *curriculumApi) retrieve(ctx echo.Context) error {
	cur, err := api.catalog.GetCurriculum(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting curriculum")
	}
	return ctx.JSON(http.StatusOK, cur)
}

func (api *curriculumApi) retrieveFull(ctx echo.Context) error {
	h, err := api.catalog.GetHierarchy(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting hierarchy")
	}
	return ctx.JSON(http.StatusOK, h)
}

func (api *curriculumApi) update(ctx echo.Context) error {
	var data curriculum.UpdateCurriculum
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCurriculum")
	}
	cur, err := api.catalog.UpdateCurriculum(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating curriculum")
	}
	return ctx.JSON(http.StatusOK, cur)
}

func (api *curriculumApi) destroy(ctx echo.Context) error {
	if err := api.catalog.DeleteCurriculum(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting curriculum")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// levelApi serves the flat CRUD endpoints of one hierarchy level.
type levelApi struct {
	catalog *curriculum.Catalog
	level   curriculum.Level
}

func registerLevelAPI(g *echo.Group, catalog *curriculum.Catalog, level curriculum.Level) {
	api := levelApi{catalog: catalog, level: level}

	lg := g.Group("/" + level.Resource())
	lg.GET("", api.query)
	lg.POST("", api.create, editorMiddleware)

	dg := lg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, editorMiddleware)
	dg.DELETE("", api.destroy, editorMiddleware)
}

// query lists the records of the level, filtered by `id` or by the parent key (e.g. `?unit_id=a,b`).
func (api *levelApi) query(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	var (
		entities []curriculum.Entity
		err      error
	)
	if ids := listParam(ctx, "id"); len(ids) > 0 {
		entities, err = api.catalog.GetEntities(reqCtx, api.level, ids...)
	} else {
		entities, err = api.catalog.QueryEntities(reqCtx, api.level, listParam(ctx, api.level.ParentKey())...)
	}
	if err != nil {
		return errors.Wrapf(err, "querying %s", api.level.Resource())
	}
	if entities == nil {
		entities = []curriculum.Entity{}
	}
	return ctx.JSON(http.StatusOK, entities)
}

func (api *levelApi) create(ctx echo.Context) error {
	data, err := bindEntity(ctx, api.level)
	if err != nil {
		return err
	}
	e, err := api.catalog.CreateEntity(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrapf(err, "creating %s", api.level)
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *levelApi) retrieve(ctx echo.Context) error {
	e, err := api.catalog.GetEntity(ctx.Request().Context(), api.level, ctx.Param("id"))
	if err != nil {
		return errors.Wrapf(err, "getting %s", api.level)
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *levelApi) update(ctx echo.Context) error {
	data, err := bindEntity(ctx, api.level)
	if err != nil {
		return err
	}
	data.ID = ctx.Param("id")
	e, err := api.catalog.UpdateEntity(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrapf(err, "updating %s", api.level)
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *levelApi) destroy(ctx echo.Context) error {
	if err := api.catalog.DeleteEntity(ctx.Request().Context(), api.level, ctx.Param("id")); err != nil {
		return errors.Wrapf(err, "deleting %s", api.level)
	}
	return ctx.NoContent(http.StatusNoContent)
}
