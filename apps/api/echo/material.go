package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-materials/core/class"
	"github.com/trezcool/masomo-materials/core/material"
)

var materialOrderingFields = []string{"uploaded_at", "title", "type"}

type materialApi struct {
	svc      material.Service
	classSvc class.Service
	validate *validator.Validate
}

func registerMaterialAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := materialApi{
		svc:      deps.MaterialSvc,
		classSvc: deps.ClassSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/classes/:classId/materials", authed...)
	cg.GET("", api.query)
	cg.POST("", api.create, staffMiddleware)

	mg := g.Group("/materials/:id", authed...)
	mg.GET("", api.retrieve)
	mg.POST("/start", api.start, studentMiddleware)
}

// Handlers

func (api *materialApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := new(material.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []material.Material{})
	}
	filter.ClassID = ctx.Param("classId")
	filter.Clean()
	ordering := new(Ordering)
	if err = ordering.Bind(ctx, materialOrderingFields...); err != nil {
		return err
	}

	materials, err := api.svc.ListByClass(ctx.Request().Context(), *filter, ordering.Orderings, usr)
	if err != nil {
		return errors.Wrap(err, "querying materials")
	}
	if materials == nil {
		materials = []material.Material{}
	}
	return ctx.JSON(http.StatusOK, materials)
}

func (api *materialApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	cls, err := api.classSvc.GetByID(reqCtx, ctx.Param("classId"))
	if err != nil {
		return errors.Wrap(err, "finding class")
	}
	if ok, err := api.classSvc.CanAccess(reqCtx, cls, usr); err != nil {
		return errors.Wrap(err, "checking class access")
	} else if !ok {
		return errHttpForbidden
	}

	var data material.NewMaterial
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMaterial")
	}
	data.ClassID = cls.ID
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.Create(reqCtx, data)
	if err != nil {
		return errors.Wrap(err, "creating material")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *materialApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	m, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "retrieving material")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *materialApi) start(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	res, err := api.svc.StartWindow(ctx.Request().Context(), ctx.Param("id"), usr.ID)
	if err != nil {
		return errors.Wrap(err, "starting access window")
	}
	return ctx.JSON(http.StatusOK, res)
}
