package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-materials/core/extension"
)

var extensionOrderingFields = []string{"created_at", "decided_at", "status"}

type extensionApi struct {
	svc      extension.Service
	validate *validator.Validate
}

func registerExtensionAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := extensionApi{
		svc:      deps.ExtensionSvc,
		validate: deps.Validate,
	}

	g.POST("/materials/:id/extend", api.submit, append(authed, studentMiddleware)...)

	eg := g.Group("/extension-requests", authed...)
	eg.GET("", api.query) // students only see their own requests
	eg.GET("/:id", api.retrieve)
	eg.POST("/:id/approve", api.approve, staffMiddleware)
	eg.POST("/:id/reject", api.reject, staffMiddleware)
}

// Handlers

func (api *extensionApi) submit(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data extension.NewRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	data.MaterialID = ctx.Param("id")
	data.StudentID = usr.ID

	r, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting extension request")
	}
	return ctx.JSON(http.StatusCreated, SubmitResponse{RequestID: r.ID})
}

func (api *extensionApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := new(extension.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []extension.Request{})
	}
	filter.Clean()
	ordering := new(Ordering)
	if err = ordering.Bind(ctx, extensionOrderingFields...); err != nil {
		return err
	}

	requests, err := api.svc.Query(ctx.Request().Context(), *filter, ordering.Orderings, usr)
	if err != nil {
		return errors.Wrap(err, "querying extension requests")
	}
	if requests == nil {
		requests = []extension.Request{}
	}
	return ctx.JSON(http.StatusOK, requests)
}

func (api *extensionApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	r, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "retrieving extension request")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *extensionApi) approve(ctx echo.Context) error {
	return api.decide(ctx, true)
}

func (api *extensionApi) reject(ctx echo.Context) error {
	return api.decide(ctx, false)
}

func (api *extensionApi) decide(ctx echo.Context, approve bool) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	r, err := api.svc.Decide(ctx.Request().Context(), extension.Decision{RequestID: ctx.Param("id"), Approve: approve}, usr)
	if err != nil {
		return errors.Wrap(err, "deciding extension request")
	}
	return ctx.JSON(http.StatusOK, r)
}

type SubmitResponse struct {
	RequestID string `json:"request_id"`
}
