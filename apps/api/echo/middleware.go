package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-materials/core/user"
)

// contextUserMiddleware loads the active User behind the JWT into the context.
func contextUserMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			ctx.Set(userContextKey, usr)
			return next(ctx)
		}
	}
}

// staffMiddleware only lets admins and teachers through.
func staffMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		if !usr.IsStaff() {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

func studentMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		if !usr.IsStudent() {
			return errHttpForbidden
		}
		return next(ctx)
	}
}
