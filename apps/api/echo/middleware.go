package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/curricula/core"
)

// actorMiddleware makes the token subject available to the services as the request actor.
func actorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		req := ctx.Request()
		ctx.SetRequest(req.WithContext(core.ContextWithActor(req.Context(), claimsActor(claims))))
		return next(ctx)
	}
}

func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// editorMiddleware guards every write endpoint.
var editorMiddleware = roleMiddleware(RoleAdmin, RoleTeacher)
