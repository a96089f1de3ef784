package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/machmate/machmate-web/internal/session"
)

const decisionKey = "routes.decision"

// Middleware applies Decide to every request. Redirects are 303 so that a
// blocked form POST lands on a GET.
func Middleware(viewOf func(echo.Context) session.View) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d := Decide(c.Request().URL.Path, viewOf(c))
			if d.Kind == Redirect {
				return c.Redirect(http.StatusSeeOther, d.Location)
			}
			c.Set(decisionKey, d)
			return next(c)
		}
	}
}

// ViewName is the view chosen by the router for the current request.
func ViewName(c echo.Context) string {
	if d, ok := c.Get(decisionKey).(Decision); ok {
		return d.View
	}
	return NotFoundView
}
