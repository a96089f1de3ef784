package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/machmate/machmate-web/internal/logging"
	"github.com/machmate/machmate-web/internal/routes"
)

// Static renders views that need no backend data: home, marketing and legal pages.
func (h *Handler) Static(c echo.Context) error {
	return h.render(c, http.StatusOK, h.page(c, ""))
}

func (h *Handler) Profile(c echo.Context) error {
	ctx := c.Request().Context()
	p := h.page(c, "profile")

	user, err := h.API.Me(ctx, creds(c))
	if err != nil {
		return h.fail(c, err, p, 0)
	}
	logging.FromContext(ctx).Debug("profile_loaded", "role", user.Role)
	p.Data = user
	return h.render(c, http.StatusOK, p)
}

func (h *Handler) NotFound(c echo.Context) error {
	return h.render(c, http.StatusNotFound, h.page(c, routes.NotFoundView))
}
