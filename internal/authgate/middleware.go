package authgate

import (
	"context"
	"maps"

	"github.com/labstack/echo/v4"

	"github.com/machmate/machmate-web/internal/logging"
	"github.com/machmate/machmate-web/internal/session"
)

const stateKey = "authgate.state"

// Middleware resolves the session before any downstream handler runs.
func (g *Gate) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			hint, hasHint := g.hints.FromRequest(req)
			res := g.Resolve(req.Context(), session.ReadID(req), hint, hasHint)

			switch {
			case res.ClearCookies:
				g.clearCookies(c)
			case res.ClearHint:
				c.SetCookie(g.hints.Clear())
			case res.RefreshHint:
				g.setHint(c, res.Session)
			}

			c.Set(stateKey, res.State)
			if res.Session == nil {
				return next(c)
			}

			before := maps.Clone(res.Session.Upstream.Cookies)
			err := next(c)
			if st := FromContext(c); st.Session == res.Session && !maps.Equal(before, st.Session.Upstream.Cookies) {
				g.persist(req.Context(), st.Session)
			}
			return err
		}
	}
}

func FromContext(c echo.Context) State {
	if st, ok := c.Get(stateKey).(State); ok {
		return st
	}
	return State{Status: Anonymous}
}

// Establish hands a freshly logged-in session to the browser.
func (g *Gate) Establish(c echo.Context, sess *session.Session) {
	c.SetCookie(session.IDCookieFor(sess, g.secure, g.now()))
	g.setHint(c, sess)
	c.Set(stateKey, State{Status: Authenticated, Session: sess})
}

// SignOut logs out upstream and clears the browser's cookies.
func (g *Gate) SignOut(c echo.Context) error {
	err := g.Logout(c.Request().Context(), session.ReadID(c.Request()))
	g.clearCookies(c)
	c.Set(stateKey, State{Status: Anonymous})
	return err
}

// ForceLogout follows a 401 from the backend: the upstream session is already
// gone, so only local state is dropped.
func (g *Gate) ForceLogout(c echo.Context) {
	ctx := c.Request().Context()
	if st := FromContext(c); st.Session != nil {
		g.discard(ctx, st.Session.ID)
	} else if sid := session.ReadID(c.Request()); sid != "" {
		g.discard(ctx, sid)
	}
	logging.FromContext(ctx).Info("forced_logout")
	g.clearCookies(c)
	c.Set(stateKey, State{Status: Anonymous})
}

func (g *Gate) setHint(c echo.Context, sess *session.Session) {
	ck, err := g.hints.Cookie(session.Hint{Role: sess.Role, RememberMe: sess.RememberMe})
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("hint_encode_failed", "error", err)
		return
	}
	c.SetCookie(ck)
}

func (g *Gate) clearCookies(c echo.Context) {
	c.SetCookie(session.DeleteCookie(session.IDCookie, "/", g.secure))
	c.SetCookie(g.hints.Clear())
}

// persist keeps backend cookies rotated during the request.
func (g *Gate) persist(ctx context.Context, sess *session.Session) {
	if err := g.store.Save(context.WithoutCancel(ctx), sess); err != nil {
		logging.FromContext(ctx).Error("session_save_failed", "error", err)
	}
}
