package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/machmate/machmate-web/internal/models"
	"github.com/machmate/machmate-web/internal/session"
)

var (
	anon  = session.Anonymous()
	buyer = session.View{Authenticated: true, Role: models.RoleBuyer}
	maker = session.View{Authenticated: true, Role: models.RoleMaker}
)

func TestDecide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		view     session.View
		wantKind Kind
		wantLoc  string
		wantView string
	}{
		{name: "anon protected", path: "/maker-dashboard", view: anon, wantKind: Redirect, wantLoc: "/login"},
		{name: "anon buyer nested", path: "/projects/12", view: anon, wantKind: Redirect, wantLoc: "/login"},
		{name: "anon profile", path: "/profile", view: anon, wantKind: Redirect, wantLoc: "/login"},
		{name: "buyer on login", path: "/login", view: buyer, wantKind: Redirect, wantLoc: "/dashboard"},
		{name: "maker on signup", path: "/signup", view: maker, wantKind: Redirect, wantLoc: "/maker-dashboard"},
		{name: "maker on forgot password step", path: "/forgot-password/resend-otp", view: maker, wantKind: Redirect, wantLoc: "/maker-dashboard"},
		{name: "buyer on maker page", path: "/maker-dashboard", view: buyer, wantKind: Redirect, wantLoc: "/login"},
		{name: "maker on buyer page", path: "/dashboard", view: maker, wantKind: Redirect, wantLoc: "/login"},
		{name: "anon public", path: "/about", view: anon, wantKind: Render, wantView: "about"},
		{name: "buyer legal", path: "/terms", view: buyer, wantKind: Render, wantView: "terms"},
		{name: "maker legal", path: "/privacy-policy", view: maker, wantKind: Render, wantView: "privacy_policy"},
		{name: "anon login", path: "/login", view: anon, wantKind: Render, wantView: "login"},
		{name: "buyer dashboard", path: "/dashboard", view: buyer, wantKind: Render, wantView: "buyer_dashboard"},
		{name: "buyer new project", path: "/projects/new", view: buyer, wantKind: Render, wantView: "project_form"},
		{name: "maker open project", path: "/open-projects/4", view: maker, wantKind: Render, wantView: "open_project"},
		{name: "trailing slash", path: "/subscription/", view: maker, wantKind: Render, wantView: "subscription"},
		{name: "profile either role", path: "/profile", view: maker, wantKind: Render, wantView: "profile"},
		{name: "unknown path", path: "/nope", view: buyer, wantKind: Render, wantView: NotFoundView},
		{name: "unknown path anon", path: "/wp-admin", view: anon, wantKind: Render, wantView: NotFoundView},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := Decide(tt.path, tt.view)
			assert.Equal(t, tt.wantKind, d.Kind)
			assert.Equal(t, tt.wantLoc, d.Location)
			if tt.wantKind == Render {
				assert.Equal(t, tt.wantView, d.View)
			}
		})
	}
}

func TestDecide_IsPure(t *testing.T) {
	t.Parallel()

	for i := 0; i < 3; i++ {
		assert.Equal(t, Decide("/dashboard", buyer), Decide("/dashboard", buyer))
	}
}

func TestDashboard(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/dashboard", Dashboard(models.RoleBuyer))
	assert.Equal(t, "/maker-dashboard", Dashboard(models.RoleMaker))
	assert.Equal(t, "/login", Dashboard(models.RoleNone))
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	e := echo.New()
	mw := Middleware(func(echo.Context) session.View { return anon })
	e.GET("/dashboard", func(c echo.Context) error { return c.String(http.StatusOK, ViewName(c)) }, mw)
	e.GET("/about", func(c echo.Context) error { return c.String(http.StatusOK, ViewName(c)) }, mw)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/about", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "about", rec.Body.String())
}
