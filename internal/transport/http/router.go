package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/machmate/machmate-web/internal/authgate"
	"github.com/machmate/machmate-web/internal/handlers"
	"github.com/machmate/machmate-web/internal/middleware/csrf"
	loggingmw "github.com/machmate/machmate-web/internal/middleware/logging"
	"github.com/machmate/machmate-web/internal/routes"
	"github.com/machmate/machmate-web/internal/session"
)

type Deps struct {
	Handler *handlers.Handler
	Gate    *authgate.Gate
	Logger  *slog.Logger
	CSRF    csrf.Config

	// Assets proxies the static shell; nil leaves asset paths unrouted.
	Assets echo.HandlerFunc
	Ready  func(ctx context.Context) error
}

var assetPaths = []string{"/static/*", "/assets/*", "/favicon.ico", "/manifest.json", "/robots.txt"}

// ServesAsset reports whether p is routed to the asset proxy.
func ServesAsset(p string) bool {
	for _, ap := range assetPaths {
		if prefix, ok := strings.CutSuffix(ap, "*"); ok {
			if strings.HasPrefix(p, prefix) && len(p) > len(prefix) {
				return true
			}
		} else if p == ap {
			return true
		}
	}
	return false
}

func Register(e *echo.Echo, d *Deps) {
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(
		middleware.Recover(),
		middleware.RequestID(),
		loggingmw.RequestLogger(d.Logger),
		middleware.Secure(),
	)

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
			}
		}
		return c.NoContent(http.StatusOK)
	})

	if d.Assets != nil {
		for _, p := range assetPaths {
			e.GET(p, d.Assets)
			e.HEAD(p, d.Assets)
		}
	}

	h := d.Handler
	viewOf := func(c echo.Context) session.View { return authgate.FromContext(c).View() }
	pages := e.Group("", csrf.Middleware(d.CSRF), d.Gate.Middleware(), routes.Middleware(viewOf))

	for _, p := range []string{"/", "/about", "/contact", "/pricing",
		"/privacy-policy", "/terms", "/refund-policy", "/shipping-policy", "/logout"} {
		pages.GET(p, h.Static)
	}

	pages.GET("/login", h.LoginPage)
	pages.POST("/login", h.Login)
	pages.POST("/logout", h.Logout)
	pages.GET("/signup", h.SignupPage)
	pages.POST("/signup", h.Signup)
	pages.POST("/signup/resend-otp", h.SignupResend)
	pages.GET("/forgot-password", h.ForgotPasswordPage)
	pages.POST("/forgot-password", h.ForgotPassword)
	pages.POST("/forgot-password/resend-otp", h.ForgotPasswordResend)
	pages.GET("/profile", h.Profile)

	pages.GET("/dashboard", h.BuyerDashboard)
	pages.GET("/orders", h.Orders)
	pages.GET("/projects", h.Projects)
	pages.GET("/projects/new", h.NewProject)
	pages.POST("/projects", h.CreateProject)
	pages.GET("/projects/:id", h.ProjectDetail)
	pages.POST("/projects/:id", h.UpdateProject)
	pages.POST("/projects/:id/delete", h.DeleteProject)
	pages.POST("/projects/:id/quotations/:qid/accept", h.AcceptQuotation)

	pages.GET("/maker-dashboard", h.MakerDashboard)
	pages.GET("/open-projects/:id", h.OpenProject)
	pages.POST("/open-projects/:id/quotations", h.SubmitQuotation)
	pages.GET("/maker/quotations", h.MyQuotations)
	pages.POST("/maker/quotations/:id/delete", h.DeleteQuotation)
	pages.GET("/company-profile", h.CompanyProfilePage)
	pages.POST("/company-profile", h.SaveCompanyProfile)

	pages.GET("/subscription", h.Subscription)
	pages.POST("/subscription/checkout", h.Checkout)
	pages.POST("/subscription/verify", h.VerifyPayment)
	pages.POST("/subscription/cancel", h.CancelSubscription)

	pages.RouteNotFound("/*", h.NotFound)
}
