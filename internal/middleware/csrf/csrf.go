package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/machmate/machmate-web/internal/logging"
)

const (
	tokenKey  = "csrf.token"
	rotateKey = "csrf.rotate"
	tokenLen  = 32
)

// RejectMessage is the text the browser shows when a mutation is refused.
const RejectMessage = "Your page expired. Reload it and try again."

// Config drives the double-submit check between the browser and the web server.
// It is independent of the backend's own csrftoken, which never reaches the browser.
type Config struct {
	CookieName string
	HeaderName string
	FormField  string
	Secure     bool
	MaxAge     time.Duration

	// SkipPrefixes are paths that take no browser mutations (health probes).
	SkipPrefixes []string
}

func DefaultConfig() Config {
	return Config{
		CookieName:   "XSRF-TOKEN",
		HeaderName:   "X-CSRF-Token",
		FormField:    "csrf_token",
		MaxAge:       24 * time.Hour,
		SkipPrefixes: []string{"/health/"},
	}
}

// Token is the token for the current request, empty outside the middleware.
func Token(c echo.Context) string {
	tok, _ := c.Get(tokenKey).(string)
	return tok
}

// Rotate replaces the token after a privilege change such as sign-in, so a
// token planted before login is useless afterwards.
func Rotate(c echo.Context) string {
	fn, ok := c.Get(rotateKey).(func() string)
	if !ok {
		return ""
	}
	return fn()
}

func Middleware(cfg Config) echo.MiddlewareFunc {
	def := DefaultConfig()
	if cfg.CookieName == "" {
		cfg.CookieName = def.CookieName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = def.HeaderName
	}
	if cfg.FormField == "" {
		cfg.FormField = def.FormField
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = def.MaxAge
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if hasAnyPrefix(req.URL.Path, cfg.SkipPrefixes) {
				return next(c)
			}

			issue := func() string {
				tok := newToken()
				c.SetCookie(cfg.cookie(tok))
				c.Response().Header().Set(cfg.HeaderName, tok)
				c.Set(tokenKey, tok)
				return tok
			}
			c.Set(rotateKey, issue)

			token := readCookie(req, cfg.CookieName)
			if safeMethod(req.Method) {
				if token == "" {
					issue()
				} else {
					c.Response().Header().Set(cfg.HeaderName, token)
					c.Set(tokenKey, token)
				}
				return next(c)
			}

			if reason := cfg.verify(c, token); reason != "" {
				logging.FromContext(req.Context()).Warn("csrf_rejected", "reason", reason, "path", req.URL.Path)
				return echo.NewHTTPError(http.StatusForbidden, RejectMessage)
			}
			c.Set(tokenKey, token)
			return next(c)
		}
	}
}

// verify returns why a mutation is refused, or "" when it may proceed.
func (cfg Config) verify(c echo.Context, token string) string {
	req := c.Request()
	if !sameOrigin(req) {
		return "origin"
	}
	if token == "" {
		return "no_cookie"
	}
	provided := req.Header.Get(cfg.HeaderName)
	if provided == "" {
		provided = c.FormValue(cfg.FormField)
	}
	if !secureCompare(token, provided) {
		return "mismatch"
	}
	return ""
}

// cookie is readable by scripts so fetch-based forms can echo it back in the header.
func (cfg Config) cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     "/",
		Secure:   cfg.Secure,
		HttpOnly: false,
		MaxAge:   int(cfg.MaxAge.Seconds()),
		SameSite: http.SameSiteLaxMode,
	}
}

func safeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func newToken() string {
	b := make([]byte, tokenLen)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func readCookie(req *http.Request, name string) string {
	c, err := req.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func secureCompare(a, b string) bool {
	if a == "" || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func hasAnyPrefix(p string, prefixes []string) bool {
	for _, pre := range prefixes {
		if strings.HasPrefix(p, pre) {
			return true
		}
	}
	return false
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
		if origin == "" {
			return false
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, schemeOf(r)) && strings.EqualFold(u.Host, r.Host)
}

func schemeOf(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		return xf
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
