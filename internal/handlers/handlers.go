package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/machmate/machmate-web/internal/authgate"
	"github.com/machmate/machmate-web/internal/events"
	"github.com/machmate/machmate-web/internal/form"
	"github.com/machmate/machmate-web/internal/logging"
	"github.com/machmate/machmate-web/internal/middleware/csrf"
	"github.com/machmate/machmate-web/internal/payment"
	"github.com/machmate/machmate-web/internal/routes"
	"github.com/machmate/machmate-web/internal/session"
	"github.com/machmate/machmate-web/pkg/apiclient"
)

const (
	guestCookie = "mm_fid"
	busyBanner  = "Your previous request is still being processed."
)

var errNoCredits = userError("You have no quotation credits left. Upgrade your subscription to continue.")

// userError is a local failure whose text is safe to show as a banner.
type userError string

func (e userError) Error() string       { return string(e) }
func (e userError) UserMessage() string { return string(e) }

type Handler struct {
	API      *apiclient.Client
	Gate     *authgate.Gate
	Forms    *form.Store
	Guard    form.Runner
	Cooldown *form.Cooldown
	Events   events.Publisher
	Payment  payment.Config
	Secure   bool
	Now      func() time.Time
}

// Page is the JSON view model rendered by the browser shell.
type Page struct {
	View    string       `json:"view"`
	Session session.View `json:"session"`
	Data    any          `json:"data,omitempty"`
	Form    *form.State  `json:"form,omitempty"`
	Banner  string       `json:"banner,omitempty"`
	CSRF    string       `json:"csrf_token,omitempty"`
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) page(c echo.Context, view string) Page {
	if view == "" {
		view = routes.ViewName(c)
	}
	return Page{View: view, Session: authgate.FromContext(c).View()}
}

func (h *Handler) render(c echo.Context, status int, p Page) error {
	p.Session = authgate.FromContext(c).View()
	p.CSRF = csrf.Token(c)
	return c.JSON(status, p)
}

// current returns the authenticated session. Routing guarantees it on
// protected paths, so a nil here is a wiring bug.
func current(c echo.Context) *session.Session {
	return authgate.FromContext(c).Session
}

func creds(c echo.Context) *apiclient.Credentials {
	if s := current(c); s != nil {
		return &s.Upstream
	}
	return &apiclient.Credentials{}
}

// fail applies the fetch failure policy: a 401 ends the session and sends
// the browser to /login; anything else becomes a banner on the current view.
func (h *Handler) fail(c echo.Context, err error, p Page, status int) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx)

	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		l.Info("session_expired", "view", p.View)
		h.Gate.ForceLogout(c)
		return c.Redirect(http.StatusSeeOther, routes.LoginPath)
	case errors.Is(err, context.Canceled):
		l.Info("request_cancelled", "view", p.View)
		return nil
	}

	if status == 0 {
		status = statusFor(err)
	}
	l.Warn("upstream_failed", "view", p.View, "status", status, "error", err)
	if p.Banner == "" {
		p.Banner = form.BannerFor(err)
	}
	return h.render(c, status, p)
}

func statusFor(err error) int {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusNotFound:
			return http.StatusNotFound
		case apiErr.Status >= 400 && apiErr.Status < 500:
			return http.StatusUnprocessableEntity
		}
	}
	if errors.Is(err, errNoCredits) {
		return http.StatusPaymentRequired
	}
	return http.StatusBadGateway
}

// formError renders a failed form step with its field errors or banner.
func (h *Handler) formError(c echo.Context, f *form.Flow, st *form.State, err error, view string, data any) error {
	p := h.page(c, view)
	p.Data = data
	switch {
	case errors.Is(err, form.ErrInvalid):
		p.Form = f.Public(st)
		return h.render(c, http.StatusUnprocessableEntity, p)
	case errors.Is(err, form.ErrBusy):
		p.Form = f.Public(st)
		p.Banner = busyBanner
		return h.render(c, http.StatusConflict, p)
	case errors.Is(err, form.ErrDone):
		p.Form = f.Public(st)
		p.Banner = "This form was already submitted."
		return h.render(c, http.StatusConflict, p)
	}
	if st.Banner == "" {
		st.Banner = form.BannerFor(err)
	}
	p.Form = f.Public(st)
	p.Banner = st.Banner
	return h.fail(c, err, p, 0)
}

// formID keys form state and busy flags: the session id when logged in, a
// per-browser guest id otherwise.
func (h *Handler) formID(c echo.Context) string {
	if s := current(c); s != nil {
		return s.ID
	}
	if ck, err := c.Cookie(guestCookie); err == nil && ck.Value != "" {
		return "guest-" + ck.Value
	}
	id := uuid.NewString()
	c.SetCookie(session.CreateCookie(guestCookie, id, "/", time.Time{}, h.Secure))
	return "guest-" + id
}

// values reads a form-encoded, multipart or JSON body into flat strings.
func values(c echo.Context) map[string]string {
	out := map[string]string{}
	req := c.Request()
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		var raw map[string]any
		dec := json.NewDecoder(req.Body)
		dec.UseNumber()
		if err := dec.Decode(&raw); err == nil {
			for k, v := range raw {
				switch t := v.(type) {
				case nil:
				case string:
					out[k] = t
				case json.Number:
					out[k] = t.String()
				case []any:
					parts := make([]string, 0, len(t))
					for _, p := range t {
						parts = append(parts, fmt.Sprint(p))
					}
					out[k] = strings.Join(parts, ",")
				default:
					out[k] = fmt.Sprint(t)
				}
			}
		}
		return out
	}
	params, err := c.FormParams()
	if err != nil {
		return out
	}
	for k, vs := range params {
		if len(vs) > 0 {
			out[k] = strings.Join(vs, ",")
		}
	}
	return out
}

func isTrue(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return (err == nil && b) || strings.EqualFold(strings.TrimSpace(v), "on")
}

func pathID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}


func (h *Handler) emit(c echo.Context, typ, subject string, attrs map[string]string) {
	ev := events.Event{Type: typ, Subject: subject, Attrs: attrs}
	if s := current(c); s != nil {
		ev.SessionID = s.ID
		ev.Role = s.Role
	}
	events.Emit(c.Request().Context(), h.Events, ev)
}

// guestCreds restores backend cookies carried by an anonymous multi-step form.
func guestCreds(st *form.State) *apiclient.Credentials {
	cr := &apiclient.Credentials{Cookies: map[string]string{}}
	for k, v := range st.Carry {
		if name, ok := strings.CutPrefix(k, "cookie:"); ok {
			cr.Cookies[name] = v
		}
	}
	return cr
}

func keepGuestCreds(st *form.State, cr *apiclient.Credentials) {
	for k := range st.Carry {
		if strings.HasPrefix(k, "cookie:") {
			delete(st.Carry, k)
		}
	}
	for name, v := range cr.Cookies {
		st.Carry["cookie:"+name] = v
	}
}

func (h *Handler) saveForm(c echo.Context, key string, f *form.Flow, st *form.State) {
	if err := h.Forms.Save(c.Request().Context(), key, f, st); err != nil {
		logging.FromContext(c.Request().Context()).Error("form_save_failed", "flow", f.Name, "error", err)
	}
}

func (h *Handler) dropForm(c echo.Context, key string, f *form.Flow) {
	if err := h.Forms.Delete(c.Request().Context(), key, f); err != nil {
		logging.FromContext(c.Request().Context()).Error("form_delete_failed", "flow", f.Name, "error", err)
	}
}

// load runs independent view fetches in parallel. Each fetch gets its own
// copy of the backend cookies; rotated cookies are folded back afterwards.
func load(c echo.Context, fns ...func(context.Context, *apiclient.Credentials) error) error {
	base := creds(c)
	snapshot := base.Clone()
	copies := make([]*apiclient.Credentials, len(fns))
	g, ctx := errgroup.WithContext(c.Request().Context())
	for i, fn := range fns {
		i, fn := i, fn
		copies[i] = snapshot.Clone()
		g.Go(func() error { return fn(ctx, copies[i]) })
	}
	err := g.Wait()
	for _, cp := range copies {
		base.Merge(snapshot, cp)
	}
	return err
}

// readPDF returns the uploaded file under field, or nil when none was sent.
// The name and size are recorded in st for validation.
func readPDF(c echo.Context, field string, st *form.State) (*apiclient.Upload, error) {
	delete(st.Fields, "pdf_name")
	delete(st.Fields, "pdf_size")
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	st.SetField("pdf_name", fh.Filename)
	st.SetField("pdf_size", strconv.FormatInt(fh.Size, 10))
	delete(st.Errors, "pdf")
	if fh.Size > form.MaxPDFSize {
		return nil, nil
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, form.MaxPDFSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return &apiclient.Upload{Filename: fh.Filename, Content: content}, nil
}

// guarded runs fn under the session's busy flag for action.
func (h *Handler) guarded(c echo.Context, action string, fn func(context.Context) error) error {
	return h.Guard.Run(c.Request().Context(), form.Key(h.formID(c), action), fn)
}
