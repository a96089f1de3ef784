package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/machmate/machmate-web/internal/authgate"
	"github.com/machmate/machmate-web/internal/events"
	"github.com/machmate/machmate-web/internal/form"
	"github.com/machmate/machmate-web/internal/logging"
	"github.com/machmate/machmate-web/internal/middleware/csrf"
	"github.com/machmate/machmate-web/internal/routes"
	"github.com/machmate/machmate-web/internal/session"
	"github.com/machmate/machmate-web/pkg/apiclient"
)

const invalidLogin = "Invalid email or password"

type resendInfo struct {
	ResendIn int `json:"resend_in"`
}

func (h *Handler) LoginPage(c echo.Context) error {
	p := h.page(c, "login")
	p.Form = form.Login.Public(form.Login.Start())
	return h.render(c, http.StatusOK, p)
}

func (h *Handler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "login")

	st := form.Login.Start()
	form.Login.Apply(st, values(c))
	email := strings.TrimSpace(st.Fields["email"])
	password := st.Fields["password"]
	remember := isTrue(st.Fields["remember_me"])

	var sess *session.Session
	err := form.Login.Submit(ctx, st, h.now(), h.Guard, form.Key(h.formID(c), form.Login.Name), func(ctx context.Context) error {
		var err error
		sess, err = h.Gate.Login(ctx, email, password, remember)
		return err
	})
	if errors.Is(err, apiclient.ErrUnauthorized) || errors.Is(err, authgate.ErrUnknownRole) {
		l.Info("login_rejected", "reason", "credentials")
		p := h.page(c, "login")
		st.Banner = invalidLogin
		p.Form = form.Login.Public(st)
		p.Banner = invalidLogin
		return h.render(c, http.StatusUnauthorized, p)
	}
	if err != nil {
		return h.formError(c, form.Login, st, err, "login", nil)
	}

	h.Gate.Establish(c, sess)
	csrf.Rotate(c)
	l.Info("login_ok", "role", sess.Role, "remember_me", sess.RememberMe)
	h.emit(c, events.Login, sess.Email, nil)
	return c.Redirect(http.StatusSeeOther, routes.Dashboard(sess.Role))
}

func (h *Handler) Logout(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "logout")
	h.emit(c, events.Logout, "", nil)
	if err := h.Gate.SignOut(c); err != nil {
		l.Error("logout_failed", "error", err)
	}
	return c.Redirect(http.StatusSeeOther, routes.LoginPath)
}

// otpFlow describes a guest flow whose first step sends a one-time code.
type otpFlow struct {
	flow *form.Flow
	view string
	// steps maps a step name to its remote action, run after local validation.
	steps func(h *Handler, st *form.State) map[string]func(context.Context, *apiclient.Credentials) error
}

var signupFlow = otpFlow{
	flow: form.Signup,
	view: "signup",
	steps: func(h *Handler, st *form.State) map[string]func(context.Context, *apiclient.Credentials) error {
		return map[string]func(context.Context, *apiclient.Credentials) error{
			"account": func(ctx context.Context, cr *apiclient.Credentials) error {
				if err := h.API.SendSignupOTP(ctx, cr, st.Fields["email"]); err != nil {
					return err
				}
				st.Carry["password"] = st.Fields["password"]
				return nil
			},
			"verify": func(ctx context.Context, cr *apiclient.Credentials) error {
				email := st.Fields["email"]
				if err := h.API.VerifySignupOTP(ctx, cr, email, st.Fields["otp"]); err != nil {
					return err
				}
				return h.API.Register(ctx, cr, apiclient.RegisterRequest{
					Name:     strings.TrimSpace(st.Fields["name"]),
					Email:    email,
					Password: st.Carry["password"],
					Role:     st.Fields["role"],
				})
			},
		}
	},
}

var forgotFlow = otpFlow{
	flow: form.ForgotPassword,
	view: "forgot_password",
	steps: func(h *Handler, st *form.State) map[string]func(context.Context, *apiclient.Credentials) error {
		return map[string]func(context.Context, *apiclient.Credentials) error{
			"email": func(ctx context.Context, cr *apiclient.Credentials) error {
				return h.API.SendPasswordResetOTP(ctx, cr, st.Fields["email"])
			},
			"otp": func(ctx context.Context, cr *apiclient.Credentials) error {
				return h.API.VerifyPasswordResetOTP(ctx, cr, st.Fields["email"], st.Fields["otp"])
			},
			"reset": func(ctx context.Context, cr *apiclient.Credentials) error {
				return h.API.ResetPassword(ctx, cr, st.Fields["email"], st.Fields["otp"], st.Fields["password"])
			},
		}
	},
}

func (h *Handler) SignupPage(c echo.Context) error { return h.otpPage(c, signupFlow) }
func (h *Handler) Signup(c echo.Context) error     { return h.otpSubmit(c, signupFlow) }
func (h *Handler) SignupResend(c echo.Context) error {
	return h.otpResend(c, signupFlow, func(ctx context.Context, cr *apiclient.Credentials, email string) error {
		return h.API.SendSignupOTP(ctx, cr, email)
	})
}

func (h *Handler) ForgotPasswordPage(c echo.Context) error { return h.otpPage(c, forgotFlow) }
func (h *Handler) ForgotPassword(c echo.Context) error     { return h.otpSubmit(c, forgotFlow) }
func (h *Handler) ForgotPasswordResend(c echo.Context) error {
	return h.otpResend(c, forgotFlow, func(ctx context.Context, cr *apiclient.Credentials, email string) error {
		return h.API.SendPasswordResetOTP(ctx, cr, email)
	})
}

func (h *Handler) resendIn(key string) resendInfo {
	return resendInfo{ResendIn: int(h.Cooldown.Remaining(key).Seconds())}
}

func (h *Handler) otpPage(c echo.Context, of otpFlow) error {
	id := h.formID(c)
	st, err := h.Forms.Load(c.Request().Context(), id, of.flow)
	if err != nil {
		return h.fail(c, err, h.page(c, of.view), http.StatusInternalServerError)
	}
	p := h.page(c, of.view)
	p.Form = of.flow.Public(st)
	p.Data = h.resendIn(form.Key(id, of.flow.Name))
	return h.render(c, http.StatusOK, p)
}

func (h *Handler) otpSubmit(c echo.Context, of otpFlow) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", of.flow.Name)
	id := h.formID(c)
	key := form.Key(id, of.flow.Name)

	st, err := h.Forms.Load(ctx, id, of.flow)
	if err != nil {
		return h.fail(c, err, h.page(c, of.view), http.StatusInternalServerError)
	}
	vals := values(c)
	if isTrue(vals["restart"]) {
		h.Cooldown.Forget(key)
		st = of.flow.Start()
	}
	of.flow.Apply(st, vals)
	step := of.flow.Current(st).Name
	action := of.steps(h, st)[step]

	err = of.flow.Submit(ctx, st, h.now(), h.Guard, key, func(ctx context.Context) error {
		cr := guestCreds(st)
		defer keepGuestCreds(st, cr)
		if err := h.API.EnsureCSRF(ctx, cr); err != nil {
			return err
		}
		return action(ctx, cr)
	})
	if err != nil {
		if !errors.Is(err, form.ErrBusy) {
			h.saveForm(c, id, of.flow, st)
		}
		l.Info("step_failed", "step", step, "error", err)
		return h.formError(c, of.flow, st, err, of.view, h.resendIn(key))
	}

	l.Info("step_ok", "step", step)
	if st.Done {
		h.dropForm(c, id, of.flow)
		h.Cooldown.Forget(key)
		return c.Redirect(http.StatusSeeOther, routes.LoginPath)
	}
	if st.Step == 1 {
		h.Cooldown.Start(key)
	}
	h.saveForm(c, id, of.flow, st)

	p := h.page(c, of.view)
	p.Form = of.flow.Public(st)
	p.Data = h.resendIn(key)
	return h.render(c, http.StatusOK, p)
}

// otpResend sends a new code unless the cosmetic countdown is still running.
func (h *Handler) otpResend(c echo.Context, of otpFlow, send func(context.Context, *apiclient.Credentials, string) error) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", of.flow.Name+"_resend")
	id := h.formID(c)
	key := form.Key(id, of.flow.Name)

	st, err := h.Forms.Load(ctx, id, of.flow)
	if err != nil {
		return h.fail(c, err, h.page(c, of.view), http.StatusInternalServerError)
	}
	p := h.page(c, of.view)
	if st.Step == 0 || st.Fields["email"] == "" {
		p.Form = of.flow.Public(st)
		p.Banner = "Request a code first."
		return h.render(c, http.StatusConflict, p)
	}
	if wait := h.resendIn(key); wait.ResendIn > 0 {
		p.Form = of.flow.Public(st)
		p.Data = wait
		return h.render(c, http.StatusTooManyRequests, p)
	}

	err = h.Guard.Run(ctx, key, func(ctx context.Context) error {
		cr := guestCreds(st)
		defer keepGuestCreds(st, cr)
		if err := h.API.EnsureCSRF(ctx, cr); err != nil {
			return err
		}
		return send(ctx, cr, st.Fields["email"])
	})
	if err != nil {
		l.Info("resend_failed", "error", err)
		return h.formError(c, of.flow, st, err, of.view, h.resendIn(key))
	}

	h.Cooldown.Start(key)
	st.Banner = ""
	h.saveForm(c, id, of.flow, st)
	l.Info("resend_ok")
	p.Form = of.flow.Public(st)
	p.Data = h.resendIn(key)
	return h.render(c, http.StatusOK, p)
}
