package apiclient

import (
	"context"
	"net/http"

	"github.com/machmate/machmate-web/internal/models"
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// EnsureCSRF obtains the backend csrftoken cookie when credentials do not hold one yet.
func (c *Client) EnsureCSRF(ctx context.Context, creds *Credentials) error {
	if creds.CSRFToken() != "" {
		return nil
	}
	return c.getJSON(ctx, creds, "/auth/csrf/", nil)
}

// Login authenticates against the backend. The response already names the role.
func (c *Client) Login(ctx context.Context, creds *Credentials, email, password string) (*models.User, error) {
	var w userWire
	in := map[string]string{"email": email, "password": password}
	if err := c.sendJSON(ctx, creds, http.MethodPost, "/auth/login/", in, &w); err != nil {
		return nil, err
	}
	u := w.normalize()
	if u.Email == "" {
		u.Email = email
	}
	return &u, nil
}

func (c *Client) Logout(ctx context.Context, creds *Credentials) error {
	return c.sendJSON(ctx, creds, http.MethodPost, "/auth/logout/", nil, nil)
}

// Me is the authoritative who-am-I call.
func (c *Client) Me(ctx context.Context, creds *Credentials) (*models.User, error) {
	var w userWire
	if err := c.getJSON(ctx, creds, "/auth/me/", &w); err != nil {
		return nil, err
	}
	u := w.normalize()
	return &u, nil
}

func (c *Client) Register(ctx context.Context, creds *Credentials, req RegisterRequest) error {
	return c.sendJSON(ctx, creds, http.MethodPost, "/auth/register/", req, nil)
}

func (c *Client) SendSignupOTP(ctx context.Context, creds *Credentials, email string) error {
	return c.sendJSON(ctx, creds, http.MethodPost, "/auth/send-otp/", map[string]string{"email": email}, nil)
}

func (c *Client) VerifySignupOTP(ctx context.Context, creds *Credentials, email, otp string) error {
	in := map[string]string{"email": email, "otp": otp}
	return c.sendJSON(ctx, creds, http.MethodPost, "/auth/verify-otp/", in, nil)
}

func (c *Client) SendPasswordResetOTP(ctx context.Context, creds *Credentials, email string) error {
	return c.sendJSON(ctx, creds, http.MethodPost, "/auth/forgot-password/send-otp/", map[string]string{"email": email}, nil)
}

func (c *Client) VerifyPasswordResetOTP(ctx context.Context, creds *Credentials, email, otp string) error {
	in := map[string]string{"email": email, "otp": otp}
	return c.sendJSON(ctx, creds, http.MethodPost, "/auth/forgot-password/verify-otp/", in, nil)
}

func (c *Client) ResetPassword(ctx context.Context, creds *Credentials, email, otp, password string) error {
	in := map[string]string{"email": email, "otp": otp, "new_password": password}
	return c.sendJSON(ctx, creds, http.MethodPost, "/auth/forgot-password/reset/", in, nil)
}
