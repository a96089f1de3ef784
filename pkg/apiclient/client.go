package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const csrfCookie = "csrftoken"

// Credentials carries the backend's cookies (session and csrftoken) for one browser session.
// Set-Cookie headers on every response are folded back in.
type Credentials struct {
	Cookies map[string]string `json:"cookies,omitempty"`
}

func (c *Credentials) CSRFToken() string {
	if c == nil {
		return ""
	}
	return c.Cookies[csrfCookie]
}

// Clone gives a concurrent caller its own copy; fold it back with Merge.
func (c *Credentials) Clone() *Credentials {
	if c == nil {
		return &Credentials{}
	}
	return &Credentials{Cookies: maps.Clone(c.Cookies)}
}

// Merge copies cookies that other changed relative to base.
func (c *Credentials) Merge(base, other *Credentials) {
	for name, v := range other.Cookies {
		if base.Cookies[name] != v {
			if c.Cookies == nil {
				c.Cookies = map[string]string{}
			}
			c.Cookies[name] = v
		}
	}
	for name := range base.Cookies {
		if _, ok := other.Cookies[name]; !ok {
			delete(c.Cookies, name)
		}
	}
}

func (c *Credentials) absorb(cookies []*http.Cookie, now time.Time) {
	if c == nil {
		return
	}
	for _, ck := range cookies {
		if ck.MaxAge < 0 || ck.Value == "" || (!ck.Expires.IsZero() && ck.Expires.Before(now)) {
			delete(c.Cookies, ck.Name)
			continue
		}
		if c.Cookies == nil {
			c.Cookies = map[string]string{}
		}
		c.Cookies[ck.Name] = ck.Value
	}
}

// Upload is a file attached to a multipart request.
type Upload struct {
	Filename string
	Content  []byte
}

type Client struct {
	baseURL    string
	origin     string
	httpClient *http.Client
}

type Option func(*Client)

func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		origin:  u.Scheme + "://" + u.Host,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 60 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Host is the API origin's host, used by the offline transport to recognize API traffic.
func (c *Client) Host() string {
	u, _ := url.Parse(c.origin)
	return u.Host
}

func (c *Client) getJSON(ctx context.Context, creds *Credentials, path string, out any) error {
	return c.do(ctx, creds, http.MethodGet, path, nil, "", out)
}

func (c *Client) sendJSON(ctx context.Context, creds *Credentials, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	return c.do(ctx, creds, method, path, body, "application/json", out)
}

func (c *Client) sendMultipart(ctx context.Context, creds *Credentials, method, path string, fields map[string]string, fileField string, file *Upload, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if file != nil && len(file.Content) > 0 {
		fw, err := w.CreateFormFile(fileField, file.Filename)
		if err != nil {
			return fmt.Errorf("create form file: %w", err)
		}
		if _, err := fw.Write(file.Content); err != nil {
			return fmt.Errorf("write form file: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}
	return c.do(ctx, creds, method, path, &buf, w.FormDataContentType(), out)
}

func (c *Client) do(ctx context.Context, creds *Credentials, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if creds != nil {
		for name, v := range creds.Cookies {
			req.AddCookie(&http.Cookie{Name: name, Value: v})
		}
	}
	if method != http.MethodGet && method != http.MethodHead {
		if tok := creds.CSRFToken(); tok != "" {
			req.Header.Set("X-CSRFToken", tok)
		}
		req.Header.Set("Referer", c.origin+"/")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	creds.absorb(resp.Cookies(), time.Now())

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
