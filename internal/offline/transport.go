package offline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/machmate/machmate-web/internal/logging"
)

const (
	apiUnreachableBody = `{"error":"API not reachable"}`
	offlineBody        = "Offline"
)

type strategy int

const (
	networkFirst strategy = iota
	apiNetworkOnly
	passthrough
)

// Transport applies the offline strategies to outbound requests:
// API auth and api paths are network only with a JSON 503 fallback, other
// API traffic is never cached, and remaining GETs are network first with the
// cache as fallback.
type Transport struct {
	Base         http.RoundTripper
	Cache        *Cache
	APIHost      string
	NetworkOnly  []string
	WriteTimeout time.Duration
	MaxBody      int64

	wg sync.WaitGroup
}

func NewTransport(base http.RoundTripper, cache *Cache, apiHost string) *Transport {
	return &Transport{
		Base:         base,
		Cache:        cache,
		APIHost:      apiHost,
		NetworkOnly:  []string{"/auth/", "/api/"},
		WriteTimeout: 5 * time.Second,
		MaxBody:      5 << 20,
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) strategyFor(req *http.Request) strategy {
	if t.APIHost != "" && strings.EqualFold(req.URL.Host, t.APIHost) {
		for _, p := range t.NetworkOnly {
			if strings.HasPrefix(req.URL.Path, p) {
				return apiNetworkOnly
			}
		}
		return passthrough
	}
	if req.Method != http.MethodGet {
		return passthrough
	}
	return networkFirst
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.strategyFor(req) {
	case apiNetworkOnly:
		resp, err := t.base().RoundTrip(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, err
			}
			logging.FromContext(req.Context()).Warn("api_unreachable", "url", req.URL.Redacted(), "error", err)
			return synthetic(req, http.StatusServiceUnavailable, "application/json", apiUnreachableBody), nil
		}
		return resp, nil
	case passthrough:
		return t.base().RoundTrip(req)
	default:
		return t.networkFirst(req)
	}
}

func (t *Transport) networkFirst(req *http.Request) (*http.Response, error) {
	resp, err := t.base().RoundTrip(req)
	if err == nil {
		if resp.StatusCode == http.StatusOK && t.Cache != nil && !noStore(resp.Header) {
			t.tee(req, resp)
		}
		return resp, nil
	}
	if req.Context().Err() != nil {
		return nil, err
	}

	l := logging.FromContext(req.Context())
	if t.Cache != nil {
		snap, cerr := t.Cache.Match(req.Context(), cacheKey(req))
		if cerr == nil {
			l.Info("offline_cache_hit", "url", req.URL.Redacted())
			return snap.Response(req), nil
		}
	}
	l.Warn("offline_cache_miss", "url", req.URL.Redacted(), "error", err)
	return synthetic(req, http.StatusServiceUnavailable, "text/plain; charset=utf-8", offlineBody), nil
}

// tee buffers the body and stores a copy on a detached goroutine. Bodies over
// MaxBody are streamed through uncached.
func (t *Transport) tee(req *http.Request, resp *http.Response) {
	buf, err := io.ReadAll(io.LimitReader(resp.Body, t.MaxBody+1))
	if err != nil || int64(len(buf)) > t.MaxBody {
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(buf), resp.Body), resp.Body}
		return
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(buf))

	snap := &Snapshot{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: buf}
	key := cacheKey(req)
	l := logging.FromContext(req.Context())

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.WriteTimeout)
		defer cancel()
		if err := t.Cache.Put(ctx, key, snap); err != nil {
			l.Error("offline_cache_write_failed", "key", key, "error", err)
		}
	}()
}

// Wait blocks until pending cache writes have finished.
func (t *Transport) Wait() { t.wg.Wait() }

func cacheKey(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	u.User = nil
	return u.String()
}

func noStore(h http.Header) bool {
	return strings.Contains(strings.ToLower(h.Get("Cache-Control")), "no-store")
}

func synthetic(req *http.Request, status int, contentType, body string) *http.Response {
	h := http.Header{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
