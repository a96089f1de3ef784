package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrMiss = errors.New("cache miss")

// Entry is one stored response inside a named, versioned cache.
type Entry struct {
	ID        uint      `gorm:"primaryKey"`
	CacheName string    `gorm:"size:128;not null;uniqueIndex:idx_offline_cache_key,priority:1"`
	Key       string    `gorm:"column:request_key;size:2048;not null;uniqueIndex:idx_offline_cache_key,priority:2"`
	Status    int       `gorm:"not null"`
	Header    string    `gorm:"type:text"`
	Body      []byte
	StoredAt  time.Time `gorm:"not null;index"`
}

func (Entry) TableName() string { return "offline_cache_entries" }

type Snapshot struct {
	Status int
	Header http.Header
	Body   []byte
}

// Response rebuilds an *http.Response for req from the snapshot.
func (s *Snapshot) Response(req *http.Request) *http.Response {
	h := s.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Length", strconv.Itoa(len(s.Body)))
	h.Set("X-Offline-Cache", "hit")
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", s.Status, http.StatusText(s.Status)),
		StatusCode:    s.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
		Request:       req,
	}
}

// Fetcher loads one asset for Install.
type Fetcher func(ctx context.Context, url string) (*Snapshot, error)

type Cache struct {
	db      *gorm.DB
	version string
	now     func() time.Time
}

func NewCache(db *gorm.DB, version string) *Cache {
	return &Cache{db: db, version: version, now: time.Now}
}

func (c *Cache) Version() string { return c.version }

func (c *Cache) entry(key string, s *Snapshot) (*Entry, error) {
	hdr, err := json.Marshal(s.Header)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	return &Entry{
		CacheName: c.version,
		Key:       key,
		Status:    s.Status,
		Header:    string(hdr),
		Body:      s.Body,
		StoredAt:  c.now().UTC(),
	}, nil
}

func upsert(tx *gorm.DB, e *Entry) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_name"}, {Name: "request_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "header", "body", "stored_at"}),
	}).Create(e).Error
}

func (c *Cache) Put(ctx context.Context, key string, s *Snapshot) error {
	e, err := c.entry(key, s)
	if err != nil {
		return err
	}
	if err := upsert(c.db.WithContext(ctx), e); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Match(ctx context.Context, key string) (*Snapshot, error) {
	var e Entry
	err := c.db.WithContext(ctx).
		Where("cache_name = ? AND request_key = ?", c.version, key).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", key, err)
	}
	s := &Snapshot{Status: e.Status, Body: e.Body, Header: http.Header{}}
	if e.Header != "" {
		if err := json.Unmarshal([]byte(e.Header), &s.Header); err != nil {
			return nil, fmt.Errorf("decode header: %w", err)
		}
	}
	return s, nil
}

// Install pre-populates the current version. It is all-or-nothing: one failed
// fetch leaves the cache untouched.
func (c *Cache) Install(ctx context.Context, fetch Fetcher, urls []string) error {
	entries := make([]*Entry, 0, len(urls))
	for _, u := range urls {
		s, err := fetch(ctx, u)
		if err != nil {
			return fmt.Errorf("install %s: %w", u, err)
		}
		e, err := c.entry(u, s)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			if err := upsert(tx, e); err != nil {
				return fmt.Errorf("install %s: %w", e.Key, err)
			}
		}
		return nil
	})
}

// Activate deletes every cache whose name is not the current version.
func (c *Cache) Activate(ctx context.Context) (int64, error) {
	res := c.db.WithContext(ctx).Where("cache_name <> ?", c.version).Delete(&Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("activate %s: %w", c.version, res.Error)
	}
	return res.RowsAffected, nil
}

// Sweep deletes current-version entries stored before now-maxAge.
func (c *Cache) Sweep(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := c.now().UTC().Add(-maxAge)
	res := c.db.WithContext(ctx).
		Where("cache_name = ? AND stored_at < ?", c.version, cutoff).
		Delete(&Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("sweep: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// HTTPFetcher fetches install assets through rt, requiring a 200.
func HTTPFetcher(rt http.RoundTripper) Fetcher {
	client := &http.Client{Transport: rt, Timeout: 30 * time.Second}
	return func(ctx context.Context, url string) (*Snapshot, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return &Snapshot{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
	}
}
